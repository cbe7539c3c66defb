package models

import "time"

type User struct {
	ID        int64     `yaml:"id" json:"id"`
	Name      string    `yaml:"name" json:"name"`
	Email     string    `yaml:"email" json:"email,omitempty"`
	CreatedAt time.Time `yaml:"-" json:"created_at,omitempty"`
}
