package models

import "time"

type Item struct {
	ID          int64     `yaml:"id" json:"id"`
	Name        string    `yaml:"name" json:"name"`
	Description string    `yaml:"description" json:"description,omitempty"`
	Available   bool      `yaml:"available" json:"available"`
	OwnerID     int64     `yaml:"owner_id" json:"owner_id,omitempty"`
	CreatedAt   time.Time `yaml:"-" json:"created_at,omitempty"`
}

// ItemOverview is the item card shown to a viewer. Last and Next are only
// filled for the owner.
type ItemOverview struct {
	Item        *Item
	LastBooking *Booking
	NextBooking *Booking
}
