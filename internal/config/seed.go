package config

import (
	"fmt"
	"os"

	"shareit/internal/models"

	"gopkg.in/yaml.v3"
)

// Seed is the catalog snapshot owned by the user and item services.
type Seed struct {
	Users []models.User `yaml:"users"`
	Items []models.Item `yaml:"items"`
}

func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var seed Seed
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &seed); err != nil {
		return nil, fmt.Errorf("parse seed: %w", err)
	}

	if err := seed.Validate(); err != nil {
		return nil, err
	}
	return &seed, nil
}

func (s *Seed) Validate() error {
	userIDs := make(map[int64]bool, len(s.Users))
	for _, user := range s.Users {
		if user.ID == 0 {
			return fmt.Errorf("user '%s' has invalid ID 0", user.Name)
		}
		if userIDs[user.ID] {
			return fmt.Errorf("duplicate user ID found: %d", user.ID)
		}
		userIDs[user.ID] = true
	}

	itemIDs := make(map[int64]bool, len(s.Items))
	for _, item := range s.Items {
		if item.ID == 0 {
			return fmt.Errorf("item '%s' has invalid ID 0", item.Name)
		}
		if itemIDs[item.ID] {
			return fmt.Errorf("duplicate item ID found: %d", item.ID)
		}
		if !userIDs[item.OwnerID] {
			return fmt.Errorf("item %d references unknown owner %d", item.ID, item.OwnerID)
		}
		itemIDs[item.ID] = true
	}
	return nil
}
