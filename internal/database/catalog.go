package database

import (
	"context"
	"fmt"
	"time"

	"shareit/internal/config"
	"shareit/internal/models"
)

// SyncCatalog upserts the users and items owned by the catalog services so
// bookings can reference them.
func (db *DB) SyncCatalog(ctx context.Context, users []models.User, items []models.Item) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := utc(time.Now())
	for _, u := range users {
		_, err := tx.ExecContext(ctx, `INSERT INTO users (id, name, email, created_at) VALUES ($1, $2, $3, $4)
              ON CONFLICT (id) DO UPDATE SET name = excluded.name, email = excluded.email`,
			u.ID, u.Name, u.Email, now)
		if err != nil {
			return fmt.Errorf("failed to upsert user %d: %w", u.ID, err)
		}
	}

	for _, it := range items {
		_, err := tx.ExecContext(ctx, `INSERT INTO items (id, name, description, available, owner_id, created_at)
              VALUES ($1, $2, $3, $4, $5, $6)
              ON CONFLICT (id) DO UPDATE SET name = excluded.name, description = excluded.description,
                  available = excluded.available, owner_id = excluded.owner_id`,
			it.ID, it.Name, it.Description, it.Available, it.OwnerID, now)
		if err != nil {
			return fmt.Errorf("failed to upsert item %d: %w", it.ID, err)
		}
	}

	if db.driver == config.DriverPostgres {
		// explicit ids do not advance the serial sequences
		for _, table := range []string{"users", "items"} {
			stmt := fmt.Sprintf(`SELECT setval(pg_get_serial_sequence('%s', 'id'), COALESCE(MAX(id), 1)) FROM %s`, table, table)
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("failed to reset %s sequence: %w", table, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit catalog sync: %w", err)
	}

	db.logger.Info().Int("users", len(users)).Int("items", len(items)).Msg("catalog synced")
	return nil
}
