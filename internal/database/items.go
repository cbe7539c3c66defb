package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"shareit/internal/models"
)

func (db *DB) CreateItem(ctx context.Context, item *models.Item) error {
	now := utc(time.Now())
	query := `INSERT INTO items (name, description, available, owner_id, created_at)
              VALUES ($1, $2, $3, $4, $5) RETURNING id`
	err := db.QueryRowContext(ctx, query, item.Name, item.Description, item.Available, item.OwnerID, now).Scan(&item.ID)
	if err != nil {
		return fmt.Errorf("failed to create item: %w", err)
	}
	item.CreatedAt = now
	return nil
}

func (db *DB) GetItemByID(ctx context.Context, id int64) (*models.Item, error) {
	query := `SELECT id, name, description, available, owner_id, created_at FROM items WHERE id = $1`
	item, err := scanItem(db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	return item, nil
}

func (db *DB) GetItemsByOwner(ctx context.Context, ownerID int64) ([]*models.Item, error) {
	query := `SELECT id, name, description, available, owner_id, created_at
              FROM items WHERE owner_id = $1 ORDER BY id ASC`
	rows, err := db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get owner items: %w", err)
	}
	defer rows.Close()

	var items []*models.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (db *DB) SetItemAvailability(ctx context.Context, id int64, available bool) error {
	result, err := db.ExecContext(ctx, `UPDATE items SET available = $1 WHERE id = $2`, available, id)
	if err != nil {
		return fmt.Errorf("failed to update item availability: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrNotFound
	}
	return nil
}

func scanItem(row rowScanner) (*models.Item, error) {
	var item models.Item
	err := row.Scan(&item.ID, &item.Name, &item.Description, &item.Available, &item.OwnerID, &item.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &item, nil
}
