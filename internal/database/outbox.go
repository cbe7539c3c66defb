package database

import (
	"context"
	"fmt"
	"time"

	"shareit/internal/models"
)

const outboxColumns = `id, event_type, event_key, payload, status, retry_count, last_error, created_at, processed_at, next_retry_at`

// AddEvent stores an event in the outbox inside the booking transaction, so
// the event commits or rolls back together with the booking write.
func (t *bookingTx) AddEvent(ctx context.Context, event *models.OutboxEvent) error {
	return insertOutboxEvent(ctx, t.q, event)
}

func insertOutboxEvent(ctx context.Context, q querier, event *models.OutboxEvent) error {
	if event.EventType == "" {
		return fmt.Errorf("failed to create outbox event: event type is required")
	}
	if event.Status == "" {
		event.Status = models.OutboxPending
	}
	now := utc(time.Now())
	query := `INSERT INTO event_outbox (event_type, event_key, payload, status, retry_count, last_error, created_at, next_retry_at)
              VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`
	err := q.QueryRowContext(ctx, query,
		event.EventType,
		event.EventKey,
		event.Payload,
		event.Status,
		event.RetryCount,
		event.LastError,
		now,
		utcPtr(event.NextRetryAt),
	).Scan(&event.ID)
	if err != nil {
		return fmt.Errorf("failed to create outbox event: %w", err)
	}
	event.CreatedAt = now
	return nil
}

// GetPendingOutboxEvents returns events due for delivery at now, oldest first.
func (db *DB) GetPendingOutboxEvents(ctx context.Context, now time.Time, limit int) ([]models.OutboxEvent, error) {
	query := `SELECT ` + outboxColumns + `
              FROM event_outbox
              WHERE status IN ('pending', 'retry') AND (next_retry_at IS NULL OR next_retry_at <= $1)
              ORDER BY created_at ASC, id ASC LIMIT $2`
	return db.queryOutbox(ctx, query, utc(now), limit)
}

// GetFailedOutboxEvents returns events the relay gave up on, newest first.
func (db *DB) GetFailedOutboxEvents(ctx context.Context) ([]models.OutboxEvent, error) {
	query := `SELECT ` + outboxColumns + ` FROM event_outbox WHERE status = 'failed' ORDER BY created_at DESC`
	return db.queryOutbox(ctx, query)
}

func (db *DB) UpdateOutboxEventStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error {
	var query string
	var args []interface{}
	now := utc(time.Now())

	switch status {
	case models.OutboxRetry:
		query = `UPDATE event_outbox SET status = $1, last_error = $2, next_retry_at = $3, retry_count = retry_count + 1 WHERE id = $4`
		args = []interface{}{status, errMsg, utcPtr(nextRetryAt), id}
	case models.OutboxSent, models.OutboxFailed:
		query = `UPDATE event_outbox SET status = $1, last_error = $2, next_retry_at = $3, processed_at = $4 WHERE id = $5`
		args = []interface{}{status, errMsg, utcPtr(nextRetryAt), now, id}
	default:
		query = `UPDATE event_outbox SET status = $1, last_error = $2, next_retry_at = $3 WHERE id = $4`
		args = []interface{}{status, errMsg, utcPtr(nextRetryAt), id}
	}

	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update outbox event status: %w", err)
	}
	return nil
}

func (db *DB) queryOutbox(ctx context.Context, query string, args ...any) ([]models.OutboxEvent, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query outbox: %w", err)
	}
	defer rows.Close()

	var events []models.OutboxEvent
	for rows.Next() {
		var e models.OutboxEvent
		err := rows.Scan(
			&e.ID, &e.EventType, &e.EventKey, &e.Payload, &e.Status, &e.RetryCount, &e.LastError,
			&e.CreatedAt, &e.ProcessedAt, &e.NextRetryAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outbox event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
