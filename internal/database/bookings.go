package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"shareit/internal/models"
)

const bookingSelect = `SELECT b.id, b.start_at, b.end_at, b.status, b.version, b.created_at, b.updated_at,
       i.id, i.name, i.description, i.available, i.owner_id,
       u.id, u.name, u.email
  FROM bookings b
  JOIN items i ON i.id = b.item_id
  JOIN users u ON u.id = b.booker_id`

type rowScanner interface {
	Scan(dest ...any) error
}

// bookingTx implements domain.BookingTx on top of an open transaction.
type bookingTx struct {
	q querier
}

func (t *bookingTx) FindByID(ctx context.Context, id int64) (*models.Booking, error) {
	return findBookingByID(ctx, t.q, id)
}

func (t *bookingTx) FindByItemAndInterval(ctx context.Context, itemID int64, start, end time.Time, status models.BookingStatus) ([]*models.Booking, error) {
	return findByItemAndInterval(ctx, t.q, itemID, start, end, status)
}

// Save inserts a new booking, or writes the status of an existing one
// guarded by its version.
func (t *bookingTx) Save(ctx context.Context, booking *models.Booking) error {
	if booking.ID == 0 {
		return insertBooking(ctx, t.q, booking)
	}
	return updateBookingStatus(ctx, t.q, booking)
}


func (db *DB) FindByID(ctx context.Context, id int64) (*models.Booking, error) {
	return findBookingByID(ctx, db, id)
}

func (db *DB) FindByItemAndInterval(ctx context.Context, itemID int64, start, end time.Time, status models.BookingStatus) ([]*models.Booking, error) {
	return findByItemAndInterval(ctx, db, itemID, start, end, status)
}

func (db *DB) FindByBookerWithFilter(ctx context.Context, bookerID int64, filter models.BookingFilter, page models.Page) ([]*models.Booking, error) {
	return db.listBookings(ctx, "b.booker_id", bookerID, filter, page)
}

func (db *DB) FindByOwnerWithFilter(ctx context.Context, ownerID int64, filter models.BookingFilter, page models.Page) ([]*models.Booking, error) {
	return db.listBookings(ctx, "i.owner_id", ownerID, filter, page)
}

// FindLastApproved returns the approved booking of the item with the latest
// start before now, or nil.
func (db *DB) FindLastApproved(ctx context.Context, itemID int64, now time.Time) (*models.Booking, error) {
	query := bookingSelect + `
 WHERE b.item_id = $1 AND b.status = $2 AND b.start_at < $3
 ORDER BY b.start_at DESC, b.id DESC LIMIT 1`
	return db.findOptional(ctx, query, itemID, string(models.StatusApproved), utc(now))
}

// FindNextApproved returns the approved booking of the item with the earliest
// start after now, or nil.
func (db *DB) FindNextApproved(ctx context.Context, itemID int64, now time.Time) (*models.Booking, error) {
	query := bookingSelect + `
 WHERE b.item_id = $1 AND b.status = $2 AND b.start_at > $3
 ORDER BY b.start_at ASC, b.id ASC LIMIT 1`
	return db.findOptional(ctx, query, itemID, string(models.StatusApproved), utc(now))
}

// CountFinished counts the user's bookings of the item that ended before now.
func (db *DB) CountFinished(ctx context.Context, itemID, bookerID int64, now time.Time) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM bookings WHERE item_id = $1 AND booker_id = $2 AND end_at < $3`
	if err := db.QueryRowContext(ctx, query, itemID, bookerID, utc(now)).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count finished bookings: %w", err)
	}
	return count, nil
}

func (db *DB) findOptional(ctx context.Context, query string, args ...any) (*models.Booking, error) {
	booking, err := scanBooking(db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return booking, nil
}

func (db *DB) listBookings(ctx context.Context, subject string, subjectID int64, filter models.BookingFilter, page models.Page) ([]*models.Booking, error) {
	var qb queryBuilder
	where := subject + " = " + qb.arg(subjectID)

	clause, err := stateClause(&qb, filter)
	if err != nil {
		return nil, err
	}
	if clause != "" {
		where += " AND " + clause
	}

	query := bookingSelect + "\n WHERE " + where + "\n ORDER BY b.start_at DESC, b.id DESC"
	if page.Size > 0 {
		query += " LIMIT " + qb.arg(page.Size) + " OFFSET " + qb.arg(page.Offset())
	}

	rows, err := db.QueryContext(ctx, query, qb.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	return collectBookings(rows)
}

func findBookingByID(ctx context.Context, q querier, id int64) (*models.Booking, error) {
	booking, err := scanBooking(q.QueryRowContext(ctx, bookingSelect+"\n WHERE b.id = $1", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return booking, nil
}

// findByItemAndInterval is the range lookup behind conflict checks; it is
// served by idx_bookings_item_status_start.
func findByItemAndInterval(ctx context.Context, q querier, itemID int64, start, end time.Time, status models.BookingStatus) ([]*models.Booking, error) {
	query := bookingSelect + `
 WHERE b.item_id = $1 AND b.status = $2 AND b.start_at < $3 AND b.end_at > $4
 ORDER BY b.start_at ASC`
	rows, err := q.QueryContext(ctx, query, itemID, string(status), utc(end), utc(start))
	if err != nil {
		return nil, fmt.Errorf("failed to find overlapping bookings: %w", err)
	}
	return collectBookings(rows)
}

func insertBooking(ctx context.Context, q querier, booking *models.Booking) error {
	if booking.Status == "" {
		booking.Status = models.StatusWaiting
	}
	now := utc(time.Now())
	query := `INSERT INTO bookings (item_id, booker_id, start_at, end_at, status, version, created_at, updated_at)
              VALUES ($1, $2, $3, $4, $5, 1, $6, $6) RETURNING id`
	err := q.QueryRowContext(ctx, query,
		booking.Item.ID,
		booking.Booker.ID,
		utc(booking.Start),
		utc(booking.End),
		string(booking.Status),
		now,
	).Scan(&booking.ID)
	if err != nil {
		return fmt.Errorf("failed to insert booking: %w", err)
	}

	booking.Start = utc(booking.Start)
	booking.End = utc(booking.End)
	booking.CreatedAt = now
	booking.UpdatedAt = now
	booking.Version = 1
	return nil
}

func updateBookingStatus(ctx context.Context, q querier, booking *models.Booking) error {
	now := utc(time.Now())
	query := `UPDATE bookings SET status = $1, version = version + 1, updated_at = $2 WHERE id = $3 AND version = $4`
	result, err := q.ExecContext(ctx, query, string(booking.Status), now, booking.ID, booking.Version)
	if err != nil {
		return fmt.Errorf("failed to update booking status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if rows == 0 {
		return ErrConcurrentModification
	}
	booking.Version++
	booking.UpdatedAt = now
	return nil
}

func collectBookings(rows *sql.Rows) ([]*models.Booking, error) {
	defer rows.Close()

	var bookings []*models.Booking
	for rows.Next() {
		booking, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, booking)
	}
	return bookings, rows.Err()
}

func scanBooking(row rowScanner) (*models.Booking, error) {
	var b models.Booking
	var status string
	err := row.Scan(
		&b.ID, &b.Start, &b.End, &status, &b.Version, &b.CreatedAt, &b.UpdatedAt,
		&b.Item.ID, &b.Item.Name, &b.Item.Description, &b.Item.Available, &b.Item.OwnerID,
		&b.Booker.ID, &b.Booker.Name, &b.Booker.Email,
	)
	if err != nil {
		return nil, err
	}
	b.Status = models.BookingStatus(status)
	b.Start = utc(b.Start)
	b.End = utc(b.End)
	return &b, nil
}
