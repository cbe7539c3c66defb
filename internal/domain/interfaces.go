package domain

import (
	"context"
	"time"

	"shareit/internal/models"
)

type UserLookup interface {
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
}

type ItemLookup interface {
	GetItemByID(ctx context.Context, id int64) (*models.Item, error)
	GetItemsByOwner(ctx context.Context, ownerID int64) ([]*models.Item, error)
}

// BookingTx is the booking store bound to one write transaction.
type BookingTx interface {
	FindByID(ctx context.Context, id int64) (*models.Booking, error)
	FindByItemAndInterval(ctx context.Context, itemID int64, start, end time.Time, status models.BookingStatus) ([]*models.Booking, error)
	Save(ctx context.Context, booking *models.Booking) error
	AddEvent(ctx context.Context, event *models.OutboxEvent) error
}

type BookingStore interface {
	WithinTx(ctx context.Context, fn func(tx BookingTx) error) error
	FindByID(ctx context.Context, id int64) (*models.Booking, error)
	FindByBookerWithFilter(ctx context.Context, bookerID int64, filter models.BookingFilter, page models.Page) ([]*models.Booking, error)
	FindByOwnerWithFilter(ctx context.Context, ownerID int64, filter models.BookingFilter, page models.Page) ([]*models.Booking, error)
	FindLastApproved(ctx context.Context, itemID int64, now time.Time) (*models.Booking, error)
	FindNextApproved(ctx context.Context, itemID int64, now time.Time) (*models.Booking, error)
	CountFinished(ctx context.Context, itemID, bookerID int64, now time.Time) (int, error)
}

// BookingCache holds copies of decided bookings, which never change again.
// A miss is (nil, nil).
type BookingCache interface {
	Get(ctx context.Context, id int64) (*models.Booking, error)
	Set(ctx context.Context, booking *models.Booking) error
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

type BookingService interface {
	CreateBooking(ctx context.Context, bookerID, itemID int64, start, end time.Time) (*models.Booking, error)
	DecideBooking(ctx context.Context, bookingID, ownerID int64, approved bool) (*models.Booking, error)
	GetBooking(ctx context.Context, bookingID, userID int64) (*models.Booking, error)
	ListByUser(ctx context.Context, userID int64, state models.BookingState, page models.Page) ([]*models.Booking, error)
	ListByOwner(ctx context.Context, ownerID int64, state models.BookingState, page models.Page) ([]*models.Booking, error)
	ExportByOwner(ctx context.Context, ownerID int64, state models.BookingState) ([]*models.Booking, error)
	ItemOverview(ctx context.Context, itemID, viewerID int64) (*models.ItemOverview, error)
	HasCompletedBooking(ctx context.Context, itemID, userID int64) (bool, error)
}
