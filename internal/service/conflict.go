package service

import (
	"context"
	"time"

	"shareit/internal/models"
)

// IntervalFinder is the range lookup the conflict check runs on. Both
// domain.BookingTx and the database handle satisfy it.
type IntervalFinder interface {
	FindByItemAndInterval(ctx context.Context, itemID int64, start, end time.Time, status models.BookingStatus) ([]*models.Booking, error)
}

// HasConflict reports whether an APPROVED booking of the item other than
// excludeID overlaps [start, end). Pass excludeID 0 for a new booking.
func HasConflict(ctx context.Context, finder IntervalFinder, itemID int64, start, end time.Time, excludeID int64) (bool, error) {
	candidates, err := finder.FindByItemAndInterval(ctx, itemID, start, end, models.StatusApproved)
	if err != nil {
		return false, err
	}
	for _, b := range candidates {
		if b.ID == excludeID {
			continue
		}
		if b.Status == models.StatusApproved && b.Overlaps(start, end) {
			return true, nil
		}
	}
	return false, nil
}
