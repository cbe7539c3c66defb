package service

import (
	"shareit/internal/domain"
	"shareit/internal/events"
	"shareit/internal/models"
)

// Decide returns the status an owner's decision moves the booking to.
// Only the item owner may decide, and only once.
func Decide(b *models.Booking, actorID int64, approved bool) (models.BookingStatus, error) {
	if b.Item.OwnerID != actorID {
		return "", domain.Forbidden("only the item owner can approve or reject booking %d", b.ID)
	}
	if b.Status != models.StatusWaiting {
		return "", domain.InvalidState("already decided")
	}
	if approved {
		return models.StatusApproved, nil
	}
	return models.StatusRejected, nil
}

func decisionEvent(status models.BookingStatus) string {
	if status == models.StatusApproved {
		return events.EventBookingApproved
	}
	return events.EventBookingRejected
}
