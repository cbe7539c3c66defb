package models

import "time"

type BookingStatus string

const (
	StatusWaiting  BookingStatus = "WAITING"
	StatusApproved BookingStatus = "APPROVED"
	StatusRejected BookingStatus = "REJECTED"
)

// IsTerminal reports whether no further transitions are allowed.
func (s BookingStatus) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected
}

func (s BookingStatus) String() string {
	return string(s)
}

// Booking is a reservation of an item over the half-open interval [Start, End).
type Booking struct {
	ID        int64         `json:"id"`
	Start     time.Time     `json:"start"`
	End       time.Time     `json:"end"`
	Item      Item          `json:"item"`
	Booker    User          `json:"booker"`
	Status    BookingStatus `json:"status"`
	Version   int64         `json:"version"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Overlaps reports whether the booking intersects [start, end).
func (b *Booking) Overlaps(start, end time.Time) bool {
	return Overlaps(b.Start, b.End, start, end)
}

// IsViewableBy reports whether userID is the booker or the item owner.
func (b *Booking) IsViewableBy(userID int64) bool {
	return b.Booker.ID == userID || b.Item.OwnerID == userID
}

// Overlaps applies half-open semantics: touching endpoints do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}
