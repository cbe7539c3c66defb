package api

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"shareit/internal/models"
)

// localLayout is a timestamp without zone; it is read as UTC.
const localLayout = "2006-01-02T15:04:05"

// Timestamp accepts RFC 3339 or zone-less local timestamps. null and ""
// leave it zero.
type Timestamp struct {
	time.Time
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("timestamp must be a string")
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, localLayout} {
		if parsed, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("invalid timestamp %q", raw)
}

type createBookingRequest struct {
	ItemID int64     `json:"itemId"`
	Start  Timestamp `json:"start"`
	End    Timestamp `json:"end"`
}

type refDTO struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type bookingDTO struct {
	ID     int64     `json:"id"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Status string    `json:"status"`
	Item   refDTO    `json:"item"`
	Booker refDTO    `json:"booker"`
}

func toBookingDTO(b *models.Booking) bookingDTO {
	return bookingDTO{
		ID:     b.ID,
		Start:  b.Start.UTC(),
		End:    b.End.UTC(),
		Status: b.Status.String(),
		Item:   refDTO{ID: b.Item.ID, Name: b.Item.Name},
		Booker: refDTO{ID: b.Booker.ID, Name: b.Booker.Name},
	}
}

func toBookingDTOs(bookings []*models.Booking) []bookingDTO {
	out := make([]bookingDTO, 0, len(bookings))
	for _, b := range bookings {
		out = append(out, toBookingDTO(b))
	}
	return out
}

type bookingRefDTO struct {
	ID       int64     `json:"id"`
	BookerID int64     `json:"bookerId"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
}

type itemOverviewDTO struct {
	ID          int64          `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Available   bool           `json:"available"`
	LastBooking *bookingRefDTO `json:"lastBooking"`
	NextBooking *bookingRefDTO `json:"nextBooking"`
}

func toBookingRef(b *models.Booking) *bookingRefDTO {
	if b == nil {
		return nil
	}
	return &bookingRefDTO{ID: b.ID, BookerID: b.Booker.ID, Start: b.Start.UTC(), End: b.End.UTC()}
}

func toItemOverviewDTO(ov *models.ItemOverview) itemOverviewDTO {
	return itemOverviewDTO{
		ID:          ov.Item.ID,
		Name:        ov.Item.Name,
		Description: ov.Item.Description,
		Available:   ov.Item.Available,
		LastBooking: toBookingRef(ov.LastBooking),
		NextBooking: toBookingRef(ov.NextBooking),
	}
}
