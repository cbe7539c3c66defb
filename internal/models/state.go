package models

import (
	"fmt"
	"strings"
	"time"
)

// BookingState selects bookings relative to a moment in time.
type BookingState string

const (
	StateAll      BookingState = "ALL"
	StateCurrent  BookingState = "CURRENT"
	StatePast     BookingState = "PAST"
	StateFuture   BookingState = "FUTURE"
	StateWaiting  BookingState = "WAITING"
	StateRejected BookingState = "REJECTED"
)

var statePredicates = map[BookingState]func(b *Booking, now time.Time) bool{
	StateAll: func(*Booking, time.Time) bool { return true },
	StateCurrent: func(b *Booking, now time.Time) bool {
		return b.Start.Before(now) && b.End.After(now)
	},
	StatePast: func(b *Booking, now time.Time) bool {
		return b.End.Before(now) && b.Status == StatusApproved
	},
	StateFuture: func(b *Booking, now time.Time) bool {
		return b.Start.After(now)
	},
	StateWaiting: func(b *Booking, _ time.Time) bool {
		return b.Status == StatusWaiting
	},
	StateRejected: func(b *Booking, _ time.Time) bool {
		return b.Status == StatusRejected
	},
}

// ErrUnknownState is returned by ParseBookingState for unsupported values.
type ErrUnknownState struct {
	Value string
}

func (e *ErrUnknownState) Error() string {
	return fmt.Sprintf("Unknown state: %s", e.Value)
}

// ParseBookingState parses a query value; an empty value means ALL.
func ParseBookingState(raw string) (BookingState, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return StateAll, nil
	}
	state := BookingState(raw)
	if _, ok := statePredicates[state]; !ok {
		return "", &ErrUnknownState{Value: raw}
	}
	return state, nil
}

func (s BookingState) Valid() bool {
	_, ok := statePredicates[s]
	return ok
}

// Matches reports whether b falls into the state at now.
func (s BookingState) Matches(b *Booking, now time.Time) bool {
	pred, ok := statePredicates[s]
	if !ok {
		return false
	}
	return pred(b, now)
}

// BookingFilter is a state evaluated against one fixed moment.
type BookingFilter struct {
	State BookingState
	Now   time.Time
}

// Page addresses a slice of a list sorted by start descending.
type Page struct {
	Index int
	Size  int
}

// PageFromOffset converts from/size query values into a page.
func PageFromOffset(from, size int) Page {
	if size <= 0 {
		return Page{Size: size}
	}
	return Page{Index: from / size, Size: size}
}

func (p Page) Offset() int {
	return p.Index * p.Size
}
