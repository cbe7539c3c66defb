package service

import (
	"time"

	"shareit/internal/domain"
)

// ValidateInterval checks a proposed booking window against now. The first
// failing rule wins. A zero time counts as missing.
func ValidateInterval(start, end, now time.Time) error {
	switch {
	case start.IsZero() || end.IsZero():
		return domain.InvalidInput("missing time")
	case start.Before(now):
		return domain.InvalidInput("start in past")
	case end.Before(now):
		return domain.InvalidInput("end in past")
	case end.Before(start):
		return domain.InvalidInput("end before start")
	case start.Equal(end):
		return domain.InvalidInput("start equals end")
	}
	return nil
}
