package worker

import (
	"math"
	"time"
)

// RetryPolicy is the backoff used for outbox delivery. Zero fields fall back
// to DefaultRetryPolicy.
type RetryPolicy struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

var DefaultRetryPolicy = RetryPolicy{
	MaxRetries:    5,
	InitialDelay:  2 * time.Second,
	MaxDelay:      time.Minute,
	BackoffFactor: 2,
}

func (r RetryPolicy) withDefaults() RetryPolicy {
	if r.MaxRetries <= 0 {
		r.MaxRetries = DefaultRetryPolicy.MaxRetries
	}
	if r.InitialDelay <= 0 {
		r.InitialDelay = DefaultRetryPolicy.InitialDelay
	}
	if r.MaxDelay <= 0 {
		r.MaxDelay = DefaultRetryPolicy.MaxDelay
	}
	if r.BackoffFactor <= 0 {
		r.BackoffFactor = DefaultRetryPolicy.BackoffFactor
	}
	return r
}

// Exhausted reports whether a failed attempt (1-based) was the last one.
func (r RetryPolicy) Exhausted(attempt int) bool {
	return attempt >= r.withDefaults().MaxRetries
}

// NextDelay is the wait after a failed attempt (1-based), capped at MaxDelay.
func (r RetryPolicy) NextDelay(attempt int) time.Duration {
	r = r.withDefaults()
	if attempt < 1 {
		attempt = 1
	}

	d := time.Duration(float64(r.InitialDelay) * math.Pow(r.BackoffFactor, float64(attempt-1)))
	// overflow shows up as a non-positive duration
	if d <= 0 || d > r.MaxDelay {
		d = r.MaxDelay
	}
	return d
}
