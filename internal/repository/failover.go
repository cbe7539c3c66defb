package repository

import (
	"context"
	"sync/atomic"
	"time"

	"shareit/internal/domain"
	"shareit/internal/models"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverBookingCache uses the primary cache until it errors, then serves
// from the fallback and tries the primary again once per recovery interval.
type FailoverBookingCache struct {
	primary   domain.BookingCache
	fallback  domain.BookingCache
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
}

func NewFailoverBookingCache(primary, fallback domain.BookingCache, logger *zerolog.Logger) *FailoverBookingCache {
	return &FailoverBookingCache{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (r *FailoverBookingCache) markDown(err error) {
	if !r.isDown.Swap(true) {
		r.logger.Error().Err(err).Msg("primary booking cache failed, falling back to memory")
	}
	r.lastCheck.Store(time.Now().UnixNano())
}

// usePrimary reports whether the primary should be tried for this call.
func (r *FailoverBookingCache) usePrimary() bool {
	if !r.isDown.Load() {
		return true
	}
	return time.Since(time.Unix(0, r.lastCheck.Load())) > recoveryInterval
}

func (r *FailoverBookingCache) Get(ctx context.Context, id int64) (*models.Booking, error) {
	if r.usePrimary() {
		booking, err := r.primary.Get(ctx, id)
		if err == nil {
			if r.isDown.Swap(false) {
				r.logger.Info().Msg("primary booking cache recovered")
			}
			return booking, nil
		}
		r.markDown(err)
	}
	return r.fallback.Get(ctx, id)
}

func (r *FailoverBookingCache) Set(ctx context.Context, booking *models.Booking) error {
	if r.usePrimary() {
		err := r.primary.Set(ctx, booking)
		if err == nil {
			r.isDown.Store(false)
			return nil
		}
		r.markDown(err)
	}
	return r.fallback.Set(ctx, booking)
}
