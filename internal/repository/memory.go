package repository

import (
	"context"
	"sync"
	"time"

	"shareit/internal/models"
)

type memoryEntry struct {
	booking   models.Booking
	expiresAt time.Time
}

// MemoryBookingCache is a process-local cache with lazy expiry.
type MemoryBookingCache struct {
	entries sync.Map
	ttl     time.Duration
	now     func() time.Time
}

func NewMemoryBookingCache(ttl time.Duration) *MemoryBookingCache {
	return &MemoryBookingCache{
		ttl: ttl,
		now: time.Now,
	}
}

func (r *MemoryBookingCache) Get(_ context.Context, id int64) (*models.Booking, error) {
	val, ok := r.entries.Load(id)
	if !ok {
		return nil, nil
	}
	entry := val.(*memoryEntry)
	if r.ttl > 0 && r.now().After(entry.expiresAt) {
		r.entries.CompareAndDelete(id, val)
		return nil, nil
	}
	booking := entry.booking
	return &booking, nil
}

func (r *MemoryBookingCache) Set(_ context.Context, booking *models.Booking) error {
	r.entries.Store(booking.ID, &memoryEntry{
		booking:   *booking,
		expiresAt: r.now().Add(r.ttl),
	})
	return nil
}
