package api

import (
	"sync"
	"sync/atomic"
	"time"

	"shareit/internal/config"

	"golang.org/x/time/rate"
)

const (
	defaultBurst  = 5
	bucketIdleTTL = 10 * time.Minute
)

type bucket struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64
}

// rateLimiter keeps one token bucket per client key. Buckets idle for longer
// than bucketIdleTTL are dropped.
type rateLimiter struct {
	buckets   sync.Map
	limit     rate.Limit
	burst     int
	now       func() time.Time
	lastSweep atomic.Int64
}

func newRateLimiter(cfg config.APIRateLimitConfig) *rateLimiter {
	burst := cfg.Burst
	if burst <= 0 {
		burst = defaultBurst
	}
	return &rateLimiter{
		limit: rate.Limit(cfg.RPS),
		burst: burst,
		now:   time.Now,
	}
}

// allow reports whether key may proceed. A non-positive RPS disables limiting.
func (l *rateLimiter) allow(key string) bool {
	if l.limit <= 0 {
		return true
	}
	now := l.now()
	b := l.bucketFor(key)
	b.lastSeen.Store(now.UnixNano())
	ok := b.limiter.AllowN(now, 1)
	l.sweep(now)
	return ok
}

func (l *rateLimiter) bucketFor(key string) *bucket {
	if v, ok := l.buckets.Load(key); ok {
		return v.(*bucket)
	}
	actual, _ := l.buckets.LoadOrStore(key, &bucket{limiter: rate.NewLimiter(l.limit, l.burst)})
	return actual.(*bucket)
}

// sweep runs at most once per bucketIdleTTL.
func (l *rateLimiter) sweep(now time.Time) {
	last := l.lastSweep.Load()
	if now.UnixNano()-last < int64(bucketIdleTTL) || !l.lastSweep.CompareAndSwap(last, now.UnixNano()) {
		return
	}
	cutoff := now.Add(-bucketIdleTTL).UnixNano()
	l.buckets.Range(func(key, v any) bool {
		if v.(*bucket).lastSeen.Load() < cutoff {
			l.buckets.Delete(key)
		}
		return true
	})
}
