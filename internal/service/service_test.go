package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"shareit/internal/config"
	"shareit/internal/database"
	"shareit/internal/domain"
	"shareit/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2030, 6, 1, 12, 0, 0, 0, time.UTC)

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishJSON(eventType string, payload interface{}) error {
	return m.Called(eventType, payload).Error(0)
}

type env struct {
	db    *database.DB
	svc   *BookingService
	clock *fixedClock

	owner  *models.User
	booker *models.User
	other  *models.User
	lonely *models.User

	item   *models.Item
	hidden *models.Item
}

type envOption func(*envConfig)

type envConfig struct {
	cache     domain.BookingCache
	publisher domain.EventPublisher
	booking   config.BookingConfig
	store     func(*database.DB) domain.BookingStore
}

func withCache(c domain.BookingCache) envOption {
	return func(cfg *envConfig) { cfg.cache = c }
}

func withPublisher(p domain.EventPublisher) envOption {
	return func(cfg *envConfig) { cfg.publisher = p }
}

// withStore wraps the sqlite store the service writes bookings through.
func withStore(wrap func(*database.DB) domain.BookingStore) envOption {
	return func(cfg *envConfig) { cfg.store = wrap }
}

func withBookingConfig(b config.BookingConfig) envOption {
	return func(cfg *envConfig) { cfg.booking = b }
}

func newEnv(t *testing.T, opts ...envOption) *env {
	t.Helper()
	cfg := envConfig{booking: config.BookingConfig{DefaultPageSize: 10, MaxPageSize: 100}}
	for _, opt := range opts {
		opt(&cfg)
	}

	logger := zerolog.New(io.Discard)
	db, err := database.NewDB(filepath.Join(t.TempDir(), "service.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	mkUser := func(name string) *models.User {
		u := &models.User{Name: name, Email: name + "@example.com"}
		require.NoError(t, db.CreateUser(ctx, u))
		return u
	}

	e := &env{db: db, clock: &fixedClock{now: base}}
	e.owner = mkUser("owner")
	e.booker = mkUser("booker")
	e.other = mkUser("other")
	e.lonely = mkUser("lonely")

	e.item = &models.Item{Name: "Drill", Description: "cordless", Available: true, OwnerID: e.owner.ID}
	require.NoError(t, db.CreateItem(ctx, e.item))
	e.hidden = &models.Item{Name: "Saw", Available: false, OwnerID: e.owner.ID}
	require.NoError(t, db.CreateItem(ctx, e.hidden))

	var store domain.BookingStore = db
	if cfg.store != nil {
		store = cfg.store(db)
	}
	e.svc = NewBookingService(db, db, store, cfg.cache, cfg.publisher, e.clock, cfg.booking, &logger)
	return e
}

var errOutboxWrite = errors.New("outbox insert failed")

// failingOutboxStore runs real sqlite transactions whose outbox insert fails
// once armed.
type failingOutboxStore struct {
	*database.DB
	armed bool
}

func (s *failingOutboxStore) WithinTx(ctx context.Context, fn func(tx domain.BookingTx) error) error {
	return s.DB.WithinTx(ctx, func(tx domain.BookingTx) error {
		if !s.armed {
			return fn(tx)
		}
		return fn(failingOutboxTx{tx})
	})
}

type failingOutboxTx struct {
	domain.BookingTx
}

func (failingOutboxTx) AddEvent(context.Context, *models.OutboxEvent) error {
	return errOutboxWrite
}

func outboxRows(t *testing.T, db *database.DB) []models.OutboxEvent {
	t.Helper()
	rows, err := db.GetPendingOutboxEvents(context.Background(), time.Now().Add(time.Hour), 100)
	require.NoError(t, err)
	return rows
}

// book creates a WAITING booking of e.item for the booker over [base+from, base+to).
func (e *env) book(t *testing.T, from, to time.Duration) *models.Booking {
	t.Helper()
	b, err := e.svc.CreateBooking(context.Background(), e.booker.ID, e.item.ID, base.Add(from), base.Add(to))
	require.NoError(t, err)
	return b
}

func (e *env) decide(t *testing.T, b *models.Booking, approved bool) *models.Booking {
	t.Helper()
	d, err := e.svc.DecideBooking(context.Background(), b.ID, e.owner.ID, approved)
	require.NoError(t, err)
	return d
}

func ids(bookings []*models.Booking) []int64 {
	out := make([]int64, 0, len(bookings))
	for _, b := range bookings {
		out = append(out, b.ID)
	}
	return out
}

func requireKind(t *testing.T, err error, kind domain.ErrorKind, msg string) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, kind, domain.KindOf(err), "error: %v", err)
	if msg != "" {
		require.Equal(t, msg, err.Error())
	}
}

func mustUnique(t *testing.T, values []int64) {
	t.Helper()
	seen := make(map[int64]bool, len(values))
	for _, v := range values {
		require.False(t, seen[v], fmt.Sprintf("duplicate id %d", v))
		seen[v] = true
	}
}
