package worker

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"shareit/internal/config"
	"shareit/internal/database"
	"shareit/internal/domain"
	"shareit/internal/events"
	"shareit/internal/models"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessEventSuccess(t *testing.T) {
	db := newTestDB(t)
	writer := &fakeWriter{}
	relay := NewEventRelay(db, writer, RetryPolicy{}, 0, nil)

	ctx := context.Background()
	addEvent(t, db, events.EventBookingCreated, 1)

	e := nextPending(t, db)
	relay.process(ctx, &e)

	status, retryCount, nextRetry := loadEventStatus(t, db, e.ID)
	if status != "sent" {
		t.Fatalf("expected status=sent, got %s", status)
	}
	if retryCount != 0 {
		t.Fatalf("expected retry_count=0, got %d", retryCount)
	}
	if nextRetry.Valid {
		t.Fatalf("expected next_retry_at NULL on success")
	}

	msgs := writer.sent()
	require.Len(t, msgs, 1)
	assert.Equal(t, "1", string(msgs[0].Key))
	assert.Contains(t, string(msgs[0].Value), `"booking_id":1`)
	assert.Equal(t, headerEventType, msgs[0].Headers[0].Key)
	assert.Equal(t, events.EventBookingCreated, string(msgs[0].Headers[0].Value))
}

func TestProcessEventRetry(t *testing.T) {
	db := newTestDB(t)
	writer := &fakeWriter{err: errors.New("broker unavailable")}
	relay := NewEventRelay(db, writer, RetryPolicy{MaxRetries: 3, InitialDelay: time.Second}, 0, nil)

	ctx := context.Background()
	addEvent(t, db, events.EventBookingApproved, 2)

	e := nextPending(t, db)
	relay.process(ctx, &e)

	status, retryCount, nextRetry := loadEventStatus(t, db, e.ID)
	if status != "retry" {
		t.Fatalf("expected status=retry, got %s", status)
	}
	if retryCount != 1 {
		t.Fatalf("expected retry_count=1, got %d", retryCount)
	}
	if !nextRetry.Valid || nextRetry.Time.Before(time.Now()) {
		t.Fatalf("expected next_retry_at in future, got %v", nextRetry)
	}

	due, err := db.GetPendingOutboxEvents(ctx, time.Now(), 10)
	require.NoError(t, err)
	assert.Empty(t, due)

	later, err := db.GetPendingOutboxEvents(ctx, time.Now().Add(time.Minute), 10)
	require.NoError(t, err)
	assert.Len(t, later, 1)
}

func TestProcessEventFail(t *testing.T) {
	db := newTestDB(t)
	writer := &fakeWriter{err: errors.New("fatal")}
	relay := NewEventRelay(db, writer, RetryPolicy{MaxRetries: 1}, 0, nil)

	ctx := context.Background()
	addEvent(t, db, events.EventBookingRejected, 3)
	e := nextPending(t, db)
	relay.process(ctx, &e)

	status, _, _ := loadEventStatus(t, db, e.ID)
	if status != "failed" {
		t.Fatalf("expected status=failed, got %s", status)
	}

	failed, err := db.GetFailedOutboxEvents(ctx)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "fatal", failed[0].LastError)
	assert.Equal(t, 1, relay.reportFailed(ctx))
}

func TestEventRelay_Handle(t *testing.T) {
	db := newTestDB(t)
	relay := NewEventRelay(db, &fakeWriter{}, RetryPolicy{}, 1, nil)

	t.Run("MissingType", func(t *testing.T) {
		assert.Error(t, relay.Handle(&events.Event{Payload: []byte(`{}`)}))
		assert.Error(t, relay.Handle(nil))
	})

	t.Run("WakesWithoutWriting", func(t *testing.T) {
		require.NoError(t, relay.Handle(bookingEvent(t, events.EventBookingCreated, 10)))
		require.NoError(t, relay.Handle(bookingEvent(t, events.EventBookingCreated, 11)))

		assert.Len(t, relay.wake, 1)
		pending, err := db.GetPendingOutboxEvents(context.Background(), time.Now(), 10)
		require.NoError(t, err)
		assert.Empty(t, pending)
	})
}

func TestEventRelay_ReportFailed(t *testing.T) {
	db := newTestDB(t)
	relay := NewEventRelay(db, &fakeWriter{}, RetryPolicy{}, 0, nil)
	ctx := context.Background()

	assert.Equal(t, 0, relay.reportFailed(ctx))

	addEvent(t, db, events.EventBookingCreated, 20)
	e := nextPending(t, db)
	require.NoError(t, db.UpdateOutboxEventStatus(ctx, e.ID, models.OutboxFailed, "broker gone", nil))
	assert.Equal(t, 1, relay.reportFailed(ctx))

	require.NoError(t, db.Close())
	assert.Equal(t, 0, relay.reportFailed(ctx))
}

func TestEventRelay_StartDeliversThroughBus(t *testing.T) {
	db := newTestDB(t)
	writer := &fakeWriter{}
	logger := zerolog.New(io.Discard)
	relay := NewEventRelay(db, writer, RetryPolicy{}, 0, &logger)
	relay.pollInterval = time.Hour

	bus := events.NewEventBus()
	bus.Subscribe(relay.Handle, events.BookingEventTypes...)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		relay.Start(ctx)
		close(done)
	}()

	addEvent(t, db, events.EventBookingCreated, 7)
	addEvent(t, db, events.EventBookingApproved, 7)
	require.NoError(t, bus.PublishJSON(events.EventBookingApproved, events.BookingEventPayload{BookingID: 7, Status: "APPROVED"}))

	assert.Eventually(t, func() bool {
		return len(writer.sent()) == 2
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not stop")
	}

	msgs := writer.sent()
	assert.Equal(t, events.EventBookingCreated, string(msgs[0].Headers[0].Value))
	assert.Equal(t, events.EventBookingApproved, string(msgs[1].Headers[0].Value))

	pending, err := db.GetPendingOutboxEvents(context.Background(), time.Now(), 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestNewKafkaWriter(t *testing.T) {
	w := NewKafkaWriter(configFor("localhost:9092", "booking-events"))
	defer w.Close()

	assert.Equal(t, "booking-events", w.Topic)
	assert.Equal(t, "localhost:9092", w.Addr.String())
	assert.IsType(t, &kafka.Hash{}, w.Balancer)
	assert.Equal(t, kafka.RequireAll, w.RequiredAcks)
}

func TestRetryPolicy(t *testing.T) {
	policy := RetryPolicy{InitialDelay: time.Second, BackoffFactor: 2, MaxDelay: 5 * time.Second, MaxRetries: 3}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{5, 5 * time.Second},
		{200, 5 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, policy.NextDelay(tt.attempt), "attempt %d", tt.attempt)
	}

	assert.False(t, policy.Exhausted(2))
	assert.True(t, policy.Exhausted(3))

	t.Run("ZeroPolicyUsesDefaults", func(t *testing.T) {
		var zero RetryPolicy
		assert.Equal(t, DefaultRetryPolicy.InitialDelay, zero.NextDelay(1))
		assert.Equal(t, DefaultRetryPolicy.MaxDelay, zero.NextDelay(50))
		assert.False(t, zero.Exhausted(DefaultRetryPolicy.MaxRetries-1))
		assert.True(t, zero.Exhausted(DefaultRetryPolicy.MaxRetries))
	})
}

// Helpers

type fakeWriter struct {
	mu   sync.Mutex
	err  error
	msgs []kafka.Message
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) sent() []kafka.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]kafka.Message(nil), f.msgs...)
}

func bookingEvent(t *testing.T, eventType string, bookingID int64) *events.Event {
	t.Helper()
	e, err := events.NewJSONEvent(eventType, events.BookingEventPayload{BookingID: bookingID, Status: "WAITING"})
	require.NoError(t, err)
	return e
}

// addEvent stores an event the way the booking service does, inside a
// booking transaction.
func addEvent(t *testing.T, db *database.DB, eventType string, bookingID int64) {
	t.Helper()
	ev := bookingEvent(t, eventType, bookingID)
	ctx := context.Background()
	err := db.WithinTx(ctx, func(tx domain.BookingTx) error {
		return tx.AddEvent(ctx, &models.OutboxEvent{EventType: ev.Type, EventKey: ev.Key, Payload: string(ev.Payload)})
	})
	require.NoError(t, err)
}

func nextPending(t *testing.T, db *database.DB) models.OutboxEvent {
	t.Helper()
	pending, err := db.GetPendingOutboxEvents(context.Background(), time.Now(), 1)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	return pending[0]
}

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "worker.db")
	logger := zerolog.New(io.Discard)
	db, err := database.NewDB(path, &logger)
	if err != nil {
		t.Fatalf("new db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func loadEventStatus(t *testing.T, db *database.DB, id int64) (status string, retryCount int, nextRetry sql.NullTime) {
	t.Helper()
	row := db.QueryRowContext(context.Background(), `SELECT status, retry_count, next_retry_at FROM event_outbox WHERE id = $1`, id)
	if err := row.Scan(&status, &retryCount, &nextRetry); err != nil {
		t.Fatalf("scan event: %v", err)
	}
	return status, retryCount, nextRetry
}

func configFor(broker, topic string) config.KafkaConfig {
	return config.KafkaConfig{Enabled: true, Brokers: []string{broker}, Topic: topic}
}
