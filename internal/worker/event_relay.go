package worker

import (
	"context"
	"errors"
	"strconv"
	"time"

	"shareit/internal/config"
	"shareit/internal/events"
	"shareit/internal/models"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

const (
	headerEventType = "event-type"
	headerEventID   = "event-id"
)

// OutboxStore holds events until the broker has accepted them. Rows are
// written by the booking transaction, never by the relay.
type OutboxStore interface {
	GetPendingOutboxEvents(ctx context.Context, now time.Time, limit int) ([]models.OutboxEvent, error)
	GetFailedOutboxEvents(ctx context.Context) ([]models.OutboxEvent, error)
	UpdateOutboxEventStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error
}

// MessageWriter is the subset of *kafka.Writer the relay needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// EventRelay moves booking events from the outbox to Kafka. The outbox table
// is the only source of work; Handle just wakes the loop early. Delivery is
// at-least-once and consumers dedupe on the event-id header.
type EventRelay struct {
	store        OutboxStore
	writer       MessageWriter
	retryPolicy  RetryPolicy
	wake         chan struct{}
	pollInterval time.Duration
	batchSize    int
	logger       zerolog.Logger
}

// NewEventRelay builds a relay. Zero retry fields and a non-positive batch
// size take defaults.
func NewEventRelay(store OutboxStore, writer MessageWriter, retry RetryPolicy, batchSize int, logger *zerolog.Logger) *EventRelay {
	if batchSize <= 0 {
		batchSize = 20
	}
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "event_relay").Logger()
	}

	return &EventRelay{
		store:        store,
		writer:       writer,
		retryPolicy:  retry.withDefaults(),
		wake:         make(chan struct{}, 1),
		pollInterval: 2 * time.Second,
		batchSize:    batchSize,
		logger:       l,
	}
}

// NewKafkaWriter returns a writer that keeps events of one booking on one partition.
func NewKafkaWriter(cfg config.KafkaConfig) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 50 * time.Millisecond,
	}
}

// Handle is an events.EventHandler that wakes the delivery loop. The event
// is already in the outbox when it is published.
func (r *EventRelay) Handle(event *events.Event) error {
	if event == nil || event.Type == "" {
		return errors.New("event type is required")
	}

	select {
	case r.wake <- struct{}{}:
	default:
	}
	return nil
}

// Start runs the delivery loop until ctx is done.
func (r *EventRelay) Start(ctx context.Context) {
	r.logger.Info().Msg("event relay started")
	defer r.logger.Info().Msg("event relay stopped")
	r.reportFailed(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		pending, err := r.store.GetPendingOutboxEvents(ctx, time.Now(), r.batchSize)
		if err != nil {
			r.logger.Error().Err(err).Msg("fetch pending outbox events")
			r.wait(ctx)
			continue
		}
		if len(pending) == 0 {
			r.wait(ctx)
			continue
		}

		for i := range pending {
			r.process(ctx, &pending[i])
		}
	}
}

// reportFailed logs events that exhausted their retries in earlier runs.
func (r *EventRelay) reportFailed(ctx context.Context) int {
	failed, err := r.store.GetFailedOutboxEvents(ctx)
	if err != nil {
		r.logger.Error().Err(err).Msg("fetch failed outbox events")
		return 0
	}
	if len(failed) > 0 {
		r.logger.Warn().
			Int("count", len(failed)).
			Int64("latest_outbox_id", failed[0].ID).
			Str("latest_error", failed[0].LastError).
			Msg("outbox holds undelivered events")
	}
	return len(failed)
}

func (r *EventRelay) wait(ctx context.Context) {
	timer := time.NewTimer(r.pollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	case <-r.wake:
	}
}

func (r *EventRelay) process(ctx context.Context, e *models.OutboxEvent) {
	msg := kafka.Message{
		Key:   []byte(e.EventKey),
		Value: []byte(e.Payload),
		Headers: []kafka.Header{
			{Key: headerEventType, Value: []byte(e.EventType)},
			{Key: headerEventID, Value: []byte(strconv.FormatInt(e.ID, 10))},
		},
	}

	if err := r.writer.WriteMessages(ctx, msg); err != nil {
		if ctx.Err() != nil {
			return
		}
		r.retryOrFail(ctx, e, err)
		return
	}

	if err := r.store.UpdateOutboxEventStatus(ctx, e.ID, models.OutboxSent, "", nil); err != nil {
		r.logger.Error().Err(err).Int64("outbox_id", e.ID).Msg("mark sent")
	}
}

func (r *EventRelay) retryOrFail(ctx context.Context, e *models.OutboxEvent, cause error) {
	attempt := e.RetryCount + 1
	if r.retryPolicy.Exhausted(attempt) {
		r.logger.Error().Err(cause).Int64("outbox_id", e.ID).Str("event_type", e.EventType).Msg("event delivery failed permanently")
		if err := r.store.UpdateOutboxEventStatus(ctx, e.ID, models.OutboxFailed, cause.Error(), nil); err != nil {
			r.logger.Error().Err(err).Int64("outbox_id", e.ID).Msg("mark failed")
		}
		return
	}

	next := time.Now().Add(r.retryPolicy.NextDelay(attempt))
	r.logger.Warn().Err(cause).Int64("outbox_id", e.ID).Int("attempt", attempt).Time("next_retry_at", next).Msg("event delivery failed, will retry")
	if err := r.store.UpdateOutboxEventStatus(ctx, e.ID, models.OutboxRetry, cause.Error(), &next); err != nil {
		r.logger.Error().Err(err).Int64("outbox_id", e.ID).Msg("mark retry")
	}
}
