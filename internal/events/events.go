package events

import (
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	EventBookingCreated  = "booking_created"
	EventBookingApproved = "booking_approved"
	EventBookingRejected = "booking_rejected"
)

// BookingEventTypes lists every booking lifecycle event.
var BookingEventTypes = []string{EventBookingCreated, EventBookingApproved, EventBookingRejected}

// BookingEventPayload describes the booking snapshot for event consumers.
type BookingEventPayload struct {
	BookingID   int64     `json:"booking_id"`
	ItemID      int64     `json:"item_id"`
	ItemName    string    `json:"item_name"`
	OwnerID     int64     `json:"owner_id"`
	BookerID    int64     `json:"booker_id"`
	Status      string    `json:"status"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	ChangedByID int64     `json:"changed_by_id,omitempty"`
}

// PartitionKey keeps all events of one booking in order on the broker.
func (p BookingEventPayload) PartitionKey() string {
	return strconv.FormatInt(p.BookingID, 10)
}

type keyed interface {
	PartitionKey() string
}

// Event represents a lightweight domain event.
type Event struct {
	ID        string
	Type      string
	Key       string
	Payload   []byte
	CreatedAt time.Time
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
}

func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for the given event types.
func (b *EventBus) Subscribe(handler EventHandler, eventTypes ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, eventType := range eventTypes {
		b.subscribers[eventType] = append(b.subscribers[eventType], handler)
	}
}

// Publish runs the subscribers synchronously and joins their errors.
func (b *EventBus) Publish(event *Event) error {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	var errs []error
	for _, handler := range handlers {
		if err := handler(event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	event, err := NewJSONEvent(eventType, payload)
	if err != nil {
		return err
	}
	return b.Publish(event)
}

// NewJSONEvent builds an Event with JSON payload for manual publishing.
func NewJSONEvent(eventType string, payload interface{}) (*Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	event := &Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Payload:   raw,
		CreatedAt: time.Now().UTC(),
	}
	if k, ok := payload.(keyed); ok {
		event.Key = k.PartitionKey()
	}
	return event, nil
}
