package events

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBus(t *testing.T) {
	bus := NewEventBus()

	var received *Event
	callCount := 0
	bus.Subscribe(func(event *Event) error {
		received = event
		callCount++
		return nil
	}, EventBookingCreated)

	payload := BookingEventPayload{
		BookingID: 42,
		ItemID:    7,
		Status:    "WAITING",
		Start:     time.Date(2030, 1, 1, 10, 0, 0, 0, time.UTC),
		End:       time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, bus.PublishJSON(EventBookingCreated, payload))

	assert.Equal(t, 1, callCount)
	require.NotNil(t, received)
	assert.Equal(t, EventBookingCreated, received.Type)
	assert.Equal(t, "42", received.Key)
	assert.NotEmpty(t, received.ID)
	assert.False(t, received.CreatedAt.IsZero())

	var decoded BookingEventPayload
	require.NoError(t, json.Unmarshal(received.Payload, &decoded))
	assert.Equal(t, payload, decoded)

	// other types are not delivered to this subscriber
	require.NoError(t, bus.PublishJSON(EventBookingRejected, payload))
	assert.Equal(t, 1, callCount)
}

func TestEventBusMultipleTypesAndSubscribers(t *testing.T) {
	bus := NewEventBus()
	var first, second int

	bus.Subscribe(func(*Event) error { first++; return nil }, BookingEventTypes...)
	bus.Subscribe(func(*Event) error { second++; return nil }, EventBookingApproved)

	for _, eventType := range BookingEventTypes {
		require.NoError(t, bus.PublishJSON(eventType, map[string]int{"n": 1}))
	}

	assert.Equal(t, 3, first)
	assert.Equal(t, 1, second)
}

func TestEventBusHandlerErrors(t *testing.T) {
	bus := NewEventBus()
	boom := errors.New("boom")
	delivered := false

	bus.Subscribe(func(*Event) error { return boom }, EventBookingCreated)
	bus.Subscribe(func(*Event) error { delivered = true; return nil }, EventBookingCreated)

	err := bus.PublishJSON(EventBookingCreated, map[string]string{})
	assert.ErrorIs(t, err, boom)
	assert.True(t, delivered, "a failing handler must not stop the others")
}

func TestPublishJSONErrors(t *testing.T) {
	var nilBus *EventBus
	assert.NoError(t, nilBus.PublishJSON(EventBookingCreated, struct{}{}))

	bus := NewEventBus()
	assert.Error(t, bus.PublishJSON(EventBookingCreated, make(chan int)))

	event, err := NewJSONEvent(EventBookingCreated, map[string]string{"a": "b"})
	require.NoError(t, err)
	assert.Empty(t, event.Key)
}
