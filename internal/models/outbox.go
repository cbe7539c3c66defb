package models

import "time"

const (
	OutboxPending = "pending"
	OutboxRetry   = "retry"
	OutboxSent    = "sent"
	OutboxFailed  = "failed"
)

// OutboxEvent is a domain event waiting to be relayed to the message broker.
type OutboxEvent struct {
	ID          int64
	EventType   string
	EventKey    string
	Payload     string
	Status      string
	RetryCount  int
	LastError   string
	CreatedAt   time.Time
	ProcessedAt *time.Time
	NextRetryAt *time.Time
}
