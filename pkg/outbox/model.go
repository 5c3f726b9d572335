package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of an envelope.
type Status string

const (
	// StatusPending marks an envelope waiting for (re)delivery.
	StatusPending Status = "pending"
	// StatusDelivering marks an envelope claimed by a relay under lease.
	StatusDelivering Status = "delivering"
	// StatusSent marks an envelope published successfully.
	StatusSent Status = "sent"
	// StatusDead marks an envelope that exhausted its retry budget. Dead
	// envelopes stay in the table for operator inspection and can be
	// re-armed through the admin surface.
	StatusDead Status = "dead"
)

// Envelope is the durable representation of one raised fact. It is created
// inside the business transaction that raised the fact and mutated only by
// the relay; handlers never touch it.
type Envelope struct {
	ID           uuid.UUID       `json:"id"`
	EventType    string          `json:"event_type"`
	PartitionKey string          `json:"partition_key"`
	Payload      json.RawMessage `json:"payload"`
	Traceparent  string          `json:"traceparent,omitempty"`
	OccurredAt   time.Time       `json:"occurred_at"`
	ProcessedAt  *time.Time      `json:"processed_at,omitempty"`
	LastError    *string         `json:"last_error,omitempty"`
	Attempts     int             `json:"attempts"`
	Status       Status          `json:"status"`
}
