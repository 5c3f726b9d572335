package inbox

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of an inbox record.
type Status string

const (
	// StatusProcessing marks a message accepted by a consumer and in
	// flight. A crashed owner leaves the record here until the stale
	// window elapses and a redelivery retakes it.
	StatusProcessing Status = "processing"
	// StatusCompleted marks a message whose handlers all applied.
	StatusCompleted Status = "completed"
	// StatusFailed marks a message that exhausted its retries or hit a
	// permanent failure; kept for operator inspection, never dropped.
	StatusFailed Status = "failed"
)

// Record registers that a consumer group accepted a bus message, keyed by
// the raw message id before any handler identity is known. It collapses
// broker redelivery ahead of the per-handler ledger; both layers exist
// because one message fans out to several handlers, each with its own
// at-most-once guarantee.
type Record struct {
	ConsumerGroup string     `json:"consumer_group"`
	MessageID     uuid.UUID  `json:"message_id"`
	EventType     string     `json:"event_type"`
	Status        Status     `json:"status"`
	Attempts      int        `json:"attempts"`
	LastError     *string    `json:"last_error,omitempty"`
	ReceivedAt    time.Time  `json:"received_at"`
	ProcessedAt   *time.Time `json:"processed_at,omitempty"`
}
