package events

import (
	"time"

	"github.com/google/uuid"
)

// Event is a domain fact. IDs are assigned when the fact is raised, not when
// it is stored, so a retried commit re-inserts the same id instead of
// minting a duplicate. UUIDv7 keeps ids time-ordered for index locality.
type Event interface {
	EventID() uuid.UUID
	EventType() string
	EventOccurredAt() time.Time
}

// Keyed is implemented by events that belong to one aggregate. The
// partition key routes every fact of that aggregate to the same bus
// partition, so consumers see them in raise order. Events without a key
// fall back to their event id and carry no ordering promise.
type Keyed interface {
	PartitionKey() string
}

// Base carries the fields shared by every event. Concrete events embed it
// and add their own payload fields plus an EventType method.
type Base struct {
	ID         uuid.UUID `json:"id"`
	OccurredAt time.Time `json:"occurred_at"`
}

func NewBase() Base {
	return Base{
		ID:         uuid.Must(uuid.NewV7()),
		OccurredAt: time.Now().UTC(),
	}
}

func (b Base) EventID() uuid.UUID {
	return b.ID
}

func (b Base) EventOccurredAt() time.Time {
	return b.OccurredAt
}

// Raiser is the aggregate-owned event buffer. Aggregates embed it and call
// Raise from their mutations; the unit-of-work coordinator reads Events
// after the outbox writer consumed them and then calls ClearEvents. The
// buffer is append-only in between and owned by a single goroutine.
type Raiser struct {
	raised []Event
}

func (r *Raiser) Raise(e Event) {
	r.raised = append(r.raised, e)
}

// Events returns the raised facts in raise order.
func (r *Raiser) Events() []Event {
	out := make([]Event, len(r.raised))
	copy(out, r.raised)
	return out
}

func (r *Raiser) ClearEvents() {
	r.raised = nil
}
