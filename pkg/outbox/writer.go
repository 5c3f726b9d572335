package outbox

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/adverra/marketplace/pkg/events"
	"github.com/adverra/marketplace/pkg/postgres"
	"github.com/adverra/marketplace/pkg/tracing"
)

// Writer turns raised facts into envelope rows inside the caller's
// transaction: either the business rows and the envelopes commit together
// or neither does. It never publishes anything itself.
type Writer struct {
	log *slog.Logger
}

func NewWriter(log *slog.Logger) *Writer {
	return &Writer{log: log}
}

// Append inserts one envelope per fact through q, which must belong to the
// business transaction. Facts carry their ids from raise time, so replaying
// a failed commit hits ON CONFLICT instead of inserting a second envelope.
func (w *Writer) Append(ctx context.Context, q postgres.Querier, evts ...events.Event) error {
	traceparent := tracing.Traceparent(ctx)

	for _, e := range evts {
		payload, err := events.Encode(e)
		if err != nil {
			return fmt.Errorf("encode %s: %w", e.EventType(), err)
		}

		_, err = q.Exec(ctx, `
			INSERT INTO outbox_events (id, event_type, partition_key, payload, traceparent, occurred_at, status, next_attempt_at)
			VALUES ($1, $2, $3, $4, $5, $6, 'pending', $6)
			ON CONFLICT (id) DO NOTHING
		`, e.EventID(), e.EventType(), partitionKey(e), payload, traceparent, e.EventOccurredAt())
		if err != nil {
			return fmt.Errorf("append envelope %s: %w", e.EventID(), err)
		}

		w.log.Debug("outbox envelope appended", "event_id", e.EventID(), "type", e.EventType())
	}
	return nil
}

// partitionKey picks the bus partition key for a fact: the aggregate id
// when the event declares one, otherwise the event id. Keyed facts of one
// aggregate land on one partition and keep their raise order on the bus.
func partitionKey(e events.Event) string {
	if k, ok := e.(events.Keyed); ok {
		return k.PartitionKey()
	}
	return e.EventID().String()
}
