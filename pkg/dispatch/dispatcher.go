package dispatch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/adverra/marketplace/pkg/events"
)

// Dispatcher delivers facts to locally registered handlers, in process,
// after the raising transaction has committed. Handlers arrive already
// wrapped by the idempotency decorator and run sequentially in registration
// order.
//
// A handler error propagates to the caller, so the command fails from the
// caller's point of view even though the business write is already durable.
// That window is deliberate: the committed envelope still reaches every
// remaining consumer through the relay, and the ledger keeps a retried
// handler from applying twice.
type Dispatcher struct {
	log      *slog.Logger
	registry *events.Registry
}

func NewDispatcher(log *slog.Logger, registry *events.Registry) *Dispatcher {
	return &Dispatcher{log: log, registry: registry}
}

// Dispatch runs every local handler for every fact, stopping at the first
// failure. It must only be called after the unit of work committed.
func (d *Dispatcher) Dispatch(ctx context.Context, facts []events.Event) error {
	for _, fact := range facts {
		for _, reg := range d.registry.HandlersFor(fact.EventType()) {
			if err := reg.Handler.Handle(ctx, fact); err != nil {
				return fmt.Errorf("dispatch %s to %s: %w", fact.EventType(), reg.HandlerKey, err)
			}
			d.log.Debug("local handler applied", "handler", reg.HandlerKey, "event_id", fact.EventID(), "type", fact.EventType())
		}
	}
	return nil
}
