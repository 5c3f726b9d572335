package events

import (
	"context"
	"sync"
)

// Handler consumes a single event. Implementations are expected to be
// wrapped by the idempotency decorator before registration, so a handler
// body can assume it runs at most once per event id.
type Handler interface {
	Handle(ctx context.Context, e Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, e Event) error

func (fn HandlerFunc) Handle(ctx context.Context, e Event) error {
	return fn(ctx, e)
}

// Registration couples a handler with its stable identity. The key names the
// handler in the idempotency ledger, so renaming a key re-applies events.
type Registration struct {
	EventType  string
	HandlerKey string
	Handler    Handler
}

// Registry holds the handlers subscribed within one delivery scope (the
// in-process dispatcher or one bus consumer group). Handlers for the same
// event type run in registration order; the order is fixed at startup and
// not configurable at runtime.
type Registry struct {
	mu     sync.RWMutex
	byType map[string][]Registration
	keys   map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		byType: make(map[string][]Registration),
		keys:   make(map[string]struct{}),
	}
}

// Subscribe appends a handler for an event type. A duplicate
// (eventType, handlerKey) pair is a wiring bug and panics at startup.
func (r *Registry) Subscribe(eventType, handlerKey string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pairKey := eventType + "/" + handlerKey
	if _, dup := r.keys[pairKey]; dup {
		panic("events: duplicate subscription " + pairKey)
	}
	r.keys[pairKey] = struct{}{}
	r.byType[eventType] = append(r.byType[eventType], Registration{
		EventType:  eventType,
		HandlerKey: handlerKey,
		Handler:    h,
	})
}

// HandlersFor returns the registrations for an event type in registration
// order. The returned slice must not be mutated.
func (r *Registry) HandlersFor(eventType string) []Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byType[eventType]
}

// EventTypes lists every type with at least one subscription.
func (r *Registry) EventTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.byType))
	for t := range r.byType {
		types = append(types, t)
	}
	return types
}
