package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

var ErrUnknownEventType = errors.New("unknown event type")

// ErrPermanent marks a publish or handler failure that retrying cannot fix
// (malformed payload, unknown event type, a handler rejecting the fact).
// Wrap it so the relay and the inbox consumer dead-letter immediately
// instead of burning the retry budget.
var ErrPermanent = errors.New("permanent")

// DecodeFunc turns a serialized payload back into a typed event.
type DecodeFunc func(payload []byte) (Event, error)

// Codec maps event type names to decoders. Payloads travel schema-tagged
// (the type name rides next to the serialized body) so producer and
// consumer deployments can evolve their registries independently.
type Codec struct {
	mu       sync.RWMutex
	decoders map[string]DecodeFunc
}

func NewCodec() *Codec {
	return &Codec{decoders: make(map[string]DecodeFunc)}
}

// Register binds an event type name to a decoder. Registering the same type
// twice is a wiring bug and panics at startup.
func (c *Codec) Register(eventType string, fn DecodeFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, dup := c.decoders[eventType]; dup {
		panic("events: duplicate decoder for " + eventType)
	}
	c.decoders[eventType] = fn
}

// Decode revives an event from its type name and payload. An unregistered
// type is a permanent failure for the caller, not a retryable one.
func (c *Codec) Decode(eventType string, payload []byte) (Event, error) {
	c.mu.RLock()
	fn, ok := c.decoders[eventType]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, eventType)
	}
	return fn(payload)
}

// JSON builds a DecodeFunc for a concrete event type serialized as JSON.
func JSON[T Event]() DecodeFunc {
	return func(payload []byte) (Event, error) {
		var e T
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, err
		}
		return e, nil
	}
}

// Encode serializes an event payload as JSON.
func Encode(e Event) ([]byte, error) {
	return json.Marshal(e)
}
