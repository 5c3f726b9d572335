package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/adverra/marketplace/pkg/tracing"
)

// Producer is the bus write contract, satisfied by *kafka.Writer.
type Producer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Dispatcher publishes envelopes to the shared events topic. The payload
// travels schema-tagged: the event type and id ride in message headers next
// to the serialized body, so consumers pick decoders without a compile-time
// contract shared with the producer.
type Dispatcher struct {
	log      *slog.Logger
	producer Producer
	topic    string
}

func NewDispatcher(log *slog.Logger, producer Producer, topic string) *Dispatcher {
	return &Dispatcher{log: log, producer: producer, topic: topic}
}

func (d *Dispatcher) Publish(ctx context.Context, env Envelope) error {
	headers := []kafka.Header{
		{Key: "event_id", Value: []byte(env.ID.String())},
		{Key: "event_type", Value: []byte(env.EventType)},
		{Key: "occurred_at", Value: []byte(env.OccurredAt.Format(time.RFC3339Nano))},
	}
	if env.Traceparent != "" {
		headers = append(headers, kafka.Header{Key: "traceparent", Value: []byte(env.Traceparent)})
	} else {
		// No trace captured at write time; propagate the relay's own
		// context instead so the consume span is never orphaned.
		headers = tracing.InjectKafkaHeaders(ctx, headers)
	}

	key := env.PartitionKey
	if key == "" {
		key = env.ID.String()
	}
	msg := kafka.Message{
		Topic:   d.topic,
		Key:     []byte(key),
		Value:   env.Payload,
		Headers: headers,
	}
	if err := d.producer.WriteMessages(ctx, msg); err != nil {
		return err
	}

	d.log.Info("outbox envelope published", "event_id", env.ID, "type", env.EventType)
	return nil
}

// NewKafkaWriter builds the shared producer with full-acknowledgement
// writes, matching the at-least-once contract of the relay. The hash
// balancer honors the message key, so all facts of one aggregate go to
// one partition.
func NewKafkaWriter(brokers []string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
}
