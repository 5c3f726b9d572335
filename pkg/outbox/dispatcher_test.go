package outbox

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureProducer struct {
	msgs []kafka.Message
	err  error
}

func (p *captureProducer) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, msgs...)
	return nil
}

func TestDispatcherPublishAddsSchemaTagHeaders(t *testing.T) {
	producer := &captureProducer{}
	d := NewDispatcher(testLogger(), producer, "marketplace.events")

	env := Envelope{
		ID:           uuid.Must(uuid.NewV7()),
		EventType:    "campaign.created",
		PartitionKey: "campaign-42",
		Payload:      []byte(`{"title":"spring push"}`),
		Traceparent:  "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01",
		OccurredAt:   time.Now().UTC(),
	}
	require.NoError(t, d.Publish(context.Background(), env))

	require.Len(t, producer.msgs, 1)
	msg := producer.msgs[0]
	assert.Equal(t, "marketplace.events", msg.Topic)

	// The aggregate id keys the message, so every fact of one campaign
	// lands on one partition and keeps its raise order.
	assert.Equal(t, "campaign-42", string(msg.Key))
	assert.Equal(t, []byte(env.Payload), msg.Value)

	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, env.ID.String(), headers["event_id"])
	assert.Equal(t, "campaign.created", headers["event_type"])
	assert.Equal(t, env.Traceparent, headers["traceparent"])
}

func TestDispatcherOmitsEmptyTraceparent(t *testing.T) {
	producer := &captureProducer{}
	d := NewDispatcher(testLogger(), producer, "marketplace.events")

	env := Envelope{ID: uuid.New(), EventType: "campaign.created"}
	require.NoError(t, d.Publish(context.Background(), env))

	for _, h := range producer.msgs[0].Headers {
		assert.NotEqual(t, "traceparent", h.Key)
	}

	// Rows written before the partition_key column existed fall back to
	// the event id.
	assert.Equal(t, env.ID.String(), string(producer.msgs[0].Key))
}
