package outbox

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adverra/marketplace/pkg/events"
)

type execCall struct {
	sql  string
	args []any
}

type captureQuerier struct {
	calls []execCall
}

func (q *captureQuerier) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	q.calls = append(q.calls, execCall{sql: sql, args: args})
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (q *captureQuerier) Query(context.Context, string, ...any) (pgx.Rows, error) {
	panic("not used")
}

func (q *captureQuerier) QueryRow(context.Context, string, ...any) pgx.Row {
	panic("not used")
}

type raisedEvent struct {
	events.Base
	AggregateID string `json:"aggregate_id"`
	Title       string `json:"title"`
}

func (raisedEvent) EventType() string { return "campaign.created" }

func (e raisedEvent) PartitionKey() string { return e.AggregateID }

type unkeyedEvent struct {
	events.Base
}

func (unkeyedEvent) EventType() string { return "campaign.created" }

func TestAppendInsertsOneRowPerFact(t *testing.T) {
	q := &captureQuerier{}
	w := NewWriter(testLogger())

	first := raisedEvent{Base: events.NewBase(), AggregateID: "campaign-7", Title: "a"}
	second := raisedEvent{Base: events.NewBase(), AggregateID: "campaign-7", Title: "b"}

	require.NoError(t, w.Append(context.Background(), q, first, second))
	require.Len(t, q.calls, 2)

	assert.Contains(t, q.calls[0].sql, "INSERT INTO outbox_events")
	assert.Contains(t, q.calls[0].sql, "ON CONFLICT (id) DO NOTHING")

	// id, type and occurrence time come from the fact itself, so a retried
	// commit reuses them instead of minting new ones.
	assert.Equal(t, first.EventID(), q.calls[0].args[0])
	assert.Equal(t, "campaign.created", q.calls[0].args[1])
	assert.Equal(t, "campaign-7", q.calls[0].args[2])
	assert.Equal(t, first.EventOccurredAt(), q.calls[0].args[5])
	assert.Equal(t, second.EventID(), q.calls[1].args[0])
	assert.Equal(t, "campaign-7", q.calls[1].args[2])
}

func TestAppendUnkeyedFactFallsBackToEventID(t *testing.T) {
	q := &captureQuerier{}
	e := unkeyedEvent{Base: events.NewBase()}

	require.NoError(t, NewWriter(testLogger()).Append(context.Background(), q, e))
	require.Len(t, q.calls, 1)
	assert.Equal(t, e.EventID().String(), q.calls[0].args[2])
}

func TestAppendWithNoFactsIsANoOp(t *testing.T) {
	q := &captureQuerier{}
	require.NoError(t, NewWriter(testLogger()).Append(context.Background(), q))
	assert.Empty(t, q.calls)
}
