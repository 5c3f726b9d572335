package outbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adverra/marketplace/pkg/events"
)

// memStore mimics the postgres store in memory: claims hand out pending
// envelopes oldest first, MarkRetry counts attempts and dead-letters at the
// configured maximum.
type memStore struct {
	mu          sync.Mutex
	envelopes   []Envelope
	maxAttempts int
	released    []string
	retried     map[uuid.UUID]int
	dead        map[uuid.UUID]string
	sent        []uuid.UUID
}

func newMemStore(maxAttempts int, envs ...Envelope) *memStore {
	return &memStore{
		envelopes:   envs,
		maxAttempts: maxAttempts,
		retried:     make(map[uuid.UUID]int),
		dead:        make(map[uuid.UUID]string),
	}
}

func (s *memStore) ClaimBatch(_ context.Context, _ string, batchSize int, _ time.Duration) ([]Envelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var batch []Envelope
	for _, e := range s.envelopes {
		if e.Status != StatusPending {
			continue
		}
		batch = append(batch, e)
		if len(batch) == batchSize {
			break
		}
	}
	return batch, nil
}

func (s *memStore) MarkSent(_ context.Context, ids []uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, ids...)
	for _, id := range ids {
		s.setStatus(id, StatusSent)
	}
	return nil
}

func (s *memStore) MarkRetry(_ context.Context, id uuid.UUID, cause error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retried[id]++
	if s.retried[id] >= s.maxAttempts {
		s.dead[id] = cause.Error()
		s.setStatus(id, StatusDead)
	}
	return nil
}

func (s *memStore) MarkDead(_ context.Context, id uuid.UUID, cause error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dead[id] = cause.Error()
	s.setStatus(id, StatusDead)
	return nil
}

func (s *memStore) Release(_ context.Context, relayID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.released = append(s.released, relayID)
	return nil
}

func (s *memStore) setStatus(id uuid.UUID, status Status) {
	for i := range s.envelopes {
		if s.envelopes[i].ID == id {
			s.envelopes[i].Status = status
		}
	}
}

type capturePublisher struct {
	mu        sync.Mutex
	published []Envelope
	errFor    map[uuid.UUID]error
}

func (p *capturePublisher) Publish(_ context.Context, env Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err, ok := p.errFor[env.ID]; ok {
		return err
	}
	p.published = append(p.published, env)
	return nil
}

func pendingEnvelope(occurredAt time.Time) Envelope {
	return Envelope{
		ID:         uuid.Must(uuid.NewV7()),
		EventType:  "campaign.created",
		Payload:    []byte(`{}`),
		OccurredAt: occurredAt,
		Status:     StatusPending,
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestRelayPublishesOldestFirst(t *testing.T) {
	base := time.Now().UTC()
	older := pendingEnvelope(base.Add(-time.Minute))
	newer := pendingEnvelope(base)
	store := newMemStore(3, older, newer)
	pub := &capturePublisher{}

	relay := NewRelay(testLogger(), store, pub, "relay-test", RelayConfig{PollInterval: time.Millisecond, BatchSize: 10})

	n, err := relay.ProcessOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.Len(t, pub.published, 2)
	assert.Equal(t, older.ID, pub.published[0].ID)
	assert.Equal(t, newer.ID, pub.published[1].ID)
	assert.ElementsMatch(t, []uuid.UUID{older.ID, newer.ID}, store.sent)
}

func TestRelayRetriesUntilBoundThenDeadLetters(t *testing.T) {
	env := pendingEnvelope(time.Now().UTC())
	const maxAttempts = 3
	store := newMemStore(maxAttempts, env)
	pub := &capturePublisher{errFor: map[uuid.UUID]error{env.ID: errors.New("broker unreachable")}}

	relay := NewRelay(testLogger(), store, pub, "relay-test", RelayConfig{PollInterval: time.Millisecond, BatchSize: 10})

	// Drive polls well past the retry budget; dead envelopes must leave the
	// claim set instead of looping forever.
	for range maxAttempts * 2 {
		_, err := relay.ProcessOnce(context.Background())
		require.NoError(t, err)
	}

	assert.Equal(t, maxAttempts, store.retried[env.ID])
	assert.Contains(t, store.dead[env.ID], "broker unreachable")
	assert.Empty(t, store.sent)
}

func TestRelayDeadLettersPermanentFailuresImmediately(t *testing.T) {
	env := pendingEnvelope(time.Now().UTC())
	store := newMemStore(5, env)
	pub := &capturePublisher{errFor: map[uuid.UUID]error{
		env.ID: fmt.Errorf("%w: payload refused", events.ErrPermanent),
	}}

	relay := NewRelay(testLogger(), store, pub, "relay-test", RelayConfig{PollInterval: time.Millisecond, BatchSize: 10})

	_, err := relay.ProcessOnce(context.Background())
	require.NoError(t, err)

	assert.Zero(t, store.retried[env.ID])
	assert.Contains(t, store.dead[env.ID], "payload refused")
}

func TestRelayPartialBatchSuccess(t *testing.T) {
	base := time.Now().UTC()
	good := pendingEnvelope(base.Add(-time.Second))
	bad := pendingEnvelope(base)
	store := newMemStore(5, good, bad)
	pub := &capturePublisher{errFor: map[uuid.UUID]error{bad.ID: errors.New("timeout")}}

	relay := NewRelay(testLogger(), store, pub, "relay-test", RelayConfig{PollInterval: time.Millisecond, BatchSize: 10})

	n, err := relay.ProcessOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Equal(t, []uuid.UUID{good.ID}, store.sent)
	assert.Equal(t, 1, store.retried[bad.ID])
}

func TestRelayRunReleasesClaimsOnShutdown(t *testing.T) {
	store := newMemStore(3)
	relay := NewRelay(testLogger(), store, &capturePublisher{}, "relay-77", RelayConfig{PollInterval: time.Millisecond, BatchSize: 10})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("relay did not stop after cancellation")
	}

	assert.Equal(t, []string{"relay-77"}, store.released)
}
