package outbox

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/adverra/marketplace/pkg/events"
)

// RelayStore is the storage contract the relay polls against.
type RelayStore interface {
	ClaimBatch(ctx context.Context, relayID string, batchSize int, lease time.Duration) ([]Envelope, error)
	MarkSent(ctx context.Context, ids []uuid.UUID) error
	MarkRetry(ctx context.Context, id uuid.UUID, cause error) error
	MarkDead(ctx context.Context, id uuid.UUID, cause error) error
	Release(ctx context.Context, relayID string) error
}

// Publisher pushes one envelope onto the bus.
type Publisher interface {
	Publish(ctx context.Context, env Envelope) error
}

// RelayConfig tunes one relay instance. PollInterval and BatchSize come from
// required deployment configuration; Lease and PublishTimeout are internal
// knobs with safe defaults.
type RelayConfig struct {
	PollInterval   time.Duration
	BatchSize      int
	Lease          time.Duration
	PublishTimeout time.Duration
}

const (
	defaultLease          = 30 * time.Second
	defaultPublishTimeout = 10 * time.Second
	releaseTimeout        = 5 * time.Second
)

// Relay drains committed envelopes onto the bus, oldest first. Publishing is
// deliberately not transactional with the processed_at update: a crash in
// between re-publishes the envelope, and the inbox/ledger layers absorb the
// duplicate downstream.
type Relay struct {
	log       *slog.Logger
	store     RelayStore
	publisher Publisher
	relayID   string
	cfg       RelayConfig
}

func NewRelay(log *slog.Logger, store RelayStore, publisher Publisher, relayID string, cfg RelayConfig) *Relay {
	if cfg.Lease <= 0 {
		cfg.Lease = defaultLease
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = defaultPublishTimeout
	}
	return &Relay{log: log, store: store, publisher: publisher, relayID: relayID, cfg: cfg}
}

// Run polls until the context is cancelled, then releases any claims this
// instance still holds so the next owner picks them up immediately.
func (r *Relay) Run(ctx context.Context) error {
	t := time.NewTicker(r.cfg.PollInterval)
	defer t.Stop()

	r.log.Info("outbox relay started", "relay_id", r.relayID, "poll_interval", r.cfg.PollInterval, "batch_size", r.cfg.BatchSize)

	for {
		select {
		case <-ctx.Done():
			r.release()
			r.log.Info("outbox relay stopped", "relay_id", r.relayID)
			return nil
		case <-t.C:
			if _, err := r.ProcessOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				r.log.Error("outbox relay batch failed", "relay_id", r.relayID, "err", err)
			}
		}
	}
}

// ProcessOnce claims and publishes a single batch. It returns the number of
// envelopes published successfully.
func (r *Relay) ProcessOnce(ctx context.Context) (int, error) {
	batch, err := r.store.ClaimBatch(ctx, r.relayID, r.cfg.BatchSize, r.cfg.Lease)
	if err != nil {
		return 0, err
	}
	if len(batch) == 0 {
		return 0, nil
	}

	sent := make([]uuid.UUID, 0, len(batch))
	for _, env := range batch {
		if ctx.Err() != nil {
			break
		}

		if err := r.publish(ctx, env); err != nil {
			if errors.Is(err, events.ErrPermanent) {
				if markErr := r.store.MarkDead(ctx, env.ID, err); markErr != nil {
					r.log.Error("outbox mark dead failed", "event_id", env.ID, "err", markErr)
				}
				continue
			}
			r.log.Warn("outbox publish failed", "event_id", env.ID, "type", env.EventType, "attempts", env.Attempts, "err", err)
			if markErr := r.store.MarkRetry(ctx, env.ID, err); markErr != nil {
				r.log.Error("outbox mark retry failed", "event_id", env.ID, "err", markErr)
			}
			continue
		}
		sent = append(sent, env.ID)
	}

	if err := r.store.MarkSent(ctx, sent); err != nil {
		return 0, err
	}
	if n := len(sent); n > 0 {
		r.log.Debug("outbox batch published", "relay_id", r.relayID, "published", n, "claimed", len(batch))
	}
	return len(sent), ctx.Err()
}

func (r *Relay) publish(ctx context.Context, env Envelope) error {
	pubCtx, cancel := context.WithTimeout(ctx, r.cfg.PublishTimeout)
	defer cancel()
	return r.publisher.Publish(pubCtx, env)
}

func (r *Relay) release() {
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()
	if err := r.store.Release(ctx, r.relayID); err != nil {
		r.log.Error("outbox release failed", "relay_id", r.relayID, "err", err)
	}
}
