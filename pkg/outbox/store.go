package outbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/adverra/marketplace/pkg/postgres"
)

var ErrNotDead = errors.New("outbox envelope is not dead")

const maxBackoffExponent = 10

// Store is the postgres side of the relay: claim-based batch selection with
// SKIP LOCKED plus a lease, so several relay replicas can poll the same
// table without double-publishing a row, and a crashed owner's claim
// expires instead of wedging its batch.
type Store struct {
	log         *slog.Logger
	db          *postgres.DB
	maxAttempts int
	backoff     time.Duration
}

func NewStore(log *slog.Logger, db *postgres.DB, maxAttempts int, backoff time.Duration) *Store {
	return &Store{log: log, db: db, maxAttempts: maxAttempts, backoff: backoff}
}

// ClaimBatch atomically selects and leases up to batchSize due envelopes:
// pending rows whose backoff elapsed, plus delivering rows whose lease
// expired (their owner crashed mid-batch). Returned rows are ordered by
// occurrence time, oldest first.
func (s *Store) ClaimBatch(ctx context.Context, relayID string, batchSize int, lease time.Duration) ([]Envelope, error) {
	rows, err := s.db.Querier(ctx).Query(ctx, `
		WITH picked AS (
			SELECT id FROM outbox_events
			WHERE (status = 'pending' AND next_attempt_at <= now())
			   OR (status = 'delivering' AND claim_expires_at < now())
			ORDER BY occurred_at, id
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		UPDATE outbox_events o
		SET status = 'delivering', claimed_by = $1, claim_expires_at = now() + make_interval(secs => $3)
		FROM picked
		WHERE o.id = picked.id
		RETURNING o.id, o.event_type, o.partition_key, o.payload, o.traceparent, o.occurred_at, o.processed_at, o.last_error, o.attempts, o.status
	`, relayID, batchSize, lease.Seconds())
	if err != nil {
		return nil, fmt.Errorf("claim batch: %w", err)
	}
	defer rows.Close()

	var batch []Envelope
	for rows.Next() {
		var e Envelope
		if err := rows.Scan(&e.ID, &e.EventType, &e.PartitionKey, &e.Payload, &e.Traceparent, &e.OccurredAt, &e.ProcessedAt, &e.LastError, &e.Attempts, &e.Status); err != nil {
			return nil, err
		}
		batch = append(batch, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// UPDATE ... FROM does not preserve the CTE order.
	sort.Slice(batch, func(i, j int) bool {
		if !batch[i].OccurredAt.Equal(batch[j].OccurredAt) {
			return batch[i].OccurredAt.Before(batch[j].OccurredAt)
		}
		return batch[i].ID.String() < batch[j].ID.String()
	})
	return batch, nil
}

// MarkSent stamps processed_at on successfully published envelopes.
func (s *Store) MarkSent(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.db.Querier(ctx).Exec(ctx, `
		UPDATE outbox_events
		SET status = 'sent', processed_at = now(), claimed_by = NULL, claim_expires_at = NULL
		WHERE id = ANY($1)
	`, ids)
	return err
}

// MarkRetry records a publish failure, releases the claim and schedules the
// next attempt with exponential backoff. Once the attempt counter reaches
// the configured maximum the envelope flips to dead and leaves the polling
// set for good.
func (s *Store) MarkRetry(ctx context.Context, id uuid.UUID, cause error) error {
	var status Status
	var attempts int
	err := s.db.Querier(ctx).QueryRow(ctx, `
		UPDATE outbox_events
		SET attempts = attempts + 1,
		    last_error = $2,
		    claimed_by = NULL,
		    claim_expires_at = NULL,
		    status = CASE WHEN attempts + 1 >= $3 THEN 'dead' ELSE 'pending' END,
		    next_attempt_at = now() + make_interval(secs => $4 * power(2, least(attempts, $5)))
		WHERE id = $1
		RETURNING status, attempts
	`, id, cause.Error(), s.maxAttempts, s.backoff.Seconds(), maxBackoffExponent).Scan(&status, &attempts)
	if err != nil {
		return err
	}

	if status == StatusDead {
		s.log.Error("outbox envelope dead-lettered", "event_id", id, "attempts", attempts, "err", cause)
	}
	return nil
}

// MarkDead dead-letters an envelope immediately, bypassing the retry budget.
func (s *Store) MarkDead(ctx context.Context, id uuid.UUID, cause error) error {
	_, err := s.db.Querier(ctx).Exec(ctx, `
		UPDATE outbox_events
		SET status = 'dead', last_error = $2, attempts = attempts + 1, claimed_by = NULL, claim_expires_at = NULL
		WHERE id = $1
	`, id, cause.Error())
	if err != nil {
		return err
	}
	s.log.Error("outbox envelope dead-lettered", "event_id", id, "err", cause)
	return nil
}

// Release returns this relay's unfinished claims to the pending set. Called
// on shutdown so the next owner does not have to wait out the lease.
func (s *Store) Release(ctx context.Context, relayID string) error {
	_, err := s.db.Querier(ctx).Exec(ctx, `
		UPDATE outbox_events
		SET status = 'pending', claimed_by = NULL, claim_expires_at = NULL
		WHERE status = 'delivering' AND claimed_by = $1
	`, relayID)
	return err
}

// Failed lists dead envelopes for operator inspection, newest first.
func (s *Store) Failed(ctx context.Context, limit int) ([]Envelope, error) {
	rows, err := s.db.Querier(ctx).Query(ctx, `
		SELECT id, event_type, partition_key, payload, traceparent, occurred_at, processed_at, last_error, attempts, status
		FROM outbox_events
		WHERE status = 'dead'
		ORDER BY occurred_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Envelope
	for rows.Next() {
		var e Envelope
		if err := rows.Scan(&e.ID, &e.EventType, &e.PartitionKey, &e.Payload, &e.Traceparent, &e.OccurredAt, &e.ProcessedAt, &e.LastError, &e.Attempts, &e.Status); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Retry re-arms a dead envelope with a fresh retry budget.
func (s *Store) Retry(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Querier(ctx).Exec(ctx, `
		UPDATE outbox_events
		SET status = 'pending', attempts = 0, last_error = NULL, next_attempt_at = now()
		WHERE id = $1 AND status = 'dead'
	`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotDead, id)
	}
	s.log.Info("outbox envelope re-armed", "event_id", id)
	return nil
}

// PendingCount reports how many envelopes still await publication.
func (s *Store) PendingCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.Querier(ctx).QueryRow(ctx, `
		SELECT count(*) FROM outbox_events WHERE status IN ('pending', 'delivering')
	`).Scan(&n)
	return n, err
}
