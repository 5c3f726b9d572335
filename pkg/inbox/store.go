package inbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/adverra/marketplace/pkg/postgres"
)

const defaultStaleAfter = 5 * time.Minute

// AcceptOutcome says what a consumer must do with a delivery.
type AcceptOutcome int

const (
	// AcceptWon means this caller owns the message and must run handlers.
	AcceptWon AcceptOutcome = iota
	// AcceptDuplicate means a completed or failed record already exists;
	// acknowledge without running handlers.
	AcceptDuplicate
	// AcceptInFlight means a processing record younger than the stale
	// window exists. Its owner may have crashed after committing the
	// record, so the caller must hold the message and try again until the
	// record finishes or the stale window elapses and a retake wins.
	AcceptInFlight
)

// Store persists inbox records. Accept is written so that of any number of
// concurrent deliveries of the same message to the same group, exactly one
// wins; the rest hold their delivery while the winner is in flight and
// acknowledge once its record completes.
type Store struct {
	log        *slog.Logger
	db         *postgres.DB
	staleAfter time.Duration
}

func NewStore(log *slog.Logger, db *postgres.DB) *Store {
	return &Store{log: log, db: db, staleAfter: defaultStaleAfter}
}

// Accept records the message as processing and classifies the delivery.
// A fresh insert wins, and so does the retake of a processing record older
// than the stale window (its owner crashed). A completed or failed record
// is a duplicate. A processing record still inside the stale window is in
// flight and must not be acknowledged.
func (s *Store) Accept(ctx context.Context, group string, messageID uuid.UUID, eventType string) (AcceptOutcome, error) {
	tag, err := s.db.Querier(ctx).Exec(ctx, `
		INSERT INTO inbox_records (consumer_group, message_id, event_type, status, received_at)
		VALUES ($1, $2, $3, 'processing', now())
		ON CONFLICT (consumer_group, message_id) DO UPDATE
		SET status = 'processing', received_at = now()
		WHERE inbox_records.status = 'processing'
		  AND inbox_records.received_at < now() - make_interval(secs => $4)
	`, group, messageID, eventType, s.staleAfter.Seconds())
	if err != nil {
		return AcceptInFlight, err
	}
	if tag.RowsAffected() == 1 {
		return AcceptWon, nil
	}

	var status Status
	err = s.db.Querier(ctx).QueryRow(ctx, `
		SELECT status FROM inbox_records WHERE consumer_group = $1 AND message_id = $2
	`, group, messageID).Scan(&status)
	if err != nil {
		return AcceptInFlight, err
	}
	if status == StatusProcessing {
		return AcceptInFlight, nil
	}
	return AcceptDuplicate, nil
}

// MarkCompleted finalizes a successfully handled message.
func (s *Store) MarkCompleted(ctx context.Context, group string, messageID uuid.UUID) error {
	_, err := s.db.Querier(ctx).Exec(ctx, `
		UPDATE inbox_records
		SET status = 'completed', processed_at = now()
		WHERE consumer_group = $1 AND message_id = $2
	`, group, messageID)
	return err
}

// MarkFailed records a message that will not be retried automatically.
func (s *Store) MarkFailed(ctx context.Context, group string, messageID uuid.UUID, attempts int, cause error) error {
	_, err := s.db.Querier(ctx).Exec(ctx, `
		UPDATE inbox_records
		SET status = 'failed', attempts = $3, last_error = $4, processed_at = now()
		WHERE consumer_group = $1 AND message_id = $2
	`, group, messageID, attempts, cause.Error())
	if err != nil {
		return err
	}
	s.log.Error("inbox message failed", "group", group, "message_id", messageID, "attempts", attempts, "err", cause)
	return nil
}

// Failed lists failed records across groups for operator inspection.
func (s *Store) Failed(ctx context.Context, limit int) ([]Record, error) {
	rows, err := s.db.Querier(ctx).Query(ctx, `
		SELECT consumer_group, message_id, event_type, status, attempts, last_error, received_at, processed_at
		FROM inbox_records
		WHERE status = 'failed'
		ORDER BY received_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ConsumerGroup, &r.MessageID, &r.EventType, &r.Status, &r.Attempts, &r.LastError, &r.ReceivedAt, &r.ProcessedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
