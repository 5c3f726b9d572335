package idempotency

import (
	"context"

	"github.com/google/uuid"

	"github.com/adverra/marketplace/pkg/postgres"
)

// Ledger records which (handler, event) pairs have been applied. Claim
// returns true exactly once per pair; every later call is a duplicate.
type Ledger interface {
	Claim(ctx context.Context, handlerKey string, eventID uuid.UUID) (bool, error)
}

// PostgresLedger is the durable ledger. The claim is a conflict-free insert
// through the context-scoped querier, so when the caller runs inside a
// transaction the claim commits or rolls back together with the handler's
// side effects.
type PostgresLedger struct {
	db *postgres.DB
}

func NewPostgresLedger(db *postgres.DB) *PostgresLedger {
	return &PostgresLedger{db: db}
}

func (l *PostgresLedger) Claim(ctx context.Context, handlerKey string, eventID uuid.UUID) (bool, error) {
	tag, err := l.db.Querier(ctx).Exec(ctx, `
		INSERT INTO handler_applications (handler_key, event_id)
		VALUES ($1, $2)
		ON CONFLICT (handler_key, event_id) DO NOTHING
	`, handlerKey, eventID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// Applied reports whether the pair is already in the ledger, without
// claiming it.
func (l *PostgresLedger) Applied(ctx context.Context, handlerKey string, eventID uuid.UUID) (bool, error) {
	var exists bool
	err := l.db.Querier(ctx).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM handler_applications WHERE handler_key = $1 AND event_id = $2
		)
	`, handlerKey, eventID).Scan(&exists)
	return exists, err
}
