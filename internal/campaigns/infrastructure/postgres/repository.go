package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/adverra/marketplace/internal/campaigns/application"
	"github.com/adverra/marketplace/internal/campaigns/domain"
	"github.com/adverra/marketplace/pkg/outbox"
	"github.com/adverra/marketplace/pkg/postgres"
)

// Repository persists campaigns and their raised facts in one transaction.
// The outbox writer runs on the same context transaction as the upsert, so
// an envelope can never exist without its state change or vice versa.
type Repository struct {
	log    *slog.Logger
	db     *postgres.DB
	writer *outbox.Writer
}

func NewRepository(log *slog.Logger, db *postgres.DB, writer *outbox.Writer) *Repository {
	return &Repository{log: log, db: db, writer: writer}
}

func (r *Repository) Save(ctx context.Context, c *domain.Campaign) error {
	return r.db.InTx(ctx, func(txCtx context.Context) error {
		q := r.db.Querier(txCtx)

		_, err := q.Exec(txCtx, `
			INSERT INTO campaigns (id, brand_id, blogger_id, title, budget_cents, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (id) DO UPDATE SET
				title        = EXCLUDED.title,
				budget_cents = EXCLUDED.budget_cents,
				status       = EXCLUDED.status,
				updated_at   = EXCLUDED.updated_at
		`, c.ID, c.BrandID, c.BloggerID, c.Title, c.BudgetCents, c.Status, c.CreatedAt, c.UpdatedAt)
		if err != nil {
			return fmt.Errorf("save campaign %s: %w", c.ID, err)
		}

		return r.writer.Append(txCtx, q, c.Events()...)
	})
}

func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*domain.Campaign, error) {
	var c domain.Campaign
	err := r.db.Querier(ctx).QueryRow(ctx, `
		SELECT id, brand_id, blogger_id, title, budget_cents, status, created_at, updated_at
		FROM campaigns
		WHERE id = $1
	`, id).Scan(&c.ID, &c.BrandID, &c.BloggerID, &c.Title, &c.BudgetCents, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, application.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load campaign %s: %w", id, err)
	}
	return &c, nil
}

type AuditEntry struct {
	EventID    uuid.UUID `json:"event_id"`
	EventType  string    `json:"event_type"`
	RecordedAt time.Time `json:"recorded_at"`
}

// AuditStore writes the local audit trail. Append runs on the context
// transaction the idempotency decorator opened, next to the ledger claim.
type AuditStore struct {
	db *postgres.DB
}

func NewAuditStore(db *postgres.DB) *AuditStore {
	return &AuditStore{db: db}
}

func (s *AuditStore) Append(ctx context.Context, campaignID, eventID uuid.UUID, eventType string) error {
	_, err := s.db.Querier(ctx).Exec(ctx, `
		INSERT INTO campaign_audit (campaign_id, event_id, event_type)
		VALUES ($1, $2, $3)
	`, campaignID, eventID, eventType)
	if err != nil {
		return fmt.Errorf("append audit %s/%s: %w", campaignID, eventType, err)
	}
	return nil
}

// Trail returns the audit rows for one campaign, oldest first.
func (s *AuditStore) Trail(ctx context.Context, campaignID uuid.UUID) ([]AuditEntry, error) {
	rows, err := s.db.Querier(ctx).Query(ctx, `
		SELECT event_id, event_type, recorded_at
		FROM campaign_audit
		WHERE campaign_id = $1
		ORDER BY id
	`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("load audit trail %s: %w", campaignID, err)
	}
	defer rows.Close()

	var trail []AuditEntry
	for rows.Next() {
		var e AuditEntry
		if err := rows.Scan(&e.EventID, &e.EventType, &e.RecordedAt); err != nil {
			return nil, err
		}
		trail = append(trail, e)
	}
	return trail, rows.Err()
}
