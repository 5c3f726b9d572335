package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/adverra/marketplace/internal/search/application"
	"github.com/adverra/marketplace/pkg/postgres"
)

// IndexRepository backs the search projection with the campaign_search
// table. Plain ILIKE over the title is enough at this scale.
type IndexRepository struct {
	db *postgres.DB
}

func NewIndexRepository(db *postgres.DB) *IndexRepository {
	return &IndexRepository{db: db}
}

func (r *IndexRepository) Upsert(ctx context.Context, doc application.Document) error {
	_, err := r.db.Querier(ctx).Exec(ctx, `
		INSERT INTO campaign_search (campaign_id, brand_id, blogger_id, title, status, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (campaign_id) DO UPDATE SET
			title      = EXCLUDED.title,
			status     = EXCLUDED.status,
			updated_at = now()
	`, doc.CampaignID, doc.BrandID, doc.BloggerID, doc.Title, doc.Status)
	if err != nil {
		return fmt.Errorf("upsert search doc %s: %w", doc.CampaignID, err)
	}
	return nil
}

func (r *IndexRepository) SetStatus(ctx context.Context, campaignID uuid.UUID, status string) error {
	tag, err := r.db.Querier(ctx).Exec(ctx, `
		UPDATE campaign_search SET status = $2, updated_at = now() WHERE campaign_id = $1
	`, campaignID, status)
	if err != nil {
		return fmt.Errorf("set search status %s: %w", campaignID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("set search status %s: %w", campaignID, application.ErrMissingDocument)
	}
	return nil
}

func (r *IndexRepository) Find(ctx context.Context, query, status string, limit int) ([]application.Document, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Querier(ctx).Query(ctx, `
		SELECT campaign_id, brand_id, blogger_id, title, status
		FROM campaign_search
		WHERE ($1 = '' OR title ILIKE '%' || $1 || '%')
		  AND ($2 = '' OR status = $2)
		ORDER BY updated_at DESC
		LIMIT $3
	`, query, status, limit)
	if err != nil {
		return nil, fmt.Errorf("search campaigns: %w", err)
	}
	defer rows.Close()

	var docs []application.Document
	for rows.Next() {
		var d application.Document
		if err := rows.Scan(&d.CampaignID, &d.BrandID, &d.BloggerID, &d.Title, &d.Status); err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}
