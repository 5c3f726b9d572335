package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/adverra/marketplace/internal/analytics/application"
	"github.com/adverra/marketplace/pkg/postgres"
)

// StatsRepository backs the analytics counters with the brand_stats and
// blogger_stats tables. Writes join the decorator's transaction through the
// context querier.
type StatsRepository struct {
	db *postgres.DB
}

func NewStatsRepository(db *postgres.DB) *StatsRepository {
	return &StatsRepository{db: db}
}

func (r *StatsRepository) AddBrandCampaign(ctx context.Context, brandID string) error {
	return r.bump(ctx, brandUpsert, brandID, 1, 0)
}

func (r *StatsRepository) AddBrandCompleted(ctx context.Context, brandID string) error {
	return r.bump(ctx, brandUpsert, brandID, 0, 1)
}

func (r *StatsRepository) AddBloggerCampaign(ctx context.Context, bloggerID string) error {
	return r.bump(ctx, bloggerUpsert, bloggerID, 1, 0)
}

func (r *StatsRepository) AddBloggerCompleted(ctx context.Context, bloggerID string) error {
	return r.bump(ctx, bloggerUpsert, bloggerID, 0, 1)
}

const brandUpsert = `
	INSERT INTO brand_stats (brand_id, campaigns_total, campaigns_completed, updated_at)
	VALUES ($1, $2, $3, now())
	ON CONFLICT (brand_id) DO UPDATE SET
		campaigns_total     = brand_stats.campaigns_total + EXCLUDED.campaigns_total,
		campaigns_completed = brand_stats.campaigns_completed + EXCLUDED.campaigns_completed,
		updated_at          = now()`

const bloggerUpsert = `
	INSERT INTO blogger_stats (blogger_id, campaigns_total, campaigns_completed, updated_at)
	VALUES ($1, $2, $3, now())
	ON CONFLICT (blogger_id) DO UPDATE SET
		campaigns_total     = blogger_stats.campaigns_total + EXCLUDED.campaigns_total,
		campaigns_completed = blogger_stats.campaigns_completed + EXCLUDED.campaigns_completed,
		updated_at          = now()`

func (r *StatsRepository) bump(ctx context.Context, stmt, id string, total, completed int) error {
	if _, err := r.db.Querier(ctx).Exec(ctx, stmt, id, total, completed); err != nil {
		return fmt.Errorf("bump stats %s: %w", id, err)
	}
	return nil
}

func (r *StatsRepository) BrandStats(ctx context.Context, brandID string) (application.Stats, error) {
	return r.stats(ctx, `SELECT campaigns_total, campaigns_completed FROM brand_stats WHERE brand_id = $1`, brandID)
}

func (r *StatsRepository) BloggerStats(ctx context.Context, bloggerID string) (application.Stats, error) {
	return r.stats(ctx, `SELECT campaigns_total, campaigns_completed FROM blogger_stats WHERE blogger_id = $1`, bloggerID)
}

func (r *StatsRepository) stats(ctx context.Context, query, id string) (application.Stats, error) {
	var s application.Stats
	err := r.db.Querier(ctx).QueryRow(ctx, query, id).Scan(&s.Total, &s.Completed)
	if errors.Is(err, pgx.ErrNoRows) {
		return application.Stats{}, nil
	}
	if err != nil {
		return application.Stats{}, fmt.Errorf("load stats %s: %w", id, err)
	}
	return s, nil
}
