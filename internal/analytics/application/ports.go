package application

import "context"

// Stats is one counter row, keyed by brand or blogger.
type Stats struct {
	Total     int `json:"campaigns_total"`
	Completed int `json:"campaigns_completed"`
}

// StatsStore persists the analytics counters. Mutations run on the context
// transaction opened by the idempotency decorator.
type StatsStore interface {
	AddBrandCampaign(ctx context.Context, brandID string) error
	AddBrandCompleted(ctx context.Context, brandID string) error
	AddBloggerCampaign(ctx context.Context, bloggerID string) error
	AddBloggerCompleted(ctx context.Context, bloggerID string) error

	BrandStats(ctx context.Context, brandID string) (Stats, error)
	BloggerStats(ctx context.Context, bloggerID string) (Stats, error)
}
