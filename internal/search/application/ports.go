package application

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrMissingDocument is returned by SetStatus when the campaign has no
// search document yet. The caller treats it as transient so a status fact
// delivered ahead of its created fact is retried, not lost.
var ErrMissingDocument = errors.New("search document missing")

// Document is the denormalized search row for one campaign.
type Document struct {
	CampaignID uuid.UUID `json:"campaign_id"`
	BrandID    string    `json:"brand_id"`
	BloggerID  string    `json:"blogger_id"`
	Title      string    `json:"title"`
	Status     string    `json:"status"`
}

// Index persists the search projection. Writes run on the context
// transaction opened by the idempotency decorator.
type Index interface {
	Upsert(ctx context.Context, doc Document) error
	SetStatus(ctx context.Context, campaignID uuid.UUID, status string) error
	Find(ctx context.Context, query, status string, limit int) ([]Document, error)
}
