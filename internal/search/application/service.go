package application

import (
	"context"
	"fmt"

	campaigns "github.com/adverra/marketplace/internal/campaigns/domain"
	"github.com/adverra/marketplace/pkg/events"
)

const HandlerKey = "search.campaigns"

// ProjectionHandler keeps the campaign_search projection current. Created
// facts insert the document; lifecycle facts only move the status. A status
// fact arriving before its created fact surfaces ErrMissingDocument from
// the index, which the consumer treats as transient and retries until the
// created fact lands.
type ProjectionHandler struct {
	index Index
}

func NewProjectionHandler(index Index) *ProjectionHandler {
	return &ProjectionHandler{index: index}
}

func (h *ProjectionHandler) Handle(ctx context.Context, e events.Event) error {
	switch ev := e.(type) {
	case campaigns.CampaignCreated:
		return h.index.Upsert(ctx, Document{
			CampaignID: ev.CampaignID,
			BrandID:    ev.BrandID,
			BloggerID:  ev.BloggerID,
			Title:      ev.Title,
			Status:     string(campaigns.StatusDraft),
		})
	case campaigns.CampaignActivated:
		return h.index.SetStatus(ctx, ev.CampaignID, string(campaigns.StatusActive))
	case campaigns.CampaignCompleted:
		return h.index.SetStatus(ctx, ev.CampaignID, string(campaigns.StatusCompleted))
	case campaigns.CampaignCancelled:
		return h.index.SetStatus(ctx, ev.CampaignID, string(campaigns.StatusCancelled))
	default:
		return fmt.Errorf("%w: search cannot handle %s", events.ErrPermanent, e.EventType())
	}
}

// Wrapper decorates a handler with its at-most-once guarantee.
type Wrapper interface {
	Wrap(handlerKey string, next events.Handler) events.Handler
}

// Register subscribes the projection into the consumer group's registry.
func Register(registry *events.Registry, wrapper Wrapper, index Index) {
	h := wrapper.Wrap(HandlerKey, NewProjectionHandler(index))
	for _, t := range []string{
		campaigns.TypeCreated, campaigns.TypeActivated, campaigns.TypeCompleted, campaigns.TypeCancelled,
	} {
		registry.Subscribe(t, HandlerKey, h)
	}
}
