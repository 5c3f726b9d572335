package application

import (
	"context"
	"fmt"

	campaigns "github.com/adverra/marketplace/internal/campaigns/domain"
	"github.com/adverra/marketplace/pkg/events"
)

const (
	BrandStatsKey   = "analytics.brand-stats"
	BloggerStatsKey = "analytics.blogger-stats"
)

// BrandStatsHandler maintains per-brand campaign counters from campaign
// facts arriving over the bus.
type BrandStatsHandler struct {
	store StatsStore
}

func (h *BrandStatsHandler) Handle(ctx context.Context, e events.Event) error {
	switch ev := e.(type) {
	case campaigns.CampaignCreated:
		return h.store.AddBrandCampaign(ctx, ev.BrandID)
	case campaigns.CampaignCompleted:
		return h.store.AddBrandCompleted(ctx, ev.BrandID)
	default:
		return fmt.Errorf("%w: brand stats cannot handle %s", events.ErrPermanent, e.EventType())
	}
}

// BloggerStatsHandler mirrors BrandStatsHandler on the blogger side.
type BloggerStatsHandler struct {
	store StatsStore
}

func (h *BloggerStatsHandler) Handle(ctx context.Context, e events.Event) error {
	switch ev := e.(type) {
	case campaigns.CampaignCreated:
		return h.store.AddBloggerCampaign(ctx, ev.BloggerID)
	case campaigns.CampaignCompleted:
		return h.store.AddBloggerCompleted(ctx, ev.BloggerID)
	default:
		return fmt.Errorf("%w: blogger stats cannot handle %s", events.ErrPermanent, e.EventType())
	}
}

// Wrapper decorates a handler with its at-most-once guarantee.
type Wrapper interface {
	Wrap(handlerKey string, next events.Handler) events.Handler
}

// Register subscribes the analytics handlers into the consumer group's
// registry. Both handlers see the same facts under independent keys.
func Register(registry *events.Registry, wrapper Wrapper, store StatsStore) {
	brand := wrapper.Wrap(BrandStatsKey, &BrandStatsHandler{store: store})
	blogger := wrapper.Wrap(BloggerStatsKey, &BloggerStatsHandler{store: store})

	for _, t := range []string{campaigns.TypeCreated, campaigns.TypeCompleted} {
		registry.Subscribe(t, BrandStatsKey, brand)
		registry.Subscribe(t, BloggerStatsKey, blogger)
	}
}
