package application

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	campaigns "github.com/adverra/marketplace/internal/campaigns/domain"
	"github.com/adverra/marketplace/pkg/events"
)

type memIndex struct {
	docs map[uuid.UUID]Document
}

func newMemIndex() *memIndex {
	return &memIndex{docs: map[uuid.UUID]Document{}}
}

func (m *memIndex) Upsert(_ context.Context, doc Document) error {
	m.docs[doc.CampaignID] = doc
	return nil
}

func (m *memIndex) SetStatus(_ context.Context, campaignID uuid.UUID, status string) error {
	doc, ok := m.docs[campaignID]
	if !ok {
		return ErrMissingDocument
	}
	doc.Status = status
	m.docs[campaignID] = doc
	return nil
}

func (m *memIndex) Find(_ context.Context, _, _ string, _ int) ([]Document, error) {
	out := make([]Document, 0, len(m.docs))
	for _, d := range m.docs {
		out = append(out, d)
	}
	return out, nil
}

func TestProjectionFollowsLifecycle(t *testing.T) {
	index := newMemIndex()
	h := NewProjectionHandler(index)
	ctx := context.Background()

	c, err := campaigns.New("brand-1", "blogger-1", "Spring launch", 100)
	require.NoError(t, err)
	require.NoError(t, c.Activate())
	require.NoError(t, c.Complete())

	for _, fact := range c.Events() {
		require.NoError(t, h.Handle(ctx, fact))
	}

	doc := index.docs[c.ID]
	assert.Equal(t, "Spring launch", doc.Title)
	assert.Equal(t, string(campaigns.StatusCompleted), doc.Status)
	assert.Equal(t, "brand-1", doc.BrandID)
}

func TestProjectionStatusBeforeCreateIsRetried(t *testing.T) {
	index := newMemIndex()
	h := NewProjectionHandler(index)
	ctx := context.Background()

	// A status fact ahead of its created fact must come back as a
	// transient error, not vanish, so the consumer redelivers it.
	ev := campaigns.CampaignActivated{Base: events.NewBase(), CampaignID: uuid.Must(uuid.NewV7())}
	err := h.Handle(ctx, ev)
	require.ErrorIs(t, err, ErrMissingDocument)
	require.NotErrorIs(t, err, events.ErrPermanent)

	// Once the created fact lands, the redelivered status fact applies.
	require.NoError(t, h.Handle(ctx, campaigns.CampaignCreated{
		Base: events.NewBase(), CampaignID: ev.CampaignID, BrandID: "brand-1", BloggerID: "blogger-1", Title: "Spring launch",
	}))
	require.NoError(t, h.Handle(ctx, ev))
	assert.Equal(t, string(campaigns.StatusActive), index.docs[ev.CampaignID].Status)
}

func TestProjectionRejectsForeignFact(t *testing.T) {
	h := NewProjectionHandler(newMemIndex())

	err := h.Handle(context.Background(), foreignFact{Base: events.NewBase()})
	require.ErrorIs(t, err, events.ErrPermanent)
}

type passWrapper struct{}

func (passWrapper) Wrap(_ string, next events.Handler) events.Handler { return next }

func TestRegisterCoversAllLifecycleTypes(t *testing.T) {
	registry := events.NewRegistry()
	Register(registry, passWrapper{}, newMemIndex())

	for _, typ := range []string{
		campaigns.TypeCreated, campaigns.TypeActivated, campaigns.TypeCompleted, campaigns.TypeCancelled,
	} {
		require.Len(t, registry.HandlersFor(typ), 1, typ)
	}
}

type foreignFact struct {
	events.Base
}

func (foreignFact) EventType() string { return "payment.settled" }
