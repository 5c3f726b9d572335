package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adverra/marketplace/pkg/events"
)

type localEvent struct {
	events.Base
}

func (localEvent) EventType() string { return "campaign.created" }

func TestDispatchRunsHandlersInRegistrationOrder(t *testing.T) {
	reg := events.NewRegistry()
	var order []string
	appendKey := func(key string) events.Handler {
		return events.HandlerFunc(func(context.Context, events.Event) error {
			order = append(order, key)
			return nil
		})
	}
	reg.Subscribe("campaign.created", "campaigns.audit", appendKey("campaigns.audit"))
	reg.Subscribe("campaign.created", "campaigns.budget-check", appendKey("campaigns.budget-check"))

	d := NewDispatcher(slog.New(slog.DiscardHandler), reg)
	err := d.Dispatch(context.Background(), []events.Event{
		localEvent{Base: events.NewBase()},
		localEvent{Base: events.NewBase()},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"campaigns.audit", "campaigns.budget-check",
		"campaigns.audit", "campaigns.budget-check",
	}, order)
}

func TestDispatchPropagatesHandlerFailure(t *testing.T) {
	reg := events.NewRegistry()
	var afterFailure bool
	reg.Subscribe("campaign.created", "campaigns.audit", events.HandlerFunc(func(context.Context, events.Event) error {
		return errors.New("audit table locked")
	}))
	reg.Subscribe("campaign.created", "campaigns.budget-check", events.HandlerFunc(func(context.Context, events.Event) error {
		afterFailure = true
		return nil
	}))

	d := NewDispatcher(slog.New(slog.DiscardHandler), reg)
	err := d.Dispatch(context.Background(), []events.Event{localEvent{Base: events.NewBase()}})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "campaigns.audit")
	assert.False(t, afterFailure, "dispatch stops at the first failing handler")
}

func TestDispatchWithNoSubscribersIsANoOp(t *testing.T) {
	d := NewDispatcher(slog.New(slog.DiscardHandler), events.NewRegistry())
	assert.NoError(t, d.Dispatch(context.Background(), []events.Event{localEvent{Base: events.NewBase()}}))
}
