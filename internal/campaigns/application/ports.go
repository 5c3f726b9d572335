package application

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/adverra/marketplace/internal/campaigns/domain"
	"github.com/adverra/marketplace/pkg/events"
)

// ErrNotFound reports an unknown campaign id.
var ErrNotFound = errors.New("campaign not found")

// Repository persists a campaign together with its raised facts: Save must
// commit the aggregate rows and the outbox envelopes in one transaction.
type Repository interface {
	Save(ctx context.Context, c *domain.Campaign) error
	Get(ctx context.Context, id uuid.UUID) (*domain.Campaign, error)
}

// LocalDispatcher delivers facts to in-process handlers after commit.
type LocalDispatcher interface {
	Dispatch(ctx context.Context, facts []events.Event) error
}

// AuditLog records every campaign fact applied locally.
type AuditLog interface {
	Append(ctx context.Context, campaignID, eventID uuid.UUID, eventType string) error
}

// Wrapper decorates a handler with its at-most-once guarantee before it is
// registered anywhere.
type Wrapper interface {
	Wrap(handlerKey string, next events.Handler) events.Handler
}
