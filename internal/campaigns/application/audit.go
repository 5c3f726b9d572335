package application

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/adverra/marketplace/internal/campaigns/domain"
	"github.com/adverra/marketplace/pkg/events"
)

// AuditHandlerKey names the audit trail in the idempotency ledger.
const AuditHandlerKey = "campaigns.audit"

// AuditHandler appends one audit row per campaign fact. It consumes facts
// in process, right after the raising command commits, and runs inside the
// transaction the decorator opens around the ledger claim.
type AuditHandler struct {
	audit AuditLog
}

func NewAuditHandler(audit AuditLog) *AuditHandler {
	return &AuditHandler{audit: audit}
}

func (h *AuditHandler) Handle(ctx context.Context, e events.Event) error {
	campaignID, err := campaignOf(e)
	if err != nil {
		return err
	}
	return h.audit.Append(ctx, campaignID, e.EventID(), e.EventType())
}

func campaignOf(e events.Event) (uuid.UUID, error) {
	switch ev := e.(type) {
	case domain.CampaignCreated:
		return ev.CampaignID, nil
	case domain.CampaignActivated:
		return ev.CampaignID, nil
	case domain.CampaignCompleted:
		return ev.CampaignID, nil
	case domain.CampaignCancelled:
		return ev.CampaignID, nil
	default:
		return uuid.Nil, fmt.Errorf("%w: audit cannot handle %s", events.ErrPermanent, e.EventType())
	}
}

// RegisterLocal subscribes the module's in-process handlers. Handlers are
// wrapped before registration so the registry only ever holds decorated
// handlers.
func RegisterLocal(registry *events.Registry, wrapper Wrapper, audit AuditLog) {
	h := wrapper.Wrap(AuditHandlerKey, NewAuditHandler(audit))
	for _, t := range []string{domain.TypeCreated, domain.TypeActivated, domain.TypeCompleted, domain.TypeCancelled} {
		registry.Subscribe(t, AuditHandlerKey, h)
	}
}
