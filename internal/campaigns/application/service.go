package application

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/adverra/marketplace/internal/campaigns/domain"
)

// Service is the unit-of-work coordinator for campaign commands: mutate the
// aggregate, commit state and envelopes together through the repository,
// clear the aggregate's buffer, then hand the facts to the local
// dispatcher.
//
// A dispatch failure surfaces to the caller even though the commit already
// happened; the durable envelope still reaches bus consumers regardless,
// and a retried command is absorbed by the ledger.
type Service struct {
	log   *slog.Logger
	repo  Repository
	local LocalDispatcher
}

func NewService(log *slog.Logger, repo Repository, local LocalDispatcher) *Service {
	return &Service{log: log, repo: repo, local: local}
}

type CreateCampaign struct {
	BrandID     string
	BloggerID   string
	Title       string
	BudgetCents int64
}

func (s *Service) Create(ctx context.Context, cmd CreateCampaign) (*domain.Campaign, error) {
	c, err := domain.New(cmd.BrandID, cmd.BloggerID, cmd.Title, cmd.BudgetCents)
	if err != nil {
		return nil, err
	}
	if err := s.commit(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) Activate(ctx context.Context, id uuid.UUID) error {
	return s.mutate(ctx, id, (*domain.Campaign).Activate)
}

func (s *Service) Complete(ctx context.Context, id uuid.UUID) error {
	return s.mutate(ctx, id, (*domain.Campaign).Complete)
}

func (s *Service) Cancel(ctx context.Context, id uuid.UUID, reason string) error {
	return s.mutate(ctx, id, func(c *domain.Campaign) error {
		return c.Cancel(reason)
	})
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*domain.Campaign, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) mutate(ctx context.Context, id uuid.UUID, mutation func(*domain.Campaign) error) error {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := mutation(c); err != nil {
		return err
	}
	return s.commit(ctx, c)
}

func (s *Service) commit(ctx context.Context, c *domain.Campaign) error {
	if err := s.repo.Save(ctx, c); err != nil {
		return err
	}

	facts := c.Events()
	c.ClearEvents()

	if err := s.local.Dispatch(ctx, facts); err != nil {
		s.log.Error("post-commit dispatch failed", "campaign_id", c.ID, "err", err)
		return err
	}
	return nil
}
