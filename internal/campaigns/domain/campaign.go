package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/adverra/marketplace/pkg/events"
)

type Status string

const (
	StatusDraft     Status = "draft"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

var (
	ErrInvalidTransition = errors.New("invalid campaign status transition")
	ErrInvalidCampaign   = errors.New("invalid campaign")
)

// Campaign is a brand/blogger collaboration. Mutations raise facts into the
// embedded buffer; the application service drains the buffer after the
// repository committed both the state change and the outbox rows.
type Campaign struct {
	events.Raiser

	ID          uuid.UUID
	BrandID     string
	BloggerID   string
	Title       string
	BudgetCents int64
	Status      Status
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func New(brandID, bloggerID, title string, budgetCents int64) (*Campaign, error) {
	if brandID == "" || bloggerID == "" || title == "" {
		return nil, fmt.Errorf("%w: brand, blogger and title are required", ErrInvalidCampaign)
	}
	if budgetCents <= 0 {
		return nil, fmt.Errorf("%w: budget must be positive", ErrInvalidCampaign)
	}

	now := time.Now().UTC()
	c := &Campaign{
		ID:          uuid.Must(uuid.NewV7()),
		BrandID:     brandID,
		BloggerID:   bloggerID,
		Title:       title,
		BudgetCents: budgetCents,
		Status:      StatusDraft,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	c.Raise(CampaignCreated{
		Base:        events.NewBase(),
		CampaignID:  c.ID,
		BrandID:     brandID,
		BloggerID:   bloggerID,
		Title:       title,
		BudgetCents: budgetCents,
	})
	return c, nil
}

func (c *Campaign) Activate() error {
	if c.Status != StatusDraft {
		return fmt.Errorf("%w: %s -> active", ErrInvalidTransition, c.Status)
	}
	c.Status = StatusActive
	c.UpdatedAt = time.Now().UTC()
	c.Raise(CampaignActivated{
		Base:       events.NewBase(),
		CampaignID: c.ID,
		BrandID:    c.BrandID,
		BloggerID:  c.BloggerID,
	})
	return nil
}

func (c *Campaign) Complete() error {
	if c.Status != StatusActive {
		return fmt.Errorf("%w: %s -> completed", ErrInvalidTransition, c.Status)
	}
	c.Status = StatusCompleted
	c.UpdatedAt = time.Now().UTC()
	c.Raise(CampaignCompleted{
		Base:       events.NewBase(),
		CampaignID: c.ID,
		BrandID:    c.BrandID,
		BloggerID:  c.BloggerID,
	})
	return nil
}

func (c *Campaign) Cancel(reason string) error {
	if c.Status == StatusCompleted || c.Status == StatusCancelled {
		return fmt.Errorf("%w: %s -> cancelled", ErrInvalidTransition, c.Status)
	}
	c.Status = StatusCancelled
	c.UpdatedAt = time.Now().UTC()
	c.Raise(CampaignCancelled{
		Base:       events.NewBase(),
		CampaignID: c.ID,
		BrandID:    c.BrandID,
		BloggerID:  c.BloggerID,
		Reason:     reason,
	})
	return nil
}
