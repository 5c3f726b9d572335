package domain

import (
	"github.com/google/uuid"

	"github.com/adverra/marketplace/pkg/events"
)

const (
	TypeCreated   = "campaign.created"
	TypeActivated = "campaign.activated"
	TypeCompleted = "campaign.completed"
	TypeCancelled = "campaign.cancelled"
)

type CampaignCreated struct {
	events.Base
	CampaignID  uuid.UUID `json:"campaign_id"`
	BrandID     string    `json:"brand_id"`
	BloggerID   string    `json:"blogger_id"`
	Title       string    `json:"title"`
	BudgetCents int64     `json:"budget_cents"`
}

func (CampaignCreated) EventType() string { return TypeCreated }

func (e CampaignCreated) PartitionKey() string { return e.CampaignID.String() }

type CampaignActivated struct {
	events.Base
	CampaignID uuid.UUID `json:"campaign_id"`
	BrandID    string    `json:"brand_id"`
	BloggerID  string    `json:"blogger_id"`
}

func (CampaignActivated) EventType() string { return TypeActivated }

func (e CampaignActivated) PartitionKey() string { return e.CampaignID.String() }

type CampaignCompleted struct {
	events.Base
	CampaignID uuid.UUID `json:"campaign_id"`
	BrandID    string    `json:"brand_id"`
	BloggerID  string    `json:"blogger_id"`
}

func (CampaignCompleted) EventType() string { return TypeCompleted }

func (e CampaignCompleted) PartitionKey() string { return e.CampaignID.String() }

type CampaignCancelled struct {
	events.Base
	CampaignID uuid.UUID `json:"campaign_id"`
	BrandID    string    `json:"brand_id"`
	BloggerID  string    `json:"blogger_id"`
	Reason     string    `json:"reason"`
}

func (CampaignCancelled) EventType() string { return TypeCancelled }

func (e CampaignCancelled) PartitionKey() string { return e.CampaignID.String() }

// RegisterEvents binds the campaign event schema into a codec. Every
// process that produces or consumes campaign facts calls this at startup.
func RegisterEvents(c *events.Codec) {
	c.Register(TypeCreated, events.JSON[CampaignCreated]())
	c.Register(TypeActivated, events.JSON[CampaignActivated]())
	c.Register(TypeCompleted, events.JSON[CampaignCompleted]())
	c.Register(TypeCancelled, events.JSON[CampaignCancelled]())
}
