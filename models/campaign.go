package models

import (
	"time"

	"gorm.io/gorm"
)

// Campaign statuses. Only active campaigns are picked up by the scheduler.
const (
	CampaignStatusDraft     = "draft"
	CampaignStatusActive    = "active"
	CampaignStatusPaused    = "paused"
	CampaignStatusCompleted = "completed"
)

// Campaign represents an outreach campaign that owns sequences and contacts
type Campaign struct {
	gorm.Model

	Name        string `gorm:"not null" json:"name"`
	Description string `json:"description"`

	// Scheduling
	Status      string     `gorm:"default:'draft';index" json:"status"` // draft, active, paused, completed
	StartDate   *time.Time `json:"start_date"`
	StartedAt   *time.Time `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at"`

	// Statistics (denormalized for performance)
	TotalContacts int `gorm:"default:0" json:"total_contacts"`
	SentCount     int `gorm:"default:0" json:"sent_count"`
	ReplyCount    int `gorm:"default:0" json:"reply_count"`

	// Relations
	Sequences []Sequence        `gorm:"foreignKey:CampaignID" json:"sequences,omitempty"`
	Contacts  []CampaignContact `gorm:"foreignKey:CampaignID" json:"contacts,omitempty"`
}

// IsActive reports whether the scheduler should evaluate this campaign.
func (c *Campaign) IsActive() bool {
	return c.Status == CampaignStatusActive
}
