package models

import (
	"time"

	"gorm.io/gorm"
)

// CampaignContact tracks one lead's progress through a campaign's sequence.
// There is exactly one row per (campaign, lead) pair. CurrentStep only ever
// moves forward, and Completed/Replied are one-way latches: the scheduler
// never resets them.
type CampaignContact struct {
	gorm.Model
	CampaignID uint  `gorm:"not null;index:idx_campaign_lead,unique" json:"campaign_id"`
	LeadID     uint  `gorm:"not null;index:idx_campaign_lead,unique" json:"lead_id"`
	SequenceID *uint `gorm:"index" json:"sequence_id"`

	CurrentStep int        `gorm:"not null;default:0" json:"current_step"` // 0 = not started
	LastSentAt  *time.Time `json:"last_sent_at"`
	StartedAt   time.Time  `gorm:"not null" json:"started_at"`

	Completed   bool       `gorm:"default:false;index" json:"completed"`
	CompletedAt *time.Time `json:"completed_at"`
	Replied     bool       `gorm:"default:false;index" json:"replied"`
	RepliedAt   *time.Time `json:"replied_at"`

	// Relations
	Campaign Campaign  `json:"-"`
	Lead     Lead      `json:"-"`
	Sequence *Sequence `json:"-"`
}

// Terminal reports whether the contact has left the sequence for good,
// either by finishing it or by replying.
func (cc *CampaignContact) Terminal() bool {
	return cc.Completed || cc.Replied
}

// NextStepNumber is the 1-based order of the step that would be sent next.
func (cc *CampaignContact) NextStepNumber() int {
	return cc.CurrentStep + 1
}
