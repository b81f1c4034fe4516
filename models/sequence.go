package models

import (
	"time"

	"gorm.io/gorm"
)

// Sequence represents an ordered email sequence attached to a campaign
type Sequence struct {
	gorm.Model
	CampaignID uint `gorm:"not null;index" json:"campaign_id"`
	SenderID   uint `gorm:"not null;index" json:"sender_id"`

	Name     string `gorm:"not null" json:"name"`
	IsActive bool   `gorm:"default:true" json:"is_active"`

	// Relations
	Steps []SequenceStep `gorm:"foreignKey:SequenceID" json:"steps,omitempty"`
}

// StepByOrder returns the step with the given 1-based order, or nil.
// Step orders are densely numbered 1..N; a miss means the sequence
// was edited out from under a contact.
func (s *Sequence) StepByOrder(order int) *SequenceStep {
	for i := range s.Steps {
		if s.Steps[i].StepOrder == order {
			return &s.Steps[i]
		}
	}
	return nil
}

// SequenceStep represents one email in a sequence with its delay
type SequenceStep struct {
	gorm.Model
	SequenceID uint `gorm:"not null;index" json:"sequence_id"`
	TemplateID uint `gorm:"not null;index" json:"template_id"`

	StepOrder    int `gorm:"not null" json:"step_order"` // 1-based, no gaps
	DelayDays    int `gorm:"not null;default:0" json:"delay_days"`
	DelayHours   int `gorm:"not null;default:0" json:"delay_hours"`
	DelayMinutes int `gorm:"not null;default:0" json:"delay_minutes"`

	// Tracking
	SentCount int `gorm:"default:0" json:"sent_count"`

	// Relations
	Template Template `json:"-"`
}

// Delay converts the step's day/hour/minute triple into a duration.
func (st *SequenceStep) Delay() time.Duration {
	return time.Duration(st.DelayDays)*24*time.Hour +
		time.Duration(st.DelayHours)*time.Hour +
		time.Duration(st.DelayMinutes)*time.Minute
}

// Template represents the content an individual step points at
type Template struct {
	gorm.Model

	Name        string `gorm:"not null" json:"name"`
	Subject     string `gorm:"not null" json:"subject"`
	HTMLContent string `gorm:"type:text" json:"html_content"`
	TextContent string `gorm:"type:text" json:"text_content"`
	IsActive    bool   `gorm:"default:true" json:"is_active"`
}
