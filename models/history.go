package models

import (
	"time"

	"gorm.io/gorm"
)

// Send history statuses. The "successful" subset is what the scheduler's
// idempotency check looks for; pending/failed rows are retryable attempts
// and may coexist with a later success.
const (
	SendStatusPending   = "pending"
	SendStatusSent      = "sent"
	SendStatusFailed    = "failed"
	SendStatusDelivered = "delivered"
	SendStatusOpened    = "opened"
	SendStatusClicked   = "clicked"
	SendStatusBounced   = "bounced"
)

// SuccessfulSendStatuses lists the statuses that count as an email having
// actually gone out for a (campaign, lead, template) triple.
var SuccessfulSendStatuses = []string{
	SendStatusSent,
	SendStatusDelivered,
	SendStatusOpened,
	SendStatusClicked,
}

// EmailSendHistory is the append-only ledger of dispatch attempts.
// Rows are immutable once written except for tracking upgrades
// (sent -> delivered/opened/clicked) keyed by MessageID.
type EmailSendHistory struct {
	gorm.Model
	CampaignID     uint `gorm:"not null;index" json:"campaign_id"`
	LeadID         uint `gorm:"not null;index" json:"lead_id"`
	TemplateID     uint `gorm:"not null;index" json:"template_id"`
	SequenceStepID uint `gorm:"index" json:"sequence_step_id"`
	SenderID       uint `gorm:"index" json:"sender_id"`

	MessageID    string     `gorm:"index" json:"message_id"`
	Status       string     `gorm:"not null;default:'pending';index" json:"status"`
	SentAt       *time.Time `json:"sent_at"` // nil until a transport attempt completed
	ErrorMessage string     `json:"error_message"`

	// Relations
	Campaign Campaign `json:"-"`
	Lead     Lead     `json:"-"`
	Template Template `json:"-"`
}
