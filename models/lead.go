package models

import (
	"time"

	"gorm.io/gorm"
)

// Lead represents a single contact/recipient
type Lead struct {
	gorm.Model

	Email     string `gorm:"not null;index" json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Company   string `json:"company"`
	Position  string `json:"position"`

	// Status
	IsBounced      bool `gorm:"default:false" json:"is_bounced"`
	IsUnsubscribed bool `gorm:"default:false" json:"is_unsubscribed"`
	IsDoNotContact bool `gorm:"default:false" json:"is_do_not_contact"`

	// Metadata
	Source      string     `json:"source"` // manual, csv, api
	LastContact *time.Time `json:"last_contact"`

	// Relations
	Enrollments []CampaignContact `gorm:"foreignKey:LeadID" json:"enrollments,omitempty"`
}

// Contactable reports whether this lead may receive campaign email at all.
func (l *Lead) Contactable() bool {
	return !l.IsBounced && !l.IsUnsubscribed && !l.IsDoNotContact
}
