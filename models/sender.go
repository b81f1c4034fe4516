package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	EncryptionStartTLS = "starttls"
	EncryptionSSL      = "ssl"
	EncryptionNone     = "none"
)

const (
	TestStatusUntested = "untested"
	TestStatusPassed   = "passed"
	TestStatusFailed   = "failed"
)

// Sender represents an outgoing email account used by sequences
type Sender struct {
	gorm.Model

	Name      string `gorm:"not null" json:"name"`
	FromName  string `json:"from_name"`
	FromEmail string `gorm:"not null;index" json:"from_email"`

	// SMTP settings
	SMTPHost     string `json:"smtp_host"`
	SMTPPort     int    `gorm:"default:587" json:"smtp_port"`
	SMTPUsername string `json:"smtp_username"`
	SMTPPassword string `json:"-"`
	Encryption   string `gorm:"default:'starttls'" json:"encryption"` // starttls, ssl, none

	// IMAP settings, used by the reply worker
	IMAPHost     string `json:"imap_host"`
	IMAPPort     int    `gorm:"default:993" json:"imap_port"`
	IMAPUsername string `json:"imap_username"`
	IMAPPassword string `json:"-"`

	// Status
	IsActive     bool       `gorm:"default:true" json:"is_active"`
	TestStatus   string     `gorm:"default:'untested'" json:"test_status"`
	LastTestedAt *time.Time `json:"last_tested_at"`
	LastError    string     `json:"last_error"`

	// Daily capacity accounting, reset at midnight
	DailyLimit int `gorm:"default:500" json:"daily_limit"`
	SentToday  int `gorm:"default:0" json:"sent_today"`
	TotalSent  int `gorm:"default:0" json:"total_sent"`
}

// HasCapacity reports whether the sender may still send today.
func (s *Sender) HasCapacity() bool {
	return s.DailyLimit <= 0 || s.SentToday < s.DailyLimit
}

// Sanitized returns the API representation of the account. Passwords never
// leave this process, so they are omitted entirely.
func (s *Sender) Sanitized() map[string]interface{} {
	return map[string]interface{}{
		"id":             s.ID,
		"name":           s.Name,
		"from_name":      s.FromName,
		"from_email":     s.FromEmail,
		"smtp_host":      s.SMTPHost,
		"smtp_port":      s.SMTPPort,
		"smtp_username":  s.SMTPUsername,
		"imap_host":      s.IMAPHost,
		"imap_port":      s.IMAPPort,
		"encryption":     s.Encryption,
		"is_active":      s.IsActive,
		"test_status":    s.TestStatus,
		"last_tested_at": s.LastTestedAt,
		"last_error":     s.LastError,
		"daily_limit":    s.DailyLimit,
		"sent_today":     s.SentToday,
		"total_sent":     s.TotalSent,
	}
}
