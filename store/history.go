package store

import (
	"context"
	"errors"
	"time"

	"dripmail/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// pendingClaimWindow is how long a pending ledger entry blocks a new claim
// for the same (campaign, lead, template). Entries older than this belong
// to a run that died mid-dispatch and must not block retries forever.
const pendingClaimWindow = 15 * time.Minute

// HistoryStore is the GORM-backed send history ledger.
type HistoryStore struct {
	db *gorm.DB
}

func NewHistoryStore(db *gorm.DB) *HistoryStore {
	return &HistoryStore{db: db}
}

// HasSuccessfulSend reports whether a successful entry exists for the
// (campaign, lead, template) triple.
func (s *HistoryStore) HasSuccessfulSend(ctx context.Context, campaignID, leadID, templateID uint) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.EmailSendHistory{}).
		Where("campaign_id = ? AND lead_id = ? AND template_id = ?", campaignID, leadID, templateID).
		Where("status IN ?", models.SuccessfulSendStatuses).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ClaimPending inserts the pending entry unless another runner already
// claimed or completed this send. The enrollment row is locked for the
// duration of the check-and-insert only; the lock is released before any
// dispatch happens.
func (s *HistoryStore) ClaimPending(ctx context.Context, entry *models.EmailSendHistory) (bool, error) {
	claimed := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Serialize claims for one contact on its enrollment row.
		var contact models.CampaignContact
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("campaign_id = ? AND lead_id = ?", entry.CampaignID, entry.LeadID).
			First(&contact).Error; err != nil {
			return err
		}

		var count int64
		err := tx.Model(&models.EmailSendHistory{}).
			Where("campaign_id = ? AND lead_id = ? AND template_id = ?", entry.CampaignID, entry.LeadID, entry.TemplateID).
			Where("(status IN ? OR (status = ? AND created_at > ?))",
				models.SuccessfulSendStatuses, models.SendStatusPending, time.Now().Add(-pendingClaimWindow)).
			Count(&count).Error
		if err != nil {
			return err
		}
		if count > 0 {
			return nil
		}

		if err := tx.Create(entry).Error; err != nil {
			return err
		}
		claimed = true
		return nil
	})
	return claimed, err
}

// MarkSent upgrades a claimed pending entry to sent.
func (s *HistoryStore) MarkSent(ctx context.Context, entryID uint, sentAt time.Time) error {
	return s.db.WithContext(ctx).
		Model(&models.EmailSendHistory{}).
		Where("id = ?", entryID).
		Updates(map[string]interface{}{
			"status":  models.SendStatusSent,
			"sent_at": sentAt,
		}).Error
}

// MarkFailed records the transport error on a claimed pending entry.
func (s *HistoryStore) MarkFailed(ctx context.Context, entryID uint, errMsg string) error {
	return s.db.WithContext(ctx).
		Model(&models.EmailSendHistory{}).
		Where("id = ?", entryID).
		Updates(map[string]interface{}{
			"status":        models.SendStatusFailed,
			"error_message": errMsg,
		}).Error
}

// PendingCount counts retryable pending entries for a campaign.
func (s *HistoryStore) PendingCount(ctx context.Context, campaignID uint) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.EmailSendHistory{}).
		Where("campaign_id = ? AND status = ?", campaignID, models.SendStatusPending).
		Count(&count).Error
	return count, err
}

// SentSince counts successful sends for a campaign since the given time.
func (s *HistoryStore) SentSince(ctx context.Context, campaignID uint, since time.Time) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.EmailSendHistory{}).
		Where("campaign_id = ? AND status IN ? AND sent_at >= ?", campaignID, models.SuccessfulSendStatuses, since).
		Count(&count).Error
	return count, err
}

// ByMessageID looks up the ledger entry an inbound reply or tracking hit
// refers to.
func (s *HistoryStore) ByMessageID(ctx context.Context, messageID string) (*models.EmailSendHistory, error) {
	var entry models.EmailSendHistory
	err := s.db.WithContext(ctx).
		Where("message_id = ?", messageID).
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// MarkOpened upgrades a sent or delivered entry to opened.
func (s *HistoryStore) MarkOpened(ctx context.Context, messageID string) error {
	return s.db.WithContext(ctx).
		Model(&models.EmailSendHistory{}).
		Where("message_id = ? AND status IN ?", messageID, []string{models.SendStatusSent, models.SendStatusDelivered}).
		Update("status", models.SendStatusOpened).Error
}

// MarkClicked upgrades an entry to clicked; a click implies an open.
func (s *HistoryStore) MarkClicked(ctx context.Context, messageID string) error {
	return s.db.WithContext(ctx).
		Model(&models.EmailSendHistory{}).
		Where("message_id = ? AND status IN ?", messageID,
			[]string{models.SendStatusSent, models.SendStatusDelivered, models.SendStatusOpened}).
		Update("status", models.SendStatusClicked).Error
}
