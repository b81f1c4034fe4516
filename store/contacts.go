package store

import (
	"context"
	"errors"
	"time"

	"dripmail/models"

	"gorm.io/gorm"
)

// ContactStore persists per-contact enrollment state. The claim transition
// lives here: a guarded UPDATE whose row count tells the caller whether it
// won the advance.
type ContactStore struct {
	db *gorm.DB
}

func NewContactStore(db *gorm.DB) *ContactStore {
	return &ContactStore{db: db}
}

// ActiveContacts returns enrollments that are neither completed nor
// replied, for leads that may still be contacted.
func (s *ContactStore) ActiveContacts(ctx context.Context, campaignID uint) ([]models.CampaignContact, error) {
	var contacts []models.CampaignContact
	err := s.db.WithContext(ctx).
		Joins("JOIN leads ON leads.id = campaign_contacts.lead_id AND leads.deleted_at IS NULL").
		Where("campaign_contacts.campaign_id = ?", campaignID).
		Where("campaign_contacts.completed = ? AND campaign_contacts.replied = ?", false, false).
		Where("leads.is_bounced = ? AND leads.is_unsubscribed = ? AND leads.is_do_not_contact = ?", false, false, false).
		Preload("Lead").
		Find(&contacts).Error
	if err != nil {
		return nil, err
	}
	return contacts, nil
}

// BindSequence assigns a sequence to a contact that has none yet. The
// guard keeps a concurrent binding from being overwritten.
func (s *ContactStore) BindSequence(ctx context.Context, contactID, sequenceID uint) error {
	return s.db.WithContext(ctx).
		Model(&models.CampaignContact{}).
		Where("id = ? AND sequence_id IS NULL", contactID).
		Update("sequence_id", sequenceID).Error
}

// ClaimAdvance applies the advance transition if and only if the persisted
// current_step still equals fromStep. When the advance reaches the final
// step the completed latch is set in the same UPDATE, so a sequence is
// complete the moment its last step is sent.
func (s *ContactStore) ClaimAdvance(ctx context.Context, contactID uint, fromStep int, sentAt time.Time, totalSteps int) (bool, error) {
	updates := map[string]interface{}{
		"current_step": fromStep + 1,
		"last_sent_at": sentAt,
	}
	if fromStep+1 >= totalSteps {
		updates["completed"] = true
		updates["completed_at"] = sentAt
	}

	res := s.db.WithContext(ctx).
		Model(&models.CampaignContact{}).
		Where("id = ? AND current_step = ? AND completed = ? AND replied = ?", contactID, fromStep, false, false).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// MarkCompleted idempotently latches the completed flag without advancing.
func (s *ContactStore) MarkCompleted(ctx context.Context, contactID uint) error {
	return s.db.WithContext(ctx).
		Model(&models.CampaignContact{}).
		Where("id = ? AND completed = ?", contactID, false).
		Updates(map[string]interface{}{
			"completed":    true,
			"completed_at": time.Now(),
		}).Error
}

// MarkReplied idempotently latches the replied flag. Once set the contact
// is never evaluated again, regardless of step state.
func (s *ContactStore) MarkReplied(ctx context.Context, contactID uint, at time.Time) error {
	return s.db.WithContext(ctx).
		Model(&models.CampaignContact{}).
		Where("id = ? AND replied = ?", contactID, false).
		Updates(map[string]interface{}{
			"replied":    true,
			"replied_at": at,
		}).Error
}

// BackfillMissing enrolls, at step 0, every contactable lead that has no
// enrollment row in the campaign yet. Returns how many rows were created;
// rows that lose a unique-index race are skipped, not failed.
func (s *ContactStore) BackfillMissing(ctx context.Context, campaignID uint) (int, error) {
	enrolled := s.db.Model(&models.CampaignContact{}).
		Select("lead_id").
		Where("campaign_id = ?", campaignID)

	var leads []models.Lead
	err := s.db.WithContext(ctx).
		Where("is_bounced = ? AND is_unsubscribed = ? AND is_do_not_contact = ?", false, false, false).
		Where("id NOT IN (?)", enrolled).
		Find(&leads).Error
	if err != nil {
		return 0, err
	}

	created := 0
	for i := range leads {
		contact := models.CampaignContact{
			CampaignID: campaignID,
			LeadID:     leads[i].ID,
			StartedAt:  time.Now(),
		}
		if err := s.db.WithContext(ctx).Create(&contact).Error; err != nil {
			continue
		}
		created++
	}
	return created, nil
}

// ByCampaignAndLead fetches the single enrollment row for a pair.
func (s *ContactStore) ByCampaignAndLead(ctx context.Context, campaignID, leadID uint) (*models.CampaignContact, error) {
	var contact models.CampaignContact
	err := s.db.WithContext(ctx).
		Where("campaign_id = ? AND lead_id = ?", campaignID, leadID).
		First(&contact).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &contact, nil
}
