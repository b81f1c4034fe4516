package store

import (
	"context"
	"errors"

	"dripmail/models"

	"gorm.io/gorm"
)

// SenderStore resolves sending accounts and their daily quota.
type SenderStore struct {
	db *gorm.DB
}

func NewSenderStore(db *gorm.DB) *SenderStore {
	return &SenderStore{db: db}
}

func (s *SenderStore) SenderByID(ctx context.Context, id uint) (*models.Sender, error) {
	var sender models.Sender
	err := s.db.WithContext(ctx).First(&sender, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sender, nil
}

// ConsumeQuota increments sent_today only while capacity remains, so
// concurrent workers cannot push a sender past its daily limit.
func (s *SenderStore) ConsumeQuota(ctx context.Context, senderID uint) (bool, error) {
	res := s.db.WithContext(ctx).
		Model(&models.Sender{}).
		Where("id = ? AND (daily_limit <= 0 OR sent_today < daily_limit)", senderID).
		Updates(map[string]interface{}{
			"sent_today": gorm.Expr("sent_today + ?", 1),
			"total_sent": gorm.Expr("total_sent + ?", 1),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ActiveWithIMAP lists senders the reply worker should poll.
func (s *SenderStore) ActiveWithIMAP(ctx context.Context) ([]models.Sender, error) {
	var senders []models.Sender
	err := s.db.WithContext(ctx).
		Where("is_active = ? AND imap_host IS NOT NULL AND imap_host != ''", true).
		Find(&senders).Error
	if err != nil {
		return nil, err
	}
	return senders, nil
}

// ResetDailyCounters zeroes every sender's sent_today counter.
func (s *SenderStore) ResetDailyCounters(ctx context.Context) error {
	return s.db.WithContext(ctx).
		Model(&models.Sender{}).
		Where("sent_today > 0").
		Update("sent_today", 0).Error
}
