package store

import (
	"context"

	"dripmail/models"

	"gorm.io/gorm"
)

// CampaignStore lists and updates campaigns for the scheduler.
type CampaignStore struct {
	db *gorm.DB
}

func NewCampaignStore(db *gorm.DB) *CampaignStore {
	return &CampaignStore{db: db}
}

func (s *CampaignStore) ActiveCampaigns(ctx context.Context) ([]models.Campaign, error) {
	var campaigns []models.Campaign
	err := s.db.WithContext(ctx).
		Where("status = ?", models.CampaignStatusActive).
		Find(&campaigns).Error
	if err != nil {
		return nil, err
	}
	return campaigns, nil
}

func (s *CampaignStore) IncrementSent(ctx context.Context, campaignID uint) error {
	return s.db.WithContext(ctx).
		Model(&models.Campaign{}).
		Where("id = ?", campaignID).
		Update("sent_count", gorm.Expr("sent_count + ?", 1)).Error
}

func (s *CampaignStore) IncrementReplies(ctx context.Context, campaignID uint) error {
	return s.db.WithContext(ctx).
		Model(&models.Campaign{}).
		Where("id = ?", campaignID).
		Update("reply_count", gorm.Expr("reply_count + ?", 1)).Error
}
