package store

import (
	"context"
	"errors"

	"dripmail/models"

	"gorm.io/gorm"
)

// SequenceStore resolves sequence definitions with their steps ordered.
type SequenceStore struct {
	db *gorm.DB
}

func NewSequenceStore(db *gorm.DB) *SequenceStore {
	return &SequenceStore{db: db}
}

func (s *SequenceStore) SequenceByID(ctx context.Context, id uint) (*models.Sequence, error) {
	var seq models.Sequence
	err := s.db.WithContext(ctx).
		Preload("Steps", func(db *gorm.DB) *gorm.DB {
			return db.Order("step_order ASC")
		}).
		First(&seq, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &seq, nil
}

// FirstActiveSequence picks the oldest active sequence of a campaign,
// used to auto-bind contacts that were enrolled without one.
func (s *SequenceStore) FirstActiveSequence(ctx context.Context, campaignID uint) (*models.Sequence, error) {
	var seq models.Sequence
	err := s.db.WithContext(ctx).
		Preload("Steps", func(db *gorm.DB) *gorm.DB {
			return db.Order("step_order ASC")
		}).
		Where("campaign_id = ? AND is_active = ?", campaignID, true).
		Order("id ASC").
		First(&seq).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &seq, nil
}

func (s *SequenceStore) IncrementStepSent(ctx context.Context, stepID uint) error {
	return s.db.WithContext(ctx).
		Model(&models.SequenceStep{}).
		Where("id = ?", stepID).
		Update("sent_count", gorm.Expr("sent_count + ?", 1)).Error
}
