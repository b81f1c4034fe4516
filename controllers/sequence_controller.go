package controller

import (
	"log"

	"dripmail/models"
	"dripmail/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type SequenceController struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewSequenceController(db *gorm.DB, logger *log.Logger) *SequenceController {
	return &SequenceController{DB: db, Logger: logger}
}

type sequenceStepInput struct {
	TemplateID   uint `json:"template_id" validate:"required"`
	DelayDays    int  `json:"delay_days" validate:"min=0"`
	DelayHours   int  `json:"delay_hours" validate:"min=0,max=23"`
	DelayMinutes int  `json:"delay_minutes" validate:"min=0,max=59"`
}

type sequenceInput struct {
	Name     string              `json:"name" validate:"required,min=2,max=200"`
	SenderID uint                `json:"sender_id" validate:"required"`
	Steps    []sequenceStepInput `json:"steps" validate:"required,min=1,dive"`
}

// buildSteps renumbers the incoming steps from 1 in payload order. Client
// ordering is trusted; client numbering is not.
func buildSteps(sequenceID uint, inputs []sequenceStepInput) []models.SequenceStep {
	steps := make([]models.SequenceStep, 0, len(inputs))
	for i, in := range inputs {
		steps = append(steps, models.SequenceStep{
			SequenceID:   sequenceID,
			StepOrder:    i + 1,
			TemplateID:   in.TemplateID,
			DelayDays:    in.DelayDays,
			DelayHours:   in.DelayHours,
			DelayMinutes: in.DelayMinutes,
		})
	}
	return steps
}

// parseInput parses and validates the payload. On failure it writes the
// error response itself and reports false.
func (sc *SequenceController) parseInput(c *fiber.Ctx, input *sequenceInput) bool {
	if err := c.BodyParser(input); err != nil {
		_ = c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
		return false
	}
	if errs := utils.ValidateStruct(*input); len(errs) > 0 {
		_ = c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":  "Validation failed",
			"fields": errs,
		})
		return false
	}

	var sender models.Sender
	if err := sc.DB.First(&sender, input.SenderID).Error; err != nil {
		_ = c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error": "Sender not found",
		})
		return false
	}
	for _, step := range input.Steps {
		var template models.Template
		if err := sc.DB.First(&template, step.TemplateID).Error; err != nil {
			_ = c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
				"error":       "Template not found",
				"template_id": step.TemplateID,
			})
			return false
		}
	}
	return true
}

func (sc *SequenceController) CreateSequence(c *fiber.Ctx) error {
	var campaign models.Campaign
	if err := sc.DB.First(&campaign, c.Params("id")).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Campaign not found",
		})
	}

	var input sequenceInput
	if !sc.parseInput(c, &input) {
		return nil
	}

	sequence := models.Sequence{
		CampaignID: campaign.ID,
		SenderID:   input.SenderID,
		Name:       input.Name,
		IsActive:   true,
	}

	err := sc.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&sequence).Error; err != nil {
			return err
		}
		steps := buildSteps(sequence.ID, input.Steps)
		return tx.Create(&steps).Error
	})
	if err != nil {
		utils.LogError("sequence_create_failed", err, map[string]interface{}{
			"campaign_id": campaign.ID,
		})
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create sequence",
		})
	}

	sc.DB.Preload("Steps", func(db *gorm.DB) *gorm.DB {
		return db.Order("step_order ASC")
	}).First(&sequence, sequence.ID)

	sc.Logger.Printf("sequence %d created for campaign %d (%d steps)", sequence.ID, campaign.ID, len(input.Steps))
	return c.Status(fiber.StatusCreated).JSON(sequence)
}

// UpdateSequence replaces the step list wholesale. Contacts mid-sequence
// keep their current_step number and continue against the new steps.
func (sc *SequenceController) UpdateSequence(c *fiber.Ctx) error {
	var sequence models.Sequence
	if err := sc.DB.First(&sequence, c.Params("id")).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Sequence not found",
		})
	}

	var input sequenceInput
	if !sc.parseInput(c, &input) {
		return nil
	}

	err := sc.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&sequence).Updates(map[string]interface{}{
			"name":      input.Name,
			"sender_id": input.SenderID,
		}).Error; err != nil {
			return err
		}
		if err := tx.Where("sequence_id = ?", sequence.ID).Delete(&models.SequenceStep{}).Error; err != nil {
			return err
		}
		steps := buildSteps(sequence.ID, input.Steps)
		return tx.Create(&steps).Error
	})
	if err != nil {
		utils.LogError("sequence_update_failed", err, map[string]interface{}{
			"sequence_id": sequence.ID,
		})
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update sequence",
		})
	}

	sc.DB.Preload("Steps", func(db *gorm.DB) *gorm.DB {
		return db.Order("step_order ASC")
	}).First(&sequence, sequence.ID)

	return c.JSON(sequence)
}

func (sc *SequenceController) GetSequence(c *fiber.Ctx) error {
	var sequence models.Sequence
	if err := sc.DB.Preload("Steps", func(db *gorm.DB) *gorm.DB {
		return db.Order("step_order ASC")
	}).First(&sequence, c.Params("id")).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Sequence not found",
		})
	}

	var enrolled, completed int64
	sc.DB.Model(&models.CampaignContact{}).
		Where("sequence_id = ?", sequence.ID).
		Count(&enrolled)
	sc.DB.Model(&models.CampaignContact{}).
		Where("sequence_id = ? AND completed = ?", sequence.ID, true).
		Count(&completed)

	return c.JSON(fiber.Map{
		"sequence":           sequence,
		"enrolled_contacts":  enrolled,
		"completed_contacts": completed,
	})
}

func (sc *SequenceController) DeleteSequence(c *fiber.Ctx) error {
	var sequence models.Sequence
	if err := sc.DB.First(&sequence, c.Params("id")).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Sequence not found",
		})
	}

	var boundContacts int64
	sc.DB.Model(&models.CampaignContact{}).
		Where("sequence_id = ? AND completed = ? AND replied = ?", sequence.ID, false, false).
		Count(&boundContacts)
	if boundContacts > 0 {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error":    "Sequence still has contacts in flight",
			"contacts": boundContacts,
		})
	}

	err := sc.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("sequence_id = ?", sequence.ID).Delete(&models.SequenceStep{}).Error; err != nil {
			return err
		}
		return tx.Delete(&sequence).Error
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete sequence",
		})
	}
	return c.JSON(fiber.Map{"message": "Sequence deleted"})
}
