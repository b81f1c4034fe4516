package controller

import (
	"context"
	"fmt"
	"log"
	"time"

	"dripmail/models"
	"dripmail/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// testTimeout bounds the SMTP connection probe so a dead host cannot hang
// the request.
const testTimeout = 10 * time.Second

type SenderController struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewSenderController(db *gorm.DB, logger *log.Logger) *SenderController {
	return &SenderController{DB: db, Logger: logger}
}

type senderInput struct {
	Name         string `json:"name" validate:"required,min=2,max=200"`
	FromEmail    string `json:"from_email" validate:"required,email"`
	FromName     string `json:"from_name"`
	SMTPHost     string `json:"smtp_host" validate:"required,hostname"`
	SMTPPort     int    `json:"smtp_port" validate:"required,min=1,max=65535"`
	SMTPUsername string `json:"smtp_username" validate:"required"`
	SMTPPassword string `json:"smtp_password" validate:"required"`
	IMAPHost     string `json:"imap_host"`
	IMAPPort     int    `json:"imap_port"`
	IMAPUsername string `json:"imap_username"`
	IMAPPassword string `json:"imap_password"`
	Encryption   string `json:"encryption" validate:"omitempty,oneof=starttls ssl none"`
	DailyLimit   int    `json:"daily_limit" validate:"min=0"`
}

func (sc *SenderController) CreateSender(c *fiber.Ctx) error {
	var input senderInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if errs := utils.ValidateStruct(input); len(errs) > 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":  "Validation failed",
			"fields": errs,
		})
	}

	sender := senderFromInput(&input)
	if err := sc.DB.Create(sender).Error; err != nil {
		utils.LogError("sender_create_failed", err, nil)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create sender",
		})
	}
	return c.Status(fiber.StatusCreated).JSON(sender.Sanitized())
}

func senderFromInput(input *senderInput) *models.Sender {
	encryption := input.Encryption
	if encryption == "" {
		encryption = models.EncryptionStartTLS
	}
	return &models.Sender{
		Name:         input.Name,
		FromEmail:    input.FromEmail,
		FromName:     input.FromName,
		SMTPHost:     input.SMTPHost,
		SMTPPort:     input.SMTPPort,
		SMTPUsername: input.SMTPUsername,
		SMTPPassword: input.SMTPPassword,
		IMAPHost:     input.IMAPHost,
		IMAPPort:     input.IMAPPort,
		IMAPUsername: input.IMAPUsername,
		IMAPPassword: input.IMAPPassword,
		Encryption:   encryption,
		DailyLimit:   input.DailyLimit,
		IsActive:     true,
	}
}

func (sc *SenderController) GetSenders(c *fiber.Ctx) error {
	var senders []models.Sender
	if err := sc.DB.Order("id ASC").Find(&senders).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch senders",
		})
	}
	out := make([]fiber.Map, 0, len(senders))
	for i := range senders {
		out = append(out, senders[i].Sanitized())
	}
	return c.JSON(out)
}

func (sc *SenderController) UpdateSender(c *fiber.Ctx) error {
	var sender models.Sender
	if err := sc.DB.First(&sender, c.Params("id")).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Sender not found",
		})
	}

	var input senderInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if errs := utils.ValidateStruct(input); len(errs) > 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":  "Validation failed",
			"fields": errs,
		})
	}

	updated := senderFromInput(&input)
	updated.Model = sender.Model
	updated.IsActive = sender.IsActive
	// Credentials changed, so the previous test verdict no longer applies.
	updated.TestStatus = models.TestStatusUntested
	if err := sc.DB.Save(updated).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update sender",
		})
	}
	return c.JSON(updated.Sanitized())
}

func (sc *SenderController) DeleteSender(c *fiber.Ctx) error {
	var sender models.Sender
	if err := sc.DB.First(&sender, c.Params("id")).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Sender not found",
		})
	}

	var boundSequences int64
	sc.DB.Model(&models.Sequence{}).Where("sender_id = ?", sender.ID).Count(&boundSequences)
	if boundSequences > 0 {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Sender is still used by sequences",
		})
	}

	if err := sc.DB.Delete(&sender).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete sender",
		})
	}
	return c.JSON(fiber.Map{"message": "Sender deleted"})
}

// TestSender probes the SMTP connection and records the verdict on the
// account. The probe authenticates and disconnects without sending mail.
func (sc *SenderController) TestSender(c *fiber.Ctx) error {
	var sender models.Sender
	if err := sc.DB.First(&sender, c.Params("id")).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Sender not found",
		})
	}

	ctx, cancel := context.WithTimeout(c.Context(), testTimeout)
	defer cancel()

	testErr := utils.ProbeSMTP(ctx, &sender)

	now := time.Now()
	updates := map[string]interface{}{
		"last_tested_at": now,
	}
	if testErr != nil {
		updates["test_status"] = models.TestStatusFailed
		updates["last_error"] = testErr.Error()
	} else {
		updates["test_status"] = models.TestStatusPassed
		updates["last_error"] = ""
	}
	if err := sc.DB.Model(&sender).Updates(updates).Error; err != nil {
		utils.LogError("sender_test_save_failed", err, map[string]interface{}{
			"sender_id": sender.ID,
		})
	}

	if testErr != nil {
		utils.LogError("sender_test_failed", testErr, map[string]interface{}{
			"sender_id": sender.ID,
			"smtp_host": sender.SMTPHost,
		})
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"status": models.TestStatusFailed,
			"error":  fmt.Sprintf("SMTP connection failed: %v", testErr),
		})
	}

	sc.Logger.Printf("sender %d passed SMTP test (%s:%d)", sender.ID, sender.SMTPHost, sender.SMTPPort)
	return c.JSON(fiber.Map{
		"status":    models.TestStatusPassed,
		"tested_at": now,
	})
}
