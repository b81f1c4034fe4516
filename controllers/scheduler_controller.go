package controller

import (
	"log"

	"dripmail/models"
	"dripmail/scheduler"
	"dripmail/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type SchedulerController struct {
	DB       *gorm.DB
	Loop     *scheduler.Loop
	Reporter *scheduler.StatusReporter
	Hub      *ProgressHub
	Logger   *log.Logger
}

func NewSchedulerController(db *gorm.DB, loop *scheduler.Loop, reporter *scheduler.StatusReporter, hub *ProgressHub, logger *log.Logger) *SchedulerController {
	return &SchedulerController{
		DB:       db,
		Loop:     loop,
		Reporter: reporter,
		Hub:      hub,
		Logger:   logger,
	}
}

// TriggerPass forces one scheduler pass immediately. The pass runs
// synchronously so the caller gets real counters back; overlapping with a
// ticker-driven pass is safe by design.
func (sc *SchedulerController) TriggerPass(c *fiber.Ctx) error {
	var input struct {
		DryRun bool `json:"dry_run"`
	}
	// Empty body means a live run.
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&input); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request body",
			})
		}
	}

	sc.Logger.Printf("manual pass triggered (dry_run=%t)", input.DryRun)

	summary, err := sc.Loop.RunPass(c.Context(), input.DryRun)
	if err != nil {
		utils.LogError("scheduler_pass_failed", err, map[string]interface{}{
			"dry_run": input.DryRun,
		})
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Scheduler pass failed",
		})
	}

	sc.Hub.Broadcast(&summary)
	utils.LogEvent("scheduler_pass_completed", map[string]interface{}{
		"dry_run":   summary.DryRun,
		"checked":   summary.Checked,
		"sent":      summary.Sent,
		"waiting":   summary.Waiting,
		"completed": summary.Completed,
		"errors":    summary.Errors,
	})

	return c.JSON(fiber.Map{
		"message": "Scheduler pass completed",
		"summary": summary,
	})
}

// GetSendingStatus returns the dashboard view of one campaign: contacts
// due now, sends upcoming within 24 hours, and recent activity.
func (sc *SchedulerController) GetSendingStatus(c *fiber.Ctx) error {
	campaignID := c.Params("id")

	var campaign models.Campaign
	if err := sc.DB.First(&campaign, campaignID).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Campaign not found",
		})
	}

	status, err := sc.Reporter.CampaignStatus(c.Context(), &campaign)
	if err != nil {
		utils.LogError("sending_status_failed", err, map[string]interface{}{
			"campaign_id": campaign.ID,
		})
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to compute sending status",
		})
	}

	return c.JSON(fiber.Map{
		"campaign_id":     campaign.ID,
		"campaign_status": campaign.Status,
		"sending":         status,
	})
}
