package controller

import (
	"log"
	"time"

	"dripmail/models"
	"dripmail/store"
	"dripmail/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type CampaignController struct {
	DB       *gorm.DB
	Contacts *store.ContactStore
	Logger   *log.Logger
}

func NewCampaignController(db *gorm.DB, contacts *store.ContactStore, logger *log.Logger) *CampaignController {
	return &CampaignController{DB: db, Contacts: contacts, Logger: logger}
}

type campaignInput struct {
	Name        string     `json:"name" validate:"required,min=2,max=200"`
	Description string     `json:"description"`
	StartDate   *time.Time `json:"start_date"`
}

func (cc *CampaignController) CreateCampaign(c *fiber.Ctx) error {
	var input campaignInput
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

	campaign := models.Campaign{
		Name:        input.Name,
		Description: input.Description,
		Status:      models.CampaignStatusDraft,
		StartDate:   input.StartDate,
	}
	if err := cc.DB.Create(&campaign).Error; err != nil {
		utils.LogError("campaign_create_failed", err, nil)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create campaign",
		})
	}

	cc.Logger.Printf("campaign %d created: %s", campaign.ID, campaign.Name)
	return c.Status(fiber.StatusCreated).JSON(campaign)
}

func (cc *CampaignController) GetCampaigns(c *fiber.Ctx) error {
	var campaigns []models.Campaign
	if err := cc.DB.Order("created_at DESC").Find(&campaigns).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch campaigns",
		})
	}
	return c.JSON(campaigns)
}

func (cc *CampaignController) GetCampaign(c *fiber.Ctx) error {
	var campaign models.Campaign
	if err := cc.DB.First(&campaign, c.Params("id")).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Campaign not found",
		})
	}

	var contactCount, completedCount int64
	cc.DB.Model(&models.CampaignContact{}).Where("campaign_id = ?", campaign.ID).Count(&contactCount)
	cc.DB.Model(&models.CampaignContact{}).
		Where("campaign_id = ? AND completed = ?", campaign.ID, true).
		Count(&completedCount)

	return c.JSON(fiber.Map{
		"campaign":           campaign,
		"contact_count":      contactCount,
		"completed_contacts": completedCount,
	})
}

func (cc *CampaignController) UpdateCampaign(c *fiber.Ctx) error {
	var campaign models.Campaign
	if err := cc.DB.First(&campaign, c.Params("id")).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Campaign not found",
		})
	}

	var input campaignInput
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

	campaign.Name = input.Name
	campaign.Description = input.Description
	campaign.StartDate = input.StartDate
	if err := cc.DB.Save(&campaign).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update campaign",
		})
	}
	return c.JSON(campaign)
}

// ActivateCampaign moves a draft or paused campaign into the scheduler's
// working set. A campaign cannot activate without an active sequence.
func (cc *CampaignController) ActivateCampaign(c *fiber.Ctx) error {
	var campaign models.Campaign
	if err := cc.DB.First(&campaign, c.Params("id")).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Campaign not found",
		})
	}
	if campaign.Status == models.CampaignStatusCompleted {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Completed campaigns cannot be reactivated",
		})
	}

	var sequenceCount int64
	cc.DB.Model(&models.Sequence{}).
		Where("campaign_id = ? AND is_active = ?", campaign.ID, true).
		Count(&sequenceCount)
	if sequenceCount == 0 {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error": "Campaign has no active sequence",
		})
	}

	updates := map[string]interface{}{"status": models.CampaignStatusActive}
	if campaign.StartedAt == nil {
		updates["started_at"] = time.Now()
	}
	if err := cc.DB.Model(&campaign).Updates(updates).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to activate campaign",
		})
	}

	utils.LogEvent("campaign_activated", map[string]interface{}{"campaign_id": campaign.ID})
	return c.JSON(fiber.Map{"message": "Campaign activated", "status": models.CampaignStatusActive})
}

func (cc *CampaignController) PauseCampaign(c *fiber.Ctx) error {
	var campaign models.Campaign
	if err := cc.DB.First(&campaign, c.Params("id")).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Campaign not found",
		})
	}
	if campaign.Status != models.CampaignStatusActive {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Only active campaigns can be paused",
		})
	}

	if err := cc.DB.Model(&campaign).Update("status", models.CampaignStatusPaused).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to pause campaign",
		})
	}
	return c.JSON(fiber.Map{"message": "Campaign paused", "status": models.CampaignStatusPaused})
}

func (cc *CampaignController) DeleteCampaign(c *fiber.Ctx) error {
	var campaign models.Campaign
	if err := cc.DB.First(&campaign, c.Params("id")).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Campaign not found",
		})
	}
	if campaign.Status == models.CampaignStatusActive {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Pause the campaign before deleting it",
		})
	}
	if err := cc.DB.Delete(&campaign).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete campaign",
		})
	}
	return c.JSON(fiber.Map{"message": "Campaign deleted"})
}

// AddContacts enrolls leads into a campaign. Leads already enrolled are
// counted as skipped so the endpoint stays safe to retry with the same
// payload.
func (cc *CampaignController) AddContacts(c *fiber.Ctx) error {
	var campaign models.Campaign
	if err := cc.DB.First(&campaign, c.Params("id")).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Campaign not found",
		})
	}

	var input struct {
		LeadIDs []uint `json:"lead_ids" validate:"required,min=1"`
	}
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

	enrolled, skipped := 0, 0
	for _, leadID := range input.LeadIDs {
		var lead models.Lead
		if err := cc.DB.First(&lead, leadID).Error; err != nil {
			skipped++
			continue
		}
		if !lead.Contactable() {
			skipped++
			continue
		}

		existing, err := cc.Contacts.ByCampaignAndLead(c.Context(), campaign.ID, leadID)
		if err != nil {
			utils.LogError("contact_lookup_failed", err, map[string]interface{}{
				"campaign_id": campaign.ID,
				"lead_id":     leadID,
			})
			skipped++
			continue
		}
		if existing != nil {
			skipped++
			continue
		}

		contact := models.CampaignContact{
			CampaignID: campaign.ID,
			LeadID:     leadID,
			StartedAt:  time.Now(),
		}
		if err := cc.DB.Create(&contact).Error; err != nil {
			skipped++
			continue
		}
		enrolled++
	}

	cc.DB.Model(&campaign).Update("total_contacts", gorm.Expr("total_contacts + ?", enrolled))

	cc.Logger.Printf("campaign %d: enrolled %d contacts, skipped %d", campaign.ID, enrolled, skipped)
	return c.JSON(fiber.Map{
		"enrolled": enrolled,
		"skipped":  skipped,
	})
}

// BackfillContacts enrolls every contactable lead that has no enrollment
// row in this campaign yet. Covers leads imported after the campaign's
// initial enrollment; safe to run repeatedly.
func (cc *CampaignController) BackfillContacts(c *fiber.Ctx) error {
	var campaign models.Campaign
	if err := cc.DB.First(&campaign, c.Params("id")).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Campaign not found",
		})
	}

	created, err := cc.Contacts.BackfillMissing(c.Context(), campaign.ID)
	if err != nil {
		utils.LogError("contact_backfill_failed", err, map[string]interface{}{
			"campaign_id": campaign.ID,
		})
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to backfill contacts",
		})
	}

	if created > 0 {
		cc.DB.Model(&campaign).Update("total_contacts", gorm.Expr("total_contacts + ?", created))
	}

	utils.LogEvent("contacts_backfilled", map[string]interface{}{
		"campaign_id": campaign.ID,
		"created":     created,
	})
	cc.Logger.Printf("campaign %d: backfilled %d contacts", campaign.ID, created)
	return c.JSON(fiber.Map{"created": created})
}

// HandleReplyWebhook records an inbound reply for a lead and halts their
// sequence. Repeated deliveries of the same webhook are harmless.
func (cc *CampaignController) HandleReplyWebhook(c *fiber.Ctx) error {
	var campaign models.Campaign
	if err := cc.DB.First(&campaign, c.Params("id")).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Campaign not found",
		})
	}

	var input struct {
		LeadID    uint       `json:"lead_id"`
		LeadEmail string     `json:"lead_email"`
		RepliedAt *time.Time `json:"replied_at"`
	}
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	leadID := input.LeadID
	if leadID == 0 && input.LeadEmail != "" {
		var lead models.Lead
		if err := cc.DB.Where("email = ?", input.LeadEmail).First(&lead).Error; err != nil {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Lead not found",
			})
		}
		leadID = lead.ID
	}
	if leadID == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "lead_id or lead_email is required",
		})
	}

	contact, err := cc.Contacts.ByCampaignAndLead(c.Context(), campaign.ID, leadID)
	if err != nil || contact == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Lead is not enrolled in this campaign",
		})
	}

	repliedAt := time.Now()
	if input.RepliedAt != nil {
		repliedAt = *input.RepliedAt
	}

	if contact.Replied {
		return c.JSON(fiber.Map{"message": "Reply already recorded"})
	}

	if err := cc.Contacts.MarkReplied(c.Context(), contact.ID, repliedAt); err != nil {
		utils.LogError("reply_record_failed", err, map[string]interface{}{
			"campaign_id": campaign.ID,
			"contact_id":  contact.ID,
		})
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to record reply",
		})
	}
	cc.DB.Model(&campaign).Update("reply_count", gorm.Expr("reply_count + ?", 1))

	utils.LogEvent("reply_recorded", map[string]interface{}{
		"campaign_id": campaign.ID,
		"lead_id":     leadID,
	})
	return c.JSON(fiber.Map{"message": "Reply recorded"})
}
