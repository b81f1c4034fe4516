package controller

import (
	"log"
	"strings"

	"dripmail/models"
	"dripmail/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type LeadController struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewLeadController(db *gorm.DB, logger *log.Logger) *LeadController {
	return &LeadController{DB: db, Logger: logger}
}

type leadInput struct {
	Email     string `json:"email" validate:"required,email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Company   string `json:"company"`
}

func (lc *LeadController) CreateLead(c *fiber.Ctx) error {
	var input leadInput
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

	email := strings.ToLower(strings.TrimSpace(input.Email))
	if err := utils.ValidateLeadEmail(email); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid email address",
		})
	}

	lead := models.Lead{
		Email:     email,
		FirstName: input.FirstName,
		LastName:  input.LastName,
		Company:   input.Company,
	}
	if err := lc.DB.Create(&lead).Error; err != nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Lead already exists",
		})
	}
	return c.Status(fiber.StatusCreated).JSON(lead)
}

// ImportLeads bulk-creates leads, skipping invalid and duplicate rows
// instead of failing the whole batch.
func (lc *LeadController) ImportLeads(c *fiber.Ctx) error {
	var input struct {
		Leads []leadInput `json:"leads" validate:"required,min=1,max=5000"`
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

	imported, skipped := 0, 0
	for _, row := range input.Leads {
		email := strings.ToLower(strings.TrimSpace(row.Email))
		if utils.ValidateLeadEmail(email) != nil {
			skipped++
			continue
		}
		lead := models.Lead{
			Email:     email,
			FirstName: row.FirstName,
			LastName:  row.LastName,
			Company:   row.Company,
		}
		if err := lc.DB.Create(&lead).Error; err != nil {
			skipped++
			continue
		}
		imported++
	}

	lc.Logger.Printf("lead import: %d imported, %d skipped", imported, skipped)
	return c.JSON(fiber.Map{
		"imported": imported,
		"skipped":  skipped,
	})
}

func (lc *LeadController) GetLeads(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 100)
	if limit < 1 || limit > 500 {
		limit = 100
	}
	offset := c.QueryInt("offset", 0)

	var leads []models.Lead
	if err := lc.DB.Order("id ASC").Limit(limit).Offset(offset).Find(&leads).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch leads",
		})
	}

	var total int64
	lc.DB.Model(&models.Lead{}).Count(&total)

	return c.JSON(fiber.Map{
		"leads": leads,
		"total": total,
	})
}

// Unsubscribe flags the lead so every sequence stops contacting them.
func (lc *LeadController) Unsubscribe(c *fiber.Ctx) error {
	var lead models.Lead
	if err := lc.DB.First(&lead, c.Params("id")).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Lead not found",
		})
	}
	if err := lc.DB.Model(&lead).Update("is_unsubscribed", true).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to unsubscribe lead",
		})
	}
	utils.LogEvent("lead_unsubscribed", map[string]interface{}{"lead_id": lead.ID})
	return c.JSON(fiber.Map{"message": "Lead unsubscribed"})
}
