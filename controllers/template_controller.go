package controller

import (
	"log"

	"dripmail/models"
	"dripmail/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type TemplateController struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewTemplateController(db *gorm.DB, logger *log.Logger) *TemplateController {
	return &TemplateController{DB: db, Logger: logger}
}

type templateInput struct {
	Name        string `json:"name" validate:"required,min=2,max=200"`
	Subject     string `json:"subject" validate:"required,min=1,max=500"`
	HTMLContent string `json:"html_content" validate:"required"`
	TextContent string `json:"text_content"`
}

func (tc *TemplateController) CreateTemplate(c *fiber.Ctx) error {
	var input templateInput
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

	template := models.Template{
		Name:        input.Name,
		Subject:     input.Subject,
		HTMLContent: input.HTMLContent,
		TextContent: input.TextContent,
	}
	if err := tc.DB.Create(&template).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create template",
		})
	}
	return c.Status(fiber.StatusCreated).JSON(template)
}

func (tc *TemplateController) GetTemplates(c *fiber.Ctx) error {
	var templates []models.Template
	if err := tc.DB.Order("id ASC").Find(&templates).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch templates",
		})
	}
	return c.JSON(templates)
}

func (tc *TemplateController) GetTemplate(c *fiber.Ctx) error {
	var template models.Template
	if err := tc.DB.First(&template, c.Params("id")).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Template not found",
		})
	}
	return c.JSON(template)
}

func (tc *TemplateController) UpdateTemplate(c *fiber.Ctx) error {
	var template models.Template
	if err := tc.DB.First(&template, c.Params("id")).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Template not found",
		})
	}

	var input templateInput
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

	template.Name = input.Name
	template.Subject = input.Subject
	template.HTMLContent = input.HTMLContent
	template.TextContent = input.TextContent
	if err := tc.DB.Save(&template).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update template",
		})
	}
	return c.JSON(template)
}

func (tc *TemplateController) DeleteTemplate(c *fiber.Ctx) error {
	var template models.Template
	if err := tc.DB.First(&template, c.Params("id")).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Template not found",
		})
	}

	var boundSteps int64
	tc.DB.Model(&models.SequenceStep{}).Where("template_id = ?", template.ID).Count(&boundSteps)
	if boundSteps > 0 {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Template is still used by sequence steps",
		})
	}

	if err := tc.DB.Delete(&template).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete template",
		})
	}
	return c.JSON(fiber.Map{"message": "Template deleted"})
}
