package utils

import (
	"context"
	"fmt"
	"strings"

	"dripmail/models"

	"gorm.io/gorm"
)

// TemplateRenderer resolves a step's template and substitutes lead
// placeholders. It implements scheduler.Renderer. Anything smarter than
// placeholder substitution belongs to the content layer, not here.
type TemplateRenderer struct {
	db      *gorm.DB
	baseURL string
}

func NewTemplateRenderer(db *gorm.DB, baseURL string) *TemplateRenderer {
	return &TemplateRenderer{db: db, baseURL: baseURL}
}

func (r *TemplateRenderer) Render(ctx context.Context, templateID uint, lead models.Lead, messageID string) (string, string, string, error) {
	var tmpl models.Template
	if err := r.db.WithContext(ctx).First(&tmpl, templateID).Error; err != nil {
		return "", "", "", fmt.Errorf("loading template %d: %w", templateID, err)
	}

	repl := strings.NewReplacer(
		"{{first_name}}", lead.FirstName,
		"{{last_name}}", lead.LastName,
		"{{company}}", lead.Company,
		"{{position}}", lead.Position,
		"{{email}}", lead.Email,
	)

	subject := repl.Replace(tmpl.Subject)
	htmlBody := repl.Replace(tmpl.HTMLContent)
	textBody := repl.Replace(tmpl.TextContent)

	if htmlBody != "" && r.baseURL != "" {
		htmlBody = InjectTracking(htmlBody, r.baseURL, messageID)
	}

	return subject, htmlBody, textBody, nil
}
