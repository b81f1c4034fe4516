package scheduler

import (
	"context"

	"dripmail/models"
)

// Dispatch is one outgoing email handed to the transport layer.
// Content arrives already rendered; the scheduler does not interpret it.
type Dispatch struct {
	CampaignID uint
	LeadID     uint
	MessageID  string
	To         string
	Subject    string
	HTMLBody   string
	TextBody   string
	Sender     models.Sender
}

// Gateway transmits a single email. Implementations must honor ctx
// cancellation; the loop bounds every call with a timeout and treats a
// timed-out dispatch as a failure for this pass.
type Gateway interface {
	Send(ctx context.Context, d Dispatch) error
}

// Renderer resolves a step's template into a personalized message body.
// The messageID is threaded through so open/click tracking can be injected.
type Renderer interface {
	Render(ctx context.Context, templateID uint, lead models.Lead, messageID string) (subject, htmlBody, textBody string, err error)
}
