package scheduler

import (
	"context"
	"fmt"
	"sort"
	"time"

	"dripmail/models"
)

const (
	upcomingWindow     = 24 * time.Hour
	recentSendWindow   = 5 * time.Minute
	maxUpcomingEntries = 20
)

// UpcomingSend describes a contact whose next step falls inside the
// upcoming window.
type UpcomingSend struct {
	LeadEmail  string    `json:"lead_email"`
	StepNumber int       `json:"step_number"`
	NextSendAt time.Time `json:"next_send_at"`
}

// CampaignStatus is the dashboard view of one campaign's sending state.
type CampaignStatus struct {
	CampaignID       uint           `json:"campaign_id"`
	PendingDue       int            `json:"pending_due"`
	Upcoming         []UpcomingSend `json:"upcoming"`
	UpcomingCount    int            `json:"upcoming_count"`
	RecentlySent     int64          `json:"recently_sent"`
	PendingEntries   int64          `json:"pending_entries"`
	CurrentlySending bool           `json:"currently_sending"`
}

// StatusReporter answers the operational status query: how many contacts
// are due right now, which sends land within the next 24 hours, and
// whether anything went out in the last few minutes. It reads the same
// state the loop does and mutates nothing.
type StatusReporter struct {
	contacts ContactStore
	ledger   Ledger
	resolver *Resolver
	now      func() time.Time
}

func NewStatusReporter(contacts ContactStore, sequences SequenceSource, ledger Ledger) *StatusReporter {
	return &StatusReporter{
		contacts: contacts,
		ledger:   ledger,
		resolver: NewResolver(sequences, ledger),
		now:      time.Now,
	}
}

// CampaignStatus evaluates every active contact of the campaign.
func (r *StatusReporter) CampaignStatus(ctx context.Context, campaign *models.Campaign) (CampaignStatus, error) {
	status := CampaignStatus{CampaignID: campaign.ID}
	now := r.now()

	contacts, err := r.contacts.ActiveContacts(ctx, campaign.ID)
	if err != nil {
		return status, fmt.Errorf("fetching contacts for campaign %d: %w", campaign.ID, err)
	}

	for i := range contacts {
		decision, err := r.resolver.Resolve(ctx, campaign, &contacts[i])
		if err != nil {
			// Status is advisory; a broken contact should not blank the
			// whole dashboard.
			continue
		}
		switch decision.Outcome {
		case OutcomeDue:
			status.PendingDue++
		case OutcomeWaiting:
			if decision.NextSendAt.Before(now.Add(upcomingWindow)) {
				status.Upcoming = append(status.Upcoming, UpcomingSend{
					LeadEmail:  contacts[i].Lead.Email,
					StepNumber: decision.StepNumber,
					NextSendAt: decision.NextSendAt,
				})
			}
		}
	}

	sort.Slice(status.Upcoming, func(i, j int) bool {
		return status.Upcoming[i].NextSendAt.Before(status.Upcoming[j].NextSendAt)
	})
	status.UpcomingCount = len(status.Upcoming)
	if len(status.Upcoming) > maxUpcomingEntries {
		status.Upcoming = status.Upcoming[:maxUpcomingEntries]
	}

	status.PendingEntries, err = r.ledger.PendingCount(ctx, campaign.ID)
	if err != nil {
		return status, fmt.Errorf("counting pending entries: %w", err)
	}
	status.RecentlySent, err = r.ledger.SentSince(ctx, campaign.ID, now.Add(-recentSendWindow))
	if err != nil {
		return status, fmt.Errorf("counting recent sends: %w", err)
	}
	status.CurrentlySending = status.RecentlySent > 0 || status.PendingEntries > 0

	return status, nil
}
