package scheduler

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"dripmail/models"

	"github.com/google/uuid"
)

const (
	defaultConcurrency     = 4
	defaultDispatchTimeout = 10 * time.Second
)

// Summary reports what one scheduler pass did. A contact lands in exactly
// one of checked's subcategories per pass; completed additionally counts
// contacts whose final step went out during the pass.
type Summary struct {
	DryRun     bool      `json:"dry_run"`
	Campaigns  int64     `json:"campaigns"`
	Checked    int64     `json:"checked"`
	Sent       int64     `json:"sent"`
	Waiting    int64     `json:"waiting"`
	Completed  int64     `json:"completed"`
	Skipped    int64     `json:"skipped"`
	Errors     int64     `json:"errors"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

type passCounters struct {
	checked   atomic.Int64
	sent      atomic.Int64
	waiting   atomic.Int64
	completed atomic.Int64
	skipped   atomic.Int64
	errors    atomic.Int64
}

// Loop runs one finite scheduling pass over all active campaigns. It is
// safe to invoke concurrently (scheduled tick overlapping a manual
// trigger): the pending-claim on the ledger and the compare-and-swap
// advance on the contact row make the losing invocation a no-op per
// contact.
type Loop struct {
	campaigns CampaignSource
	contacts  ContactStore
	sequences SequenceSource
	ledger    Ledger
	senders   SenderSource
	renderer  Renderer
	gateway   Gateway
	resolver  *Resolver
	logger    *log.Logger

	concurrency     int
	dispatchTimeout time.Duration
	now             func() time.Time
	newMessageID    func(sender *models.Sender) string
}

func NewLoop(
	campaigns CampaignSource,
	contacts ContactStore,
	sequences SequenceSource,
	ledger Ledger,
	senders SenderSource,
	renderer Renderer,
	gateway Gateway,
	concurrency int,
	dispatchTimeout time.Duration,
	logger *log.Logger,
) *Loop {
	if concurrency < 1 {
		concurrency = defaultConcurrency
	}
	if dispatchTimeout <= 0 {
		dispatchTimeout = defaultDispatchTimeout
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	return &Loop{
		campaigns:       campaigns,
		contacts:        contacts,
		sequences:       sequences,
		ledger:          ledger,
		senders:         senders,
		renderer:        renderer,
		gateway:         gateway,
		resolver:        NewResolver(sequences, ledger),
		logger:          logger,
		concurrency:     concurrency,
		dispatchTimeout: dispatchTimeout,
		now:             time.Now,
		newMessageID:    defaultMessageID,
	}
}

// RunPass processes every active campaign once and returns the counters.
// When dryRun is set the pass evaluates and reports but neither dispatches
// nor mutates any state.
func (l *Loop) RunPass(ctx context.Context, dryRun bool) (Summary, error) {
	startedAt := l.now()
	var counters passCounters

	campaigns, err := l.campaigns.ActiveCampaigns(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("fetching active campaigns: %w", err)
	}

	l.logger.Printf("pass started: %d active campaign(s), dry_run=%t", len(campaigns), dryRun)

	for i := range campaigns {
		// Shutdown aborts between campaigns; contacts already handled
		// stay handled and the rest resume next run.
		if ctx.Err() != nil {
			break
		}
		l.processCampaign(ctx, &campaigns[i], &counters, dryRun)
	}

	summary := Summary{
		DryRun:     dryRun,
		Campaigns:  int64(len(campaigns)),
		Checked:    counters.checked.Load(),
		Sent:       counters.sent.Load(),
		Waiting:    counters.waiting.Load(),
		Completed:  counters.completed.Load(),
		Skipped:    counters.skipped.Load(),
		Errors:     counters.errors.Load(),
		StartedAt:  startedAt,
		FinishedAt: l.now(),
	}

	l.logger.Printf("pass finished: checked=%d sent=%d waiting=%d completed=%d skipped=%d errors=%d",
		summary.Checked, summary.Sent, summary.Waiting, summary.Completed, summary.Skipped, summary.Errors)

	return summary, nil
}

func (l *Loop) processCampaign(ctx context.Context, campaign *models.Campaign, counters *passCounters, dryRun bool) {
	contacts, err := l.contacts.ActiveContacts(ctx, campaign.ID)
	if err != nil {
		counters.errors.Add(1)
		l.logger.Printf("campaign %d: fetching contacts: %v", campaign.ID, err)
		return
	}
	if len(contacts) == 0 {
		return
	}

	// Contacts are independent units of mutation, so fan out per contact.
	sem := make(chan struct{}, l.concurrency)
	var wg sync.WaitGroup
	for i := range contacts {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(contact *models.CampaignContact) {
			defer wg.Done()
			defer func() { <-sem }()
			l.processContact(ctx, campaign, contact, counters, dryRun)
		}(&contacts[i])
	}
	wg.Wait()
}

func (l *Loop) processContact(ctx context.Context, campaign *models.Campaign, contact *models.CampaignContact, counters *passCounters, dryRun bool) {
	counters.checked.Add(1)

	decision, err := l.resolver.Resolve(ctx, campaign, contact)
	if err != nil {
		counters.errors.Add(1)
		l.logger.Printf("campaign %d contact %d: %v", campaign.ID, contact.ID, err)
		return
	}

	if decision.BoundSequence && decision.Sequence != nil && !dryRun {
		if err := l.contacts.BindSequence(ctx, contact.ID, decision.Sequence.ID); err != nil {
			counters.errors.Add(1)
			l.logger.Printf("contact %d: binding sequence %d: %v", contact.ID, decision.Sequence.ID, err)
			return
		}
	}

	switch decision.Outcome {
	case OutcomeNotEligible:
		// Terminal contacts are filtered out of ActiveContacts; seeing one
		// here means it flipped mid-pass. Nothing to do.
		counters.skipped.Add(1)

	case OutcomeNoSequence:
		// Configuration error: skipped until an operator assigns a
		// sequence, no retry schedule of its own.
		counters.skipped.Add(1)
		l.logger.Printf("contact %d: no usable sequence in campaign %d", contact.ID, campaign.ID)

	case OutcomeExhausted:
		counters.completed.Add(1)
		if !dryRun {
			if err := l.contacts.MarkCompleted(ctx, contact.ID); err != nil {
				counters.errors.Add(1)
				l.logger.Printf("contact %d: marking completed: %v", contact.ID, err)
			}
		}

	case OutcomeAlreadySent:
		// Self-healing: a successful ledger entry exists for the next
		// step, so advance without re-dispatching.
		counters.skipped.Add(1)
		l.logger.Printf("contact %d: step %d already sent, advancing", contact.ID, decision.StepNumber)
		if !dryRun {
			if _, err := l.contacts.ClaimAdvance(ctx, contact.ID, contact.CurrentStep, l.now(), len(decision.Sequence.Steps)); err != nil {
				counters.errors.Add(1)
				l.logger.Printf("contact %d: advancing past sent step: %v", contact.ID, err)
			}
		}

	case OutcomeWaiting:
		counters.waiting.Add(1)

	case OutcomeDue:
		l.dispatchDue(ctx, campaign, contact, decision, counters, dryRun)
	}
}

// dispatchDue sends the due step for one contact. The ledger pending-claim
// is the exclusion point; the SMTP call itself runs outside any lock and
// is bounded by the dispatch timeout.
func (l *Loop) dispatchDue(ctx context.Context, campaign *models.Campaign, contact *models.CampaignContact, decision Decision, counters *passCounters, dryRun bool) {
	if dryRun {
		counters.sent.Add(1)
		l.logger.Printf("[dry run] would send step %d to %s (%s)", decision.StepNumber, contact.Lead.Email, decision.Reason)
		return
	}

	sender, err := l.senders.SenderByID(ctx, decision.Sequence.SenderID)
	if err != nil {
		counters.errors.Add(1)
		l.logger.Printf("contact %d: loading sender %d: %v", contact.ID, decision.Sequence.SenderID, err)
		return
	}
	if !sender.IsActive {
		counters.skipped.Add(1)
		l.logger.Printf("contact %d: sender %d inactive, skipping", contact.ID, sender.ID)
		return
	}

	ok, err := l.senders.ConsumeQuota(ctx, sender.ID)
	if err != nil {
		counters.errors.Add(1)
		l.logger.Printf("contact %d: consuming sender quota: %v", contact.ID, err)
		return
	}
	if !ok {
		// Daily cap reached; the contact stays due and goes out on a
		// later pass once the counter resets.
		counters.waiting.Add(1)
		l.logger.Printf("sender %d daily cap reached, deferring contact %d", sender.ID, contact.ID)
		return
	}

	messageID := l.newMessageID(sender)
	entry := &models.EmailSendHistory{
		CampaignID:     contact.CampaignID,
		LeadID:         contact.LeadID,
		TemplateID:     decision.Step.TemplateID,
		SequenceStepID: decision.Step.ID,
		SenderID:       sender.ID,
		MessageID:      messageID,
		Status:         models.SendStatusPending,
	}
	claimed, err := l.ledger.ClaimPending(ctx, entry)
	if err != nil {
		counters.errors.Add(1)
		l.logger.Printf("contact %d: claiming send: %v", contact.ID, err)
		return
	}
	if !claimed {
		// Another runner holds the claim for this (contact, step).
		counters.skipped.Add(1)
		return
	}

	subject, htmlBody, textBody, err := l.renderer.Render(ctx, decision.Step.TemplateID, contact.Lead, messageID)
	if err != nil {
		counters.errors.Add(1)
		l.logger.Printf("contact %d: rendering template %d: %v", contact.ID, decision.Step.TemplateID, err)
		l.markFailed(ctx, entry.ID, err)
		return
	}

	dispatchCtx, cancel := context.WithTimeout(ctx, l.dispatchTimeout)
	defer cancel()

	err = l.gateway.Send(dispatchCtx, Dispatch{
		CampaignID: campaign.ID,
		LeadID:     contact.LeadID,
		MessageID:  messageID,
		To:         contact.Lead.Email,
		Subject:    subject,
		HTMLBody:   htmlBody,
		TextBody:   textBody,
		Sender:     *sender,
	})
	if err != nil {
		// Transient dispatch failure: record it, leave the contact
		// unadvanced, retry naturally on the next pass.
		counters.errors.Add(1)
		l.logger.Printf("contact %d: dispatch step %d failed: %v", contact.ID, decision.StepNumber, err)
		l.markFailed(ctx, entry.ID, err)
		return
	}

	sentAt := l.now()
	if err := l.ledger.MarkSent(ctx, entry.ID, sentAt); err != nil {
		counters.errors.Add(1)
		l.logger.Printf("contact %d: recording sent entry: %v", contact.ID, err)
	}

	advanced, err := l.contacts.ClaimAdvance(ctx, contact.ID, contact.CurrentStep, sentAt, len(decision.Sequence.Steps))
	if err != nil {
		counters.errors.Add(1)
		l.logger.Printf("contact %d: advancing state: %v", contact.ID, err)
		return
	}
	if !advanced {
		// Race loss: another evaluator advanced this contact first.
		return
	}

	counters.sent.Add(1)
	if contact.CurrentStep+1 >= len(decision.Sequence.Steps) {
		counters.completed.Add(1)
		l.logger.Printf("contact %d: sequence completed", contact.ID)
	}

	// Best-effort denormalized stats.
	if err := l.campaigns.IncrementSent(ctx, campaign.ID); err != nil {
		l.logger.Printf("campaign %d: bumping sent counter: %v", campaign.ID, err)
	}
	if err := l.sequences.IncrementStepSent(ctx, decision.Step.ID); err != nil {
		l.logger.Printf("step %d: bumping sent counter: %v", decision.Step.ID, err)
	}
}

func (l *Loop) markFailed(ctx context.Context, entryID uint, cause error) {
	if err := l.ledger.MarkFailed(ctx, entryID, cause.Error()); err != nil {
		l.logger.Printf("ledger entry %d: recording failure: %v", entryID, err)
	}
}

func defaultMessageID(sender *models.Sender) string {
	domain := "dripmail.local"
	if at := strings.LastIndex(sender.FromEmail, "@"); at != -1 && at+1 < len(sender.FromEmail) {
		domain = sender.FromEmail[at+1:]
	}
	return fmt.Sprintf("<%s@%s>", uuid.New().String(), domain)
}
