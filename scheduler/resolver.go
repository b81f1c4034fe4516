package scheduler

import (
	"context"
	"fmt"
	"time"

	"dripmail/models"
)

// Outcome classifies what the resolver decided for one contact.
type Outcome string

const (
	// OutcomeNotEligible means the contact replied or completed.
	OutcomeNotEligible Outcome = "not_eligible"
	// OutcomeNoSequence means no sequence is bound and none is available,
	// or the bound sequence is unusable. Operator attention required.
	OutcomeNoSequence Outcome = "no_sequence"
	// OutcomeExhausted means the next step number exceeds the sequence
	// length; the contact should be marked completed.
	OutcomeExhausted Outcome = "sequence_exhausted"
	// OutcomeAlreadySent means the ledger already holds a successful entry
	// for the next step's template; advance without dispatching.
	OutcomeAlreadySent Outcome = "already_sent"
	// OutcomeWaiting means the step exists but its send time is ahead.
	OutcomeWaiting Outcome = "waiting"
	// OutcomeDue means the step should be dispatched now.
	OutcomeDue Outcome = "due"
)

// Decision is the resolver's verdict for one contact in one pass.
type Decision struct {
	Outcome    Outcome
	Sequence   *models.Sequence
	Step       *models.SequenceStep
	StepNumber int
	NextSendAt time.Time // set for waiting
	Reason     string    // set for due

	// BoundSequence is true when the resolver picked the campaign's first
	// active sequence for a contact that had none; the caller persists
	// the binding.
	BoundSequence bool
}

// Resolver decides, for a single contact, whether the next sequence step
// is due, pending, blocked, or already handled. It reads state but never
// writes it.
type Resolver struct {
	sequences SequenceSource
	ledger    Ledger
	now       func() time.Time
}

func NewResolver(sequences SequenceSource, ledger Ledger) *Resolver {
	return &Resolver{
		sequences: sequences,
		ledger:    ledger,
		now:       time.Now,
	}
}

// Resolve evaluates one contact against its campaign's sequence.
func (r *Resolver) Resolve(ctx context.Context, campaign *models.Campaign, contact *models.CampaignContact) (Decision, error) {
	if contact.Terminal() {
		return Decision{Outcome: OutcomeNotEligible}, nil
	}

	seq, bound, err := r.resolveSequence(ctx, campaign, contact)
	if err != nil {
		return Decision{}, err
	}
	if seq == nil || len(seq.Steps) == 0 {
		return Decision{Outcome: OutcomeNoSequence}, nil
	}

	nextStepNumber := contact.NextStepNumber()
	if nextStepNumber > len(seq.Steps) {
		return Decision{Outcome: OutcomeExhausted, Sequence: seq, BoundSequence: bound}, nil
	}

	step := seq.StepByOrder(nextStepNumber)
	if step == nil {
		// Step orders are contiguous 1..N; a hole means the sequence was
		// edited out from under this contact. Treat as unconfigured.
		return Decision{Outcome: OutcomeNoSequence, Sequence: seq, BoundSequence: bound}, nil
	}

	sent, err := r.ledger.HasSuccessfulSend(ctx, contact.CampaignID, contact.LeadID, step.TemplateID)
	if err != nil {
		return Decision{}, fmt.Errorf("ledger lookup for contact %d step %d: %w", contact.ID, nextStepNumber, err)
	}
	if sent {
		return Decision{
			Outcome:       OutcomeAlreadySent,
			Sequence:      seq,
			Step:          step,
			StepNumber:    nextStepNumber,
			BoundSequence: bound,
		}, nil
	}

	now := r.now()
	sendAt := NextSendTime(contact, step, now)
	if sendAt.After(now) {
		return Decision{
			Outcome:       OutcomeWaiting,
			Sequence:      seq,
			Step:          step,
			StepNumber:    nextStepNumber,
			NextSendAt:    sendAt,
			BoundSequence: bound,
		}, nil
	}

	reason := fmt.Sprintf("delay of %s elapsed", step.Delay())
	if contact.CurrentStep == 0 {
		reason = "first step due"
	}
	return Decision{
		Outcome:       OutcomeDue,
		Sequence:      seq,
		Step:          step,
		StepNumber:    nextStepNumber,
		Reason:        reason,
		BoundSequence: bound,
	}, nil
}

// resolveSequence returns the contact's bound sequence, or binds the
// campaign's first active one when the contact has none yet.
func (r *Resolver) resolveSequence(ctx context.Context, campaign *models.Campaign, contact *models.CampaignContact) (*models.Sequence, bool, error) {
	if contact.SequenceID != nil {
		seq, err := r.sequences.SequenceByID(ctx, *contact.SequenceID)
		if err != nil {
			return nil, false, fmt.Errorf("loading sequence %d: %w", *contact.SequenceID, err)
		}
		return seq, false, nil
	}

	seq, err := r.sequences.FirstActiveSequence(ctx, campaign.ID)
	if err != nil {
		return nil, false, fmt.Errorf("loading sequences for campaign %d: %w", campaign.ID, err)
	}
	if seq == nil {
		return nil, false, nil
	}
	return seq, true, nil
}
