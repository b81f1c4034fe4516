package scheduler

import (
	"context"
	"time"

	"dripmail/models"
)

// CampaignSource lists the campaigns a pass should evaluate.
type CampaignSource interface {
	ActiveCampaigns(ctx context.Context) ([]models.Campaign, error)
	// IncrementSent bumps the campaign's denormalized sent counter.
	IncrementSent(ctx context.Context, campaignID uint) error
}

// ContactStore reads and mutates per-contact enrollment state. All state
// writes go through here; the scheduler itself never holds locks.
type ContactStore interface {
	// ActiveContacts returns enrollments that are neither completed nor
	// replied, with their Lead preloaded, for contactable leads only.
	ActiveContacts(ctx context.Context, campaignID uint) ([]models.CampaignContact, error)

	// BindSequence assigns a sequence to a contact that has none yet.
	BindSequence(ctx context.Context, contactID, sequenceID uint) error

	// ClaimAdvance applies the advance transition only if the persisted
	// current_step still equals fromStep (compare-and-swap). When the new
	// step reaches totalSteps the completed latch is set in the same
	// update. Returns false when another evaluator won the race.
	ClaimAdvance(ctx context.Context, contactID uint, fromStep int, sentAt time.Time, totalSteps int) (bool, error)

	// MarkCompleted idempotently latches the completed flag without
	// touching current_step.
	MarkCompleted(ctx context.Context, contactID uint) error

	// MarkReplied idempotently latches the replied flag. Applied by the
	// external reply signal, never by the scheduler loop itself.
	MarkReplied(ctx context.Context, contactID uint, at time.Time) error
}

// SequenceSource resolves sequence definitions with their steps preloaded.
type SequenceSource interface {
	SequenceByID(ctx context.Context, id uint) (*models.Sequence, error)
	FirstActiveSequence(ctx context.Context, campaignID uint) (*models.Sequence, error)
	IncrementStepSent(ctx context.Context, stepID uint) error
}

// Ledger is the scheduler's view of the send history table.
type Ledger interface {
	// HasSuccessfulSend reports whether a successful entry already exists
	// for this (campaign, lead, template) triple.
	HasSuccessfulSend(ctx context.Context, campaignID, leadID, templateID uint) (bool, error)

	// ClaimPending atomically inserts a pending entry for the triple
	// unless a successful entry, or a pending entry younger than the
	// staleness window, already exists. The returned entry is the claim;
	// a nil entry with nil error means another runner holds the claim.
	ClaimPending(ctx context.Context, entry *models.EmailSendHistory) (bool, error)

	// MarkSent upgrades a claimed pending entry to sent.
	MarkSent(ctx context.Context, entryID uint, sentAt time.Time) error

	// MarkFailed records the transport error on a claimed pending entry.
	MarkFailed(ctx context.Context, entryID uint, errMsg string) error

	// PendingCount counts retryable pending entries for a campaign.
	PendingCount(ctx context.Context, campaignID uint) (int64, error)

	// SentSince counts successful sends for a campaign since the given time.
	SentSince(ctx context.Context, campaignID uint, since time.Time) (int64, error)
}

// SenderSource resolves sending accounts and their daily quota.
type SenderSource interface {
	SenderByID(ctx context.Context, id uint) (*models.Sender, error)

	// ConsumeQuota atomically increments the sender's sent_today counter
	// if capacity remains; returns false when the daily cap is exhausted.
	ConsumeQuota(ctx context.Context, senderID uint) (bool, error)
}
