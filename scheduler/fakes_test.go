package scheduler

import (
	"context"
	"sync"
	"time"

	"dripmail/models"
)

// The fakes below implement the scheduler's store interfaces with
// overridable function fields. Unset fields return permissive defaults so
// each test only wires the calls it cares about.

type fakeCampaigns struct {
	activeCampaignsFn func(ctx context.Context) ([]models.Campaign, error)
	incrementSentFn   func(ctx context.Context, campaignID uint) error
}

func (f *fakeCampaigns) ActiveCampaigns(ctx context.Context) ([]models.Campaign, error) {
	if f.activeCampaignsFn != nil {
		return f.activeCampaignsFn(ctx)
	}
	return nil, nil
}

func (f *fakeCampaigns) IncrementSent(ctx context.Context, campaignID uint) error {
	if f.incrementSentFn != nil {
		return f.incrementSentFn(ctx, campaignID)
	}
	return nil
}

type fakeContacts struct {
	mu sync.Mutex

	activeContactsFn func(ctx context.Context, campaignID uint) ([]models.CampaignContact, error)
	bindSequenceFn   func(ctx context.Context, contactID, sequenceID uint) error
	claimAdvanceFn   func(ctx context.Context, contactID uint, fromStep int, sentAt time.Time, totalSteps int) (bool, error)
	markCompletedFn  func(ctx context.Context, contactID uint) error
	markRepliedFn    func(ctx context.Context, contactID uint, at time.Time) error

	advanced  []uint
	completed []uint
	bound     []uint
}

func (f *fakeContacts) ActiveContacts(ctx context.Context, campaignID uint) ([]models.CampaignContact, error) {
	if f.activeContactsFn != nil {
		return f.activeContactsFn(ctx, campaignID)
	}
	return nil, nil
}

func (f *fakeContacts) BindSequence(ctx context.Context, contactID, sequenceID uint) error {
	f.mu.Lock()
	f.bound = append(f.bound, contactID)
	f.mu.Unlock()
	if f.bindSequenceFn != nil {
		return f.bindSequenceFn(ctx, contactID, sequenceID)
	}
	return nil
}

func (f *fakeContacts) ClaimAdvance(ctx context.Context, contactID uint, fromStep int, sentAt time.Time, totalSteps int) (bool, error) {
	f.mu.Lock()
	f.advanced = append(f.advanced, contactID)
	f.mu.Unlock()
	if f.claimAdvanceFn != nil {
		return f.claimAdvanceFn(ctx, contactID, fromStep, sentAt, totalSteps)
	}
	return true, nil
}

func (f *fakeContacts) MarkCompleted(ctx context.Context, contactID uint) error {
	f.mu.Lock()
	f.completed = append(f.completed, contactID)
	f.mu.Unlock()
	if f.markCompletedFn != nil {
		return f.markCompletedFn(ctx, contactID)
	}
	return nil
}

func (f *fakeContacts) MarkReplied(ctx context.Context, contactID uint, at time.Time) error {
	if f.markRepliedFn != nil {
		return f.markRepliedFn(ctx, contactID, at)
	}
	return nil
}

func (f *fakeContacts) advancedIDs() []uint {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uint(nil), f.advanced...)
}

func (f *fakeContacts) completedIDs() []uint {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uint(nil), f.completed...)
}

type fakeSequences struct {
	sequenceByIDFn        func(ctx context.Context, id uint) (*models.Sequence, error)
	firstActiveSequenceFn func(ctx context.Context, campaignID uint) (*models.Sequence, error)
	incrementStepSentFn   func(ctx context.Context, stepID uint) error
}

func (f *fakeSequences) SequenceByID(ctx context.Context, id uint) (*models.Sequence, error) {
	if f.sequenceByIDFn != nil {
		return f.sequenceByIDFn(ctx, id)
	}
	return nil, nil
}

func (f *fakeSequences) FirstActiveSequence(ctx context.Context, campaignID uint) (*models.Sequence, error) {
	if f.firstActiveSequenceFn != nil {
		return f.firstActiveSequenceFn(ctx, campaignID)
	}
	return nil, nil
}

func (f *fakeSequences) IncrementStepSent(ctx context.Context, stepID uint) error {
	if f.incrementStepSentFn != nil {
		return f.incrementStepSentFn(ctx, stepID)
	}
	return nil
}

type fakeLedger struct {
	mu sync.Mutex

	hasSuccessfulSendFn func(ctx context.Context, campaignID, leadID, templateID uint) (bool, error)
	claimPendingFn      func(ctx context.Context, entry *models.EmailSendHistory) (bool, error)
	markSentFn          func(ctx context.Context, entryID uint, sentAt time.Time) error
	markFailedFn        func(ctx context.Context, entryID uint, errMsg string) error
	pendingCountFn      func(ctx context.Context, campaignID uint) (int64, error)
	sentSinceFn         func(ctx context.Context, campaignID uint, since time.Time) (int64, error)

	claims  []models.EmailSendHistory
	sent    []uint
	failed  []uint
	nextID  uint
}

func (f *fakeLedger) HasSuccessfulSend(ctx context.Context, campaignID, leadID, templateID uint) (bool, error) {
	if f.hasSuccessfulSendFn != nil {
		return f.hasSuccessfulSendFn(ctx, campaignID, leadID, templateID)
	}
	return false, nil
}

func (f *fakeLedger) ClaimPending(ctx context.Context, entry *models.EmailSendHistory) (bool, error) {
	if f.claimPendingFn != nil {
		return f.claimPendingFn(ctx, entry)
	}
	f.mu.Lock()
	f.nextID++
	entry.ID = f.nextID
	f.claims = append(f.claims, *entry)
	f.mu.Unlock()
	return true, nil
}

func (f *fakeLedger) MarkSent(ctx context.Context, entryID uint, sentAt time.Time) error {
	f.mu.Lock()
	f.sent = append(f.sent, entryID)
	f.mu.Unlock()
	if f.markSentFn != nil {
		return f.markSentFn(ctx, entryID, sentAt)
	}
	return nil
}

func (f *fakeLedger) MarkFailed(ctx context.Context, entryID uint, errMsg string) error {
	f.mu.Lock()
	f.failed = append(f.failed, entryID)
	f.mu.Unlock()
	if f.markFailedFn != nil {
		return f.markFailedFn(ctx, entryID, errMsg)
	}
	return nil
}

func (f *fakeLedger) PendingCount(ctx context.Context, campaignID uint) (int64, error) {
	if f.pendingCountFn != nil {
		return f.pendingCountFn(ctx, campaignID)
	}
	return 0, nil
}

func (f *fakeLedger) SentSince(ctx context.Context, campaignID uint, since time.Time) (int64, error) {
	if f.sentSinceFn != nil {
		return f.sentSinceFn(ctx, campaignID, since)
	}
	return 0, nil
}

func (f *fakeLedger) claimCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.claims)
}

type fakeSenders struct {
	senderByIDFn   func(ctx context.Context, id uint) (*models.Sender, error)
	consumeQuotaFn func(ctx context.Context, senderID uint) (bool, error)
}

func (f *fakeSenders) SenderByID(ctx context.Context, id uint) (*models.Sender, error) {
	if f.senderByIDFn != nil {
		return f.senderByIDFn(ctx, id)
	}
	sender := &models.Sender{FromEmail: "out@acme.test", IsActive: true}
	sender.ID = id
	return sender, nil
}

func (f *fakeSenders) ConsumeQuota(ctx context.Context, senderID uint) (bool, error) {
	if f.consumeQuotaFn != nil {
		return f.consumeQuotaFn(ctx, senderID)
	}
	return true, nil
}

type fakeRenderer struct {
	renderFn func(ctx context.Context, templateID uint, lead models.Lead, messageID string) (string, string, string, error)
}

func (f *fakeRenderer) Render(ctx context.Context, templateID uint, lead models.Lead, messageID string) (string, string, string, error) {
	if f.renderFn != nil {
		return f.renderFn(ctx, templateID, lead, messageID)
	}
	return "subject", "<p>hi</p>", "hi", nil
}

type fakeGateway struct {
	mu     sync.Mutex
	sendFn func(ctx context.Context, d Dispatch) error
	sends  []Dispatch
}

func (f *fakeGateway) Send(ctx context.Context, d Dispatch) error {
	f.mu.Lock()
	f.sends = append(f.sends, d)
	f.mu.Unlock()
	if f.sendFn != nil {
		return f.sendFn(ctx, d)
	}
	return nil
}

func (f *fakeGateway) sendCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sends)
}
