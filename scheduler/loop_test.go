package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"dripmail/models"
)

func newTestLoop(campaigns *fakeCampaigns, contacts *fakeContacts, sequences *fakeSequences, ledger *fakeLedger, senders *fakeSenders, gateway *fakeGateway, now time.Time) *Loop {
	loop := NewLoop(campaigns, contacts, sequences, ledger, senders, &fakeRenderer{}, gateway, 2, time.Second, nil)
	loop.now = func() time.Time { return now }
	loop.resolver.now = loop.now
	return loop
}

func singleCampaign() *fakeCampaigns {
	return &fakeCampaigns{
		activeCampaignsFn: func(ctx context.Context) ([]models.Campaign, error) {
			campaign := models.Campaign{Name: "launch", Status: models.CampaignStatusActive}
			campaign.ID = 1
			return []models.Campaign{campaign}, nil
		},
	}
}

func sequencesFor(seq *models.Sequence) *fakeSequences {
	return &fakeSequences{
		sequenceByIDFn: func(ctx context.Context, id uint) (*models.Sequence, error) {
			if id == seq.ID {
				return seq, nil
			}
			return nil, nil
		},
		firstActiveSequenceFn: func(ctx context.Context, campaignID uint) (*models.Sequence, error) {
			return seq, nil
		},
	}
}

func contactsReturning(list ...models.CampaignContact) *fakeContacts {
	return &fakeContacts{
		activeContactsFn: func(ctx context.Context, campaignID uint) ([]models.CampaignContact, error) {
			return list, nil
		},
	}
}

func TestRunPassSendsDueStep(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	seq := testSequence(5, 0, 2*time.Hour)
	contact := boundContact(seq, 0, nil)

	contacts := contactsReturning(*contact)
	ledger := &fakeLedger{}
	gateway := &fakeGateway{}

	loop := newTestLoop(singleCampaign(), contacts, sequencesFor(seq), ledger, &fakeSenders{}, gateway, now)

	summary, err := loop.RunPass(context.Background(), false)
	if err != nil {
		t.Fatalf("RunPass() error = %v", err)
	}

	if summary.Sent != 1 {
		t.Errorf("Sent = %d, want 1", summary.Sent)
	}
	if summary.Checked != 1 {
		t.Errorf("Checked = %d, want 1", summary.Checked)
	}
	if gateway.sendCount() != 1 {
		t.Fatalf("gateway sends = %d, want 1", gateway.sendCount())
	}
	if got := gateway.sends[0].To; got != "lead@example.com" {
		t.Errorf("dispatch To = %q, want lead@example.com", got)
	}
	if gateway.sends[0].MessageID == "" {
		t.Error("dispatch MessageID is empty")
	}
	if got := contacts.advancedIDs(); len(got) != 1 || got[0] != contact.ID {
		t.Errorf("advanced contacts = %v, want [%d]", got, contact.ID)
	}
	if len(ledger.sent) != 1 {
		t.Errorf("ledger sent entries = %d, want 1", len(ledger.sent))
	}
}

func TestRunPassDryRunMutatesNothing(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	seq := testSequence(5, 0)
	contact := boundContact(seq, 0, nil)

	contacts := contactsReturning(*contact)
	ledger := &fakeLedger{}
	gateway := &fakeGateway{}

	loop := newTestLoop(singleCampaign(), contacts, sequencesFor(seq), ledger, &fakeSenders{}, gateway, now)

	summary, err := loop.RunPass(context.Background(), true)
	if err != nil {
		t.Fatalf("RunPass() error = %v", err)
	}

	if !summary.DryRun {
		t.Error("DryRun = false, want true")
	}
	if summary.Sent != 1 {
		t.Errorf("Sent = %d, want 1 (dry run reports would-send)", summary.Sent)
	}
	if gateway.sendCount() != 0 {
		t.Errorf("gateway sends = %d, want 0", gateway.sendCount())
	}
	if ledger.claimCount() != 0 {
		t.Errorf("ledger claims = %d, want 0", ledger.claimCount())
	}
	if got := contacts.advancedIDs(); len(got) != 0 {
		t.Errorf("advanced contacts = %v, want none", got)
	}
}

func TestRunPassDispatchFailureLeavesStateUnadvanced(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	seq := testSequence(5, 0)
	contact := boundContact(seq, 0, nil)

	contacts := contactsReturning(*contact)
	ledger := &fakeLedger{}
	gateway := &fakeGateway{
		sendFn: func(ctx context.Context, d Dispatch) error {
			return errors.New("550 mailbox unavailable")
		},
	}

	loop := newTestLoop(singleCampaign(), contacts, sequencesFor(seq), ledger, &fakeSenders{}, gateway, now)

	summary, err := loop.RunPass(context.Background(), false)
	if err != nil {
		t.Fatalf("RunPass() error = %v", err)
	}

	if summary.Sent != 0 {
		t.Errorf("Sent = %d, want 0", summary.Sent)
	}
	if summary.Errors != 1 {
		t.Errorf("Errors = %d, want 1", summary.Errors)
	}
	if got := contacts.advancedIDs(); len(got) != 0 {
		t.Errorf("advanced contacts = %v, want none", got)
	}
	if len(ledger.failed) != 1 {
		t.Errorf("ledger failed entries = %d, want 1", len(ledger.failed))
	}
}

func TestRunPassLostClaimSkipsDispatch(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	seq := testSequence(5, 0)
	contact := boundContact(seq, 0, nil)

	contacts := contactsReturning(*contact)
	ledger := &fakeLedger{
		claimPendingFn: func(ctx context.Context, entry *models.EmailSendHistory) (bool, error) {
			return false, nil
		},
	}
	gateway := &fakeGateway{}

	loop := newTestLoop(singleCampaign(), contacts, sequencesFor(seq), ledger, &fakeSenders{}, gateway, now)

	summary, err := loop.RunPass(context.Background(), false)
	if err != nil {
		t.Fatalf("RunPass() error = %v", err)
	}

	if summary.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1", summary.Skipped)
	}
	if gateway.sendCount() != 0 {
		t.Errorf("gateway sends = %d, want 0", gateway.sendCount())
	}
}

func TestRunPassExhaustedContactMarkedCompleted(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	seq := testSequence(5, 0)
	contact := boundContact(seq, 1, tp(now.Add(-time.Hour)))

	contacts := contactsReturning(*contact)

	loop := newTestLoop(singleCampaign(), contacts, sequencesFor(seq), &fakeLedger{}, &fakeSenders{}, &fakeGateway{}, now)

	summary, err := loop.RunPass(context.Background(), false)
	if err != nil {
		t.Fatalf("RunPass() error = %v", err)
	}

	if summary.Completed != 1 {
		t.Errorf("Completed = %d, want 1", summary.Completed)
	}
	if got := contacts.completedIDs(); len(got) != 1 || got[0] != contact.ID {
		t.Errorf("completed contacts = %v, want [%d]", got, contact.ID)
	}
}

func TestRunPassAlreadySentAdvancesWithoutDispatch(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	seq := testSequence(5, 0, time.Hour)
	contact := boundContact(seq, 0, nil)

	contacts := contactsReturning(*contact)
	ledger := &fakeLedger{
		hasSuccessfulSendFn: func(ctx context.Context, campaignID, leadID, templateID uint) (bool, error) {
			return templateID == seq.Steps[0].TemplateID, nil
		},
	}
	gateway := &fakeGateway{}

	loop := newTestLoop(singleCampaign(), contacts, sequencesFor(seq), ledger, &fakeSenders{}, gateway, now)

	summary, err := loop.RunPass(context.Background(), false)
	if err != nil {
		t.Fatalf("RunPass() error = %v", err)
	}

	if summary.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1", summary.Skipped)
	}
	if gateway.sendCount() != 0 {
		t.Errorf("gateway sends = %d, want 0", gateway.sendCount())
	}
	if got := contacts.advancedIDs(); len(got) != 1 {
		t.Errorf("advanced contacts = %v, want exactly one", got)
	}
}

func TestRunPassSenderQuotaDefersContact(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	seq := testSequence(5, 0)
	contact := boundContact(seq, 0, nil)

	contacts := contactsReturning(*contact)
	senders := &fakeSenders{
		consumeQuotaFn: func(ctx context.Context, senderID uint) (bool, error) {
			return false, nil
		},
	}
	gateway := &fakeGateway{}

	loop := newTestLoop(singleCampaign(), contacts, sequencesFor(seq), &fakeLedger{}, senders, gateway, now)

	summary, err := loop.RunPass(context.Background(), false)
	if err != nil {
		t.Fatalf("RunPass() error = %v", err)
	}

	if summary.Waiting != 1 {
		t.Errorf("Waiting = %d, want 1", summary.Waiting)
	}
	if gateway.sendCount() != 0 {
		t.Errorf("gateway sends = %d, want 0", gateway.sendCount())
	}
	if got := contacts.advancedIDs(); len(got) != 0 {
		t.Errorf("advanced contacts = %v, want none", got)
	}
}

func TestRunPassFinalStepCountsCompletion(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	seq := testSequence(5, 0, time.Hour)
	contact := boundContact(seq, 1, tp(now.Add(-time.Hour)))
	contact.CurrentStep = 1

	contacts := contactsReturning(*contact)
	gateway := &fakeGateway{}

	loop := newTestLoop(singleCampaign(), contacts, sequencesFor(seq), &fakeLedger{}, &fakeSenders{}, gateway, now)

	summary, err := loop.RunPass(context.Background(), false)
	if err != nil {
		t.Fatalf("RunPass() error = %v", err)
	}

	if summary.Sent != 1 {
		t.Errorf("Sent = %d, want 1", summary.Sent)
	}
	if summary.Completed != 1 {
		t.Errorf("Completed = %d, want 1 (final step completes the contact)", summary.Completed)
	}
}

func TestRunPassIsolatesContactErrors(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	seq := testSequence(5, 0)

	broken := boundContact(seq, 0, nil)
	broken.ID = 30
	healthy := boundContact(seq, 0, nil)
	healthy.ID = 31
	healthy.LeadID = 9

	contacts := contactsReturning(*broken, *healthy)
	ledger := &fakeLedger{
		hasSuccessfulSendFn: func(ctx context.Context, campaignID, leadID, templateID uint) (bool, error) {
			if leadID == broken.LeadID {
				return false, errors.New("connection reset")
			}
			return false, nil
		},
	}
	gateway := &fakeGateway{}

	loop := newTestLoop(singleCampaign(), contacts, sequencesFor(seq), ledger, &fakeSenders{}, gateway, now)

	summary, err := loop.RunPass(context.Background(), false)
	if err != nil {
		t.Fatalf("RunPass() error = %v", err)
	}

	if summary.Errors != 1 {
		t.Errorf("Errors = %d, want 1", summary.Errors)
	}
	if summary.Sent != 1 {
		t.Errorf("Sent = %d, want 1 (healthy contact still processed)", summary.Sent)
	}
	if summary.Checked != 2 {
		t.Errorf("Checked = %d, want 2", summary.Checked)
	}
}

func TestRunPassRerunIsIdempotent(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	seq := testSequence(5, 0)
	contact := boundContact(seq, 0, nil)

	sentTemplates := make(map[uint]bool)
	ledger := &fakeLedger{
		hasSuccessfulSendFn: func(ctx context.Context, campaignID, leadID, templateID uint) (bool, error) {
			return sentTemplates[templateID], nil
		},
		markSentFn: func(ctx context.Context, entryID uint, sentAt time.Time) error {
			sentTemplates[seq.Steps[0].TemplateID] = true
			return nil
		},
	}
	contacts := contactsReturning(*contact)
	gateway := &fakeGateway{}

	loop := newTestLoop(singleCampaign(), contacts, sequencesFor(seq), ledger, &fakeSenders{}, gateway, now)

	// First pass sends. The contact row is served stale on the second pass,
	// simulating a crash between the ledger write and the state advance.
	if _, err := loop.RunPass(context.Background(), false); err != nil {
		t.Fatalf("first RunPass() error = %v", err)
	}
	second, err := loop.RunPass(context.Background(), false)
	if err != nil {
		t.Fatalf("second RunPass() error = %v", err)
	}

	if gateway.sendCount() != 1 {
		t.Fatalf("gateway sends = %d, want 1 across both passes", gateway.sendCount())
	}
	if second.Skipped != 1 {
		t.Errorf("second pass Skipped = %d, want 1 (already-sent advance)", second.Skipped)
	}
}

func TestConcurrentPassesSendAtMostOnce(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	seq := testSequence(5, 0)
	contact := boundContact(seq, 0, nil)

	// Shared state behind the fakes: the pending claim and the CAS are the
	// real exclusion points, so they are modeled faithfully while every
	// pass reads the same stale contact snapshot.
	var mu sync.Mutex
	claimedTemplates := make(map[uint]bool)
	currentStep := contact.CurrentStep

	ledger := &fakeLedger{
		claimPendingFn: func(ctx context.Context, entry *models.EmailSendHistory) (bool, error) {
			mu.Lock()
			defer mu.Unlock()
			if claimedTemplates[entry.TemplateID] {
				return false, nil
			}
			claimedTemplates[entry.TemplateID] = true
			entry.ID = uint(len(claimedTemplates))
			return true, nil
		},
	}
	contacts := &fakeContacts{
		activeContactsFn: func(ctx context.Context, campaignID uint) ([]models.CampaignContact, error) {
			stale := *contact
			return []models.CampaignContact{stale}, nil
		},
		claimAdvanceFn: func(ctx context.Context, contactID uint, fromStep int, sentAt time.Time, totalSteps int) (bool, error) {
			mu.Lock()
			defer mu.Unlock()
			if currentStep != fromStep {
				return false, nil
			}
			currentStep = fromStep + 1
			return true, nil
		},
	}
	gateway := &fakeGateway{}

	loop := newTestLoop(singleCampaign(), contacts, sequencesFor(seq), ledger, &fakeSenders{}, gateway, now)

	const passes = 5
	var wg sync.WaitGroup
	for i := 0; i < passes; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := loop.RunPass(context.Background(), false); err != nil {
				t.Errorf("RunPass() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if gateway.sendCount() != 1 {
		t.Errorf("gateway sends = %d, want exactly 1 across %d overlapping passes", gateway.sendCount(), passes)
	}
	if currentStep != 1 {
		t.Errorf("current step = %d, want 1", currentStep)
	}
}

func TestStatusReporterBucketsContacts(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	seq := testSequence(5, 0, 2*time.Hour, 72*time.Hour)

	due := boundContact(seq, 0, nil)
	due.ID = 40

	soon := boundContact(seq, 1, tp(now.Add(-time.Hour)))
	soon.ID = 41
	soon.Lead.Email = "soon@example.com"

	far := boundContact(seq, 2, tp(now))
	far.ID = 42

	contacts := contactsReturning(*due, *soon, *far)
	ledger := &fakeLedger{
		pendingCountFn: func(ctx context.Context, campaignID uint) (int64, error) { return 1, nil },
		sentSinceFn:    func(ctx context.Context, campaignID uint, since time.Time) (int64, error) { return 2, nil },
	}

	reporter := NewStatusReporter(contacts, sequencesFor(seq), ledger)
	reporter.now = func() time.Time { return now }
	reporter.resolver.now = reporter.now

	campaign := &models.Campaign{Status: models.CampaignStatusActive}
	campaign.ID = 1

	status, err := reporter.CampaignStatus(context.Background(), campaign)
	if err != nil {
		t.Fatalf("CampaignStatus() error = %v", err)
	}

	if status.PendingDue != 1 {
		t.Errorf("PendingDue = %d, want 1", status.PendingDue)
	}
	if status.UpcomingCount != 1 {
		t.Fatalf("UpcomingCount = %d, want 1 (72h step falls outside the window)", status.UpcomingCount)
	}
	if status.Upcoming[0].LeadEmail != "soon@example.com" {
		t.Errorf("Upcoming[0].LeadEmail = %q, want soon@example.com", status.Upcoming[0].LeadEmail)
	}
	if want := now.Add(time.Hour); !status.Upcoming[0].NextSendAt.Equal(want) {
		t.Errorf("Upcoming[0].NextSendAt = %v, want %v", status.Upcoming[0].NextSendAt, want)
	}
	if !status.CurrentlySending {
		t.Error("CurrentlySending = false, want true")
	}
}
