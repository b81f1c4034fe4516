package worker

import (
	"context"
	"log"
	"time"

	"dripmail/store"
	"dripmail/utils"
)

// QuotaResetWorker zeroes every sender's sent_today counter at local
// midnight so daily limits describe a calendar day rather than a rolling
// window.
type QuotaResetWorker struct {
	Senders *store.SenderStore
	Logger  *log.Logger
}

func NewQuotaResetWorker(senders *store.SenderStore, logger *log.Logger) *QuotaResetWorker {
	return &QuotaResetWorker{Senders: senders, Logger: logger}
}

func (qw *QuotaResetWorker) Start(ctx context.Context) {
	qw.Logger.Println("Quota reset worker started")

	for {
		timer := time.NewTimer(untilNextMidnight(time.Now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			qw.Logger.Println("Quota reset worker shutting down...")
			return
		case <-timer.C:
			if err := qw.Senders.ResetDailyCounters(ctx); err != nil {
				utils.LogError("quota_reset_failed", err, nil)
				continue
			}
			qw.Logger.Println("daily send counters reset")
		}
	}
}

func untilNextMidnight(now time.Time) time.Duration {
	next := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).AddDate(0, 0, 1)
	return next.Sub(now)
}
