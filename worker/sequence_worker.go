package worker

import (
	"context"
	"log"
	"time"

	"dripmail/scheduler"
	"dripmail/utils"
)

// Broadcaster receives the summary of every completed pass.
type Broadcaster interface {
	Broadcast(summary *scheduler.Summary)
}

// SequenceWorker drives the scheduler on a fixed interval. Missed sends
// are picked up on the next tick, so the interval is a latency bound, not
// a correctness requirement.
type SequenceWorker struct {
	Loop     *scheduler.Loop
	Interval time.Duration
	Hub      Broadcaster
	Logger   *log.Logger
}

func NewSequenceWorker(loop *scheduler.Loop, interval time.Duration, hub Broadcaster, logger *log.Logger) *SequenceWorker {
	return &SequenceWorker{
		Loop:     loop,
		Interval: interval,
		Hub:      hub,
		Logger:   logger,
	}
}

func (sw *SequenceWorker) Start(ctx context.Context) {
	// Initial delay to let the server start up
	time.Sleep(10 * time.Second)

	sw.Logger.Printf("Sequence worker started (interval %s)", sw.Interval)

	// First pass runs immediately so a restart doesn't add a full interval
	// of delay to already-due sends.
	sw.runPass(ctx)

	ticker := time.NewTicker(sw.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			sw.Logger.Println("Sequence worker shutting down...")
			return
		case <-ticker.C:
			sw.runPass(ctx)
		}
	}
}

func (sw *SequenceWorker) runPass(ctx context.Context) {
	summary, err := sw.Loop.RunPass(ctx, false)
	if err != nil {
		utils.LogError("scheduled_pass_failed", err, nil)
		return
	}

	if sw.Hub != nil {
		sw.Hub.Broadcast(&summary)
	}

	sw.Logger.Printf("pass finished: checked=%d sent=%d waiting=%d completed=%d skipped=%d errors=%d",
		summary.Checked, summary.Sent, summary.Waiting, summary.Completed, summary.Skipped, summary.Errors)
}
