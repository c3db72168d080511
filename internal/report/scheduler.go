package report

import (
	"context"
	"log/slog"
	"time"
)

// Scheduler pushes the configured default businesses on a fixed interval.
type Scheduler struct {
	pusher   *Pusher
	interval time.Duration
}

// NewScheduler returns a Scheduler; a non-positive interval disables it.
func NewScheduler(p *Pusher, interval time.Duration) *Scheduler {
	return &Scheduler{pusher: p, interval: interval}
}

// Run pushes push.businesses every interval until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	if s.interval <= 0 {
		return
	}
	slog.Info("report: scheduler started", "interval", s.interval)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	cfg := s.pusher.Config()
	outcomes := s.pusher.PushBatch(ctx, cfg.Push.Businesses, "", nil)
	delivered := 0
	for _, o := range outcomes {
		if o.Delivered > 0 {
			delivered++
		}
	}
	slog.Info("report: scheduled push done", "businesses", len(outcomes), "delivered", delivered)
}
