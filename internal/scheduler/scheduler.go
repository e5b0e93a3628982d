package scheduler

import (
	"context"
	"log/slog"
	"time"

	"batchtrack/internal/domain"
)

// Syncer re-syncs every known batch.
type Syncer interface {
	SyncAll(ctx context.Context) (*domain.SyncStats, error)
}

type Scheduler struct {
	syncer   Syncer
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger
}

func NewScheduler(syncer Syncer, interval, timeout time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		syncer:   syncer,
		interval: interval,
		timeout:  timeout,
		logger:   logger,
	}
}

// Start runs a pass immediately and then on every tick until ctx is done.
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("scheduler started", "interval", s.interval, "timeout", s.timeout)

	s.runSync(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.runSync(ctx)
		}
	}
}

func (s *Scheduler) runSync(ctx context.Context) {
	syncCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	stats, err := s.syncer.SyncAll(syncCtx)
	if err != nil {
		s.logger.Error("scheduled sync failed", "error", err)
		return
	}
	if stats.Failed > 0 {
		s.logger.Warn("scheduled sync finished with failures", "failed", stats.Failed, "batches", stats.Batches)
	}
}
