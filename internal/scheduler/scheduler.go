package scheduler

import (
	"context"
	"log/slog"
	"time"

	"lms_extractor/internal/domain"
)

// Syncer defines the interface for sync operations.
type Syncer interface {
	Sync(ctx context.Context) (*domain.SyncStats, error)
}

type Scheduler struct {
	syncer     Syncer
	interval   time.Duration
	runTimeout time.Duration
	logger     *slog.Logger
}

func NewScheduler(syncer Syncer, interval, runTimeout time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		syncer:     syncer,
		interval:   interval,
		runTimeout: runTimeout,
		logger:     logger,
	}
}

// Start runs a sync immediately and then once per interval until ctx is
// done. Runs never overlap.
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("scheduler started", "interval", s.interval, "run_timeout", s.runTimeout)

	s.RunOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce runs a single sync bounded by the run timeout and reports whether
// it completed without a run-level error.
func (s *Scheduler) RunOnce(ctx context.Context) bool {
	syncCtx := ctx
	if s.runTimeout > 0 {
		var cancel context.CancelFunc
		syncCtx, cancel = context.WithTimeout(ctx, s.runTimeout)
		defer cancel()
	}

	stats, err := s.syncer.Sync(syncCtx)
	if err != nil {
		s.logger.Error("sync failed", "error", err)
		return false
	}

	for _, st := range stats.Streams {
		s.logger.Debug("stream stats",
			"stream", st.Stream,
			"fetched", st.Fetched,
			"persisted", st.Persisted,
			"published", st.Published,
			"errors", st.Errors,
			"aborted", st.Aborted,
		)
	}
	return true
}
