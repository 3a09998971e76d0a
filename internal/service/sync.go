package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"lms_extractor/internal/config"
	"lms_extractor/internal/domain"
	"lms_extractor/internal/emitter"
	"lms_extractor/internal/metrics"
)

// DefaultLearningHistoryFromDate is 2012-01-01 00:00:00 UTC, used when no
// from_date is configured and no bookmark has been stored yet.
const DefaultLearningHistoryFromDate int64 = 1325376000

type SyncService struct {
	source    Source
	records   RecordStore
	syncState SyncStateStore
	txManager TransactionManager
	publisher Publisher
	logger    *slog.Logger
	config    config.SyncConfig
	now       func() time.Time
}

func NewSyncService(
	source Source,
	records RecordStore,
	syncState SyncStateStore,
	txManager TransactionManager,
	publisher Publisher,
	logger *slog.Logger,
	cfg config.SyncConfig,
) *SyncService {
	return &SyncService{
		source:    source,
		records:   records,
		syncState: syncState,
		txManager: txManager,
		publisher: publisher,
		logger:    logger.With("source", source.ID()),
		config:    cfg,
		now:       time.Now,
	}
}

// Sync runs every configured stream in order. A fatal API error aborts only
// the stream it occurred in; a failed token exchange or a cancelled context
// ends the whole run.
func (s *SyncService) Sync(ctx context.Context) (*domain.SyncStats, error) {
	startTime := time.Now()
	s.logger.Info("starting sync",
		"source_name", s.source.Name(),
		"streams", s.config.Streams,
	)

	stats := &domain.SyncStats{SourceID: s.source.ID()}

	for _, stream := range s.config.Streams {
		// Scheduled offerings are children of courses and run inside the
		// catalogs traversal.
		if stream == domain.StreamScheduledOfferings {
			continue
		}

		streamStats, err := s.syncStream(ctx, stream)
		if err != nil {
			streamStats[0].Errors++
			streamStats[0].Aborted = true
			metrics.SyncErrors.WithLabelValues(stream, errorKind(err)).Inc()
		}
		for _, st := range streamStats {
			stats.Add(st)
		}
		if err == nil {
			continue
		}

		if errors.Is(err, domain.ErrTokenExchange) || ctx.Err() != nil {
			stats.Duration = time.Since(startTime)
			metrics.SyncDuration.Observe(stats.Duration.Seconds())
			return stats, fmt.Errorf("sync %s: %w", stream, err)
		}
		s.logger.Error("stream aborted", "stream", stream, "error", err)
	}

	stats.Duration = time.Since(startTime)
	metrics.SyncDuration.Observe(stats.Duration.Seconds())
	if stats.Errors == 0 {
		metrics.LastSuccessfulSync.SetToCurrentTime()
	}

	s.logger.Info("sync completed",
		"fetched", stats.Fetched,
		"persisted", stats.Persisted,
		"published", stats.Published,
		"errors", stats.Errors,
		"duration", stats.Duration,
	)

	return stats, nil
}

// syncStream returns the stats of stream first, followed by any child
// stream stats.
func (s *SyncService) syncStream(ctx context.Context, stream string) ([]domain.StreamStats, error) {
	start := time.Now()
	logger := s.logger.With("stream", stream)
	st := domain.StreamStats{Stream: stream}

	state, err := s.syncState.Get(ctx, s.source.ID(), stream)
	if err != nil {
		return []domain.StreamStats{st}, fmt.Errorf("get sync state: %w", err)
	}

	var children []domain.StreamStats
	switch stream {
	case domain.StreamCatalogs:
		offerings := domain.StreamStats{Stream: domain.StreamScheduledOfferings}
		err = s.syncCatalogs(ctx, &st, &offerings)
		if s.config.Enabled(domain.StreamScheduledOfferings) {
			children = append(children, offerings)
		}
	case domain.StreamLearningHistory:
		err = s.syncLearningHistory(ctx, state, &st)
	case domain.StreamUserTodoLearningItems:
		err = s.syncUserTodoLearningItems(ctx, &st)
	default:
		err = fmt.Errorf("unknown stream %q", stream)
	}

	if err == nil {
		err = s.updateSyncState(ctx, state, &st)
	}
	st.Duration = time.Since(start)

	if err == nil {
		logger.Info("stream completed",
			"fetched", st.Fetched,
			"persisted", st.Persisted,
			"published", st.Published,
			"errors", st.Errors,
			"duration", st.Duration,
		)
	}

	return append([]domain.StreamStats{st}, children...), err
}

func (s *SyncService) syncCatalogs(ctx context.Context, st, offerings *domain.StreamStats) error {
	withOfferings := s.config.Enabled(domain.StreamScheduledOfferings)

	next := ""
	for {
		page, err := withRetry(ctx, s.config.Retry, s.logger, "list catalogs", func(ctx context.Context) (*domain.CatalogPage, error) {
			return s.source.ListCatalogs(ctx, next)
		})
		if err != nil {
			return fmt.Errorf("list catalogs: %w", err)
		}

		if err := s.drainPage(ctx, *page, withOfferings, st, offerings); err != nil {
			return err
		}

		if page.NextLink == "" {
			return nil
		}
		next = page.NextLink
	}
}

// drainPage traverses a catalog page, resuming after the last completed
// catalog when a retriable error interrupts it. Records of completed
// catalogs are already persisted and published and are not fetched again.
func (s *SyncService) drainPage(ctx context.Context, page domain.CatalogPage, withOfferings bool, st, offerings *domain.StreamStats) error {
	remaining := page
	attempt := 1

	for {
		done, err := s.traversePage(ctx, remaining, withOfferings, st, offerings)
		remaining.CatalogIDs = remaining.CatalogIDs[done:]
		if err == nil {
			return nil
		}
		if done > 0 {
			attempt = 1
		}
		if !errors.Is(err, domain.ErrRetriable) || attempt >= max(s.config.Retry.MaxAttempts, 1) {
			return err
		}

		backoff := calculateBackoff(s.config.Retry, attempt)
		s.logger.Warn("catalog traversal failed, retrying",
			"attempt", attempt,
			"remaining_catalogs", len(remaining.CatalogIDs),
			"backoff", backoff,
			"error", err,
		)
		if err := sleep(ctx, backoff); err != nil {
			return err
		}
		attempt++
	}
}

// traversePage returns how many catalogs were fully delivered.
func (s *SyncService) traversePage(ctx context.Context, page domain.CatalogPage, withOfferings bool, st, offerings *domain.StreamStats) (int, error) {
	done := 0
	for batch, err := range s.source.Traverse(ctx, page) {
		if err != nil {
			return done, err
		}

		records := emitter.Emit(batch.Records, s.now().UTC())
		st.Fetched += len(records)
		if err := s.deliver(ctx, records, st); err != nil {
			return done, fmt.Errorf("catalog %s: %w", batch.CatalogID, err)
		}
		done++

		if withOfferings {
			if err := s.syncOfferings(ctx, batch.Records, offerings); err != nil {
				return done, err
			}
		}
	}
	return done, nil
}

// syncOfferings fetches scheduled offerings for every course row. A failure
// for one course is counted and skipped; only token and context failures
// stop the traversal.
func (s *SyncService) syncOfferings(ctx context.Context, rows []domain.ComponentRecord, st *domain.StreamStats) error {
	for _, row := range rows {
		if row.Feed != domain.FeedCourses {
			continue
		}

		records, err := withRetry(ctx, s.config.Retry, s.logger, "scheduled offerings", func(ctx context.Context) ([]domain.Record, error) {
			return s.source.ScheduledOfferings(ctx, row)
		})
		if err != nil {
			if errors.Is(err, domain.ErrTokenExchange) || ctx.Err() != nil {
				return err
			}
			st.Errors++
			metrics.SyncErrors.WithLabelValues(domain.StreamScheduledOfferings, errorKind(err)).Inc()
			s.logger.Error("scheduled offerings failed", "component_id", row.ID, "error", err)
			continue
		}

		st.Fetched += len(records)
		if err := s.deliver(ctx, records, st); err != nil {
			return fmt.Errorf("scheduled offerings %s: %w", row.ID, err)
		}
	}
	return nil
}

func (s *SyncService) syncLearningHistory(ctx context.Context, state *domain.SyncState, st *domain.StreamStats) error {
	from := s.learningHistoryFromDate(state)
	to := s.now().Unix()

	records, err := withRetry(ctx, s.config.Retry, s.logger, "learning history", func(ctx context.Context) ([]domain.Record, error) {
		return s.source.LearningHistory(ctx, from, to)
	})
	if err != nil {
		return fmt.Errorf("fetch learning history: %w", err)
	}

	st.Fetched = len(records)
	if err := s.deliver(ctx, records, st); err != nil {
		return err
	}

	state.Bookmark = to
	return nil
}

// learningHistoryFromDate prefers the configured from_date, then the stored
// bookmark, then DefaultLearningHistoryFromDate.
func (s *SyncService) learningHistoryFromDate(state *domain.SyncState) int64 {
	if s.config.FromDate != nil {
		return *s.config.FromDate
	}
	if state.Bookmark > 0 {
		return state.Bookmark
	}
	return DefaultLearningHistoryFromDate
}

func (s *SyncService) syncUserTodoLearningItems(ctx context.Context, st *domain.StreamStats) error {
	records, err := withRetry(ctx, s.config.Retry, s.logger, "user todo learning items", s.source.UserTodoLearningItems)
	if err != nil {
		return fmt.Errorf("fetch user todo learning items: %w", err)
	}

	st.Fetched = len(records)
	return s.deliver(ctx, records, st)
}

// deliver persists records in one transaction, then publishes them in
// order. Publish failures are counted but do not fail the stream since the
// records are already stored.
func (s *SyncService) deliver(ctx context.Context, records []domain.Record, st *domain.StreamStats) error {
	if len(records) == 0 {
		return nil
	}

	var persisted int
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		n, err := s.records.UpsertBatch(txCtx, records)
		persisted = n
		return err
	})
	if err != nil {
		return fmt.Errorf("persist records: %w", err)
	}
	st.Persisted += persisted
	metrics.RecordsEmitted.WithLabelValues(st.Stream).Add(float64(len(records)))

	if s.publisher == nil {
		return nil
	}
	for i := range records {
		if err := s.publisher.Publish(ctx, &records[i]); err != nil {
			st.Errors++
			s.logger.Error("publish record failed",
				"stream", records[i].Stream,
				"key", records[i].Key,
				"error", err,
			)
			continue
		}
		st.Published++
	}
	return nil
}

func (s *SyncService) updateSyncState(ctx context.Context, state *domain.SyncState, st *domain.StreamStats) error {
	state.SourceID = s.source.ID()
	state.Stream = st.Stream
	state.LastSyncedAt = s.now()
	state.TotalSynced += int64(st.Persisted)

	if err := s.syncState.Update(ctx, state); err != nil {
		return fmt.Errorf("update sync state: %w", err)
	}
	return nil
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, domain.ErrTokenExchange):
		return "token_exchange"
	case errors.Is(err, domain.ErrRetriable):
		return "retriable"
	case errors.Is(err, domain.ErrFatal):
		return "fatal"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "internal"
	}
}
