package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"lms_extractor/internal/config"
	"lms_extractor/internal/domain"
)

// withRetry runs fn until it succeeds, fails with a non-retriable error or
// runs out of attempts. Only domain.ErrRetriable errors are retried.
func withRetry[T any](ctx context.Context, cfg config.RetryConfig, logger *slog.Logger, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var (
		result T
		err    error
	)

	attempts := max(cfg.MaxAttempts, 1)
	for attempt := 1; attempt <= attempts; attempt++ {
		result, err = fn(ctx)
		if err == nil || !errors.Is(err, domain.ErrRetriable) {
			return result, err
		}
		if attempt == attempts {
			break
		}

		backoff := calculateBackoff(cfg, attempt)
		logger.Warn("request failed, retrying",
			"op", op,
			"attempt", attempt,
			"backoff", backoff,
			"error", err,
		)
		if err := sleep(ctx, backoff); err != nil {
			return result, err
		}
	}

	return result, fmt.Errorf("after %d attempts: %w", attempts, err)
}

func calculateBackoff(cfg config.RetryConfig, attempt int) time.Duration {
	backoff := cfg.InitialBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
	}
	if cfg.MaxBackoff > 0 && backoff > cfg.MaxBackoff {
		backoff = cfg.MaxBackoff
	}
	return backoff
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
