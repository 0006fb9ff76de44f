package service

import (
	"context"
	"math/rand"
	"time"

	"github.com/Astemirdum/circulation-service/circulation/internal/errs"
	"github.com/pkg/errors"
)

const (
	defaultMaxAttempts  = 6
	defaultBaseDelay    = 10 * time.Millisecond
	defaultJitterFactor = 0.3
)

type retryConfig struct {
	maxAttempts  int
	baseDelay    time.Duration
	jitterFactor float64
}

// retryOnConflict runs fn until it stops failing with errs.ErrConcurrencyConflict
// or the attempts run out. Delays grow as baseDelay * 2^(attempt-1) plus jitter.
// Every other error is returned right away.
func retryOnConflict(ctx context.Context, cfg retryConfig, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < cfg.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := cfg.baseDelay * time.Duration(1<<(attempt-1))
			jitter := rand.Float64() * float64(delay) * cfg.jitterFactor //nolint:gosec
			select {
			case <-time.After(delay + time.Duration(jitter)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !errors.Is(lastErr, errs.ErrConcurrencyConflict) {
			return lastErr
		}
	}
	return lastErr
}
