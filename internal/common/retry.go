package common

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/dispute-triage/internal/service"
)

var (
	// ErrRateLimit marks a provider throttling response. The next wait jumps to MaxDelay.
	ErrRateLimit = errors.New("rate limit exceeded")
	// ErrMaxRetries is returned once every attempt has failed.
	ErrMaxRetries = errors.New("max retries exceeded")
)

// RetryableError tags a failure from an embedder, a transaction source or
// the Sheets API. Retryable false stops Retry on the first attempt.
type RetryableError struct {
	Err       error
	Retryable bool
}

func (e *RetryableError) Error() string {
	return e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

func withDefaults(opts service.RetryOptions) service.RetryOptions {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.InitialDelay <= 0 {
		opts.InitialDelay = 100 * time.Millisecond
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = 30 * time.Second
	}
	if opts.Multiplier <= 0 {
		opts.Multiplier = 2.0
	}
	return opts
}

// Retry calls fetch until it succeeds, fails permanently, runs out of
// attempts or ctx is done. On exhaustion the error wraps both ErrMaxRetries
// and the last failure, so callers can still match sentinels such as
// ErrEmbeddingFailed.
func Retry[T any](ctx context.Context, opts service.RetryOptions, fetch func() (T, error)) (T, error) {
	opts = withDefaults(opts)
	delay := opts.InitialDelay

	var zero T
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		value, err := fetch()
		if err == nil {
			return value, nil
		}

		var retryableErr *RetryableError
		if errors.As(err, &retryableErr) && !retryableErr.Retryable {
			return zero, err
		}
		if attempt >= opts.MaxAttempts {
			return zero, fmt.Errorf("%w after %d attempts: %w", ErrMaxRetries, opts.MaxAttempts, err)
		}
		if errors.Is(err, ErrRateLimit) {
			delay = opts.MaxDelay
		}

		slog.Warn("Operation failed, retrying",
			"attempt", attempt,
			"max_attempts", opts.MaxAttempts,
			"delay", delay,
			"error", err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
		delay = min(time.Duration(float64(delay)*opts.Multiplier), opts.MaxDelay)
	}
}

// WithRetry is Retry for operations that only report an error.
func WithRetry(ctx context.Context, operation func() error, opts service.RetryOptions) error {
	_, err := Retry(ctx, opts, func() (struct{}, error) {
		return struct{}{}, operation()
	})
	return err
}
