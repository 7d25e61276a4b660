package common

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/Veraticus/dispute-triage/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry(attempts int) service.RetryOptions {
	return service.RetryOptions{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     2 * time.Millisecond,
		Multiplier:   2,
	}
}

func TestWithRetry(t *testing.T) {
	t.Run("succeeds after transient failures", func(t *testing.T) {
		calls := 0
		err := WithRetry(context.Background(), func() error {
			calls++
			if calls < 3 {
				return errors.New("transient")
			}
			return nil
		}, fastRetry(3))

		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		calls := 0
		err := WithRetry(context.Background(), func() error {
			calls++
			return errors.New("still down")
		}, fastRetry(2))

		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrMaxRetries))
		assert.Equal(t, 2, calls)
	})

	t.Run("stops on non-retryable error", func(t *testing.T) {
		calls := 0
		permanent := &RetryableError{Err: ErrEmbeddingFailed, Retryable: false}
		err := WithRetry(context.Background(), func() error {
			calls++
			return permanent
		}, fastRetry(5))

		assert.Equal(t, 1, calls)
		assert.True(t, errors.Is(err, ErrEmbeddingFailed))
	})

	t.Run("honors cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := WithRetry(ctx, func() error {
			return errors.New("fail")
		}, service.RetryOptions{MaxAttempts: 3, InitialDelay: time.Second})

		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestRetry(t *testing.T) {
	t.Run("returns the value of the successful attempt", func(t *testing.T) {
		calls := 0
		got, err := Retry(context.Background(), fastRetry(3), func() ([]float32, error) {
			calls++
			if calls == 1 {
				return nil, ErrRateLimit
			}
			return []float32{0.5, 0.5}, nil
		})

		require.NoError(t, err)
		assert.Equal(t, []float32{0.5, 0.5}, got)
		assert.Equal(t, 2, calls)
	})

	t.Run("exhaustion keeps the last failure matchable", func(t *testing.T) {
		got, err := Retry(context.Background(), fastRetry(2), func() ([]float32, error) {
			return []float32{1}, fmt.Errorf("%w: upstream timeout", ErrEmbeddingFailed)
		})

		require.Error(t, err)
		assert.Nil(t, got)
		assert.True(t, errors.Is(err, ErrMaxRetries))
		assert.True(t, errors.Is(err, ErrEmbeddingFailed))
		assert.Contains(t, err.Error(), "after 2 attempts")
	})

	t.Run("does not start after cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		calls := 0
		_, err := Retry(ctx, fastRetry(3), func() (int, error) {
			calls++
			return 1, nil
		})

		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 0, calls)
	})
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(ErrRateLimit))
	assert.True(t, IsRetryable(fmt.Errorf("wrapped: %w", context.DeadlineExceeded)))
	assert.True(t, IsRetryable(&RetryableError{Err: errors.New("x"), Retryable: true}))
	assert.False(t, IsRetryable(&RetryableError{Err: errors.New("x"), Retryable: false}))
	assert.False(t, IsRetryable(ErrInvalidConfig))
}

func TestConfigError(t *testing.T) {
	err := NewConfigError("fuzzy_threshold", "threshold is required")

	assert.True(t, errors.Is(err, ErrInvalidConfig))
	assert.Equal(t, "invalid configuration: fuzzy_threshold: threshold is required", err.Error())

	var cfgErr *ConfigError
	require.True(t, errors.As(fmt.Errorf("startup: %w", err), &cfgErr))
	assert.Equal(t, "fuzzy_threshold", cfgErr.Field)
}

func TestUserError(t *testing.T) {
	err := NewUserError("could not read disputes", ErrMalformedInput)
	assert.Equal(t, "could not read disputes: malformed input", err.Error())
	assert.True(t, errors.Is(err, ErrMalformedInput))

	assert.Equal(t, "plain", NewUserError("plain", nil).Error())
}

func TestSetupLogger(t *testing.T) {
	previous := slog.Default()
	t.Cleanup(func() { slog.SetDefault(previous) })

	var buf bytes.Buffer
	require.NoError(t, SetupLogger(&buf, "debug", "json"))

	LogInfo("run complete", Fields{"disputes": 3, "categories": 2})
	assert.Contains(t, buf.String(), `"msg":"run complete"`)
	assert.Contains(t, buf.String(), `"disputes":3`)

	buf.Reset()
	LogError(errors.New("boom"), "export failed", nil)
	assert.Contains(t, buf.String(), `"error":"boom"`)

	require.Error(t, SetupLogger(&buf, "verbose", "json"))
	require.Error(t, SetupLogger(&buf, "info", "xml"))
}
