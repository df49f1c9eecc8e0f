package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTransient = errors.New("connection refused")

func TestDo_SucceedsFirstTime(t *testing.T) {
	called := 0
	err := Do(context.Background(), Config{MaxAttempts: 3, InitialBackoff: time.Millisecond}, func() error {
		called++
		return nil
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, 1, called)
}

func TestDo_SucceedsAfterRetries(t *testing.T) {
	var retried []int
	cfg := Config{
		MaxAttempts:    5,
		InitialBackoff: time.Millisecond,
		OnRetry: func(attempt int, err error, backoff time.Duration) {
			retried = append(retried, attempt)
			assert.ErrorIs(t, err, errTransient)
			assert.Positive(t, backoff)
		},
	}

	called := 0
	err := Do(context.Background(), cfg, func() error {
		called++
		if called < 3 {
			return errTransient
		}
		return nil
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, 3, called)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestDo_Exhausted(t *testing.T) {
	called := 0
	err := Do(context.Background(), Config{MaxAttempts: 3, InitialBackoff: time.Millisecond}, func() error {
		called++
		return errTransient
	}, nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, errTransient)
	assert.Contains(t, err.Error(), "failed after 3 attempts")
	assert.Equal(t, 3, called)
}

func TestDo_NonRetryable(t *testing.T) {
	fatal := errors.New("500 internal server error")

	called := 0
	err := Do(context.Background(), Config{MaxAttempts: 5, InitialBackoff: time.Millisecond}, func() error {
		called++
		return fatal
	}, func(err error) bool {
		return errors.Is(err, errTransient)
	})

	assert.Equal(t, fatal, err)
	assert.Equal(t, 1, called)
}

func TestDo_Permanent(t *testing.T) {
	fatal := errors.New("bad request")

	called := 0
	err := Do(context.Background(), Config{MaxAttempts: 5, InitialBackoff: time.Millisecond}, func() error {
		called++
		return Permanent(fatal)
	}, nil)

	assert.Equal(t, fatal, err)
	assert.Equal(t, 1, called)
	assert.NoError(t, Permanent(nil))
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := Config{
		MaxAttempts:    5,
		InitialBackoff: time.Hour,
		OnRetry:        func(int, error, time.Duration) { cancel() },
	}

	start := time.Now()
	err := Do(ctx, cfg, func() error { return errTransient }, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestDo_InvalidConfig(t *testing.T) {
	err := Do(context.Background(), Config{}, func() error { return nil }, nil)
	assert.Error(t, err)
}

func TestBackoff(t *testing.T) {
	cfg := Config{
		MaxAttempts:    5,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     time.Second,
	}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, time.Second},
		{80, time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Backoff(cfg, tt.attempt), "attempt %d", tt.attempt)
	}

	cfg.Jitter = 0.5
	assert.Equal(t, 110*time.Millisecond, Backoff(cfg, 1))
	assert.Equal(t, 240*time.Millisecond, Backoff(cfg, 2))
}
