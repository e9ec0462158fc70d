package retry

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func instantConfig(attempts int) Config {
	cfg := DefaultConfig()
	cfg.MaxAttempts = attempts
	cfg.Jitter = false
	cfg.After = func(time.Duration) <-chan time.Time {
		ch := make(chan time.Time, 1)
		ch <- time.Now()
		return ch
	}
	return cfg
}

func TestDefaultRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, true},
		{"eof", io.EOF, true},
		{"plain", errors.New("syntax error"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DefaultRetryable(tt.err))
		})
	}
}

func TestDo_SucceedsAfterTransientErrors(t *testing.T) {
	var calls int32
	err := Do(context.Background(), instantConfig(3), func(ctx context.Context) error {
		if atomic.AddInt32(&calls, 1) < 3 {
			return io.EOF
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestDo_NonRetryableReturnsImmediately(t *testing.T) {
	var calls int32
	boom := errors.New("constraint failed")
	err := Do(context.Background(), instantConfig(5), func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestDo_MaxAttemptsExceeded(t *testing.T) {
	var retries []int
	cfg := instantConfig(3)
	cfg.OnRetry = func(attempt int, _ error, _ time.Duration) { retries = append(retries, attempt) }

	err := Do(context.Background(), cfg, func(ctx context.Context) error { return io.EOF })

	var exceeded *RetriesExceededError
	require.ErrorAs(t, err, &exceeded)
	assert.Equal(t, 3, exceeded.Attempts)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, []int{1, 2}, retries)
}

func TestDo_Permanent(t *testing.T) {
	var calls int32
	base := errors.New("record is terminal")
	err := DoWithRetryable(context.Background(), instantConfig(5), func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return Permanent(base)
	}, func(error) bool { return true })

	assert.Same(t, base, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Nil(t, Permanent(nil))
}

func TestDo_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Do(ctx, instantConfig(3), func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDo_InvalidConfig(t *testing.T) {
	err := Do(context.Background(), Config{}, func(ctx context.Context) error { return nil })
	assert.Error(t, err)

	cfg := DefaultConfig()
	cfg.InitialDelay = time.Minute
	cfg.MaxDelay = time.Second
	assert.Error(t, Do(context.Background(), cfg, func(ctx context.Context) error { return nil }))
}

func TestJitterStaysWithinBounds(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.normalize())
	for i := 0; i < 100; i++ {
		d := cfg.jitter(100 * time.Millisecond)
		assert.GreaterOrEqual(t, d, 75*time.Millisecond)
		assert.LessOrEqual(t, d, 125*time.Millisecond)
	}
}
