package resilience

import (
	"context"
	"fmt"
	"testing"
	"time"

	"trialist-agent/internal/common/errors"
	"trialist-agent/internal/common/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sleepRecorder struct {
	delays []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return ctx.Err()
}

func newTestExecutor(t *testing.T, policy RetryPolicy, rec *sleepRecorder, opts ...ExecutorOption) *Executor {
	opts = append([]ExecutorOption{WithSleep(rec.sleep), WithRandSeed(7)}, opts...)
	return NewExecutor(policy, logger.NewTestLogger(t), opts...)
}

func noJitter(maxRetries int) RetryPolicy {
	return RetryPolicy{MaxRetries: maxRetries, BaseDelay: time.Second, MaxDelay: 10 * time.Second}
}

func TestExecutor_SucceedsFirstAttempt(t *testing.T) {
	rec := &sleepRecorder{}
	e := newTestExecutor(t, noJitter(3), rec)

	calls := 0
	err := e.Do(context.Background(), "test", func(ctx context.Context) error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, rec.delays)
}

func TestExecutor_SucceedsAfterFailures(t *testing.T) {
	rec := &sleepRecorder{}
	e := newTestExecutor(t, noJitter(3), rec)

	calls := 0
	out, err := Execute(context.Background(), e, "test", func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", fmt.Errorf("transient %d", calls)
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, rec.delays)
}

func TestExecutor_ExhaustsAndReturnsLastError(t *testing.T) {
	rec := &sleepRecorder{}
	e := newTestExecutor(t, noJitter(2), rec)

	var last error
	calls := 0
	err := e.Do(context.Background(), "test", func(ctx context.Context) error {
		calls++
		last = fmt.Errorf("failure %d", calls)
		return last
	})

	assert.Equal(t, 3, calls)
	assert.Same(t, last, err)
	assert.Len(t, rec.delays, 2)
}

func TestExecutor_BackoffSchedule(t *testing.T) {
	tests := []struct {
		name     string
		policy   RetryPolicy
		expected []time.Duration
	}{
		{
			name:     "doubling",
			policy:   noJitter(3),
			expected: []time.Duration{time.Second, 2 * time.Second, 4 * time.Second},
		},
		{
			name:     "capped at max",
			policy:   RetryPolicy{MaxRetries: 3, BaseDelay: 4 * time.Second, MaxDelay: 5 * time.Second},
			expected: []time.Duration{4 * time.Second, 5 * time.Second, 5 * time.Second},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &sleepRecorder{}
			e := newTestExecutor(t, tt.policy, rec)
			_ = e.Do(context.Background(), "test", func(ctx context.Context) error {
				return fmt.Errorf("down")
			})
			assert.Equal(t, tt.expected, rec.delays)
		})
	}
}

func TestExecutor_JitterWithinBounds(t *testing.T) {
	rec := &sleepRecorder{}
	policy := noJitter(4)
	policy.Jitter = true
	e := newTestExecutor(t, policy, rec)

	_ = e.Do(context.Background(), "test", func(ctx context.Context) error {
		return fmt.Errorf("down")
	})

	require.Len(t, rec.delays, 4)
	for i, d := range rec.delays {
		full := policy.Backoff(i)
		assert.GreaterOrEqual(t, d, full/2, "attempt %d", i)
		assert.LessOrEqual(t, d, full, "attempt %d", i)
	}
}

func TestExecutor_NonRetryableStops(t *testing.T) {
	rec := &sleepRecorder{}
	e := newTestExecutor(t, noJitter(3), rec)

	calls := 0
	err := e.Do(context.Background(), "knowledge", func(ctx context.Context) error {
		calls++
		return errors.NewBadRequestError("knowledge", "empty query")
	})

	assert.Equal(t, 1, calls)
	assert.True(t, errors.HasCode(err, errors.ErrCodeBadRequest))
}

func TestExecutor_CancellationAbortsWait(t *testing.T) {
	e := NewExecutor(RetryPolicy{MaxRetries: 5, BaseDelay: time.Hour, MaxDelay: time.Hour}, logger.NewTestLogger(t))
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	start := time.Now()
	err := e.Do(ctx, "calendar", func(ctx context.Context) error {
		calls++
		cancel()
		return fmt.Errorf("session closing")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
	assert.Less(t, time.Since(start), time.Second)
}

func TestExecutor_ZeroRetries(t *testing.T) {
	rec := &sleepRecorder{}
	e := newTestExecutor(t, noJitter(0), rec)

	calls := 0
	err := e.Do(context.Background(), "test", func(ctx context.Context) error {
		calls++
		return fmt.Errorf("down")
	})

	assert.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, rec.delays)
}
