package resilience

import (
	"context"
	stderrors "errors"
	"math"
	"math/rand"
	"sync"
	"time"

	"trialist-agent/internal/common/errors"
	"trialist-agent/internal/common/logger"
	"trialist-agent/internal/common/metrics"
)

type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Jitter     bool
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 3,
		BaseDelay:  time.Second,
		MaxDelay:   10 * time.Second,
		Jitter:     true,
	}
}

// Backoff is the un-jittered wait after the given 0-indexed attempt:
// min(base * 2^attempt, max).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	d := float64(p.BaseDelay) * math.Pow(2, float64(attempt))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(d)
}

// Executor retries an operation with exponential backoff. Waits are
// cancellable through the context.
type Executor struct {
	policy    RetryPolicy
	retryable func(error) bool
	sleep     func(ctx context.Context, d time.Duration) error
	logger    logger.Logger

	randMu sync.Mutex
	rand   *rand.Rand
}

type ExecutorOption func(*Executor)

// WithRetryable replaces the default classification, which retries anything
// not explicitly marked non-retryable.
func WithRetryable(fn func(error) bool) ExecutorOption {
	return func(e *Executor) { e.retryable = fn }
}

// WithSleep swaps the wait function, mostly for tests.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) ExecutorOption {
	return func(e *Executor) { e.sleep = fn }
}

func WithRandSeed(seed int64) ExecutorOption {
	return func(e *Executor) { e.rand = rand.New(rand.NewSource(seed)) }
}

func NewExecutor(policy RetryPolicy, log logger.Logger, opts ...ExecutorOption) *Executor {
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}
	e := &Executor{
		policy:    policy,
		retryable: defaultRetryable,
		sleep:     sleepContext,
		logger:    log.WithFields(map[string]interface{}{"component": "retry"}),
		rand:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Executor) Policy() RetryPolicy {
	return e.policy
}

// Do runs op up to MaxRetries+1 times. The last error is returned unchanged
// once attempts are exhausted or the error is not retryable. If the context
// ends during a wait, the context error is returned.
func (e *Executor) Do(ctx context.Context, service string, op func(ctx context.Context) error) error {
	var lastErr error
	attempts := e.policy.MaxRetries + 1

	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			metrics.RetryAttempts.WithLabelValues(service, "aborted").Inc()
			return err
		}

		err := op(ctx)
		if err == nil {
			metrics.RetryAttempts.WithLabelValues(service, "success").Inc()
			return nil
		}
		lastErr = err

		if !e.retryable(err) {
			metrics.RetryAttempts.WithLabelValues(service, "permanent").Inc()
			return err
		}
		if attempt == attempts-1 {
			break
		}
		metrics.RetryAttempts.WithLabelValues(service, "retry").Inc()

		delay := e.delay(attempt)
		e.logger.Warn("attempt failed, retrying", map[string]interface{}{
			"service":     service,
			"attempt":     attempt + 1,
			"maxAttempts": attempts,
			"nextRetryIn": delay.String(),
			"error":       err.Error(),
		})

		if err := e.sleep(ctx, delay); err != nil {
			metrics.RetryAttempts.WithLabelValues(service, "aborted").Inc()
			return err
		}
	}

	metrics.RetryAttempts.WithLabelValues(service, "exhausted").Inc()
	e.logger.Error("all retry attempts exhausted", map[string]interface{}{
		"service":  service,
		"attempts": attempts,
		"error":    lastErr.Error(),
	})
	return lastErr
}

// Execute is the value-returning form of Executor.Do.
func Execute[T any](ctx context.Context, e *Executor, service string, op func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := e.Do(ctx, service, func(ctx context.Context) error {
		out, err := op(ctx)
		if err != nil {
			return err
		}
		result = out
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}

func (e *Executor) delay(attempt int) time.Duration {
	d := e.policy.Backoff(attempt)
	if !e.policy.Jitter {
		return d
	}
	e.randMu.Lock()
	factor := 0.5 + e.rand.Float64()*0.5
	e.randMu.Unlock()
	return time.Duration(float64(d) * factor)
}

func defaultRetryable(err error) bool {
	if stderrors.Is(err, context.Canceled) {
		return false
	}
	return errors.IsRetryable(err)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
