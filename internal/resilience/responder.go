package resilience

import (
	"context"
	stderrors "errors"
	"net"
	"strings"
	"syscall"

	"trialist-agent/internal/common/errors"
	"trialist-agent/internal/common/logger"
	"trialist-agent/internal/models"
)

// StateKeeper is implemented by the conversation session so a failed call can
// be rolled back to the state captured just before it.
type StateKeeper interface {
	Snapshot() models.StateSnapshot
	Restore(models.StateSnapshot)
}

// Call describes one guarded collaborator call.
type Call struct {
	Service  string
	Category Category // used when the error itself carries no better category
	Fallback string   // alternative path offered to the user
}

// RecoveryError is the only error type surfaced to the dialogue layer. Its
// message is safe to speak; the underlying cause is kept for logs.
type RecoveryError struct {
	Service     string
	Category    Category
	Message     string
	Fallback    string
	CircuitOpen bool
	cause       error
}

func (e *RecoveryError) Error() string {
	if e.Fallback == "" {
		return e.Message
	}
	return e.Message + " " + e.Fallback
}

func (e *RecoveryError) Unwrap() error {
	return e.cause
}

// AsRecoveryError unwraps err looking for a RecoveryError.
func AsRecoveryError(err error) (*RecoveryError, bool) {
	var re *RecoveryError
	if stderrors.As(err, &re) {
		return re, true
	}
	return nil, false
}

// Responder combines the breaker table, the retry executor and the phrase
// sets into the guard used for every external call.
type Responder struct {
	breakers *Breakers
	retry    *Executor
	phrases  *Phrases
	logger   logger.Logger
}

func NewResponder(breakers *Breakers, retry *Executor, phrases *Phrases, log logger.Logger) *Responder {
	return &Responder{
		breakers: breakers,
		retry:    retry,
		phrases:  phrases,
		logger:   log.WithFields(map[string]interface{}{"component": "error_responder"}),
	}
}

func (r *Responder) Breakers() *Breakers {
	return r.breakers
}

// Run guards op: an open circuit short-circuits to the fallback without
// calling op; otherwise op runs under the retry policy with every attempt fed
// to the breaker. On failure the keeper is restored to its pre-call snapshot
// and a RecoveryError is returned.
func Run[T any](ctx context.Context, r *Responder, keeper StateKeeper, call Call, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	if !r.breakers.IsAvailable(call.Service) {
		r.logger.Warn("circuit open, skipping call", map[string]interface{}{"service": call.Service})
		return zero, r.fail(call, CategoryServiceUnavailable, errors.NewCircuitOpenError(call.Service), true)
	}

	var snapshot models.StateSnapshot
	if keeper != nil {
		snapshot = keeper.Snapshot()
	}

	var (
		result  T
		lastErr error
	)
	err := r.retry.Do(ctx, call.Service, func(ctx context.Context) error {
		if !r.breakers.IsAvailable(call.Service) {
			return errors.NewCircuitOpenError(call.Service)
		}
		out, err := op(ctx)
		if err != nil {
			lastErr = err
			r.breakers.RecordFailure(call.Service)
			return err
		}
		r.breakers.RecordSuccess(call.Service)
		result = out
		return nil
	})
	if err == nil {
		return result, nil
	}

	if keeper != nil {
		keeper.Restore(snapshot)
	}

	// a breaker that opened mid-loop hides the error that tripped it
	cause := err
	if errors.HasCode(err, errors.ErrCodeCircuitOpen) && lastErr != nil {
		cause = lastErr
	}
	return zero, r.fail(call, r.Classify(cause, call.Category), cause, false)
}

// Reject builds a RecoveryError without making any call, for business rules
// that block an operation before it reaches a collaborator.
func (r *Responder) Reject(call Call, category Category, cause error) *RecoveryError {
	return r.fail(call, category, cause, false)
}

func (r *Responder) fail(call Call, category Category, cause error, circuitOpen bool) *RecoveryError {
	re := &RecoveryError{
		Service:     call.Service,
		Category:    category,
		Message:     r.phrases.Pick(category),
		Fallback:    call.Fallback,
		CircuitOpen: circuitOpen,
		cause:       cause,
	}
	fields := map[string]interface{}{
		"service":     call.Service,
		"category":    string(category),
		"circuitOpen": circuitOpen,
	}
	if cause != nil {
		fields["error"] = cause.Error()
	}
	r.logger.Warn("call failed, recovering", fields)
	return re
}

// Classify maps an error to a recovery category. fallback is used when the
// error carries no recognisable signal; an empty fallback means tool_failure.
func (r *Responder) Classify(err error, fallback Category) Category {
	if re, ok := AsRecoveryError(err); ok {
		return re.Category
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return CategoryTimeout
	}
	if stdErr, ok := errors.AsStandardError(err); ok {
		if c, ok := categoryByCode[stdErr.Code]; ok {
			return c
		}
	}

	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return CategoryTimeout
	}
	var opErr *net.OpError
	if stderrors.As(err, &opErr) || stderrors.Is(err, syscall.ECONNREFUSED) || stderrors.Is(err, syscall.ECONNRESET) {
		return CategoryConnectionIssue
	}
	if msg := strings.ToLower(err.Error()); strings.Contains(msg, "connection refused") || strings.Contains(msg, "no such host") {
		return CategoryConnectionIssue
	}

	if fallback != "" {
		return fallback
	}
	return CategoryToolFailure
}

var categoryByCode = map[errors.ErrorCode]Category{
	errors.ErrCodeTimeout:            CategoryTimeout,
	errors.ErrCodeConnectionFailed:   CategoryConnectionIssue,
	errors.ErrCodeServiceUnavailable: CategoryServiceUnavailable,
	errors.ErrCodeCircuitOpen:        CategoryServiceUnavailable,
	errors.ErrCodeNotConfigured:      CategoryServiceUnavailable,
	errors.ErrCodeBadRequest:         CategoryInvalidQuery,
	errors.ErrCodeAuthentication:     CategoryAuthFailure,
	errors.ErrCodeNotFound:           CategoryDataNotFound,
	errors.ErrCodeNotQualified:       CategoryNotQualified,
	errors.ErrCodeMissingEmail:       CategoryMissingEmail,
	errors.ErrCodeCalendarAPI:        CategoryGenericToolFailure,
}
