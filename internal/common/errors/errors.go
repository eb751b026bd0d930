package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

type ErrorCode string

const (
	// collaborator failures
	ErrCodeTimeout            ErrorCode = "TIMEOUT"
	ErrCodeConnectionFailed   ErrorCode = "CONNECTION_FAILED"
	ErrCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	ErrCodeBadRequest         ErrorCode = "BAD_REQUEST"
	ErrCodeAuthentication     ErrorCode = "AUTHENTICATION_FAILED"
	ErrCodeNotFound           ErrorCode = "NOT_FOUND"
	ErrCodeCalendarAPI        ErrorCode = "CALENDAR_API_ERROR"
	ErrCodeCircuitOpen        ErrorCode = "CIRCUIT_OPEN"
	ErrCodeNotConfigured      ErrorCode = "NOT_CONFIGURED"

	// business rules
	ErrCodeNotQualified      ErrorCode = "NOT_QUALIFIED"
	ErrCodeMissingEmail      ErrorCode = "MISSING_EMAIL"
	ErrCodeInvalidTransition ErrorCode = "INVALID_TRANSITION"
	ErrCodeValidationFailed  ErrorCode = "VALIDATION_FAILED"
	ErrCodeUnknownTool       ErrorCode = "UNKNOWN_TOOL"

	// storage and delivery
	ErrCodeCheckpointFailed ErrorCode = "CHECKPOINT_FAILED"
	ErrCodeExportFailed     ErrorCode = "EXPORT_FAILED"

	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// WithMetadata attaches a key to the error and returns it for chaining.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

func newError(code ErrorCode, message, details string, retryable bool) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
	}
}

func NewTimeoutError(service string, err error) *StandardError {
	return newError(ErrCodeTimeout, fmt.Sprintf("Service '%s' timeout", service), errDetails(err), true)
}

func NewConnectionFailedError(service string, err error) *StandardError {
	return newError(ErrCodeConnectionFailed, fmt.Sprintf("Could not reach '%s'", service), errDetails(err), true)
}

func NewServiceUnavailableError(service string, status int) *StandardError {
	return newError(ErrCodeServiceUnavailable, fmt.Sprintf("Service '%s' unavailable", service),
		fmt.Sprintf("status: %d", status), true).WithMetadata("status", status)
}

func NewBadRequestError(service, details string) *StandardError {
	return newError(ErrCodeBadRequest, fmt.Sprintf("Service '%s' rejected the request", service), details, false)
}

func NewAuthenticationError(service string, status int) *StandardError {
	return newError(ErrCodeAuthentication, fmt.Sprintf("Authentication with '%s' failed", service),
		fmt.Sprintf("status: %d", status), false).WithMetadata("status", status)
}

func NewNotFoundError(service, details string) *StandardError {
	return newError(ErrCodeNotFound, fmt.Sprintf("Nothing found in '%s'", service), details, false)
}

// NewCalendarAPIError covers every non-auth calendar failure; only server side
// statuses are worth another attempt.
func NewCalendarAPIError(status int, details string) *StandardError {
	return newError(ErrCodeCalendarAPI, "Calendar API error", details, status >= 500).
		WithMetadata("status", status)
}

func NewCircuitOpenError(service string) *StandardError {
	return newError(ErrCodeCircuitOpen, fmt.Sprintf("Circuit open for '%s'", service), "", false)
}

func NewNotConfiguredError(service string) *StandardError {
	return newError(ErrCodeNotConfigured, fmt.Sprintf("Service '%s' is not configured", service), "", false)
}

func NewNotQualifiedError(details string) *StandardError {
	return newError(ErrCodeNotQualified, "Lead is not qualified for a sales meeting", details, false)
}

func NewMissingEmailError() *StandardError {
	return newError(ErrCodeMissingEmail, "A valid email address is required", "", false)
}

func NewInvalidTransitionError(from, to string) *StandardError {
	return newError(ErrCodeInvalidTransition, "Transition not allowed",
		fmt.Sprintf("from: %s, to: %s", from, to), false)
}

func NewValidationFailedError(details string) *StandardError {
	return newError(ErrCodeValidationFailed, "Validation failed", details, false)
}

func NewUnknownToolError(name string) *StandardError {
	return newError(ErrCodeUnknownTool, "Unknown tool", fmt.Sprintf("tool: %s", name), false)
}

func NewCheckpointFailedError(err error) *StandardError {
	return newError(ErrCodeCheckpointFailed, "Session checkpoint failed", errDetails(err), true)
}

func NewExportFailedError(sink string, err error) *StandardError {
	return newError(ErrCodeExportFailed, fmt.Sprintf("Analytics export to '%s' failed", sink), errDetails(err), true)
}

func errDetails(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// AsStandardError unwraps err looking for a StandardError.
func AsStandardError(err error) (*StandardError, bool) {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr, true
	}
	return nil, false
}

// HasCode reports whether err carries the given code anywhere in its chain.
func HasCode(err error, code ErrorCode) bool {
	stdErr, ok := AsStandardError(err)
	return ok && stdErr.Code == code
}

func IsRetryableErrorCode(code ErrorCode) bool {
	switch code {
	case ErrCodeTimeout,
		ErrCodeConnectionFailed,
		ErrCodeServiceUnavailable,
		ErrCodeCheckpointFailed,
		ErrCodeExportFailed:
		return true
	default:
		return false
	}
}

// IsRetryable reports whether another attempt could succeed. Errors that are
// not StandardErrors are treated as transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if stdErr, ok := AsStandardError(err); ok {
		return stdErr.Retryable
	}
	return true
}

func GetErrorCategory(code ErrorCode) string {
	switch code {
	case ErrCodeTimeout, ErrCodeConnectionFailed, ErrCodeServiceUnavailable, ErrCodeCircuitOpen:
		return "TRANSIENT"
	case ErrCodeBadRequest, ErrCodeValidationFailed, ErrCodeMissingEmail, ErrCodeUnknownTool:
		return "INPUT"
	case ErrCodeAuthentication, ErrCodeNotConfigured:
		return "CONFIGURATION"
	case ErrCodeNotQualified, ErrCodeInvalidTransition:
		return "BUSINESS"
	case ErrCodeNotFound:
		return "DATA"
	default:
		return "SYSTEM"
	}
}
