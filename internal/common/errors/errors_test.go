package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureLogger struct {
	msg    string
	fields map[string]interface{}
}

func (c *captureLogger) Error(msg string, fields map[string]interface{}) {
	c.msg = msg
	c.fields = fields
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil", nil, false},
		{"plain error", fmt.Errorf("boom"), true},
		{"timeout", NewTimeoutError("calendar", nil), true},
		{"bad request", NewBadRequestError("knowledge", "bad"), false},
		{"auth", NewAuthenticationError("knowledge", 401), false},
		{"calendar 503", NewCalendarAPIError(503, ""), true},
		{"calendar 409", NewCalendarAPIError(409, ""), false},
		{"wrapped unavailable", fmt.Errorf("search: %w", NewServiceUnavailableError("knowledge", 502)), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsRetryable(tt.err))
		})
	}
}

func TestHasCode(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", NewNotQualifiedError("self_serve"))
	assert.True(t, HasCode(err, ErrCodeNotQualified))
	assert.False(t, HasCode(err, ErrCodeTimeout))
	assert.False(t, HasCode(fmt.Errorf("other"), ErrCodeNotQualified))
}

func TestStandardError_Metadata(t *testing.T) {
	err := NewServiceUnavailableError("knowledge", 503)
	assert.Equal(t, 503, err.Metadata["status"])
	assert.Equal(t, "StandardError[SERVICE_UNAVAILABLE]: Service 'knowledge' unavailable", err.Error())
	assert.False(t, err.Timestamp.IsZero())
}

func TestGetErrorCategory(t *testing.T) {
	assert.Equal(t, "TRANSIENT", GetErrorCategory(ErrCodeTimeout))
	assert.Equal(t, "BUSINESS", GetErrorCategory(ErrCodeNotQualified))
	assert.Equal(t, "CONFIGURATION", GetErrorCategory(ErrCodeAuthentication))
	assert.Equal(t, "SYSTEM", GetErrorCategory(ErrCodeInternal))
	assert.True(t, IsRetryableErrorCode(ErrCodeServiceUnavailable))
	assert.False(t, IsRetryableErrorCode(ErrCodeNotQualified))
}

func TestErrorHandler_Handle(t *testing.T) {
	log := &captureLogger{}
	h := NewErrorHandler(log)

	assert.Nil(t, h.Handle("noop", nil, nil))

	stdErr := h.Handle("book_sales_meeting", fmt.Errorf("socket closed"), map[string]interface{}{"sessionId": "s-1"})
	require.NotNil(t, stdErr)
	assert.Equal(t, ErrCodeInternal, stdErr.Code)
	assert.Equal(t, "operation failed", log.msg)
	assert.Equal(t, "book_sales_meeting", log.fields["operation"])
	assert.Equal(t, "s-1", log.fields["sessionId"])

	original := NewMissingEmailError()
	assert.Same(t, original, h.Handle("book_sales_meeting", original, nil))
}
