package httpapi

import (
	"net/http"

	"trialist-agent/internal/common/errors"

	"github.com/gin-gonic/gin"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
	msgInternal         = "internal error"
)

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error   string      `json:"error"`
	Code    string      `json:"code,omitempty"`
	Details interface{} `json:"details,omitempty"`
}

func writeError(c *gin.Context, status int, message string, details interface{}) {
	c.JSON(status, ErrorResponse{Error: message, Details: details})
}

// statusFor maps an error code onto the HTTP status the caller sees.
func statusFor(code errors.ErrorCode) int {
	switch code {
	case errors.ErrCodeNotFound, errors.ErrCodeUnknownTool:
		return http.StatusNotFound
	case errors.ErrCodeValidationFailed, errors.ErrCodeBadRequest, errors.ErrCodeMissingEmail:
		return http.StatusBadRequest
	case errors.ErrCodeInvalidTransition, errors.ErrCodeNotQualified:
		return http.StatusConflict
	case errors.ErrCodeCheckpointFailed, errors.ErrCodeServiceUnavailable, errors.ErrCodeCircuitOpen:
		return http.StatusServiceUnavailable
	case errors.ErrCodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// handleError writes err as a JSON reply. It returns false when err is nil.
func (h *Handler) handleError(c *gin.Context, operation string, err error) bool {
	if err == nil {
		return false
	}
	stdErr, ok := errors.AsStandardError(err)
	if !ok {
		stdErr = h.errs.Handle(operation, err, map[string]interface{}{"path": c.FullPath()})
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: msgInternal, Code: string(stdErr.Code)})
		return true
	}

	status := statusFor(stdErr.Code)
	if status >= http.StatusInternalServerError {
		h.errs.Handle(operation, stdErr, map[string]interface{}{"path": c.FullPath()})
	}
	c.JSON(status, ErrorResponse{Error: stdErr.Message, Code: string(stdErr.Code), Details: stdErr.Details})
	return true
}
