// Package httpapi exposes the session manager over HTTP for the voice
// gateway.
package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"trialist-agent/internal/agent"
	"trialist-agent/internal/common/errors"
	"trialist-agent/internal/common/logger"
	"trialist-agent/internal/conversation"
	"trialist-agent/internal/models"
	"trialist-agent/pkg/registry"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

const maxToolArgsBytes = 64 << 10

// Sessions is the session surface the handlers drive.
type Sessions interface {
	Create(ctx context.Context, opts agent.StartOptions) (*agent.SessionView, error)
	Get(ctx context.Context, id string) (*agent.SessionView, error)
	Utterance(ctx context.Context, id, text string) (*conversation.UtteranceResult, error)
	InvokeTool(ctx context.Context, id, tool string, args json.RawMessage) (*registry.Result, error)
	Close(ctx context.Context, id, reason string) (*models.SessionExport, error)
	Tools() []registry.ToolDefinition
	Active() int
}

// Check reports whether one backing service is reachable.
type Check func(ctx context.Context) error

type Handler struct {
	sessions Sessions
	val      *validator.Validate
	checks   map[string]Check
	errs     *errors.ErrorHandler
	logger   logger.Logger
}

func NewHandler(sessions Sessions, checks map[string]Check, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"component": "httpapi"})
	return &Handler{
		sessions: sessions,
		val:      validator.New(),
		checks:   checks,
		errs:     errors.NewErrorHandler(log),
		logger:   log,
	}
}

type createSessionRequest struct {
	SessionID string `json:"session_id" validate:"omitempty,max=64,excludesall=/"`
	UserEmail string `json:"user_email" validate:"omitempty,email"`
	Consent   bool   `json:"consent"`
}

type utteranceRequest struct {
	Text string `json:"text" validate:"required,max=2000"`
}

type closeRequest struct {
	Reason string `json:"reason" validate:"omitempty,max=64"`
}

type toolsResponse struct {
	Tools     []registry.ToolDefinition `json:"tools"`
	Functions []registry.FunctionSpec   `json:"functions"`
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/tools", h.ListTools)
	rg.POST("/sessions", h.CreateSession)
	rg.GET("/sessions/:id", h.GetSession)
	rg.POST("/sessions/:id/utterances", h.PostUtterance)
	rg.POST("/sessions/:id/tools/:tool", h.InvokeTool)
	rg.POST("/sessions/:id/close", h.CloseSession)
}

// bind decodes and validates a JSON body. It writes the 400 itself.
func (h *Handler) bind(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		writeError(c, http.StatusBadRequest, msgInvalidRequest, err.Error())
		return false
	}
	if err := h.val.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, msgValidationFailed, fieldErrors(err))
		return false
	}
	return true
}

func fieldErrors(err error) interface{} {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		out[fe.Field()] = fe.Tag()
	}
	return out
}

// GET /v1/tools
func (h *Handler) ListTools(c *gin.Context) {
	defs := h.sessions.Tools()
	fns := make([]registry.FunctionSpec, 0, len(defs))
	for _, d := range defs {
		fns = append(fns, d.Function())
	}
	c.JSON(http.StatusOK, toolsResponse{Tools: defs, Functions: fns})
}

// POST /v1/sessions
func (h *Handler) CreateSession(c *gin.Context) {
	var req createSessionRequest
	if !h.bind(c, &req) {
		return
	}
	v, err := h.sessions.Create(c.Request.Context(), agent.StartOptions{
		ID:        strings.TrimSpace(req.SessionID),
		UserEmail: req.UserEmail,
		Consent:   req.Consent,
	})
	if err != nil {
		if stdErr, ok := errors.AsStandardError(err); ok && stdErr.Code == errors.ErrCodeValidationFailed {
			writeError(c, http.StatusConflict, stdErr.Message, stdErr.Details)
			return
		}
		h.handleError(c, "create_session", err)
		return
	}
	c.JSON(http.StatusCreated, v)
}

// GET /v1/sessions/:id
func (h *Handler) GetSession(c *gin.Context) {
	v, err := h.sessions.Get(c.Request.Context(), c.Param("id"))
	if h.handleError(c, "get_session", err) {
		return
	}
	c.JSON(http.StatusOK, v)
}

// POST /v1/sessions/:id/utterances
func (h *Handler) PostUtterance(c *gin.Context) {
	var req utteranceRequest
	if !h.bind(c, &req) {
		return
	}
	res, err := h.sessions.Utterance(c.Request.Context(), c.Param("id"), req.Text)
	if h.handleError(c, "utterance", err) {
		return
	}
	c.JSON(http.StatusOK, res)
}

// POST /v1/sessions/:id/tools/:tool
//
// Tool failures are part of the dialogue and come back as 200 with
// success=false; only unknown sessions and tools are HTTP errors.
func (h *Handler) InvokeTool(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxToolArgsBytes))
	if err != nil {
		writeError(c, http.StatusRequestEntityTooLarge, msgInvalidRequest, err.Error())
		return
	}
	res, err := h.sessions.InvokeTool(c.Request.Context(), c.Param("id"), c.Param("tool"), json.RawMessage(body))
	if h.handleError(c, "invoke_tool", err) {
		return
	}
	c.JSON(http.StatusOK, res)
}

// POST /v1/sessions/:id/close
func (h *Handler) CloseSession(c *gin.Context) {
	var req closeRequest
	if c.Request.ContentLength != 0 && !h.bind(c, &req) {
		return
	}
	export, err := h.sessions.Close(c.Request.Context(), c.Param("id"), req.Reason)
	if h.handleError(c, "close_session", err) {
		return
	}
	c.JSON(http.StatusOK, export)
}

// GET /healthz
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "active_sessions": h.sessions.Active()})
}

// GET /readyz
func (h *Handler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			status = http.StatusServiceUnavailable
			results[name] = err.Error()
			h.logger.Warn("readiness check failed", map[string]interface{}{"check": name, "error": err.Error()})
			continue
		}
		results[name] = "ok"
	}
	state := "ready"
	if status != http.StatusOK {
		state = "degraded"
	}
	c.JSON(status, gin.H{"status": state, "checks": results})
}
