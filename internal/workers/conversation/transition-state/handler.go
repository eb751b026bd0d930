// internal/workers/conversation/transition-state/handler.go
package transitionstate

import (
	"context"
	"strings"

	"trialist-agent/internal/common/errors"
	"trialist-agent/internal/common/logger"
	"trialist-agent/internal/conversation"
	"trialist-agent/internal/models"
	"trialist-agent/internal/resilience"
	"trialist-agent/pkg/registry"
)

const (
	TaskType = "transition-state"
	ToolName = "transition_state"
)

type Handler struct {
	config  *Config
	session *conversation.Session
	logger  logger.Logger
}

func NewHandler(config *Config, sess *conversation.Session, log logger.Logger) *Handler {
	return &Handler{
		config:  config,
		session: sess,
		logger:  log.WithFields(map[string]interface{}{"taskType": TaskType}),
	}
}

func (h *Handler) Register(reg *registry.Registry) error {
	return reg.Register(ToolName, registry.Typed(h.Execute))
}

func (h *Handler) Execute(_ context.Context, input *Input) (*Output, error) {
	from := h.session.State()
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		reason = h.config.DefaultReason
	}

	if !input.To.Valid() || !h.session.Transition(input.To, reason) {
		allowed := conversation.Allowed(from)
		return nil, h.session.Responder().Reject(resilience.Call{
			Service:  ToolName,
			Fallback: fallback(from, allowed),
		}, resilience.CategoryToolFailure, errors.NewInvalidTransitionError(string(from), string(input.To)))
	}

	return &Output{
		From:    from,
		State:   input.To,
		Allowed: conversation.Allowed(input.To),
	}, nil
}

func fallback(from models.ConversationState, allowed []models.ConversationState) string {
	if len(allowed) == 0 {
		return "The conversation is closing, so it can't move to another phase."
	}
	names := make([]string, 0, len(allowed))
	for _, s := range allowed {
		names = append(names, string(s))
	}
	return "From " + string(from) + " the conversation can move to " + strings.Join(names, ", ") + "."
}
