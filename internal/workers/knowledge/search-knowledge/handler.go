// internal/workers/knowledge/search-knowledge/handler.go
package searchknowledge

import (
	"context"
	"strings"

	"trialist-agent/internal/common/errors"
	"trialist-agent/internal/common/logger"
	"trialist-agent/internal/conversation"
	"trialist-agent/internal/knowledge"
	"trialist-agent/internal/resilience"
	"trialist-agent/pkg/registry"
)

const (
	TaskType = "search-knowledge"
	ToolName = "search_knowledge"
)

type Handler struct {
	config   *Config
	searcher knowledge.Searcher
	session  *conversation.Session
	logger   logger.Logger
}

func NewHandler(config *Config, searcher knowledge.Searcher, sess *conversation.Session, log logger.Logger) *Handler {
	return &Handler{
		config:   config,
		searcher: searcher,
		session:  sess,
		logger:   log.WithFields(map[string]interface{}{"taskType": TaskType}),
	}
}

func (h *Handler) Register(reg *registry.Registry) error {
	return reg.Register(ToolName, registry.Typed(h.Execute))
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	query := strings.TrimSpace(input.Query)
	if query == "" {
		return nil, errors.NewValidationFailedError("query is required")
	}

	if h.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.config.Timeout)
		defer cancel()
	}

	call := resilience.Call{
		Service:  knowledge.ServiceName,
		Category: resilience.CategoryToolFailure,
		Fallback: h.config.Fallback,
	}
	result, err := resilience.Run(ctx, h.session.Responder(), h.session, call, func(ctx context.Context) (*knowledge.Result, error) {
		return h.searcher.Search(ctx, knowledge.Query{
			Text:     query,
			Category: input.Category,
			Detailed: input.Detailed,
		})
	})
	if err != nil {
		return nil, err
	}

	tier := h.session.Engine().Evaluate(h.session.Signals())
	h.logger.Info("knowledge search completed", map[string]interface{}{
		"sessionId":    h.session.ID,
		"totalResults": result.TotalResults,
		"detailed":     input.Detailed,
	})

	if input.Detailed {
		answer := knowledge.Detailed(query, result, tier)
		return &Output{Detailed: &answer}, nil
	}
	answer := knowledge.Concise(query, result, tier)
	return &Output{Concise: &answer}, nil
}
