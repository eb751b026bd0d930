// internal/workers/conversation/record-signals/handler.go
package recordsignals

import (
	"context"
	stderrors "errors"
	"strings"

	"trialist-agent/internal/common/errors"
	"trialist-agent/internal/common/logger"
	"trialist-agent/internal/conversation"
	"trialist-agent/internal/models"
	"trialist-agent/pkg/registry"

	"github.com/go-playground/validator/v10"
)

const (
	TaskType = "record-signals"
	ToolName = "record_signals"
)

type Handler struct {
	config   *Config
	session  *conversation.Session
	validate *validator.Validate
	logger   logger.Logger
}

func NewHandler(config *Config, sess *conversation.Session, log logger.Logger) *Handler {
	return &Handler{
		config:   config,
		session:  sess,
		validate: validator.New(),
		logger:   log.WithFields(map[string]interface{}{"taskType": TaskType}),
	}
}

func (h *Handler) Register(reg *registry.Registry) error {
	return reg.Register(ToolName, registry.Typed(h.Execute))
}

func (h *Handler) Execute(_ context.Context, input *Input) (*Output, error) {
	input.UserEmail = strings.TrimSpace(input.UserEmail)
	if err := h.validate.Struct(input); err != nil {
		var verrs validator.ValidationErrors
		if stderrors.As(err, &verrs) && len(verrs) > 0 {
			return nil, errors.NewValidationFailedError(verrs[0].Field() + " failed " + verrs[0].Tag())
		}
		return nil, errors.NewValidationFailedError(err.Error())
	}
	if !models.BudgetAuthority(input.BudgetAuthority).Valid() {
		return nil, errors.NewValidationFailedError("unknown budget_authority " + input.BudgetAuthority)
	}

	merged := h.session.RecordSignals(input.signals())

	emailRecorded := false
	if input.UserEmail != "" {
		h.session.SetUserEmail(input.UserEmail)
		emailRecorded = true
	}
	if note := strings.TrimSpace(input.Note); note != "" && len(h.session.Notes()) < h.config.MaxNotes {
		h.session.AddNote(note)
	}

	engine := h.session.Engine()
	out := &Output{
		Signals:               merged,
		Tier:                  engine.Evaluate(merged),
		QualifiedBy:           engine.Explain(merged),
		ReadyForQualification: engine.ReadyForQualification(merged),
		EmailRecorded:         emailRecorded,
	}
	if out.ReadyForQualification && conversation.CanTransition(h.session.State(), models.StateQualification) {
		out.SuggestedNextState = models.StateQualification
	}

	h.logger.Info("signals recorded", map[string]interface{}{
		"sessionId": h.session.ID,
		"tier":      string(out.Tier),
	})
	return out, nil
}
