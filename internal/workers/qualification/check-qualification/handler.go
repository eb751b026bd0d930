// internal/workers/qualification/check-qualification/handler.go
package checkqualification

import (
	"context"

	"trialist-agent/internal/common/logger"
	"trialist-agent/internal/conversation"
	"trialist-agent/internal/models"
	"trialist-agent/internal/qualification"
	"trialist-agent/pkg/registry"
)

const (
	TaskType = "check-qualification"
	ToolName = "check_qualification"
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

func (h *Handler) Execute(_ context.Context, _ *Input) (*Output, error) {
	signals := h.session.Signals()
	engine := h.session.Engine()
	tier := engine.Evaluate(signals)

	qualifiedBy := engine.Explain(signals)
	if qualifiedBy == nil {
		qualifiedBy = []string{}
	}
	out := &Output{
		Tier:                  tier,
		QualifiedBy:           qualifiedBy,
		ReadyForQualification: engine.ReadyForQualification(signals),
		HotLead:               qualification.IsHotLead(signals, h.config.HotLeadTeam, h.config.HotLeadVolume),
		Signals:               signals,
		State:                 h.session.State(),
	}
	out.Recommendation = recommend(out)

	h.logger.Debug("qualification checked", map[string]interface{}{
		"sessionId": h.session.ID,
		"tier":      string(tier),
	})
	return out, nil
}

// recommend names the next move for the dialogue model.
func recommend(o *Output) string {
	switch {
	case o.Tier == models.TierSalesReady:
		return "offer_sales_meeting"
	case o.ReadyForQualification:
		return "self_serve_onboarding"
	default:
		return "continue_discovery"
	}
}
