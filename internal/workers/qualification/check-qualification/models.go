// internal/workers/qualification/check-qualification/models.go
package checkqualification

import "trialist-agent/internal/models"

type Input struct{}

type Output struct {
	Tier                  models.Tier                 `json:"tier"`
	QualifiedBy           []string                    `json:"qualified_by"`
	ReadyForQualification bool                        `json:"ready_for_qualification"`
	HotLead               bool                        `json:"hot_lead"`
	Recommendation        string                      `json:"recommendation"`
	Signals               models.QualificationSignals `json:"signals"`
	State                 models.ConversationState    `json:"state"`
}
