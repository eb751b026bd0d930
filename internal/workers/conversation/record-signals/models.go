// internal/workers/conversation/record-signals/models.go
package recordsignals

import "trialist-agent/internal/models"

type Input struct {
	TeamSize         *int     `json:"team_size,omitempty"`
	MonthlyVolume    *int     `json:"monthly_volume,omitempty"`
	IntegrationNeeds []string `json:"integration_needs,omitempty"`
	Urgency          string   `json:"urgency,omitempty"`
	Industry         string   `json:"industry,omitempty"`
	BudgetAuthority  string   `json:"budget_authority,omitempty"`
	UseCase          string   `json:"use_case,omitempty"`
	CurrentTool      string   `json:"current_tool,omitempty"`
	PainPoints       []string `json:"pain_points,omitempty"`
	DecisionTimeline string   `json:"decision_timeline,omitempty"`
	Location         string   `json:"location,omitempty"`
	TeamStructure    string   `json:"team_structure,omitempty"`
	UserEmail        string   `json:"user_email,omitempty" validate:"omitempty,email"`
	Note             string   `json:"note,omitempty"`
}

func (in *Input) signals() models.QualificationSignals {
	return models.QualificationSignals{
		TeamSize:         in.TeamSize,
		MonthlyVolume:    in.MonthlyVolume,
		IntegrationNeeds: in.IntegrationNeeds,
		Urgency:          models.Urgency(in.Urgency),
		Industry:         in.Industry,
		BudgetAuthority:  models.BudgetAuthority(in.BudgetAuthority),
		UseCase:          in.UseCase,
		CurrentTool:      in.CurrentTool,
		PainPoints:       in.PainPoints,
		DecisionTimeline: in.DecisionTimeline,
		Location:         in.Location,
		TeamStructure:    in.TeamStructure,
	}
}

type Output struct {
	Signals               models.QualificationSignals `json:"signals"`
	Tier                  models.Tier                 `json:"tier"`
	QualifiedBy           []string                    `json:"qualified_by,omitempty"`
	ReadyForQualification bool                        `json:"ready_for_qualification"`
	SuggestedNextState    models.ConversationState    `json:"suggested_next_state,omitempty"`
	EmailRecorded         bool                        `json:"email_recorded"`
}
