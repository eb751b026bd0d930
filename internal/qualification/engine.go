package qualification

import (
	"trialist-agent/internal/common/logger"
	"trialist-agent/internal/common/metrics"
	"trialist-agent/internal/models"
)

type rule struct {
	name  string
	match func(models.QualificationSignals) bool
}

var complexIndustries = map[string]bool{"healthcare": true, "finance": true, "legal": true}

// rules are evaluated in order. Unknown values never satisfy a rule.
var rules = []rule{
	{"team_size_5_plus", func(s models.QualificationSignals) bool {
		return s.TeamSize != nil && *s.TeamSize >= 5
	}},
	{"monthly_volume_100_plus", func(s models.QualificationSignals) bool {
		return s.MonthlyVolume != nil && *s.MonthlyVolume >= 100
	}},
	{"salesforce_integration", func(s models.QualificationSignals) bool {
		return s.HasIntegration("salesforce")
	}},
	{"hubspot_integration", func(s models.QualificationSignals) bool {
		return s.HasIntegration("hubspot")
	}},
	{"api_or_embedded", func(s models.QualificationSignals) bool {
		return s.HasIntegration("api") || s.HasIntegration("embedded")
	}},
	{"urgent_decision_maker", func(s models.QualificationSignals) bool {
		return s.BudgetAuthority == models.BudgetAuthorityDecisionMaker && s.Urgency == models.UrgencyHigh
	}},
	{"complex_industry_team", func(s models.QualificationSignals) bool {
		return complexIndustries[s.Industry] && s.TeamSize != nil && *s.TeamSize >= 3
	}},
}

// Engine decides whether a lead goes to sales or stays self-serve.
type Engine struct {
	logger logger.Logger
}

func NewEngine(log logger.Logger) *Engine {
	return &Engine{logger: log.WithFields(map[string]interface{}{"component": "qualification"})}
}

// Evaluate returns sales_ready if any rule matches.
func (e *Engine) Evaluate(s models.QualificationSignals) models.Tier {
	tier := models.TierSelfServe
	for _, r := range rules {
		if r.match(s) {
			tier = models.TierSalesReady
			break
		}
	}
	metrics.QualificationVerdicts.WithLabelValues(string(tier)).Inc()
	return tier
}

// Explain lists every rule the signals satisfy.
func (e *Engine) Explain(s models.QualificationSignals) []string {
	var matched []string
	for _, r := range rules {
		if r.match(s) {
			matched = append(matched, r.name)
		}
	}
	return matched
}

// ReadyForQualification reports whether discovery has gathered enough context
// to start qualifying: some need, plus some sizing evidence.
func (e *Engine) ReadyForQualification(s models.QualificationSignals) bool {
	hasNeed := s.UseCase != "" || len(s.PainPoints) > 0
	hasSizing := s.TeamSize != nil || s.MonthlyVolume != nil || len(s.IntegrationNeeds) > 0
	return hasNeed && hasSizing
}

// IsHotLead flags leads worth an immediate sales follow-up.
func IsHotLead(s models.QualificationSignals, teamThreshold, volumeThreshold int) bool {
	return (s.TeamSize != nil && *s.TeamSize >= teamThreshold) ||
		(s.MonthlyVolume != nil && *s.MonthlyVolume >= volumeThreshold)
}
