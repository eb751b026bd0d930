package models

import (
	"sort"
	"strings"
)

type Urgency string

const (
	UrgencyUnknown Urgency = ""
	UrgencyHigh    Urgency = "high"
	UrgencyMedium  Urgency = "medium"
	UrgencyLow     Urgency = "low"
)

type BudgetAuthority string

const (
	BudgetAuthorityUnknown       BudgetAuthority = ""
	BudgetAuthorityDecisionMaker BudgetAuthority = "decision_maker"
	BudgetAuthorityNeedsApproval BudgetAuthority = "needs_approval"
	BudgetAuthorityInfluencer    BudgetAuthority = "influencer"
)

func (b BudgetAuthority) Valid() bool {
	switch b {
	case BudgetAuthorityUnknown, BudgetAuthorityDecisionMaker, BudgetAuthorityNeedsApproval, BudgetAuthorityInfluencer:
		return true
	}
	return false
}

type Tier string

const (
	TierSalesReady Tier = "sales_ready"
	TierSelfServe  Tier = "self_serve"
)

// QualificationSignals is the evidence gathered about a lead during one
// session. Nil pointers and empty strings mean unknown.
type QualificationSignals struct {
	TeamSize         *int            `json:"team_size"`
	MonthlyVolume    *int            `json:"monthly_volume"`
	IntegrationNeeds []string        `json:"integration_needs"`
	Urgency          Urgency         `json:"urgency,omitempty"`
	Industry         string          `json:"industry,omitempty"`
	BudgetAuthority  BudgetAuthority `json:"budget_authority,omitempty"`

	UseCase          string   `json:"use_case,omitempty"`
	CurrentTool      string   `json:"current_tool,omitempty"`
	PainPoints       []string `json:"pain_points,omitempty"`
	DecisionTimeline string   `json:"decision_timeline,omitempty"`
	Location         string   `json:"location,omitempty"`
	TeamStructure    string   `json:"team_structure,omitempty"`
}

func IntPtr(v int) *int {
	return &v
}

// Merge folds update into s. Known values in update win; unknown values in
// update never erase what s already knows. Sets are unioned.
func (s *QualificationSignals) Merge(update QualificationSignals) {
	if update.TeamSize != nil && *update.TeamSize >= 0 {
		s.TeamSize = IntPtr(*update.TeamSize)
	}
	if update.MonthlyVolume != nil && *update.MonthlyVolume >= 0 {
		s.MonthlyVolume = IntPtr(*update.MonthlyVolume)
	}
	s.IntegrationNeeds = unionLower(s.IntegrationNeeds, update.IntegrationNeeds)
	if update.Urgency != UrgencyUnknown {
		s.Urgency = update.Urgency
	}
	if update.BudgetAuthority != BudgetAuthorityUnknown {
		s.BudgetAuthority = update.BudgetAuthority
	}
	mergeString(&s.Industry, strings.ToLower(update.Industry))
	mergeString(&s.UseCase, update.UseCase)
	mergeString(&s.CurrentTool, update.CurrentTool)
	mergeString(&s.DecisionTimeline, update.DecisionTimeline)
	mergeString(&s.Location, update.Location)
	mergeString(&s.TeamStructure, update.TeamStructure)
	s.PainPoints = appendUnique(s.PainPoints, update.PainPoints)
}

// Clone returns a deep copy.
func (s QualificationSignals) Clone() QualificationSignals {
	out := s
	if s.TeamSize != nil {
		out.TeamSize = IntPtr(*s.TeamSize)
	}
	if s.MonthlyVolume != nil {
		out.MonthlyVolume = IntPtr(*s.MonthlyVolume)
	}
	out.IntegrationNeeds = append([]string(nil), s.IntegrationNeeds...)
	out.PainPoints = append([]string(nil), s.PainPoints...)
	return out
}

func (s QualificationSignals) HasIntegration(name string) bool {
	name = strings.ToLower(name)
	for _, n := range s.IntegrationNeeds {
		if n == name {
			return true
		}
	}
	return false
}

// IsEmpty reports whether nothing is known yet.
func (s QualificationSignals) IsEmpty() bool {
	return s.TeamSize == nil && s.MonthlyVolume == nil && len(s.IntegrationNeeds) == 0 &&
		s.Urgency == UrgencyUnknown && s.Industry == "" && s.BudgetAuthority == BudgetAuthorityUnknown &&
		s.UseCase == "" && s.CurrentTool == "" && len(s.PainPoints) == 0 &&
		s.DecisionTimeline == "" && s.Location == "" && s.TeamStructure == ""
}

func mergeString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func unionLower(existing, add []string) []string {
	if len(add) == 0 {
		return existing
	}
	seen := make(map[string]bool, len(existing)+len(add))
	out := make([]string, 0, len(existing)+len(add))
	for _, v := range append(append([]string(nil), existing...), add...) {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func appendUnique(existing, add []string) []string {
	if len(add) == 0 {
		return existing
	}
	out := append([]string(nil), existing...)
	for _, v := range add {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		dup := false
		for _, e := range out {
			if strings.EqualFold(e, v) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, v)
		}
	}
	return out
}
