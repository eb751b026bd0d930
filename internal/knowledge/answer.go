package knowledge

import (
	"strings"

	"trialist-agent/internal/models"
)

var intentKeywords = []struct {
	words  []string
	action func(tier models.Tier) string
}{
	{[]string{"how", "setup", "configure", "create"}, func(models.Tier) string { return "provide_step_by_step_guide" }},
	{[]string{"pricing", "cost", "plan", "tier"}, func(tier models.Tier) string {
		if tier == models.TierSalesReady {
			return "explain_enterprise_pricing_and_offer_call"
		}
		return "explain_pricing_tiers"
	}},
	{[]string{"integration", "connect", "sync", "api"}, func(models.Tier) string { return "explain_integration_steps" }},
	{[]string{"error", "problem", "issue", "broken"}, func(models.Tier) string { return "provide_troubleshooting_steps" }},
}

// NextAction suggests how the assistant should follow up on a search.
func NextAction(query string, found bool, tier models.Tier) string {
	if !found {
		return "provide_direct_guidance"
	}
	q := strings.ToLower(query)
	for _, intent := range intentKeywords {
		for _, w := range intent.words {
			if strings.Contains(q, w) {
				return intent.action(tier)
			}
		}
	}
	return "provide_relevant_information"
}

// ConciseAnswer is the voice-sized reply: only the best hit.
type ConciseAnswer struct {
	Answer       *string `json:"answer"`
	Details      string  `json:"details,omitempty"`
	Action       string  `json:"action"`
	Found        bool    `json:"found"`
	TotalResults int     `json:"total_results"`
}

type DetailedHit struct {
	Title      string   `json:"title"`
	Snippet    string   `json:"snippet"`
	Highlights []string `json:"highlights"`
}

type DetailedAnswer struct {
	Results           []DetailedHit `json:"results"`
	TotalResults      int           `json:"total_results"`
	SuggestedFollowup string        `json:"suggested_followup"`
	RequestID         string        `json:"request_id,omitempty"`
}

func Concise(query string, r *Result, tier models.Tier) ConciseAnswer {
	if r == nil || len(r.Hits) == 0 {
		return ConciseAnswer{Action: "offer_human_help"}
	}
	top := r.Hits[0]
	answer := top.Snippet
	if answer == "" {
		answer = top.Title
	}
	return ConciseAnswer{
		Answer:       &answer,
		Details:      top.Description,
		Action:       NextAction(query, true, tier),
		Found:        true,
		TotalResults: r.TotalResults,
	}
}

func Detailed(query string, r *Result, tier models.Tier) DetailedAnswer {
	out := DetailedAnswer{Results: []DetailedHit{}}
	if r != nil {
		out.TotalResults = r.TotalResults
		out.RequestID = r.RequestID
		for _, h := range r.Hits {
			highlights := h.Highlights
			if highlights == nil {
				highlights = []string{}
			}
			out.Results = append(out.Results, DetailedHit{Title: h.Title, Snippet: h.Snippet, Highlights: highlights})
		}
	}
	out.SuggestedFollowup = NextAction(query, len(out.Results) > 0, tier)
	return out
}
