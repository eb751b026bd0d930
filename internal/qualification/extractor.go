package qualification

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"trialist-agent/internal/models"
)

type namedPattern struct {
	name string
	re   *regexp.Regexp
}

// wordPatterns matches each term as a whole word (plural allowed), so
// "salesforce" does not read as the sales industry and "three" not as hr.
func wordPatterns(terms ...string) []namedPattern {
	out := make([]namedPattern, 0, len(terms))
	for _, term := range terms {
		out = append(out, namedPattern{
			name: term,
			re:   regexp.MustCompile(`\b` + regexp.QuoteMeta(term) + `s?\b`),
		})
	}
	return out
}

var (
	teamSizePatterns = []*regexp.Regexp{
		regexp.MustCompile(`\b(\d+)\s*(?:people|users|team|employees|members)\b`),
		regexp.MustCompile(`\bteam\s+of\s+(\d+)\b`),
		regexp.MustCompile(`\b(\d+)\s+person\s+team\b`),
	}

	volumePatterns = []*regexp.Regexp{
		regexp.MustCompile(`\b(\d+)\s*(?:documents?|docs?|contracts?|proposals?)\s*(?:per|a|every)?\s*(?:month|week|day)\b`),
		regexp.MustCompile(`\b(?:send|create|process)\s*about\s*(\d+)\b`),
	}

	// substring membership: "zapier" also counts as an api mention
	integrationVocabulary = []string{"salesforce", "hubspot", "zapier", "api", "crm", "embedded", "webhook"}

	// checked in order; the first bucket with a hit wins
	urgencyBuckets = []struct {
		level    models.Urgency
		keywords []string
	}{
		{models.UrgencyHigh, []string{"urgent", "asap", "immediately", "this week", "right away"}},
		{models.UrgencyMedium, []string{"soon", "this month", "next week"}},
		{models.UrgencyLow, []string{"eventually", "sometime", "future", "down the road"}},
	}

	industries = wordPatterns("healthcare", "legal", "real estate", "finance", "sales", "hr")
)

// Extractor scans an utterance for qualification evidence. It is pure and
// deterministic; anything subtler is left to the dialogue model.
type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract returns the signals found in utterance. Fields that were not
// mentioned stay unknown so the result can be merged without losing data.
func (x *Extractor) Extract(utterance string) models.QualificationSignals {
	text := strings.ToLower(utterance)

	var out models.QualificationSignals
	out.TeamSize = firstNumber(teamSizePatterns, text)

	if volume := firstNumber(volumePatterns, text); volume != nil {
		factor := 1
		switch {
		case strings.Contains(text, "week"):
			factor = 4
		case strings.Contains(text, "day"):
			factor = 20
		}
		// an absurd figure is noise, not a volume
		if *volume <= math.MaxInt32/factor {
			out.MonthlyVolume = models.IntPtr(*volume * factor)
		}
	}

	for _, integration := range integrationVocabulary {
		if strings.Contains(text, integration) {
			out.IntegrationNeeds = append(out.IntegrationNeeds, integration)
		}
	}

	out.Urgency = detectUrgency(text)

	for _, industry := range industries {
		if industry.re.MatchString(text) {
			out.Industry = industry.name
			break
		}
	}
	return out
}

func firstNumber(patterns []*regexp.Regexp, text string) *int {
	for _, re := range patterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		return models.IntPtr(n)
	}
	return nil
}

func detectUrgency(text string) models.Urgency {
	for _, bucket := range urgencyBuckets {
		for _, kw := range bucket.keywords {
			if strings.Contains(text, kw) {
				return bucket.level
			}
		}
	}
	return models.UrgencyUnknown
}
