package resilience

import (
	"math/rand"
	"sync"
	"time"
)

// Category selects the recovery phrase set shown to the user.
type Category string

const (
	CategoryTimeout            Category = "timeout"
	CategoryConnectionIssue    Category = "connection_issue"
	CategoryServiceUnavailable Category = "service_unavailable"
	CategoryDataNotFound       Category = "data_not_found"
	CategoryNotQualified       Category = "not_qualified"
	CategoryToolFailure        Category = "tool_failure"
	CategoryGenericToolFailure Category = "generic_tool_failure"
	CategoryInvalidQuery       Category = "invalid_query"
	CategoryAuthFailure        Category = "auth_failure"
	CategoryMissingEmail       Category = "missing_email"
)

var defaultPhrases = map[Category][]string{
	CategoryToolFailure: {
		"Let me try finding that information another way.",
		"I'm having a slight hiccup with that lookup. Give me just a moment.",
		"Let me take a different approach to get that for you.",
	},
	CategoryConnectionIssue: {
		"I'm experiencing a brief connection issue. Bear with me for just a second.",
		"Looks like there's a momentary network hiccup. One moment please.",
		"Connection seems a bit spotty. Let me reconnect and continue.",
	},
	CategoryTimeout: {
		"That's taking longer than expected. Let me try a quicker approach.",
		"This is running a bit slow. Let me see if there's a faster way.",
		"That query is timing out. Let me try something else.",
	},
	CategoryServiceUnavailable: {
		"That service appears to be temporarily unavailable. Let's continue without it for now.",
		"I can't reach that system right now, but I can still help you with other things.",
		"That integration is having issues at the moment. Let's work around it.",
	},
	CategoryDataNotFound: {
		"I couldn't find that information. Can you clarify what you're looking for?",
		"Hmm, I'm not seeing that in the system. Could you provide a bit more detail?",
		"I don't have that data available. Let me help you with what I can access.",
	},
	CategoryGenericToolFailure: {
		"I encountered an issue, but I'm still here to help. What else can I do for you?",
		"Something went wrong on my end, but let's keep going. What would you like to know?",
		"I hit a snag there, but no worries. How else can I assist you?",
	},
	CategoryInvalidQuery: {
		"I couldn't understand that search. Could you rephrase your question?",
		"That search didn't quite work. Could you put it another way?",
		"I didn't catch what to look up there. Can you ask it a little differently?",
	},
	CategoryAuthFailure: {
		"I'm having trouble accessing that system right now. Let me help you directly.",
		"I can't get into that tool at the moment, but I can still walk you through it.",
		"My access to that system isn't working right now. Let's keep going without it.",
	},
	CategoryNotQualified: {
		"I can help you explore the product yourself. What specific capability would you like to learn about?",
		"You can get a lot done on your own plan. Which feature would you like to try first?",
		"Let's get you set up yourself. What would you like to accomplish first?",
	},
	CategoryMissingEmail: {
		"I need your email address to send the meeting invite. What's your email?",
		"What's the best email address for the calendar invite?",
		"I'll just need an email address to send the invite to. What should I use?",
	},
}

// Phrases picks recovery messages. The choice is pseudo-random for variety and
// reproducible when seeded.
type Phrases struct {
	mu   sync.Mutex
	rand *rand.Rand
	sets map[Category][]string
}

func NewPhrases(seed int64) *Phrases {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Phrases{
		rand: rand.New(rand.NewSource(seed)),
		sets: defaultPhrases,
	}
}

// Pick returns a phrase for category, falling back to the generic set.
func (p *Phrases) Pick(category Category) string {
	set, ok := p.sets[category]
	if !ok || len(set) == 0 {
		set = p.sets[CategoryGenericToolFailure]
	}
	p.mu.Lock()
	i := p.rand.Intn(len(set))
	p.mu.Unlock()
	return set[i]
}

// Options returns the phrase set for category.
func (p *Phrases) Options(category Category) []string {
	if set, ok := p.sets[category]; ok {
		return append([]string(nil), set...)
	}
	return append([]string(nil), p.sets[CategoryGenericToolFailure]...)
}
