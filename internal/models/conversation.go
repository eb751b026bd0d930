package models

import "time"

type ConversationState string

const (
	StateGreeting       ConversationState = "GREETING"
	StateDiscovery      ConversationState = "DISCOVERY"
	StateValueDemo      ConversationState = "VALUE_DEMO"
	StateQualification  ConversationState = "QUALIFICATION"
	StateNextSteps      ConversationState = "NEXT_STEPS"
	StateFrictionRescue ConversationState = "FRICTION_RESCUE"
	StateClosing        ConversationState = "CLOSING"
)

// AllStates lists the phases in conversational order.
var AllStates = []ConversationState{
	StateGreeting,
	StateDiscovery,
	StateValueDemo,
	StateQualification,
	StateNextSteps,
	StateFrictionRescue,
	StateClosing,
}

func (s ConversationState) Valid() bool {
	for _, known := range AllStates {
		if s == known {
			return true
		}
	}
	return false
}

// StateSnapshot is taken before a risky tool call and restored if it fails.
// Treat it as immutable once created.
type StateSnapshot struct {
	Signals QualificationSignals `json:"signals"`
	Notes   []string             `json:"notes"`
	State   ConversationState    `json:"state"`
	TakenAt time.Time            `json:"taken_at"`

	// HistoryLen is the number of transitions recorded when the snapshot was taken.
	HistoryLen int `json:"history_len"`
}

type StateTransition struct {
	From   ConversationState `json:"from"`
	To     ConversationState `json:"to"`
	Reason string            `json:"reason,omitempty"`
	At     time.Time         `json:"at"`
}

// ToolCall is the analytics record of one tool invocation.
type ToolCall struct {
	Tool      string                 `json:"tool"`
	Arguments map[string]interface{} `json:"arguments,omitempty"`
	Success   bool                   `json:"success"`
	Category  string                 `json:"error_category,omitempty"`
	Result    map[string]interface{} `json:"result,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}
