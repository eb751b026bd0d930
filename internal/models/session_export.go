package models

import (
	"fmt"
	"time"
)

// SessionExport is the analytics payload emitted when a session closes.
type SessionExport struct {
	SessionID         string               `json:"session_id"`
	UserEmail         string               `json:"user_email,omitempty"`
	StartedAt         time.Time            `json:"start_time"`
	EndedAt           time.Time            `json:"end_time"`
	DurationSeconds   float64              `json:"duration_seconds"`
	Signals           QualificationSignals `json:"discovered_signals"`
	QualificationTier Tier                 `json:"qualification_tier"`
	QualifiedBy       []string             `json:"qualified_by,omitempty"`
	ConversationState ConversationState    `json:"conversation_state"`
	StateHistory      []StateTransition    `json:"state_history"`
	Notes             []string             `json:"conversation_notes"`
	ToolCalls         []ToolCall           `json:"tool_calls"`
	Consent           bool                 `json:"consent"`
	CloseReason       string               `json:"close_reason,omitempty"`
	HotLead           bool                 `json:"hot_lead"`
}

// PartitionKey is the date-partitioned object key used by downstream storage.
func (e *SessionExport) PartitionKey() string {
	ts := e.EndedAt.UTC()
	if ts.IsZero() {
		ts = e.StartedAt.UTC()
	}
	return fmt.Sprintf("sessions/year=%04d/month=%02d/day=%02d/%s.json.gz",
		ts.Year(), int(ts.Month()), ts.Day(), e.SessionID)
}
