// internal/workers/conversation/transition-state/models.go
package transitionstate

import "trialist-agent/internal/models"

type Input struct {
	To     models.ConversationState `json:"to"`
	Reason string                   `json:"reason,omitempty"`
}

type Output struct {
	From    models.ConversationState   `json:"from"`
	State   models.ConversationState   `json:"state"`
	Allowed []models.ConversationState `json:"allowed_next"`
}
