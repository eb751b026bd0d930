// internal/workers/scheduling/book-sales-meeting/models.go
package booksalesmeeting

import "trialist-agent/internal/models"

type Input struct {
	CustomerName  string `json:"customer_name"`
	CustomerEmail string `json:"customer_email,omitempty"`
	PreferredDate string `json:"preferred_date,omitempty"`
	PreferredTime string `json:"preferred_time,omitempty"`
}

type Output struct {
	models.MeetingResult
	ConversationState models.ConversationState `json:"conversation_state"`
}
