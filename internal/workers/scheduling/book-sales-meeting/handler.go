// internal/workers/scheduling/book-sales-meeting/handler.go
package booksalesmeeting

import (
	"context"
	"fmt"

	"trialist-agent/internal/common/logger"
	"trialist-agent/internal/conversation"
	"trialist-agent/internal/models"
	"trialist-agent/internal/scheduling"
	"trialist-agent/pkg/registry"
)

const (
	TaskType = "book-sales-meeting"
	ToolName = "book_sales_meeting"
)

type Handler struct {
	config    *Config
	scheduler *scheduling.Scheduler
	session   *conversation.Session
	logger    logger.Logger
}

func NewHandler(config *Config, scheduler *scheduling.Scheduler, sess *conversation.Session, log logger.Logger) *Handler {
	return &Handler{
		config:    config,
		scheduler: scheduler,
		session:   sess,
		logger:    log.WithFields(map[string]interface{}{"taskType": TaskType}),
	}
}

func (h *Handler) Register(reg *registry.Registry) error {
	return reg.Register(ToolName, registry.Typed(h.Execute))
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if h.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.config.Timeout)
		defer cancel()
	}

	result, err := h.scheduler.Book(ctx, h.session, models.MeetingRequest{
		CustomerName:  input.CustomerName,
		CustomerEmail: input.CustomerEmail,
		PreferredDate: input.PreferredDate,
		PreferredTime: input.PreferredTime,
	})
	if err != nil {
		return nil, err
	}

	h.session.AddNote(fmt.Sprintf("Sales meeting booked for %s", result.MeetingTime))
	if h.config.AdvanceState {
		current := h.session.State()
		if conversation.CanTransition(current, models.StateNextSteps) {
			h.session.Transition(models.StateNextSteps, "meeting booked")
		}
	}

	h.logger.Info("sales meeting booked", map[string]interface{}{
		"sessionId": h.session.ID,
		"eventId":   result.CalendarEventID,
	})
	return &Output{MeetingResult: *result, ConversationState: h.session.State()}, nil
}
