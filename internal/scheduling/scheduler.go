package scheduling

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"trialist-agent/internal/calendar"
	"trialist-agent/internal/common/errors"
	"trialist-agent/internal/common/logger"
	"trialist-agent/internal/common/metrics"
	"trialist-agent/internal/conversation"
	"trialist-agent/internal/models"
	"trialist-agent/internal/resilience"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

const (
	meetingTimeLayout = "Monday, January 02 at 03:04 PM MST"
	followUpTimeout   = 5 * time.Second
)

type Config struct {
	Duration   time.Duration
	SalesEmail string
}

// Scheduler books sales meetings for qualified leads. The qualification gate
// is enforced here, not left to the dialogue model.
type Scheduler struct {
	creator  calendar.Creator
	slots    *SlotResolver
	followUp FollowUp
	validate *validator.Validate
	cfg      Config
	logger   logger.Logger
}

// NewScheduler wires the booking flow. followUp may be nil.
func NewScheduler(creator calendar.Creator, slots *SlotResolver, followUp FollowUp, cfg Config, log logger.Logger) *Scheduler {
	if cfg.Duration <= 0 {
		cfg.Duration = 30 * time.Minute
	}
	return &Scheduler{
		creator:  creator,
		slots:    slots,
		followUp: followUp,
		validate: validator.New(),
		cfg:      cfg,
		logger:   log.WithFields(map[string]interface{}{"component": "scheduler"}),
	}
}

func (s *Scheduler) Slots() *SlotResolver {
	return s.slots
}

// Book runs the booking flow for the session. Every failure is a
// *resilience.RecoveryError whose message can be spoken to the user.
func (s *Scheduler) Book(ctx context.Context, sess *conversation.Session, req models.MeetingRequest) (*models.MeetingResult, error) {
	responder := sess.Responder()
	call := resilience.Call{
		Service:  calendar.ServiceName,
		Category: resilience.CategoryGenericToolFailure,
		Fallback: s.retryFallback(),
	}
	log := s.logger.WithFields(map[string]interface{}{"session_id": sess.ID})

	req.CustomerName = strings.TrimSpace(req.CustomerName)
	if err := s.validateRequest(req); err != nil {
		metrics.Bookings.WithLabelValues("invalid").Inc()
		return nil, responder.Reject(resilience.Call{Service: calendar.ServiceName}, resilience.CategoryInvalidQuery, err)
	}

	email := strings.TrimSpace(req.CustomerEmail)
	if email == "" {
		email = sess.UserEmail()
	}
	if s.validate.Var(email, "required,email") != nil {
		metrics.Bookings.WithLabelValues("missing_email").Inc()
		log.Info("booking blocked: no usable email", nil)
		return nil, responder.Reject(resilience.Call{Service: calendar.ServiceName}, resilience.CategoryMissingEmail, errors.NewMissingEmailError())
	}

	signals := sess.Signals()
	if tier := sess.Engine().Evaluate(signals); tier != models.TierSalesReady {
		metrics.Bookings.WithLabelValues("not_qualified").Inc()
		log.Info("booking blocked: lead not qualified", map[string]interface{}{"tier": string(tier)})
		return nil, responder.Reject(resilience.Call{Service: calendar.ServiceName}, resilience.CategoryNotQualified,
			errors.NewNotQualifiedError(string(tier)))
	}

	if sess.UserEmail() == "" {
		sess.SetUserEmail(email)
	}

	start := s.slots.ResolveSlot(req.PreferredDate, req.PreferredTime)
	event := s.BuildEvent(req.CustomerName, email, signals, start)

	created, err := resilience.Run(ctx, responder, sess, call, func(ctx context.Context) (*calendar.CreatedEvent, error) {
		return s.creator.CreateEvent(ctx, event)
	})
	if err != nil {
		metrics.Bookings.WithLabelValues("failed").Inc()
		if re, ok := resilience.AsRecoveryError(err); ok && re.Category == resilience.CategoryAuthFailure {
			re.Fallback = s.directFallback()
		}
		s.notifyFailure(ctx, sess, req.CustomerName, email, start, signals, err)
		return nil, err
	}

	metrics.Bookings.WithLabelValues(models.BookingConfirmed).Inc()
	log.Info("meeting booked", map[string]interface{}{
		"event_id": created.ID,
		"start":    start.Format(time.RFC3339),
	})

	return &models.MeetingResult{
		BookingStatus:   models.BookingConfirmed,
		MeetingTime:     start.Format(meetingTimeLayout),
		StartsAt:        start,
		Timezone:        s.slots.Location().String(),
		MeetingLink:     created.JoinLink(),
		CalendarEventID: created.ID,
		Action:          "meeting_booked",
	}, nil
}

func (s *Scheduler) validateRequest(req models.MeetingRequest) error {
	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !stderrors.As(err, &verrs) {
		return errors.NewValidationFailedError(err.Error())
	}
	var problems []string
	for _, fe := range verrs {
		// a bad email is handled by the email fallback below
		if fe.StructField() == "CustomerEmail" {
			continue
		}
		problems = append(problems, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	if len(problems) == 0 {
		return nil
	}
	return errors.NewValidationFailedError(strings.Join(problems, "; "))
}

// BuildEvent renders the calendar insert body for a consultation.
func (s *Scheduler) BuildEvent(name, email string, signals models.QualificationSignals, start time.Time) *calendar.Event {
	tz := s.slots.Location().String()
	end := start.Add(s.cfg.Duration)

	return &calendar.Event{
		Summary:     "Sales Consultation - " + name,
		Description: describe(name, email, signals),
		Start:       calendar.EventTime{DateTime: start.Format(time.RFC3339), TimeZone: tz},
		End:         calendar.EventTime{DateTime: end.Format(time.RFC3339), TimeZone: tz},
		Attendees:   []calendar.Attendee{{Email: email}},
		ConferenceData: &calendar.ConferenceData{
			CreateRequest: calendar.CreateConferenceRequest{
				RequestID:             uuid.NewString(),
				ConferenceSolutionKey: calendar.ConferenceSolutionKey{Type: "hangoutsMeet"},
			},
		},
		Reminders: calendar.Reminders{
			UseDefault: false,
			Overrides: []calendar.ReminderOverride{
				{Method: "email", Minutes: 60},
				{Method: "popup", Minutes: 10},
			},
		},
	}
}

func describe(name, email string, s models.QualificationSignals) string {
	unknown := func(v string) string {
		if v == "" {
			return "Unknown"
		}
		return v
	}
	intOrUnknown := func(v *int) string {
		if v == nil {
			return "Unknown"
		}
		return fmt.Sprintf("%d", *v)
	}

	var b strings.Builder
	b.WriteString("Sales consultation for qualified trial user\n\n")
	fmt.Fprintf(&b, "Customer: %s\n", name)
	fmt.Fprintf(&b, "Email: %s\n", email)
	b.WriteString("Qualification Signals:\n")
	fmt.Fprintf(&b, "- Team Size: %s\n", intOrUnknown(s.TeamSize))
	fmt.Fprintf(&b, "- Monthly Volume: %s\n", intOrUnknown(s.MonthlyVolume))
	fmt.Fprintf(&b, "- Integration Needs: %s\n", unknown(strings.Join(s.IntegrationNeeds, ", ")))
	fmt.Fprintf(&b, "- Industry: %s", unknown(s.Industry))
	return b.String()
}

func (s *Scheduler) retryFallback() string {
	if s.cfg.SalesEmail == "" {
		return "You can try again in a moment."
	}
	return fmt.Sprintf("You can try again in a moment, or email %s to book directly.", s.cfg.SalesEmail)
}

func (s *Scheduler) directFallback() string {
	if s.cfg.SalesEmail == "" {
		return "Our sales team will reach out to you directly."
	}
	return fmt.Sprintf("Please email %s directly and the team will set up a time.", s.cfg.SalesEmail)
}

func (s *Scheduler) notifyFailure(ctx context.Context, sess *conversation.Session, name, email string, start time.Time, signals models.QualificationSignals, cause error) {
	if s.followUp == nil {
		return
	}
	reason := cause.Error()
	if re, ok := resilience.AsRecoveryError(cause); ok {
		reason = string(re.Category)
		if inner := re.Unwrap(); inner != nil {
			reason += ": " + inner.Error()
		}
	}

	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), followUpTimeout)
	defer cancel()
	err := s.followUp.BookingFailed(fctx, FailedBooking{
		SessionID:     sess.ID,
		CustomerName:  name,
		CustomerEmail: email,
		RequestedSlot: start.Format(meetingTimeLayout),
		Reason:        reason,
		Signals:       describe(name, email, signals),
	})
	if err != nil {
		s.logger.Warn("booking follow-up not delivered", map[string]interface{}{
			"session_id": sess.ID,
			"error":      err.Error(),
		})
	}
}
