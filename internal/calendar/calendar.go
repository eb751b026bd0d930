package calendar

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"

	"trialist-agent/internal/common/config"
	"trialist-agent/internal/common/errors"
	httpclient "trialist-agent/internal/common/http"
	"trialist-agent/internal/common/logger"
)

const ServiceName = "calendar"

type EventTime struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

type Attendee struct {
	Email string `json:"email"`
}

type ConferenceSolutionKey struct {
	Type string `json:"type"`
}

type CreateConferenceRequest struct {
	RequestID             string                `json:"requestId"`
	ConferenceSolutionKey ConferenceSolutionKey `json:"conferenceSolutionKey"`
}

type ConferenceData struct {
	CreateRequest CreateConferenceRequest `json:"createRequest"`
}

type ReminderOverride struct {
	Method  string `json:"method"`
	Minutes int    `json:"minutes"`
}

type Reminders struct {
	UseDefault bool               `json:"useDefault"`
	Overrides  []ReminderOverride `json:"overrides"`
}

// Event is the insert body for a calendar event.
type Event struct {
	Summary        string          `json:"summary"`
	Description    string          `json:"description"`
	Start          EventTime       `json:"start"`
	End            EventTime       `json:"end"`
	Attendees      []Attendee      `json:"attendees"`
	ConferenceData *ConferenceData `json:"conferenceData,omitempty"`
	Reminders      Reminders       `json:"reminders"`
}

type CreatedEvent struct {
	ID          string `json:"id"`
	HTMLLink    string `json:"htmlLink"`
	HangoutLink string `json:"hangoutLink"`
	Status      string `json:"status"`
}

// JoinLink prefers the video link over the calendar page.
func (e *CreatedEvent) JoinLink() string {
	if e.HangoutLink != "" {
		return e.HangoutLink
	}
	return e.HTMLLink
}

// Creator inserts events into the sales calendar.
type Creator interface {
	CreateEvent(ctx context.Context, event *Event) (*CreatedEvent, error)
}

// HTTPCreator talks to the Google Calendar v3 REST API with a bearer token.
type HTTPCreator struct {
	cfg    config.CalendarConfig
	client *httpclient.Client
	logger logger.Logger
}

func NewHTTPCreator(cfg config.CalendarConfig, log logger.Logger) *HTTPCreator {
	return &HTTPCreator{
		cfg:    cfg,
		client: httpclient.NewClient(config.GetDuration(cfg.Timeout)),
		logger: log.WithFields(map[string]interface{}{"component": "calendar_http"}),
	}
}

func (c *HTTPCreator) CreateEvent(ctx context.Context, event *Event) (*CreatedEvent, error) {
	if c.cfg.Token == "" || c.cfg.CalendarID == "" {
		return nil, errors.NewNotConfiguredError(ServiceName)
	}

	endpoint := fmt.Sprintf("%s/calendars/%s/events?conferenceDataVersion=1&sendUpdates=all",
		strings.TrimRight(c.cfg.BaseURL, "/"), url.PathEscape(c.cfg.CalendarID))

	resp, err := c.client.DoJSON(ctx, http.MethodPost, endpoint,
		map[string]string{"Authorization": "Bearer " + c.cfg.Token}, event)
	if err != nil {
		c.logger.Warn("calendar transport error", map[string]interface{}{"error": err.Error()})
		var netErr net.Error
		if stderrors.Is(err, context.DeadlineExceeded) || (stderrors.As(err, &netErr) && netErr.Timeout()) {
			return nil, errors.NewTimeoutError(ServiceName, err)
		}
		if stderrors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, errors.NewConnectionFailedError(ServiceName, err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		c.logger.Error("calendar authentication failed", map[string]interface{}{"status": resp.StatusCode})
		return nil, errors.NewAuthenticationError(ServiceName, resp.StatusCode)
	}
	if !resp.OK() {
		c.logger.Warn("calendar rejected event", map[string]interface{}{"status": resp.StatusCode})
		detail := string(resp.Body)
		if len(detail) > 200 {
			detail = detail[:200]
		}
		return nil, errors.NewCalendarAPIError(resp.StatusCode, detail)
	}

	var created CreatedEvent
	if err := resp.Decode(&created); err != nil {
		return nil, errors.NewCalendarAPIError(resp.StatusCode, "decode: "+err.Error())
	}
	c.logger.Info("calendar event created", map[string]interface{}{"event_id": created.ID})
	return &created, nil
}
