package models

import "time"

type MeetingRequest struct {
	CustomerName  string `json:"customer_name" validate:"required,max=120"`
	CustomerEmail string `json:"customer_email,omitempty" validate:"omitempty,email"`
	PreferredDate string `json:"preferred_date,omitempty" validate:"max=80"`
	PreferredTime string `json:"preferred_time,omitempty" validate:"max=40"`
}

const BookingConfirmed = "confirmed"

type MeetingResult struct {
	BookingStatus   string    `json:"booking_status"`
	MeetingTime     string    `json:"meeting_time"`
	StartsAt        time.Time `json:"starts_at"`
	Timezone        string    `json:"timezone"`
	MeetingLink     string    `json:"meeting_link,omitempty"`
	CalendarEventID string    `json:"calendar_event_id"`
	Action          string    `json:"action"`
}
