package scheduling

import (
	"context"
	"fmt"
	"strings"

	awsclient "trialist-agent/internal/common/aws"
	"trialist-agent/internal/common/logger"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// FailedBooking describes a booking the calendar could not take, so a human
// can follow up.
type FailedBooking struct {
	SessionID     string
	CustomerName  string
	CustomerEmail string
	RequestedSlot string
	Reason        string
	Signals       string
}

// FollowUp is notified when a qualified lead could not be booked.
type FollowUp interface {
	BookingFailed(ctx context.Context, b FailedBooking) error
}

// EmailFollowUp mails the sales inbox through SES.
type EmailFollowUp struct {
	sender awsclient.EmailSender
	from   string
	to     string
	logger logger.Logger
}

func NewEmailFollowUp(sender awsclient.EmailSender, from, to string, log logger.Logger) *EmailFollowUp {
	return &EmailFollowUp{
		sender: sender,
		from:   from,
		to:     to,
		logger: log.WithFields(map[string]interface{}{"component": "booking_followup"}),
	}
}

func (f *EmailFollowUp) BookingFailed(ctx context.Context, b FailedBooking) error {
	var body strings.Builder
	fmt.Fprintf(&body, "A qualified lead asked for a sales meeting but the booking failed.\n\n")
	fmt.Fprintf(&body, "Customer: %s\n", b.CustomerName)
	fmt.Fprintf(&body, "Email: %s\n", b.CustomerEmail)
	fmt.Fprintf(&body, "Requested slot: %s\n", b.RequestedSlot)
	fmt.Fprintf(&body, "Failure: %s\n", b.Reason)
	fmt.Fprintf(&body, "Session: %s\n\n%s\n", b.SessionID, b.Signals)

	_, err := f.sender.SendEmail(ctx, &ses.SendEmailInput{
		Source:           aws.String(f.from),
		Destination:      &types.Destination{ToAddresses: []string{f.to}},
		ReplyToAddresses: replyTo(b.CustomerEmail),
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String("Booking follow-up needed - " + b.CustomerName)},
			Body:    &types.Body{Text: &types.Content{Data: aws.String(body.String())}},
		},
	})
	if err != nil {
		f.logger.Error("follow-up email failed", map[string]interface{}{
			"session_id": b.SessionID,
			"error":      err.Error(),
		})
		return err
	}
	f.logger.Info("follow-up email sent", map[string]interface{}{"session_id": b.SessionID})
	return nil
}

func replyTo(email string) []string {
	if email == "" {
		return nil
	}
	return []string{email}
}
