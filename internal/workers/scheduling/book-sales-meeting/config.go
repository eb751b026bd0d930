// internal/workers/scheduling/book-sales-meeting/config.go
package booksalesmeeting

import "time"

type Config struct {
	Timeout time.Duration
	// AdvanceState moves the conversation to NEXT_STEPS after a booking.
	AdvanceState bool
}

func LoadConfig() *Config {
	return &Config{
		Timeout:      45 * time.Second,
		AdvanceState: true,
	}
}
