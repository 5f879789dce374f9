package webhook

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventAttendance = "attendance.recorded"
	EventAlert      = "alert.raised"
)

// EventPayload is the JSON body of every delivery.
type EventPayload struct {
	ID        uuid.UUID   `json:"id"`
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

type Config struct {
	URL         string
	Secret      string
	MaxAttempts int
	Timeout     time.Duration
	// BaseDelay is doubled after each failed attempt
	BaseDelay time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxAttempts: 4,
		Timeout:     10 * time.Second,
		BaseDelay:   time.Second,
	}
}
