package domain

import (
	"time"

	"github.com/google/uuid"
)

// SchedulePreference controls automatic digest generation for a user.
// DeliveryTime is "HH:MM" in the user's timezone.
type SchedulePreference struct {
	ID           int64           `json:"id"`
	UserID       uuid.UUID       `json:"user_id"`
	Frequency    DigestFrequency `json:"frequency"`
	DeliveryTime string          `json:"delivery_time"`
	Timezone     string          `json:"timezone"`
	IsActive     bool            `json:"is_active"`
	LastSentAt   *time.Time      `json:"last_sent_at"`
}

// MailCredentials are the OAuth tokens stored for a user's mailbox.
type MailCredentials struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}
