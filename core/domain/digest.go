package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DigestFrequency selects the mailbox lookback window.
type DigestFrequency string

const (
	FrequencyDaily    DigestFrequency = "daily"
	FrequencyWeekly   DigestFrequency = "weekly"
	FrequencyBiweekly DigestFrequency = "biweekly"
	FrequencyMonthly  DigestFrequency = "monthly"
)

// ParseFrequency validates a frequency string.
func ParseFrequency(s string) (DigestFrequency, error) {
	switch DigestFrequency(s) {
	case FrequencyDaily, FrequencyWeekly, FrequencyBiweekly, FrequencyMonthly:
		return DigestFrequency(s), nil
	default:
		return "", fmt.Errorf("invalid frequency %q, use: daily, weekly, biweekly, monthly", s)
	}
}

// LookbackDays returns the date window for a frequency.
func (f DigestFrequency) LookbackDays() int {
	switch f {
	case FrequencyWeekly:
		return 7
	case FrequencyBiweekly:
		return 14
	case FrequencyMonthly:
		return 30
	default:
		return 1
	}
}

// TopEmail is a rollup entry for the most relevant messages of a category.
type TopEmail struct {
	Subject  string   `json:"subject"`
	From     string   `json:"from"`
	Priority Priority `json:"priority"`
}

// CategorySummary is the per-category rollup inside a digest.
type CategorySummary struct {
	Category  EmailCategory `json:"category"`
	Count     int           `json:"count"`
	Summary   string        `json:"summary"`
	TopEmails []TopEmail    `json:"topEmails"`
}

// DigestSummary is the aggregate digest returned to callers.
// GeneratedAt is an ISO-8601 UTC timestamp string.
type DigestSummary struct {
	TotalEmails int               `json:"totalEmails"`
	UnreadCount int               `json:"unreadCount"`
	Categories  []CategorySummary `json:"categories"`
	Highlights  []string          `json:"highlights"`
	ActionItems []string          `json:"actionItems"`
	GeneratedAt string            `json:"generatedAt"`
}

// DigestRecord is the persisted form of a digest, one "latest" per user.
type DigestRecord struct {
	ID          int64             `json:"id"`
	UserID      uuid.UUID         `json:"user_id"`
	Frequency   DigestFrequency   `json:"frequency"`
	TotalEmails int               `json:"total_emails"`
	UnreadCount int               `json:"unread_count"`
	Categories  []CategorySummary `json:"categories"`
	Highlights  []string          `json:"highlights"`
	ActionItems []string          `json:"action_items"`
	GeneratedAt time.Time         `json:"generated_at"`
}

// Summary converts a stored record back into the caller-facing shape.
func (r *DigestRecord) Summary() *DigestSummary {
	return &DigestSummary{
		TotalEmails: r.TotalEmails,
		UnreadCount: r.UnreadCount,
		Categories:  r.Categories,
		Highlights:  r.Highlights,
		ActionItems: r.ActionItems,
		GeneratedAt: r.GeneratedAt.UTC().Format(time.RFC3339),
	}
}
