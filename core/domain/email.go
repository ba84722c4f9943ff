// Package domain contains the core domain types for the digest service.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// EmailCategory is the fixed classification category set.
type EmailCategory string

const (
	CategoryFinancial   EmailCategory = "financial"
	CategoryNewsletters EmailCategory = "newsletters"
	CategoryPersonal    EmailCategory = "personal"
	CategoryWork        EmailCategory = "work"
	CategorySocial      EmailCategory = "social"
	CategoryPromotions  EmailCategory = "promotions"
	CategoryUpdates     EmailCategory = "updates"
	CategoryOther       EmailCategory = "other"
)

// AllCategories lists every category in canonical order. The order is used as
// a deterministic tie-break when building digest rollups.
var AllCategories = []EmailCategory{
	CategoryFinancial,
	CategoryNewsletters,
	CategoryPersonal,
	CategoryWork,
	CategorySocial,
	CategoryPromotions,
	CategoryUpdates,
	CategoryOther,
}

// ParseCategory coerces an arbitrary string to a valid category.
// Unknown values map to CategoryOther.
func ParseCategory(s string) EmailCategory {
	for _, c := range AllCategories {
		if string(c) == s {
			return c
		}
	}
	return CategoryOther
}

// categoryRank returns the position of a category in the canonical order.
func categoryRank(c EmailCategory) int {
	for i, cc := range AllCategories {
		if cc == c {
			return i
		}
	}
	return len(AllCategories)
}

// CategoryRank is exported for deterministic ordering in rollups.
func CategoryRank(c EmailCategory) int { return categoryRank(c) }

// Priority is the classification priority level.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// ParsePriority coerces an arbitrary string to a valid priority.
// Unknown values map to PriorityLow.
func ParsePriority(s string) Priority {
	switch Priority(s) {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return Priority(s)
	default:
		return PriorityLow
	}
}

// Rank returns a sortable weight, higher is more urgent.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	default:
		return 1
	}
}

// ParsedEmail is a message fetched from the mailbox provider.
// It is ephemeral: only its display fields survive into StoredEmail.
type ParsedEmail struct {
	MessageID string   `json:"messageId"`
	ThreadID  string   `json:"threadId"`
	FromName  string   `json:"from"`
	FromEmail string   `json:"fromEmail"`
	To        string   `json:"to"`
	Subject   string   `json:"subject"`
	Snippet   string   `json:"snippet"`
	Body      string   `json:"body"`
	Date      string   `json:"date"`
	Labels    []string `json:"labels"`
	IsRead    bool     `json:"isRead"`
}

// CategorizedEmail is one classification result, joined back to the
// originating message by MessageID.
type CategorizedEmail struct {
	MessageID      string        `json:"messageId"`
	Category       EmailCategory `json:"category"`
	Confidence     float64       `json:"confidence"`
	Summary        string        `json:"summary"`
	Priority       Priority      `json:"priority"`
	ActionRequired bool          `json:"actionRequired"`
}

// StoredEmail is the persisted record for one classified message.
// At most one row exists per (UserID, MessageID).
type StoredEmail struct {
	ID             int64         `json:"id"`
	UserID         uuid.UUID     `json:"user_id"`
	MessageID      string        `json:"message_id"`
	FromName       string        `json:"from_name"`
	FromEmail      string        `json:"from_email"`
	Subject        string        `json:"subject"`
	Snippet        string        `json:"snippet"`
	Category       EmailCategory `json:"category"`
	Priority       Priority      `json:"priority"`
	AISummary      string        `json:"ai_summary"`
	Confidence     float64       `json:"confidence"`
	ActionRequired bool          `json:"action_required"`
	IsRead         bool          `json:"is_read"`
	EmailDate      string        `json:"email_date"`
	CreatedAt      time.Time     `json:"created_at"`
}

// EmailStats is the per-category breakdown of a user's stored records.
type EmailStats struct {
	Total          int                   `json:"total"`
	Unread         int                   `json:"unread"`
	ActionRequired int                   `json:"action_required"`
	ByCategory     map[EmailCategory]int `json:"by_category"`
}
