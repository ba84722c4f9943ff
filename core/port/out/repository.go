package out

import (
	"context"
	"time"

	"digest_server/core/domain"

	"github.com/google/uuid"
)

// EmailRepository is the record store for classified messages.
type EmailRepository interface {
	// ListByUser returns every stored record for a user, newest first.
	ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.StoredEmail, error)

	// ListByUserAndCategory filters by category ("" or "all" means no
	// category filter) with a row limit.
	ListByUserAndCategory(ctx context.Context, userID uuid.UUID, category string, limit int) ([]domain.StoredEmail, error)

	// UpsertBatch writes records keyed by (user_id, message_id); conflicts
	// overwrite the existing row.
	UpsertBatch(ctx context.Context, records []domain.StoredEmail) error

	// DeleteByMessageIDs removes the user's records for the given ids.
	DeleteByMessageIDs(ctx context.Context, userID uuid.UUID, messageIDs []string) error
}

// DigestRepository stores the per-user latest digest.
type DigestRepository interface {
	// ReplaceLatest atomically supersedes the user's latest digest.
	ReplaceLatest(ctx context.Context, rec *domain.DigestRecord) error

	// GetLatest returns the newest digest for a user, or nil if none exists.
	GetLatest(ctx context.Context, userID uuid.UUID) (*domain.DigestRecord, error)

	// History returns recent digests, newest first.
	History(ctx context.Context, userID uuid.UUID, limit int) ([]domain.DigestRecord, error)
}

// UserRepository exposes the per-user credential and push token columns.
// Credential lifecycle (initial OAuth exchange) is an external concern.
type UserRepository interface {
	// GetCredentials returns nil when the user has no stored tokens.
	GetCredentials(ctx context.Context, userID uuid.UUID) (*domain.MailCredentials, error)

	// SaveAccessToken persists a rotated access token.
	SaveAccessToken(ctx context.Context, userID uuid.UUID, accessToken string, expiry time.Time) error

	// GetPushToken returns the user's push token, "" when absent.
	GetPushToken(ctx context.Context, userID uuid.UUID) (string, error)
}

// ScheduleRepository reads digest schedule preferences.
type ScheduleRepository interface {
	ListActive(ctx context.Context) ([]*domain.SchedulePreference, error)
	MarkSent(ctx context.Context, scheduleID int64, at time.Time) error
}
