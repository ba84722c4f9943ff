package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"digest_server/core/domain"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// UserAdapter implements out.UserRepository on the users table.
type UserAdapter struct {
	db *sqlx.DB
}

// NewUserAdapter creates a new UserAdapter.
func NewUserAdapter(db *sqlx.DB) *UserAdapter {
	return &UserAdapter{db: db}
}

type credentialsRow struct {
	AccessToken  sql.NullString `db:"google_access_token"`
	RefreshToken sql.NullString `db:"google_refresh_token"`
	TokenExpiry  sql.NullTime   `db:"google_token_expiry"`
}

// GetCredentials returns the user's stored OAuth tokens, or nil when the
// user does not exist or has never connected a mailbox.
func (a *UserAdapter) GetCredentials(ctx context.Context, userID uuid.UUID) (*domain.MailCredentials, error) {
	var row credentialsRow
	query := `SELECT google_access_token, google_refresh_token, google_token_expiry FROM users WHERE id = $1`

	if err := a.db.GetContext(ctx, &row, query, userID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user credentials: %w", err)
	}

	if !row.RefreshToken.Valid || row.RefreshToken.String == "" {
		return nil, nil
	}

	creds := &domain.MailCredentials{
		AccessToken:  row.AccessToken.String,
		RefreshToken: row.RefreshToken.String,
	}
	if row.TokenExpiry.Valid {
		creds.Expiry = row.TokenExpiry.Time
	}
	return creds, nil
}

// SaveAccessToken persists a rotated access token and its expiry.
func (a *UserAdapter) SaveAccessToken(ctx context.Context, userID uuid.UUID, accessToken string, expiry time.Time) error {
	query := `UPDATE users SET google_access_token = $2, google_token_expiry = $3, updated_at = NOW() WHERE id = $1`

	result, err := a.db.ExecContext(ctx, query, userID, accessToken, expiry)
	if err != nil {
		return fmt.Errorf("failed to save access token: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("user not found: %s", userID)
	}

	return nil
}

// GetPushToken returns the user's Expo push token, "" when absent.
func (a *UserAdapter) GetPushToken(ctx context.Context, userID uuid.UUID) (string, error) {
	var token sql.NullString
	query := `SELECT expo_push_token FROM users WHERE id = $1`

	if err := a.db.GetContext(ctx, &token, query, userID); err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", fmt.Errorf("failed to get push token: %w", err)
	}

	return token.String, nil
}
