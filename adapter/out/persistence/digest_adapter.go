package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"digest_server/core/domain"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// DigestAdapter implements out.DigestRepository on the digest_history table.
type DigestAdapter struct {
	db *sqlx.DB
}

// NewDigestAdapter creates a new DigestAdapter.
func NewDigestAdapter(db *sqlx.DB) *DigestAdapter {
	return &DigestAdapter{db: db}
}

// digestRow represents the database row. Categories is stored as JSONB.
type digestRow struct {
	ID          int64          `db:"id"`
	UserID      uuid.UUID      `db:"user_id"`
	Frequency   string         `db:"frequency"`
	TotalEmails int            `db:"total_emails"`
	UnreadCount int            `db:"unread_count"`
	Categories  []byte         `db:"categories"`
	Highlights  pq.StringArray `db:"highlights"`
	ActionItems pq.StringArray `db:"action_items"`
	GeneratedAt time.Time      `db:"generated_at"`
}

func (r *digestRow) toEntity() (domain.DigestRecord, error) {
	var categories []domain.CategorySummary
	if len(r.Categories) > 0 {
		if err := json.Unmarshal(r.Categories, &categories); err != nil {
			return domain.DigestRecord{}, fmt.Errorf("failed to decode digest categories: %w", err)
		}
	}

	return domain.DigestRecord{
		ID:          r.ID,
		UserID:      r.UserID,
		Frequency:   domain.DigestFrequency(r.Frequency),
		TotalEmails: r.TotalEmails,
		UnreadCount: r.UnreadCount,
		Categories:  categories,
		Highlights:  []string(r.Highlights),
		ActionItems: []string(r.ActionItems),
		GeneratedAt: r.GeneratedAt,
	}, nil
}

// ReplaceLatest supersedes the user's digest inside one transaction so
// readers never observe a window with no digest at all.
func (a *DigestAdapter) ReplaceLatest(ctx context.Context, rec *domain.DigestRecord) error {
	categories, err := json.Marshal(rec.Categories)
	if err != nil {
		return fmt.Errorf("failed to encode digest categories: %w", err)
	}

	tx, err := a.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM digest_history WHERE user_id = $1`, rec.UserID); err != nil {
		return fmt.Errorf("failed to clear old digests: %w", err)
	}

	query := `
		INSERT INTO digest_history
			(user_id, frequency, total_emails, unread_count, categories, highlights, action_items, generated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`

	err = tx.QueryRowContext(ctx, query,
		rec.UserID, string(rec.Frequency), rec.TotalEmails, rec.UnreadCount,
		categories, pq.StringArray(rec.Highlights), pq.StringArray(rec.ActionItems), rec.GeneratedAt,
	).Scan(&rec.ID)
	if err != nil {
		return fmt.Errorf("failed to insert digest: %w", err)
	}

	return tx.Commit()
}

// GetLatest retrieves the newest digest for a user, or nil if none exists.
func (a *DigestAdapter) GetLatest(ctx context.Context, userID uuid.UUID) (*domain.DigestRecord, error) {
	var row digestRow
	query := `SELECT * FROM digest_history WHERE user_id = $1 ORDER BY generated_at DESC LIMIT 1`

	if err := a.db.GetContext(ctx, &row, query, userID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest digest: %w", err)
	}

	rec, err := row.toEntity()
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// History retrieves recent digests for a user, newest first.
func (a *DigestAdapter) History(ctx context.Context, userID uuid.UUID, limit int) ([]domain.DigestRecord, error) {
	var rows []digestRow
	query := `SELECT * FROM digest_history WHERE user_id = $1 ORDER BY generated_at DESC LIMIT $2`

	if err := a.db.SelectContext(ctx, &rows, query, userID, limit); err != nil {
		return nil, fmt.Errorf("failed to list digest history: %w", err)
	}

	records := make([]domain.DigestRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := row.toEntity()
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	return records, nil
}
