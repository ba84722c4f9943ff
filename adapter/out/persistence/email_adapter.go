// Package persistence provides database adapters implementing outbound ports.
package persistence

import (
	"context"
	"fmt"
	"time"

	"digest_server/core/domain"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// EmailAdapter implements out.EmailRepository on the email_categories table.
type EmailAdapter struct {
	db *sqlx.DB
}

// NewEmailAdapter creates a new EmailAdapter.
func NewEmailAdapter(db *sqlx.DB) *EmailAdapter {
	return &EmailAdapter{db: db}
}

// emailRow represents the database row.
type emailRow struct {
	ID             int64     `db:"id"`
	UserID         uuid.UUID `db:"user_id"`
	MessageID      string    `db:"message_id"`
	FromName       string    `db:"from_name"`
	FromEmail      string    `db:"from_email"`
	Subject        string    `db:"subject"`
	Snippet        string    `db:"snippet"`
	Category       string    `db:"category"`
	Priority       string    `db:"priority"`
	AISummary      string    `db:"ai_summary"`
	Confidence     float64   `db:"confidence"`
	ActionRequired bool      `db:"action_required"`
	IsRead         bool      `db:"is_read"`
	EmailDate      string    `db:"email_date"`
	CreatedAt      time.Time `db:"created_at"`
}

func (r *emailRow) toEntity() domain.StoredEmail {
	return domain.StoredEmail{
		ID:             r.ID,
		UserID:         r.UserID,
		MessageID:      r.MessageID,
		FromName:       r.FromName,
		FromEmail:      r.FromEmail,
		Subject:        r.Subject,
		Snippet:        r.Snippet,
		Category:       domain.ParseCategory(r.Category),
		Priority:       domain.ParsePriority(r.Priority),
		AISummary:      r.AISummary,
		Confidence:     r.Confidence,
		ActionRequired: r.ActionRequired,
		IsRead:         r.IsRead,
		EmailDate:      r.EmailDate,
		CreatedAt:      r.CreatedAt,
	}
}

// ListByUser retrieves all stored records for a user, newest first.
func (a *EmailAdapter) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.StoredEmail, error) {
	var rows []emailRow
	query := `SELECT * FROM email_categories WHERE user_id = $1 ORDER BY email_date DESC`

	if err := a.db.SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list email records: %w", err)
	}

	records := make([]domain.StoredEmail, len(rows))
	for i, row := range rows {
		records[i] = row.toEntity()
	}

	return records, nil
}

// ListByUserAndCategory retrieves stored records filtered by category.
// An empty category or "all" disables the filter.
func (a *EmailAdapter) ListByUserAndCategory(ctx context.Context, userID uuid.UUID, category string, limit int) ([]domain.StoredEmail, error) {
	var rows []emailRow
	var err error

	if category == "" || category == "all" {
		query := `SELECT * FROM email_categories WHERE user_id = $1 ORDER BY email_date DESC LIMIT $2`
		err = a.db.SelectContext(ctx, &rows, query, userID, limit)
	} else {
		query := `SELECT * FROM email_categories WHERE user_id = $1 AND category = $2 ORDER BY email_date DESC LIMIT $3`
		err = a.db.SelectContext(ctx, &rows, query, userID, category, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list email records by category: %w", err)
	}

	records := make([]domain.StoredEmail, len(rows))
	for i, row := range rows {
		records[i] = row.toEntity()
	}

	return records, nil
}

// UpsertBatch writes records keyed by (user_id, message_id) in one
// transaction; conflicting rows are overwritten with the fresh
// classification.
func (a *EmailAdapter) UpsertBatch(ctx context.Context, records []domain.StoredEmail) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := a.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO email_categories
			(user_id, message_id, from_name, from_email, subject, snippet,
			 category, priority, ai_summary, confidence, action_required, is_read, email_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (user_id, message_id) DO UPDATE SET
			from_name = EXCLUDED.from_name,
			from_email = EXCLUDED.from_email,
			subject = EXCLUDED.subject,
			snippet = EXCLUDED.snippet,
			category = EXCLUDED.category,
			priority = EXCLUDED.priority,
			ai_summary = EXCLUDED.ai_summary,
			confidence = EXCLUDED.confidence,
			action_required = EXCLUDED.action_required,
			is_read = EXCLUDED.is_read,
			email_date = EXCLUDED.email_date`

	for _, rec := range records {
		_, err := tx.ExecContext(ctx, query,
			rec.UserID, rec.MessageID, rec.FromName, rec.FromEmail, rec.Subject, rec.Snippet,
			string(rec.Category), string(rec.Priority), rec.AISummary, rec.Confidence,
			rec.ActionRequired, rec.IsRead, rec.EmailDate,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert email record %s: %w", rec.MessageID, err)
		}
	}

	return tx.Commit()
}

// DeleteByMessageIDs removes the user's records for the given message ids.
func (a *EmailAdapter) DeleteByMessageIDs(ctx context.Context, userID uuid.UUID, messageIDs []string) error {
	if len(messageIDs) == 0 {
		return nil
	}

	query := `DELETE FROM email_categories WHERE user_id = $1 AND message_id = ANY($2)`

	_, err := a.db.ExecContext(ctx, query, userID, pq.Array(messageIDs))
	if err != nil {
		return fmt.Errorf("failed to delete email records: %w", err)
	}

	return nil
}
