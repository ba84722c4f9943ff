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

// ScheduleAdapter implements out.ScheduleRepository on the
// schedule_preferences table.
type ScheduleAdapter struct {
	db *sqlx.DB
}

// NewScheduleAdapter creates a new ScheduleAdapter.
func NewScheduleAdapter(db *sqlx.DB) *ScheduleAdapter {
	return &ScheduleAdapter{db: db}
}

type scheduleRow struct {
	ID           int64        `db:"id"`
	UserID       uuid.UUID    `db:"user_id"`
	Frequency    string       `db:"frequency"`
	DeliveryTime string       `db:"delivery_time"`
	Timezone     string       `db:"timezone"`
	IsActive     bool         `db:"is_active"`
	LastSentAt   sql.NullTime `db:"last_sent_at"`
}

func (r *scheduleRow) toEntity() *domain.SchedulePreference {
	pref := &domain.SchedulePreference{
		ID:           r.ID,
		UserID:       r.UserID,
		Frequency:    domain.DigestFrequency(r.Frequency),
		DeliveryTime: r.DeliveryTime,
		Timezone:     r.Timezone,
		IsActive:     r.IsActive,
	}
	if r.LastSentAt.Valid {
		pref.LastSentAt = &r.LastSentAt.Time
	}
	return pref
}

// ListActive retrieves every active schedule preference.
func (a *ScheduleAdapter) ListActive(ctx context.Context) ([]*domain.SchedulePreference, error) {
	var rows []scheduleRow
	query := `SELECT id, user_id, frequency, delivery_time, timezone, is_active, last_sent_at
		FROM schedule_preferences WHERE is_active = TRUE`

	if err := a.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to list active schedules: %w", err)
	}

	prefs := make([]*domain.SchedulePreference, len(rows))
	for i, row := range rows {
		prefs[i] = row.toEntity()
	}

	return prefs, nil
}

// MarkSent records the digest delivery time for a schedule.
func (a *ScheduleAdapter) MarkSent(ctx context.Context, scheduleID int64, at time.Time) error {
	query := `UPDATE schedule_preferences SET last_sent_at = $2 WHERE id = $1`

	_, err := a.db.ExecContext(ctx, query, scheduleID, at)
	if err != nil {
		return fmt.Errorf("failed to mark schedule sent: %w", err)
	}

	return nil
}
