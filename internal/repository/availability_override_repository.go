package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/therapy-booking-api/internal/models"
)

const overrideColumns = `id, therapist_id, override_date, is_available, ` + clockColumns + `, session_duration_minutes, session_type, max_sessions, reason, created_at, updated_at`

// AvailabilityOverrideRepository persists date-specific availability exceptions.
type AvailabilityOverrideRepository struct {
	db *sqlx.DB
}

// NewAvailabilityOverrideRepository builds repository.
func NewAvailabilityOverrideRepository(db *sqlx.DB) *AvailabilityOverrideRepository {
	return &AvailabilityOverrideRepository{db: db}
}

func (r *AvailabilityOverrideRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// FindByTherapistAndDate returns the override for a YYYY-MM-DD date or sql.ErrNoRows.
func (r *AvailabilityOverrideRepository) FindByTherapistAndDate(ctx context.Context, exec sqlx.ExtContext, therapistID, date string) (*models.AvailabilityOverride, error) {
	query := `SELECT ` + overrideColumns + ` FROM availability_overrides WHERE therapist_id = $1 AND override_date = $2::date`
	var override models.AvailabilityOverride
	if err := sqlx.GetContext(ctx, r.exec(exec), &override, query, therapistID, date); err != nil {
		return nil, err
	}
	return &override, nil
}

// ListByTherapistRange returns overrides with dates in [from, to].
func (r *AvailabilityOverrideRepository) ListByTherapistRange(ctx context.Context, therapistID, from, to string) ([]models.AvailabilityOverride, error) {
	query := `SELECT ` + overrideColumns + ` FROM availability_overrides
WHERE therapist_id = $1 AND override_date BETWEEN $2::date AND $3::date ORDER BY override_date ASC`
	var overrides []models.AvailabilityOverride
	if err := sqlx.SelectContext(ctx, r.db, &overrides, query, therapistID, from, to); err != nil {
		return nil, fmt.Errorf("list availability overrides: %w", err)
	}
	return overrides, nil
}

// Upsert writes the override keeping (therapist, date) unique.
func (r *AvailabilityOverrideRepository) Upsert(ctx context.Context, override *models.AvailabilityOverride) error {
	if override.ID == "" {
		override.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	override.CreatedAt = now
	override.UpdatedAt = now

	const query = `
INSERT INTO availability_overrides (id, therapist_id, override_date, is_available, ` + clockColumns + `, session_duration_minutes, session_type, max_sessions, reason, created_at, updated_at)
VALUES ($1, $2, $3::date, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (therapist_id, override_date) DO UPDATE
SET is_available = EXCLUDED.is_available,
    start_time = EXCLUDED.start_time,
    end_time = EXCLUDED.end_time,
    session_duration_minutes = EXCLUDED.session_duration_minutes,
    session_type = EXCLUDED.session_type,
    max_sessions = EXCLUDED.max_sessions,
    reason = EXCLUDED.reason,
    updated_at = EXCLUDED.updated_at
RETURNING id, created_at`

	row := r.db.QueryRowxContext(ctx, query,
		override.ID,
		override.TherapistID,
		override.OverrideDate.Format(models.DateLayout),
		override.IsAvailable,
		override.StartTime,
		override.EndTime,
		override.SessionDurationMinutes,
		override.SessionType,
		override.MaxSessions,
		override.Reason,
		override.CreatedAt,
		override.UpdatedAt,
	)
	if err := row.Scan(&override.ID, &override.CreatedAt); err != nil {
		return fmt.Errorf("upsert availability override: %w", err)
	}
	return nil
}

// Delete removes the override for a date.
func (r *AvailabilityOverrideRepository) Delete(ctx context.Context, therapistID, date string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM availability_overrides WHERE therapist_id = $1 AND override_date = $2::date`, therapistID, date)
	if err != nil {
		return fmt.Errorf("delete availability override: %w", err)
	}
	return expectAffected(res)
}
