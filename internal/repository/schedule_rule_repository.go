package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/therapy-booking-api/internal/models"
)

// clockColumns reads TIME columns back as "HH24:MI" text. lib/pq decodes raw TIME values as time.Time.
const clockColumns = `to_char(start_time, 'HH24:MI') AS start_time, to_char(end_time, 'HH24:MI') AS end_time`

const scheduleRuleColumns = `id, therapist_id, day_of_week, ` + clockColumns + `, session_duration_minutes, session_type, max_sessions, is_active, created_at, updated_at`

// ScheduleRuleRepository persists recurring weekly availability.
type ScheduleRuleRepository struct {
	db *sqlx.DB
}

// NewScheduleRuleRepository builds repository.
func NewScheduleRuleRepository(db *sqlx.DB) *ScheduleRuleRepository {
	return &ScheduleRuleRepository{db: db}
}

func (r *ScheduleRuleRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// ListByTherapistAndDay returns active rules for one weekday ordered by start.
func (r *ScheduleRuleRepository) ListByTherapistAndDay(ctx context.Context, exec sqlx.ExtContext, therapistID string, dayOfWeek int) ([]models.TherapistScheduleRule, error) {
	query := `SELECT ` + scheduleRuleColumns + ` FROM therapist_schedule_rules
WHERE therapist_id = $1 AND day_of_week = $2 AND is_active = TRUE ORDER BY start_time ASC`
	var rules []models.TherapistScheduleRule
	if err := sqlx.SelectContext(ctx, r.exec(exec), &rules, query, therapistID, dayOfWeek); err != nil {
		return nil, fmt.Errorf("list schedule rules: %w", err)
	}
	return rules, nil
}

// ListByTherapist returns every rule for a therapist.
func (r *ScheduleRuleRepository) ListByTherapist(ctx context.Context, therapistID string) ([]models.TherapistScheduleRule, error) {
	query := `SELECT ` + scheduleRuleColumns + ` FROM therapist_schedule_rules
WHERE therapist_id = $1 ORDER BY day_of_week ASC, start_time ASC`
	var rules []models.TherapistScheduleRule
	if err := sqlx.SelectContext(ctx, r.db, &rules, query, therapistID); err != nil {
		return nil, fmt.Errorf("list schedule rules: %w", err)
	}
	return rules, nil
}

// FindByID returns a rule owned by the therapist or sql.ErrNoRows.
func (r *ScheduleRuleRepository) FindByID(ctx context.Context, therapistID, id string) (*models.TherapistScheduleRule, error) {
	query := `SELECT ` + scheduleRuleColumns + ` FROM therapist_schedule_rules WHERE id = $1 AND therapist_id = $2`
	var rule models.TherapistScheduleRule
	if err := sqlx.GetContext(ctx, r.db, &rule, query, id, therapistID); err != nil {
		return nil, err
	}
	return &rule, nil
}

// Create inserts a new rule.
func (r *ScheduleRuleRepository) Create(ctx context.Context, rule *models.TherapistScheduleRule) error {
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	rule.CreatedAt = now
	rule.UpdatedAt = now

	const query = `
INSERT INTO therapist_schedule_rules (id, therapist_id, day_of_week, start_time, end_time, session_duration_minutes, session_type, max_sessions, is_active, created_at, updated_at)
VALUES (:id, :therapist_id, :day_of_week, :start_time, :end_time, :session_duration_minutes, :session_type, :max_sessions, :is_active, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.db, query, rule); err != nil {
		return fmt.Errorf("create schedule rule: %w", err)
	}
	return nil
}

// Update replaces the mutable fields of a rule.
func (r *ScheduleRuleRepository) Update(ctx context.Context, rule *models.TherapistScheduleRule) error {
	rule.UpdatedAt = time.Now().UTC()
	const query = `
UPDATE therapist_schedule_rules
SET day_of_week = :day_of_week,
    start_time = :start_time,
    end_time = :end_time,
    session_duration_minutes = :session_duration_minutes,
    session_type = :session_type,
    max_sessions = :max_sessions,
    is_active = :is_active,
    updated_at = :updated_at
WHERE id = :id AND therapist_id = :therapist_id`
	res, err := sqlx.NamedExecContext(ctx, r.db, query, rule)
	if err != nil {
		return fmt.Errorf("update schedule rule: %w", err)
	}
	return expectAffected(res)
}

// Delete removes a rule owned by the therapist.
func (r *ScheduleRuleRepository) Delete(ctx context.Context, therapistID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM therapist_schedule_rules WHERE id = $1 AND therapist_id = $2`, id, therapistID)
	if err != nil {
		return fmt.Errorf("delete schedule rule: %w", err)
	}
	return expectAffected(res)
}

func expectAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
