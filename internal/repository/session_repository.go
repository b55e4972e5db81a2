package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/therapy-booking-api/internal/dto"
	"github.com/noah-isme/therapy-booking-api/internal/models"
)

const sessionColumns = `id, user_id, therapist_id, start_time, end_time, duration_minutes, session_type, status, credit_used_id, created_by, notes, video_room_url, joined_at, created_at, updated_at`

// SessionRepository persists booked sessions. Rows are never deleted; cancellation is a status change.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository builds repository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// ListBlockingInRange returns non-terminal sessions for the therapist overlapping [start, end).
func (r *SessionRepository) ListBlockingInRange(ctx context.Context, exec sqlx.ExtContext, therapistID string, start, end time.Time) ([]models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions
WHERE therapist_id = $1 AND status <> ALL($2) AND start_time < $4 AND end_time > $3
ORDER BY start_time ASC`
	var sessions []models.Session
	if err := sqlx.SelectContext(ctx, r.exec(exec), &sessions, query, therapistID, pq.Array(models.NonBlockingStatuses), start.UTC(), end.UTC()); err != nil {
		return nil, fmt.Errorf("list blocking sessions: %w", err)
	}
	return sessions, nil
}

// CountBlockingStartingBetween counts non-terminal sessions starting in [from, to).
func (r *SessionRepository) CountBlockingStartingBetween(ctx context.Context, exec sqlx.ExtContext, therapistID string, from, to time.Time) (int, error) {
	const query = `SELECT COUNT(*) FROM sessions
WHERE therapist_id = $1 AND status <> ALL($2) AND start_time >= $3 AND start_time < $4`
	var count int
	if err := sqlx.GetContext(ctx, r.exec(exec), &count, query, therapistID, pq.Array(models.NonBlockingStatuses), from.UTC(), to.UTC()); err != nil {
		return 0, fmt.Errorf("count blocking sessions: %w", err)
	}
	return count, nil
}

// Create inserts a session. An overlap with another blocking session fails with ErrExclusionViolation.
func (r *SessionRepository) Create(ctx context.Context, exec sqlx.ExtContext, session *models.Session) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	session.CreatedAt = now
	session.UpdatedAt = now
	session.StartTime = session.StartTime.UTC()
	session.EndTime = session.EndTime.UTC()

	const query = `
INSERT INTO sessions (id, user_id, therapist_id, start_time, end_time, duration_minutes, session_type, status, credit_used_id, created_by, notes, created_at, updated_at)
VALUES (:id, :user_id, :therapist_id, :start_time, :end_time, :duration_minutes, :session_type, :status, :credit_used_id, :created_by, :notes, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, session); err != nil {
		return ClassifyError(fmt.Errorf("create session: %w", err))
	}
	return nil
}

// FindByID returns a session or sql.ErrNoRows.
func (r *SessionRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Session, error) {
	var session models.Session
	if err := sqlx.GetContext(ctx, r.exec(exec), &session, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &session, nil
}

// FindByIDForUpdate locks the session row for the rest of the transaction.
func (r *SessionRepository) FindByIDForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Session, error) {
	var session models.Session
	if err := sqlx.GetContext(ctx, r.exec(exec), &session, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1 FOR UPDATE`, id); err != nil {
		return nil, err
	}
	return &session, nil
}

// UpdateStatus moves a session from one status to another. It returns sql.ErrNoRows when the row
// is no longer in the expected status.
func (r *SessionRepository) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, from, to models.SessionStatus, joinedAt *time.Time) error {
	const query = `UPDATE sessions SET status = $3, joined_at = COALESCE($4, joined_at), updated_at = NOW()
WHERE id = $1 AND status = $2`
	res, err := r.exec(exec).ExecContext(ctx, query, id, from, to, joinedAt)
	if err != nil {
		return ClassifyError(fmt.Errorf("update session status: %w", err))
	}
	return expectAffected(res)
}

// AttachCredit links a grant to a session that has none yet.
func (r *SessionRepository) AttachCredit(ctx context.Context, exec sqlx.ExtContext, id, grantID string) error {
	res, err := r.exec(exec).ExecContext(ctx, `UPDATE sessions SET credit_used_id = $2, updated_at = NOW() WHERE id = $1 AND credit_used_id IS NULL`, id, grantID)
	if err != nil {
		return fmt.Errorf("attach credit: %w", err)
	}
	return expectAffected(res)
}

// DetachCredit clears the link to grantID. It reports false when the link was already cleared.
func (r *SessionRepository) DetachCredit(ctx context.Context, exec sqlx.ExtContext, id, grantID string) (bool, error) {
	res, err := r.exec(exec).ExecContext(ctx, `UPDATE sessions SET credit_used_id = NULL, updated_at = NOW() WHERE id = $1 AND credit_used_id = $2`, id, grantID)
	if err != nil {
		return false, fmt.Errorf("detach credit: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// SetVideoRoom stores the provisioned room URL.
func (r *SessionRepository) SetVideoRoom(ctx context.Context, id, url string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE sessions SET video_room_url = $2, updated_at = NOW() WHERE id = $1`, id, url)
	if err != nil {
		return fmt.Errorf("set video room: %w", err)
	}
	return expectAffected(res)
}

// List returns sessions matching filter plus the total count.
func (r *SessionRepository) List(ctx context.Context, filter models.SessionFilter) ([]models.Session, int, error) {
	conditions := make([]string, 0, 5)
	args := make([]interface{}, 0, 7)
	add := func(cond string, value interface{}) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf(cond, len(args)))
	}
	if filter.UserID != "" {
		add("user_id = $%d", filter.UserID)
	}
	if filter.TherapistID != "" {
		add("therapist_id = $%d", filter.TherapistID)
	}
	if filter.Status != nil {
		add("status = $%d", string(*filter.Status))
	}
	if filter.From != nil {
		add("start_time >= $%d", filter.From.UTC())
	}
	if filter.To != nil {
		add("start_time < $%d", filter.To.UTC())
	}
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := sqlx.GetContext(ctx, r.db, &total, `SELECT COUNT(*) FROM sessions`+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count sessions: %w", err)
	}

	page := models.PageRequest{Page: filter.Page, PageSize: filter.PageSize}.Normalize()
	args = append(args, page.PageSize, page.Offset())
	query := fmt.Sprintf(`SELECT %s FROM sessions%s ORDER BY start_time DESC LIMIT $%d OFFSET $%d`, sessionColumns, where, len(args)-1, len(args))

	var sessions []models.Session
	if err := sqlx.SelectContext(ctx, r.db, &sessions, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, total, nil
}

// ListForTherapistRange returns a therapist's sessions starting in [from, to) oldest first.
func (r *SessionRepository) ListForTherapistRange(ctx context.Context, therapistID string, from, to time.Time) ([]models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions
WHERE therapist_id = $1 AND start_time >= $2 AND start_time < $3 ORDER BY start_time ASC`
	var sessions []models.Session
	if err := sqlx.SelectContext(ctx, r.db, &sessions, query, therapistID, from.UTC(), to.UTC()); err != nil {
		return nil, fmt.Errorf("list therapist sessions: %w", err)
	}
	return sessions, nil
}

// ListCreditUsage returns the sessions of a user that currently hold a credit.
func (r *SessionRepository) ListCreditUsage(ctx context.Context, userID string) ([]dto.CreditUsageEntry, error) {
	const query = `SELECT id, credit_used_id, therapist_id, start_time, status FROM sessions
WHERE user_id = $1 AND credit_used_id IS NOT NULL ORDER BY start_time DESC`
	var entries []dto.CreditUsageEntry
	if err := sqlx.SelectContext(ctx, r.db, &entries, query, userID); err != nil {
		return nil, fmt.Errorf("list credit usage: %w", err)
	}
	return entries, nil
}

// ListUnjoinedDeferred returns deferred-credit sessions still waiting for the client that started before cutoff.
func (r *SessionRepository) ListUnjoinedDeferred(ctx context.Context, cutoff time.Time, limit int) ([]models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions
WHERE status IN ('pending_approval', 'scheduled') AND credit_used_id IS NULL AND start_time < $1
ORDER BY start_time ASC LIMIT $2`
	var sessions []models.Session
	if err := sqlx.SelectContext(ctx, r.db, &sessions, query, cutoff.UTC(), limit); err != nil {
		return nil, fmt.Errorf("list unjoined deferred sessions: %w", err)
	}
	return sessions, nil
}

// ListUnattended returns credit-backed scheduled sessions that ended before cutoff without a join.
func (r *SessionRepository) ListUnattended(ctx context.Context, cutoff time.Time, limit int) ([]models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions
WHERE status = 'scheduled' AND credit_used_id IS NOT NULL AND end_time < $1
ORDER BY end_time ASC LIMIT $2`
	var sessions []models.Session
	if err := sqlx.SelectContext(ctx, r.db, &sessions, query, cutoff.UTC(), limit); err != nil {
		return nil, fmt.Errorf("list unattended sessions: %w", err)
	}
	return sessions, nil
}
