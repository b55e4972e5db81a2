package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/therapy-booking-api/internal/models"
)

// SessionEventRepository appends the session audit trail.
type SessionEventRepository struct {
	db *sqlx.DB
}

// NewSessionEventRepository builds repository.
func NewSessionEventRepository(db *sqlx.DB) *SessionEventRepository {
	return &SessionEventRepository{db: db}
}

func (r *SessionEventRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Append writes an event in the caller's transaction.
func (r *SessionEventRepository) Append(ctx context.Context, exec sqlx.ExtContext, event *models.SessionEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	if event.CreditEffect == "" {
		event.CreditEffect = models.CreditEffectNone
	}
	const query = `
INSERT INTO session_events (id, session_id, from_status, to_status, actor_id, actor_type, reason, credit_effect, created_at)
VALUES (:id, :session_id, :from_status, :to_status, :actor_id, :actor_type, :reason, :credit_effect, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, event); err != nil {
		return fmt.Errorf("append session event: %w", err)
	}
	return nil
}

// ListBySession returns a session's history oldest first.
func (r *SessionEventRepository) ListBySession(ctx context.Context, sessionID string) ([]models.SessionEvent, error) {
	const query = `SELECT id, session_id, from_status, to_status, actor_id, actor_type, reason, credit_effect, created_at
FROM session_events WHERE session_id = $1 ORDER BY created_at ASC`
	var events []models.SessionEvent
	if err := sqlx.SelectContext(ctx, r.db, &events, query, sessionID); err != nil {
		return nil, fmt.Errorf("list session events: %w", err)
	}
	return events, nil
}
