package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/therapy-booking-api/internal/models"
)

const creditColumns = `id, user_id, user_type, credits_balance, is_free_credit, origin, expires_at, status, created_at, updated_at`

// CreditRepository persists credit grants. Balances only move through Decrement and Increment.
type CreditRepository struct {
	db *sqlx.DB
}

// NewCreditRepository builds repository.
func NewCreditRepository(db *sqlx.DB) *CreditRepository {
	return &CreditRepository{db: db}
}

func (r *CreditRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// ListSpendableForUpdate locks and returns the user's spendable grants in debit order.
func (r *CreditRepository) ListSpendableForUpdate(ctx context.Context, exec sqlx.ExtContext, userID string, now time.Time) ([]models.CreditGrant, error) {
	query := `SELECT ` + creditColumns + ` FROM credit_grants
WHERE user_id = $1 AND status = 'active' AND credits_balance > 0 AND (expires_at IS NULL OR expires_at > $2)
ORDER BY is_free_credit DESC, created_at ASC, id ASC
FOR UPDATE`
	var grants []models.CreditGrant
	if err := sqlx.SelectContext(ctx, r.exec(exec), &grants, query, userID, now.UTC()); err != nil {
		return nil, ClassifyError(fmt.Errorf("list spendable grants: %w", err))
	}
	return grants, nil
}

// Decrement takes one credit from an active grant, marking it exhausted at zero.
// It returns sql.ErrNoRows when the grant had nothing left.
func (r *CreditRepository) Decrement(ctx context.Context, exec sqlx.ExtContext, grantID string) error {
	const query = `UPDATE credit_grants
SET credits_balance = credits_balance - 1,
    status = CASE WHEN credits_balance - 1 = 0 THEN 'exhausted' ELSE status END,
    updated_at = NOW()
WHERE id = $1 AND status = 'active' AND credits_balance > 0`
	res, err := r.exec(exec).ExecContext(ctx, query, grantID)
	if err != nil {
		return ClassifyError(fmt.Errorf("decrement grant: %w", err))
	}
	return expectAffected(res)
}

// Increment returns one credit to a grant, reactivating it when it had been exhausted.
func (r *CreditRepository) Increment(ctx context.Context, exec sqlx.ExtContext, grantID string) error {
	const query = `UPDATE credit_grants
SET credits_balance = credits_balance + 1,
    status = CASE WHEN status = 'exhausted' THEN 'active' ELSE status END,
    updated_at = NOW()
WHERE id = $1`
	res, err := r.exec(exec).ExecContext(ctx, query, grantID)
	if err != nil {
		return ClassifyError(fmt.Errorf("increment grant: %w", err))
	}
	return expectAffected(res)
}

// ListByUser returns all grants for a user newest first.
func (r *CreditRepository) ListByUser(ctx context.Context, userID string) ([]models.CreditGrant, error) {
	query := `SELECT ` + creditColumns + ` FROM credit_grants WHERE user_id = $1 ORDER BY created_at DESC`
	var grants []models.CreditGrant
	if err := sqlx.SelectContext(ctx, r.db, &grants, query, userID); err != nil {
		return nil, fmt.Errorf("list grants: %w", err)
	}
	return grants, nil
}

// Create inserts a grant. Used by the credit-issuance collaborator and fixtures.
func (r *CreditRepository) Create(ctx context.Context, grant *models.CreditGrant) error {
	if grant.ID == "" {
		grant.ID = uuid.NewString()
	}
	if grant.Status == "" {
		grant.Status = models.CreditGrantActive
	}
	now := time.Now().UTC()
	grant.CreatedAt = now
	grant.UpdatedAt = now

	const query = `
INSERT INTO credit_grants (id, user_id, user_type, credits_balance, is_free_credit, origin, expires_at, status, created_at, updated_at)
VALUES (:id, :user_id, :user_type, :credits_balance, :is_free_credit, :origin, :expires_at, :status, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.db, query, grant); err != nil {
		return fmt.Errorf("create grant: %w", err)
	}
	return nil
}

// ExpireOverdue flips active grants whose expiry passed to expired.
func (r *CreditRepository) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE credit_grants SET status = 'expired', updated_at = NOW()
WHERE status = 'active' AND expires_at IS NOT NULL AND expires_at <= $1`, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("expire grants: %w", err)
	}
	return res.RowsAffected()
}
