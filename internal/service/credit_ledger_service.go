package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/therapy-booking-api/internal/dto"
	"github.com/noah-isme/therapy-booking-api/internal/models"
	appErrors "github.com/noah-isme/therapy-booking-api/pkg/errors"
)

// Ledger movements recorded on credit_ledger_movements_total.
const (
	MovementReserve = "reserve"
	MovementRelease = "release"
	MovementExpire  = "expire"
)

type creditGrantStore interface {
	ListSpendableForUpdate(ctx context.Context, exec sqlx.ExtContext, userID string, now time.Time) ([]models.CreditGrant, error)
	Decrement(ctx context.Context, exec sqlx.ExtContext, grantID string) error
	Increment(ctx context.Context, exec sqlx.ExtContext, grantID string) error
	ListByUser(ctx context.Context, userID string) ([]models.CreditGrant, error)
	ExpireOverdue(ctx context.Context, now time.Time) (int64, error)
}

type creditSessionStore interface {
	DetachCredit(ctx context.Context, exec sqlx.ExtContext, id, grantID string) (bool, error)
	ListCreditUsage(ctx context.Context, userID string) ([]dto.CreditUsageEntry, error)
}

type insufficientCreditsDetail struct {
	Action string `json:"action"`
}

// CreditLedgerService moves credits between available and consumed. Reserve and release run inside
// the caller's transaction so they commit or roll back with the session write.
type CreditLedgerService struct {
	grants   creditGrantStore
	sessions creditSessionStore
	metrics  *MetricsService
	logger   *zap.Logger
	now      func() time.Time
}

// NewCreditLedgerService constructs the ledger.
func NewCreditLedgerService(grants creditGrantStore, sessions creditSessionStore, metrics *MetricsService, logger *zap.Logger) *CreditLedgerService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CreditLedgerService{grants: grants, sessions: sessions, metrics: metrics, logger: logger, now: time.Now}
}

// ReserveCredit debits one unit from the preferred grant: free before paid, oldest first, skipping
// expired and exhausted grants. The caller must hold the user's credit lock.
func (s *CreditLedgerService) ReserveCredit(ctx context.Context, exec sqlx.ExtContext, userID string) (*models.CreditReservation, error) {
	if userID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "user id is required")
	}
	grants, err := s.grants.ListSpendableForUpdate(ctx, exec, userID, s.now().UTC())
	if err != nil {
		return nil, err
	}
	grant := models.SelectGrant(grants, s.now().UTC())
	if grant == nil {
		return nil, insufficientCredits()
	}
	if err := s.grants.Decrement(ctx, exec, grant.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, insufficientCredits()
		}
		return nil, err
	}
	s.metrics.RecordCreditMovement(MovementReserve)
	return &models.CreditReservation{Granted: true, GrantID: grant.ID}, nil
}

// ReleaseCredit returns the session's unit to its grant and clears the link. Releasing a reservation
// that is already gone is a no-op and reports false.
func (s *CreditLedgerService) ReleaseCredit(ctx context.Context, exec sqlx.ExtContext, sessionID, grantID string) (bool, error) {
	if sessionID == "" || grantID == "" {
		return false, nil
	}
	detached, err := s.sessions.DetachCredit(ctx, exec, sessionID, grantID)
	if err != nil {
		return false, err
	}
	if !detached {
		s.logger.Debug("credit already released", zap.String("session_id", sessionID), zap.String("grant_id", grantID))
		return false, nil
	}
	if err := s.grants.Increment(ctx, exec, grantID); err != nil {
		return false, err
	}
	s.metrics.RecordCreditMovement(MovementRelease)
	return true, nil
}

// Summary lists the user's grants with the spendable balance.
func (s *CreditLedgerService) Summary(ctx context.Context, userID string) (*dto.CreditSummaryResponse, error) {
	grants, err := s.grants.ListByUser(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load credits")
	}
	if grants == nil {
		grants = []models.CreditGrant{}
	}
	return &dto.CreditSummaryResponse{
		Available: models.AvailableCredits(grants, s.now().UTC()),
		Grants:    grants,
	}, nil
}

// Usage lists the sessions currently holding one of the user's credits.
func (s *CreditLedgerService) Usage(ctx context.Context, userID string) ([]dto.CreditUsageEntry, error) {
	entries, err := s.sessions.ListCreditUsage(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load credit usage")
	}
	if entries == nil {
		entries = []dto.CreditUsageEntry{}
	}
	return entries, nil
}

// ExpireOverdue marks grants past expires_at as expired.
func (s *CreditLedgerService) ExpireOverdue(ctx context.Context) (int64, error) {
	count, err := s.grants.ExpireOverdue(ctx, s.now().UTC())
	if err != nil {
		return 0, err
	}
	for i := int64(0); i < count; i++ {
		s.metrics.RecordCreditMovement(MovementExpire)
	}
	return count, nil
}

func insufficientCredits() error {
	return appErrors.WithDetails(appErrors.ErrInsufficientCredit, "no session credits available, purchase credits to book",
		insufficientCreditsDetail{Action: "purchase_credits"})
}
