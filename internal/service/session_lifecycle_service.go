package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/noah-isme/therapy-booking-api/internal/models"
	"github.com/noah-isme/therapy-booking-api/internal/repository"
	"github.com/noah-isme/therapy-booking-api/pkg/config"
	appErrors "github.com/noah-isme/therapy-booking-api/pkg/errors"
)

var lifecycleTracer = otel.Tracer("therapy-booking-api/lifecycle")

const defaultSweepBatch = 100

// LifecycleConfig holds the lifecycle policy knobs.
type LifecycleConfig struct {
	NoShowPolicy      string
	JoinOpensBefore   time.Duration
	DeferredJoinGrace time.Duration
	NoShowGrace       time.Duration
	SweepBatch        int
	Atomic            AtomicConfig
}

// SessionLifecycleService applies status transitions. Transitions touching the ledger commit the
// status change, the credit movement and the audit row together.
type SessionLifecycleService struct {
	deps   BookingDependencies
	cfg    LifecycleConfig
	atomic *atomicRunner
	now    func() time.Time
}

// NewSessionLifecycleService wires the state machine.
func NewSessionLifecycleService(deps BookingDependencies, cfg LifecycleConfig) *SessionLifecycleService {
	deps = deps.withDefaults()
	if cfg.NoShowPolicy != config.NoShowRefund {
		cfg.NoShowPolicy = config.NoShowForfeit
	}
	if cfg.SweepBatch <= 0 {
		cfg.SweepBatch = defaultSweepBatch
	}
	return &SessionLifecycleService{
		deps:   deps,
		cfg:    cfg,
		atomic: newAtomicRunner(deps.Tx, cfg.Atomic, deps.Metrics, deps.Logger),
		now:    time.Now,
	}
}

type creditStep func(ctx context.Context, exec sqlx.ExtContext, session *models.Session) (models.CreditEffect, error)

type transition struct {
	op        string
	to        models.SessionStatus
	reason    string
	authorize func(actor models.Actor, session *models.Session) error
	credit    creditStep
	// idempotent makes a repeat of an already-applied transition return the session unchanged.
	idempotent bool
	joinedAt   *time.Time
}

// Approve moves a pending session to scheduled.
func (s *SessionLifecycleService) Approve(ctx context.Context, actor models.Actor, sessionID string) (*models.Session, error) {
	session, err := s.apply(ctx, actor, sessionID, transition{
		op:        "approve",
		to:        models.SessionStatusScheduled,
		authorize: therapistOwnerOrAdmin,
	})
	if err == nil {
		s.deps.Effects.Notify(ctx, NotificationApproved, *session)
	}
	return session, err
}

// Join starts the session. Deferred-credit sessions reserve the client's credit here; when none is
// available the join fails and the session stays as it was.
func (s *SessionLifecycleService) Join(ctx context.Context, actor models.Actor, sessionID string) (*models.Session, error) {
	now := s.now().UTC()
	return s.apply(ctx, actor, sessionID, transition{
		op:         "join",
		to:         models.SessionStatusInProgress,
		idempotent: true,
		joinedAt:   &now,
		authorize: func(actor models.Actor, session *models.Session) error {
			if !actor.IsAdmin() && actor.UserID != session.UserID {
				return appErrors.Clone(appErrors.ErrForbidden, "only the client can join this session")
			}
			if session.Status != models.SessionStatusScheduled {
				return nil
			}
			if now.Before(session.StartTime.Add(-s.cfg.JoinOpensBefore)) {
				return appErrors.Clone(appErrors.ErrValidation, "session is not open for joining yet")
			}
			if !now.Before(session.EndTime) {
				return appErrors.Clone(appErrors.ErrValidation, "session has already ended")
			}
			return nil
		},
		credit: func(ctx context.Context, exec sqlx.ExtContext, session *models.Session) (models.CreditEffect, error) {
			if session.HasCredit() {
				return models.CreditEffectNone, nil
			}
			reservation, err := s.deps.Ledger.ReserveCredit(ctx, exec, session.UserID)
			if err != nil {
				return models.CreditEffectNone, err
			}
			if err := s.deps.Sessions.AttachCredit(ctx, exec, session.ID, reservation.GrantID); err != nil {
				return models.CreditEffectNone, err
			}
			session.CreditUsedID = &reservation.GrantID
			return models.CreditEffectReserved, nil
		},
	})
}

// Complete ends an in-progress session. The credit stays consumed.
func (s *SessionLifecycleService) Complete(ctx context.Context, actor models.Actor, sessionID string) (*models.Session, error) {
	return s.apply(ctx, actor, sessionID, transition{
		op:        "complete",
		to:        models.SessionStatusCompleted,
		authorize: therapistOwnerOrAdmin,
		credit:    consumed,
	})
}

// Cancel releases a reserved credit when the session had not started; an in-progress session keeps it.
func (s *SessionLifecycleService) Cancel(ctx context.Context, actor models.Actor, sessionID, reason string) (*models.Session, error) {
	session, err := s.apply(ctx, actor, sessionID, transition{
		op:     "cancel",
		to:     models.SessionStatusCancelled,
		reason: reason,
		authorize: func(actor models.Actor, session *models.Session) error {
			if actor.IsAdmin() || actor.IsSystem() || session.IsParticipant(actor) {
				return nil
			}
			return appErrors.Clone(appErrors.ErrForbidden, "session belongs to another user")
		},
		credit: func(ctx context.Context, exec sqlx.ExtContext, session *models.Session) (models.CreditEffect, error) {
			if !session.HasCredit() {
				return models.CreditEffectNone, nil
			}
			if session.Status == models.SessionStatusInProgress {
				return models.CreditEffectConsumed, nil
			}
			return s.release(ctx, exec, session)
		},
	})
	if err == nil {
		s.deps.Effects.Notify(ctx, NotificationCancelled, *session)
	}
	return session, err
}

// MarkNoShow closes a session the client never attended, applying the configured credit policy.
func (s *SessionLifecycleService) MarkNoShow(ctx context.Context, actor models.Actor, sessionID, reason string) (*models.Session, error) {
	session, err := s.apply(ctx, actor, sessionID, transition{
		op:     "no_show",
		to:     models.SessionStatusNoShow,
		reason: reason,
		authorize: func(actor models.Actor, session *models.Session) error {
			if actor.IsSystem() {
				return nil
			}
			return therapistOwnerOrAdmin(actor, session)
		},
		credit: func(ctx context.Context, exec sqlx.ExtContext, session *models.Session) (models.CreditEffect, error) {
			if !session.HasCredit() {
				return models.CreditEffectNone, nil
			}
			if s.cfg.NoShowPolicy == config.NoShowRefund {
				return s.release(ctx, exec, session)
			}
			return models.CreditEffectForfeited, nil
		},
	})
	if err == nil {
		s.deps.Effects.Notify(ctx, NotificationNoShow, *session)
	}
	return session, err
}

// ExpireDeferred cancels deferred-credit sessions still unjoined once the join grace has elapsed.
func (s *SessionLifecycleService) ExpireDeferred(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.cfg.DeferredJoinGrace)
	sessions, err := s.deps.Sessions.ListUnjoinedDeferred(ctx, cutoff, s.cfg.SweepBatch)
	if err != nil {
		return 0, err
	}
	return s.sweep(ctx, sessions, func(id string) error {
		_, err := s.Cancel(ctx, models.SystemActor, id, "client did not join before the grace period ended")
		return err
	}), nil
}

// MarkUnattended moves credit-backed sessions never joined past their end into no_show.
func (s *SessionLifecycleService) MarkUnattended(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.cfg.NoShowGrace)
	sessions, err := s.deps.Sessions.ListUnattended(ctx, cutoff, s.cfg.SweepBatch)
	if err != nil {
		return 0, err
	}
	return s.sweep(ctx, sessions, func(id string) error {
		_, err := s.MarkNoShow(ctx, models.SystemActor, id, "session ended without attendance")
		return err
	}), nil
}

func (s *SessionLifecycleService) sweep(ctx context.Context, sessions []models.Session, fn func(id string) error) int {
	done := 0
	for _, session := range sessions {
		if ctx.Err() != nil {
			break
		}
		if err := fn(session.ID); err != nil {
			s.deps.Logger.Warn("sweep transition failed", zap.String("session_id", session.ID), zap.Error(err))
			continue
		}
		done++
	}
	return done
}

func (s *SessionLifecycleService) release(ctx context.Context, exec sqlx.ExtContext, session *models.Session) (models.CreditEffect, error) {
	released, err := s.deps.Ledger.ReleaseCredit(ctx, exec, session.ID, *session.CreditUsedID)
	if err != nil {
		return models.CreditEffectNone, err
	}
	session.CreditUsedID = nil
	if !released {
		return models.CreditEffectNone, nil
	}
	return models.CreditEffectReleased, nil
}

func (s *SessionLifecycleService) apply(ctx context.Context, actor models.Actor, sessionID string, t transition) (*models.Session, error) {
	ctx, span := lifecycleTracer.Start(ctx, "session."+t.op)
	defer span.End()
	span.SetAttributes(attribute.String("session.id", sessionID), attribute.String("session.to", string(t.to)))

	session, err := s.applyLocked(ctx, actor, sessionID, t)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, appErrors.FromError(err).Code)
		return nil, err
	}
	return session, nil
}

func (s *SessionLifecycleService) applyLocked(ctx context.Context, actor models.Actor, sessionID string, t transition) (*models.Session, error) {
	if !actor.Valid() {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "actor is required")
	}
	current, err := s.load(ctx, nil, sessionID, false)
	if err != nil {
		return nil, err
	}
	if t.authorize != nil {
		if err := t.authorize(actor, current); err != nil {
			return nil, err
		}
	}

	lockKeys := []string{
		repository.SessionLockKey(current.ID),
		repository.TherapistLockKey(current.TherapistID),
		repository.CreditLockKey(current.UserID),
	}
	var result *models.Session
	changed := false
	err = s.atomic.run(ctx, t.op, lockKeys, func(ctx context.Context, exec sqlx.ExtContext) error {
		session, err := s.load(ctx, exec, sessionID, true)
		if err != nil {
			return err
		}
		if t.idempotent && session.Status == t.to {
			result = session
			return nil
		}
		from := session.Status
		if !from.CanTransitionTo(t.to) {
			return s.illegalTransition(session, t.to)
		}

		effect := models.CreditEffectNone
		if t.credit != nil {
			if effect, err = t.credit(ctx, exec, session); err != nil {
				return err
			}
		}
		if err := s.deps.Sessions.UpdateStatus(ctx, exec, session.ID, from, t.to, t.joinedAt); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return s.illegalTransition(session, t.to)
			}
			return err
		}
		if err := appendEvent(ctx, s.deps.Events, exec, session.ID, &from, t.to, actor, t.reason, effect); err != nil {
			return err
		}

		session.Status = t.to
		if t.joinedAt != nil {
			joined := *t.joinedAt
			session.JoinedAt = &joined
		}
		result = session
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !changed {
		return result, nil
	}

	s.deps.Metrics.RecordTransition(string(t.to))
	s.deps.Logger.Info("session transitioned",
		zap.String("session_id", result.ID),
		zap.String("to", string(t.to)),
		zap.String("actor_type", string(actor.UserType)),
	)
	if err := s.deps.Cache.InvalidateTherapist(ctx, result.TherapistID); err != nil {
		s.deps.Logger.Error("availability cache invalidation failed", zap.String("therapist_id", result.TherapistID), zap.Error(err))
	}
	return result, nil
}

func (s *SessionLifecycleService) load(ctx context.Context, exec sqlx.ExtContext, id string, forUpdate bool) (*models.Session, error) {
	if id == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "session id is required")
	}
	var (
		session *models.Session
		err     error
	)
	if forUpdate {
		session, err = s.deps.Sessions.FindByIDForUpdate(ctx, exec, id)
	} else {
		session, err = s.deps.Sessions.FindByID(ctx, exec, id)
	}
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, err
	}
	return session, nil
}

func (s *SessionLifecycleService) illegalTransition(session *models.Session, to models.SessionStatus) error {
	s.deps.Logger.Error("illegal session transition",
		zap.String("session_id", session.ID),
		zap.String("from", string(session.Status)),
		zap.String("to", string(to)),
	)
	return appErrors.WithDetails(appErrors.ErrInvariantViolation,
		fmt.Sprintf("cannot move session from %s to %s", session.Status, to),
		map[string]string{"from": string(session.Status), "to": string(to)})
}

func therapistOwnerOrAdmin(actor models.Actor, session *models.Session) error {
	if actor.IsAdmin() {
		return nil
	}
	if actor.UserType == models.UserTypeTherapist && actor.UserID == session.TherapistID {
		return nil
	}
	return appErrors.Clone(appErrors.ErrForbidden, "only the session's therapist can do this")
}

func consumed(_ context.Context, _ sqlx.ExtContext, session *models.Session) (models.CreditEffect, error) {
	if session.HasCredit() {
		return models.CreditEffectConsumed, nil
	}
	return models.CreditEffectNone, nil
}
