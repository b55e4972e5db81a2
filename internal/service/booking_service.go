package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/noah-isme/therapy-booking-api/internal/dto"
	"github.com/noah-isme/therapy-booking-api/internal/models"
	"github.com/noah-isme/therapy-booking-api/internal/repository"
	appErrors "github.com/noah-isme/therapy-booking-api/pkg/errors"
)

var bookingTracer = otel.Tracer("therapy-booking-api/booking")

type therapistDirectory interface {
	therapistReader
	FindByIDs(ctx context.Context, ids []string) (map[string]*models.Therapist, error)
}

type sessionStore interface {
	availabilitySessionReader
	Create(ctx context.Context, exec sqlx.ExtContext, session *models.Session) error
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Session, error)
	FindByIDForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Session, error)
	UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, from, to models.SessionStatus, joinedAt *time.Time) error
	AttachCredit(ctx context.Context, exec sqlx.ExtContext, id, grantID string) error
	List(ctx context.Context, filter models.SessionFilter) ([]models.Session, int, error)
	ListUnjoinedDeferred(ctx context.Context, cutoff time.Time, limit int) ([]models.Session, error)
	ListUnattended(ctx context.Context, cutoff time.Time, limit int) ([]models.Session, error)
}

type sessionEventWriter interface {
	Append(ctx context.Context, exec sqlx.ExtContext, event *models.SessionEvent) error
}

// BookingConfig holds booking policy.
type BookingConfig struct {
	MinLeadTime time.Duration
	HorizonDays int
	Atomic      AtomicConfig
}

// BookingDependencies bundles the collaborators of the booking coordinator and lifecycle services.
type BookingDependencies struct {
	Therapists   therapistDirectory
	Sessions     sessionStore
	Events       sessionEventWriter
	Availability *AvailabilityService
	Conflicts    *ConflictService
	Ledger       *CreditLedgerService
	Cache        *AvailabilityCacheService
	Effects      *SideEffectDispatcher
	Tx           txRunner
	Validator    *validator.Validate
	Metrics      *MetricsService
	Logger       *zap.Logger
}

func (d BookingDependencies) withDefaults() BookingDependencies {
	if d.Validator == nil {
		d.Validator = validator.New()
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	return d
}

// BookingService is the booking transaction coordinator: availability, conflict check, credit
// reservation and session insert commit as one unit.
type BookingService struct {
	deps   BookingDependencies
	cfg    BookingConfig
	atomic *atomicRunner
	now    func() time.Time
}

// NewBookingService wires the coordinator.
func NewBookingService(deps BookingDependencies, cfg BookingConfig) *BookingService {
	deps = deps.withDefaults()
	return &BookingService{
		deps:   deps,
		cfg:    cfg,
		atomic: newAtomicRunner(deps.Tx, cfg.Atomic, deps.Metrics, deps.Logger),
		now:    time.Now,
	}
}

// Book reserves a slot for the client and debits one credit atomically.
func (s *BookingService) Book(ctx context.Context, actor models.Actor, req dto.BookSessionRequest) (*dto.SessionResponse, error) {
	ctx, span := bookingTracer.Start(ctx, "booking.book")
	defer span.End()
	span.SetAttributes(attribute.String("therapist.id", req.TherapistID), attribute.String("user.id", actor.UserID))

	session, therapist, err := s.book(ctx, actor, req)
	s.deps.Metrics.RecordBookingOutcome(outcomeFor(err))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, appErrors.FromError(err).Code)
		return nil, err
	}
	span.SetAttributes(attribute.String("session.id", session.ID))

	s.afterWrite(ctx, session.TherapistID)
	s.deps.Effects.SessionCreated(ctx, *session, therapist)
	return &dto.SessionResponse{Session: *session, Therapist: dto.NewTherapistSummary(therapist)}, nil
}

func (s *BookingService) book(ctx context.Context, actor models.Actor, req dto.BookSessionRequest) (*models.Session, *models.Therapist, error) {
	if actor.UserType != models.UserTypeClient || actor.UserID == "" {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "only clients can book sessions")
	}
	if err := s.deps.Validator.Struct(req); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid booking payload")
	}

	therapist, err := loadBookableTherapist(ctx, s.deps.Therapists, req.TherapistID)
	if err != nil {
		return nil, nil, err
	}
	day, start, end, err := resolveInterval(req.Date, req.StartTime, req.DurationMinutes, therapist.Location())
	if err != nil {
		return nil, nil, err
	}
	if err := s.checkLeadTime(start); err != nil {
		return nil, nil, err
	}
	sessionType := models.SessionType(req.SessionType)

	if s.cachedReject(ctx, therapist.ID, req.Date, start, sessionType) {
		return nil, nil, slotUnavailable("requested time is outside the therapist's availability")
	}

	session := &models.Session{
		ID:              uuid.NewString(),
		UserID:          actor.UserID,
		TherapistID:     therapist.ID,
		StartTime:       start,
		EndTime:         end,
		DurationMinutes: req.DurationMinutes,
		SessionType:     sessionType,
		Status:          models.SessionStatusScheduled,
		CreatedBy:       actor.UserID,
		Notes:           optionalString(req.Notes),
	}

	lockKeys := []string{repository.TherapistLockKey(therapist.ID), repository.CreditLockKey(actor.UserID)}
	err = s.atomic.run(ctx, "book", lockKeys, func(ctx context.Context, exec sqlx.ExtContext) error {
		windows, err := s.deps.Availability.computeWindows(ctx, exec, therapist, day)
		if err != nil {
			return err
		}
		window, ok := matchWindow(windows, start, end, sessionType)
		if !ok {
			return slotUnavailable("requested time is outside the therapist's availability")
		}

		result, err := s.deps.Conflicts.HasConflict(ctx, exec, therapist.ID, start, end)
		if err != nil {
			return err
		}
		if result.Conflict {
			return conflictError(result.ConflictingSessions)
		}

		if err := s.checkDailyCapacity(ctx, exec, therapist, day, window.MaxSessions); err != nil {
			return err
		}

		reservation, err := s.deps.Ledger.ReserveCredit(ctx, exec, actor.UserID)
		if err != nil {
			return err
		}
		session.CreditUsedID = &reservation.GrantID

		if err := s.deps.Sessions.Create(ctx, exec, session); err != nil {
			if errors.Is(err, repository.ErrExclusionViolation) {
				return conflictError(nil)
			}
			return err
		}
		return appendEvent(ctx, s.deps.Events, exec, session.ID, nil, session.Status, actor, "", models.CreditEffectReserved)
	})
	if err != nil {
		return nil, nil, s.explainConflict(ctx, therapist.ID, start, end, err)
	}

	s.deps.Logger.Info("session booked",
		zap.String("session_id", session.ID),
		zap.String("therapist_id", therapist.ID),
		zap.String("user_id", actor.UserID),
		zap.Time("start", start),
	)
	return session, therapist, nil
}

// CreateDeferred lets a therapist place a session for a client without taking a credit. The credit
// is reserved when the client joins.
func (s *BookingService) CreateDeferred(ctx context.Context, actor models.Actor, req dto.CreateDeferredSessionRequest) (*dto.SessionResponse, error) {
	ctx, span := bookingTracer.Start(ctx, "booking.create_deferred")
	defer span.End()

	if actor.UserType != models.UserTypeTherapist || actor.UserID == "" {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only therapists can create follow-up sessions")
	}
	if err := s.deps.Validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session payload")
	}
	therapist, err := loadBookableTherapist(ctx, s.deps.Therapists, actor.UserID)
	if err != nil {
		return nil, err
	}
	_, start, end, err := resolveInterval(req.Date, req.StartTime, req.DurationMinutes, therapist.Location())
	if err != nil {
		return nil, err
	}
	if !end.After(s.now()) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "session must end in the future")
	}

	status := models.SessionStatusScheduled
	if req.RequiresApproval {
		status = models.SessionStatusPendingApproval
	}
	session := &models.Session{
		ID:              uuid.NewString(),
		UserID:          req.ClientID,
		TherapistID:     therapist.ID,
		StartTime:       start,
		EndTime:         end,
		DurationMinutes: req.DurationMinutes,
		SessionType:     models.SessionType(req.SessionType),
		Status:          status,
		CreatedBy:       actor.UserID,
		Notes:           optionalString(req.Notes),
	}
	span.SetAttributes(attribute.String("session.id", session.ID), attribute.String("therapist.id", therapist.ID))

	err = s.atomic.run(ctx, "create_deferred", []string{repository.TherapistLockKey(therapist.ID)}, func(ctx context.Context, exec sqlx.ExtContext) error {
		result, err := s.deps.Conflicts.HasConflict(ctx, exec, therapist.ID, start, end)
		if err != nil {
			return err
		}
		if result.Conflict {
			return conflictError(result.ConflictingSessions)
		}
		if err := s.deps.Sessions.Create(ctx, exec, session); err != nil {
			if errors.Is(err, repository.ErrExclusionViolation) {
				return conflictError(nil)
			}
			return err
		}
		return appendEvent(ctx, s.deps.Events, exec, session.ID, nil, session.Status, actor, "", models.CreditEffectNone)
	})
	if err != nil {
		err = s.explainConflict(ctx, therapist.ID, start, end, err)
		span.RecordError(err)
		return nil, err
	}

	s.deps.Logger.Info("deferred session created", zap.String("session_id", session.ID), zap.String("therapist_id", therapist.ID), zap.String("status", string(status)))
	s.afterWrite(ctx, therapist.ID)
	s.deps.Effects.SessionCreated(ctx, *session, therapist)
	return &dto.SessionResponse{Session: *session, Therapist: dto.NewTherapistSummary(therapist)}, nil
}

// Get returns a session visible to the actor.
func (s *BookingService) Get(ctx context.Context, actor models.Actor, id string) (*dto.SessionResponse, error) {
	session, err := s.deps.Sessions.FindByID(ctx, nil, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	if !actor.IsAdmin() && !session.IsParticipant(actor) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "session belongs to another user")
	}
	var therapist *models.Therapist
	if t, err := s.deps.Therapists.FindByID(ctx, session.TherapistID); err == nil {
		therapist = t
	}
	return &dto.SessionResponse{Session: *session, Therapist: dto.NewTherapistSummary(therapist)}, nil
}

// ListMine pages through the actor's sessions. Admins see every session.
func (s *BookingService) ListMine(ctx context.Context, actor models.Actor, query dto.SessionListQuery) ([]dto.SessionResponse, *models.Pagination, error) {
	filter, err := s.filterFromQuery(query)
	if err != nil {
		return nil, nil, err
	}
	switch actor.UserType {
	case models.UserTypeClient:
		filter.UserID = actor.UserID
	case models.UserTypeTherapist:
		filter.TherapistID = actor.UserID
	case models.UserTypeAdmin:
	default:
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "unsupported user type")
	}
	return s.list(ctx, filter)
}

// ListTherapist pages through the therapist's own agenda.
func (s *BookingService) ListTherapist(ctx context.Context, actor models.Actor, query dto.SessionListQuery) ([]dto.SessionResponse, *models.Pagination, error) {
	if actor.UserType != models.UserTypeTherapist {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "therapist access required")
	}
	filter, err := s.filterFromQuery(query)
	if err != nil {
		return nil, nil, err
	}
	filter.TherapistID = actor.UserID
	return s.list(ctx, filter)
}

func (s *BookingService) filterFromQuery(query dto.SessionListQuery) (models.SessionFilter, error) {
	if err := s.deps.Validator.Struct(query); err != nil {
		return models.SessionFilter{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session query")
	}
	filter := models.SessionFilter{From: query.From, To: query.To, Page: query.Page, PageSize: query.PageSize}
	if query.Status != "" {
		status := models.SessionStatus(query.Status)
		filter.Status = &status
	}
	return filter, nil
}

func (s *BookingService) list(ctx context.Context, filter models.SessionFilter) ([]dto.SessionResponse, *models.Pagination, error) {
	sessions, total, err := s.deps.Sessions.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sessions")
	}

	ids := make([]string, 0, len(sessions))
	seen := make(map[string]struct{}, len(sessions))
	for _, session := range sessions {
		if _, ok := seen[session.TherapistID]; ok {
			continue
		}
		seen[session.TherapistID] = struct{}{}
		ids = append(ids, session.TherapistID)
	}
	therapists := map[string]*models.Therapist{}
	if len(ids) > 0 {
		if found, err := s.deps.Therapists.FindByIDs(ctx, ids); err == nil {
			therapists = found
		} else {
			s.deps.Logger.Warn("failed to resolve therapists for session list", zap.Error(err))
		}
	}

	out := make([]dto.SessionResponse, 0, len(sessions))
	for _, session := range sessions {
		out = append(out, dto.SessionResponse{Session: session, Therapist: dto.NewTherapistSummary(therapists[session.TherapistID])})
	}
	page := models.PageRequest{Page: filter.Page, PageSize: filter.PageSize}.Normalize()
	return out, &models.Pagination{Page: page.Page, PageSize: page.PageSize, TotalCount: total}, nil
}

func (s *BookingService) checkLeadTime(start time.Time) error {
	now := s.now()
	if !start.After(now.Add(s.cfg.MinLeadTime)) {
		return appErrors.Clone(appErrors.ErrValidation, "session must start in the future")
	}
	if s.cfg.HorizonDays > 0 && start.After(now.AddDate(0, 0, s.cfg.HorizonDays)) {
		return appErrors.Clone(appErrors.ErrValidation, "session is beyond the booking horizon")
	}
	return nil
}

func (s *BookingService) checkDailyCapacity(ctx context.Context, exec sqlx.ExtContext, therapist *models.Therapist, day time.Time, maxSessions int) error {
	if maxSessions <= 0 {
		return nil
	}
	from, to := localDayBounds(day, therapist.Location())
	booked, err := s.deps.Sessions.CountBlockingStartingBetween(ctx, exec, therapist.ID, from, to)
	if err != nil {
		return err
	}
	if booked >= maxSessions {
		return slotUnavailable("therapist has no remaining sessions on this date")
	}
	return nil
}

// cachedReject answers true only when a warm cache entry proves no window covers start.
func (s *BookingService) cachedReject(ctx context.Context, therapistID, date string, start time.Time, sessionType models.SessionType) bool {
	var cached dto.AvailabilityDay
	hit, err := s.deps.Cache.Get(ctx, therapistID, date, &cached)
	if err != nil || !hit {
		return false
	}
	for _, slot := range cached.Slots {
		if slot.SessionType == sessionType && !start.Before(slot.Start) && start.Before(slot.End) {
			return false
		}
	}
	return true
}

// explainConflict fills in the colliding sessions when the exclusion constraint rejected the insert.
func (s *BookingService) explainConflict(ctx context.Context, therapistID string, start, end time.Time, err error) error {
	var conflict *models.BookingConflictError
	if !errors.As(err, &conflict) || len(conflict.Conflicts) > 0 {
		return err
	}
	result, lookupErr := s.deps.Conflicts.HasConflict(ctx, nil, therapistID, start, end)
	if lookupErr != nil || !result.Conflict {
		return err
	}
	return conflictError(result.ConflictingSessions)
}

// afterWrite is the single on-write hook for session changes.
func (s *BookingService) afterWrite(ctx context.Context, therapistID string) {
	if err := s.deps.Cache.InvalidateTherapist(ctx, therapistID); err != nil {
		s.deps.Logger.Error("availability cache invalidation failed", zap.String("therapist_id", therapistID), zap.Error(err))
	}
}

// matchWindow reports whether [start, end) lies inside contiguous windows of the requested session
// type. It returns the window containing start, whose cap applies to the booking.
func matchWindow(windows []models.AvailabilityWindow, start, end time.Time, sessionType models.SessionType) (models.AvailabilityWindow, bool) {
	for i, w := range windows {
		if w.SessionType != sessionType || start.Before(w.Start) || !start.Before(w.End) {
			continue
		}
		cursor := w.End
		for j := i + 1; cursor.Before(end) && j < len(windows); j++ {
			next := windows[j]
			if next.SessionType == sessionType && !next.Start.After(cursor) && next.End.After(cursor) {
				cursor = next.End
			}
		}
		if !cursor.Before(end) {
			return w, true
		}
	}
	return models.AvailabilityWindow{}, false
}

func resolveInterval(date, clock string, durationMinutes int, loc *time.Location) (time.Time, time.Time, time.Time, error) {
	day, err := parseDate(date)
	if err != nil {
		return time.Time{}, time.Time{}, time.Time{}, err
	}
	offset, err := models.ParseClock(clock)
	if err != nil {
		return time.Time{}, time.Time{}, time.Time{}, appErrors.Clone(appErrors.ErrValidation, "start_time must use HH:MM")
	}
	if durationMinutes <= 0 {
		return time.Time{}, time.Time{}, time.Time{}, appErrors.Clone(appErrors.ErrValidation, "duration must be positive")
	}
	start := wallClock(day, offset, loc).UTC()
	return day, start, start.Add(time.Duration(durationMinutes) * time.Minute), nil
}

func appendEvent(ctx context.Context, events sessionEventWriter, exec sqlx.ExtContext, sessionID string, from *models.SessionStatus, to models.SessionStatus, actor models.Actor, reason string, effect models.CreditEffect) error {
	if events == nil {
		return nil
	}
	event := &models.SessionEvent{
		ID:           uuid.NewString(),
		SessionID:    sessionID,
		FromStatus:   from,
		ToStatus:     to,
		ActorID:      optionalString(actor.UserID),
		ActorType:    actor.UserType,
		Reason:       optionalString(reason),
		CreditEffect: effect,
	}
	return events.Append(ctx, exec, event)
}

func slotUnavailable(message string) error {
	return appErrors.Clone(appErrors.ErrSlotUnavailable, message)
}

func optionalString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func outcomeFor(err error) string {
	switch {
	case err == nil:
		return OutcomeBooked
	case appErrors.IsCode(err, appErrors.ErrConflict.Code):
		return OutcomeConflict
	case appErrors.IsCode(err, appErrors.ErrSlotUnavailable.Code):
		return OutcomeSlotUnavailable
	case appErrors.IsCode(err, appErrors.ErrInsufficientCredit.Code):
		return OutcomeInsufficientCredit
	case appErrors.IsCode(err, appErrors.ErrTransientStorage.Code):
		return OutcomeTransient
	case appErrors.IsCode(err, appErrors.ErrValidation.Code),
		appErrors.IsCode(err, appErrors.ErrNotFound.Code),
		appErrors.IsCode(err, appErrors.ErrForbidden.Code):
		return OutcomeRejected
	default:
		return OutcomeError
	}
}
