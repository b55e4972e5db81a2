package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/therapy-booking-api/internal/dto"
	"github.com/noah-isme/therapy-booking-api/internal/models"
	appErrors "github.com/noah-isme/therapy-booking-api/pkg/errors"
)

type scheduleRuleStore interface {
	ListByTherapist(ctx context.Context, therapistID string) ([]models.TherapistScheduleRule, error)
	FindByID(ctx context.Context, therapistID, id string) (*models.TherapistScheduleRule, error)
	Create(ctx context.Context, rule *models.TherapistScheduleRule) error
	Update(ctx context.Context, rule *models.TherapistScheduleRule) error
	Delete(ctx context.Context, therapistID, id string) error
}

type overrideStore interface {
	ListByTherapistRange(ctx context.Context, therapistID, from, to string) ([]models.AvailabilityOverride, error)
	Upsert(ctx context.Context, override *models.AvailabilityOverride) error
	Delete(ctx context.Context, therapistID, date string) error
}

// ScheduleService manages a therapist's weekly rules and date overrides. Every write drops the
// therapist's cached availability before returning.
type ScheduleService struct {
	therapists therapistReader
	rules      scheduleRuleStore
	overrides  overrideStore
	cache      *AvailabilityCacheService
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewScheduleService constructs the schedule write path.
func NewScheduleService(therapists therapistReader, rules scheduleRuleStore, overrides overrideStore, cache *AvailabilityCacheService, validate *validator.Validate, logger *zap.Logger) *ScheduleService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScheduleService{
		therapists: therapists,
		rules:      rules,
		overrides:  overrides,
		cache:      cache,
		validator:  validate,
		logger:     logger,
	}
}

// ListRules returns the therapist's weekly rules.
func (s *ScheduleService) ListRules(ctx context.Context, actor models.Actor) ([]models.TherapistScheduleRule, error) {
	if err := requireTherapist(actor); err != nil {
		return nil, err
	}
	rules, err := s.rules.ListByTherapist(ctx, actor.UserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list schedule rules")
	}
	if rules == nil {
		rules = []models.TherapistScheduleRule{}
	}
	return rules, nil
}

// CreateRule adds a weekly rule.
func (s *ScheduleService) CreateRule(ctx context.Context, actor models.Actor, req dto.ScheduleRuleRequest) (*models.TherapistScheduleRule, error) {
	if err := s.authorize(ctx, actor); err != nil {
		return nil, err
	}
	rule := &models.TherapistScheduleRule{TherapistID: actor.UserID}
	if err := s.applyRule(rule, req); err != nil {
		return nil, err
	}
	if err := s.rules.Create(ctx, rule); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create schedule rule")
	}
	s.invalidate(ctx, actor.UserID)
	return rule, nil
}

// UpdateRule replaces a weekly rule.
func (s *ScheduleService) UpdateRule(ctx context.Context, actor models.Actor, id string, req dto.ScheduleRuleRequest) (*models.TherapistScheduleRule, error) {
	if err := s.authorize(ctx, actor); err != nil {
		return nil, err
	}
	rule, err := s.rules.FindByID(ctx, actor.UserID, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "schedule rule not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load schedule rule")
	}
	if err := s.applyRule(rule, req); err != nil {
		return nil, err
	}
	if err := s.rules.Update(ctx, rule); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "schedule rule not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update schedule rule")
	}
	s.invalidate(ctx, actor.UserID)
	return rule, nil
}

// DeleteRule removes a weekly rule.
func (s *ScheduleService) DeleteRule(ctx context.Context, actor models.Actor, id string) error {
	if err := requireTherapist(actor); err != nil {
		return err
	}
	if err := s.rules.Delete(ctx, actor.UserID, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "schedule rule not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete schedule rule")
	}
	s.invalidate(ctx, actor.UserID)
	return nil
}

// ListOverrides returns overrides in an inclusive date range.
func (s *ScheduleService) ListOverrides(ctx context.Context, actor models.Actor, query dto.OverrideRangeQuery) ([]models.AvailabilityOverride, error) {
	if err := requireTherapist(actor); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(query); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid date range")
	}
	if query.To < query.From {
		return nil, appErrors.Clone(appErrors.ErrValidation, "from must not be after to")
	}
	overrides, err := s.overrides.ListByTherapistRange(ctx, actor.UserID, query.From, query.To)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list overrides")
	}
	if overrides == nil {
		overrides = []models.AvailabilityOverride{}
	}
	return overrides, nil
}

// UpsertOverride writes the exception for one date.
func (s *ScheduleService) UpsertOverride(ctx context.Context, actor models.Actor, req dto.AvailabilityOverrideRequest) (*models.AvailabilityOverride, error) {
	if err := s.authorize(ctx, actor); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid override payload")
	}
	date, err := parseDate(req.Date)
	if err != nil {
		return nil, err
	}
	if err := validateClockPair(req.StartTime, req.EndTime, false); err != nil {
		return nil, err
	}

	override := &models.AvailabilityOverride{
		TherapistID:            actor.UserID,
		OverrideDate:           date,
		IsAvailable:            *req.IsAvailable,
		StartTime:              req.StartTime,
		EndTime:                req.EndTime,
		SessionDurationMinutes: req.SessionDurationMinutes,
		MaxSessions:            req.MaxSessions,
		Reason:                 req.Reason,
	}
	if req.SessionType != nil {
		sessionType := models.SessionType(*req.SessionType)
		override.SessionType = &sessionType
	}
	if err := s.overrides.Upsert(ctx, override); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save override")
	}
	s.invalidate(ctx, actor.UserID)
	return override, nil
}

// DeleteOverride removes the exception for one date.
func (s *ScheduleService) DeleteOverride(ctx context.Context, actor models.Actor, date string) error {
	if err := requireTherapist(actor); err != nil {
		return err
	}
	if _, err := parseDate(date); err != nil {
		return err
	}
	if err := s.overrides.Delete(ctx, actor.UserID, date); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "override not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete override")
	}
	s.invalidate(ctx, actor.UserID)
	return nil
}

func (s *ScheduleService) authorize(ctx context.Context, actor models.Actor) error {
	if err := requireTherapist(actor); err != nil {
		return err
	}
	if _, err := s.therapists.FindByID(ctx, actor.UserID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "therapist not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load therapist")
	}
	return nil
}

func (s *ScheduleService) applyRule(rule *models.TherapistScheduleRule, req dto.ScheduleRuleRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid schedule rule payload")
	}
	if err := validateClockPair(&req.StartTime, &req.EndTime, true); err != nil {
		return err
	}
	rule.DayOfWeek = *req.DayOfWeek
	rule.StartTime = req.StartTime
	rule.EndTime = req.EndTime
	rule.SessionDurationMinutes = req.SessionDurationMinutes
	rule.SessionType = models.SessionTypeVideo
	if req.SessionType != "" {
		rule.SessionType = models.SessionType(req.SessionType)
	}
	rule.MaxSessions = req.MaxSessions
	rule.IsActive = true
	if req.IsActive != nil {
		rule.IsActive = *req.IsActive
	}
	return nil
}

func (s *ScheduleService) invalidate(ctx context.Context, therapistID string) {
	if err := s.cache.InvalidateTherapist(ctx, therapistID); err != nil {
		s.logger.Error("availability cache invalidation failed", zap.String("therapist_id", therapistID), zap.Error(err))
	}
}

// validateClockPair accepts nil values; when both are present start must not be after end.
// Rules pass strict and need a non-empty range.
func validateClockPair(start, end *string, strict bool) error {
	var offsets [2]time.Duration
	for i, value := range []*string{start, end} {
		if value == nil {
			continue
		}
		offset, err := models.ParseClock(*value)
		if err != nil {
			return appErrors.Clone(appErrors.ErrValidation, "times must use HH:MM")
		}
		offsets[i] = offset
	}
	if start == nil || end == nil {
		return nil
	}
	if offsets[1] < offsets[0] {
		return appErrors.Clone(appErrors.ErrValidation, "end time must not be before start time")
	}
	if strict && offsets[1] == offsets[0] {
		return appErrors.Clone(appErrors.ErrValidation, "end time must be after start time")
	}
	return nil
}

func requireTherapist(actor models.Actor) error {
	if actor.UserType != models.UserTypeTherapist || actor.UserID == "" {
		return appErrors.Clone(appErrors.ErrForbidden, "therapist access required")
	}
	return nil
}
