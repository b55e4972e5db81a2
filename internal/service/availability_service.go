package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/therapy-booking-api/internal/dto"
	"github.com/noah-isme/therapy-booking-api/internal/models"
	appErrors "github.com/noah-isme/therapy-booking-api/pkg/errors"
)

type therapistReader interface {
	FindByID(ctx context.Context, id string) (*models.Therapist, error)
}

type scheduleRuleReader interface {
	ListByTherapistAndDay(ctx context.Context, exec sqlx.ExtContext, therapistID string, dayOfWeek int) ([]models.TherapistScheduleRule, error)
}

type overrideReader interface {
	FindByTherapistAndDate(ctx context.Context, exec sqlx.ExtContext, therapistID, date string) (*models.AvailabilityOverride, error)
}

type dailySessionCounter interface {
	CountBlockingStartingBetween(ctx context.Context, exec sqlx.ExtContext, therapistID string, from, to time.Time) (int, error)
}

type availabilitySessionReader interface {
	blockingSessionReader
	dailySessionCounter
}

// AvailabilityConfig tunes window computation.
type AvailabilityConfig struct {
	DefaultSessionMinutes int
}

// AvailabilityService turns weekly rules and date overrides into absolute bookable windows.
type AvailabilityService struct {
	therapists therapistReader
	rules      scheduleRuleReader
	overrides  overrideReader
	sessions   availabilitySessionReader
	cache      *AvailabilityCacheService
	cfg        AvailabilityConfig
	logger     *zap.Logger
}

// NewAvailabilityService wires the availability model.
func NewAvailabilityService(therapists therapistReader, rules scheduleRuleReader, overrides overrideReader, sessions availabilitySessionReader, cache *AvailabilityCacheService, cfg AvailabilityConfig, logger *zap.Logger) *AvailabilityService {
	if cfg.DefaultSessionMinutes <= 0 {
		cfg.DefaultSessionMinutes = 60
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AvailabilityService{
		therapists: therapists,
		rules:      rules,
		overrides:  overrides,
		sessions:   sessions,
		cache:      cache,
		cfg:        cfg,
		logger:     logger,
	}
}

// ComputeWindows returns the ordered bookable windows for a therapist on a YYYY-MM-DD date in the
// therapist's timezone.
func (s *AvailabilityService) ComputeWindows(ctx context.Context, therapistID, date string) ([]models.AvailabilityWindow, error) {
	therapist, err := loadBookableTherapist(ctx, s.therapists, therapistID)
	if err != nil {
		return nil, err
	}
	day, err := parseDate(date)
	if err != nil {
		return nil, err
	}
	return s.computeWindows(ctx, nil, therapist, day)
}

// GetAvailability returns the windows for a date annotated with live bookability, served from cache when warm.
func (s *AvailabilityService) GetAvailability(ctx context.Context, therapistID, date string) (*dto.AvailabilityDay, bool, error) {
	therapist, err := loadBookableTherapist(ctx, s.therapists, therapistID)
	if err != nil {
		return nil, false, err
	}
	day, err := parseDate(date)
	if err != nil {
		return nil, false, err
	}

	var cached dto.AvailabilityDay
	if hit, _ := s.cache.Get(ctx, therapistID, date, &cached); hit {
		return &cached, true, nil
	}
	generation, genErr := s.cache.Generation(ctx, therapistID)

	windows, err := s.computeWindows(ctx, nil, therapist, day)
	if err != nil {
		return nil, false, err
	}

	result := &dto.AvailabilityDay{
		TherapistID: therapistID,
		Date:        date,
		Timezone:    therapist.Location().String(),
		Slots:       make([]dto.AvailabilitySlot, 0, len(windows)),
	}
	if len(windows) > 0 {
		if err := s.annotate(ctx, therapist, day, windows, result); err != nil {
			return nil, false, err
		}
	}

	if genErr == nil {
		_ = s.cache.Set(ctx, therapistID, date, generation, result)
	}
	return result, false, nil
}

func (s *AvailabilityService) annotate(ctx context.Context, therapist *models.Therapist, day time.Time, windows []models.AvailabilityWindow, out *dto.AvailabilityDay) error {
	first, last := windows[0].Start, windows[0].End
	for _, w := range windows {
		if w.End.After(last) {
			last = w.End
		}
	}
	existing, err := s.sessions.ListBlockingInRange(ctx, nil, therapist.ID, first, last)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load sessions")
	}
	dayStart, dayEnd := localDayBounds(day, therapist.Location())
	booked, err := s.sessions.CountBlockingStartingBetween(ctx, nil, therapist.ID, dayStart, dayEnd)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count sessions")
	}

	for _, w := range windows {
		available := true
		if w.MaxSessions > 0 && booked >= w.MaxSessions {
			available = false
		}
		for _, session := range existing {
			if w.Overlaps(session.StartTime, session.EndTime) {
				available = false
				break
			}
		}
		out.Slots = append(out.Slots, dto.AvailabilitySlot{AvailabilityWindow: w, Available: available})
	}
	return nil
}

func (s *AvailabilityService) computeWindows(ctx context.Context, exec sqlx.ExtContext, therapist *models.Therapist, day time.Time) ([]models.AvailabilityWindow, error) {
	override, err := s.overrides.FindByTherapistAndDate(ctx, exec, therapist.ID, day.Format(models.DateLayout))
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load availability override")
	}
	if err != nil {
		override = nil
	}

	var rules []models.TherapistScheduleRule
	if override == nil {
		weekday := time.Date(day.Year(), day.Month(), day.Day(), 12, 0, 0, 0, therapist.Location()).Weekday()
		rules, err = s.rules.ListByTherapistAndDay(ctx, exec, therapist.ID, int(weekday))
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load schedule rules")
		}
	}
	return ExpandWindows(day, therapist.Location(), rules, override, s.cfg.DefaultSessionMinutes), nil
}

// ExpandWindows is the pure availability model. An override for the date wins outright: closed yields
// nothing, open derives windows from the override fields only. Without an override every rule is
// stepped by its duration across [start, end) in loc and the union is returned in UTC, ordered by start.
// Rules yielding the same start and session type collapse to the first one.
func ExpandWindows(day time.Time, loc *time.Location, rules []models.TherapistScheduleRule, override *models.AvailabilityOverride, defaultMinutes int) []models.AvailabilityWindow {
	if loc == nil {
		loc = time.UTC
	}
	windows := make([]models.AvailabilityWindow, 0)

	if override != nil {
		if !override.IsAvailable || override.StartTime == nil || override.EndTime == nil {
			return windows
		}
		duration := defaultMinutes
		if override.SessionDurationMinutes != nil {
			duration = *override.SessionDurationMinutes
		}
		sessionType := models.SessionTypeVideo
		if override.SessionType != nil && override.SessionType.Valid() {
			sessionType = *override.SessionType
		}
		maxSessions := 0
		if override.MaxSessions != nil {
			maxSessions = *override.MaxSessions
		}
		return expandBlock(day, loc, *override.StartTime, *override.EndTime, duration, sessionType, maxSessions, models.WindowSourceOverride)
	}

	for _, rule := range rules {
		if !rule.IsActive {
			continue
		}
		sessionType := rule.SessionType
		if !sessionType.Valid() {
			sessionType = models.SessionTypeVideo
		}
		windows = append(windows, expandBlock(day, loc, rule.StartTime, rule.EndTime, rule.SessionDurationMinutes, sessionType, rule.MaxSessions, models.WindowSourceRule)...)
	}

	sort.SliceStable(windows, func(i, j int) bool { return windows[i].Start.Before(windows[j].Start) })
	type windowKey struct {
		start       int64
		sessionType models.SessionType
	}
	seen := make(map[windowKey]struct{}, len(windows))
	deduped := windows[:0]
	for _, w := range windows {
		key := windowKey{start: w.Start.UnixNano(), sessionType: w.SessionType}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		deduped = append(deduped, w)
	}
	return deduped
}

func expandBlock(day time.Time, loc *time.Location, startClock, endClock string, durationMinutes int, sessionType models.SessionType, maxSessions int, source string) []models.AvailabilityWindow {
	out := make([]models.AvailabilityWindow, 0)
	if durationMinutes <= 0 {
		return out
	}
	startOffset, err := models.ParseClock(startClock)
	if err != nil {
		return out
	}
	endOffset, err := models.ParseClock(endClock)
	if err != nil || endOffset <= startOffset {
		return out
	}

	start := wallClock(day, startOffset, loc)
	end := wallClock(day, endOffset, loc)
	step := time.Duration(durationMinutes) * time.Minute
	for slot := start; !slot.Add(step).After(end); slot = slot.Add(step) {
		out = append(out, models.AvailabilityWindow{
			Start:           slot.UTC(),
			End:             slot.Add(step).UTC(),
			DurationMinutes: durationMinutes,
			SessionType:     sessionType,
			MaxSessions:     maxSessions,
			Source:          source,
		})
	}
	return out
}

// wallClock resolves a local time of day on a calendar date into an absolute instant.
func wallClock(day time.Time, offset time.Duration, loc *time.Location) time.Time {
	hours := int(offset / time.Hour)
	minutes := int(offset % time.Hour / time.Minute)
	seconds := int(offset % time.Minute / time.Second)
	return time.Date(day.Year(), day.Month(), day.Day(), hours, minutes, seconds, 0, loc)
}

func localDayBounds(day time.Time, loc *time.Location) (time.Time, time.Time) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, loc)
	end := time.Date(day.Year(), day.Month(), day.Day()+1, 0, 0, 0, 0, loc)
	return start.UTC(), end.UTC()
}

func parseDate(value string) (time.Time, error) {
	day, err := time.Parse(models.DateLayout, value)
	if err != nil {
		return time.Time{}, appErrors.Clone(appErrors.ErrValidation, "date must use YYYY-MM-DD")
	}
	return day, nil
}

func loadBookableTherapist(ctx context.Context, therapists therapistReader, id string) (*models.Therapist, error) {
	if id == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "therapist id is required")
	}
	therapist, err := therapists.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "therapist not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load therapist")
	}
	if !therapist.Bookable() {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "therapist not found")
	}
	return therapist, nil
}
