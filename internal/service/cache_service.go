package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/therapy-booking-api/pkg/jobs"
	appErrors "github.com/noah-isme/therapy-booking-api/pkg/errors"
)

// JobCacheInvalidate retries a therapist invalidation that failed inline.
const JobCacheInvalidate = "cache.invalidate"

// CacheRepository abstracts persistence for cached payloads.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Generation(ctx context.Context, key string) (int64, error)
	Incr(ctx context.Context, key string) (int64, error)
	SetIfGeneration(ctx context.Context, genKey string, generation int64, key string, value interface{}, ttl time.Duration) (bool, error)
	DeleteByPattern(ctx context.Context, pattern string) error
}

type jobEnqueuer interface {
	Enqueue(job jobs.Job) error
}

// AvailabilityCacheService fronts the availability read path. It is only ever a fast reject;
// booking decisions always re-check conflicts against the database.
//
// Each therapist has a generation counter that every invalidation advances. A fill is written
// only if the generation read before computing is still current, so a result computed across a
// concurrent write is never cached.
type AvailabilityCacheService struct {
	repo    CacheRepository
	metrics *MetricsService
	ttl     time.Duration
	logger  *zap.Logger
	enabled bool
	retries jobEnqueuer
}

// NewAvailabilityCacheService constructs the cache front.
func NewAvailabilityCacheService(repo CacheRepository, metrics *MetricsService, ttl time.Duration, logger *zap.Logger, enabled bool) *AvailabilityCacheService {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AvailabilityCacheService{repo: repo, metrics: metrics, ttl: ttl, logger: logger, enabled: enabled}
}

// UseRetryQueue routes failed invalidations to a background queue.
func (s *AvailabilityCacheService) UseRetryQueue(queue jobEnqueuer) {
	if s != nil {
		s.retries = queue
	}
}

// Enabled indicates whether caching is active.
func (s *AvailabilityCacheService) Enabled() bool {
	return s != nil && s.enabled && s.repo != nil
}

func availabilityKey(therapistID, date string) string {
	return fmt.Sprintf("availability:%s:%s", therapistID, date)
}

func availabilityPattern(therapistID string) string {
	return fmt.Sprintf("availability:%s:*", therapistID)
}

func generationKey(therapistID string) string {
	return fmt.Sprintf("availability-gen:%s", therapistID)
}

// Get loads a cached availability day. It returns true when the cache was hit.
func (s *AvailabilityCacheService) Get(ctx context.Context, therapistID, date string, dest interface{}) (bool, error) {
	if !s.Enabled() {
		return false, nil
	}
	key := availabilityKey(therapistID, date)
	start := time.Now()
	err := s.repo.Get(ctx, key, dest)
	duration := time.Since(start)
	if err != nil {
		s.metrics.RecordCacheOperation(false, duration)
		if errors.Is(err, appErrors.ErrCacheMiss) {
			return false, nil
		}
		s.logger.Warn("availability cache get failed", zap.String("key", key), zap.Error(err))
		return false, err
	}
	s.metrics.RecordCacheOperation(true, duration)
	return true, nil
}

// Generation returns the therapist's current cache generation. Read it before computing a day
// and hand it to Set.
func (s *AvailabilityCacheService) Generation(ctx context.Context, therapistID string) (int64, error) {
	if !s.Enabled() {
		return 0, nil
	}
	gen, err := s.repo.Generation(ctx, generationKey(therapistID))
	if err != nil {
		s.logger.Warn("availability cache generation read failed", zap.String("therapist_id", therapistID), zap.Error(err))
	}
	return gen, err
}

// Set stores an availability day computed under generation. The write is skipped when the
// therapist has been invalidated since.
func (s *AvailabilityCacheService) Set(ctx context.Context, therapistID, date string, generation int64, value interface{}) error {
	if !s.Enabled() {
		return nil
	}
	key := availabilityKey(therapistID, date)
	start := time.Now()
	written, err := s.repo.SetIfGeneration(ctx, generationKey(therapistID), generation, key, value, s.ttl)
	s.metrics.ObserveCacheWrite(time.Since(start))
	if err != nil {
		s.logger.Warn("availability cache set failed", zap.String("key", key), zap.Error(err))
		return err
	}
	if !written {
		s.logger.Debug("availability cache fill superseded", zap.String("key", key), zap.Int64("generation", generation))
	}
	return nil
}

// InvalidateTherapist advances the therapist's generation and drops every cached date. When
// either step fails the invalidation is handed to the retry queue if one is attached.
func (s *AvailabilityCacheService) InvalidateTherapist(ctx context.Context, therapistID string) error {
	if !s.Enabled() || therapistID == "" {
		return nil
	}
	pattern := availabilityPattern(therapistID)
	err := s.bump(ctx, therapistID)
	if err == nil {
		s.metrics.RecordCacheInvalidation("ok")
		return nil
	}

	s.logger.Warn("availability cache invalidate failed", zap.String("pattern", pattern), zap.Error(err))
	if s.retries != nil {
		job := jobs.Job{Type: JobCacheInvalidate, Payload: therapistID}
		if qerr := s.retries.Enqueue(job); qerr == nil {
			s.metrics.RecordCacheInvalidation("deferred")
			return nil
		}
	}
	s.metrics.RecordCacheInvalidation("failed")
	return err
}

// purge is the queue-side invalidation; it never re-enqueues.
func (s *AvailabilityCacheService) purge(ctx context.Context, therapistID string) error {
	if !s.Enabled() {
		return nil
	}
	if err := s.bump(ctx, therapistID); err != nil {
		return err
	}
	s.metrics.RecordCacheInvalidation("ok")
	return nil
}

// bump advances the generation before the sweep, so a fill landing after the sweep is still rejected.
func (s *AvailabilityCacheService) bump(ctx context.Context, therapistID string) error {
	_, incrErr := s.repo.Incr(ctx, generationKey(therapistID))
	delErr := s.repo.DeleteByPattern(ctx, availabilityPattern(therapistID))
	return errors.Join(incrErr, delErr)
}
