package worker

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// DefaultSpec runs the sweep every minute.
const DefaultSpec = "@every 1m"

type sessionSweeper interface {
	ExpireDeferred(ctx context.Context) (int, error)
	MarkUnattended(ctx context.Context) (int, error)
}

type grantExpirer interface {
	ExpireOverdue(ctx context.Context) (int64, error)
}

// SweepResult reports how many items each pass touched.
type SweepResult struct {
	DeferredCancelled int
	NoShows           int
	GrantsExpired     int64
}

// Sweeper periodically advances sessions and grants that time has moved past.
type Sweeper struct {
	sessions sessionSweeper
	grants   grantExpirer
	logger   *zap.Logger
	timeout  time.Duration

	mu      sync.Mutex
	running bool
	cron    *cron.Cron
}

// NewSweeper constructs a sweeper. A non-positive timeout bounds each run at 30s.
func NewSweeper(sessions sessionSweeper, grants grantExpirer, timeout time.Duration, logger *zap.Logger) *Sweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Sweeper{sessions: sessions, grants: grants, logger: logger, timeout: timeout}
}

// Start schedules the sweep on spec (standard cron or @every syntax).
func (s *Sweeper) Start(spec string) error {
	if spec == "" {
		spec = DefaultSpec
	}
	c := cron.New()
	if _, err := c.AddFunc(spec, func() { s.tick() }); err != nil {
		return err
	}
	s.cron = c
	c.Start()
	s.logger.Info("sweeper scheduled", zap.String("spec", spec))
	return nil
}

// Stop halts scheduling and waits for an in-flight run.
func (s *Sweeper) Stop(ctx context.Context) {
	if s.cron == nil {
		return
	}
	done := s.cron.Stop().Done()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

func (s *Sweeper) tick() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.Debug("sweep skipped, previous run still active")
		return
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	s.RunOnce(ctx)
}

// RunOnce performs a single pass. Each step is independent; a failing step is logged and
// the rest still run.
func (s *Sweeper) RunOnce(ctx context.Context) SweepResult {
	var result SweepResult
	var err error

	if s.sessions != nil {
		if result.DeferredCancelled, err = s.sessions.ExpireDeferred(ctx); err != nil {
			s.logger.Warn("deferred session sweep failed", zap.Error(err))
		}
		if result.NoShows, err = s.sessions.MarkUnattended(ctx); err != nil {
			s.logger.Warn("no-show sweep failed", zap.Error(err))
		}
	}
	if s.grants != nil {
		if result.GrantsExpired, err = s.grants.ExpireOverdue(ctx); err != nil {
			s.logger.Warn("grant expiry sweep failed", zap.Error(err))
		}
	}

	if result.DeferredCancelled+result.NoShows > 0 || result.GrantsExpired > 0 {
		s.logger.Info("sweep completed",
			zap.Int("deferred_cancelled", result.DeferredCancelled),
			zap.Int("no_shows", result.NoShows),
			zap.Int64("grants_expired", result.GrantsExpired),
		)
	}
	return result
}
