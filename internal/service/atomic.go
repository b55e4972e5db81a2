package service

import (
	"context"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/therapy-booking-api/internal/repository"
	appErrors "github.com/noah-isme/therapy-booking-api/pkg/errors"
)

type txRunner interface {
	WithinTx(ctx context.Context, lockKeys []string, fn func(ctx context.Context, exec sqlx.ExtContext) error) error
}

// AtomicConfig bounds each unit of work and its retries.
type AtomicConfig struct {
	Timeout      time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
}

type atomicRunner struct {
	tx      txRunner
	cfg     AtomicConfig
	metrics *MetricsService
	logger  *zap.Logger
}

func newAtomicRunner(tx txRunner, cfg AtomicConfig, metrics *MetricsService, logger *zap.Logger) *atomicRunner {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 500 * time.Millisecond
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 50 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &atomicRunner{tx: tx, cfg: cfg, metrics: metrics, logger: logger}
}

// run executes fn atomically, retrying transient failures with doubling backoff. Once retries are
// spent the failure surfaces as TRANSIENT_STORAGE. Business errors return on the first attempt.
func (r *atomicRunner) run(ctx context.Context, op string, lockKeys []string, fn func(ctx context.Context, exec sqlx.ExtContext) error) error {
	if r == nil || r.tx == nil {
		return appErrors.Clone(appErrors.ErrInternal, "transaction provider missing")
	}
	started := time.Now()
	defer func() { r.metrics.ObserveTx(op, time.Since(started)) }()

	backoff := r.cfg.RetryBackoff
	for attempt := 0; ; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
		err := r.tx.WithinTx(attemptCtx, lockKeys, fn)
		cancel()
		if err == nil {
			return nil
		}
		if !isTransient(ctx, err) {
			return err
		}
		if attempt >= r.cfg.MaxRetries || ctx.Err() != nil {
			r.logger.Warn("atomic unit gave up", zap.String("operation", op), zap.Int("attempts", attempt+1), zap.Error(err))
			return appErrors.Wrap(err, appErrors.ErrTransientStorage.Code, appErrors.ErrTransientStorage.Status, appErrors.ErrTransientStorage.Message)
		}

		r.metrics.RecordTxRetry(op)
		r.logger.Warn("retrying atomic unit", zap.String("operation", op), zap.Int("attempt", attempt+1), zap.Duration("backoff", backoff), zap.Error(err))

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return appErrors.Wrap(ctx.Err(), appErrors.ErrTransientStorage.Code, appErrors.ErrTransientStorage.Status, appErrors.ErrTransientStorage.Message)
		case <-timer.C:
		}
		backoff *= 2
	}
}

// isTransient treats an attempt timeout as retryable only while the caller's own context is alive.
func isTransient(parent context.Context, err error) bool {
	if errors.Is(err, repository.ErrTransient) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded) && parent.Err() == nil
}
