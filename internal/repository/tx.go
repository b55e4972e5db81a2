package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

var (
	// ErrExclusionViolation is returned when an insert or update trips sessions_no_overlap.
	ErrExclusionViolation = errors.New("session overlaps an existing commitment")
	// ErrTransient marks contention or infrastructure failures that are safe to retry.
	ErrTransient = errors.New("transient storage failure")
)

const (
	pqExclusionViolation   = "23P01"
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
	pqLockNotAvailable     = "55P03"
	pqQueryCanceled        = "57014"

	sessionsNoOverlapConstraint = "sessions_no_overlap"
)

// ClassifyError maps driver errors onto ErrExclusionViolation or ErrTransient, keeping the original in the chain.
func ClassifyError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrExclusionViolation) || errors.Is(err, ErrTransient) {
		return err
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqExclusionViolation:
			return fmt.Errorf("%w: %w", ErrExclusionViolation, err)
		case pqSerializationFailure, pqDeadlockDetected, pqLockNotAvailable, pqQueryCanceled:
			return fmt.Errorf("%w: %w", ErrTransient, err)
		}
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("%w: %w", ErrTransient, err)
	}
	return err
}

// TherapistLockKey serialises work that reads or writes a therapist's calendar.
func TherapistLockKey(therapistID string) string { return "therapist:" + therapistID }

// CreditLockKey serialises ledger movements for a user.
func CreditLockKey(userID string) string { return "credits:" + userID }

// SessionLockKey serialises lifecycle transitions for a session.
func SessionLockKey(sessionID string) string { return "session:" + sessionID }

// TxOptions tunes the unit of work.
type TxOptions struct {
	Isolation   sql.IsolationLevel
	LockTimeout time.Duration
}

// IsolationFromString maps config values onto sql isolation levels, defaulting to read committed.
// Snapshot levels fix their snapshot at the first statement, before the advisory lock wait ends.
func IsolationFromString(value string) sql.IsolationLevel {
	switch value {
	case "serializable":
		return sql.LevelSerializable
	case "repeatable_read":
		return sql.LevelRepeatableRead
	default:
		return sql.LevelReadCommitted
	}
}

// Transactor runs callbacks inside one Postgres transaction guarded by advisory locks.
type Transactor struct {
	db   *sqlx.DB
	opts TxOptions
}

// NewTransactor builds a transactor over the pool.
func NewTransactor(db *sqlx.DB, opts TxOptions) *Transactor {
	return &Transactor{db: db, opts: opts}
}

// WithinTx begins a transaction, takes transaction-scoped advisory locks for lockKeys in sorted order
// and runs fn. The transaction commits only when fn returns nil.
func (t *Transactor) WithinTx(ctx context.Context, lockKeys []string, fn func(ctx context.Context, exec sqlx.ExtContext) error) (err error) {
	tx, err := t.db.BeginTxx(ctx, &sql.TxOptions{Isolation: t.opts.Isolation})
	if err != nil {
		return ClassifyError(fmt.Errorf("begin tx: %w", err))
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if t.opts.LockTimeout > 0 {
		timeout := fmt.Sprintf("%dms", t.opts.LockTimeout.Milliseconds())
		if _, err = tx.ExecContext(ctx, `SELECT set_config('lock_timeout', $1, true)`, timeout); err != nil {
			err = ClassifyError(fmt.Errorf("set lock timeout: %w", err))
			return err
		}
	}

	for _, key := range sortedKeys(lockKeys) {
		if _, err = tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key); err != nil {
			err = ClassifyError(fmt.Errorf("advisory lock %s: %w", key, err))
			return err
		}
	}

	if err = fn(ctx, tx); err != nil {
		err = ClassifyError(err)
		return err
	}

	if err = tx.Commit(); err != nil {
		err = ClassifyError(fmt.Errorf("commit tx: %w", err))
		return err
	}
	return nil
}

func sortedKeys(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}
