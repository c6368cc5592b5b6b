package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	apperrors "github.com/apolmig/smartqr-backend/internal/pkg/errors"
	"github.com/apolmig/smartqr-backend/internal/pkg/logger"
)

const (
	DefaultMaxAttempts = 5
	DefaultBaseDelay   = 200 * time.Millisecond
)

// Reporter receives one call per attempt. Wired to observability; a nil
// Reporter is fine.
type Reporter interface {
	ReportAttempt(op string, attempt int, elapsed time.Duration, err error)
}

// Executor runs an operation with bounded retries and exponential backoff.
// Terminal errors (constraint violations, vanished rows) short-circuit
// immediately: replaying those would replay a logic error, not wait out a
// transient failure.
type Executor struct {
	log         *logger.Logger
	maxAttempts int
	baseDelay   time.Duration
	opDeadline  time.Duration
	reporter    Reporter

	// sleep is swappable so tests can run without wall-clock waits.
	sleep func(ctx context.Context, d time.Duration) error
}

type Option func(*Executor)

func WithMaxAttempts(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.maxAttempts = n
		}
	}
}

func WithBaseDelay(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.baseDelay = d
		}
	}
}

// WithOperationDeadline bounds the total latency of Do across all attempts
// and backoff waits, independent of any per-statement timeout.
func WithOperationDeadline(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.opDeadline = d
		}
	}
}

func WithReporter(r Reporter) Option {
	return func(e *Executor) { e.reporter = r }
}

func withSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Executor) { e.sleep = fn }
}

func New(baseLog *logger.Logger, opts ...Option) *Executor {
	e := &Executor{
		log:         baseLog.With("component", "RetryExecutor"),
		maxAttempts: DefaultMaxAttempts,
		baseDelay:   DefaultBaseDelay,
		sleep:       sleepCtx,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Do runs fn until it succeeds, fails terminally, or the attempt budget is
// spent. Backoff before attempt n (1-indexed) is baseDelay * 2^(n-1), applied
// before retries only, never before the first attempt.
func (e *Executor) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if e.opDeadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opDeadline)
		defer cancel()
	}

	var lastErr error
	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		if attempt > 1 {
			if err := e.sleep(ctx, Backoff(e.baseDelay, attempt-1)); err != nil {
				return fmt.Errorf("%w: %v (after %d attempts)", apperrors.ErrRetriesExhausted, lastErr, attempt-1)
			}
		}

		start := time.Now()
		err := fn(ctx)
		if e.reporter != nil {
			e.reporter.ReportAttempt(op, attempt, time.Since(start), err)
		}
		if err == nil {
			return nil
		}
		if !IsRetryable(err) {
			return err
		}
		lastErr = err
		e.log.Warn("retryable failure", "op", op, "attempt", attempt, "max_attempts", e.maxAttempts, "error", err)
	}
	return fmt.Errorf("%w: %v (after %d attempts)", apperrors.ErrRetriesExhausted, lastErr, e.maxAttempts)
}

// Do runs a value-returning operation through the executor.
func Do[T any](ctx context.Context, e *Executor, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := e.Do(ctx, op, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// Backoff returns the delay preceding a retry, where n is the number of
// attempts already made (n >= 1).
func Backoff(base time.Duration, n int) time.Duration {
	d := base
	for i := 1; i < n; i++ {
		d *= 2
	}
	return d
}

// IsRetryable classifies an error as transient (worth another attempt) or
// terminal. Uniqueness violations and vanished rows indicate a logic race
// resolved elsewhere; connection, timeout and serialization failures are the
// replica-lag-adjacent noise the executor exists to absorb.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || errors.Is(err, gorm.ErrRecordNotFound) {
		return false
	}
	if apperrors.IsTerminal(err) {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == pgerrcode.UniqueViolation,
			pgErr.Code == pgerrcode.ForeignKeyViolation,
			pgErr.Code == pgerrcode.NotNullViolation,
			pgErr.Code == pgerrcode.CheckViolation:
			return false
		case pgErr.Code == pgerrcode.SerializationFailure,
			pgErr.Code == pgerrcode.DeadlockDetected,
			pgErr.Code == pgerrcode.QueryCanceled,
			pgErr.Code == pgerrcode.TooManyConnections,
			pgErr.Code == pgerrcode.CannotConnectNow,
			pgerrcode.IsConnectionException(pgErr.Code),
			pgerrcode.IsOperatorIntervention(pgErr.Code):
			return true
		default:
			return false
		}
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if pgconn.SafeToRetry(err) {
		return true
	}

	// Unknown failure: assume transient. The attempt budget bounds the cost
	// of guessing wrong.
	return true
}

// IsUniqueViolation reports whether err is a uniqueness-constraint failure,
// the signal for re-rolling a colliding short key and for detecting a
// concurrent first-time user creation.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
