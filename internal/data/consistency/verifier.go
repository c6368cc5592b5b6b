package consistency

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/apolmig/smartqr-backend/internal/pkg/logger"
	"github.com/apolmig/smartqr-backend/internal/pkg/retry"
)

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 75 * time.Millisecond
)

// Probe checks whether a just-written entity is observable on the read side.
// Errors are treated the same as "not visible yet": verification is advisory
// and must never fail a write that already committed on the primary.
type Probe func(ctx context.Context) (bool, error)

// Result is the outcome of one verification loop.
type Result struct {
	Consistent bool
	Attempts   int
}

// Verifier polls a read probe after a write until the row shows up or the
// attempt budget runs out. Exhaustion is reported as Consistent=false, not as
// an error; callers log it and proceed.
type Verifier struct {
	log         *logger.Logger
	maxAttempts int
	baseDelay   time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
}

type Option func(*Verifier)

func WithMaxAttempts(n int) Option {
	return func(v *Verifier) {
		if n > 0 {
			v.maxAttempts = n
		}
	}
}

func WithBaseDelay(d time.Duration) Option {
	return func(v *Verifier) {
		if d > 0 {
			v.baseDelay = d
		}
	}
}

func withSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(v *Verifier) { v.sleep = fn }
}

func New(baseLog *logger.Logger, opts ...Option) *Verifier {
	v := &Verifier{
		log:         baseLog.With("component", "ConsistencyVerifier"),
		maxAttempts: DefaultMaxAttempts,
		baseDelay:   DefaultBaseDelay,
		sleep: func(ctx context.Context, d time.Duration) error {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.C:
				return nil
			}
		},
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify runs the probe with the same exponential policy as the retry
// executor, just a smaller base. The first attempt runs with no delay.
func (v *Verifier) Verify(ctx context.Context, name string, probe Probe) Result {
	for attempt := 1; attempt <= v.maxAttempts; attempt++ {
		if attempt > 1 {
			if err := v.sleep(ctx, retry.Backoff(v.baseDelay, attempt-1)); err != nil {
				return Result{Consistent: false, Attempts: attempt - 1}
			}
		}
		found, err := probe(ctx)
		if err != nil {
			v.log.Debug("consistency probe errored", "probe", name, "attempt", attempt, "error", err)
			continue
		}
		if found {
			return Result{Consistent: true, Attempts: attempt}
		}
	}
	v.log.Warn("write not yet observable on read side", "probe", name, "attempts", v.maxAttempts)
	return Result{Consistent: false, Attempts: v.maxAttempts}
}

// VerifyAll runs independent probes concurrently and returns each one's
// result keyed by probe name.
func (v *Verifier) VerifyAll(ctx context.Context, probes map[string]Probe) map[string]Result {
	results := make(map[string]Result, len(probes))
	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	for name, probe := range probes {
		g.Go(func() error {
			r := v.Verify(ctx, name, probe)
			mu.Lock()
			results[name] = r
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}
