package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	apperrors "github.com/apolmig/smartqr-backend/internal/pkg/errors"
	"github.com/apolmig/smartqr-backend/internal/pkg/logger"
)

var errFlaky = errors.New("connection reset by peer")

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("init logger: %v", err)
	}
	return log
}

func noSleep() (Option, *[]time.Duration) {
	var waits []time.Duration
	return withSleep(func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}), &waits
}

func TestDoSucceedsFirstAttempt(t *testing.T) {
	sleep, waits := noSleep()
	e := New(testLogger(t), sleep)
	calls := 0
	err := e.Do(context.Background(), "op", func(ctx context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
	if len(*waits) != 0 {
		t.Fatalf("no backoff expected before the first attempt, got %v", *waits)
	}
}

func TestDoRetriesThenSucceeds(t *testing.T) {
	sleep, waits := noSleep()
	e := New(testLogger(t), sleep, WithBaseDelay(10*time.Millisecond))
	calls := 0
	err := e.Do(context.Background(), "op", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errFlaky
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
	want := []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}
	if len(*waits) != len(want) {
		t.Fatalf("waits = %v, want %v", *waits, want)
	}
	for i := range want {
		if (*waits)[i] != want[i] {
			t.Fatalf("waits[%d] = %v, want %v", i, (*waits)[i], want[i])
		}
	}
}

func TestDoExhaustsBudget(t *testing.T) {
	sleep, _ := noSleep()
	e := New(testLogger(t), sleep, WithMaxAttempts(3))
	calls := 0
	err := e.Do(context.Background(), "op", func(ctx context.Context) error {
		calls++
		return errFlaky
	})
	if !apperrors.IsRetriesExhausted(err) {
		t.Fatalf("want ErrRetriesExhausted, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestDoTerminalShortCircuits(t *testing.T) {
	sleep, _ := noSleep()
	e := New(testLogger(t), sleep)
	calls := 0
	terminal := &pgconn.PgError{Code: "23505"}
	err := e.Do(context.Background(), "op", func(ctx context.Context) error {
		calls++
		return fmt.Errorf("insert: %w", terminal)
	})
	if calls != 1 {
		t.Fatalf("terminal error retried: calls = %d", calls)
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		t.Fatalf("terminal error not propagated: %v", err)
	}
}

func TestDoHonorsContextCancellation(t *testing.T) {
	e := New(testLogger(t), WithBaseDelay(time.Hour))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	calls := 0
	go func() {
		done <- e.Do(ctx, "op", func(ctx context.Context) error {
			calls++
			return errFlaky
		})
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if !apperrors.IsRetriesExhausted(err) {
			t.Fatalf("want ErrRetriesExhausted after cancel, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Do did not return after context cancellation")
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestDoGenericReturnsValue(t *testing.T) {
	sleep, _ := noSleep()
	e := New(testLogger(t), sleep)
	calls := 0
	got, err := Do(context.Background(), e, "op", func(ctx context.Context) (int, error) {
		calls++
		if calls < 2 {
			return 0, errFlaky
		}
		return 42, nil
	})
	if err != nil || got != 42 {
		t.Fatalf("Do = (%d, %v), want (42, nil)", got, err)
	}
}

func TestBackoffSchedule(t *testing.T) {
	base := 200 * time.Millisecond
	want := []time.Duration{200 * time.Millisecond, 400 * time.Millisecond, 800 * time.Millisecond, 1600 * time.Millisecond}
	for i, w := range want {
		if got := Backoff(base, i+1); got != w {
			t.Errorf("Backoff(base, %d) = %v, want %v", i+1, got, w)
		}
	}
}

func TestIsRetryableClassification(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"unique violation", &pgconn.PgError{Code: "23505"}, false},
		{"fk violation", &pgconn.PgError{Code: "23503"}, false},
		{"serialization failure", &pgconn.PgError{Code: "40001"}, true},
		{"deadlock", &pgconn.PgError{Code: "40P01"}, true},
		{"connection failure", &pgconn.PgError{Code: "08006"}, true},
		{"admin shutdown", &pgconn.PgError{Code: "57P01"}, true},
		{"gorm duplicate", gorm.ErrDuplicatedKey, false},
		{"gorm not found", gorm.ErrRecordNotFound, false},
		{"ctx deadline", context.DeadlineExceeded, false},
		{"ctx canceled", context.Canceled, false},
		{"unknown", errors.New("boom"), true},
	}
	for _, c := range cases {
		if got := IsRetryable(c.err); got != c.want {
			t.Errorf("%s: IsRetryable = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestIsUniqueViolation(t *testing.T) {
	if !IsUniqueViolation(fmt.Errorf("create: %w", &pgconn.PgError{Code: "23505"})) {
		t.Error("wrapped pg unique violation not detected")
	}
	if !IsUniqueViolation(gorm.ErrDuplicatedKey) {
		t.Error("gorm duplicate not detected")
	}
	if IsUniqueViolation(errors.New("boom")) {
		t.Error("arbitrary error misclassified as unique violation")
	}
}
