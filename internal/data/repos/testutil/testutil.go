package testutil

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/apolmig/smartqr-backend/internal/data/db"
	"github.com/apolmig/smartqr-backend/internal/pkg/logger"
)

var errMissingDSN = errors.New("missing TEST_POSTGRES_DSN")

var (
	svcOnce sync.Once
	svc     *db.Service
	svcErr  error

	logOnce sync.Once
	logg    *logger.Logger
	logErr  error
)

func Logger(tb testing.TB) *logger.Logger {
	tb.Helper()
	logOnce.Do(func() {
		logg, logErr = logger.New("test")
	})
	if logErr != nil {
		tb.Fatalf("failed to init logger: %v", logErr)
	}
	return logg
}

// Service opens the dual-pool service once per test binary, both pools on
// the same test database. Skips when TEST_POSTGRES_DSN is unset.
func Service(tb testing.TB) *db.Service {
	tb.Helper()

	svcOnce.Do(func() {
		dsn := os.Getenv("TEST_POSTGRES_DSN")
		if dsn == "" {
			svcErr = errMissingDSN
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		svc, svcErr = db.NewService(ctx, Logger(tb), db.Config{
			BaseDSN:               dsn,
			WritePool:             2,
			ReadPool:              4,
			WriteStatementTimeout: 5 * time.Second,
			ReadStatementTimeout:  2 * time.Second,
		})
		if svcErr != nil {
			return
		}
		svcErr = db.AutoMigrateAll(svc.Write())
	})

	if errors.Is(svcErr, errMissingDSN) {
		tb.Skip("set TEST_POSTGRES_DSN to run repo integration tests")
	}
	if svcErr != nil {
		tb.Fatalf("failed to init test db: %v", svcErr)
	}
	return svc
}

func Tx(tb testing.TB, g *gorm.DB) *gorm.DB {
	tb.Helper()
	tx := g.Begin()
	if tx.Error != nil {
		tb.Fatalf("begin tx: %v", tx.Error)
	}
	tb.Cleanup(func() {
		_ = tx.Rollback().Error
	})
	return tx
}
