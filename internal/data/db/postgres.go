package db

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/apolmig/smartqr-backend/internal/pkg/logger"
	"github.com/apolmig/smartqr-backend/internal/utils"
)

// Config tunes the two pools built from one base DSN. Writes must land on the
// primary, so the write pool stays small and points at the direct endpoint
// with a generous statement timeout. Reads tolerate a replica and fan out
// wider with a tighter timeout.
type Config struct {
	BaseDSN   string
	WriteDSN  string // optional direct-endpoint override
	ReadDSN   string // optional pooled-endpoint override
	WritePool int
	ReadPool  int
	WriteStatementTimeout time.Duration
	ReadStatementTimeout  time.Duration
}

func LoadConfig(logg *logger.Logger) Config {
	base := utils.GetEnv("DATABASE_URL", "postgres://postgres:@localhost:5432/smartqr?sslmode=disable", logg)
	return Config{
		BaseDSN:   base,
		WriteDSN:  utils.GetEnv("DATABASE_DIRECT_URL", "", logg),
		ReadDSN:   utils.GetEnv("DATABASE_POOLED_URL", "", logg),
		WritePool: utils.GetEnvAsInt("DB_WRITE_POOL_SIZE", 2, logg),
		ReadPool:  utils.GetEnvAsInt("DB_READ_POOL_SIZE", 4, logg),
		WriteStatementTimeout: utils.GetEnvAsDuration("DB_WRITE_STATEMENT_TIMEOUT", 5*time.Second, logg),
		ReadStatementTimeout:  utils.GetEnvAsDuration("DB_READ_STATEMENT_TIMEOUT", 2*time.Second, logg),
	}
}

// Service owns the write-oriented and read-oriented GORM handles plus a raw
// pgx pool on the read side for ORM-bypass queries.
type Service struct {
	write *gorm.DB
	read  *gorm.DB
	raw   *pgxpool.Pool
	log   *logger.Logger
}

func NewService(ctx context.Context, logg *logger.Logger, cfg Config) (*Service, error) {
	serviceLog := logg.With("service", "PostgresService")

	writeDSN := cfg.WriteDSN
	if writeDSN == "" {
		writeDSN = cfg.BaseDSN
	}
	readDSN := cfg.ReadDSN
	if readDSN == "" {
		readDSN = cfg.BaseDSN
	}

	write, err := openGorm(withStatementTimeout(writeDSN, cfg.WriteStatementTimeout), cfg.WritePool)
	if err != nil {
		return nil, fmt.Errorf("open write pool: %w", err)
	}
	if err := write.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`).Error; err != nil {
		return nil, fmt.Errorf("enable uuid-ossp extension: %w", err)
	}

	read, err := openGorm(withStatementTimeout(readDSN, cfg.ReadStatementTimeout), cfg.ReadPool)
	if err != nil {
		return nil, fmt.Errorf("open read pool: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(withStatementTimeout(readDSN, cfg.ReadStatementTimeout))
	if err != nil {
		return nil, fmt.Errorf("parse raw pool DSN: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.ReadPool)
	raw, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open raw read pool: %w", err)
	}

	serviceLog.Info("Postgres pools ready",
		"write_pool", cfg.WritePool,
		"read_pool", cfg.ReadPool,
		"write_statement_timeout", cfg.WriteStatementTimeout,
		"read_statement_timeout", cfg.ReadStatementTimeout,
	)
	return &Service{write: write, read: read, raw: raw, log: serviceLog}, nil
}

// Write returns the write-oriented handle. All mutations go through it.
func (s *Service) Write() *gorm.DB { return s.write }

// Read returns the read-oriented handle. It may observe replica lag.
func (s *Service) Read() *gorm.DB { return s.read }

// Raw returns the pgx pool used by the ORM-bypass read fallback.
func (s *Service) Raw() *pgxpool.Pool { return s.raw }

func (s *Service) Close() {
	if s.raw != nil {
		s.raw.Close()
	}
	for _, g := range []*gorm.DB{s.write, s.read} {
		if g == nil {
			continue
		}
		if sqlDB, err := g.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}

// PoolHealth is one pool's probe outcome.
type PoolHealth struct {
	Healthy   bool  `json:"healthy"`
	LatencyMs int64 `json:"latency_ms"`
}

// Health aggregates probe outcomes for the operability surface.
type Health struct {
	Write PoolHealth `json:"write"`
	Read  PoolHealth `json:"read"`
	Raw   PoolHealth `json:"raw"`
}

// Probe issues a trivial query against each pool. Operability only; the
// write/read paths never consult it.
func (s *Service) Probe(ctx context.Context) Health {
	var h Health
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		h.Write = probeGorm(ctx, s.write)
		return nil
	})
	g.Go(func() error {
		h.Read = probeGorm(ctx, s.read)
		return nil
	})
	g.Go(func() error {
		start := time.Now()
		err := s.raw.Ping(ctx)
		h.Raw = PoolHealth{Healthy: err == nil, LatencyMs: time.Since(start).Milliseconds()}
		return nil
	})
	_ = g.Wait()
	return h
}

func probeGorm(ctx context.Context, g *gorm.DB) PoolHealth {
	start := time.Now()
	var one int
	err := g.WithContext(ctx).Raw("SELECT 1").Scan(&one).Error
	return PoolHealth{Healthy: err == nil, LatencyMs: time.Since(start).Milliseconds()}
}

func openGorm(dsn string, poolSize int) (*gorm.DB, error) {
	gormLog := gormLogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormLogger.Config{
			SlowThreshold:             1 * time.Second,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	g, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormLog,
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := g.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(poolSize)
	sqlDB.SetMaxIdleConns(poolSize)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)
	return g, nil
}

// withStatementTimeout pushes a server-side statement timeout into the DSN so
// every connection in the pool carries it.
func withStatementTimeout(dsn string, timeout time.Duration) string {
	if timeout <= 0 {
		return dsn
	}
	opt := fmt.Sprintf("-c statement_timeout=%d", timeout.Milliseconds())
	u, err := url.Parse(dsn)
	if err != nil || u.Scheme == "" {
		// keyword/value DSN
		return strings.TrimSpace(dsn + fmt.Sprintf(" options='%s'", opt))
	}
	q := u.Query()
	q.Set("options", opt)
	u.RawQuery = q.Encode()
	return u.String()
}
