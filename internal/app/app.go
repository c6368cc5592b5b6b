package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/apolmig/smartqr-backend/internal/data/cache"
	"github.com/apolmig/smartqr-backend/internal/data/db"
	"github.com/apolmig/smartqr-backend/internal/observability"
	"github.com/apolmig/smartqr-backend/internal/pkg/logger"
)

const otelShutdownTimeout = 5 * time.Second

type App struct {
	Log      *logger.Logger
	DB       *db.Service
	Cache    *cache.Store
	Router   *gin.Engine
	Cfg      Config
	Repos    Repos
	Services Services

	Metrics *observability.Metrics
	Ops     *observability.OperationLog
	Diag    *observability.Diagnostics

	otelShutdown func(context.Context) error
	cancel       context.CancelFunc
}

func New(ctx context.Context) (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading environment variables...")
	cfg := LoadConfig(log)

	dbs, err := db.NewService(ctx, log, cfg.DB)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	if err := db.AutoMigrateAll(dbs.Write()); err != nil {
		dbs.Close()
		log.Sync()
		return nil, fmt.Errorf("postgres automigrate: %w", err)
	}

	store := cache.New(log, cfg.Cache)
	metrics := observability.NewMetrics()
	ops := observability.NewOperationLog(log, cfg.OpLogCapacity)
	diag := observability.NewDiagnostics(log, metrics, ops)

	reposet := wireRepos(dbs, log)
	serviceset := wireServices(dbs, log, cfg, reposet, store, diag)
	handlerset := wireHandlers(log, dbs, serviceset, ops)
	router := wireRouter(cfg, handlerset, metrics)

	return &App{
		Log:      log,
		DB:       dbs,
		Cache:    store,
		Router:   router,
		Cfg:      cfg,
		Repos:    reposet,
		Services: serviceset,
		Metrics:  metrics,
		Ops:      ops,
		Diag:     diag,
	}, nil
}

// Start launches the background collectors. Safe to call once.
func (a *App) Start() {
	if a == nil || a.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	a.otelShutdown = observability.InitOTel(ctx, a.Log, observability.OtelConfig{
		ServiceName: "smartqr-backend",
		Environment: a.Cfg.Environment,
	})
	a.Metrics.StartPoolCollector(ctx, a.Log, a.DB, a.Cfg.PoolProbeInterval)
}

func (a *App) Run() error {
	if a == nil || a.Router == nil {
		return fmt.Errorf("app not initialized")
	}
	return a.Router.Run(":" + a.Cfg.Port)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if a.otelShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), otelShutdownTimeout)
		_ = a.otelShutdown(ctx)
		cancel()
	}
	if a.Ops != nil {
		a.Ops.Close()
	}
	if a.DB != nil {
		a.DB.Close()
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
