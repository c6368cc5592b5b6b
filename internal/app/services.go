package app

import (
	"github.com/apolmig/smartqr-backend/internal/data/cache"
	"github.com/apolmig/smartqr-backend/internal/data/consistency"
	"github.com/apolmig/smartqr-backend/internal/data/db"
	"github.com/apolmig/smartqr-backend/internal/observability"
	"github.com/apolmig/smartqr-backend/internal/pkg/logger"
	"github.com/apolmig/smartqr-backend/internal/pkg/retry"
	"github.com/apolmig/smartqr-backend/internal/services"
)

type Services struct {
	User   services.UserService
	Record services.RecordService
	Event  services.EventService
}

func wireServices(
	dbs *db.Service,
	log *logger.Logger,
	cfg Config,
	repos Repos,
	store *cache.Store,
	diag *observability.Diagnostics,
) Services {
	log.Info("Wiring services...")

	exec := retry.New(log,
		retry.WithMaxAttempts(cfg.RetryMaxAttempts),
		retry.WithBaseDelay(cfg.RetryBaseDelay),
		retry.WithOperationDeadline(cfg.OperationDeadline),
		retry.WithReporter(diag),
	)
	verifier := consistency.New(log,
		consistency.WithMaxAttempts(cfg.ConsistencyMaxAttempts),
		consistency.WithBaseDelay(cfg.ConsistencyBaseDelay),
	)

	user := services.NewUserService(dbs, log, repos.User, store, exec, diag)
	record := services.NewRecordService(dbs, log, user, repos.User, repos.Record, repos.Variant, repos.Event, store, verifier, exec, diag)
	event := services.NewEventService(dbs, log, repos.Event, repos.Record, store, exec, diag)

	return Services{
		User:   user,
		Record: record,
		Event:  event,
	}
}
