package app

import (
	"github.com/apolmig/smartqr-backend/internal/data/db"
	"github.com/apolmig/smartqr-backend/internal/handlers"
	"github.com/apolmig/smartqr-backend/internal/observability"
	"github.com/apolmig/smartqr-backend/internal/pkg/logger"
)

type Handlers struct {
	Health   *handlers.HealthHandler
	User     *handlers.UserHandler
	Record   *handlers.RecordHandler
	Redirect *handlers.RedirectHandler
}

func wireHandlers(log *logger.Logger, dbs *db.Service, services Services, ops *observability.OperationLog) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health:   handlers.NewHealthHandler(dbs, ops),
		User:     handlers.NewUserHandler(services.User),
		Record:   handlers.NewRecordHandler(services.Record),
		Redirect: handlers.NewRedirectHandler(log, services.Record, services.Event),
	}
}
