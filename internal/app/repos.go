package app

import (
	"github.com/apolmig/smartqr-backend/internal/data/db"
	eventrepo "github.com/apolmig/smartqr-backend/internal/data/repos/event"
	recordrepo "github.com/apolmig/smartqr-backend/internal/data/repos/record"
	userrepo "github.com/apolmig/smartqr-backend/internal/data/repos/user"
	"github.com/apolmig/smartqr-backend/internal/pkg/logger"
)

type Repos struct {
	User    userrepo.UserRepo
	Record  recordrepo.RecordRepo
	Variant recordrepo.VariantRepo
	Event   eventrepo.ScanEventRepo
}

func wireRepos(dbs *db.Service, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		User:    userrepo.NewUserRepo(dbs, log),
		Record:  recordrepo.NewRecordRepo(dbs, log),
		Variant: recordrepo.NewVariantRepo(dbs, log),
		Event:   eventrepo.NewScanEventRepo(dbs, log),
	}
}
