package db

import (
	"gorm.io/gorm"

	"github.com/apolmig/smartqr-backend/internal/domain"
)

// AutoMigrateAll runs schema migration on the write pool. GORM creates the
// unique indexes (users.email, records.short_key) that the concurrency model
// leans on.
func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.User{},
		&domain.Record{},
		&domain.Variant{},
		&domain.ScanEvent{},
	)
}
