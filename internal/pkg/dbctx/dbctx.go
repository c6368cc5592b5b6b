package dbctx

import (
	"context"

	"gorm.io/gorm"
)

// Context bundles a request context with an optional GORM transaction.
// Repos that receive a nil Tx fall back to their own pool handle.
type Context struct {
	Ctx context.Context
	Tx  *gorm.DB
}
