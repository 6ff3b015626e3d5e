package dbctx

import (
	"context"

	"gorm.io/gorm"
)

// Context carries a caller context plus an optional GORM transaction.
// Repos run against the transaction when set, else their own handle.
type Context struct {
	Ctx context.Context
	Tx  *gorm.DB
}
