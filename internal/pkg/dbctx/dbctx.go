package dbctx

import (
	"context"

	"gorm.io/gorm"
)

// Context is the request context plus the transaction a repo call should
// join. A nil Tx means the repo uses its own handle.
type Context struct {
	Ctx context.Context
	Tx  *gorm.DB
}

func New(ctx context.Context) Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return Context{Ctx: ctx}
}

func (c Context) WithTx(tx *gorm.DB) Context {
	c.Tx = tx
	return c
}

// DB returns the handle to run on, bound to Ctx.
func (c Context) DB(fallback *gorm.DB) *gorm.DB {
	db := c.Tx
	if db == nil {
		db = fallback
	}
	if c.Ctx == nil {
		return db
	}
	return db.WithContext(c.Ctx)
}

// Detached keeps Ctx's values but not its cancellation or deadline, for
// writes that must finish after the caller has gone away.
func (c Context) Detached() Context {
	if c.Ctx == nil {
		c.Ctx = context.Background()
	}
	c.Ctx = context.WithoutCancel(c.Ctx)
	return c
}
