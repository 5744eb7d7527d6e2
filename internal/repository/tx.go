package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Transactor opens the unit of work shared by several repositories. Every
// repository method that takes a tx runs on it; a nil tx means "no transaction".
type Transactor interface {
	Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type gormTransactor struct {
	db          *gorm.DB
	lockTimeout time.Duration
}

// NewTransactor returns a Transactor that bounds every lock wait inside the
// transaction by lockTimeout (0 disables the bound).
func NewTransactor(db *gorm.DB, lockTimeout time.Duration) Transactor {
	return &gormTransactor{db: db, lockTimeout: lockTimeout}
}

func (t *gormTransactor) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if t.lockTimeout > 0 {
			stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", t.lockTimeout.Milliseconds())
			if err := tx.Exec(stmt).Error; err != nil {
				return err
			}
		}
		return fn(tx)
	})
}

// conn picks the transaction when present, the pool otherwise.
func conn(ctx context.Context, db, tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx.WithContext(ctx)
	}
	return db.WithContext(ctx)
}
