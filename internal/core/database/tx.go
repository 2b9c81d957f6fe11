package database

import (
	"context"

	"gorm.io/gorm"
)

type txKey struct{}

// TransactionalFn runs inside a transaction. Repositories reach the tx through Conn(ctx, db).
type TransactionalFn func(ctx context.Context) error

type TxManager interface {
	Begin(ctx context.Context, fn TransactionalFn) error
}

type GormTxManager struct {
	db *gorm.DB
}

func NewTxManager(db *gorm.DB) *GormTxManager {
	return &GormTxManager{db: db}
}

// Begin commits when fn returns nil and rolls back otherwise. Nested calls join the outer transaction.
func (m *GormTxManager) Begin(ctx context.Context, fn TransactionalFn) error {
	if _, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return fn(ctx)
	}
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

// Conn returns the transaction bound to ctx, or db scoped to ctx when there is none.
func Conn(ctx context.Context, db *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx
	}
	return db.WithContext(ctx)
}
