package database

import (
	"context"
	"errors"
)

var errNoTransaction = errors.New("no transaction in context")

// GenericUnitOfWork implements application.UnitOfWork for any database driver.
// Callbacks registered with OnCommit and OnRollback run once the owning
// unit finishes; they receive a context without the transaction.
type GenericUnitOfWork struct {
	conn Connection
}

// NewUnitOfWork creates a new GenericUnitOfWork.
func NewUnitOfWork(conn Connection) *GenericUnitOfWork {
	return &GenericUnitOfWork{conn: conn}
}

// Begin starts a transaction and stores it in the context.
// If a transaction already exists in the context, it reuses it (nested transaction).
func (u *GenericUnitOfWork) Begin(ctx context.Context) (context.Context, error) {
	if info, ok := TxInfoFromContext(ctx); ok {
		info.Owned = false
		return withTxInfo(ctx, info), nil
	}

	tx, err := u.conn.BeginTx(ctx)
	if err != nil {
		return nil, err
	}

	return WithTx(ctx, tx, true), nil
}

// Commit commits the transaction if this unit owns it and then runs the
// commit callbacks. A failed commit runs the rollback callbacks instead.
func (u *GenericUnitOfWork) Commit(ctx context.Context) error {
	info, ok := TxInfoFromContext(ctx)
	if !ok {
		return errNoTransaction
	}
	if !info.Owned {
		return nil
	}

	if err := info.Tx.Commit(ctx); err != nil {
		runHooks(ctx, info.hooks, false)
		return err
	}
	runHooks(ctx, info.hooks, true)
	return nil
}

// Rollback rolls back the transaction if this unit owns it and then runs
// the rollback callbacks.
func (u *GenericUnitOfWork) Rollback(ctx context.Context) error {
	info, ok := TxInfoFromContext(ctx)
	if !ok {
		return errNoTransaction
	}
	if !info.Owned {
		return nil
	}

	err := info.Tx.Rollback(ctx)
	runHooks(ctx, info.hooks, false)
	return err
}

// Do runs fn inside a unit of work, rolling back when fn fails.
func (u *GenericUnitOfWork) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	txCtx, err := u.Begin(ctx)
	if err != nil {
		return err
	}

	if err := fn(txCtx); err != nil {
		if rbErr := u.Rollback(txCtx); rbErr != nil {
			return errors.Join(err, rbErr)
		}
		return err
	}

	return u.Commit(txCtx)
}

func runHooks(ctx context.Context, hooks *txHooks, committed bool) {
	if hooks == nil {
		return
	}
	plain := WithoutTx(ctx)
	for _, fn := range hooks.drain(committed) {
		fn(plain)
	}
}
