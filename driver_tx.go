package sqlitego

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx, so a unit of work can be
// written once and run inside or outside Transact.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

var (
	_ DBTX = (*sql.DB)(nil)
	_ DBTX = (*sql.Tx)(nil)
)

// TxBeginner starts database/sql transactions; *sql.DB and *sql.Conn implement it.
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// Transact runs fn inside a transaction and commits it. If fn returns an
// error or panics, the transaction is rolled back; a failed rollback is
// reported as *RollbackError alongside the original error. Panics are
// re-raised after the rollback.
func Transact(ctx context.Context, db TxBeginner, opts *sql.TxOptions, fn func(tx *sql.Tx) error) (err error) {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("sqlitego: begin transaction: %w", err)
	}
	defer func() {
		if r := recover(); r != nil {
			if rerr := tx.Rollback(); rerr != nil && !errors.Is(rerr, sql.ErrTxDone) {
				logf(LogLevelError, "transact", "rollback after panic failed: %v", rerr)
			}
			panic(r)
		}
	}()
	if err := fn(tx); err != nil {
		// fn may have finished the transaction itself
		if rerr := tx.Rollback(); rerr != nil && !errors.Is(rerr, sql.ErrTxDone) {
			return &RollbackError{Err: err, RollbackErr: rerr}
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlitego: commit transaction: %w", err)
	}
	return nil
}
