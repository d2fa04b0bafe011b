package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
)

// DBTX は *sql.DB でも *sql.Tx でも受けられる読み書き口。
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// RunInTx: fn が nil なら COMMIT、エラーか panic なら ROLLBACK。
func RunInTx(ctx context.Context, db *sql.DB, opts *sql.TxOptions, fn func(ctx context.Context, tx DBTX) error) error {
	return withTx(ctx, db, opts, func(tx *sql.Tx) error { return fn(ctx, tx) })
}

// ReadOnly はスナップショット読み取り。
// MySQL は REPEATABLE READ の読み取り専用 Tx、SQLite は Tx 自体がスナップショットになる
// （modernc のドライバは ReadOnly オプションを受け付けない）。
func ReadOnly(ctx context.Context, db *sql.DB, driver string, fn func(ctx context.Context, tx DBTX) error) error {
	return RunInTx(ctx, db, snapshotOptions(driver), fn)
}

func snapshotOptions(driver string) *sql.TxOptions {
	if driver != DriverMySQL {
		return nil
	}
	return &sql.TxOptions{ReadOnly: true, Isolation: sql.LevelRepeatableRead}
}

// withTx は RunInTx と Worker の共通部分。
func withTx(ctx context.Context, db *sql.DB, opts *sql.TxOptions, fn func(tx *sql.Tx) error) (err error) {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err == nil {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			log.Printf("[WARN] rollback: %v", rbErr)
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
