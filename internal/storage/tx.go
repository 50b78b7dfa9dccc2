// ABOUTME: Transaction helper with guaranteed cleanup, timeout and lock release.
// ABOUTME: Helpers join an outer transaction; only the owner commits or rolls back.
package storage

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Tx is a database transaction plus the in-process locks it holds.
type Tx struct {
	*sqlx.Tx
	db       *DB
	held     map[string]bool
	releases []func()
}

// lock takes key for the rest of the transaction. Taking a key already held
// by this transaction is a no-op, matching advisory lock re-entrancy.
func (tx *Tx) lock(ctx context.Context, key lockKey) error {
	if tx.held[key.name] {
		return nil
	}
	if tx.db.isPostgres() {
		if key.pgQuery != "" {
			if _, err := tx.ExecContext(ctx, tx.Rebind(key.pgQuery), key.pgArgs...); err != nil {
				return fmt.Errorf("advisory lock %s: %w", key.name, err)
			}
		}
	} else {
		release, err := tx.db.locks.Lock(ctx, key.name)
		if err != nil {
			return err
		}
		tx.releases = append(tx.releases, release)
	}
	tx.held[key.name] = true
	return nil
}

func (tx *Tx) release() {
	for i := len(tx.releases) - 1; i >= 0; i-- {
		tx.releases[i]()
	}
	tx.releases = nil
}

// BeginTx starts a transaction the caller owns. Prefer withTx.
func (d *DB) BeginTx(ctx context.Context) (*Tx, error) {
	sqlTx, err := d.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &Tx{Tx: sqlTx, db: d, held: make(map[string]bool)}, nil
}

// Commit commits and releases held locks.
func (tx *Tx) Commit() error {
	defer tx.release()
	err := tx.Tx.Commit()
	if err != nil {
		tx.db.recorder.Transaction("commit_error")
		return err
	}
	tx.db.recorder.Transaction("commit")
	return nil
}

// Rollback rolls back and releases held locks.
func (tx *Tx) Rollback() error {
	defer tx.release()
	tx.db.recorder.Transaction("rollback")
	return tx.Tx.Rollback()
}

// withTx runs fn inside outer when given, else in a new transaction bounded
// by the configured timeout. The owned transaction is rolled back on error,
// panic or context cancellation.
func (d *DB) withTx(ctx context.Context, outer *Tx, fn func(ctx context.Context, tx *Tx) error) (err error) {
	if outer != nil {
		return fn(ctx, outer)
	}

	ctx, cancel := context.WithTimeout(ctx, d.txTimeout)
	defer cancel()

	tx, err := d.BeginTx(ctx)
	if err != nil {
		return err
	}

	done := false
	defer func() {
		if done {
			return
		}
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		_ = tx.Rollback()
	}()

	if err := fn(ctx, tx); err != nil {
		return err
	}

	done = true
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
