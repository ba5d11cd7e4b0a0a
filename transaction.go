package kvgo

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/kvgo-db/kvgo/wire"
)

// Transaction is a typed handle on an engine-side transaction. It is
// single-use: exactly one Commit or Rollback, after which the handle and
// every store handle opened under it stop working.
type Transaction struct {
	db *Database
	id string

	mu   sync.Mutex
	done bool
}

// ID returns the transaction handle id.
func (tx *Transaction) ID() string { return tx.id }

func (tx *Transaction) usable() error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.done {
		return ErrTransactionDone
	}
	return nil
}

func (tx *Transaction) finish() {
	tx.mu.Lock()
	tx.done = true
	tx.mu.Unlock()
}

// Commit validates and publishes the transaction. On ErrCommitConflict the
// work is discarded and can be retried with a fresh transaction; see
// RunTransaction.
func (tx *Transaction) Commit() error {
	if err := tx.usable(); err != nil {
		return err
	}
	start := time.Now()
	err := errFromBuf(tx.db.c.d.ManageTransaction(tx.db.ctx.sid, wire.CommitTransaction, []byte(tx.id)))
	tx.db.c.metrics.RecordCommit(time.Since(start), err)
	tx.db.c.logger.LogCommit(context.Background(), tx.id, err)
	tx.finish()
	return err
}

// Rollback discards the transaction.
func (tx *Transaction) Rollback() error {
	if err := tx.usable(); err != nil {
		return err
	}
	err := errFromBuf(tx.db.c.d.ManageTransaction(tx.db.ctx.sid, wire.RollbackTransaction, []byte(tx.id)))
	tx.finish()
	return err
}

// RunTransaction runs fn inside a transaction and commits it, retrying the
// whole function on commit conflicts with jittered exponential backoff. fn
// must therefore be safe to run more than once, and must open its store
// handles from the transaction it is given. Any error from fn rolls back
// and returns without retrying.
func RunTransaction(ctx *Context, db *Database, opts wire.TransactionOptions, fn func(tx *Transaction) error) error {
	attempts := db.c.retryAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			db.c.metrics.RecordRetry(attempt - 1)
			db.c.logger.LogRetry(context.Background(), attempt-1)
			backoff(db.c.retryBaseDelay, attempt-1)
		}

		tx, err := db.Begin(opts)
		if err != nil {
			return err
		}
		if err := fn(tx); err != nil {
			_ = tx.Rollback()
			return err
		}
		err = tx.Commit()
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrCommitConflict) {
			return err
		}
		lastErr = err
	}
	return lastErr
}

// backoff sleeps for base*2^n with up to 50% random jitter.
func backoff(base time.Duration, n int) {
	if base <= 0 {
		return
	}
	d := base << n
	d += time.Duration(rand.Int63n(int64(d)/2 + 1))
	time.Sleep(d)
}
