package engine

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kvgo-db/kvgo/cluster"
	"github.com/kvgo-db/kvgo/wire"
)

const defaultMaxTime = 15 * time.Minute

// transaction is the engine-side state behind a Transaction handle. It is
// single-use: exactly one terminal commit or rollback, after which the
// handle (and every store handle opened under it) stops resolving.
type transaction struct {
	id       uuid.UUID
	db       *database
	eng      *Engine
	mode     wire.TransactionMode
	deadline time.Time

	mu      sync.Mutex
	done    bool
	handles map[uuid.UUID]any // txStore, vectorHandle, modelHandle, searchHandle
}

func (e *Engine) beginTransaction(db *database, opts wire.TransactionOptions) *transaction {
	maxTime := defaultMaxTime
	if opts.MaxTimeMinutes > 0 {
		maxTime = time.Duration(opts.MaxTimeMinutes) * time.Minute
	}
	tx := &transaction{
		db:       db,
		eng:      e,
		mode:     opts.Mode,
		deadline: time.Now().Add(maxTime),
		handles:  make(map[uuid.UUID]any),
	}
	tx.id = e.transactions.add(tx)
	return tx
}

func (tx *transaction) expired() bool {
	return time.Now().After(tx.deadline)
}

func (tx *transaction) writable() bool {
	return tx.mode == wire.ForWriting
}

// addHandle registers a store handle under the transaction and returns its
// id. Handles share the transaction's lifetime.
func (tx *transaction) addHandle(h any) uuid.UUID {
	id := uuid.New()
	tx.mu.Lock()
	tx.handles[id] = h
	tx.mu.Unlock()
	return id
}

func (tx *transaction) handle(id uuid.UUID) (any, bool) {
	tx.mu.Lock()
	h, ok := tx.handles[id]
	tx.mu.Unlock()
	return h, ok
}

// commit validates and publishes every touched store. Validation is per-key
// optimistic: a write key committed by someone else since this transaction
// cloned the store makes the whole commit fail with ErrCommitConflict.
func (tx *transaction) commit(ctx context.Context) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.done {
		return ErrTransactionNotFound
	}
	if tx.expired() {
		tx.finishLocked()
		return ErrTransactionExpired
	}

	btrees, sides := tx.collectLocked()

	// Lock committed stores in name order so concurrent commits can't
	// deadlock.
	sort.Slice(btrees, func(i, j int) bool {
		return btrees[i].committed.name < btrees[j].committed.name
	})
	for _, ts := range btrees {
		ts.committed.mu.Lock()
	}
	defer func() {
		for _, ts := range btrees {
			ts.committed.mu.Unlock()
		}
	}()

	for _, ts := range btrees {
		cs := ts.committed
		for k := range ts.writeKeys {
			if cs.lastWrite[k] > ts.baseSeq {
				tx.finishLocked()
				return ErrCommitConflict
			}
		}
	}

	for _, ts := range btrees {
		if err := tx.publishLocked(ctx, ts); err != nil {
			tx.finishLocked()
			return err
		}
	}
	for _, h := range sides {
		h.apply()
	}

	tx.finishLocked()
	return nil
}

// publishLocked replays one store's write log onto the committed tree and
// fans the result out to disk, cluster and cache. Caller holds cs.mu.
func (tx *transaction) publishLocked(ctx context.Context, ts *txStore) error {
	cs := ts.committed
	cs.seq++
	for _, op := range ts.ops {
		if op.del {
			cs.tree.Delete(op.ent)
		} else {
			cs.tree.ReplaceOrInsert(op.ent)
		}
		cs.lastWrite[cs.writeKey(op.ent.key)] = cs.seq
	}
	for id := range ts.valuesDel {
		delete(cs.values, id)
	}
	for id, blob := range ts.valuesPut {
		cs.values[id] = blob
	}

	if tx.db.disk != nil {
		if err := tx.db.disk.applyOps(cs, ts.ops); err != nil {
			return err
		}
	}

	if tx.db.opts.Type == wire.Clustered {
		conn, ok := cluster.Current()
		if !ok {
			return ErrClusterNotOpen
		}
		for _, op := range ts.ops {
			key := cs.cmp.orderKey(op.ent.key)
			if op.del {
				if err := conn.DeleteEntry(ctx, cs.name, key, op.ent.id); err != nil {
					return err
				}
				continue
			}
			blob, err := tx.eng.encodeEntry(cs, op.ent, ts)
			if err != nil {
				return err
			}
			if err := conn.PutEntry(ctx, cs.name, key, op.ent.id, blob); err != nil {
				return err
			}
		}
	}

	if cs.opts.IsValueDataGloballyCached {
		if c := tx.db.valueCache(); c != nil {
			for id, blob := range ts.valuesPut {
				c.Set(tx.db.cacheKey(cs.name, id), blob)
			}
			for id := range ts.valuesDel {
				c.Delete(tx.db.cacheKey(cs.name, id))
			}
		}
	}
	return nil
}

// rollback discards every working copy. Also the terminal call.
func (tx *transaction) rollback() error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.done {
		return ErrTransactionNotFound
	}
	tx.finishLocked()
	return nil
}

func (tx *transaction) collectLocked() ([]*txStore, []sideHandle) {
	var btrees []*txStore
	var sides []sideHandle
	for _, h := range tx.handles {
		switch v := h.(type) {
		case *txStore:
			btrees = append(btrees, v)
		case sideHandle:
			sides = append(sides, v)
		}
	}
	return btrees, sides
}

func (tx *transaction) finishLocked() {
	tx.done = true
	tx.handles = make(map[uuid.UUID]any)
	tx.eng.transactions.remove(tx.id)
}

// sideHandle is implemented by the non-btree store handles; their buffered
// writes apply only at commit.
type sideHandle interface {
	apply()
}
