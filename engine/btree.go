package engine

import (
	"fmt"
	"sync"

	"github.com/google/btree"
	"github.com/google/uuid"

	"github.com/kvgo-db/kvgo/wire"
)

// entry is one stored item. When the store keeps value data outside the node
// segment, value stays nil here and the encoded blob lives in the value
// segment keyed by id.
type entry struct {
	key   any
	value any
	id    string
}

const btreeDegree = 32

// committedStore is the durable, shared state of one named B-tree: the last
// committed tree plus the bookkeeping commit validation needs.
type committedStore struct {
	mu   sync.Mutex
	name string
	opts wire.BtreeOptions
	cmp  keyComparer

	tree      *btree.BTreeG[*entry]
	seq       uint64
	lastWrite map[string]uint64 // canonical order-key -> seq of last committed write
	values    map[string][]byte // offloaded value segment, keyed by item id
}

func newCommittedStore(opts wire.BtreeOptions) *committedStore {
	cmp := newKeyComparer(opts.IsPrimitiveKey, opts.IndexSpecification)
	return &committedStore{
		name:      opts.Name,
		opts:      opts,
		cmp:       cmp,
		tree:      btree.NewG(btreeDegree, entryLess(cmp, opts.IsUnique)),
		lastWrite: make(map[string]uint64),
		values:    make(map[string][]byte),
	}
}

// entryLess orders entries by comparable key fields; non-unique stores
// tie-break on item id so duplicate keys coexist deterministically.
func entryLess(cmp keyComparer, unique bool) btree.LessFunc[*entry] {
	return func(a, b *entry) bool {
		r := cmp.compare(a.key, b.key)
		if r != 0 {
			return r < 0
		}
		if unique {
			return false
		}
		return a.id < b.id
	}
}

func (cs *committedStore) writeKey(k any) string {
	return string(cs.cmp.orderKey(k))
}

// storeInfo snapshots the store description under the store lock.
func (cs *committedStore) storeInfo() wire.StoreInfo {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return wire.StoreInfo{
		Name:               cs.name,
		IsUnique:           cs.opts.IsUnique,
		IsPrimitiveKey:     cs.opts.IsPrimitiveKey,
		SlotLength:         cs.opts.SlotLength,
		Description:        cs.opts.Description,
		IndexSpecification: cs.opts.IndexSpecification,
		Count:              int64(cs.tree.Len()),
	}
}

// writeOp is one entry-level change recorded by a transaction, replayed onto
// the committed tree at commit.
type writeOp struct {
	del bool
	ent *entry
}

// txStore is a store handle: a copy-on-write clone of the committed tree,
// private to one transaction, with the handle's implicit cursor and the
// write log used for validation and replay.
type txStore struct {
	committed *committedStore
	tx        *transaction

	tree    *btree.BTreeG[*entry]
	baseSeq uint64
	cursor  cursor

	ops       []writeOp
	writeKeys map[string]struct{}

	valuesPut map[string][]byte
	valuesDel map[string]struct{}

	byID map[string]*entry // lazy index for id-addressed lookups
}

// openTxStore clones the committed tree. The clone is copy-on-write, so
// opening is O(1) and concurrent transactions never observe each other.
func openTxStore(cs *committedStore, tx *transaction) *txStore {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return &txStore{
		committed: cs,
		tx:        tx,
		tree:      cs.tree.Clone(),
		baseSeq:   cs.seq,
		writeKeys: make(map[string]struct{}),
		valuesPut: make(map[string][]byte),
		valuesDel: make(map[string]struct{}),
	}
}

func (ts *txStore) opts() wire.BtreeOptions { return ts.committed.opts }

func (ts *txStore) inlineValues() bool { return ts.committed.opts.IsValueDataInNodeSegment }

func (ts *txStore) recordWrite(op writeOp) {
	ts.ops = append(ts.ops, op)
	ts.writeKeys[ts.committed.writeKey(op.ent.key)] = struct{}{}
	ts.byID = nil
}

// detach swaps e for a private copy in the transaction tree and returns the
// copy. The clone shares entry pointers with the committed tree, so a
// looked-up entry must never be mutated in place. A cursor sitting on e
// follows the copy.
func (ts *txStore) detach(e *entry) *entry {
	ne := *e
	cur, onCursor := ts.cursor.current()
	ts.tree.Delete(e)
	ts.tree.ReplaceOrInsert(&ne)
	if onCursor && cur == e {
		ts.cursor.position(&ne)
	}
	return &ne
}

// lookup returns the first entry matching key, or nil. For non-unique stores
// this is the lowest-id duplicate.
func (ts *txStore) lookup(key any) *entry {
	probe := &entry{key: key}
	var found *entry
	ts.tree.AscendGreaterOrEqual(probe, func(e *entry) bool {
		if ts.committed.cmp.compare(e.key, key) == 0 {
			found = e
		}
		return false
	})
	return found
}

func (ts *txStore) lookupByID(key any, id string) *entry {
	if id == "" {
		return ts.lookup(key)
	}
	if ts.byID == nil {
		ts.byID = make(map[string]*entry, ts.tree.Len())
		ts.tree.Ascend(func(e *entry) bool {
			ts.byID[e.id] = e
			return true
		})
	}
	e, ok := ts.byID[id]
	if !ok {
		return nil
	}
	if ts.committed.cmp.compare(e.key, key) != 0 {
		return nil
	}
	return e
}

// setValue stores the entry's value, inline or into the transaction's value
// overlay depending on the store's value placement option.
func (ts *txStore) setValue(e *entry, value any) error {
	if ts.inlineValues() {
		e.value = value
		return nil
	}
	blob, err := ts.tx.eng.codec.Marshal(value)
	if err != nil {
		return err
	}
	e.value = nil
	ts.valuesPut[e.id] = blob
	delete(ts.valuesDel, e.id)
	return nil
}

// resolveValue returns the entry's value, pulling offloaded blobs from the
// transaction overlay, the committed segment, or the configured value cache.
func (ts *txStore) resolveValue(e *entry) (any, error) {
	if ts.inlineValues() {
		return e.value, nil
	}
	if _, gone := ts.valuesDel[e.id]; gone {
		return nil, nil
	}
	blob, ok := ts.valuesPut[e.id]
	if !ok {
		cs := ts.committed
		cs.mu.Lock()
		blob, ok = cs.values[e.id]
		cs.mu.Unlock()
	}
	if !ok {
		blob, ok = ts.tx.db.cachedValue(ts.committed.name, e.id)
	}
	if !ok {
		return nil, nil
	}
	var v any
	if err := ts.tx.eng.codec.Unmarshal(blob, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// add inserts items without a duplicate check; a unique store rejects an
// existing key. Stops at the first failing item.
func (ts *txStore) add(items []wire.Item) (bool, error) {
	for _, it := range items {
		if ts.opts().IsUnique && ts.lookup(it.Key) != nil {
			return false, nil
		}
		e := &entry{key: it.Key, id: newItemID(it.ID)}
		if err := ts.setValue(e, it.Value); err != nil {
			return false, err
		}
		ts.tree.ReplaceOrInsert(e)
		ts.recordWrite(writeOp{ent: e})
	}
	return true, nil
}

// addIfNotExist inserts only missing keys; an existing key stops the batch
// with a well-formed false.
func (ts *txStore) addIfNotExist(items []wire.Item) (bool, error) {
	for _, it := range items {
		if ts.lookup(it.Key) != nil {
			return false, nil
		}
		e := &entry{key: it.Key, id: newItemID(it.ID)}
		if err := ts.setValue(e, it.Value); err != nil {
			return false, err
		}
		ts.tree.ReplaceOrInsert(e)
		ts.recordWrite(writeOp{ent: e})
	}
	return true, nil
}

func (ts *txStore) update(items []wire.Item) (bool, error) {
	for _, it := range items {
		e := ts.lookupByID(it.Key, it.ID)
		if e == nil {
			return false, nil
		}
		e = ts.detach(e)
		if err := ts.setValue(e, it.Value); err != nil {
			return false, err
		}
		ts.recordWrite(writeOp{ent: e})
	}
	return true, nil
}

func (ts *txStore) upsert(items []wire.Item) (bool, error) {
	for _, it := range items {
		if e := ts.lookupByID(it.Key, it.ID); e != nil {
			e = ts.detach(e)
			if err := ts.setValue(e, it.Value); err != nil {
				return false, err
			}
			ts.recordWrite(writeOp{ent: e})
			continue
		}
		if ok, err := ts.add([]wire.Item{it}); !ok || err != nil {
			return ok, err
		}
	}
	return true, nil
}

func (ts *txStore) remove(keys []any) (bool, error) {
	for _, k := range keys {
		e := ts.lookup(k)
		if e == nil {
			return false, nil
		}
		ts.tree.Delete(e)
		if cur, ok := ts.cursor.current(); ok && cur == e {
			ts.cursor.invalidate()
		}
		if !ts.inlineValues() {
			delete(ts.valuesPut, e.id)
			ts.valuesDel[e.id] = struct{}{}
		}
		ts.recordWrite(writeOp{del: true, ent: e})
	}
	return true, nil
}

// updateKey rewrites an item's key (indexed and ride-along fields) without
// touching its value. Items are addressed by id.
func (ts *txStore) updateKey(items []wire.Item) (bool, error) {
	for _, it := range items {
		if it.ID == "" {
			return false, fmt.Errorf("update key requires the item id")
		}
		e := ts.entryByID(it.ID)
		if e == nil {
			return false, nil
		}
		if ok, err := ts.rekey(e, it.Key); !ok || err != nil {
			return ok, err
		}
	}
	return true, nil
}

// updateCurrentKey rewrites the key of the entry under the cursor. The
// cursor stays on the item.
func (ts *txStore) updateCurrentKey(items []wire.Item) (bool, error) {
	if len(items) != 1 {
		return false, fmt.Errorf("update current key takes exactly one item")
	}
	e, ok := ts.cursor.current()
	if !ok {
		return false, nil
	}
	if ok, err := ts.rekey(e, items[0].Key); !ok || err != nil {
		return ok, err
	}
	return true, nil
}

// rekey reinserts a private copy of the entry under its new key; ordering
// may change when indexed fields did. The value (inline or offloaded) and
// the shared committed entry are never touched. A cursor on the entry
// follows the copy.
func (ts *txStore) rekey(e *entry, newKey any) (bool, error) {
	oldKey := e.key
	if ts.opts().IsUnique && ts.committed.cmp.compare(oldKey, newKey) != 0 {
		if dup := ts.lookup(newKey); dup != nil && dup.id != e.id {
			return false, nil
		}
	}
	ne := *e
	ne.key = newKey
	cur, onCursor := ts.cursor.current()
	ts.tree.Delete(e)
	ts.tree.ReplaceOrInsert(&ne)
	if onCursor && cur == e {
		ts.cursor.position(&ne)
	}
	ts.ops = append(ts.ops, writeOp{del: true, ent: &entry{key: oldKey, id: ne.id}})
	ts.writeKeys[ts.committed.writeKey(oldKey)] = struct{}{}
	ts.recordWrite(writeOp{ent: &ne})
	return true, nil
}

func (ts *txStore) entryByID(id string) *entry {
	if ts.byID == nil {
		ts.byID = make(map[string]*entry, ts.tree.Len())
		ts.tree.Ascend(func(e *entry) bool {
			ts.byID[e.id] = e
			return true
		})
	}
	return ts.byID[id]
}

// find positions the cursor at the exact key, or at the nearest greater key
// when absent. The return value reports which occurred.
func (ts *txStore) find(key any) bool {
	probe := &entry{key: key}
	var nearest *entry
	ts.tree.AscendGreaterOrEqual(probe, func(e *entry) bool {
		nearest = e
		return false
	})
	ts.cursor.position(nearest)
	return nearest != nil && ts.committed.cmp.compare(nearest.key, key) == 0
}

func (ts *txStore) findWithID(key any, id string) bool {
	e := ts.lookupByID(key, id)
	if e == nil {
		ts.cursor.invalidate()
		return false
	}
	ts.cursor.position(e)
	return true
}

func (ts *txStore) first() bool {
	var e *entry
	ts.tree.Ascend(func(x *entry) bool {
		e = x
		return false
	})
	if e == nil {
		ts.cursor.invalidate()
		return false
	}
	return ts.cursor.position(e)
}

func (ts *txStore) last() bool {
	var e *entry
	ts.tree.Descend(func(x *entry) bool {
		e = x
		return false
	})
	if e == nil {
		ts.cursor.invalidate()
		return false
	}
	return ts.cursor.position(e)
}

func (ts *txStore) next() bool {
	cur, ok := ts.cursor.current()
	if !ok {
		return false
	}
	var nxt *entry
	ts.tree.AscendGreaterOrEqual(cur, func(e *entry) bool {
		if e == cur {
			return true
		}
		nxt = e
		return false
	})
	return ts.cursor.position(nxt)
}

func (ts *txStore) previous() bool {
	cur, ok := ts.cursor.current()
	if !ok {
		return false
	}
	var prv *entry
	ts.tree.DescendLessOrEqual(cur, func(e *entry) bool {
		if e == cur {
			return true
		}
		prv = e
		return false
	})
	return ts.cursor.position(prv)
}

func (ts *txStore) count() int64 { return int64(ts.tree.Len()) }

func newItemID(provided string) string {
	if provided != "" {
		return provided
	}
	return uuid.NewString()
}
