package kvgo

import (
	"errors"
	"time"

	"github.com/kvgo-db/kvgo/wire"
)

// Item is one typed key/value pair plus the engine-assigned item id.
// Non-unique stores rely on the id to address one duplicate among many.
type Item[K, V any] struct {
	Key   K      `json:"key"`
	Value V      `json:"value,omitempty"`
	ID    string `json:"id,omitempty"`
}

type itemBatch[K, V any] struct {
	Items      []Item[K, V]     `json:"items"`
	PagingInfo *wire.PagingInfo `json:"paging_info,omitempty"`
}

// Btree is a typed handle on one B-tree store inside a transaction. The
// handle carries an implicit cursor shared by the navigation and
// current-item calls.
//
// A Btree is not synchronized; serialize calls per handle. It stops working
// when its transaction commits or rolls back.
type Btree[K, V any] struct {
	tx   *Transaction
	id   string
	name string
	meta []byte
}

// NewBtree creates a B-tree store in the transaction's database and opens a
// handle on it. Creating a store that already exists is an error.
func NewBtree[K, V any](tx *Transaction, opts wire.BtreeOptions) (*Btree[K, V], error) {
	return openBtree[K, V](tx, opts, wire.NewBtree)
}

// OpenBtree opens an existing B-tree store.
func OpenBtree[K, V any](tx *Transaction, name string) (*Btree[K, V], error) {
	return openBtree[K, V](tx, wire.BtreeOptions{Name: name}, wire.OpenBtree)
}

func openBtree[K, V any](tx *Transaction, opts wire.BtreeOptions, action wire.DatabaseAction) (*Btree[K, V], error) {
	if err := tx.usable(); err != nil {
		return nil, err
	}
	opts.TransactionID = tx.id
	payload, err := tx.db.c.codec.Marshal(opts)
	if err != nil {
		return nil, err
	}
	id, err := tx.db.ctx.handleID(tx.db.c.d.ManageDatabase(tx.db.ctx.sid, action, tx.db.id, payload))
	if err != nil {
		return nil, err
	}
	meta, err := tx.db.c.codec.Marshal(wire.StoreMeta{
		StoreID:        id,
		TransactionID:  tx.id,
		IsPrimitiveKey: opts.IsPrimitiveKey,
	})
	if err != nil {
		return nil, err
	}
	return &Btree[K, V]{tx: tx, id: id, name: opts.Name, meta: meta}, nil
}

// Name returns the store name the handle was opened with.
func (b *Btree[K, V]) Name() string { return b.name }

func (b *Btree[K, V]) client() *Client { return b.tx.db.c }

func (b *Btree[K, V]) ctx() *Context { return b.tx.db.ctx }

// manage runs one mutating action and parses the boolean result.
func (b *Btree[K, V]) manage(op string, action wire.BtreeAction, batch itemBatch[K, V]) (bool, error) {
	if err := b.tx.usable(); err != nil {
		return false, err
	}
	payload, err := b.client().codec.Marshal(batch)
	if err != nil {
		return false, err
	}
	start := time.Now()
	ok, err := b.ctx().sentinel(b.client().d.ManageStore(b.ctx().sid, int32(action), b.meta, payload))
	b.client().metrics.RecordCall(op, time.Since(start), err)
	return ok, err
}

// navigate runs one cursor action and parses the boolean result.
func (b *Btree[K, V]) navigate(op string, action wire.BtreeAction, batch *itemBatch[K, V]) (bool, error) {
	if err := b.tx.usable(); err != nil {
		return false, err
	}
	var payload []byte
	if batch != nil {
		var err error
		payload, err = b.client().codec.Marshal(batch)
		if err != nil {
			return false, err
		}
	}
	start := time.Now()
	ok, err := b.ctx().sentinel(b.client().d.NavigateStore(b.ctx().sid, int32(action), b.meta, payload))
	b.client().metrics.RecordCall(op, time.Since(start), err)
	return ok, err
}

// query runs one fetching action. A nil byte slice with a nil error means
// legitimate absence.
func (b *Btree[K, V]) query(op string, action wire.BtreeAction, payload []byte) ([]byte, error) {
	if err := b.tx.usable(); err != nil {
		return nil, err
	}
	start := time.Now()
	res, err := queryResult(b.client().d.QueryStore(b.ctx().sid, int32(action), b.meta, payload))
	b.client().metrics.RecordCall(op, time.Since(start), err)
	return res, err
}

// Add inserts one item. On a unique store an existing key yields a
// well-formed false; non-unique stores accept duplicates.
func (b *Btree[K, V]) Add(key K, value V) (bool, error) {
	return b.AddBatch([]Item[K, V]{{Key: key, Value: value}})
}

// AddBatch inserts items in order, stopping at the first failing item.
// A false return means a prefix of the batch is in the working copy; commit
// or roll back accordingly.
func (b *Btree[K, V]) AddBatch(items []Item[K, V]) (bool, error) {
	return b.manage("add", wire.Add, itemBatch[K, V]{Items: items})
}

// AddIfNotExist inserts one item only when its key is absent.
func (b *Btree[K, V]) AddIfNotExist(key K, value V) (bool, error) {
	return b.AddIfNotExistBatch([]Item[K, V]{{Key: key, Value: value}})
}

// AddIfNotExistBatch inserts only missing keys, stopping at the first key
// that already exists.
func (b *Btree[K, V]) AddIfNotExistBatch(items []Item[K, V]) (bool, error) {
	return b.manage("add_if_not_exist", wire.AddIfNotExist, itemBatch[K, V]{Items: items})
}

// Update replaces the value of an existing key. A missing key yields a
// well-formed false.
func (b *Btree[K, V]) Update(key K, value V) (bool, error) {
	return b.UpdateBatch([]Item[K, V]{{Key: key, Value: value}})
}

// UpdateBatch updates items in order, stopping at the first missing key.
// Set an item's ID to address one duplicate on a non-unique store.
func (b *Btree[K, V]) UpdateBatch(items []Item[K, V]) (bool, error) {
	return b.manage("update", wire.Update, itemBatch[K, V]{Items: items})
}

// Upsert inserts or updates one item.
func (b *Btree[K, V]) Upsert(key K, value V) (bool, error) {
	return b.UpsertBatch([]Item[K, V]{{Key: key, Value: value}})
}

// UpsertBatch inserts or updates items in order. Idempotent on a unique
// store: re-running the same batch converges to the same state.
func (b *Btree[K, V]) UpsertBatch(items []Item[K, V]) (bool, error) {
	return b.manage("upsert", wire.Upsert, itemBatch[K, V]{Items: items})
}

// Remove deletes by key, stopping at the first missing key.
func (b *Btree[K, V]) Remove(keys ...K) (bool, error) {
	items := make([]Item[K, V], len(keys))
	for i, k := range keys {
		items[i].Key = k
	}
	return b.manage("remove", wire.Remove, itemBatch[K, V]{Items: items})
}

// UpdateKey rewrites an item's key without touching its value. Items are
// addressed by ID; reordering follows when indexed fields changed.
func (b *Btree[K, V]) UpdateKey(items []Item[K, V]) (bool, error) {
	return b.manage("update_key", wire.UpdateKey, itemBatch[K, V]{Items: items})
}

// UpdateCurrentKey rewrites the key of the item under the cursor without
// touching its value. The cursor stays on the item.
func (b *Btree[K, V]) UpdateCurrentKey(key K) (bool, error) {
	return b.manage("update_current_key", wire.UpdateCurrentKey, itemBatch[K, V]{Items: []Item[K, V]{{Key: key}}})
}

// Find positions the cursor at key. A false return means the exact key is
// absent; the cursor then sits at the nearest greater key, so Next walks
// onward from there.
func (b *Btree[K, V]) Find(key K) (bool, error) {
	return b.navigate("find", wire.Find, &itemBatch[K, V]{Items: []Item[K, V]{{Key: key}}})
}

// FindWithID positions the cursor at the duplicate of key carrying id.
func (b *Btree[K, V]) FindWithID(key K, id string) (bool, error) {
	return b.navigate("find_with_id", wire.FindWithID, &itemBatch[K, V]{Items: []Item[K, V]{{Key: key, ID: id}}})
}

// First positions the cursor at the smallest key. False means the store is
// empty.
func (b *Btree[K, V]) First() (bool, error) {
	return b.navigate("first", wire.MoveFirst, nil)
}

// Last positions the cursor at the largest key.
func (b *Btree[K, V]) Last() (bool, error) {
	return b.navigate("last", wire.MoveLast, nil)
}

// Next advances the cursor. False means the end of the sequence.
func (b *Btree[K, V]) Next() (bool, error) {
	return b.navigate("next", wire.MoveNext, nil)
}

// Previous steps the cursor back. False means the start of the sequence.
func (b *Btree[K, V]) Previous() (bool, error) {
	return b.navigate("previous", wire.MovePrevious, nil)
}

// CurrentKey returns the key and id under the cursor. ok is false when the
// cursor is not positioned.
func (b *Btree[K, V]) CurrentKey() (item Item[K, V], ok bool, err error) {
	res, err := b.query("current_key", wire.GetCurrentKey, nil)
	if err != nil || res == nil {
		return item, false, err
	}
	if err := b.client().codec.Unmarshal(res, &item); err != nil {
		return item, false, err
	}
	return item, true, nil
}

// CurrentValue returns the value under the cursor. ok is false when the
// cursor is not positioned.
func (b *Btree[K, V]) CurrentValue() (value V, ok bool, err error) {
	res, err := b.query("current_value", wire.GetCurrentValue, nil)
	if err != nil || res == nil {
		return value, false, err
	}
	if err := b.client().codec.Unmarshal(res, &value); err != nil {
		return value, false, err
	}
	return value, true, nil
}

// GetValue fetches the value stored under key. ok is false when the key is
// absent.
func (b *Btree[K, V]) GetValue(key K) (value V, ok bool, err error) {
	items, err := b.GetValues([]Item[K, V]{{Key: key}})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return value, false, nil
		}
		return value, false, err
	}
	return items[0].Value, true, nil
}

// GetValues fetches values for the given keys (plus IDs on non-unique
// stores). A missing key fails the whole call with ErrNotFound.
func (b *Btree[K, V]) GetValues(items []Item[K, V]) ([]Item[K, V], error) {
	payload, err := b.client().codec.Marshal(itemBatch[K, V]{Items: items})
	if err != nil {
		return nil, err
	}
	res, err := b.query("get_values", wire.GetValues, payload)
	if err != nil {
		return nil, err
	}
	var out itemBatch[K, V]
	if err := b.client().codec.Unmarshal(res, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// GetItems fetches one page of full items relative to the cursor. Page
// offset zero positions at the start (or end, walking backward) first;
// subsequent offsets continue from where the previous page stopped.
func (b *Btree[K, V]) GetItems(pg wire.PagingInfo) ([]Item[K, V], error) {
	return b.page("get_items", wire.GetItems, pg)
}

// GetKeys is GetItems without the values.
func (b *Btree[K, V]) GetKeys(pg wire.PagingInfo) ([]Item[K, V], error) {
	return b.page("get_keys", wire.GetKeys, pg)
}

func (b *Btree[K, V]) page(op string, action wire.BtreeAction, pg wire.PagingInfo) ([]Item[K, V], error) {
	payload, err := b.client().codec.Marshal(itemBatch[K, V]{PagingInfo: &pg})
	if err != nil {
		return nil, err
	}
	res, err := b.query(op, action, payload)
	if err != nil {
		return nil, err
	}
	var out itemBatch[K, V]
	if err := b.client().codec.Unmarshal(res, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// IsUnique reports whether the store was created unique.
func (b *Btree[K, V]) IsUnique() (bool, error) {
	res, err := b.query("is_unique", wire.IsUnique, nil)
	if err != nil {
		return false, err
	}
	return string(res) == wire.SentinelTrue, nil
}

// StoreInfo returns the store's description, including its live item count
// as this transaction sees it.
func (b *Btree[K, V]) StoreInfo() (wire.StoreInfo, error) {
	var info wire.StoreInfo
	res, err := b.query("store_info", wire.GetStoreInfo, nil)
	if err != nil {
		return info, err
	}
	if err := b.client().codec.Unmarshal(res, &info); err != nil {
		return info, err
	}
	return info, nil
}

// Count reports the number of items in the store as this transaction sees
// it.
func (b *Btree[K, V]) Count() (int64, error) {
	if err := b.tx.usable(); err != nil {
		return 0, err
	}
	n, errBuf := b.client().d.StoreCount(b.ctx().sid, b.meta)
	if errBuf != nil {
		defer errBuf.Release()
		return 0, translateError(errBuf.String())
	}
	return n, nil
}
