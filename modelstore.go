package kvgo

import (
	"time"

	"github.com/kvgo-db/kvgo/wire"
)

// ModelStore is a typed handle on a database's named model store: a small
// document store for configuration and model blobs, addressed by name.
// Saves and deletes buffer in the transaction; reads see them overlaid on
// the committed state.
type ModelStore struct {
	tx   *Transaction
	id   string
	name string
	meta []byte
}

// OpenModelStore opens (creating on first use) a named model store.
func OpenModelStore(tx *Transaction, name string) (*ModelStore, error) {
	id, meta, err := openSideStore(tx, name, wire.OpenModelStore)
	if err != nil {
		return nil, err
	}
	return &ModelStore{tx: tx, id: id, name: name, meta: meta}, nil
}

// Save stages a model under name.
func (ms *ModelStore) Save(name string, model any) error {
	return ms.manage("model_save", wire.ModelSave, wire.ModelPayload{Name: name, Model: model})
}

// Delete stages removal of the named model.
func (ms *ModelStore) Delete(name string) error {
	return ms.manage("model_delete", wire.ModelDelete, wire.ModelPayload{Name: name})
}

func (ms *ModelStore) manage(op string, action wire.ModelAction, p wire.ModelPayload) error {
	if err := ms.tx.usable(); err != nil {
		return err
	}
	c := ms.tx.db.c
	payload, err := c.codec.Marshal(p)
	if err != nil {
		return err
	}
	start := time.Now()
	_, err = ms.tx.db.ctx.sentinel(c.d.ManageStore(ms.tx.db.ctx.sid, int32(action), ms.meta, payload))
	c.metrics.RecordCall(op, time.Since(start), err)
	return err
}

// Get decodes the named model into out. ok is false when no such model
// exists.
func (ms *ModelStore) Get(name string, out any) (ok bool, err error) {
	res, err := ms.query("model_get", wire.ModelGet, wire.ModelPayload{Name: name})
	if err != nil || res == nil {
		return false, err
	}
	if err := ms.tx.db.c.codec.Unmarshal(res, out); err != nil {
		return false, err
	}
	return true, nil
}

// List returns the model names, sorted.
func (ms *ModelStore) List() ([]string, error) {
	res, err := ms.query("model_list", wire.ModelList, wire.ModelPayload{})
	if err != nil {
		return nil, err
	}
	var names []string
	if err := ms.tx.db.c.codec.Unmarshal(res, &names); err != nil {
		return nil, err
	}
	return names, nil
}

func (ms *ModelStore) query(op string, action wire.ModelAction, p wire.ModelPayload) ([]byte, error) {
	if err := ms.tx.usable(); err != nil {
		return nil, err
	}
	c := ms.tx.db.c
	payload, err := c.codec.Marshal(p)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	res, err := queryResult(c.d.QueryStore(ms.tx.db.ctx.sid, int32(action), ms.meta, payload))
	c.metrics.RecordCall(op, time.Since(start), err)
	return res, err
}

// Count reports the number of models this transaction sees.
func (ms *ModelStore) Count() (int64, error) {
	if err := ms.tx.usable(); err != nil {
		return 0, err
	}
	n, errBuf := ms.tx.db.c.d.StoreCount(ms.tx.db.ctx.sid, ms.meta)
	if errBuf != nil {
		defer errBuf.Release()
		return 0, translateError(errBuf.String())
	}
	return n, nil
}
