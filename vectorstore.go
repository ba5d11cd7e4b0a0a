package kvgo

import (
	"time"

	"github.com/kvgo-db/kvgo/wire"
)

// VectorStore is a typed handle on a database's named vector store.
// Mutations buffer in the transaction and publish at commit; searches see
// the last committed state.
type VectorStore struct {
	tx   *Transaction
	id   string
	name string
	meta []byte
}

// OpenVectorStore opens (creating on first use) a named vector store.
func OpenVectorStore(tx *Transaction, name string) (*VectorStore, error) {
	id, meta, err := openSideStore(tx, name, wire.OpenVectorStore)
	if err != nil {
		return nil, err
	}
	return &VectorStore{tx: tx, id: id, name: name, meta: meta}, nil
}

// openSideStore opens a non-btree store handle and precomputes its meta
// buffer.
func openSideStore(tx *Transaction, name string, action wire.DatabaseAction) (string, []byte, error) {
	if err := tx.usable(); err != nil {
		return "", nil, err
	}
	c := tx.db.c
	payload, err := c.codec.Marshal(wire.StoreParams{Name: name, TransactionID: tx.id})
	if err != nil {
		return "", nil, err
	}
	id, err := tx.db.ctx.handleID(c.d.ManageDatabase(tx.db.ctx.sid, action, tx.db.id, payload))
	if err != nil {
		return "", nil, err
	}
	meta, err := c.codec.Marshal(wire.StoreMeta{StoreID: id, TransactionID: tx.id})
	if err != nil {
		return "", nil, err
	}
	return id, meta, nil
}

// Upsert stages vectors for insert or replacement. Items without an ID get
// one assigned.
func (vs *VectorStore) Upsert(items ...wire.VectorItem) error {
	return vs.manage("vector_upsert", wire.VectorUpsert, wire.VectorBatch{Items: items})
}

// Remove stages vector removals by id.
func (vs *VectorStore) Remove(ids ...string) error {
	items := make([]wire.VectorItem, len(ids))
	for i, id := range ids {
		items[i].ID = id
	}
	return vs.manage("vector_remove", wire.VectorRemove, wire.VectorBatch{Items: items})
}

func (vs *VectorStore) manage(op string, action wire.VectorAction, batch wire.VectorBatch) error {
	if err := vs.tx.usable(); err != nil {
		return err
	}
	c := vs.tx.db.c
	payload, err := c.codec.Marshal(batch)
	if err != nil {
		return err
	}
	start := time.Now()
	_, err = vs.tx.db.ctx.sentinel(c.d.ManageStore(vs.tx.db.ctx.sid, int32(action), vs.meta, payload))
	c.metrics.RecordCall(op, time.Since(start), err)
	return err
}

// Search returns the k nearest committed vectors by cosine similarity.
func (vs *VectorStore) Search(vector []float32, k int) ([]wire.VectorMatch, error) {
	if err := vs.tx.usable(); err != nil {
		return nil, err
	}
	c := vs.tx.db.c
	payload, err := c.codec.Marshal(wire.VectorQuery{Vector: vector, K: k})
	if err != nil {
		return nil, err
	}
	start := time.Now()
	res, err := queryResult(c.d.QueryStore(vs.tx.db.ctx.sid, int32(wire.VectorSearch), vs.meta, payload))
	c.metrics.RecordCall("vector_search", time.Since(start), err)
	if err != nil {
		return nil, err
	}
	var matches []wire.VectorMatch
	if err := c.codec.Unmarshal(res, &matches); err != nil {
		return nil, err
	}
	return matches, nil
}

// Count reports the number of committed vectors.
func (vs *VectorStore) Count() (int64, error) {
	if err := vs.tx.usable(); err != nil {
		return 0, err
	}
	n, errBuf := vs.tx.db.c.d.StoreCount(vs.tx.db.ctx.sid, vs.meta)
	if errBuf != nil {
		defer errBuf.Release()
		return 0, translateError(errBuf.String())
	}
	return n, nil
}
