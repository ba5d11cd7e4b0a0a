package kvgo

import (
	"time"

	"github.com/kvgo-db/kvgo/wire"
)

// SearchIndex is a typed handle on a database's named keyword index.
// Document changes buffer in the transaction and publish at commit;
// queries run against the committed index.
type SearchIndex struct {
	tx   *Transaction
	id   string
	name string
	meta []byte
}

// OpenSearchIndex opens (creating on first use) a named search index.
func OpenSearchIndex(tx *Transaction, name string) (*SearchIndex, error) {
	id, meta, err := openSideStore(tx, name, wire.OpenSearchIndex)
	if err != nil {
		return nil, err
	}
	return &SearchIndex{tx: tx, id: id, name: name, meta: meta}, nil
}

// AddDocument stages a document for indexing, replacing any previous
// content under the same id.
func (si *SearchIndex) AddDocument(id, text string) error {
	return si.manage("search_add", wire.SearchAddDocument, wire.SearchDoc{ID: id, Text: text})
}

// RemoveDocument stages removal of a document.
func (si *SearchIndex) RemoveDocument(id string) error {
	return si.manage("search_remove", wire.SearchRemoveDocument, wire.SearchDoc{ID: id})
}

func (si *SearchIndex) manage(op string, action wire.SearchAction, doc wire.SearchDoc) error {
	if err := si.tx.usable(); err != nil {
		return err
	}
	c := si.tx.db.c
	payload, err := c.codec.Marshal(doc)
	if err != nil {
		return err
	}
	start := time.Now()
	_, err = si.tx.db.ctx.sentinel(c.d.ManageStore(si.tx.db.ctx.sid, int32(action), si.meta, payload))
	c.metrics.RecordCall(op, time.Since(start), err)
	return err
}

// Query returns the top k committed documents by BM25 score.
func (si *SearchIndex) Query(text string, k int) ([]wire.SearchHit, error) {
	if err := si.tx.usable(); err != nil {
		return nil, err
	}
	c := si.tx.db.c
	payload, err := c.codec.Marshal(wire.SearchQuery{Text: text, K: k})
	if err != nil {
		return nil, err
	}
	start := time.Now()
	res, err := queryResult(c.d.QueryStore(si.tx.db.ctx.sid, int32(wire.SearchQueryAction), si.meta, payload))
	c.metrics.RecordCall("search_query", time.Since(start), err)
	if err != nil {
		return nil, err
	}
	var hits []wire.SearchHit
	if err := c.codec.Unmarshal(res, &hits); err != nil {
		return nil, err
	}
	return hits, nil
}

// Count reports the number of committed documents.
func (si *SearchIndex) Count() (int64, error) {
	if err := si.tx.usable(); err != nil {
		return 0, err
	}
	n, errBuf := si.tx.db.c.d.StoreCount(si.tx.db.ctx.sid, si.meta)
	if errBuf != nil {
		defer errBuf.Release()
		return 0, translateError(errBuf.String())
	}
	return n, nil
}
