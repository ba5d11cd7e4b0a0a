package engine

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/kvgo-db/kvgo/wire"
)

// Compile-time check that Engine covers the whole dispatch surface.
var _ wire.Dispatcher = (*Engine)(nil)

// CreateSession allocates a session id.
func (e *Engine) CreateSession() int64 {
	return e.sessions.create()
}

// CloseSession releases a session.
func (e *Engine) CloseSession(sid int64) {
	e.sessions.remove(sid)
}

// CancelSession cancels the session's context and releases it.
func (e *Engine) CancelSession(sid int64) {
	e.sessions.cancel(sid)
}

// SessionError reports the session's deferred error, or nil.
func (e *Engine) SessionError(sid int64) *wire.Buffer {
	s, ok := e.sessions.get(sid)
	if !ok {
		return e.alloc.String(ErrSessionNotFound.Error())
	}
	if err := s.err(); err != nil {
		return e.alloc.String(err.Error())
	}
	return nil
}

func (e *Engine) errBuf(err error) *wire.Buffer {
	return e.alloc.String(err.Error())
}

func (e *Engine) boolBuf(ok bool) *wire.Buffer {
	if ok {
		return e.alloc.String(wire.SentinelTrue)
	}
	return e.alloc.String(wire.SentinelFalse)
}

// sessionFor resolves the session and clears its deferred-error slot. A
// cancelled session keeps resolving so callers get the context error through
// the slot instead of a bare nil.
func (e *Engine) sessionFor(sid int64) (*session, error) {
	s, ok := e.sessions.get(sid)
	if !ok {
		return nil, ErrSessionNotFound
	}
	s.setErr(nil)
	if err := s.ctx.Err(); err != nil {
		s.setErr(err)
		return nil, err
	}
	return s, nil
}

// resolveDatabase parses a database handle id.
func (e *Engine) resolveDatabase(id string) (*database, error) {
	did, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrDatabaseNotFound
	}
	db, ok := e.databases.get(did)
	if !ok {
		return nil, ErrDatabaseNotFound
	}
	return db, nil
}

// resolveTransaction parses a transaction handle id and enforces expiry.
func (e *Engine) resolveTransaction(id string) (*transaction, error) {
	tid, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrTransactionNotFound
	}
	tx, ok := e.transactions.get(tid)
	if !ok {
		return nil, ErrTransactionNotFound
	}
	if tx.expired() {
		return nil, ErrTransactionExpired
	}
	return tx, nil
}

// resolveHandle decodes a StoreMeta buffer down to the store handle it
// addresses, via its owning transaction.
func (e *Engine) resolveHandle(meta []byte) (any, *transaction, error) {
	var m wire.StoreMeta
	if err := e.codec.Unmarshal(meta, &m); err != nil {
		return nil, nil, fmt.Errorf("decode store meta: %w", err)
	}
	tx, err := e.resolveTransaction(m.TransactionID)
	if err != nil {
		return nil, nil, err
	}
	hid, err := uuid.Parse(m.StoreID)
	if err != nil {
		return nil, nil, ErrStoreNotFound
	}
	h, ok := tx.handle(hid)
	if !ok {
		return nil, nil, ErrStoreNotFound
	}
	return h, tx, nil
}

// ManageDatabase is the database-level switchboard.
func (e *Engine) ManageDatabase(sid int64, action wire.DatabaseAction, targetID string, payload []byte) *wire.Buffer {
	if _, err := e.sessionFor(sid); err != nil {
		return e.errBuf(err)
	}

	switch action {
	case wire.NewDatabase:
		var opts wire.DatabaseOptions
		if err := e.codec.Unmarshal(payload, &opts); err != nil {
			return e.errBuf(fmt.Errorf("decode database options: %w", err))
		}
		db, err := e.newDatabase(opts)
		if err != nil {
			return e.errBuf(err)
		}
		e.logger.Debug("database created", "database_id", db.id)
		return e.alloc.String(db.id.String())

	case wire.BeginTransaction:
		db, err := e.resolveDatabase(targetID)
		if err != nil {
			return e.errBuf(err)
		}
		var opts wire.TransactionOptions
		if len(payload) > 0 {
			if err := e.codec.Unmarshal(payload, &opts); err != nil {
				return e.errBuf(fmt.Errorf("decode transaction options: %w", err))
			}
		}
		tx := e.beginTransaction(db, opts)
		return e.alloc.String(tx.id.String())

	case wire.NewBtree, wire.OpenBtree:
		db, err := e.resolveDatabase(targetID)
		if err != nil {
			return e.errBuf(err)
		}
		var opts wire.BtreeOptions
		if err := e.codec.Unmarshal(payload, &opts); err != nil {
			return e.errBuf(fmt.Errorf("decode btree options: %w", err))
		}
		tx, err := e.resolveTransaction(opts.TransactionID)
		if err != nil {
			return e.errBuf(err)
		}
		if tx.db != db {
			return e.errBuf(fmt.Errorf("transaction does not belong to this database"))
		}
		cs, err := db.btreeStore(opts, action == wire.NewBtree)
		if err != nil {
			return e.errBuf(err)
		}
		ts := openTxStore(cs, tx)
		id := tx.addHandle(ts)
		return e.alloc.String(id.String())

	case wire.OpenVectorStore, wire.OpenModelStore, wire.OpenSearchIndex:
		db, err := e.resolveDatabase(targetID)
		if err != nil {
			return e.errBuf(err)
		}
		var params wire.StoreParams
		if err := e.codec.Unmarshal(payload, &params); err != nil {
			return e.errBuf(fmt.Errorf("decode store params: %w", err))
		}
		tx, err := e.resolveTransaction(params.TransactionID)
		if err != nil {
			return e.errBuf(err)
		}
		if tx.db != db {
			return e.errBuf(fmt.Errorf("transaction does not belong to this database"))
		}
		var h any
		switch action {
		case wire.OpenVectorStore:
			h = &vectorHandle{store: db.vectorStore(params.Name)}
		case wire.OpenModelStore:
			h = &modelHandle{store: db.modelStore(params.Name)}
		case wire.OpenSearchIndex:
			h = &searchHandle{index: db.searchIndex(params.Name)}
		}
		id := tx.addHandle(h)
		return e.alloc.String(id.String())

	case wire.RemoveBtree:
		db, err := e.resolveDatabase(targetID)
		if err != nil {
			return e.errBuf(err)
		}
		var params wire.StoreParams
		if err := e.codec.Unmarshal(payload, &params); err != nil {
			return e.errBuf(fmt.Errorf("decode store params: %w", err))
		}
		tx, err := e.resolveTransaction(params.TransactionID)
		if err != nil {
			return e.errBuf(err)
		}
		if !tx.writable() {
			return e.errBuf(ErrReadOnlyTransaction)
		}
		if err := db.removeBtree(params.Name); err != nil {
			return e.errBuf(err)
		}
		return e.boolBuf(true)

	default:
		return e.errBuf(fmt.Errorf("unknown database action %d", action))
	}
}

// ManageTransaction commits or rolls back. The payload is the transaction
// handle id.
func (e *Engine) ManageTransaction(sid int64, action wire.TransactionAction, payload []byte) *wire.Buffer {
	s, err := e.sessionFor(sid)
	if err != nil {
		return e.errBuf(err)
	}

	tid, err := uuid.Parse(string(payload))
	if err != nil {
		return e.errBuf(ErrTransactionNotFound)
	}
	tx, ok := e.transactions.get(tid)
	if !ok {
		return e.errBuf(ErrTransactionNotFound)
	}

	switch action {
	case wire.CommitTransaction:
		if err := tx.commit(s.ctx); err != nil {
			e.logger.Debug("commit failed", "transaction_id", tid, "error", err)
			return e.errBuf(err)
		}
		return nil
	case wire.RollbackTransaction:
		if err := tx.rollback(); err != nil {
			return e.errBuf(err)
		}
		return nil
	default:
		return e.errBuf(fmt.Errorf("unknown transaction action %d", action))
	}
}

// ManageStore runs a mutating store action, routed by the handle's kind.
func (e *Engine) ManageStore(sid int64, action int32, meta, payload []byte) *wire.Buffer {
	if _, err := e.sessionFor(sid); err != nil {
		return e.errBuf(err)
	}
	h, tx, err := e.resolveHandle(meta)
	if err != nil {
		return e.errBuf(err)
	}
	if !tx.writable() {
		return e.errBuf(ErrReadOnlyTransaction)
	}

	switch v := h.(type) {
	case *txStore:
		return e.manageBtree(v, wire.BtreeAction(action), payload)
	case *vectorHandle:
		return e.manageVector(v, wire.VectorAction(action), payload)
	case *modelHandle:
		return e.manageModel(v, wire.ModelAction(action), payload)
	case *searchHandle:
		return e.manageSearch(v, wire.SearchAction(action), payload)
	default:
		return e.errBuf(ErrStoreNotFound)
	}
}

func (e *Engine) manageBtree(ts *txStore, action wire.BtreeAction, payload []byte) *wire.Buffer {
	var batch wire.ItemBatch
	if err := e.codec.Unmarshal(payload, &batch); err != nil {
		return e.errBuf(fmt.Errorf("decode item batch: %w", err))
	}

	var ok bool
	var err error
	switch action {
	case wire.Add:
		ok, err = ts.add(batch.Items)
	case wire.AddIfNotExist:
		ok, err = ts.addIfNotExist(batch.Items)
	case wire.Update:
		ok, err = ts.update(batch.Items)
	case wire.Upsert:
		ok, err = ts.upsert(batch.Items)
	case wire.Remove:
		keys := make([]any, len(batch.Items))
		for i, it := range batch.Items {
			keys[i] = it.Key
		}
		ok, err = ts.remove(keys)
	case wire.UpdateKey:
		ok, err = ts.updateKey(batch.Items)
	case wire.UpdateCurrentKey:
		ok, err = ts.updateCurrentKey(batch.Items)
	default:
		return e.errBuf(fmt.Errorf("unknown btree manage action %d", action))
	}
	if err != nil {
		return e.errBuf(err)
	}
	return e.boolBuf(ok)
}

func (e *Engine) manageVector(h *vectorHandle, action wire.VectorAction, payload []byte) *wire.Buffer {
	var batch wire.VectorBatch
	if err := e.codec.Unmarshal(payload, &batch); err != nil {
		return e.errBuf(fmt.Errorf("decode vector batch: %w", err))
	}
	switch action {
	case wire.VectorUpsert:
		h.queueUpsert(batch.Items)
		return e.boolBuf(true)
	case wire.VectorRemove:
		h.queueRemove(batch.Items)
		return e.boolBuf(true)
	default:
		return e.errBuf(fmt.Errorf("unknown vector manage action %d", action))
	}
}

func (e *Engine) manageModel(h *modelHandle, action wire.ModelAction, payload []byte) *wire.Buffer {
	var p wire.ModelPayload
	if err := e.codec.Unmarshal(payload, &p); err != nil {
		return e.errBuf(fmt.Errorf("decode model payload: %w", err))
	}
	switch action {
	case wire.ModelSave:
		blob, err := e.codec.Marshal(p.Model)
		if err != nil {
			return e.errBuf(err)
		}
		h.queueSave(p.Name, blob)
		return e.boolBuf(true)
	case wire.ModelDelete:
		h.queueDelete(p.Name)
		return e.boolBuf(true)
	default:
		return e.errBuf(fmt.Errorf("unknown model manage action %d", action))
	}
}

func (e *Engine) manageSearch(h *searchHandle, action wire.SearchAction, payload []byte) *wire.Buffer {
	var doc wire.SearchDoc
	if err := e.codec.Unmarshal(payload, &doc); err != nil {
		return e.errBuf(fmt.Errorf("decode search document: %w", err))
	}
	switch action {
	case wire.SearchAddDocument:
		h.queueAdd(doc)
		return e.boolBuf(true)
	case wire.SearchRemoveDocument:
		h.queueRemove(doc.ID)
		return e.boolBuf(true)
	default:
		return e.errBuf(fmt.Errorf("unknown search manage action %d", action))
	}
}

// NavigateStore runs a cursor action on a B-tree handle.
func (e *Engine) NavigateStore(sid int64, action int32, meta, payload []byte) *wire.Buffer {
	if _, err := e.sessionFor(sid); err != nil {
		return e.errBuf(err)
	}
	h, _, err := e.resolveHandle(meta)
	if err != nil {
		return e.errBuf(err)
	}
	ts, ok := h.(*txStore)
	if !ok {
		return e.errBuf(ErrStoreNotFound)
	}

	switch wire.BtreeAction(action) {
	case wire.Find, wire.FindWithID:
		var batch wire.ItemBatch
		if err := e.codec.Unmarshal(payload, &batch); err != nil {
			return e.errBuf(fmt.Errorf("decode item batch: %w", err))
		}
		if len(batch.Items) != 1 {
			return e.errBuf(fmt.Errorf("find takes exactly one item"))
		}
		it := batch.Items[0]
		if wire.BtreeAction(action) == wire.FindWithID {
			return e.boolBuf(ts.findWithID(it.Key, it.ID))
		}
		return e.boolBuf(ts.find(it.Key))
	case wire.MoveFirst:
		return e.boolBuf(ts.first())
	case wire.MoveLast:
		return e.boolBuf(ts.last())
	case wire.MoveNext:
		return e.boolBuf(ts.next())
	case wire.MovePrevious:
		return e.boolBuf(ts.previous())
	default:
		return e.errBuf(fmt.Errorf("unknown navigate action %d", action))
	}
}

// QueryStore runs a fetching action, routed by the handle's kind. The second
// buffer is the error channel; a nil/nil pair means legitimate absence.
func (e *Engine) QueryStore(sid int64, action int32, meta, payload []byte) (*wire.Buffer, *wire.Buffer) {
	if _, err := e.sessionFor(sid); err != nil {
		return nil, e.errBuf(err)
	}
	h, _, err := e.resolveHandle(meta)
	if err != nil {
		return nil, e.errBuf(err)
	}

	switch v := h.(type) {
	case *txStore:
		return e.queryBtree(v, wire.BtreeAction(action), payload)
	case *vectorHandle:
		return e.queryVector(v, wire.VectorAction(action), payload)
	case *modelHandle:
		return e.queryModel(v, wire.ModelAction(action), payload)
	case *searchHandle:
		return e.querySearch(v, wire.SearchAction(action), payload)
	default:
		return nil, e.errBuf(ErrStoreNotFound)
	}
}

func (e *Engine) queryBtree(ts *txStore, action wire.BtreeAction, payload []byte) (*wire.Buffer, *wire.Buffer) {
	switch action {
	case wire.GetCurrentKey:
		cur, ok := ts.cursor.current()
		if !ok {
			return nil, nil
		}
		return e.marshalResult(wire.Item{Key: cur.key, ID: cur.id})

	case wire.GetCurrentValue:
		cur, ok := ts.cursor.current()
		if !ok {
			return nil, nil
		}
		v, err := ts.resolveValue(cur)
		if err != nil {
			return nil, e.errBuf(err)
		}
		return e.marshalResult(v)

	case wire.GetValues:
		var batch wire.ItemBatch
		if err := e.codec.Unmarshal(payload, &batch); err != nil {
			return nil, e.errBuf(fmt.Errorf("decode item batch: %w", err))
		}
		out := make([]wire.Item, 0, len(batch.Items))
		for _, it := range batch.Items {
			ent := ts.lookupByID(it.Key, it.ID)
			if ent == nil {
				return nil, e.errBuf(fmt.Errorf("key not found"))
			}
			v, err := ts.resolveValue(ent)
			if err != nil {
				return nil, e.errBuf(err)
			}
			out = append(out, wire.Item{Key: ent.key, Value: v, ID: ent.id})
		}
		return e.marshalResult(wire.ItemBatch{Items: out})

	case wire.GetItems, wire.GetKeys:
		var batch wire.ItemBatch
		if err := e.codec.Unmarshal(payload, &batch); err != nil {
			return nil, e.errBuf(fmt.Errorf("decode item batch: %w", err))
		}
		ents, err := e.fetchPage(ts, batch.PagingInfo)
		if err != nil {
			return nil, e.errBuf(err)
		}
		out := make([]wire.Item, 0, len(ents))
		for _, ent := range ents {
			it := wire.Item{Key: ent.key, ID: ent.id}
			if action == wire.GetItems {
				v, err := ts.resolveValue(ent)
				if err != nil {
					return nil, e.errBuf(err)
				}
				it.Value = v
			}
			out = append(out, it)
		}
		return e.marshalResult(wire.ItemBatch{Items: out})

	case wire.GetStoreInfo:
		info := ts.committed.storeInfo()
		info.Count = ts.count()
		return e.marshalResult(info)

	case wire.IsUnique:
		return e.boolBuf(ts.opts().IsUnique), nil

	default:
		return nil, e.errBuf(fmt.Errorf("unknown btree query action %d", action))
	}
}

// fetchPage walks one page starting at the handle's cursor. An unpositioned
// cursor auto-positions at the start (or end, walking backward) when the
// offset is zero and errors otherwise. A nonzero offset skips
// offset*pageSize entries before collecting.
func (e *Engine) fetchPage(ts *txStore, pi *wire.PagingInfo) ([]*entry, error) {
	if pi == nil || pi.PageSize <= 0 {
		return nil, fmt.Errorf("paging info with a positive page size is required")
	}
	backward := pi.Direction == wire.Backward

	if _, positioned := ts.cursor.current(); !positioned {
		if pi.PageOffset != 0 {
			return nil, fmt.Errorf("cursor is not positioned; call first, last or find before fetching with a page offset")
		}
		var ok bool
		if backward {
			ok = ts.last()
		} else {
			ok = ts.first()
		}
		if !ok {
			return nil, fmt.Errorf("btree %q is empty", ts.committed.name)
		}
	}

	for skip := pi.PageOffset * pi.PageSize; skip > 0; skip-- {
		var moved bool
		if backward {
			moved = ts.previous()
		} else {
			moved = ts.next()
		}
		if !moved {
			return nil, fmt.Errorf("page offset %d runs past the end of btree %q", pi.PageOffset, ts.committed.name)
		}
	}

	ents := make([]*entry, 0, pi.PageSize)
	for len(ents) < pi.PageSize {
		cur, ok := ts.cursor.current()
		if !ok {
			break
		}
		ents = append(ents, cur)
		if backward {
			if !ts.previous() {
				break
			}
		} else {
			if !ts.next() {
				break
			}
		}
	}
	return ents, nil
}

func (e *Engine) queryVector(h *vectorHandle, action wire.VectorAction, payload []byte) (*wire.Buffer, *wire.Buffer) {
	switch action {
	case wire.VectorSearch:
		var q wire.VectorQuery
		if err := e.codec.Unmarshal(payload, &q); err != nil {
			return nil, e.errBuf(fmt.Errorf("decode vector query: %w", err))
		}
		matches := h.store.Search(q.Vector, q.K)
		out := make([]wire.VectorMatch, len(matches))
		for i, m := range matches {
			out[i] = wire.VectorMatch{ID: m.ID, Score: m.Score, Payload: m.Payload}
		}
		return e.marshalResult(out)
	default:
		return nil, e.errBuf(fmt.Errorf("unknown vector query action %d", action))
	}
}

func (e *Engine) queryModel(h *modelHandle, action wire.ModelAction, payload []byte) (*wire.Buffer, *wire.Buffer) {
	switch action {
	case wire.ModelGet:
		var p wire.ModelPayload
		if err := e.codec.Unmarshal(payload, &p); err != nil {
			return nil, e.errBuf(fmt.Errorf("decode model payload: %w", err))
		}
		blob, ok := h.get(p.Name)
		if !ok {
			return nil, nil
		}
		return e.alloc.Bytes(blob), nil
	case wire.ModelList:
		return e.marshalResult(h.list())
	default:
		return nil, e.errBuf(fmt.Errorf("unknown model query action %d", action))
	}
}

func (e *Engine) querySearch(h *searchHandle, action wire.SearchAction, payload []byte) (*wire.Buffer, *wire.Buffer) {
	switch action {
	case wire.SearchQueryAction:
		var q wire.SearchQuery
		if err := e.codec.Unmarshal(payload, &q); err != nil {
			return nil, e.errBuf(fmt.Errorf("decode search query: %w", err))
		}
		hits := h.index.Query(q.Text, q.K)
		out := make([]wire.SearchHit, len(hits))
		for i, hit := range hits {
			out[i] = wire.SearchHit{ID: hit.ID, Score: hit.Score}
		}
		return e.marshalResult(out)
	default:
		return nil, e.errBuf(fmt.Errorf("unknown search query action %d", action))
	}
}

func (e *Engine) marshalResult(v any) (*wire.Buffer, *wire.Buffer) {
	blob, err := e.codec.Marshal(v)
	if err != nil {
		return nil, e.errBuf(err)
	}
	return e.alloc.Bytes(blob), nil
}

// StoreCount reports the item count of any store kind.
func (e *Engine) StoreCount(sid int64, meta []byte) (int64, *wire.Buffer) {
	if _, err := e.sessionFor(sid); err != nil {
		return 0, e.errBuf(err)
	}
	h, _, err := e.resolveHandle(meta)
	if err != nil {
		return 0, e.errBuf(err)
	}
	switch v := h.(type) {
	case *txStore:
		return v.count(), nil
	case *vectorHandle:
		return v.store.Count(), nil
	case *modelHandle:
		return v.count(), nil
	case *searchHandle:
		return v.index.Count(), nil
	default:
		return 0, e.errBuf(ErrStoreNotFound)
	}
}
