package kvgo

import (
	"github.com/kvgo-db/kvgo/wire"
)

// Database is a typed handle on an engine-side database. The handle only
// carries the id; configuration stays on the engine side.
type Database struct {
	c   *Client
	ctx *Context
	id  string
}

// NewDatabase creates a database and returns its handle.
func (c *Client) NewDatabase(ctx *Context, opts wire.DatabaseOptions) (*Database, error) {
	payload, err := c.codec.Marshal(opts)
	if err != nil {
		return nil, err
	}
	id, err := ctx.handleID(c.d.ManageDatabase(ctx.sid, wire.NewDatabase, "", payload))
	if err != nil {
		return nil, err
	}
	return &Database{c: c, ctx: ctx, id: id}, nil
}

// ID returns the database handle id.
func (db *Database) ID() string { return db.id }

// Begin starts a transaction on the database.
func (db *Database) Begin(opts wire.TransactionOptions) (*Transaction, error) {
	payload, err := db.c.codec.Marshal(opts)
	if err != nil {
		return nil, err
	}
	id, err := db.ctx.handleID(db.c.d.ManageDatabase(db.ctx.sid, wire.BeginTransaction, db.id, payload))
	if err != nil {
		return nil, err
	}
	return &Transaction{db: db, id: id}, nil
}

// RemoveBtree drops a named B-tree store and its persisted state. Requires
// a writable transaction; the drop itself takes effect immediately.
func (db *Database) RemoveBtree(tx *Transaction, name string) error {
	if err := tx.usable(); err != nil {
		return err
	}
	payload, err := db.c.codec.Marshal(wire.StoreParams{Name: name, TransactionID: tx.id})
	if err != nil {
		return err
	}
	_, err = db.ctx.sentinel(db.c.d.ManageDatabase(db.ctx.sid, wire.RemoveBtree, db.id, payload))
	return err
}
