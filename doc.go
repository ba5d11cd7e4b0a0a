// Package kvgo is the client access layer for an embedded, transactional,
// ordered key-value storage engine.
//
// The engine sits behind a narrow dispatch boundary: every call carries only
// integers and byte buffers, every stateful resource is addressed by an
// opaque handle id, and results come back as byte buffers that must be
// released exactly once. This package hides all of that behind typed Go
// handles.
//
// # Quick Start
//
// Create a client over an in-process engine, open a database and write to a
// B-tree store inside a transaction:
//
//	client := kvgo.NewClient(engine.New())
//
//	ctx := client.NewContext()
//	defer ctx.Close()
//
//	db, err := client.NewDatabase(ctx, wire.DatabaseOptions{})
//	if err != nil {
//	    panic(err)
//	}
//
//	err = kvgo.RunTransaction(ctx, db, wire.TransactionOptions{Mode: wire.ForWriting}, func(tx *kvgo.Transaction) error {
//	    bt, err := kvgo.NewBtree[string, string](tx, wire.BtreeOptions{
//	        Name:                     "users",
//	        IsUnique:                 true,
//	        IsPrimitiveKey:           true,
//	        IsValueDataInNodeSegment: true,
//	    })
//	    if err != nil {
//	        return err
//	    }
//	    _, err = bt.Add("alice", "alice@example.com")
//	    return err
//	})
//
// RunTransaction retries the whole function on commit conflicts, so the
// callback must be safe to run more than once.
//
// # Navigation
//
// Every B-tree handle carries an implicit cursor. Find, First, Last, Next
// and Previous move it; CurrentKey and CurrentValue read under it. A false
// return from a navigation call means the cursor ran off the sequence, not
// an error.
//
// # Concurrency
//
// Handles are not synchronized: calls on one handle must be serialized by
// the caller. Different transactions are isolated and may run concurrently;
// conflicting commits fail with ErrCommitConflict and can be retried.
package kvgo
