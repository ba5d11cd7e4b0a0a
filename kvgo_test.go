package kvgo_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	kvgo "github.com/kvgo-db/kvgo"
	"github.com/kvgo-db/kvgo/engine"
	"github.com/kvgo-db/kvgo/wire"
)

func newTestEnv(t *testing.T) (*kvgo.Client, *engine.Engine) {
	t.Helper()
	e := engine.New()
	t.Cleanup(func() {
		require.NoError(t, e.Close())
	})
	return kvgo.NewClient(e, kvgo.WithLogger(kvgo.NoopLogger())), e
}

func assertNoBufferLeaks(t *testing.T, e *engine.Engine) {
	t.Helper()
	assert.Equal(t, int64(0), e.Allocator().Outstanding(), "unreleased result buffers")
	assert.Equal(t, int64(0), e.Allocator().DoubleReleases(), "double-released result buffers")
}

func newTestDatabase(t *testing.T, c *kvgo.Client, ctx *kvgo.Context) *kvgo.Database {
	t.Helper()
	db, err := c.NewDatabase(ctx, wire.DatabaseOptions{})
	require.NoError(t, err)
	return db
}

func stringStoreOptions(name string) wire.BtreeOptions {
	return wire.BtreeOptions{
		Name:                     name,
		IsUnique:                 true,
		IsPrimitiveKey:           true,
		SlotLength:               100,
		IsValueDataInNodeSegment: true,
	}
}

func TestAddCommitReadBack(t *testing.T) {
	c, e := newTestEnv(t)
	ctx := c.NewContext()
	defer ctx.Close()
	db := newTestDatabase(t, c, ctx)

	tx, err := db.Begin(wire.TransactionOptions{Mode: wire.ForWriting})
	require.NoError(t, err)

	bt, err := kvgo.NewBtree[string, string](tx, stringStoreOptions("users"))
	require.NoError(t, err)

	ok, err := bt.Add("alice", "alice@example.com")
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = bt.Add("bob", "bob@example.com")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, tx.Commit())

	tx2, err := db.Begin(wire.TransactionOptions{Mode: wire.ForReading})
	require.NoError(t, err)
	bt2, err := kvgo.OpenBtree[string, string](tx2, "users")
	require.NoError(t, err)

	found, err := bt2.Find("alice")
	require.NoError(t, err)
	assert.True(t, found)

	v, ok, err := bt2.CurrentValue()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "alice@example.com", v)

	v, ok, err = bt2.GetValue("bob")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "bob@example.com", v)

	n, err := bt2.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	unique, err := bt2.IsUnique()
	require.NoError(t, err)
	assert.True(t, unique)

	require.NoError(t, tx2.Rollback())
	assertNoBufferLeaks(t, e)
}

func TestUncommittedWritesAreInvisible(t *testing.T) {
	c, _ := newTestEnv(t)
	ctx := c.NewContext()
	defer ctx.Close()
	db := newTestDatabase(t, c, ctx)

	setup, err := db.Begin(wire.TransactionOptions{Mode: wire.ForWriting})
	require.NoError(t, err)
	_, err = kvgo.NewBtree[string, string](setup, stringStoreOptions("ghost"))
	require.NoError(t, err)
	require.NoError(t, setup.Commit())

	writer, err := db.Begin(wire.TransactionOptions{Mode: wire.ForWriting})
	require.NoError(t, err)
	wbt, err := kvgo.OpenBtree[string, string](writer, "ghost")
	require.NoError(t, err)
	ok, err := wbt.Add("pending", "v")
	require.NoError(t, err)
	require.True(t, ok)

	reader, err := db.Begin(wire.TransactionOptions{Mode: wire.ForReading})
	require.NoError(t, err)
	rbt, err := kvgo.OpenBtree[string, string](reader, "ghost")
	require.NoError(t, err)

	found, err := rbt.Find("pending")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, writer.Rollback())

	check, err := db.Begin(wire.TransactionOptions{Mode: wire.ForReading})
	require.NoError(t, err)
	cbt, err := kvgo.OpenBtree[string, string](check, "ghost")
	require.NoError(t, err)
	n, err := cbt.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(0), n, "rolled back writes must not surface")

	require.NoError(t, reader.Rollback())
	require.NoError(t, check.Rollback())
}

func TestUncommittedUpdateIsInvisible(t *testing.T) {
	c, _ := newTestEnv(t)
	ctx := c.NewContext()
	defer ctx.Close()
	db := newTestDatabase(t, c, ctx)

	require.NoError(t, kvgo.RunTransaction(ctx, db, wire.TransactionOptions{Mode: wire.ForWriting}, func(tx *kvgo.Transaction) error {
		bt, err := kvgo.NewBtree[string, string](tx, stringStoreOptions("drafts"))
		if err != nil {
			return err
		}
		_, err = bt.Add("k", "v1")
		return err
	}))

	writer, err := db.Begin(wire.TransactionOptions{Mode: wire.ForWriting})
	require.NoError(t, err)
	wbt, err := kvgo.OpenBtree[string, string](writer, "drafts")
	require.NoError(t, err)
	ok, err := wbt.Update("k", "v2")
	require.NoError(t, err)
	require.True(t, ok)

	// A concurrent reader keeps seeing the committed value.
	reader, err := db.Begin(wire.TransactionOptions{Mode: wire.ForReading})
	require.NoError(t, err)
	rbt, err := kvgo.OpenBtree[string, string](reader, "drafts")
	require.NoError(t, err)
	v, found, err := rbt.GetValue("k")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "v1", v)
	require.NoError(t, reader.Rollback())

	require.NoError(t, writer.Rollback())

	check, err := db.Begin(wire.TransactionOptions{Mode: wire.ForReading})
	require.NoError(t, err)
	cbt, err := kvgo.OpenBtree[string, string](check, "drafts")
	require.NoError(t, err)
	v, found, err = cbt.GetValue("k")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "v1", v, "rolled back updates must not surface")
	require.NoError(t, check.Rollback())
}

func TestRolledBackKeyRewriteKeepsCommittedKey(t *testing.T) {
	c, _ := newTestEnv(t)
	ctx := c.NewContext()
	defer ctx.Close()
	db := newTestDatabase(t, c, ctx)

	require.NoError(t, kvgo.RunTransaction(ctx, db, wire.TransactionOptions{Mode: wire.ForWriting}, func(tx *kvgo.Transaction) error {
		bt, err := kvgo.NewBtree[string, string](tx, stringStoreOptions("renames"))
		if err != nil {
			return err
		}
		_, err = bt.AddBatch([]kvgo.Item[string, string]{
			{Key: "a", Value: "1"},
			{Key: "b", Value: "2"},
			{Key: "c", Value: "3"},
		})
		return err
	}))

	writer, err := db.Begin(wire.TransactionOptions{Mode: wire.ForWriting})
	require.NoError(t, err)
	wbt, err := kvgo.OpenBtree[string, string](writer, "renames")
	require.NoError(t, err)
	found, err := wbt.Find("b")
	require.NoError(t, err)
	require.True(t, found)
	ok, err := wbt.UpdateCurrentKey("zz")
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, writer.Rollback())

	check, err := db.Begin(wire.TransactionOptions{Mode: wire.ForReading})
	require.NoError(t, err)
	cbt, err := kvgo.OpenBtree[string, string](check, "renames")
	require.NoError(t, err)
	found, err = cbt.Find("b")
	require.NoError(t, err)
	assert.True(t, found, "the committed key must survive a rolled back rewrite")
	found, err = cbt.Find("zz")
	require.NoError(t, err)
	assert.False(t, found)
	v, ok, err := cbt.GetValue("b")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2", v)
	require.NoError(t, check.Rollback())
}

func TestUniqueStoreRejectsDuplicates(t *testing.T) {
	c, _ := newTestEnv(t)
	ctx := c.NewContext()
	defer ctx.Close()
	db := newTestDatabase(t, c, ctx)

	tx, err := db.Begin(wire.TransactionOptions{Mode: wire.ForWriting})
	require.NoError(t, err)
	bt, err := kvgo.NewBtree[string, string](tx, stringStoreOptions("uniq"))
	require.NoError(t, err)

	ok, err := bt.Add("k", "v1")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = bt.Add("k", "v2")
	require.NoError(t, err)
	assert.False(t, ok, "duplicate key on a unique store is a well-formed false")

	ok, err = bt.AddIfNotExist("k", "v3")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, tx.Rollback())
}

func TestRemoveBatchThenFind(t *testing.T) {
	c, _ := newTestEnv(t)
	ctx := c.NewContext()
	defer ctx.Close()
	db := newTestDatabase(t, c, ctx)

	require.NoError(t, kvgo.RunTransaction(ctx, db, wire.TransactionOptions{Mode: wire.ForWriting}, func(tx *kvgo.Transaction) error {
		bt, err := kvgo.NewBtree[string, string](tx, stringStoreOptions("rm"))
		if err != nil {
			return err
		}
		_, err = bt.AddBatch([]kvgo.Item[string, string]{
			{Key: "a", Value: "1"},
			{Key: "b", Value: "2"},
			{Key: "c", Value: "3"},
		})
		return err
	}))

	require.NoError(t, kvgo.RunTransaction(ctx, db, wire.TransactionOptions{Mode: wire.ForWriting}, func(tx *kvgo.Transaction) error {
		bt, err := kvgo.OpenBtree[string, string](tx, "rm")
		if err != nil {
			return err
		}
		ok, err := bt.Remove("a", "b")
		if err != nil {
			return err
		}
		require.True(t, ok)
		return nil
	}))

	tx, err := db.Begin(wire.TransactionOptions{Mode: wire.ForReading})
	require.NoError(t, err)
	bt, err := kvgo.OpenBtree[string, string](tx, "rm")
	require.NoError(t, err)

	for _, key := range []string{"a", "b"} {
		found, err := bt.Find(key)
		require.NoError(t, err)
		assert.False(t, found, "removed key %q must not be found", key)
	}
	found, err := bt.Find("c")
	require.NoError(t, err)
	assert.True(t, found)

	require.NoError(t, tx.Rollback())
}

func TestFindPositionsAtNearestGreaterKey(t *testing.T) {
	c, _ := newTestEnv(t)
	ctx := c.NewContext()
	defer ctx.Close()
	db := newTestDatabase(t, c, ctx)

	tx, err := db.Begin(wire.TransactionOptions{Mode: wire.ForWriting})
	require.NoError(t, err)
	bt, err := kvgo.NewBtree[string, string](tx, stringStoreOptions("near"))
	require.NoError(t, err)

	_, err = bt.AddBatch([]kvgo.Item[string, string]{
		{Key: "b", Value: "1"},
		{Key: "d", Value: "2"},
	})
	require.NoError(t, err)

	found, err := bt.Find("c")
	require.NoError(t, err)
	assert.False(t, found)

	item, ok, err := bt.CurrentKey()
	require.NoError(t, err)
	require.True(t, ok, "a failed find still positions at the nearest greater key")
	assert.Equal(t, "d", item.Key)

	require.NoError(t, tx.Rollback())
}

func TestFullOrderWalk(t *testing.T) {
	const n = 50

	c, _ := newTestEnv(t)
	ctx := c.NewContext()
	defer ctx.Close()
	db := newTestDatabase(t, c, ctx)

	tx, err := db.Begin(wire.TransactionOptions{Mode: wire.ForWriting})
	require.NoError(t, err)
	bt, err := kvgo.NewBtree[string, string](tx, stringStoreOptions("walk"))
	require.NoError(t, err)

	// Insert out of order; the walk must come back sorted.
	for i := n - 1; i >= 0; i-- {
		ok, err := bt.Add(fmt.Sprintf("key-%04d", i), fmt.Sprintf("v%d", i))
		require.NoError(t, err)
		require.True(t, ok)
	}

	ok, err := bt.First()
	require.NoError(t, err)
	require.True(t, ok)

	for i := 0; i < n; i++ {
		item, positioned, err := bt.CurrentKey()
		require.NoError(t, err)
		require.True(t, positioned)
		assert.Equal(t, fmt.Sprintf("key-%04d", i), item.Key)

		moved, err := bt.Next()
		require.NoError(t, err)
		if i < n-1 {
			require.True(t, moved)
		} else {
			assert.False(t, moved, "advancing past the last item must report end of sequence")
		}
	}

	// And back again.
	ok, err = bt.Last()
	require.NoError(t, err)
	require.True(t, ok)
	for i := n - 1; i > 0; i-- {
		moved, err := bt.Previous()
		require.NoError(t, err)
		require.True(t, moved)
	}
	moved, err := bt.Previous()
	require.NoError(t, err)
	assert.False(t, moved)

	require.NoError(t, tx.Rollback())
}

func TestUpsertBatchIdempotent(t *testing.T) {
	c, _ := newTestEnv(t)
	ctx := c.NewContext()
	defer ctx.Close()
	db := newTestDatabase(t, c, ctx)

	batch := []kvgo.Item[string, string]{
		{Key: "a", Value: "1"},
		{Key: "b", Value: "2"},
	}

	for i := 0; i < 3; i++ {
		require.NoError(t, kvgo.RunTransaction(ctx, db, wire.TransactionOptions{Mode: wire.ForWriting}, func(tx *kvgo.Transaction) error {
			var bt *kvgo.Btree[string, string]
			var err error
			if i == 0 {
				bt, err = kvgo.NewBtree[string, string](tx, stringStoreOptions("idem"))
			} else {
				bt, err = kvgo.OpenBtree[string, string](tx, "idem")
			}
			if err != nil {
				return err
			}
			ok, err := bt.UpsertBatch(batch)
			require.True(t, ok)
			return err
		}))
	}

	tx, err := db.Begin(wire.TransactionOptions{Mode: wire.ForReading})
	require.NoError(t, err)
	bt, err := kvgo.OpenBtree[string, string](tx, "idem")
	require.NoError(t, err)
	n, err := bt.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	require.NoError(t, tx.Rollback())
}

func TestUpdateCurrentKeyPreservesValue(t *testing.T) {
	c, _ := newTestEnv(t)
	ctx := c.NewContext()
	defer ctx.Close()
	db := newTestDatabase(t, c, ctx)

	require.NoError(t, kvgo.RunTransaction(ctx, db, wire.TransactionOptions{Mode: wire.ForWriting}, func(tx *kvgo.Transaction) error {
		bt, err := kvgo.NewBtree[string, string](tx, stringStoreOptions("rekey"))
		if err != nil {
			return err
		}
		if _, err := bt.Add("old", "payload"); err != nil {
			return err
		}

		found, err := bt.Find("old")
		if err != nil {
			return err
		}
		require.True(t, found)

		ok, err := bt.UpdateCurrentKey("new")
		if err != nil {
			return err
		}
		require.True(t, ok)

		// Cursor stays on the item under its new key.
		item, positioned, err := bt.CurrentKey()
		require.NoError(t, err)
		require.True(t, positioned)
		assert.Equal(t, "new", item.Key)

		v, positioned, err := bt.CurrentValue()
		require.NoError(t, err)
		require.True(t, positioned)
		assert.Equal(t, "payload", v, "rewriting the key must not touch the value")
		return nil
	}))

	tx, err := db.Begin(wire.TransactionOptions{Mode: wire.ForReading})
	require.NoError(t, err)
	bt, err := kvgo.OpenBtree[string, string](tx, "rekey")
	require.NoError(t, err)

	found, err := bt.Find("old")
	require.NoError(t, err)
	assert.False(t, found)

	v, ok, err := bt.GetValue("new")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "payload", v)

	require.NoError(t, tx.Rollback())
}

func TestPaging(t *testing.T) {
	const n = 25

	c, _ := newTestEnv(t)
	ctx := c.NewContext()
	defer ctx.Close()
	db := newTestDatabase(t, c, ctx)

	require.NoError(t, kvgo.RunTransaction(ctx, db, wire.TransactionOptions{Mode: wire.ForWriting}, func(tx *kvgo.Transaction) error {
		bt, err := kvgo.NewBtree[string, string](tx, stringStoreOptions("pages"))
		if err != nil {
			return err
		}
		for i := 0; i < n; i++ {
			if _, err := bt.Add(fmt.Sprintf("k-%04d", i), fmt.Sprintf("v%d", i)); err != nil {
				return err
			}
		}
		return nil
	}))

	tx, err := db.Begin(wire.TransactionOptions{Mode: wire.ForReading})
	require.NoError(t, err)
	bt, err := kvgo.OpenBtree[string, string](tx, "pages")
	require.NoError(t, err)

	t.Run("forward pages walk the whole store in order", func(t *testing.T) {
		// Each fetch continues from the cursor the previous one left.
		var got []string
		for {
			items, err := bt.GetItems(wire.PagingInfo{PageSize: 10})
			require.NoError(t, err)
			for _, it := range items {
				got = append(got, it.Key)
			}
			if len(items) < 10 {
				break
			}
		}
		require.Len(t, got, n)
		for i, key := range got {
			assert.Equal(t, fmt.Sprintf("k-%04d", i), key)
		}
	})

	t.Run("backward page starts at the largest key", func(t *testing.T) {
		items, err := bt.GetKeys(wire.PagingInfo{PageSize: 3, Direction: wire.Backward})
		require.NoError(t, err)
		require.Len(t, items, 3)
		assert.Equal(t, "k-0024", items[0].Key)
		assert.Equal(t, "k-0023", items[1].Key)
		assert.Equal(t, "k-0022", items[2].Key)
	})

	t.Run("page starts at the cursor after find", func(t *testing.T) {
		found, err := bt.Find("k-0010")
		require.NoError(t, err)
		require.True(t, found)

		items, err := bt.GetKeys(wire.PagingInfo{PageSize: 2})
		require.NoError(t, err)
		require.Len(t, items, 2)
		assert.Equal(t, "k-0010", items[0].Key)
		assert.Equal(t, "k-0011", items[1].Key)
	})

	t.Run("offset skips whole pages from the cursor", func(t *testing.T) {
		ok, err := bt.First()
		require.NoError(t, err)
		require.True(t, ok)

		items, err := bt.GetItems(wire.PagingInfo{PageSize: 5, PageOffset: 2})
		require.NoError(t, err)
		require.Len(t, items, 5)
		assert.Equal(t, "k-0010", items[0].Key)
		assert.Equal(t, "k-0014", items[4].Key)
	})

	t.Run("nonzero offset requires a position", func(t *testing.T) {
		fresh, err := kvgo.OpenBtree[string, string](tx, "pages")
		require.NoError(t, err)

		_, err = fresh.GetItems(wire.PagingInfo{PageSize: 5, PageOffset: 1})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not positioned")
	})

	t.Run("keys pages carry no values", func(t *testing.T) {
		ok, err := bt.First()
		require.NoError(t, err)
		require.True(t, ok)

		items, err := bt.GetKeys(wire.PagingInfo{PageSize: 5})
		require.NoError(t, err)
		require.Len(t, items, 5)
		for _, it := range items {
			assert.Empty(t, it.Value)
			assert.NotEmpty(t, it.ID)
		}
	})

	require.NoError(t, tx.Rollback())
}

// orderRow is a structured key: region and day order the store, the note
// and source fields are ride-along metadata.
type orderRow struct {
	Region string `json:"region"`
	Day    int    `json:"day"`
	Note   string `json:"note,omitempty"`
	Source string `json:"source,omitempty"`
}

func orderStoreOptions(name string) wire.BtreeOptions {
	return wire.BtreeOptions{
		Name:                     name,
		IsUnique:                 false,
		IsPrimitiveKey:           false,
		SlotLength:               100,
		IsValueDataInNodeSegment: true,
		IndexSpecification: &wire.IndexSpecification{
			IndexFields: []wire.IndexFieldSpecification{
				{FieldName: "region", AscendingSortOrder: true},
				{FieldName: "day", AscendingSortOrder: true},
			},
		},
	}
}

func TestStructuredKeys(t *testing.T) {
	c, _ := newTestEnv(t)
	ctx := c.NewContext()
	defer ctx.Close()
	db := newTestDatabase(t, c, ctx)

	tx, err := db.Begin(wire.TransactionOptions{Mode: wire.ForWriting})
	require.NoError(t, err)
	bt, err := kvgo.NewBtree[orderRow, float64](tx, orderStoreOptions("orders"))
	require.NoError(t, err)

	_, err = bt.AddBatch([]kvgo.Item[orderRow, float64]{
		{Key: orderRow{Region: "us", Day: 2, Note: "x"}, Value: 20},
		{Key: orderRow{Region: "eu", Day: 5, Note: "y"}, Value: 50},
		{Key: orderRow{Region: "eu", Day: 1, Note: "z"}, Value: 10},
		{Key: orderRow{Region: "us", Day: 1}, Value: 15},
	})
	require.NoError(t, err)

	t.Run("walk follows the indexed fields only", func(t *testing.T) {
		ok, err := bt.First()
		require.NoError(t, err)
		require.True(t, ok)

		var got []orderRow
		for {
			item, positioned, err := bt.CurrentKey()
			require.NoError(t, err)
			require.True(t, positioned)
			got = append(got, item.Key)
			moved, err := bt.Next()
			require.NoError(t, err)
			if !moved {
				break
			}
		}
		require.Len(t, got, 4)
		assert.Equal(t, "eu", got[0].Region)
		assert.Equal(t, 1, got[0].Day)
		assert.Equal(t, "eu", got[1].Region)
		assert.Equal(t, 5, got[1].Day)
		assert.Equal(t, "us", got[2].Region)
		assert.Equal(t, 1, got[2].Day)
		assert.Equal(t, "us", got[3].Region)
		assert.Equal(t, 2, got[3].Day)
	})

	t.Run("ride-along fields are invisible to comparison", func(t *testing.T) {
		// Same indexed fields, different metadata: still the same key.
		found, err := bt.Find(orderRow{Region: "eu", Day: 5, Note: "different", Source: "import"})
		require.NoError(t, err)
		assert.True(t, found)

		v, positioned, err := bt.CurrentValue()
		require.NoError(t, err)
		require.True(t, positioned)
		assert.Equal(t, float64(50), v)
	})

	t.Run("non-unique store accepts duplicate indexed fields", func(t *testing.T) {
		ok, err := bt.Add(orderRow{Region: "eu", Day: 5, Note: "second"}, 55)
		require.NoError(t, err)
		assert.True(t, ok)

		n, err := bt.Count()
		require.NoError(t, err)
		assert.Equal(t, int64(5), n)
	})

	require.NoError(t, tx.Rollback())
}

func TestReadOnlyTransactionRejectsWrites(t *testing.T) {
	c, _ := newTestEnv(t)
	ctx := c.NewContext()
	defer ctx.Close()
	db := newTestDatabase(t, c, ctx)

	require.NoError(t, kvgo.RunTransaction(ctx, db, wire.TransactionOptions{Mode: wire.ForWriting}, func(tx *kvgo.Transaction) error {
		_, err := kvgo.NewBtree[string, string](tx, stringStoreOptions("ro"))
		return err
	}))

	tx, err := db.Begin(wire.TransactionOptions{Mode: wire.ForReading})
	require.NoError(t, err)
	bt, err := kvgo.OpenBtree[string, string](tx, "ro")
	require.NoError(t, err)

	_, err = bt.Add("k", "v")
	require.Error(t, err)
	assert.ErrorIs(t, err, kvgo.ErrReadOnlyTransaction)

	require.NoError(t, tx.Rollback())
}

func TestHandlesStopAfterCommit(t *testing.T) {
	c, _ := newTestEnv(t)
	ctx := c.NewContext()
	defer ctx.Close()
	db := newTestDatabase(t, c, ctx)

	tx, err := db.Begin(wire.TransactionOptions{Mode: wire.ForWriting})
	require.NoError(t, err)
	bt, err := kvgo.NewBtree[string, string](tx, stringStoreOptions("done"))
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	_, err = bt.Add("k", "v")
	assert.ErrorIs(t, err, kvgo.ErrTransactionDone)

	err = tx.Commit()
	assert.ErrorIs(t, err, kvgo.ErrTransactionDone)

	err = tx.Rollback()
	assert.ErrorIs(t, err, kvgo.ErrTransactionDone)
}

func TestConcurrentDisjointCommits(t *testing.T) {
	const (
		writers       = 10
		keysPerWriter = 100
		seeded        = 50
	)

	c, e := newTestEnv(t)
	setupCtx := c.NewContext()
	defer setupCtx.Close()
	db := newTestDatabase(t, c, setupCtx)

	require.NoError(t, kvgo.RunTransaction(setupCtx, db, wire.TransactionOptions{Mode: wire.ForWriting}, func(tx *kvgo.Transaction) error {
		bt, err := kvgo.NewBtree[string, string](tx, stringStoreOptions("shared"))
		if err != nil {
			return err
		}
		seed := make([]kvgo.Item[string, string], 0, seeded)
		for i := 0; i < seeded; i++ {
			seed = append(seed, kvgo.Item[string, string]{
				Key:   fmt.Sprintf("seed-%03d", i),
				Value: "initial",
			})
		}
		_, err = bt.AddBatch(seed)
		return err
	}))

	var g errgroup.Group
	for i := 0; i < writers; i++ {
		writer := i
		g.Go(func() error {
			ctx := c.NewContext()
			defer ctx.Close()
			return kvgo.RunTransaction(ctx, db, wire.TransactionOptions{Mode: wire.ForWriting}, func(tx *kvgo.Transaction) error {
				bt, err := kvgo.OpenBtree[string, string](tx, "shared")
				if err != nil {
					return err
				}
				batch := make([]kvgo.Item[string, string], 0, keysPerWriter)
				for k := 0; k < keysPerWriter; k++ {
					batch = append(batch, kvgo.Item[string, string]{
						Key:   fmt.Sprintf("w%02d-k%03d", writer, k),
						Value: "done",
					})
				}
				_, err = bt.AddBatch(batch)
				return err
			})
		})
	}
	require.NoError(t, g.Wait())

	tx, err := db.Begin(wire.TransactionOptions{Mode: wire.ForReading})
	require.NoError(t, err)
	bt, err := kvgo.OpenBtree[string, string](tx, "shared")
	require.NoError(t, err)
	n, err := bt.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(seeded+writers*keysPerWriter), n, "disjoint-key commits must all succeed")

	// Spot-check one key per writer and the seed.
	for i := 0; i < writers; i++ {
		v, ok, err := bt.GetValue(fmt.Sprintf("w%02d-k%03d", i, keysPerWriter-1))
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "done", v)
	}
	v, ok, err := bt.GetValue("seed-000")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "initial", v)
	require.NoError(t, tx.Rollback())

	assertNoBufferLeaks(t, e)
}

func TestConflictingCommitsRetryToCompletion(t *testing.T) {
	const writers = 5

	c, _ := newTestEnv(t)
	setupCtx := c.NewContext()
	defer setupCtx.Close()
	db := newTestDatabase(t, c, setupCtx)

	require.NoError(t, kvgo.RunTransaction(setupCtx, db, wire.TransactionOptions{Mode: wire.ForWriting}, func(tx *kvgo.Transaction) error {
		_, err := kvgo.NewBtree[string, float64](tx, stringStoreOptions("counter"))
		return err
	}))

	var g errgroup.Group
	for i := 0; i < writers; i++ {
		g.Go(func() error {
			ctx := c.NewContext()
			defer ctx.Close()
			return kvgo.RunTransaction(ctx, db, wire.TransactionOptions{Mode: wire.ForWriting}, func(tx *kvgo.Transaction) error {
				bt, err := kvgo.OpenBtree[string, float64](tx, "counter")
				if err != nil {
					return err
				}
				v, _, err := bt.GetValue("n")
				if err != nil {
					return err
				}
				_, err = bt.Upsert("n", v+1)
				return err
			})
		})
	}
	require.NoError(t, g.Wait())

	tx, err := db.Begin(wire.TransactionOptions{Mode: wire.ForReading})
	require.NoError(t, err)
	bt, err := kvgo.OpenBtree[string, float64](tx, "counter")
	require.NoError(t, err)
	v, ok, err := bt.GetValue("n")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, float64(writers), v, "every increment must land exactly once")
	require.NoError(t, tx.Rollback())
}

func TestValueOffloadingWithCache(t *testing.T) {
	c, _ := newTestEnv(t)
	ctx := c.NewContext()
	defer ctx.Close()

	db, err := c.NewDatabase(ctx, wire.DatabaseOptions{CacheType: wire.InProcessCache})
	require.NoError(t, err)

	opts := wire.BtreeOptions{
		Name:                      "blobs",
		IsUnique:                  true,
		IsPrimitiveKey:            true,
		SlotLength:                100,
		IsValueDataInNodeSegment:  false,
		IsValueDataGloballyCached: true,
	}

	require.NoError(t, kvgo.RunTransaction(ctx, db, wire.TransactionOptions{Mode: wire.ForWriting}, func(tx *kvgo.Transaction) error {
		bt, err := kvgo.NewBtree[string, map[string]string](tx, opts)
		if err != nil {
			return err
		}
		_, err = bt.Add("doc", map[string]string{"title": "offloaded", "body": "kept in the value segment"})
		return err
	}))

	tx, err := db.Begin(wire.TransactionOptions{Mode: wire.ForReading})
	require.NoError(t, err)
	bt, err := kvgo.OpenBtree[string, map[string]string](tx, "blobs")
	require.NoError(t, err)

	v, ok, err := bt.GetValue("doc")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "offloaded", v["title"])

	require.NoError(t, tx.Rollback())
}

func TestPersistenceReload(t *testing.T) {
	folder := t.TempDir()

	e1 := engine.New()
	c1 := kvgo.NewClient(e1, kvgo.WithLogger(kvgo.NoopLogger()))
	ctx1 := c1.NewContext()

	db1, err := c1.NewDatabase(ctx1, wire.DatabaseOptions{StoresFolders: []string{folder}})
	require.NoError(t, err)

	require.NoError(t, kvgo.RunTransaction(ctx1, db1, wire.TransactionOptions{Mode: wire.ForWriting}, func(tx *kvgo.Transaction) error {
		bt, err := kvgo.NewBtree[string, string](tx, stringStoreOptions("durable"))
		if err != nil {
			return err
		}
		_, err = bt.AddBatch([]kvgo.Item[string, string]{
			{Key: "a", Value: "1"},
			{Key: "b", Value: "2"},
		})
		return err
	}))

	ctx1.Close()
	require.NoError(t, e1.Close())

	e2 := engine.New()
	defer func() { require.NoError(t, e2.Close()) }()
	c2 := kvgo.NewClient(e2, kvgo.WithLogger(kvgo.NoopLogger()))
	ctx2 := c2.NewContext()
	defer ctx2.Close()

	db2, err := c2.NewDatabase(ctx2, wire.DatabaseOptions{StoresFolders: []string{folder}})
	require.NoError(t, err)

	tx, err := db2.Begin(wire.TransactionOptions{Mode: wire.ForReading})
	require.NoError(t, err)
	bt, err := kvgo.OpenBtree[string, string](tx, "durable")
	require.NoError(t, err)

	n, err := bt.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	v, ok, err := bt.GetValue("b")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2", v)

	require.NoError(t, tx.Rollback())
}

func TestRemoveBtree(t *testing.T) {
	c, _ := newTestEnv(t)
	ctx := c.NewContext()
	defer ctx.Close()
	db := newTestDatabase(t, c, ctx)

	require.NoError(t, kvgo.RunTransaction(ctx, db, wire.TransactionOptions{Mode: wire.ForWriting}, func(tx *kvgo.Transaction) error {
		_, err := kvgo.NewBtree[string, string](tx, stringStoreOptions("doomed"))
		return err
	}))

	require.NoError(t, kvgo.RunTransaction(ctx, db, wire.TransactionOptions{Mode: wire.ForWriting}, func(tx *kvgo.Transaction) error {
		return db.RemoveBtree(tx, "doomed")
	}))

	tx, err := db.Begin(wire.TransactionOptions{Mode: wire.ForReading})
	require.NoError(t, err)
	_, err = kvgo.OpenBtree[string, string](tx, "doomed")
	assert.ErrorIs(t, err, kvgo.ErrNotFound)
	require.NoError(t, tx.Rollback())
}

func TestCancelledContextStopsResolving(t *testing.T) {
	c, _ := newTestEnv(t)

	ctx := c.NewContext()
	ctx.Cancel()

	_, err := c.NewDatabase(ctx, wire.DatabaseOptions{})
	require.Error(t, err)
}

func TestVectorStore(t *testing.T) {
	c, _ := newTestEnv(t)
	ctx := c.NewContext()
	defer ctx.Close()
	db := newTestDatabase(t, c, ctx)

	tx, err := db.Begin(wire.TransactionOptions{Mode: wire.ForWriting})
	require.NoError(t, err)
	vs, err := kvgo.OpenVectorStore(tx, "embeddings")
	require.NoError(t, err)

	require.NoError(t, vs.Upsert(
		wire.VectorItem{ID: "x", Vector: []float32{1, 0, 0}, Payload: "x-axis"},
		wire.VectorItem{ID: "y", Vector: []float32{0, 1, 0}, Payload: "y-axis"},
		wire.VectorItem{ID: "xy", Vector: []float32{1, 1, 0}},
	))

	// Buffered writes are invisible until commit.
	matches, err := vs.Search([]float32{1, 0, 0}, 3)
	require.NoError(t, err)
	assert.Empty(t, matches)

	require.NoError(t, tx.Commit())

	tx2, err := db.Begin(wire.TransactionOptions{Mode: wire.ForReading})
	require.NoError(t, err)
	vs2, err := kvgo.OpenVectorStore(tx2, "embeddings")
	require.NoError(t, err)

	matches, err = vs2.Search([]float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "x", matches[0].ID)
	assert.Equal(t, "x-axis", matches[0].Payload)
	assert.Equal(t, "xy", matches[1].ID)

	n, err := vs2.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	require.NoError(t, tx2.Rollback())
}

func TestModelStore(t *testing.T) {
	type rankerConfig struct {
		Name    string  `json:"name"`
		Weight  float64 `json:"weight"`
		Enabled bool    `json:"enabled"`
	}

	c, _ := newTestEnv(t)
	ctx := c.NewContext()
	defer ctx.Close()
	db := newTestDatabase(t, c, ctx)

	tx, err := db.Begin(wire.TransactionOptions{Mode: wire.ForWriting})
	require.NoError(t, err)
	ms, err := kvgo.OpenModelStore(tx, "configs")
	require.NoError(t, err)

	require.NoError(t, ms.Save("ranker", rankerConfig{Name: "bm25", Weight: 0.7, Enabled: true}))

	// Reads see the transaction's own pending save.
	var cfg rankerConfig
	ok, err := ms.Get("ranker", &cfg)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "bm25", cfg.Name)

	require.NoError(t, tx.Commit())

	tx2, err := db.Begin(wire.TransactionOptions{Mode: wire.ForReading})
	require.NoError(t, err)
	ms2, err := kvgo.OpenModelStore(tx2, "configs")
	require.NoError(t, err)

	cfg = rankerConfig{}
	ok, err = ms2.Get("ranker", &cfg)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 0.7, cfg.Weight)

	names, err := ms2.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"ranker"}, names)

	ok, err = ms2.Get("missing", &cfg)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, tx2.Rollback())
}

func TestSearchIndex(t *testing.T) {
	c, _ := newTestEnv(t)
	ctx := c.NewContext()
	defer ctx.Close()
	db := newTestDatabase(t, c, ctx)

	require.NoError(t, kvgo.RunTransaction(ctx, db, wire.TransactionOptions{Mode: wire.ForWriting}, func(tx *kvgo.Transaction) error {
		si, err := kvgo.OpenSearchIndex(tx, "docs")
		if err != nil {
			return err
		}
		if err := si.AddDocument("d1", "ordered key value storage"); err != nil {
			return err
		}
		if err := si.AddDocument("d2", "vector similarity search"); err != nil {
			return err
		}
		return si.AddDocument("d3", "key value cache")
	}))

	tx, err := db.Begin(wire.TransactionOptions{Mode: wire.ForReading})
	require.NoError(t, err)
	si, err := kvgo.OpenSearchIndex(tx, "docs")
	require.NoError(t, err)

	hits, err := si.Query("ordered storage", 2)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "d1", hits[0].ID)

	n, err := si.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	require.NoError(t, tx.Rollback())

	require.NoError(t, kvgo.RunTransaction(ctx, db, wire.TransactionOptions{Mode: wire.ForWriting}, func(tx *kvgo.Transaction) error {
		si, err := kvgo.OpenSearchIndex(tx, "docs")
		if err != nil {
			return err
		}
		return si.RemoveDocument("d1")
	}))

	tx2, err := db.Begin(wire.TransactionOptions{Mode: wire.ForReading})
	require.NoError(t, err)
	si2, err := kvgo.OpenSearchIndex(tx2, "docs")
	require.NoError(t, err)
	hits, err = si2.Query("ordered storage", 2)
	require.NoError(t, err)
	for _, h := range hits {
		assert.NotEqual(t, "d1", h.ID)
	}
	require.NoError(t, tx2.Rollback())
}

func TestSetLogging(t *testing.T) {
	c, _ := newTestEnv(t)
	require.NoError(t, c.SetLogging(wire.LogLevelError, ""))
}

// BenchmarkLargeValueUpdatePaths compares the two ways of touching an item
// that carries a large value: rewriting the value versus rewriting only a
// ride-along key field. The key path never marshals the value.
func BenchmarkLargeValueUpdatePaths(b *testing.B) {
	e := engine.New()
	defer e.Close()
	c := kvgo.NewClient(e, kvgo.WithLogger(kvgo.NoopLogger()))
	ctx := c.NewContext()
	defer ctx.Close()

	db, err := c.NewDatabase(ctx, wire.DatabaseOptions{})
	if err != nil {
		b.Fatal(err)
	}

	payload := strings.Repeat("x", 256<<10)
	seedKey := orderRow{Region: "us", Day: 1, Note: "rev-0"}
	if err := kvgo.RunTransaction(ctx, db, wire.TransactionOptions{Mode: wire.ForWriting}, func(tx *kvgo.Transaction) error {
		bt, err := kvgo.NewBtree[orderRow, string](tx, orderStoreOptions("docs"))
		if err != nil {
			return err
		}
		_, err = bt.Add(seedKey, payload)
		return err
	}); err != nil {
		b.Fatal(err)
	}

	b.Run("value-path", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			err := kvgo.RunTransaction(ctx, db, wire.TransactionOptions{Mode: wire.ForWriting}, func(tx *kvgo.Transaction) error {
				bt, err := kvgo.OpenBtree[orderRow, string](tx, "docs")
				if err != nil {
					return err
				}
				ok, err := bt.Update(seedKey, payload)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("item vanished")
				}
				return nil
			})
			if err != nil {
				b.Fatal(err)
			}
		}
	})

	b.Run("key-path", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			next := orderRow{Region: "us", Day: 1, Note: fmt.Sprintf("rev-%d", i+1)}
			err := kvgo.RunTransaction(ctx, db, wire.TransactionOptions{Mode: wire.ForWriting}, func(tx *kvgo.Transaction) error {
				bt, err := kvgo.OpenBtree[orderRow, string](tx, "docs")
				if err != nil {
					return err
				}
				found, err := bt.Find(seedKey)
				if err != nil {
					return err
				}
				if !found {
					return fmt.Errorf("item vanished")
				}
				ok, err := bt.UpdateCurrentKey(next)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("key rewrite failed")
				}
				return nil
			})
			if err != nil {
				b.Fatal(err)
			}
		}
	})
}
