package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kvgo-db/kvgo/codec"
	"github.com/kvgo-db/kvgo/wire"
)

func newTestDiskStore(t *testing.T) *diskStore {
	t.Helper()
	d, err := openDiskStore(t.TempDir(), codec.Default)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, d.close())
	})
	return d
}

func TestDiskStoreRoundTrip(t *testing.T) {
	d := newTestDiskStore(t)

	opts := wire.BtreeOptions{
		Name:                     "trip",
		IsUnique:                 true,
		IsPrimitiveKey:           true,
		IsValueDataInNodeSegment: true,
		TransactionID:            "tx-should-not-persist",
	}
	require.NoError(t, d.saveStoreInfo(opts))

	cs := newCommittedStore(opts)
	ops := []writeOp{
		{ent: &entry{key: "b", value: "2", id: "id-b"}},
		{ent: &entry{key: "a", value: "1", id: "id-a"}},
		{ent: &entry{key: "c", value: "3", id: "id-c"}},
	}
	require.NoError(t, d.applyOps(cs, ops))

	loaded, err := d.loadStore("trip")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Empty(t, loaded.opts.TransactionID, "catalog entries must not carry a transaction id")
	assert.Equal(t, 3, loaded.tree.Len())

	// Bucket order is the key order.
	var keys []string
	loaded.tree.Ascend(func(e *entry) bool {
		keys = append(keys, e.key.(string))
		return true
	})
	assert.Equal(t, []string{"a", "b", "c"}, keys)
}

func TestDiskStoreLoadMissing(t *testing.T) {
	d := newTestDiskStore(t)

	loaded, err := d.loadStore("never-saved")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestDiskStoreDeleteOps(t *testing.T) {
	d := newTestDiskStore(t)

	opts := wire.BtreeOptions{Name: "del", IsPrimitiveKey: true, IsUnique: true, IsValueDataInNodeSegment: true}
	require.NoError(t, d.saveStoreInfo(opts))

	cs := newCommittedStore(opts)
	require.NoError(t, d.applyOps(cs, []writeOp{
		{ent: &entry{key: "a", value: "1", id: "id-a"}},
		{ent: &entry{key: "b", value: "2", id: "id-b"}},
	}))
	require.NoError(t, d.applyOps(cs, []writeOp{
		{ent: &entry{key: "a", id: "id-a"}, del: true},
	}))

	loaded, err := d.loadStore("del")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, 1, loaded.tree.Len())
}

func TestDiskStoreOffloadedValues(t *testing.T) {
	d := newTestDiskStore(t)

	opts := wire.BtreeOptions{Name: "blobs", IsPrimitiveKey: true, IsUnique: true, IsValueDataInNodeSegment: false}
	require.NoError(t, d.saveStoreInfo(opts))

	cs := newCommittedStore(opts)
	cs.values["id-a"] = []byte(`{"big":"payload"}`)
	require.NoError(t, d.applyOps(cs, []writeOp{
		{ent: &entry{key: "a", id: "id-a"}},
	}))

	loaded, err := d.loadStore("blobs")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, []byte(`{"big":"payload"}`), loaded.values["id-a"])
}

func TestDiskStoreDrop(t *testing.T) {
	d := newTestDiskStore(t)

	opts := wire.BtreeOptions{Name: "gone", IsPrimitiveKey: true, IsUnique: true, IsValueDataInNodeSegment: true}
	require.NoError(t, d.saveStoreInfo(opts))
	require.NoError(t, d.dropStore("gone"))

	loaded, err := d.loadStore("gone")
	require.NoError(t, err)
	assert.Nil(t, loaded)

	// Dropping twice is harmless.
	require.NoError(t, d.dropStore("gone"))
}
