package cluster

import (
	"context"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClient keeps items in a map keyed by "store|entry_key".
type fakeClient struct {
	mu    sync.Mutex
	items map[string]map[string]types.AttributeValue

	putTables []string
}

func newFakeClient() *fakeClient {
	return &fakeClient{items: make(map[string]map[string]types.AttributeValue)}
}

func itemKey(attrs map[string]types.AttributeValue) string {
	store := attrs["store"].(*types.AttributeValueMemberS).Value
	entry := attrs["entry_key"].(*types.AttributeValueMemberB).Value
	return store + "|" + string(entry)
}

func (f *fakeClient) PutItem(_ context.Context, params *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.putTables = append(f.putTables, *params.TableName)
	f.items[itemKey(params.Item)] = params.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeClient) GetItem(_ context.Context, params *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[itemKey(params.Key)]
	if !ok {
		return &dynamodb.GetItemOutput{}, nil
	}
	return &dynamodb.GetItemOutput{Item: item}, nil
}

func (f *fakeClient) DeleteItem(_ context.Context, params *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.items, itemKey(params.Key))
	return &dynamodb.DeleteItemOutput{}, nil
}

func TestConnectionRoundTrip(t *testing.T) {
	fake := newFakeClient()
	conn := NewConnection(fake, "tenant-a")
	ctx := context.Background()

	require.NoError(t, conn.PutEntry(ctx, "users", []byte{0x03, 0x61}, "id-1", []byte(`{"key":"a"}`)))

	blob, ok, err := conn.GetEntry(ctx, "users", []byte{0x03, 0x61}, "id-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte(`{"key":"a"}`), blob)

	require.NoError(t, conn.DeleteEntry(ctx, "users", []byte{0x03, 0x61}, "id-1"))
	_, ok, err = conn.GetEntry(ctx, "users", []byte{0x03, 0x61}, "id-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConnectionKeyspacesAreDisjoint(t *testing.T) {
	fake := newFakeClient()
	a := NewConnection(fake, "tenant-a")
	b := NewConnection(fake, "tenant-b")
	ctx := context.Background()

	require.NoError(t, a.PutEntry(ctx, "users", []byte{0x01}, "id", []byte("a-data")))

	_, ok, err := b.GetEntry(ctx, "users", []byte{0x01}, "id")
	require.NoError(t, err)
	assert.False(t, ok, "keyspaces must not see each other's entries")
}

func TestConnectionTableNameOption(t *testing.T) {
	fake := newFakeClient()
	conn := NewConnection(fake, "ks", WithTableName("custom-entries"))

	require.NoError(t, conn.PutEntry(context.Background(), "s", []byte{0x01}, "id", nil))
	require.Len(t, fake.putTables, 1)
	assert.Equal(t, "custom-entries", fake.putTables[0])

	// Default when not overridden.
	conn = NewConnection(fake, "ks")
	require.NoError(t, conn.PutEntry(context.Background(), "s", []byte{0x02}, "id", nil))
	assert.Equal(t, DefaultTableName, fake.putTables[1])
}

func TestWriteRateHonorsCancellation(t *testing.T) {
	fake := newFakeClient()
	conn := NewConnection(fake, "ks", WithWriteRate(1))
	ctx := context.Background()

	// First write consumes the burst.
	require.NoError(t, conn.PutEntry(ctx, "s", []byte{0x01}, "id-1", nil))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	err := conn.PutEntry(cancelled, "s", []byte{0x02}, "id-2", nil)
	assert.Error(t, err, "a throttled write must respect context cancellation")
}

func TestProcessWideConnection(t *testing.T) {
	t.Cleanup(Close)

	_, ok := Current()
	require.False(t, ok)

	conn := NewConnection(newFakeClient(), "ks")
	require.NoError(t, OpenWithConnection(conn))
	assert.Error(t, OpenWithConnection(conn), "a second open must fail while one is active")

	got, ok := Current()
	require.True(t, ok)
	assert.Same(t, conn, got)

	Close()
	_, ok = Current()
	assert.False(t, ok)
}
