package cache

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRUBasic(t *testing.T) {
	c := NewLRU(1024)

	_, ok := c.Get("missing")
	assert.False(t, ok)

	c.Set("k", []byte("value"))
	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, []byte("value"), v)

	c.Delete("k")
	_, ok = c.Get("k")
	assert.False(t, ok)

	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(2), misses)
}

func TestLRUEvictsLeastRecentlyUsed(t *testing.T) {
	// Room for exactly two 10-byte values.
	c := NewLRU(20)

	c.Set("a", make([]byte, 10))
	c.Set("b", make([]byte, 10))

	// Touch a so b becomes the eviction candidate.
	_, ok := c.Get("a")
	require.True(t, ok)

	c.Set("c", make([]byte, 10))

	_, ok = c.Get("a")
	assert.True(t, ok)
	_, ok = c.Get("b")
	assert.False(t, ok, "least recently used entry must be evicted")
	_, ok = c.Get("c")
	assert.True(t, ok)
}

func TestLRUOversizedValueIsDropped(t *testing.T) {
	c := NewLRU(8)

	c.Set("big", make([]byte, 9))
	_, ok := c.Get("big")
	assert.False(t, ok, "values larger than the capacity are not cached")
}

func TestLRUUpdateResizes(t *testing.T) {
	c := NewLRU(20)

	c.Set("a", make([]byte, 5))
	c.Set("b", make([]byte, 5))

	// Growing a must evict to stay within capacity.
	c.Set("a", make([]byte, 18))

	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Len(t, v, 18)
	_, ok = c.Get("b")
	assert.False(t, ok)
}

func TestLRUManyEntries(t *testing.T) {
	c := NewLRU(100)

	for i := 0; i < 50; i++ {
		c.Set(fmt.Sprintf("k%d", i), make([]byte, 10))
	}

	// Only the last ten 10-byte entries fit.
	survivors := 0
	for i := 0; i < 50; i++ {
		if _, ok := c.Get(fmt.Sprintf("k%d", i)); ok {
			survivors++
			assert.GreaterOrEqual(t, i, 40)
		}
	}
	assert.Equal(t, 10, survivors)
}
