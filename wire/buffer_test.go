package wire

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferReleaseExactlyOnce(t *testing.T) {
	alloc := NewBufferAllocator()

	buf := alloc.String("hello")
	assert.Equal(t, int64(1), alloc.Outstanding())
	assert.Equal(t, "hello", buf.String())
	assert.Equal(t, []byte("hello"), buf.Bytes())

	buf.Release()
	assert.Equal(t, int64(0), alloc.Outstanding())
	assert.Equal(t, int64(0), alloc.DoubleReleases())

	buf.Release()
	assert.Equal(t, int64(0), alloc.Outstanding(), "double release must not go negative")
	assert.Equal(t, int64(1), alloc.DoubleReleases())
}

func TestBufferNilSafe(t *testing.T) {
	var buf *Buffer
	assert.Nil(t, buf.Bytes())
	assert.Equal(t, "", buf.String())
	assert.NotPanics(t, func() { buf.Release() })
}

func TestBufferEmptyPayloadIsTracked(t *testing.T) {
	alloc := NewBufferAllocator()

	buf := alloc.Bytes(nil)
	require.NotNil(t, buf)
	assert.Equal(t, int64(1), alloc.Outstanding(), "empty payloads still count")
	buf.Release()
	assert.Equal(t, int64(0), alloc.Outstanding())
}

func TestBufferConcurrentRelease(t *testing.T) {
	alloc := NewBufferAllocator()
	buf := alloc.String("contended")

	const goroutines = 8
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			buf.Release()
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(0), alloc.Outstanding())
	assert.Equal(t, int64(goroutines-1), alloc.DoubleReleases())
}
