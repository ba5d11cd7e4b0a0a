package wire

import (
	"sync/atomic"
)

// Buffer carries one result payload across the boundary. The engine owns the
// backing memory until the receiver calls Release, which must happen exactly
// once per non-nil buffer: forgetting it leaks engine accounting, releasing
// twice reports a fault through the allocator.
type Buffer struct {
	data     []byte
	released atomic.Bool
	alloc    *BufferAllocator
}

// Bytes returns the payload. The slice is only valid before Release.
func (b *Buffer) Bytes() []byte {
	if b == nil {
		return nil
	}
	return b.data
}

// String copies the payload into a client-owned string.
func (b *Buffer) String() string {
	if b == nil {
		return ""
	}
	return string(b.data)
}

// Release returns the buffer to the engine. Releasing nil is a no-op so
// callers can release unconditionally on every path.
func (b *Buffer) Release() {
	if b == nil {
		return
	}
	if b.released.Swap(true) {
		if b.alloc != nil {
			b.alloc.doubleReleases.Add(1)
		}
		return
	}
	if b.alloc != nil {
		b.alloc.outstanding.Add(-1)
	}
	b.data = nil
}

// BufferAllocator tracks every buffer the engine hands out. Outstanding and
// double-release counters make leaks and double-frees observable in tests
// instead of silently corrupting the process.
type BufferAllocator struct {
	outstanding    atomic.Int64
	doubleReleases atomic.Int64
}

// NewBufferAllocator returns an allocator with zeroed counters.
func NewBufferAllocator() *BufferAllocator {
	return &BufferAllocator{}
}

// Bytes wraps raw bytes in a tracked buffer. A nil or empty payload still
// allocates: emptiness is meaningful on the wire (legitimate absence).
func (a *BufferAllocator) Bytes(data []byte) *Buffer {
	a.outstanding.Add(1)
	return &Buffer{data: data, alloc: a}
}

// String wraps a string payload in a tracked buffer.
func (a *BufferAllocator) String(s string) *Buffer {
	return a.Bytes([]byte(s))
}

// Outstanding reports buffers handed out and not yet released.
func (a *BufferAllocator) Outstanding() int64 {
	return a.outstanding.Load()
}

// DoubleReleases reports how many buffers were released more than once.
func (a *BufferAllocator) DoubleReleases() int64 {
	return a.doubleReleases.Load()
}
