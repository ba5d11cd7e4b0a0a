package cache

import (
	"context"
	"errors"
	"sync"

	"github.com/kvgo-db/kvgo/internal/compress"
	"github.com/kvgo-db/kvgo/objstore"
)

// Distributed implements Cache on a shared object store so every process of
// a cluster sees the same cached values. Blobs are compressed on the way
// out; a hot in-process LRU sits in front of the store.
type Distributed struct {
	store objstore.Store
	comp  compress.Compressor
	local *LRU
}

// DistributedOption configures a Distributed cache.
type DistributedOption func(*Distributed)

// WithCompressor overrides the s2 default.
func WithCompressor(c compress.Compressor) DistributedOption {
	return func(d *Distributed) {
		if c != nil {
			d.comp = c
		}
	}
}

// WithLocalCapacity bounds the front LRU in bytes. Zero disables it.
func WithLocalCapacity(capacity int64) DistributedOption {
	return func(d *Distributed) {
		if capacity > 0 {
			d.local = NewLRU(capacity)
		} else {
			d.local = nil
		}
	}
}

// NewDistributed creates a distributed cache over the given object store.
func NewDistributed(store objstore.Store, optFns ...DistributedOption) *Distributed {
	d := &Distributed{
		store: store,
		comp:  compress.S2{},
		local: NewLRU(16 << 20),
	}
	for _, fn := range optFns {
		fn(d)
	}
	return d
}

func (d *Distributed) Get(key string) ([]byte, bool) {
	if d.local != nil {
		if v, ok := d.local.Get(key); ok {
			return v, true
		}
	}
	blob, err := d.store.Get(context.Background(), key)
	if err != nil {
		return nil, false
	}
	raw, err := d.comp.Decompress(blob)
	if err != nil {
		return nil, false
	}
	if d.local != nil {
		d.local.Set(key, raw)
	}
	return raw, true
}

func (d *Distributed) Set(key string, value []byte) {
	if d.local != nil {
		d.local.Set(key, value)
	}
	_ = d.store.Put(context.Background(), key, d.comp.Compress(value))
}

func (d *Distributed) Delete(key string) {
	if d.local != nil {
		d.local.Delete(key)
	}
	_ = d.store.Delete(context.Background(), key)
}

func (d *Distributed) Close() error { return nil }

// The process-wide distributed cache connection. Databases configured for
// DistributedCache resolve through it; creating such a database before
// OpenDistributed is an error.
var (
	distMu   sync.Mutex
	distCur  *Distributed
	distOpen bool
)

// OpenDistributed establishes the process-wide distributed cache. Calling
// it while one is open is an error.
func OpenDistributed(store objstore.Store, optFns ...DistributedOption) error {
	distMu.Lock()
	defer distMu.Unlock()
	if distOpen {
		return errors.New("distributed cache already open")
	}
	distCur = NewDistributed(store, optFns...)
	distOpen = true
	return nil
}

// CurrentDistributed returns the process-wide distributed cache, if open.
func CurrentDistributed() (Cache, bool) {
	distMu.Lock()
	defer distMu.Unlock()
	if !distOpen {
		return nil, false
	}
	return distCur, true
}

// CloseDistributed tears down the process-wide distributed cache.
func CloseDistributed() error {
	distMu.Lock()
	defer distMu.Unlock()
	if !distOpen {
		return nil
	}
	err := distCur.Close()
	distCur = nil
	distOpen = false
	return err
}
