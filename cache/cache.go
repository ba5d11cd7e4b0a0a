// Package cache provides the L2 value caches: an in-process LRU and a
// distributed cache backed by an object store.
package cache

// Cache is a byte-blob cache keyed by string.
type Cache interface {
	// Get returns the cached blob, if present.
	Get(key string) ([]byte, bool)

	// Set caches a blob. Failure to cache is silent; a cache miss is always
	// recoverable from the source of truth.
	Set(key string, value []byte)

	// Delete drops a key.
	Delete(key string)

	// Close releases cache resources.
	Close() error
}
