package engine

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/kvgo-db/kvgo/cache"
	"github.com/kvgo-db/kvgo/cluster"
	"github.com/kvgo-db/kvgo/search"
	"github.com/kvgo-db/kvgo/vector"
	"github.com/kvgo-db/kvgo/wire"
)

// database is the engine-side descriptor behind a Database handle. The
// client only ever holds its UUID; configuration is captured at creation and
// never travels back across the boundary.
type database struct {
	id   uuid.UUID
	eng  *Engine
	opts wire.DatabaseOptions

	mu       sync.Mutex
	btrees   map[string]*committedStore
	vectors  map[string]*vector.Store
	models   map[string]*modelStore
	searches map[string]*search.MemoryIndex

	disk *diskStore // nil for purely in-memory databases
}

func (e *Engine) newDatabase(opts wire.DatabaseOptions) (*database, error) {
	if opts.Type == wire.Clustered {
		if _, ok := cluster.Current(); !ok {
			return nil, ErrClusterNotOpen
		}
	}
	if opts.CacheType == wire.DistributedCache {
		if _, ok := cache.CurrentDistributed(); !ok {
			return nil, ErrCacheNotOpen
		}
	}
	db := &database{
		eng:      e,
		opts:     opts,
		btrees:   make(map[string]*committedStore),
		vectors:  make(map[string]*vector.Store),
		models:   make(map[string]*modelStore),
		searches: make(map[string]*search.MemoryIndex),
	}
	if len(opts.StoresFolders) > 0 {
		disk, err := openDiskStore(opts.StoresFolders[0], e.codec)
		if err != nil {
			return nil, fmt.Errorf("open stores folder: %w", err)
		}
		db.disk = disk
	}
	db.id = e.databases.add(db)
	return db, nil
}

// btreeStore resolves (or creates/reopens) the committed store behind a
// NewBtree/OpenBtree action.
func (db *database) btreeStore(opts wire.BtreeOptions, create bool) (*committedStore, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if cs, ok := db.btrees[opts.Name]; ok {
		if create {
			return nil, fmt.Errorf("btree %q already exists", opts.Name)
		}
		return cs, nil
	}

	if !create {
		if db.disk != nil {
			cs, err := db.disk.loadStore(opts.Name)
			if err != nil {
				return nil, err
			}
			if cs != nil {
				db.btrees[opts.Name] = cs
				return cs, nil
			}
		}
		return nil, fmt.Errorf("btree %q: store not found", opts.Name)
	}

	cs := newCommittedStore(opts)
	if db.disk != nil {
		if err := db.disk.saveStoreInfo(opts); err != nil {
			return nil, err
		}
	}
	db.btrees[opts.Name] = cs
	return cs, nil
}

func (db *database) removeBtree(name string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	delete(db.btrees, name)
	if db.disk != nil {
		return db.disk.dropStore(name)
	}
	return nil
}

func (db *database) vectorStore(name string) *vector.Store {
	db.mu.Lock()
	defer db.mu.Unlock()
	vs, ok := db.vectors[name]
	if !ok {
		vs = vector.NewStore()
		db.vectors[name] = vs
	}
	return vs
}

func (db *database) modelStore(name string) *modelStore {
	db.mu.Lock()
	defer db.mu.Unlock()
	ms, ok := db.models[name]
	if !ok {
		ms = newModelStore()
		db.models[name] = ms
	}
	return ms
}

func (db *database) searchIndex(name string) *search.MemoryIndex {
	db.mu.Lock()
	defer db.mu.Unlock()
	si, ok := db.searches[name]
	if !ok {
		si = search.NewMemoryIndex()
		db.searches[name] = si
	}
	return si
}

// valueCache returns the L2 value cache configured for this database, or nil.
func (db *database) valueCache() cache.Cache {
	switch db.opts.CacheType {
	case wire.InProcessCache:
		return db.eng.processCache
	case wire.DistributedCache:
		c, _ := cache.CurrentDistributed()
		return c
	default:
		return nil
	}
}

func (db *database) cacheKey(store, id string) string {
	return db.id.String() + "/" + store + "/" + id
}

// cachedValue reads an offloaded value blob through the L2 cache.
func (db *database) cachedValue(store, id string) ([]byte, bool) {
	c := db.valueCache()
	if c == nil {
		return nil, false
	}
	return c.Get(db.cacheKey(store, id))
}
