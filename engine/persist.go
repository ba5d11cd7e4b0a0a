package engine

import (
	"fmt"
	"os"
	"path/filepath"

	bolt "go.etcd.io/bbolt"

	"github.com/kvgo-db/kvgo/codec"
	"github.com/kvgo-db/kvgo/internal/compress"
	"github.com/kvgo-db/kvgo/wire"
)

const diskFileName = "kvgo.db"

var catalogBucket = []byte("_stores")

// diskStore persists committed B-tree stores of one database into a single
// bbolt file under the configured stores folder. Bucket keys are the
// order-preserving key encoding plus the item id, so a bucket cursor walks
// in index order.
type diskStore struct {
	db    *bolt.DB
	codec codec.Codec
	comp  compress.Compressor
}

func openDiskStore(folder string, c codec.Codec) (*diskStore, error) {
	if err := os.MkdirAll(folder, 0o755); err != nil {
		return nil, err
	}
	db, err := bolt.Open(filepath.Join(folder, diskFileName), 0o600, nil)
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(catalogBucket)
		return err
	}); err != nil {
		db.Close()
		return nil, err
	}
	return &diskStore{db: db, codec: c, comp: compress.S2{}}, nil
}

func (d *diskStore) close() error {
	return d.db.Close()
}

func entriesBucket(name string) []byte { return []byte("store:" + name) }
func valuesBucket(name string) []byte  { return []byte("values:" + name) }

// saveStoreInfo records the store's configuration in the catalog and makes
// its buckets exist.
func (d *diskStore) saveStoreInfo(opts wire.BtreeOptions) error {
	opts.TransactionID = ""
	blob, err := d.codec.Marshal(opts)
	if err != nil {
		return err
	}
	return d.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(catalogBucket).Put([]byte(opts.Name), blob); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(entriesBucket(opts.Name)); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(valuesBucket(opts.Name))
		return err
	})
}

// loadStore rebuilds a committed store from disk. Returns (nil, nil) when
// the catalog has no such store.
func (d *diskStore) loadStore(name string) (*committedStore, error) {
	var cs *committedStore
	err := d.db.View(func(tx *bolt.Tx) error {
		blob := tx.Bucket(catalogBucket).Get([]byte(name))
		if blob == nil {
			return nil
		}
		var opts wire.BtreeOptions
		if err := d.codec.Unmarshal(blob, &opts); err != nil {
			return fmt.Errorf("decode catalog entry %q: %w", name, err)
		}
		cs = newCommittedStore(opts)

		if b := tx.Bucket(entriesBucket(name)); b != nil {
			if err := b.ForEach(func(_, v []byte) error {
				raw, err := d.comp.Decompress(v)
				if err != nil {
					return err
				}
				var it wire.Item
				if err := d.codec.Unmarshal(raw, &it); err != nil {
					return err
				}
				cs.tree.ReplaceOrInsert(&entry{key: it.Key, value: it.Value, id: it.ID})
				return nil
			}); err != nil {
				return err
			}
		}
		if b := tx.Bucket(valuesBucket(name)); b != nil {
			return b.ForEach(func(k, v []byte) error {
				raw, err := d.comp.Decompress(v)
				if err != nil {
					return err
				}
				cs.values[string(k)] = append([]byte(nil), raw...)
				return nil
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cs, nil
}

func (d *diskStore) dropStore(name string) error {
	return d.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(catalogBucket).Delete([]byte(name)); err != nil {
			return err
		}
		for _, b := range [][]byte{entriesBucket(name), valuesBucket(name)} {
			if err := tx.DeleteBucket(b); err != nil && err != bolt.ErrBucketNotFound {
				return err
			}
		}
		return nil
	})
}

// applyOps writes one commit's replayed ops. Caller holds cs.mu, so reading
// the merged value segment here is safe.
func (d *diskStore) applyOps(cs *committedStore, ops []writeOp) error {
	return d.db.Update(func(tx *bolt.Tx) error {
		eb, err := tx.CreateBucketIfNotExists(entriesBucket(cs.name))
		if err != nil {
			return err
		}
		vb, err := tx.CreateBucketIfNotExists(valuesBucket(cs.name))
		if err != nil {
			return err
		}
		for _, op := range ops {
			key := append(cs.cmp.orderKey(op.ent.key), op.ent.id...)
			if op.del {
				if err := eb.Delete(key); err != nil {
					return err
				}
				if err := vb.Delete([]byte(op.ent.id)); err != nil {
					return err
				}
				continue
			}
			raw, err := d.codec.Marshal(wire.Item{Key: op.ent.key, Value: op.ent.value, ID: op.ent.id})
			if err != nil {
				return err
			}
			if err := eb.Put(key, d.comp.Compress(raw)); err != nil {
				return err
			}
			if !cs.opts.IsValueDataInNodeSegment {
				if blob, ok := cs.values[op.ent.id]; ok {
					if err := vb.Put([]byte(op.ent.id), d.comp.Compress(blob)); err != nil {
						return err
					}
				}
			}
		}
		return nil
	})
}
