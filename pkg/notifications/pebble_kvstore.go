package notifications

import (
	"context"

	"github.com/cockroachdb/pebble"
)

// PebbleKVStore adapts a raw *pebble.DB to the KVStore interface, so the
// notification service can share the scheduler's metadata database
// instead of requiring a dedicated one. Keys are namespaced by the
// prefixes in storage.go, so collisions with the metadata store's own
// keys aren't a concern.
type PebbleKVStore struct {
	db *pebble.DB
}

// NewPebbleKVStore wraps an already-open PebbleDB handle.
func NewPebbleKVStore(db *pebble.DB) *PebbleKVStore {
	return &PebbleKVStore{db: db}
}

func (k *PebbleKVStore) Put(ctx context.Context, key, value []byte) error {
	return k.db.Set(key, value, pebble.Sync)
}

func (k *PebbleKVStore) Get(ctx context.Context, key []byte) ([]byte, error) {
	value, closer, err := k.db.Get(key)
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

func (k *PebbleKVStore) Delete(ctx context.Context, key []byte) error {
	return k.db.Delete(key, pebble.Sync)
}

func (k *PebbleKVStore) Iterate(ctx context.Context, prefix []byte, fn func(key, value []byte) bool) error {
	iter, err := k.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		key := make([]byte, len(iter.Key()))
		copy(key, iter.Key())
		value := make([]byte, len(iter.Value()))
		copy(value, iter.Value())

		if !fn(key, value) {
			break
		}
	}

	return iter.Error()
}

func prefixUpperBound(prefix []byte) []byte {
	if len(prefix) == 0 {
		return nil
	}
	upper := make([]byte, len(prefix))
	copy(upper, prefix)
	for i := len(upper) - 1; i >= 0; i-- {
		if upper[i] < 0xff {
			upper[i]++
			return upper[:i+1]
		}
	}
	return nil
}
