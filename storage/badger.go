package storage

import (
	"context"
	"encoding/json"
	"errors"
	"sort"

	"github.com/dgraph-io/badger/v4"
)

const badgerKeyPrefix = "rec/"

// badgerBackend implements Backend on an embedded BadgerDB, a
// log-structured key-value store with low-latency access. Records are
// stored as JSON values under "rec/<id>"; filtering and ordering happen
// in memory over a prefix scan, matching the memory backend's semantics.
type badgerBackend struct {
	db *badger.DB
}

// NewBadgerBackend opens an embedded BadgerDB at path. An empty path opens
// an in-memory database with no disk persistence, useful for testing.
// Badger's internal logging is disabled; the engine reports storage
// failures through its own observer instead.
func NewBadgerBackend(path string) (Backend, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, opError("badger", "open", err)
	}
	return &badgerBackend{db: db}, nil
}

func badgerKey(id string) []byte {
	return []byte(badgerKeyPrefix + id)
}

func (b *badgerBackend) Save(_ context.Context, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return opError("badger", "save", err)
	}
	err = b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(badgerKey(rec.ID), data)
	})
	if err != nil {
		return opError("badger", "save", err)
	}
	return nil
}

func (b *badgerBackend) Load(_ context.Context, id string) (Record, error) {
	var rec Record
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Record{}, opError("badger", "load", ErrNotFound)
	}
	if err != nil {
		return Record{}, opError("badger", "load", err)
	}
	return rec, nil
}

func (b *badgerBackend) Delete(_ context.Context, id string) (bool, error) {
	key := badgerKey(id)
	existed := false
	err := b.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		existed = true
		return txn.Delete(key)
	})
	if err != nil {
		return false, opError("badger", "delete", err)
	}
	return existed, nil
}

func (b *badgerBackend) List(_ context.Context, f Filter) ([]Record, error) {
	var matched []Record
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(badgerKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var rec Record
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				return err
			}
			if f.Matches(rec) {
				matched = append(matched, rec)
			}
		}
		return nil
	})
	if err != nil {
		return nil, opError("badger", "list", err)
	}

	sort.Slice(matched, func(i, j int) bool {
		if f.Order == OrderNewestFirst {
			return Older(matched[j], matched[i])
		}
		return Older(matched[i], matched[j])
	})
	if f.Limit > 0 && len(matched) > f.Limit {
		matched = matched[:f.Limit]
	}
	return matched, nil
}

func (b *badgerBackend) Exists(_ context.Context, id string) (bool, error) {
	exists := false
	err := b.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(badgerKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		exists = true
		return nil
	})
	if err != nil {
		return false, opError("badger", "exists", err)
	}
	return exists, nil
}

func (b *badgerBackend) Close() error {
	return b.db.Close()
}
