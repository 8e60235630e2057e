package db

import (
	"errors"

	"github.com/cockroachdb/pebble"
)

// pebbleNodeStore implements the NodeStore interface over a Pebble database.
type pebbleNodeStore struct {
	conn  *pebble.DB
	batch *pebble.Batch
}

// NewPebbleNodeStore opens or creates the Pebble database in dir.
func NewPebbleNodeStore(dir string) (NodeStore, error) {
	conn, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &pebbleNodeStore{conn: conn, batch: conn.NewBatch()}, nil
}

func (ps *pebbleNodeStore) Get(key []byte) ([]byte, error) {
	value, closer, err := ps.conn.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, err
	}
	defer closer.Close()
	return dup(value), nil
}

// upperBound returns the smallest key greater than every key with the given
// prefix, or nil if there is none.
func upperBound(prefix []byte) []byte {
	end := dup(prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

func (ps *pebbleNodeStore) Last(prefix []byte) ([]byte, []byte, error) {
	iter, err := ps.conn.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: upperBound(prefix),
	})
	if err != nil {
		return nil, nil, err
	}
	defer iter.Close()

	if !iter.Last() {
		if err := iter.Error(); err != nil {
			return nil, nil, err
		}
		return nil, nil, ErrNotFound
	}
	return dup(iter.Key()), dup(iter.Value()), nil
}

func (ps *pebbleNodeStore) Scan(prefix []byte, fn func(key, value []byte) error) error {
	iter, err := ps.conn.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: upperBound(prefix),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		if err := fn(iter.Key(), iter.Value()); err != nil {
			return err
		}
	}
	return iter.Error()
}

func (ps *pebbleNodeStore) Put(key, value []byte) error {
	return ps.batch.Set(key, value, nil)
}

func (ps *pebbleNodeStore) Commit() error {
	if err := ps.batch.Commit(pebble.Sync); err != nil {
		return err
	}
	ps.batch = ps.conn.NewBatch()
	return nil
}

func (ps *pebbleNodeStore) Close() error {
	if err := ps.batch.Close(); err != nil {
		return err
	}
	return ps.conn.Close()
}
