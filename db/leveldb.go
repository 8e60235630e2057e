package db

import (
	"errors"

	"github.com/syndtr/goleveldb/leveldb"
	lerrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// ldbNodeStore implements the NodeStore interface over a LevelDB database. It
// handles batching writes between commits transparently.
type ldbNodeStore struct {
	conn  *leveldb.DB
	batch *leveldb.Batch
}

// NewLDBNodeStore opens or creates the LevelDB database at file, recovering it
// if it is corrupted.
func NewLDBNodeStore(file string) (NodeStore, error) {
	conn, err := leveldb.OpenFile(file, nil)
	if lerrors.IsCorrupted(err) {
		conn, err = leveldb.RecoverFile(file, nil)
	}
	if err != nil {
		return nil, err
	}
	return &ldbNodeStore{conn: conn, batch: new(leveldb.Batch)}, nil
}

func (ldb *ldbNodeStore) Get(key []byte) ([]byte, error) {
	value, err := ldb.conn.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, err
	}
	return value, nil
}

func (ldb *ldbNodeStore) Last(prefix []byte) ([]byte, []byte, error) {
	iter := ldb.conn.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()

	if !iter.Last() {
		if err := iter.Error(); err != nil {
			return nil, nil, err
		}
		return nil, nil, ErrNotFound
	}
	return dup(iter.Key()), dup(iter.Value()), nil
}

func (ldb *ldbNodeStore) Scan(prefix []byte, fn func(key, value []byte) error) error {
	iter := ldb.conn.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()

	for iter.Next() {
		if err := fn(iter.Key(), iter.Value()); err != nil {
			return err
		}
	}
	return iter.Error()
}

func (ldb *ldbNodeStore) Put(key, value []byte) error {
	ldb.batch.Put(key, value)
	return nil
}

func (ldb *ldbNodeStore) Commit() error {
	if err := ldb.conn.Write(ldb.batch, nil); err != nil {
		return err
	}
	ldb.batch = new(leveldb.Batch)
	return nil
}

func (ldb *ldbNodeStore) Close() error {
	return ldb.conn.Close()
}
