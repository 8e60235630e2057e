// Package db implements database wrappers that match a common interface.
package db

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a key is not present in the database.
var ErrNotFound = errors.New("key not found")

// NodeStore is the interface an accumulator uses to communicate with its
// database. It is a sorted mapping from byte-string keys to values.
//
// Writes are buffered until Commit is called, and an accumulator is written
// exactly once, in the order its nodes are produced. After that the store is
// only read, so implementations need not support concurrent writers, but
// must support concurrent readers.
type NodeStore interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(key []byte) ([]byte, error)
	// Last returns the lexicographically greatest key with the given prefix
	// and its value, or ErrNotFound if there is none.
	Last(prefix []byte) (key, value []byte, err error)
	// Scan calls fn with every committed key that has the given prefix, in
	// ascending order, stopping at the first error fn returns. The arguments
	// are only valid for the duration of the call.
	Scan(prefix []byte, fn func(key, value []byte) error) error

	Put(key, value []byte) error
	Commit() error

	Close() error
}

// Open opens the store of the given type at path. Type is either "leveldb"
// or "pebble".
func Open(kind, path string) (NodeStore, error) {
	switch kind {
	case "leveldb", "":
		return NewLDBNodeStore(path)
	case "pebble":
		return NewPebbleNodeStore(path)
	default:
		return nil, fmt.Errorf("unknown store type: %q", kind)
	}
}

func dup(in []byte) []byte {
	if in == nil {
		return nil
	}
	out := make([]byte, len(in))
	copy(out, in)
	return out
}
