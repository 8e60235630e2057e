// Package memory provides in-memory implementations of the database interfaces.
package memory

import (
	"bytes"
	"errors"
	"sort"
	"sync"

	"github.com/Bren2010/antani/db"
)

func dup(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

type write struct {
	key, value []byte
}

// NodeStore is an in-memory db.NodeStore. Data is exported so tests can
// tamper with stored records.
type NodeStore struct {
	mu      sync.RWMutex
	Data    map[string][]byte
	pending []write

	// Gets counts the calls to Get, for tests that check caching.
	Gets int
}

var _ db.NodeStore = (*NodeStore)(nil)

func NewNodeStore() *NodeStore {
	return &NodeStore{Data: make(map[string][]byte)}
}

func (ns *NodeStore) Get(key []byte) ([]byte, error) {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	ns.Gets++
	val, ok := ns.Data[string(key)]
	if !ok {
		return nil, db.ErrNotFound
	}
	return dup(val), nil
}

// keys returns the sorted keys with the given prefix. The caller must hold
// the lock.
func (ns *NodeStore) keys(prefix []byte) []string {
	keys := make([]string, 0)
	for key := range ns.Data {
		if bytes.HasPrefix([]byte(key), prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

func (ns *NodeStore) Last(prefix []byte) ([]byte, []byte, error) {
	ns.mu.RLock()
	defer ns.mu.RUnlock()

	keys := ns.keys(prefix)
	if len(keys) == 0 {
		return nil, nil, db.ErrNotFound
	}
	last := keys[len(keys)-1]
	return []byte(last), dup(ns.Data[last]), nil
}

func (ns *NodeStore) Scan(prefix []byte, fn func(key, value []byte) error) error {
	ns.mu.RLock()
	defer ns.mu.RUnlock()

	for _, key := range ns.keys(prefix) {
		if err := fn([]byte(key), dup(ns.Data[key])); err != nil {
			return err
		}
	}
	return nil
}

func (ns *NodeStore) Put(key, value []byte) error {
	if value == nil {
		return errors.New("unable to store nil value")
	}
	ns.mu.Lock()
	defer ns.mu.Unlock()

	ns.pending = append(ns.pending, write{dup(key), dup(value)})
	return nil
}

func (ns *NodeStore) Commit() error {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	for _, w := range ns.pending {
		ns.Data[string(w.key)] = w.value
	}
	ns.pending = nil
	return nil
}

func (ns *NodeStore) Close() error { return nil }
