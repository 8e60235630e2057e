package accumulator

import (
	"bytes"
	"crypto/ed25519"
	"errors"
	"fmt"
	"iter"

	"github.com/Bren2010/antani/crypto/commitments"
	"github.com/Bren2010/antani/crypto/hashing"
	"github.com/Bren2010/antani/crypto/signing"
	"github.com/Bren2010/antani/db"
	"github.com/Bren2010/antani/tree/accumulator/math"
)

var (
	// ErrClosed is returned when a Builder is used after Close.
	ErrClosed = errors.New("builder is closed")
	// ErrDuplicateKey is returned when two leaves are bound to the same key.
	ErrDuplicateKey = errors.New("leaf key is already in use")
)

// LeafInput is a balance to add to the tree, along with the dedicated key pair
// the new leaf is bound to. Only the public key is retained.
type LeafInput struct {
	Balance   int64
	Key       []byte
	SecretKey ed25519.PrivateKey
}

// Sink receives the output of a Builder, in order.
type Sink interface {
	PutNode(n *Node) error
	PutIndex(key []byte, address uint64) error
}

// Builder constructs a tree in a single left-to-right pass over its leaves.
// Only the current peaks are kept in memory.
type Builder struct {
	mode Mode
	sink Sink

	n      uint64  // Number of leaves added so far.
	peaks  []*Node // Roots of the maximal perfect subtrees, by address.
	opens  []byte  // Accumulated decommitment, in hiding mode.
	keys   map[string]struct{}
	closed bool
}

func NewBuilder(mode Mode, sink Sink) *Builder {
	b := &Builder{mode: mode, sink: sink, peaks: make([]*Node, 0), keys: make(map[string]struct{})}
	if mode == ModeHiding {
		b.opens, _ = commitments.Accumulate()
	}
	return b
}

// Add appends a new leaf to the tree and emits it, its index entry, and every
// parent node it completes.
func (b *Builder) Add(in LeafInput) error {
	if b.closed {
		return ErrClosed
	} else if len(in.Key) != signing.PublicKeySize {
		return fmt.Errorf("leaf key is wrong size: %v", len(in.Key))
	} else if len(in.SecretKey) != signing.SecretKeySize {
		return fmt.Errorf("leaf secret key is wrong size: %v", len(in.SecretKey))
	} else if !bytes.Equal(in.SecretKey.Public().(ed25519.PublicKey), in.Key) {
		return errors.New("leaf secret key does not match public key")
	} else if _, ok := b.keys[string(in.Key)]; ok {
		return fmt.Errorf("%w: %x", ErrDuplicateKey, in.Key)
	}

	leaf := &Node{
		Kind:    KindLeaf,
		Address: math.Leaf(b.n),
		Key:     bytes.Clone(in.Key),
	}
	if b.mode == ModeHiding {
		com, dec, err := commitments.Commit(in.Balance)
		if err != nil {
			return err
		}
		opens, err := commitments.Accumulate(b.opens, dec)
		if err != nil {
			return err
		}
		leaf.Commitment, b.opens = com, opens
	} else {
		leaf.Balance = in.Balance
	}
	leaf.Hash = hashing.HashLeaf(leaf.value(), leaf.Key)
	leaf.Signature = signing.Sign(in.SecretKey, leaf.Hash)

	if err := b.sink.PutNode(leaf); err != nil {
		return err
	} else if err := b.sink.PutIndex(leaf.Key, leaf.Address); err != nil {
		return err
	}
	b.keys[string(leaf.Key)] = struct{}{}
	b.n++

	// Merge the two right-most peaks for as long as they are siblings. This
	// happens once for every trailing 1-bit of the previous leaf count.
	b.peaks = append(b.peaks, leaf)
	for len(b.peaks) > 1 {
		left, right := b.peaks[len(b.peaks)-2], b.peaks[len(b.peaks)-1]
		parent := math.Parent(left.Address)
		if parent != math.Parent(right.Address) {
			break
		}

		node, err := combine(left, right, parent)
		if err != nil {
			return err
		} else if err := b.sink.PutNode(node); err != nil {
			return err
		}
		b.peaks = append(b.peaks[:len(b.peaks)-2], node)
	}

	return nil
}

// Close emits the root of the tree and returns it. In hiding mode, it also
// returns the decommitment that opens the root's commitment to the total
// balance; it is never given to the Sink.
func (b *Builder) Close() (*Node, []byte, error) {
	if b.closed {
		return nil, nil, ErrClosed
	}
	b.closed = true

	root, err := computeRoot(b.mode, b.peaks, math.Leaf(b.n))
	if err != nil {
		return nil, nil, err
	} else if err := b.sink.PutNode(root); err != nil {
		return nil, nil, err
	}
	return root, b.opens, nil
}

// Result is the terminal output of a Stream.
type Result struct {
	Root         *Node
	Decommitment []byte
	Err          error
}

// Stream builds a tree from the leaves received on in, and delivers exactly
// one Result once in is closed. If an error occurs, the rest of in is drained
// and discarded.
func Stream(mode Mode, in <-chan LeafInput, sink Sink) <-chan Result {
	out := make(chan Result, 1)

	go func() {
		defer close(out)

		b := NewBuilder(mode, sink)
		var err error
		for leaf := range in {
			if err != nil {
				continue
			}
			err = b.Add(leaf)
		}
		if err != nil {
			out <- Result{Err: err}
			return
		}
		root, opens, err := b.Close()
		out <- Result{Root: root, Decommitment: opens, Err: err}
	}()

	return out
}

// storeSink writes a Builder's output to a database.
type storeSink struct {
	store db.NodeStore
}

func (s storeSink) PutNode(n *Node) error {
	raw, err := marshalNode(n)
	if err != nil {
		return err
	}
	return s.store.Put(nodeKey(n.Address), raw)
}

func (s storeSink) PutIndex(key []byte, address uint64) error {
	return s.store.Put(indexKey(key), hashing.EncodeAddress(address))
}

// NewStoreSink returns a Sink that writes to store. The caller must Commit
// the store once the Builder is closed.
func NewStoreSink(store db.NodeStore) Sink {
	return storeSink{store: store}
}

// Write builds a tree from leaves into an empty store and commits it.
func Write(store db.NodeStore, mode Mode, leaves iter.Seq[LeafInput]) (*Node, []byte, error) {
	if _, _, err := store.Last([]byte{nodePrefix}); err == nil {
		return nil, nil, errors.New("store already contains a tree")
	} else if !errors.Is(err, db.ErrNotFound) {
		return nil, nil, err
	}

	b := NewBuilder(mode, NewStoreSink(store))
	for leaf := range leaves {
		if err := b.Add(leaf); err != nil {
			return nil, nil, err
		}
	}
	root, opens, err := b.Close()
	if err != nil {
		return nil, nil, err
	} else if err := store.Commit(); err != nil {
		return nil, nil, err
	}
	return root, opens, nil
}
