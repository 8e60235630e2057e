package accumulator

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"slices"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/Bren2010/antani/db"
	"github.com/Bren2010/antani/tree/accumulator/math"
)

const defaultCacheSize = 4096

// Proof is a proof that a leaf is included in a tree. Path holds pairs of
// (node, sibling) from the leaf up to, but excluding, the peak the leaf sits
// under.
type Proof struct {
	Root  *Node   `json:"root"`
	Peaks []*Node `json:"peaks"`
	Path  []*Node `json:"nodes"`
	Leaf  *Node   `json:"leaf"`
}

// Tree is a read-only view of an accumulator. It is safe for concurrent use.
type Tree struct {
	store db.NodeStore
	cache *lru.Cache[uint64, *Node]
}

// NewTree returns a view of the tree in store. Nodes are never modified once
// written, so they are cached without invalidation.
func NewTree(store db.NodeStore) (*Tree, error) {
	cache, err := lru.New[uint64, *Node](defaultCacheSize)
	if err != nil {
		return nil, err
	}
	return &Tree{store: store, cache: cache}, nil
}

// Root returns the root of the tree.
func (t *Tree) Root() (*Node, error) {
	_, raw, err := t.store.Last([]byte{nodePrefix})
	if errors.Is(err, db.ErrNotFound) {
		return nil, fmt.Errorf("%w: root", ErrNotFound)
	} else if err != nil {
		return nil, err
	}
	root, err := unmarshalNode(raw)
	if err != nil {
		return nil, err
	} else if root.Kind != KindRoot {
		return nil, fmt.Errorf("last node in database is not a root: %v", root.Kind)
	}
	return root, nil
}

// Mode returns whether the tree stores balances or commitments.
func (t *Tree) Mode() (Mode, error) {
	root, err := t.Root()
	if err != nil {
		return 0, err
	}
	return root.Mode(), nil
}

// Node returns the node at the given address.
func (t *Tree) Node(address uint64) (*Node, error) {
	if n, ok := t.cache.Get(address); ok {
		return n.Clone(), nil
	}

	raw, err := t.store.Get(nodeKey(address))
	if errors.Is(err, db.ErrNotFound) {
		return nil, fmt.Errorf("%w: node %d", ErrNotFound, address)
	} else if err != nil {
		return nil, err
	}
	n, err := unmarshalNode(raw)
	if err != nil {
		return nil, err
	} else if n.Address != address {
		return nil, fmt.Errorf("node stored at %d has address %d", address, n.Address)
	}

	t.cache.Add(address, n)
	return n.Clone(), nil
}

// Leaf returns the leaf bound to the given public key.
func (t *Tree) Leaf(key []byte) (*Node, error) {
	raw, err := t.store.Get(indexKey(key))
	if errors.Is(err, db.ErrNotFound) {
		return nil, fmt.Errorf("%w: leaf for key %x", ErrNotFound, key)
	} else if err != nil {
		return nil, err
	} else if len(raw) != 8 {
		return nil, fmt.Errorf("malformed index entry for key %x", key)
	}

	leaf, err := t.Node(binary.BigEndian.Uint64(raw))
	if err != nil {
		return nil, err
	} else if leaf.Kind != KindLeaf || !bytes.Equal(leaf.Key, key) {
		return nil, fmt.Errorf("index entry for key %x points to the wrong node", key)
	}
	return leaf, nil
}

// peaks fetches the peaks of the tree with the given root concurrently. It
// returns once every fetch has completed, with the first error encountered.
func (t *Tree) peaks(root *Node) ([]*Node, error) {
	ids := math.FullRoots(root.Address)
	out := make([]*Node, len(ids))

	var g errgroup.Group
	for i, id := range ids {
		g.Go(func() error {
			peak, err := t.Node(id)
			if err != nil {
				return err
			}
			out[i] = peak
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Proof returns a proof of inclusion for the leaf bound to key. The proof is
// checked against the stored root before it is returned.
func (t *Tree) Proof(key []byte) (*Proof, error) {
	root, err := t.Root()
	if err != nil {
		return nil, err
	}
	peaks, err := t.peaks(root)
	if err != nil {
		return nil, err
	}
	ids := math.FullRoots(root.Address)

	leaf, err := t.Leaf(key)
	if err != nil {
		return nil, err
	} else if err := leaf.checkLeafHash(); err != nil {
		return nil, err
	} else if err := leaf.VerifySignature(); err != nil {
		return nil, err
	}

	// Walk up from the leaf until reaching one of the peaks, recomputing each
	// parent from the node and its sibling.
	path := make([]*Node, 0)
	node := leaf
	for {
		if i := slices.Index(ids, node.Address); i >= 0 {
			peaks[i] = node
			break
		} else if math.RightSpan(node.Address) >= root.Address {
			return nil, fmt.Errorf("%w: node %d is outside of the tree", ErrChecksumMismatch, node.Address)
		}

		sibling, err := t.Node(math.Sibling(node.Address))
		if err != nil {
			return nil, err
		}
		path = append(path, node, sibling)

		node, err = combine(node, sibling, math.Parent(node.Address))
		if err != nil {
			return nil, err
		}
	}

	cand, err := computeRoot(root.Mode(), peaks, root.Address)
	if err != nil {
		return nil, err
	} else if !cand.equal(root) {
		return nil, fmt.Errorf("%w: root", ErrChecksumMismatch)
	}

	return &Proof{Root: root, Peaks: peaks, Path: path, Leaf: leaf}, nil
}
