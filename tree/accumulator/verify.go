package accumulator

import (
	"bytes"
	"errors"
	"fmt"
	"slices"

	"github.com/Bren2010/antani/crypto/commitments"
	"github.com/Bren2010/antani/tree/accumulator/math"
)

func mismatch(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrChecksumMismatch, fmt.Sprintf(format, args...))
}

// asMismatch reports arithmetic failures on untrusted nodes as tampering.
func asMismatch(err error) error {
	if err == nil || errors.Is(err, ErrChecksumMismatch) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrChecksumMismatch, err)
}

// checkNode checks that n has the shape its address calls for. Leaves must
// hash to their contents and carry a valid self-signature; every other node
// carries neither a key nor a signature.
func checkNode(n *Node) error {
	if math.IsLeaf(n.Address) {
		if err := n.checkLeafHash(); err != nil {
			return err
		} else if err := n.VerifySignature(); err != nil {
			return fmt.Errorf("%w: %w", ErrChecksumMismatch, err)
		}
		return nil
	} else if n.Kind != KindParent {
		return mismatch("node %d has kind %v", n.Address, n.Kind)
	} else if n.Key != nil || n.Signature != nil {
		return mismatch("node %d is signed", n.Address)
	}
	return nil
}

// identical returns true if every field of both nodes matches.
func identical(a, b *Node) bool {
	return a.equal(b) && a.Kind == b.Kind &&
		bytes.Equal(a.Key, b.Key) &&
		bytes.Equal(a.Signature, b.Signature)
}

// Verify checks the proof without access to the tree it came from. It
// recomputes the path from the leaf to its peak, and the root from the peaks,
// and returns ErrChecksumMismatch if anything disagrees with the claimed
// values. A leaf whose self-signature does not hold fails with both
// ErrChecksumMismatch and ErrInvalidSignature.
func (p *Proof) Verify() error {
	if p.Root == nil || p.Leaf == nil {
		return errors.New("incomplete proof")
	} else if p.Root.Kind != KindRoot {
		return mismatch("root has kind %v", p.Root.Kind)
	} else if !math.IsLeaf(p.Root.Address) {
		return mismatch("root address %d is odd", p.Root.Address)
	} else if p.Root.Key != nil || p.Root.Signature != nil {
		return mismatch("root is signed")
	} else if err := p.Leaf.checkLeafHash(); err != nil {
		return err
	} else if p.Leaf.Commitment != nil && commitments.Check(p.Leaf.Commitment) != nil {
		return mismatch("leaf commitment is not a curve point")
	} else if p.Leaf.Address >= p.Root.Address {
		return mismatch("leaf %d is outside of the tree", p.Leaf.Address)
	} else if len(p.Path)%2 != 0 {
		return mismatch("path has odd length %d", len(p.Path))
	}

	ids := math.FullRoots(p.Root.Address)
	if len(p.Peaks) != len(ids) {
		return mismatch("expected %d peaks, got %d", len(ids), len(p.Peaks))
	}
	for i, peak := range p.Peaks {
		if peak == nil || peak.Address != ids[i] {
			return mismatch("unexpected peak at position %d", i)
		} else if err := checkNode(peak); err != nil {
			return err
		}
	}

	node := p.Leaf
	for i := 0; i < len(p.Path); i += 2 {
		claimed, sibling := p.Path[i], p.Path[i+1]
		if claimed == nil || sibling == nil {
			return mismatch("missing path node at position %d", i)
		} else if !identical(claimed, node) {
			return mismatch("path node %d", claimed.Address)
		} else if sibling.Address != math.Sibling(node.Address) {
			return mismatch("node %d is not the sibling of %d", sibling.Address, node.Address)
		} else if err := checkNode(sibling); err != nil {
			return err
		}

		parent, err := combine(node, sibling, math.Parent(node.Address))
		if err != nil {
			return asMismatch(err)
		}
		node = parent
	}

	idx := slices.Index(ids, node.Address)
	if idx < 0 {
		return mismatch("path ends at %d, which is not a peak", node.Address)
	} else if !identical(p.Peaks[idx], node) {
		return mismatch("peak %d", node.Address)
	}

	cand, err := computeRoot(p.Root.Mode(), p.Peaks, p.Root.Address)
	if err != nil {
		return asMismatch(err)
	} else if !cand.equal(p.Root) {
		return mismatch("root")
	}

	if err := p.Leaf.VerifySignature(); err != nil {
		return fmt.Errorf("%w: %w", ErrChecksumMismatch, err)
	}
	return nil
}
