// Package accumulator implements an append-only Merkle Mountain Range over
// account balances, capable of producing proofs that a balance is included in
// a published total.
//
// Every node carries the sum of the balances below it, or in hiding mode a
// Pedersen commitment to that sum, so the root commits to the total of all
// leaves. Each leaf is bound to its own public key and signed by the matching
// secret key, which is handed to the owner of the balance.
package accumulator

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/Bren2010/antani/crypto/commitments"
	"github.com/Bren2010/antani/crypto/hashing"
	"github.com/Bren2010/antani/crypto/signing"
)

var (
	// ErrNotFound is returned when a requested node, leaf or root does not
	// exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidSignature is returned when a leaf's self-signature does not
	// verify.
	ErrInvalidSignature = errors.New("invalid signature")
	// ErrChecksumMismatch is returned when recomputed hashes or balances do
	// not match the stored ones.
	ErrChecksumMismatch = errors.New("checksum mismatch")
)

// Mode is the way balances are represented in a tree.
type Mode int

const (
	// ModePlain stores balances in the clear.
	ModePlain Mode = iota
	// ModeHiding stores Pedersen commitments instead of balances.
	ModeHiding
)

func (m Mode) String() string {
	switch m {
	case ModePlain:
		return "plain"
	case ModeHiding:
		return "hiding"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Kind is the type of a node.
type Kind uint8

const (
	KindLeaf Kind = iota + 1
	KindParent
	KindRoot
)

func (k Kind) String() string {
	switch k {
	case KindLeaf:
		return "leaf"
	case KindParent:
		return "parent"
	case KindRoot:
		return "root"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

func (k Kind) MarshalText() ([]byte, error) {
	switch k {
	case KindLeaf, KindParent, KindRoot:
		return []byte(k.String()), nil
	default:
		return nil, fmt.Errorf("unknown node kind: %d", uint8(k))
	}
}

func (k *Kind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "leaf":
		*k = KindLeaf
	case "parent":
		*k = KindParent
	case "root":
		*k = KindRoot
	default:
		return fmt.Errorf("unknown node kind: %q", text)
	}
	return nil
}

// Node is a single entry of the tree. Leaves additionally carry the public key
// they are bound to and a signature of their hash by that key. In hiding mode
// Balance is always zero and Commitment is set.
type Node struct {
	Kind       Kind   `json:"kind" cbor:"1,keyasint"`
	Address    uint64 `json:"index" cbor:"2,keyasint"`
	Hash       []byte `json:"hash" cbor:"3,keyasint"`
	Balance    int64  `json:"balance" cbor:"4,keyasint"`
	Commitment []byte `json:"commitment,omitempty" cbor:"5,keyasint,omitempty"`
	Key        []byte `json:"key,omitempty" cbor:"6,keyasint,omitempty"`
	Signature  []byte `json:"signature,omitempty" cbor:"7,keyasint,omitempty"`
}

// Mode returns the mode of the tree the node belongs to.
func (n *Node) Mode() Mode {
	if n.Commitment != nil {
		return ModeHiding
	}
	return ModePlain
}

// value returns the encoded balance or commitment that is hashed.
func (n *Node) value() []byte {
	if n.Commitment != nil {
		return n.Commitment
	}
	return hashing.EncodeBalance(n.Balance)
}

func (n *Node) peak() hashing.Peak {
	return hashing.Peak{Address: n.Address, Value: n.value(), Hash: n.Hash}
}

// Clone returns a deep copy of the node.
func (n *Node) Clone() *Node {
	out := *n
	out.Hash = bytes.Clone(n.Hash)
	out.Commitment = bytes.Clone(n.Commitment)
	out.Key = bytes.Clone(n.Key)
	out.Signature = bytes.Clone(n.Signature)
	return &out
}

// equal returns true if the authenticated fields of both nodes match.
func (n *Node) equal(other *Node) bool {
	return n.Address == other.Address &&
		n.Balance == other.Balance &&
		bytes.Equal(n.Hash, other.Hash) &&
		bytes.Equal(n.Commitment, other.Commitment)
}

// checkLeafHash recomputes the hash of a leaf from its contents.
func (n *Node) checkLeafHash() error {
	if n.Kind != KindLeaf {
		return fmt.Errorf("%w: node %d is not a leaf", ErrChecksumMismatch, n.Address)
	} else if !bytes.Equal(hashing.HashLeaf(n.value(), n.Key), n.Hash) {
		return fmt.Errorf("%w: leaf %d", ErrChecksumMismatch, n.Address)
	}
	return nil
}

// VerifySignature checks the leaf's self-signature over its hash.
func (n *Node) VerifySignature() error {
	if n.Kind != KindLeaf || !signing.Verify(n.Key, n.Hash, n.Signature) {
		return fmt.Errorf("%w: leaf %d", ErrInvalidSignature, n.Address)
	}
	return nil
}

// combine synthesizes the parent of a and b.
func combine(a, b *Node, parent uint64) (*Node, error) {
	if a.Mode() != b.Mode() {
		return nil, fmt.Errorf("%w: nodes %d and %d have different modes", ErrChecksumMismatch, a.Address, b.Address)
	}

	out := &Node{Kind: KindParent, Address: parent}
	if a.Mode() == ModeHiding {
		sum, err := commitments.Sum(a.Commitment, b.Commitment)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrChecksumMismatch, err)
		}
		out.Commitment = sum
	} else {
		sum, err := hashing.AddBalances(a.Balance, b.Balance)
		if err != nil {
			return nil, err
		}
		out.Balance = sum
	}
	out.Hash = hashing.HashParent(a.peak(), b.peak(), out.value())

	return out, nil
}

// computeRoot synthesizes the root at address end over the given peaks, which
// must be in ascending address order.
func computeRoot(mode Mode, peaks []*Node, end uint64) (*Node, error) {
	out := &Node{Kind: KindRoot, Address: end}

	if mode == ModeHiding {
		coms := make([][]byte, len(peaks))
		for i, peak := range peaks {
			coms[i] = peak.Commitment
		}
		sum, err := commitments.Sum(coms...)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrChecksumMismatch, err)
		}
		out.Commitment = sum
	} else {
		for _, peak := range peaks {
			if peak.Commitment != nil {
				return nil, fmt.Errorf("%w: peak %d has a commitment", ErrChecksumMismatch, peak.Address)
			}
			sum, err := hashing.AddBalances(out.Balance, peak.Balance)
			if err != nil {
				return nil, err
			}
			out.Balance = sum
		}
	}

	hashed := make([]hashing.Peak, len(peaks))
	for i, peak := range peaks {
		hashed[i] = peak.peak()
	}
	out.Hash = hashing.HashRoot(hashed, out.value())

	return out, nil
}

// Keys in the database.
const (
	nodePrefix  = 'n'
	indexPrefix = 'k'
)

func nodeKey(address uint64) []byte {
	out := make([]byte, 9)
	out[0] = nodePrefix
	binary.BigEndian.PutUint64(out[1:], address)
	return out
}

func indexKey(key []byte) []byte {
	return append([]byte{indexPrefix}, key...)
}

func marshalNode(n *Node) ([]byte, error) {
	return cbor.Marshal(n)
}

func unmarshalNode(raw []byte) (*Node, error) {
	n := &Node{}
	if err := cbor.Unmarshal(raw, n); err != nil {
		return nil, fmt.Errorf("failed to decode node: %w", err)
	}
	return n, nil
}
