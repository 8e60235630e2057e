// Package hashing implements the domain-separated hash functions that
// authenticate the nodes of an accumulator.
//
// Every input is prefixed with a constant unique to the kind of node being
// hashed, so that a leaf can never be reinterpreted as a parent or a root.
package hashing

import (
	"encoding/binary"
	"errors"
	"math"

	"golang.org/x/crypto/blake2b"
)

// Size is the length in bytes of every node hash.
const Size = blake2b.Size256

var (
	leafPrefix   = []byte("leaf\n")
	parentPrefix = []byte("parent\n")
	rootPrefix   = []byte("root\n")
)

// ErrOverflow is returned when a sum of balances does not fit in an int64.
var ErrOverflow = errors.New("balance overflow")

// Peak is the view of a node that the parent and root hashes consume. Value is
// the encoded balance or the encoded commitment, depending on the mode of the
// tree.
type Peak struct {
	Address uint64
	Value   []byte
	Hash    []byte
}

// EncodeBalance returns the 8-byte big-endian encoding of a balance.
func EncodeBalance(balance int64) []byte {
	out := make([]byte, 8)
	binary.BigEndian.PutUint64(out, uint64(balance))
	return out
}

// EncodeAddress returns the 8-byte big-endian encoding of a node address.
func EncodeAddress(address uint64) []byte {
	out := make([]byte, 8)
	binary.BigEndian.PutUint64(out, address)
	return out
}

// AddBalances returns a+b, or ErrOverflow if the result does not fit.
func AddBalances(a, b int64) (int64, error) {
	if (b > 0 && a > math.MaxInt64-b) || (b < 0 && a < math.MinInt64-b) {
		return 0, ErrOverflow
	}
	return a + b, nil
}

func sum(parts ...[]byte) []byte {
	h, err := blake2b.New256(nil)
	if err != nil {
		panic(err)
	}
	for _, part := range parts {
		h.Write(part)
	}
	return h.Sum(nil)
}

// HashLeaf returns the hash of a leaf holding value and bound to key.
func HashLeaf(value, key []byte) []byte {
	return sum(leafPrefix, value, key)
}

// HashParent returns the hash of the parent of a and b, where total is the
// encoded combination of their values. The arguments are ordered by address
// first, so HashParent(a, b, total) == HashParent(b, a, total).
func HashParent(a, b Peak, total []byte) []byte {
	if a.Address > b.Address {
		a, b = b, a
	}
	return sum(parentPrefix, total, a.Hash, b.Hash)
}

// HashRoot returns the hash of the root over the given peaks, where total is
// the encoded combination of all peak values. Peaks must be in ascending
// address order.
func HashRoot(peaks []Peak, total []byte) []byte {
	parts := make([][]byte, 0, 2+3*len(peaks))
	parts = append(parts, rootPrefix, total)
	for _, peak := range peaks {
		parts = append(parts, EncodeAddress(peak.Address), peak.Value, peak.Hash)
	}
	return sum(parts...)
}
