// Package commitments implements additively homomorphic Pedersen commitments
// to balances over the prime-order subgroup of edwards25519.
//
// A commitment to v with decommitment r is v*G + r*H. Commitments can be summed
// without being opened, and the sum opens with the sum of the decommitments.
package commitments

import (
	"bytes"
	"crypto/rand"
	"crypto/sha512"
	"encoding/binary"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
)

const (
	// Size is the length of an encoded commitment.
	Size = 32
	// DecommitmentSize is the length of an encoded decommitment.
	DecommitmentSize = 32
)

// The generators are public and derived from fixed seeds, so that nobody knows
// the discrete log of H with respect to G.
var (
	generatorG = hashToCurve([]byte("antani pedersen G"))
	generatorH = hashToCurve([]byte("antani pedersen H"))
)

// hashToCurve implements the trial-and-increment algorithm for encoding a byte
// string to a point of the prime-order subgroup.
func hashToCurve(seed []byte) *edwards25519.Point {
	identity := edwards25519.NewIdentityPoint()

	for counter := 0; counter < 256; counter++ {
		buf := &bytes.Buffer{}
		buf.Write(seed)
		buf.WriteByte(byte(counter))

		h := sha512.Sum512(buf.Bytes())
		point, err := new(edwards25519.Point).SetBytes(h[:32])
		if err != nil {
			continue
		}
		point.MultByCofactor(point)
		if point.Equal(identity) == 1 {
			continue
		}
		return point
	}
	panic("hash to curve failed unexpectedly")
}

// balanceScalar maps a signed balance to a scalar, using the additive inverse
// for negative balances.
func balanceScalar(balance int64) *edwards25519.Scalar {
	neg := balance < 0
	u := uint64(balance)
	if neg {
		u = uint64(-(balance + 1)) + 1
	}

	raw := make([]byte, 32)
	binary.LittleEndian.PutUint64(raw, u)
	s, err := edwards25519.NewScalar().SetCanonicalBytes(raw)
	if err != nil {
		panic(err)
	}
	if neg {
		s.Negate(s)
	}
	return s
}

func parseCommitment(raw []byte) (*edwards25519.Point, error) {
	if len(raw) != Size {
		return nil, fmt.Errorf("commitment is wrong size: %v", len(raw))
	}
	return new(edwards25519.Point).SetBytes(raw)
}

func parseDecommitment(raw []byte) (*edwards25519.Scalar, error) {
	if len(raw) != DecommitmentSize {
		return nil, fmt.Errorf("decommitment is wrong size: %v", len(raw))
	}
	return edwards25519.NewScalar().SetCanonicalBytes(raw)
}

func commit(balance int64, r *edwards25519.Scalar) []byte {
	vG := new(edwards25519.Point).ScalarMult(balanceScalar(balance), generatorG)
	rH := new(edwards25519.Point).ScalarMult(r, generatorH)
	return new(edwards25519.Point).Add(vG, rH).Bytes()
}

// GenerateDecommitment returns a uniformly random decommitment.
func GenerateDecommitment() ([]byte, error) {
	buf := make([]byte, 64)
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}
	r, err := edwards25519.NewScalar().SetUniformBytes(buf)
	if err != nil {
		return nil, err
	}
	return r.Bytes(), nil
}

// Commit returns a commitment to balance along with the decommitment that
// opens it.
func Commit(balance int64) (commitment, decommitment []byte, err error) {
	decommitment, err = GenerateDecommitment()
	if err != nil {
		return nil, nil, err
	}
	commitment, err = CommitWith(balance, decommitment)
	if err != nil {
		return nil, nil, err
	}
	return commitment, decommitment, nil
}

// CommitWith returns the commitment to balance under the given decommitment.
func CommitWith(balance int64, decommitment []byte) ([]byte, error) {
	r, err := parseDecommitment(decommitment)
	if err != nil {
		return nil, err
	}
	return commit(balance, r), nil
}

// Sum returns the commitment to the sum of the values committed to. The sum of
// no commitments is the commitment to zero with a zero decommitment.
func Sum(commitments ...[]byte) ([]byte, error) {
	acc := edwards25519.NewIdentityPoint()
	for _, raw := range commitments {
		p, err := parseCommitment(raw)
		if err != nil {
			return nil, err
		}
		acc.Add(acc, p)
	}
	return acc.Bytes(), nil
}

// Accumulate returns the decommitment that opens the Sum of the commitments
// opened by each of the given decommitments.
func Accumulate(decommitments ...[]byte) ([]byte, error) {
	acc := edwards25519.NewScalar()
	for _, raw := range decommitments {
		s, err := parseDecommitment(raw)
		if err != nil {
			return nil, err
		}
		acc.Add(acc, s)
	}
	return acc.Bytes(), nil
}

// Verify returns true if commitment opens to balance with decommitment.
func Verify(commitment, decommitment []byte, balance int64) bool {
	p, err := parseCommitment(commitment)
	if err != nil {
		return false
	}
	r, err := parseDecommitment(decommitment)
	if err != nil {
		return false
	}
	cand, err := parseCommitment(commit(balance, r))
	if err != nil {
		return false
	}
	return p.Equal(cand) == 1
}

// ErrInvalid is returned by Check for malformed commitments.
var ErrInvalid = errors.New("invalid commitment")

// Check returns ErrInvalid if raw is not the encoding of a curve point.
func Check(raw []byte) error {
	if _, err := parseCommitment(raw); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}
