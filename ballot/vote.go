package ballot

import (
	"bytes"
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/Bren2010/antani/crypto/hashing"
	"github.com/Bren2010/antani/crypto/signing"
	"github.com/Bren2010/antani/tree/accumulator"
	"github.com/Bren2010/antani/tree/accumulator/math"
)

// Vote is a balance-weighted vote for one candidate, cast with the balance of
// a single leaf and signed by that leaf's key.
type Vote struct {
	Key           []byte `json:"key"`
	Signature     []byte `json:"signature"`
	Hash          []byte `json:"hash"`
	Index         uint64 `json:"index"`
	Balance       int64  `json:"balance"`
	Vote          string `json:"vote"`
	VoteSignature []byte `json:"voteSignature"`
}

// Receipt proves that a ballot accepted a vote.
type Receipt struct {
	Receipt []byte `json:"receipt"`
	Vote    *Vote  `json:"vote"`
}

// encode returns the bytes covered by the vote signature. The leaf fields are
// fixed-length, so only the variable-length tail needs separators.
func (v *Vote) encode() []byte {
	buf := &bytes.Buffer{}
	buf.Write(v.Key)
	buf.Write(v.Signature)
	buf.Write(v.Hash)
	buf.WriteByte(':')
	buf.Write(hashing.EncodeAddress(v.Index))
	buf.WriteByte(':')
	buf.Write(hashing.EncodeBalance(v.Balance))
	buf.WriteByte(':')
	buf.WriteString(v.Vote)
	return buf.Bytes()
}

func (v *Vote) receiptMessage() []byte {
	return append(bytes.Clone(v.VoteSignature), v.encode()...)
}

// NewVote returns a vote for candidate, cast with the balance of leaf.
// secretKey must be the secret half of the leaf's key.
func NewVote(leaf *accumulator.Node, secretKey ed25519.PrivateKey, candidate string) (*Vote, error) {
	if leaf.Kind != accumulator.KindLeaf {
		return nil, fmt.Errorf("node %d is not a leaf", leaf.Address)
	} else if leaf.Mode() != accumulator.ModePlain {
		return nil, errors.New("votes can only be cast with plain balances")
	} else if len(secretKey) != signing.SecretKeySize {
		return nil, errors.New("secret key is wrong size")
	} else if !bytes.Equal(secretKey.Public().(ed25519.PublicKey), leaf.Key) {
		return nil, errors.New("secret key does not belong to leaf")
	}

	v := &Vote{
		Key:       bytes.Clone(leaf.Key),
		Signature: bytes.Clone(leaf.Signature),
		Hash:      bytes.Clone(leaf.Hash),
		Index:     leaf.Address,
		Balance:   leaf.Balance,
		Vote:      candidate,
	}
	v.VoteSignature = signing.Sign(secretKey, v.encode())
	return v, nil
}

// check validates the shape of the vote.
func (v *Vote) check() error {
	switch {
	case len(v.Key) == 0:
		return fmt.Errorf("%w: missing key", ErrInvalidVote)
	case len(v.Signature) == 0:
		return fmt.Errorf("%w: missing signature", ErrInvalidVote)
	case len(v.Hash) == 0:
		return fmt.Errorf("%w: missing hash", ErrInvalidVote)
	case len(v.VoteSignature) == 0:
		return fmt.Errorf("%w: missing voteSignature", ErrInvalidVote)
	case len(v.Key) != signing.PublicKeySize:
		return fmt.Errorf("%w: key is wrong size", ErrInvalidVote)
	case len(v.Signature) != signing.SignatureSize:
		return fmt.Errorf("%w: signature is wrong size", ErrInvalidVote)
	case len(v.Hash) != hashing.Size:
		return fmt.Errorf("%w: hash is wrong size", ErrInvalidVote)
	case !math.IsLeaf(v.Index):
		return fmt.Errorf("%w: index %d is not a leaf", ErrInvalidVote, v.Index)
	}
	return nil
}

func (v *Vote) verify() error {
	if !signing.Verify(v.Key, v.encode(), v.VoteSignature) {
		return fmt.Errorf("%w: vote for leaf %d", ErrInvalidSignature, v.Index)
	}
	return nil
}

// VerifyReceipt checks that r was issued by the ballot with the given issuer
// public key.
func VerifyReceipt(issuer []byte, r *Receipt) error {
	if r.Vote == nil {
		return fmt.Errorf("%w: receipt has no vote", ErrInvalidVote)
	} else if !signing.Verify(issuer, r.Vote.receiptMessage(), r.Receipt) {
		return fmt.Errorf("%w: receipt", ErrInvalidSignature)
	}
	return nil
}
