package accumulator

import (
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/Bren2010/antani/crypto/signing"
)

// Message is an arbitrary message signed by the owners of one or more
// leaves, proving that they control the balances in those leaves.
type Message struct {
	Message    []byte   `json:"message"`
	Keys       [][]byte `json:"keys"`
	Signatures [][]byte `json:"signatures"`
}

// SignMessage signs msg with each of the given leaf key pairs.
func SignMessage(pairs []*signing.KeyPair, msg []byte) (*Message, error) {
	if len(pairs) == 0 {
		return nil, errors.New("no key pairs given")
	}
	out := &Message{
		Message:    msg,
		Keys:       make([][]byte, len(pairs)),
		Signatures: make([][]byte, len(pairs)),
	}
	for i, kp := range pairs {
		sk, err := kp.Secret()
		if err != nil {
			return nil, err
		}
		pub, err := kp.Public()
		if err != nil {
			return nil, err
		}
		out.Keys[i] = pub
		out.Signatures[i] = signing.Sign(sk, msg)
	}
	return out, nil
}

// VerifyMessage checks every signature on m and looks up the leaf each
// signing key is bound to. It returns the leaves, in the order of m.Keys.
func (t *Tree) VerifyMessage(m *Message) ([]*Node, error) {
	if len(m.Keys) == 0 {
		return nil, errors.New("message is not signed")
	} else if len(m.Keys) != len(m.Signatures) {
		return nil, fmt.Errorf("message has %d keys but %d signatures", len(m.Keys), len(m.Signatures))
	}
	for i, key := range m.Keys {
		if !signing.Verify(key, m.Message, m.Signatures[i]) {
			return nil, fmt.Errorf("%w: message signature %d", ErrInvalidSignature, i)
		}
	}

	leaves := make([]*Node, len(m.Keys))
	var g errgroup.Group
	for i, key := range m.Keys {
		g.Go(func() error {
			leaf, err := t.Leaf(key)
			if err != nil {
				return err
			} else if err := leaf.checkLeafHash(); err != nil {
				return err
			} else if err := leaf.VerifySignature(); err != nil {
				return err
			}
			leaves[i] = leaf
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return leaves, nil
}
