// Package signing implements the detached Ed25519 signatures used to bind
// leaves, votes and receipts to their keys.
package signing

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

const (
	PublicKeySize = ed25519.PublicKeySize
	SecretKeySize = ed25519.PrivateKeySize
	SignatureSize = ed25519.SignatureSize
)

// KeyPair is the export format of a key pair. Both fields are base64 encodings
// of the raw key bytes.
type KeyPair struct {
	SecretKey string `json:"secretKey"`
	Key       string `json:"key"`
}

// Keygen returns a fresh Ed25519 key pair.
func Keygen() (*KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return &KeyPair{SecretKey: EncodeKey(priv), Key: EncodeKey(pub)}, nil
}

// Public returns the decoded public key.
func (kp *KeyPair) Public() ([]byte, error) {
	return DecodeKey(kp.Key)
}

// Secret returns the decoded secret key, checking that it matches the public
// half.
func (kp *KeyPair) Secret() (ed25519.PrivateKey, error) {
	sk, err := DecodeSecretKey(kp.SecretKey)
	if err != nil {
		return nil, err
	}
	pub, err := kp.Public()
	if err != nil {
		return nil, err
	} else if !sk.Public().(ed25519.PublicKey).Equal(ed25519.PublicKey(pub)) {
		return nil, errors.New("secret key does not match public key")
	}
	return sk, nil
}

// Sign returns a detached signature of message.
func Sign(sk ed25519.PrivateKey, message []byte) []byte {
	return ed25519.Sign(sk, message)
}

// Verify returns true if sig is a valid signature of message by pub. Keys or
// signatures of the wrong size are reported as invalid.
func Verify(pub, message, sig []byte) bool {
	if len(pub) != PublicKeySize || len(sig) != SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub), message, sig)
}

// EncodeKey returns the fixed-length string encoding of a key or signature.
func EncodeKey(raw []byte) string {
	return base64.StdEncoding.EncodeToString(raw)
}

func decode(s string, size int, what string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", what, err)
	} else if len(raw) != size {
		return nil, fmt.Errorf("%s is wrong size: wanted=%v, got=%v", what, size, len(raw))
	}
	return raw, nil
}

// DecodeKey parses an encoded public key.
func DecodeKey(s string) ([]byte, error) {
	return decode(s, PublicKeySize, "public key")
}

// DecodeSecretKey parses an encoded secret key.
func DecodeSecretKey(s string) (ed25519.PrivateKey, error) {
	raw, err := decode(s, SecretKeySize, "secret key")
	if err != nil {
		return nil, err
	}
	return ed25519.PrivateKey(raw), nil
}

// DecodeSignature parses an encoded signature.
func DecodeSignature(s string) ([]byte, error) {
	return decode(s, SignatureSize, "signature")
}

// ReadKeyPair loads a key pair from a JSON file.
func ReadKeyPair(path string) (*KeyPair, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var kp KeyPair
	if err := json.Unmarshal(raw, &kp); err != nil {
		return nil, fmt.Errorf("failed to parse key pair: %w", err)
	} else if _, err := kp.Secret(); err != nil {
		return nil, err
	}
	return &kp, nil
}

// WriteKeyPair stores a key pair as a JSON file readable only by its owner.
func WriteKeyPair(path string, kp *KeyPair) error {
	raw, err := json.Marshal(kp)
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0600)
}
