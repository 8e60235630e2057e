package signing

import (
	"path/filepath"
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestSignVerify(t *testing.T) {
	c := qt.New(t)

	kp, err := Keygen()
	c.Assert(err, qt.IsNil)
	c.Assert(len(kp.Key), qt.Equals, 44)
	c.Assert(len(kp.SecretKey), qt.Equals, 88)

	sk, err := kp.Secret()
	c.Assert(err, qt.IsNil)
	pub, err := kp.Public()
	c.Assert(err, qt.IsNil)

	msg := []byte("hello world")
	sig := Sign(sk, msg)
	c.Assert(Verify(pub, msg, sig), qt.IsTrue)
	c.Assert(Verify(pub, []byte("hello worle"), sig), qt.IsFalse)

	sig[0] ^= 1
	c.Assert(Verify(pub, msg, sig), qt.IsFalse)
	c.Assert(Verify(pub[:31], msg, sig), qt.IsFalse)
	c.Assert(Verify(pub, msg, sig[:63]), qt.IsFalse)
}

func TestMismatchedKeyPair(t *testing.T) {
	c := qt.New(t)

	a, err := Keygen()
	c.Assert(err, qt.IsNil)
	b, err := Keygen()
	c.Assert(err, qt.IsNil)

	_, err = (&KeyPair{SecretKey: a.SecretKey, Key: b.Key}).Secret()
	c.Assert(err, qt.ErrorMatches, "secret key does not match public key")

	_, err = DecodeKey("AAAA")
	c.Assert(err, qt.ErrorMatches, "public key is wrong size.*")
}

func TestKeyPairFile(t *testing.T) {
	c := qt.New(t)

	kp, err := Keygen()
	c.Assert(err, qt.IsNil)

	path := filepath.Join(t.TempDir(), "issuer.json")
	c.Assert(WriteKeyPair(path, kp), qt.IsNil)

	got, err := ReadKeyPair(path)
	c.Assert(err, qt.IsNil)
	c.Assert(got, qt.DeepEquals, kp)
}
