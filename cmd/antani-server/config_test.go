package main

import (
	"os"
	"path/filepath"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/Bren2010/antani/crypto/signing"
)

func writeFile(c *qt.C, dir, name, content string) string {
	path := filepath.Join(dir, name)
	c.Assert(os.WriteFile(path, []byte(content), 0o600), qt.IsNil)
	return path
}

func TestReadConfig(t *testing.T) {
	c := qt.New(t)
	dir := t.TempDir()

	kp, err := signing.Keygen()
	c.Assert(err, qt.IsNil)
	keyFile := filepath.Join(dir, "issuer.json")
	c.Assert(signing.WriteKeyPair(keyFile, kp), qt.IsNil)

	path := writeFile(c, dir, "config.yaml", `
addr: ":8080"
metrics-addr: ":8081"
store:
  type: pebble
  path: /var/lib/antani
ballot:
  file: ballot.json
  key-file: `+keyFile+`
  candidates: [X, Y]
`)
	config, err := ReadConfig(path)
	c.Assert(err, qt.IsNil)
	c.Assert(config.ServerAddr, qt.Equals, ":8080")
	c.Assert(config.LogLevel, qt.Equals, "info")
	c.Assert(config.StoreConfig.Type, qt.Equals, "pebble")
	c.Assert(config.BallotConfig.Candidates, qt.DeepEquals, []string{"X", "Y"})
	c.Assert(config.BallotConfig.issuer.Key, qt.Equals, kp.Key)
	c.Assert(config.tlsConfig, qt.IsNil)

	path = writeFile(c, dir, "missing.yaml", "addr: \":8080\"\n")
	_, err = ReadConfig(path)
	c.Assert(err, qt.ErrorMatches, "field not provided: store")

	path = writeFile(c, dir, "nokey.yaml", "addr: \":8080\"\nstore: {path: x}\nballot: {file: b.json}\n")
	_, err = ReadConfig(path)
	c.Assert(err, qt.ErrorMatches, "field not provided: ballot.key-file")
}
