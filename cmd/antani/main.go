// Command antani builds a balance accumulator from a list of accounts and
// answers queries against it.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	flag "github.com/spf13/pflag"

	"github.com/Bren2010/antani/ballot"
	"github.com/Bren2010/antani/crypto/signing"
	"github.com/Bren2010/antani/db"
	"github.com/Bren2010/antani/log"
	"github.com/Bren2010/antani/tree/accumulator"
)

const usage = `Usage: antani <cmd> <db> [args] [flags]

  antani write <db> <input-file>
  antani root <db>
  antani node <db> <index>
  antani leaf <db> <public-key>
  antani proof <db> <public-key>
  antani vote <db> <public-key> <secret-key> <candidate>
  antani sign <db> <message> <key-pair-file>...
  antani verify <db> <message-file>

Flags:
`

var (
	storeType = flag.String("store", "leveldb", "Type of database: leveldb or pebble.")
	hiding    = flag.Bool("hiding", false, "Commit to balances instead of storing them in the clear.")
	outDir    = flag.String("out", ".", "Directory that key files are written to.")
	logLevel  = flag.String("log-level", log.LevelInfo, "Log level: debug, info, warn or error.")
)

func main() {
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()
	if err := log.Init(*logLevel, os.Stderr); err != nil {
		log.Fatalf("%v", err)
	}

	args := flag.Args()
	if len(args) < 2 {
		flag.Usage()
		os.Exit(1)
	}
	cmd, path, args := args[0], args[1], args[2:]

	var err error
	switch {
	case cmd == "write" && len(args) == 1:
		err = write(path, args[0])
	case cmd == "root" && len(args) == 0:
		err = query(path, func(t *accumulator.Tree) (any, error) { return t.Root() })
	case cmd == "node" && len(args) == 1:
		err = query(path, func(t *accumulator.Tree) (any, error) {
			index, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("failed to parse index: %w", err)
			}
			return t.Node(index)
		})
	case cmd == "leaf" && len(args) == 1:
		err = query(path, func(t *accumulator.Tree) (any, error) {
			key, err := signing.DecodeKey(args[0])
			if err != nil {
				return nil, err
			}
			return t.Leaf(key)
		})
	case cmd == "proof" && len(args) == 1:
		err = query(path, func(t *accumulator.Tree) (any, error) { return proof(t, args[0]) })
	case cmd == "vote" && len(args) == 3:
		err = query(path, func(t *accumulator.Tree) (any, error) { return vote(t, args[0], args[1], args[2]) })
	case cmd == "sign" && len(args) >= 2:
		err = query(path, func(t *accumulator.Tree) (any, error) { return sign(t, args[0], args[1:]) })
	case cmd == "verify" && len(args) == 1:
		err = query(path, func(t *accumulator.Tree) (any, error) { return verify(t, args[0]) })
	default:
		flag.Usage()
		os.Exit(1)
	}
	if err != nil {
		log.Fatalf("%v", err)
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// query opens the tree at path, runs fn against it, and prints the result.
func query(path string, fn func(t *accumulator.Tree) (any, error)) error {
	store, err := db.Open(*storeType, path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()

	tree, err := accumulator.NewTree(store)
	if err != nil {
		return err
	}
	res, err := fn(tree)
	if err != nil {
		return err
	}
	return printJSON(res)
}

func proof(t *accumulator.Tree, key string) (*accumulator.Proof, error) {
	raw, err := signing.DecodeKey(key)
	if err != nil {
		return nil, err
	}
	p, err := t.Proof(raw)
	if err != nil {
		return nil, err
	} else if err := p.Verify(); err != nil {
		return nil, fmt.Errorf("proof failed to verify: %w", err)
	}
	log.Debugw("proof verified", "leaf", p.Leaf.Address, "peaks", len(p.Peaks), "path", len(p.Path))
	return p, nil
}

func vote(t *accumulator.Tree, key, secretKey, candidate string) (any, error) {
	kp := &signing.KeyPair{SecretKey: secretKey, Key: key}
	sk, err := kp.Secret()
	if err != nil {
		return nil, err
	}
	pub, _ := kp.Public()
	leaf, err := t.Leaf(pub)
	if err != nil {
		return nil, err
	}
	return ballot.NewVote(leaf, sk, candidate)
}

func sign(t *accumulator.Tree, message string, files []string) (*accumulator.Message, error) {
	pairs := make([]*signing.KeyPair, len(files))
	for i, file := range files {
		kp, err := signing.ReadKeyPair(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read key pair %v: %w", file, err)
		}
		pairs[i] = kp
	}
	msg, err := accumulator.SignMessage(pairs, []byte(message))
	if err != nil {
		return nil, err
	}
	// Check that the keys belong to the tree before handing out the message.
	if _, err := t.VerifyMessage(msg); err != nil {
		return nil, err
	}
	return msg, nil
}

type verifyResult struct {
	Message string              `json:"message"`
	Leaves  []*accumulator.Node `json:"leaves"`
	Balance int64               `json:"balance"`
}

func verify(t *accumulator.Tree, file string) (*verifyResult, error) {
	raw, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	msg := &accumulator.Message{}
	if err := json.Unmarshal(raw, msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	leaves, err := t.VerifyMessage(msg)
	if err != nil {
		return nil, err
	}

	res := &verifyResult{Message: string(msg.Message), Leaves: leaves}
	for _, leaf := range leaves {
		res.Balance += leaf.Balance
	}
	return res, nil
}
