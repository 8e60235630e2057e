// Command antani-ballot manages the lifecycle of a ballot over an antani
// tree.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/Bren2010/antani/ballot"
	"github.com/Bren2010/antani/crypto/signing"
	"github.com/Bren2010/antani/db"
	"github.com/Bren2010/antani/log"
	"github.com/Bren2010/antani/tree/accumulator"
)

const usage = `Usage: antani-ballot <cmd> [args] [flags]

  antani-ballot init <key-pair>
  antani-ballot cast <key-pair> <ballot-file> <db> <vote>
  antani-ballot finalize <key-pair> <ballot-file> <db>
  antani-ballot tally <ballot-file> <db>
  antani-ballot status <ballot-file> <db>

Flags:
`

var (
	candidates = flag.StringSlice("candidates", nil, "Candidates of a new ballot, comma separated.")
	storeType  = flag.String("store", "leveldb", "Type of database: leveldb or pebble.")
	logLevel   = flag.String("log-level", log.LevelInfo, "Log level: debug, info, warn or error.")
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
	if len(args) == 0 {
		flag.Usage()
		os.Exit(1)
	}

	var err error
	switch cmd, args := args[0], args[1:]; {
	case cmd == "init" && len(args) == 1:
		err = initKeys(args[0])
	case cmd == "cast" && len(args) == 4:
		err = withBallot(args[0], args[1], args[2], func(b *ballot.Ballot) (any, error) {
			v := &ballot.Vote{}
			if err := json.Unmarshal([]byte(args[3]), v); err != nil {
				return nil, fmt.Errorf("failed to parse vote: %w", err)
			}
			return b.Push(v)
		})
	case cmd == "finalize" && len(args) == 3:
		err = withBallot(args[0], args[1], args[2], func(b *ballot.Ballot) (any, error) {
			if err := b.Finalize(); err != nil {
				return nil, err
			}
			return status(b), nil
		})
	case cmd == "tally" && len(args) == 2:
		err = withBallot("", args[0], args[1], func(b *ballot.Ballot) (any, error) { return b.Tally() })
	case cmd == "status" && len(args) == 2:
		err = withBallot("", args[0], args[1], func(b *ballot.Ballot) (any, error) { return status(b), nil })
	default:
		flag.Usage()
		os.Exit(1)
	}
	if ballot.IsStateError(err) {
		log.Warnf("%v", err)
		os.Exit(2)
	} else if err != nil {
		log.Fatalf("%v", err)
	}
}

func initKeys(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("refusing to overwrite %v", path)
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}
	kp, err := signing.Keygen()
	if err != nil {
		return err
	} else if err := signing.WriteKeyPair(path, kp); err != nil {
		return err
	}
	log.Infow("issuer key pair written", "path", path, "key", kp.Key)
	return nil
}

// withBallot opens the ballot at ballotPath over the tree at dbPath, runs fn,
// and prints its result. If keyPath is empty, the ballot is opened read-only.
func withBallot(keyPath, ballotPath, dbPath string, fn func(b *ballot.Ballot) (any, error)) error {
	opts := ballot.Options{Candidates: *candidates}
	if keyPath != "" {
		kp, err := signing.ReadKeyPair(keyPath)
		if err != nil {
			return fmt.Errorf("failed to read key pair: %w", err)
		}
		opts.Issuer = kp
	}

	store, err := db.Open(*storeType, dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()
	tree, err := accumulator.NewTree(store)
	if err != nil {
		return err
	}

	open := ballot.OpenFile
	if keyPath == "" {
		open = ballot.OpenFileReadOnly
	}
	file, err := open(ballotPath)
	if err != nil {
		return err
	}
	b, err := ballot.Open(file, tree, opts)
	if err != nil {
		file.Close()
		return err
	}
	defer b.Close()

	res, err := fn(b)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

type ballotStatus struct {
	Key        string   `json:"key"`
	Candidates []string `json:"candidates"`
	Votes      uint     `json:"votes"`
	Finalized  bool     `json:"finalized"`
}

func status(b *ballot.Ballot) *ballotStatus {
	return &ballotStatus{
		Key:        signing.EncodeKey(b.Key()),
		Candidates: b.Candidates(),
		Votes:      b.Votes(),
		Finalized:  b.Finalized(),
	}
}
