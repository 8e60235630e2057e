package main

import (
	"bufio"
	"bytes"
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fxamacker/cbor/v2"

	"github.com/Bren2010/antani/bucket"
	"github.com/Bren2010/antani/crypto/signing"
	"github.com/Bren2010/antani/db"
	"github.com/Bren2010/antani/log"
	"github.com/Bren2010/antani/tree/accumulator"
)

// account is one line of the input file.
type account struct {
	id      string
	balance int64
}

func parseAccount(line string) (*account, error) {
	id, balance, ok := strings.Cut(line, "\t")
	if !ok {
		return nil, fmt.Errorf("line is not tab separated: %q", line)
	}
	b, err := strconv.ParseInt(strings.TrimSpace(balance), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse balance of account %v: %w", id, err)
	}
	return &account{id: id, balance: b}, nil
}

// stagedLeaf is a bucket waiting in the staging store, keyed by its public
// key.
type stagedLeaf struct {
	Balance   int64  `cbor:"1,keyasint"`
	SecretKey []byte `cbor:"2,keyasint"`
}

// leaves reads accounts from r, splits each balance into buckets, and stages
// one leaf per bucket in staging. The key pair of every leaf is written to the
// secret and public key files, next to the account it belongs to.
func leaves(r io.Reader, secret, public io.Writer, staging db.NodeStore) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		acct, err := parseAccount(line)
		if err != nil {
			return err
		}
		buckets, err := bucket.Split(acct.balance)
		if err != nil {
			return fmt.Errorf("failed to bucket account %v: %w", acct.id, err)
		}

		for _, balance := range buckets {
			kp, err := signing.Keygen()
			if err != nil {
				return err
			}
			pub, _ := kp.Public()
			sk, _ := kp.Secret()

			if _, err := fmt.Fprintf(secret, "%s\t%s\n", acct.id, kp.SecretKey); err != nil {
				return err
			} else if _, err := fmt.Fprintf(public, "%s\t%s\n", acct.id, kp.Key); err != nil {
				return err
			}
			raw, err := cbor.Marshal(&stagedLeaf{Balance: balance, SecretKey: sk})
			if err != nil {
				return err
			} else if err := staging.Put(pub, raw); err != nil {
				return err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return staging.Commit()
}

// sortedLeaves sends the staged leaves on out in public key order, so that
// the buckets of one account end up spread across the tree.
func sortedLeaves(staging db.NodeStore, out chan<- accumulator.LeafInput) error {
	defer close(out)

	return staging.Scan(nil, func(key, value []byte) error {
		var leaf stagedLeaf
		if err := cbor.Unmarshal(value, &leaf); err != nil {
			return fmt.Errorf("failed to decode staged leaf: %w", err)
		}
		out <- accumulator.LeafInput{
			Balance:   leaf.Balance,
			Key:       bytes.Clone(key),
			SecretKey: ed25519.PrivateKey(leaf.SecretKey),
		}
		return nil
	})
}

// openStaging creates a temporary store of the configured type. The returned
// function closes and removes it.
func openStaging() (db.NodeStore, func(), error) {
	dir, err := os.MkdirTemp("", "antani-staging-")
	if err != nil {
		return nil, nil, err
	}
	store, err := db.Open(*storeType, filepath.Join(dir, "sorted-keys"))
	if err != nil {
		os.RemoveAll(dir)
		return nil, nil, fmt.Errorf("failed to open staging database: %w", err)
	}
	return store, func() {
		store.Close()
		os.RemoveAll(dir)
	}, nil
}

func createFile(name string, mode os.FileMode) (*os.File, error) {
	return os.OpenFile(filepath.Join(*outDir, name), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
}

func write(path, input string) error {
	var r io.Reader = os.Stdin
	if input != "-" {
		f, err := os.Open(input)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}

	secret, err := createFile("keys.sec", 0o600)
	if err != nil {
		return err
	}
	defer secret.Close()
	public, err := createFile("keys.pub", 0o644)
	if err != nil {
		return err
	}
	defer public.Close()
	secretBuf, publicBuf := bufio.NewWriter(secret), bufio.NewWriter(public)

	store, err := db.Open(*storeType, path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()
	tree, err := accumulator.NewTree(store)
	if err != nil {
		return err
	} else if _, err := tree.Root(); err == nil {
		return errors.New("database already contains a tree")
	} else if !errors.Is(err, accumulator.ErrNotFound) {
		return err
	}

	mode := accumulator.ModePlain
	if *hiding {
		mode = accumulator.ModeHiding
	}
	staging, cleanup, err := openStaging()
	if err != nil {
		return err
	}
	defer cleanup()
	if err := leaves(r, secretBuf, publicBuf, staging); err != nil {
		return err
	}

	in := make(chan accumulator.LeafInput, 64)
	done := accumulator.Stream(mode, in, accumulator.NewStoreSink(store))
	if err := sortedLeaves(staging, in); err != nil {
		<-done
		return err
	}
	res := <-done
	if res.Err != nil {
		return res.Err
	} else if err := secretBuf.Flush(); err != nil {
		return err
	} else if err := publicBuf.Flush(); err != nil {
		return err
	} else if err := store.Commit(); err != nil {
		return err
	}

	if mode == accumulator.ModeHiding {
		f, err := createFile("decommitment.sec", 0o600)
		if err != nil {
			return err
		}
		defer f.Close()
		if _, err := fmt.Fprintln(f, base64.StdEncoding.EncodeToString(res.Decommitment)); err != nil {
			return err
		}
	}

	log.Infow("tree written", "path", path, "mode", mode.String(), "leaves", res.Root.Address/2)
	return printJSON(res.Root)
}
