// Package ballot implements an append-only, balance-weighted ballot bound to
// one accumulator.
//
// A ballot is stored as a single JSON document:
//
//	{"type":"ballot","key":"<issuer>","candidates":[...],"votes":[<vote>,<vote>...]}
//
// The closing "]}" is only written when the ballot is finalized, so an open
// ballot is recognized by the document being incomplete.
package ballot

import (
	"bytes"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"

	"github.com/bits-and-blooms/bitset"

	"github.com/Bren2010/antani/crypto/hashing"
	"github.com/Bren2010/antani/crypto/signing"
	"github.com/Bren2010/antani/log"
	"github.com/Bren2010/antani/tree/accumulator"
)

const (
	ballotType  = "ballot"
	closer      = "]}"
	eventBuffer = 64
)

// EventType is the kind of an Event.
type EventType int

const (
	EventReady EventType = iota
	EventError
	EventVote
	EventFinalized
)

func (t EventType) String() string {
	switch t {
	case EventReady:
		return "ready"
	case EventError:
		return "error"
	case EventVote:
		return "vote"
	case EventFinalized:
		return "finalized"
	default:
		return fmt.Sprintf("EventType(%d)", int(t))
	}
}

// Event is a notification about a change in a ballot's state.
type Event struct {
	Type EventType
	Vote *Vote
	Err  error
}

// Options configures a ballot.
type Options struct {
	// Issuer is the key pair receipts are signed with. It is required to
	// push votes or finalize, but not to tally.
	Issuer *signing.KeyPair
	// Candidates are the options of a new ballot. When opening an existing
	// ballot, they must be empty or equal to the stored ones.
	Candidates []string
}

// Ballot is an append-only log of votes. It is safe for concurrent use.
type Ballot struct {
	tree      *accumulator.Tree
	root      *accumulator.Node
	storage   Storage
	secretKey ed25519.PrivateKey
	ready     func() error
	events    chan Event

	mu         sync.Mutex
	key        []byte
	candidates []string
	voted      *bitset.BitSet
	offset     int64
	header     bool // Whether the header has been written.
	first      bool // Whether no vote has been written yet.
	finalized  bool
}

func checkCandidates(candidates []string) error {
	seen := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		if c == "" {
			return errors.New("candidate name must not be empty")
		} else if _, ok := seen[c]; ok {
			return fmt.Errorf("duplicate candidate: %q", c)
		}
		seen[c] = struct{}{}
	}
	return nil
}

// Open returns a ballot stored in storage, for votes cast with the leaves of
// tree. The tree must be in plain mode. Any votes already in storage are
// replayed in the background; every other method waits for that to finish.
func Open(storage Storage, tree *accumulator.Tree, opts Options) (*Ballot, error) {
	root, err := tree.Root()
	if err != nil {
		return nil, err
	} else if root.Mode() != accumulator.ModePlain {
		return nil, fmt.Errorf("ballots can only be opened against plain trees, not %v", root.Mode())
	} else if err := checkCandidates(opts.Candidates); err != nil {
		return nil, err
	}

	b := &Ballot{
		tree:       tree,
		root:       root,
		storage:    storage,
		events:     make(chan Event, eventBuffer),
		candidates: slices.Clone(opts.Candidates),
		voted:      bitset.New(uint(root.Address)),
		first:      true,
	}
	if opts.Issuer != nil {
		sk, err := opts.Issuer.Secret()
		if err != nil {
			return nil, fmt.Errorf("invalid issuer key: %w", err)
		}
		b.secretKey = sk
		b.key, _ = opts.Issuer.Public()
	}

	b.ready = sync.OnceValue(func() error {
		err := b.replay()
		if err != nil {
			log.Errorw(err, "failed to replay ballot")
			b.emit(Event{Type: EventError, Err: err})
		} else {
			b.emit(Event{Type: EventReady})
		}
		return err
	})
	go b.ready()

	return b, nil
}

func (b *Ballot) emit(e Event) {
	select {
	case b.events <- e:
	default:
	}
}

// Events returns the channel that the ballot's notifications are sent on.
// Notifications are dropped if the channel is full. It is never closed.
func (b *Ballot) Events() <-chan Event { return b.events }

// Ready waits for stored votes to be replayed and returns the outcome.
func (b *Ballot) Ready() error { return b.ready() }

func (b *Ballot) replay() error {
	voted := bitset.New(uint(b.root.Address))
	doc, err := scan(b.storage, func(v *Vote) error {
		if v.Index >= b.root.Address {
			return fmt.Errorf("%w: index %d is outside of the tree", ErrInvalidVote, v.Index)
		} else if voted.Test(uint(v.Index)) {
			return fmt.Errorf("%w: leaf %d", ErrDoubleVote, v.Index)
		}
		voted.Set(uint(v.Index))
		return nil
	})
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if doc.header == nil {
		if len(b.candidates) == 0 {
			return errors.New("a new ballot needs at least one candidate")
		}
	} else {
		if b.key != nil && !bytes.Equal(b.key, doc.header.Key) {
			return errors.New("ballot was issued by a different key")
		} else if len(b.candidates) > 0 && !slices.Equal(b.candidates, doc.header.Candidates) {
			return errors.New("candidates do not match the stored ballot")
		} else if err := checkCandidates(doc.header.Candidates); err != nil {
			return err
		}
		b.key = doc.header.Key
		b.candidates = doc.header.Candidates
	}
	b.voted = voted
	b.offset = doc.offset
	b.header = doc.header != nil
	b.first = doc.votes == 0
	b.finalized = doc.finalized

	log.Debugw("ballot replayed", "votes", doc.votes, "finalized", doc.finalized)
	return nil
}

// validate runs every check on v that does not depend on previous votes.
func (b *Ballot) validate(v *Vote) error {
	if err := v.check(); err != nil {
		return err
	} else if !slices.Contains(b.candidates, v.Vote) {
		return fmt.Errorf("%w: %q", ErrUnknownCandidate, v.Vote)
	} else if err := v.verify(); err != nil {
		return err
	}

	leaf, err := b.tree.Leaf(v.Key)
	if errors.Is(err, accumulator.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrLeafMismatch, err)
	} else if err != nil {
		return err
	} else if err := leaf.VerifySignature(); err != nil {
		return err
	}

	switch {
	case leaf.Address != v.Index:
		return fmt.Errorf("%w: index", ErrLeafMismatch)
	case !bytes.Equal(leaf.Hash, v.Hash):
		return fmt.Errorf("%w: hash", ErrLeafMismatch)
	case !bytes.Equal(leaf.Signature, v.Signature):
		return fmt.Errorf("%w: signature", ErrLeafMismatch)
	case leaf.Balance != v.Balance:
		return fmt.Errorf("%w: balance", ErrLeafMismatch)
	}
	return nil
}

func (b *Ballot) headerBytes() ([]byte, error) {
	candidates, err := json.Marshal(b.candidates)
	if err != nil {
		return nil, err
	}
	key, err := json.Marshal(b.key)
	if err != nil {
		return nil, err
	}
	return fmt.Appendf(nil, `{"type":%q,"key":%s,"candidates":%s,"votes":[`, ballotType, key, candidates), nil
}

// write appends data to the document. It must be called with mu held.
func (b *Ballot) write(data []byte) error {
	if _, err := b.storage.WriteAt(data, b.offset); err != nil {
		return err
	}
	b.offset += int64(len(data))
	return nil
}

// Push validates v and appends it to the ballot. It returns a receipt signed
// by the ballot's issuer.
func (b *Ballot) Push(v *Vote) (*Receipt, error) {
	if err := b.ready(); err != nil {
		return nil, err
	} else if b.secretKey == nil {
		return nil, errors.New("ballot was opened without its issuer key")
	} else if err := b.validate(v); err != nil {
		log.Debugw("rejected vote", "index", v.Index, "error", err.Error())
		return nil, err
	}
	record, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.finalized {
		return nil, ErrVotingFinalized
	} else if b.voted.Test(uint(v.Index)) {
		return nil, ErrAlreadyVoted
	}

	var data []byte
	if !b.header {
		if data, err = b.headerBytes(); err != nil {
			return nil, err
		}
	} else if !b.first {
		data = []byte{','}
	}
	data = append(data, record...)
	if err := b.write(data); err != nil {
		return nil, err
	}
	b.header, b.first = true, false
	b.voted.Set(uint(v.Index))

	b.emit(Event{Type: EventVote, Vote: v})
	return &Receipt{Receipt: signing.Sign(b.secretKey, v.receiptMessage()), Vote: v}, nil
}

// Finalize closes the ballot to new votes. Finalizing a ballot twice is not
// an error.
func (b *Ballot) Finalize() error {
	if err := b.ready(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.finalized {
		return nil
	}

	data := []byte(closer)
	if !b.header {
		if b.secretKey == nil {
			return errors.New("ballot was opened without its issuer key")
		}
		header, err := b.headerBytes()
		if err != nil {
			return err
		}
		data = append(header, data...)
	}
	if err := b.write(data); err != nil {
		return err
	}
	b.header = true
	b.finalized = true

	b.emit(Event{Type: EventFinalized})
	return nil
}

// Tally returns the total balance voted for each candidate. Every stored vote
// is validated again, and the first invalid one aborts the tally.
func (b *Ballot) Tally() (map[string]int64, error) {
	if err := b.ready(); err != nil {
		return nil, err
	} else if !b.Finalized() {
		return nil, ErrNotFinalized
	}

	counts := make(map[string]int64)
	for _, c := range b.Candidates() {
		counts[c] = 0
	}
	seen := bitset.New(uint(b.root.Address))

	_, err := scan(b.storage, func(v *Vote) error {
		if err := b.validate(v); err != nil {
			return fmt.Errorf("vote for leaf %d: %w", v.Index, err)
		} else if seen.Test(uint(v.Index)) {
			return fmt.Errorf("%w: leaf %d", ErrDoubleVote, v.Index)
		}
		seen.Set(uint(v.Index))

		sum, err := hashing.AddBalances(counts[v.Vote], v.Balance)
		if err != nil {
			return err
		}
		counts[v.Vote] = sum
		return nil
	})
	if err != nil {
		return nil, err
	}
	return counts, nil
}

// Has returns true if the leaf at index has voted.
func (b *Ballot) Has(index uint64) bool {
	if b.ready() != nil {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.voted.Test(uint(index))
}

// Votes returns the number of votes in the ballot.
func (b *Ballot) Votes() uint {
	if b.ready() != nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.voted.Count()
}

func (b *Ballot) Finalized() bool {
	if b.ready() != nil {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.finalized
}

func (b *Ballot) Candidates() []string {
	if b.ready() != nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.candidates)
}

// Key returns the public key of the ballot's issuer.
func (b *Ballot) Key() []byte {
	if b.ready() != nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return bytes.Clone(b.key)
}

// Close waits for any replay to finish and closes the underlying storage, if
// it can be closed.
func (b *Ballot) Close() error {
	b.ready()
	if c, ok := b.storage.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

type header struct {
	Type       string   `json:"type"`
	Key        []byte   `json:"key"`
	Candidates []string `json:"candidates"`
}

type document struct {
	header    *header // Nil if the storage is empty.
	offset    int64   // Where the next record is written.
	votes     int
	finalized bool
}

// scan parses the ballot document in s, calling fn for every vote in order.
func scan(s Storage, fn func(v *Vote) error) (*document, error) {
	size, err := s.Size()
	if err != nil {
		return nil, err
	} else if size == 0 {
		return &document{}, nil
	}
	dec := json.NewDecoder(io.NewSectionReader(s, 0, size))

	expect := func(d json.Delim) error {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("malformed ballot: %w", err)
		} else if tok != d {
			return fmt.Errorf("malformed ballot: expected %v, got %v", d, tok)
		}
		return nil
	}

	if err := expect('{'); err != nil {
		return nil, err
	}
	h := &header{}
fields:
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("malformed ballot header: %w", err)
		}
		field, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("malformed ballot header: unexpected %v", tok)
		}
		switch field {
		case "type":
			err = dec.Decode(&h.Type)
		case "key":
			err = dec.Decode(&h.Key)
		case "candidates":
			err = dec.Decode(&h.Candidates)
		case "votes":
			break fields
		default:
			return nil, fmt.Errorf("malformed ballot header: unknown field %q", field)
		}
		if err != nil {
			return nil, fmt.Errorf("malformed ballot header: %w", err)
		}
	}
	if h.Type != ballotType {
		return nil, fmt.Errorf("document is not a ballot: %q", h.Type)
	} else if len(h.Key) != signing.PublicKeySize {
		return nil, errors.New("malformed ballot header: issuer key is wrong size")
	} else if err := expect('['); err != nil {
		return nil, err
	}

	doc := &document{header: h, offset: dec.InputOffset()}
	for dec.More() {
		v := &Vote{}
		if err := dec.Decode(v); err != nil {
			return nil, fmt.Errorf("failed to decode vote %d: %w", doc.votes, err)
		} else if err := fn(v); err != nil {
			return nil, err
		}
		doc.votes++
		doc.offset = dec.InputOffset()
	}

	rest := make([]byte, size-doc.offset)
	if n, err := s.ReadAt(rest, doc.offset); n != len(rest) {
		return nil, fmt.Errorf("failed to read end of ballot: %w", err)
	}
	switch string(rest) {
	case "":
	case closer:
		doc.finalized = true
	default:
		return nil, fmt.Errorf("malformed ballot: unexpected data at offset %d", doc.offset)
	}

	return doc, nil
}
