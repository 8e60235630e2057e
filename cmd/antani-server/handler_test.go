package main

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"slices"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/Bren2010/antani/ballot"
	"github.com/Bren2010/antani/crypto/signing"
	"github.com/Bren2010/antani/db/memory"
	"github.com/Bren2010/antani/tree/accumulator"
)

type testServer struct {
	router http.Handler
	tree   *accumulator.Tree
	ballot *ballot.Ballot
	pairs  []*signing.KeyPair
}

func newTestServer(c *qt.C, balances ...int64) *testServer {
	inputs := make([]accumulator.LeafInput, len(balances))
	pairs := make([]*signing.KeyPair, len(balances))
	for i, balance := range balances {
		kp, err := signing.Keygen()
		c.Assert(err, qt.IsNil)
		pub, _ := kp.Public()
		sk, _ := kp.Secret()
		inputs[i] = accumulator.LeafInput{Balance: balance, Key: pub, SecretKey: sk}
		pairs[i] = kp
	}
	store := memory.NewNodeStore()
	_, _, err := accumulator.Write(store, accumulator.ModePlain, slices.Values(inputs))
	c.Assert(err, qt.IsNil)
	tree, err := accumulator.NewTree(store)
	c.Assert(err, qt.IsNil)

	issuer, err := signing.Keygen()
	c.Assert(err, qt.IsNil)
	b, err := ballot.Open(ballot.NewMemoryStorage(), tree, ballot.Options{Issuer: issuer, Candidates: []string{"X", "Y"}})
	c.Assert(err, qt.IsNil)

	return &testServer{router: newRouter(&Handler{tree: tree, ballot: b}), tree: tree, ballot: b, pairs: pairs}
}

func (ts *testServer) do(c *qt.C, method, path string, body any, out any) int {
	var buf bytes.Buffer
	if body != nil {
		c.Assert(json.NewEncoder(&buf).Encode(body), qt.IsNil)
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	if out != nil {
		c.Assert(json.Unmarshal(rec.Body.Bytes(), out), qt.IsNil)
	}
	return rec.Code
}

func urlKey(kp *signing.KeyPair) string {
	raw, _ := kp.Public()
	return base64.URLEncoding.EncodeToString(raw)
}

func TestTreeEndpoints(t *testing.T) {
	c := qt.New(t)
	ts := newTestServer(c, 30, 70)

	root := &accumulator.Node{}
	c.Assert(ts.do(c, "GET", "/v1/root", nil, root), qt.Equals, http.StatusOK)
	c.Assert(root.Balance, qt.Equals, int64(100))
	c.Assert(root.Kind, qt.Equals, accumulator.KindRoot)

	node := &accumulator.Node{}
	c.Assert(ts.do(c, "GET", "/v1/node/2", nil, node), qt.Equals, http.StatusOK)
	c.Assert(node.Balance, qt.Equals, int64(70))
	c.Assert(ts.do(c, "GET", "/v1/node/99", nil, nil), qt.Equals, http.StatusNotFound)

	leaf := &accumulator.Node{}
	c.Assert(ts.do(c, "GET", "/v1/leaf/"+urlKey(ts.pairs[0]), nil, leaf), qt.Equals, http.StatusOK)
	c.Assert(leaf.Address, qt.Equals, uint64(0))
	c.Assert(ts.do(c, "GET", "/v1/leaf/nope", nil, nil), qt.Equals, http.StatusBadRequest)

	proof := &accumulator.Proof{}
	c.Assert(ts.do(c, "GET", "/v1/proof/"+urlKey(ts.pairs[1]), nil, proof), qt.Equals, http.StatusOK)
	c.Assert(proof.Verify(), qt.IsNil)
	c.Assert(proof.Root.Hash, qt.DeepEquals, root.Hash)

	msg, err := accumulator.SignMessage(ts.pairs, []byte("solvent"))
	c.Assert(err, qt.IsNil)
	res := &verifyResponse{}
	c.Assert(ts.do(c, "POST", "/v1/messages/verify", msg, res), qt.Equals, http.StatusOK)
	c.Assert(res.Balance, qt.Equals, int64(100))
	msg.Message = []byte("insolvent")
	c.Assert(ts.do(c, "POST", "/v1/messages/verify", msg, nil), qt.Equals, http.StatusBadRequest)
}

func TestBallotEndpoints(t *testing.T) {
	c := qt.New(t)
	ts := newTestServer(c, 30, 70)

	leaf, err := ts.tree.Leaf(mustPublic(c, ts.pairs[0]))
	c.Assert(err, qt.IsNil)
	sk, err := ts.pairs[0].Secret()
	c.Assert(err, qt.IsNil)
	v, err := ballot.NewVote(leaf, sk, "X")
	c.Assert(err, qt.IsNil)

	receipt := &ballot.Receipt{}
	c.Assert(ts.do(c, "POST", "/v1/ballot/votes", v, receipt), qt.Equals, http.StatusOK)
	c.Assert(receipt.Vote.Index, qt.Equals, uint64(0))

	c.Assert(ts.do(c, "POST", "/v1/ballot/votes", v, nil), qt.Equals, http.StatusConflict)
	v.Vote = "Z"
	c.Assert(ts.do(c, "POST", "/v1/ballot/votes", v, nil), qt.Equals, http.StatusBadRequest)
	c.Assert(ts.do(c, "GET", "/v1/ballot/tally", nil, nil), qt.Equals, http.StatusConflict)

	status := &ballotResponse{}
	c.Assert(ts.do(c, "POST", "/v1/ballot/finalize", nil, status), qt.Equals, http.StatusOK)
	c.Assert(status.Finalized, qt.IsTrue)
	c.Assert(status.Votes, qt.Equals, uint(1))

	counts := map[string]int64{}
	c.Assert(ts.do(c, "GET", "/v1/ballot/tally", nil, &counts), qt.Equals, http.StatusOK)
	c.Assert(counts, qt.DeepEquals, map[string]int64{"X": 30, "Y": 0})
}

func TestNoBallot(t *testing.T) {
	c := qt.New(t)
	ts := newTestServer(c, 1)
	ts.router = newRouter(&Handler{tree: ts.tree})

	c.Assert(ts.do(c, "GET", "/v1/ballot", nil, nil), qt.Equals, http.StatusNotFound)
	c.Assert(ts.do(c, "POST", "/v1/ballot/finalize", nil, nil), qt.Equals, http.StatusNotFound)
}

func mustPublic(c *qt.C, kp *signing.KeyPair) []byte {
	raw, err := kp.Public()
	c.Assert(err, qt.IsNil)
	return raw
}
