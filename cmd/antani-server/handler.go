package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/Bren2010/antani/ballot"
	"github.com/Bren2010/antani/crypto/signing"
	"github.com/Bren2010/antani/log"
	"github.com/Bren2010/antani/tree/accumulator"
)

const maxBodySize = 64 * 1024

var (
	errBadRequest = errors.New("bad request")
	errNoBallot   = errors.New("no ballot is configured")
)

type Handler struct {
	tree   *accumulator.Tree
	ballot *ballot.Ballot // Nil if no ballot is configured.
}

func newRouter(h *Handler) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/v1/root", HandleAPI("root", h.Root)).Methods("GET")
	r.HandleFunc("/v1/node/{index:[0-9]+}", HandleAPI("node", h.Node)).Methods("GET")
	r.HandleFunc("/v1/leaf/{key}", HandleAPI("leaf", h.Leaf)).Methods("GET")
	r.HandleFunc("/v1/proof/{key}", HandleAPI("proof", h.Proof)).Methods("GET")
	r.HandleFunc("/v1/messages/verify", HandleAPI("verify", h.VerifyMessage)).Methods("POST")
	r.HandleFunc("/v1/ballot", HandleAPI("ballot", h.Ballot)).Methods("GET")
	r.HandleFunc("/v1/ballot/votes", HandleAPI("votes", h.Push)).Methods("POST")
	r.HandleFunc("/v1/ballot/finalize", HandleAPI("finalize", h.Finalize)).Methods("POST")
	r.HandleFunc("/v1/ballot/tally", HandleAPI("tally", h.Tally)).Methods("GET")
	return r
}

type apiFunc func(req *http.Request) (any, error)

func statusCode(err error) int {
	switch {
	case errors.Is(err, accumulator.ErrNotFound) && !errors.Is(err, ballot.ErrLeafMismatch):
		return http.StatusNotFound
	case errors.Is(err, errNoBallot):
		return http.StatusNotFound
	case ballot.IsStateError(err):
		return http.StatusConflict
	case errors.Is(err, errBadRequest),
		errors.Is(err, ballot.ErrInvalidVote),
		errors.Is(err, ballot.ErrUnknownCandidate),
		errors.Is(err, ballot.ErrLeafMismatch),
		errors.Is(err, ballot.ErrInvalidSignature):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// HandleAPI wraps an API endpoint, encoding its result or error as JSON and
// counting the request.
func HandleAPI(path string, fn apiFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, req *http.Request) {
		rw.Header().Set("Content-Type", "application/json")

		status, res := http.StatusOK, any(nil)
		out, err := fn(req)
		if err != nil {
			status = statusCode(err)
			res = map[string]string{"error": err.Error()}
			if status == http.StatusInternalServerError {
				log.Errorw(err, "request failed: "+req.URL.Path)
			}
		} else {
			res = out
		}
		requestCtr.WithLabelValues(path, fmt.Sprint(status)).Inc()

		rw.WriteHeader(status)
		if err := json.NewEncoder(rw).Encode(res); err != nil {
			log.Warnw("failed to write response", "path", path, "error", err.Error())
		}
	}
}

// parseKey accepts public keys in either the standard or the URL-safe base64
// alphabet, since the former does not fit in a URL path.
func parseKey(s string) ([]byte, error) {
	key, err := signing.DecodeKey(strings.NewReplacer("-", "+", "_", "/").Replace(s))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return key, nil
}

func decodeBody(req *http.Request, v any) error {
	if err := json.NewDecoder(io.LimitReader(req.Body, maxBodySize)).Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

func (h *Handler) Root(req *http.Request) (any, error) {
	return h.tree.Root()
}

func (h *Handler) Node(req *http.Request) (any, error) {
	index, err := strconv.ParseUint(mux.Vars(req)["index"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return h.tree.Node(index)
}

func (h *Handler) Leaf(req *http.Request) (any, error) {
	key, err := parseKey(mux.Vars(req)["key"])
	if err != nil {
		return nil, err
	}
	return h.tree.Leaf(key)
}

func (h *Handler) Proof(req *http.Request) (any, error) {
	key, err := parseKey(mux.Vars(req)["key"])
	if err != nil {
		return nil, err
	}

	start := time.Now()
	proof, err := h.tree.Proof(key)
	proofOps.WithLabelValues(fmt.Sprint(err == nil)).Inc()
	proofDur.Observe(float64(time.Since(start).Microseconds()))

	return proof, err
}

type verifyResponse struct {
	Leaves  []*accumulator.Node `json:"leaves"`
	Balance int64               `json:"balance"`
}

func (h *Handler) VerifyMessage(req *http.Request) (any, error) {
	msg := &accumulator.Message{}
	if err := decodeBody(req, msg); err != nil {
		return nil, err
	}
	leaves, err := h.tree.VerifyMessage(msg)
	if errors.Is(err, accumulator.ErrInvalidSignature) {
		return nil, fmt.Errorf("%w: %v", errBadRequest, err)
	} else if err != nil {
		return nil, err
	}

	res := &verifyResponse{Leaves: leaves}
	for _, leaf := range leaves {
		res.Balance += leaf.Balance
	}
	return res, nil
}

type ballotResponse struct {
	Key        []byte   `json:"key"`
	Candidates []string `json:"candidates"`
	Votes      uint     `json:"votes"`
	Finalized  bool     `json:"finalized"`
}

func (h *Handler) Ballot(req *http.Request) (any, error) {
	if h.ballot == nil {
		return nil, errNoBallot
	} else if err := h.ballot.Ready(); err != nil {
		return nil, err
	}
	return &ballotResponse{
		Key:        h.ballot.Key(),
		Candidates: h.ballot.Candidates(),
		Votes:      h.ballot.Votes(),
		Finalized:  h.ballot.Finalized(),
	}, nil
}

func pushOutcome(err error) string {
	switch {
	case err == nil:
		return "accepted"
	case ballot.IsStateError(err):
		return "rejected"
	case statusCode(err) == http.StatusBadRequest:
		return "invalid"
	default:
		return "error"
	}
}

func (h *Handler) Push(req *http.Request) (any, error) {
	if h.ballot == nil {
		return nil, errNoBallot
	}
	v := &ballot.Vote{}
	if err := decodeBody(req, v); err != nil {
		return nil, err
	}
	receipt, err := h.ballot.Push(v)
	pushOps.WithLabelValues(pushOutcome(err)).Inc()
	return receipt, err
}

func (h *Handler) Finalize(req *http.Request) (any, error) {
	if h.ballot == nil {
		return nil, errNoBallot
	} else if err := h.ballot.Finalize(); err != nil {
		return nil, err
	}
	return h.Ballot(req)
}

func (h *Handler) Tally(req *http.Request) (any, error) {
	if h.ballot == nil {
		return nil, errNoBallot
	}
	counts, err := h.ballot.Tally()
	tallyOps.WithLabelValues(fmt.Sprint(err == nil)).Inc()
	return counts, err
}
