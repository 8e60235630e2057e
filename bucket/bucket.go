// Package bucket splits an account balance into several randomly sized
// sub-balances, so that no single leaf of a tree reveals a whole account.
package bucket

import (
	"crypto/rand"
	"errors"
	"math"
	"math/big"
	"slices"
)

// maxCbrt is the largest integer whose cube fits in an int64.
const maxCbrt = 2097151

func uniform(n int64) (int64, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(n))
	if err != nil {
		return 0, err
	}
	return v.Int64(), nil
}

func cbrt(x int64) int64 {
	n := min(int64(math.Cbrt(float64(x))), maxCbrt)
	for n > 0 && n*n*n > x {
		n--
	}
	for n < maxCbrt && (n+1)*(n+1)*(n+1) <= x {
		n++
	}
	return n
}

// Split returns a list of non-zero sub-balances with the same sign as balance
// that sum to balance. The number of sub-balances is drawn uniformly between
// the cube root of |balance| and 10% more than that. Balances with an absolute
// value of at most one are returned as is.
func Split(balance int64) ([]int64, error) {
	if balance == math.MinInt64 {
		return nil, errors.New("balance out of range")
	}
	sign := int64(1)
	if balance < 0 {
		sign, balance = -1, -balance
	}
	if balance <= 1 {
		return []int64{sign * balance}, nil
	}

	n := cbrt(balance)
	extra, err := uniform(n/10 + 1)
	if err != nil {
		return nil, err
	}
	n = min(n+extra, balance-1)

	// Draw n distinct cut points strictly inside (0, balance), so that no
	// interval between consecutive cuts is empty.
	seen := make(map[int64]struct{}, n)
	cuts := make([]int64, 0, n+2)
	cuts = append(cuts, 0, balance)
	for int64(len(seen)) < n {
		c, err := uniform(balance-1)
		if err != nil {
			return nil, err
		}
		c++
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		cuts = append(cuts, c)
	}
	slices.Sort(cuts)

	out := make([]int64, len(cuts)-1)
	for i := range out {
		out[i] = sign * (cuts[i+1] - cuts[i])
	}
	return out, nil
}
