package commitments

import (
	"math"
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestCommitVerify(t *testing.T) {
	c := qt.New(t)

	for _, balance := range []int64{0, 1, 30, -12, math.MaxInt64, math.MinInt64} {
		com, dec, err := Commit(balance)
		c.Assert(err, qt.IsNil)
		c.Assert(com, qt.HasLen, Size)
		c.Assert(dec, qt.HasLen, DecommitmentSize)

		c.Assert(Verify(com, dec, balance), qt.IsTrue, qt.Commentf("balance %d", balance))
		c.Assert(Verify(com, dec, balance-1), qt.IsFalse)

		other, err := GenerateDecommitment()
		c.Assert(err, qt.IsNil)
		c.Assert(Verify(com, other, balance), qt.IsFalse)
	}
}

func TestHiding(t *testing.T) {
	c := qt.New(t)

	a, _, err := Commit(5)
	c.Assert(err, qt.IsNil)
	b, _, err := Commit(5)
	c.Assert(err, qt.IsNil)
	c.Assert(a, qt.Not(qt.DeepEquals), b)
}

func TestHomomorphic(t *testing.T) {
	c := qt.New(t)

	balances := []int64{30, 70, -5, 1000}
	var (
		coms  [][]byte
		decs  [][]byte
		total int64
	)
	for _, b := range balances {
		com, dec, err := Commit(b)
		c.Assert(err, qt.IsNil)
		coms = append(coms, com)
		decs = append(decs, dec)
		total += b
	}

	sum, err := Sum(coms...)
	c.Assert(err, qt.IsNil)
	acc, err := Accumulate(decs...)
	c.Assert(err, qt.IsNil)
	c.Assert(Verify(sum, acc, total), qt.IsTrue)
	c.Assert(Verify(sum, acc, total+1), qt.IsFalse)

	// Order of summation does not matter.
	rev, err := Sum(coms[3], coms[2], coms[1], coms[0])
	c.Assert(err, qt.IsNil)
	c.Assert(rev, qt.DeepEquals, sum)

	// Associativity.
	left, err := Sum(coms[0], coms[1])
	c.Assert(err, qt.IsNil)
	right, err := Sum(coms[2], coms[3])
	c.Assert(err, qt.IsNil)
	nested, err := Sum(left, right)
	c.Assert(err, qt.IsNil)
	c.Assert(nested, qt.DeepEquals, sum)
}

func TestEmptySum(t *testing.T) {
	c := qt.New(t)

	sum, err := Sum()
	c.Assert(err, qt.IsNil)
	acc, err := Accumulate()
	c.Assert(err, qt.IsNil)
	c.Assert(Verify(sum, acc, 0), qt.IsTrue)
}

func TestMalformed(t *testing.T) {
	c := qt.New(t)

	_, err := Sum([]byte{1, 2, 3})
	c.Assert(err, qt.IsNotNil)
	_, err = Accumulate(make([]byte, 31))
	c.Assert(err, qt.IsNotNil)
	c.Assert(Verify(make([]byte, 5), make([]byte, 32), 0), qt.IsFalse)
	c.Assert(Check(make([]byte, 3)), qt.ErrorIs, ErrInvalid)
}
