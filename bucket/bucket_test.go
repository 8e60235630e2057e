package bucket

import (
	"math"
	"testing"

	qt "github.com/frankban/quicktest"
)

func checkSplit(c *qt.C, balance int64) []int64 {
	buckets, err := Split(balance)
	c.Assert(err, qt.IsNil)

	sum := int64(0)
	for _, b := range buckets {
		c.Assert(b, qt.Not(qt.Equals), int64(0), qt.Commentf("balance %d", balance))
		if balance < 0 {
			c.Assert(b < 0, qt.IsTrue)
		}
		sum += b
	}
	c.Assert(sum, qt.Equals, balance)
	return buckets
}

func TestSumsToBalance(t *testing.T) {
	c := qt.New(t)
	for i := int64(1); i < 2000; i += 7 {
		checkSplit(c, i*i)
	}
	for i := int64(1); i <= 10; i++ {
		checkSplit(c, i)
		checkSplit(c, -i)
	}
}

func TestBucketCount(t *testing.T) {
	c := qt.New(t)

	buckets := checkSplit(c, 1000000)
	c.Assert(len(buckets) >= 101, qt.IsTrue, qt.Commentf("got %d", len(buckets)))
	c.Assert(len(buckets) <= 111, qt.IsTrue, qt.Commentf("got %d", len(buckets)))

	c.Assert(checkSplit(c, 0), qt.DeepEquals, []int64{0})
	c.Assert(checkSplit(c, 1), qt.DeepEquals, []int64{1})
	c.Assert(checkSplit(c, -1), qt.DeepEquals, []int64{-1})
	c.Assert(checkSplit(c, 2), qt.DeepEquals, []int64{1, 1})
}

func TestCbrt(t *testing.T) {
	c := qt.New(t)
	c.Assert(cbrt(7), qt.Equals, int64(1))
	c.Assert(cbrt(8), qt.Equals, int64(2))
	c.Assert(cbrt(999999), qt.Equals, int64(99))
	c.Assert(cbrt(1000000), qt.Equals, int64(100))
	c.Assert(cbrt(math.MaxInt64), qt.Equals, int64(maxCbrt))

	_, err := Split(math.MinInt64)
	c.Assert(err, qt.ErrorMatches, "balance out of range")
}
