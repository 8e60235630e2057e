package math

import (
	"math/bits"
	"testing"
)

func assert(ok bool) {
	if !ok {
		panic("Assertion failed.")
	}
}

func slicesEq(left, right []uint64) bool {
	if len(left) != len(right) {
		return false
	}
	for i := 0; i < len(left); i++ {
		if left[i] != right[i] {
			return false
		}
	}
	return true
}

func TestMath(t *testing.T) {
	assert(Level(1) == 1)
	assert(Level(2) == 0)
	assert(Level(3) == 2)
	assert(Level(7) == 3)

	assert(Offset(5) == 1)
	assert(Address(1, 1) == 5)
	assert(Address(2, 0) == 3)
	assert(Leaf(3) == 6)

	assert(Left(7) == 3)
	assert(Right(7) == 11)
	assert(Left(1) == 0)
	assert(Right(1) == 2)

	assert(Parent(0) == 1)
	assert(Parent(2) == 1)
	assert(Parent(1) == 3)
	assert(Parent(5) == 3)
	assert(Parent(3) == 7)
	assert(Parent(11) == 7)
	assert(Parent(8) == 9)

	assert(Sibling(0) == 2)
	assert(Sibling(2) == 0)
	assert(Sibling(13) == 9)
	assert(Sibling(9) == 13)
	assert(Sibling(3) == 11)

	assert(LeftSpan(7) == 0)
	assert(RightSpan(7) == 14)
	assert(LeftSpan(4) == 4)
	assert(Width(3) == 4)
}

func TestFullRoots(t *testing.T) {
	assert(slicesEq(FullRoots(0), []uint64{}))
	assert(slicesEq(FullRoots(2), []uint64{0}))
	assert(slicesEq(FullRoots(4), []uint64{1}))
	assert(slicesEq(FullRoots(6), []uint64{1, 4}))
	assert(slicesEq(FullRoots(8), []uint64{3}))

	// Five leaves (0b101) decompose into subtrees of four and one leaves.
	peaks := FullRoots(10)
	assert(slicesEq(peaks, []uint64{3, 8}))
	assert(Width(peaks[0]) == 4)
	assert(Width(peaks[1]) == 1)

	// One peak per 1-bit of the leaf count, covering every leaf exactly once.
	for n := uint64(0); n < 300; n++ {
		peaks := FullRoots(2 * n)
		assert(len(peaks) == bits.OnesCount64(n))

		next := uint64(0)
		for _, p := range peaks {
			assert(LeftSpan(p) == next)
			next = RightSpan(p) + 2
		}
		assert(next == 2*n)
	}
}

func TestParentChildConsistent(t *testing.T) {
	for x := uint64(0); x < 1024; x++ {
		p := Parent(x)
		assert(Left(p) == x || Right(p) == x)
		assert(Parent(Sibling(x)) == p)
		assert(Sibling(Sibling(x)) == x)
	}
}
