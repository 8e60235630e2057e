// Package math implements the flat addressing of an accumulator's nodes.
//
// Nodes are numbered by an in-order traversal of an infinite binary tree:
// leaves have even addresses, and the level of a node is the number of
// trailing 1-bits in its address. None of these functions depend on the size
// of the tree, so they can be evaluated without any storage.
package math

// IsLeaf returns true if x is the address of a leaf node.
func IsLeaf(x uint64) bool {
	return (x & 1) == 0
}

// Level returns the level of a node in the tree. Leaves are level 0, their
// parents are level 1, and so on.
func Level(x uint64) uint64 {
	if IsLeaf(x) {
		return 0
	}

	k := uint64(0)
	for ((x >> k) & 1) == 1 {
		k += 1
	}
	return k
}

// Offset returns the position of x among the nodes of the same level.
func Offset(x uint64) uint64 {
	return x >> (Level(x) + 1)
}

// Address returns the address of the node at the given level and offset.
func Address(level, offset uint64) uint64 {
	return (offset << (level + 1)) | ((1 << level) - 1)
}

// Leaf returns the address of the n-th leaf.
func Leaf(n uint64) uint64 {
	return 2 * n
}

// Left returns the left child of an intermediate node.
func Left(x uint64) uint64 {
	k := Level(x)
	if k == 0 {
		panic("leaf node has no children")
	}
	return x ^ (1 << (k - 1))
}

// Right returns the right child of an intermediate node.
func Right(x uint64) uint64 {
	k := Level(x)
	if k == 0 {
		panic("leaf node has no children")
	}
	return x ^ (3 << (k - 1))
}

// Parent returns the address of the parent of x.
func Parent(x uint64) uint64 {
	k := Level(x)
	b := (x >> (k + 1)) & 1
	return (x | (1 << k)) ^ (b << (k + 1))
}

// Sibling returns the other child of the node's parent.
func Sibling(x uint64) uint64 {
	return Address(Level(x), Offset(x)^1)
}

// LeftSpan returns the address of the left-most leaf under x.
func LeftSpan(x uint64) uint64 {
	return x + 1 - (1 << Level(x))
}

// RightSpan returns the address of the right-most leaf under x.
func RightSpan(x uint64) uint64 {
	return x + (1 << Level(x)) - 1
}

// Width returns the number of leaves under x.
func Width(x uint64) uint64 {
	return 1 << Level(x)
}

// FullRoots returns the peaks of an accumulator whose next free leaf address
// is end, in ascending order. These are the roots of the maximal perfect
// subtrees that cover the leaves left of end, one per 1-bit of the leaf count.
func FullRoots(end uint64) []uint64 {
	if !IsLeaf(end) {
		panic("end of range must be a leaf address")
	}

	out := make([]uint64, 0)
	n := end / 2
	offset := uint64(0)
	for n > 0 {
		factor := uint64(1)
		for factor*2 <= n {
			factor *= 2
		}
		out = append(out, offset+factor-1)
		offset += 2 * factor
		n -= factor
	}
	return out
}
