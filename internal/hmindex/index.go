// Package hmindex contains the position arithmetic
// for a binary tree stored in heap order in a flat slice.
//
// The root lives at position 0,
// and the children of position i live at 2i+1 (left) and 2i+2 (right).
// Therefore every odd position is a left child
// and every even position other than zero is a right child.
package hmindex

import (
	"fmt"
	"math/bits"
)

// Sibling returns the position of the node sharing a parent with idx.
//
// The root has no sibling, so Sibling panics if idx is not positive.
func Sibling(idx int) int {
	if idx <= 0 {
		panic(fmt.Errorf("BUG: no sibling for position %d", idx))
	}

	if idx&1 == 0 {
		return idx - 1
	}
	return idx + 1
}

// Parent returns the position of the parent of the sibling pair
// (siblingIdx, idx).
// The arguments may be given in either order.
//
// Parent panics if either position is the root,
// or if the two positions are not siblings.
func Parent(siblingIdx, idx int) int {
	if siblingIdx <= 0 || idx <= 0 {
		panic(fmt.Errorf(
			"BUG: no parent for sibling pair (%d, %d)", siblingIdx, idx,
		))
	}

	hi := max(siblingIdx, idx)
	if hi&1 != 0 || min(siblingIdx, idx) != hi-1 {
		panic(fmt.Errorf(
			"BUG: positions %d and %d are not siblings", siblingIdx, idx,
		))
	}

	return hi/2 - 1
}

// ParentOf returns the parent position of a single non-root position.
func ParentOf(idx int) int {
	if idx <= 0 {
		panic(fmt.Errorf("BUG: no parent for position %d", idx))
	}
	return (idx - 1) / 2
}

// IsLeft reports whether idx is the left child of its parent.
// The root is neither left nor right.
func IsLeft(idx int) bool { return idx > 0 && idx&1 == 1 }

// Depth returns the number of edges between idx and the root.
func Depth(idx int) int {
	if idx < 0 {
		panic(fmt.Errorf("BUG: negative position %d", idx))
	}
	return bits.Len(uint(idx+1)) - 1
}
