package hmerkle

import (
	"bytes"
	"fmt"

	"github.com/gordian-engine/hmerkle/hmdigest"
	"github.com/gordian-engine/hmerkle/internal/hmindex"
)

// Role describes where a node sits relative to its parent.
type Role uint8

const (
	// RoleRoot is the role of the root,
	// and the zero value.
	RoleRoot Role = iota

	// RoleLeft marks a node that is the left child of its parent.
	RoleLeft

	// RoleRight marks a node that is the right child of its parent.
	RoleRight
)

func (r Role) String() string {
	switch r {
	case RoleRoot:
		return "Root"
	case RoleLeft:
		return "Left"
	case RoleRight:
		return "Right"
	default:
		return fmt.Sprintf("Role(%d)", uint8(r))
	}
}

// Node is a single hash in the tree, with its role.
type Node struct {
	Hash []byte
	Role Role
}

// Tree is a binary Merkle tree in heap order.
// Create one with [Build] or [BuildRecords].
type Tree struct {
	// View into a single backing slice,
	// each Hash being exactly hashSize bytes.
	nodes []Node

	nLeaves  int
	hashSize int
}

// Build returns a tree whose leaves are the given hashes, in order.
//
// Every leaf hash must be exactly d.Size() bytes,
// and there must be at least one leaf;
// otherwise the returned error wraps [ErrInvalidInput].
// If the number of leaves is odd, the last leaf is repeated once.
//
// The leaf hashes are copied, so the caller may reuse leafHashes.
func Build(leafHashes [][]byte, d hmdigest.Digest) (*Tree, error) {
	if len(leafHashes) == 0 {
		return nil, fmt.Errorf("cannot build tree without leaves: %w", ErrInvalidInput)
	}

	hashSize := d.Size()
	if hashSize <= 0 {
		panic(fmt.Errorf("BUG: digest size must be positive (got %d)", hashSize))
	}
	for i, h := range leafHashes {
		if len(h) != hashSize {
			return nil, LeafSizeError{Index: i, Got: len(h), Want: hashSize}
		}
	}

	nLeaves := len(leafHashes)
	if nLeaves&1 == 1 {
		nLeaves++
	}

	// Any tree where every non-leaf node has exactly two children
	// has this many nodes.
	nNodes := 2*nLeaves - 1

	// We know the exact node count and hash size up front,
	// so the whole tree is backed by one allocation.
	mem := make([]byte, nNodes*hashSize)
	nodes := make([]Node, nNodes)
	for i := range nodes {
		start := i * hashSize
		end := start + hashSize

		// Capacity is capped so an oversized append cannot reach a neighbor.
		nodes[i].Hash = mem[start:end:end]
	}

	firstLeaf := nNodes - nLeaves
	for i := range nLeaves {
		// Index clamp handles the padding leaf.
		src := leafHashes[min(i, len(leafHashes)-1)]
		copy(nodes[firstLeaf+i].Hash, src)
	}

	// Walk right-to-left over sibling pairs.
	// Every child is finished before its parent is computed,
	// because children always have higher positions than their parents.
	for idx := nNodes - 1; idx > 0; idx -= 2 {
		left, right := &nodes[idx-1], &nodes[idx]
		parent := &nodes[hmindex.Parent(idx-1, idx)]

		out := d.Merge(left.Hash, right.Hash, parent.Hash[:0])
		if len(out) != hashSize {
			panic(fmt.Errorf(
				"BUG: digest merge produced %d bytes, expected %d", len(out), hashSize,
			))
		}
		if &out[0] != &parent.Hash[0] {
			// The digest reallocated instead of appending in place.
			copy(parent.Hash, out)
		}

		left.Role = RoleLeft
		right.Role = RoleRight
	}

	return &Tree{
		nodes: nodes,

		nLeaves:  nLeaves,
		hashSize: hashSize,
	}, nil
}

// Root returns the root hash.
// The returned slice must not be modified.
func (t *Tree) Root() []byte {
	return t.nodes[0].Hash
}

// Len returns the total number of nodes in the tree,
// which is always 2*t.Leaves()-1.
func (t *Tree) Len() int {
	return len(t.nodes)
}

// Leaves returns the number of leaves,
// including the padding leaf if one was added.
func (t *Tree) Leaves() int {
	return t.nLeaves
}

// HashSize returns the size of every hash in the tree.
func (t *Tree) HashSize() int {
	return t.hashSize
}

// Node returns the node at the given heap position.
// The Hash field of the result must not be modified.
func (t *Tree) Node(pos int) Node {
	return t.nodes[pos]
}

// LeafPosition returns the heap position of the leaf
// at the given zero-based leaf index.
// It panics if leafIdx is out of range.
func (t *Tree) LeafPosition(leafIdx int) int {
	if leafIdx < 0 || leafIdx >= t.nLeaves {
		panic(fmt.Errorf(
			"BUG: leaf index %d out of range [0, %d)", leafIdx, t.nLeaves,
		))
	}
	return len(t.nodes) - t.nLeaves + leafIdx
}

// Leaf returns the hash of the leaf at the given zero-based leaf index.
// The returned slice must not be modified.
func (t *Tree) Leaf(leafIdx int) []byte {
	return t.nodes[t.LeafPosition(leafIdx)].Hash
}

// Depth returns the number of edges between the node at pos and the root.
func (t *Tree) Depth(pos int) int {
	return hmindex.Depth(pos)
}

// Equal reports whether t and other have the same root hash.
// Two trees built from the same leaves with the same digest are always equal.
func (t *Tree) Equal(other *Tree) bool {
	if t == nil || other == nil {
		return t == other
	}
	return bytes.Equal(t.Root(), other.Root())
}
