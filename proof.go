package hmerkle

import (
	"bytes"

	"github.com/gordian-engine/hmerkle/hmdigest"
	"github.com/gordian-engine/hmerkle/internal/hmindex"
)

// FindLeaf returns the heap position of the first leaf equal to h.
// If no leaf matches, ok is false.
func (t *Tree) FindLeaf(h []byte) (pos int, ok bool) {
	for i := len(t.nodes) - t.nLeaves; i < len(t.nodes); i++ {
		if bytes.Equal(t.nodes[i].Hash, h) {
			return i, true
		}
	}
	return -1, false
}

// Branch returns the path from the first leaf equal to h up to the root.
// The first element is the leaf itself and the last element is the root.
//
// If no leaf matches h, Branch returns nil.
// The Hash fields of the result must not be modified.
func (t *Tree) Branch(h []byte) []Node {
	pos, ok := t.FindLeaf(h)
	if !ok {
		return nil
	}
	return t.branchFrom(pos)
}

// BranchAt is like [*Tree.Branch], but it selects the leaf by index
// instead of by value.
// It panics if leafIdx is out of range.
func (t *Tree) BranchAt(leafIdx int) []Node {
	return t.branchFrom(t.LeafPosition(leafIdx))
}

func (t *Tree) branchFrom(pos int) []Node {
	out := make([]Node, 0, hmindex.Depth(pos)+1)
	for pos > 0 {
		out = append(out, t.nodes[pos])
		pos = hmindex.ParentOf(pos)
	}
	return append(out, t.nodes[0])
}

// Proof returns the sibling of every node on the path
// from the first leaf equal to h up to, but not including, the root.
// Siblings are ordered from the bottom of the tree to the top.
//
// Together with the leaf hash,
// the proof is sufficient for [Verify] to recompute the root.
//
// If no leaf matches h, Proof returns nil.
// The Hash fields of the result must not be modified.
func (t *Tree) Proof(h []byte) []Node {
	pos, ok := t.FindLeaf(h)
	if !ok {
		return nil
	}
	return t.proofFrom(pos)
}

// ProofAt is like [*Tree.Proof], but it selects the leaf by index
// instead of by value.
// Use ProofAt when leaves may repeat,
// since Proof always describes the first matching leaf.
// It panics if leafIdx is out of range.
func (t *Tree) ProofAt(leafIdx int) []Node {
	return t.proofFrom(t.LeafPosition(leafIdx))
}

func (t *Tree) proofFrom(pos int) []Node {
	out := make([]Node, 0, hmindex.Depth(pos))
	for pos > 0 {
		sib := hmindex.Sibling(pos)
		out = append(out, t.nodes[sib])
		pos = hmindex.Parent(sib, pos)
	}
	return out
}

// Verify reports whether proof connects leaf to root under d.
//
// Each proof node is combined with the running hash,
// on the left if the node has [RoleLeft] and on the right otherwise.
// An empty proof is valid only when leaf equals root.
func Verify(d hmdigest.Digest, root, leaf []byte, proof []Node) bool {
	if len(proof) == 0 {
		return bytes.Equal(leaf, root)
	}

	// Two buffers so that Merge never reads and writes the same memory.
	sz := d.Size()
	buf := make([]byte, 2*sz)
	cur, next := buf[:0:sz], buf[sz:sz:2*sz]

	acc := leaf
	for _, n := range proof {
		if n.Role == RoleLeft {
			next = d.Merge(n.Hash, acc, next[:0])
		} else {
			next = d.Merge(acc, n.Hash, next[:0])
		}
		acc = next
		cur, next = next, cur
	}

	return bytes.Equal(acc, root)
}
