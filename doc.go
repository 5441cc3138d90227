// Package hmerkle contains a fixed-shape binary Merkle tree
// stored as a flat array in heap order.
//
// Given an ordered list of leaf hashes, [Build] produces a [*Tree]
// whose root commits to every leaf.
// The tree can then produce a proof for any of its leaves
// ([*Tree.Proof]), and anyone holding only the root
// can check that proof with [Verify].
//
// Layout: the root is at position 0,
// the children of position i are at 2i+1 and 2i+2,
// and the leaves occupy the last [*Tree.Leaves] positions in input order.
// An odd number of leaves is padded by repeating the final leaf,
// so every internal node has exactly two children.
//
// The hash function is supplied through [hmdigest.Digest],
// and records can be turned into leaves with [BuildRecords]
// and an [hmencode.Encoder].
//
// A built tree is never modified, so it may be shared between goroutines.
package hmerkle
