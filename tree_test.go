package hmerkle_test

import (
	"bytes"
	"fmt"
	"slices"
	"testing"

	"github.com/gordian-engine/hmerkle"
	"github.com/gordian-engine/hmerkle/hmdigest/hmalgo"
	"github.com/gordian-engine/hmerkle/hmencode"
	"github.com/gordian-engine/hmerkle/internal/hmtest"
	"github.com/stretchr/testify/require"
)

var fnvDigest = hmtest.FNV32Digest{}

func merge(l, r []byte) []byte {
	return fnvDigest.Merge(l, r, nil)
}

func fnvLeaves(names ...string) [][]byte {
	out := make([][]byte, len(names))
	for i, n := range names {
		out[i] = hmtest.FNV32(n)
	}
	return out
}

func numberedLeaves(n int) [][]byte {
	out := make([][]byte, n)
	for i := range out {
		out[i] = hmtest.FNV32(fmt.Sprintf("data%d", i))
	}
	return out
}

func TestBuild_empty(t *testing.T) {
	t.Parallel()

	tree, err := hmerkle.Build(nil, fnvDigest)
	require.ErrorIs(t, err, hmerkle.ErrInvalidInput)
	require.Nil(t, tree)

	tree, err = hmerkle.Build([][]byte{}, fnvDigest)
	require.ErrorIs(t, err, hmerkle.ErrInvalidInput)
	require.Nil(t, tree)
}

func TestBuild_wrongLeafSize(t *testing.T) {
	t.Parallel()

	leaves := fnvLeaves("a", "b")
	leaves = append(leaves, []byte("too long for fnv32"))

	_, err := hmerkle.Build(leaves, fnvDigest)
	require.ErrorIs(t, err, hmerkle.ErrInvalidInput)

	var lse hmerkle.LeafSizeError
	require.ErrorAs(t, err, &lse)
	require.Equal(t, 2, lse.Index)
	require.Equal(t, 18, lse.Got)
	require.Equal(t, 4, lse.Want)
}

func TestBuild_nodeCount(t *testing.T) {
	t.Parallel()

	for n := 1; n <= 40; n++ {
		tree, err := hmerkle.Build(numberedLeaves(n), fnvDigest)
		require.NoError(t, err)

		padded := n + n%2
		require.Equal(t, padded, tree.Leaves(), "n=%d", n)
		require.Equal(t, 2*padded-1, tree.Len(), "n=%d", n)
		require.Equal(t, 4, tree.HashSize())
	}
}

func TestBuild_fourLeaves(t *testing.T) {
	t.Parallel()

	/* Layout:
	       0
	     1   2
	    a b c d
	*/
	a, b, c, d := hmtest.FNV32("a"), hmtest.FNV32("b"), hmtest.FNV32("c"), hmtest.FNV32("d")
	tree, err := hmerkle.Build([][]byte{a, b, c, d}, fnvDigest)
	require.NoError(t, err)

	ab := merge(a, b)
	cd := merge(c, d)

	require.Equal(t, merge(ab, cd), tree.Root())
	require.Equal(t, hmerkle.Node{Hash: ab, Role: hmerkle.RoleLeft}, tree.Node(1))
	require.Equal(t, hmerkle.Node{Hash: cd, Role: hmerkle.RoleRight}, tree.Node(2))
	require.Equal(t, hmerkle.Node{Hash: a, Role: hmerkle.RoleLeft}, tree.Node(3))
	require.Equal(t, hmerkle.Node{Hash: b, Role: hmerkle.RoleRight}, tree.Node(4))
	require.Equal(t, hmerkle.Node{Hash: c, Role: hmerkle.RoleLeft}, tree.Node(5))
	require.Equal(t, hmerkle.Node{Hash: d, Role: hmerkle.RoleRight}, tree.Node(6))
	require.Equal(t, hmerkle.RoleRoot, tree.Node(0).Role)

	for i, want := range [][]byte{a, b, c, d} {
		require.Equal(t, want, tree.Leaf(i))
		require.Equal(t, 3+i, tree.LeafPosition(i))
	}
}

func TestBuild_sixLeavesHeapOrder(t *testing.T) {
	t.Parallel()

	/* Six leaves in positions 5 through 10,
	   so the first two leaves sit one level higher than the rest:

	             0
	        1         2
	     3    4     L0 L1
	   L2 L3 L4 L5
	*/
	leaves := numberedLeaves(6)
	tree, err := hmerkle.Build(leaves, fnvDigest)
	require.NoError(t, err)
	require.Equal(t, 11, tree.Len())

	n2 := merge(leaves[0], leaves[1])
	n3 := merge(leaves[2], leaves[3])
	n4 := merge(leaves[4], leaves[5])
	n1 := merge(n3, n4)
	require.Equal(t, merge(n1, n2), tree.Root())

	require.Equal(t, 2, tree.Depth(tree.LeafPosition(0)))
	require.Equal(t, 3, tree.Depth(tree.LeafPosition(5)))
}

func TestBuild_oddCountPadsLastLeaf(t *testing.T) {
	t.Parallel()

	three, err := hmerkle.Build(fnvLeaves("a", "b", "c"), fnvDigest)
	require.NoError(t, err)

	four, err := hmerkle.Build(fnvLeaves("a", "b", "c", "c"), fnvDigest)
	require.NoError(t, err)

	require.Equal(t, 7, three.Len())
	require.Equal(t, 4, three.Leaves())
	require.Equal(t, four.Root(), three.Root())
	require.True(t, three.Equal(four))
	require.Equal(t, hmtest.FNV32("c"), three.Leaf(3))
}

func TestBuild_singleLeaf(t *testing.T) {
	t.Parallel()

	a := hmtest.FNV32("a")
	tree, err := hmerkle.Build([][]byte{a}, fnvDigest)
	require.NoError(t, err)

	require.Equal(t, 2, tree.Leaves())
	require.Equal(t, 3, tree.Len())
	require.Equal(t, merge(a, a), tree.Root())
}

func TestBuild_copiesInput(t *testing.T) {
	t.Parallel()

	leaves := fnvLeaves("a", "b")
	tree, err := hmerkle.Build(leaves, fnvDigest)
	require.NoError(t, err)
	root := bytes.Clone(tree.Root())

	leaves[0][0] ^= 0xff
	require.Equal(t, hmtest.FNV32("a"), tree.Leaf(0))
	require.Equal(t, root, tree.Root())
}

func TestBuild_idempotent(t *testing.T) {
	t.Parallel()

	d := hmalgo.MustByName(hmalgo.SHA256Double)
	leaves := hmtest.RandomLeavesForTest(t, 13, d)
	t1, err := hmerkle.Build(leaves, d)
	require.NoError(t, err)
	t2, err := hmerkle.Build(leaves, d)
	require.NoError(t, err)

	require.Equal(t, t1.Root(), t2.Root())
	require.True(t, t1.Equal(t2))
}

func TestBuild_tamperChangesRoot(t *testing.T) {
	t.Parallel()

	leaves := numberedLeaves(16)
	orig, err := hmerkle.Build(leaves, fnvDigest)
	require.NoError(t, err)

	for i := range leaves {
		tampered := make([][]byte, len(leaves))
		copy(tampered, leaves)
		tampered[i] = hmtest.FNV32("tampered")

		tt, err := hmerkle.Build(tampered, fnvDigest)
		require.NoError(t, err)
		require.NotEqual(t, orig.Root(), tt.Root(), "changing leaf %d did not change root", i)
		require.False(t, orig.Equal(tt))
	}
}

func TestBuildRecords_bitFlipChangesRoot(t *testing.T) {
	t.Parallel()

	d := hmalgo.MustByName(hmalgo.SHA256Double)

	records := make([][]byte, 16)
	for i := range records {
		records[i] = fmt.Appendf(nil, "data%d", i+1)
	}
	orig, err := hmerkle.BuildRecords(records, hmencode.Bytes{}, d)
	require.NoError(t, err)

	for i := range records {
		for bit := range 8 * len(records[i]) {
			tampered := slices.Clone(records)
			tampered[i] = bytes.Clone(records[i])
			tampered[i][bit/8] ^= 1 << (bit % 8)

			tt, err := hmerkle.BuildRecords(tampered, hmencode.Bytes{}, d)
			require.NoError(t, err)
			require.False(t, orig.Equal(tt), "flipping bit %d of record %d did not change root", bit, i)
		}
	}
}

func TestTree_Equal_nil(t *testing.T) {
	t.Parallel()

	tree, err := hmerkle.Build(fnvLeaves("a"), fnvDigest)
	require.NoError(t, err)

	var nilTree *hmerkle.Tree
	require.False(t, tree.Equal(nil))
	require.False(t, nilTree.Equal(tree))
	require.True(t, nilTree.Equal(nil))
}

func TestTree_LeafPosition_outOfRange(t *testing.T) {
	t.Parallel()

	tree, err := hmerkle.Build(fnvLeaves("a", "b"), fnvDigest)
	require.NoError(t, err)

	require.Panics(t, func() { _ = tree.LeafPosition(-1) })
	require.Panics(t, func() { _ = tree.LeafPosition(2) })
}

func TestRole_String(t *testing.T) {
	t.Parallel()

	require.Equal(t, "Root", hmerkle.RoleRoot.String())
	require.Equal(t, "Left", hmerkle.RoleLeft.String())
	require.Equal(t, "Right", hmerkle.RoleRight.String())
	require.Equal(t, "Role(9)", hmerkle.Role(9).String())
}
