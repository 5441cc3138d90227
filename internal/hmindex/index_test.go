package hmindex_test

import (
	"testing"

	"github.com/gordian-engine/hmerkle/internal/hmindex"
	"github.com/stretchr/testify/require"
)

func TestSibling(t *testing.T) {
	t.Parallel()

	/* Positions in a seven node tree:
	       0
	     1   2
	    3 4 5 6
	*/
	require.Equal(t, 2, hmindex.Sibling(1))
	require.Equal(t, 1, hmindex.Sibling(2))
	require.Equal(t, 4, hmindex.Sibling(3))
	require.Equal(t, 3, hmindex.Sibling(4))
	require.Equal(t, 6, hmindex.Sibling(5))
	require.Equal(t, 5, hmindex.Sibling(6))

	require.Panics(t, func() { _ = hmindex.Sibling(0) })
}

func TestParent(t *testing.T) {
	t.Parallel()

	require.Equal(t, 0, hmindex.Parent(1, 2))
	require.Equal(t, 0, hmindex.Parent(2, 1))
	require.Equal(t, 1, hmindex.Parent(3, 4))
	require.Equal(t, 2, hmindex.Parent(6, 5))
	require.Equal(t, 14, hmindex.Parent(29, 30))

	require.Panics(t, func() { _ = hmindex.Parent(0, 1) })
	require.Panics(t, func() { _ = hmindex.Parent(2, 3) })
}

func TestParentOf_matchesParent(t *testing.T) {
	t.Parallel()

	for i := 1; i < 200; i++ {
		require.Equal(t, hmindex.Parent(hmindex.Sibling(i), i), hmindex.ParentOf(i))
	}
}

func TestIsLeft(t *testing.T) {
	t.Parallel()

	for i := range 100 {
		l, r := 2*i+1, 2*i+2
		require.True(t, hmindex.IsLeft(l))
		require.False(t, hmindex.IsLeft(r))
		require.Equal(t, r, hmindex.Sibling(l))
		require.Equal(t, i, hmindex.ParentOf(l))
		require.Equal(t, i, hmindex.ParentOf(r))
	}

	require.False(t, hmindex.IsLeft(0))
	require.Panics(t, func() { _ = hmindex.ParentOf(0) })
}

func TestDepth(t *testing.T) {
	t.Parallel()

	require.Equal(t, 0, hmindex.Depth(0))
	require.Equal(t, 1, hmindex.Depth(1))
	require.Equal(t, 1, hmindex.Depth(2))
	require.Equal(t, 2, hmindex.Depth(3))
	require.Equal(t, 2, hmindex.Depth(6))
	require.Equal(t, 3, hmindex.Depth(7))
	require.Equal(t, 4, hmindex.Depth(30))
}
