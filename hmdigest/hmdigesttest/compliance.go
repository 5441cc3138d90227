// Package hmdigesttest contains a compliance suite
// for implementations of [hmdigest.Digest].
package hmdigesttest

import (
	"bytes"
	"testing"

	"github.com/gordian-engine/hmerkle/hmdigest"
	"github.com/stretchr/testify/require"
)

// DigestFactory returns the Digest under test.
type DigestFactory func() hmdigest.Digest

// TestDigestCompliance runs the behaviors every Digest must have
// in order to be used for building trees.
func TestDigestCompliance(t *testing.T, f DigestFactory) {
	t.Run("size is positive and stable", func(t *testing.T) {
		t.Parallel()

		d := f()
		sz := d.Size()
		require.Positive(t, sz)
		require.Equal(t, sz, d.Size())

		require.Len(t, d.Hash([]byte("x"), nil), sz)
		require.Len(t, d.Hash(nil, nil), sz)
		require.Len(t, d.Merge(d.Hash([]byte("l"), nil), d.Hash([]byte("r"), nil), nil), sz)
	})

	t.Run("hash is deterministic", func(t *testing.T) {
		t.Parallel()

		d := f()
		sz := d.Size()

		dst01 := make([]byte, sz)
		d.Hash([]byte("deterministic_data"), dst01[:0])

		dst02 := make([]byte, sz)
		d.Hash([]byte("deterministic_data"), dst02[:0])

		require.Equal(t, dst01, dst02)
	})

	t.Run("hash appends to dst", func(t *testing.T) {
		t.Parallel()

		d := f()

		prefix := []byte("prefix")
		out := d.Hash([]byte("data"), bytes.Clone(prefix))
		require.Len(t, out, len(prefix)+d.Size())
		require.Equal(t, prefix, out[:len(prefix)])
		require.Equal(t, d.Hash([]byte("data"), nil), out[len(prefix):])

		l := d.Hash([]byte("l"), nil)
		r := d.Hash([]byte("r"), nil)
		out = d.Merge(l, r, bytes.Clone(prefix))
		require.Equal(t, prefix, out[:len(prefix)])
		require.Equal(t, d.Merge(l, r, nil), out[len(prefix):])
	})

	t.Run("hash respects every bit", func(t *testing.T) {
		t.Parallel()

		d := f()

		in := []byte("some input data")
		want := d.Hash(in, nil)
		for i := range in {
			flipped := bytes.Clone(in)
			flipped[i] ^= 0x01
			require.NotEqual(t, want, d.Hash(flipped, nil), "flipping byte %d did not change the hash", i)
		}
	})

	t.Run("merge is deterministic", func(t *testing.T) {
		t.Parallel()

		d := f()
		l := d.Hash([]byte("left"), nil)
		r := d.Hash([]byte("right"), nil)

		require.Equal(t, d.Merge(l, r, nil), d.Merge(l, r, nil))
	})

	t.Run("merge respects order", func(t *testing.T) {
		t.Parallel()

		d := f()
		l := d.Hash([]byte("left"), nil)
		r := d.Hash([]byte("right"), nil)

		require.NotEqual(t, d.Merge(l, r, nil), d.Merge(r, l, nil))
	})

	t.Run("merge may write into one of its inputs", func(t *testing.T) {
		t.Parallel()

		d := f()
		l := d.Hash([]byte("left"), nil)
		r := d.Hash([]byte("right"), nil)
		want := d.Merge(l, r, nil)

		got := d.Merge(l, r, l[:0])
		require.Equal(t, want, got)
	})
}
