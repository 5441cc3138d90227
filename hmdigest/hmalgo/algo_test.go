package hmalgo_test

import (
	"testing"

	"github.com/gordian-engine/hmerkle/hmdigest"
	"github.com/gordian-engine/hmerkle/hmdigest/hmalgo"
	"github.com/gordian-engine/hmerkle/hmdigest/hmdigesttest"
	"github.com/stretchr/testify/require"
)

func TestBuiltins_compliance(t *testing.T) {
	t.Parallel()

	for _, name := range hmalgo.Names() {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			hmdigesttest.TestDigestCompliance(t, func() hmdigest.Digest {
				return hmalgo.MustByName(name)
			})
		})
	}
}

func TestBuiltins_sizes(t *testing.T) {
	t.Parallel()

	want := map[string]int{
		hmalgo.SHA1Double:       20,
		hmalgo.SHA224Double:     28,
		hmalgo.SHA256Double:     32,
		hmalgo.SHA384Double:     48,
		hmalgo.SHA512Double:     64,
		hmalgo.SHA256:           32,
		hmalgo.SHA256DoubleSIMD: 32,
		hmalgo.Keccak256:        32,
		hmalgo.SHA3_256:         32,
		hmalgo.BLAKE2b256:       32,
	}

	for name, sz := range want {
		require.Equal(t, sz, hmalgo.MustByName(name).Size(), name)
	}
}

func TestDoubleSHA256_implementationsAgree(t *testing.T) {
	t.Parallel()

	std := hmalgo.MustByName(hmalgo.SHA256Double)
	simd := hmalgo.MustByName(hmalgo.SHA256DoubleSIMD)

	in := []byte("data1")
	require.Equal(t, std.Hash(in, nil), simd.Hash(in, nil))
}

func TestByName_unknown(t *testing.T) {
	t.Parallel()

	_, err := hmalgo.ByName("md4")
	require.ErrorIs(t, err, hmalgo.ErrUnknownAlgorithm)

	require.Panics(t, func() { _ = hmalgo.MustByName("md4") })
}

func TestRegister(t *testing.T) {
	t.Parallel()

	const name = "test-register-sha256d"
	d := hmalgo.MustByName(hmalgo.SHA256DoubleSIMD)

	hmalgo.Register(name, d)
	got, err := hmalgo.ByName(name)
	require.NoError(t, err)
	require.Equal(t, d, got)
	require.Contains(t, hmalgo.Names(), name)

	require.Panics(t, func() { hmalgo.Register(name, d) })
	require.Panics(t, func() { hmalgo.Register("", d) })
}
