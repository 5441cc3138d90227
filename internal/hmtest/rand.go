package hmtest

import (
	"crypto/sha256"
	"math/rand/v2"
	"testing"

	"github.com/gordian-engine/hmerkle/hmdigest"
)

// testRand returns a ChaCha8 stream keyed by the test name and label.
// Distinct labels give independent streams within one test.
func testRand(t *testing.T, label string) *rand.ChaCha8 {
	h := sha256.New()
	_, _ = h.Write([]byte(t.Name()))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(label))

	var seed [32]byte
	h.Sum(seed[:0])
	return rand.NewChaCha8(seed)
}

// RandomDataForTest returns sz pseudorandom bytes
// that are stable across runs of the same test.
func RandomDataForTest(t *testing.T, sz int) []byte {
	out := make([]byte, sz)

	// ChaCha8.Read never returns an error.
	_, _ = testRand(t, "data").Read(out)
	return out
}

// RandomLeavesForTest returns n leaf hashes under d,
// each the digest of a distinct pseudorandom 64-byte record.
func RandomLeavesForTest(t *testing.T, n int, d hmdigest.Digest) [][]byte {
	r := testRand(t, "leaves")
	rec := make([]byte, 64)

	out := make([][]byte, n)
	for i := range out {
		_, _ = r.Read(rec)
		out[i] = d.Hash(rec, nil)
	}
	return out
}
