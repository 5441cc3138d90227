// Package hmsha256 contains a double SHA-256 [hmdigest.Digest]
// backed by the SIMD-accelerated SHA-256 implementation.
package hmsha256

import (
	"github.com/gordian-engine/hmerkle/hmdigest"
	sha256 "github.com/minio/sha256-simd"
)

// HashSize is the size of every hash produced by [Digest].
const HashSize = sha256.Size

// Digest computes SHA-256(SHA-256(x)) for leaves,
// and SHA-256(SHA-256(left||right)) for merged nodes.
type Digest struct{}

var _ hmdigest.Digest = Digest{}

func (Digest) Size() int { return HashSize }

func (Digest) Hash(in, dst []byte) []byte {
	first := sha256.Sum256(in)
	second := sha256.Sum256(first[:])
	return append(dst, second[:]...)
}

func (Digest) Merge(left, right, dst []byte) []byte {
	h := sha256.New()
	_, _ = h.Write(left)
	_, _ = h.Write(right)

	var buf [HashSize]byte
	first := h.Sum(buf[:0])

	second := sha256.Sum256(first)
	return append(dst, second[:]...)
}
