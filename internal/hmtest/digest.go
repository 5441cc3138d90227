package hmtest

import (
	"hash/fnv"

	"github.com/gordian-engine/hmerkle/hmdigest"
)

// FNV32Digest is a tiny non-cryptographic digest
// whose 4-byte output keeps test failures readable.
type FNV32Digest struct{}

var _ hmdigest.Digest = FNV32Digest{}

func (FNV32Digest) Size() int { return 4 }

func (FNV32Digest) Hash(in, dst []byte) []byte {
	h := fnv.New32a()
	_, _ = h.Write(in)
	return h.Sum(dst)
}

func (FNV32Digest) Merge(left, right, dst []byte) []byte {
	h := fnv.New32a()
	_, _ = h.Write(left)
	_, _ = h.Write(right)
	return h.Sum(dst)
}

// FNV32 is shorthand for hashing a string with [FNV32Digest].
func FNV32(s string) []byte {
	return FNV32Digest{}.Hash([]byte(s), nil)
}
