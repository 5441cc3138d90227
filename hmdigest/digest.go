// Package hmdigest defines the hashing capability used to build
// and verify [hmerkle] trees.
//
// [hmerkle]: https://pkg.go.dev/github.com/gordian-engine/hmerkle
package hmdigest

import (
	"hash"
)

// Digest produces the fixed-size hash values stored in a tree.
//
// The leaf hashes given to a tree are usually produced by Hash
// over the encoded records,
// and every internal node is produced by Merge over its two children.
//
// Both methods must append their output to dst,
// which is typically a zero-length slice with enough capacity
// for the hash output, and return the extended slice.
// The output must always be exactly Size bytes.
// The memory behind dst may overlap the input slices,
// so implementations must consume their input before writing output.
//
// Methods on Digest must be safe to call concurrently.
type Digest interface {
	// Size is the length in bytes of every value
	// appended by Hash and Merge.
	Size() int

	// Hash appends the digest of in to dst.
	Hash(in, dst []byte) []byte

	// Merge appends the combined digest of an ordered pair of hashes to dst.
	// Swapping left and right must produce a different value
	// for any practical Digest.
	Merge(left, right, dst []byte) []byte
}

// Func adapts a [hash.Hash] constructor into a [Digest].
//
// Merge over a Func is the digest of left immediately followed by right.
type Func struct {
	// New returns a fresh hash.Hash.
	// It is called once per Hash or Merge call.
	New func() hash.Hash

	// Rounds is how many times the hash function is applied.
	// Values below one are treated as one.
	// Two rounds is the "double hash" construction, H(H(x)).
	Rounds int
}

// Size returns the output size of the underlying hash function.
func (f Func) Size() int {
	return f.New().Size()
}

// Hash appends the (possibly repeated) hash of in to dst.
func (f Func) Hash(in, dst []byte) []byte {
	h := f.New()
	_, _ = h.Write(in)
	return f.finish(h, dst)
}

// Merge appends the (possibly repeated) hash of left||right to dst.
func (f Func) Merge(left, right, dst []byte) []byte {
	h := f.New()
	_, _ = h.Write(left)
	_, _ = h.Write(right)
	return f.finish(h, dst)
}

func (f Func) finish(h hash.Hash, dst []byte) []byte {
	if f.Rounds <= 1 {
		return h.Sum(dst)
	}

	// Large enough for any stdlib hash output without allocating.
	var buf [64]byte
	sum := h.Sum(buf[:0])
	for range f.Rounds - 1 {
		h.Reset()
		_, _ = h.Write(sum)
		sum = h.Sum(sum[:0])
	}

	return append(dst, sum...)
}
