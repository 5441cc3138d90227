package hmerkle

import (
	"fmt"

	"github.com/gordian-engine/hmerkle/hmdigest"
	"github.com/gordian-engine/hmerkle/hmencode"
)

// LeafHash encodes rec with enc and returns its digest under d.
// This is the value to pass to [*Tree.Proof] or [Verify] for a record.
func LeafHash[T any](rec T, enc hmencode.Encoder[T], d hmdigest.Digest) ([]byte, error) {
	b, err := enc.Encode(rec)
	if err != nil {
		return nil, err
	}
	return d.Hash(b, make([]byte, 0, d.Size())), nil
}

// BuildRecords encodes and digests every record,
// then builds a tree over the resulting leaf hashes.
//
// An empty records slice returns an error wrapping [ErrInvalidInput],
// and an encoding failure is returned with the offending record index.
func BuildRecords[T any](records []T, enc hmencode.Encoder[T], d hmdigest.Digest) (*Tree, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("cannot build tree without records: %w", ErrInvalidInput)
	}

	sz := d.Size()

	// The leaf hashes are only needed until Build copies them,
	// so one scratch allocation serves every leaf.
	mem := make([]byte, 0, len(records)*sz)
	leaves := make([][]byte, len(records))
	for i, rec := range records {
		b, err := enc.Encode(rec)
		if err != nil {
			return nil, fmt.Errorf("failed to encode record %d: %w", i, err)
		}

		start := len(mem)
		mem = d.Hash(b, mem)
		leaves[i] = mem[start:len(mem):len(mem)]
	}

	return Build(leaves, d)
}
