// Package hmencode converts records into the byte strings
// that are digested into tree leaves.
//
// The tree never looks at records directly;
// two parties agree on a tree only if they agree on the [Encoder]
// as well as on the digest.
package hmencode

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/fxamacker/cbor/v2"
)

// Encoder produces the canonical byte form of a record.
// Equal records must always encode to equal bytes.
type Encoder[T any] interface {
	Encode(rec T) ([]byte, error)
}

// Func adapts a plain function into an [Encoder].
type Func[T any] func(rec T) ([]byte, error)

func (f Func[T]) Encode(rec T) ([]byte, error) { return f(rec) }

// Bytes is the identity encoder for byte slice records.
// The returned slice aliases the record.
type Bytes struct{}

func (Bytes) Encode(rec []byte) ([]byte, error) { return rec, nil }

// String encodes a string as its raw UTF-8 bytes.
type String struct{}

func (String) Encode(rec string) ([]byte, error) { return []byte(rec), nil }

// ErrTooLarge is returned by [LengthPrefixed]
// when an encoded record does not fit in a 32-bit length.
var ErrTooLarge = errors.New("encoded record too large")

// LengthPrefixed writes the big-endian uint32 length of the inner encoding
// before the inner encoding itself.
type LengthPrefixed[T any] struct {
	Inner Encoder[T]
}

func (e LengthPrefixed[T]) Encode(rec T) ([]byte, error) {
	b, err := e.Inner.Encode(rec)
	if err != nil {
		return nil, err
	}

	if uint64(len(b)) > math.MaxUint32 {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, len(b))
	}

	out := make([]byte, 4, 4+len(b))
	binary.BigEndian.PutUint32(out, uint32(len(b)))
	return append(out, b...), nil
}

// CBOR encodes records with deterministic ("core deterministic") CBOR,
// so that map ordering and integer widths never change the leaf hash.
type CBOR[T any] struct {
	em cbor.EncMode
}

// NewCBOR returns a ready to use CBOR encoder.
func NewCBOR[T any]() (CBOR[T], error) {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		return CBOR[T]{}, fmt.Errorf("failed to build CBOR encoding mode: %w", err)
	}
	return CBOR[T]{em: em}, nil
}

func (e CBOR[T]) Encode(rec T) ([]byte, error) {
	if e.em == nil {
		panic(errors.New("BUG: CBOR encoder must be created with NewCBOR"))
	}

	b, err := e.em.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode record as CBOR: %w", err)
	}
	return b, nil
}
