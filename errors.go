package hmerkle

import (
	"errors"
	"strconv"
)

// ErrInvalidInput is the error underlying every failure to build a tree.
var ErrInvalidInput = errors.New("invalid input")

// LeafSizeError is returned from [Build]
// when a leaf hash is not the size produced by the tree's digest.
type LeafSizeError struct {
	Index     int
	Got, Want int
}

func (e LeafSizeError) Error() string {
	return "leaf " + strconv.Itoa(e.Index) +
		" has " + strconv.Itoa(e.Got) +
		" bytes, digest size is " + strconv.Itoa(e.Want)
}

// Unwrap allows errors.Is(err, ErrInvalidInput).
func (e LeafSizeError) Unwrap() error { return ErrInvalidInput }
