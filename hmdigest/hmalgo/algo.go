// Package hmalgo is a registry of named [hmdigest.Digest] values,
// so that digests can be selected from configuration or the command line.
//
// The "d" suffixed names apply the hash function twice,
// for compatibility with trees built by double-hashing systems.
package hmalgo

import (
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"errors"
	"fmt"
	"hash"
	"slices"
	"sync"

	"github.com/gordian-engine/hmerkle/hmdigest"
	"github.com/gordian-engine/hmerkle/hmdigest/hmsha256"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/sha3"
)

// Names of the built-in digests.
const (
	SHA1Double       = "sha1d"
	SHA224Double     = "sha224d"
	SHA256Double     = "sha256d"
	SHA384Double     = "sha384d"
	SHA512Double     = "sha512d"
	SHA256           = "sha256"
	SHA256DoubleSIMD = "sha256d-simd"
	Keccak256        = "keccak256"
	SHA3_256         = "sha3-256"
	BLAKE2b256       = "blake2b-256"
)

// Default is the digest name used when none is configured.
const Default = SHA256Double

// ErrUnknownAlgorithm is returned from [ByName]
// when no digest is registered under the requested name.
var ErrUnknownAlgorithm = errors.New("unknown digest algorithm")

var (
	mu    sync.RWMutex
	algos = map[string]hmdigest.Digest{
		SHA1Double:       hmdigest.Func{New: sha1.New, Rounds: 2},
		SHA224Double:     hmdigest.Func{New: sha256.New224, Rounds: 2},
		SHA256Double:     hmdigest.Func{New: sha256.New, Rounds: 2},
		SHA384Double:     hmdigest.Func{New: sha512.New384, Rounds: 2},
		SHA512Double:     hmdigest.Func{New: sha512.New, Rounds: 2},
		SHA256:           hmdigest.Func{New: sha256.New},
		SHA256DoubleSIMD: hmsha256.Digest{},
		Keccak256:        hmdigest.Func{New: sha3.NewLegacyKeccak256},
		SHA3_256:         hmdigest.Func{New: sha3.New256},
		BLAKE2b256:       hmdigest.Func{New: newBLAKE2b256},
	}
)

func newBLAKE2b256() hash.Hash {
	h, err := blake2b.New256(nil)
	if err != nil {
		// Only possible with an oversized key.
		panic(fmt.Errorf("BUG: unkeyed blake2b failed: %w", err))
	}
	return h
}

// ByName returns the digest registered under name.
func ByName(name string) (hmdigest.Digest, error) {
	mu.RLock()
	d, ok := algos[name]
	mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, name)
	}
	return d, nil
}

// MustByName is like [ByName] but panics on an unknown name.
func MustByName(name string) hmdigest.Digest {
	d, err := ByName(name)
	if err != nil {
		panic(err)
	}
	return d
}

// Names returns the sorted names of all registered digests.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()

	names := make([]string, 0, len(algos))
	for n := range algos {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Register adds d under name.
// It panics if name is empty or already registered.
func Register(name string, d hmdigest.Digest) {
	if name == "" {
		panic(errors.New("BUG: cannot register digest with empty name"))
	}
	if d == nil {
		panic(fmt.Errorf("BUG: cannot register nil digest as %q", name))
	}

	mu.Lock()
	defer mu.Unlock()

	if _, ok := algos[name]; ok {
		panic(fmt.Errorf("BUG: digest %q registered twice", name))
	}
	algos[name] = d
}
