// Package hmshard authenticates erasure-coded pieces of a payload
// with a Merkle tree, so that each piece can be checked on arrival
// against a single trusted root hash.
//
// The sender calls [Prepare] to split and erasure-code a payload;
// the receiver feeds shards and their proofs into a [*Reassembler]
// until enough have been verified to reconstruct the payload.
package hmshard

import (
	"fmt"

	"github.com/gordian-engine/hmerkle"
	"github.com/gordian-engine/hmerkle/hmdigest"
	"github.com/klauspost/reedsolomon"
)

// MaxShards is the largest total number of data and parity shards.
const MaxShards = 256

// PrepareConfig is the configuration for [Prepare].
type PrepareConfig struct {
	// Desired maximum size of each shard.
	// The actual shard size may be smaller,
	// as the payload is divided evenly across the data shards.
	MaxShardSize int

	// ParityRatio indicates the desired ratio of
	// parity shards to data shards.
	// For example, ParityRatio=0.25 means there will be
	// one parity shard for every four data shards.
	// The parity count is rounded down,
	// but there is always at least one parity shard.
	ParityRatio float32

	// How to hash shards and tree nodes.
	Digest hmdigest.Digest
}

// Prepared is the value returned by [Prepare].
type Prepared struct {
	// The number of data and parity shards.
	NumData, NumParity int

	// Size of every shard.
	ShardSize int

	// Length of the original payload,
	// needed to strip padding after reconstruction.
	DataLen int

	// Data shards followed by parity shards.
	Shards [][]byte

	// Proofs[i] is the Merkle proof for Shards[i].
	// The proof values are references into Tree,
	// and therefore they must not be modified.
	Proofs [][]hmerkle.Node

	Tree *hmerkle.Tree
}

// Root returns the root hash that commits to every shard.
func (p Prepared) Root() []byte {
	return p.Tree.Root()
}

// ReassemblerConfig returns the configuration a receiver needs
// to verify and reassemble p's shards.
func (p Prepared) ReassemblerConfig(d hmdigest.Digest) ReassemblerConfig {
	return ReassemblerConfig{
		Root:      p.Root(),
		NumData:   p.NumData,
		NumParity: p.NumParity,
		ShardSize: p.ShardSize,
		DataLen:   p.DataLen,
		Digest:    d,
	}
}

// Prepare splits data into data shards,
// adds Reed-Solomon parity shards,
// and builds a Merkle tree over the digests of all shards.
func Prepare(data []byte, cfg PrepareConfig) (Prepared, error) {
	if cfg.ParityRatio < 0 {
		panic(fmt.Errorf(
			"BUG: ParityRatio must be non-negative (got %g)", cfg.ParityRatio,
		))
	}
	if cfg.MaxShardSize <= 0 {
		panic(fmt.Errorf(
			"BUG: MaxShardSize must be positive (got %d)", cfg.MaxShardSize,
		))
	}
	if cfg.Digest == nil {
		panic(fmt.Errorf("BUG: Digest must not be nil"))
	}

	if len(data) == 0 {
		return Prepared{}, fmt.Errorf("cannot shard empty data: %w", hmerkle.ErrInvalidInput)
	}

	nData := len(data) / cfg.MaxShardSize
	if len(data)%cfg.MaxShardSize > 0 {
		nData++
	}
	nParity := max(1, int(cfg.ParityRatio*float32(nData)))

	if nData+nParity > MaxShards {
		return Prepared{}, fmt.Errorf(
			"data too large: resulted in %d data and %d parity shards, but limit is %d",
			nData, nParity, MaxShards,
		)
	}

	enc, err := reedsolomon.New(
		nData, nParity,
		reedsolomon.WithAutoGoroutines(cfg.MaxShardSize),
	)
	if err != nil {
		return Prepared{}, fmt.Errorf(
			"failed to build Reed-Solomon encoder: %w", err,
		)
	}

	shards, err := enc.Split(data)
	if err != nil {
		return Prepared{}, fmt.Errorf(
			"failed to split data into shards: %w", err,
		)
	}

	if err := enc.Encode(shards); err != nil {
		return Prepared{}, fmt.Errorf(
			"failed to erasure-code data: %w", err,
		)
	}

	// Now that the data is erasure-coded,
	// we can build the Merkle tree.
	leaves := make([][]byte, len(shards))
	for i, s := range shards {
		leaves[i] = cfg.Digest.Hash(s, nil)
	}

	t, err := hmerkle.Build(leaves, cfg.Digest)
	if err != nil {
		return Prepared{}, fmt.Errorf("failed to build shard tree: %w", err)
	}

	// Shards may repeat (e.g. runs of zeros),
	// so proofs must be selected by index, not by value.
	proofs := make([][]hmerkle.Node, len(shards))
	for i := range shards {
		proofs[i] = t.ProofAt(i)
	}

	return Prepared{
		NumData:   nData,
		NumParity: nParity,

		ShardSize: len(shards[0]),
		DataLen:   len(data),

		Shards: shards,
		Proofs: proofs,

		Tree: t,
	}, nil
}
