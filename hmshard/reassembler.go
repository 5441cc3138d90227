package hmshard

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bits-and-blooms/bitset"
	"github.com/gordian-engine/hmerkle"
	"github.com/gordian-engine/hmerkle/hmdigest"
	"github.com/gordian-engine/hmerkle/internal/hmindex"
	"github.com/klauspost/reedsolomon"
)

var (
	// ErrShardIndex is returned from [*Reassembler.AddShard]
	// when the shard index is outside the configured shard count.
	ErrShardIndex = errors.New("shard index out of range")

	// ErrAlreadyHaveShard is returned from [*Reassembler.AddShard]
	// when the shard at that index was already accepted.
	ErrAlreadyHaveShard = errors.New("already have shard")

	// ErrIncorrectShard is returned from [*Reassembler.AddShard]
	// when the shard, its proof, and its index
	// do not agree with the root hash.
	ErrIncorrectShard = errors.New("shard does not match root")

	// ErrNotReady is returned from [*Reassembler.Reconstruct]
	// when fewer than NumData shards have been accepted.
	ErrNotReady = errors.New("not enough shards to reconstruct")
)

// ReassemblerConfig is the configuration for [NewReassembler].
// Every field except Digest is normally taken from
// [Prepared.ReassemblerConfig] on the sending side.
type ReassemblerConfig struct {
	// Trusted root hash of the shard tree.
	Root []byte

	NumData, NumParity int
	ShardSize          int
	DataLen            int

	Digest hmdigest.Digest
}

// Reassembler collects verified shards and reconstructs the payload
// once enough of them have arrived.
// Its methods are safe for concurrent use.
type Reassembler struct {
	log *slog.Logger

	root   []byte
	digest hmdigest.Digest

	nData, nParity int
	shardSize      int
	dataLen        int

	// Heap position of the first leaf.
	firstLeafPos int

	enc reedsolomon.Encoder

	mu     sync.Mutex
	shards [][]byte
	have   *bitset.BitSet
}

// NewReassembler returns a Reassembler for the given configuration.
func NewReassembler(log *slog.Logger, cfg ReassemblerConfig) (*Reassembler, error) {
	if cfg.Digest == nil {
		panic(errors.New("BUG: Digest must not be nil"))
	}
	if len(cfg.Root) != cfg.Digest.Size() {
		return nil, fmt.Errorf(
			"root has %d bytes but digest size is %d: %w",
			len(cfg.Root), cfg.Digest.Size(), hmerkle.ErrInvalidInput,
		)
	}
	if cfg.NumData <= 0 || cfg.NumParity < 0 || cfg.NumData+cfg.NumParity > MaxShards {
		return nil, fmt.Errorf(
			"invalid shard counts (data=%d, parity=%d): %w",
			cfg.NumData, cfg.NumParity, hmerkle.ErrInvalidInput,
		)
	}
	if cfg.ShardSize <= 0 || cfg.DataLen <= 0 || cfg.DataLen > cfg.NumData*cfg.ShardSize {
		return nil, fmt.Errorf(
			"invalid sizes (shard=%d, data=%d): %w",
			cfg.ShardSize, cfg.DataLen, hmerkle.ErrInvalidInput,
		)
	}

	enc, err := reedsolomon.New(
		cfg.NumData, cfg.NumParity,
		reedsolomon.WithAutoGoroutines(cfg.ShardSize),
	)
	if err != nil {
		return nil, fmt.Errorf(
			"failed to build Reed-Solomon encoder: %w", err,
		)
	}

	nShards := cfg.NumData + cfg.NumParity
	nLeaves := nShards + nShards%2
	nNodes := 2*nLeaves - 1

	return &Reassembler{
		log: log,

		root:   bytes.Clone(cfg.Root),
		digest: cfg.Digest,

		nData:     cfg.NumData,
		nParity:   cfg.NumParity,
		shardSize: cfg.ShardSize,
		dataLen:   cfg.DataLen,

		firstLeafPos: nNodes - nLeaves,

		enc: enc,

		shards: make([][]byte, nShards),
		have:   bitset.MustNew(uint(nShards)),
	}, nil
}

// AddShard verifies shard against the root using proof,
// and stores it if it is valid.
//
// The proof must also describe the path from leaf position idx,
// so a valid shard cannot be replayed at a different index.
// The shard is copied; the caller may reuse its memory.
func (r *Reassembler) AddShard(idx int, shard []byte, proof []hmerkle.Node) error {
	if idx < 0 || idx >= len(r.shards) {
		return fmt.Errorf("%w: %d (have %d shards)", ErrShardIndex, idx, len(r.shards))
	}

	if len(shard) != r.shardSize {
		return fmt.Errorf(
			"%w: shard %d has %d bytes, expected %d",
			ErrIncorrectShard, idx, len(shard), r.shardSize,
		)
	}

	if !r.proofMatchesPosition(r.firstLeafPos+idx, proof) {
		return fmt.Errorf("%w: proof shape does not match shard %d", ErrIncorrectShard, idx)
	}

	leaf := r.digest.Hash(shard, nil)
	if !hmerkle.Verify(r.digest, r.root, leaf, proof) {
		r.log.Debug("Rejected shard with invalid proof", "idx", idx)
		return fmt.Errorf("%w: shard %d", ErrIncorrectShard, idx)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.have.Test(uint(idx)) {
		return fmt.Errorf("%w: %d", ErrAlreadyHaveShard, idx)
	}

	r.shards[idx] = bytes.Clone(shard)
	r.have.Set(uint(idx))

	if r.have.Count() == uint(r.nData) {
		r.log.Info("Received enough shards to reconstruct", "n_data", r.nData)
	}

	return nil
}

// proofMatchesPosition reports whether the roles in proof
// are exactly the sibling roles along the path from pos to the root.
func (r *Reassembler) proofMatchesPosition(pos int, proof []hmerkle.Node) bool {
	if len(proof) != hmindex.Depth(pos) {
		return false
	}

	for _, n := range proof {
		want := hmerkle.RoleRight
		if hmindex.IsLeft(hmindex.Sibling(pos)) {
			want = hmerkle.RoleLeft
		}
		if n.Role != want {
			return false
		}
		pos = hmindex.ParentOf(pos)
	}

	return true
}

// Have returns a copy of the set of accepted shard indices.
func (r *Reassembler) Have() *bitset.BitSet {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.have.Clone()
}

// Missing returns the indices of shards not yet accepted, in order.
func (r *Reassembler) Missing() []int {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]int, 0, uint(len(r.shards))-r.have.Count())
	for u, ok := r.have.NextClear(0); ok && u < uint(len(r.shards)); u, ok = r.have.NextClear(u + 1) {
		out = append(out, int(u))
	}
	return out
}

// Ready reports whether enough shards have been accepted
// for [*Reassembler.Reconstruct] to succeed.
func (r *Reassembler) Ready() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.have.Count() >= uint(r.nData)
}

// Reconstruct returns the original payload.
// It returns [ErrNotReady] if fewer than NumData shards have been accepted.
func (r *Reassembler) Reconstruct() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if got := r.have.Count(); got < uint(r.nData) {
		return nil, fmt.Errorf("%w: have %d of %d", ErrNotReady, got, r.nData)
	}

	// Work on a copy of the slice headers,
	// so missing entries filled in by the encoder
	// do not count as received shards.
	shards := make([][]byte, len(r.shards))
	copy(shards, r.shards)

	if err := r.enc.ReconstructData(shards); err != nil {
		// Every stored shard was verified against the root,
		// so this indicates a bug rather than bad input.
		panic(fmt.Errorf("IMPOSSIBLE: reconstruction failed: %w", err))
	}

	var buf bytes.Buffer
	buf.Grow(r.dataLen)
	if err := r.enc.Join(&buf, shards, r.dataLen); err != nil {
		return nil, fmt.Errorf("failed to join data shards: %w", err)
	}

	return buf.Bytes(), nil
}
