package integration

import (
	"context"
	"testing"

	"github.com/gordian-engine/hmerkle/hmdigest/hmalgo"
	"github.com/gordian-engine/hmerkle/hmquic"
	"github.com/gordian-engine/hmerkle/hmquic/hmquictest"
	"github.com/gordian-engine/hmerkle/hmshard"
	"github.com/gordian-engine/hmerkle/internal/hmtest"
	"github.com/stretchr/testify/require"
)

// TestShardService has one process erasure-code a payload and serve
// proofs for its shards, while another process that trusts only the root
// fetches proofs over QUIC and reassembles the payload from a subset of shards.
func TestShardService(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping due to short mode")
	}

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	log := hmtest.NewLogger(t)
	d := hmalgo.MustByName(hmalgo.SHA256DoubleSIMD)

	payload := hmtest.RandomDataForTest(t, 64*1024+5)
	p, err := hmshard.Prepare(payload, hmshard.PrepareConfig{
		MaxShardSize: 4096,
		ParityRatio:  0.5,
		Digest:       d,
	})
	require.NoError(t, err)

	l := hmquictest.NewListener(t)
	s := hmquic.NewServer(ctx, log.With("sys", "server"), hmquic.ServerConfig{
		Listener: l.QL,
		Tree:     p.Tree,
	})
	defer s.Wait()
	defer cancel()

	c, err := hmquic.Dial(ctx, l.Addr(), hmquic.ClientConfig{
		TLSConfig: l.Cert.ClientTLSConfig("localhost"),
	})
	require.NoError(t, err)
	defer c.Close()

	info, err := c.Info(ctx)
	require.NoError(t, err)
	require.Equal(t, p.Root(), info.Root)

	r, err := hmshard.NewReassembler(log.With("sys", "reassembler"), p.ReassemblerConfig(d))
	require.NoError(t, err)

	// Pretend every other data shard was lost in transit.
	// Fetch a proof for each even data shard as it arrives.
	for i := 0; i < p.NumData; i += 2 {
		proof, err := c.ProofAt(ctx, i)
		require.NoError(t, err)
		require.NoError(t, r.AddShard(i, p.Shards[i], proof))
	}
	require.False(t, r.Ready())

	// Then report what arrived and ask for every other proof in one request.
	proofs, err := c.MissingProofs(ctx, r.Have())
	require.NoError(t, err)
	require.Len(t, proofs, len(r.Missing()))

	for i := p.NumData; i < len(p.Shards) && !r.Ready(); i++ {
		proof, ok := proofs[i]
		require.True(t, ok, "no proof for parity shard %d", i)
		require.NoError(t, r.AddShard(i, p.Shards[i], proof))
	}

	require.True(t, r.Ready())

	got, err := r.Reconstruct()
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

// TestShardService_repeatedShards reassembles a payload whose shards
// all have the same content, so every leaf in the tree is equal
// and each proof must be selected by shard index.
func TestShardService_repeatedShards(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping due to short mode")
	}

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	log := hmtest.NewLogger(t)
	d := hmalgo.MustByName(hmalgo.SHA256Double)

	payload := make([]byte, 16*1024)
	p, err := hmshard.Prepare(payload, hmshard.PrepareConfig{
		MaxShardSize: 4096,
		ParityRatio:  0.5,
		Digest:       d,
	})
	require.NoError(t, err)
	require.Equal(t, 4, p.NumData)

	l := hmquictest.NewListener(t)
	s := hmquic.NewServer(ctx, log.With("sys", "server"), hmquic.ServerConfig{
		Listener: l.QL,
		Tree:     p.Tree,
	})
	defer s.Wait()
	defer cancel()

	c, err := hmquic.Dial(ctx, l.Addr(), hmquic.ClientConfig{
		TLSConfig: l.Cert.ClientTLSConfig("localhost"),
	})
	require.NoError(t, err)
	defer c.Close()

	r, err := hmshard.NewReassembler(log.With("sys", "reassembler"), p.ReassemblerConfig(d))
	require.NoError(t, err)

	// Lookup by hash finds the first copy, whose path does not fit shard 1.
	byHash, err := c.Proof(ctx, d.Hash(p.Shards[1], nil))
	require.NoError(t, err)
	require.ErrorIs(t, r.AddShard(1, p.Shards[1], byHash), hmshard.ErrIncorrectShard)

	// Skip shard 0 so that a parity shard is needed too.
	for i := 1; !r.Ready(); i++ {
		proof, err := c.ProofAt(ctx, i)
		require.NoError(t, err)
		require.NoError(t, r.AddShard(i, p.Shards[i], proof))
	}

	got, err := r.Reconstruct()
	require.NoError(t, err)
	require.Equal(t, payload, got)
}
