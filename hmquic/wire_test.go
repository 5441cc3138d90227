package hmquic_test

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/bits-and-blooms/bitset"
	"github.com/gordian-engine/hmerkle"
	"github.com/gordian-engine/hmerkle/hmquic"
	"github.com/gordian-engine/hmerkle/hmshard"
	"github.com/stretchr/testify/require"
)

func TestRequest_roundTrip(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, hmquic.WriteRequest(&buf, hmquic.Request{
		Kind: hmquic.KindProof,
		Hash: []byte{1, 2, 3, 4},
	}))
	require.Equal(t, []byte{2, 0, 4, 1, 2, 3, 4}, buf.Bytes())

	req, err := hmquic.ReadRequest(&buf)
	require.NoError(t, err)
	require.Equal(t, hmquic.KindProof, req.Kind)
	require.Equal(t, []byte{1, 2, 3, 4}, req.Hash)

	require.NoError(t, hmquic.WriteRequest(&buf, hmquic.Request{Kind: hmquic.KindInfo}))
	req, err = hmquic.ReadRequest(&buf)
	require.NoError(t, err)
	require.Equal(t, hmquic.KindInfo, req.Kind)
	require.Empty(t, req.Hash)
}

func TestRequest_roundTripIndex(t *testing.T) {
	t.Parallel()

	for _, kind := range []hmquic.RequestKind{hmquic.KindProofAt, hmquic.KindBranchAt} {
		var buf bytes.Buffer
		require.NoError(t, hmquic.WriteRequest(&buf, hmquic.Request{Kind: kind, Index: 300}))
		require.Equal(t, []byte{byte(kind), 0, 2, 1, 44}, buf.Bytes())

		req, err := hmquic.ReadRequest(&buf)
		require.NoError(t, err)
		require.Equal(t, kind, req.Kind)
		require.Equal(t, uint16(300), req.Index)
		require.Nil(t, req.Hash)
	}
}

func TestRequest_roundTripHave(t *testing.T) {
	t.Parallel()

	have := bitset.MustNew(25)
	have.Set(0).Set(3).Set(24)

	var buf bytes.Buffer
	require.NoError(t, hmquic.WriteRequest(&buf, hmquic.Request{
		Kind: hmquic.KindMissingProofs,
		Have: have,
	}))

	req, err := hmquic.ReadRequest(&buf)
	require.NoError(t, err)
	require.Equal(t, hmquic.KindMissingProofs, req.Kind)
	require.Equal(t, uint(25), req.Have.Len())
	require.True(t, have.Equal(req.Have))
	require.Zero(t, buf.Len())
}

func TestWriteRequest_haveOutOfRange(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	err := hmquic.WriteRequest(&buf, hmquic.Request{
		Kind: hmquic.KindMissingProofs,
		Have: bitset.MustNew(hmshard.MaxShards + 1),
	})
	require.ErrorIs(t, err, hmquic.ErrProtocol)
	require.Zero(t, buf.Len())
}

func TestReadRequest_rejects(t *testing.T) {
	t.Parallel()

	t.Run("unknown kind", func(t *testing.T) {
		t.Parallel()

		_, err := hmquic.ReadRequest(bytes.NewReader([]byte{99, 0, 0}))
		require.ErrorIs(t, err, hmquic.ErrProtocol)
	})

	t.Run("oversized hash", func(t *testing.T) {
		t.Parallel()

		msg := []byte{byte(hmquic.KindProof), 0, 0}
		binary.BigEndian.PutUint16(msg[1:], hmquic.MaxHashSize+1)
		_, err := hmquic.ReadRequest(bytes.NewReader(msg))
		require.ErrorIs(t, err, hmquic.ErrProtocol)
	})

	t.Run("short leaf index", func(t *testing.T) {
		t.Parallel()

		_, err := hmquic.ReadRequest(bytes.NewReader([]byte{byte(hmquic.KindProofAt), 0, 1, 7}))
		require.ErrorIs(t, err, hmquic.ErrProtocol)
	})

	t.Run("have-set with zero leaves", func(t *testing.T) {
		t.Parallel()

		_, err := hmquic.ReadRequest(bytes.NewReader([]byte{byte(hmquic.KindMissingProofs), 0, 2, 0, 0}))
		require.ErrorIs(t, err, hmquic.ErrProtocol)
	})

	t.Run("have-set with trailing bytes", func(t *testing.T) {
		t.Parallel()

		var enc bytes.Buffer
		require.NoError(t, hmshard.WriteHave(&enc, bitset.MustNew(8)))

		payload := append([]byte{0, 8}, enc.Bytes()...)
		payload = append(payload, 0xff)

		msg := []byte{byte(hmquic.KindMissingProofs), 0, byte(len(payload))}
		msg = append(msg, payload...)
		_, err := hmquic.ReadRequest(bytes.NewReader(msg))
		require.ErrorIs(t, err, hmquic.ErrProtocol)
	})

	t.Run("truncated", func(t *testing.T) {
		t.Parallel()

		_, err := hmquic.ReadRequest(bytes.NewReader([]byte{byte(hmquic.KindProof), 0, 8, 1}))
		require.Error(t, err)
	})
}

func TestResponse_roundTrip(t *testing.T) {
	t.Parallel()

	nodes := []hmerkle.Node{
		{Hash: []byte{1, 1, 1, 1}, Role: hmerkle.RoleRight},
		{Hash: []byte{2, 2, 2, 2}, Role: hmerkle.RoleLeft},
	}
	want := hmquic.Response{
		Found:    true,
		Root:     []byte{9, 9, 9, 9},
		Leaves:   4,
		Len:      7,
		HashSize: 4,
		Nodes:    hmquic.EncodeNodes(nodes),
	}

	var buf bytes.Buffer
	require.NoError(t, hmquic.WriteResponse(&buf, want))

	got, err := hmquic.ReadResponse(&buf)
	require.NoError(t, err)
	require.Equal(t, want.Found, got.Found)
	require.Equal(t, want.Root, got.Root)
	require.Equal(t, want.Leaves, got.Leaves)
	require.Equal(t, want.Len, got.Len)

	decoded, err := hmquic.DecodeNodes(got.Nodes, got.HashSize)
	require.NoError(t, err)
	require.Equal(t, nodes, decoded)
}

func TestReadResponse_oversized(t *testing.T) {
	t.Parallel()

	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], hmquic.MaxResponseSize+1)
	_, err := hmquic.ReadResponse(bytes.NewReader(hdr[:]))
	require.ErrorIs(t, err, hmquic.ErrProtocol)
}

func TestReadResponse_garbage(t *testing.T) {
	t.Parallel()

	msg := []byte{0, 0, 0, 3, 0xff, 0xff, 0xff}
	_, err := hmquic.ReadResponse(bytes.NewReader(msg))
	require.ErrorIs(t, err, hmquic.ErrProtocol)
}

func TestDecodeNodes_rejects(t *testing.T) {
	t.Parallel()

	_, err := hmquic.DecodeNodes([]hmquic.WireNode{{Hash: []byte{1, 2, 3}, Role: 1}}, 4)
	require.ErrorIs(t, err, hmquic.ErrProtocol)

	_, err = hmquic.DecodeNodes([]hmquic.WireNode{{Hash: []byte{1, 2, 3, 4}, Role: 7}}, 4)
	require.ErrorIs(t, err, hmquic.ErrProtocol)

	nodes, err := hmquic.DecodeNodes(nil, 4)
	require.NoError(t, err)
	require.Nil(t, nodes)
}
