package hmshard

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/bits-and-blooms/bitset"
	"github.com/golang/snappy"
)

// WriteHave writes the set of held shard indices to w,
// so that a sender can skip shards the receiver already has.
//
// The format is a big-endian uint16 length
// followed by that many bytes of snappy-compressed bitset words.
func WriteHave(w io.Writer, have *bitset.BitSet) error {
	words := have.Words()

	// Little endian here, unlike the other integers in the format,
	// as it most likely matches the machine's own word layout.
	wordBuf := make([]byte, 8*len(words))
	for i, word := range words {
		binary.LittleEndian.PutUint64(wordBuf[i*8:], word)
	}

	// +2 for the size header, backfilled after encoding.
	encBuf := make([]byte, 2+snappy.MaxEncodedLen(len(wordBuf)))
	res := snappy.Encode(encBuf[2:], wordBuf)
	binary.BigEndian.PutUint16(encBuf, uint16(len(res)))

	if _, err := w.Write(encBuf[:2+len(res)]); err != nil {
		return fmt.Errorf("failed to write shard bitset: %w", err)
	}
	return nil
}

// ReadHave reads a bitset written by [WriteHave]
// for a payload with nShards total shards.
func ReadHave(r io.Reader, nShards int) (*bitset.BitSet, error) {
	if nShards <= 0 || nShards > MaxShards {
		panic(fmt.Errorf("BUG: nShards must be in [1, %d] (got %d)", MaxShards, nShards))
	}

	var hdr [2]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, fmt.Errorf("failed to read shard bitset length: %w", err)
	}

	bs := bitset.MustNew(uint(nShards))
	words := bs.Words()

	// Snappy never expands input by more than its documented bound.
	encSz := int(binary.BigEndian.Uint16(hdr[:]))
	if encSz > snappy.MaxEncodedLen(8*len(words)) {
		return nil, fmt.Errorf(
			"shard bitset of %d bytes is too large for %d shards", encSz, nShards,
		)
	}

	encBuf := make([]byte, encSz)
	if _, err := io.ReadFull(r, encBuf); err != nil {
		return nil, fmt.Errorf("failed to read snappy-encoded shard bitset: %w", err)
	}

	decSz, err := snappy.DecodedLen(encBuf)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate decoded shard bitset length: %w", err)
	}
	if decSz != 8*len(words) {
		return nil, fmt.Errorf(
			"decoded shard bitset has %d bytes but expected %d", decSz, 8*len(words),
		)
	}

	wordBuf, err := snappy.Decode(nil, encBuf)
	if err != nil {
		return nil, fmt.Errorf("failed to decode snappy shard bitset: %w", err)
	}

	for i := range words {
		words[i] = binary.LittleEndian.Uint64(wordBuf[i*8:])
	}

	// Bits past nShards would make Count disagree with the shard count.
	if last, ok := bs.NextSet(uint(nShards)); ok {
		return nil, fmt.Errorf("shard bitset has bit %d set beyond %d shards", last, nShards)
	}

	return bs, nil
}
