package hmquic

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/bits-and-blooms/bitset"
	"github.com/fxamacker/cbor/v2"
	"github.com/gordian-engine/hmerkle"
	"github.com/gordian-engine/hmerkle/hmshard"
)

// ALPN is the TLS application protocol negotiated by clients and servers.
const ALPN = "hmerkle-proof/1"

// Limits applied while decoding.
// MaxHashSize bounds every request payload, not only hashes.
const (
	MaxHashSize     = 1024
	MaxResponseSize = 16 << 20
)

// ErrProtocol is wrapped by every error caused by a malformed message.
var ErrProtocol = errors.New("proof protocol violation")

// RequestKind selects what a request asks for.
type RequestKind uint8

const (
	// KindInfo asks for the root hash and tree dimensions.
	// The request hash is empty.
	KindInfo RequestKind = iota + 1

	// KindProof asks for the proof of the leaf with the given hash.
	KindProof

	// KindBranch asks for the branch of the leaf with the given hash.
	KindBranch

	// KindProofAt asks for the proof of the leaf at the given index.
	// Unlike KindProof, it selects the right copy of a repeated leaf.
	KindProofAt

	// KindBranchAt asks for the branch of the leaf at the given index.
	KindBranchAt

	// KindMissingProofs carries the set of leaf indices the client holds,
	// and asks for the proofs of every other leaf the set covers.
	KindMissingProofs
)

func (k RequestKind) valid() bool {
	return k >= KindInfo && k <= KindMissingProofs
}

// Request is a single request sent on its own stream.
type Request struct {
	Kind RequestKind

	// Leaf hash, for KindProof and KindBranch.
	Hash []byte

	// Leaf index, for KindProofAt and KindBranchAt.
	Index uint16

	// Held leaf indices, for KindMissingProofs.
	// Its length is the number of leaves the client cares about,
	// and must be in [1, hmshard.MaxShards].
	Have *bitset.BitSet
}

// Response is the reply to a single [Request].
type Response struct {
	Found bool `cbor:"1,keyasint"`

	Root     []byte `cbor:"2,keyasint"`
	Leaves   int    `cbor:"3,keyasint"`
	Len      int    `cbor:"4,keyasint"`
	HashSize int    `cbor:"5,keyasint"`

	Nodes []WireNode `cbor:"6,keyasint,omitempty"`

	// Non-empty when the server could not handle the request.
	Err string `cbor:"7,keyasint,omitempty"`

	// Answer to KindMissingProofs, in ascending index order.
	Proofs []WireProof `cbor:"8,keyasint,omitempty"`
}

// WireNode is the encoded form of an [hmerkle.Node].
type WireNode struct {
	_ struct{} `cbor:",toarray"`

	Hash []byte
	Role uint8
}

// WireProof is a proof for the leaf at Index.
type WireProof struct {
	_ struct{} `cbor:",toarray"`

	Index uint16
	Nodes []WireNode
}

// RemoteError is returned by the client
// when the server reported a failure in its response.
type RemoteError struct {
	Msg string
}

func (e RemoteError) Error() string {
	return "server error: " + e.Msg
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Errorf("BUG: invalid CBOR encoding options: %w", err))
	}

	decMode, err = cbor.DecOptions{
		MaxArrayElements:  1 << 16,
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
	}.DecMode()
	if err != nil {
		panic(fmt.Errorf("BUG: invalid CBOR decoding options: %w", err))
	}
}

// WriteRequest writes req to w as a kind byte,
// a big-endian uint16 payload length, and the payload.
//
// The payload is the hash for KindProof and KindBranch,
// a big-endian uint16 leaf index for KindProofAt and KindBranchAt,
// and for KindMissingProofs a big-endian uint16 leaf count
// followed by the set encoded with [hmshard.WriteHave].
func WriteRequest(w io.Writer, req Request) error {
	if !req.Kind.valid() {
		panic(fmt.Errorf("BUG: invalid request kind %d", req.Kind))
	}

	var payload []byte
	switch req.Kind {
	case KindInfo:
		// Empty.
	case KindProof, KindBranch:
		payload = req.Hash
	case KindProofAt, KindBranchAt:
		payload = binary.BigEndian.AppendUint16(nil, req.Index)
	case KindMissingProofs:
		if req.Have == nil {
			panic(errors.New("BUG: KindMissingProofs request requires Have"))
		}
		n := req.Have.Len()
		if n == 0 || n > hmshard.MaxShards {
			return fmt.Errorf(
				"%w: have-set of %d leaves outside [1, %d]", ErrProtocol, n, hmshard.MaxShards,
			)
		}

		var b bytes.Buffer
		b.Write(binary.BigEndian.AppendUint16(nil, uint16(n)))
		if err := hmshard.WriteHave(&b, req.Have); err != nil {
			return fmt.Errorf("failed to encode have-set: %w", err)
		}
		payload = b.Bytes()
	}

	if len(payload) > MaxHashSize {
		return fmt.Errorf("%w: payload of %d bytes exceeds limit %d", ErrProtocol, len(payload), MaxHashSize)
	}

	buf := make([]byte, 3, 3+len(payload))
	buf[0] = byte(req.Kind)
	binary.BigEndian.PutUint16(buf[1:], uint16(len(payload)))
	buf = append(buf, payload...)

	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("failed to write request: %w", err)
	}
	return nil
}

// ReadRequest reads a request written by [WriteRequest].
func ReadRequest(r io.Reader) (Request, error) {
	var hdr [3]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return Request{}, fmt.Errorf("failed to read request header: %w", err)
	}

	kind := RequestKind(hdr[0])
	if !kind.valid() {
		return Request{}, fmt.Errorf("%w: unknown request kind %d", ErrProtocol, hdr[0])
	}

	n := int(binary.BigEndian.Uint16(hdr[1:]))
	if n > MaxHashSize {
		return Request{}, fmt.Errorf("%w: payload of %d bytes exceeds limit %d", ErrProtocol, n, MaxHashSize)
	}

	var payload []byte
	if n > 0 {
		payload = make([]byte, n)
		if _, err := io.ReadFull(r, payload); err != nil {
			return Request{}, fmt.Errorf("failed to read request payload: %w", err)
		}
	}

	req := Request{Kind: kind}
	switch kind {
	case KindInfo:
		// Nothing to parse.
	case KindProof, KindBranch:
		req.Hash = payload
	case KindProofAt, KindBranchAt:
		if n != 2 {
			return Request{}, fmt.Errorf("%w: leaf index payload has %d bytes", ErrProtocol, n)
		}
		req.Index = binary.BigEndian.Uint16(payload)
	case KindMissingProofs:
		have, err := parseHave(payload)
		if err != nil {
			return Request{}, err
		}
		req.Have = have
	}
	return req, nil
}

func parseHave(payload []byte) (*bitset.BitSet, error) {
	if len(payload) < 2 {
		return nil, fmt.Errorf("%w: have-set payload has %d bytes", ErrProtocol, len(payload))
	}

	n := int(binary.BigEndian.Uint16(payload))
	if n == 0 || n > hmshard.MaxShards {
		return nil, fmt.Errorf(
			"%w: have-set of %d leaves outside [1, %d]", ErrProtocol, n, hmshard.MaxShards,
		)
	}

	rd := bytes.NewReader(payload[2:])
	have, err := hmshard.ReadHave(rd, n)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	if rd.Len() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes after have-set", ErrProtocol, rd.Len())
	}
	return have, nil
}

// WriteResponse writes resp as a big-endian uint32 length
// followed by its CBOR encoding.
func WriteResponse(w io.Writer, resp Response) error {
	body, err := encMode.Marshal(resp)
	if err != nil {
		return fmt.Errorf("failed to encode response: %w", err)
	}
	if len(body) > MaxResponseSize {
		return fmt.Errorf("%w: response of %d bytes exceeds limit %d", ErrProtocol, len(body), MaxResponseSize)
	}

	buf := make([]byte, 4, 4+len(body))
	binary.BigEndian.PutUint32(buf, uint32(len(body)))
	buf = append(buf, body...)

	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("failed to write response: %w", err)
	}
	return nil
}

// ReadResponse reads a response written by [WriteResponse].
func ReadResponse(r io.Reader) (Response, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return Response{}, fmt.Errorf("failed to read response header: %w", err)
	}

	n := binary.BigEndian.Uint32(hdr[:])
	if n > MaxResponseSize {
		return Response{}, fmt.Errorf("%w: response of %d bytes exceeds limit %d", ErrProtocol, n, MaxResponseSize)
	}

	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return Response{}, fmt.Errorf("failed to read response body: %w", err)
	}

	var resp Response
	if err := decMode.Unmarshal(body, &resp); err != nil {
		return Response{}, fmt.Errorf("%w: failed to decode response: %v", ErrProtocol, err)
	}
	return resp, nil
}

// EncodeNodes converts tree nodes into their wire form.
func EncodeNodes(nodes []hmerkle.Node) []WireNode {
	if len(nodes) == 0 {
		return nil
	}
	out := make([]WireNode, len(nodes))
	for i, n := range nodes {
		out[i] = WireNode{Hash: n.Hash, Role: uint8(n.Role)}
	}
	return out
}

// DecodeNodes converts wire nodes back into tree nodes,
// checking that every hash has the given size
// and every role is known.
func DecodeNodes(wn []WireNode, hashSize int) ([]hmerkle.Node, error) {
	if len(wn) == 0 {
		return nil, nil
	}
	out := make([]hmerkle.Node, len(wn))
	for i, n := range wn {
		if len(n.Hash) != hashSize {
			return nil, fmt.Errorf(
				"%w: node %d has %d-byte hash, expected %d",
				ErrProtocol, i, len(n.Hash), hashSize,
			)
		}
		if hmerkle.Role(n.Role) > hmerkle.RoleRight {
			return nil, fmt.Errorf("%w: node %d has unknown role %d", ErrProtocol, i, n.Role)
		}
		out[i] = hmerkle.Node{Hash: n.Hash, Role: hmerkle.Role(n.Role)}
	}
	return out, nil
}
