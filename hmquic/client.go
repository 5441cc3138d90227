package hmquic

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"math"
	"net"
	"slices"

	"github.com/bits-and-blooms/bitset"
	"github.com/gordian-engine/hmerkle"
	"github.com/gordian-engine/hmerkle/hmdigest"
	"github.com/quic-go/quic-go"
)

// ClientConfig is the configuration for [Dial].
type ClientConfig struct {
	// TLS configuration for the client.
	// The ALPN protocol is added if it is missing.
	TLSConfig *tls.Config

	// Optional QUIC configuration.
	QUICConfig *quic.Config

	// Optional transport to dial from.
	// If nil, a new UDP socket is used for the connection.
	Transport *quic.Transport
}

// Info describes the tree held by a server.
type Info struct {
	Root     []byte
	Leaves   int
	Len      int
	HashSize int
}

// Client issues requests to a proof [Server].
type Client struct {
	conn Conn
}

// Dial connects to the proof server at addr.
func Dial(ctx context.Context, addr string, cfg ClientConfig) (*Client, error) {
	if cfg.TLSConfig == nil {
		panic(errors.New("BUG: ClientConfig.TLSConfig must not be nil"))
	}

	tlsConf := cfg.TLSConfig.Clone()
	if !slices.Contains(tlsConf.NextProtos, ALPN) {
		tlsConf.NextProtos = append(tlsConf.NextProtos, ALPN)
	}

	var qc *quic.Conn
	var err error
	if cfg.Transport == nil {
		qc, err = quic.DialAddr(ctx, addr, tlsConf, cfg.QUICConfig)
	} else {
		var ua *net.UDPAddr
		ua, err = net.ResolveUDPAddr("udp", addr)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %q: %w", addr, err)
		}
		qc, err = cfg.Transport.Dial(ctx, ua, tlsConf, cfg.QUICConfig)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dial %q: %w", addr, err)
	}

	return NewClient(WrapConn(qc)), nil
}

// NewClient returns a client using an existing connection.
func NewClient(c Conn) *Client {
	return &Client{conn: c}
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.CloseWithError(CodeNoError, "")
}

// Info returns the root and dimensions of the server's tree.
func (c *Client) Info(ctx context.Context) (Info, error) {
	resp, err := c.roundTrip(ctx, Request{Kind: KindInfo})
	if err != nil {
		return Info{}, err
	}
	return Info{
		Root:     resp.Root,
		Leaves:   resp.Leaves,
		Len:      resp.Len,
		HashSize: resp.HashSize,
	}, nil
}

// Root returns the server's root hash.
func (c *Client) Root(ctx context.Context) ([]byte, error) {
	info, err := c.Info(ctx)
	if err != nil {
		return nil, err
	}
	return info.Root, nil
}

// Proof requests the proof for leaf.
// If the server does not have the leaf, the result is nil with no error.
func (c *Client) Proof(ctx context.Context, leaf []byte) ([]hmerkle.Node, error) {
	resp, err := c.roundTrip(ctx, Request{Kind: KindProof, Hash: leaf})
	if err != nil {
		return nil, err
	}
	if !resp.Found {
		return nil, nil
	}
	return DecodeNodes(resp.Nodes, resp.HashSize)
}

// Branch requests the branch for leaf.
// If the server does not have the leaf, the result is nil with no error.
func (c *Client) Branch(ctx context.Context, leaf []byte) ([]hmerkle.Node, error) {
	resp, err := c.roundTrip(ctx, Request{Kind: KindBranch, Hash: leaf})
	if err != nil {
		return nil, err
	}
	if !resp.Found {
		return nil, nil
	}
	return DecodeNodes(resp.Nodes, resp.HashSize)
}

// ProofAt requests the proof for the leaf at leafIdx.
// Use ProofAt instead of [*Client.Proof] when leaves may repeat.
// If the tree has no such leaf, the result is nil with no error.
func (c *Client) ProofAt(ctx context.Context, leafIdx int) ([]hmerkle.Node, error) {
	return c.nodesAt(ctx, KindProofAt, leafIdx)
}

// BranchAt requests the branch for the leaf at leafIdx.
// If the tree has no such leaf, the result is nil with no error.
func (c *Client) BranchAt(ctx context.Context, leafIdx int) ([]hmerkle.Node, error) {
	return c.nodesAt(ctx, KindBranchAt, leafIdx)
}

func (c *Client) nodesAt(ctx context.Context, kind RequestKind, leafIdx int) ([]hmerkle.Node, error) {
	if leafIdx < 0 || leafIdx > math.MaxUint16 {
		return nil, fmt.Errorf("leaf index %d cannot be requested", leafIdx)
	}

	resp, err := c.roundTrip(ctx, Request{Kind: kind, Index: uint16(leafIdx)})
	if err != nil {
		return nil, err
	}
	if !resp.Found {
		return nil, nil
	}
	return DecodeNodes(resp.Nodes, resp.HashSize)
}

// MissingProofs sends the set of leaf indices already held
// and returns the proofs for every index in [0, have.Len()) not in the set,
// keyed by leaf index.
//
// The set is typically [*hmshard.Reassembler.Have],
// so the server only spends bandwidth on shards the receiver still lacks.
func (c *Client) MissingProofs(ctx context.Context, have *bitset.BitSet) (map[int][]hmerkle.Node, error) {
	resp, err := c.roundTrip(ctx, Request{Kind: KindMissingProofs, Have: have})
	if err != nil {
		return nil, err
	}

	out := make(map[int][]hmerkle.Node, len(resp.Proofs))
	for _, wp := range resp.Proofs {
		idx := uint(wp.Index)
		if idx >= have.Len() || have.Test(idx) {
			return nil, fmt.Errorf("%w: unrequested proof for leaf %d", ErrProtocol, idx)
		}
		if _, dup := out[int(idx)]; dup {
			return nil, fmt.Errorf("%w: duplicate proof for leaf %d", ErrProtocol, idx)
		}

		nodes, err := DecodeNodes(wp.Nodes, resp.HashSize)
		if err != nil {
			return nil, fmt.Errorf("proof for leaf %d: %w", idx, err)
		}
		out[int(idx)] = nodes
	}
	return out, nil
}

// FetchAndVerify requests the proof for leaf
// and checks it against the trusted root with d.
//
// The result is false, without an error,
// when the server does not know the leaf or its proof does not verify.
// The server's own root is never trusted.
func (c *Client) FetchAndVerify(
	ctx context.Context, d hmdigest.Digest, root, leaf []byte,
) (bool, error) {
	proof, err := c.Proof(ctx, leaf)
	if err != nil {
		return false, err
	}
	return hmerkle.Verify(d, root, leaf, proof), nil
}

func (c *Client) roundTrip(ctx context.Context, req Request) (Response, error) {
	st, err := c.conn.OpenStreamSync(ctx)
	if err != nil {
		return Response{}, fmt.Errorf("failed to open stream: %w", err)
	}

	stop := abortOnDone(ctx, st)
	defer stop()

	if err := WriteRequest(st, req); err != nil {
		st.CancelRead(streamCodeCanceled)
		return Response{}, err
	}
	if err := st.Close(); err != nil {
		return Response{}, fmt.Errorf("failed to close request stream: %w", err)
	}

	resp, err := ReadResponse(st)
	if err != nil {
		st.CancelRead(streamCodeProtocol)
		return Response{}, err
	}

	if resp.Err != "" {
		return Response{}, RemoteError{Msg: resp.Err}
	}
	if resp.HashSize <= 0 || resp.HashSize > MaxHashSize || len(resp.Root) != resp.HashSize {
		return Response{}, fmt.Errorf(
			"%w: root of %d bytes with hash size %d", ErrProtocol, len(resp.Root), resp.HashSize,
		)
	}

	return resp, nil
}
