// Package hmquic serves and fetches Merkle proofs over QUIC,
// so that a process holding only a root hash
// can obtain and check proofs from a process holding the whole tree.
//
// Each request is carried on its own bidirectional stream:
// the client writes a [Request] and closes its side,
// and the server writes a single [Response] and closes its side.
package hmquic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gordian-engine/hmerkle"
	"github.com/quic-go/quic-go"
)

// DefaultRequestTimeout is used when [ServerConfig.RequestTimeout] is zero.
const DefaultRequestTimeout = 5 * time.Second

// ServerConfig is the configuration for [NewServer].
type ServerConfig struct {
	// Listener to accept connections from.
	// Its TLS configuration must offer the [ALPN] protocol.
	// The caller retains ownership and must close it.
	Listener *quic.Listener

	// Tree that answers requests.
	Tree *hmerkle.Tree

	// How long a single stream may take
	// to deliver its request and receive its response.
	RequestTimeout time.Duration
}

// Server answers proof requests for a single tree.
type Server struct {
	log *slog.Logger

	ln   *quic.Listener
	tree *hmerkle.Tree

	requestTimeout time.Duration

	acceptLoopDone chan struct{}
	wg             sync.WaitGroup
}

// NewServer returns a server that immediately begins
// accepting connections from cfg.Listener.
// It stops when ctx is canceled;
// use [*Server.Wait] to block until all its goroutines have returned.
func NewServer(ctx context.Context, log *slog.Logger, cfg ServerConfig) *Server {
	if cfg.Listener == nil {
		panic(errors.New("BUG: ServerConfig.Listener must not be nil"))
	}
	if cfg.Tree == nil {
		panic(errors.New("BUG: ServerConfig.Tree must not be nil"))
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	s := &Server{
		log: log,

		ln:   cfg.Listener,
		tree: cfg.Tree,

		requestTimeout: timeout,

		acceptLoopDone: make(chan struct{}),
	}
	go s.acceptLoop(ctx)
	return s
}

// Wait blocks until the server has stopped accepting connections
// and every connection handler has returned.
func (s *Server) Wait() {
	<-s.acceptLoopDone
	s.wg.Wait()
}

func (s *Server) acceptLoop(ctx context.Context) {
	defer close(s.acceptLoopDone)

	for {
		qc, err := s.ln.Accept(ctx)
		if err != nil {
			if ctx.Err() == nil {
				s.log.Info("Stopping accept loop after error", "err", err)
			}
			return
		}

		s.wg.Add(1)
		go s.serveConn(ctx, WrapConn(qc))
	}
}

func (s *Server) serveConn(ctx context.Context, c Conn) {
	defer s.wg.Done()

	log := s.log.With("remote", c.RemoteAddr().String())
	log.Debug("Accepted connection")

	for {
		st, err := c.AcceptStream(ctx)
		if err != nil {
			if ctx.Err() != nil {
				_ = c.CloseWithError(CodeShuttingDown, "server shutting down")
			} else {
				log.Debug("Connection finished", "err", err)
			}
			return
		}

		s.wg.Add(1)
		go s.serveStream(ctx, log, st)
	}
}

func (s *Server) serveStream(ctx context.Context, log *slog.Logger, st Stream) {
	defer s.wg.Done()

	ctx, cancel := context.WithTimeout(ctx, s.requestTimeout)
	defer cancel()

	stop := abortOnDone(ctx, st)
	defer stop()

	req, err := ReadRequest(st)
	if err != nil {
		log.Debug("Failed to read request", "err", err)
		if errors.Is(err, ErrProtocol) {
			st.CancelRead(streamCodeProtocol)
			st.CancelWrite(streamCodeProtocol)
		}
		return
	}

	if err := WriteResponse(st, s.respond(req)); err != nil {
		log.Debug("Failed to write response", "err", err)
		return
	}

	if err := st.Close(); err != nil {
		log.Debug("Failed to close stream", "err", err)
	}
}

// respond builds the response for req from the server's tree.
func (s *Server) respond(req Request) Response {
	t := s.tree
	resp := Response{
		Root:     t.Root(),
		Leaves:   t.Leaves(),
		Len:      t.Len(),
		HashSize: t.HashSize(),
	}

	switch req.Kind {
	case KindInfo:
		resp.Found = true
	case KindProof:
		// Every tree has at least two leaves,
		// so a found leaf always has a non-empty proof.
		resp.Nodes = EncodeNodes(t.Proof(req.Hash))
		resp.Found = resp.Nodes != nil
	case KindBranch:
		resp.Nodes = EncodeNodes(t.Branch(req.Hash))
		resp.Found = resp.Nodes != nil
	case KindProofAt:
		if int(req.Index) < t.Leaves() {
			resp.Found = true
			resp.Nodes = EncodeNodes(t.ProofAt(int(req.Index)))
		}
	case KindBranchAt:
		if int(req.Index) < t.Leaves() {
			resp.Found = true
			resp.Nodes = EncodeNodes(t.BranchAt(int(req.Index)))
		}
	case KindMissingProofs:
		n := req.Have.Len()
		if n > uint(t.Leaves()) {
			resp.Err = fmt.Sprintf("have-set covers %d leaves but tree has %d", n, t.Leaves())
			break
		}
		resp.Found = true
		for u, ok := req.Have.NextClear(0); ok && u < n; u, ok = req.Have.NextClear(u + 1) {
			resp.Proofs = append(resp.Proofs, WireProof{
				Index: uint16(u),
				Nodes: EncodeNodes(t.ProofAt(int(u))),
			})
		}
	default:
		// ReadRequest rejects unknown kinds.
		resp.Err = fmt.Sprintf("unsupported request kind %d", req.Kind)
	}

	return resp
}
