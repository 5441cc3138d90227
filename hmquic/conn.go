package hmquic

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/quic-go/quic-go"
)

// ApplicationErrorCode is used for [Conn.CloseWithError].
type ApplicationErrorCode uint64

// Application error codes sent when closing a connection.
const (
	CodeNoError      ApplicationErrorCode = 0
	CodeShuttingDown ApplicationErrorCode = 1
)

// Stream error codes sent when abandoning a stream.
const (
	streamCodeCanceled quic.StreamErrorCode = 1
	streamCodeProtocol quic.StreamErrorCode = 2
)

// Conn is the subset of a QUIC connection used by the proof service.
type Conn interface {
	AcceptStream(context.Context) (Stream, error)
	OpenStreamSync(context.Context) (Stream, error)

	CloseWithError(code ApplicationErrorCode, msg string) error

	RemoteAddr() net.Addr
}

// Stream is a bidirectional QUIC stream carrying one request and one response.
type Stream interface {
	Read([]byte) (int, error)
	Write([]byte) (int, error)

	// Close closes the write direction only.
	Close() error

	CancelRead(quic.StreamErrorCode)
	CancelWrite(quic.StreamErrorCode)

	SetDeadline(time.Time) error
}

var _ Conn = connAdapter{}

// connAdapter wraps a [*quic.Conn], implementing the [Conn] interface.
type connAdapter struct {
	qc *quic.Conn
}

// WrapConn wraps the given connection,
// returning a value implementing [Conn].
func WrapConn(qc *quic.Conn) Conn {
	return connAdapter{qc: qc}
}

func (c connAdapter) AcceptStream(ctx context.Context) (Stream, error) {
	s, err := c.qc.AcceptStream(ctx)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (c connAdapter) OpenStreamSync(ctx context.Context) (Stream, error) {
	s, err := c.qc.OpenStreamSync(ctx)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (c connAdapter) CloseWithError(code ApplicationErrorCode, msg string) error {
	if (code >> 62) > 0 {
		panic(fmt.Errorf(
			"BUG: application error code must fit in 62 bits (got 0x%x)", code,
		))
	}
	return c.qc.CloseWithError(quic.ApplicationErrorCode(code), msg)
}

func (c connAdapter) RemoteAddr() net.Addr { return c.qc.RemoteAddr() }

// abortOnDone cancels both directions of s when ctx is done.
// The returned function must be called once the stream is finished,
// to release the context watcher.
func abortOnDone(ctx context.Context, s Stream) (stop func() bool) {
	if d, ok := ctx.Deadline(); ok {
		_ = s.SetDeadline(d)
	}
	return context.AfterFunc(ctx, func() {
		s.CancelRead(streamCodeCanceled)
		s.CancelWrite(streamCodeCanceled)
	})
}
