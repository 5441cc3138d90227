package hmquictest

import (
	"net"
	"testing"

	"github.com/quic-go/quic-go"
	"github.com/stretchr/testify/require"
)

// Listener is a QUIC listener on the loopback interface
// with a freshly generated certificate.
type Listener struct {
	Cert *Cert

	UDPConn *net.UDPConn

	QT *quic.Transport
	QL *quic.Listener
}

// NewListener starts a listener on an ephemeral loopback port.
// Everything is closed as part of [*testing.T.Cleanup].
func NewListener(t *testing.T) *Listener {
	t.Helper()

	cert, err := GenerateCert("localhost", "127.0.0.1")
	require.NoError(t, err)

	udpConn, err := net.ListenUDP("udp", &net.UDPAddr{
		IP: net.IPv4(127, 0, 0, 1),
	})
	require.NoError(t, err)

	qt := &quic.Transport{Conn: udpConn}

	ql, err := qt.Listen(cert.ServerTLSConfig(), nil)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = ql.Close()
		_ = qt.Close()
		_ = udpConn.Close()
	})

	return &Listener{
		Cert: cert,

		UDPConn: udpConn,

		QT: qt,
		QL: ql,
	}
}

// Addr returns the address clients should dial.
func (l *Listener) Addr() string {
	return l.QL.Addr().String()
}
