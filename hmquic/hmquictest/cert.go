// Package hmquictest contains fixtures for testing
// the QUIC proof service against real local listeners.
package hmquictest

import (
	"bytes"
	"crypto/ed25519"
	crand "crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"time"

	"github.com/gordian-engine/hmerkle/hmquic"
)

// Cert is a self-signed certificate that acts as its own trust root.
type Cert struct {
	CertPEM []byte
	KeyPEM  []byte

	// Public certificate.
	Cert *x509.Certificate

	// Certificate and key ready for a tls.Config.
	TLSCert tls.Certificate
}

// GenerateCert generates an ed25519 certificate, valid for one hour,
// for the given host names and IP addresses.
func GenerateCert(hosts ...string) (*Cert, error) {
	pubKey, privKey, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ed25519 key: %w", err)
	}

	serial, err := crand.Int(crand.Reader, new(big.Int).Lsh(big.NewInt(1), 127))
	if err != nil {
		return nil, fmt.Errorf("failed to generate serial number: %w", err)
	}

	template := &x509.Certificate{
		SerialNumber: serial,

		Subject: pkix.Name{
			Organization: []string{"hmerkle test"},
			CommonName:   "hmerkle test server",
		},
		NotBefore: time.Now().Add(-15 * time.Second),
		NotAfter:  time.Now().Add(time.Hour),

		KeyUsage:    x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},

		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else {
			template.DNSNames = append(template.DNSNames, h)
		}
	}

	derBytes, err := x509.CreateCertificate(crand.Reader, template, template, pubKey, privKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create certificate: %w", err)
	}

	var buf bytes.Buffer
	if err := pem.Encode(&buf, &pem.Block{Type: "CERTIFICATE", Bytes: derBytes}); err != nil {
		return nil, fmt.Errorf("failed to encode certificate: %w", err)
	}
	certPEM := bytes.Clone(buf.Bytes())

	buf.Reset()
	privBytes, err := x509.MarshalPKCS8PrivateKey(privKey)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal private key: %w", err)
	}
	if err := pem.Encode(&buf, &pem.Block{Type: "PRIVATE KEY", Bytes: privBytes}); err != nil {
		return nil, fmt.Errorf("failed to encode private key: %w", err)
	}
	keyPEM := buf.Bytes() // Last use of buf.

	cert, err := x509.ParseCertificate(derBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate from DER: %w", err)
	}

	tlsCert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to build TLS key pair: %w", err)
	}

	return &Cert{
		CertPEM: certPEM,
		KeyPEM:  keyPEM,

		Cert:    cert,
		TLSCert: tlsCert,
	}, nil
}

// ServerTLSConfig returns a TLS config presenting c and offering [hmquic.ALPN].
func (c *Cert) ServerTLSConfig() *tls.Config {
	return &tls.Config{
		Certificates: []tls.Certificate{c.TLSCert},
		NextProtos:   []string{hmquic.ALPN},
		MinVersion:   tls.VersionTLS13,
	}
}

// ClientTLSConfig returns a TLS config that trusts only c,
// expecting the server to present it for serverName.
func (c *Cert) ClientTLSConfig(serverName string) *tls.Config {
	pool := x509.NewCertPool()
	pool.AddCert(c.Cert)

	return &tls.Config{
		RootCAs:    pool,
		ServerName: serverName,
		NextProtos: []string{hmquic.ALPN},
		MinVersion: tls.VersionTLS13,
	}
}
