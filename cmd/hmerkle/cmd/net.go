package cmd

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gordian-engine/hmerkle"
	"github.com/gordian-engine/hmerkle/hmquic"
	"github.com/quic-go/quic-go"
	"github.com/spf13/cobra"
)

func newServeCommand(e *env) *cobra.Command {
	var listenAddr, certFile, keyFile string
	var requestTimeout time.Duration

	c := &cobra.Command{
		Use:   "serve FILE",
		Short: "Serve proofs for the tree built over the lines of FILE over QUIC",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := e.logger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			t, err := e.buildFromFile(cmd, args[0])
			if err != nil {
				return err
			}

			cert, err := tls.LoadX509KeyPair(certFile, keyFile)
			if err != nil {
				return fmt.Errorf("failed to load certificate: %w", err)
			}
			tlsConf := &tls.Config{
				Certificates: []tls.Certificate{cert},
				NextProtos:   []string{hmquic.ALPN},
				MinVersion:   tls.VersionTLS13,
			}

			ln, err := quic.ListenAddr(listenAddr, tlsConf, nil)
			if err != nil {
				return fmt.Errorf("failed to listen on %s: %w", listenAddr, err)
			}
			defer ln.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			log.Info(
				"Serving proofs",
				"addr", ln.Addr().String(),
				"root", hex.EncodeToString(t.Root()),
				"leaves", t.Leaves(),
			)

			s := hmquic.NewServer(ctx, log, hmquic.ServerConfig{
				Listener:       ln,
				Tree:           t,
				RequestTimeout: requestTimeout,
			})
			<-ctx.Done()
			s.Wait()

			log.Info("Server stopped")
			return nil
		},
	}

	f := c.Flags()
	f.StringVar(&listenAddr, "listen", "127.0.0.1:4433", "UDP address to listen on")
	f.StringVar(&certFile, "cert", "", "PEM certificate file (required)")
	f.StringVar(&keyFile, "key", "", "PEM private key file (required)")
	f.DurationVar(&requestTimeout, "request-timeout", hmquic.DefaultRequestTimeout, "maximum time to handle one request")
	_ = c.MarkFlagRequired("cert")
	_ = c.MarkFlagRequired("key")

	return c
}

func newFetchCommand(e *env) *cobra.Command {
	var addr, caFile, serverName, rootHex string
	var timeout time.Duration

	c := &cobra.Command{
		Use:   "fetch RECORD",
		Short: "Fetch the proof for RECORD from a proof server and verify it",
		Long: `Fetch the proof for RECORD from a proof server and verify it.

The proof is checked against --root.
Without --root, the server's own root is used and a warning is logged,
which only shows that the server is self-consistent.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := e.logger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			d, err := e.digest()
			if err != nil {
				return err
			}
			leaf, err := e.leafHash(args[0])
			if err != nil {
				return err
			}

			tlsConf, err := clientTLSConfig(caFile, serverName)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			client, err := hmquic.Dial(ctx, addr, hmquic.ClientConfig{TLSConfig: tlsConf})
			if err != nil {
				return err
			}
			defer client.Close()

			var root []byte
			if rootHex == "" {
				root, err = client.Root(ctx)
				if err != nil {
					return err
				}
				log.Warn("No trusted root given; verifying against the server's root", "root", hex.EncodeToString(root))
			} else {
				root, err = hex.DecodeString(rootHex)
				if err != nil {
					return fmt.Errorf("invalid root: %w", err)
				}
			}

			proof, err := client.Proof(ctx, leaf)
			if err != nil {
				return err
			}
			if proof == nil {
				return errRecordNotFound
			}

			w := cmd.OutOrStdout()
			writeProof(w, proof)

			if !hmerkle.Verify(d, root, leaf, proof) {
				fmt.Fprintln(w, "invalid")
				return errInvalidProof
			}
			fmt.Fprintln(w, "valid")
			return nil
		},
	}

	f := c.Flags()
	f.StringVar(&addr, "addr", "127.0.0.1:4433", "proof server address")
	f.StringVar(&caFile, "ca", "", "PEM file of certificates to trust; system roots if empty")
	f.StringVar(&serverName, "server-name", "localhost", "expected server name in its certificate")
	f.StringVar(&rootHex, "root", "", "hex-encoded trusted root hash")
	f.DurationVar(&timeout, "timeout", 10*time.Second, "overall time limit")

	return c
}

func clientTLSConfig(caFile, serverName string) (*tls.Config, error) {
	conf := &tls.Config{
		ServerName: serverName,
		NextProtos: []string{hmquic.ALPN},
		MinVersion: tls.VersionTLS13,
	}
	if caFile == "" {
		return conf, nil
	}

	pem, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, errors.New("no certificates found in CA file")
	}
	conf.RootCAs = pool
	return conf, nil
}
