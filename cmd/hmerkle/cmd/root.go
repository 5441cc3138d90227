// Package cmd contains the cobra commands for the hmerkle binary.
package cmd

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/gordian-engine/hmerkle"
	"github.com/gordian-engine/hmerkle/hmdigest"
	"github.com/gordian-engine/hmerkle/hmdigest/hmalgo"
	"github.com/gordian-engine/hmerkle/hmencode"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	flagDigest    = "digest"
	flagEncoding  = "encoding"
	flagLogLevel  = "log-level"
	flagLogFormat = "log-format"

	encodingRaw  = "raw"
	encodingU32  = "u32"
	encodingCBOR = "cbor"

	// Longest line accepted as a record.
	maxRecordSize = 1 << 20
)

// env is shared by every command,
// giving access to configuration resolved from flags and the environment.
type env struct {
	v *viper.Viper
}

// NewRootCommand returns the hmerkle root command with all sub-commands.
//
// Every flag may also be set through an environment variable
// named HMERKLE_ followed by the upper-cased flag name,
// with dashes replaced by underscores.
func NewRootCommand() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("HMERKLE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	e := &env{v: v}

	root := &cobra.Command{
		Use:   "hmerkle",
		Short: "Build heap-ordered Merkle trees and work with their proofs",

		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return v.BindPFlags(cmd.Flags())
		},
	}

	pf := root.PersistentFlags()
	pf.String(flagDigest, hmalgo.Default, "digest algorithm; see the algorithms command")
	pf.String(flagEncoding, encodingRaw, "record encoding, one of: "+strings.Join([]string{encodingRaw, encodingU32, encodingCBOR}, ","))
	pf.String(flagLogLevel, "info", "log level: debug, info, warn, or error")
	pf.String(flagLogFormat, "text", "log format: text or json")

	root.AddCommand(
		newAlgorithmsCommand(),
		newRootHashCommand(e),
		newProofCommand(e),
		newBranchCommand(e),
		newVerifyCommand(e),
		newServeCommand(e),
		newFetchCommand(e),
	)

	return root
}

func (e *env) digest() (hmdigest.Digest, error) {
	return hmalgo.ByName(e.v.GetString(flagDigest))
}

func (e *env) encoder() (hmencode.Encoder[[]byte], error) {
	switch enc := e.v.GetString(flagEncoding); enc {
	case encodingRaw:
		return hmencode.Bytes{}, nil
	case encodingU32:
		return hmencode.LengthPrefixed[[]byte]{Inner: hmencode.Bytes{}}, nil
	case encodingCBOR:
		c, err := hmencode.NewCBOR[[]byte]()
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown encoding %q", enc)
	}
}

func (e *env) logger(w io.Writer) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(e.v.GetString(flagLogLevel))); err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	opts := &slog.HandlerOptions{Level: lvl}
	switch f := e.v.GetString(flagLogFormat); f {
	case "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", f)
	}
}

// leafHash returns the leaf hash of a single record given on the command line.
func (e *env) leafHash(record string) ([]byte, error) {
	d, err := e.digest()
	if err != nil {
		return nil, err
	}
	enc, err := e.encoder()
	if err != nil {
		return nil, err
	}
	return hmerkle.LeafHash([]byte(record), enc, d)
}

// buildFromFile builds a tree over the lines of path,
// where "-" means standard input.
func (e *env) buildFromFile(cmd *cobra.Command, path string) (*hmerkle.Tree, error) {
	d, err := e.digest()
	if err != nil {
		return nil, err
	}
	enc, err := e.encoder()
	if err != nil {
		return nil, err
	}

	var r io.Reader
	if path == "-" {
		r = cmd.InOrStdin()
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open records: %w", err)
		}
		defer f.Close()
		r = f
	}

	records, err := readLines(r)
	if err != nil {
		return nil, err
	}

	t, err := hmerkle.BuildRecords(records, enc, d)
	if err != nil {
		return nil, fmt.Errorf("failed to build tree from %s: %w", path, err)
	}
	return t, nil
}

func readLines(r io.Reader) ([][]byte, error) {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), maxRecordSize)

	var out [][]byte
	for s.Scan() {
		out = append(out, bytes.Clone(s.Bytes()))
	}
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("failed to read records: %w", err)
	}
	return out, nil
}

func newAlgorithmsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "algorithms",
		Short: "List the available digest algorithms",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, n := range hmalgo.Names() {
				fmt.Fprintln(cmd.OutOrStdout(), n)
			}
			return nil
		},
	}
}
