package cmd

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gordian-engine/hmerkle"
	"github.com/spf13/cobra"
)

var (
	errRecordNotFound = errors.New("record not found in tree")
	errInvalidProof   = errors.New("proof does not verify")
)

func newRootHashCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "root FILE",
		Short: "Print the root hash of the tree built over the lines of FILE",
		Long: `Print the root hash of the tree built over the lines of FILE.
Use - to read records from standard input.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := e.buildFromFile(cmd, args[0])
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "root: %x\n", t.Root())
			fmt.Fprintf(w, "leaves: %d\n", t.Leaves())
			fmt.Fprintf(w, "nodes: %d\n", t.Len())
			return nil
		},
	}
}

func newProofCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "proof FILE RECORD",
		Short: "Print the proof for RECORD in the tree built over the lines of FILE",
		Long: `Print the proof for RECORD in the tree built over the lines of FILE.

Each line of output is one proof node, bottom first,
formatted as L:<hex> for a left sibling or R:<hex> for a right sibling.
The output can be passed directly to the verify command.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := e.buildFromFile(cmd, args[0])
			if err != nil {
				return err
			}
			leaf, err := e.leafHash(args[1])
			if err != nil {
				return err
			}

			if _, ok := t.FindLeaf(leaf); !ok {
				return errRecordNotFound
			}

			writeProof(cmd.OutOrStdout(), t.Proof(leaf))
			return nil
		},
	}
}

func newBranchCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "branch FILE RECORD",
		Short: "Print the path from RECORD's leaf to the root",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := e.buildFromFile(cmd, args[0])
			if err != nil {
				return err
			}
			leaf, err := e.leafHash(args[1])
			if err != nil {
				return err
			}

			branch := t.Branch(leaf)
			if branch == nil {
				return errRecordNotFound
			}

			w := cmd.OutOrStdout()
			for _, n := range branch {
				fmt.Fprintf(w, "%-5s %x\n", n.Role, n.Hash)
			}
			return nil
		},
	}
}

func newVerifyCommand(e *env) *cobra.Command {
	var rootHex string

	c := &cobra.Command{
		Use:   "verify --root HEX RECORD [PROOF_NODE...]",
		Short: "Check that RECORD belongs to the tree with the given root",
		Long: `Check that RECORD belongs to the tree with the given root.

Proof nodes are given in the format printed by the proof command.
The command exits with a non-zero status if the proof does not verify.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := e.digest()
			if err != nil {
				return err
			}
			root, err := hex.DecodeString(rootHex)
			if err != nil {
				return fmt.Errorf("invalid root: %w", err)
			}
			leaf, err := e.leafHash(args[0])
			if err != nil {
				return err
			}
			proof, err := parseProof(args[1:])
			if err != nil {
				return err
			}

			if !hmerkle.Verify(d, root, leaf, proof) {
				fmt.Fprintln(cmd.OutOrStdout(), "invalid")
				return errInvalidProof
			}
			fmt.Fprintln(cmd.OutOrStdout(), "valid")
			return nil
		},
	}

	c.Flags().StringVar(&rootHex, "root", "", "hex-encoded root hash (required)")
	_ = c.MarkFlagRequired("root")

	return c
}

func writeProof(w io.Writer, proof []hmerkle.Node) {
	for _, n := range proof {
		side := "R"
		if n.Role == hmerkle.RoleLeft {
			side = "L"
		}
		fmt.Fprintf(w, "%s:%x\n", side, n.Hash)
	}
}

func parseProof(args []string) ([]hmerkle.Node, error) {
	if len(args) == 0 {
		return nil, nil
	}

	out := make([]hmerkle.Node, len(args))
	for i, a := range args {
		side, h, ok := strings.Cut(a, ":")
		if !ok {
			return nil, fmt.Errorf("proof node %d: expected L:<hex> or R:<hex>, got %q", i, a)
		}

		switch side {
		case "L":
			out[i].Role = hmerkle.RoleLeft
		case "R":
			out[i].Role = hmerkle.RoleRight
		default:
			return nil, fmt.Errorf("proof node %d: unknown side %q", i, side)
		}

		hash, err := hex.DecodeString(h)
		if err != nil {
			return nil, fmt.Errorf("proof node %d: %w", i, err)
		}
		out[i].Hash = hash
	}
	return out, nil
}
