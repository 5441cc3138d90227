// Command hmerkle builds Merkle trees over the lines of a file,
// and produces, verifies, serves, and fetches proofs for those lines.
package main

import (
	"os"

	"github.com/gordian-engine/hmerkle/cmd/hmerkle/cmd"
)

func main() {
	if err := cmd.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
