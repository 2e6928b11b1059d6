// Command memhist-ingest is operator/test tooling that drives the
// memhist.Writer public API end to end from a JSON-Lines trace file. It
// is not the production trace feeder the specification treats as an
// external collaborator — it exists so the ingestion pipeline can be
// exercised from the command line the way the teacher's "nysm" binary
// drives its own engine.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags shared by every subcommand, following
// the teacher's internal/cli.RootOptions shape.
type RootOptions struct {
	Verbose bool
}

func newRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "memhist-ingest",
		Short: "memhist-ingest - drive a memhist.Writer from a JSON-Lines trace file",
		Long:  "Reads memory-access events from a JSON-Lines file and records them into a memhist database.",
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose (debug-level) logging")

	cmd.AddCommand(newIngestCommand(opts))
	cmd.AddCommand(newInspectCommand(opts))

	return cmd
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "memhist-ingest:", err)
		os.Exit(1)
	}
}
