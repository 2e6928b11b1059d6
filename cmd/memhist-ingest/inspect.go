package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/brinedb/memhist/internal/store"
)

// InspectOptions holds flags for the inspect command.
type InspectOptions struct {
	*RootOptions
	Database string
	Format   string
}

// inspectResult is the summary this command reports: row counts per
// table plus the transition range spanned by the slices table, the
// figures a sanity check against a freshly ingested database wants.
type inspectResult struct {
	Slices          int64 `json:"slices"`
	Chunks          int64 `json:"chunks"`
	Accesses        int64 `json:"accesses"`
	TransitionFirst int64 `json:"transition_first"`
	TransitionLast  int64 `json:"transition_last"`
}

func newInspectCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InspectOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "inspect",
		Short:         "Print row counts and transition bounds for a memhist database",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(opts)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to the memhist database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Format, "format", "text", "output format (text|json)")

	return cmd
}

func runInspect(opts *InspectOptions) error {
	st, err := store.Open(opts.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer st.Close()

	db := st.DB()
	var result inspectResult
	if err := db.QueryRow("select count(*) from slices").Scan(&result.Slices); err != nil {
		return fmt.Errorf("count slices: %w", err)
	}
	if err := db.QueryRow("select count(*) from chunks").Scan(&result.Chunks); err != nil {
		return fmt.Errorf("count chunks: %w", err)
	}
	if err := db.QueryRow("select count(*) from accesses").Scan(&result.Accesses); err != nil {
		return fmt.Errorf("count accesses: %w", err)
	}
	if result.Slices > 0 {
		if err := db.QueryRow("select min(transition_first), max(transition_last) from slices").
			Scan(&result.TransitionFirst, &result.TransitionLast); err != nil {
			return fmt.Errorf("read transition bounds: %w", err)
		}
	}

	if opts.Format == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	fmt.Printf("slices:    %d\n", result.Slices)
	fmt.Printf("chunks:    %d\n", result.Chunks)
	fmt.Printf("accesses:  %d\n", result.Accesses)
	fmt.Printf("transition range: [%d, %d]\n", result.TransitionFirst, result.TransitionLast)
	return nil
}
