package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/brinedb/memhist"
	"github.com/brinedb/memhist/internal/config"
)

// IngestOptions holds flags for the ingest command.
type IngestOptions struct {
	*RootOptions
	Trace       string
	Database    string
	LimitsFile  string
	ToolName    string
	ToolVersion string
	ToolInfo    string
}

// traceRecord is one line of the JSON-Lines input file: a memory-access
// event in the wire shape a trace provider would emit, with Operation
// spelled out as a mnemonic string for operator readability rather than
// the raw encoded byte.
type traceRecord struct {
	Transition        uint64 `json:"transition"`
	PhysicalAddress   uint64 `json:"physical_address"`
	VirtualAddress    uint64 `json:"virtual_address,omitempty"`
	HasVirtualAddress bool   `json:"has_virtual_address,omitempty"`
	Size              uint32 `json:"size"`
	Operation         string `json:"operation"`
}

func parseOperation(s string) (memhist.Operation, error) {
	switch strings.ToLower(s) {
	case "read":
		return memhist.OperationRead, nil
	case "write":
		return memhist.OperationWrite, nil
	case "execute":
		return memhist.OperationExecute, nil
	default:
		return 0, fmt.Errorf("unknown operation %q (want read, write, or execute)", s)
	}
}

func newIngestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &IngestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Record a JSON-Lines trace of memory accesses into a memhist database",
		Long: `Reads memory-access events, one JSON object per line, from --trace and
pushes each into a memhist.Writer backed by --db (or an in-memory store
when --db is omitted).

Example line:
  {"transition":0,"physical_address":10,"virtual_address":6666,"has_virtual_address":true,"size":10,"operation":"write"}`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(opts)
		},
	}

	cmd.Flags().StringVar(&opts.Trace, "trace", "", "path to a JSON-Lines trace file (required)")
	_ = cmd.MarkFlagRequired("trace")
	cmd.Flags().StringVar(&opts.Database, "db", ":memory:", "path to the memhist database to create or append to")
	cmd.Flags().StringVar(&opts.LimitsFile, "limits", "", "path to a YAML capacity-limits document (defaults applied if omitted)")
	cmd.Flags().StringVar(&opts.ToolName, "tool-name", "memhist-ingest", "tool identity stamped in the metadata sidecar")
	cmd.Flags().StringVar(&opts.ToolVersion, "tool-version", "1.0.0", "tool version stamped in the metadata sidecar")
	cmd.Flags().StringVar(&opts.ToolInfo, "tool-info", "", "free-form tool info stamped in the metadata sidecar")

	return cmd
}

func runIngest(opts *IngestOptions) error {
	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	limits := config.Defaults()
	if opts.LimitsFile != "" {
		var err error
		limits, err = config.Load(opts.LimitsFile)
		if err != nil {
			return fmt.Errorf("load limits: %w", err)
		}
	}

	w, err := memhist.New(opts.Database, opts.ToolName, opts.ToolVersion, opts.ToolInfo,
		memhist.WithLimits(limits), memhist.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("open writer: %w", err)
	}
	defer w.Close()

	f, err := os.Open(opts.Trace)
	if err != nil {
		return fmt.Errorf("open trace file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var pushed int
	for lineNo := 1; scanner.Scan(); lineNo++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var rec traceRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			return fmt.Errorf("trace line %d: parse json: %w", lineNo, err)
		}
		op, err := parseOperation(rec.Operation)
		if err != nil {
			return fmt.Errorf("trace line %d: %w", lineNo, err)
		}

		err = w.Push(memhist.Access{
			Transition:        rec.Transition,
			PhysicalAddress:   rec.PhysicalAddress,
			VirtualAddress:    rec.VirtualAddress,
			HasVirtualAddress: rec.HasVirtualAddress,
			Size:              rec.Size,
			Operation:         op,
		})
		if err != nil {
			return fmt.Errorf("trace line %d: push: %w", lineNo, err)
		}
		pushed++
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read trace file: %w", err)
	}

	logger.Info("ingest complete", "accesses", pushed, "database", opts.Database)
	return nil
}
