package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/graft/internal/engine"
	"github.com/roach88/graft/internal/store"
)

// StatusOptions holds flags for the status command.
type StatusOptions struct {
	*RootOptions
	Database string
	RunID    string
}

// StatusResult is the JSON payload of status.
type StatusResult struct {
	Run     store.RunInfo  `json:"run"`
	Summary engine.Summary `json:"summary"`
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatusOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the state of a run",
		Long: `Show the last snapshot of the latest run, or of the run named by --run.

Examples:
  graft status --db .graft/graft.db
  graft status --db .graft/graft.db --run 0192f3a4-... --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run id (defaults to the latest run)")

	return cmd
}

func runStatus(opts *StatusOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	f := opts.formatter(cmd)

	db, err := openExistingStore(opts.Database)
	if err != nil {
		return f.fail(ExitCommandError, ErrCodeStore, "failed to open database", err)
	}
	defer db.Close()

	runID, err := selectRun(ctx, db, opts.RunID)
	if err != nil {
		return failLookup(f, err)
	}
	info, err := db.ReadRun(ctx, runID)
	if err != nil {
		return failLookup(f, err)
	}
	st, err := db.LoadState(ctx, runID)
	if err != nil {
		return failLookup(f, err)
	}

	result := StatusResult{Run: info, Summary: engine.Summarize(st)}
	if f.JSON() {
		return f.Success(result)
	}

	f.Printf("=== Run ===\n")
	f.Printf("  ID:          %s\n", info.ID)
	f.Printf("  Created:     %s\n", info.CreatedAt.UTC().Format(time.RFC3339))
	f.Printf("  Updated:     %s\n", info.UpdatedAt.UTC().Format(time.RFC3339))
	if info.BaseRef != "" {
		f.Printf("  Base:        %s\n", info.BaseRef)
	}
	f.Printf("  Engine:      %s\n", info.EngineVersion)
	f.Printf("\n=== Summary ===\n")
	renderSummary(f, result.Summary)
	return nil
}
