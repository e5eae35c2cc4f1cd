package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/graft/internal/model"
)

// AttemptsOptions holds flags for the attempts command.
type AttemptsOptions struct {
	*RootOptions
	Database string
	RunID    string
	Outcome  string
}

// AttemptsResult is the JSON payload of attempts.
type AttemptsResult struct {
	RunID    string                `json:"run_id"`
	Attempts []model.AttemptRecord `json:"attempts"`
	Stats    AttemptStats          `json:"stats"`
}

// AttemptStats counts the listed attempts by outcome.
type AttemptStats struct {
	Total       int `json:"total"`
	Passed      int `json:"passed"`
	Failed      int `json:"failed"`
	ApplyFailed int `json:"apply_failed"`
}

// NewAttemptsCommand creates the attempts command.
func NewAttemptsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AttemptsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "attempts",
		Short: "List the attempt timeline of a run",
		Long: `List every recorded attempt of a run in seq order: which units were
tried, why they were picked, under which strategy, and what happened.

Examples:
  graft attempts --db .graft/graft.db
  graft attempts --db .graft/graft.db --outcome applied_and_failed -v
  graft attempts --db .graft/graft.db --run 0192f3a4-... --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAttempts(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run id (defaults to the latest run)")
	cmd.Flags().StringVar(&opts.Outcome, "outcome", "",
		"only attempts with this outcome (applied_and_passed|applied_and_failed|failed_to_apply)")

	return cmd
}

func runAttempts(opts *AttemptsOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	f := opts.formatter(cmd)

	outcome := model.Outcome(opts.Outcome)
	if outcome != "" && !model.ValidOutcomes[outcome] {
		return f.fail(ExitCommandError, ErrCodeGeneric, fmt.Sprintf("unknown outcome %q", opts.Outcome), nil)
	}

	db, err := openExistingStore(opts.Database)
	if err != nil {
		return f.fail(ExitCommandError, ErrCodeStore, "failed to open database", err)
	}
	defer db.Close()

	runID, err := selectRun(ctx, db, opts.RunID)
	if err != nil {
		return failLookup(f, err)
	}
	if _, err := db.ReadRun(ctx, runID); err != nil {
		return failLookup(f, err)
	}
	attempts, err := db.ReadAttempts(ctx, runID, outcome)
	if err != nil {
		return f.fail(ExitCommandError, ErrCodeStore, "failed to read attempts", err)
	}

	result := AttemptsResult{RunID: runID, Attempts: attempts, Stats: countAttempts(attempts)}
	if f.JSON() {
		return f.Success(result)
	}

	f.Printf("Attempts for run: %s\n\n", runID)
	f.Printf("=== Timeline ===\n")
	if len(attempts) == 0 {
		f.Printf("  (no attempts)\n")
	}
	for _, a := range attempts {
		renderAttempt(f, a, opts.Verbose)
	}
	f.Printf("\n=== Stats ===\n")
	f.Printf("  Total:        %d\n", result.Stats.Total)
	f.Printf("  Passed:       %d\n", result.Stats.Passed)
	f.Printf("  Failed:       %d\n", result.Stats.Failed)
	f.Printf("  Apply failed: %d\n", result.Stats.ApplyFailed)
	return nil
}

func countAttempts(attempts []model.AttemptRecord) AttemptStats {
	stats := AttemptStats{Total: len(attempts)}
	for _, a := range attempts {
		switch a.Outcome {
		case model.OutcomePassed:
			stats.Passed++
		case model.OutcomeFailed:
			stats.Failed++
		case model.OutcomeApplyFailed:
			stats.ApplyFailed++
		}
	}
	return stats
}
