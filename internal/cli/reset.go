package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/graft/internal/model"
)

// ResetOptions holds flags for the reset command.
type ResetOptions struct {
	*RootOptions
	ConfigOptions
	RunID string
	Force bool
}

// ResetResult is the JSON payload of reset.
type ResetResult struct {
	RunID   string `json:"run_id"`
	BaseRef string `json:"base_ref"`
	Workdir string `json:"workdir"`
}

// NewResetCommand creates the reset command.
func NewResetCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ResetOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Return the target to where a run started and forget the run",
		Long: `Abort any unfinished git am or cherry-pick in the target working copy,
hard-reset it to the commit the run started from, and delete the run's
state. A finished run is only reset with --force, because its integrated
commits are discarded.

Examples:
  graft reset -c graft.yaml
  graft reset -c graft.yaml --run 0192f3a4-... --force`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReset(opts, cmd)
		},
	}

	addConfigFlags(cmd, &opts.ConfigOptions)
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run id (defaults to the latest run)")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "reset even a finished run")

	return cmd
}

func runReset(opts *ResetOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	f := opts.formatter(cmd)

	cfg, err := opts.load()
	if err != nil {
		return f.fail(ExitCommandError, ErrCodeConfig, "invalid configuration", err)
	}
	logger := opts.logger(cmd, cfg.LogLevel)

	db, err := openExistingStore(cfg.State.DB)
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
	if info.Done && !opts.Force {
		return f.fail(ExitCommandError, ErrCodeGeneric,
			fmt.Sprintf("run %s is done; resetting discards its integrated commits (use --force)", runID), nil)
	}
	if info.BaseRef == "" {
		return f.fail(ExitCommandError, ErrCodeStore, fmt.Sprintf("run %s has no recorded base", runID), nil)
	}

	tgt, err := newTarget(cfg, logger)
	if err != nil {
		return f.fail(ExitCommandError, ErrCodeConfig, "invalid target", err)
	}
	if err := tgt.Reset(ctx, info.BaseRef); err != nil {
		return f.fail(ExitFailure, ErrCodeTarget, "failed to reset working copy", err)
	}
	if err := db.DeleteRun(ctx, runID); err != nil {
		return f.fail(ExitCommandError, ErrCodeStore, "failed to delete run", err)
	}
	logger.Info("run reset", "run", runID, "base", model.ShortID(info.BaseRef))

	result := ResetResult{RunID: runID, BaseRef: info.BaseRef, Workdir: cfg.Git.TargetWorkdir}
	if f.JSON() {
		return f.Success(result)
	}
	f.Printf("Reset %s to %s\n", result.Workdir, model.ShortID(result.BaseRef))
	f.Printf("Removed run %s\n", runID)
	return nil
}
