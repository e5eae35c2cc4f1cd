package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/graft/internal/config"
	"github.com/roach88/graft/internal/engine"
	"github.com/roach88/graft/internal/model"
	"github.com/roach88/graft/internal/store"
	"github.com/roach88/graft/internal/target"
	"github.com/roach88/graft/internal/triage"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	ConfigOptions

	Strategy  string
	BatchSize int
	RunID     string
	Resume    bool
	Step      bool
	Strict    bool
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Integrate the configured units into the target",
		Long: `Collect the units of the configured source and integrate them into the
target working copy, validating after each batch.

Every attempt is recorded in the state database. An interrupted run is
continued with --resume; Ctrl-C stops after the attempt in flight.

Examples:
  graft run -c graft.yaml
  graft run -c graft.yaml --strategy per-unit
  graft run -c graft.yaml --resume --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIntegration(opts, cmd)
		},
	}

	addConfigFlags(cmd, &opts.ConfigOptions)
	cmd.Flags().StringVar(&opts.Strategy, "strategy", "", "initial strategy (optimistic|fixed-batch|per-unit)")
	cmd.Flags().IntVar(&opts.BatchSize, "batch-size", 0, "batch size for fixed-batch")
	cmd.Flags().StringVar(&opts.RunID, "run-id", "", "id of the new run, or of the run to resume")
	cmd.Flags().BoolVar(&opts.Resume, "resume", false, "continue the latest (or --run-id) run")
	cmd.Flags().BoolVar(&opts.Step, "step", false, "run a single iteration and stop")
	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "exit 1 when any unit was excluded")

	return cmd
}

func addConfigFlags(cmd *cobra.Command, c *ConfigOptions) {
	cmd.Flags().StringVarP(&c.ConfigPath, "config", "c", "graft.yaml", "configuration file (.yaml or .cue)")
	cmd.Flags().StringArrayVar(&c.Includes, "include", nil, "extra configuration file merged last (repeatable)")
}

func runIntegration(opts *RunOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	cfg, err := opts.load()
	if err != nil {
		return f.fail(ExitCommandError, ErrCodeConfig, "invalid configuration", err)
	}
	if opts.Strategy != "" {
		cfg.Strategy.Initial = opts.Strategy
	}
	if cmd.Flags().Changed("batch-size") {
		cfg.Strategy.BatchSize = opts.BatchSize
	}
	if err := config.Validate(cfg); err != nil {
		return f.fail(ExitCommandError, ErrCodeConfig, "invalid configuration", err)
	}

	logger := opts.logger(cmd, cfg.LogLevel)
	ctx, stop := signalContext(cmd.Context(), logger)
	defer stop()

	db, err := openStore(cfg.State.DB)
	if err != nil {
		return f.fail(ExitCommandError, ErrCodeStore, "failed to open state database", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	tgt, err := newTarget(cfg, logger)
	if err != nil {
		return f.fail(ExitCommandError, ErrCodeConfig, "invalid target", err)
	}
	src, err := newSource(cfg, logger)
	if err != nil {
		return f.fail(ExitCommandError, ErrCodeConfig, "invalid source", err)
	}
	classifier, err := triage.New(cfg.Strategy.SystemicPatterns,
		triage.WithTimeoutSystemic(cfg.Strategy.TimeoutSystemic),
		triage.WithLogger(logger),
	)
	if err != nil {
		return f.fail(ExitCommandError, ErrCodeConfig, "invalid systemic pattern", err)
	}

	engineOpts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithPersister(db),
		engine.WithClassifier(classifier),
		engine.WithPlanner(newPlanner(cfg)),
	}

	var eng *engine.Engine
	if opts.Resume {
		eng, err = resumeRun(ctx, f, opts, db, src, tgt, engineOpts)
	} else {
		eng, err = startRun(ctx, f, opts, cfg, db, src, tgt, engineOpts, logger)
	}
	if err != nil {
		return err
	}

	if opts.Step {
		_, err = eng.Step(ctx)
	} else {
		err = eng.Run(ctx)
	}
	return reportRun(f, engine.Summarize(eng.State()), err, opts.Strict)
}

func startRun(
	ctx context.Context,
	f *OutputFormatter,
	opts *RunOptions,
	cfg *config.Config,
	db *store.Store,
	src engine.ChangeSource,
	tgt *target.Git,
	engineOpts []engine.Option,
	logger *slog.Logger,
) (*engine.Engine, error) {
	units, err := src.Units(ctx)
	if err != nil {
		return nil, f.fail(ExitCommandError, ErrCodeSource, "failed to collect units", err)
	}
	strategy, err := engine.NewStrategy(cfg.Strategy.Initial, cfg.Strategy.BatchSize)
	if err != nil {
		return nil, f.fail(ExitCommandError, ErrCodeConfig, "invalid strategy", err)
	}
	engineOpts = append(engineOpts, engine.WithStrategy(strategy))
	if opts.RunID != "" {
		engineOpts = append(engineOpts, engine.WithRunIDGenerator(engine.NewFixedGenerator(opts.RunID)))
	}
	eng, err := engine.New(units, tgt, engineOpts...)
	if err != nil {
		return nil, f.fail(ExitCommandError, ErrCodeSource, "invalid unit list", err)
	}

	base, err := tgt.Checkpoint(ctx)
	if err != nil {
		return nil, f.fail(ExitFailure, ErrCodeTarget, "failed to read target checkpoint", err)
	}
	if err := db.CreateRun(ctx, eng.State(), string(base)); err != nil {
		return nil, f.fail(ExitCommandError, ErrCodeStore, "failed to record run", err)
	}
	logger.Info("run created", "run", eng.State().RunID, "units", len(units), "base", model.ShortID(string(base)))
	return eng, nil
}

func resumeRun(
	ctx context.Context,
	f *OutputFormatter,
	opts *RunOptions,
	db *store.Store,
	src engine.ChangeSource,
	tgt *target.Git,
	engineOpts []engine.Option,
) (*engine.Engine, error) {
	runID, err := selectRun(ctx, db, opts.RunID)
	if err != nil {
		return nil, failLookup(f, err)
	}
	st, err := db.LoadState(ctx, runID)
	if err != nil {
		return nil, failLookup(f, err)
	}

	op, err := tgt.InProgress(ctx)
	if err != nil {
		return nil, f.fail(ExitFailure, ErrCodeTarget, "failed to inspect working copy", err)
	}
	if op != "" {
		return nil, f.fail(ExitFailure, ErrCodeTarget,
			fmt.Sprintf("working copy has an unfinished git %s; abort it before resuming", op), nil)
	}

	units, err := src.Units(ctx)
	if err != nil {
		return nil, f.fail(ExitCommandError, ErrCodeSource, "failed to collect units", err)
	}
	if err := engine.VerifyUnits(st, units); err != nil {
		return nil, f.fail(ExitCommandError, ErrCodeConfig, "cannot resume", err)
	}
	eng, err := engine.Resume(st, tgt, engineOpts...)
	if err != nil {
		return nil, f.fail(ExitCommandError, ErrCodeStore, "cannot resume", err)
	}
	return eng, nil
}

// reportRun prints the summary and maps the engine result to an exit code.
func reportRun(f *OutputFormatter, s engine.Summary, err error, strict bool) error {
	if !f.JSON() {
		renderSummary(f, s)
	}
	switch {
	case err == nil && strict && len(s.Excluded) > 0:
		return f.failWithData(ExitFailure, ErrCodeExcluded,
			fmt.Sprintf("%d unit(s) excluded", len(s.Excluded)), nil, s)
	case err == nil:
		if f.JSON() {
			return f.Success(s)
		}
		return nil
	case engine.IsMaxRetries(err):
		return reportAbort(f, s, err)
	case errors.Is(err, context.Canceled):
		return f.failWithData(ExitFailure, ErrCodeGeneric, "run interrupted; continue with --resume", nil, s)
	case engine.IsConfigError(err):
		return f.failWithData(ExitCommandError, ErrCodeConfig, "invalid run", err, s)
	case engine.IsTargetError(err):
		return f.failWithData(ExitFailure, ErrCodeTarget, "target failed", err, s)
	default:
		return f.failWithData(ExitFailure, ErrCodeGeneric, "run failed", err, s)
	}
}

// abortOutputLines is how much of the last failing validation an abort shows.
const abortOutputLines = 20

// AbortDetails are the error details of an aborted run.
type AbortDetails struct {
	LastOutput string `json:"last_output"`
}

// reportAbort reports a max-retries abort with the tail of the validation
// output that caused it.
func reportAbort(f *OutputFormatter, s engine.Summary, err error) error {
	var tail string
	var ee *engine.Error
	if errors.As(err, &ee) {
		tail = ee.OutputTail(abortOutputLines)
	}
	message := fmt.Sprintf("run aborted: %v", err)
	if f.JSON() {
		_ = f.ErrorWithData(ErrCodeAborted, message, AbortDetails{LastOutput: tail}, s)
	} else {
		_ = f.Error(ErrCodeAborted, message, nil)
		if tail != "" {
			f.Printf("Last validation output:\n%s\n", indent(tail, "  "))
		}
	}
	return WrapExitError(ExitFailure, "run aborted", err)
}

// selectRun returns id, or the latest run when id is empty.
func selectRun(ctx context.Context, db *store.Store, id string) (string, error) {
	if id != "" {
		return id, nil
	}
	return db.LatestRun(ctx)
}

func failLookup(f *OutputFormatter, err error) error {
	if errors.Is(err, store.ErrRunNotFound) {
		_ = f.Error(ErrCodeNotFound, err.Error(), nil)
		return WrapExitError(ExitCommandError, "lookup failed", err)
	}
	return f.fail(ExitCommandError, ErrCodeStore, "failed to read run", err)
}

// signalContext cancels on SIGINT or SIGTERM. The engine notices between
// attempts, so the attempt in flight always finishes and is recorded.
func signalContext(parent context.Context, logger *slog.Logger) (context.Context, func()) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, stopping after the current attempt", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
	}
}
