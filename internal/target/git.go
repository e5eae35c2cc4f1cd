package target

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/roach88/graft/internal/engine"
	"github.com/roach88/graft/internal/model"
)

// Mode selects how a Git target applies units.
type Mode string

const (
	// ModeAm applies mbox patches with git am, one commit per unit.
	ModeAm Mode = "am"

	// ModeApply stages plain diffs with git apply; Commit makes one commit
	// for the whole batch.
	ModeApply Mode = "apply"

	// ModeCherryPick picks commits by id, one commit per unit.
	ModeCherryPick Mode = "cherry-pick"
)

// Modes lists the accepted modes.
var Modes = []Mode{ModeAm, ModeApply, ModeCherryPick}

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	for _, m := range Modes {
		if string(m) == s {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown git mode %q (want am, apply or cherry-pick)", s)
}

// CommitsPerUnit reports whether ApplyOne already commits.
func (m Mode) CommitsPerUnit() bool {
	return m != ModeApply
}

// DefaultGitTimeout bounds each git invocation.
const DefaultGitTimeout = 10 * time.Minute

// Check names the validation command and its deadline.
type Check struct {
	Name    string
	Command string
	Timeout time.Duration
}

// Git is an engine.Target over a git working copy.
//
// Checkpoint tokens are commit ids. Rollback aborts any half-finished am or
// cherry-pick, hard-resets to the token and removes untracked files, so it
// can be repeated safely.
type Git struct {
	dir    string
	mode   Mode
	git    *Runner
	checks *CheckRunner
	check  Check
	logger *slog.Logger
}

var _ engine.Target = (*Git)(nil)

// GitOption configures a Git target.
type GitOption func(*Git)

// WithGitLogger sets the logger.
func WithGitLogger(l *slog.Logger) GitOption {
	return func(g *Git) {
		g.logger = l
	}
}

// WithGitTimeout bounds each git command.
func WithGitTimeout(d time.Duration) GitOption {
	return func(g *Git) {
		g.git.Timeout = d
	}
}

// NewGit returns a target for the working copy at dir.
func NewGit(dir string, mode Mode, checks *CheckRunner, check Check, opts ...GitOption) (*Git, error) {
	if _, err := ParseMode(string(mode)); err != nil {
		return nil, err
	}
	if check.Command == "" {
		return nil, errors.New("git target: no check command")
	}
	if check.Name == "" {
		check.Name = "check"
	}
	g := &Git{
		dir:    dir,
		mode:   mode,
		git:    NewRunner(dir, DefaultGitTimeout),
		checks: checks,
		check:  check,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	g.git.Env = []string{"GIT_TERMINAL_PROMPT=0", "GIT_EDITOR=true"}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Mode returns the apply mode.
func (g *Git) Mode() Mode {
	return g.mode
}

// run executes a git command; a non-zero exit is returned in Result.
func (g *Git) run(ctx context.Context, stdin string, args ...string) (Result, error) {
	g.logger.Debug("git", "args", strings.Join(args, " "))
	res, err := g.git.Run(ctx, stdin, "git", args...)
	if err != nil {
		return res, err
	}
	if res.TimedOut {
		return res, fmt.Errorf("git %s: timed out after %s", args[0], g.git.Timeout)
	}
	return res, nil
}

// runOK executes a git command that must succeed and returns its output.
func (g *Git) runOK(ctx context.Context, args ...string) (string, error) {
	res, err := g.run(ctx, "", args...)
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		return "", fmt.Errorf("git %s: exit %d: %s", args[0], res.ExitCode, strings.TrimSpace(res.Output))
	}
	return strings.TrimSpace(res.Output), nil
}

// Head returns the current commit id.
func (g *Git) Head(ctx context.Context) (string, error) {
	return g.runOK(ctx, "rev-parse", "HEAD")
}

// Checkpoint records HEAD.
func (g *Git) Checkpoint(ctx context.Context) (engine.Token, error) {
	head, err := g.Head(ctx)
	if err != nil {
		return "", fmt.Errorf("checkpoint: %w", err)
	}
	return engine.Token(head), nil
}

// ApplyOne applies a single unit according to the mode.
func (g *Git) ApplyOne(ctx context.Context, u model.Unit) (engine.ApplyResult, error) {
	var (
		res Result
		err error
	)
	switch g.mode {
	case ModeAm:
		if u.Content == "" {
			return engine.ApplyResult{FailedUnitID: u.ID, Output: "unit has no patch content"}, nil
		}
		res, err = g.run(ctx, u.Content, "am", "--3way")
	case ModeApply:
		if u.Content == "" {
			return engine.ApplyResult{FailedUnitID: u.ID, Output: "unit has no patch content"}, nil
		}
		res, err = g.run(ctx, u.Content, "apply", "--index", "-")
	case ModeCherryPick:
		res, err = g.run(ctx, "", "cherry-pick", u.ID)
	}
	if err != nil {
		return engine.ApplyResult{}, fmt.Errorf("apply %s: %w", u.ShortID(), err)
	}
	if res.ExitCode == 0 {
		return engine.ApplyResult{Success: true, Output: res.Output}, nil
	}

	g.logger.Info("unit did not apply", "unit", u.ShortID(), "mode", string(g.mode), "exit", res.ExitCode)
	if err := g.abortInProgress(ctx); err != nil {
		return engine.ApplyResult{}, fmt.Errorf("apply %s: %w", u.ShortID(), err)
	}
	return engine.ApplyResult{FailedUnitID: u.ID, Output: res.Output}, nil
}

// Validate runs the configured check.
func (g *Git) Validate(ctx context.Context) (engine.ValidateResult, error) {
	res, err := g.checks.Run(ctx, g.check.Name, g.check.Command, g.check.Timeout)
	if err != nil {
		return engine.ValidateResult{}, err
	}
	return engine.ValidateResult{
		Passed:   res.Passed,
		TimedOut: res.TimedOut,
		Output:   res.Output,
	}, nil
}

// Rollback restores the working copy to tok.
func (g *Git) Rollback(ctx context.Context, tok engine.Token) error {
	if tok == "" {
		return errors.New("rollback: empty checkpoint")
	}
	if err := g.abortInProgress(ctx); err != nil {
		return fmt.Errorf("rollback: %w", err)
	}
	if _, err := g.runOK(ctx, "reset", "--hard", "--quiet", string(tok)); err != nil {
		return fmt.Errorf("rollback: %w", err)
	}
	if _, err := g.runOK(ctx, "clean", "-fd", "--quiet"); err != nil {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}

// Reset abandons everything after ref. Used to clean up after an
// interrupted run.
func (g *Git) Reset(ctx context.Context, ref string) error {
	return g.Rollback(ctx, engine.Token(ref))
}

// Commit creates the batch commit in apply mode. The other modes commit
// per unit, so Commit does nothing there.
func (g *Git) Commit(ctx context.Context, message string) error {
	if g.mode.CommitsPerUnit() {
		return nil
	}
	res, err := g.run(ctx, "", "diff", "--cached", "--quiet")
	if err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	if res.ExitCode == 0 {
		// Nothing staged.
		return nil
	}
	if _, err := g.runOK(ctx, "commit", "--quiet", "--no-verify", "-m", message); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// InProgress reports which git operation, if any, was left unfinished.
func (g *Git) InProgress(ctx context.Context) (string, error) {
	gitDir, err := g.runOK(ctx, "rev-parse", "--absolute-git-dir")
	if err != nil {
		return "", err
	}
	markers := []struct {
		path string
		op   string
	}{
		{filepath.Join(gitDir, "rebase-apply"), "am"},
		{filepath.Join(gitDir, "CHERRY_PICK_HEAD"), "cherry-pick"},
	}
	for _, m := range markers {
		if _, err := os.Stat(m.path); err == nil {
			return m.op, nil
		}
	}
	return "", nil
}

func (g *Git) abortInProgress(ctx context.Context) error {
	op, err := g.InProgress(ctx)
	if err != nil || op == "" {
		return err
	}
	g.logger.Debug("aborting unfinished git operation", "op", op)
	_, err = g.runOK(ctx, op, "--abort")
	return err
}
