package target

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// TimeoutExitCode is the exit code reported for a command killed at its
// deadline.
const TimeoutExitCode = -1

// Result is the outcome of one command. A non-zero exit is data, not an
// error.
type Result struct {
	ExitCode int
	TimedOut bool

	// Output holds stdout and stderr interleaved in write order.
	Output   string
	Duration time.Duration
}

// OK reports whether the command exited zero.
func (r Result) OK() bool {
	return r.ExitCode == 0 && !r.TimedOut
}

// Runner executes commands in a fixed directory.
//
// Every command runs in its own process group. When Timeout expires the
// whole group is killed and the Result has TimedOut set.
type Runner struct {
	Dir string

	// Env is appended to the inherited environment.
	Env []string

	// Timeout bounds each command. Zero means no limit.
	Timeout time.Duration

	// WaitDelay bounds how long Run waits for output pipes after a kill.
	WaitDelay time.Duration
}

// NewRunner returns a runner for dir with the given timeout.
func NewRunner(dir string, timeout time.Duration) *Runner {
	return &Runner{
		Dir:       dir,
		Timeout:   timeout,
		WaitDelay: 5 * time.Second,
	}
}

// Run executes name with args. stdin may be empty.
//
// The error is non-nil only when the command could not be started or
// waited for; exit status and timeouts are reported in Result.
func (r *Runner) Run(ctx context.Context, stdin string, name string, args ...string) (Result, error) {
	runCtx := ctx
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, name, args...)
	cmd.Dir = r.Dir
	if len(r.Env) > 0 {
		cmd.Env = append(cmd.Environ(), r.Env...)
	}
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	setProcessGroup(cmd)
	cmd.Cancel = func() error { return killProcessGroup(cmd) }
	cmd.WaitDelay = r.WaitDelay

	start := time.Now()
	err := cmd.Run()
	res := Result{Output: out.String(), Duration: time.Since(start)}

	if runCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		res.TimedOut = true
		res.ExitCode = TimeoutExitCode
		return res, nil
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return res, nil
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	default:
		return res, fmt.Errorf("run %s: %w", name, err)
	}
}

// Shell runs command through sh -c.
func (r *Runner) Shell(ctx context.Context, command string) (Result, error) {
	return r.Run(ctx, "", "sh", "-c", command)
}
