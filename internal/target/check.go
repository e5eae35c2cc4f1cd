package target

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// CheckResult is one run of a named check command.
type CheckResult struct {
	Name     string
	Passed   bool
	TimedOut bool
	ExitCode int
	Output   string

	// LogFile is where the combined output was written.
	LogFile  string
	Started  time.Time
	Duration time.Duration
}

// CheckRunner runs validation commands and keeps one log file per run,
// named <check>-YYYYmmdd-HHMMSS.log under OutputDir.
type CheckRunner struct {
	runner    *Runner
	outputDir string
	now       func() time.Time
	logger    *slog.Logger
}

// CheckOption configures a CheckRunner.
type CheckOption func(*CheckRunner)

// WithCheckLogger echoes check output at debug level.
func WithCheckLogger(l *slog.Logger) CheckOption {
	return func(c *CheckRunner) {
		c.logger = l
	}
}

// WithCheckClock sets the clock used to name log files.
func WithCheckClock(now func() time.Time) CheckOption {
	return func(c *CheckRunner) {
		c.now = now
	}
}

// NewCheckRunner runs checks in workdir and writes logs to outputDir.
func NewCheckRunner(workdir, outputDir string, opts ...CheckOption) *CheckRunner {
	c := &CheckRunner{
		runner:    NewRunner(workdir, 0),
		outputDir: outputDir,
		now:       time.Now,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run executes command through the shell with the given timeout.
// A failing or timed-out check is a result; the error reports only a
// command that could not start or a log file that could not be written.
func (c *CheckRunner) Run(ctx context.Context, name, command string, timeout time.Duration) (CheckResult, error) {
	started := c.now()
	r := *c.runner
	r.Timeout = timeout

	res, err := r.Shell(ctx, command)
	if err != nil {
		return CheckResult{}, fmt.Errorf("check %s: %w", name, err)
	}
	out := CheckResult{
		Name:     name,
		Passed:   res.OK(),
		TimedOut: res.TimedOut,
		ExitCode: res.ExitCode,
		Output:   res.Output,
		Started:  started,
		Duration: res.Duration,
	}
	if res.TimedOut {
		out.Output += fmt.Sprintf("\ncheck %s timed out after %s\n", name, timeout)
	}

	if c.outputDir != "" {
		path, err := c.writeLog(name, started, out.Output)
		if err != nil {
			return CheckResult{}, fmt.Errorf("check %s: %w", name, err)
		}
		out.LogFile = path
	}

	if c.logger.Enabled(ctx, slog.LevelDebug) {
		sc := bufio.NewScanner(strings.NewReader(out.Output))
		for sc.Scan() {
			c.logger.Debug(sc.Text(), "check", name)
		}
	}
	c.logger.Info("check finished",
		"check", name,
		"passed", out.Passed,
		"exit", out.ExitCode,
		"timed_out", out.TimedOut,
		"log", out.LogFile,
	)
	return out, nil
}

// writeLog creates the log file. A second run in the same second gets a
// numeric suffix instead of overwriting the first log.
func (c *CheckRunner) writeLog(name string, started time.Time, output string) (string, error) {
	if err := os.MkdirAll(c.outputDir, 0o755); err != nil {
		return "", fmt.Errorf("create log dir: %w", err)
	}
	base := fmt.Sprintf("%s-%s", name, started.Format("20060102-150405"))
	for i := 1; ; i++ {
		file := base + ".log"
		if i > 1 {
			file = fmt.Sprintf("%s-%d.log", base, i)
		}
		path := filepath.Join(c.outputDir, file)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("create log file: %w", err)
		}
		if _, err := f.WriteString(output); err != nil {
			f.Close()
			return "", fmt.Errorf("write log file: %w", err)
		}
		return path, f.Close()
	}
}
