package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_IsolatesBreakingUnit(t *testing.T) {
	fx := newFixture(t)

	out, _, err := execute(t, "--format", "json", "run", "-c", fx.config)
	require.NoError(t, err)

	resp, data := decodeResponse(t, out)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, true, data["done"])
	assert.Equal(t, float64(3), data["units"])
	assert.Equal(t, float64(2), data["integrated"])
	assert.Equal(t, []any{fx.bad}, data["excluded"])

	assert.Equal(t, "a\n", fx.repo.Read("a.txt"))
	assert.Equal(t, "c\n", fx.repo.Read("c.txt"))
	assert.Empty(t, fx.repo.Read("bad.txt"))
	assert.Equal(t, "main", fx.repo.Git("rev-parse", "--abbrev-ref", "HEAD"))
}

func TestRun_TextSummary(t *testing.T) {
	fx := newFixture(t)

	out, stderr, err := execute(t, "run", "-c", fx.config)
	require.NoError(t, err)
	assert.Contains(t, out, "done: 2/3 integrated, 1 excluded")
	assert.Contains(t, out, "Excluded:    "+fx.bad[:8])
	assert.Contains(t, stderr, "run created", "logs go to stderr")
}

func TestRun_Strict(t *testing.T) {
	fx := newFixture(t)

	out, _, err := execute(t, "run", "-c", fx.config, "--strict")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "done: 2/3 integrated")
	assert.Contains(t, out, "Error [E007]: 1 unit(s) excluded")
}

func TestRun_StepThenResume(t *testing.T) {
	fx := newFixture(t)

	out, _, err := execute(t, "run", "-c", fx.config, "--step", "--run-id", "r1")
	require.NoError(t, err)
	assert.Contains(t, out, "in progress: 0/3 integrated")
	assert.Empty(t, fx.repo.Read("a.txt"), "failed attempt is rolled back")

	out, _, err = execute(t, "--format", "json", "run", "-c", fx.config, "--resume")
	require.NoError(t, err)
	_, data := decodeResponse(t, out)
	assert.Equal(t, "r1", data["run_id"])
	assert.Equal(t, true, data["done"])
	assert.Equal(t, float64(2), data["integrated"])
}

func TestRun_DuplicateRunID(t *testing.T) {
	fx := newFixture(t)

	_, _, err := execute(t, "run", "-c", fx.config, "--step", "--run-id", "r1")
	require.NoError(t, err)

	out, _, err := execute(t, "run", "-c", fx.config, "--run-id", "r1")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "[E003]")
	assert.Contains(t, out, "already exists")
}

func TestRun_ResumeWithoutRun(t *testing.T) {
	fx := newFixture(t)

	out, _, err := execute(t, "run", "-c", fx.config, "--resume")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "[E008]")
}

func TestRun_ConfigErrors(t *testing.T) {
	fx := newFixture(t)

	tests := []struct {
		name string
		args []string
	}{
		{"missing file", []string{"run", "-c", filepath.Join(t.TempDir(), "nope.yaml")}},
		{"unknown strategy", []string{"run", "-c", fx.config, "--strategy", "reckless"}},
		{"zero batch size", []string{"run", "-c", fx.config, "--batch-size", "0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, _, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, out, "[E002]")
		})
	}

	_, err := os.Stat(fx.db)
	assert.True(t, os.IsNotExist(err), "no state is created for a bad configuration")
}

func TestRun_PerUnitStrategy(t *testing.T) {
	fx := newFixture(t)

	out, _, err := execute(t, "--format", "json", "run", "-c", fx.config, "--strategy", "per-unit")
	require.NoError(t, err)
	_, data := decodeResponse(t, out)
	assert.Equal(t, "per-unit", data["strategy"])
	assert.Equal(t, float64(3), data["attempts"])
	assert.Equal(t, float64(2), data["integrated"])
}

func TestRun_AbortShowsCheckOutput(t *testing.T) {
	fx := newFixture(t)
	cfg, err := os.ReadFile(fx.config)
	require.NoError(t, err)
	broken := strings.Replace(string(cfg), `test: "test ! -e bad.txt"`,
		`test: "echo 'write /tmp/build: disk quota exceeded'; exit 1"`, 1)
	broken += "strategy:\n  max_retries: 1\n"
	require.NoError(t, os.WriteFile(fx.config, []byte(broken), 0o644))

	out, _, err := execute(t, "run", "-c", fx.config)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "aborted: 0/3 integrated")
	assert.Contains(t, out, "Error [E006]: run aborted")
	assert.Contains(t, out, "Last validation output:\n  write /tmp/build: disk quota exceeded\n")

	out, _, err = execute(t, "--format", "json", "run", "-c", fx.config, "--run-id", "again")
	require.Error(t, err)
	resp, data := decodeResponse(t, out)
	assert.Equal(t, true, data["aborted"])
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeAborted, resp.Error.Code)
	details, ok := resp.Error.Details.(map[string]any)
	require.True(t, ok)
	assert.Contains(t, details["last_output"], "disk quota exceeded")
}
