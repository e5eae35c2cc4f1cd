package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus(t *testing.T) {
	fx := newFixture(t)
	_, _, err := execute(t, "run", "-c", fx.config, "--run-id", "r1")
	require.NoError(t, err)

	t.Run("json", func(t *testing.T) {
		out, _, err := execute(t, "--format", "json", "status", "--db", fx.db)
		require.NoError(t, err)

		_, data := decodeResponse(t, out)
		run := data["run"].(map[string]any)
		assert.Equal(t, "r1", run["id"])
		assert.Equal(t, fx.base, run["base_ref"])
		assert.Equal(t, float64(3), run["units"])

		summary := data["summary"].(map[string]any)
		assert.Equal(t, true, summary["done"])
		assert.Equal(t, []any{fx.bad}, summary["excluded"])
	})

	t.Run("text", func(t *testing.T) {
		out, _, err := execute(t, "status", "--db", fx.db, "--run", "r1")
		require.NoError(t, err)
		assert.Contains(t, out, "=== Run ===")
		assert.Contains(t, out, "ID:          r1")
		assert.Contains(t, out, "=== Summary ===")
		assert.Contains(t, out, "done: 2/3 integrated")
	})

	t.Run("unknown run", func(t *testing.T) {
		out, _, err := execute(t, "status", "--db", fx.db, "--run", "nope")
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
		assert.Contains(t, out, "[E008]: run not found: nope")
	})
}

func TestStatus_MissingDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.db")

	out, _, err := execute(t, "status", "--db", path)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "[E003]")

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "status must not create a database")
}

func TestStatus_RequiresDB(t *testing.T) {
	_, _, err := execute(t, "status")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `required flag(s) "db" not set`)
}

func TestAttempts(t *testing.T) {
	fx := newFixture(t)
	_, _, err := execute(t, "run", "-c", fx.config)
	require.NoError(t, err)

	t.Run("json", func(t *testing.T) {
		out, _, err := execute(t, "--format", "json", "attempts", "--db", fx.db)
		require.NoError(t, err)

		_, data := decodeResponse(t, out)
		attempts := data["attempts"].([]any)
		require.NotEmpty(t, attempts)

		first := attempts[0].(map[string]any)
		assert.Equal(t, float64(1), first["seq"])
		assert.Equal(t, "batch", first["origin"])
		assert.Equal(t, "applied_and_failed", first["outcome"])
		assert.Len(t, first["unit_ids"], 3)

		stats := data["stats"].(map[string]any)
		assert.Equal(t, float64(len(attempts)), stats["total"])
		assert.Equal(t, stats["total"], stats["passed"].(float64)+stats["failed"].(float64)+stats["apply_failed"].(float64))
	})

	t.Run("outcome filter", func(t *testing.T) {
		out, _, err := execute(t, "--format", "json", "attempts", "--db", fx.db, "--outcome", "applied_and_passed")
		require.NoError(t, err)

		_, data := decodeResponse(t, out)
		attempts := data["attempts"].([]any)
		require.NotEmpty(t, attempts)
		for _, a := range attempts {
			assert.Equal(t, "applied_and_passed", a.(map[string]any)["outcome"])
		}
	})

	t.Run("text", func(t *testing.T) {
		out, _, err := execute(t, "attempts", "--db", fx.db, "-v")
		require.NoError(t, err)
		assert.Contains(t, out, "=== Timeline ===")
		assert.Contains(t, out, "[1] batch")
		assert.Contains(t, out, "applied_and_failed")
		assert.Contains(t, out, "=== Stats ===")
	})

	t.Run("unknown outcome", func(t *testing.T) {
		out, _, err := execute(t, "attempts", "--db", fx.db, "--outcome", "maybe")
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
		assert.Contains(t, out, `unknown outcome "maybe"`)
	})
}

func TestCountAttempts(t *testing.T) {
	stats := countAttempts(nil)
	assert.Equal(t, AttemptStats{}, stats)
}
