package cli

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "graft", cmd.Use)
	assert.Contains(t, cmd.Long, "isolating")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"run", "status", "attempts", "reset", "validate", "units"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	logFormatFlag := cmd.PersistentFlags().Lookup("log-format")
	require.NotNil(t, logFormatFlag)
	assert.Equal(t, "text", logFormatFlag.DefValue)
}

func TestConfigFlags(t *testing.T) {
	for _, name := range []string{"run", "reset", "validate", "units"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := NewRootCommand().Find([]string{name})
			require.NoError(t, err)

			configFlag := sub.Flags().Lookup("config")
			require.NotNil(t, configFlag)
			assert.Equal(t, "c", configFlag.Shorthand)
			assert.Equal(t, "graft.yaml", configFlag.DefValue)
			assert.NotNil(t, sub.Flags().Lookup("include"))
		})
	}
}

func TestDatabaseFlags(t *testing.T) {
	for _, name := range []string{"status", "attempts"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := NewRootCommand().Find([]string{name})
			require.NoError(t, err)

			dbFlag := sub.Flags().Lookup("db")
			require.NotNil(t, dbFlag)
			// --db is required, so default is empty
			assert.Equal(t, "", dbFlag.DefValue)
		})
	}
}

func TestInvalidFormat(t *testing.T) {
	_, _, err := execute(t, "--format", "yaml", "validate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid format "yaml"`)

	_, _, err = execute(t, "--log-format", "xml", "validate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid log format "xml"`)
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"WARN", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseLevel(tt.in), tt.in)
	}
}

func TestLogger(t *testing.T) {
	t.Run("json handler", func(t *testing.T) {
		buf := &bytes.Buffer{}
		opts := &RootOptions{LogFormat: "json", LogWriter: buf}
		opts.logger(NewRootCommand(), "info").Info("hello", "units", 3)

		var rec map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
		assert.Equal(t, "hello", rec["msg"])
		assert.Equal(t, float64(3), rec["units"])
	})

	t.Run("level from config", func(t *testing.T) {
		buf := &bytes.Buffer{}
		opts := &RootOptions{LogFormat: "text", LogWriter: buf}
		logger := opts.logger(NewRootCommand(), "warn")
		logger.Info("quiet")
		logger.Warn("loud")
		assert.NotContains(t, buf.String(), "quiet")
		assert.Contains(t, buf.String(), "loud")
	})

	t.Run("verbose wins", func(t *testing.T) {
		buf := &bytes.Buffer{}
		opts := &RootOptions{LogFormat: "text", LogWriter: buf, Verbose: true}
		opts.logger(NewRootCommand(), "error").Debug("detail")
		assert.Contains(t, buf.String(), "detail")
	})
}

func TestFormatterHasNoColorOffTerminal(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	f := (&RootOptions{Format: "text"}).formatter(cmd)
	assert.False(t, f.Color)
}
