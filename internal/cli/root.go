package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/roach88/graft/internal/model"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose   bool
	Format    string // "json" | "text"
	LogFormat string // "json" | "text"

	// LogWriter receives log records. Defaults to the command's stderr.
	LogWriter io.Writer
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the graft CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "graft",
		Short: "graft - incremental integration engine",
		Long: `Integrate an ordered sequence of changes into a target branch,
validating batches of them and isolating the ones that break the build.`,
		Version:       model.EngineVersion,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			if !isValidFormat(opts.LogFormat) {
				return fmt.Errorf("invalid log format %q: must be one of %v", opts.LogFormat, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.LogFormat, "log-format", "text", "log format on stderr (json|text)")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewAttemptsCommand(opts))
	cmd.AddCommand(NewResetCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewUnitsCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

// formatter builds the output formatter for cmd. Colors are used only for
// text written to a terminal stdout, and never when NO_COLOR is set
// (color.NoColor covers both).
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	out := cmd.OutOrStdout()
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    out,
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
		Color:     o.Format == "text" && out == os.Stdout && !color.NoColor,
	}
}

// logger builds the slog logger for a command. --verbose wins over the
// configured level.
func (o *RootOptions) logger(cmd *cobra.Command, level string) *slog.Logger {
	w := o.LogWriter
	if w == nil {
		w = cmd.ErrOrStderr()
	}
	lvl := parseLevel(level)
	if o.Verbose {
		lvl = slog.LevelDebug
	}
	hopts := &slog.HandlerOptions{Level: lvl}
	if o.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, hopts))
	}
	return slog.New(slog.NewTextHandler(w, hopts))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
