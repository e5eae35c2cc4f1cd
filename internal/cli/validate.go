package cli

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/roach88/graft/internal/config"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	ConfigOptions
}

// ValidationResult is the JSON payload of validate.
type ValidationResult struct {
	Valid  bool           `json:"valid"`
	Check  string         `json:"check"`
	Config *config.Config `json:"config"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Load and validate a configuration",
		Long: `Load a configuration with its includes, environment overrides and
templates applied, and report the first problem found.

Examples:
  graft validate -c graft.yaml
  graft validate -c graft.cue --include local.yaml -v`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, cmd)
		},
	}

	addConfigFlags(cmd, &opts.ConfigOptions)

	return cmd
}

func runValidate(opts *ValidateOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	cfg, err := opts.load()
	if err != nil {
		return f.fail(ExitCommandError, ErrCodeConfig, "invalid configuration", err)
	}
	check, _ := cfg.Check.Selected()

	if f.JSON() {
		return f.Success(ValidationResult{Valid: true, Check: check, Config: cfg})
	}
	f.Printf("%s %s (check %q)\n", f.paint(color.FgGreen, "Configuration OK:"), opts.ConfigPath, check)
	if opts.Verbose {
		f.Printf("\n%s", cfg.String())
	}
	return nil
}
