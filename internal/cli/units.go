package cli

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/roach88/graft/internal/model"
)

// UnitsOptions holds flags for the units command.
type UnitsOptions struct {
	*RootOptions
	ConfigOptions
}

// UnitInfo describes one unit in units output.
type UnitInfo struct {
	ID           string   `json:"id"`
	Subject      string   `json:"subject"`
	Author       string   `json:"author,omitempty"`
	SourceFile   string   `json:"source_file,omitempty"`
	ChangedFiles []string `json:"changed_files"`
	LinesAdded   int64    `json:"lines_added"`
	LinesDeleted int64    `json:"lines_deleted"`
}

// NewUnitsCommand creates the units command.
func NewUnitsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &UnitsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "units",
		Short: "List the units the configured source produces",
		Long: `List, in integration order, the units a run over this configuration
would try. Nothing is applied.

Examples:
  graft units -c graft.yaml
  graft units -c graft.yaml --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUnits(opts, cmd)
		},
	}

	addConfigFlags(cmd, &opts.ConfigOptions)

	return cmd
}

func runUnits(opts *UnitsOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	cfg, err := opts.load()
	if err != nil {
		return f.fail(ExitCommandError, ErrCodeConfig, "invalid configuration", err)
	}
	src, err := newSource(cfg, opts.logger(cmd, cfg.LogLevel))
	if err != nil {
		return f.fail(ExitCommandError, ErrCodeConfig, "invalid source", err)
	}
	units, err := src.Units(context.Background())
	if err != nil {
		return f.fail(ExitCommandError, ErrCodeSource, "failed to collect units", err)
	}

	infos := make([]UnitInfo, len(units))
	for i, u := range units {
		infos[i] = unitInfo(u)
	}
	if f.JSON() {
		return f.Success(infos)
	}

	f.Printf("=== Units (%d) ===\n", len(infos))
	if len(infos) == 0 {
		f.Printf("  (no units)\n")
	}
	for i, u := range infos {
		f.Printf("  [%d] %s %s  (%s %s, %d files)\n", i, model.ShortID(u.ID), u.Subject,
			f.paint(color.FgGreen, fmt.Sprintf("+%d", u.LinesAdded)),
			f.paint(color.FgRed, fmt.Sprintf("-%d", u.LinesDeleted)),
			len(u.ChangedFiles))
		if opts.Verbose {
			for _, file := range u.ChangedFiles {
				f.Printf("       %s\n", file)
			}
		}
	}
	return nil
}

func unitInfo(u model.Unit) UnitInfo {
	info := UnitInfo{
		ID:           u.ID,
		Subject:      u.Subject(),
		ChangedFiles: u.ChangedFiles(),
	}
	info.Author, _ = u.Metadata.GetString(model.MetaAuthor)
	info.SourceFile, _ = u.Metadata.GetString(model.MetaSourceFile)
	info.LinesAdded, _ = u.Metadata.GetInt(model.MetaLinesAdded)
	info.LinesDeleted, _ = u.Metadata.GetInt(model.MetaLinesDeleted)
	if info.ChangedFiles == nil {
		info.ChangedFiles = []string{}
	}
	return info
}
