package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/roach88/graft/internal/config"
	"github.com/roach88/graft/internal/engine"
	"github.com/roach88/graft/internal/source"
	"github.com/roach88/graft/internal/store"
	"github.com/roach88/graft/internal/target"
)

// ConfigOptions are the flags of commands that read a configuration file.
type ConfigOptions struct {
	ConfigPath string
	Includes   []string
}

func (c *ConfigOptions) load() (*config.Config, error) {
	return config.Load(c.ConfigPath, c.Includes...)
}

// openStore opens the state database, creating its directory.
func openStore(path string) (*store.Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	return store.Open(path)
}

// openExistingStore opens a database that must already exist. Read-only
// commands use it so a typo does not create an empty database.
func openExistingStore(path string) (*store.Store, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("no state database at %s", path)
		}
		return nil, err
	}
	return store.Open(path)
}

// newTarget builds the git target described by cfg.
func newTarget(cfg *config.Config, logger *slog.Logger) (*target.Git, error) {
	mode, err := target.ParseMode(cfg.Git.Mode)
	if err != nil {
		return nil, err
	}
	name, command := cfg.Check.Selected()
	checks := target.NewCheckRunner(cfg.Git.TargetWorkdir, cfg.Check.OutputDir,
		target.WithCheckLogger(logger))
	return target.NewGit(cfg.Git.TargetWorkdir, mode, checks,
		target.Check{Name: name, Command: command, Timeout: cfg.Check.Timeout.D()},
		target.WithGitLogger(logger))
}

// newSource builds the change source described by cfg.
func newSource(cfg *config.Config, logger *slog.Logger) (engine.ChangeSource, error) {
	switch cfg.Source.Kind {
	case "dir":
		return source.NewDirSource(cfg.Source.PatchDir, logger), nil
	case "git":
		mode, err := target.ParseMode(cfg.Git.Mode)
		if err != nil {
			return nil, err
		}
		return source.NewGitSource(cfg.Git.TargetWorkdir, cfg.Git.SourceRef, cfg.Git.TargetBranch,
			source.ContentFor(mode), logger), nil
	default:
		return nil, fmt.Errorf("unknown source kind %q", cfg.Source.Kind)
	}
}

// newPlanner maps the strategy section onto the recovery bounds.
func newPlanner(cfg *config.Config) engine.Planner {
	return engine.Planner{
		MaxRetries:      cfg.Strategy.MaxRetries,
		SwitchThreshold: cfg.Strategy.SwitchThreshold,
		BatchSize:       cfg.Strategy.BatchSize,
	}
}
