package config

import (
	"fmt"
	"slices"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is a fully loaded graft configuration. Paths are absolute and
// templates are substituted.
type Config struct {
	Git      GitConfig      `yaml:"git" json:"git"`
	Source   SourceConfig   `yaml:"source" json:"source"`
	Check    CheckConfig    `yaml:"check" json:"check"`
	Strategy StrategyConfig `yaml:"strategy" json:"strategy"`
	State    StateConfig    `yaml:"state" json:"state"`
	LogLevel string         `yaml:"log_level" json:"log_level" validate:"oneof=debug info warn error"`
}

// GitConfig names the repository, the refs and how patches are applied.
type GitConfig struct {
	SourceRef     string `yaml:"source_ref" json:"source_ref"`
	TargetWorkdir string `yaml:"target_workdir" json:"target_workdir" validate:"required"`
	TargetBranch  string `yaml:"target_branch" json:"target_branch"`
	Mode          string `yaml:"mode" json:"mode" validate:"oneof=am apply cherry-pick"`
}

// SourceConfig selects where units come from.
type SourceConfig struct {
	Kind     string `yaml:"kind" json:"kind" validate:"oneof=git dir"`
	PatchDir string `yaml:"patch_dir" json:"patch_dir"`
}

// CheckConfig holds the named validation commands.
type CheckConfig struct {
	Commands  map[string]string `yaml:"commands" json:"commands" validate:"required,min=1,dive,keys,required,endkeys,required"`
	Use       string            `yaml:"use" json:"use"`
	OutputDir string            `yaml:"output_dir" json:"output_dir" validate:"required"`
	Timeout   Duration          `yaml:"timeout" json:"timeout" validate:"gt=0"`
}

// Selected returns the check to run: Use when set, otherwise the only
// configured command.
func (c CheckConfig) Selected() (name, command string) {
	if c.Use != "" {
		return c.Use, c.Commands[c.Use]
	}
	if len(c.Commands) == 1 {
		for name, command := range c.Commands {
			return name, command
		}
	}
	return "", ""
}

// Names returns the command names in sorted order.
func (c CheckConfig) Names() []string {
	names := make([]string, 0, len(c.Commands))
	for name := range c.Commands {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// StrategyConfig sets the initial strategy and the recovery bounds.
type StrategyConfig struct {
	Initial          string   `yaml:"initial" json:"initial" validate:"oneof=optimistic fixed-batch per-unit"`
	BatchSize        int      `yaml:"batch_size" json:"batch_size" validate:"min=1"`
	MaxRetries       int      `yaml:"max_retries" json:"max_retries" validate:"min=0"`
	SwitchThreshold  int      `yaml:"switch_threshold" json:"switch_threshold" validate:"min=1"`
	SystemicPatterns []string `yaml:"systemic_patterns" json:"systemic_patterns" validate:"dive,required"`

	// TimeoutSystemic treats a timed-out check as an infrastructure
	// failure to retry. Turn it off when a unit can hang the check.
	TimeoutSystemic bool `yaml:"timeout_systemic" json:"timeout_systemic"`
}

// StateConfig says where run state lives.
type StateConfig struct {
	Dir string `yaml:"dir" json:"dir" validate:"required"`
	DB  string `yaml:"db" json:"db" validate:"required"`
}

// Duration is a time.Duration that decodes from "10m" style strings or
// from a plain integer number of seconds.
type Duration time.Duration

// D returns the value as a time.Duration.
func (d Duration) D() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", node.Line)
	}
	if secs, err := strconv.ParseInt(node.Value, 10, 64); err == nil {
		*d = Duration(time.Duration(secs) * time.Second)
		return nil
	}
	v, err := time.ParseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: invalid duration %q", node.Line, node.Value)
	}
	*d = Duration(v)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

// MarshalText lets JSON output show "1h0m0s" instead of nanoseconds.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}
