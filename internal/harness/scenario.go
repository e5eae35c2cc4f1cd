package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/roach88/graft/internal/engine"
	"github.com/roach88/graft/internal/model"
)

// Scenario defines one engine run and what must hold afterwards.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Units is the number of generated units.
	Units int `yaml:"units"`

	Strategy StrategySettings `yaml:"strategy,omitempty"`

	// Classifier is "none" (the default) or "triage".
	Classifier string `yaml:"classifier,omitempty"`

	// SystemicPatterns replace the triage defaults when set.
	SystemicPatterns []string `yaml:"systemic_patterns,omitempty"`

	Target TargetSettings `yaml:"target,omitempty"`

	// Assertions validate the final trace and state.
	Assertions []Assertion `yaml:"assertions"`

	// RunID fixes the run id. Defaults to "scenario-<name>".
	RunID string `yaml:"run_id,omitempty"`
}

// StrategySettings configure the initial strategy and the planner bounds.
// Unset fields take the engine defaults.
type StrategySettings struct {
	Initial         string `yaml:"initial,omitempty"`
	BatchSize       int    `yaml:"batch_size,omitempty"`
	MaxRetries      *int   `yaml:"max_retries,omitempty"`
	SwitchThreshold *int   `yaml:"switch_threshold,omitempty"`
}

// TargetSettings configure the simulated target.
type TargetSettings struct {
	ApplyFails    []string   `yaml:"apply_fails,omitempty"`
	Breakers      []string   `yaml:"breakers,omitempty"`
	Conflicts     [][]string `yaml:"conflicts,omitempty"`
	Timeouts      int        `yaml:"timeouts,omitempty"`
	Flaky         int        `yaml:"flaky,omitempty"`
	FlakyOutput   string     `yaml:"flaky_output,omitempty"`
	CommitPerUnit bool       `yaml:"commit_per_unit,omitempty"`
}

// Assertion validates the trace or the final state.
type Assertion struct {
	// Type is one of trace_contains, trace_order, trace_count and
	// final_state.
	Type string `yaml:"type"`

	// Origin, Outcome and Units filter attempts (trace_contains,
	// trace_count). Empty fields match anything.
	Origin  string   `yaml:"origin,omitempty"`
	Outcome string   `yaml:"outcome,omitempty"`
	Units   []string `yaml:"units,omitempty"`

	// Count is the expected number of matching attempts (trace_count).
	Count int `yaml:"count,omitempty"`

	// Origins is the expected origin order (trace_order).
	Origins []string `yaml:"origins,omitempty"`

	// Expect holds the expected final state (final_state).
	Expect *StateExpect `yaml:"expect,omitempty"`
}

// StateExpect lists final state fields to check. Unset fields are not
// checked.
type StateExpect struct {
	Frontier    *int     `yaml:"frontier,omitempty"`
	Integrated  []string `yaml:"integrated,omitempty"`
	KnownBad    []string `yaml:"known_bad,omitempty"`
	Held        []string `yaml:"held,omitempty"`
	Committed   []string `yaml:"committed,omitempty"`
	Strategy    string   `yaml:"strategy,omitempty"`
	Done        *bool    `yaml:"done,omitempty"`
	Aborted     *bool    `yaml:"aborted,omitempty"`
	Validations *int     `yaml:"validations,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
)

// Classifier names.
const (
	ClassifierNone   = "none"
	ClassifierTriage = "triage"
)

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields are rejected so typos fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// LoadScenarios loads every *.yaml file in dir, in lexical order.
// Scenario names must be unique.
func LoadScenarios(dir string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no scenarios in %s", dir)
	}
	slices.Sort(paths)

	seen := map[string]string{}
	out := make([]*Scenario, 0, len(paths))
	for _, p := range paths {
		s, err := LoadScenario(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(p), err)
		}
		if prev, ok := seen[s.Name]; ok {
			return nil, fmt.Errorf("%s: scenario name %q already used by %s", filepath.Base(p), s.Name, prev)
		}
		seen[s.Name] = filepath.Base(p)
		out = append(out, s)
	}
	return out, nil
}

var (
	validOrigins = []string{
		string(model.OriginBatch),
		string(model.OriginBisect),
		string(model.OriginRetryAll),
		string(model.OriginRetrySpecific),
	}
	validStrategies = []string{
		engine.StrategyOptimistic,
		engine.StrategyFixedBatch,
		engine.StrategyPerUnit,
	}
)

// validateScenario checks that required fields are present and that every
// referenced unit exists.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Units < 0 {
		return fmt.Errorf("units must be non-negative")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	switch s.Classifier {
	case "", ClassifierNone, ClassifierTriage:
	default:
		return fmt.Errorf("unknown classifier %q", s.Classifier)
	}
	if s.Strategy.Initial != "" && !slices.Contains(validStrategies, s.Strategy.Initial) {
		return fmt.Errorf("strategy.initial: unknown strategy %q", s.Strategy.Initial)
	}
	if s.Strategy.BatchSize < 0 {
		return fmt.Errorf("strategy.batch_size must be non-negative")
	}

	ids := make(map[string]bool, s.Units)
	for i := 0; i < s.Units; i++ {
		ids[fmt.Sprintf("u%d", i)] = true
	}
	checkIDs := func(field string, list []string) error {
		for _, id := range list {
			if !ids[id] {
				return fmt.Errorf("%s: unknown unit %q", field, id)
			}
		}
		return nil
	}

	if err := checkIDs("target.apply_fails", s.Target.ApplyFails); err != nil {
		return err
	}
	if err := checkIDs("target.breakers", s.Target.Breakers); err != nil {
		return err
	}
	for i, group := range s.Target.Conflicts {
		if len(group) < 2 {
			return fmt.Errorf("target.conflicts[%d]: a conflict needs at least two units", i)
		}
		if err := checkIDs(fmt.Sprintf("target.conflicts[%d]", i), group); err != nil {
			return err
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i], checkIDs); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, checkIDs func(string, []string) error) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}
	if a.Origin != "" && !slices.Contains(validOrigins, a.Origin) {
		return fmt.Errorf("assertions[%d]: unknown origin %q", index, a.Origin)
	}
	if a.Outcome != "" && !model.ValidOutcomes[model.Outcome(a.Outcome)] {
		return fmt.Errorf("assertions[%d]: unknown outcome %q", index, a.Outcome)
	}
	if err := checkIDs(fmt.Sprintf("assertions[%d].units", index), a.Units); err != nil {
		return err
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Origin == "" && a.Outcome == "" && len(a.Units) == 0 {
			return fmt.Errorf("assertions[%d]: trace_contains needs origin, outcome or units", index)
		}
	case AssertTraceOrder:
		if len(a.Origins) == 0 {
			return fmt.Errorf("assertions[%d]: origins list is required for trace_order", index)
		}
		for _, o := range a.Origins {
			if !slices.Contains(validOrigins, o) {
				return fmt.Errorf("assertions[%d]: unknown origin %q", index, o)
			}
		}
	case AssertTraceCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if a.Expect == nil {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
