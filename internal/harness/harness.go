package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/roach88/graft/internal/engine"
	"github.com/roach88/graft/internal/testutil"
	"github.com/roach88/graft/internal/triage"
)

// Run executes a scenario and evaluates its assertions.
//
// The engine runs with a fake clock, a fixed run id and an in-memory
// persister, so identical scenarios give identical traces. An aborted run
// is a result, not an error; any other engine error is returned.
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a caller-supplied context.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	units := testutil.MakeUnits(scenario.Units)
	sim := newSimTarget(scenario.Target)

	opts, err := engineOptions(scenario)
	if err != nil {
		return nil, err
	}
	eng, err := engine.New(units, sim, opts...)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}

	result := NewResult()
	if err := eng.Run(ctx); err != nil {
		if !engine.IsMaxRetries(err) {
			return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
		}
		result.RunError = err.Error()
	}

	st := eng.State()
	for _, a := range st.Attempts {
		result.Trace = append(result.Trace, traceEvent(a))
	}
	result.Final = finalState(st, sim.Committed(), sim.Validations())

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func newSimTarget(ts TargetSettings) *testutil.SimTarget {
	sim := testutil.NewSimTarget()
	for _, id := range ts.ApplyFails {
		sim.ApplyFails[id] = true
	}
	for _, id := range ts.Breakers {
		sim.Breakers[id] = true
	}
	for _, group := range ts.Conflicts {
		sim.Conflicts = append(sim.Conflicts, append([]string(nil), group...))
	}
	sim.Timeouts = ts.Timeouts
	sim.Flaky = ts.Flaky
	sim.FlakyOutput = ts.FlakyOutput
	if sim.Flaky > 0 && sim.FlakyOutput == "" {
		sim.FlakyOutput = "connection reset by peer\n"
	}
	sim.CommitPerUnit = ts.CommitPerUnit
	return sim
}

func engineOptions(s *Scenario) ([]engine.Option, error) {
	planner := engine.DefaultPlanner()
	if s.Strategy.BatchSize > 0 {
		planner.BatchSize = s.Strategy.BatchSize
	}
	if s.Strategy.MaxRetries != nil {
		planner.MaxRetries = *s.Strategy.MaxRetries
	}
	if s.Strategy.SwitchThreshold != nil {
		planner.SwitchThreshold = *s.Strategy.SwitchThreshold
	}

	initial := s.Strategy.Initial
	if initial == "" {
		initial = engine.StrategyOptimistic
	}
	strategy, err := engine.NewStrategy(initial, planner.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", s.Name, err)
	}

	runID := s.RunID
	if runID == "" {
		runID = "scenario-" + s.Name
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithClock(testutil.NewFakeClock(testutil.Epoch, time.Second)),
		engine.WithPersister(&testutil.MemPersister{}),
		engine.WithRunIDGenerator(engine.NewFixedGenerator(runID)),
		engine.WithStrategy(strategy),
		engine.WithPlanner(planner),
	}

	if s.Classifier == ClassifierTriage {
		c, err := triage.New(s.SystemicPatterns, triage.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("scenario %s: %w", s.Name, err)
		}
		opts = append(opts, engine.WithClassifier(c))
	}
	return opts, nil
}

// matches reports whether e satisfies the origin, outcome and units filters
// of a.
func matches(e TraceEvent, a Assertion) bool {
	if a.Origin != "" && e.Origin != a.Origin {
		return false
	}
	if a.Outcome != "" && e.Outcome != a.Outcome {
		return false
	}
	if len(a.Units) > 0 && !slices.Equal(e.Units, a.Units) {
		return false
	}
	return true
}
