package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/graft/internal/model"
)

// TraceSnapshot is what golden files hold: the attempts and the final
// state, without durations or timestamps.
type TraceSnapshot struct {
	ScenarioName string
	Trace        []TraceEvent
	Final        FinalState
}

// toCanonicalMap converts the snapshot to plain values for
// model.MarshalCanonical.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	attempts := make([]any, len(s.Trace))
	for i, ev := range s.Trace {
		m := map[string]any{
			"seq":      ev.Seq,
			"units":    ev.Units,
			"origin":   ev.Origin,
			"strategy": ev.Strategy,
			"outcome":  ev.Outcome,
		}
		if ev.FailedUnit != "" {
			m["failed_unit"] = ev.FailedUnit
		}
		if ev.TimedOut {
			m["timed_out"] = true
		}
		attempts[i] = m
	}

	f := s.Final
	return map[string]any{
		"scenario": s.ScenarioName,
		"attempts": attempts,
		"final": map[string]any{
			"frontier":    f.Frontier,
			"integrated":  f.Integrated,
			"known_bad":   f.KnownBad,
			"held":        f.Held,
			"suspected":   f.Suspected,
			"strategy":    f.Strategy,
			"done":        f.Done,
			"aborted":     f.Aborted,
			"committed":   f.Committed,
			"validations": f.Validations,
		},
	}
}

// MarshalTrace renders the result's trace as canonical JSON.
func MarshalTrace(name string, result *Result) ([]byte, error) {
	snap := TraceSnapshot{ScenarioName: name, Trace: result.Trace, Final: result.Final}
	return model.MarshalCanonical(snap.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares its trace with
// testdata/golden/<name>.golden.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result with its golden file.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	traceJSON, err := MarshalTrace(name, result)
	if err != nil {
		return err
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, traceJSON)
	return nil
}
