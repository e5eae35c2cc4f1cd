package harness

import (
	"github.com/roach88/graft/internal/engine"
	"github.com/roach88/graft/internal/model"
)

// TraceEvent is one attempt as it appears in traces.
type TraceEvent struct {
	Seq        int64    `json:"seq"`
	Units      []string `json:"units"`
	Origin     string   `json:"origin"`
	Strategy   string   `json:"strategy"`
	Outcome    string   `json:"outcome"`
	FailedUnit string   `json:"failed_unit,omitempty"`
	TimedOut   bool     `json:"timed_out,omitempty"`
}

func traceEvent(a model.AttemptRecord) TraceEvent {
	return TraceEvent{
		Seq:        a.Seq,
		Units:      append([]string(nil), a.UnitIDs...),
		Origin:     string(a.Origin),
		Strategy:   a.Strategy,
		Outcome:    string(a.Outcome),
		FailedUnit: a.FailedUnitID,
		TimedOut:   a.TimedOut,
	}
}

// FinalState is the run state after the scenario finished.
type FinalState struct {
	Frontier    int      `json:"frontier"`
	Integrated  []string `json:"integrated"`
	KnownBad    []string `json:"known_bad"`
	Held        []string `json:"held"`
	Suspected   []string `json:"suspected"`
	Strategy    string   `json:"strategy"`
	Done        bool     `json:"done"`
	Aborted     bool     `json:"aborted"`
	Committed   []string `json:"committed"`
	Validations int      `json:"validations"`
}

func finalState(st *engine.State, committed []string, validations int) FinalState {
	return FinalState{
		Frontier:    st.Frontier,
		Integrated:  st.Integrated.Sorted(),
		KnownBad:    st.KnownBad.Sorted(),
		Held:        st.Held.Sorted(),
		Suspected:   st.Suspected.Sorted(),
		Strategy:    engine.StrategyName(st.StrategyData),
		Done:        st.Done,
		Aborted:     st.Aborted,
		Committed:   committed,
		Validations: validations,
	}
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every assertion held.
	Pass bool `json:"pass"`

	// Trace holds the attempts in sequence order.
	Trace []TraceEvent `json:"trace"`

	Final FinalState `json:"final"`

	// RunError is the engine's error for an aborted run.
	RunError string `json:"run_error,omitempty"`

	// Errors are the failed assertions. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
