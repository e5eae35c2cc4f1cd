package engine

import (
	"fmt"

	"github.com/roach88/graft/internal/model"
)

// Resume rebuilds an engine from a persisted state.
//
// The recorded strategy replaces any WithStrategy option, and the seq clock
// continues after the last recorded attempt. A resumed run follows the same
// code path as a fresh one; nothing is replayed against the target.
func Resume(st *State, target Target, opts ...Option) (*Engine, error) {
	if err := CheckState(st); err != nil {
		return nil, err
	}
	e := newEngine(target, opts)
	strategy, err := StrategyFromData(st.StrategyData)
	if err != nil {
		return nil, err
	}
	e.strategy = strategy
	e.state = st
	e.seq = NewSeqClockAt(st.LastSeq())
	return e, nil
}

// CheckState verifies the structural invariants of a persisted state.
func CheckState(st *State) error {
	if st == nil {
		return NewConfigError("no state to resume")
	}
	st.ensureSets()
	if err := checkUnitIDs(st.Units); err != nil {
		return err
	}
	n := len(st.Units)
	if st.Frontier < 0 || st.Frontier > n {
		return NewConfigError("frontier %d outside [0, %d]", st.Frontier, n)
	}
	if b := st.Bisect; b != nil {
		if b.Start < 0 || b.Start >= b.End || b.End > n {
			return NewConfigError("bisect window [%d,%d) outside [0, %d)", b.Start, b.End, n)
		}
	}
	for _, i := range st.Retry {
		if i < 0 || i >= n {
			return NewConfigError("retry index %d outside [0, %d)", i, n)
		}
	}
	var prev int64
	for _, a := range st.Attempts {
		if a.Seq <= prev {
			return NewConfigError("attempt seq %d is not after %d", a.Seq, prev)
		}
		if !model.ValidOutcomes[a.Outcome] {
			return NewConfigError("attempt %d has unknown outcome %q", a.Seq, a.Outcome)
		}
		prev = a.Seq
	}
	for _, set := range []IDSet{st.KnownBad, st.Integrated, st.Held} {
		for id := range set {
			if _, ok := st.IndexOf(id); !ok {
				return NewConfigError("state references unknown unit %s", model.ShortID(id))
			}
		}
	}
	return nil
}

// checkUnitIDs rejects empty and repeated unit ids. The sets and the
// position index are keyed by id, so a repeat would merge two units.
func checkUnitIDs(units []model.Unit) error {
	seen := make(map[string]int, len(units))
	for i, u := range units {
		if u.ID == "" {
			return NewConfigError("unit %d has no id", i)
		}
		if j, ok := seen[u.ID]; ok {
			return NewConfigError("units %d and %d share id %s", j, i, model.ShortID(u.ID))
		}
		seen[u.ID] = i
	}
	return nil
}

// VerifyUnits checks that a source still yields the units a run started with.
func VerifyUnits(st *State, units []model.Unit) error {
	want, err := model.UnitListHash(st.Units)
	if err != nil {
		return err
	}
	got, err := model.UnitListHash(units)
	if err != nil {
		return err
	}
	if want != got {
		return NewConfigError("run %s was started over a different unit list (%d units recorded, %d now)",
			st.RunID, len(st.Units), len(units))
	}
	return nil
}

// Summary is the user-facing outcome of a run.
type Summary struct {
	RunID       string   `json:"run_id"`
	Units       int      `json:"units"`
	Frontier    int      `json:"frontier"`
	Integrated  int      `json:"integrated"`
	Excluded    []string `json:"excluded"`
	Held        []string `json:"held,omitempty"`
	Attempts    int      `json:"attempts"`
	Validations int      `json:"validations"`
	Strategy    string   `json:"strategy"`
	Done        bool     `json:"done"`
	Aborted     bool     `json:"aborted"`
}

// Summarize reports how far a run got.
func Summarize(st *State) Summary {
	return Summary{
		RunID:       st.RunID,
		Units:       len(st.Units),
		Frontier:    st.Frontier,
		Integrated:  len(st.Integrated),
		Excluded:    st.KnownBad.Sorted(),
		Held:        st.Held.Sorted(),
		Attempts:    len(st.Attempts),
		Validations: st.Validations(),
		Strategy:    StrategyName(st.StrategyData),
		Done:        st.Done,
		Aborted:     st.Aborted,
	}
}

func (s Summary) String() string {
	status := "in progress"
	switch {
	case s.Done:
		status = "done"
	case s.Aborted:
		status = "aborted"
	}
	return fmt.Sprintf("%s: %d/%d integrated, %d excluded, %d attempts (%d validations)",
		status, s.Integrated, s.Units, len(s.Excluded), s.Attempts, s.Validations)
}
