package engine

import (
	"encoding/json"
	"slices"

	"github.com/roach88/graft/internal/model"
)

// IDSet is a set of unit ids. It marshals as a sorted JSON array.
type IDSet map[string]struct{}

// NewIDSet returns a set holding ids.
func NewIDSet(ids ...string) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Add inserts id.
func (s IDSet) Add(id string) {
	s[id] = struct{}{}
}

// Remove deletes id.
func (s IDSet) Remove(id string) {
	delete(s, id)
}

// Has reports whether id is a member.
func (s IDSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Sorted returns the members in byte order.
func (s IDSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// Clone returns an independent copy.
func (s IDSet) Clone() IDSet {
	out := make(IDSet, len(s))
	for id := range s {
		out[id] = struct{}{}
	}
	return out
}

// MarshalJSON implements json.Marshaler.
func (s IDSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *IDSet) UnmarshalJSON(data []byte) error {
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	*s = NewIDSet(ids...)
	return nil
}

// BisectRange is an in-progress bisection window over unit indices.
// Mid is the first index of the upper half once the lower half is in flight.
type BisectRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
	Mid   int `json:"mid"`
}

// State is everything the engine decides from.
//
// Only the Engine driver mutates a State. Strategy, bisection and planner
// code reads it and returns decisions.
type State struct {
	RunID string       `json:"run_id"`
	Units []model.Unit `json:"units"`

	// Attempts is append-only and ordered by Seq.
	Attempts []model.AttemptRecord `json:"attempts"`

	// Frontier is the index below which every unit is integrated or known bad.
	// It never decreases.
	Frontier int `json:"frontier"`

	KnownBad   IDSet `json:"known_bad"`
	Integrated IDSet `json:"integrated"`

	// Held suspects are neither integrated nor bad. They block the frontier
	// until they are released and tried again.
	Held IDSet `json:"held"`

	// Suspected records every id that was ever held. A unit is held once.
	Suspected IDSet `json:"suspected"`

	Bisect *BisectRange `json:"bisect,omitempty"`

	// Retry is an explicit candidate list from the planner, consumed by the
	// next pick. RetryOrigin says which decision produced it.
	Retry       []int        `json:"retry,omitempty"`
	RetryOrigin model.Origin `json:"retry_origin,omitempty"`

	// StrategyData is scratch space owned by the active strategy.
	// It always carries "strategy" and "batch_size".
	StrategyData model.Object `json:"strategy_data"`

	FailureContext string `json:"failure_context,omitempty"`

	Done    bool `json:"done"`
	Aborted bool `json:"aborted"`

	index map[string]int
}

// NewState creates the state for a fresh run over units.
func NewState(runID string, units []model.Unit) *State {
	return &State{
		RunID:        runID,
		Units:        units,
		KnownBad:     NewIDSet(),
		Integrated:   NewIDSet(),
		Held:         NewIDSet(),
		Suspected:    NewIDSet(),
		StrategyData: model.Object{},
	}
}

// Clone returns a deep copy. Units and attempt records are immutable and
// are shared.
func (s *State) Clone() *State {
	cp := *s
	cp.Attempts = slices.Clone(s.Attempts)
	cp.KnownBad = s.KnownBad.Clone()
	cp.Integrated = s.Integrated.Clone()
	cp.Held = s.Held.Clone()
	cp.Suspected = s.Suspected.Clone()
	cp.Retry = slices.Clone(s.Retry)
	cp.StrategyData = s.StrategyData.Clone()
	if s.Bisect != nil {
		b := *s.Bisect
		cp.Bisect = &b
	}
	return &cp
}

// ensureSets fills nil sets, which a decoded snapshot may leave behind.
func (s *State) ensureSets() {
	if s.KnownBad == nil {
		s.KnownBad = NewIDSet()
	}
	if s.Integrated == nil {
		s.Integrated = NewIDSet()
	}
	if s.Held == nil {
		s.Held = NewIDSet()
	}
	if s.Suspected == nil {
		s.Suspected = NewIDSet()
	}
	if s.StrategyData == nil {
		s.StrategyData = model.Object{}
	}
}

// IndexOf returns the position of a unit id in Units.
func (s *State) IndexOf(id string) (int, bool) {
	if s.index == nil || len(s.index) != len(s.Units) {
		s.index = make(map[string]int, len(s.Units))
		for i, u := range s.Units {
			s.index[u.ID] = i
		}
	}
	i, ok := s.index[id]
	return i, ok
}

// Eligible reports whether unit i may appear in a new candidate set.
func (s *State) Eligible(i int) bool {
	id := s.Units[i].ID
	return !s.KnownBad.Has(id) && !s.Integrated.Has(id) && !s.Held.Has(id)
}

// EligibleIn returns the eligible indices of [start, end) in order.
func (s *State) EligibleIn(start, end int) []int {
	end = min(end, len(s.Units))
	var out []int
	for i := max(start, 0); i < end; i++ {
		if s.Eligible(i) {
			out = append(out, i)
		}
	}
	return out
}

// UnitsAt returns the units at the given indices.
func (s *State) UnitsAt(indices []int) []model.Unit {
	out := make([]model.Unit, len(indices))
	for i, idx := range indices {
		out[i] = s.Units[idx]
	}
	return out
}

// IDsAt returns the unit ids at the given indices.
func (s *State) IDsAt(indices []int) []string {
	out := make([]string, len(indices))
	for i, idx := range indices {
		out[i] = s.Units[idx].ID
	}
	return out
}

// IndicesOf maps ids back to indices, dropping unknown ids.
func (s *State) IndicesOf(ids []string) []int {
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		if i, ok := s.IndexOf(id); ok {
			out = append(out, i)
		}
	}
	return out
}

// normalizeFrontier advances the frontier past leading units that are
// integrated or known bad.
func (s *State) normalizeFrontier() {
	for s.Frontier < len(s.Units) {
		id := s.Units[s.Frontier].ID
		if !s.KnownBad.Has(id) && !s.Integrated.Has(id) {
			return
		}
		s.Frontier++
	}
}

// Complete reports whether every unit is integrated or known bad.
func (s *State) Complete() bool {
	s.normalizeFrontier()
	return s.Frontier >= len(s.Units)
}

// Remaining counts units at or past the frontier that are neither
// integrated nor known bad. It never increases across iterations.
func (s *State) Remaining() int {
	n := 0
	for i := s.Frontier; i < len(s.Units); i++ {
		id := s.Units[i].ID
		if !s.KnownBad.Has(id) && !s.Integrated.Has(id) {
			n++
		}
	}
	return n
}

// LastSeq is the seq of the newest attempt, or 0.
func (s *State) LastSeq() int64 {
	if len(s.Attempts) == 0 {
		return 0
	}
	return s.Attempts[len(s.Attempts)-1].Seq
}

// Validations counts attempts that reached the validate step.
func (s *State) Validations() int {
	n := 0
	for _, a := range s.Attempts {
		if a.Outcome != model.OutcomeApplyFailed {
			n++
		}
	}
	return n
}
