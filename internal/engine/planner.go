package engine

import (
	"strings"

	"github.com/roach88/graft/internal/model"
)

// Defaults for the planner bounds.
const (
	DefaultMaxRetries      = 3
	DefaultSwitchThreshold = 2
	DefaultBatchSize       = 10
)

// contextLines is how much validation output RetryAll carries forward.
const contextLines = 20

// Classification is a classifier's reading of a validation failure.
type Classification struct {
	// Systemic marks failures unrelated to the units themselves
	// (timeouts, full disks, flaky infrastructure).
	Systemic bool

	// Reason says why the failure was classified as systemic.
	Reason string

	// Suspects are ids of units the failure output points at.
	Suspects []string
}

// Classifier inspects a failed attempt.
type Classifier interface {
	Classify(failed []model.Unit, attempt model.AttemptRecord) Classification
}

// NopClassifier never finds a signal, which leaves bisection as the
// recovery for every multi-unit failure.
type NopClassifier struct{}

// Classify returns the zero Classification.
func (NopClassifier) Classify([]model.Unit, model.AttemptRecord) Classification {
	return Classification{}
}

// Planner chooses a recovery after a multi-unit validation failure.
//
// Decide is pure: it reads the state and returns a Decision. The checks run
// in a fixed order: abort, switch-strategy, retry-all, retry-specific, and
// bisect when nothing else applies.
type Planner struct {
	// MaxRetries bounds failures of one identical unit set. The set aborts
	// the run on failure number MaxRetries+1.
	MaxRetries int

	// SwitchThreshold is the number of consecutive failed batches under one
	// strategy that triggers a switch. Zero disables switching.
	SwitchThreshold int

	// BatchSize is used when switching from optimistic to fixed-batch.
	BatchSize int
}

// DefaultPlanner returns a planner with the default bounds.
func DefaultPlanner() Planner {
	return Planner{
		MaxRetries:      DefaultMaxRetries,
		SwitchThreshold: DefaultSwitchThreshold,
		BatchSize:       DefaultBatchSize,
	}
}

// Decide picks the recovery for last, which must be an applied_and_failed
// attempt already appended to st.Attempts.
func (p Planner) Decide(st *State, last model.AttemptRecord, c Classification) Decision {
	indices := st.IndicesOf(last.UnitIDs)

	if failures := sameSetFailures(st, last); failures > p.MaxRetries {
		return Abort{Failures: failures, Output: last.ValidateOutput}
	}

	if p.SwitchThreshold > 0 {
		if cur, err := StrategyFromData(st.StrategyData); err == nil {
			if consecutiveBatchFailures(st, cur.Name()) >= p.SwitchThreshold {
				if next, ok := MoreConservative(cur, p.BatchSize); ok {
					return SwitchStrategy{From: cur, To: next}
				}
			}
		}
	}

	if c.Systemic {
		return RetryAll{
			Reason:  c.Reason,
			Context: failureContext(c.Reason, last.ValidateOutput),
			Retry:   indices,
		}
	}

	if suspects, ok := freshSuspects(st, last, c.Suspects); ok && len(suspects) < len(indices) {
		held := NewIDSet(suspects...)
		var retry, hold []int
		for _, i := range indices {
			if held.Has(st.Units[i].ID) {
				hold = append(hold, i)
			} else {
				retry = append(retry, i)
			}
		}
		return RetrySpecific{Suspects: hold, Retry: retry}
	}

	return Bisect{Start: indices[0], End: indices[len(indices)-1] + 1}
}

// sameSetFailures counts failed attempts over exactly last's unit set.
func sameSetFailures(st *State, last model.AttemptRecord) int {
	n := 0
	for _, a := range st.Attempts {
		if a.Outcome == model.OutcomeFailed && a.SameUnits(last) {
			n++
		}
	}
	return n
}

// consecutiveBatchFailures walks back from the newest attempt counting
// failed strategy-picked batches. Bisect and retry attempts and apply
// failures are skipped. A passing batch or an attempt made under another
// strategy ends the run of failures.
func consecutiveBatchFailures(st *State, strategy string) int {
	n := 0
	for i := len(st.Attempts) - 1; i >= 0; i-- {
		a := st.Attempts[i]
		if a.Strategy != strategy {
			break
		}
		if a.Origin != model.OriginBatch || a.Outcome == model.OutcomeApplyFailed {
			continue
		}
		if a.Passed() {
			break
		}
		n++
	}
	return n
}

// freshSuspects filters suspects to ids inside last. It fails when there
// are none or when any of them was already held once.
func freshSuspects(st *State, last model.AttemptRecord, suspects []string) ([]string, bool) {
	inSet := NewIDSet(last.UnitIDs...)
	var out []string
	seen := NewIDSet()
	for _, id := range suspects {
		if !inSet.Has(id) || seen.Has(id) {
			continue
		}
		if st.Suspected.Has(id) {
			return nil, false
		}
		seen.Add(id)
		out = append(out, id)
	}
	return out, len(out) > 0
}

func failureContext(reason, output string) string {
	tail := tailLines(output, contextLines)
	if reason == "" {
		return tail
	}
	if tail == "" {
		return reason
	}
	return reason + "\n" + tail
}

// tailLines returns at most the last n lines of s.
func tailLines(s string, n int) string {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return ""
	}
	lines := strings.Split(s, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
