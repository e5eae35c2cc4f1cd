package harness

import (
	"fmt"
	"slices"
	"strings"
)

// AssertionError is returned when an assertion fails.
// It includes the trace to help debug the failure.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, ev := range e.Trace {
		fmt.Fprintf(&buf, "  [%d] %s %s %v", ev.Seq, ev.Origin, ev.Outcome, ev.Units)
		if ev.FailedUnit != "" {
			fmt.Fprintf(&buf, " failed=%s", ev.FailedUnit)
		}
		if ev.TimedOut {
			buf.WriteString(" timed_out")
		}
		buf.WriteByte('\n')
	}
	return buf.String()
}

func describeFilter(a Assertion) string {
	var parts []string
	if a.Origin != "" {
		parts = append(parts, "origin="+a.Origin)
	}
	if a.Outcome != "" {
		parts = append(parts, "outcome="+a.Outcome)
	}
	if len(a.Units) > 0 {
		parts = append(parts, fmt.Sprintf("units=%v", a.Units))
	}
	if len(parts) == 0 {
		return "any attempt"
	}
	return strings.Join(parts, " ")
}

func assertTraceContains(trace []TraceEvent, a Assertion) error {
	for _, ev := range trace {
		if matches(ev, a) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: "an attempt with " + describeFilter(a),
		Actual:   "no matching attempt",
		Trace:    trace,
	}
}

// assertTraceOrder checks that attempts with the given origins occur in
// order. Other attempts may come in between.
func assertTraceOrder(trace []TraceEvent, a Assertion) error {
	next := 0
	for _, ev := range trace {
		if next < len(a.Origins) && ev.Origin == a.Origins[next] {
			next++
		}
	}
	if next == len(a.Origins) {
		return nil
	}
	return &AssertionError{
		Type:     AssertTraceOrder,
		Expected: fmt.Sprintf("origins in order %v", a.Origins),
		Actual:   fmt.Sprintf("matched %d of %d, stuck at %q", next, len(a.Origins), a.Origins[next]),
		Trace:    trace,
	}
}

func assertTraceCount(trace []TraceEvent, a Assertion) error {
	n := 0
	for _, ev := range trace {
		if matches(ev, a) {
			n++
		}
	}
	if n == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertTraceCount,
		Expected: fmt.Sprintf("%d attempts with %s", a.Count, describeFilter(a)),
		Actual:   fmt.Sprintf("%d attempts", n),
		Trace:    trace,
	}
}

func assertFinalState(result *Result, a Assertion) error {
	want := a.Expect
	got := result.Final
	var diffs []string

	checkList := func(field string, want, got []string) {
		if want == nil {
			return
		}
		if !slices.Equal(want, got) {
			diffs = append(diffs, fmt.Sprintf("%s=%v (want %v)", field, got, want))
		}
	}
	checkList("integrated", sortedCopy(want.Integrated), got.Integrated)
	checkList("known_bad", sortedCopy(want.KnownBad), got.KnownBad)
	checkList("held", sortedCopy(want.Held), got.Held)
	checkList("committed", want.Committed, got.Committed)

	if want.Frontier != nil && *want.Frontier != got.Frontier {
		diffs = append(diffs, fmt.Sprintf("frontier=%d (want %d)", got.Frontier, *want.Frontier))
	}
	if want.Strategy != "" && want.Strategy != got.Strategy {
		diffs = append(diffs, fmt.Sprintf("strategy=%s (want %s)", got.Strategy, want.Strategy))
	}
	if want.Done != nil && *want.Done != got.Done {
		diffs = append(diffs, fmt.Sprintf("done=%t (want %t)", got.Done, *want.Done))
	}
	if want.Aborted != nil && *want.Aborted != got.Aborted {
		diffs = append(diffs, fmt.Sprintf("aborted=%t (want %t)", got.Aborted, *want.Aborted))
	}
	if want.Validations != nil && *want.Validations != got.Validations {
		diffs = append(diffs, fmt.Sprintf("validations=%d (want %d)", got.Validations, *want.Validations))
	}

	if len(diffs) == 0 {
		return nil
	}
	return &AssertionError{
		Type:     AssertFinalState,
		Expected: "final state as listed",
		Actual:   strings.Join(diffs, ", "),
		Trace:    result.Trace,
	}
}

func sortedCopy(ids []string) []string {
	if ids == nil {
		return nil
	}
	out := slices.Clone(ids)
	slices.Sort(out)
	return out
}

// EvaluateAssertions checks all assertions and returns one message per
// failure.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, a)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, a)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, a)
		case AssertFinalState:
			err = assertFinalState(result, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("assertion[%d]: %v", i, err))
		}
	}
	return errs
}
