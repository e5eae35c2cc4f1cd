package engine

import "fmt"

// Decision is the planner's answer to a validation failure.
// Only the types in this file implement it.
type Decision interface {
	decision()
	String() string
}

// Abort stops the run. It is the only decision without a next candidate set.
type Abort struct {
	Failures int
	Output   string
}

// SwitchStrategy replaces the active strategy with a more conservative one.
// The frontier stays where it is.
type SwitchStrategy struct {
	From Strategy
	To   Strategy
}

// RetryAll retries the same units from scratch.
type RetryAll struct {
	Reason  string
	Context string
	Retry   []int
}

// RetrySpecific holds the suspects and retries only the remaining units.
type RetrySpecific struct {
	Suspects []int
	Retry    []int
}

// Bisect starts a bisection over the failing window [Start, End).
type Bisect struct {
	Start int
	End   int
}

func (Abort) decision()          {}
func (SwitchStrategy) decision() {}
func (RetryAll) decision()       {}
func (RetrySpecific) decision()  {}
func (Bisect) decision()         {}

func (d Abort) String() string {
	return fmt.Sprintf("abort(failures=%d)", d.Failures)
}

func (d SwitchStrategy) String() string {
	return fmt.Sprintf("switch-strategy(%s -> %s)", describeStrategy(d.From), describeStrategy(d.To))
}

func (d RetryAll) String() string {
	return fmt.Sprintf("retry-all(%s)", d.Reason)
}

func (d RetrySpecific) String() string {
	return fmt.Sprintf("retry-specific(hold=%d, retry=%d)", len(d.Suspects), len(d.Retry))
}

func (d Bisect) String() string {
	return fmt.Sprintf("bisect[%d,%d)", d.Start, d.End)
}
