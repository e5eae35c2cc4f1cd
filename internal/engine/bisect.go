package engine

// bisectPlan is the next move for a bisection window.
type bisectPlan struct {
	// isolated is the index of the unit found responsible, or -1.
	isolated int

	// mid and candidates describe the lower half to try next.
	mid        int
	candidates []int
}

// planBisect decides the next bisection move for window r.
//
// The window is measured in eligible units: known-bad, integrated and held
// units inside it are skipped. With k eligible units the lower k/2 are tried
// first, so on a window without exclusions mid is (start+end)/2. A window
// with one eligible unit isolates that unit without another validation.
// A window with no eligible units is exhausted.
func planBisect(st *State, r BisectRange) bisectPlan {
	eligible := st.EligibleIn(r.Start, r.End)
	switch len(eligible) {
	case 0:
		return bisectPlan{isolated: -1}
	case 1:
		return bisectPlan{isolated: eligible[0]}
	}
	half := len(eligible) / 2
	return bisectPlan{
		isolated:   -1,
		mid:        eligible[half],
		candidates: eligible[:half],
	}
}

// narrow returns the window left after the lower half [Start, Mid) was tried.
// A passing lower half puts the fault in [Mid, End).
func (r BisectRange) narrow(lowerPassed bool) BisectRange {
	if lowerPassed {
		return BisectRange{Start: r.Mid, End: r.End}
	}
	return BisectRange{Start: r.Start, End: r.Mid}
}
