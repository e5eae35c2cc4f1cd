package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlanBisect_MidpointWithoutExclusions(t *testing.T) {
	tests := []struct {
		start, end int
		wantMid    int
	}{
		{0, 8, 4},
		{4, 8, 6},
		{4, 6, 5},
		{0, 3, 1},
		{3, 8, 5},
	}
	st := NewState("run", makeUnits(8))
	for _, tt := range tests {
		plan := planBisect(st, BisectRange{Start: tt.start, End: tt.end})
		assert.Equal(t, -1, plan.isolated)
		assert.Equal(t, tt.wantMid, plan.mid, "[%d,%d)", tt.start, tt.end)
		assert.Equal(t, (tt.start+tt.end)/2, plan.mid)
		assert.Len(t, plan.candidates, tt.wantMid-tt.start)
	}
}

func TestPlanBisect_SkipsExcludedUnits(t *testing.T) {
	st := NewState("run", makeUnits(6))
	st.KnownBad.Add("u1")
	st.Integrated.Add("u2")

	// eligible: 0, 3, 4, 5
	plan := planBisect(st, BisectRange{Start: 0, End: 6})
	assert.Equal(t, 4, plan.mid)
	assert.Equal(t, []int{0, 3}, plan.candidates)
}

func TestPlanBisect_SingleUnitIsIsolated(t *testing.T) {
	st := NewState("run", makeUnits(4))
	st.Integrated.Add("u1")

	plan := planBisect(st, BisectRange{Start: 1, End: 3})
	assert.Equal(t, 2, plan.isolated)
	assert.Empty(t, plan.candidates)
}

func TestPlanBisect_EmptyWindow(t *testing.T) {
	st := NewState("run", makeUnits(2))
	st.KnownBad.Add("u0")
	st.KnownBad.Add("u1")

	plan := planBisect(st, BisectRange{Start: 0, End: 2})
	assert.Equal(t, -1, plan.isolated)
	assert.Empty(t, plan.candidates)
}

func TestBisectRange_Narrow(t *testing.T) {
	r := BisectRange{Start: 0, End: 8, Mid: 4}
	assert.Equal(t, BisectRange{Start: 4, End: 8}, r.narrow(true))
	assert.Equal(t, BisectRange{Start: 0, End: 4}, r.narrow(false))
}
