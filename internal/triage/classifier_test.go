package triage

import (
	"context"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/graft/internal/engine"
	"github.com/roach88/graft/internal/model"
	"github.com/roach88/graft/internal/testutil"
)

func newClassifier(t *testing.T, patterns ...string) *Classifier {
	t.Helper()
	c, err := New(patterns)
	require.NoError(t, err)
	return c
}

func failedAttempt(output string) model.AttemptRecord {
	return model.AttemptRecord{Seq: 1, Outcome: model.OutcomeFailed, ValidateOutput: output}
}

func TestClassify_Timeout(t *testing.T) {
	c := newClassifier(t)
	a := failedAttempt("FAIL file1.go\n")
	a.TimedOut = true

	got := c.Classify(testutil.MakeUnits(3), a)
	assert.True(t, got.Systemic)
	assert.Equal(t, "validation timed out", got.Reason)
	assert.Empty(t, got.Suspects)
}

func TestClassify_DefaultPatterns(t *testing.T) {
	outputs := []string{
		"write /tmp/x: No space left on device",
		"read tcp 10.0.0.1:443: connection reset by peer",
		"fatal: unable to access: Temporary failure in name resolution",
		"cc1plus: out of memory allocating 65536 bytes",
		"Killed by the OOM killer",
	}
	c := newClassifier(t)
	for _, out := range outputs {
		t.Run(out, func(t *testing.T) {
			got := c.Classify(testutil.MakeUnits(2), failedAttempt(out))
			assert.True(t, got.Systemic)
			assert.Contains(t, got.Reason, "systemic pattern")
		})
	}
}

func TestClassify_CustomPatternsReplaceDefaults(t *testing.T) {
	c := newClassifier(t, `runner lost`)

	got := c.Classify(testutil.MakeUnits(2), failedAttempt("error: runner lost contact\n"))
	assert.True(t, got.Systemic)
	assert.Contains(t, got.Reason, "runner lost")

	got = c.Classify(testutil.MakeUnits(2), failedAttempt("No space left on device\n"))
	assert.False(t, got.Systemic)
}

func TestNew_BadPattern(t *testing.T) {
	_, err := New([]string{"("})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `systemic pattern "("`)
}

func TestClassify_Suspects(t *testing.T) {
	c := newClassifier(t)
	units := testutil.MakeUnits(12)

	got := c.Classify(units, failedAttempt("--- FAIL: TestX (0.00s)\n    ./pkg/file1.go:12: boom\nFAIL file10.go\n"))
	assert.False(t, got.Systemic)
	assert.Equal(t, []string{"u1", "u10"}, got.Suspects)
}

func TestClassify_NoSignal(t *testing.T) {
	c := newClassifier(t)
	got := c.Classify(testutil.MakeUnits(3), failedAttempt("exit status 1\n"))
	assert.Equal(t, engine.Classification{}, got)
}

func TestClassify_SuspectsFromPatchContent(t *testing.T) {
	patch := "From: Ada <ada@example.com>\nSubject: [PATCH] widget\n\n---\n" +
		"diff --git a/widget/widget.go b/widget/widget.go\n" +
		"--- a/widget/widget.go\n" +
		"+++ b/widget/widget.go\n" +
		"@@ -1 +1 @@\n" +
		"-old\n" +
		"+new\n"
	units := []model.Unit{
		{ID: "a", Content: patch},
		{ID: "b", Content: "not a patch"},
	}
	c := newClassifier(t)

	got := c.Classify(units, failedAttempt("widget/widget.go:3:1: undefined: Frob\n"))
	assert.Equal(t, []string{"a"}, got.Suspects)
}

func TestContainsPath(t *testing.T) {
	tests := []struct {
		s, path string
		want    bool
	}{
		{"FAIL file1.go", "file1.go", true},
		{"FAIL file10.go", "file1.go", false},
		{"FAIL myfile1.go", "file1.go", false},
		{"./pkg/file1.go:12:", "pkg/file1.go", true},
		{"file1.go.orig file1.go", "file1.go", true},
		{"file1.go.orig", "file1.go", false},
		{"", "file1.go", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, containsPath(tt.s, tt.path), "%q in %q", tt.path, tt.s)
	}
}

func newClassifiedEngine(t *testing.T, units []model.Unit, target engine.Target, c *Classifier) *engine.Engine {
	t.Helper()
	e, err := engine.New(units, target,
		engine.WithClock(testutil.NewFakeClock(testutil.Epoch, time.Second)),
		engine.WithRunIDGenerator(engine.NewFixedGenerator("run-1")),
		engine.WithClassifier(c),
	)
	require.NoError(t, err)
	return e
}

func TestClassifier_DrivesRetrySpecific(t *testing.T) {
	units := testutil.MakeUnits(12)
	sim := testutil.NewSimTarget()
	sim.Breakers["u5"] = true

	e := newClassifiedEngine(t, units, sim, newClassifier(t))
	require.NoError(t, e.Run(context.Background()))

	st := e.State()
	require.Len(t, st.Attempts, 3)
	assert.Equal(t, model.OriginBatch, st.Attempts[0].Origin)
	assert.Equal(t, model.OriginRetrySpecific, st.Attempts[1].Origin)
	assert.Equal(t, model.OutcomePassed, st.Attempts[1].Outcome)
	assert.Equal(t, []string{"u5"}, st.Attempts[2].UnitIDs)
	assert.Equal(t, []string{"u5"}, st.KnownBad.Sorted())
	assert.Len(t, st.Integrated, 11)
	assert.Equal(t, 3, sim.Validations())
}

func TestClassifier_TimeoutDrivesRetryAll(t *testing.T) {
	units := testutil.MakeUnits(4)
	sim := testutil.NewSimTarget()
	sim.Timeouts = 1

	e := newClassifiedEngine(t, units, sim, newClassifier(t))
	require.NoError(t, e.Run(context.Background()))

	st := e.State()
	require.Len(t, st.Attempts, 2)
	assert.True(t, st.Attempts[0].TimedOut)
	assert.Equal(t, model.OriginRetryAll, st.Attempts[1].Origin)
	assert.Equal(t, model.OutcomePassed, st.Attempts[1].Outcome)
	assert.Empty(t, st.KnownBad)
}

func TestClassify_TimeoutNotSystemic(t *testing.T) {
	c, err := New(nil, WithTimeoutSystemic(false))
	require.NoError(t, err)
	units := testutil.MakeUnits(12)

	a := failedAttempt("FAIL file1.go\ncheck test timed out after 1m0s\n")
	a.TimedOut = true

	got := c.Classify(units, a)
	assert.False(t, got.Systemic)
	assert.Equal(t, []string{"u1"}, got.Suspects)

	a.ValidateOutput = "No space left on device\n"
	assert.True(t, c.Classify(units, a).Systemic, "patterns still apply")
}

// hangTarget times out every validation while its unit is in the tree.
type hangTarget struct {
	*testutil.SimTarget
	hang string
}

func (h *hangTarget) Validate(ctx context.Context) (engine.ValidateResult, error) {
	if slices.Contains(h.Tree(), h.hang) {
		return engine.ValidateResult{TimedOut: true, Output: "check test timed out after 1m0s\n"}, nil
	}
	return h.SimTarget.Validate(ctx)
}

func TestClassifier_HangingUnit(t *testing.T) {
	units := testutil.MakeUnits(6)

	t.Run("timeouts systemic", func(t *testing.T) {
		target := &hangTarget{SimTarget: testutil.NewSimTarget(), hang: "u2"}
		e := newClassifiedEngine(t, units, target, newClassifier(t))

		err := e.Run(context.Background())
		require.Error(t, err)
		assert.True(t, engine.IsMaxRetries(err))
		assert.Empty(t, e.State().KnownBad)
	})

	t.Run("timeouts bisected", func(t *testing.T) {
		c, err := New(nil, WithTimeoutSystemic(false))
		require.NoError(t, err)
		target := &hangTarget{SimTarget: testutil.NewSimTarget(), hang: "u2"}
		e := newClassifiedEngine(t, units, target, c)

		require.NoError(t, e.Run(context.Background()))
		st := e.State()
		assert.True(t, st.Done)
		assert.Equal(t, []string{"u2"}, st.KnownBad.Sorted())
		assert.Len(t, st.Integrated, 5)
		assert.Equal(t, model.OriginBisect, st.Attempts[1].Origin)
	})
}
