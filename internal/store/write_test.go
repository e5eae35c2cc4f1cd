package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/graft/internal/engine"
	"github.com/roach88/graft/internal/model"
	"github.com/roach88/graft/internal/testutil"
)

func manualState(runID string, n int) *engine.State {
	st := engine.NewState(runID, testutil.MakeUnits(n))
	st.StrategyData = model.Object{
		"strategy":   model.String(engine.StrategyFixedBatch),
		"batch_size": model.Int(2),
	}
	return st
}

func attemptRecord(seq int64, outcome model.Outcome, ids ...string) model.AttemptRecord {
	return model.AttemptRecord{
		Seq:              seq,
		UnitIDs:          ids,
		Outcome:          outcome,
		Origin:           model.OriginBatch,
		Strategy:         "fixed-batch(2)",
		DurationApply:    time.Second,
		DurationValidate: 2 * time.Second,
		ValidateOutput:   "ok\n",
		Timestamp:        testutil.Epoch.Add(time.Duration(seq) * time.Minute),
	}
}

func TestSaveSnapshot_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	st := manualState("run-1", 6)
	st.Frontier = 2
	st.Integrated.Add("u0")
	st.KnownBad.Add("u1")
	st.Held.Add("u3")
	st.Suspected.Add("u3")
	st.Bisect = &engine.BisectRange{Start: 2, End: 6, Mid: 4}
	st.Retry = []int{2, 4}
	st.RetryOrigin = model.OriginRetrySpecific
	st.FailureContext = "disk full\nFAIL file2.go"
	a1 := attemptRecord(1, model.OutcomePassed, "u0")
	a2 := attemptRecord(2, model.OutcomeApplyFailed, "u1")
	a2.FailedUnitID = "u1"
	a2.ApplyOutput = "patch does not apply"
	a3 := attemptRecord(3, model.OutcomeFailed, "u2", "u3", "u4")
	a3.TimedOut = true
	a3.ErrorMessage = "validation timed out"
	st.Attempts = []model.AttemptRecord{a1, a2, a3}

	require.NoError(t, s.SaveSnapshot(ctx, engine.Snapshot{State: st, Appended: st.Attempts}))

	got, err := s.LoadState(ctx, "run-1")
	require.NoError(t, err)
	assertSameState(t, st, got)
}

func TestSaveSnapshot_AppendsAttemptsOnce(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	st := manualState("run-1", 3)
	a1 := attemptRecord(1, model.OutcomeFailed, "u0", "u1")
	st.Attempts = append(st.Attempts, a1)
	require.NoError(t, s.SaveSnapshot(ctx, engine.Snapshot{State: st, Appended: []model.AttemptRecord{a1}}))

	// A retried save hands the same attempt over again.
	a2 := attemptRecord(2, model.OutcomePassed, "u0")
	st.Attempts = append(st.Attempts, a2)
	require.NoError(t, s.SaveSnapshot(ctx, engine.Snapshot{State: st, Appended: []model.AttemptRecord{a1, a2}}))

	attempts, err := s.ReadAttempts(ctx, "run-1", "")
	require.NoError(t, err)
	assertSameAttempts(t, []model.AttemptRecord{a1, a2}, attempts)
}

func TestSaveSnapshot_ReplacesSets(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	st := manualState("run-1", 4)
	st.Held.Add("u1")
	st.Held.Add("u2")
	st.Suspected.Add("u1")
	st.Suspected.Add("u2")
	require.NoError(t, s.SaveSnapshot(ctx, engine.Snapshot{State: st}))

	st.Held = engine.NewIDSet()
	st.Integrated.Add("u0")
	require.NoError(t, s.SaveSnapshot(ctx, engine.Snapshot{State: st}))

	got, err := s.LoadState(ctx, "run-1")
	require.NoError(t, err)
	assert.Empty(t, got.Held)
	assert.Equal(t, []string{"u1", "u2"}, got.Suspected.Sorted())
	assert.Equal(t, []string{"u0"}, got.Integrated.Sorted())
}

func TestSaveSnapshot_ClearsBisectWindow(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	st := manualState("run-1", 4)
	st.Bisect = &engine.BisectRange{Start: 0, End: 4}
	require.NoError(t, s.SaveSnapshot(ctx, engine.Snapshot{State: st}))

	st.Bisect = nil
	st.Done = true
	require.NoError(t, s.SaveSnapshot(ctx, engine.Snapshot{State: st}))

	got, err := s.LoadState(ctx, "run-1")
	require.NoError(t, err)
	assert.Nil(t, got.Bisect)
	assert.True(t, got.Done)
}

func TestSaveSnapshot_NilState(t *testing.T) {
	s := createTestStore(t)
	assert.Error(t, s.SaveSnapshot(context.Background(), engine.Snapshot{}))
}

func TestSaveSnapshot_RejectsUnknownOutcome(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	st := manualState("run-1", 2)
	bad := attemptRecord(1, model.Outcome("maybe"), "u0")
	err := s.SaveSnapshot(ctx, engine.Snapshot{State: st, Appended: []model.AttemptRecord{bad}})
	require.Error(t, err)

	// The transaction rolled back, so the run does not exist either.
	_, err = s.LoadState(ctx, "run-1")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestCreateRun(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	st := manualState("run-1", 3)
	require.NoError(t, s.CreateRun(ctx, st, "abc123"))

	err := s.CreateRun(ctx, st, "abc123")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	// Snapshots keep the recorded base ref.
	st.Frontier = 1
	st.Integrated.Add("u0")
	require.NoError(t, s.SaveSnapshot(ctx, engine.Snapshot{State: st}))

	info, err := s.ReadRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "abc123", info.BaseRef)
	assert.Equal(t, 3, info.Units)
	assert.Equal(t, 1, info.Frontier)
	assert.Equal(t, engine.StrategyFixedBatch, info.Strategy)
	assert.Equal(t, model.EngineVersion, info.EngineVersion)
}

func TestDeleteRun_Cascades(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	st := manualState("run-1", 2)
	st.KnownBad.Add("u1")
	a1 := attemptRecord(1, model.OutcomePassed, "u0")
	st.Attempts = []model.AttemptRecord{a1}
	require.NoError(t, s.SaveSnapshot(ctx, engine.Snapshot{State: st, Appended: st.Attempts}))

	require.NoError(t, s.DeleteRun(ctx, "run-1"))
	require.NoError(t, s.DeleteRun(ctx, "run-1"))

	for _, table := range []string{"runs", "units", "attempts", "unit_sets"} {
		var n int
		require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
		assert.Zero(t, n, "rows left in %s", table)
	}
}
