package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/graft/internal/engine"
	"github.com/roach88/graft/internal/model"
	"github.com/roach88/graft/internal/testutil"
)

// createTestStore creates a new store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// tickingNow makes created_at strictly increasing across saves.
func tickingNow(s *Store) {
	clock := testutil.NewFakeClock(testutil.Epoch, time.Second)
	s.now = clock.Now
}

// newStoredEngine wires an engine over n units to the store.
func newStoredEngine(t *testing.T, s *Store, runID string, n int, sim *testutil.SimTarget) *engine.Engine {
	t.Helper()
	e, err := engine.New(testutil.MakeUnits(n), sim,
		engine.WithClock(testutil.NewFakeClock(testutil.Epoch, time.Second)),
		engine.WithPersister(s),
		engine.WithRunIDGenerator(engine.NewFixedGenerator(runID)),
	)
	require.NoError(t, err)
	return e
}

// assertSameState compares the persisted fields of two states.
func assertSameState(t *testing.T, want, got *engine.State) {
	t.Helper()
	assert.Equal(t, want.RunID, got.RunID)
	assert.Equal(t, want.Units, got.Units)
	assert.Equal(t, want.Frontier, got.Frontier)
	assert.Equal(t, want.KnownBad.Sorted(), got.KnownBad.Sorted())
	assert.Equal(t, want.Integrated.Sorted(), got.Integrated.Sorted())
	assert.Equal(t, want.Held.Sorted(), got.Held.Sorted())
	assert.Equal(t, want.Suspected.Sorted(), got.Suspected.Sorted())
	assert.Equal(t, want.Bisect, got.Bisect)
	assert.Equal(t, want.Retry, got.Retry)
	assert.Equal(t, want.RetryOrigin, got.RetryOrigin)
	assert.Equal(t, want.StrategyData, got.StrategyData)
	assert.Equal(t, want.FailureContext, got.FailureContext)
	assert.Equal(t, want.Done, got.Done)
	assert.Equal(t, want.Aborted, got.Aborted)
	assertSameAttempts(t, want.Attempts, got.Attempts)
}

func assertSameAttempts(t *testing.T, want, got []model.AttemptRecord) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		w, g := want[i], got[i]
		assert.True(t, w.Timestamp.Equal(g.Timestamp), "attempt %d timestamp: want %v, got %v", w.Seq, w.Timestamp, g.Timestamp)
		w.Timestamp, g.Timestamp = time.Time{}, time.Time{}
		assert.Equal(t, w, g, "attempt %d", w.Seq)
	}
}
