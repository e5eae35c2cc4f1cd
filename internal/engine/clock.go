package engine

import (
	"sync/atomic"
	"time"
)

// Clock supplies wall-clock time for attempt timestamps and durations.
// Ordering never depends on it; attempts are ordered by seq.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the real time.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time {
	return time.Now()
}

// SeqClock is the monotonic logical clock that stamps attempt records.
//
// Safe for concurrent use, although only the engine loop calls Next.
type SeqClock struct {
	seq atomic.Int64
}

// NewSeqClock creates a clock starting at 0.
func NewSeqClock() *SeqClock {
	return &SeqClock{}
}

// NewSeqClockAt creates a clock starting at start.
// Used when resuming so the next attempt continues the sequence.
func NewSeqClockAt(start int64) *SeqClock {
	c := &SeqClock{}
	c.seq.Store(start)
	return c
}

// Next increments the clock and returns the new value.
func (c *SeqClock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current value without incrementing.
func (c *SeqClock) Current() int64 {
	return c.seq.Load()
}
