package testutil

import (
	"sync"
	"time"
)

// Epoch is the default start time of a FakeClock.
var Epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// FakeClock is a deterministic engine.Clock.
//
// Every call to Now returns the current time and then moves it forward by
// the step, so durations measured by the engine are stable across runs.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type FakeClock struct {
	mu    sync.Mutex
	now   time.Time
	step  time.Duration
	calls int
}

// NewFakeClock creates a clock at start that advances by step per reading.
// A zero start means Epoch.
func NewFakeClock(start time.Time, step time.Duration) *FakeClock {
	if start.IsZero() {
		start = Epoch
	}
	return &FakeClock{now: start, step: step}
}

// Now returns the current fake time and advances it by one step.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.step)
	c.calls++
	return t
}

// Advance moves the clock forward without counting as a reading.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Calls returns how many times Now was read.
func (c *FakeClock) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}
