package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSeqClock_StartsAtZero(t *testing.T) {
	c := NewSeqClock()
	assert.Equal(t, int64(0), c.Current())
}

func TestSeqClock_NewSeqClockAt(t *testing.T) {
	c := NewSeqClockAt(41)
	assert.Equal(t, int64(41), c.Current())
	assert.Equal(t, int64(42), c.Next(), "resumed clock continues the sequence")
}

func TestSeqClock_NextIncrements(t *testing.T) {
	c := NewSeqClock()

	assert.Equal(t, int64(1), c.Next())
	assert.Equal(t, int64(2), c.Next())
	assert.Equal(t, int64(3), c.Next())
	assert.Equal(t, int64(3), c.Current())
}

func TestSeqClock_ConcurrentNextIsUnique(t *testing.T) {
	c := NewSeqClock()
	const goroutines = 50
	const calls = 100

	var wg sync.WaitGroup
	seqs := make(chan int64, goroutines*calls)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < calls; j++ {
				seqs <- c.Next()
			}
		}()
	}
	wg.Wait()
	close(seqs)

	seen := make(map[int64]bool)
	for seq := range seqs {
		assert.False(t, seen[seq], "seq %d generated twice", seq)
		seen[seq] = true
	}
	assert.Len(t, seen, goroutines*calls)
}

func TestSystemClock_Now(t *testing.T) {
	before := time.Now()
	now := SystemClock{}.Now()
	assert.False(t, now.Before(before))
}
