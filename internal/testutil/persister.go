package testutil

import (
	"context"
	"sync"

	"github.com/roach88/graft/internal/engine"
	"github.com/roach88/graft/internal/model"
)

// MemPersister keeps every snapshot in memory.
// Set Err to make the next SaveSnapshot fail.
type MemPersister struct {
	mu        sync.Mutex
	snapshots []engine.Snapshot
	attempts  []model.AttemptRecord
	Err       error
}

// SaveSnapshot implements engine.Persister.
func (p *MemPersister) SaveSnapshot(_ context.Context, snap engine.Snapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		err := p.Err
		p.Err = nil
		return err
	}
	p.snapshots = append(p.snapshots, snap)
	p.attempts = append(p.attempts, snap.Appended...)
	return nil
}

// Snapshots returns all saved snapshots in order.
func (p *MemPersister) Snapshots() []engine.Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]engine.Snapshot(nil), p.snapshots...)
}

// Latest returns the newest snapshot state, or nil.
func (p *MemPersister) Latest() *engine.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.snapshots) == 0 {
		return nil
	}
	return p.snapshots[len(p.snapshots)-1].State
}

// Attempts returns every attempt handed over through Appended, in order.
func (p *MemPersister) Attempts() []model.AttemptRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]model.AttemptRecord(nil), p.attempts...)
}
