package testutil

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/roach88/graft/internal/engine"
	"github.com/roach88/graft/internal/model"
)

// SimTarget is an in-memory engine.Target.
//
// The working copy is a list of applied unit ids. Validation fails when the
// tree holds any breaker, or every unit of any conflict pair. Configure the
// exported fields before the run starts.
type SimTarget struct {
	// ApplyFails are ids that never apply.
	ApplyFails map[string]bool

	// Breakers are ids whose presence fails validation.
	Breakers map[string]bool

	// Conflicts are id groups that fail validation only together.
	Conflicts [][]string

	// Timeouts is the number of upcoming validations that time out,
	// whatever the tree holds.
	Timeouts int

	// Flaky is the number of upcoming validations that fail, whatever the
	// tree holds, with FlakyOutput as output.
	Flaky       int
	FlakyOutput string

	// CommitPerUnit makes ApplyOne commit each unit, like git am.
	CommitPerUnit bool

	mu          sync.Mutex
	committed   []model.Unit
	staged      []model.Unit
	checkpoints map[engine.Token][]model.Unit
	nextToken   int
	inflight    bool
	failNext    map[string]error
	ops         []string
	validations int
}

// NewSimTarget returns an empty target.
func NewSimTarget() *SimTarget {
	return &SimTarget{
		ApplyFails:  map[string]bool{},
		Breakers:    map[string]bool{},
		checkpoints: map[engine.Token][]model.Unit{},
		failNext:    map[string]error{},
	}
}

// FailNext makes the next call of op ("checkpoint", "apply", "validate",
// "rollback", "commit") return err.
func (s *SimTarget) FailNext(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext[op] = err
}

func (s *SimTarget) takeErr(op string) error {
	err := s.failNext[op]
	delete(s.failNext, op)
	return err
}

func (s *SimTarget) tree() []model.Unit {
	return append(slices.Clone(s.committed), s.staged...)
}

// Checkpoint implements engine.Target.
func (s *SimTarget) Checkpoint(context.Context) (engine.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight {
		return "", fmt.Errorf("sim: checkpoint while an attempt is in flight")
	}
	if err := s.takeErr("checkpoint"); err != nil {
		return "", err
	}
	s.nextToken++
	tok := engine.Token(fmt.Sprintf("ck%d", s.nextToken))
	s.checkpoints[tok] = s.tree()
	s.inflight = true
	s.ops = append(s.ops, "checkpoint "+string(tok))
	return tok, nil
}

// ApplyOne implements engine.Target.
func (s *SimTarget) ApplyOne(_ context.Context, u model.Unit) (engine.ApplyResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeErr("apply"); err != nil {
		return engine.ApplyResult{}, err
	}
	s.ops = append(s.ops, "apply "+u.ID)
	if s.ApplyFails[u.ID] {
		return engine.ApplyResult{
			FailedUnitID: u.ID,
			Output:       fmt.Sprintf("patch %s does not apply\n", u.ID),
		}, nil
	}
	if s.CommitPerUnit {
		s.committed = append(s.committed, u)
	} else {
		s.staged = append(s.staged, u)
	}
	return engine.ApplyResult{Success: true}, nil
}

// Validate implements engine.Target.
func (s *SimTarget) Validate(context.Context) (engine.ValidateResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeErr("validate"); err != nil {
		return engine.ValidateResult{}, err
	}
	s.validations++
	s.ops = append(s.ops, "validate")

	if s.Timeouts > 0 {
		s.Timeouts--
		return engine.ValidateResult{TimedOut: true, Output: "validation timed out\n"}, nil
	}
	if s.Flaky > 0 {
		s.Flaky--
		return engine.ValidateResult{Output: s.FlakyOutput}, nil
	}

	tree := s.tree()
	present := make(map[string]bool, len(tree))
	for _, u := range tree {
		present[u.ID] = true
	}

	var out strings.Builder
	for _, u := range tree {
		if !s.Breakers[u.ID] {
			continue
		}
		for _, f := range u.ChangedFiles() {
			fmt.Fprintf(&out, "FAIL %s\n", f)
		}
		if len(u.ChangedFiles()) == 0 {
			fmt.Fprintf(&out, "FAIL %s\n", u.ID)
		}
	}
	for _, group := range s.Conflicts {
		all := len(group) > 0
		for _, id := range group {
			all = all && present[id]
		}
		if all {
			fmt.Fprintf(&out, "FAIL conflict %s\n", strings.Join(group, "+"))
		}
	}
	if out.Len() > 0 {
		return engine.ValidateResult{Output: out.String()}, nil
	}
	return engine.ValidateResult{Passed: true, Output: "ok\n"}, nil
}

// Rollback implements engine.Target. Rolling back to the same token twice
// leaves the tree unchanged.
func (s *SimTarget) Rollback(_ context.Context, tok engine.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeErr("rollback"); err != nil {
		return err
	}
	tree, ok := s.checkpoints[tok]
	if !ok {
		return fmt.Errorf("sim: unknown checkpoint %q", tok)
	}
	s.committed = slices.Clone(tree)
	s.staged = nil
	s.inflight = false
	s.ops = append(s.ops, "rollback "+string(tok))
	return nil
}

// Commit implements engine.Target.
func (s *SimTarget) Commit(_ context.Context, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeErr("commit"); err != nil {
		return err
	}
	s.committed = append(s.committed, s.staged...)
	s.staged = nil
	s.inflight = false
	s.ops = append(s.ops, "commit")
	return nil
}

// Committed returns the ids of committed units in commit order.
func (s *SimTarget) Committed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, len(s.committed))
	for i, u := range s.committed {
		ids[i] = u.ID
	}
	return ids
}

// Tree returns the ids currently in the working copy.
func (s *SimTarget) Tree() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	tree := s.tree()
	ids := make([]string, len(tree))
	for i, u := range tree {
		ids[i] = u.ID
	}
	return ids
}

// Ops returns the operation log.
func (s *SimTarget) Ops() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.ops)
}

// Validations returns how many times Validate ran.
func (s *SimTarget) Validations() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.validations
}
