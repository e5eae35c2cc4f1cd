package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"

	"github.com/roach88/graft/internal/model"
)

// Token is an opaque working-copy checkpoint.
type Token string

// ApplyResult is the outcome of applying one unit.
// An unsuccessful apply is data, not an error.
type ApplyResult struct {
	Success      bool
	FailedUnitID string
	Output       string
}

// ValidateResult is the outcome of one validation run.
// A timeout is a failure with TimedOut set, never an error.
type ValidateResult struct {
	Passed   bool
	TimedOut bool
	Output   string
}

// Target is the working copy the engine integrates into.
//
// A non-nil error from any method means the target infrastructure broke
// and stops the run. The engine never calls a Target concurrently.
type Target interface {
	Checkpoint(ctx context.Context) (Token, error)
	ApplyOne(ctx context.Context, u model.Unit) (ApplyResult, error)
	Validate(ctx context.Context) (ValidateResult, error)

	// Rollback restores the checkpoint, including any partial apply.
	// Calling it again with the same token changes nothing.
	Rollback(ctx context.Context, tok Token) error

	// Commit finalizes the applied units. Targets that commit per unit
	// inside ApplyOne treat it as a no-op.
	Commit(ctx context.Context, message string) error
}

// ChangeSource produces the ordered units of a run. Called once at start.
type ChangeSource interface {
	Units(ctx context.Context) ([]model.Unit, error)
}

// Snapshot is what the engine persists after every iteration.
type Snapshot struct {
	// State is a deep copy the persister may keep.
	State *State

	// Appended holds the attempts added since the previous snapshot.
	Appended []model.AttemptRecord
}

// Persister stores snapshots. SaveSnapshot must write the whole snapshot
// atomically.
type Persister interface {
	SaveSnapshot(ctx context.Context, snap Snapshot) error
}

type nopPersister struct{}

func (nopPersister) SaveSnapshot(context.Context, Snapshot) error { return nil }

// candidate is a picked unit set and the reason it was picked.
type candidate struct {
	indices []int
	origin  model.Origin
}

// Engine drives the pick, apply, validate and recover loop.
//
// All state mutation happens inside Step. Run and Step must be called from
// one goroutine.
type Engine struct {
	state      *State
	target     Target
	strategy   Strategy
	planner    Planner
	classifier Classifier
	persister  Persister
	clock      Clock
	seq        *SeqClock
	logger     *slog.Logger
	runIDs     RunIDGenerator

	// pending holds attempts not yet handed to the persister.
	pending []model.AttemptRecord
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithClock sets the wall clock used for timestamps and durations.
func WithClock(c Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithPersister sets where snapshots go. The default drops them.
func WithPersister(p Persister) Option {
	return func(e *Engine) {
		e.persister = p
	}
}

// WithClassifier sets the failure classifier. The default is NopClassifier.
func WithClassifier(c Classifier) Option {
	return func(e *Engine) {
		e.classifier = c
	}
}

// WithStrategy sets the initial strategy. The default is Optimistic.
// Ignored by Resume, which restores the recorded strategy.
func WithStrategy(s Strategy) Option {
	return func(e *Engine) {
		e.strategy = s
	}
}

// WithPlanner sets the recovery bounds.
func WithPlanner(p Planner) Option {
	return func(e *Engine) {
		e.planner = p
	}
}

// WithRunIDGenerator sets how a fresh run is named.
func WithRunIDGenerator(g RunIDGenerator) Option {
	return func(e *Engine) {
		e.runIDs = g
	}
}

func newEngine(target Target, opts []Option) *Engine {
	e := &Engine{
		target:     target,
		strategy:   Optimistic{},
		planner:    DefaultPlanner(),
		classifier: NopClassifier{},
		persister:  nopPersister{},
		clock:      SystemClock{},
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		runIDs:     UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// New creates an engine for a fresh run over units.
// The units slice is copied; the run always sees the original order.
// Unit ids must be unique and non-empty.
func New(units []model.Unit, target Target, opts ...Option) (*Engine, error) {
	if err := checkUnitIDs(units); err != nil {
		return nil, err
	}
	e := newEngine(target, opts)
	e.state = NewState(e.runIDs.Generate(), append([]model.Unit(nil), units...))
	e.state.StrategyData = strategyData(e.strategy)
	e.seq = NewSeqClock()
	return e, nil
}

// State returns the live run state. Callers must not modify it.
func (e *Engine) State() *State {
	return e.state
}

// Strategy returns the active strategy.
func (e *Engine) Strategy() Strategy {
	return e.strategy
}

// Run loops until the run is done, aborted, or fails. Cancellation of ctx
// is observed between attempts only; the returned error is then ctx.Err()
// and the last snapshot is resumable.
func (e *Engine) Run(ctx context.Context) error {
	st := e.state
	e.logger.Info("run starting",
		"run", st.RunID,
		"units", len(st.Units),
		"strategy", describeStrategy(e.strategy),
		"frontier", st.Frontier,
	)

	for {
		if err := ctx.Err(); err != nil {
			e.logger.Info("run interrupted", "run", st.RunID, "frontier", st.Frontier, "attempts", len(st.Attempts))
			return err
		}
		done, err := e.Step(ctx)
		if err != nil {
			return err
		}
		if done {
			e.logger.Info("run complete",
				"run", st.RunID,
				"integrated", len(st.Integrated),
				"bad", len(st.KnownBad),
				"attempts", len(st.Attempts),
				"validations", st.Validations(),
			)
			return nil
		}
	}
}

// Step runs one iteration: pick a candidate set, attempt it, absorb the
// outcome and save a snapshot. It reports whether the run has finished.
//
// The attempt itself is not cancellable; only target timeouts interrupt it.
// On a target error the state is restored to what it was before the step.
func (e *Engine) Step(ctx context.Context) (bool, error) {
	ctx = context.WithoutCancel(ctx)
	st := e.state
	if st.Done || st.Aborted {
		return true, nil
	}

	before := st.Clone()
	cand, ok := e.pick()
	if !ok {
		st.Done = true
		return true, e.save(ctx)
	}

	rec, err := e.attempt(ctx, cand)
	if err != nil {
		e.state = before
		e.seq = NewSeqClockAt(before.LastSeq())
		return false, err
	}

	st.Attempts = append(st.Attempts, rec)
	e.pending = append(e.pending, rec)
	abort := e.absorb(cand, rec)

	if !st.Aborted && st.Complete() {
		st.Done = true
		st.Bisect = nil
		st.Retry = nil
		st.RetryOrigin = ""
	}
	if err := e.save(ctx); err != nil {
		return false, err
	}
	if abort != nil {
		return true, abort
	}
	return st.Done, nil
}

func (e *Engine) save(ctx context.Context) error {
	snap := Snapshot{State: e.state.Clone(), Appended: e.pending}
	if err := e.persister.SaveSnapshot(ctx, snap); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	e.pending = nil
	return nil
}

// pick chooses the next candidate set: the bisection window first, then a
// planner retry list, then the strategy. Bisection may isolate a unit here
// without any attempt. ok is false only when nothing is left to try.
func (e *Engine) pick() (candidate, bool) {
	st := e.state
	for {
		st.normalizeFrontier()

		if st.Bisect != nil {
			plan := planBisect(st, *st.Bisect)
			if plan.isolated >= 0 {
				e.markBad(plan.isolated, "isolated by bisection")
				st.Bisect = nil
				continue
			}
			if len(plan.candidates) == 0 {
				st.Bisect = nil
				continue
			}
			st.Bisect.Mid = plan.mid
			e.logger.Debug("bisecting",
				"range", fmt.Sprintf("[%d,%d)", st.Bisect.Start, st.Bisect.End),
				"mid", plan.mid,
			)
			return candidate{indices: plan.candidates, origin: model.OriginBisect}, true
		}

		if len(st.Retry) > 0 {
			var indices []int
			for _, i := range st.Retry {
				if st.Eligible(i) {
					indices = append(indices, i)
				}
			}
			origin := st.RetryOrigin
			st.Retry = nil
			st.RetryOrigin = ""
			if len(indices) > 0 {
				return candidate{indices: indices, origin: origin}, true
			}
			continue
		}

		if len(st.Held) > 0 {
			for _, id := range st.Held.Sorted() {
				e.logger.Info("releasing held unit", "unit", model.ShortID(id))
				st.Held.Remove(id)
			}
		}

		indices := pickBatch(st, e.strategy)
		if len(indices) == 0 {
			return candidate{}, false
		}
		return candidate{indices: indices, origin: model.OriginBatch}, true
	}
}

// attempt runs one checkpoint, apply, validate, then commit or rollback cycle.
func (e *Engine) attempt(ctx context.Context, cand candidate) (model.AttemptRecord, error) {
	st := e.state
	units := st.UnitsAt(cand.indices)
	rec := model.AttemptRecord{
		Seq:       e.seq.Next(),
		UnitIDs:   st.IDsAt(cand.indices),
		Origin:    cand.origin,
		Strategy:  e.strategy.Name(),
		Timestamp: e.clock.Now(),
	}
	log := e.logger.With("seq", rec.Seq)
	log.Info("attempt", "units", len(units), "origin", cand.origin, "strategy", rec.Strategy)

	tok, err := e.target.Checkpoint(ctx)
	if err != nil {
		return rec, newTargetError(st, "checkpoint", err)
	}

	var applyOut strings.Builder
	start := e.clock.Now()
	for _, u := range units {
		res, err := e.target.ApplyOne(ctx, u)
		if err != nil {
			e.rollbackQuietly(ctx, tok)
			return rec, newTargetError(st, "apply "+u.ShortID(), err)
		}
		applyOut.WriteString(res.Output)
		if res.Success {
			continue
		}

		rec.DurationApply = e.clock.Now().Sub(start)
		if err := e.target.Rollback(ctx, tok); err != nil {
			return rec, newTargetError(st, "rollback", err)
		}
		// A target may name the unit it blames; anything outside this
		// attempt falls back to the unit that was being applied.
		failed := res.FailedUnitID
		if !slices.Contains(rec.UnitIDs, failed) {
			failed = u.ID
		}
		rec.Outcome = model.OutcomeApplyFailed
		rec.FailedUnitID = failed
		rec.ApplyOutput = applyOut.String()
		rec.ErrorMessage = fmt.Sprintf("unit %s failed to apply", model.ShortID(failed))
		log.Warn("apply failed", "unit", model.ShortID(failed))
		return rec, nil
	}
	rec.DurationApply = e.clock.Now().Sub(start)
	rec.ApplyOutput = applyOut.String()

	start = e.clock.Now()
	vres, err := e.target.Validate(ctx)
	rec.DurationValidate = e.clock.Now().Sub(start)
	if err != nil {
		e.rollbackQuietly(ctx, tok)
		return rec, newTargetError(st, "validate", err)
	}
	rec.ValidateOutput = vres.Output
	rec.TimedOut = vres.TimedOut

	if vres.Passed {
		if err := e.target.Commit(ctx, commitMessage(units)); err != nil {
			e.rollbackQuietly(ctx, tok)
			return rec, newTargetError(st, "commit", err)
		}
		rec.Outcome = model.OutcomePassed
		log.Info("validation passed", "units", len(units), "duration", rec.DurationValidate)
		return rec, nil
	}

	if err := e.target.Rollback(ctx, tok); err != nil {
		return rec, newTargetError(st, "rollback", err)
	}
	rec.Outcome = model.OutcomeFailed
	rec.ErrorMessage = "validation failed"
	if vres.TimedOut {
		rec.ErrorMessage = "validation timed out"
	}
	log.Warn(rec.ErrorMessage, "units", len(units), "duration", rec.DurationValidate)
	return rec, nil
}

func (e *Engine) rollbackQuietly(ctx context.Context, tok Token) {
	if err := e.target.Rollback(ctx, tok); err != nil {
		e.logger.Error("rollback after target error failed", "error", err)
	}
}

// absorb folds an attempt outcome into the state. It returns the abort
// error when the planner gives up.
func (e *Engine) absorb(cand candidate, rec model.AttemptRecord) error {
	st := e.state
	switch rec.Outcome {
	case model.OutcomePassed:
		for _, i := range cand.indices {
			st.Integrated.Add(st.Units[i].ID)
		}
		st.FailureContext = ""
		if cand.origin == model.OriginBisect && st.Bisect != nil {
			next := st.Bisect.narrow(true)
			st.Bisect = &next
		}
		st.normalizeFrontier()
		e.logger.Debug("frontier advanced", "frontier", st.Frontier)

	case model.OutcomeApplyFailed:
		if i, ok := st.IndexOf(rec.FailedUnitID); ok {
			e.markBad(i, "failed to apply")
		}
		st.Bisect = nil

	case model.OutcomeFailed:
		if cand.origin == model.OriginBisect && st.Bisect != nil {
			next := st.Bisect.narrow(false)
			st.Bisect = &next
			return nil
		}
		if len(cand.indices) == 1 {
			e.markBad(cand.indices[0], "failed validation alone")
			return nil
		}
		c := e.classifier.Classify(st.UnitsAt(cand.indices), rec)
		return e.apply(e.planner.Decide(st, rec, c))
	}
	return nil
}

// apply carries out a planner decision.
func (e *Engine) apply(d Decision) error {
	st := e.state
	e.logger.Info("recovery", "decision", d.String())

	switch d := d.(type) {
	case Abort:
		st.Aborted = true
		st.Done = false
		return newMaxRetriesError(st, d.Failures, d.Output)

	case SwitchStrategy:
		e.strategy = d.To
		st.StrategyData = strategyData(d.To)

	case RetryAll:
		st.Retry = d.Retry
		st.RetryOrigin = model.OriginRetryAll
		st.FailureContext = d.Context

	case RetrySpecific:
		for _, i := range d.Suspects {
			id := st.Units[i].ID
			st.Held.Add(id)
			st.Suspected.Add(id)
		}
		st.Retry = d.Retry
		st.RetryOrigin = model.OriginRetrySpecific

	case Bisect:
		st.Bisect = &BisectRange{Start: d.Start, End: d.End}
	}
	return nil
}

func (e *Engine) markBad(i int, reason string) {
	st := e.state
	id := st.Units[i].ID
	st.KnownBad.Add(id)
	st.normalizeFrontier()
	e.logger.Warn("unit excluded",
		"unit", model.ShortID(id),
		"reason", reason,
		"bad", len(st.KnownBad),
		"frontier", st.Frontier,
	)
}

func commitMessage(units []model.Unit) string {
	if len(units) == 1 {
		return units[0].Subject()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "graft: integrate %d units\n\n", len(units))
	for _, u := range units {
		fmt.Fprintf(&b, "* %s\n", u.Subject())
	}
	return b.String()
}
