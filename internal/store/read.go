package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/graft/internal/engine"
	"github.com/roach88/graft/internal/model"
)

// RunInfo is the stored header of a run.
type RunInfo struct {
	ID            string    `json:"id"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	UnitsHash     string    `json:"units_hash"`
	BaseRef       string    `json:"base_ref,omitempty"`
	Units         int       `json:"units"`
	Frontier      int       `json:"frontier"`
	Attempts      int       `json:"attempts"`
	Strategy      string    `json:"strategy"`
	Done          bool      `json:"done"`
	Aborted       bool      `json:"aborted"`
	EngineVersion string    `json:"engine_version"`
}

const runInfoQuery = `
	SELECT r.id, r.created_at, r.updated_at, r.units_hash, r.base_ref, r.frontier,
		r.strategy_data, r.done, r.aborted, r.engine_version,
		(SELECT COUNT(*) FROM units u WHERE u.run_id = r.id),
		(SELECT COUNT(*) FROM attempts a WHERE a.run_id = r.id)
	FROM runs r
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRunInfo(row rowScanner) (RunInfo, error) {
	var (
		info             RunInfo
		created, updated int64
		strategyJSON     string
		done, aborted    int
	)
	err := row.Scan(&info.ID, &created, &updated, &info.UnitsHash, &info.BaseRef, &info.Frontier,
		&strategyJSON, &done, &aborted, &info.EngineVersion, &info.Units, &info.Attempts)
	if err != nil {
		return RunInfo{}, err
	}
	data, err := unmarshalObject(strategyJSON)
	if err != nil {
		return RunInfo{}, fmt.Errorf("run %s: %w", info.ID, err)
	}
	info.CreatedAt = nanosTime(created)
	info.UpdatedAt = nanosTime(updated)
	info.Strategy = engine.StrategyName(data)
	info.Done = done == 1
	info.Aborted = aborted == 1
	return info, nil
}

// ReadRun returns the header of one run, or ErrRunNotFound.
func (s *Store) ReadRun(ctx context.Context, runID string) (RunInfo, error) {
	row := s.db.QueryRowContext(ctx, runInfoQuery+` WHERE r.id = ?`, runID)
	info, err := scanRunInfo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return RunInfo{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return RunInfo{}, fmt.Errorf("read run: %w", err)
	}
	return info, nil
}

// ListRuns returns every run, most recently created first.
// Returns an empty slice (not nil) when the store holds no runs.
func (s *Store) ListRuns(ctx context.Context) ([]RunInfo, error) {
	rows, err := s.db.QueryContext(ctx, runInfoQuery+` ORDER BY r.created_at DESC, r.rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []RunInfo{}
	for rows.Next() {
		info, err := scanRunInfo(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// LatestRun returns the id of the most recently created run, or
// ErrRunNotFound when there is none.
func (s *Store) LatestRun(ctx context.Context) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM runs ORDER BY created_at DESC, rowid DESC LIMIT 1
	`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrRunNotFound
	}
	if err != nil {
		return "", fmt.Errorf("latest run: %w", err)
	}
	return id, nil
}

// LoadState rebuilds the engine state of a run, ready for engine.Resume.
func (s *Store) LoadState(ctx context.Context, runID string) (*engine.State, error) {
	var (
		frontier               int
		bStart, bEnd, bMid     sql.NullInt64
		retryJSON, retryOrigin string
		strategyJSON, failure  string
		done, aborted          int
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT frontier, bisect_start, bisect_end, bisect_mid, retry, retry_origin,
			strategy_data, failure_context, done, aborted
		FROM runs WHERE id = ?
	`, runID).Scan(&frontier, &bStart, &bEnd, &bMid, &retryJSON, &retryOrigin,
		&strategyJSON, &failure, &done, &aborted)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("load run: %w", err)
	}

	units, err := s.readUnits(ctx, runID)
	if err != nil {
		return nil, err
	}
	st := engine.NewState(runID, units)
	st.Frontier = frontier
	st.FailureContext = failure
	st.RetryOrigin = model.Origin(retryOrigin)
	st.Done = done == 1
	st.Aborted = aborted == 1
	if bStart.Valid && bEnd.Valid {
		st.Bisect = &engine.BisectRange{
			Start: int(bStart.Int64),
			End:   int(bEnd.Int64),
			Mid:   int(bMid.Int64),
		}
	}
	if st.Retry, err = unmarshalInts(retryJSON); err != nil {
		return nil, fmt.Errorf("load run: %w", err)
	}
	if st.StrategyData, err = unmarshalObject(strategyJSON); err != nil {
		return nil, fmt.Errorf("load run: %w", err)
	}

	if err := s.readSets(ctx, st); err != nil {
		return nil, err
	}
	if st.Attempts, err = s.ReadAttempts(ctx, runID, ""); err != nil {
		return nil, err
	}
	return st, nil
}

func (s *Store) readUnits(ctx context.Context, runID string) ([]model.Unit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, content, metadata FROM units WHERE run_id = ? ORDER BY idx ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query units: %w", err)
	}
	defer rows.Close()

	units := []model.Unit{}
	for rows.Next() {
		var u model.Unit
		var meta string
		if err := rows.Scan(&u.ID, &u.Content, &meta); err != nil {
			return nil, fmt.Errorf("scan unit: %w", err)
		}
		if u.Metadata, err = unmarshalObject(meta); err != nil {
			return nil, fmt.Errorf("unit %s: %w", u.ShortID(), err)
		}
		units = append(units, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate units: %w", err)
	}
	return units, nil
}

func (s *Store) readSets(ctx context.Context, st *engine.State) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, unit_id FROM unit_sets WHERE run_id = ? ORDER BY name, unit_id
	`, st.RunID)
	if err != nil {
		return fmt.Errorf("query sets: %w", err)
	}
	defer rows.Close()

	sets := stateSets(st)
	for rows.Next() {
		var name, id string
		if err := rows.Scan(&name, &id); err != nil {
			return fmt.Errorf("scan set member: %w", err)
		}
		set, ok := sets[name]
		if !ok {
			return fmt.Errorf("unknown set %q", name)
		}
		set.Add(id)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate sets: %w", err)
	}
	return nil
}

// ReadAttempts returns the attempt history of a run ordered by seq.
// A non-empty outcome filters the history to that outcome.
// Returns an empty slice (not nil) if no attempts match.
func (s *Store) ReadAttempts(ctx context.Context, runID string, outcome model.Outcome) ([]model.AttemptRecord, error) {
	query := `
		SELECT seq, unit_ids, outcome, origin, strategy, failed_unit_id, timed_out,
			duration_apply, duration_validate, apply_output, validate_output, error_message, timestamp
		FROM attempts
		WHERE run_id = ?`
	args := []any{runID}
	if outcome != "" {
		query += ` AND outcome = ?`
		args = append(args, string(outcome))
	}
	query += ` ORDER BY seq ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	attempts := []model.AttemptRecord{}
	for rows.Next() {
		rec, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempts: %w", err)
	}
	return attempts, nil
}

func scanAttempt(row rowScanner) (model.AttemptRecord, error) {
	var (
		rec               model.AttemptRecord
		ids               string
		outcome, origin   string
		timedOut          int
		dApply, dValidate int64
		ts                int64
	)
	err := row.Scan(&rec.Seq, &ids, &outcome, &origin, &rec.Strategy, &rec.FailedUnitID, &timedOut,
		&dApply, &dValidate, &rec.ApplyOutput, &rec.ValidateOutput, &rec.ErrorMessage, &ts)
	if err != nil {
		return model.AttemptRecord{}, fmt.Errorf("scan attempt: %w", err)
	}
	if rec.UnitIDs, err = unmarshalStrings(ids); err != nil {
		return model.AttemptRecord{}, fmt.Errorf("attempt %d: %w", rec.Seq, err)
	}
	rec.Outcome = model.Outcome(outcome)
	rec.Origin = model.Origin(origin)
	rec.TimedOut = timedOut == 1
	rec.DurationApply = time.Duration(dApply)
	rec.DurationValidate = time.Duration(dValidate)
	rec.Timestamp = nanosTime(ts)
	return rec, nil
}
