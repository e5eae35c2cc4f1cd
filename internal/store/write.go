package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/graft/internal/engine"
	"github.com/roach88/graft/internal/model"
)

// setNames maps unit_sets.name to the State field it mirrors.
var setNames = []string{"known_bad", "integrated", "held", "suspected"}

func stateSets(st *engine.State) map[string]engine.IDSet {
	return map[string]engine.IDSet{
		"known_bad":  st.KnownBad,
		"integrated": st.Integrated,
		"held":       st.Held,
		"suspected":  st.Suspected,
	}
}

// CreateRun records a fresh run before its first attempt.
// baseRef is the working copy checkpoint the run starts from; reset
// returns the target to it. Creating a run id that already exists fails.
func (s *Store) CreateRun(ctx context.Context, st *engine.State, baseRef string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs WHERE id = ?`, st.RunID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("create run: %w", err)
		}
		if exists > 0 {
			return fmt.Errorf("create run: run %s already exists", st.RunID)
		}
		if err := s.upsertRun(ctx, tx, st); err != nil {
			return fmt.Errorf("create run: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE runs SET base_ref = ? WHERE id = ?`, baseRef, st.RunID); err != nil {
			return fmt.Errorf("create run: %w", err)
		}
		if err := insertUnits(ctx, tx, st); err != nil {
			return fmt.Errorf("create run: %w", err)
		}
		return nil
	})
}

// SaveSnapshot implements engine.Persister. The run row, the appended
// attempts and every unit set are written in one transaction.
//
// Attempts use ON CONFLICT DO NOTHING, so handing the same attempt over
// twice (after a failed save) is harmless.
func (s *Store) SaveSnapshot(ctx context.Context, snap engine.Snapshot) error {
	st := snap.State
	if st == nil {
		return fmt.Errorf("save snapshot: nil state")
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.upsertRun(ctx, tx, st); err != nil {
			return fmt.Errorf("save snapshot: %w", err)
		}
		if err := insertUnits(ctx, tx, st); err != nil {
			return fmt.Errorf("save snapshot: %w", err)
		}
		for _, rec := range snap.Appended {
			if err := insertAttempt(ctx, tx, st.RunID, rec); err != nil {
				return fmt.Errorf("save snapshot: %w", err)
			}
		}
		if err := replaceSets(ctx, tx, st); err != nil {
			return fmt.Errorf("save snapshot: %w", err)
		}
		return nil
	})
}

func (s *Store) upsertRun(ctx context.Context, tx *sql.Tx, st *engine.State) error {
	unitsHash, err := model.UnitListHash(st.Units)
	if err != nil {
		return err
	}
	strategyJSON, err := marshalObject(st.StrategyData)
	if err != nil {
		return err
	}
	retryJSON, err := marshalInts(st.Retry)
	if err != nil {
		return err
	}

	var bStart, bEnd, bMid sql.NullInt64
	if b := st.Bisect; b != nil {
		bStart = sql.NullInt64{Int64: int64(b.Start), Valid: true}
		bEnd = sql.NullInt64{Int64: int64(b.End), Valid: true}
		bMid = sql.NullInt64{Int64: int64(b.Mid), Valid: true}
	}

	now := s.now().UnixNano()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs
		(id, created_at, updated_at, units_hash, frontier, bisect_start, bisect_end, bisect_mid,
		 retry, retry_origin, strategy_data, failure_context, done, aborted, engine_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			updated_at = excluded.updated_at,
			frontier = excluded.frontier,
			bisect_start = excluded.bisect_start,
			bisect_end = excluded.bisect_end,
			bisect_mid = excluded.bisect_mid,
			retry = excluded.retry,
			retry_origin = excluded.retry_origin,
			strategy_data = excluded.strategy_data,
			failure_context = excluded.failure_context,
			done = excluded.done,
			aborted = excluded.aborted,
			engine_version = excluded.engine_version
	`,
		st.RunID,
		now,
		now,
		unitsHash,
		st.Frontier,
		bStart,
		bEnd,
		bMid,
		retryJSON,
		string(st.RetryOrigin),
		strategyJSON,
		st.FailureContext,
		boolInt(st.Done),
		boolInt(st.Aborted),
		model.EngineVersion,
	)
	if err != nil {
		return fmt.Errorf("upsert run: %w", err)
	}
	return nil
}

// insertUnits writes the unit list the first time a run is saved.
func insertUnits(ctx context.Context, tx *sql.Tx, st *engine.State) error {
	var n int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM units WHERE run_id = ?`, st.RunID).Scan(&n); err != nil {
		return fmt.Errorf("count units: %w", err)
	}
	if n > 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO units (run_id, idx, id, content, metadata)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare units: %w", err)
	}
	defer stmt.Close()

	for i, u := range st.Units {
		meta, err := marshalObject(u.Metadata)
		if err != nil {
			return fmt.Errorf("unit %s: %w", u.ShortID(), err)
		}
		if _, err := stmt.ExecContext(ctx, st.RunID, i, u.ID, u.Content, meta); err != nil {
			return fmt.Errorf("insert unit %s: %w", u.ShortID(), err)
		}
	}
	return nil
}

func insertAttempt(ctx context.Context, tx *sql.Tx, runID string, rec model.AttemptRecord) error {
	ids, err := marshalStrings(rec.UnitIDs)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO attempts
		(run_id, seq, unit_ids, outcome, origin, strategy, failed_unit_id, timed_out,
		 duration_apply, duration_validate, apply_output, validate_output, error_message, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, seq) DO NOTHING
	`,
		runID,
		rec.Seq,
		ids,
		string(rec.Outcome),
		string(rec.Origin),
		rec.Strategy,
		rec.FailedUnitID,
		boolInt(rec.TimedOut),
		int64(rec.DurationApply),
		int64(rec.DurationValidate),
		rec.ApplyOutput,
		rec.ValidateOutput,
		rec.ErrorMessage,
		timeNanos(rec.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("insert attempt %d: %w", rec.Seq, err)
	}
	return nil
}

// replaceSets rewrites every set. Held shrinks when suspects are released,
// so the sets are not append-only like attempts.
func replaceSets(ctx context.Context, tx *sql.Tx, st *engine.State) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM unit_sets WHERE run_id = ?`, st.RunID); err != nil {
		return fmt.Errorf("clear sets: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO unit_sets (run_id, name, unit_id) VALUES (?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare sets: %w", err)
	}
	defer stmt.Close()

	sets := stateSets(st)
	for _, name := range setNames {
		for _, id := range sets[name].Sorted() {
			if _, err := stmt.ExecContext(ctx, st.RunID, name, id); err != nil {
				return fmt.Errorf("insert %s %s: %w", name, model.ShortID(id), err)
			}
		}
	}
	return nil
}

// DeleteRun removes a run and everything stored for it.
// Deleting an unknown run is not an error.
func (s *Store) DeleteRun(ctx context.Context, runID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, runID); err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	return nil
}
