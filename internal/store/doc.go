// Package store provides SQLite-backed persistence for graft runs.
//
// A run is stored as:
//   - runs: one row per run with the frontier, bisect window, retry list,
//     strategy data and terminal flags
//   - units: the ordered unit list, written once when the run starts
//   - attempts: the append-only attempt history, keyed by (run_id, seq)
//   - unit_sets: one row per member of the known-bad, integrated, held and
//     suspected sets
//
// Store implements engine.Persister. Every snapshot is written in a single
// transaction, so a crash leaves either the previous or the new state on
// disk and never a mix.
//
// # Ordering
//
// Attempts are read back ORDER BY seq and units ORDER BY idx. Timestamps
// are informational and never used for ordering.
//
// # Database Configuration
//
//   - WAL mode: status and attempts commands can read during a run
//   - synchronous=NORMAL
//   - busy_timeout=5000
//   - foreign_keys=ON: deleting a run removes its units, attempts and sets
package store
