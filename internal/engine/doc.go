// Package engine implements the graft incremental integration engine.
//
// The engine integrates an ordered list of units into a Target one candidate
// set at a time. Every iteration of the loop is
//
//	PICK -> APPLY -> VALIDATE -> (ADVANCE | RECOVER) -> PICK
//
// and ends with a snapshot handed to the Persister.
//
// PICK takes the next candidate set from, in order: an active bisection
// window, a retry list left by the planner, or the active Strategy walking
// eligible units from the frontier.
//
// A unit that fails to apply is excluded at once. A failing single-unit set
// is excluded at once. Any other validation failure goes to the Planner,
// which answers with a Decision: Abort, SwitchStrategy, RetryAll,
// RetrySpecific or Bisect.
//
// Single writer: all state mutation happens inside Step. The Target is never
// called concurrently and an attempt in flight is never cancelled; run
// cancellation is observed between attempts.
//
// The frontier only moves forward, and only past units that are integrated
// or known bad. KnownBad only grows.
package engine
