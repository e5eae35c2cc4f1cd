// Package harness runs integration scenarios against the real engine.
//
// A scenario describes a list of generated units, how the simulated target
// treats them and the recovery settings, then asserts on the attempt trace
// and the final run state. The target is testutil.SimTarget, so every run is
// deterministic and its trace can be compared to a golden file.
//
// # Scenario Format
//
//	name: bisect_isolates_one
//	description: "one breaker among eight units"
//	units: 8
//	strategy:
//	  initial: optimistic
//	  batch_size: 10
//	  max_retries: 3
//	  switch_threshold: 2
//	classifier: triage
//	target:
//	  breakers: [u5]
//	  apply_fails: [u2]
//	  conflicts: [[u1, u3]]
//	  timeouts: 1
//	assertions:
//	  - type: trace_contains
//	    origin: bisect
//	    outcome: applied_and_passed
//	    units: [u0, u1, u2, u3]
//	  - type: trace_order
//	    origins: [batch, bisect, batch]
//	  - type: trace_count
//	    origin: bisect
//	    count: 3
//	  - type: final_state
//	    expect:
//	      known_bad: [u5]
//	      frontier: 8
//	      done: true
//
// Units are named u0..u<n-1>; unit i changes file<i>.go.
//
// # Assertion Types
//
//   - trace_contains: some attempt matches every given field
//   - trace_order: attempts with the given origins occur in this order
//   - trace_count: exactly count attempts match the given fields
//   - final_state: the final run state matches every given field
//
// # Golden Traces
//
// RunWithGolden compares the canonical JSON trace with
// testdata/golden/<name>.golden. Durations and timestamps are not part of
// the trace. Regenerate with:
//
//	go test ./internal/harness -update
package harness
