// Package harness runs wait scenarios against the real Waiter.
//
// A scenario scripts the responses a resource returns to successive polls
// and states the outcome the wait must reach. The harness drives
// engine.Waiter with a scripted poller, a fake clock and a fixed wait ID,
// so a scenario that sleeps for an hour finishes instantly and produces a
// byte-identical trace on every run.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: create_and_wait
//	description: "Resource becomes Succeeded on the third poll"
//	condition:
//	  created: true
//	timeout: 60s
//	interval: 5s
//	max_interval: 10s
//	responses:
//	  - body: { status: Creating }
//	    repeat: 2
//	  - body: { status: Succeeded }
//	expect:
//	  outcome: Satisfied
//	  polls: 3
//	  exit_code: 0
//	assertions:
//	  - type: trace_count
//	    event: fetch
//	    count: 3
//
// A response is either a 200 with a JSON body, an error status
// (status_code: 404) or a transport error (error: "connection reset").
// The last response repeats once the script is exhausted.
//
// # Assertion Types
//
//   - trace_contains: a transition into state (and reason) was recorded
//   - trace_order: states were first entered in the given order
//   - trace_count: a transition or fetch event occurred exactly N times
//   - final_state: a journal row matches the expected column values
//
// # Deterministic Testing
//
// The harness uses:
//   - a fixed wait ID (scenario.wait_id or "test-wait-default")
//   - testutil.FakeClock, which advances instead of sleeping
//   - backoff without jitter
//   - an in-memory SQLite journal, isolated per run
//
// Traces are compared against golden files in testdata/golden.
package harness
