// Package engine implements the long-running-operation wait engine.
//
// A wait re-fetches one resource until a condition holds, the deadline
// passes, the caller cancels, or a fatal error makes further polling
// pointless. Four collaborators take part:
//
//   - Poller fetches the current representation of a resource (one
//     network call per Poll, no caching)
//   - Evaluate decides from a Snapshot whether the condition holds; it is
//     pure and never touches the network
//   - Scheduler yields the delay before the next poll (exponential growth,
//     capped, jittered)
//   - Waiter drives the loop and produces exactly one ir.Outcome
//
// STATE MACHINE:
//
//	Polling -> Polling | Satisfied | TimedOut | Failed | Canceled
//
// Polling is the only non-terminal state. NotFound is fatal unless the
// condition is Deleted, where it means success. Unauthorized, Rejected,
// evaluator errors and failure sentinels ("Failed", "Canceled") are fatal.
// Transient fetch errors and unmet conditions poll again after a delay.
//
// CONCURRENCY:
//
// Each Wait call owns its handle, snapshot, scheduler and poll counter, so
// separate waits share nothing and need no locking. A Waiter may be used
// from many goroutines at once; WaitAll runs one goroutine per target.
// Polls for one wait are strictly sequential. Timeout and cancellation are
// checked at iteration boundaries and while sleeping, never mid-fetch: a
// fetch in flight runs to completion (bounded by Options.FetchTimeout).
package engine
