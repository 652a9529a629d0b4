// Package store provides SQLite-backed durable storage for the azwait
// operation journal.
//
// The journal holds:
//   - Operations: mutating requests issued by "resource create" and
//     "resource delete", so "operation wait" can resume a --no-wait call
//   - Transitions: every state transition of every wait, written through
//     the engine.TransitionRecorder interface
//
// # Patterns
//
// Idempotent writes
//   - operations.id and (transitions.wait_id, transitions.seq) are keys;
//     duplicate writes are silently ignored
//
// Deterministic reads
//   - transitions are read ORDER BY seq ASC
//   - operations are read ORDER BY issued_at DESC, id ASC COLLATE BINARY
//
// Canonical encoding
//   - conditions are stored as RFC 8785 canonical JSON
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
