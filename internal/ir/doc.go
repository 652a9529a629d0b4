// Package ir provides the data model shared by the wait engine, the
// resource client, the journal and the CLI.
//
// This package contains type definitions and pure helpers only. All other
// internal packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - Handle and Condition are immutable values, safe to copy and share
//   - Snapshot is replaced wholesale on every poll, never mutated in place
//   - Outcome is produced exactly once per wait and is always terminal
//   - All JSON tags use snake_case
package ir
