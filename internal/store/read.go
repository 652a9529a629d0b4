package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Azure/azure-cli-sub020/internal/ir"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ReadOperation returns the operation with the given id.
// Returns an error wrapping ErrNotFound if it does not exist.
func (s *Store) ReadOperation(ctx context.Context, id string) (ir.Operation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, method, handle, status_code, async_operation, no_wait, wait_id, issued_at
		FROM operations
		WHERE id = ?
	`, id)

	op, err := scanOperation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Operation{}, fmt.Errorf("operation %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return ir.Operation{}, err
	}
	return op, nil
}

// ListOperations returns up to limit operations, newest first.
// A limit of zero or less returns all operations.
//
// Returns an empty slice (not nil) if the journal is empty.
func (s *Store) ListOperations(ctx context.Context, limit int) ([]ir.Operation, error) {
	query := `
		SELECT id, method, handle, status_code, async_operation, no_wait, wait_id, issued_at
		FROM operations
		ORDER BY issued_at DESC, id COLLATE BINARY ASC
	`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query operations: %w", err)
	}
	defer rows.Close()

	ops := []ir.Operation{}
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate operations: %w", err)
	}
	return ops, nil
}

// ReadTransitions returns every transition of a wait, ORDER BY seq ASC.
//
// Returns an empty slice (not nil) if the wait has no transitions.
func (s *Store) ReadTransitions(ctx context.Context, waitID string) ([]ir.Transition, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT wait_id, seq, handle, condition, from_state, to_state, reason, poll, elapsed_ms, digest, detail, at
		FROM transitions
		WHERE wait_id = ?
		ORDER BY seq ASC
	`, waitID)
	if err != nil {
		return nil, fmt.Errorf("query transitions: %w", err)
	}
	defer rows.Close()

	transitions := []ir.Transition{}
	for rows.Next() {
		t, err := scanTransition(rows)
		if err != nil {
			return nil, err
		}
		transitions = append(transitions, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transitions: %w", err)
	}
	return transitions, nil
}

// scanner is the subset of *sql.Row and *sql.Rows used by the scan helpers.
type scanner interface {
	Scan(dest ...any) error
}

func scanOperation(row scanner) (ir.Operation, error) {
	var (
		op       ir.Operation
		handle   string
		noWait   int
		issuedAt int64
	)
	err := row.Scan(&op.ID, &op.Method, &handle, &op.StatusCode, &op.AsyncOperation, &noWait, &op.WaitID, &issuedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Operation{}, err
	}
	if err != nil {
		return ir.Operation{}, fmt.Errorf("scan operation: %w", err)
	}

	op.Handle, err = ir.NewHandle(handle)
	if err != nil {
		return ir.Operation{}, fmt.Errorf("scan operation %s: %w", op.ID, err)
	}
	op.NoWait = noWait != 0
	op.IssuedAt = decodeTime(issuedAt)
	return op, nil
}

func scanTransition(row scanner) (ir.Transition, error) {
	var (
		t         ir.Transition
		handle    string
		condJSON  string
		from, to  string
		reason    string
		elapsedMS int64
		at        int64
	)
	err := row.Scan(&t.WaitID, &t.Seq, &handle, &condJSON, &from, &to, &reason, &t.Poll, &elapsedMS, &t.Digest, &t.Detail, &at)
	if err != nil {
		return ir.Transition{}, fmt.Errorf("scan transition: %w", err)
	}

	if handle != "" {
		t.Handle, err = ir.NewHandle(handle)
		if err != nil {
			return ir.Transition{}, fmt.Errorf("scan transition %s/%d: %w", t.WaitID, t.Seq, err)
		}
	}
	t.Condition, err = unmarshalCondition(condJSON)
	if err != nil {
		return ir.Transition{}, fmt.Errorf("scan transition %s/%d: %w", t.WaitID, t.Seq, err)
	}
	t.From = ir.State(from)
	t.To = ir.State(to)
	t.Reason = ir.Reason(reason)
	t.Elapsed = time.Duration(elapsedMS) * time.Millisecond
	t.At = decodeTime(at)
	return t, nil
}
