package store

import (
	"context"
	"fmt"

	"github.com/Azure/azure-cli-sub020/internal/ir"
)

// RecordOperation inserts an operation record into the store.
// Uses ON CONFLICT(id) DO NOTHING for idempotency - duplicate IDs are silently ignored.
func (s *Store) RecordOperation(ctx context.Context, op ir.Operation) error {
	if op.ID == "" {
		return fmt.Errorf("record operation: id is required")
	}
	if op.Handle.IsZero() {
		return fmt.Errorf("record operation %s: handle is required", op.ID)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO operations
		(id, method, handle, status_code, async_operation, no_wait, wait_id, issued_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		op.ID,
		op.Method,
		op.Handle.ID(),
		op.StatusCode,
		op.AsyncOperation,
		boolToInt(op.NoWait),
		op.WaitID,
		encodeTime(op.IssuedAt),
	)
	if err != nil {
		return fmt.Errorf("record operation: %w", err)
	}
	return nil
}

// AttachWait links the most recent wait on an operation to it.
// Returns ErrNotFound if the operation does not exist.
func (s *Store) AttachWait(ctx context.Context, opID, waitID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE operations SET wait_id = ? WHERE id = ?`, waitID, opID)
	if err != nil {
		return fmt.Errorf("attach wait: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("attach wait: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("attach wait to operation %s: %w", opID, ErrNotFound)
	}
	return nil
}

// RecordTransition inserts one wait transition. It implements
// engine.TransitionRecorder.
//
// Uses ON CONFLICT DO NOTHING for idempotency - a transition is keyed by
// (wait_id, seq).
func (s *Store) RecordTransition(ctx context.Context, t ir.Transition) error {
	condJSON, err := marshalCondition(t.Condition)
	if err != nil {
		return fmt.Errorf("record transition: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO transitions
		(wait_id, seq, handle, condition, from_state, to_state, reason, poll, elapsed_ms, digest, detail, at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`,
		t.WaitID,
		t.Seq,
		t.Handle.ID(),
		condJSON,
		string(t.From),
		string(t.To),
		string(t.Reason),
		t.Poll,
		t.Elapsed.Milliseconds(),
		t.Digest,
		t.Detail,
		encodeTime(t.At),
	)
	if err != nil {
		return fmt.Errorf("record transition: %w", err)
	}
	return nil
}
