package engine

import (
	"errors"
	"fmt"

	"github.com/Azure/azure-cli-sub020/internal/ir"
)

// PollQuota tracks the number of polls of one wait and enforces an
// optional maximum. A limit of zero or less is unlimited.
//
// Each wait has its own PollQuota. The quota is checked before every poll,
// so a wait never issues more than Limit fetches.
type PollQuota struct {
	limit   int
	current int
}

// NewPollQuota creates a quota with the given limit.
func NewPollQuota(limit int) *PollQuota {
	return &PollQuota{limit: limit}
}

// Check increments the poll counter and validates it against the limit.
//
// Returns *PollsExceededError if the next poll would exceed the quota.
func (q *PollQuota) Check(h ir.Handle) error {
	if q.limit > 0 && q.current >= q.limit {
		return &PollsExceededError{Handle: h, Polls: q.current, Limit: q.limit}
	}
	q.current++
	return nil
}

// Current returns the number of polls admitted so far.
func (q *PollQuota) Current() int {
	return q.current
}

// Limit returns the configured limit.
func (q *PollQuota) Limit() int {
	return q.limit
}

// PollsExceededError is returned when a wait has used its poll budget.
// The Waiter reports it as TimedOut.
type PollsExceededError struct {
	Handle ir.Handle
	Polls  int
	Limit  int
}

// Error implements the error interface.
func (e *PollsExceededError) Error() string {
	return fmt.Sprintf("wait on %s exceeded max polls: %d polls >= %d limit", e.Handle, e.Polls, e.Limit)
}

// IsPollsExceededError returns true if the error is a PollsExceededError.
// Uses errors.As to handle wrapped errors.
func IsPollsExceededError(err error) bool {
	var pe *PollsExceededError
	return errors.As(err, &pe)
}
