package ir

import (
	"fmt"
	"time"
)

// State is a wait state. Polling is the only non-terminal state.
type State string

const (
	StatePolling   State = "Polling"
	StateSatisfied State = "Satisfied"
	StateTimedOut  State = "TimedOut"
	StateFailed    State = "Failed"
	StateCanceled  State = "Canceled"
)

// IsTerminal reports whether no further polls follow this state.
func (s State) IsTerminal() bool {
	switch s {
	case StateSatisfied, StateTimedOut, StateFailed, StateCanceled:
		return true
	default:
		return false
	}
}

// Reason qualifies a Failed outcome.
type Reason string

const (
	ReasonNone                         Reason = ""
	ReasonResourceNotFoundUnexpectedly Reason = "ResourceNotFoundUnexpectedly"
	ReasonUnauthorized                 Reason = "Unauthorized"
	ReasonResourceReportedFailure      Reason = "ResourceReportedFailure"
	ReasonEvaluatorError               Reason = "EvaluatorError"
	ReasonRequestRejected              Reason = "RequestRejected"
)

// Process exit codes.
const (
	ExitOK      = 0 // Satisfied
	ExitFailure = 1 // Failed, or any other runtime error
	ExitUsage   = 2 // invalid command line
	ExitTimeout = 3 // TimedOut or Canceled
)

// Outcome is the single terminal result of one wait.
//
// Snapshot is set only for Satisfied; it is empty when the condition was
// Deleted. Err is set for Failed and carries the underlying cause.
type Outcome struct {
	WaitID    string        `json:"wait_id"`
	Handle    Handle        `json:"handle"`
	Condition Condition     `json:"condition"`
	State     State         `json:"state"`
	Reason    Reason        `json:"reason,omitempty"`
	Snapshot  Snapshot      `json:"snapshot"`
	Err       error         `json:"-"`
	Polls     int           `json:"polls"`
	Elapsed   time.Duration `json:"elapsed"`
}

// Satisfied reports whether the wait condition was met.
func (o Outcome) Satisfied() bool {
	return o.State == StateSatisfied
}

// ExitCode maps the outcome to the process exit code.
func (o Outcome) ExitCode() int {
	switch o.State {
	case StateSatisfied:
		return ExitOK
	case StateTimedOut, StateCanceled:
		return ExitTimeout
	default:
		return ExitFailure
	}
}

// Summary renders the one-line, human-readable description of the outcome.
func (o Outcome) Summary() string {
	elapsed := o.Elapsed.Round(time.Millisecond)
	switch o.State {
	case StateSatisfied:
		return fmt.Sprintf("%s: condition %q satisfied after %d poll(s) in %s", o.Handle, o.Condition, o.Polls, elapsed)
	case StateTimedOut:
		return fmt.Sprintf("%s: wait operation timed out after %s (%d poll(s))", o.Handle, elapsed, o.Polls)
	case StateCanceled:
		return fmt.Sprintf("%s: wait canceled after %s (%d poll(s))", o.Handle, elapsed, o.Polls)
	case StateFailed:
		if o.Err != nil {
			return fmt.Sprintf("%s: wait failed (%s): %v", o.Handle, o.Reason, o.Err)
		}
		return fmt.Sprintf("%s: wait failed (%s)", o.Handle, o.Reason)
	default:
		return fmt.Sprintf("%s: wait ended in state %s", o.Handle, o.State)
	}
}

// Transition records one step of a wait's state machine. The entry into
// Polling, every re-poll and the terminal state each produce one Transition.
type Transition struct {
	WaitID    string        `json:"wait_id"`
	Seq       int           `json:"seq"`
	Handle    Handle        `json:"handle"`
	Condition Condition     `json:"condition"`
	From      State         `json:"from,omitempty"`
	To        State         `json:"to"`
	Reason    Reason        `json:"reason,omitempty"`
	Poll      int           `json:"poll"`
	Elapsed   time.Duration `json:"elapsed"`
	Digest    string        `json:"digest,omitempty"`
	Detail    string        `json:"detail,omitempty"`
	At        time.Time     `json:"at"`
}
