package harness

import (
	"time"

	"github.com/Azure/azure-cli-sub020/internal/ir"
)

// Trace event types.
const (
	EventFetch      = "fetch"
	EventTransition = "transition"
)

// TraceEvent is one fetch or one state transition, in the order the wait
// produced them.
type TraceEvent struct {
	Type string `json:"type"`

	// Fetch events.
	Call       int `json:"call,omitempty"`
	StatusCode int `json:"status,omitempty"`

	// Transition events.
	Seq     int           `json:"seq"`
	From    ir.State      `json:"from,omitempty"`
	To      ir.State      `json:"to,omitempty"`
	Reason  ir.Reason     `json:"reason,omitempty"`
	Poll    int           `json:"poll"`
	Elapsed time.Duration `json:"elapsed"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if the expectations and all assertions held.
	Pass bool `json:"pass"`

	// Trace contains all fetches and transitions in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Outcome is the terminal outcome of the wait.
	Outcome ir.Outcome `json:"outcome"`

	// Sleeps lists every backoff delay the wait slept for.
	Sleeps []time.Duration `json:"sleeps"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddFetchTrace adds a fetch to the trace.
func (r *Result) AddFetchTrace(call, statusCode int) {
	r.Trace = append(r.Trace, TraceEvent{
		Type:       EventFetch,
		Call:       call,
		StatusCode: statusCode,
	})
}

// AddTransitionTrace adds a state transition to the trace.
func (r *Result) AddTransitionTrace(t ir.Transition) {
	r.Trace = append(r.Trace, TraceEvent{
		Type:    EventTransition,
		Seq:     t.Seq,
		From:    t.From,
		To:      t.To,
		Reason:  t.Reason,
		Poll:    t.Poll,
		Elapsed: t.Elapsed,
	})
}

// Fetches returns the number of fetch events in the trace.
func (r *Result) Fetches() int {
	n := 0
	for _, e := range r.Trace {
		if e.Type == EventFetch {
			n++
		}
	}
	return n
}
