package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Azure/azure-cli-sub020/internal/ir"
)

// Default wait limits. The timeout matches the management CLI's --timeout
// default of one hour.
const (
	DefaultTimeout      = time.Hour
	DefaultFetchTimeout = 60 * time.Second
)

// Options configure one Waiter. The zero value of each field selects its
// default, except Timeout where zero means no deadline.
type Options struct {
	// Timeout bounds the whole wait. Zero waits forever.
	Timeout time.Duration

	// Backoff configures the delay between polls.
	Backoff BackoffPolicy

	// MaxPolls caps the number of polls. Zero is unlimited.
	MaxPolls int

	// FetchTimeout bounds a single poll.
	FetchTimeout time.Duration

	// Conventions locate and classify the provisioning state.
	Conventions Conventions
}

// DefaultOptions returns the management CLI defaults.
func DefaultOptions() Options {
	return Options{
		Timeout:      DefaultTimeout,
		Backoff:      DefaultBackoffPolicy(),
		FetchTimeout: DefaultFetchTimeout,
		Conventions:  DefaultConventions(),
	}
}

// TransitionRecorder persists the transitions of a wait.
// Implemented by store.Store.
type TransitionRecorder interface {
	RecordTransition(ctx context.Context, t ir.Transition) error
}

// Waiter drives Poller, Evaluate and Scheduler in a loop until the wait
// reaches a terminal state.
//
// Thread-safety model:
//   - Wait(): safe from any goroutine; each call owns its snapshot,
//     scheduler and quota, so concurrent waits share nothing mutable
//   - the Poller, Clock, Recorder and IDGenerator must be safe for
//     concurrent use when waits run in parallel
//
// INVARIANTS:
//   - polls of one wait are strictly sequential
//   - every Wait call returns exactly one terminal Outcome
//   - cancellation and the deadline are checked between polls, never
//     during one
type Waiter struct {
	poller   Poller
	opts     Options
	clock    Clock
	logger   *slog.Logger
	recorder TransitionRecorder
	ids      IDGenerator
}

// WaiterOption allows configuration of Waiter collaborators.
type WaiterOption func(*Waiter)

// WithClock sets the time source. Default: SystemClock.
func WithClock(c Clock) WaiterOption {
	return func(w *Waiter) {
		w.clock = c
	}
}

// WithLogger sets the transition logger. Default: slog.Default().
func WithLogger(l *slog.Logger) WaiterOption {
	return func(w *Waiter) {
		w.logger = l
	}
}

// WithRecorder persists transitions, usually to the operation journal.
func WithRecorder(r TransitionRecorder) WaiterOption {
	return func(w *Waiter) {
		w.recorder = r
	}
}

// WithIDGenerator sets the wait ID generator. Default: UUIDv7Generator.
func WithIDGenerator(g IDGenerator) WaiterOption {
	return func(w *Waiter) {
		w.ids = g
	}
}

// NewWaiter creates a Waiter polling through p.
func NewWaiter(p Poller, opts Options, options ...WaiterOption) *Waiter {
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = DefaultFetchTimeout
	}
	if opts.Timeout < 0 {
		opts.Timeout = 0
	}
	if len(opts.Conventions.StatusPaths) == 0 {
		opts.Conventions = DefaultConventions()
	}
	opts.Backoff = opts.Backoff.normalized()

	w := &Waiter{
		poller: p,
		opts:   opts,
		clock:  SystemClock{},
		logger: slog.Default(),
		ids:    UUIDv7Generator{},
	}
	for _, o := range options {
		o(w)
	}
	return w
}

// Options returns the normalized options in use.
func (w *Waiter) Options() Options {
	return w.opts
}

// waitRun is the mutable state of one Wait call.
type waitRun struct {
	w       *Waiter
	id      string
	handle  ir.Handle
	cond    ir.Condition
	start   time.Time
	polls   int
	seq     int
	state   ir.State
	current ir.Snapshot
}

// Wait blocks until cond holds for h, the timeout elapses, the context is
// canceled or the wait fails. It always returns a terminal Outcome.
//
// Transition table, per poll:
//   - NotFound with Deleted: Satisfied with an empty snapshot
//   - NotFound otherwise: Failed(ResourceNotFoundUnexpectedly)
//   - Unauthorized: Failed(Unauthorized)
//   - Rejected: Failed(RequestRejected)
//   - Transient: stay Polling
//   - snapshot with a failure sentinel: Failed(ResourceReportedFailure)
//   - snapshot that cannot be evaluated: Failed(EvaluatorError)
//   - snapshot satisfying cond: Satisfied
//   - otherwise: stay Polling
//
// While Polling the wait sleeps for the next backoff delay, truncated to
// the time left before the deadline, then checks cancellation and the
// deadline before polling again.
func (w *Waiter) Wait(ctx context.Context, h ir.Handle, cond ir.Condition) ir.Outcome {
	run := &waitRun{
		w:      w,
		id:     w.ids.Generate(),
		handle: h,
		cond:   cond,
		start:  w.clock.Now(),
	}

	if err := ValidateCondition(cond); err != nil {
		run.enter(ctx)
		return run.fail(ctx, newEvaluatorError(h, err))
	}
	if h.IsZero() {
		run.enter(ctx)
		return run.fail(ctx, newEvaluatorError(h, errors.New("resource handle is empty")))
	}

	return run.loop(ctx)
}

func (r *waitRun) loop(ctx context.Context) ir.Outcome {
	w := r.w
	sched := NewScheduler(w.opts.Backoff)
	quota := NewPollQuota(w.opts.MaxPolls)

	var deadline time.Time
	if w.opts.Timeout > 0 {
		deadline = r.start.Add(w.opts.Timeout)
	}

	r.enter(ctx)

	for {
		if out, done := r.checkBoundary(ctx, deadline); done {
			return out
		}
		if err := quota.Check(r.handle); err != nil {
			return r.finish(ctx, ir.StateTimedOut, ir.ReasonNone, nil, err.Error())
		}

		snap, err := r.fetch(ctx)
		r.polls++
		if out, done := r.observe(ctx, snap, err); done {
			return out
		}

		if out, done := r.checkBoundary(ctx, deadline); done {
			return out
		}

		delay := sched.Next()
		if !deadline.IsZero() {
			remaining := deadline.Sub(w.clock.Now())
			if delay > remaining {
				delay = remaining
			}
		}
		w.logger.Debug("sleeping before next poll",
			"wait_id", r.id,
			"handle", r.handle.String(),
			"delay", delay,
			"poll", r.polls,
		)
		if delay > 0 {
			select {
			case <-ctx.Done():
			case <-w.clock.After(delay):
			}
		}
	}
}

// fetch performs one poll. The fetch is detached from ctx cancellation so
// an in-flight request completes; it is bounded by FetchTimeout instead.
func (r *waitRun) fetch(ctx context.Context) (ir.Snapshot, error) {
	fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.w.opts.FetchTimeout)
	defer cancel()
	return r.w.poller.Poll(fetchCtx, r.handle)
}

// checkBoundary checks cancellation and the deadline.
func (r *waitRun) checkBoundary(ctx context.Context, deadline time.Time) (ir.Outcome, bool) {
	if err := ctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return r.finish(ctx, ir.StateTimedOut, ir.ReasonNone, nil, "context deadline exceeded"), true
		}
		return r.finish(ctx, ir.StateCanceled, ir.ReasonNone, nil, "canceled"), true
	}
	if !deadline.IsZero() && !r.w.clock.Now().Before(deadline) {
		return r.finish(ctx, ir.StateTimedOut, ir.ReasonNone, nil,
			fmt.Sprintf("timeout %s reached", r.w.opts.Timeout)), true
	}
	return ir.Outcome{}, false
}

// observe applies the transition table to the result of one poll.
func (r *waitRun) observe(ctx context.Context, snap ir.Snapshot, err error) (ir.Outcome, bool) {
	if err != nil {
		fe := ClassifyError(r.handle, err)
		switch fe.Kind {
		case FetchNotFound:
			if r.cond.Kind == ir.ConditionDeleted {
				r.current = ir.Snapshot{}
				return r.finish(ctx, ir.StateSatisfied, ir.ReasonNone, nil, "resource not found"), true
			}
			return r.fail(ctx, newNotFoundError(r.handle, r.cond, fe)), true
		case FetchUnauthorized:
			return r.fail(ctx, newUnauthorizedError(r.handle, fe)), true
		case FetchRejected:
			return r.fail(ctx, newRejectedError(r.handle, fe)), true
		default:
			r.repoll(ctx, "", "transient fetch error: "+fe.Error())
			return ir.Outcome{}, false
		}
	}

	// Only the latest snapshot is kept.
	r.current = snap
	digest := snap.Digest()

	ok, evalErr := Evaluate(snap, r.cond, r.w.opts.Conventions)
	if evalErr != nil {
		if IsSentinelError(evalErr) {
			return r.fail(ctx, newResourceFailureError(r.handle, evalErr)), true
		}
		return r.fail(ctx, newEvaluatorError(r.handle, evalErr)), true
	}
	if ok {
		return r.finish(ctx, ir.StateSatisfied, ir.ReasonNone, nil, ""), true
	}

	detail := ""
	if status, _, err := r.w.opts.Conventions.Status(snap.Document()); err == nil && status != "" {
		detail = "status " + status
	}
	r.repoll(ctx, digest, detail)
	return ir.Outcome{}, false
}

func (r *waitRun) enter(ctx context.Context) {
	r.transition(ctx, ir.StatePolling, ir.ReasonNone, "", "")
}

func (r *waitRun) repoll(ctx context.Context, digest, detail string) {
	r.transition(ctx, ir.StatePolling, ir.ReasonNone, digest, detail)
}

func (r *waitRun) fail(ctx context.Context, err *WaitError) ir.Outcome {
	return r.finish(ctx, ir.StateFailed, err.Reason, err, err.Error())
}

// finish records the terminal transition and builds the outcome.
func (r *waitRun) finish(ctx context.Context, state ir.State, reason ir.Reason, err error, detail string) ir.Outcome {
	out := ir.Outcome{
		WaitID:    r.id,
		Handle:    r.handle,
		Condition: r.cond,
		State:     state,
		Reason:    reason,
		Err:       err,
		Polls:     r.polls,
		Elapsed:   r.w.clock.Now().Sub(r.start),
	}
	if state == ir.StateSatisfied {
		out.Snapshot = r.current
	}
	r.transition(ctx, state, reason, out.Snapshot.Digest(), detail)
	return out
}

// transition logs one state transition and hands it to the recorder.
func (r *waitRun) transition(ctx context.Context, to ir.State, reason ir.Reason, digest, detail string) {
	w := r.w
	now := w.clock.Now()
	t := ir.Transition{
		WaitID:    r.id,
		Seq:       r.seq,
		Handle:    r.handle,
		Condition: r.cond,
		From:      r.state,
		To:        to,
		Reason:    reason,
		Poll:      r.polls,
		Elapsed:   now.Sub(r.start),
		Digest:    digest,
		Detail:    detail,
		At:        now,
	}
	r.seq++
	r.state = to

	attrs := []any{
		"wait_id", t.WaitID,
		"state", string(t.To),
		"elapsed", t.Elapsed,
		"handle", t.Handle.String(),
		"poll", t.Poll,
	}
	if reason != ir.ReasonNone {
		attrs = append(attrs, "reason", string(reason))
	}
	if detail != "" {
		attrs = append(attrs, "detail", detail)
	}

	switch {
	case t.From == ir.StatePolling && t.To == ir.StatePolling:
		w.logger.Info("wait polling", attrs...)
	case t.To == ir.StateFailed:
		w.logger.Error("wait failed", attrs...)
	case t.To == ir.StateTimedOut:
		w.logger.Warn("wait timed out", attrs...)
	case t.To == ir.StateCanceled:
		w.logger.Warn("wait canceled", attrs...)
	case t.To == ir.StateSatisfied:
		w.logger.Info("wait satisfied", attrs...)
	default:
		w.logger.Info("wait started", attrs...)
	}

	if w.recorder == nil {
		return
	}
	// Journal writes must not be lost when the wait itself was canceled.
	if err := w.recorder.RecordTransition(context.WithoutCancel(ctx), t); err != nil {
		w.logger.Warn("failed to record transition",
			"wait_id", t.WaitID,
			"seq", t.Seq,
			"error", err,
		)
	}
}
