package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/Azure/azure-cli-sub020/internal/engine"
	"github.com/Azure/azure-cli-sub020/internal/ir"
	"github.com/Azure/azure-cli-sub020/internal/store"
	"github.com/Azure/azure-cli-sub020/internal/testutil"
)

// Harness is the scenario execution engine. It owns the journal, the fake
// clock and the scripted poller of one run.
type Harness struct {
	store  *store.Store
	clock  *testutil.FakeClock
	ids    *testutil.FixedIDGenerator
	logger *slog.Logger
	result *Result
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory journal for isolation.
//
// Execution flow:
//  1. Create a fresh in-memory journal
//  2. Build the scripted poller, fake clock and Waiter
//  3. Wait for the condition, recording fetches and transitions
//  4. Check the expected outcome and evaluate assertions
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h := &Harness{
		store:  st,
		clock:  testutil.NewFakeClock(time.Time{}),
		ids:    testutil.NewFixedIDGenerator(scenario.WaitID),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
		result: NewResult(),
	}

	ctx := context.Background()
	if err := h.executeWait(ctx, scenario); err != nil {
		return nil, fmt.Errorf("failed to execute wait: %w", err)
	}

	for _, msg := range checkExpectations(h.result, scenario.Expect) {
		h.result.AddError(msg)
	}

	actx := &AssertionContext{
		Store: st,
		Ctx:   ctx,
	}
	for _, msg := range EvaluateAssertions(h.result, scenario.Assertions, actx) {
		h.result.AddError(msg)
	}

	return h.result, nil
}

// executeWait runs the scenario's wait to completion.
func (h *Harness) executeWait(ctx context.Context, scenario *Scenario) error {
	handle, err := ir.NewHandle(scenario.handleID())
	if err != nil {
		return err
	}
	cond, err := scenario.Condition.Build()
	if err != nil {
		return err
	}
	responses, err := scenario.responses(handle)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	scripted := testutil.NewScriptedPoller(responses...)
	scripted.AfterPoll = func(call int) {
		if scenario.FetchDuration > 0 {
			h.clock.Advance(scenario.FetchDuration)
		}
		if scenario.CancelAfterPolls > 0 && call == scenario.CancelAfterPolls {
			cancel()
		}
	}

	w := engine.NewWaiter(&tracingPoller{inner: scripted, result: h.result}, scenario.options(),
		engine.WithClock(h.clock),
		engine.WithLogger(h.logger),
		engine.WithRecorder(&tracingRecorder{store: h.store, result: h.result}),
		engine.WithIDGenerator(h.ids),
	)

	out := w.Wait(ctx, handle, cond)
	h.result.Outcome = out
	h.result.Sleeps = h.clock.Sleeps()

	h.logger.Info("scenario completed",
		"wait_id", out.WaitID,
		"state", string(out.State),
		"polls", out.Polls,
		"elapsed", out.Elapsed,
	)
	return nil
}

// tracingPoller adds a fetch event to the trace for every poll.
type tracingPoller struct {
	inner  engine.Poller
	result *Result
	calls  int
}

func (p *tracingPoller) Poll(ctx context.Context, h ir.Handle) (ir.Snapshot, error) {
	snap, err := p.inner.Poll(ctx, h)
	p.calls++
	p.result.AddFetchTrace(p.calls, statusOf(err))
	return snap, err
}

// statusOf returns the HTTP status a poll result stands for; 0 when no
// response was received.
func statusOf(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var fe *engine.FetchError
	if errors.As(err, &fe) {
		return fe.StatusCode
	}
	return 0
}

// tracingRecorder adds transitions to the trace and the journal.
type tracingRecorder struct {
	store  *store.Store
	result *Result
}

func (r *tracingRecorder) RecordTransition(ctx context.Context, t ir.Transition) error {
	r.result.AddTransitionTrace(t)
	return r.store.RecordTransition(ctx, t)
}

// checkExpectations compares the outcome with the scenario's expectation.
func checkExpectations(result *Result, expect Expectation) []string {
	var errs []string
	out := result.Outcome

	if out.State != expect.Outcome {
		msg := fmt.Sprintf("outcome: expected %s, got %s", expect.Outcome, out.State)
		if out.Err != nil {
			msg += fmt.Sprintf(" (%v)", out.Err)
		}
		errs = append(errs, msg)
	}
	if out.Reason != expect.Reason {
		errs = append(errs, fmt.Sprintf("reason: expected %q, got %q", expect.Reason, out.Reason))
	}
	if expect.Polls != nil && out.Polls != *expect.Polls {
		errs = append(errs, fmt.Sprintf("polls: expected %d, got %d", *expect.Polls, out.Polls))
	}
	if fetches := result.Fetches(); fetches != out.Polls {
		errs = append(errs, fmt.Sprintf("polls: outcome reports %d, poller served %d", out.Polls, fetches))
	}
	if expect.ExitCode != nil && out.ExitCode() != *expect.ExitCode {
		errs = append(errs, fmt.Sprintf("exit code: expected %d, got %d", *expect.ExitCode, out.ExitCode()))
	}
	if expect.Elapsed > 0 && out.Elapsed != expect.Elapsed {
		errs = append(errs, fmt.Sprintf("elapsed: expected %s, got %s", expect.Elapsed, out.Elapsed))
	}
	if expect.Sleeps != nil && !slices.Equal(expect.Sleeps, result.Sleeps) {
		errs = append(errs, fmt.Sprintf("sleeps: expected %v, got %v", expect.Sleeps, result.Sleeps))
	}
	return errs
}
