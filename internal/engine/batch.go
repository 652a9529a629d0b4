package engine

import (
	"context"
	"sync"

	"github.com/Azure/azure-cli-sub020/internal/ir"
)

// Target is one resource and condition of a batch wait.
type Target struct {
	Handle    ir.Handle
	Condition ir.Condition
}

// WaitAll waits on every target concurrently, one goroutine per target,
// and returns the outcomes in input order.
//
// Targets are independent: one failing does not cancel the others.
// Duplicate handles are not deduplicated; each gets its own wait.
func (w *Waiter) WaitAll(ctx context.Context, targets []Target) []ir.Outcome {
	outcomes := make([]ir.Outcome, len(targets))

	var wg sync.WaitGroup
	for i, t := range targets {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcomes[i] = w.Wait(ctx, t.Handle, t.Condition)
		}()
	}
	wg.Wait()

	return outcomes
}

// AllSatisfied reports whether every outcome is Satisfied.
func AllSatisfied(outcomes []ir.Outcome) bool {
	for _, o := range outcomes {
		if !o.Satisfied() {
			return false
		}
	}
	return true
}

// BatchExitCode folds the outcomes of a batch into one exit code: any
// failure wins over a timeout or cancellation, and all satisfied is ExitOK.
func BatchExitCode(outcomes []ir.Outcome) int {
	code := ir.ExitOK
	for _, o := range outcomes {
		switch c := o.ExitCode(); {
		case c == ir.ExitFailure:
			return c
		case c != ir.ExitOK:
			code = c
		}
	}
	return code
}
