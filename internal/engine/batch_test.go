package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Azure/azure-cli-sub020/internal/ir"
	"github.com/Azure/azure-cli-sub020/internal/testutil"
)

func TestWaitAll_OutcomesInInputOrder(t *testing.T) {
	vault := ir.MustHandle("/subscriptions/s/resourceGroups/rg/providers/Microsoft.KeyVault/vaults/kv")
	vm := ir.MustHandle("/subscriptions/s/resourceGroups/rg/providers/Microsoft.Compute/virtualMachines/vm")
	gone := ir.MustHandle("/subscriptions/s/resourceGroups/rg/providers/Microsoft.Compute/disks/d1")

	pollers := map[string]*testutil.ScriptedPoller{
		vault.ID(): testutil.NewScriptedPoller(
			testutil.Body(`{"properties":{"provisioningState":"Creating"}}`),
			testutil.Body(`{"properties":{"provisioningState":"Succeeded"}}`),
		),
		vm.ID(): testutil.NewScriptedPoller(
			testutil.Body(`{"properties":{"provisioningState":"Failed"}}`),
		),
		gone.ID(): testutil.NewScriptedPoller(
			testutil.Fail(&FetchError{Kind: FetchNotFound, Handle: gone, StatusCode: 404}),
		),
	}
	dispatch := PollerFunc(func(ctx context.Context, h ir.Handle) (ir.Snapshot, error) {
		return pollers[h.ID()].Poll(ctx, h)
	})

	clock := testutil.NewFakeClock(time.Time{})
	w := newTestWaiter(dispatch, testOptions(), clock, WithIDGenerator(NewFixedGenerator("w1", "w2", "w3")))

	outcomes := w.WaitAll(context.Background(), []Target{
		{Handle: vault, Condition: ir.Created()},
		{Handle: vm, Condition: ir.Updated()},
		{Handle: gone, Condition: ir.Deleted()},
	})

	require.Len(t, outcomes, 3)
	assert.Equal(t, vault, outcomes[0].Handle)
	assert.Equal(t, ir.StateSatisfied, outcomes[0].State)
	assert.Equal(t, 2, outcomes[0].Polls)

	assert.Equal(t, vm, outcomes[1].Handle)
	assert.Equal(t, ir.StateFailed, outcomes[1].State)
	assert.Equal(t, ir.ReasonResourceReportedFailure, outcomes[1].Reason)

	assert.Equal(t, gone, outcomes[2].Handle)
	assert.Equal(t, ir.StateSatisfied, outcomes[2].State)

	assert.False(t, AllSatisfied(outcomes))
	assert.ElementsMatch(t, []string{"w1", "w2", "w3"},
		[]string{outcomes[0].WaitID, outcomes[1].WaitID, outcomes[2].WaitID})
}

func TestWaitAll_DuplicateHandlesAreNotDeduplicated(t *testing.T) {
	poller := testutil.NewScriptedPoller(testutil.Body(`{"provisioningState":"Succeeded"}`))
	clock := testutil.NewFakeClock(time.Time{})
	w := newTestWaiter(poller, testOptions(), clock)

	outcomes := w.WaitAll(context.Background(), []Target{
		{Handle: testHandle, Condition: ir.Created()},
		{Handle: testHandle, Condition: ir.Created()},
	})

	assert.True(t, AllSatisfied(outcomes))
	assert.Equal(t, 2, poller.Calls())
}

func TestWaitAll_Empty(t *testing.T) {
	w := newTestWaiter(testutil.NewScriptedPoller(testutil.Body(`{}`)), testOptions(), testutil.NewFakeClock(time.Time{}))
	assert.Empty(t, w.WaitAll(context.Background(), nil))
	assert.True(t, AllSatisfied(nil))
}

func TestBatchExitCode(t *testing.T) {
	satisfied := ir.Outcome{State: ir.StateSatisfied}
	failed := ir.Outcome{State: ir.StateFailed}
	timedOut := ir.Outcome{State: ir.StateTimedOut}
	canceled := ir.Outcome{State: ir.StateCanceled}

	tests := []struct {
		name     string
		outcomes []ir.Outcome
		want     int
	}{
		{"empty", nil, ir.ExitOK},
		{"all satisfied", []ir.Outcome{satisfied, satisfied}, ir.ExitOK},
		{"timeout", []ir.Outcome{satisfied, timedOut}, ir.ExitTimeout},
		{"canceled", []ir.Outcome{canceled, satisfied}, ir.ExitTimeout},
		{"failure beats timeout", []ir.Outcome{timedOut, failed, satisfied}, ir.ExitFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BatchExitCode(tt.outcomes))
		})
	}
}
