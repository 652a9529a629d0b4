package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Azure/azure-cli-sub020/internal/ir"
	"github.com/Azure/azure-cli-sub020/internal/testutil"
)

func TestEvaluate(t *testing.T) {
	conv := DefaultConventions()

	tests := []struct {
		name     string
		body     string
		cond     ir.Condition
		want     bool
		sentinel bool
	}{
		{"created succeeded top level", `{"provisioningState":"Succeeded"}`, ir.Created(), true, false},
		{"created succeeded nested", `{"properties":{"provisioningState":"Succeeded"}}`, ir.Created(), true, false},
		{"created succeeded status field", `{"status":"Succeeded"}`, ir.Created(), true, false},
		{"created case insensitive", `{"provisioningState":"succeeded"}`, ir.Created(), true, false},
		{"created in progress", `{"provisioningState":"Creating"}`, ir.Created(), false, false},
		{"created accepted", `{"properties":{"provisioningState":"Accepted"}}`, ir.Created(), false, false},
		{"created unknown status", `{"provisioningState":"Warming"}`, ir.Created(), false, false},
		{"created no status", `{"name":"kv-1"}`, ir.Created(), false, false},
		{"created failed", `{"provisioningState":"Failed"}`, ir.Created(), false, true},
		{"updated canceled", `{"properties":{"provisioningState":"Canceled"}}`, ir.Updated(), false, true},
		{"updated updating", `{"properties":{"provisioningState":"Updating"}}`, ir.Updated(), false, false},
		{"updated succeeded", `{"properties":{"provisioningState":"Succeeded"}}`, ir.Updated(), true, false},
		{"deleted still present", `{"provisioningState":"Deleting"}`, ir.Deleted(), false, false},
		{"deleted succeeded still present", `{"provisioningState":"Succeeded"}`, ir.Deleted(), false, false},
		{"deleted failed", `{"provisioningState":"Failed"}`, ir.Deleted(), false, true},
		{"exists root", `{"name":"kv-1"}`, ir.Exists(""), true, false},
		{"exists nested", `{"properties":{"vaultUri":"https://kv"}}`, ir.Exists("properties.vaultUri"), true, false},
		{"exists null", `{"properties":{"vaultUri":null}}`, ir.Exists("properties.vaultUri"), false, false},
		{"exists missing", `{"properties":{}}`, ir.Exists("properties.vaultUri"), false, false},
		{"exists false value", `{"properties":{"enabled":false}}`, ir.Exists("properties.enabled"), true, false},
		{"custom string", `{"properties":{"state":"Approved"}}`, ir.Custom("properties.state", "Approved"), true, false},
		{"custom string mismatch", `{"properties":{"state":"Pending"}}`, ir.Custom("properties.state", "Approved"), false, false},
		{"custom number", `{"properties":{"count":3}}`, ir.Custom("properties.count", 3), true, false},
		{"custom number float", `{"properties":{"count":3.0}}`, ir.Custom("properties.count", 3.0), true, false},
		{"custom object key order", `{"tags":{"b":"2","a":"1"}}`, ir.Custom("tags", map[string]any{"a": "1", "b": "2"}), true, false},
		{"custom array", `{"zones":["1","2"]}`, ir.Custom("zones", []any{"1", "2"}), true, false},
		{"custom array order matters", `{"zones":["2","1"]}`, ir.Custom("zones", []any{"1", "2"}), false, false},
		{"custom null", `{"properties":{"error":null}}`, ir.Custom("properties.error", nil), true, false},
		{"custom missing vs null", `{"properties":{}}`, ir.Custom("properties.error", nil), true, false},
		{"custom expr true", `{"properties":{"sku":{"name":"premium"}}}`, ir.CustomExpr("properties.sku.name == 'premium'"), true, false},
		{"custom expr false", `{"properties":{"sku":{"name":"standard"}}}`, ir.CustomExpr("properties.sku.name == 'premium'"), false, false},
		{"custom expr truthy list", `{"connections":[{"id":"c1"}]}`, ir.CustomExpr("connections"), true, false},
		{"custom expr empty list", `{"connections":[]}`, ir.CustomExpr("connections"), false, false},
		{"custom ignores failed status", `{"provisioningState":"Failed","state":"x"}`, ir.Custom("state", "x"), true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Evaluate(ir.MustSnapshot(tt.body), tt.cond, conv)
			if tt.sentinel {
				require.Error(t, err)
				assert.True(t, IsSentinelError(err))
				assert.False(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluate_EmptySnapshotOnlySatisfiesDeleted(t *testing.T) {
	conv := DefaultConventions()
	empty := ir.Snapshot{}

	for _, cond := range []ir.Condition{ir.Created(), ir.Updated(), ir.Exists(""), ir.Custom("a", nil), ir.CustomExpr("a")} {
		got, err := Evaluate(empty, cond, conv)
		require.NoError(t, err)
		assert.False(t, got, cond.String())
	}

	got, err := Evaluate(empty, ir.Deleted(), conv)
	require.NoError(t, err)
	assert.True(t, got)
}

func TestEvaluate_IsPure(t *testing.T) {
	poller := testutil.NewScriptedPoller(testutil.Body(`{}`))
	_ = poller // never handed to Evaluate: evaluation cannot reach the network
	conv := DefaultConventions()

	snapshots := []ir.Snapshot{
		ir.MustSnapshot(`{"provisioningState":"Creating"}`),
		ir.MustSnapshot(`{"provisioningState":"Succeeded","properties":{"n":1}}`),
		ir.MustSnapshot(`{"provisioningState":"Failed","error":{"code":"Conflict","message":"busy"}}`),
		{},
	}
	conditions := []ir.Condition{
		ir.Created(), ir.Updated(), ir.Deleted(), ir.Exists("properties.n"),
		ir.Custom("properties.n", 1), ir.CustomExpr("properties.n == `1`"),
	}

	for _, snap := range snapshots {
		before := snap.Bytes()
		for _, cond := range conditions {
			got1, err1 := Evaluate(snap, cond, conv)
			got2, err2 := Evaluate(snap, cond, conv)
			assert.Equal(t, got1, got2)
			assert.Equal(t, err1, err2)
		}
		assert.Equal(t, before, snap.Bytes(), "snapshot unchanged")
	}
	assert.Zero(t, poller.Calls())
}

func TestEvaluate_SentinelCarriesDetail(t *testing.T) {
	conv := DefaultConventions()

	tests := []struct {
		body   string
		detail string
	}{
		{`{"status":"Failed","error":"QuotaExceeded"}`, "QuotaExceeded"},
		{`{"provisioningState":"Failed","error":{"code":"Conflict","message":"busy"}}`, "Conflict: busy"},
		{`{"properties":{"provisioningState":"Failed","error":{"message":"disk full"}}}`, "disk full"},
		{`{"provisioningState":"Canceled"}`, ""},
	}

	for _, tt := range tests {
		_, err := Evaluate(ir.MustSnapshot(tt.body), ir.Created(), conv)
		var se *SentinelError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, tt.detail, se.Detail)
	}
}

func TestEvaluate_EvaluationError(t *testing.T) {
	_, err := Evaluate(ir.MustSnapshot(`{"a":1}`), ir.Exists("a.[oops"), DefaultConventions())

	var ee *EvaluationError
	require.ErrorAs(t, err, &ee)
	assert.False(t, IsSentinelError(err))
}

func TestConventions_Custom(t *testing.T) {
	conv, err := NewConventions(
		[]string{"properties.state"},
		[]string{"Ready"},
		[]string{"Starting"},
		[]string{"Broken"},
	)
	require.NoError(t, err)

	ok, err := Evaluate(ir.MustSnapshot(`{"properties":{"state":"READY"}}`), ir.Created(), conv)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = Evaluate(ir.MustSnapshot(`{"properties":{"state":"Broken"}}`), ir.Created(), conv)
	assert.True(t, IsSentinelError(err))

	// The default sentinel is not special under custom conventions.
	ok, err = Evaluate(ir.MustSnapshot(`{"properties":{"state":"Succeeded"}}`), ir.Created(), conv)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNewConventions_Validation(t *testing.T) {
	_, err := NewConventions(nil, []string{"Succeeded"}, nil, nil)
	assert.Error(t, err)

	_, err = NewConventions([]string{"status"}, nil, nil, nil)
	assert.Error(t, err)

	_, err = NewConventions([]string{"status.["}, []string{"Succeeded"}, nil, nil)
	assert.Error(t, err)
}

func TestConventions_Classify(t *testing.T) {
	conv := DefaultConventions()

	assert.Equal(t, StatusSucceeded, conv.Classify("SUCCEEDED"))
	assert.Equal(t, StatusFailed, conv.Classify("failed"))
	assert.Equal(t, StatusFailed, conv.Classify("Canceled"))
	assert.Equal(t, StatusInProgress, conv.Classify("Deleting"))
	assert.Equal(t, StatusUnknown, conv.Classify("Running"))

	_, class, err := conv.Status(map[string]any{"name": "x"})
	require.NoError(t, err)
	assert.Equal(t, StatusMissing, class)
}

func TestValidateCondition(t *testing.T) {
	assert.NoError(t, ValidateCondition(ir.Created()))
	assert.NoError(t, ValidateCondition(ir.Exists("")))
	assert.NoError(t, ValidateCondition(ir.CustomExpr("length(items) > `2`")))
	assert.Error(t, ValidateCondition(ir.Custom("", "x")))
	assert.Error(t, ValidateCondition(ir.Exists("a.[")))
	assert.Error(t, ValidateCondition(ir.Condition{Kind: "bogus"}))
}
