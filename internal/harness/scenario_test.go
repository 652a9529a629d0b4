package harness

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Azure/azure-cli-sub020/internal/ir"
)

func TestParseScenario_Valid(t *testing.T) {
	data := []byte(`
name: example
description: "example scenario"
condition:
  exists: properties.vaultUri
timeout: 2m
interval: 1s
max_interval: 4s
multiplier: 1.5
max_polls: 9
fetch_duration: 500ms
cancel_after_polls: 3
responses:
  - body: { properties: {} }
    repeat: 2
  - status_code: 429
  - error: "connection refused"
expect:
  outcome: Canceled
  polls: 3
  exit_code: 3
  sleeps: [1s, 1500ms]
assertions:
  - type: trace_count
    event: fetch
    count: 3
`)

	s, err := ParseScenario(data)
	require.NoError(t, err)

	assert.Equal(t, "example", s.Name)
	assert.Equal(t, 2*time.Minute, s.Timeout)
	assert.Equal(t, 500*time.Millisecond, s.FetchDuration)
	assert.Equal(t, 1.5, s.Multiplier)
	assert.Len(t, s.Responses, 3)
	assert.Equal(t, ir.StateCanceled, s.Expect.Outcome)
	assert.Equal(t, []time.Duration{time.Second, 1500 * time.Millisecond}, s.Expect.Sleeps)

	cond, err := s.Condition.Build()
	require.NoError(t, err)
	assert.Equal(t, ir.Exists("properties.vaultUri"), cond)

	opts := s.options()
	assert.Equal(t, 2*time.Minute, opts.Timeout)
	assert.Equal(t, 9, opts.MaxPolls)
	assert.Equal(t, time.Second, opts.Backoff.Interval)
	assert.Equal(t, 4*time.Second, opts.Backoff.MaxInterval)
	assert.Zero(t, opts.Backoff.Jitter)
}

func TestParseScenario_Defaults(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: defaults
description: "defaults"
condition: { deleted: true }
responses: [ { status_code: 404 } ]
expect: { outcome: Satisfied }
`))
	require.NoError(t, err)

	opts := s.options()
	assert.Equal(t, DefaultTimeout, opts.Timeout)
	assert.Equal(t, DefaultInterval, opts.Backoff.Interval)
	assert.Equal(t, DefaultMaxInterval, opts.Backoff.MaxInterval)
	assert.Equal(t, DefaultMultiplier, opts.Backoff.Multiplier)
	assert.Equal(t, DefaultHandle, s.handleID())
}

func TestParseScenario_Errors(t *testing.T) {
	base := `
name: n
description: d
condition: { created: true }
responses: [ { body: { status: Succeeded } } ]
expect: { outcome: Satisfied }
`
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"unknown field", base + "assertion: []\n", "field assertion not found"},
		{"missing name", `
description: d
condition: { created: true }
responses: [ { body: {} } ]
expect: { outcome: Satisfied }
`, "name is required"},
		{"missing description", `
name: n
condition: { created: true }
responses: [ { body: {} } ]
expect: { outcome: Satisfied }
`, "description is required"},
		{"no condition", `
name: n
description: d
responses: [ { body: {} } ]
expect: { outcome: Satisfied }
`, "exactly one of"},
		{"two conditions", `
name: n
description: d
condition: { created: true, deleted: true }
responses: [ { body: {} } ]
expect: { outcome: Satisfied }
`, "exactly one of"},
		{"no responses", `
name: n
description: d
condition: { created: true }
expect: { outcome: Satisfied }
`, "responses list is required"},
		{"body missing", `
name: n
description: d
condition: { created: true }
responses: [ { repeat: 2 } ]
expect: { outcome: Satisfied }
`, "body is required"},
		{"error with status", `
name: n
description: d
condition: { created: true }
responses: [ { error: boom, status_code: 500 } ]
expect: { outcome: Satisfied }
`, "cannot be combined"},
		{"bad status", `
name: n
description: d
condition: { created: true }
responses: [ { status_code: 1000 } ]
expect: { outcome: Satisfied }
`, "not an HTTP status"},
		{"non-terminal outcome", `
name: n
description: d
condition: { created: true }
responses: [ { body: {} } ]
expect: { outcome: Polling }
`, "terminal state"},
		{"bad handle", base + "handle: not-a-path\n", "handle"},
		{"unknown assertion", base + "assertions: [ { type: nope } ]\n", "unknown assertion type"},
		{"trace_contains without state", base + "assertions: [ { type: trace_contains } ]\n", "state is required"},
		{"trace_order without states", base + "assertions: [ { type: trace_order } ]\n", "states list is required"},
		{"trace_count bad event", base + "assertions: [ { type: trace_count, event: poll } ]\n", "unknown event"},
		{"final_state without table", base + "assertions: [ { type: final_state, expect: { a: 1 } } ]\n", "table is required"},
		{"final_state without expect", base + "assertions: [ { type: final_state, table: transitions } ]\n", "expect is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadScenario_FileNotFound(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenarioDir(t *testing.T) {
	dir := t.TempDir()
	write := func(name, scenarioName string) {
		t.Helper()
		content := "name: " + scenarioName + `
description: d
condition: { created: true }
responses: [ { body: { status: Succeeded } } ]
expect: { outcome: Satisfied }
`
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}

	_, err := LoadScenarioDir(dir)
	assert.ErrorContains(t, err, "no scenarios found")

	write("b.yaml", "second")
	write("a.yaml", "first")
	scenarios, err := LoadScenarioDir(dir)
	require.NoError(t, err)
	require.Len(t, scenarios, 2)
	assert.Equal(t, "first", scenarios[0].Name)
	assert.Equal(t, "second", scenarios[1].Name)

	write("c.yaml", "first")
	_, err = LoadScenarioDir(dir)
	assert.ErrorContains(t, err, "already used by a.yaml")
}

func TestConditionSpec_Build(t *testing.T) {
	root := ""
	path := "properties.vaultUri"

	tests := []struct {
		name string
		spec ConditionSpec
		want ir.Condition
	}{
		{"created", ConditionSpec{Created: true}, ir.Created()},
		{"updated", ConditionSpec{Updated: true}, ir.Updated()},
		{"deleted", ConditionSpec{Deleted: true}, ir.Deleted()},
		{"exists root", ConditionSpec{Exists: &root}, ir.Exists("")},
		{"exists path", ConditionSpec{Exists: &path}, ir.Exists(path)},
		{"custom", ConditionSpec{Custom: "properties.count=3"}, ir.Custom("properties.count", 3.0)},
		{"custom expr", ConditionSpec{Custom: "length(tags) > `0`"}, ir.CustomExpr("length(tags) > `0`")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.spec.Build()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
