package harness

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Azure/azure-cli-sub020/internal/engine"
	"github.com/Azure/azure-cli-sub020/internal/ir"
	"github.com/Azure/azure-cli-sub020/internal/testutil"
)

// Scenario defaults. Jitter is always zero so traces are reproducible.
const (
	DefaultHandle      = "/subscriptions/00000000-0000-0000-0000-000000000000/resourceGroups/rg/providers/Microsoft.KeyVault/vaults/scenario"
	DefaultTimeout     = 60 * time.Second
	DefaultInterval    = 5 * time.Second
	DefaultMaxInterval = 10 * time.Second
	DefaultMultiplier  = 2.0
)

// Scenario defines one wait and the outcome it must reach.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Handle is the resource ID waited on. Defaults to DefaultHandle.
	Handle string `yaml:"handle,omitempty"`

	// WaitID is the fixed wait ID. Defaults to "test-wait-default".
	WaitID string `yaml:"wait_id,omitempty"`

	// Condition is the wait condition; exactly one field must be set.
	Condition ConditionSpec `yaml:"condition"`

	Timeout     time.Duration `yaml:"timeout,omitempty"`
	Interval    time.Duration `yaml:"interval,omitempty"`
	MaxInterval time.Duration `yaml:"max_interval,omitempty"`
	Multiplier  float64       `yaml:"multiplier,omitempty"`
	MaxPolls    int           `yaml:"max_polls,omitempty"`

	// FetchDuration is how far the fake clock advances during each fetch.
	FetchDuration time.Duration `yaml:"fetch_duration,omitempty"`

	// CancelAfterPolls cancels the wait context once the given poll returns.
	CancelAfterPolls int `yaml:"cancel_after_polls,omitempty"`

	// Responses are served one per poll; the last one repeats.
	Responses []ResponseSpec `yaml:"responses"`

	// Expect is the required outcome.
	Expect Expectation `yaml:"expect"`

	// Assertions validate the trace and the journal.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// ConditionSpec is the YAML form of the wait condition flags.
type ConditionSpec struct {
	Created bool    `yaml:"created,omitempty"`
	Updated bool    `yaml:"updated,omitempty"`
	Deleted bool    `yaml:"deleted,omitempty"`
	Exists  *string `yaml:"exists,omitempty"`
	Custom  string  `yaml:"custom,omitempty"`
}

// ResponseSpec scripts the result of one or more polls.
type ResponseSpec struct {
	// StatusCode is the HTTP status. Defaults to 200.
	StatusCode int `yaml:"status_code,omitempty"`

	// Body is the resource document returned with a 200.
	Body any `yaml:"body,omitempty"`

	// Error simulates a transport failure with the given message.
	Error string `yaml:"error,omitempty"`

	// Repeat is the number of consecutive polls served. Defaults to 1.
	Repeat int `yaml:"repeat,omitempty"`
}

// Expectation is the outcome the wait must reach.
type Expectation struct {
	Outcome  ir.State        `yaml:"outcome"`
	Reason   ir.Reason       `yaml:"reason,omitempty"`
	Polls    *int            `yaml:"polls,omitempty"`
	ExitCode *int            `yaml:"exit_code,omitempty"`
	Elapsed  time.Duration   `yaml:"elapsed,omitempty"`
	Sleeps   []time.Duration `yaml:"sleeps,omitempty"`
}

// Assertion validates the trace or the journal.
type Assertion struct {
	// Type is one of trace_contains, trace_order, trace_count, final_state.
	Type string `yaml:"type"`

	// State and Reason select transitions (trace_contains, trace_count).
	State  ir.State  `yaml:"state,omitempty"`
	Reason ir.Reason `yaml:"reason,omitempty"`

	// Event selects the event type for trace_count ("transition" or "fetch").
	Event string `yaml:"event,omitempty"`

	// Count is the expected number of occurrences (trace_count).
	Count int `yaml:"count,omitempty"`

	// States is the expected order of first entry (trace_order).
	States []ir.State `yaml:"states,omitempty"`

	// Table, Where and Expect query the journal (final_state).
	Table  string         `yaml:"table,omitempty"`
	Where  map[string]any `yaml:"where,omitempty"`
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML with strict field validation.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// LoadScenarioDir loads every *.yaml scenario in dir, sorted by file name.
func LoadScenarioDir(dir string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no scenarios found in %s", dir)
	}
	sort.Strings(paths)

	scenarios := make([]*Scenario, 0, len(paths))
	seen := make(map[string]string, len(paths))
	for _, p := range paths {
		s, err := LoadScenario(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(p), err)
		}
		if prev, dup := seen[s.Name]; dup {
			return nil, fmt.Errorf("%s: scenario name %q already used by %s", filepath.Base(p), s.Name, prev)
		}
		seen[s.Name] = filepath.Base(p)
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if _, err := ir.NewHandle(s.handleID()); err != nil {
		return fmt.Errorf("handle: %w", err)
	}
	if _, err := s.Condition.Build(); err != nil {
		return fmt.Errorf("condition: %w", err)
	}
	if len(s.Responses) == 0 {
		return fmt.Errorf("responses list is required and must be non-empty")
	}
	for i, r := range s.Responses {
		if err := validateResponse(r); err != nil {
			return fmt.Errorf("responses[%d]: %w", i, err)
		}
	}
	if s.CancelAfterPolls < 0 {
		return fmt.Errorf("cancel_after_polls must be non-negative")
	}

	if !s.Expect.Outcome.IsTerminal() {
		return fmt.Errorf("expect.outcome must be a terminal state, got %q", s.Expect.Outcome)
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

func validateResponse(r ResponseSpec) error {
	if r.Repeat < 0 {
		return fmt.Errorf("repeat must be non-negative")
	}
	if r.Error != "" && (r.Body != nil || r.StatusCode != 0) {
		return fmt.Errorf("error cannot be combined with status_code or body")
	}
	code := r.statusCode()
	if code < 100 || code > 599 {
		return fmt.Errorf("status_code %d is not an HTTP status", code)
	}
	if code == http.StatusOK && r.Error == "" {
		if _, err := r.snapshot(); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.State == "" {
			return fmt.Errorf("assertions[%d]: state is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.States) == 0 {
			return fmt.Errorf("assertions[%d]: states list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Event != "" && a.Event != EventFetch && a.Event != EventTransition {
			return fmt.Errorf("assertions[%d]: unknown event %q for trace_count", index, a.Event)
		}
		if a.Event != EventFetch && a.State == "" {
			return fmt.Errorf("assertions[%d]: state is required for trace_count of transitions", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

// Build converts the scenario condition into a Condition. Exactly one field must be set.
func (c ConditionSpec) Build() (ir.Condition, error) {
	var conds []ir.Condition
	if c.Created {
		conds = append(conds, ir.Created())
	}
	if c.Updated {
		conds = append(conds, ir.Updated())
	}
	if c.Deleted {
		conds = append(conds, ir.Deleted())
	}
	if c.Exists != nil {
		conds = append(conds, ir.Exists(*c.Exists))
	}
	if c.Custom != "" {
		cond, err := ir.ParseCustom(c.Custom)
		if err != nil {
			return ir.Condition{}, err
		}
		conds = append(conds, cond)
	}

	if len(conds) != 1 {
		return ir.Condition{}, fmt.Errorf("exactly one of created, updated, deleted, exists, custom is required")
	}
	return conds[0], nil
}

func (s *Scenario) handleID() string {
	if s.Handle == "" {
		return DefaultHandle
	}
	return s.Handle
}

// options builds the Waiter options of the scenario.
func (s *Scenario) options() engine.Options {
	opts := engine.DefaultOptions()
	opts.Timeout = orDefault(s.Timeout, DefaultTimeout)
	opts.MaxPolls = s.MaxPolls
	opts.Backoff = engine.BackoffPolicy{
		Interval:    orDefault(s.Interval, DefaultInterval),
		MaxInterval: orDefault(s.MaxInterval, DefaultMaxInterval),
		Multiplier:  DefaultMultiplier,
		Jitter:      0,
	}
	if s.Multiplier > 0 {
		opts.Backoff.Multiplier = s.Multiplier
	}
	return opts
}

func orDefault(d, def time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return def
}

// responses converts the script into poller responses for h.
func (s *Scenario) responses(h ir.Handle) ([]testutil.Response, error) {
	out := make([]testutil.Response, 0, len(s.Responses))
	for i, r := range s.Responses {
		resp, err := r.response(h)
		if err != nil {
			return nil, fmt.Errorf("responses[%d]: %w", i, err)
		}
		out = append(out, resp)
	}
	return out, nil
}

func (r ResponseSpec) statusCode() int {
	if r.StatusCode == 0 {
		return http.StatusOK
	}
	return r.StatusCode
}

func (r ResponseSpec) response(h ir.Handle) (testutil.Response, error) {
	resp := testutil.Response{Repeat: r.Repeat}
	switch code := r.statusCode(); {
	case r.Error != "":
		resp.Err = errors.New(r.Error)
	case code == http.StatusOK:
		snap, err := r.snapshot()
		if err != nil {
			return testutil.Response{}, err
		}
		resp.Snapshot = snap
	default:
		resp.Err = &engine.FetchError{
			Kind:       engine.KindForStatus(code),
			Handle:     h,
			StatusCode: code,
			Err:        errors.New(http.StatusText(code)),
		}
	}
	return resp, nil
}

func (r ResponseSpec) snapshot() (ir.Snapshot, error) {
	if r.Body == nil {
		return ir.Snapshot{}, fmt.Errorf("body is required for status 200")
	}
	data, err := json.Marshal(r.Body)
	if err != nil {
		return ir.Snapshot{}, fmt.Errorf("body: %w", err)
	}
	return ir.ParseSnapshot(data)
}
