package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/Azure/azure-cli-sub020/internal/ir"
)

// TraceSnapshot captures the trace and outcome of a scenario execution.
// It is serialized as canonical JSON for deterministic comparison.
type TraceSnapshot struct {
	ScenarioName string
	WaitID       string
	Outcome      ir.Outcome
	Trace        []TraceEvent
}

// toCanonicalMap converts a TraceSnapshot to the generic form
// ir.MarshalCanonical accepts. Durations are rendered as strings.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	traceList := make([]any, len(s.Trace))
	for i, event := range s.Trace {
		eventMap := map[string]any{"type": event.Type}
		switch event.Type {
		case EventFetch:
			eventMap["call"] = event.Call
			eventMap["status"] = event.StatusCode
		case EventTransition:
			eventMap["seq"] = event.Seq
			eventMap["to"] = string(event.To)
			eventMap["poll"] = event.Poll
			eventMap["elapsed"] = event.Elapsed.String()
			if event.From != "" {
				eventMap["from"] = string(event.From)
			}
			if event.Reason != ir.ReasonNone {
				eventMap["reason"] = string(event.Reason)
			}
		}
		traceList[i] = eventMap
	}

	outcome := map[string]any{
		"state":     string(s.Outcome.State),
		"polls":     s.Outcome.Polls,
		"elapsed":   s.Outcome.Elapsed.String(),
		"exit_code": s.Outcome.ExitCode(),
	}
	if s.Outcome.Reason != ir.ReasonNone {
		outcome["reason"] = string(s.Outcome.Reason)
	}

	return map[string]any{
		"scenario_name": s.ScenarioName,
		"wait_id":       s.WaitID,
		"outcome":       outcome,
		"trace":         traceList,
	}
}

// RunWithGolden executes a scenario and compares the trace against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns the result so callers can check Pass; returns an error if the
// scenario could not be executed. A trace mismatch fails t via goldie.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares the given result's trace against a golden file.
// This is useful when you've already run a scenario and want to compare
// the result against a golden file without re-running.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	snapshot := TraceSnapshot{
		ScenarioName: scenarioName,
		WaitID:       result.Outcome.WaitID,
		Outcome:      result.Outcome,
		Trace:        result.Trace,
	}

	traceJSON, err := ir.MarshalCanonical(snapshot.toCanonicalMap())
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)

	return nil
}
