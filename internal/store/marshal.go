package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Azure/azure-cli-sub020/internal/ir"
)

// storedCondition is the journal form of ir.Condition. HasExpected is kept
// explicitly so a null expected value survives the round trip.
type storedCondition struct {
	Kind        string `json:"kind"`
	Path        string `json:"path,omitempty"`
	Expected    any    `json:"expected,omitempty"`
	HasExpected bool   `json:"has_expected,omitempty"`
}

// marshalCondition converts a Condition to canonical JSON TEXT for storage.
// Uses RFC 8785 canonical JSON for deterministic serialization.
func marshalCondition(c ir.Condition) (string, error) {
	m := map[string]any{"kind": string(c.Kind)}
	if c.Path != "" {
		m["path"] = c.Path
	}
	if c.HasExpected {
		expected, err := normalizeValue(c.Expected)
		if err != nil {
			return "", fmt.Errorf("marshal condition: %w", err)
		}
		m["expected"] = expected
		m["has_expected"] = true
	}

	data, err := ir.MarshalCanonical(m)
	if err != nil {
		return "", fmt.Errorf("marshal condition: %w", err)
	}
	return string(data), nil
}

// unmarshalCondition converts JSON TEXT from storage back to a Condition.
func unmarshalCondition(s string) (ir.Condition, error) {
	var sc storedCondition
	if err := json.Unmarshal([]byte(s), &sc); err != nil {
		return ir.Condition{}, fmt.Errorf("unmarshal condition: %w", err)
	}
	return ir.Condition{
		Kind:        ir.ConditionKind(sc.Kind),
		Path:        sc.Path,
		Expected:    sc.Expected,
		HasExpected: sc.HasExpected,
	}, nil
}

// normalizeValue round-trips v through encoding/json so any Go value
// (structs, typed slices) becomes the generic form MarshalCanonical accepts.
func normalizeValue(v any) (any, error) {
	switch v.(type) {
	case nil, bool, string, float64, int, int64, []any, map[string]any:
		return v, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Timestamps are stored as Unix nanoseconds in UTC.
func encodeTime(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func decodeTime(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
