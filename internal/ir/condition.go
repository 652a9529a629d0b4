package ir

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ConditionKind tags the WaitCondition variant.
type ConditionKind string

const (
	ConditionCreated ConditionKind = "created"
	ConditionUpdated ConditionKind = "updated"
	ConditionDeleted ConditionKind = "deleted"
	ConditionExists  ConditionKind = "exists"
	ConditionCustom  ConditionKind = "custom"
)

// RootPath is the path expression selecting the whole document.
const RootPath = "@"

// Condition decides when a wait terminates. It is immutable and built once
// per wait invocation from CLI flags.
//
// Path is used by Exists and Custom. For Custom, Expected holds the value
// the resolved path must deep-equal; when HasExpected is false the path is
// a predicate expression that must evaluate to a truthy value.
type Condition struct {
	Kind        ConditionKind `json:"kind"`
	Path        string        `json:"path,omitempty"`
	Expected    any           `json:"expected,omitempty"`
	HasExpected bool          `json:"-"`
}

// Created waits for a successful provisioning state after a create.
func Created() Condition { return Condition{Kind: ConditionCreated} }

// Updated waits for a successful provisioning state after an update.
func Updated() Condition { return Condition{Kind: ConditionUpdated} }

// Deleted waits for the resource to disappear.
func Deleted() Condition { return Condition{Kind: ConditionDeleted} }

// Exists waits for path to resolve to a non-null value. An empty path
// means the resource itself exists.
func Exists(path string) Condition {
	if strings.TrimSpace(path) == "" {
		path = RootPath
	}
	return Condition{Kind: ConditionExists, Path: path}
}

// Custom waits for the value at path to deep-equal expected.
func Custom(path string, expected any) Condition {
	return Condition{Kind: ConditionCustom, Path: path, Expected: expected, HasExpected: true}
}

// CustomExpr waits for a predicate expression to become truthy.
func CustomExpr(expr string) Condition {
	return Condition{Kind: ConditionCustom, Path: expr}
}

// ParseCustom parses the --custom flag value.
//
// "path=value" compares the value at path with value; value is decoded as
// JSON when it is valid JSON ("5", "true", "{\"a\":1}", "\"x\"") and taken as a
// literal string otherwise, so the value may itself contain operators
// ("tags.range=a>=b"). An argument without '=', or whose first '=' is part
// of ==, !=, <= or >=, is a predicate expression.
func ParseCustom(arg string) (Condition, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return Condition{}, fmt.Errorf("custom condition is empty")
	}

	path, raw, found := strings.Cut(arg, "=")
	if !found || isComparison(path, raw) {
		return CustomExpr(arg), nil
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return Condition{}, fmt.Errorf("custom condition %q has an empty path", arg)
	}
	return Custom(path, parseExpected(strings.TrimSpace(raw))), nil
}

// isComparison reports whether the first '=' of an argument, split into
// left and right, belongs to a JMESPath comparison operator.
func isComparison(left, right string) bool {
	if strings.HasPrefix(right, "=") {
		return true
	}
	return strings.HasSuffix(left, "!") || strings.HasSuffix(left, "<") || strings.HasSuffix(left, ">")
}

// parseExpected decodes raw as JSON, falling back to the literal string.
func parseExpected(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err == nil {
		return v
	}
	return raw
}

// String renders the condition the way it was given on the command line.
func (c Condition) String() string {
	switch c.Kind {
	case ConditionExists:
		if c.Path == RootPath {
			return "exists"
		}
		return "exists " + c.Path
	case ConditionCustom:
		if !c.HasExpected {
			return "custom " + c.Path
		}
		expected, err := json.Marshal(c.Expected)
		if err != nil {
			return fmt.Sprintf("custom %s=%v", c.Path, c.Expected)
		}
		return fmt.Sprintf("custom %s=%s", c.Path, expected)
	default:
		return string(c.Kind)
	}
}

// ConditionForMethod returns the condition implied by a mutating HTTP method:
// PUT and PATCH wait for Created/Updated, DELETE waits for Deleted.
func ConditionForMethod(method string) (Condition, error) {
	switch strings.ToUpper(method) {
	case "PUT":
		return Created(), nil
	case "PATCH":
		return Updated(), nil
	case "DELETE":
		return Deleted(), nil
	default:
		return Condition{}, fmt.Errorf("no default wait condition for method %q", method)
	}
}
