package query

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jmespath/go-jmespath"
)

// Path is a compiled path expression.
type Path struct {
	expr     string
	compiled *jmespath.JMESPath
}

// SyntaxError reports an expression that failed to compile.
type SyntaxError struct {
	Expr    string
	Offset  int
	Message string
}

// Error implements the error interface.
func (e *SyntaxError) Error() string {
	if e.Offset >= 0 {
		return fmt.Sprintf("invalid path %q at offset %d: %s", e.Expr, e.Offset, e.Message)
	}
	return fmt.Sprintf("invalid path %q: %s", e.Expr, e.Message)
}

// EvalError reports a runtime failure while resolving a valid path,
// e.g. a function applied to a value of the wrong type.
type EvalError struct {
	Expr string
	Err  error
}

// Error implements the error interface.
func (e *EvalError) Error() string {
	return fmt.Sprintf("resolving %q: %v", e.Expr, e.Err)
}

// Unwrap returns the underlying cause.
func (e *EvalError) Unwrap() error {
	return e.Err
}

// Compile parses expr. Empty expressions are rejected.
func Compile(expr string) (*Path, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, &SyntaxError{Expr: expr, Offset: -1, Message: "expression is empty"}
	}

	compiled, err := jmespath.Compile(expr)
	if err != nil {
		var se jmespath.SyntaxError
		if errors.As(err, &se) {
			return nil, &SyntaxError{Expr: expr, Offset: se.Offset, Message: strings.TrimPrefix(se.Error(), "SyntaxError: ")}
		}
		return nil, &SyntaxError{Expr: expr, Offset: -1, Message: err.Error()}
	}
	return &Path{expr: expr, compiled: compiled}, nil
}

// MustCompile is Compile for constants. Panics on invalid expressions.
func MustCompile(expr string) *Path {
	p, err := Compile(expr)
	if err != nil {
		panic(err)
	}
	return p
}

// String returns the source expression.
func (p *Path) String() string {
	return p.expr
}

// Search evaluates the expression against doc and returns the raw result.
// A path that selects nothing yields nil.
func (p *Path) Search(doc any) (any, error) {
	v, err := p.compiled.Search(doc)
	if err != nil {
		return nil, &EvalError{Expr: p.expr, Err: err}
	}
	return v, nil
}

// Resolve evaluates the path and reports whether it selected a non-null value.
func (p *Path) Resolve(doc any) (any, bool, error) {
	v, err := p.Search(doc)
	if err != nil {
		return nil, false, err
	}
	return v, v != nil, nil
}

// Resolve compiles expr and resolves it against doc in one step.
func Resolve(doc any, expr string) (any, bool, error) {
	p, err := Compile(expr)
	if err != nil {
		return nil, false, err
	}
	return p.Resolve(doc)
}

// FirstString resolves each path in order and returns the first string
// value found. Paths that select non-strings are skipped.
func FirstString(doc any, paths []*Path) (string, bool, error) {
	for _, p := range paths {
		v, ok, err := p.Resolve(doc)
		if err != nil {
			return "", false, err
		}
		if !ok {
			continue
		}
		if s, isString := v.(string); isString {
			return s, true, nil
		}
	}
	return "", false, nil
}

// Truthy applies JMESPath truthiness: false, null, "", [] and {} are false,
// everything else (including 0) is true.
func Truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != ""
	case []any:
		return len(val) > 0
	case map[string]any:
		return len(val) > 0
	default:
		return true
	}
}
