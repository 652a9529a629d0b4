package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Azure/azure-cli-sub020/internal/ir"
	"github.com/Azure/azure-cli-sub020/internal/query"
)

// Default status conventions. Management-plane resources report their
// lifecycle in provisioningState, either at the top level or under
// properties; some data-plane resources use a plain status field.
var (
	DefaultStatusPaths = []string{"provisioningState", "properties.provisioningState", "status"}
	DefaultSucceeded   = []string{"Succeeded"}
	DefaultInProgress  = []string{"Accepted", "Creating", "Updating", "Deleting", "Provisioning", "Migrating"}
	DefaultFailed      = []string{"Failed", "Canceled"}
)

// StatusClass is the classification of a provisioning-state value.
type StatusClass string

const (
	StatusSucceeded  StatusClass = "succeeded"
	StatusInProgress StatusClass = "in_progress"
	StatusFailed     StatusClass = "failed"
	StatusUnknown    StatusClass = "unknown"
	StatusMissing    StatusClass = "missing"
)

// Conventions tell the evaluator where the provisioning state lives and
// which values are success, progress and failure sentinels. Sentinel
// comparison is case-insensitive.
type Conventions struct {
	StatusPaths []*query.Path
	Succeeded   []string
	InProgress  []string
	Failed      []string
}

// NewConventions compiles the status paths and copies the sentinel lists.
func NewConventions(paths, succeeded, inProgress, failed []string) (Conventions, error) {
	if len(paths) == 0 {
		return Conventions{}, fmt.Errorf("at least one status path is required")
	}
	if len(succeeded) == 0 {
		return Conventions{}, fmt.Errorf("at least one succeeded sentinel is required")
	}

	compiled := make([]*query.Path, 0, len(paths))
	for _, p := range paths {
		cp, err := query.Compile(p)
		if err != nil {
			return Conventions{}, fmt.Errorf("status path: %w", err)
		}
		compiled = append(compiled, cp)
	}

	return Conventions{
		StatusPaths: compiled,
		Succeeded:   append([]string(nil), succeeded...),
		InProgress:  append([]string(nil), inProgress...),
		Failed:      append([]string(nil), failed...),
	}, nil
}

// DefaultConventions returns the provisioningState conventions.
func DefaultConventions() Conventions {
	c, err := NewConventions(DefaultStatusPaths, DefaultSucceeded, DefaultInProgress, DefaultFailed)
	if err != nil {
		panic(err)
	}
	return c
}

// Status extracts the provisioning state from doc.
func (c Conventions) Status(doc any) (string, StatusClass, error) {
	status, ok, err := query.FirstString(doc, c.StatusPaths)
	if err != nil {
		return "", StatusUnknown, err
	}
	if !ok {
		return "", StatusMissing, nil
	}
	return status, c.Classify(status), nil
}

// Classify maps a status value to its class.
func (c Conventions) Classify(status string) StatusClass {
	switch {
	case matchesAny(status, c.Succeeded):
		return StatusSucceeded
	case matchesAny(status, c.Failed):
		return StatusFailed
	case matchesAny(status, c.InProgress):
		return StatusInProgress
	default:
		return StatusUnknown
	}
}

func matchesAny(s string, sentinels []string) bool {
	for _, sentinel := range sentinels {
		if strings.EqualFold(s, sentinel) {
			return true
		}
	}
	return false
}

// SentinelError is returned when the resource reports an explicit failure
// state. A provisioning failure does not self-correct, so waits stop.
type SentinelError struct {
	Status string
	Detail string
}

// Error implements the error interface.
func (e *SentinelError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("resource reported provisioning state %q: %s", e.Status, e.Detail)
	}
	return fmt.Sprintf("resource reported provisioning state %q", e.Status)
}

// EvaluationError is returned when a condition cannot be evaluated, such
// as an invalid path or a type error inside an expression.
type EvaluationError struct {
	Condition ir.Condition
	Err       error
}

// Error implements the error interface.
func (e *EvaluationError) Error() string {
	return fmt.Sprintf("evaluating %s: %v", e.Condition, e.Err)
}

// Unwrap returns the underlying cause.
func (e *EvaluationError) Unwrap() error {
	return e.Err
}

// IsSentinelError reports whether err is (or wraps) a SentinelError.
func IsSentinelError(err error) bool {
	var se *SentinelError
	return errors.As(err, &se)
}

// ValidateCondition checks a condition before any network call is made,
// so malformed paths fail fast as usage errors.
func ValidateCondition(cond ir.Condition) error {
	switch cond.Kind {
	case ir.ConditionCreated, ir.ConditionUpdated, ir.ConditionDeleted:
		return nil
	case ir.ConditionExists, ir.ConditionCustom:
		if _, err := query.Compile(cond.Path); err != nil {
			return err
		}
		return nil
	default:
		return fmt.Errorf("unknown wait condition %q", cond.Kind)
	}
}

// Evaluate decides whether snapshot satisfies cond.
//
// Evaluate is a pure function of its arguments: it performs no I/O, keeps
// no state and returns the same result for the same inputs. The empty
// snapshot stands for an absent resource and only satisfies Deleted.
//
// Errors are *SentinelError (resource reported failure) or
// *EvaluationError (the condition could not be evaluated).
func Evaluate(snapshot ir.Snapshot, cond ir.Condition, conv Conventions) (bool, error) {
	if snapshot.IsEmpty() {
		return cond.Kind == ir.ConditionDeleted, nil
	}
	doc := snapshot.Document()

	switch cond.Kind {
	case ir.ConditionCreated, ir.ConditionUpdated:
		status, class, err := conv.Status(doc)
		if err != nil {
			return false, &EvaluationError{Condition: cond, Err: err}
		}
		switch class {
		case StatusSucceeded:
			return true, nil
		case StatusFailed:
			return false, &SentinelError{Status: status, Detail: failureDetail(doc)}
		default:
			return false, nil
		}

	case ir.ConditionDeleted:
		status, class, err := conv.Status(doc)
		if err != nil {
			return false, &EvaluationError{Condition: cond, Err: err}
		}
		if class == StatusFailed {
			return false, &SentinelError{Status: status, Detail: failureDetail(doc)}
		}
		return false, nil

	case ir.ConditionExists:
		_, ok, err := query.Resolve(doc, cond.Path)
		if err != nil {
			return false, &EvaluationError{Condition: cond, Err: err}
		}
		return ok, nil

	case ir.ConditionCustom:
		v, _, err := query.Resolve(doc, cond.Path)
		if err != nil {
			return false, &EvaluationError{Condition: cond, Err: err}
		}
		if cond.HasExpected {
			return ir.DeepEqual(v, cond.Expected), nil
		}
		return query.Truthy(v), nil

	default:
		return false, &EvaluationError{Condition: cond, Err: fmt.Errorf("unknown condition kind %q", cond.Kind)}
	}
}

// failurePaths locate the error detail resources attach to a failed state.
var failurePaths = []*query.Path{
	query.MustCompile("error"),
	query.MustCompile("properties.error"),
}

// failureDetail renders the resource's own error detail, if any.
func failureDetail(doc any) string {
	for _, p := range failurePaths {
		v, ok, err := p.Resolve(doc)
		if err != nil || !ok {
			continue
		}
		switch detail := v.(type) {
		case string:
			return detail
		case map[string]any:
			code, _ := detail["code"].(string)
			msg, _ := detail["message"].(string)
			switch {
			case code != "" && msg != "":
				return code + ": " + msg
			case code != "":
				return code
			case msg != "":
				return msg
			}
		}
	}
	return ""
}
