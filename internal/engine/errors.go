package engine

import (
	"errors"
	"fmt"

	"github.com/Azure/azure-cli-sub020/internal/ir"
)

// WaitError is the error carried by a Failed outcome.
//
// Reason identifies the failure category; Err is the underlying cause
// (a *FetchError, *SentinelError or *EvaluationError).
type WaitError struct {
	// Reason identifies the failure category.
	Reason ir.Reason

	// Handle identifies the resource being waited on.
	Handle ir.Handle

	// Message is a human-readable description.
	Message string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *WaitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Reason, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Message)
}

// Unwrap returns the underlying cause.
func (e *WaitError) Unwrap() error {
	return e.Err
}

// ReasonOf returns the failure reason carried by err, or ReasonNone.
// Uses errors.As to handle wrapped errors.
func ReasonOf(err error) ir.Reason {
	var we *WaitError
	if errors.As(err, &we) {
		return we.Reason
	}
	return ir.ReasonNone
}

// IsNotFoundUnexpectedly reports whether the resource vanished during a
// wait that expected it to exist.
func IsNotFoundUnexpectedly(err error) bool {
	return ReasonOf(err) == ir.ReasonResourceNotFoundUnexpectedly
}

// IsUnauthorized reports whether the wait failed on a permission error.
func IsUnauthorized(err error) bool {
	return ReasonOf(err) == ir.ReasonUnauthorized
}

// IsResourceFailure reports whether the resource reported a failed
// provisioning state.
func IsResourceFailure(err error) bool {
	return ReasonOf(err) == ir.ReasonResourceReportedFailure
}

func newNotFoundError(h ir.Handle, cond ir.Condition, cause error) *WaitError {
	return &WaitError{
		Reason:  ir.ReasonResourceNotFoundUnexpectedly,
		Handle:  h,
		Message: fmt.Sprintf("resource %s not found while waiting for %s", h, cond),
		Err:     cause,
	}
}

func newUnauthorizedError(h ir.Handle, cause error) *WaitError {
	return &WaitError{
		Reason:  ir.ReasonUnauthorized,
		Handle:  h,
		Message: fmt.Sprintf("not authorized to read %s", h),
		Err:     cause,
	}
}

func newRejectedError(h ir.Handle, cause error) *WaitError {
	return &WaitError{
		Reason:  ir.ReasonRequestRejected,
		Handle:  h,
		Message: fmt.Sprintf("status request for %s was rejected", h),
		Err:     cause,
	}
}

func newResourceFailureError(h ir.Handle, cause error) *WaitError {
	return &WaitError{
		Reason:  ir.ReasonResourceReportedFailure,
		Handle:  h,
		Message: "resource reported a failed provisioning state",
		Err:     cause,
	}
}

func newEvaluatorError(h ir.Handle, cause error) *WaitError {
	return &WaitError{
		Reason:  ir.ReasonEvaluatorError,
		Handle:  h,
		Message: "wait condition could not be evaluated",
		Err:     cause,
	}
}
