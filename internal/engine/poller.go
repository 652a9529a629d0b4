package engine

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/Azure/azure-cli-sub020/internal/ir"
)

// Poller performs exactly one synchronous fetch of a resource's current
// representation. Implementations return *FetchError for failures so the
// Waiter can tell retryable errors from fatal ones.
type Poller interface {
	Poll(ctx context.Context, h ir.Handle) (ir.Snapshot, error)
}

// PollerFunc adapts a function to the Poller interface.
type PollerFunc func(ctx context.Context, h ir.Handle) (ir.Snapshot, error)

// Poll implements Poller.
func (f PollerFunc) Poll(ctx context.Context, h ir.Handle) (ir.Snapshot, error) {
	return f(ctx, h)
}

// FetchErrorKind classifies a failed fetch.
type FetchErrorKind string

const (
	// FetchNotFound means the resource does not exist. Retrying is pointless.
	FetchNotFound FetchErrorKind = "NotFound"

	// FetchUnauthorized means the caller lacks permission. Fatal.
	FetchUnauthorized FetchErrorKind = "Unauthorized"

	// FetchTransient covers network failures, throttling and 5xx responses.
	// The Waiter retries these until the deadline.
	FetchTransient FetchErrorKind = "Transient"

	// FetchRejected covers other client errors (400, 405, 409, ...).
	// The same request would be rejected again, so it is fatal.
	FetchRejected FetchErrorKind = "Rejected"
)

// FetchError is the error returned by a Poller.
type FetchError struct {
	Kind       FetchErrorKind
	Handle     ir.Handle
	StatusCode int    // HTTP status, 0 when no response was received
	Code       string // service error code, e.g. "ResourceNotFound"
	Err        error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "fetch %s: %s", e.Handle, e.Kind)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d", e.StatusCode)
		if e.Code != "" {
			fmt.Fprintf(&b, ", code %s", e.Code)
		}
		b.WriteString(")")
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// NewFetchError builds a FetchError without an HTTP status.
func NewFetchError(kind FetchErrorKind, h ir.Handle, err error) *FetchError {
	return &FetchError{Kind: kind, Handle: h, Err: err}
}

// KindForStatus maps an HTTP status code of a failed GET to a FetchErrorKind.
func KindForStatus(status int) FetchErrorKind {
	switch {
	case status == http.StatusNotFound:
		return FetchNotFound
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return FetchUnauthorized
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests:
		return FetchTransient
	case status >= 500:
		return FetchTransient
	case status >= 400:
		return FetchRejected
	default:
		// A non-error status reaching the error path means a malformed
		// response; let the next poll try again.
		return FetchTransient
	}
}

// Keyword groups for classifying errors that are not FetchErrors.
var (
	notFoundKeywords = []string{
		"resourcenotfound", "resourcegroupnotfound", "404 not found", "status 404",
	}
	unauthorizedKeywords = []string{
		"authorizationfailed", "unauthorized", "forbidden",
		"access denied", "invalidauthenticationtoken", "status 401", "status 403",
	}
)

// ClassifyError converts any error returned by a Poller into a FetchError.
// FetchErrors pass through. Other errors are classified by message; anything
// unrecognised, including network errors, is Transient.
func ClassifyError(h ir.Handle, err error) *FetchError {
	if err == nil {
		return nil
	}

	var fe *FetchError
	if errors.As(err, &fe) {
		return fe
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return NewFetchError(FetchTransient, h, err)
	}

	lower := strings.ToLower(err.Error())
	if containsAny(lower, notFoundKeywords) {
		return NewFetchError(FetchNotFound, h, err)
	}
	if containsAny(lower, unauthorizedKeywords) {
		return NewFetchError(FetchUnauthorized, h, err)
	}
	return NewFetchError(FetchTransient, h, err)
}

// containsAny returns true if s contains any of the substrings.
func containsAny(s string, substrings []string) bool {
	for _, sub := range substrings {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
