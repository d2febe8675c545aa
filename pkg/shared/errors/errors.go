// Package errors provides a uniform error shape for internal failures across
// the gateway: operation, component, resource and cause are carried together
// so a caller mapping an error to a safe Verdict never has to reconstruct
// context from a bare string.
package errors

import (
	"fmt"
	"strings"
)

// OperationError describes a failed operation with optional component and
// resource context, plus the underlying cause.
type OperationError struct {
	Operation string
	Component string
	Resource  string
	Cause     error
}

func (e *OperationError) Error() string {
	var b strings.Builder
	b.WriteString("failed to ")
	b.WriteString(e.Operation)
	if e.Component != "" {
		b.WriteString(", component: ")
		b.WriteString(e.Component)
	}
	if e.Resource != "" {
		b.WriteString(", resource: ")
		b.WriteString(e.Resource)
	}
	if e.Cause != nil {
		b.WriteString(", cause: ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *OperationError) Unwrap() error {
	return e.Cause
}

// FailedTo builds a simple "failed to <action>[: cause]" error.
func FailedTo(action string, cause error) error {
	if cause == nil {
		return fmt.Errorf("failed to %s", action)
	}
	return fmt.Errorf("failed to %s: %w", action, cause)
}

// FailedToWithDetails builds an *OperationError carrying component/resource.
func FailedToWithDetails(operation, component, resource string, cause error) error {
	return &OperationError{
		Operation: operation,
		Component: component,
		Resource:  resource,
		Cause:     cause,
	}
}

// Wrapf wraps err with additional formatted context. Returns nil if err is nil.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	msg := fmt.Sprintf(format, args...)
	return fmt.Errorf("%s: %w", msg, err)
}

// DatabaseError builds an *OperationError whose component is "database".
func DatabaseError(operation string, cause error) error {
	return FailedToWithDetails(operation, "database", "", cause)
}

// NetworkError describes a failed network operation against an endpoint
// (provider RPC, embedding service call, cache backend).
func NetworkError(operation, endpoint string, cause error) error {
	return FailedToWithDetails(operation, "network", endpoint, cause)
}

// ValidationError reports a field-level validation failure.
func ValidationError(field, reason string) error {
	return fmt.Errorf("validation failed for field %s: %s", field, reason)
}

// ConfigurationError reports an invalid configuration setting.
func ConfigurationError(setting, reason string) error {
	return fmt.Errorf("configuration error for setting %s: %s", setting, reason)
}

// TimeoutError reports an operation that exceeded its deadline.
func TimeoutError(operation, duration string) error {
	return fmt.Errorf("timeout while %s after %s", operation, duration)
}

// AuthenticationError reports a failed authentication attempt against a
// provider (e.g. an LLM API key rejected).
func AuthenticationError(reason string) error {
	return fmt.Errorf("authentication failed: %s", reason)
}

// AuthorizationError reports an insufficiently-privileged operation.
func AuthorizationError(action, resource string) error {
	return fmt.Errorf("authorization failed: insufficient permissions to %s %s", action, resource)
}

// ParseError reports a failed parse of a named input in a named format.
func ParseError(what, format string, cause error) error {
	return FailedTo(fmt.Sprintf("parse %s as %s", what, format), cause)
}

var retryableSubstrings = []string{
	"timeout",
	"connection refused",
	"connection reset",
	"unavailable",
	"temporary",
	"too many connections",
	"deadlock",
	"lock timeout",
	"serialization failure",
	"could not serialize access",
	"broken pipe",
	"i/o timeout",
	"network is unreachable",
	"no route to host",
	"eof",
}

// IsRetryable reports whether err's message looks like a transient failure
// worth retrying (provider RPC, cache backend, embedding call).
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, substr := range retryableSubstrings {
		if strings.Contains(msg, substr) {
			return true
		}
	}
	return false
}

// Chain joins multiple non-nil errors into one. Returns nil if all inputs
// are nil, and the bare error if exactly one is non-nil.
func Chain(errs ...error) error {
	var nonNil []error
	for _, e := range errs {
		if e != nil {
			nonNil = append(nonNil, e)
		}
	}
	switch len(nonNil) {
	case 0:
		return nil
	case 1:
		return nonNil[0]
	default:
		msgs := make([]string, len(nonNil))
		for i, e := range nonNil {
			msgs[i] = e.Error()
		}
		return fmt.Errorf("multiple errors: %s", strings.Join(msgs, "; "))
	}
}
