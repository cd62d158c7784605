package capability

import (
	"errors"
	"fmt"
)

// FailureKind classifies why a capability call failed. The kind decides the
// retry policy: only transient failures are retried.
type FailureKind string

const (
	// KindTransient covers timeouts and network faults; the same payload may
	// succeed on retry.
	KindTransient FailureKind = "transient"
	// KindRejected means the capability explicitly refused the input (for
	// example, the architecture belongs to an unsupported provider).
	// Retrying cannot fix a semantic rejection.
	KindRejected FailureKind = "rejected"
	// KindMalformed means the response failed schema validation; the input
	// was not the problem, so no retry.
	KindMalformed FailureKind = "malformed"
	// KindUnavailable means the retry budget was exhausted without a result.
	KindUnavailable FailureKind = "unavailable"
)

// Error is the typed failure crossing the capability boundary.
type Error struct {
	Kind       FailureKind
	Capability Kind
	// Detail carries the capability's own message for rejected inputs.
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("capability %s: %s: %v", e.Capability, e.Kind, e.Err)
	}
	if e.Detail != "" {
		return fmt.Sprintf("capability %s: %s: %s", e.Capability, e.Kind, e.Detail)
	}
	return fmt.Sprintf("capability %s: %s", e.Capability, e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Transient wraps a network or timeout fault.
func Transient(capability Kind, err error) *Error {
	return &Error{Kind: KindTransient, Capability: capability, Err: err}
}

// Rejected records a semantic refusal with the capability's message.
func Rejected(capability Kind, detail string) *Error {
	return &Error{Kind: KindRejected, Capability: capability, Detail: detail}
}

// Malformed records a response that failed schema validation.
func Malformed(capability Kind, detail string, err error) *Error {
	return &Error{Kind: KindMalformed, Capability: capability, Detail: detail, Err: err}
}

// Unavailable records retry exhaustion, keeping the last underlying fault.
func Unavailable(capability Kind, err error) *Error {
	return &Error{Kind: KindUnavailable, Capability: capability, Err: err}
}

// KindOf extracts the failure kind from an error chain. Unclassified errors
// report KindUnavailable so nothing escapes the taxonomy.
func KindOf(err error) FailureKind {
	var capErr *Error
	if errors.As(err, &capErr) {
		return capErr.Kind
	}
	return KindUnavailable
}

// IsTransient reports whether the failure may succeed on retry.
func IsTransient(err error) bool {
	return KindOf(err) == KindTransient
}

// IsRejected reports whether the capability refused the input.
func IsRejected(err error) bool {
	return KindOf(err) == KindRejected
}
