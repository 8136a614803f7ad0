// Package scanerr defines the stable error taxonomy every component
// surfaces instead of ad-hoc error strings, so callers can switch on a code
// rather than substring-match a message.
package scanerr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Code is a stable identifier for a class of failure.
type Code string

const (
	// Input errors, surfaced synchronously at scan start; never a scan failure.
	InvalidURL     Code = "invalid-url"
	UnsupportedURL Code = "unsupported-url"

	// Admission errors, surfaced at scan start.
	AdmissionRejected   Code = "admission-rejected"
	DiskBudgetExhausted Code = "disk-budget-exhausted"
	ConcurrentScanCap   Code = "concurrent-scan-cap"

	// Acquisition errors: fail the acquisition phase.
	RepositoryNotFound     Code = "repository-not-found"
	RepositoryAccessDenied Code = "repository-access-denied"
	RepositoryTimeout      Code = "repository-timeout"
	NetworkError           Code = "network-error"
	RepositoryTooLarge     Code = "repository-too-large"
	RepositoryAccessError  Code = "repository-access-error"

	// Operational errors.
	CloneFailed   Code = "clone-failed"
	FileReadError Code = "file-read-error"
	ScanTimeout   Code = "scan-timeout"
	Cancelled     Code = "cancelled"

	// Resource errors. EmergencyMode covers both admission-time rejection
	// and the mid-scan transition; it is one code per spec §7.
	ResourceLimitExceeded Code = "resource-limit-exceeded"
	TooManyStreams        Code = "too-many-streams"
	MemoryCritical        Code = "memory-critical"
	EmergencyMode         Code = "emergency-mode"

	// Internal errors: never surface directly, degrade behavior.
	DeduplicationFailed Code = "deduplication-failed"
	RetryExhausted      Code = "retry-exhausted"
	CircuitOpen         Code = "circuit-open"

	// Lookup errors for status/results against an unknown or expired scan-id.
	NotFound Code = "not-found"
)

// Error is a taxonomy-carrying error: a stable code, a human message, and
// structured detail fields. It never embeds scanned secret values.
type Error struct {
	Code    Code
	Message string
	Details map[string]any
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the wrapped cause, if any, to errors.Is/As.
func (e *Error) Unwrap() error { return e.cause }

// New builds an Error with no wrapped cause.
func New(code Code, message string, details map[string]any) *Error {
	return &Error{Code: code, Message: message, Details: details}
}

// Wrap builds an Error that retains cause for diagnostics. The cause's own
// message is not duplicated into Details — callers needing it should use
// errors.Unwrap, not the structured payload.
func Wrap(code Code, cause error, message string, details map[string]any) *Error {
	return &Error{Code: code, Message: message, Details: details, cause: errors.WithStack(cause)}
}

// Is reports whether err (or anything it wraps) is a *Error with code.
func Is(err error, code Code) bool {
	var se *Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code == code
}
