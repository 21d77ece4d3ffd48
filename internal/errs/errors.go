// Package errs provides the unified error type used across all of pubky-tools.
//
// Every subsystem (store drivers, drive facade, http gateway, …) wraps its
// native errors into *errs.Error before returning them to callers. Callers
// use the Is* predicates to handle errors without importing driver-specific
// packages.
//
// Usage:
//
//	// In a driver — wrap native errors:
//	return errs.Wrap(errs.ErrKindTimeout, "request timed out", netErr)
//
//	// In a handler — check error kind:
//	if errs.IsNotFound(err) {
//	    http.Error(w, "not found", http.StatusNotFound)
//	}
package errs

import (
	"errors"
	"fmt"
)

// ErrKind categorises an error without exposing subsystem-specific codes.
// All store backends (homeserver, MinIO, Postgres, …) map their native
// errors to one of these kinds, giving callers a single consistent API.
type ErrKind int

const (
	ErrKindUnknown        ErrKind = iota
	ErrKindNotFound               // no object at the requested key
	ErrKindUnauthorized           // capability check or server auth failure
	ErrKindNetworkFailure         // cannot reach or talk to the backend
	ErrKindTimeout                // context deadline / cancellation
	ErrKindValidation             // malformed key, grant, or record
	ErrKindInvalidInput           // bad arguments from the caller
	ErrKindPartialFailure         // a later step of a phased operation failed
)

func (k ErrKind) String() string {
	switch k {
	case ErrKindNotFound:
		return "not_found"
	case ErrKindUnauthorized:
		return "unauthorized"
	case ErrKindNetworkFailure:
		return "network_failure"
	case ErrKindTimeout:
		return "timeout"
	case ErrKindValidation:
		return "validation"
	case ErrKindInvalidInput:
		return "invalid_input"
	case ErrKindPartialFailure:
		return "partial_failure"
	default:
		return "unknown"
	}
}

// Error is the single error type returned by all pubky-tools subsystems.
// Drivers produce it; callers inspect it via the Is* predicates below.
type Error struct {
	Kind    ErrKind
	Message string
	Cause   error // original driver-level error, preserved for logging
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap allows errors.Is / errors.As to traverse the cause chain.
func (e *Error) Unwrap() error {
	return e.Cause
}

// --- Constructors ---

// New creates an *Error with the given kind and message and no cause.
func New(kind ErrKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Newf creates an *Error with a formatted message and no cause.
func Newf(kind ErrKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an *Error with the given kind, message, and an underlying cause.
func Wrap(kind ErrKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// --- Predicates ---

// IsNotFound reports whether err represents a missing object.
func IsNotFound(err error) bool {
	return KindOf(err) == ErrKindNotFound
}

// IsUnauthorized reports whether err is an access control failure,
// either from the local capability check or from the server.
func IsUnauthorized(err error) bool {
	return KindOf(err) == ErrKindUnauthorized
}

// IsNetworkFailure reports whether err is a connectivity or protocol failure.
func IsNetworkFailure(err error) bool {
	return KindOf(err) == ErrKindNetworkFailure
}

// IsTimeout reports whether err was caused by a deadline or context cancellation.
func IsTimeout(err error) bool {
	return KindOf(err) == ErrKindTimeout
}

// IsValidation reports whether err was caused by a structurally invalid
// key, capability grant, or metadata record.
func IsValidation(err error) bool {
	return KindOf(err) == ErrKindValidation
}

// IsInvalidInput reports whether err was caused by bad input from the caller.
func IsInvalidInput(err error) bool {
	return KindOf(err) == ErrKindInvalidInput
}

// IsPartialFailure reports whether err left a phased operation half done
// (orphaned blob after a failed metadata write, copy without delete, …).
func IsPartialFailure(err error) bool {
	return KindOf(err) == ErrKindPartialFailure
}

// KindOf extracts the ErrKind from any error in the chain.
func KindOf(err error) ErrKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrKindUnknown
}
