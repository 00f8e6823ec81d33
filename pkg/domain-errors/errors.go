// Package domainerrors provides coded domain errors for service boundaries.
//
// Stores return infrastructure sentinels (pkg/platform/sentinel); services
// translate those into coded errors so callers can branch on error class
// without string matching. Conventionally imported as dErrors:
//
//	dErrors "facturo/pkg/domain-errors"
//
//	return dErrors.New(dErrors.CodeValidation, "recipient tax id is required")
//	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to append chain link")
//	if dErrors.HasCode(err, dErrors.CodeConflict) { retry() }
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies a domain error. Codes are stable and part of the API;
// callers decide retry and user-messaging behavior from them.
type Code string

const (
	// CodeValidation marks invalid caller input: missing required fields,
	// inconsistent monetary breakdowns, malformed identifiers. User-facing,
	// never retried.
	CodeValidation Code = "validation"

	// CodeInvalidTransition marks a lifecycle change outside the transition
	// table. User-facing, never retried.
	CodeInvalidTransition Code = "invalid_transition"

	// CodeConflict marks an optimistic-concurrency race: a series counter or
	// chain tail advanced between read and write. Caller may retry the whole
	// operation with freshly read state, bounded.
	CodeConflict Code = "conflict"

	// CodeCrypto marks a hashing, signing, or key-provider failure. Fatal for
	// the current request; surfaced as a 5xx-equivalent, never skipped.
	CodeCrypto Code = "crypto"

	// CodeNotFound marks a missing entity.
	CodeNotFound Code = "not_found"

	// CodeInvariantViolation marks an attempt to construct or mutate an entity
	// into a state that breaks its own invariants.
	CodeInvariantViolation Code = "invariant_violation"

	// CodeBadRequest marks a structurally bad request (absent ID, nil input).
	CodeBadRequest Code = "bad_request"

	// CodeInvalidInput marks malformed primitive input at a trust boundary
	// (unparseable UUIDs, bad checksums).
	CodeInvalidInput Code = "invalid_input"

	// CodeInternal marks infrastructure failure (persistence unreachable,
	// unexpected store errors). Generic message to users, details in logs.
	CodeInternal Code = "internal"
)

// Error is a coded domain error, optionally wrapping a cause.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a coded error with no cause.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying cause. Returns nil if
// err is nil so call sites can wrap unconditionally.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, cause: err}
}

// HasCode reports whether any error in err's chain carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	for errors.As(err, &de) {
		if de.Code == code {
			return true
		}
		err = de.cause
		if err == nil {
			return false
		}
	}
	return false
}

// CodeOf returns the outermost code in err's chain, or CodeInternal when the
// chain carries none. Infrastructure errors that escape untranslated are
// internal by definition.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}
