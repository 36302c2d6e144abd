// Copyright (c) 2019 The Eacred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package merr defines the error taxonomy shared by every mining
// orchestrator component, following the kind+description pattern used
// throughout the pool package this module was derived from.
package merr

import "fmt"

// ErrorKind identifies a class of error a caller may want to branch on.
type ErrorKind string

// Error satisfies the error interface.
func (e ErrorKind) Error() string {
	return string(e)
}

const (
	// ErrTransientBackend indicates a hash engine 408 or network timeout
	// that should be retried locally.
	ErrTransientBackend = ErrorKind("ErrTransientBackend")

	// ErrRomInitTimeout indicates init_rom did not become ready within
	// the allotted window.
	ErrRomInitTimeout = ErrorKind("ErrRomInitTimeout")

	// ErrChallengeStale indicates a batch's frozen snapshot no longer
	// matches the orchestrator's current challenge id.
	ErrChallengeStale = ErrorKind("ErrChallengeStale")

	// ErrDifficultyIncreased indicates a submission candidate no longer
	// satisfies a tightened difficulty target.
	ErrDifficultyIncreased = ErrorKind("ErrDifficultyIncreased")

	// ErrDuplicateSolution indicates the service already has a solution
	// on file for the (address, challenge) pair.
	ErrDuplicateSolution = ErrorKind("ErrDuplicateSolution")

	// ErrAddressUnregistered indicates the service rejected a submission
	// because the address has not been registered.
	ErrAddressUnregistered = ErrorKind("ErrAddressUnregistered")

	// ErrSubmissionTimeout indicates a POST /solution call exceeded its
	// deadline; the outcome is uncertain.
	ErrSubmissionTimeout = ErrorKind("ErrSubmissionTimeout")

	// ErrSubmissionRejected covers any other non-2xx submission outcome.
	ErrSubmissionRejected = ErrorKind("ErrSubmissionRejected")

	// ErrDevFeePoolInvalid indicates the dev-fee address pool prefetch
	// did not return exactly 10 valid addresses.
	ErrDevFeePoolInvalid = ErrorKind("ErrDevFeePoolInvalid")

	// ErrReceiptsIO indicates a receipts file append failed.
	ErrReceiptsIO = ErrorKind("ErrReceiptsIO")

	// ErrValueNotFound indicates a lookup against a persistent store
	// found no matching record.
	ErrValueNotFound = ErrorKind("ErrValueNotFound")

	// ErrBackendBusy indicates the hash engine reported it cannot accept
	// more work right now.
	ErrBackendBusy = ErrorKind("ErrBackendBusy")
)

// Error wraps an ErrorKind with a human-readable description and,
// optionally, the underlying error that triggered it.
type Error struct {
	Kind        ErrorKind
	Description string
	Err         error
}

// Error satisfies the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Description, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Description)
}

// Unwrap allows errors.Is/errors.As to see through to the wrapped cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target matches this error's kind, enabling
// errors.Is(err, merr.ErrDuplicateSolution)-style checks.
func (e *Error) Is(target error) bool {
	kind, ok := target.(ErrorKind)
	if !ok {
		return false
	}
	return e.Kind == kind
}

// New creates an *Error of the given kind wrapping cause, which may be nil.
func New(kind ErrorKind, description string, cause error) *Error {
	return &Error{Kind: kind, Description: description, Err: cause}
}

// IsKind reports whether err is a *Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	if me, ok := err.(*Error); ok {
		e = me
		return e.Kind == kind
	}
	return false
}
