// -----------------------------------------------------------------------
// Error taxonomy - classification drives retry and HTTP mapping
// -----------------------------------------------------------------------

package models

import (
	"errors"
	"fmt"
)

// ValidationError marks malformed input: an invalid submission or a stage
// output that cannot be parsed into its expected shape. Validation failures
// are not retried blindly; MaybeTruncated signals the one case (a possibly
// cut-off model response) that earns a single bounded retry.
type ValidationError struct {
	Msg string

	// MaybeTruncated is set when the failure could be a truncated response
	// rather than a deterministic one, so a single retry is worthwhile.
	MaybeTruncated bool
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Msg
}

// TransientError marks a failure from an external collaborator that is
// likely to succeed on retry without changing input: rate limiting,
// timeouts, transient network faults.
type TransientError struct {
	Msg string
	Err error
}

func (e *TransientError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transient: %s: %v", e.Msg, e.Err)
	}
	return "transient: " + e.Msg
}

func (e *TransientError) Unwrap() error { return e.Err }

// PersistenceError marks a result store failure. It is surfaced to the
// caller of the failing operation, never silently swallowed.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// NotFoundError marks a lookup for an unknown job or document id.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsTransient reports whether err is classified as transient.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsPersistence reports whether err is a result store failure.
func IsPersistence(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}

// IsNotFound reports whether err is an unknown-id lookup failure.
func IsNotFound(err error) bool {
	var nfe *NotFoundError
	return errors.As(err, &nfe)
}
