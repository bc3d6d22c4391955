package services

import (
	"errors"
	"fmt"
)

// Expected, recoverable outcomes of matching-engine operations. Handlers map
// these to user-facing responses; they are never treated as system failures.
var (
	// ErrNotFound indicates an unknown consultation or message id.
	ErrNotFound = errors.New("not found")

	// ErrInvalidTransition indicates a status machine violation, e.g. any
	// operation against a completed or cancelled consultation.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrAlreadyAssigned is returned to an expert who lost the accept race.
	ErrAlreadyAssigned = errors.New("consultation already assigned")

	// ErrValidation indicates missing or out-of-range input fields.
	ErrValidation = errors.New("validation failed")

	// ErrDependencyUnavailable indicates the store or another collaborator
	// failed. On the persistence path it aborts the operation; on the
	// notification path it is logged and swallowed after the state commit.
	ErrDependencyUnavailable = errors.New("dependency unavailable")
)

// storeErr wraps an unexpected persistence failure in
// ErrDependencyUnavailable, keeping the driver's error text for the log
// line. Domain outcomes (ErrNotFound etc.) are diagnosed before this.
func storeErr(err error, format string, args ...interface{}) error {
	args = append(args, err, ErrDependencyUnavailable)
	return fmt.Errorf(format+": %v: %w", args...)
}
