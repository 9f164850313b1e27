package store

import (
	"errors"
	"fmt"
)

// Tagged error kinds. Callers distinguish them with errors.Is so that
// "unknown id" and "business rule violation" never collapse into one
// catch-all; the API layer maps each kind to a status code.
var (
	// ErrNotFound: the referenced invoice or delivery note does not exist.
	// No mutation happened.
	ErrNotFound = errors.New("not found")

	// ErrConflict: the entity is already linked elsewhere. No mutation
	// happened and the prior state is untouched.
	ErrConflict = errors.New("conflict")

	// ErrValidation: the document has the wrong role or the request is
	// malformed.
	ErrValidation = errors.New("validation failed")

	// ErrTransientScoring: a scoring collaborator (quantity matcher, learned
	// model) was unavailable; evaluation degrades rather than aborts.
	ErrTransientScoring = errors.New("transient scoring failure")
)

// NotFoundf wraps ErrNotFound with context.
func NotFoundf(format string, args ...interface{}) error {
	return fmt.Errorf(format+": %w", append(args, ErrNotFound)...)
}

// Conflictf wraps ErrConflict with context.
func Conflictf(format string, args ...interface{}) error {
	return fmt.Errorf(format+": %w", append(args, ErrConflict)...)
}

// Validationf wraps ErrValidation with context.
func Validationf(format string, args ...interface{}) error {
	return fmt.Errorf(format+": %w", append(args, ErrValidation)...)
}
