package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is a generic sentinel for missing resources.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument is a generic sentinel for invalid input.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrDuplicateRun signals a second segmentation run for the same
	// (staging upload, algorithm version) identity. Callers treat this as
	// an expected, non-fatal condition.
	ErrDuplicateRun = errors.New("duplicate segmentation run")
	// ErrOrdinalConflict signals a clause insert colliding with an active
	// ordinal for the same staging upload. Never resolved by renumbering.
	ErrOrdinalConflict = errors.New("clause ordinal conflict")
)

// ValidationError rejects malformed attributes before persistence.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s %s", e.Field, e.Reason)
}

func Validation(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
