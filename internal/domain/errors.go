package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy for the allocation core. Handlers map these onto HTTP
// statuses; everything else is treated as a transient store failure.

// ValidationError: a required field is missing or malformed. Rejected before
// any write.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func Validationf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// NotFoundError: unknown request/unit/personnel id.
type NotFoundError struct {
	Msg string
}

func (e *NotFoundError) Error() string { return e.Msg }

func NotFoundf(format string, args ...any) error {
	return &NotFoundError{Msg: fmt.Sprintf(format, args...)}
}

// ConflictError: an entity is not in the state the transition expects
// (e.g. occupy on a non-Vacant unit). Message names the conflicting state.
type ConflictError struct {
	Msg string
}

func (e *ConflictError) Error() string { return e.Msg }

func Conflictf(format string, args ...any) error {
	return &ConflictError{Msg: fmt.Sprintf(format, args...)}
}

// InvariantError: a pre-existing data-integrity problem (e.g. a current
// occupant with no queue link). Not a user mistake; surfaced distinctly.
type InvariantError struct {
	Msg string
}

func (e *InvariantError) Error() string { return e.Msg }

func Invariantf(format string, args ...any) error {
	return &InvariantError{Msg: fmt.Sprintf(format, args...)}
}

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

func IsNotFound(err error) bool {
	var v *NotFoundError
	return errors.As(err, &v)
}

func IsConflict(err error) bool {
	var v *ConflictError
	return errors.As(err, &v)
}

func IsInvariant(err error) bool {
	var v *InvariantError
	return errors.As(err, &v)
}
