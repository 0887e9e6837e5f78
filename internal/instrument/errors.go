package instrument

import (
	"errors"
	"fmt"
)

// Domain errors for the instrument package.
var (
	// ErrNotFound is returned when an instrument name does not exist.
	ErrNotFound = errors.New("instrument: not found")

	// ErrExists is returned when registering a duplicate instrument name.
	ErrExists = errors.New("instrument: already registered")

	// ErrOperationNotFound is returned when an operation name does not
	// exist on an instrument.
	ErrOperationNotFound = errors.New("instrument: operation not found")

	// ErrInvalidSpec is returned when an operation specification fails
	// bind-time validation.
	ErrInvalidSpec = errors.New("instrument: invalid operation spec")

	// ErrInvalidRange is returned for a malformed scan range.
	ErrInvalidRange = errors.New("instrument: invalid scan range")
)

// InvalidInputError reports a value that could not be coerced to a
// parameter's declared type. It carries the offending field name and
// value so the failure can be reported precisely.
type InvalidInputError struct {
	Field string
	Value any
	Err   error
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("instrument: invalid input for %q: %v (%v)", e.Field, e.Value, e.Err)
}

func (e *InvalidInputError) Unwrap() error {
	return e.Err
}
