// Package validation defines the error returned when inputs are rejected
// before any numerical work begins.
package validation

import (
	"errors"
	"fmt"
)

// Error reports rejected input. Err carries the package sentinel
// (e.g. caf.ErrLengthMismatch) so callers can match with errors.Is.
type Error struct {
	Op  string // Operation that rejected the input
	Err error
}

// Error returns the error message for Error.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: invalid input: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New wraps err as a validation error raised by op.
func New(op string, err error) error {
	return &Error{Op: op, Err: err}
}

// Errorf wraps sentinel with a formatted detail message.
func Errorf(op string, sentinel error, format string, args ...any) error {
	return &Error{Op: op, Err: fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...))}
}

// Is reports whether err is a validation error.
func Is(err error) bool {
	var ve *Error
	return errors.As(err, &ve)
}
