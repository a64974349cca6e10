package errors

import (
	"errors"
	"fmt"
)

var (
	ErrMismatch     = errors.New("postings mismatch")
	ErrMissingField = errors.New("field missing from artifact")
	ErrMissingTerm  = errors.New("term missing from dictionary")
	ErrUnsupported  = errors.New("unsupported by postings format")
	ErrInvalidInput = errors.New("invalid input")
	ErrClosed       = errors.New("already closed")
	ErrCorrupt      = errors.New("corrupt postings data")
)

// Error wraps a sentinel with a message describing the failing operation.
type Error struct {
	Err     error
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(sentinel error, message string) *Error {
	return &Error{
		Err:     sentinel,
		Message: message,
	}
}

func Newf(sentinel error, format string, args ...any) *Error {
	return &Error{
		Err:     sentinel,
		Message: fmt.Sprintf(format, args...),
	}
}

// MismatchError reports a divergence between the reference stream and the
// enumerator under test. Field, Term and Pattern are enough to replay the
// access path that produced it.
type MismatchError struct {
	Field    string
	Term     string
	Pattern  string
	What     string
	Expected any
	Actual   any
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("%s: %s is wrong for %s:%s: expected %v, got %v [%s]",
		ErrMismatch.Error(), e.What, e.Field, e.Term, e.Expected, e.Actual, e.Pattern)
}

func (e *MismatchError) Unwrap() error {
	return ErrMismatch
}

// Is, As and Join re-export the standard helpers so callers need a single
// errors import.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

func As(err error, target any) bool {
	return errors.As(err, target)
}

func Join(errs ...error) error {
	return errors.Join(errs...)
}

// MismatchKind returns the What of the first MismatchError in err's chain,
// or the empty string.
func MismatchKind(err error) string {
	var m *MismatchError
	if errors.As(err, &m) {
		return m.What
	}
	return ""
}
