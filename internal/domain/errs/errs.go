// Package errs defines the error kinds shared by the scoring service.
//
// A kind is a sentinel error. Operations wrap causes with Wrap/WrapKind so that
// callers can branch on the kind with errors.Is while keeping the cause.
package errs

import (
	"errors"
	"fmt"
)

// Sentinel kinds.
var (
	ErrValidation      = errors.New("validation failed")
	ErrNotFound        = errors.New("not found")
	ErrAuthorization   = errors.New("not authorized")
	ErrUnauthenticated = errors.New("not authenticated")
	ErrComputation     = errors.New("computation failed")
	ErrSync            = errors.New("sync failed")
	ErrConflict        = errors.New("conflict")
)

// Error is an operation failure tagged with a kind.
type Error struct {
	Op   string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Err == nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	case e.Kind == nil || errors.Is(e.Err, e.Kind):
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
	}
}

// Unwrap exposes both the kind and the cause to errors.Is/As.
func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// NewKind returns an error of the given kind with a message.
func NewKind(op string, kind error, format string, args ...any) error {
	return &Error{Op: op, Kind: kind, Err: fmt.Errorf(format, args...)}
}

// WrapKind tags err with kind. A nil err yields nil.
func WrapKind(op string, kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Kind: kind, Err: err}
}

// Wrap adds op to err and keeps whatever kind err already carries.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}

// KindOf returns the first known kind err carries, or nil.
func KindOf(err error) error {
	for _, k := range []error{
		ErrValidation,
		ErrNotFound,
		ErrUnauthenticated,
		ErrAuthorization,
		ErrConflict,
		ErrComputation,
		ErrSync,
	} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
