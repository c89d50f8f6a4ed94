// Package errors holds error helpers shared across monet: aggregation for
// shutdown paths and panic recovery around a turn.
package errors

import (
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
)

// MultiError collects several errors into one.
type MultiError struct {
	Errors []error
}

// Append adds err unless it is nil.
func (m *MultiError) Append(err error) {
	if err != nil {
		m.Errors = append(m.Errors, err)
	}
}

// ErrorOrNil returns nil when nothing was appended, the only error when one
// was, and m otherwise.
func (m *MultiError) ErrorOrNil() error {
	switch len(m.Errors) {
	case 0:
		return nil
	case 1:
		return m.Errors[0]
	default:
		return m
	}
}

func (m *MultiError) Error() string {
	parts := make([]string, len(m.Errors))
	for i, err := range m.Errors {
		parts[i] = err.Error()
	}
	return fmt.Sprintf("%d errors: %s", len(m.Errors), strings.Join(parts, "; "))
}

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (m *MultiError) Unwrap() []error { return m.Errors }

// PanicError is a recovered panic.
type PanicError struct {
	Value      any
	StackTrace string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Recover runs fn and converts a panic into a *PanicError.
func Recover(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, StackTrace: string(debug.Stack())}
		}
	}()
	return fn()
}

// TransientError marks a failure that did not affect the outcome, such as a
// UI that was slow to shut down.
type TransientError struct {
	Op  string
	Err error
}

// NewTransientError wraps err as transient.
func NewTransientError(op string, err error) *TransientError {
	return &TransientError{Op: op, Err: err}
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether every error in err's tree that is not a
// MultiError is transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var multi *MultiError
	if errors.As(err, &multi) && multi == err {
		for _, e := range multi.Errors {
			if !IsTransient(e) {
				return false
			}
		}
		return len(multi.Errors) > 0
	}
	var transient *TransientError
	return errors.As(err, &transient)
}
