package anamnesis

import (
	"errors"
	"fmt"
)

// Kind is the error taxonomy every subsystem reports through, per spec §7.
type Kind string

const (
	KindNotFound           Kind = "not_found"
	KindInvalidInput       Kind = "invalid_input"
	KindStorageUnavailable Kind = "storage_unavailable"
	KindModelUnavailable   Kind = "model_unavailable"
	KindBudgetExhausted    Kind = "budget_exhausted"
	KindUnauthorized       Kind = "unauthorized"
)

// Error wraps an underlying failure with a taxonomy Kind and the
// operation that produced it, following the StoreError pattern used
// throughout the example pack's vector-store code.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("anamnesis: %s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("anamnesis: %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on Kind: errors.Is(err, target) reports true when target is an
// *Error of the same Kind, and otherwise defers to the wrapped error. AsKind
// extracts the Kind for direct comparison.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return other.Kind == e.Kind
	}
	return errors.Is(e.Err, target)
}

func newError(kind Kind, op string, err error, format string, args ...any) *Error {
	msg := fmt.Sprintf(format, args...)
	if err != nil {
		return &Error{Kind: kind, Op: op, Err: fmt.Errorf("%s: %w", msg, err)}
	}
	return &Error{Kind: kind, Op: op, Err: errors.New(msg)}
}

// AsKind reports the Kind of err if it (or something it wraps) is an *Error.
func AsKind(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// IsNotFound is a convenience check used throughout the store layers.
func IsNotFound(err error) bool {
	k, ok := AsKind(err)
	return ok && k == KindNotFound
}
