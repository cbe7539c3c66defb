package domain

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindInvalidInput ErrorKind = "invalid_input"
	KindNotFound     ErrorKind = "not_found"
	KindConflict     ErrorKind = "conflict"
	KindForbidden    ErrorKind = "forbidden"
	KindInvalidState ErrorKind = "invalid_state"
)

// Error is a business rule failure carried unchanged to the transport layer.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Is matches sentinels of the same kind, so errors.Is(err, ErrNotFound) works
// for any not-found error regardless of its message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

var (
	ErrInvalidInput = &Error{Kind: KindInvalidInput}
	ErrNotFound     = &Error{Kind: KindNotFound}
	ErrConflict     = &Error{Kind: KindConflict}
	ErrForbidden    = &Error{Kind: KindForbidden}
	ErrInvalidState = &Error{Kind: KindInvalidState}
)

func newError(kind ErrorKind, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func InvalidInput(format string, args ...any) error {
	return newError(KindInvalidInput, format, args...)
}

func NotFound(format string, args ...any) error {
	return newError(KindNotFound, format, args...)
}

func Conflict(format string, args ...any) error {
	return newError(KindConflict, format, args...)
}

func Forbidden(format string, args ...any) error {
	return newError(KindForbidden, format, args...)
}

func InvalidState(format string, args ...any) error {
	return newError(KindInvalidState, format, args...)
}

// KindOf returns the kind of the first domain error in the chain, or "".
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}
