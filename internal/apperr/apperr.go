// Package apperr classifies failures so that transport layers can map them
// to responses without inspecting driver or library errors.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is the category of a failure.
type Kind int

const (
	Internal Kind = iota
	Validation
	Authentication
	Integrity
	Connectivity
	NotFound
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation"
	case Authentication:
		return "authentication"
	case Integrity:
		return "integrity"
	case Connectivity:
		return "connectivity"
	case NotFound:
		return "not_found"
	default:
		return "internal"
	}
}

// Error carries a Kind, a message and the underlying cause.
// Msg is only shown to clients for Validation, Authentication and NotFound.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return e.Msg + ": " + e.Err.Error()
	case e.Msg != "":
		return e.Msg
	case e.Err != nil:
		return e.Err.Error()
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an error of the given kind.
func New(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// Validationf returns a Validation error with a formatted message.
func Validationf(format string, args ...any) error {
	return &Error{Kind: Validation, Msg: fmt.Sprintf(format, args...)}
}

// Connectivityf wraps err as a Connectivity failure.
func Connectivityf(err error, format string, args ...any) error {
	return &Error{Kind: Connectivity, Msg: fmt.Sprintf(format, args...), Err: err}
}

// Integrityf wraps err as an Integrity failure.
func Integrityf(err error, format string, args ...any) error {
	return &Error{Kind: Integrity, Msg: fmt.Sprintf(format, args...), Err: err}
}

// Internalf wraps err as an Internal failure.
func Internalf(err error, format string, args ...any) error {
	return &Error{Kind: Internal, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of the outermost *Error in the chain, or Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Message returns the client-safe message of err.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Msg != "" {
		return e.Msg
	}
	return ""
}
