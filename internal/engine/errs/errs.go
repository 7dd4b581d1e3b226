// Package errs defines the failure kinds a collection operation can report to its caller.
package errs

import (
	"errors"
	"fmt"
)

// Kind is a stable, machine-readable failure class.
type Kind int

const (
	Other Kind = iota
	Configuration
	SessionLaunch
	Navigation
	Blocked
	InvalidCredential
)

func (k Kind) String() string {
	switch k {
	case Configuration:
		return "configuration_error"
	case SessionLaunch:
		return "session_launch_error"
	case Navigation:
		return "navigation_error"
	case Blocked:
		return "blocked_detected"
	case InvalidCredential:
		return "invalid_credential"
	}
	return "other"
}

// Error carries a Kind alongside the failing operation.
type Error struct {
	Kind Kind
	Op   string
	URL  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.URL != "" {
		msg += " (" + e.URL + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// E builds an *Error.
func E(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Nav builds a navigation error for url.
func Nav(op, url string, err error) *Error {
	return &Error{Kind: Navigation, Op: op, URL: url, Err: err}
}

// Configf builds a configuration error from a format string.
func Configf(op, format string, args ...any) *Error {
	return &Error{Kind: Configuration, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the Kind of the first *Error in err's chain, or Other.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Other
}

// Is reports whether err carries kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Fatal reports whether err must abort the whole operation rather than one page or candidate.
func Fatal(err error) bool {
	switch KindOf(err) {
	case Configuration, SessionLaunch, InvalidCredential:
		return true
	}
	return false
}
