// Package errs defines the failure taxonomy shared by every layer of the
// engine. Each failure wraps exactly one of the sentinel kinds, so callers can
// classify any returned error with errors.Is.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrConfig marks a problem detected before any process is spawned:
	// cyclic or dangling dependencies, duplicate identifiers, unresolved
	// references and malformed parameters.
	ErrConfig = errors.New("configuration error")
	// ErrPipeline marks a child process whose exit code was not accepted.
	ErrPipeline = errors.New("pipeline failure")
	// ErrBackend marks an I/O failure while talking to a storage backend.
	ErrBackend = errors.New("backend error")
	// ErrBuiltin marks an invalid or unsupported builtin invocation.
	ErrBuiltin = errors.New("builtin error")
)

// Error attaches a message to one of the sentinel kinds.
type Error struct {
	Kind error
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Kind.Error()
	if e.Msg != "" {
		msg += ": " + e.Msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind and the underlying cause.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Configf returns a configuration error.
func Configf(format string, args ...any) error {
	return &Error{Kind: ErrConfig, Msg: fmt.Sprintf(format, args...)}
}

// Builtinf returns a builtin error.
func Builtinf(format string, args ...any) error {
	return &Error{Kind: ErrBuiltin, Msg: fmt.Sprintf(format, args...)}
}

// Backend wraps err as a backend error. A nil err stays nil.
func Backend(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrBackend) {
		return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
	}
	return &Error{Kind: ErrBackend, Msg: fmt.Sprintf(format, args...), Err: err}
}
