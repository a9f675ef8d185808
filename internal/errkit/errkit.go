// Package errkit implements the closed error taxonomy used throughout
// ragrep: a fixed set of kinds, each with a fixed recovery policy, wrapped
// in a Go error that composes with errors.Is/errors.As/errors.Unwrap.
package errkit

import "fmt"

// Kind is one of the closed set of error kinds the system distinguishes.
type Kind string

const (
	// ParseError is a fatal parser crash in the Chunker. Never used for
	// syntactically invalid input; grammars are error-recovering.
	ParseError Kind = "ParseError"
	// IoError covers file read, socket, and store file failures.
	IoError Kind = "IoError"
	// UniqueViolation is a Store insert collision on (file_path, ordinal).
	UniqueViolation Kind = "UniqueViolation"
	// IncompatibleIndex is returned when a store's embedder_id or
	// schema_version does not match the running configuration.
	IncompatibleIndex Kind = "IncompatibleIndex"
	// InvalidQuery is a Retriever input validation failure.
	InvalidQuery Kind = "InvalidQuery"
	// Busy is a state-lock acquisition timeout.
	Busy Kind = "Busy"
	// WatcherUnavailable is a non-fatal watcher start failure.
	WatcherUnavailable Kind = "WatcherUnavailable"
	// InvalidConfig is an unrecognized configuration key or invalid value.
	InvalidConfig Kind = "InvalidConfig"
	// AlreadyRunning is returned at boot when another server instance
	// already owns the project's PID file and socket.
	AlreadyRunning Kind = "AlreadyRunning"
	// Internal covers anything else; logged with context, never fatal to
	// the server process.
	Internal Kind = "Internal"
)

// Error is the concrete error type carrying a Kind, a message, and an
// optional wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

// New creates an Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error of the given kind around an existing error.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap enables errors.Is/errors.As to traverse into the cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches another *Error by Kind, so errors.Is(err, errkit.New(Busy, ""))
// works without comparing messages.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// KindOf extracts the Kind from err, the empty Kind if err is nil, or
// Internal if no *Error is found in err's Unwrap chain.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if ok := As(err, &e); ok {
		return e.Kind
	}
	return Internal
}

// As walks err's single-error Unwrap chain and stores the first *Error it
// finds in target. Unlike stdlib errors.As it does not follow
// Unwrap() []error or consult an As method.
func As(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// IsRecoverable reports whether the recovery policy for kind keeps the
// server serving (per-request/per-file failure) rather than requiring a
// fatal exit.
func IsRecoverable(kind Kind) bool {
	switch kind {
	case IncompatibleIndex:
		return false // fatal at server boot
	default:
		return true
	}
}
