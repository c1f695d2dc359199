package storage

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a storage failure for retry and policy decisions.
type ErrorKind int

const (
	// KindTransient marks failures worth retrying: timeouts, throttling,
	// connection resets, 5xx responses.
	KindTransient ErrorKind = iota

	// KindTerminal marks failures that will not succeed on retry:
	// invalid input, access denied, 4xx responses other than 404.
	KindTerminal

	// KindNotFound marks operations on keys with no stored object.
	KindNotFound
)

// String returns the kind's name.
func (k ErrorKind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindTerminal:
		return "terminal"
	case KindNotFound:
		return "not_found"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error is the unified failure type returned by storage providers.
type Error struct {
	// Kind classifies the failure.
	Kind ErrorKind

	// Op is the operation that failed ("upload", "delete", ...).
	Op string

	// Key is the object key involved, when there is one.
	Key string

	// Message describes the failure.
	Message string

	// Err is the underlying backend error, when there is one.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Key != "" {
		return fmt.Sprintf("storage: %s %q: %s (%s)", e.Op, e.Key, msg, e.Kind)
	}
	return fmt.Sprintf("storage: %s: %s (%s)", e.Op, msg, e.Kind)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failure is worth retrying.
func (e *Error) Retryable() bool {
	return e.Kind == KindTransient
}

// NewError builds an Error with the given classification.
func NewError(kind ErrorKind, op, key, message string, err error) *Error {
	return &Error{Kind: kind, Op: op, Key: key, Message: message, Err: err}
}

// NotFoundError builds a KindNotFound error for key.
func NotFoundError(op, key string) *Error {
	return &Error{Kind: KindNotFound, Op: op, Key: key, Message: "object not found"}
}

// TransientError builds a KindTransient error wrapping err.
func TransientError(op, key string, err error) *Error {
	return &Error{Kind: KindTransient, Op: op, Key: key, Err: err}
}

// TerminalError builds a KindTerminal error wrapping err.
func TerminalError(op, key string, err error) *Error {
	return &Error{Kind: KindTerminal, Op: op, Key: key, Err: err}
}

// kindOf extracts the ErrorKind from err, defaulting to KindTerminal for
// unclassified errors so callers never retry blindly.
func kindOf(err error) (ErrorKind, bool) {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind, true
	}
	return KindTerminal, false
}

// IsNotFound reports whether err is a missing-object failure.
func IsNotFound(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindNotFound
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindTransient
}

// IsTerminal reports whether err is permanent. Unclassified errors count
// as terminal.
func IsTerminal(err error) bool {
	if err == nil {
		return false
	}
	k, _ := kindOf(err)
	return k == KindTerminal
}
