package domain

import (
	"errors"
	"fmt"
)

// ErrorKind partitions failures the way callers need to react to them.
type ErrorKind int

const (
	// KindTransportUnavailable: send attempted while the transport is
	// not Ready.
	KindTransportUnavailable ErrorKind = iota + 1
	// KindGeneration: backend call failed or returned a malformed
	// response.
	KindGeneration
	// KindValidation: import chatId mismatch or malformed encoded blob.
	KindValidation
	// KindConfiguration: missing required credential/model at startup.
	// Fatal; aborts startup.
	KindConfiguration
	// KindInternalStore: unexpected fault inside the history store.
	// Caught and logged there, never surfaced to callers.
	KindInternalStore
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransportUnavailable:
		return "transport_unavailable"
	case KindGeneration:
		return "generation_error"
	case KindValidation:
		return "validation_error"
	case KindConfiguration:
		return "configuration_error"
	case KindInternalStore:
		return "internal_store_error"
	default:
		return "unknown"
	}
}

// Error is the typed error carried across component boundaries.
type Error struct {
	Kind ErrorKind
	Op   string // operation that failed, e.g. "history.deserialize"
	Err  error  // underlying cause, may be nil
	Msg  string // diagnostic detail when there is no underlying error
}

func (e *Error) Error() string {
	detail := e.Msg
	if e.Err != nil {
		detail = e.Err.Error()
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, detail)
	}
	return fmt.Sprintf("%s: %s", e.Kind, detail)
}

func (e *Error) Unwrap() error { return e.Err }

// Errf builds a typed error from a format string.
func Errf(kind ErrorKind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// WrapErr builds a typed error around an underlying cause.
func WrapErr(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// IsKind reports whether err (or anything it wraps) is a domain error
// of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind == kind
	}
	return false
}
