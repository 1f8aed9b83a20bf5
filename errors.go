package heapcap

import (
	"errors"
	"fmt"
)

// Kind categorizes the distinguishable failure modes of the profiler core.
type Kind string

const (
	KindProtocolDecode       Kind = "protocol decode"
	KindFrameOrder           Kind = "frame order violation"
	KindStore                Kind = "store"
	KindUnknownStmt          Kind = "unknown statement"
	KindMemoryFault          Kind = "memory fault"
	KindReallocClassMismatch Kind = "reallocation class mismatch"
	KindUnmatchedRequest     Kind = "unmatched request"
	KindDisconnected         Kind = "disconnected"
)

// Error is the structured error type returned throughout the profiler core.
type Error struct {
	Op    string // operation that failed, e.g. "ingest.Flush"
	Kind  Kind
	Msg   string
	Inner error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Op != "" {
		return fmt.Sprintf("heapcap: %s: %s", e.Op, msg)
	}
	return fmt.Sprintf("heapcap: %s", msg)
}

func (e *Error) Unwrap() error {
	return e.Inner
}

func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == te.Kind
}

// NewError creates a structured error with no wrapped cause.
func NewError(op string, kind Kind, msg string) *Error {
	return &Error{Op: op, Kind: kind, Msg: msg}
}

// WrapError wraps an existing error under op, preserving the inner error's
// Kind if it is already a *Error.
func WrapError(op string, inner error) *Error {
	if inner == nil {
		return nil
	}
	var e *Error
	if errors.As(inner, &e) {
		return &Error{Op: op, Kind: e.Kind, Msg: e.Msg, Inner: inner}
	}
	return &Error{Op: op, Kind: KindStore, Msg: inner.Error(), Inner: inner}
}

// IsKind reports whether err is a *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
