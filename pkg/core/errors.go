package core

import (
	"errors"
	"fmt"
)

// ErrorKind categorizes failures reported by the merge, pivot and preset packages.
type ErrorKind string

const (
	// KindSchemaMismatch indicates two datasets have incompatible shapes.
	KindSchemaMismatch ErrorKind = "SCHEMA_MISMATCH"

	// KindInvalidConfiguration indicates a malformed or contradictory rule, spec or preset.
	KindInvalidConfiguration ErrorKind = "INVALID_CONFIGURATION"

	// KindPresetNotFound indicates a named preset does not exist.
	KindPresetNotFound ErrorKind = "PRESET_NOT_FOUND"

	// KindAggregationType indicates an aggregator was applied to incompatible data.
	KindAggregationType ErrorKind = "AGGREGATION_TYPE_ERROR"
)

// Sentinels for errors.Is matching on kind.
var (
	ErrSchemaMismatch       = &Error{Kind: KindSchemaMismatch}
	ErrInvalidConfiguration = &Error{Kind: KindInvalidConfiguration}
	ErrPresetNotFound       = &Error{Kind: KindPresetNotFound}
	ErrAggregationType      = &Error{Kind: KindAggregationType}
)

// Error is a categorized failure.
type Error struct {
	// Kind identifies the error category.
	Kind ErrorKind

	// Op names the operation that failed (e.g. "merge", "pivot").
	Op string

	// Message is a human-readable description.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// Errorf creates an Error with a formatted message.
func Errorf(kind ErrorKind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error around an underlying cause.
func Wrap(kind ErrorKind, op string, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...), Err: err}
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so the package sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
