// Package errkind defines the closed set of error kinds propagated across
// the collection, metrics, cache, and HTTP layers.
package errkind

import (
	"errors"
	"fmt"
)

// Kind is one of the eight closed error categories.
type Kind string

const (
	ConfigError       Kind = "ConfigError"
	AuthError         Kind = "AuthError"
	ValidationError   Kind = "ValidationError"
	UpstreamTransient Kind = "UpstreamTransient"
	UpstreamPermanent Kind = "UpstreamPermanent"
	NotFound          Kind = "NotFound"
	CacheCorrupt      Kind = "CacheCorrupt"
	Internal          Kind = "Internal"
)

// Error wraps an underlying cause with a closed-set Kind.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs an Error of the given kind.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Is reports whether err (or any error it wraps) is of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf extracts the Kind of err, defaulting to Internal when err is not
// a *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}
