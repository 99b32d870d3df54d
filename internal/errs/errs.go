// Package errs defines the tagged error type returned by every labnet
// operation.
//
// Each error carries a human-readable message that front ends surface
// verbatim, plus a Kind from a small fixed taxonomy so callers (and the
// HTTP envelope) can react to the class of failure without string matching.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an Error.
type Kind uint8

const (
	// Internal is an unexpected failure (store errors, bugs).
	Internal Kind = iota
	// Validation means a parameter was missing or malformed.
	Validation
	// Conflict means an overlap or duplicate was detected.
	Conflict
	// NotFound means an id, address, zone or server does not exist.
	NotFound
	// ExternalTool means a switch, runtime or daemon call failed.
	ExternalTool
	// Consistency means a zone serial never converged after reload.
	Consistency
)

var kindNames = [...]string{
	Internal:     "internal",
	Validation:   "validation",
	Conflict:     "conflict",
	NotFound:     "not_found",
	ExternalTool: "external_tool",
	Consistency:  "consistency",
}

// String returns the wire name of the kind.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "internal"
}

// ParseKind maps a wire name back to a Kind. Unknown names map to Internal.
func ParseKind(s string) Kind {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range kindNames {
		if name == s {
			return Kind(i)
		}
	}
	return Internal
}

// Error is a message plus its taxonomy kind and an optional cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Err == nil:
		return e.Msg
	case e.Msg == "":
		return e.Err.Error()
	default:
		return e.Msg + ": " + e.Err.Error()
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New returns an Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap returns an Error of the given kind that wraps err.
// A nil err yields nil.
func Wrap(kind Kind, err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf reports the kind of the first *Error in err's chain, or Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
