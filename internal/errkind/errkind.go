// Package errkind classifies failures into the small set of conditions the
// engine surfaces to callers.
package errkind

import (
	"errors"
	"fmt"
)

// Kind is a stable failure category.
type Kind string

const (
	// NotFound covers missing repositories, runs, files and snapshot documents.
	NotFound Kind = "not_found"
	// InvalidInput covers empty or malformed query fields and config values.
	InvalidInput Kind = "invalid_input"
	// ExtractionFailure covers run-level faults (walk, head commit, publish).
	ExtractionFailure Kind = "extraction_failure"
	// UpstreamFailure covers answer generator transport and payload faults.
	UpstreamFailure Kind = "upstream_failure"
	// Conflict is returned when a repository already has a run in flight.
	Conflict Kind = "conflict"
)

// Error carries a Kind, the operation that failed, and an optional cause.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

// New returns an *Error without an underlying cause.
func New(kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}

// Wrap returns an *Error wrapping err. A nil err yields nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf formats a message and classifies it.
func Errorf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
	case e.Msg != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether any error in err's chain is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	for err != nil {
		if !errors.As(err, &e) {
			return false
		}
		if e.Kind == kind {
			return true
		}
		err = e.Err
	}
	return false
}

// Of returns the outermost Kind in err's chain, or "" when err is unclassified.
func Of(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
