// Package importerr defines the per-file failure taxonomy of the importer.
//
// Every failure that aborts a single file is an *Error carrying a Kind; the
// run loop catches it at the file boundary, reports it and moves on.
package importerr

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Kind classifies a per-file failure.
type Kind string

const (
	UnsupportedFormat Kind = "unsupported_format"
	ExtractionFailure Kind = "extraction_failure"
	SchemaViolation   Kind = "schema_violation"
	KeyCollision      Kind = "key_collision"
	SinkFailure       Kind = "sink_failure"
)

// Cause refines ExtractionFailure.
type Cause string

const (
	BinaryDecode Cause = "binary_decode"
	HTMLNoTable  Cause = "html_no_table"
)

// Error is a classified per-file failure.
type Error struct {
	Kind       Kind
	Cause      Cause
	File       string
	Message    string
	Suggestion string

	// Detail carries kind-specific data, such as a collision report.
	Detail any

	Err error

	// stack is recorded by New, which has no cause to carry one.
	stack error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Cause != "" {
		b.WriteString("/")
		b.WriteString(string(e.Cause))
	}
	if e.File != "" {
		b.WriteString(" ")
		b.WriteString(e.File)
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// StackTrace exposes the stack recorded when the error was created, if any.
func (e *Error) StackTrace() errors.StackTrace {
	type stackTracer interface {
		StackTrace() errors.StackTrace
	}
	var st stackTracer
	if errors.As(e.Err, &st) || errors.As(e.stack, &st) {
		return st.StackTrace()
	}
	return nil
}

// New creates a classified error with a recorded stack.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, stack: errors.New(message)}
}

// Newf is New with formatting.
func Newf(kind Kind, format string, args ...any) *Error {
	return New(kind, fmt.Sprintf(format, args...))
}

// Wrap classifies err. A nil err yields nil.
func Wrap(err error, kind Kind, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Err: errors.WithStack(err)}
}

// WithCause sets the extraction cause.
func (e *Error) WithCause(c Cause) *Error {
	e.Cause = c
	return e
}

// WithFile records the file the failure belongs to.
func (e *Error) WithFile(path string) *Error {
	e.File = path
	return e
}

// WithSuggestion attaches an operator hint.
func (e *Error) WithSuggestion(s string) *Error {
	e.Suggestion = s
	return e
}

// WithDetail attaches kind-specific data.
func (e *Error) WithDetail(d any) *Error {
	e.Detail = d
	return e
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var ie *Error
	if errors.As(err, &ie) {
		return ie, true
	}
	return nil, false
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	if ie, ok := As(err); ok {
		return ie.Kind, true
	}
	return "", false
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// SuggestionOf returns the operator hint attached to err, if any.
func SuggestionOf(err error) string {
	if ie, ok := As(err); ok {
		return ie.Suggestion
	}
	return ""
}
