// Package revset implements the revision-set query language: tokenizer,
// parser, alias expansion, analysis, optimization, and lazy ordered-set
// evaluation over a revision graph.
package revset

import (
	"fmt"
	"strings"
)

// ParseError covers lexical, syntactic, and semantic failures of a query.
// Offset is the byte offset of the failure, or -1 when the error is not
// tied to a position (post-parse semantic errors).
type ParseError struct {
	Msg    string
	Offset int
}

func (e *ParseError) Error() string {
	if e.Offset >= 0 {
		return fmt.Sprintf("parse error at %d: %s", e.Offset, e.Msg)
	}
	return fmt.Sprintf("parse error: %s", e.Msg)
}

// Hint renders a two-line caret diagram pointing at the offending column.
// It returns "" when the error carries no offset.
func (e *ParseError) Hint(query string) string {
	if e.Offset < 0 || e.Offset > len(query) {
		return ""
	}
	return query + "\n" + strings.Repeat(" ", e.Offset) + "^ here"
}

func parseErrAt(offset int, format string, args ...interface{}) *ParseError {
	return &ParseError{Msg: fmt.Sprintf(format, args...), Offset: offset}
}

func parseErr(format string, args ...interface{}) *ParseError {
	return &ParseError{Msg: fmt.Sprintf(format, args...), Offset: -1}
}

// UnknownIdentifierError reports a predicate or relation name that is not
// registered, with an optional edit-distance suggestion.
type UnknownIdentifierError struct {
	Name       string
	Suggestion string
}

func (e *UnknownIdentifierError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("unknown identifier: %s (did you mean %s?)", e.Name, e.Suggestion)
	}
	return fmt.Sprintf("unknown identifier: %s", e.Name)
}

// ArgumentError reports a predicate-specific arity, type, or keyword
// mismatch.
type ArgumentError struct {
	Msg string
}

func (e *ArgumentError) Error() string { return e.Msg }

func argErr(format string, args ...interface{}) *ArgumentError {
	return &ArgumentError{Msg: fmt.Sprintf(format, args...)}
}

// AliasError reports a bad alias definition or infinite alias expansion.
type AliasError struct {
	Name     string
	Reason   string
	Infinite bool
}

func (e *AliasError) Error() string {
	if e.Infinite {
		return fmt.Sprintf("infinite expansion of revset alias %q detected", e.Name)
	}
	return fmt.Sprintf("bad definition of revset alias %q: %s", e.Name, e.Reason)
}

// LookupError reports a failed revision, tag, branch, or namespace lookup.
type LookupError struct {
	Msg string
}

func (e *LookupError) Error() string { return e.Msg }

func lookupErr(format string, args ...interface{}) *LookupError {
	return &LookupError{Msg: fmt.Sprintf(format, args...)}
}

// IsQueryError reports whether err belongs to the query error taxonomy,
// i.e. whether a CLI caller should treat it as a parse/semantic failure
// (exit status 255) rather than an internal error.
func IsQueryError(err error) bool {
	switch err.(type) {
	case *ParseError, *UnknownIdentifierError, *ArgumentError, *AliasError, *LookupError:
		return true
	}
	return false
}
