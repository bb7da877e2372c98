// Package template implements the output-formatting mini-language: literal
// text interleaved with {expression} expansions over template keywords,
// filters, functions, and integer arithmetic. Expressions may embed revision
// queries via revset(...) and consume the resulting ordered sets only
// through membership, length, iteration, and slicing.
package template

import (
	"fmt"
	"strings"
)

// ParseError covers lexical, syntactic, and evaluation failures of a
// template. Offset is the byte offset into the template text, or -1 when
// the error is not tied to a position.
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
func (e *ParseError) Hint(text string) string {
	if e.Offset < 0 || e.Offset > len(text) {
		return ""
	}
	return text + "\n" + strings.Repeat(" ", e.Offset) + "^ here"
}

func parseErrAt(offset int, format string, args ...interface{}) *ParseError {
	return &ParseError{Msg: fmt.Sprintf(format, args...), Offset: offset}
}

func parseErr(format string, args ...interface{}) *ParseError {
	return &ParseError{Msg: fmt.Sprintf(format, args...), Offset: -1}
}

// IsTemplateError reports whether err is a template parse or evaluation
// failure, as opposed to an internal error.
func IsTemplateError(err error) bool {
	_, ok := err.(*ParseError)
	return ok
}

// segment is one piece of a parsed template: literal text, or an
// expansion expression.
type segment struct {
	text string
	expr *node
}

// Template is a parsed template, immutable once built.
type Template struct {
	segs []segment
}

// Parse parses a template string. Literal text supports the escapes \n,
// \t, \r, \\, and \{; a brace opens an expansion expression that runs to
// the matching closing brace.
func Parse(text string) (*Template, error) {
	t := &Template{}
	var lit strings.Builder
	i := 0
	for i < len(text) {
		c := text[i]
		switch {
		case c == '\\' && i+1 < len(text):
			switch e := text[i+1]; e {
			case 'n':
				lit.WriteByte('\n')
			case 't':
				lit.WriteByte('\t')
			case 'r':
				lit.WriteByte('\r')
			case '\\', '{':
				lit.WriteByte(e)
			default:
				lit.WriteByte('\\')
				lit.WriteByte(e)
			}
			i += 2
		case c == '{':
			if lit.Len() > 0 {
				t.segs = append(t.segs, segment{text: lit.String()})
				lit.Reset()
			}
			toks, next, err := tokenizeExpr(text, i+1)
			if err != nil {
				return nil, err
			}
			expr, err := parseExpr(toks)
			if err != nil {
				return nil, err
			}
			t.segs = append(t.segs, segment{expr: expr})
			i = next
		default:
			lit.WriteByte(c)
			i++
		}
	}
	if lit.Len() > 0 {
		t.segs = append(t.segs, segment{text: lit.String()})
	}
	return t, nil
}

// String renders the parsed template in prefix form, for debug output.
func (t *Template) String() string {
	var b strings.Builder
	for i, seg := range t.segs {
		if i > 0 {
			b.WriteByte(' ')
		}
		if seg.expr != nil {
			b.WriteString(seg.expr.String())
		} else {
			fmt.Fprintf(&b, "(text '%s')", seg.text)
		}
	}
	return b.String()
}
