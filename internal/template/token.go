package template

import (
	"fmt"
	"strings"
)

type tokenKind int

const (
	tokEnd tokenKind = iota
	tokSymbol
	tokString
	tokInt
	tokLParen
	tokRParen
	tokComma
	tokPipe  // |
	tokPlus  // +
	tokMinus // -
	tokStar  // *
	tokSlash // /
)

var tokenNames = map[tokenKind]string{
	tokEnd:    "end",
	tokSymbol: "symbol",
	tokString: "string",
	tokInt:    "integer",
	tokLParen: "(",
	tokRParen: ")",
	tokComma:  ",",
	tokPipe:   "|",
	tokPlus:   "+",
	tokMinus:  "-",
	tokStar:   "*",
	tokSlash:  "/",
}

func (k tokenKind) String() string {
	if s, ok := tokenNames[k]; ok {
		return s
	}
	return fmt.Sprintf("token(%d)", int(k))
}

type token struct {
	kind tokenKind
	text string
	pos  int
}

func isSymbolChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' ||
		c >= '0' && c <= '9' || c == '_' || c >= 0x80
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// tokenizeExpr tokenizes one expansion expression starting just past its
// opening brace. It stops at the closing brace and returns the offset just
// past it; reaching the end of the text first is an error. Positions are
// absolute offsets into the full template text.
func tokenizeExpr(text string, start int) ([]token, int, error) {
	var toks []token
	i := start
	for i < len(text) {
		c := text[i]
		switch {
		case c == '}':
			toks = append(toks, token{tokEnd, "", i})
			return toks, i + 1, nil
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '(':
			toks = append(toks, token{tokLParen, "(", i})
			i++
		case c == ')':
			toks = append(toks, token{tokRParen, ")", i})
			i++
		case c == ',':
			toks = append(toks, token{tokComma, ",", i})
			i++
		case c == '|':
			toks = append(toks, token{tokPipe, "|", i})
			i++
		case c == '+':
			toks = append(toks, token{tokPlus, "+", i})
			i++
		case c == '-':
			toks = append(toks, token{tokMinus, "-", i})
			i++
		case c == '*':
			toks = append(toks, token{tokStar, "*", i})
			i++
		case c == '/':
			toks = append(toks, token{tokSlash, "/", i})
			i++
		case c == '\'' || c == '"':
			s, next, err := scanString(text, i, c)
			if err != nil {
				return nil, 0, err
			}
			toks = append(toks, token{tokString, s, i})
			i = next
		case isSymbolChar(c):
			start := i
			allDigits := true
			for i < len(text) && isSymbolChar(text[i]) {
				if !isDigit(text[i]) {
					allDigits = false
				}
				i++
			}
			word := text[start:i]
			if allDigits {
				toks = append(toks, token{tokInt, word, start})
			} else {
				toks = append(toks, token{tokSymbol, word, start})
			}
		default:
			return nil, 0, parseErrAt(i, "invalid token")
		}
	}
	return nil, 0, parseErrAt(start-1, "unterminated template expansion")
}

// scanString scans a quoted string starting at the opening quote and
// returns the decoded value and the offset just past the closing quote.
func scanString(text string, open int, quote byte) (string, int, error) {
	var b strings.Builder
	i := open + 1
	for i < len(text) {
		c := text[i]
		if c == quote {
			return b.String(), i + 1, nil
		}
		if c != '\\' {
			b.WriteByte(c)
			i++
			continue
		}
		if i+1 >= len(text) {
			return "", 0, parseErrAt(i, "trailing \\ in string")
		}
		i++
		switch e := text[i]; e {
		case '\\', '\'', '"':
			b.WriteByte(e)
			i++
		case 'n':
			b.WriteByte('\n')
			i++
		case 't':
			b.WriteByte('\t')
			i++
		case 'r':
			b.WriteByte('\r')
			i++
		default:
			b.WriteByte('\\')
			b.WriteByte(e)
			i++
		}
	}
	return "", 0, parseErrAt(open, "unterminated string")
}
