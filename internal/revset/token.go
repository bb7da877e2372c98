package revset

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
	tokLBracket
	tokRBracket
	tokColon  // :
	tokDColon // ::
	tokCaret  // ^
	tokTilde  // ~
	tokMinus  // -
	tokPlus   // +
	tokPipe   // |
	tokAmp    // &
	tokPct    // %
	tokComma  // ,
	tokEq     // =
	tokHash   // #
	tokDHash  // ##
	tokNot    // "not" or "!"
	tokAnd    // "and"
	tokOr     // "or"
)

var tokenNames = map[tokenKind]string{
	tokEnd:      "end",
	tokSymbol:   "symbol",
	tokString:   "string",
	tokInt:      "integer",
	tokLParen:   "(",
	tokRParen:   ")",
	tokLBracket: "[",
	tokRBracket: "]",
	tokColon:    ":",
	tokDColon:   "::",
	tokCaret:    "^",
	tokTilde:    "~",
	tokMinus:    "-",
	tokPlus:     "+",
	tokPipe:     "|",
	tokAmp:      "&",
	tokPct:      "%",
	tokComma:    ",",
	tokEq:       "=",
	tokHash:     "#",
	tokDHash:    "##",
	tokNot:      "not",
	tokAnd:      "and",
	tokOr:       "or",
}

func (k tokenKind) String() string {
	if s, ok := tokenNames[k]; ok {
		return s
	}
	return fmt.Sprintf("token(%d)", int(k))
}

// token is a lexical unit with its byte offset in the query string.
type token struct {
	kind tokenKind
	text string
	pos  int
}

// Characters that may appear in an unquoted symbol. Branch names with dots
// or slashes, hex node prefixes, and alias formals like $1 all tokenize as
// single symbols.
func isSymbolChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' ||
		c >= '0' && c <= '9' || c == '.' || c == '_' || c == '@' ||
		c == '/' || c == '$' || c >= 0x80
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// tokenize converts a query string into a token stream terminated by an
// end token. Failures carry the byte offset of the offending character.
func tokenize(text string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(text) {
		c := text[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == ':':
			if i+1 < len(text) && text[i+1] == ':' {
				toks = append(toks, token{tokDColon, "::", i})
				i += 2
			} else {
				toks = append(toks, token{tokColon, ":", i})
				i++
			}
		case c == '#':
			if i+1 < len(text) && text[i+1] == '#' {
				toks = append(toks, token{tokDHash, "##", i})
				i += 2
			} else {
				toks = append(toks, token{tokHash, "#", i})
				i++
			}
		case c == '(':
			toks = append(toks, token{tokLParen, "(", i})
			i++
		case c == ')':
			toks = append(toks, token{tokRParen, ")", i})
			i++
		case c == '[':
			toks = append(toks, token{tokLBracket, "[", i})
			i++
		case c == ']':
			toks = append(toks, token{tokRBracket, "]", i})
			i++
		case c == '^':
			toks = append(toks, token{tokCaret, "^", i})
			i++
		case c == '~':
			toks = append(toks, token{tokTilde, "~", i})
			i++
		case c == '-':
			toks = append(toks, token{tokMinus, "-", i})
			i++
		case c == '+':
			toks = append(toks, token{tokPlus, "+", i})
			i++
		case c == '|':
			toks = append(toks, token{tokPipe, "|", i})
			i++
		case c == '&':
			toks = append(toks, token{tokAmp, "&", i})
			i++
		case c == '%':
			toks = append(toks, token{tokPct, "%", i})
			i++
		case c == ',':
			toks = append(toks, token{tokComma, ",", i})
			i++
		case c == '=':
			toks = append(toks, token{tokEq, "=", i})
			i++
		case c == '!':
			toks = append(toks, token{tokNot, "!", i})
			i++
		case c == '\'' || c == '"':
			s, next, err := scanString(text, i, text[i], false)
			if err != nil {
				return nil, err
			}
			toks = append(toks, token{tokString, s, i})
			i = next
		case c == 'r' && i+1 < len(text) && (text[i+1] == '\'' || text[i+1] == '"'):
			s, next, err := scanString(text, i+1, text[i+1], true)
			if err != nil {
				return nil, err
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
			switch {
			case word == "and":
				toks = append(toks, token{tokAnd, word, start})
			case word == "or":
				toks = append(toks, token{tokOr, word, start})
			case word == "not":
				toks = append(toks, token{tokNot, word, start})
			case allDigits:
				toks = append(toks, token{tokInt, word, start})
			default:
				toks = append(toks, token{tokSymbol, word, start})
			}
		default:
			return nil, parseErrAt(i, "invalid token")
		}
	}
	toks = append(toks, token{tokEnd, "", len(text)})
	return toks, nil
}

// scanString scans a quoted string starting at the opening quote and
// returns the decoded value and the offset just past the closing quote.
// Raw strings (r-prefixed) suppress escape processing.
func scanString(text string, open int, quote byte, raw bool) (string, int, error) {
	if open+1 >= len(text) {
		return "", 0, parseErrAt(open, "unmatched quotes")
	}
	var b strings.Builder
	i := open + 1
	for i < len(text) {
		c := text[i]
		if c == quote {
			return b.String(), i + 1, nil
		}
		if raw {
			// Backslashes are literal, but one still escapes a closing
			// quote for termination purposes, and a trailing backslash
			// is an error just as in cooked strings.
			if c == '\\' {
				if i+1 >= len(text) {
					return "", 0, parseErrAt(i, "trailing \\ in string")
				}
				if text[i+1] == quote {
					b.WriteByte('\\')
					b.WriteByte(quote)
					i += 2
					continue
				}
			}
			b.WriteByte(c)
			i++
			continue
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
		case '0':
			b.WriteByte(0)
			i++
		case 'x':
			if i+2 >= len(text) || !isHexDigit(text[i+1]) || !isHexDigit(text[i+2]) {
				return "", 0, parseErrAt(i-1, "invalid \\x escape")
			}
			b.WriteByte(hexVal(text[i+1])<<4 | hexVal(text[i+2]))
			i += 3
		default:
			// Unknown escapes pass through with the backslash kept.
			b.WriteByte('\\')
			b.WriteByte(e)
			i++
		}
	}
	return "", 0, parseErrAt(open, "unterminated string")
}

func isHexDigit(c byte) bool {
	return c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F'
}

func hexVal(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}
