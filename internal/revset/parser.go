package revset

import "strconv"

// Binding strengths of each token in infix position. The parser is a
// precedence-climbing (Pratt) loop: prefix, infix, and suffix rules per
// token, with the strengths below deciding how far an operand parse
// reaches.
var bindings = map[tokenKind]int{
	tokLParen:   21,
	tokLBracket: 21,
	tokHash:     21,
	tokDHash:    20,
	tokTilde:    18,
	tokCaret:    18,
	tokDColon:   17,
	tokColon:    15,
	tokNot:      10,
	tokMinus:    5,
	tokAnd:      5,
	tokAmp:      5,
	tokPct:      5,
	tokOr:       4,
	tokPipe:     4,
	tokPlus:     4,
	tokEq:       3,
	tokComma:    2,
}

type parser struct {
	toks []token
	pos  int
}

// parse parses a token stream into an AST. Group nodes are kept; alias
// expansion, concat folding, and analysis run later.
func parse(toks []token) (*Node, error) {
	p := &parser{toks: toks}
	tree, err := p.parse(0)
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEnd {
		return nil, parseErrAt(t.pos, "invalid token")
	}
	return tree, nil
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) advance() token {
	t := p.toks[p.pos]
	if t.kind != tokEnd {
		p.pos++
	}
	return t
}

// hasNewTerm reports whether the next token may start a new term. It
// disambiguates primary-vs-prefix readings of ":" and "::" and
// infix-vs-suffix readings of "^" and "%".
func (p *parser) hasNewTerm() bool {
	switch p.peek().kind {
	case tokSymbol, tokString, tokInt, tokLParen, tokMinus, tokNot,
		tokColon, tokDColon:
		return true
	}
	return false
}

func (p *parser) parse(bind int) (*Node, error) {
	tok := p.advance()
	expr, err := p.parsePrefix(tok)
	if err != nil {
		return nil, err
	}
	for bind < bindings[p.peek().kind] {
		tok = p.advance()
		expr, err = p.parseInfix(tok, expr)
		if err != nil {
			return nil, err
		}
	}
	return expr, nil
}

func (p *parser) parsePrefix(tok token) (*Node, error) {
	switch tok.kind {
	case tokSymbol:
		return symbolNode(tok.text, tok.pos), nil
	case tokString:
		return stringNode(tok.text, tok.pos), nil
	case tokInt:
		n, err := strconv.ParseInt(tok.text, 10, 64)
		if err != nil {
			return nil, parseErrAt(tok.pos, "invalid token")
		}
		return intNode(n, tok.text, tok.pos), nil
	case tokLParen:
		operand, err := p.parseOperand(0, tokRParen)
		if err != nil {
			return nil, err
		}
		group := newNode(KindGroup, tok.pos)
		if operand != nil {
			group.Children = []*Node{operand}
		}
		return group, nil
	case tokMinus:
		operand, err := p.parseOperand(19, tokEnd)
		if err != nil {
			return nil, err
		}
		return newNode(KindNegate, tok.pos, operand), nil
	case tokNot:
		operand, err := p.parseOperand(10, tokEnd)
		if err != nil {
			return nil, err
		}
		return newNode(KindNot, tok.pos, operand), nil
	case tokDColon:
		if !p.hasNewTerm() {
			return newNode(KindDagRangeAll, tok.pos), nil
		}
		operand, err := p.parseOperand(17, tokEnd)
		if err != nil {
			return nil, err
		}
		return newNode(KindDagRangePre, tok.pos, operand), nil
	case tokColon:
		if !p.hasNewTerm() {
			return newNode(KindRangeAll, tok.pos), nil
		}
		operand, err := p.parseOperand(15, tokEnd)
		if err != nil {
			return nil, err
		}
		return newNode(KindRangePre, tok.pos, operand), nil
	}
	text := tok.text
	if text == "" {
		text = tok.kind.String()
	}
	return nil, parseErrAt(tok.pos, "not a prefix: %s", text)
}

func (p *parser) parseInfix(tok token, left *Node) (*Node, error) {
	switch tok.kind {
	case tokLParen:
		arg, err := p.parseOperand(1, tokRParen)
		if err != nil {
			return nil, err
		}
		fn := newNode(KindFunc, left.Pos, left)
		if arg != nil {
			if arg.Kind == KindList {
				fn.Children = append(fn.Children, arg.Children...)
			} else {
				fn.Children = append(fn.Children, arg)
			}
		}
		return fn, nil
	case tokLBracket:
		index, err := p.parseOperand(1, tokRBracket)
		if err != nil {
			return nil, err
		}
		if index == nil {
			return nil, parseErr("missing argument")
		}
		return newNode(KindSubscript, tok.pos, left, index), nil
	case tokHash:
		right, err := p.parseOperand(21, tokEnd)
		if err != nil {
			return nil, err
		}
		return newNode(KindRelation, tok.pos, left, right), nil
	case tokDHash:
		right, err := p.parseOperand(20, tokEnd)
		if err != nil {
			return nil, err
		}
		return p.flatten(KindConcat, tok.pos, left, right), nil
	case tokTilde:
		right, err := p.parseOperand(18, tokEnd)
		if err != nil {
			return nil, err
		}
		return newNode(KindAncestor, tok.pos, left, right), nil
	case tokCaret:
		// "x^" is postfix unless a parent index can follow; "x^:y"
		// must read as "(x^):y", so a range operator forces the
		// postfix reading too.
		next := p.peek().kind
		if !p.hasNewTerm() || next == tokColon || next == tokDColon {
			return newNode(KindParentPost, tok.pos, left), nil
		}
		right, err := p.parseOperand(18, tokEnd)
		if err != nil {
			return nil, err
		}
		return newNode(KindParent, tok.pos, left, right), nil
	case tokDColon:
		if !p.hasNewTerm() {
			return newNode(KindDagRangePost, tok.pos, left), nil
		}
		right, err := p.parseOperand(17, tokEnd)
		if err != nil {
			return nil, err
		}
		return newNode(KindDagRange, tok.pos, left, right), nil
	case tokColon:
		if !p.hasNewTerm() {
			return newNode(KindRangePost, tok.pos, left), nil
		}
		right, err := p.parseOperand(15, tokEnd)
		if err != nil {
			return nil, err
		}
		return newNode(KindRange, tok.pos, left, right), nil
	case tokMinus:
		right, err := p.parseOperand(5, tokEnd)
		if err != nil {
			return nil, err
		}
		return newNode(KindMinus, tok.pos, left, right), nil
	case tokAnd, tokAmp:
		right, err := p.parseOperand(5, tokEnd)
		if err != nil {
			return nil, err
		}
		return newNode(KindAnd, tok.pos, left, right), nil
	case tokPct:
		if !p.hasNewTerm() {
			return newNode(KindOnlyPost, tok.pos, left), nil
		}
		right, err := p.parseOperand(5, tokEnd)
		if err != nil {
			return nil, err
		}
		return newNode(KindOnly, tok.pos, left, right), nil
	case tokOr, tokPipe, tokPlus:
		right, err := p.parseOperand(4, tokEnd)
		if err != nil {
			return nil, err
		}
		// Consecutive unions flatten into one N-ary node so the
		// optimizer sees the whole chain at once.
		return p.flatten(KindOr, tok.pos, left, right), nil
	case tokEq:
		right, err := p.parseOperand(3, tokEnd)
		if err != nil {
			return nil, err
		}
		return newNode(KindKeyValue, tok.pos, left, right), nil
	case tokComma:
		right, err := p.parseOperand(2, tokEnd)
		if err != nil {
			return nil, err
		}
		return p.flatten(KindList, tok.pos, left, right), nil
	}
	return nil, parseErrAt(tok.pos, "unexpected token: %s", tok.kind)
}

// flatten builds an N-ary node of the given kind, splicing a left operand
// that already has the same kind.
func (p *parser) flatten(kind NodeKind, pos int, left, right *Node) *Node {
	if left.Kind == kind {
		out := left.clone()
		out.Children = append(out.Children, right)
		return out
	}
	return newNode(kind, pos, left, right)
}

// parseOperand parses the operand of a rule. When closing is a real token
// it is consumed after the operand; an immediately-present closing token
// means an empty operand (nil), surfaced as "missing argument" at
// evaluation rather than a parse failure.
func (p *parser) parseOperand(bind int, closing tokenKind) (*Node, error) {
	if closing != tokEnd && p.peek().kind == closing {
		p.advance()
		return nil, nil
	}
	expr, err := p.parse(bind)
	if err != nil {
		return nil, err
	}
	if closing != tokEnd {
		if t := p.peek(); t.kind != closing {
			return nil, parseErrAt(t.pos, "unexpected token: %s", t.kind)
		}
		p.advance()
	}
	return expr, nil
}
