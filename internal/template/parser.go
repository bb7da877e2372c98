package template

import "strconv"

// Binding strengths for infix position. The filter pipe binds tighter than
// arithmetic so "1-3|stringify" reads as "1-(3|stringify)", while prefix
// negate binds tighter still so "-3|stringify" reads as "(-3)|stringify".
var bindings = map[tokenKind]int{
	tokLParen: 20,
	tokPipe:   15,
	tokStar:   5,
	tokSlash:  5,
	tokPlus:   4,
	tokMinus:  4,
	tokComma:  2,
}

type parser struct {
	toks []token
	pos  int
}

// parseExpr parses one expansion expression from its token stream.
func parseExpr(toks []token) (*node, error) {
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

func (p *parser) parse(bind int) (*node, error) {
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

func (p *parser) parsePrefix(tok token) (*node, error) {
	switch tok.kind {
	case tokSymbol:
		return symbolNode(tok.text, tok.pos), nil
	case tokString:
		return &node{kind: kindString, value: tok.text, pos: tok.pos}, nil
	case tokInt:
		n, err := strconv.ParseInt(tok.text, 10, 64)
		if err != nil {
			return nil, parseErrAt(tok.pos, "invalid token")
		}
		return &node{kind: kindInteger, value: tok.text, num: n, pos: tok.pos}, nil
	case tokLParen:
		operand, err := p.parseOperand(0, tokRParen)
		if err != nil {
			return nil, err
		}
		group := newNode(kindGroup, tok.pos)
		if operand != nil {
			group.children = []*node{operand}
		}
		return group, nil
	case tokMinus:
		operand, err := p.parseOperand(19, tokEnd)
		if err != nil {
			return nil, err
		}
		return newNode(kindNegate, tok.pos, operand), nil
	}
	text := tok.text
	if text == "" {
		text = tok.kind.String()
	}
	return nil, parseErrAt(tok.pos, "not a prefix: %s", text)
}

func (p *parser) parseInfix(tok token, left *node) (*node, error) {
	switch tok.kind {
	case tokLParen:
		arg, err := p.parseOperand(1, tokRParen)
		if err != nil {
			return nil, err
		}
		fn := newNode(kindFunc, left.pos, left)
		if arg != nil {
			if arg.kind == kindList {
				fn.children = append(fn.children, arg.children...)
			} else {
				fn.children = append(fn.children, arg)
			}
		}
		return fn, nil
	case tokPipe:
		right, err := p.parseOperand(15, tokEnd)
		if err != nil {
			return nil, err
		}
		return newNode(kindPipe, tok.pos, left, right), nil
	case tokStar:
		right, err := p.parseOperand(5, tokEnd)
		if err != nil {
			return nil, err
		}
		return newNode(kindMul, tok.pos, left, right), nil
	case tokSlash:
		right, err := p.parseOperand(5, tokEnd)
		if err != nil {
			return nil, err
		}
		return newNode(kindDiv, tok.pos, left, right), nil
	case tokPlus:
		right, err := p.parseOperand(4, tokEnd)
		if err != nil {
			return nil, err
		}
		return newNode(kindAdd, tok.pos, left, right), nil
	case tokMinus:
		right, err := p.parseOperand(4, tokEnd)
		if err != nil {
			return nil, err
		}
		return newNode(kindSub, tok.pos, left, right), nil
	case tokComma:
		right, err := p.parseOperand(2, tokEnd)
		if err != nil {
			return nil, err
		}
		if left.kind == kindList {
			out := *left
			out.children = append(append([]*node(nil), left.children...), right)
			return &out, nil
		}
		return newNode(kindList, tok.pos, left, right), nil
	}
	return nil, parseErrAt(tok.pos, "unexpected token: %s", tok.kind)
}

// parseOperand parses the operand of a rule, consuming the closing token
// when one is given. An immediately-present closing token means an empty
// operand.
func (p *parser) parseOperand(bind int, closing tokenKind) (*node, error) {
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
