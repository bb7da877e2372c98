package revset

import "strconv"

// foldConcat runs the "concatenated" stage: every ## chain whose operands
// are literals collapses into a single string node. It runs after alias
// expansion so spliced alias arguments can participate, and before
// analysis.
func foldConcat(n *Node) (*Node, error) {
	if n == nil {
		return nil, nil
	}
	out := n.clone()
	for i, c := range out.Children {
		f, err := foldConcat(c)
		if err != nil {
			return nil, err
		}
		out.Children[i] = f
	}
	if out.Kind != KindConcat {
		return out, nil
	}
	joined := ""
	for _, c := range out.Children {
		s, ok := nodeText(c)
		if !ok {
			return nil, parseErr("\"##\" can't concatenate \"%s\" element", c.Kind)
		}
		joined += s
	}
	return stringNode(joined, out.Pos), nil
}

// analyze resolves ambiguous constructs and attaches ordering requirements
// top-down. The returned tree contains no group, concat, negate, only-infix,
// or bare-relation nodes.
func analyze(n *Node, ord Order) (*Node, error) {
	return analyzeIn(n, ord, false)
}

func analyzeIn(n *Node, ord Order, inArgs bool) (*Node, error) {
	if n == nil {
		return nil, parseErr("missing argument")
	}
	switch n.Kind {
	case KindSymbol, KindString, KindInteger:
		out := n.clone()
		out.Order = ord
		return out, nil

	case KindGroup:
		if len(n.Children) == 0 {
			return nil, parseErr("missing argument")
		}
		return analyzeIn(n.Children[0], ord, inArgs)

	case KindNegate:
		// Unary minus of a literal is a negative revision number.
		if text, ok := nodeText(n.Children[0]); ok {
			out := symbolNode("-"+text, n.Pos)
			out.Order = ord
			return out, nil
		}
		return nil, parseErr("can't negate that")

	case KindAnd, KindMinus:
		left, err := analyze(n.Children[0], ord)
		if err != nil {
			return nil, err
		}
		rightOrd := OrderFollow
		if ord == OrderAny {
			rightOrd = OrderAny
		}
		if n.Kind == KindMinus {
			// The subtracted side's order never matters.
			rightOrd = OrderAny
		}
		right, err := analyze(n.Children[1], rightOrd)
		if err != nil {
			return nil, err
		}
		out := newNode(n.Kind, n.Pos, left, right)
		out.Order = ord
		return out, nil

	case KindOr:
		childOrd := OrderDefine
		if ord == OrderAny {
			childOrd = OrderAny
		}
		out := newNode(KindOr, n.Pos)
		out.Order = ord
		for _, c := range n.Children {
			a, err := analyze(c, childOrd)
			if err != nil {
				return nil, err
			}
			// Groups may hide nested unions; keep the chain flat.
			if a.Kind == KindOr {
				out.Children = append(out.Children, a.Children...)
			} else {
				out.Children = append(out.Children, a)
			}
		}
		return out, nil

	case KindNot:
		child, err := analyze(n.Children[0], OrderAny)
		if err != nil {
			return nil, err
		}
		out := newNode(KindNot, n.Pos, child)
		out.Order = ord
		return out, nil

	case KindRange, KindDagRange:
		left, err := analyze(n.Children[0], OrderAny)
		if err != nil {
			return nil, err
		}
		right, err := analyze(n.Children[1], OrderAny)
		if err != nil {
			return nil, err
		}
		out := newNode(n.Kind, n.Pos, left, right)
		out.Order = ord
		return out, nil

	case KindRangePre, KindRangePost, KindDagRangePre, KindDagRangePost:
		child, err := analyze(n.Children[0], OrderAny)
		if err != nil {
			return nil, err
		}
		out := newNode(n.Kind, n.Pos, child)
		out.Order = ord
		return out, nil

	case KindRangeAll, KindDagRangeAll:
		out := newNode(n.Kind, n.Pos)
		out.Order = ord
		return out, nil

	case KindParentPost:
		child, err := analyze(n.Children[0], OrderAny)
		if err != nil {
			return nil, err
		}
		out := newNode(KindParent, n.Pos, child)
		out.Num = 1
		out.Order = ord
		return out, nil

	case KindParent:
		child, err := analyze(n.Children[0], OrderAny)
		if err != nil {
			return nil, err
		}
		idx := n.Children[1]
		if idx.Kind != KindInteger || idx.Num > 2 {
			return nil, argErr("^ expects a number 0, 1, or 2")
		}
		out := newNode(KindParent, n.Pos, child)
		out.Num = idx.Num
		out.Order = ord
		return out, nil

	case KindAncestor:
		child, err := analyze(n.Children[0], OrderAny)
		if err != nil {
			return nil, err
		}
		idx := n.Children[1]
		if idx.Kind != KindInteger {
			return nil, argErr("~ expects a number")
		}
		out := newNode(KindAncestor, n.Pos, child)
		out.Num = idx.Num
		out.Order = ord
		return out, nil

	case KindOnly:
		return analyzeIn(funcNode("only", n.Pos, n.Children[0], n.Children[1]), ord, inArgs)

	case KindOnlyPost:
		return analyzeIn(funcNode("only", n.Pos, n.Children[0]), ord, inArgs)

	case KindSubscript:
		base := n.Children[0]
		if base.Kind != KindRelation {
			return nil, parseErr("can't use a subscript in this context")
		}
		set, err := analyze(base.Children[0], OrderAny)
		if err != nil {
			return nil, err
		}
		name := base.Children[1]
		if name.Kind != KindSymbol {
			return nil, parseErr("expected a symbol, got '%s'", name.Kind)
		}
		idx, ok := subscriptValue(n.Children[1])
		if !ok {
			return nil, parseErr("relation subscript must be an integer")
		}
		out := newNode(KindRelSubscript, n.Pos, set, name.clone())
		out.Num = idx
		out.Order = ord
		return out, nil

	case KindRelation:
		return nil, parseErr("can't use a relation in this context")

	case KindFunc:
		name := n.Children[0]
		if name.Kind != KindSymbol {
			return nil, parseErr("not a symbol")
		}
		out := newNode(KindFunc, n.Pos, name.clone())
		out.Order = ord
		for _, arg := range n.FuncArgs() {
			a, err := analyzeIn(arg, OrderDefine, true)
			if err != nil {
				return nil, err
			}
			out.Children = append(out.Children, a)
		}
		return out, nil

	case KindKeyValue:
		if !inArgs {
			return nil, parseErr("can't use a key-value pair in this context")
		}
		key := n.Children[0]
		if key.Kind != KindSymbol {
			return nil, parseErr("expected a symbol, got '%s'", key.Kind)
		}
		value, err := analyzeIn(n.Children[1], OrderDefine, false)
		if err != nil {
			return nil, err
		}
		out := newNode(KindKeyValue, n.Pos, key.clone(), value)
		out.Order = ord
		return out, nil

	case KindList:
		return nil, parseErr("can't use a list in this context")

	case KindConcat:
		// Normally folded before analysis; fold stragglers here too.
		folded, err := foldConcat(n)
		if err != nil {
			return nil, err
		}
		return analyzeIn(folded, ord, inArgs)
	}
	return nil, parseErr("unexpected node: %s", n.Kind)
}

// subscriptValue extracts a literal, possibly negated, integer index.
func subscriptValue(n *Node) (int64, bool) {
	if n == nil {
		return 0, false
	}
	switch n.Kind {
	case KindInteger:
		return n.Num, true
	case KindNegate:
		if n.Children[0].Kind == KindInteger {
			return -n.Children[0].Num, true
		}
	case KindSymbol:
		// Negative literals arrive as symbols after earlier passes.
		if v, err := strconv.ParseInt(n.Value, 10, 64); err == nil {
			return v, true
		}
	}
	return 0, false
}
