package revset

import "strings"

// optimize applies algebraic rewrites to an analyzed tree. It is pure,
// semantics-preserving for every ordering requirement, and idempotent.
// Nodes with missing operands pass through untouched so their errors
// surface at evaluation.
func optimize(n *Node) *Node {
	if n == nil {
		return nil
	}
	out := n.clone()
	for i, c := range out.Children {
		if out.Kind == KindFunc && i == 0 {
			continue
		}
		out.Children[i] = optimize(c)
	}

	switch out.Kind {
	case KindAnd:
		if len(out.Children) != 2 {
			return out
		}
		left, right := out.Children[0], out.Children[1]
		// ancestors(A) and not ancestors(B) evaluates as a single
		// combined walk.
		if right.Kind == KindNot && len(right.Children) == 1 {
			if a, ok := ancestorsOperand(left); ok {
				if b, ok := ancestorsOperand(right.Children[0]); ok {
					only := funcNode("only", out.Pos, a, b)
					only.Order = out.Order
					return only
				}
			}
		}
		if left.Kind == KindNot && len(left.Children) == 1 {
			if b, ok := ancestorsOperand(left.Children[0]); ok {
				if a, ok := ancestorsOperand(right); ok {
					only := funcNode("only", out.Pos, a, b)
					only.Order = out.Order
					return only
				}
			}
		}
		// Evaluate the narrower operand first when neither side has a
		// hard ordering requirement.
		if left.Order == OrderAny && right.Order == OrderAny &&
			weight(right) < weight(left) {
			out.Children[0], out.Children[1] = right, left
		}
		return out

	case KindMinus:
		if len(out.Children) != 2 {
			return out
		}
		if a, ok := ancestorsOperand(out.Children[0]); ok {
			if b, ok := ancestorsOperand(out.Children[1]); ok {
				only := funcNode("only", out.Pos, a, b)
				only.Order = out.Order
				return only
			}
		}
		return out

	case KindOr:
		if lit, ok := literalListValue(out.Children); ok && len(out.Children) > 1 {
			list := funcNode("_list", out.Pos, stringNode(lit, out.Pos))
			list.Order = out.Order
			return list
		}
		return out

	case KindFunc:
		if out.FuncName() == "sort" {
			args := out.FuncArgs()
			// An empty sort key string is a pass-through.
			if len(args) == 2 && args[1].Kind == KindString && args[1].Value == "" {
				return args[0]
			}
		}
		return out
	}
	return out
}

// ancestorsOperand recognizes "::A" and single-argument "ancestors(A)" and
// returns A. Depth-limited or keyword-style calls do not qualify.
func ancestorsOperand(n *Node) (*Node, bool) {
	switch n.Kind {
	case KindDagRangePre:
		if len(n.Children) == 1 {
			return n.Children[0], true
		}
	case KindFunc:
		if n.FuncName() != "ancestors" {
			return nil, false
		}
		args := n.FuncArgs()
		if len(args) == 1 && args[0].Kind != KindKeyValue {
			return args[0], true
		}
	}
	return nil, false
}

// literalListValue joins exclusively-literal union operands into the
// argument of the _list primitive.
func literalListValue(children []*Node) (string, bool) {
	parts := make([]string, 0, len(children))
	for _, c := range children {
		switch c.Kind {
		case KindSymbol, KindInteger:
			parts = append(parts, c.Value)
		default:
			return "", false
		}
	}
	return strings.Join(parts, "\x00"), true
}

// Static cost estimates for the commutative-reordering rewrite. The exact
// numbers only steer which operand evaluates first; correctness never
// depends on them.
var funcWeights = map[string]float64{
	"_list":       0.5,
	"merge":       1,
	"branchpoint": 1,
	"branch":      5,
	"tag":         5,
	"bookmark":    5,
	"phase":       5,
	"public":      5,
	"draft":       5,
	"secret":      5,
	"obsolete":    5,
	"author":      10,
	"user":        10,
	"desc":        10,
	"date":        10,
	"extra":       10,
	"ancestors":   10,
	"descendants": 10,
	"only":        10,
	"file":        30,
	"modifies":    30,
	"adds":        30,
	"removes":     30,
	"contains":    100,
	"grep":        100,
	"keyword":     100,
	"matching":    100,
}

func weight(n *Node) float64 {
	if n == nil {
		return 0
	}
	switch n.Kind {
	case KindSymbol, KindString, KindInteger:
		return 0.5
	case KindRange, KindRangePre, KindRangePost, KindRangeAll:
		return 1
	case KindDagRange, KindDagRangePre, KindDagRangePost, KindDagRangeAll:
		return 10
	case KindParent, KindAncestor:
		return weight(n.Children[0]) + 1
	case KindNot:
		return weight(n.Children[0]) + 1
	case KindAnd, KindMinus, KindOr:
		total := 0.0
		for _, c := range n.Children {
			total += weight(c)
		}
		return total
	case KindFunc:
		w, ok := funcWeights[n.FuncName()]
		if !ok {
			w = 1
		}
		for _, a := range n.FuncArgs() {
			w += weight(a)
		}
		return w
	}
	return 1
}
