package revset

import (
	"fmt"
	"strings"
)

// NodeKind tags the variant of an AST node.
type NodeKind int

const (
	KindSymbol NodeKind = iota
	KindString
	KindInteger
	KindRange       // a:b
	KindRangePre    // :b
	KindRangePost   // a:
	KindRangeAll    // :
	KindDagRange    // a::b
	KindDagRangePre // ::b
	KindDagRangePost
	KindDagRangeAll
	KindParent     // a^n
	KindParentPost // a^
	KindAncestor   // a~n
	KindAnd
	KindOr
	KindNot
	KindNegate
	KindMinus
	KindGroup
	KindFunc
	KindKeyValue
	KindRelation     // a#name
	KindRelSubscript // a#name[i]
	KindSubscript    // a[i]
	KindList         // comma list
	KindConcat       // a ## b
	KindOnly         // a % b
	KindOnlyPost     // a%
)

var kindNames = map[NodeKind]string{
	KindSymbol:       "symbol",
	KindString:       "string",
	KindInteger:      "integer",
	KindRange:        "range",
	KindRangePre:     "rangepre",
	KindRangePost:    "rangepost",
	KindRangeAll:     "rangeall",
	KindDagRange:     "dagrange",
	KindDagRangePre:  "dagrangepre",
	KindDagRangePost: "dagrangepost",
	KindDagRangeAll:  "dagrangeall",
	KindParent:       "parent",
	KindParentPost:   "parentpost",
	KindAncestor:     "ancestor",
	KindAnd:          "and",
	KindOr:           "or",
	KindNot:          "not",
	KindNegate:       "negate",
	KindMinus:        "minus",
	KindGroup:        "group",
	KindFunc:         "func",
	KindKeyValue:     "keyvalue",
	KindRelation:     "relation",
	KindRelSubscript: "relsubscript",
	KindSubscript:    "subscript",
	KindList:         "list",
	KindConcat:       "_concat",
	KindOnly:         "only",
	KindOnlyPost:     "onlypost",
}

func (k NodeKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Order is the ordering requirement attached to a node by the analyzer.
type Order int

const (
	// OrderAny leaves the evaluator free to pick the cheapest order.
	OrderAny Order = iota
	// OrderDefine means the node establishes the order its consumer sees.
	OrderDefine
	// OrderFollow means the node must follow the order of its input set.
	OrderFollow
)

func (o Order) String() string {
	switch o {
	case OrderDefine:
		return "define"
	case OrderFollow:
		return "follow"
	default:
		return "any"
	}
}

// Node is a tagged-variant AST node. Value carries symbol/string text and
// Num the value of integer literals. Trees are immutable once built;
// transformation passes allocate new nodes.
type Node struct {
	Kind     NodeKind
	Value    string
	Num      int64
	Children []*Node
	Order    Order
	Pos      int
}

func newNode(kind NodeKind, pos int, children ...*Node) *Node {
	return &Node{Kind: kind, Pos: pos, Children: children}
}

func symbolNode(text string, pos int) *Node {
	return &Node{Kind: KindSymbol, Value: text, Pos: pos}
}

func stringNode(text string, pos int) *Node {
	return &Node{Kind: KindString, Value: text, Pos: pos}
}

func intNode(n int64, text string, pos int) *Node {
	return &Node{Kind: KindInteger, Value: text, Num: n, Pos: pos}
}

// funcNode builds a function call node; the first child is the name symbol.
func funcNode(name string, pos int, args ...*Node) *Node {
	children := append([]*Node{symbolNode(name, pos)}, args...)
	return &Node{Kind: KindFunc, Pos: pos, Children: children}
}

// FuncName returns the name of a function-call node, or "".
func (n *Node) FuncName() string {
	if n.Kind != KindFunc || len(n.Children) == 0 || n.Children[0].Kind != KindSymbol {
		return ""
	}
	return n.Children[0].Value
}

// FuncArgs returns the argument nodes of a function-call node.
func (n *Node) FuncArgs() []*Node {
	if n.Kind != KindFunc || len(n.Children) == 0 {
		return nil
	}
	return n.Children[1:]
}

// clone returns a shallow copy with a fresh children slice.
func (n *Node) clone() *Node {
	c := *n
	c.Children = append([]*Node(nil), n.Children...)
	return &c
}

// Equal reports structural equality, ignoring positions and order
// annotations.
func (n *Node) Equal(o *Node) bool {
	if n == nil || o == nil {
		return n == o
	}
	if n.Kind != o.Kind || n.Value != o.Value || n.Num != o.Num ||
		len(n.Children) != len(o.Children) {
		return false
	}
	for i := range n.Children {
		if !n.Children[i].Equal(o.Children[i]) {
			return false
		}
	}
	return true
}

// String renders the tree in prefix form, for tests and debug output.
func (n *Node) String() string {
	var b strings.Builder
	n.write(&b)
	return b.String()
}

func (n *Node) write(b *strings.Builder) {
	switch n.Kind {
	case KindSymbol:
		fmt.Fprintf(b, "(symbol '%s')", n.Value)
	case KindString:
		fmt.Fprintf(b, "(string '%s')", n.Value)
	case KindInteger:
		fmt.Fprintf(b, "(integer %d)", n.Num)
	default:
		fmt.Fprintf(b, "(%s", n.Kind)
		for _, c := range n.Children {
			b.WriteByte(' ')
			c.write(b)
		}
		b.WriteByte(')')
	}
}
