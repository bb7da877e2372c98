package template

import (
	"fmt"
	"strings"
)

type nodeKind int

const (
	kindSymbol nodeKind = iota
	kindString
	kindInteger
	kindGroup
	kindFunc // first child is the name symbol
	kindPipe // left expression, right name symbol
	kindNegate
	kindAdd
	kindSub
	kindMul
	kindDiv
	kindList
)

var kindNames = map[nodeKind]string{
	kindSymbol:  "symbol",
	kindString:  "string",
	kindInteger: "integer",
	kindGroup:   "group",
	kindFunc:    "func",
	kindPipe:    "pipe",
	kindNegate:  "negate",
	kindAdd:     "add",
	kindSub:     "sub",
	kindMul:     "mul",
	kindDiv:     "div",
	kindList:    "list",
}

func (k nodeKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

type node struct {
	kind     nodeKind
	value    string
	num      int64
	children []*node
	pos      int
}

func newNode(kind nodeKind, pos int, children ...*node) *node {
	return &node{kind: kind, pos: pos, children: children}
}

func symbolNode(text string, pos int) *node {
	return &node{kind: kindSymbol, value: text, pos: pos}
}

func (n *node) funcName() string {
	if n.kind != kindFunc || len(n.children) == 0 || n.children[0].kind != kindSymbol {
		return ""
	}
	return n.children[0].value
}

func (n *node) funcArgs() []*node {
	if n.kind != kindFunc || len(n.children) == 0 {
		return nil
	}
	return n.children[1:]
}

func (n *node) String() string {
	var b strings.Builder
	n.write(&b)
	return b.String()
}

func (n *node) write(b *strings.Builder) {
	switch n.kind {
	case kindSymbol:
		fmt.Fprintf(b, "(symbol '%s')", n.value)
	case kindString:
		fmt.Fprintf(b, "(string '%s')", n.value)
	case kindInteger:
		fmt.Fprintf(b, "(integer %d)", n.num)
	default:
		fmt.Fprintf(b, "(%s", n.kind)
		for _, c := range n.children {
			b.WriteByte(' ')
			c.write(b)
		}
		b.WriteByte(')')
	}
}
