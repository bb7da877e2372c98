package template

import (
	"strconv"
	"strings"

	"revq/internal/repo"
	"revq/internal/revset"
)

// Engine renders templates against one repository. revset(...) expressions
// resolve through a query engine over the same repository, so alias tables
// and the compiled-query cache are shared with ordinary queries.
type Engine struct {
	repo    repo.Repository
	queries *revset.Engine
}

// NewEngine builds a template Engine over r, running embedded queries
// through queries.
func NewEngine(r repo.Repository, queries *revset.Engine) *Engine {
	return &Engine{repo: r, queries: queries}
}

// Render evaluates a parsed template against one revision.
func (e *Engine) Render(t *Template, rev int64) (string, error) {
	ctx := &evalCtx{eng: e, rev: rev}
	var b strings.Builder
	for _, seg := range t.segs {
		if seg.expr == nil {
			b.WriteString(seg.text)
			continue
		}
		v, err := ctx.eval(seg.expr)
		if err != nil {
			return "", err
		}
		b.WriteString(stringify(v))
	}
	return b.String(), nil
}

// RenderString parses and renders in one step.
func (e *Engine) RenderString(text string, rev int64) (string, error) {
	t, err := Parse(text)
	if err != nil {
		return "", err
	}
	return e.Render(t, rev)
}

// A value is one of int64, string, revset.Set, []int64, or []string.
type value interface{}

type evalCtx struct {
	eng *Engine
	rev int64
}

func (c *evalCtx) eval(n *node) (value, error) {
	switch n.kind {
	case kindInteger:
		return n.num, nil
	case kindString:
		return n.value, nil
	case kindSymbol:
		return c.keyword(n.value)
	case kindGroup:
		if len(n.children) == 0 {
			return nil, parseErr("missing argument")
		}
		return c.eval(n.children[0])
	case kindNegate:
		v, err := c.evalInt(n.children[0])
		if err != nil {
			return nil, err
		}
		return -v, nil
	case kindAdd, kindSub, kindMul, kindDiv:
		return c.arith(n)
	case kindPipe:
		return c.pipe(n)
	case kindFunc:
		name := n.funcName()
		if name == "" {
			return nil, parseErr("expected a symbol, got '%s'", n.children[0].kind)
		}
		fn, ok := funcs[name]
		if !ok {
			return nil, parseErr("unknown function '%s'", name)
		}
		return fn(c, n.funcArgs())
	case kindList:
		return nil, parseErr("can't use a list in this context")
	}
	return nil, parseErr("can't use %s in this context", n.kind)
}

// keyword resolves a bare symbol against the current revision's fields.
func (c *evalCtx) keyword(name string) (value, error) {
	meta := c.eng.repo.Meta(c.rev)
	if meta == nil {
		meta = &repo.Meta{}
	}
	switch name {
	case "rev":
		return c.rev, nil
	case "node":
		return c.eng.repo.NodeID(c.rev), nil
	case "user", "author":
		return meta.User, nil
	case "desc":
		return meta.Desc, nil
	case "branch":
		return meta.Branch, nil
	case "date":
		return meta.Date, nil
	case "phase":
		return meta.Phase, nil
	case "files":
		return meta.Files(), nil
	}
	return nil, parseErr("keyword '%s' unknown", name)
}

func (c *evalCtx) arith(n *node) (value, error) {
	a, err := c.evalInt(n.children[0])
	if err != nil {
		return nil, err
	}
	b, err := c.evalInt(n.children[1])
	if err != nil {
		return nil, err
	}
	switch n.kind {
	case kindAdd:
		return a + b, nil
	case kindSub:
		return a - b, nil
	case kindMul:
		return a * b, nil
	default:
		if b == 0 {
			return nil, parseErr("division by zero is not defined")
		}
		return floorDiv(a, b), nil
	}
}

// pipe applies "x|f": the single-argument calling convention is shared
// with f(x), so any one-argument function works as a filter.
func (c *evalCtx) pipe(n *node) (value, error) {
	right := n.children[1]
	if right.kind != kindSymbol {
		return nil, parseErr("expected a symbol, got '%s'", right.kind)
	}
	fn, ok := funcs[right.value]
	if !ok {
		return nil, parseErr("unknown function '%s'", right.value)
	}
	return fn(c, []*node{n.children[0]})
}

func (c *evalCtx) evalInt(n *node) (int64, error) {
	v, err := c.eval(n)
	if err != nil {
		return 0, err
	}
	switch x := v.(type) {
	case int64:
		return x, nil
	case string:
		if i, err := strconv.ParseInt(x, 10, 64); err == nil {
			return i, nil
		}
	}
	return 0, parseErr("arithmetic only defined on integers")
}

// Floor division and the matching modulo: the quotient rounds toward
// negative infinity and the remainder takes the divisor's sign, so
// 5 / -2 is -3 and mod(5, -2) is -1.
func floorDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

func floorMod(a, b int64) int64 {
	r := a % b
	if r != 0 && (r < 0) != (b < 0) {
		r += b
	}
	return r
}

func stringify(v value) string {
	switch x := v.(type) {
	case nil:
		return ""
	case int64:
		return strconv.FormatInt(x, 10)
	case string:
		return x
	case revset.Set:
		return joinRevs(setRevs(x))
	case []int64:
		return joinRevs(x)
	case []string:
		return strings.Join(x, " ")
	}
	return ""
}

func truthy(v value) bool {
	switch x := v.(type) {
	case int64:
		return x != 0
	case string:
		return x != ""
	case revset.Set:
		return x.Len() > 0
	case []int64:
		return len(x) > 0
	case []string:
		return len(x) > 0
	}
	return false
}

// setRevs materializes a set in its iteration order.
func setRevs(s revset.Set) []int64 {
	var revs []int64
	it := s.Iterate()
	for rev, ok := it.Next(); ok; rev, ok = it.Next() {
		revs = append(revs, rev)
	}
	return revs
}

func joinRevs(revs []int64) string {
	var b strings.Builder
	for i, rev := range revs {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(strconv.FormatInt(rev, 10))
	}
	return b.String()
}
