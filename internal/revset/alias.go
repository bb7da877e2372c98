package revset

import (
	"fmt"
)

// AliasDef is one named macro from the session configuration. The body is
// parsed lazily, on first use: a broken declaration only degrades to a
// warning until a query actually references it.
type AliasDef struct {
	Name   string
	Params []string // formal parameter symbols, nil for symbol aliases
	IsFunc bool

	body   string
	tree   *Node
	err    error
	parsed bool
}

func (d *AliasDef) parseBody() (*Node, error) {
	if !d.parsed {
		d.parsed = true
		toks, err := tokenize(d.body)
		if err == nil {
			d.tree, err = parse(toks)
		}
		d.err = err
	}
	return d.tree, d.err
}

// AliasTable holds the alias definitions of a session. It is immutable
// once built and safe to share between evaluations.
type AliasTable struct {
	defs map[string]*AliasDef

	// Warnings collects non-fatal declaration problems.
	Warnings []string
}

// NewAliasTable builds an alias table from declaration strings of the form
// "name = body" or "name(p1, p2) = body" (the map key carries the left
// side). Malformed declarations are skipped with a warning.
func NewAliasTable(decls map[string]string) *AliasTable {
	t := &AliasTable{defs: make(map[string]*AliasDef)}
	for decl, body := range decls {
		def, err := parseAliasDecl(decl)
		if err != nil {
			t.Warnings = append(t.Warnings,
				fmt.Sprintf("failed to parse revset alias declaration %q: %v", decl, err))
			continue
		}
		def.body = body
		t.defs[def.Name] = def
	}
	return t
}

// parseAliasDecl parses the left side of an alias definition.
func parseAliasDecl(decl string) (*AliasDef, error) {
	toks, err := tokenize(decl)
	if err != nil {
		return nil, err
	}
	tree, err := parse(toks)
	if err != nil {
		return nil, err
	}
	switch tree.Kind {
	case KindSymbol:
		return &AliasDef{Name: tree.Value}, nil
	case KindFunc:
		if tree.Children[0].Kind != KindSymbol {
			return nil, parseErr("not a symbol")
		}
		def := &AliasDef{Name: tree.FuncName(), IsFunc: true}
		for _, arg := range tree.FuncArgs() {
			if arg.Kind != KindSymbol {
				return nil, parseErr("invalid argument list")
			}
			def.Params = append(def.Params, arg.Value)
		}
		return def, nil
	}
	return nil, parseErr("invalid format")
}

// Get returns the named alias definition, or nil.
func (t *AliasTable) Get(name string) *AliasDef {
	if t == nil {
		return nil
	}
	return t.defs[name]
}

// Names returns all declared alias names, for suggestion candidates.
func (t *AliasTable) Names() []string {
	if t == nil {
		return nil
	}
	names := make([]string, 0, len(t.defs))
	for n := range t.defs {
		names = append(names, n)
	}
	return names
}

// Expand substitutes alias references in the tree, recursively, and fails
// with *AliasError on cyclic definitions or on use of an alias whose body
// does not parse.
func (t *AliasTable) Expand(tree *Node) (*Node, error) {
	if t == nil || len(t.defs) == 0 {
		return tree, nil
	}
	return t.expand(tree, nil)
}

func (t *AliasTable) expand(n *Node, stack []string) (*Node, error) {
	if n == nil {
		return nil, nil
	}
	switch n.Kind {
	case KindString, KindInteger:
		return n, nil
	case KindSymbol:
		if def := t.defs[n.Value]; def != nil && !def.IsFunc {
			return t.expandDef(def, nil, stack)
		}
		return n, nil
	case KindFunc:
		name := n.FuncName()
		if def := t.defs[name]; def != nil && def.IsFunc {
			args := n.FuncArgs()
			if len(args) != len(def.Params) {
				return nil, parseErr("invalid number of arguments: %d", len(args))
			}
			expanded := make([]*Node, len(args))
			for i, arg := range args {
				a, err := t.expand(arg, stack)
				if err != nil {
					return nil, err
				}
				expanded[i] = a
			}
			return t.expandDef(def, expanded, stack)
		}
	}
	out := n.clone()
	for i, c := range out.Children {
		// The name position of a function call is not an alias
		// reference.
		if n.Kind == KindFunc && i == 0 {
			continue
		}
		e, err := t.expand(c, stack)
		if err != nil {
			return nil, err
		}
		out.Children[i] = e
	}
	return out, nil
}

func (t *AliasTable) expandDef(def *AliasDef, args []*Node, stack []string) (*Node, error) {
	for _, name := range stack {
		if name == def.Name {
			return nil, &AliasError{Name: def.Name, Infinite: true}
		}
	}
	body, err := def.parseBody()
	if err != nil {
		return nil, &AliasError{Name: def.Name, Reason: err.Error()}
	}
	instance := body
	if len(def.Params) > 0 {
		binding := make(map[string]*Node, len(def.Params))
		for i, p := range def.Params {
			binding[p] = args[i]
		}
		instance = substituteParams(body, binding)
	}
	return t.expand(instance, append(stack, def.Name))
}

// substituteParams splices actual arguments into an alias body. A formal
// referenced from a string position takes the argument's string form and
// stays a string literal afterwards: values spliced that way are opaque to
// any further substitution or expansion.
func substituteParams(n *Node, binding map[string]*Node) *Node {
	switch n.Kind {
	case KindSymbol:
		if arg, ok := binding[n.Value]; ok {
			return arg
		}
		return n
	case KindString:
		if arg, ok := binding[n.Value]; ok {
			if s, ok := nodeText(arg); ok {
				return stringNode(s, n.Pos)
			}
		}
		return n
	}
	out := n.clone()
	for i, c := range out.Children {
		if n.Kind == KindFunc && i == 0 {
			continue
		}
		out.Children[i] = substituteParams(c, binding)
	}
	return out
}

// nodeText returns the literal text of a leaf node, if it has one.
func nodeText(n *Node) (string, bool) {
	switch n.Kind {
	case KindSymbol, KindString:
		return n.Value, true
	case KindInteger:
		return n.Value, true
	}
	return "", false
}
