package revset

import (
	"sync"

	"revq/internal/repo"
)

// Parse tokenizes and parses a query into a raw AST. A query that fails
// the strict grammar but still looks like a single plausible name (for
// example a branch called "-stable") gets a second chance as a bare
// symbol; the name is then resolved, and rejected, at evaluation time.
func Parse(query string) (*Node, error) {
	n, err := parseStrict(query)
	if err == nil {
		return n, nil
	}
	if _, isParse := err.(*ParseError); isParse && plausibleName(query) {
		return symbolNode(query, 0), nil
	}
	return nil, err
}

func parseStrict(query string) (*Node, error) {
	toks, err := tokenize(query)
	if err != nil {
		return nil, err
	}
	return parse(toks)
}

// plausibleName accepts strings made of symbol characters and dashes.
// Anything with whitespace, quotes, or operator punctuation keeps its
// parse error.
func plausibleName(s string) bool {
	if s == "" {
		return false
	}
	hasWord := false
	for i := 0; i < len(s); i++ {
		switch {
		case isSymbolChar(s[i]):
			hasWord = true
		case s[i] == '-':
		default:
			return false
		}
	}
	return hasWord
}

// Analyze folds string concatenation, validates operator operands, and
// attaches ordering requirements, producing the tree the evaluator and
// optimizer consume.
func Analyze(n *Node) (*Node, error) {
	folded, err := foldConcat(n)
	if err != nil {
		return nil, err
	}
	return analyze(folded, OrderDefine)
}

// Optimize rewrites an analyzed tree into a cheaper equivalent.
func Optimize(n *Node) *Node {
	return optimize(n)
}

// Options configures an Engine.
type Options struct {
	// Aliases is the user alias table, nil for none.
	Aliases *AliasTable
	// Registry supplies the predicates, nil for the built-ins.
	Registry *Registry
	// NoOptimize evaluates the analyzed tree as-is.
	NoOptimize bool
}

// Engine ties the pipeline together for repeated queries against one
// repository: parse, expand aliases, analyze, optimize, evaluate.
// Compiled trees are cached per query text; the cache is safe for
// concurrent use, and evaluations are independent of each other.
type Engine struct {
	repo     repo.Repository
	aliases  *AliasTable
	registry *Registry
	optimize bool

	mu    sync.Mutex
	cache map[string]*Node
}

// NewEngine builds an Engine over r.
func NewEngine(r repo.Repository, opts Options) *Engine {
	reg := opts.Registry
	if reg == nil {
		reg = NewRegistry()
	}
	return &Engine{
		repo:     r,
		aliases:  opts.Aliases,
		registry: reg,
		optimize: !opts.NoOptimize,
		cache:    make(map[string]*Node),
	}
}

// Compile runs the front half of the pipeline and caches the result.
func (e *Engine) Compile(query string) (*Node, error) {
	e.mu.Lock()
	cached, ok := e.cache[query]
	e.mu.Unlock()
	if ok {
		return cached, nil
	}
	tree, err := Parse(query)
	if err != nil {
		return nil, err
	}
	if e.aliases != nil {
		tree, err = e.aliases.Expand(tree)
		if err != nil {
			return nil, err
		}
	}
	tree, err = Analyze(tree)
	if err != nil {
		return nil, err
	}
	if e.optimize {
		tree = Optimize(tree)
	}
	e.mu.Lock()
	e.cache[query] = tree
	e.mu.Unlock()
	return tree, nil
}

// Query evaluates a query against the whole repository.
func (e *Engine) Query(query string) (Set, error) {
	tree, err := e.Compile(query)
	if err != nil {
		return nil, err
	}
	return NewEvaluator(e.repo, e.registry).Eval(tree)
}

// Revs evaluates a query and materializes the result in iteration order.
func (e *Engine) Revs(query string) ([]int64, error) {
	s, err := e.Query(query)
	if err != nil {
		return nil, err
	}
	return toSlice(s), nil
}
