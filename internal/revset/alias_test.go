package revset

import (
	"strings"
	"testing"
)

func expandQuery(t *testing.T, aliases map[string]string, query string) (*Node, error) {
	t.Helper()
	table := NewAliasTable(aliases)
	return table.Expand(mustParse(t, query))
}

func TestAlias_SymbolAlias(t *testing.T) {
	tree, err := expandQuery(t, map[string]string{"work": "branch(dev) and not merge()"}, "work")
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	want := "(and (func (symbol 'branch') (symbol 'dev')) (not (func (symbol 'merge'))))"
	if tree.String() != want {
		t.Errorf("expanded to %s, expected %s", tree, want)
	}
}

func TestAlias_FunctionAlias(t *testing.T) {
	tests := []struct {
		name    string
		aliases map[string]string
		query   string
		tree    string
	}{
		{
			name:    "positional parameter",
			aliases: map[string]string{"sincebranch($1)": "descendants(roots(branch($1)))"},
			query:   "sincebranch(dev)",
			tree:    "(func (symbol 'descendants') (func (symbol 'roots') (func (symbol 'branch') (symbol 'dev'))))",
		},
		{
			name:    "named parameters",
			aliases: map[string]string{"span(lo, hi)": "lo:hi"},
			query:   "span(2, 5)",
			tree:    "(range (integer 2) (integer 5))",
		},
		{
			name:    "argument expanded before substitution",
			aliases: map[string]string{"p(x)": "parents(x)", "w": "wdir()"},
			query:   "p(w)",
			tree:    "(func (symbol 'parents') (func (symbol 'wdir')))",
		},
		{
			name:    "formal in string position becomes opaque literal",
			aliases: map[string]string{"byauthor($1)": "author('$1')"},
			query:   "byauthor(alice)",
			tree:    "(func (symbol 'author') (string 'alice'))",
		},
		{
			name:    "alias name in function position is not a symbol reference",
			aliases: map[string]string{"parents": "p1()"},
			query:   "parents(2)",
			tree:    "(func (symbol 'parents') (integer 2))",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree, err := expandQuery(t, tt.aliases, tt.query)
			if err != nil {
				t.Fatalf("expand: %v", err)
			}
			if tree.String() != tt.tree {
				t.Errorf("expanded to %s, expected %s", tree, tt.tree)
			}
		})
	}
}

func TestAlias_InfiniteExpansion(t *testing.T) {
	tests := []struct {
		name    string
		aliases map[string]string
		query   string
		alias   string
	}{
		{
			name:    "self reference",
			aliases: map[string]string{"loop": "loop or tip"},
			query:   "loop",
			alias:   "loop",
		},
		{
			name:    "mutual recursion",
			aliases: map[string]string{"ping": "pong", "pong": "ping"},
			query:   "ping",
			alias:   "ping",
		},
		{
			name:    "function cycle",
			aliases: map[string]string{"f($1)": "g($1)", "g($1)": "f($1)"},
			query:   "f(0)",
			alias:   "f",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := expandQuery(t, tt.aliases, tt.query)
			aerr, ok := err.(*AliasError)
			if !ok {
				t.Fatalf("expand = %v, expected *AliasError", err)
			}
			if !aerr.Infinite || aerr.Name != tt.alias {
				t.Errorf("error = %v, expected infinite expansion of %q", aerr, tt.alias)
			}
		})
	}
}

func TestAlias_BadDefinition(t *testing.T) {
	// A malformed declaration degrades to a warning and never matches.
	table := NewAliasTable(map[string]string{"bad(": "tip"})
	if len(table.Warnings) != 1 {
		t.Fatalf("Warnings = %v, expected one entry", table.Warnings)
	}
	if !strings.Contains(table.Warnings[0], `failed to parse revset alias declaration "bad("`) {
		t.Errorf("unexpected warning %q", table.Warnings[0])
	}

	// A used alias whose body cannot be parsed is a hard error.
	table = NewAliasTable(map[string]string{"broken": "tip or"})
	_, err := table.Expand(symbolNode("broken", 0))
	aerr, ok := err.(*AliasError)
	if !ok {
		t.Fatalf("Expand = %v, expected *AliasError", err)
	}
	if aerr.Infinite || aerr.Name != "broken" {
		t.Errorf("error = %v, expected bad definition of %q", aerr, "broken")
	}

	// The same broken alias is harmless while unused.
	if _, err := table.Expand(symbolNode("tip", 0)); err != nil {
		t.Errorf("Expand(tip) = %v, expected success", err)
	}
}

func TestAlias_ArityMismatch(t *testing.T) {
	_, err := expandQuery(t, map[string]string{"pair(a, b)": "a or b"}, "pair(1)")
	if err == nil || !strings.Contains(err.Error(), "invalid number of arguments: 1") {
		t.Errorf("expand = %v, expected arity error", err)
	}
}
