package revset

import (
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"

	"revq/internal/repo"
)

func dayDate(day int) int64 {
	return time.Date(2020, time.January, day, 12, 0, 0, 0, time.UTC).Unix()
}

// newMergeRepo builds the ten-revision fixture graph:
//
//	0 -- 1 -- 2 -- 4 -- 7 -- 8        (7, 8 on branch "stable")
//	      \         \
//	       3 -- 5 ---`6 -- 9          (6 merges 5 and 4)
func newMergeRepo(t *testing.T) *repo.Memory {
	t.Helper()
	r := repo.NewMemory()
	add := func(meta repo.Meta, parents ...int64) {
		t.Helper()
		if _, err := r.AddRevision(meta, parents...); err != nil {
			t.Fatal(err)
		}
	}
	add(repo.Meta{User: "alice", Desc: "initial import", Phase: repo.PhasePublic,
		Date: dayDate(1), Added: []string{"README.md", "src/main.go"}})
	add(repo.Meta{User: "alice", Desc: "add core module", Phase: repo.PhasePublic,
		Date: dayDate(2), Added: []string{"src/core/core.go"}}, 0)
	add(repo.Meta{User: "bob", Desc: "fix core parser bug", Phase: repo.PhasePublic,
		Date: dayDate(3), Modified: []string{"src/core/core.go"},
		Extra: map[string]string{"source": "upstream"}}, 1)
	add(repo.Meta{User: "carol", Desc: "add docs",
		Date: dayDate(4), Added: []string{"docs/guide.md"}}, 1)
	add(repo.Meta{User: "bob", Desc: "refactor main",
		Date: dayDate(5), Modified: []string{"src/main.go"}}, 2)
	add(repo.Meta{User: "carol", Desc: "expand docs",
		Date: dayDate(6), Modified: []string{"docs/guide.md"}}, 3)
	add(repo.Meta{User: "alice", Desc: "merge docs into main",
		Date: dayDate(7)}, 5, 4)
	add(repo.Meta{User: "dave", Desc: "start stable branch", Branch: "stable",
		Date: dayDate(8), Added: []string{"RELEASE.md"}}, 4)
	add(repo.Meta{User: "dave", Desc: "stable fixes", Branch: "stable",
		Phase: repo.PhaseSecret, Date: dayDate(9), Removed: []string{"README.md"}}, 7)
	add(repo.Meta{User: "alice", Desc: "release prep",
		Date: dayDate(10), Modified: []string{"README.md"}}, 6)
	r.SetTag("v1.0", 4)
	r.SetBookmark("feature", 5)
	r.SetSuccessor(3, 5)
	return r
}

func queryRevs(t *testing.T, r repo.Repository, query string) []int64 {
	t.Helper()
	revs, err := NewEngine(r, Options{}).Revs(query)
	if err != nil {
		t.Fatalf("query %q: %v", query, err)
	}
	return revs
}

func checkQuery(t *testing.T, r repo.Repository, query string, want []int64) {
	t.Helper()
	got := queryRevs(t, r, query)
	if len(got) == 0 && len(want) == 0 {
		return
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("query %q = %v, expected %v", query, got, want)
	}
}

func TestEval_Symbols(t *testing.T) {
	r := newMergeRepo(t)
	tests := []struct {
		query string
		want  []int64
	}{
		{"3", []int64{3}},
		{"tip", []int64{9}},
		{".", []int64{9}},
		{"null", []int64{-1}},
		{"-2", []int64{8}},
		{"-10", []int64{0}},
		{"v1.0", []int64{4}},
		{"feature", []int64{5}},
		{"stable", []int64{8}}, // branch name resolves to its tip
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			checkQuery(t, r, tt.query, tt.want)
		})
	}

	// Hex node IDs resolve both bare and through id(). A short prefix
	// could collide with a decimal revision number, so pick one long
	// enough to contain a hex letter.
	id := r.NodeID(3)
	prefix := id[:6]
	for i := 6; i < len(id) && !strings.ContainsAny(prefix, "abcdef"); i++ {
		prefix = id[:i+1]
	}
	checkQuery(t, r, id, []int64{3})
	checkQuery(t, r, prefix, []int64{3})
	checkQuery(t, r, fmt.Sprintf("id('%s')", prefix), []int64{3})
	checkQuery(t, r, "id('ffffffffffffffff')", nil)
}

func TestEval_Operators(t *testing.T) {
	r := newMergeRepo(t)
	tests := []struct {
		query string
		want  []int64
	}{
		{"2:5", []int64{2, 3, 4, 5}},
		{"5:2", []int64{5, 4, 3, 2}},
		{":2", []int64{0, 1, 2}},
		{"8:", []int64{8, 9}},
		{":", []int64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}},
		{"(2+5):(0+3)", []int64{2, 3}}, // min of left, max of right
		{"1::6", []int64{1, 2, 3, 4, 5, 6}},
		{"::4", []int64{0, 1, 2, 4}},
		{"3::", []int64{3, 5, 6, 9}},
		{"::", []int64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}},
		{"0:4 and 2:6", []int64{2, 3, 4}},
		{"0:4 - 2:3", []int64{0, 1, 4}},
		{"not 0:7", []int64{8, 9}},
		{"2+0+1", []int64{2, 0, 1}}, // union keeps written operand order
		{"2:4 | 3:6", []int64{2, 3, 4, 5, 6}},
		{"reverse(all()) and 2:4", []int64{4, 3, 2}},
		{"9:0 & descendants(3)", []int64{9, 6, 5, 3}},
		{"9:0 & head()", []int64{9, 8}},
		{"6^", []int64{5}},
		{"6^1", []int64{5}},
		{"6^2", []int64{4}},
		{"6^0", []int64{6}},
		{"0^", nil},
		{"tip^", []int64{6}},
		{"9~2", []int64{5}},
		{"9~0", []int64{9}},
		{"(2+6+9)^", []int64{1, 5, 6}},
		{"6 % 4", []int64{3, 5, 6}},
		{"6#generations[-1]", []int64{4, 5}},
		{"1#generations[2]", []int64{4, 5}},
		{"4#generations[0]", []int64{4}},
		{"9#generations[1]", nil},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			checkQuery(t, r, tt.query, tt.want)
		})
	}
}

func TestEval_GraphPredicates(t *testing.T) {
	r := newMergeRepo(t)
	tests := []struct {
		query string
		want  []int64
	}{
		{"all()", []int64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}},
		{"none()", nil},
		{"ancestors(6)", []int64{0, 1, 2, 3, 4, 5, 6}},
		{"ancestors(6, 2)", []int64{2, 3, 4, 5, 6}},
		{"ancestors(6, depth=0)", []int64{6}},
		{"ancestors(6, 2, 1)", []int64{2, 3, 4, 5}},
		{"descendants(4)", []int64{4, 6, 7, 8, 9}},
		{"descendants(4, 1)", []int64{4, 6, 7}},
		{"descendants(1, startdepth=1)", []int64{2, 3, 4, 5, 6, 7, 8, 9}},
		{"descendants(9)", []int64{9}},
		{"ancestors(6) and not ancestors(4)", []int64{3, 5, 6}},
		{"ancestors(6) - ancestors(4)", []int64{3, 5, 6}},
		{"only(6, 4)", []int64{3, 5, 6}},
		{"only(9)", []int64{3, 5, 6, 9}},
		{"parents(6)", []int64{4, 5}},
		{"p1(6)", []int64{5}},
		{"p2(6)", []int64{4}},
		{"p2(4)", nil},
		{"parents()", []int64{9}},
		{"children(1)", []int64{2, 3}},
		{"children(4+5)", []int64{6, 7}},
		{"children(9)", nil},
		{"roots(2:5)", []int64{2, 3}},
		{"heads(0:6)", []int64{6}},
		{"head()", []int64{8, 9}},
		{"merge()", []int64{6}},
		{"branchpoint()", []int64{1, 4}},
		{"wdir()", []int64{repo.WdirRev}},
		{"wdir()^", []int64{9}},
		{"wdir()~2", []int64{6}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			checkQuery(t, r, tt.query, tt.want)
		})
	}
}

func TestEval_MetaPredicates(t *testing.T) {
	r := newMergeRepo(t)
	tests := []struct {
		query string
		want  []int64
	}{
		{"author('bob')", []int64{2, 4}},
		{"user('alice')", []int64{0, 1, 6, 9}},
		{"author('ALI')", []int64{0, 1, 6, 9}}, // substring, case-insensitive
		{"desc('docs')", []int64{3, 5, 6}},
		{"keyword('core')", []int64{1, 2}},
		{"grep('^stable')", []int64{8}},
		{"branch('stable')", []int64{7, 8}},
		{"branch('re:^sta')", []int64{7, 8}},
		{"branch(7)", []int64{7, 8}},
		{"branch('default')", []int64{0, 1, 2, 3, 4, 5, 6, 9}},
		{"bookmark()", []int64{5}},
		{"bookmark('feature')", []int64{5}},
		{"tag()", []int64{4}},
		{"tag('v1.0')", []int64{4}},
		{"named('bookmarks')", []int64{5}},
		{"named('tags')", []int64{4}},
		{"named('re:^book')", []int64{5}},
		{"date('2020-01-03')", []int64{2}},
		{"date('>2020-01-08')", []int64{7, 8, 9}},
		{"date('<2020-01-02')", []int64{0, 1}},
		{"date('2020-01-02 to 2020-01-04')", []int64{1, 2, 3}},
		{"date('-5')", nil}, // nothing in the fixture is recent
		{"file('docs/**')", []int64{3, 5}},
		{"file('src/core/core.go')", []int64{1, 2}},
		{"adds('docs/guide.md')", []int64{3}},
		{"modifies('src/main.go')", []int64{4}},
		{"removes('README.md')", []int64{8}},
		{"contains('docs/guide.md')", []int64{3, 5, 6, 9}},
		{"contains('README.md')", []int64{0, 1, 2, 3, 4, 5, 6, 7, 9}},
		{"extra('source')", []int64{2}},
		{"extra('source', 'upstream')", []int64{2}},
		{"extra('source', 're:^up')", []int64{2}},
		{"extra('nope')", nil},
		{"matching(2, 'user')", []int64{2, 4}},
		{"matching(2)", []int64{2}},
		{"matching(7+8, 'branch')", []int64{7, 8}},
		{"public()", []int64{0, 1, 2}},
		{"draft()", []int64{3, 4, 5, 6, 7, 9}},
		{"secret()", []int64{8}},
		{"phase('secret')", []int64{8}},
		{"obsolete()", []int64{3}},
		{"successors(3)", []int64{5}},
		{"predecessors(5)", []int64{3}},
		{"successors(0)", nil},
		{"rev(3)", []int64{3}},
		{"rev(99)", nil},
		{"rev(-1)", nil},
		{"present(bogusname)", nil},
		{"present(3)", []int64{3}},
		{"present(frobnicate())", nil},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			checkQuery(t, r, tt.query, tt.want)
		})
	}
}

func TestEval_LimitAndBoundary(t *testing.T) {
	r := newMergeRepo(t)
	tests := []struct {
		query string
		want  []int64
	}{
		{"limit(all(), 3)", []int64{0, 1, 2}},
		{"limit(all(), 2, 5)", []int64{5, 6}},
		{"limit(all())", []int64{0}},
		{"limit(all(), n=2)", []int64{0, 1}},
		{"limit(9+7+3, 2)", []int64{9, 7}},
		{"first(9:0, 2)", []int64{9, 8}},
		{"first(9:0)", []int64{9}},
		{"last(all(), 3)", []int64{7, 8, 9}},
		{"last(all())", []int64{9}},
		{"min(all())", []int64{0}},
		{"max(all())", []int64{9}},
		{"min(none())", nil},
		{"max(4+2+6)", []int64{6}},
		{"min(9:5)", []int64{5}},
		{"reverse(2:4)", []int64{4, 3, 2}},
		{"reverse(reverse(all()))", []int64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			checkQuery(t, r, tt.query, tt.want)
		})
	}
}

func TestEval_Sort(t *testing.T) {
	r := newMergeRepo(t)
	tests := []struct {
		query string
		want  []int64
	}{
		{"sort(7+3+5)", []int64{3, 5, 7}}, // default key is rev
		{"sort(all(), '-rev')", []int64{9, 8, 7, 6, 5, 4, 3, 2, 1, 0}},
		{"sort(reverse(all()), 'rev')", []int64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}},
		{"sort(all(), 'user')", []int64{0, 1, 6, 9, 2, 4, 3, 5, 7, 8}},
		// A descending key flips comparisons but keeps ties stable, so
		// it differs from reversing the ascending sort.
		{"sort(all(), '-user')", []int64{7, 8, 3, 5, 2, 4, 0, 1, 6, 9}},
		{"reverse(sort(all(), 'user'))", []int64{8, 7, 5, 3, 4, 2, 9, 6, 1, 0}},
		{"sort(all(), 'branch rev')", []int64{0, 1, 2, 3, 4, 5, 6, 9, 7, 8}},
		{"sort(all(), 'date')", []int64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}},
		{"sort(all(), 'topo')", []int64{9, 6, 5, 3, 1, 0, 4, 2, 8, 7}},
		{"sort(all(), 'topo', topo.firstbranch=8)", []int64{8, 7, 4, 2, 1, 0, 9, 6, 5, 3}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			checkQuery(t, r, tt.query, tt.want)
		})
	}
}

func TestEval_Errors(t *testing.T) {
	r := newMergeRepo(t)
	tests := []struct {
		query string
		msg   string
	}{
		{"bogusname", "unknown revision 'bogusname'!"},
		{"99", "unknown revision '99'!"},
		{"tag('bogus')", "tag 'bogus' does not exist!"},
		{"bookmark('nope')", "bookmark 'nope' does not exist!"},
		{"branch('nope')", "branch 'nope' does not exist!"},
		{"named('nope')", "namespace 'nope' does not exist!"},
		{"id('')", "ambiguous identifier!"},
		{"add('x')", "unknown identifier: add (did you mean adds?)"},
		{"limit(all(), -1)", "negative number to select"},
		{"limit(all(), 1, -2)", "negative offset"},
		{"limit(all(), 'x')", "limit expects a number"},
		{"ancestors(6, -1)", "negative depth"},
		{"ancestors(6, startdepth=-1)", "negative startdepth"},
		{"ancestors()", "ancestors takes at least 1 positional argument"},
		{"ancestors(6, 1, 2, 3)", "ancestors takes at most 3 positional arguments"},
		{"ancestors(6, foo=1)", "ancestors got an unexpected keyword argument 'foo'"},
		{"ancestors(6, set=1)", "ancestors got multiple values for keyword argument 'set'"},
		{"phase('bogus')", "unknown phase name: bogus"},
		{"date('bogus')", "invalid date: 'bogus'"},
		{"grep('*')", "invalid match pattern:"},
		{"matching(2, 'foo')", "unexpected field name passed to matching: foo"},
		{"rev(foo)", "rev expects a number"},
		{"merge(3)", "merge takes no arguments"},
		{"sort(all(), 'foo')", `unknown sort key "foo"`},
		{"sort(all(), 'topo user')", "topo sort order cannot be combined with other sort keys"},
		{"sort(all(), 'user', topo.firstbranch=8)", "topo.firstbranch can only be used when using the topo sort key"},
		{"none():4", "empty range endpoint"},
		{"present(limit(all(), -1))", "negative number to select"},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			_, err := NewEngine(r, Options{}).Revs(tt.query)
			if err == nil {
				t.Fatalf("query %q succeeded, expected error %q", tt.query, tt.msg)
			}
			if !strings.Contains(err.Error(), tt.msg) {
				t.Errorf("query %q = %q, expected to contain %q", tt.query, err, tt.msg)
			}
			if !IsQueryError(err) {
				t.Errorf("query %q: %T is not a query error", tt.query, err)
			}
		})
	}
}

func TestEngine_CompileCache(t *testing.T) {
	r := newMergeRepo(t)
	e := NewEngine(r, Options{})
	first, err := e.Compile("ancestors(6) and not ancestors(4)")
	if err != nil {
		t.Fatal(err)
	}
	second, err := e.Compile("ancestors(6) and not ancestors(4)")
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Error("compiled tree was not cached")
	}
	if first.String() != "(func (symbol 'only') (integer 6) (integer 4))" {
		t.Errorf("compiled tree = %s", first)
	}
}

func TestEngine_NoOptimize(t *testing.T) {
	r := newMergeRepo(t)
	e := NewEngine(r, Options{NoOptimize: true})
	tree, err := e.Compile("ancestors(6) and not ancestors(4)")
	if err != nil {
		t.Fatal(err)
	}
	if tree.Kind != KindAnd {
		t.Errorf("tree kind = %s, expected the raw conjunction", tree.Kind)
	}
	revs, err := e.Revs("ancestors(6) and not ancestors(4)")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(revs, []int64{3, 5, 6}) {
		t.Errorf("revs = %v, expected [3 5 6]", revs)
	}
}

func TestEngine_Aliases(t *testing.T) {
	r := newMergeRepo(t)
	aliases := NewAliasTable(map[string]string{
		"unstable":     "only(6, 4)",
		"byauthor($1)": "author($1)",
	})
	if len(aliases.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", aliases.Warnings)
	}
	e := NewEngine(r, Options{Aliases: aliases})
	checkQuery2 := func(query string, want []int64) {
		t.Helper()
		revs, err := e.Revs(query)
		if err != nil {
			t.Fatalf("query %q: %v", query, err)
		}
		if !reflect.DeepEqual(revs, want) {
			t.Errorf("query %q = %v, expected %v", query, revs, want)
		}
	}
	checkQuery2("unstable", []int64{3, 5, 6})
	checkQuery2("byauthor('bob')", []int64{2, 4})
}
