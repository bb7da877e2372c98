package revset

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/emirpasic/gods/sets/linkedhashset"

	"revq/internal/repo"
)

// Predicate evaluates one named function. subset is the set the result
// must stay within; args are raw AST nodes so each predicate controls
// how its arguments are interpreted; order carries the analyzer's
// ordering requirement.
type Predicate func(ev *Evaluator, subset Set, args []*Node, order Order) (Set, error)

type predicateEntry struct {
	fn     Predicate
	hidden bool
}

// Registry maps predicate names to implementations. Host applications
// extend it with their own predicates before building an Evaluator;
// built-ins and extensions share the one table.
type Registry struct {
	preds map[string]predicateEntry
}

// NewRegistry returns a registry holding the built-in predicates.
func NewRegistry() *Registry {
	r := &Registry{preds: make(map[string]predicateEntry, len(builtins)+len(hiddenBuiltins))}
	for name, fn := range builtins {
		r.preds[name] = predicateEntry{fn: fn}
	}
	for name, fn := range hiddenBuiltins {
		r.preds[name] = predicateEntry{fn: fn, hidden: true}
	}
	return r
}

// Register adds or replaces a predicate.
func (r *Registry) Register(name string, fn Predicate) {
	r.preds[name] = predicateEntry{fn: fn}
}

// Names returns the registered predicate names, sorted, without hidden
// internals.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.preds))
	for name, e := range r.preds {
		if !e.hidden {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func (r *Registry) lookup(name string) (Predicate, bool) {
	e, ok := r.preds[name]
	if !ok {
		return nil, false
	}
	return e.fn, true
}

// suggest returns the closest registered name by edit distance, or "".
// Hidden internals never appear in suggestions.
func (r *Registry) suggest(name string) string {
	return suggestName(name, r.Names())
}

func suggestName(name string, candidates []string) string {
	best := ""
	bestDist := 3 // beyond distance 2 suggestions are noise
	for _, c := range candidates {
		d := levenshtein.ComputeDistance(name, c)
		if d < bestDist || (d == bestDist && best != "" && c < best) {
			best, bestDist = c, d
		}
	}
	if bestDist >= len(name) && bestDist > 1 {
		return ""
	}
	return best
}

// getArgs enforces a fixed arity window; msg is the complete error text.
func getArgs(args []*Node, min, max int, msg string) ([]*Node, error) {
	if len(args) < min || len(args) > max {
		return nil, argErr("%s", msg)
	}
	return args, nil
}

// evalArgSet evaluates an argument as a set over the whole repository.
func evalArgSet(ev *Evaluator, n *Node) (Set, error) {
	return ev.eval(n, ev.universe(), OrderAny)
}

// filterMeta keeps subset members whose metadata satisfies cond. The
// sentinels never match metadata filters.
func filterMeta(ev *Evaluator, subset Set, cond func(*repo.Meta) bool) Set {
	return newFiltered(subset, func(rev int64) bool {
		if rev < 0 || rev == wdirRev {
			return false
		}
		return cond(ev.repo.Meta(rev))
	})
}

var builtins = map[string]Predicate{
	"adds":         evalAdds,
	"all":          evalAll,
	"ancestors":    evalAncestors,
	"author":       evalAuthor,
	"bookmark":     evalBookmark,
	"branch":       evalBranch,
	"branchpoint":  evalBranchpoint,
	"children":     evalChildren,
	"contains":     evalContains,
	"date":         evalDate,
	"desc":         evalDesc,
	"descendants":  evalDescendants,
	"draft":        evalDraft,
	"extra":        evalExtra,
	"file":         evalFile,
	"first":        evalFirst,
	"grep":         evalGrep,
	"head":         evalHead,
	"heads":        evalHeads,
	"id":           evalID,
	"keyword":      evalKeyword,
	"last":         evalLast,
	"limit":        evalLimit,
	"matching":     evalMatching,
	"max":          evalMax,
	"merge":        evalMerge,
	"min":          evalMin,
	"modifies":     evalModifies,
	"named":        evalNamed,
	"none":         evalNone,
	"obsolete":     evalObsolete,
	"only":         evalOnly,
	"p1":           evalP1,
	"p2":           evalP2,
	"parents":      evalParents,
	"phase":        evalPhase,
	"predecessors": evalPredecessors,
	"present":      evalPresent,
	"public":       evalPublic,
	"removes":      evalRemoves,
	"rev":          evalRev,
	"reverse":      evalReverse,
	"roots":        evalRoots,
	"secret":       evalSecret,
	"sort":         evalSort,
	"successors":   evalSuccessors,
	"tag":          evalTag,
	"user":         evalAuthor,
	"wdir":         evalWdir,
}

var hiddenBuiltins = map[string]Predicate{
	"_list": evalList,
}

func evalAll(ev *Evaluator, subset Set, args []*Node, _ Order) (Set, error) {
	if _, err := getArgs(args, 0, 0, "all takes no arguments"); err != nil {
		return nil, err
	}
	n := int64(ev.repo.Len())
	return intersect(subset, newSpan(0, n-1)), nil
}

func evalNone(_ *Evaluator, _ Set, args []*Node, _ Order) (Set, error) {
	if _, err := getArgs(args, 0, 0, "none takes no arguments"); err != nil {
		return nil, err
	}
	return newEmpty(), nil
}

// depthArgs extracts the depth/startdepth window shared by ancestors and
// descendants.
func depthArgs(name string, dict map[string]*Node) (depthWindow, error) {
	window := fullWindow()
	if d := dict["depth"]; d != nil {
		v, err := getInteger(d, name+" expects an integer depth")
		if err != nil {
			return window, err
		}
		if v < 0 {
			return window, argErr("negative depth")
		}
		window.stop = v
	}
	if d := dict["startdepth"]; d != nil {
		v, err := getInteger(d, name+" expects an integer startdepth")
		if err != nil {
			return window, err
		}
		if v < 0 {
			return window, argErr("negative startdepth")
		}
		window.start = v
	}
	return window, nil
}

func evalAncestors(ev *Evaluator, subset Set, args []*Node, _ Order) (Set, error) {
	dict, err := getArgsDict("ancestors", args, "set", "depth", "startdepth")
	if err != nil {
		return nil, err
	}
	if dict["set"] == nil {
		return nil, argErr("ancestors takes at least 1 positional argument")
	}
	window, err := depthArgs("ancestors", dict)
	if err != nil {
		return nil, err
	}
	base, err := evalArgSet(ev, dict["set"])
	if err != nil {
		return nil, err
	}
	anc := ancestorsSet(ev.repo, base, window)
	return newFiltered(subset, anc.Contains), nil
}

func evalDescendants(ev *Evaluator, subset Set, args []*Node, _ Order) (Set, error) {
	dict, err := getArgsDict("descendants", args, "set", "depth", "startdepth")
	if err != nil {
		return nil, err
	}
	if dict["set"] == nil {
		return nil, argErr("descendants takes at least 1 positional argument")
	}
	window, err := depthArgs("descendants", dict)
	if err != nil {
		return nil, err
	}
	base, err := evalArgSet(ev, dict["set"])
	if err != nil {
		return nil, err
	}
	desc := descendantsSet(ev.repo, base, window)
	return newFiltered(subset, desc.Contains), nil
}

// parentRevs collects the requested parents of every member of base:
// which is 0 for first parents, 1 for second, 2 for both.
func (ev *Evaluator) parentRevs(base, subset Set, which int) Set {
	seen := make(map[int64]struct{})
	var revs []int64
	add := func(rev int64) {
		if rev == nullRev {
			return
		}
		if _, dup := seen[rev]; dup || !subset.Contains(rev) {
			return
		}
		seen[rev] = struct{}{}
		revs = append(revs, rev)
	}
	for it := base.Iterate(); ; {
		rev, ok := it.Next()
		if !ok {
			break
		}
		ps := parentsOf(ev.repo, rev)
		switch which {
		case 0:
			if len(ps) > 0 {
				add(ps[0])
			}
		case 1:
			if len(ps) > 1 {
				add(ps[1])
			}
		default:
			for _, p := range ps {
				add(p)
			}
		}
	}
	sort.Slice(revs, func(i, j int) bool { return revs[i] < revs[j] })
	return newAscList(revs)
}

// wdirParentSet is the fallback input when parents/p1/p2 are called with
// no argument: the working copy.
func wdirParentSet() Set { return newAscList([]int64{wdirRev}) }

func parentsArg(ev *Evaluator, args []*Node, msg string) (Set, error) {
	if _, err := getArgs(args, 0, 1, msg); err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return wdirParentSet(), nil
	}
	return evalArgSet(ev, args[0])
}

func evalParents(ev *Evaluator, subset Set, args []*Node, _ Order) (Set, error) {
	base, err := parentsArg(ev, args, "parents takes at most one argument")
	if err != nil {
		return nil, err
	}
	return ev.parentRevs(base, subset, 2), nil
}

func evalP1(ev *Evaluator, subset Set, args []*Node, _ Order) (Set, error) {
	base, err := parentsArg(ev, args, "p1 takes at most one argument")
	if err != nil {
		return nil, err
	}
	return ev.parentRevs(base, subset, 0), nil
}

func evalP2(ev *Evaluator, subset Set, args []*Node, _ Order) (Set, error) {
	base, err := parentsArg(ev, args, "p2 takes at most one argument")
	if err != nil {
		return nil, err
	}
	return ev.parentRevs(base, subset, 1), nil
}

func evalChildren(ev *Evaluator, subset Set, args []*Node, _ Order) (Set, error) {
	if _, err := getArgs(args, 1, 1, "children requires a set"); err != nil {
		return nil, err
	}
	base, err := evalArgSet(ev, args[0])
	if err != nil {
		return nil, err
	}
	kids := childrenOf(ev.repo, base)
	return newFiltered(subset, kids.Contains), nil
}

func evalRoots(ev *Evaluator, subset Set, args []*Node, _ Order) (Set, error) {
	if _, err := getArgs(args, 1, 1, "roots requires a set"); err != nil {
		return nil, err
	}
	base, err := evalArgSet(ev, args[0])
	if err != nil {
		return nil, err
	}
	roots := rootsOf(ev.repo, base)
	return newFiltered(subset, roots.Contains), nil
}

func evalHeads(ev *Evaluator, subset Set, args []*Node, _ Order) (Set, error) {
	if _, err := getArgs(args, 1, 1, "heads requires a set"); err != nil {
		return nil, err
	}
	base, err := evalArgSet(ev, args[0])
	if err != nil {
		return nil, err
	}
	hs := headsOf(ev.repo, base)
	return newFiltered(subset, hs.Contains), nil
}

// evalHead selects branch heads: revisions without a child on the same
// branch.
func evalHead(ev *Evaluator, subset Set, args []*Node, _ Order) (Set, error) {
	if _, err := getArgs(args, 0, 0, "head takes no arguments"); err != nil {
		return nil, err
	}
	n := int64(ev.repo.Len())
	covered := make([]bool, n)
	for rev := int64(0); rev < n; rev++ {
		branch := ev.repo.Meta(rev).Branch
		for _, p := range ev.repo.Parents(rev) {
			if ev.repo.Meta(p).Branch == branch {
				covered[p] = true
			}
		}
	}
	return newFiltered(subset, func(rev int64) bool {
		return rev >= 0 && rev < n && !covered[rev]
	}), nil
}

// globalHeads returns revisions with no children at all.
func globalHeads(r repo.Repository, n int64) []int64 {
	hasChild := make([]bool, n)
	for rev := int64(0); rev < n; rev++ {
		for _, p := range r.Parents(rev) {
			hasChild[p] = true
		}
	}
	var heads []int64
	for rev := int64(0); rev < n; rev++ {
		if !hasChild[rev] {
			heads = append(heads, rev)
		}
	}
	return heads
}

func evalOnly(ev *Evaluator, subset Set, args []*Node, _ Order) (Set, error) {
	if _, err := getArgs(args, 1, 2, "only takes one or two arguments"); err != nil {
		return nil, err
	}
	include, err := evalArgSet(ev, args[0])
	if err != nil {
		return nil, err
	}
	var exclude Set
	if len(args) == 2 {
		exclude, err = evalArgSet(ev, args[1])
		if err != nil {
			return nil, err
		}
	} else {
		// Subtract every head that is not above the included set.
		if _, any := firstOf(include); !any {
			return newEmpty(), nil
		}
		desc := descendantsSet(ev.repo, include, fullWindow())
		var other []int64
		for _, h := range globalHeads(ev.repo, int64(ev.repo.Len())) {
			if !desc.Contains(h) {
				other = append(other, h)
			}
		}
		exclude = newAscList(other)
	}
	keep := onlyBetween(ev.repo, include, exclude)
	return newFiltered(subset, func(rev int64) bool {
		_, ok := keep[rev]
		return ok
	}), nil
}

func evalMerge(ev *Evaluator, subset Set, args []*Node, _ Order) (Set, error) {
	if _, err := getArgs(args, 0, 0, "merge takes no arguments"); err != nil {
		return nil, err
	}
	return newFiltered(subset, func(rev int64) bool {
		return len(parentsOf(ev.repo, rev)) == 2
	}), nil
}

func evalBranchpoint(ev *Evaluator, subset Set, args []*Node, _ Order) (Set, error) {
	if _, err := getArgs(args, 0, 0, "branchpoint takes no arguments"); err != nil {
		return nil, err
	}
	n := int64(ev.repo.Len())
	childCount := make([]int, n)
	for rev := int64(0); rev < n; rev++ {
		for _, p := range ev.repo.Parents(rev) {
			childCount[p]++
		}
	}
	return newFiltered(subset, func(rev int64) bool {
		return rev >= 0 && rev < n && childCount[rev] > 1
	}), nil
}

func evalAuthor(ev *Evaluator, subset Set, args []*Node, _ Order) (Set, error) {
	if _, err := getArgs(args, 1, 1, "author requires a string"); err != nil {
		return nil, err
	}
	pat, err := getString(args[0], "author requires a string")
	if err != nil {
		return nil, err
	}
	m, err := compileSubstringPattern(pat)
	if err != nil {
		return nil, err
	}
	return filterMeta(ev, subset, func(meta *repo.Meta) bool {
		return m(meta.User)
	}), nil
}

func evalDesc(ev *Evaluator, subset Set, args []*Node, _ Order) (Set, error) {
	if _, err := getArgs(args, 1, 1, "desc requires a string"); err != nil {
		return nil, err
	}
	pat, err := getString(args[0], "desc requires a string")
	if err != nil {
		return nil, err
	}
	m, err := compileSubstringPattern(pat)
	if err != nil {
		return nil, err
	}
	return filterMeta(ev, subset, func(meta *repo.Meta) bool {
		return m(meta.Desc)
	}), nil
}

func evalKeyword(ev *Evaluator, subset Set, args []*Node, _ Order) (Set, error) {
	if _, err := getArgs(args, 1, 1, "keyword requires a string"); err != nil {
		return nil, err
	}
	kw, err := getString(args[0], "keyword requires a string")
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(kw)
	return filterMeta(ev, subset, func(meta *repo.Meta) bool {
		if strings.Contains(strings.ToLower(meta.User), needle) ||
			strings.Contains(strings.ToLower(meta.Desc), needle) {
			return true
		}
		for _, f := range meta.Files() {
			if strings.Contains(strings.ToLower(f), needle) {
				return true
			}
		}
		return false
	}), nil
}

func evalGrep(ev *Evaluator, subset Set, args []*Node, _ Order) (Set, error) {
	if _, err := getArgs(args, 1, 1, "grep requires a string"); err != nil {
		return nil, err
	}
	pat, err := getString(args[0], "grep requires a string")
	if err != nil {
		return nil, err
	}
	re, err := regexp.Compile(pat)
	if err != nil {
		return nil, argErr("invalid match pattern: %s", err)
	}
	return filterMeta(ev, subset, func(meta *repo.Meta) bool {
		if re.MatchString(meta.User) || re.MatchString(meta.Desc) {
			return true
		}
		for _, f := range meta.Files() {
			if re.MatchString(f) {
				return true
			}
		}
		return false
	}), nil
}

func evalBranch(ev *Evaluator, subset Set, args []*Node, _ Order) (Set, error) {
	if _, err := getArgs(args, 1, 1, "branch requires a pattern or a set"); err != nil {
		return nil, err
	}
	arg := args[0]
	if arg.Kind == KindString || arg.Kind == KindSymbol {
		kind, body := splitPattern(arg.Value, "literal")
		if kind == "literal" {
			known := false
			for _, name := range ev.repo.BranchNames() {
				if name == body {
					known = true
					break
				}
			}
			if !known {
				return nil, lookupErr("branch '%s' does not exist!", body)
			}
			return filterMeta(ev, subset, func(meta *repo.Meta) bool {
				return meta.Branch == body
			}), nil
		}
		m, _, err := compilePattern(arg.Value, "literal")
		if err != nil {
			return nil, err
		}
		return filterMeta(ev, subset, func(meta *repo.Meta) bool {
			return m(meta.Branch)
		}), nil
	}
	base, err := evalArgSet(ev, arg)
	if err != nil {
		return nil, err
	}
	branches := make(map[string]struct{})
	for it := base.Iterate(); ; {
		rev, ok := it.Next()
		if !ok {
			break
		}
		if meta := ev.metaOf(rev); meta != nil {
			branches[meta.Branch] = struct{}{}
		}
	}
	return filterMeta(ev, subset, func(meta *repo.Meta) bool {
		_, ok := branches[meta.Branch]
		return ok
	}), nil
}

// nameTableSet filters subset to revisions named in table by a pattern.
// A literal pattern that names nothing raises missing with the name.
func nameTableSet(subset Set, table map[string]int64, pat string, missing func(string) error) (Set, error) {
	kind, body := splitPattern(pat, "literal")
	if kind == "literal" {
		rev, ok := table[body]
		if !ok {
			return nil, missing(body)
		}
		if !subset.Contains(rev) {
			return newEmpty(), nil
		}
		return newAscList([]int64{rev}), nil
	}
	m, _, err := compilePattern(pat, "literal")
	if err != nil {
		return nil, err
	}
	named := make(map[int64]struct{})
	for name, rev := range table {
		if m(name) {
			named[rev] = struct{}{}
		}
	}
	return newFiltered(subset, func(rev int64) bool {
		_, ok := named[rev]
		return ok
	}), nil
}

func evalBookmark(ev *Evaluator, subset Set, args []*Node, _ Order) (Set, error) {
	if _, err := getArgs(args, 0, 1, "bookmark takes one or no arguments"); err != nil {
		return nil, err
	}
	books := ev.repo.Bookmarks()
	if len(args) == 0 {
		marked := make(map[int64]struct{}, len(books))
		for _, rev := range books {
			marked[rev] = struct{}{}
		}
		return newFiltered(subset, func(rev int64) bool {
			_, ok := marked[rev]
			return ok
		}), nil
	}
	pat, err := getString(args[0], "bookmark requires a string")
	if err != nil {
		return nil, err
	}
	return nameTableSet(subset, books, pat, func(name string) error {
		return lookupErr("bookmark '%s' does not exist!", name)
	})
}

func evalTag(ev *Evaluator, subset Set, args []*Node, _ Order) (Set, error) {
	if _, err := getArgs(args, 0, 1, "tag takes one or no arguments"); err != nil {
		return nil, err
	}
	tags := ev.repo.Tags()
	if len(args) == 0 {
		tagged := make(map[int64]struct{}, len(tags))
		for _, rev := range tags {
			tagged[rev] = struct{}{}
		}
		return newFiltered(subset, func(rev int64) bool {
			_, ok := tagged[rev]
			return ok
		}), nil
	}
	pat, err := getString(args[0], "tag requires a string")
	if err != nil {
		return nil, err
	}
	return nameTableSet(subset, tags, pat, func(name string) error {
		return lookupErr("tag '%s' does not exist!", name)
	})
}

func evalNamed(ev *Evaluator, subset Set, args []*Node, _ Order) (Set, error) {
	if _, err := getArgs(args, 1, 1, "named requires a namespace argument"); err != nil {
		return nil, err
	}
	pat, err := getString(args[0], "the argument to named must be a string")
	if err != nil {
		return nil, err
	}
	namespaces := map[string]func() map[int64]struct{}{
		"bookmarks": func() map[int64]struct{} {
			revs := make(map[int64]struct{})
			for _, rev := range ev.repo.Bookmarks() {
				revs[rev] = struct{}{}
			}
			return revs
		},
		"tags": func() map[int64]struct{} {
			revs := make(map[int64]struct{})
			for _, rev := range ev.repo.Tags() {
				revs[rev] = struct{}{}
			}
			return revs
		},
		"branches": func() map[int64]struct{} {
			revs := make(map[int64]struct{})
			for rev := int64(0); rev < int64(ev.repo.Len()); rev++ {
				revs[rev] = struct{}{}
			}
			return revs
		},
	}
	kind, body := splitPattern(pat, "literal")
	named := make(map[int64]struct{})
	if kind == "literal" {
		collect, ok := namespaces[body]
		if !ok {
			return nil, lookupErr("namespace '%s' does not exist!", body)
		}
		named = collect()
	} else {
		m, _, err := compilePattern(pat, "literal")
		if err != nil {
			return nil, err
		}
		for name, collect := range namespaces {
			if m(name) {
				for rev := range collect() {
					named[rev] = struct{}{}
				}
			}
		}
	}
	return newFiltered(subset, func(rev int64) bool {
		_, ok := named[rev]
		return ok
	}), nil
}

func evalDate(ev *Evaluator, subset Set, args []*Node, _ Order) (Set, error) {
	if len(args) != 1 {
		return nil, argErr("date requires a string")
	}
	spec, err := getString(args[0], "date requires a string")
	if err != nil {
		return nil, err
	}
	m, err := compileDateMatcher(spec)
	if err != nil {
		return nil, err
	}
	return filterMeta(ev, subset, func(meta *repo.Meta) bool {
		return m(meta.Date)
	}), nil
}

// fileFilter builds the common shape of file/modifies/adds/removes.
func fileFilter(ev *Evaluator, subset Set, args []*Node, msg string, files func(*repo.Meta) []string) (Set, error) {
	if _, err := getArgs(args, 1, 1, msg); err != nil {
		return nil, err
	}
	pat, err := getString(args[0], msg)
	if err != nil {
		return nil, err
	}
	m, err := compileFilePattern(pat)
	if err != nil {
		return nil, err
	}
	return filterMeta(ev, subset, func(meta *repo.Meta) bool {
		for _, f := range files(meta) {
			if m(f) {
				return true
			}
		}
		return false
	}), nil
}

func evalFile(ev *Evaluator, subset Set, args []*Node, _ Order) (Set, error) {
	return fileFilter(ev, subset, args, "file requires a pattern", func(m *repo.Meta) []string {
		return m.Files()
	})
}

func evalModifies(ev *Evaluator, subset Set, args []*Node, _ Order) (Set, error) {
	return fileFilter(ev, subset, args, "modifies requires a pattern", func(m *repo.Meta) []string {
		return m.Modified
	})
}

func evalAdds(ev *Evaluator, subset Set, args []*Node, _ Order) (Set, error) {
	return fileFilter(ev, subset, args, "adds requires a pattern", func(m *repo.Meta) []string {
		return m.Added
	})
}

func evalRemoves(ev *Evaluator, subset Set, args []*Node, _ Order) (Set, error) {
	return fileFilter(ev, subset, args, "removes requires a pattern", func(m *repo.Meta) []string {
		return m.Removed
	})
}

// evalContains matches against the full set of files tracked at each
// revision, reconstructed by replaying file changes along first parents.
func evalContains(ev *Evaluator, subset Set, args []*Node, _ Order) (Set, error) {
	if _, err := getArgs(args, 1, 1, "contains requires a pattern"); err != nil {
		return nil, err
	}
	pat, err := getString(args[0], "contains requires a pattern")
	if err != nil {
		return nil, err
	}
	m, err := compileFilePattern(pat)
	if err != nil {
		return nil, err
	}
	n := int64(ev.repo.Len())
	tracked := make([]map[string]struct{}, n)
	matches := make([]bool, n)
	for rev := int64(0); rev < n; rev++ {
		meta := ev.repo.Meta(rev)
		files := make(map[string]struct{})
		if ps := ev.repo.Parents(rev); len(ps) > 0 {
			for f := range tracked[ps[0]] {
				files[f] = struct{}{}
			}
		}
		for _, f := range meta.Added {
			files[f] = struct{}{}
		}
		for _, f := range meta.Removed {
			delete(files, f)
		}
		tracked[rev] = files
		for f := range files {
			if m(f) {
				matches[rev] = true
				break
			}
		}
	}
	return newFiltered(subset, func(rev int64) bool {
		return rev >= 0 && rev < n && matches[rev]
	}), nil
}

var matchingFields = map[string]func(*Evaluator, int64) string{
	"user":   func(ev *Evaluator, rev int64) string { return ev.metaOf(rev).User },
	"author": func(ev *Evaluator, rev int64) string { return ev.metaOf(rev).User },
	"desc":   func(ev *Evaluator, rev int64) string { return ev.metaOf(rev).Desc },
	"branch": func(ev *Evaluator, rev int64) string { return ev.metaOf(rev).Branch },
	"phase":  func(ev *Evaluator, rev int64) string { return ev.metaOf(rev).Phase },
	"date": func(ev *Evaluator, rev int64) string {
		return strconv.FormatInt(ev.metaOf(rev).Date, 10)
	},
	"files": func(ev *Evaluator, rev int64) string {
		return strings.Join(ev.metaOf(rev).Files(), "\x00")
	},
}

func evalMatching(ev *Evaluator, subset Set, args []*Node, _ Order) (Set, error) {
	if _, err := getArgs(args, 1, 2, "matching takes 1 or 2 arguments"); err != nil {
		return nil, err
	}
	base, err := evalArgSet(ev, args[0])
	if err != nil {
		return nil, err
	}
	fields := "metadata"
	if len(args) == 2 {
		fields, err = getString(args[1], "matching requires a string as its second argument")
		if err != nil {
			return nil, err
		}
	}
	fields = strings.ReplaceAll(fields, "metadata", "user desc date")
	var extract []func(*Evaluator, int64) string
	for _, f := range strings.Fields(fields) {
		fn, ok := matchingFields[f]
		if !ok {
			return nil, argErr("unexpected field name passed to matching: %s", f)
		}
		extract = append(extract, fn)
	}
	key := func(rev int64) string {
		parts := make([]string, len(extract))
		for i, fn := range extract {
			parts[i] = fn(ev, rev)
		}
		return strings.Join(parts, "\x00")
	}
	targets := make(map[string]struct{})
	for it := base.Iterate(); ; {
		rev, ok := it.Next()
		if !ok {
			break
		}
		targets[key(rev)] = struct{}{}
	}
	return newFiltered(subset, func(rev int64) bool {
		_, ok := targets[key(rev)]
		return ok
	}), nil
}

func evalExtra(ev *Evaluator, subset Set, args []*Node, _ Order) (Set, error) {
	dict, err := getArgsDict("extra", args, "label", "value")
	if err != nil {
		return nil, err
	}
	if dict["label"] == nil {
		return nil, argErr("extra takes at least 1 argument")
	}
	label, err := getString(dict["label"], "first argument to extra must be a string")
	if err != nil {
		return nil, err
	}
	var m matcher
	if v := dict["value"]; v != nil {
		value, err := getString(v, "second argument to extra must be a string")
		if err != nil {
			return nil, err
		}
		m, _, err = compileNamePattern(value)
		if err != nil {
			return nil, err
		}
	}
	return filterMeta(ev, subset, func(meta *repo.Meta) bool {
		v, ok := meta.Extra[label]
		if !ok {
			return false
		}
		return m == nil || m(v)
	}), nil
}

func phaseFilter(ev *Evaluator, subset Set, args []*Node, name, phase string) (Set, error) {
	if _, err := getArgs(args, 0, 0, name+" takes no arguments"); err != nil {
		return nil, err
	}
	return filterMeta(ev, subset, func(meta *repo.Meta) bool {
		return meta.Phase == phase
	}), nil
}

func evalPublic(ev *Evaluator, subset Set, args []*Node, _ Order) (Set, error) {
	return phaseFilter(ev, subset, args, "public", repo.PhasePublic)
}

func evalDraft(ev *Evaluator, subset Set, args []*Node, _ Order) (Set, error) {
	return phaseFilter(ev, subset, args, "draft", repo.PhaseDraft)
}

func evalSecret(ev *Evaluator, subset Set, args []*Node, _ Order) (Set, error) {
	return phaseFilter(ev, subset, args, "secret", repo.PhaseSecret)
}

func evalPhase(ev *Evaluator, subset Set, args []*Node, _ Order) (Set, error) {
	if _, err := getArgs(args, 1, 1, "phase requires a string"); err != nil {
		return nil, err
	}
	name, err := getString(args[0], "phase requires a string")
	if err != nil {
		return nil, err
	}
	switch name {
	case repo.PhasePublic, repo.PhaseDraft, repo.PhaseSecret:
	default:
		return nil, argErr("unknown phase name: %s", name)
	}
	return filterMeta(ev, subset, func(meta *repo.Meta) bool {
		return meta.Phase == name
	}), nil
}

func evalObsolete(ev *Evaluator, subset Set, args []*Node, _ Order) (Set, error) {
	if _, err := getArgs(args, 0, 0, "obsolete takes no arguments"); err != nil {
		return nil, err
	}
	return newFiltered(subset, func(rev int64) bool {
		return len(ev.repo.Successors(rev)) > 0
	}), nil
}

func obsRelatives(ev *Evaluator, subset Set, args []*Node, msg string, related func(int64) []int64) (Set, error) {
	if _, err := getArgs(args, 1, 1, msg); err != nil {
		return nil, err
	}
	base, err := evalArgSet(ev, args[0])
	if err != nil {
		return nil, err
	}
	seen := make(map[int64]struct{})
	var revs []int64
	for it := base.Iterate(); ; {
		rev, ok := it.Next()
		if !ok {
			break
		}
		for _, o := range related(rev) {
			if _, dup := seen[o]; dup || !subset.Contains(o) {
				continue
			}
			seen[o] = struct{}{}
			revs = append(revs, o)
		}
	}
	sort.Slice(revs, func(i, j int) bool { return revs[i] < revs[j] })
	return newAscList(revs), nil
}

func evalSuccessors(ev *Evaluator, subset Set, args []*Node, _ Order) (Set, error) {
	return obsRelatives(ev, subset, args, "successors requires a set", ev.repo.Successors)
}

func evalPredecessors(ev *Evaluator, subset Set, args []*Node, _ Order) (Set, error) {
	return obsRelatives(ev, subset, args, "predecessors requires a set", ev.repo.Predecessors)
}

// evalPresent suppresses lookup and unknown-name failures of its
// argument, turning them into an empty result. This is the only place an
// error downgrades to a set.
func evalPresent(ev *Evaluator, subset Set, args []*Node, order Order) (Set, error) {
	if _, err := getArgs(args, 1, 1, "present requires a set"); err != nil {
		return nil, err
	}
	res, err := ev.eval(args[0], subset, order)
	if err != nil {
		switch err.(type) {
		case *LookupError, *UnknownIdentifierError:
			return newEmpty(), nil
		}
		return nil, err
	}
	return res, nil
}

func evalRev(ev *Evaluator, subset Set, args []*Node, _ Order) (Set, error) {
	if _, err := getArgs(args, 1, 1, "rev expects a number"); err != nil {
		return nil, err
	}
	v, err := getInteger(args[0], "rev expects a number")
	if err != nil {
		return nil, err
	}
	if v < 0 || v >= int64(ev.repo.Len()) || !subset.Contains(v) {
		return newEmpty(), nil
	}
	return newAscList([]int64{v}), nil
}

func evalID(ev *Evaluator, subset Set, args []*Node, _ Order) (Set, error) {
	if _, err := getArgs(args, 1, 1, "id requires a string"); err != nil {
		return nil, err
	}
	prefix, err := getString(args[0], "id requires a string")
	if err != nil {
		return nil, err
	}
	rev, err := ev.repo.LookupPrefix(prefix)
	if err != nil {
		if _, notFound := err.(*repo.NotFoundError); notFound {
			return newEmpty(), nil
		}
		return nil, lookupErr("%s", err.Error())
	}
	if !subset.Contains(rev) {
		return newEmpty(), nil
	}
	return newAscList([]int64{rev}), nil
}

func evalWdir(ev *Evaluator, subset Set, args []*Node, _ Order) (Set, error) {
	if _, err := getArgs(args, 0, 0, "wdir takes no arguments"); err != nil {
		return nil, err
	}
	if !subset.Contains(wdirRev) {
		return newEmpty(), nil
	}
	return newAscList([]int64{wdirRev}), nil
}

// limitArgs extracts the set/count(/offset) arguments shared by limit,
// first and last.
func limitArgs(name string, args []*Node, withOffset bool) (set *Node, n, offset int64, err error) {
	keys := []string{"set", "n"}
	if withOffset {
		keys = append(keys, "offset")
	}
	dict, err := getArgsDict(name, args, keys...)
	if err != nil {
		return nil, 0, 0, err
	}
	if dict["set"] == nil {
		return nil, 0, 0, argErr("%s takes at least 1 positional argument", name)
	}
	n = 1
	if d := dict["n"]; d != nil {
		n, err = getInteger(d, name+" expects a number")
		if err != nil {
			return nil, 0, 0, err
		}
		if n < 0 {
			return nil, 0, 0, argErr("negative number to select")
		}
	}
	if d := dict["offset"]; d != nil {
		offset, err = getInteger(d, name+" expects a number")
		if err != nil {
			return nil, 0, 0, err
		}
		if offset < 0 {
			return nil, 0, 0, argErr("negative offset")
		}
	}
	return dict["set"], n, offset, nil
}

func evalLimit(ev *Evaluator, subset Set, args []*Node, _ Order) (Set, error) {
	setArg, n, offset, err := limitArgs("limit", args, true)
	if err != nil {
		return nil, err
	}
	base, err := ev.eval(setArg, ev.universe(), OrderDefine)
	if err != nil {
		return nil, err
	}
	return sliceSet(newFiltered(base, subset.Contains), offset, n), nil
}

func evalFirst(ev *Evaluator, subset Set, args []*Node, _ Order) (Set, error) {
	setArg, n, _, err := limitArgs("first", args, false)
	if err != nil {
		return nil, err
	}
	base, err := ev.eval(setArg, ev.universe(), OrderDefine)
	if err != nil {
		return nil, err
	}
	return sliceSet(newFiltered(base, subset.Contains), 0, n), nil
}

func evalLast(ev *Evaluator, subset Set, args []*Node, _ Order) (Set, error) {
	setArg, n, _, err := limitArgs("last", args, false)
	if err != nil {
		return nil, err
	}
	base, err := ev.eval(setArg, ev.universe(), OrderDefine)
	if err != nil {
		return nil, err
	}
	tail := sliceSet(reverseSet(newFiltered(base, subset.Contains)), 0, n)
	return reverseSet(tail), nil
}

func evalReverse(ev *Evaluator, subset Set, args []*Node, order Order) (Set, error) {
	if _, err := getArgs(args, 1, 1, "reverse requires a set"); err != nil {
		return nil, err
	}
	res, err := ev.eval(args[0], subset, OrderDefine)
	if err != nil {
		return nil, err
	}
	if order == OrderFollow {
		// The enclosing expression dictates the order; reversing here
		// would be discarded anyway.
		return res, nil
	}
	return reverseSet(res), nil
}

func boundary(ev *Evaluator, subset Set, args []*Node, msg string, wantMax bool) (Set, error) {
	if _, err := getArgs(args, 1, 1, msg); err != nil {
		return nil, err
	}
	base, err := evalArgSet(ev, args[0])
	if err != nil {
		return nil, err
	}
	asc := sortAsc(base)
	var rev int64
	var ok bool
	if wantMax {
		rev, ok = asc.Last()
	} else {
		rev, ok = asc.First()
	}
	if !ok || !subset.Contains(rev) {
		return newEmpty(), nil
	}
	return newAscList([]int64{rev}), nil
}

func evalMin(ev *Evaluator, subset Set, args []*Node, _ Order) (Set, error) {
	return boundary(ev, subset, args, "min requires a set", false)
}

func evalMax(ev *Evaluator, subset Set, args []*Node, _ Order) (Set, error) {
	return boundary(ev, subset, args, "max requires a set", true)
}

// evalList resolves a NUL-separated name list in one pass, the compiled
// form of an all-literal "or".
func evalList(ev *Evaluator, subset Set, args []*Node, _ Order) (Set, error) {
	if _, err := getArgs(args, 1, 1, "_list requires a string"); err != nil {
		return nil, err
	}
	joined, err := getString(args[0], "_list requires a string")
	if err != nil {
		return nil, err
	}
	if joined == "" {
		return newEmpty(), nil
	}
	ordered := linkedhashset.New()
	for _, name := range strings.Split(joined, "\x00") {
		rev, err := ev.resolve(name)
		if err != nil {
			return nil, err
		}
		if subset.Contains(rev) {
			ordered.Add(rev)
		}
	}
	revs := make([]int64, 0, ordered.Size())
	for _, v := range ordered.Values() {
		revs = append(revs, v.(int64))
	}
	return newUnorderedList(revs), nil
}

// Relation implements an x#name relation; idx is the subscript value.
type Relation func(ev *Evaluator, subset, base Set, idx int64) (Set, error)

var relations = map[string]Relation{
	"generations": relGenerations,
}

func relationNames() []string {
	names := make([]string, 0, len(relations))
	for name := range relations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// relGenerations selects revisions exactly idx generations away:
// negative subscripts walk to ancestors, positive to descendants, zero
// is the set itself.
func relGenerations(ev *Evaluator, subset, base Set, idx int64) (Set, error) {
	switch {
	case idx == 0:
		return newFiltered(subset, base.Contains), nil
	case idx < 0:
		window := depthWindow{start: -idx, stop: -idx}
		anc := ancestorsSet(ev.repo, base, window)
		return newFiltered(subset, anc.Contains), nil
	default:
		window := depthWindow{start: idx, stop: idx}
		desc := descendantsSet(ev.repo, base, window)
		return newFiltered(subset, desc.Contains), nil
	}
}
