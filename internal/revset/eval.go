package revset

import (
	"errors"
	"fmt"
	"sort"
	"strconv"

	"revq/internal/repo"
	"revq/internal/util"
)

// Evaluator turns analyzed ASTs into ordered revision sets against one
// repository. It holds no mutable state, so a single Evaluator serves
// any number of independent queries.
type Evaluator struct {
	repo     repo.Repository
	registry *Registry
}

// NewEvaluator builds an evaluator over r using the given predicate
// registry. A nil registry means the built-in predicates only.
func NewEvaluator(r repo.Repository, reg *Registry) *Evaluator {
	if reg == nil {
		reg = NewRegistry()
	}
	return &Evaluator{repo: r, registry: reg}
}

// Eval evaluates an analyzed and optionally optimized tree against the
// whole repository.
func (ev *Evaluator) Eval(n *Node) (Set, error) {
	return ev.eval(n, ev.universe(), OrderDefine)
}

func (ev *Evaluator) universe() Set {
	return newUniverse(int64(ev.repo.Len()))
}

// eval returns the subset of subset selected by n. Every return value is
// contained in subset; order says whether n dictates the iteration order
// or follows subset's.
func (ev *Evaluator) eval(n *Node, subset Set, order Order) (Set, error) {
	switch n.Kind {
	case KindSymbol, KindString, KindInteger:
		rev, err := ev.resolve(n.Value)
		if err != nil {
			return nil, err
		}
		if !subset.Contains(rev) {
			return newEmpty(), nil
		}
		return newAscList([]int64{rev}), nil

	case KindAnd:
		left, err := ev.eval(n.Children[0], subset, n.Children[0].Order)
		if err != nil {
			return nil, err
		}
		return ev.eval(n.Children[1], left, OrderFollow)

	case KindOr:
		sets := make([]Set, 0, len(n.Children))
		for _, c := range n.Children {
			s, err := ev.eval(c, subset, c.Order)
			if err != nil {
				return nil, err
			}
			sets = append(sets, s)
		}
		return orderedUnion(sets), nil

	case KindNot:
		excl, err := ev.eval(n.Children[0], subset, OrderAny)
		if err != nil {
			return nil, err
		}
		return difference(subset, excl), nil

	case KindMinus:
		left, err := ev.eval(n.Children[0], subset, n.Children[0].Order)
		if err != nil {
			return nil, err
		}
		right, err := ev.eval(n.Children[1], subset, OrderAny)
		if err != nil {
			return nil, err
		}
		return difference(left, right), nil

	case KindRange:
		lo, err := ev.endpoint(n.Children[0], true)
		if err != nil {
			return nil, err
		}
		hi, err := ev.endpoint(n.Children[1], false)
		if err != nil {
			return nil, err
		}
		return ev.rangeSet(lo, hi, subset, order), nil

	case KindRangePre:
		hi, err := ev.endpoint(n.Children[0], false)
		if err != nil {
			return nil, err
		}
		return ev.rangeSet(0, hi, subset, order), nil

	case KindRangePost:
		lo, err := ev.endpoint(n.Children[0], true)
		if err != nil {
			return nil, err
		}
		return ev.rangeSet(lo, int64(ev.repo.Len())-1, subset, order), nil

	case KindRangeAll:
		return ev.rangeSet(0, int64(ev.repo.Len())-1, subset, order), nil

	case KindDagRange:
		roots, err := ev.eval(n.Children[0], ev.universe(), OrderAny)
		if err != nil {
			return nil, err
		}
		heads, err := ev.eval(n.Children[1], ev.universe(), OrderAny)
		if err != nil {
			return nil, err
		}
		dr := dagRange(ev.repo, roots, heads)
		return newFiltered(subset, dr.Contains), nil

	case KindDagRangePre:
		heads, err := ev.eval(n.Children[0], ev.universe(), OrderAny)
		if err != nil {
			return nil, err
		}
		reach := reachableFrom(ev.repo, heads)
		return newFiltered(subset, func(rev int64) bool {
			_, ok := reach[rev]
			return ok
		}), nil

	case KindDagRangePost:
		roots, err := ev.eval(n.Children[0], ev.universe(), OrderAny)
		if err != nil {
			return nil, err
		}
		desc := descendantsSet(ev.repo, roots, fullWindow())
		return newFiltered(subset, desc.Contains), nil

	case KindDagRangeAll:
		return subset, nil

	case KindParent:
		base, err := ev.eval(n.Children[0], ev.universe(), OrderAny)
		if err != nil {
			return nil, err
		}
		return ev.mapRevs(base, subset, func(rev int64) int64 {
			return nthParent(ev.repo, rev, n.Num)
		}), nil

	case KindAncestor:
		base, err := ev.eval(n.Children[0], ev.universe(), OrderAny)
		if err != nil {
			return nil, err
		}
		return ev.mapRevs(base, subset, func(rev int64) int64 {
			return firstAncestor(ev.repo, rev, n.Num)
		}), nil

	case KindRelSubscript:
		return ev.evalRelation(n, subset)

	case KindFunc:
		name := n.FuncName()
		pred, ok := ev.registry.lookup(name)
		if !ok {
			return nil, &UnknownIdentifierError{
				Name:       name,
				Suggestion: ev.registry.suggest(name),
			}
		}
		return pred(ev, subset, n.FuncArgs(), order)

	case KindKeyValue:
		return nil, parseErr("can't use a key-value pair in this context")
	}
	return nil, parseErr("unexpected node: %s", n.Kind)
}

// resolve maps a name to a single revision. The chain is: special names,
// decimal revision numbers (negative counting back from tip), bookmarks,
// tags, branch tips, then hex node-ID prefixes.
func (ev *Evaluator) resolve(name string) (int64, error) {
	n := int64(ev.repo.Len())
	switch name {
	case "":
		return 0, lookupErr("unknown revision '%s'!", name)
	case ".":
		ps := ev.repo.WorkingParents()
		if len(ps) == 0 {
			return nullRev, nil
		}
		return ps[0], nil
	case "null":
		return nullRev, nil
	case "tip":
		return n - 1, nil
	}
	if v, err := strconv.ParseInt(name, 10, 64); err == nil {
		if v < 0 {
			v += n
		}
		if v < 0 || v >= n {
			return 0, lookupErr("unknown revision '%s'!", name)
		}
		return v, nil
	}
	if rev, ok := ev.repo.Bookmarks()[name]; ok {
		return rev, nil
	}
	if rev, ok := ev.repo.Tags()[name]; ok {
		return rev, nil
	}
	if rev, ok := ev.branchTip(name); ok {
		return rev, nil
	}
	if util.IsHexPrefix(name) {
		rev, err := ev.repo.LookupPrefix(name)
		if err != nil {
			var amb *repo.AmbiguousPrefixError
			if errors.As(err, &amb) {
				return 0, lookupErr("%s", amb.Error())
			}
			return 0, lookupErr("unknown revision '%s'!", name)
		}
		return rev, nil
	}
	return 0, lookupErr("unknown revision '%s'!", name)
}

// branchTip returns the highest revision on the named branch.
func (ev *Evaluator) branchTip(name string) (int64, bool) {
	for rev := int64(ev.repo.Len()) - 1; rev >= 0; rev-- {
		if ev.repo.Meta(rev).Branch == name {
			return rev, true
		}
	}
	return 0, false
}

// endpoint resolves one side of a `:` range to a single revision. A
// multi-member operand contributes its smallest revision on the left of
// the colon and its largest on the right.
func (ev *Evaluator) endpoint(n *Node, low bool) (int64, error) {
	s, err := ev.eval(n, ev.universe(), OrderAny)
	if err != nil {
		return 0, err
	}
	asc := sortAsc(s)
	var rev int64
	var ok bool
	if low {
		rev, ok = asc.First()
	} else {
		rev, ok = asc.Last()
	}
	if !ok {
		return 0, lookupErr("empty range endpoint")
	}
	return rev, nil
}

// rangeSet builds lo:hi intersected with subset. A left endpoint larger
// than the right yields the reversed range. Under OrderFollow the range
// only filters and the subset's own order survives.
func (ev *Evaluator) rangeSet(lo, hi int64, subset Set, order Order) Set {
	reversed := false
	if lo > hi {
		lo, hi = hi, lo
		reversed = true
	}
	var span Set
	if reversed {
		span = newSpanDesc(lo, hi)
	} else {
		span = newSpan(lo, hi)
	}
	if order == OrderFollow {
		return newFiltered(subset, span.Contains)
	}
	return intersect(span, subset)
}

// mapRevs applies f to every member of base, collects the distinct
// results that fall inside subset, and returns them ascending. A null
// result means the mapping ran off the graph and contributes nothing.
func (ev *Evaluator) mapRevs(base, subset Set, f func(int64) int64) Set {
	seen := make(map[int64]struct{})
	var revs []int64
	for it := base.Iterate(); ; {
		rev, ok := it.Next()
		if !ok {
			break
		}
		out := f(rev)
		if out == nullRev {
			continue
		}
		if _, dup := seen[out]; dup || !subset.Contains(out) {
			continue
		}
		seen[out] = struct{}{}
		revs = append(revs, out)
	}
	sort.Slice(revs, func(i, j int) bool { return revs[i] < revs[j] })
	return newAscList(revs)
}

// evalRelation applies x#name[i].
func (ev *Evaluator) evalRelation(n *Node, subset Set) (Set, error) {
	name := n.Children[1].Value
	rel, ok := relations[name]
	if !ok {
		return nil, &UnknownIdentifierError{
			Name:       name,
			Suggestion: suggestName(name, relationNames()),
		}
	}
	base, err := ev.eval(n.Children[0], ev.universe(), OrderAny)
	if err != nil {
		return nil, err
	}
	return rel(ev, subset, base, n.Num)
}

// getArgsDict maps positional and keyword arguments onto the named
// parameters, left to right.
func getArgsDict(name string, args []*Node, keys ...string) (map[string]*Node, error) {
	out := make(map[string]*Node, len(args))
	pos := 0
	for _, arg := range args {
		if arg.Kind == KindKeyValue {
			k := arg.Children[0]
			if k.Kind != KindSymbol && k.Kind != KindString {
				return nil, argErr("%s got an invalid argument", name)
			}
			found := false
			for _, key := range keys {
				if k.Value == key {
					found = true
					break
				}
			}
			if !found {
				return nil, argErr("%s got an unexpected keyword argument '%s'", name, k.Value)
			}
			if _, dup := out[k.Value]; dup {
				return nil, argErr("%s got multiple values for keyword argument '%s'", name, k.Value)
			}
			out[k.Value] = arg.Children[1]
			continue
		}
		if pos >= len(keys) {
			return nil, argErr("%s takes at most %d positional arguments", name, len(keys))
		}
		key := keys[pos]
		pos++
		if _, dup := out[key]; dup {
			return nil, argErr("%s got multiple values for keyword argument '%s'", name, key)
		}
		out[key] = arg
	}
	return out, nil
}

// getString extracts a string or symbol value; err is the caller's
// complete error message.
func getString(n *Node, msg string) (string, error) {
	if n == nil || (n.Kind != KindString && n.Kind != KindSymbol) {
		return "", argErr("%s", msg)
	}
	return n.Value, nil
}

// getInteger extracts an integer value, accepting the folded negative
// form the optimizer produces.
func getInteger(n *Node, msg string) (int64, error) {
	if n == nil {
		return 0, argErr("%s", msg)
	}
	switch n.Kind {
	case KindInteger:
		return n.Num, nil
	case KindSymbol, KindString:
		if v, err := strconv.ParseInt(n.Value, 10, 64); err == nil {
			return v, nil
		}
	case KindNegate:
		if c := n.Children[0]; c.Kind == KindInteger {
			return -c.Num, nil
		}
	}
	return 0, argErr("%s", msg)
}

// orderedUnion combines operand results preserving operand order: the
// first set's elements in its own order, then each later set's unseen
// elements.
func orderedUnion(sets []Set) Set {
	switch len(sets) {
	case 0:
		return newEmpty()
	case 1:
		return sets[0]
	}
	out := sets[0]
	for _, s := range sets[1:] {
		out = &unionSet{a: out, b: s, concat: true}
	}
	return out
}

func (ev *Evaluator) metaOf(rev int64) *repo.Meta {
	if rev == wdirRev || rev == nullRev {
		return &repo.Meta{}
	}
	return ev.repo.Meta(rev)
}

func revText(rev int64) string {
	if rev == wdirRev {
		return "wdir()"
	}
	return fmt.Sprintf("%d", rev)
}
