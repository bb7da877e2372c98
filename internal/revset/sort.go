package revset

import (
	"sort"
	"strings"
)

var sortKeyNames = map[string]bool{
	"rev":    true,
	"branch": true,
	"desc":   true,
	"user":   true,
	"author": true,
	"date":   true,
	"topo":   true,
}

type sortKey struct {
	name       string
	descending bool
}

func parseSortKeys(spec string) ([]sortKey, error) {
	fields := strings.Fields(spec)
	keys := make([]sortKey, 0, len(fields))
	hasTopo := false
	for _, f := range fields {
		k := sortKey{name: f}
		if strings.HasPrefix(f, "-") {
			k = sortKey{name: f[1:], descending: true}
		}
		if !sortKeyNames[k.name] {
			return nil, argErr("unknown sort key %q", f)
		}
		if k.name == "topo" {
			hasTopo = true
		}
		keys = append(keys, k)
	}
	if hasTopo && len(keys) > 1 {
		return nil, argErr("topo sort order cannot be combined with other sort keys")
	}
	return keys, nil
}

func evalSort(ev *Evaluator, subset Set, args []*Node, _ Order) (Set, error) {
	dict, err := getArgsDict("sort", args, "set", "keys", "topo.firstbranch")
	if err != nil {
		return nil, err
	}
	if dict["set"] == nil {
		return nil, argErr("sort requires one or two arguments")
	}
	spec := "rev"
	if k := dict["keys"]; k != nil {
		spec, err = getString(k, "sort spec must be a string")
		if err != nil {
			return nil, err
		}
	}
	keys, err := parseSortKeys(spec)
	if err != nil {
		return nil, err
	}
	isTopo := len(keys) == 1 && keys[0].name == "topo"
	if dict["topo.firstbranch"] != nil && !isTopo {
		return nil, argErr("topo.firstbranch can only be used when using the topo sort key")
	}
	base, err := ev.eval(dict["set"], subset, OrderDefine)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return base, nil
	}
	if isTopo {
		var firstbranch Set = newEmpty()
		if fb := dict["topo.firstbranch"]; fb != nil {
			firstbranch, err = evalArgSet(ev, fb)
			if err != nil {
				return nil, err
			}
		}
		out := ev.topoSort(base, firstbranch)
		if keys[0].descending {
			return reverseSet(out), nil
		}
		return out, nil
	}
	return ev.keySort(base, keys), nil
}

// keySort materializes base and orders it by the key chain, ties broken
// by the incoming order (stable). Descending keys flip comparisons per
// key, which is not the same as reversing an ascending sort when ties
// exist.
func (ev *Evaluator) keySort(base Set, keys []sortKey) Set {
	revs := toSlice(base)
	compare := func(a, b int64, k sortKey) int {
		var c int
		switch k.name {
		case "rev":
			switch {
			case a < b:
				c = -1
			case a > b:
				c = 1
			}
		case "branch":
			c = strings.Compare(ev.metaOf(a).Branch, ev.metaOf(b).Branch)
		case "desc":
			c = strings.Compare(ev.metaOf(a).Desc, ev.metaOf(b).Desc)
		case "user", "author":
			c = strings.Compare(ev.metaOf(a).User, ev.metaOf(b).User)
		case "date":
			da, db := ev.metaOf(a).Date, ev.metaOf(b).Date
			switch {
			case da < db:
				c = -1
			case da > db:
				c = 1
			}
		}
		if k.descending {
			c = -c
		}
		return c
	}
	sort.SliceStable(revs, func(i, j int) bool {
		for _, k := range keys {
			if c := compare(revs[i], revs[j], k); c != 0 {
				return c < 0
			}
		}
		return false
	})
	if len(keys) == 1 && keys[0].name == "rev" {
		if keys[0].descending {
			return newDescList(revs)
		}
		return newAscList(revs)
	}
	return newUnorderedList(revs)
}

// topoSort emits each branch of the graph contiguously, heads first,
// walking depth-first from the highest head downward. Heads inside
// firstbranch are taken before their siblings, which surfaces the named
// branch's ancestry ahead of competing branches at every fan-out.
func (ev *Evaluator) topoSort(base, firstbranch Set) Set {
	members := make(map[int64]struct{})
	var all []int64
	for it := base.Iterate(); ; {
		rev, ok := it.Next()
		if !ok {
			break
		}
		members[rev] = struct{}{}
		all = append(all, rev)
	}
	hasMemberChild := make(map[int64]struct{})
	for _, rev := range all {
		for _, p := range parentsOf(ev.repo, rev) {
			if _, ok := members[p]; ok {
				hasMemberChild[p] = struct{}{}
			}
		}
	}
	var heads []int64
	for _, rev := range all {
		if _, ok := hasMemberChild[rev]; !ok {
			heads = append(heads, rev)
		}
	}
	sort.Slice(heads, func(i, j int) bool {
		fi, fj := firstbranch.Contains(heads[i]), firstbranch.Contains(heads[j])
		if fi != fj {
			return fi
		}
		return heads[i] > heads[j]
	})
	visited := make(map[int64]struct{}, len(all))
	out := make([]int64, 0, len(all))
	for _, head := range heads {
		stack := []int64{head}
		for len(stack) > 0 {
			rev := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if _, done := visited[rev]; done {
				continue
			}
			visited[rev] = struct{}{}
			out = append(out, rev)
			ps := parentsOf(ev.repo, rev)
			// Reverse push so the first parent continues the chain.
			for i := len(ps) - 1; i >= 0; i-- {
				if _, ok := members[ps[i]]; ok {
					stack = append(stack, ps[i])
				}
			}
		}
	}
	return newUnorderedList(out)
}
