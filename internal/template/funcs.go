package template

import (
	"strings"

	"revq/internal/revset"
)

type funcImpl func(*evalCtx, []*node) (value, error)

// funcs is the function table. Single-argument entries double as filters
// through the pipe syntax. Populated in init because the implementations
// evaluate their arguments, which leads back through the table.
var funcs map[string]funcImpl

func init() {
	funcs = map[string]funcImpl{
		"stringify":  funcStringify,
		"mod":        funcMod,
		"if":         funcIf,
		"ifeq":       funcIfeq,
		"ifcontains": funcIfcontains,
		"count":      funcCount,
		"join":       funcJoin,
		"min":        funcMin,
		"max":        funcMax,
		"first":      funcFirst,
		"last":       funcLast,
		"revset":     funcRevset,
	}
}

func funcStringify(c *evalCtx, args []*node) (value, error) {
	var b strings.Builder
	for _, arg := range args {
		v, err := c.eval(arg)
		if err != nil {
			return nil, err
		}
		b.WriteString(stringify(v))
	}
	return b.String(), nil
}

func funcMod(c *evalCtx, args []*node) (value, error) {
	if len(args) != 2 {
		return nil, parseErr("mod expects two arguments")
	}
	a, err := c.evalInt(args[0])
	if err != nil {
		return nil, err
	}
	b, err := c.evalInt(args[1])
	if err != nil {
		return nil, err
	}
	if b == 0 {
		return nil, parseErr("division by zero is not defined")
	}
	return floorMod(a, b), nil
}

func funcIf(c *evalCtx, args []*node) (value, error) {
	if len(args) < 2 || len(args) > 3 {
		return nil, parseErr("if expects two or three arguments")
	}
	cond, err := c.eval(args[0])
	if err != nil {
		return nil, err
	}
	if truthy(cond) {
		return c.eval(args[1])
	}
	if len(args) == 3 {
		return c.eval(args[2])
	}
	return "", nil
}

func funcIfeq(c *evalCtx, args []*node) (value, error) {
	if len(args) < 3 || len(args) > 4 {
		return nil, parseErr("ifeq expects three or four arguments")
	}
	a, err := c.eval(args[0])
	if err != nil {
		return nil, err
	}
	b, err := c.eval(args[1])
	if err != nil {
		return nil, err
	}
	if stringify(a) == stringify(b) {
		return c.eval(args[2])
	}
	if len(args) == 4 {
		return c.eval(args[3])
	}
	return "", nil
}

func funcIfcontains(c *evalCtx, args []*node) (value, error) {
	if len(args) < 3 || len(args) > 4 {
		return nil, parseErr("ifcontains expects three or four arguments")
	}
	needle, err := c.eval(args[0])
	if err != nil {
		return nil, err
	}
	haystack, err := c.eval(args[1])
	if err != nil {
		return nil, err
	}
	found := false
	switch hs := haystack.(type) {
	case revset.Set:
		if rev, ok := needle.(int64); ok {
			found = hs.Contains(rev)
		}
	case []int64:
		if rev, ok := needle.(int64); ok {
			for _, r := range hs {
				if r == rev {
					found = true
					break
				}
			}
		}
	case []string:
		want := stringify(needle)
		for _, s := range hs {
			if s == want {
				found = true
				break
			}
		}
	default:
		return nil, parseErr("not iterable")
	}
	if found {
		return c.eval(args[2])
	}
	if len(args) == 4 {
		return c.eval(args[3])
	}
	return "", nil
}

func funcCount(c *evalCtx, args []*node) (value, error) {
	if len(args) != 1 {
		return nil, parseErr("count expects one argument")
	}
	v, err := c.eval(args[0])
	if err != nil {
		return nil, err
	}
	switch x := v.(type) {
	case revset.Set:
		return int64(x.Len()), nil
	case []int64:
		return int64(len(x)), nil
	case []string:
		return int64(len(x)), nil
	case string:
		return int64(len(x)), nil
	}
	return nil, parseErr("not countable")
}

func funcJoin(c *evalCtx, args []*node) (value, error) {
	if len(args) < 1 || len(args) > 2 {
		return nil, parseErr("join expects one or two arguments")
	}
	v, err := c.eval(args[0])
	if err != nil {
		return nil, err
	}
	sep := " "
	if len(args) == 2 {
		sv, err := c.eval(args[1])
		if err != nil {
			return nil, err
		}
		sep = stringify(sv)
	}
	var items []string
	switch x := v.(type) {
	case revset.Set:
		for _, rev := range setRevs(x) {
			items = append(items, stringify(rev))
		}
	case []int64:
		for _, rev := range x {
			items = append(items, stringify(rev))
		}
	case []string:
		items = x
	default:
		return nil, parseErr("not iterable")
	}
	return strings.Join(items, sep), nil
}

func funcMin(c *evalCtx, args []*node) (value, error) {
	return extremum(c, args, "min", func(a, b int64) bool { return a < b })
}

func funcMax(c *evalCtx, args []*node) (value, error) {
	return extremum(c, args, "max", func(a, b int64) bool { return a > b })
}

// extremum scans a revision collection for its smallest or largest
// member. An empty input yields the empty string, not an error.
func extremum(c *evalCtx, args []*node, name string, better func(a, b int64) bool) (value, error) {
	if len(args) != 1 {
		return nil, parseErr("%s expects one argument", name)
	}
	v, err := c.eval(args[0])
	if err != nil {
		return nil, err
	}
	revs, err := revList(v)
	if err != nil {
		return nil, err
	}
	if len(revs) == 0 {
		return "", nil
	}
	best := revs[0]
	for _, rev := range revs[1:] {
		if better(rev, best) {
			best = rev
		}
	}
	return best, nil
}

func funcFirst(c *evalCtx, args []*node) (value, error) {
	if len(args) < 1 || len(args) > 2 {
		return nil, parseErr("first expects one or two arguments")
	}
	n, err := sliceCount(c, args)
	if err != nil {
		return nil, err
	}
	v, err := c.eval(args[0])
	if err != nil {
		return nil, err
	}
	// Sets are consumed lazily: only the first n elements are pulled.
	if s, ok := v.(revset.Set); ok {
		var revs []int64
		it := s.Iterate()
		for int64(len(revs)) < n {
			rev, ok := it.Next()
			if !ok {
				break
			}
			revs = append(revs, rev)
		}
		return revs, nil
	}
	revs, err := revList(v)
	if err != nil {
		return nil, err
	}
	if n < int64(len(revs)) {
		revs = revs[:n]
	}
	return revs, nil
}

func funcLast(c *evalCtx, args []*node) (value, error) {
	if len(args) < 1 || len(args) > 2 {
		return nil, parseErr("last expects one or two arguments")
	}
	n, err := sliceCount(c, args)
	if err != nil {
		return nil, err
	}
	v, err := c.eval(args[0])
	if err != nil {
		return nil, err
	}
	revs, err := revList(v)
	if err != nil {
		return nil, err
	}
	if n < int64(len(revs)) {
		revs = revs[int64(len(revs))-n:]
	}
	return revs, nil
}

func sliceCount(c *evalCtx, args []*node) (int64, error) {
	if len(args) < 2 {
		return 1, nil
	}
	n, err := c.evalInt(args[1])
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, parseErr("negative number to select")
	}
	return n, nil
}

func revList(v value) ([]int64, error) {
	switch x := v.(type) {
	case revset.Set:
		return setRevs(x), nil
	case []int64:
		return x, nil
	}
	return nil, parseErr("not iterable")
}

func funcRevset(c *evalCtx, args []*node) (value, error) {
	if len(args) == 0 {
		return nil, parseErr("revset expects one or more arguments")
	}
	qv, err := c.eval(args[0])
	if err != nil {
		return nil, err
	}
	query := stringify(qv)
	if len(args) > 1 {
		var values []string
		for _, arg := range args[1:] {
			v, err := c.eval(arg)
			if err != nil {
				return nil, err
			}
			values = append(values, stringify(v))
		}
		query, err = formatSpec(query, values)
		if err != nil {
			return nil, err
		}
	}
	return c.eng.queries.Query(query)
}

// formatSpec substitutes %s and %d placeholders in a query with the extra
// revset() arguments, in order. %% is a literal percent sign.
func formatSpec(query string, values []string) (string, error) {
	var b strings.Builder
	next := 0
	for i := 0; i < len(query); i++ {
		if query[i] != '%' {
			b.WriteByte(query[i])
			continue
		}
		if i+1 >= len(query) {
			return "", parseErr("incomplete revspec format character")
		}
		i++
		switch query[i] {
		case '%':
			b.WriteByte('%')
		case 's', 'd':
			if next >= len(values) {
				return "", parseErr("missing argument for revspec format")
			}
			b.WriteString(values[next])
			next++
		default:
			return "", parseErr("unexpected revspec format character %c", query[i])
		}
	}
	return b.String(), nil
}
