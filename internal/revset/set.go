package revset

import "sort"

// Set is the runtime value flowing between evaluation steps: a set of
// revisions plus an iteration-order discipline. Each representation keeps
// the same capability surface (membership, length, iteration, first/last)
// with different asymptotic costs, and consumers never see which
// representation they hold.
//
// A set reporting neither ascending nor descending iterates in an
// unspecified but deterministic order.
type Set interface {
	// Contains reports membership. O(1) for spans, O(log n) or O(n)
	// elsewhere.
	Contains(rev int64) bool
	// Len returns the number of elements. Lazy representations pay full
	// consumption here.
	Len() int
	// Iterate returns a fresh iterator in the set's documented order.
	Iterate() Iterator
	// IsAscending / IsDescending document the iteration order.
	IsAscending() bool
	IsDescending() bool
	// First and Last return the boundary elements in iteration order.
	First() (int64, bool)
	Last() (int64, bool)
}

// Iterator yields revisions one at a time; consumers may stop early and no
// further work is performed.
type Iterator interface {
	Next() (int64, bool)
}

type sliceIter struct {
	revs []int64
	i    int
}

func (it *sliceIter) Next() (int64, bool) {
	if it.i >= len(it.revs) {
		return 0, false
	}
	r := it.revs[it.i]
	it.i++
	return r, true
}

// toSlice materializes a set in iteration order.
func toSlice(s Set) []int64 {
	var revs []int64
	for it := s.Iterate(); ; {
		r, ok := it.Next()
		if !ok {
			return revs
		}
		revs = append(revs, r)
	}
}

// first returns the first iterated element.
func firstOf(s Set) (int64, bool) { return s.Iterate().Next() }

// spanSet is a contiguous revision range [lo, hi], ascending unless
// reversed. Membership and length are O(1).
type spanSet struct {
	lo, hi   int64 // inclusive, lo <= hi; lo > hi encodes empty
	reversed bool
}

func newSpan(lo, hi int64) *spanSet     { return &spanSet{lo: lo, hi: hi} }
func newSpanDesc(lo, hi int64) *spanSet { return &spanSet{lo: lo, hi: hi, reversed: true} }

func (s *spanSet) Contains(rev int64) bool { return rev >= s.lo && rev <= s.hi }

func (s *spanSet) Len() int {
	if s.lo > s.hi {
		return 0
	}
	return int(s.hi - s.lo + 1)
}

func (s *spanSet) IsAscending() bool  { return !s.reversed }
func (s *spanSet) IsDescending() bool { return s.reversed }

func (s *spanSet) First() (int64, bool) {
	if s.lo > s.hi {
		return 0, false
	}
	if s.reversed {
		return s.hi, true
	}
	return s.lo, true
}

func (s *spanSet) Last() (int64, bool) {
	if s.lo > s.hi {
		return 0, false
	}
	if s.reversed {
		return s.lo, true
	}
	return s.hi, true
}

type spanIter struct {
	cur, stop, step int64
	done            bool
}

func (it *spanIter) Next() (int64, bool) {
	if it.done {
		return 0, false
	}
	r := it.cur
	if r == it.stop {
		it.done = true
	} else {
		it.cur += it.step
	}
	return r, true
}

func (s *spanSet) Iterate() Iterator {
	if s.lo > s.hi {
		return &sliceIter{}
	}
	if s.reversed {
		return &spanIter{cur: s.hi, stop: s.lo, step: -1}
	}
	return &spanIter{cur: s.lo, stop: s.hi, step: 1}
}

// listSet is an explicit list of distinct revisions in a fixed order.
type listSet struct {
	revs  []int64
	asc   bool
	desc  bool
	index map[int64]struct{}
}

func newEmpty() *listSet { return &listSet{asc: true, desc: true} }

// newAscList takes a strictly ascending slice.
func newAscList(revs []int64) *listSet { return &listSet{revs: revs, asc: true} }

// newDescList takes a strictly descending slice.
func newDescList(revs []int64) *listSet { return &listSet{revs: revs, desc: true} }

// newUnorderedList takes distinct revisions in caller-chosen order.
func newUnorderedList(revs []int64) *listSet { return &listSet{revs: revs} }

func (s *listSet) Contains(rev int64) bool {
	if s.index == nil {
		s.index = make(map[int64]struct{}, len(s.revs))
		for _, r := range s.revs {
			s.index[r] = struct{}{}
		}
	}
	_, ok := s.index[rev]
	return ok
}

func (s *listSet) Len() int            { return len(s.revs) }
func (s *listSet) Iterate() Iterator   { return &sliceIter{revs: s.revs} }
func (s *listSet) IsAscending() bool   { return s.asc }
func (s *listSet) IsDescending() bool  { return s.desc }

func (s *listSet) First() (int64, bool) {
	if len(s.revs) == 0 {
		return 0, false
	}
	return s.revs[0], true
}

func (s *listSet) Last() (int64, bool) {
	if len(s.revs) == 0 {
		return 0, false
	}
	return s.revs[len(s.revs)-1], true
}

// generatorSet pulls revisions from a producer on demand and memoizes
// them, so early-terminating consumers never force full production.
type generatorSet struct {
	produce func() (int64, bool)
	cache   []int64
	done    bool
	asc     bool
	desc    bool
}

func newGenerator(produce func() (int64, bool), asc, desc bool) *generatorSet {
	return &generatorSet{produce: produce, asc: asc, desc: desc}
}

// pull produces one more element; false when exhausted.
func (s *generatorSet) pull() bool {
	if s.done {
		return false
	}
	r, ok := s.produce()
	if !ok {
		s.done = true
		return false
	}
	s.cache = append(s.cache, r)
	return true
}

func (s *generatorSet) Contains(rev int64) bool {
	for _, r := range s.cache {
		if r == rev {
			return true
		}
	}
	for s.pull() {
		r := s.cache[len(s.cache)-1]
		if r == rev {
			return true
		}
		// Ordered producers cannot yield rev after passing it.
		if s.asc && r > rev || s.desc && r < rev {
			return false
		}
	}
	return false
}

func (s *generatorSet) Len() int {
	for s.pull() {
	}
	return len(s.cache)
}

func (s *generatorSet) IsAscending() bool  { return s.asc }
func (s *generatorSet) IsDescending() bool { return s.desc }

func (s *generatorSet) First() (int64, bool) {
	if len(s.cache) == 0 && !s.pull() {
		return 0, false
	}
	return s.cache[0], true
}

func (s *generatorSet) Last() (int64, bool) {
	for s.pull() {
	}
	if len(s.cache) == 0 {
		return 0, false
	}
	return s.cache[len(s.cache)-1], true
}

type generatorIter struct {
	set *generatorSet
	i   int
}

func (it *generatorIter) Next() (int64, bool) {
	if it.i >= len(it.set.cache) && !it.set.pull() {
		return 0, false
	}
	r := it.set.cache[it.i]
	it.i++
	return r, true
}

func (s *generatorSet) Iterate() Iterator { return &generatorIter{set: s} }

// filteredSet is a lazy view of a base set restricted by a predicate.
// Difference and intersection are filtered views too.
type filteredSet struct {
	base Set
	cond func(int64) bool
}

func newFiltered(base Set, cond func(int64) bool) *filteredSet {
	return &filteredSet{base: base, cond: cond}
}

// intersect keeps a's order.
func intersect(a, b Set) Set { return newFiltered(a, b.Contains) }

// difference keeps a's order.
func difference(a, b Set) Set {
	return newFiltered(a, func(r int64) bool { return !b.Contains(r) })
}

func (s *filteredSet) Contains(rev int64) bool {
	return s.base.Contains(rev) && s.cond(rev)
}

func (s *filteredSet) Len() int {
	n := 0
	for it := s.Iterate(); ; {
		if _, ok := it.Next(); !ok {
			return n
		}
		n++
	}
}

func (s *filteredSet) IsAscending() bool  { return s.base.IsAscending() }
func (s *filteredSet) IsDescending() bool { return s.base.IsDescending() }

func (s *filteredSet) First() (int64, bool) { return firstOf(s) }

func (s *filteredSet) Last() (int64, bool) {
	last, found := int64(0), false
	for it := s.Iterate(); ; {
		r, ok := it.Next()
		if !ok {
			return last, found
		}
		last, found = r, true
	}
}

type filteredIter struct {
	base Iterator
	cond func(int64) bool
}

func (it *filteredIter) Next() (int64, bool) {
	for {
		r, ok := it.base.Next()
		if !ok {
			return 0, false
		}
		if it.cond(r) {
			return r, true
		}
	}
}

func (s *filteredSet) Iterate() Iterator {
	return &filteredIter{base: s.base.Iterate(), cond: s.cond}
}

// unionSet is a lazy union view. When both inputs share an ordering the
// iteration is a deduplicating merge in that order; otherwise, or when
// concat is set, it is a's elements followed by b's unseen elements.
// "or" expressions use concat so operands appear in written order.
type unionSet struct {
	a, b   Set
	concat bool
}

func union(a, b Set) Set { return &unionSet{a: a, b: b} }

func (s *unionSet) Contains(rev int64) bool {
	return s.a.Contains(rev) || s.b.Contains(rev)
}

func (s *unionSet) Len() int {
	n := s.a.Len()
	for it := s.b.Iterate(); ; {
		r, ok := it.Next()
		if !ok {
			return n
		}
		if !s.a.Contains(r) {
			n++
		}
	}
}

func (s *unionSet) IsAscending() bool {
	return !s.concat && s.a.IsAscending() && s.b.IsAscending()
}

func (s *unionSet) IsDescending() bool {
	return !s.concat && s.a.IsDescending() && s.b.IsDescending()
}

func (s *unionSet) First() (int64, bool) { return firstOf(s) }

func (s *unionSet) Last() (int64, bool) {
	last, found := int64(0), false
	for it := s.Iterate(); ; {
		r, ok := it.Next()
		if !ok {
			return last, found
		}
		last, found = r, true
	}
}

func (s *unionSet) Iterate() Iterator {
	if s.IsAscending() {
		return &mergeIter{a: s.a.Iterate(), b: s.b.Iterate(), less: func(x, y int64) bool { return x < y }}
	}
	if s.IsDescending() {
		return &mergeIter{a: s.a.Iterate(), b: s.b.Iterate(), less: func(x, y int64) bool { return x > y }}
	}
	return &concatIter{
		a:    s.a.Iterate(),
		b:    &filteredIter{base: s.b.Iterate(), cond: func(r int64) bool { return !s.a.Contains(r) }},
	}
}

// mergeIter merges two iterators sharing an order, dropping duplicates.
type mergeIter struct {
	a, b     Iterator
	less     func(int64, int64) bool
	av, bv   int64
	aok, bok bool
	primed   bool
}

func (it *mergeIter) Next() (int64, bool) {
	if !it.primed {
		it.av, it.aok = it.a.Next()
		it.bv, it.bok = it.b.Next()
		it.primed = true
	}
	switch {
	case !it.aok && !it.bok:
		return 0, false
	case !it.bok:
		r := it.av
		it.av, it.aok = it.a.Next()
		return r, true
	case !it.aok:
		r := it.bv
		it.bv, it.bok = it.b.Next()
		return r, true
	case it.av == it.bv:
		r := it.av
		it.av, it.aok = it.a.Next()
		it.bv, it.bok = it.b.Next()
		return r, true
	case it.less(it.av, it.bv):
		r := it.av
		it.av, it.aok = it.a.Next()
		return r, true
	default:
		r := it.bv
		it.bv, it.bok = it.b.Next()
		return r, true
	}
}

type concatIter struct {
	a, b Iterator
}

func (it *concatIter) Next() (int64, bool) {
	if r, ok := it.a.Next(); ok {
		return r, true
	}
	return it.b.Next()
}

// reverseSet flips a set's iteration order, materializing only when the
// input has no cheap reversed form.
func reverseSet(s Set) Set {
	switch v := s.(type) {
	case *spanSet:
		return &spanSet{lo: v.lo, hi: v.hi, reversed: !v.reversed}
	case *listSet:
		revs := make([]int64, len(v.revs))
		for i, r := range v.revs {
			revs[len(revs)-1-i] = r
		}
		return &listSet{revs: revs, asc: v.desc, desc: v.asc}
	}
	revs := toSlice(s)
	for i, j := 0, len(revs)-1; i < j; i, j = i+1, j-1 {
		revs[i], revs[j] = revs[j], revs[i]
	}
	return &listSet{revs: revs, asc: s.IsDescending(), desc: s.IsAscending()}
}

// sortAsc returns the set in ascending order.
func sortAsc(s Set) Set {
	if s.IsAscending() {
		return s
	}
	if s.IsDescending() {
		return reverseSet(s)
	}
	revs := toSlice(s)
	sort.Slice(revs, func(i, j int) bool { return revs[i] < revs[j] })
	return newAscList(revs)
}

// sliceSet takes count elements after skipping offset, preserving order
// and laziness: the input is never consumed past offset+count.
func sliceSet(s Set, offset, count int64) Set {
	var revs []int64
	it := s.Iterate()
	for i := int64(0); i < offset+count; i++ {
		r, ok := it.Next()
		if !ok {
			break
		}
		if i >= offset {
			revs = append(revs, r)
		}
	}
	return &listSet{revs: revs, asc: s.IsAscending(), desc: s.IsDescending()}
}

// universeSet is the full repository: revisions [0, n) in ascending order.
// The null and working-directory sentinels answer membership without
// appearing in iteration.
type universeSet struct {
	spanSet
}

func newUniverse(n int64) *universeSet {
	return &universeSet{spanSet: spanSet{lo: 0, hi: n - 1}}
}

func (s *universeSet) Contains(rev int64) bool {
	if rev == nullRev || rev == wdirRev {
		return true
	}
	return s.spanSet.Contains(rev)
}
