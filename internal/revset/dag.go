package revset

import (
	"container/heap"
	"math"

	"revq/internal/repo"
)

const (
	// nullRev is the empty revision, the virtual parent of roots.
	nullRev int64 = -1
	// wdirRev stands for the working directory.
	wdirRev int64 = math.MaxInt64
)

// parentsOf resolves a revision's parents, mapping the working directory
// to its checked-out parents and the null revision to nothing.
func parentsOf(r repo.Repository, rev int64) []int64 {
	switch rev {
	case nullRev:
		return nil
	case wdirRev:
		return r.WorkingParents()
	}
	return r.Parents(rev)
}

// maxHeap pops the largest revision first; ancestor walks go downward.
type maxHeap []int64

func (h maxHeap) Len() int            { return len(h) }
func (h maxHeap) Less(i, j int) bool  { return h[i] > h[j] }
func (h maxHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *maxHeap) Push(x any)         { *h = append(*h, x.(int64)) }
func (h *maxHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// depthWindow restricts a walk to generations [start, stop]. A revision
// reachable along several paths carries every path's distance, and it
// qualifies as soon as any distance falls inside the window.
type depthWindow struct {
	start int64
	stop  int64 // inclusive; noLimit when unbounded
}

const noLimit = math.MaxInt64

func fullWindow() depthWindow { return depthWindow{start: 0, stop: noLimit} }

func (w depthWindow) admits(depths map[int64]struct{}) bool {
	for d := range depths {
		if d >= w.start && d <= w.stop {
			return true
		}
	}
	return false
}

// ancestorsSet walks ancestors of heads in descending revision order.
// The heads themselves are included at depth 0. The result is a lazy
// descending set.
func ancestorsSet(r repo.Repository, heads Set, window depthWindow) Set {
	var pending maxHeap
	depths := make(map[int64]map[int64]struct{})
	add := func(rev, depth int64) {
		if rev == nullRev {
			return
		}
		d, ok := depths[rev]
		if !ok {
			d = make(map[int64]struct{})
			depths[rev] = d
			heap.Push(&pending, rev)
		}
		d[depth] = struct{}{}
	}
	for it := heads.Iterate(); ; {
		rev, ok := it.Next()
		if !ok {
			break
		}
		add(rev, 0)
	}
	produce := func() (int64, bool) {
		for pending.Len() > 0 {
			rev := heap.Pop(&pending).(int64)
			d := depths[rev]
			// Depths past the window can never qualify downstream,
			// so they are not propagated.
			for depth := range d {
				if depth < window.stop {
					for _, p := range parentsOf(r, rev) {
						add(p, depth+1)
					}
				}
			}
			admitted := window.admits(d)
			delete(depths, rev)
			if admitted {
				return rev, true
			}
		}
		return 0, false
	}
	return newGenerator(produce, false, true)
}

// descendantsSet walks descendants of roots in ascending revision order.
// The roots themselves are included at depth 0. Parents always precede
// children numerically, so a single upward scan sees every parent before
// its children.
func descendantsSet(r repo.Repository, roots Set, window depthWindow) Set {
	lo, ok := sortAsc(roots).First()
	if !ok {
		return newEmpty()
	}
	rootSet := make(map[int64]struct{})
	for it := roots.Iterate(); ; {
		rev, found := it.Next()
		if !found {
			break
		}
		rootSet[rev] = struct{}{}
	}
	n := int64(r.Len())
	depths := make(map[int64]map[int64]struct{})
	cur := lo
	produce := func() (int64, bool) {
		for ; cur < n; cur++ {
			d := make(map[int64]struct{})
			if _, isRoot := rootSet[cur]; isRoot {
				d[0] = struct{}{}
			}
			for _, p := range r.Parents(cur) {
				for depth := range depths[p] {
					if depth < window.stop {
						d[depth+1] = struct{}{}
					}
				}
			}
			if len(d) == 0 {
				continue
			}
			depths[cur] = d
			if window.admits(d) {
				rev := cur
				cur++
				return rev, true
			}
		}
		return 0, false
	}
	return newGenerator(produce, true, false)
}

// reachableFrom materializes the full ancestor closure of heads,
// including the heads.
func reachableFrom(r repo.Repository, heads Set) map[int64]struct{} {
	seen := make(map[int64]struct{})
	var pending []int64
	push := func(rev int64) {
		if rev == nullRev {
			return
		}
		if _, ok := seen[rev]; ok {
			return
		}
		seen[rev] = struct{}{}
		pending = append(pending, rev)
	}
	for it := heads.Iterate(); ; {
		rev, ok := it.Next()
		if !ok {
			break
		}
		push(rev)
	}
	for len(pending) > 0 {
		rev := pending[len(pending)-1]
		pending = pending[:len(pending)-1]
		for _, p := range parentsOf(r, rev) {
			push(p)
		}
	}
	return seen
}

// dagRange returns revisions that are both descendants of roots and
// ancestors of heads, endpoints included, in ascending order.
func dagRange(r repo.Repository, roots, heads Set) Set {
	reach := reachableFrom(r, heads)
	desc := descendantsSet(r, roots, fullWindow())
	return newFiltered(desc, func(rev int64) bool {
		_, ok := reach[rev]
		return ok
	})
}

// onlyBetween returns ancestors of include (inclusive) that are not
// ancestors of exclude (inclusive), as a membership map.
func onlyBetween(r repo.Repository, include, exclude Set) map[int64]struct{} {
	excluded := reachableFrom(r, exclude)
	seen := make(map[int64]struct{})
	var pending []int64
	push := func(rev int64) {
		if rev == nullRev {
			return
		}
		if _, ok := excluded[rev]; ok {
			return
		}
		if _, ok := seen[rev]; ok {
			return
		}
		seen[rev] = struct{}{}
		pending = append(pending, rev)
	}
	for it := include.Iterate(); ; {
		rev, ok := it.Next()
		if !ok {
			break
		}
		push(rev)
	}
	for len(pending) > 0 {
		rev := pending[len(pending)-1]
		pending = pending[:len(pending)-1]
		for _, p := range parentsOf(r, rev) {
			push(p)
		}
	}
	return seen
}

// headsOf keeps members with no child in the set.
func headsOf(r repo.Repository, s Set) Set {
	parents := make(map[int64]struct{})
	for it := s.Iterate(); ; {
		rev, ok := it.Next()
		if !ok {
			break
		}
		for _, p := range parentsOf(r, rev) {
			parents[p] = struct{}{}
		}
	}
	return newFiltered(s, func(rev int64) bool {
		_, isParent := parents[rev]
		return !isParent
	})
}

// rootsOf keeps members with no parent in the set.
func rootsOf(r repo.Repository, s Set) Set {
	return newFiltered(s, func(rev int64) bool {
		for _, p := range parentsOf(r, rev) {
			if s.Contains(p) {
				return false
			}
		}
		return true
	})
}

// childrenOf returns all revisions with at least one parent in s,
// ascending.
func childrenOf(r repo.Repository, s Set) Set {
	lo, ok := sortAsc(s).First()
	if !ok {
		return newEmpty()
	}
	n := int64(r.Len())
	cur := lo + 1
	produce := func() (int64, bool) {
		for ; cur < n; cur++ {
			for _, p := range r.Parents(cur) {
				if s.Contains(p) {
					rev := cur
					cur++
					return rev, true
				}
			}
		}
		return 0, false
	}
	return newGenerator(produce, true, false)
}

// firstAncestor follows only first parents for n generations. It returns
// nullRev when the chain runs out.
func firstAncestor(r repo.Repository, rev, n int64) int64 {
	for ; n > 0 && rev != nullRev; n-- {
		ps := parentsOf(r, rev)
		if len(ps) == 0 {
			return nullRev
		}
		rev = ps[0]
	}
	return rev
}

// nthParent returns the nth parent of rev: 0 is rev itself, 1 and 2 the
// first and second parents, nullRev when absent.
func nthParent(r repo.Repository, rev, n int64) int64 {
	if n == 0 {
		return rev
	}
	ps := parentsOf(r, rev)
	if int64(len(ps)) < n {
		return nullRev
	}
	return ps[n-1]
}
