package revset

import (
	"reflect"
	"testing"
)

func checkRevs(t *testing.T, s Set, want []int64) {
	t.Helper()
	got := toSlice(s)
	if len(got) == 0 && len(want) == 0 {
		return
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("revs = %v, expected %v", got, want)
	}
}

// countingProducer yields the given revisions and records how many were
// actually pulled.
func countingProducer(revs []int64) (func() (int64, bool), *int) {
	produced := 0
	i := 0
	return func() (int64, bool) {
		if i >= len(revs) {
			return 0, false
		}
		r := revs[i]
		i++
		produced++
		return r, true
	}, &produced
}

func TestSpanSet(t *testing.T) {
	s := newSpan(2, 5)
	checkRevs(t, s, []int64{2, 3, 4, 5})
	if !s.IsAscending() || s.IsDescending() {
		t.Error("ascending span reports wrong order")
	}
	if s.Len() != 4 {
		t.Errorf("Len = %d, expected 4", s.Len())
	}
	if !s.Contains(2) || !s.Contains(5) || s.Contains(1) || s.Contains(6) {
		t.Error("span membership wrong at boundaries")
	}
	if f, _ := s.First(); f != 2 {
		t.Errorf("First = %d, expected 2", f)
	}
	if l, _ := s.Last(); l != 5 {
		t.Errorf("Last = %d, expected 5", l)
	}

	d := newSpanDesc(2, 5)
	checkRevs(t, d, []int64{5, 4, 3, 2})
	if f, _ := d.First(); f != 5 {
		t.Errorf("descending First = %d, expected 5", f)
	}

	empty := newSpan(3, 2)
	checkRevs(t, empty, nil)
	if empty.Len() != 0 {
		t.Errorf("empty span Len = %d", empty.Len())
	}
	if _, ok := empty.First(); ok {
		t.Error("empty span has a First")
	}
}

func TestListSet(t *testing.T) {
	s := newUnorderedList([]int64{4, 1, 3})
	checkRevs(t, s, []int64{4, 1, 3})
	if s.IsAscending() || s.IsDescending() {
		t.Error("unordered list reports an order")
	}
	if !s.Contains(1) || s.Contains(2) {
		t.Error("list membership wrong")
	}
	if l, _ := s.Last(); l != 3 {
		t.Errorf("Last = %d, expected 3", l)
	}

	if !newEmpty().IsAscending() || !newEmpty().IsDescending() {
		t.Error("empty list should report both orders")
	}
	if !newAscList([]int64{1, 2}).IsAscending() {
		t.Error("ascending list should report ascending")
	}
	if !newDescList([]int64{2, 1}).IsDescending() {
		t.Error("descending list should report descending")
	}
}

func TestGeneratorSet_Lazy(t *testing.T) {
	produce, produced := countingProducer([]int64{9, 7, 5, 3, 1})
	s := newGenerator(produce, false, true)

	it := s.Iterate()
	if r, _ := it.Next(); r != 9 {
		t.Errorf("first = %d, expected 9", r)
	}
	if r, _ := it.Next(); r != 7 {
		t.Errorf("second = %d, expected 7", r)
	}
	if *produced != 2 {
		t.Errorf("produced %d elements for 2 pulls", *produced)
	}

	// A second iterator replays the memoized prefix without producing.
	it2 := s.Iterate()
	it2.Next()
	it2.Next()
	if *produced != 2 {
		t.Errorf("produced %d elements after replay", *produced)
	}

	// A descending producer past the probe answers negative membership
	// without draining.
	if s.Contains(6) {
		t.Error("Contains(6) on odd-only set")
	}
	if *produced != 3 {
		t.Errorf("produced %d elements for ordered probe, expected 3", *produced)
	}

	if !s.Contains(1) {
		t.Error("Contains(1) should hold")
	}
	if s.Len() != 5 {
		t.Errorf("Len = %d, expected 5", s.Len())
	}
	checkRevs(t, s, []int64{9, 7, 5, 3, 1})
}

func TestFilteredSet(t *testing.T) {
	base := newSpan(0, 9)
	odd := newFiltered(base, func(r int64) bool { return r%2 == 1 })
	checkRevs(t, odd, []int64{1, 3, 5, 7, 9})
	if odd.Len() != 5 {
		t.Errorf("Len = %d, expected 5", odd.Len())
	}
	if !odd.IsAscending() {
		t.Error("filter should keep the base order")
	}
	if odd.Contains(4) || !odd.Contains(7) {
		t.Error("filtered membership wrong")
	}
	if l, _ := odd.Last(); l != 9 {
		t.Errorf("Last = %d, expected 9", l)
	}

	checkRevs(t, intersect(newSpan(0, 5), newSpan(3, 8)), []int64{3, 4, 5})
	checkRevs(t, difference(newSpan(0, 5), newSpan(3, 8)), []int64{0, 1, 2})
}

func TestUnionSet(t *testing.T) {
	// Shared ascending order merges with deduplication.
	m := union(newAscList([]int64{1, 4, 6}), newAscList([]int64{2, 4, 7}))
	checkRevs(t, m, []int64{1, 2, 4, 6, 7})
	if !m.IsAscending() {
		t.Error("merged union should stay ascending")
	}

	d := union(newDescList([]int64{6, 4, 1}), newDescList([]int64{7, 4, 2}))
	checkRevs(t, d, []int64{7, 6, 4, 2, 1})

	// Mixed orders degrade to concatenation of unseen elements.
	c := union(newDescList([]int64{5, 2}), newAscList([]int64{1, 2, 3}))
	checkRevs(t, c, []int64{5, 2, 1, 3})
	if c.IsAscending() || c.IsDescending() {
		t.Error("mixed union reports an order")
	}

	// concat keeps written operand order even for compatible inputs.
	oc := &unionSet{a: newAscList([]int64{4, 6}), b: newAscList([]int64{1, 4}), concat: true}
	checkRevs(t, oc, []int64{4, 6, 1})
	if oc.IsAscending() {
		t.Error("concat union must not claim ascending order")
	}

	if !m.Contains(7) || m.Contains(5) {
		t.Error("union membership wrong")
	}
}

func TestReverseSet(t *testing.T) {
	checkRevs(t, reverseSet(newSpan(1, 3)), []int64{3, 2, 1})
	checkRevs(t, reverseSet(newDescList([]int64{5, 3, 1})), []int64{1, 3, 5})
	if !reverseSet(newDescList([]int64{5, 3, 1})).IsAscending() {
		t.Error("reversed descending list should be ascending")
	}
	checkRevs(t, reverseSet(newUnorderedList([]int64{4, 1, 3})), []int64{3, 1, 4})
}

func TestSortAsc(t *testing.T) {
	checkRevs(t, sortAsc(newDescList([]int64{5, 3, 1})), []int64{1, 3, 5})
	checkRevs(t, sortAsc(newUnorderedList([]int64{4, 1, 3})), []int64{1, 3, 4})
	s := newSpan(1, 3)
	if sortAsc(s) != Set(s) {
		t.Error("ascending input should pass through")
	}
}

func TestSliceSet(t *testing.T) {
	produce, produced := countingProducer([]int64{0, 1, 2, 3, 4, 5, 6})
	s := newGenerator(produce, true, false)

	sliced := sliceSet(s, 1, 3)
	checkRevs(t, sliced, []int64{1, 2, 3})
	if !sliced.IsAscending() {
		t.Error("slice should keep the input order")
	}
	if *produced != 4 {
		t.Errorf("produced %d elements for offset 1 count 3, expected 4", *produced)
	}

	checkRevs(t, sliceSet(newSpan(0, 2), 5, 3), nil)
}

func TestUniverseSet(t *testing.T) {
	u := newUniverse(4)
	checkRevs(t, u, []int64{0, 1, 2, 3})
	if !u.Contains(nullRev) || !u.Contains(wdirRev) {
		t.Error("universe should admit the sentinels")
	}
	if u.Contains(4) {
		t.Error("universe admits out-of-range revision")
	}
}
