package repo

import (
	"reflect"
	"testing"
)

func addRev(t *testing.T, m *Memory, meta Meta, parents ...int64) int64 {
	t.Helper()
	rev, err := m.AddRevision(meta, parents...)
	if err != nil {
		t.Fatal(err)
	}
	return rev
}

func TestMemory_AddRevision(t *testing.T) {
	m := NewMemory()
	if got := m.WorkingParents(); !reflect.DeepEqual(got, []int64{NullRev}) {
		t.Errorf("empty repo working parents = %v, expected [%d]", got, NullRev)
	}

	r0 := addRev(t, m, Meta{User: "alice", Desc: "root"})
	r1 := addRev(t, m, Meta{User: "bob", Desc: "child", Phase: PhaseSecret, Branch: "dev"}, r0)
	r2 := addRev(t, m, Meta{User: "carol", Desc: "merge"}, r0, r1)

	if m.Len() != 3 {
		t.Fatalf("Len = %d, expected 3", m.Len())
	}
	if got := m.Parents(r2); !reflect.DeepEqual(got, []int64{r0, r1}) {
		t.Errorf("Parents(%d) = %v", r2, got)
	}
	if got := m.Parents(r0); len(got) != 0 {
		t.Errorf("Parents(root) = %v, expected none", got)
	}
	if got := m.WorkingParents(); !reflect.DeepEqual(got, []int64{r2}) {
		t.Errorf("working parents = %v, expected [%d]", got, r2)
	}
	if got := m.Children(r0); !reflect.DeepEqual(got, []int64{r1, r2}) {
		t.Errorf("Children(%d) = %v", r0, got)
	}

	// Defaults fill in when metadata leaves them blank.
	if m.Meta(r0).Phase != PhaseDraft || m.Meta(r0).Branch != "default" {
		t.Errorf("root meta = %+v, expected draft/default", m.Meta(r0))
	}
	if m.Meta(r1).Phase != PhaseSecret || m.Meta(r1).Branch != "dev" {
		t.Errorf("r1 meta = %+v, expected secret/dev", m.Meta(r1))
	}

	// A null parent is the implicit root parent and drops out.
	r3 := addRev(t, m, Meta{Desc: "rootless"}, NullRev)
	if got := m.Parents(r3); len(got) != 0 {
		t.Errorf("Parents(rootless) = %v, expected none", got)
	}

	if _, err := m.AddRevision(Meta{}, 42); err == nil {
		t.Error("future parent should be rejected")
	}
}

func TestMemory_Bounds(t *testing.T) {
	m := NewMemory()
	addRev(t, m, Meta{Desc: "only"})

	if m.Meta(5) != nil || m.Meta(-1) != nil {
		t.Error("out-of-range Meta should be nil")
	}
	if m.NodeID(5) != "" {
		t.Error("out-of-range NodeID should be empty")
	}
	if got := m.Parents(5); got != nil {
		t.Errorf("out-of-range Parents = %v", got)
	}
	if got := m.Parents(WdirRev); !reflect.DeepEqual(got, []int64{0}) {
		t.Errorf("Parents(wdir) = %v, expected the working parents", got)
	}
}

func TestMemory_SetWorkingParents(t *testing.T) {
	m := NewMemory()
	r0 := addRev(t, m, Meta{Desc: "a"})
	addRev(t, m, Meta{Desc: "b"}, r0)
	m.SetWorkingParents(r0)
	if got := m.WorkingParents(); !reflect.DeepEqual(got, []int64{r0}) {
		t.Errorf("working parents = %v, expected [%d]", got, r0)
	}
}

func TestMemory_LookupPrefix(t *testing.T) {
	m := NewMemory()
	r0 := addRev(t, m, Meta{User: "alice", Desc: "a", Date: 100})
	r1 := addRev(t, m, Meta{User: "alice", Desc: "b", Date: 200}, r0)

	id := m.NodeID(r1)
	if len(id) != 64 {
		t.Fatalf("node ID %q is not a 32-byte hex digest", id)
	}
	// Grow the prefix until it is unambiguous against the other ID.
	prefix := id[:1]
	for i := 1; i < len(id) && m.NodeID(r0)[:i] == prefix; i++ {
		prefix = id[:i+1]
	}
	rev, err := m.LookupPrefix(prefix)
	if err != nil {
		t.Fatalf("LookupPrefix(%q): %v", prefix, err)
	}
	if rev != r1 {
		t.Errorf("LookupPrefix(%q) = %d, expected %d", prefix, rev, r1)
	}

	if _, err := m.LookupPrefix("not-a-match"); err == nil {
		t.Error("missing prefix should fail")
	} else if _, ok := err.(*NotFoundError); !ok {
		t.Errorf("missing prefix error = %T, expected NotFoundError", err)
	}

	if _, err := m.LookupPrefix(""); err == nil {
		t.Error("empty prefix matches everything and should be ambiguous")
	} else if _, ok := err.(*AmbiguousPrefixError); !ok {
		t.Errorf("ambiguous prefix error = %T, expected AmbiguousPrefixError", err)
	}

	// The ID scheme is deterministic for identical inputs.
	other := NewMemory()
	o0 := addRev(t, other, Meta{User: "alice", Desc: "a", Date: 100})
	if other.NodeID(o0) != m.NodeID(r0) {
		t.Error("identical revisions should hash to identical IDs")
	}
}

func TestMemory_Names(t *testing.T) {
	m := NewMemory()
	r0 := addRev(t, m, Meta{Desc: "a"})
	r1 := addRev(t, m, Meta{Desc: "b", Branch: "stable"}, r0)
	m.SetTag("v1", r0)
	m.SetBookmark("work", r1)
	m.SetSuccessor(r0, r1)

	if got := m.Tags()["v1"]; got != r0 {
		t.Errorf("tag v1 = %d, expected %d", got, r0)
	}
	if got := m.Bookmarks()["work"]; got != r1 {
		t.Errorf("bookmark work = %d, expected %d", got, r1)
	}
	if got := m.BranchNames(); !reflect.DeepEqual(got, []string{"default", "stable"}) {
		t.Errorf("BranchNames = %v", got)
	}
	if got := m.Successors(r0); !reflect.DeepEqual(got, []int64{r1}) {
		t.Errorf("Successors = %v", got)
	}
	if got := m.Predecessors(r1); !reflect.DeepEqual(got, []int64{r0}) {
		t.Errorf("Predecessors = %v", got)
	}
	if got := m.Successors(r1); len(got) != 0 {
		t.Errorf("Successors(%d) = %v, expected none", r1, got)
	}
}

func TestMeta_Files(t *testing.T) {
	meta := Meta{
		Added:    []string{"c.txt"},
		Removed:  []string{"a.txt"},
		Modified: []string{"b.txt"},
	}
	if got := meta.Files(); !reflect.DeepEqual(got, []string{"a.txt", "b.txt", "c.txt"}) {
		t.Errorf("Files = %v, expected sorted union", got)
	}
}
