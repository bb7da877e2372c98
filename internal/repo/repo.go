// Package repo defines the read-only repository capability consumed by the
// revset engine, plus an in-memory implementation of it.
package repo

import (
	"fmt"
	"math"
	"sort"

	"revq/internal/util"
)

const (
	// NullRev is the universal root revision. Every rootless revision has
	// it as an implicit parent, and it always exists.
	NullRev = -1

	// WdirRev is the synthetic working-directory revision. It participates
	// in graph queries but is excluded from default iteration.
	WdirRev = math.MaxInt64
)

// Phase names for revisions.
const (
	PhasePublic = "public"
	PhaseDraft  = "draft"
	PhaseSecret = "secret"
)

// Meta holds the queryable metadata of a single revision.
type Meta struct {
	User   string            `yaml:"user"`
	Desc   string            `yaml:"desc"`
	Branch string            `yaml:"branch"`
	Date   int64             `yaml:"date"` // unix seconds
	Phase  string            `yaml:"phase"`

	// File changes relative to the first parent.
	Added    []string `yaml:"added"`
	Removed  []string `yaml:"removed"`
	Modified []string `yaml:"modified"`

	Extra map[string]string `yaml:"extra"`
}

// Files returns every path touched by the revision.
func (m *Meta) Files() []string {
	files := make([]string, 0, len(m.Added)+len(m.Removed)+len(m.Modified))
	files = append(files, m.Added...)
	files = append(files, m.Removed...)
	files = append(files, m.Modified...)
	sort.Strings(files)
	return files
}

// AmbiguousPrefixError indicates a hex prefix matching more than one revision.
type AmbiguousPrefixError struct {
	Prefix string
}

func (e *AmbiguousPrefixError) Error() string {
	return fmt.Sprintf("revlog@%s: ambiguous identifier!", e.Prefix)
}

// NotFoundError indicates a failed identifier lookup.
type NotFoundError struct {
	Input string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("unknown revision '%s'!", e.Input)
}

// Repository is the read-only view of a revision graph that query
// evaluation runs against. Revisions are dense integers in [0, Len());
// parents always have smaller numbers than their children.
type Repository interface {
	// Len returns the number of committed revisions.
	Len() int

	// Parents returns the concrete parents of a revision (0, 1, or 2
	// entries, NullRev excluded). WdirRev is answered with the working
	// parents; NullRev and out-of-range revisions have none.
	Parents(rev int64) []int64

	// Meta returns the metadata of a committed revision, nil otherwise.
	Meta(rev int64) *Meta

	// WorkingParents returns the parent revision(s) of the working copy.
	WorkingParents() []int64

	// Tags returns the tag table. Bookmarks likewise.
	Tags() map[string]int64
	Bookmarks() map[string]int64

	// BranchNames returns the set of branch names present in the graph.
	BranchNames() []string

	// LookupPrefix resolves a hex node-ID prefix to a revision. It
	// returns *NotFoundError or *AmbiguousPrefixError on failure.
	LookupPrefix(prefix string) (int64, error)

	// NodeID returns the full hex node ID of a committed revision, ""
	// otherwise.
	NodeID(rev int64) string

	// Successors returns the obsolescence successors of a revision,
	// Predecessors the inverse relation. A revision with successors is
	// obsolete.
	Successors(rev int64) []int64
	Predecessors(rev int64) []int64
}

// Memory is an in-memory Repository, used directly by tests and as the
// loaded form of the persistent store.
type Memory struct {
	parents  [][]int64
	metas    []Meta
	ids      []string // hex node IDs, index = rev
	working  []int64
	tags     map[string]int64
	books    map[string]int64
	succ     map[int64][]int64
	pred     map[int64][]int64
	children map[int64][]int64
}

// NewMemory creates an empty in-memory repository.
func NewMemory() *Memory {
	return &Memory{
		tags:     make(map[string]int64),
		books:    make(map[string]int64),
		succ:     make(map[int64][]int64),
		pred:     make(map[int64][]int64),
		children: make(map[int64][]int64),
	}
}

// AddRevision appends a revision with the given metadata and parents and
// returns its number. Parents must already exist.
func (m *Memory) AddRevision(meta Meta, parents ...int64) (int64, error) {
	rev := int64(len(m.parents))
	ps := make([]int64, 0, len(parents))
	for _, p := range parents {
		if p == NullRev {
			continue
		}
		if p < 0 || p >= rev {
			return 0, fmt.Errorf("parent %d of revision %d does not exist", p, rev)
		}
		ps = append(ps, p)
	}
	if meta.Phase == "" {
		meta.Phase = PhaseDraft
	}
	if meta.Branch == "" {
		meta.Branch = "default"
	}
	m.parents = append(m.parents, ps)
	m.metas = append(m.metas, meta)
	m.ids = append(m.ids, util.RevisionID(rev, ps, meta.User, meta.Desc, meta.Date))
	for _, p := range ps {
		m.children[p] = append(m.children[p], rev)
	}
	// The working copy tracks the latest head by default.
	m.working = []int64{rev}
	return rev, nil
}

// SetWorkingParents overrides the parents of the working copy.
func (m *Memory) SetWorkingParents(revs ...int64) {
	m.working = append([]int64(nil), revs...)
}

// SetTag registers a tag. SetBookmark likewise.
func (m *Memory) SetTag(name string, rev int64)      { m.tags[name] = rev }
func (m *Memory) SetBookmark(name string, rev int64) { m.books[name] = rev }

// SetSuccessor records an obsolescence edge from pred to succ.
func (m *Memory) SetSuccessor(pred, succ int64) {
	m.succ[pred] = append(m.succ[pred], succ)
	m.pred[succ] = append(m.pred[succ], pred)
}

// Len implements Repository.
func (m *Memory) Len() int { return len(m.parents) }

// Parents implements Repository.
func (m *Memory) Parents(rev int64) []int64 {
	if rev == WdirRev {
		return m.WorkingParents()
	}
	if rev < 0 || rev >= int64(len(m.parents)) {
		return nil
	}
	return m.parents[rev]
}

// Children returns the child revisions of rev.
func (m *Memory) Children(rev int64) []int64 { return m.children[rev] }

// Meta implements Repository.
func (m *Memory) Meta(rev int64) *Meta {
	if rev < 0 || rev >= int64(len(m.metas)) {
		return nil
	}
	return &m.metas[rev]
}

// WorkingParents implements Repository.
func (m *Memory) WorkingParents() []int64 {
	if len(m.working) == 0 {
		return []int64{NullRev}
	}
	return append([]int64(nil), m.working...)
}

// Tags implements Repository.
func (m *Memory) Tags() map[string]int64 { return m.tags }

// Bookmarks implements Repository.
func (m *Memory) Bookmarks() map[string]int64 { return m.books }

// BranchNames implements Repository.
func (m *Memory) BranchNames() []string {
	seen := make(map[string]bool)
	var names []string
	for i := range m.metas {
		if b := m.metas[i].Branch; !seen[b] {
			seen[b] = true
			names = append(names, b)
		}
	}
	sort.Strings(names)
	return names
}

// LookupPrefix implements Repository.
func (m *Memory) LookupPrefix(prefix string) (int64, error) {
	found := int64(-1)
	for rev, id := range m.ids {
		if len(prefix) <= len(id) && id[:len(prefix)] == prefix {
			if found >= 0 {
				return 0, &AmbiguousPrefixError{Prefix: prefix}
			}
			found = int64(rev)
		}
	}
	if found < 0 {
		return 0, &NotFoundError{Input: prefix}
	}
	return found, nil
}

// NodeID implements Repository.
func (m *Memory) NodeID(rev int64) string {
	if rev < 0 || rev >= int64(len(m.ids)) {
		return ""
	}
	return m.ids[rev]
}

// Successors implements Repository.
func (m *Memory) Successors(rev int64) []int64 { return m.succ[rev] }

// Predecessors implements Repository.
func (m *Memory) Predecessors(rev int64) []int64 { return m.pred[rev] }
