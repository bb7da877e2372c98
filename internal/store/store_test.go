package store

import (
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"revq/internal/repo"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "revq.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func addRev(t *testing.T, s *Store, meta repo.Meta, parents ...int64) int64 {
	t.Helper()
	rev, err := s.AddRevision(meta, parents...)
	require.NoError(t, err)
	return rev
}

func TestStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "revq.db")
	s, err := Open(path)
	require.NoError(t, err)

	addRev(t, s, repo.Meta{User: "alice", Desc: "root", Date: 1000,
		Added: []string{"README.md"}})
	addRev(t, s, repo.Meta{User: "bob", Desc: "left", Date: 2000,
		Modified: []string{"README.md"},
		Extra:    map[string]string{"source": "upstream"}}, 0)
	addRev(t, s, repo.Meta{User: "carol", Desc: "right", Branch: "stable", Date: 3000}, 0)
	addRev(t, s, repo.Meta{User: "alice", Desc: "merge", Date: 4000,
		Phase: repo.PhaseSecret}, 1, 2)

	require.NoError(t, s.SetTag("v1.0", 1))
	require.NoError(t, s.SetBookmark("feature", 2))
	require.NoError(t, s.SetSuccessor(1, 3))
	require.NoError(t, s.SetWorkingParents(3))
	require.NoError(t, s.Close())

	// Reopen: everything must come back from disk.
	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	m, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, 4, m.Len())

	assert.Equal(t, []int64{1, 2}, m.Parents(3))
	assert.Equal(t, []int64{0}, m.Parents(2))
	assert.Empty(t, m.Parents(0))

	meta := m.Meta(1)
	require.NotNil(t, meta)
	assert.Equal(t, "bob", meta.User)
	assert.Equal(t, "left", meta.Desc)
	assert.Equal(t, int64(2000), meta.Date)
	assert.Equal(t, []string{"README.md"}, meta.Modified)
	assert.Equal(t, "upstream", meta.Extra["source"])
	assert.Equal(t, "default", meta.Branch)
	assert.Equal(t, repo.PhaseDraft, meta.Phase)

	assert.Equal(t, "stable", m.Meta(2).Branch)
	assert.Equal(t, repo.PhaseSecret, m.Meta(3).Phase)

	assert.Equal(t, int64(1), m.Tags()["v1.0"])
	assert.Equal(t, int64(2), m.Bookmarks()["feature"])
	assert.Equal(t, []int64{3}, m.Successors(1))
	assert.Equal(t, []int64{1}, m.Predecessors(3))
	assert.Equal(t, []int64{3}, m.WorkingParents())
	assert.Equal(t, []string{"default", "stable"}, m.BranchNames())
}

func TestStore_NodeIDs(t *testing.T) {
	s := openStore(t)
	addRev(t, s, repo.Meta{User: "alice", Desc: "root", Date: 1000})
	addRev(t, s, repo.Meta{User: "bob", Desc: "next", Date: 2000}, 0)

	m, err := s.Load()
	require.NoError(t, err)

	for rev := int64(0); rev < 2; rev++ {
		node := m.NodeID(rev)
		assert.Len(t, node, 64)

		got, err := s.ResolvePrefix(node)
		require.NoError(t, err)
		assert.Equal(t, rev, got)
	}
}

func TestStore_ResolvePrefix(t *testing.T) {
	s := openStore(t)
	// Enough revisions that some pair is guaranteed to share a first hex
	// character.
	for i := 0; i < 17; i++ {
		parents := []int64{repo.NullRev}
		if i > 0 {
			parents = []int64{int64(i - 1)}
		}
		addRev(t, s, repo.Meta{User: "alice", Desc: fmt.Sprintf("change %d", i), Date: int64(i)}, parents...)
	}
	m, err := s.Load()
	require.NoError(t, err)

	firsts := make(map[string]int)
	for rev := 0; rev < 17; rev++ {
		firsts[m.NodeID(int64(rev))[:1]]++
	}
	shared := ""
	for c, n := range firsts {
		if n > 1 {
			shared = c
			break
		}
	}
	require.NotEmpty(t, shared)

	_, err = s.ResolvePrefix(shared)
	var ambiguous *repo.AmbiguousPrefixError
	require.ErrorAs(t, err, &ambiguous)
	assert.Contains(t, err.Error(), "ambiguous identifier!")

	_, err = s.ResolvePrefix(strings.Repeat("0", 65))
	var notFound *repo.NotFoundError
	require.ErrorAs(t, err, &notFound)

	_, err = s.ResolvePrefix("zz")
	require.ErrorAs(t, err, &notFound)

	_, err = s.ResolvePrefix("")
	require.ErrorAs(t, err, &notFound)
}

func TestStore_Branches(t *testing.T) {
	s := openStore(t)
	addRev(t, s, repo.Meta{User: "alice", Desc: "root", Date: 1})
	addRev(t, s, repo.Meta{User: "bob", Desc: "stable", Branch: "stable", Date: 2}, 0)
	addRev(t, s, repo.Meta{User: "carol", Desc: "more", Branch: "stable", Date: 3}, 1)

	names, err := s.Branches()
	require.NoError(t, err)
	assert.Equal(t, []string{"default", "stable"}, names)
}

func TestStore_BadParent(t *testing.T) {
	s := openStore(t)
	addRev(t, s, repo.Meta{User: "alice", Desc: "root", Date: 1})

	_, err := s.AddRevision(repo.Meta{User: "bob", Desc: "broken", Date: 2}, 7)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")
}
