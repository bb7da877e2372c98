package gitio

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"revq/internal/store"
)

func initRepo(t *testing.T) (*git.Repository, *git.Worktree) {
	t.Helper()
	gr, err := git.Init(memory.NewStorage(), memfs.New())
	require.NoError(t, err)
	w, err := gr.Worktree()
	require.NoError(t, err)
	return gr, w
}

func writeFile(t *testing.T, w *git.Worktree, name, content string) {
	t.Helper()
	f, err := w.Filesystem.Create(name)
	require.NoError(t, err)
	_, err = f.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, f.Close())
	_, err = w.Add(name)
	require.NoError(t, err)
}

func commit(t *testing.T, w *git.Worktree, msg, author string, at int64) string {
	t.Helper()
	sig := &object.Signature{
		Name:  author,
		Email: author + "@example.com",
		When:  time.Unix(at, 0).UTC(),
	}
	h, err := w.Commit(msg, &git.CommitOptions{Author: sig, Committer: sig})
	require.NoError(t, err)
	return h.String()
}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "revq.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestIngest(t *testing.T) {
	gr, w := initRepo(t)

	writeFile(t, w, "README.md", "hello\n")
	commit(t, w, "root commit", "alice", 1000)

	writeFile(t, w, "README.md", "hello world\n")
	writeFile(t, w, "src/main.go", "package main\n")
	commit(t, w, "add main", "bob", 2000)

	_, err := w.Remove("README.md")
	require.NoError(t, err)
	commit(t, w, "drop readme", "carol", 3000)

	s := openStore(t)
	n, err := Ingest(New(gr), s)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	m, err := s.Load()
	require.NoError(t, err)
	require.Equal(t, 3, m.Len())

	assert.Empty(t, m.Parents(0))
	assert.Equal(t, []int64{0}, m.Parents(1))
	assert.Equal(t, []int64{1}, m.Parents(2))

	assert.Equal(t, "alice <alice@example.com>", m.Meta(0).User)
	assert.Equal(t, "root commit", m.Meta(0).Desc)
	assert.Equal(t, int64(1000), m.Meta(0).Date)
	assert.Equal(t, []string{"README.md"}, m.Meta(0).Added)

	assert.Equal(t, []string{"src/main.go"}, m.Meta(1).Added)
	assert.Equal(t, []string{"README.md"}, m.Meta(1).Modified)
	assert.Equal(t, []string{"README.md"}, m.Meta(2).Removed)

	assert.Equal(t, []int64{2}, m.WorkingParents())
}

func TestIngest_Refs(t *testing.T) {
	gr, w := initRepo(t)

	writeFile(t, w, "a.txt", "a\n")
	commit(t, w, "first", "alice", 1000)
	writeFile(t, w, "b.txt", "b\n")
	commit(t, w, "second", "alice", 2000)

	head, err := gr.Head()
	require.NoError(t, err)
	_, err = gr.CreateTag("v1.0", head.Hash(), nil)
	require.NoError(t, err)

	s := openStore(t)
	_, err = Ingest(New(gr), s)
	require.NoError(t, err)

	m, err := s.Load()
	require.NoError(t, err)

	assert.Equal(t, int64(1), m.Tags()["v1.0"])
	assert.Equal(t, int64(1), m.Bookmarks()[head.Name().Short()])
}

func TestCommits_Order(t *testing.T) {
	gr, w := initRepo(t)

	writeFile(t, w, "a.txt", "1\n")
	h0 := commit(t, w, "one", "alice", 1000)
	writeFile(t, w, "a.txt", "2\n")
	h1 := commit(t, w, "two", "alice", 2000)
	writeFile(t, w, "a.txt", "3\n")
	h2 := commit(t, w, "three", "alice", 3000)

	commits, err := New(gr).Commits()
	require.NoError(t, err)
	require.Len(t, commits, 3)

	assert.Equal(t, []string{h0, h1, h2},
		[]string{commits[0].Hash, commits[1].Hash, commits[2].Hash})
	assert.Empty(t, commits[0].Parents)
	assert.Equal(t, []string{h0}, commits[1].Parents)
	assert.Equal(t, []string{h1}, commits[2].Parents)
}
