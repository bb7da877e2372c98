// Package gitio ingests Git repositories into the revision store using
// go-git. Commits become dense revision numbers in parent-before-child
// order, branch refs become bookmarks, and tag refs become tags.
package gitio

import (
	"fmt"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/utils/merkletrie"

	"revq/internal/repo"
	"revq/internal/store"
)

// Repository wraps a go-git repository.
type Repository struct {
	repo *git.Repository
}

// Open opens an existing Git repository.
func Open(path string) (*Repository, error) {
	gr, err := git.PlainOpen(path)
	if err != nil {
		return nil, fmt.Errorf("opening repository: %w", err)
	}
	return &Repository{repo: gr}, nil
}

// New wraps an already-open go-git repository.
func New(gr *git.Repository) *Repository {
	return &Repository{repo: gr}
}

// Commit is one ingestable revision.
type Commit struct {
	Hash    string
	Parents []string
	Meta    repo.Meta
}

// Commits returns every commit reachable from a branch ref, parents
// before children. Ties break on commit time, then hash, so the numbering
// is deterministic.
func (r *Repository) Commits() ([]*Commit, error) {
	byHash, err := r.reachable()
	if err != nil {
		return nil, err
	}

	ordered, err := topoOrder(byHash)
	if err != nil {
		return nil, err
	}

	commits := make([]*Commit, 0, len(ordered))
	for _, c := range ordered {
		meta, err := r.commitMeta(c)
		if err != nil {
			return nil, err
		}
		parents := make([]string, 0, len(c.ParentHashes))
		for _, p := range c.ParentHashes {
			parents = append(parents, p.String())
		}
		commits = append(commits, &Commit{
			Hash:    c.Hash.String(),
			Parents: parents,
			Meta:    meta,
		})
	}
	return commits, nil
}

// reachable collects the commits reachable from all branch refs.
func (r *Repository) reachable() (map[string]*object.Commit, error) {
	byHash := make(map[string]*object.Commit)

	branches, err := r.repo.Branches()
	if err != nil {
		return nil, fmt.Errorf("listing branches: %w", err)
	}
	var stack []plumbing.Hash
	err = branches.ForEach(func(ref *plumbing.Reference) error {
		stack = append(stack, ref.Hash())
		return nil
	})
	if err != nil {
		return nil, err
	}

	for len(stack) > 0 {
		h := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, ok := byHash[h.String()]; ok {
			continue
		}
		c, err := r.repo.CommitObject(h)
		if err != nil {
			return nil, fmt.Errorf("reading commit %s: %w", h, err)
		}
		byHash[h.String()] = c
		stack = append(stack, c.ParentHashes...)
	}
	return byHash, nil
}

// topoOrder sorts commits parents-first.
func topoOrder(byHash map[string]*object.Commit) ([]*object.Commit, error) {
	pending := make(map[string]int, len(byHash))
	children := make(map[string][]string)
	var ready []*object.Commit
	for hash, c := range byHash {
		n := 0
		for _, p := range c.ParentHashes {
			if _, ok := byHash[p.String()]; ok {
				children[p.String()] = append(children[p.String()], hash)
				n++
			}
		}
		pending[hash] = n
		if n == 0 {
			ready = append(ready, c)
		}
	}

	var out []*object.Commit
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool {
			ti, tj := ready[i].Committer.When, ready[j].Committer.When
			if !ti.Equal(tj) {
				return ti.Before(tj)
			}
			return ready[i].Hash.String() < ready[j].Hash.String()
		})
		c := ready[0]
		ready = ready[1:]
		out = append(out, c)
		for _, child := range children[c.Hash.String()] {
			pending[child]--
			if pending[child] == 0 {
				ready = append(ready, byHash[child])
			}
		}
	}
	if len(out) != len(byHash) {
		return nil, fmt.Errorf("commit graph contains a cycle")
	}
	return out, nil
}

// commitMeta maps a commit to revision metadata. File changes are taken
// against the first parent, matching the store's change model.
func (r *Repository) commitMeta(c *object.Commit) (repo.Meta, error) {
	meta := repo.Meta{
		User: fmt.Sprintf("%s <%s>", c.Author.Name, c.Author.Email),
		Desc: strings.TrimSpace(c.Message),
		Date: c.Author.When.Unix(),
	}

	tree, err := c.Tree()
	if err != nil {
		return meta, fmt.Errorf("reading tree of %s: %w", c.Hash, err)
	}

	if c.NumParents() == 0 {
		err := tree.Files().ForEach(func(f *object.File) error {
			meta.Added = append(meta.Added, f.Name)
			return nil
		})
		if err != nil {
			return meta, fmt.Errorf("listing files of %s: %w", c.Hash, err)
		}
		sort.Strings(meta.Added)
		return meta, nil
	}

	parent, err := c.Parent(0)
	if err != nil {
		return meta, fmt.Errorf("reading parent of %s: %w", c.Hash, err)
	}
	parentTree, err := parent.Tree()
	if err != nil {
		return meta, fmt.Errorf("reading parent tree of %s: %w", c.Hash, err)
	}
	changes, err := parentTree.Diff(tree)
	if err != nil {
		return meta, fmt.Errorf("diffing %s: %w", c.Hash, err)
	}
	for _, change := range changes {
		action, err := change.Action()
		if err != nil {
			continue
		}
		switch action {
		case merkletrie.Insert:
			meta.Added = append(meta.Added, change.To.Name)
		case merkletrie.Delete:
			meta.Removed = append(meta.Removed, change.From.Name)
		case merkletrie.Modify:
			meta.Modified = append(meta.Modified, change.From.Name)
		}
	}
	sort.Strings(meta.Added)
	sort.Strings(meta.Removed)
	sort.Strings(meta.Modified)
	return meta, nil
}

// Ingest writes the repository's history into the store and returns the
// number of revisions added. Branch refs become bookmarks, tag refs become
// tags, and HEAD becomes the working parent.
func Ingest(r *Repository, s *store.Store) (int, error) {
	commits, err := r.Commits()
	if err != nil {
		return 0, err
	}

	revOf := make(map[string]int64, len(commits))
	for _, c := range commits {
		parents := make([]int64, 0, len(c.Parents))
		for _, p := range c.Parents {
			rev, ok := revOf[p]
			if !ok {
				return 0, fmt.Errorf("parent %s of %s not ingested", p, c.Hash)
			}
			parents = append(parents, rev)
		}
		rev, err := s.AddRevision(c.Meta, parents...)
		if err != nil {
			return 0, fmt.Errorf("storing %s: %w", c.Hash, err)
		}
		revOf[c.Hash] = rev
	}

	if err := r.ingestRefs(s, revOf); err != nil {
		return 0, err
	}
	return len(commits), nil
}

func (r *Repository) ingestRefs(s *store.Store, revOf map[string]int64) error {
	branches, err := r.repo.Branches()
	if err != nil {
		return fmt.Errorf("listing branches: %w", err)
	}
	err = branches.ForEach(func(ref *plumbing.Reference) error {
		if rev, ok := revOf[ref.Hash().String()]; ok {
			return s.SetBookmark(ref.Name().Short(), rev)
		}
		return nil
	})
	if err != nil {
		return err
	}

	tags, err := r.repo.Tags()
	if err != nil {
		return fmt.Errorf("listing tags: %w", err)
	}
	err = tags.ForEach(func(ref *plumbing.Reference) error {
		hash := ref.Hash()
		// Annotated tags point at a tag object, not the commit.
		if tag, err := r.repo.TagObject(hash); err == nil {
			c, err := tag.Commit()
			if err != nil {
				return nil
			}
			hash = c.Hash
		}
		if rev, ok := revOf[hash.String()]; ok {
			return s.SetTag(ref.Name().Short(), rev)
		}
		return nil
	})
	if err != nil {
		return err
	}

	head, err := r.repo.Head()
	if err != nil {
		// A repository without commits has no HEAD to track.
		return nil
	}
	if rev, ok := revOf[head.Hash().String()]; ok {
		return s.SetWorkingParents(rev)
	}
	return nil
}
