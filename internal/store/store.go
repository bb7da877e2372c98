// Package store provides the SQLite-backed persistent revision store.
// Revision metadata is kept as zstd-compressed YAML payloads keyed by
// content-addressed node IDs; the store loads into an in-memory repository
// for query evaluation.
package store

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"
	"gopkg.in/yaml.v3"
	_ "modernc.org/sqlite"

	"revq/internal/repo"
	"revq/internal/util"
)

const schema = `
CREATE TABLE IF NOT EXISTS revisions (
	rev    INTEGER PRIMARY KEY,
	node   TEXT NOT NULL UNIQUE,
	p1     INTEGER NOT NULL DEFAULT -1,
	p2     INTEGER NOT NULL DEFAULT -1,
	branch TEXT NOT NULL DEFAULT 'default',
	meta   BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS revisions_branch ON revisions(branch);

CREATE TABLE IF NOT EXISTS names (
	ns   TEXT NOT NULL,
	name TEXT NOT NULL,
	rev  INTEGER NOT NULL,
	PRIMARY KEY (ns, name)
);

CREATE TABLE IF NOT EXISTS markers (
	pred INTEGER NOT NULL,
	succ INTEGER NOT NULL,
	PRIMARY KEY (pred, succ)
);

CREATE TABLE IF NOT EXISTS state (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// Name namespaces in the names table.
const (
	nsTag      = "tag"
	nsBookmark = "bookmark"
)

// Store wraps the SQLite database connection.
type Store struct {
	conn *sql.DB
	enc  *zstd.Encoder
	dec  *zstd.Decoder
}

// Open opens or creates the store at the given path.
func Open(path string) (*Store, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("creating zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}

	return &Store{conn: conn, enc: enc, dec: dec}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.enc.Close()
	s.dec.Close()
	return s.conn.Close()
}

// Len returns the number of stored revisions.
func (s *Store) Len() (int, error) {
	var n int
	if err := s.conn.QueryRow(`SELECT COUNT(*) FROM revisions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting revisions: %w", err)
	}
	return n, nil
}

// AddRevision appends a revision and returns its number. Parents must
// already exist; the null revision is dropped.
func (s *Store) AddRevision(meta repo.Meta, parents ...int64) (int64, error) {
	n, err := s.Len()
	if err != nil {
		return 0, err
	}
	rev := int64(n)

	ps := make([]int64, 0, len(parents))
	for _, p := range parents {
		if p == repo.NullRev {
			continue
		}
		if p < 0 || p >= rev {
			return 0, fmt.Errorf("parent %d of revision %d does not exist", p, rev)
		}
		ps = append(ps, p)
	}
	if meta.Phase == "" {
		meta.Phase = repo.PhaseDraft
	}
	if meta.Branch == "" {
		meta.Branch = "default"
	}

	node := util.RevisionID(rev, ps, meta.User, meta.Desc, meta.Date)
	payload, err := yaml.Marshal(&meta)
	if err != nil {
		return 0, fmt.Errorf("marshaling metadata: %w", err)
	}
	blob := s.enc.EncodeAll(payload, nil)

	p1, p2 := int64(repo.NullRev), int64(repo.NullRev)
	if len(ps) > 0 {
		p1 = ps[0]
	}
	if len(ps) > 1 {
		p2 = ps[1]
	}

	tx, err := s.conn.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		INSERT INTO revisions (rev, node, p1, p2, branch, meta)
		VALUES (?, ?, ?, ?, ?, ?)
	`, rev, node, p1, p2, meta.Branch, blob); err != nil {
		return 0, fmt.Errorf("inserting revision: %w", err)
	}
	if err := setState(tx, "working", formatRevs([]int64{rev})); err != nil {
		return 0, err
	}

	return rev, tx.Commit()
}

// SetTag registers a tag. SetBookmark likewise.
func (s *Store) SetTag(name string, rev int64) error {
	return s.setName(nsTag, name, rev)
}

func (s *Store) SetBookmark(name string, rev int64) error {
	return s.setName(nsBookmark, name, rev)
}

func (s *Store) setName(ns, name string, rev int64) error {
	_, err := s.conn.Exec(`
		INSERT INTO names (ns, name, rev) VALUES (?, ?, ?)
		ON CONFLICT (ns, name) DO UPDATE SET rev = excluded.rev
	`, ns, name, rev)
	if err != nil {
		return fmt.Errorf("inserting name: %w", err)
	}
	return nil
}

// SetSuccessor records an obsolescence edge from pred to succ.
func (s *Store) SetSuccessor(pred, succ int64) error {
	_, err := s.conn.Exec(`
		INSERT OR IGNORE INTO markers (pred, succ) VALUES (?, ?)
	`, pred, succ)
	if err != nil {
		return fmt.Errorf("inserting marker: %w", err)
	}
	return nil
}

// SetWorkingParents overrides the parents of the working copy.
func (s *Store) SetWorkingParents(revs ...int64) error {
	tx, err := s.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := setState(tx, "working", formatRevs(revs)); err != nil {
		return err
	}
	return tx.Commit()
}

func setState(tx *sql.Tx, key, value string) error {
	_, err := tx.Exec(`
		INSERT INTO state (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("updating state: %w", err)
	}
	return nil
}

// ResolvePrefix resolves a hex node-ID prefix to a revision without
// loading the whole store.
func (s *Store) ResolvePrefix(prefix string) (int64, error) {
	if !util.IsHexPrefix(prefix) {
		return 0, &repo.NotFoundError{Input: prefix}
	}
	rows, err := s.conn.Query(`
		SELECT rev FROM revisions WHERE node LIKE ? || '%' LIMIT 2
	`, strings.ToLower(prefix))
	if err != nil {
		return 0, fmt.Errorf("querying revisions: %w", err)
	}
	defer rows.Close()

	found := int64(-1)
	for rows.Next() {
		var rev int64
		if err := rows.Scan(&rev); err != nil {
			return 0, fmt.Errorf("scanning row: %w", err)
		}
		if found >= 0 {
			return 0, &repo.AmbiguousPrefixError{Prefix: prefix}
		}
		found = rev
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}
	if found < 0 {
		return 0, &repo.NotFoundError{Input: prefix}
	}
	return found, nil
}


// Load materializes the store as an in-memory repository for query
// evaluation.
func (s *Store) Load() (*repo.Memory, error) {
	m := repo.NewMemory()

	rows, err := s.conn.Query(`
		SELECT rev, p1, p2, meta FROM revisions ORDER BY rev
	`)
	if err != nil {
		return nil, fmt.Errorf("querying revisions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rev, p1, p2 int64
		var blob []byte
		if err := rows.Scan(&rev, &p1, &p2, &blob); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		payload, err := s.dec.DecodeAll(blob, nil)
		if err != nil {
			return nil, fmt.Errorf("decompressing metadata of revision %d: %w", rev, err)
		}
		var meta repo.Meta
		if err := yaml.Unmarshal(payload, &meta); err != nil {
			return nil, fmt.Errorf("unmarshaling metadata of revision %d: %w", rev, err)
		}
		got, err := m.AddRevision(meta, p1, p2)
		if err != nil {
			return nil, err
		}
		if got != rev {
			return nil, fmt.Errorf("revision numbering gap at %d", rev)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := s.loadNames(m); err != nil {
		return nil, err
	}
	if err := s.loadMarkers(m); err != nil {
		return nil, err
	}

	var working string
	err = s.conn.QueryRow(`SELECT value FROM state WHERE key = 'working'`).Scan(&working)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("querying state: %w", err)
	}
	if working != "" {
		revs, err := parseRevs(working)
		if err != nil {
			return nil, fmt.Errorf("parsing working parents: %w", err)
		}
		m.SetWorkingParents(revs...)
	}

	return m, nil
}

func (s *Store) loadNames(m *repo.Memory) error {
	rows, err := s.conn.Query(`SELECT ns, name, rev FROM names`)
	if err != nil {
		return fmt.Errorf("querying names: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ns, name string
		var rev int64
		if err := rows.Scan(&ns, &name, &rev); err != nil {
			return fmt.Errorf("scanning row: %w", err)
		}
		switch ns {
		case nsTag:
			m.SetTag(name, rev)
		case nsBookmark:
			m.SetBookmark(name, rev)
		}
	}
	return rows.Err()
}

func (s *Store) loadMarkers(m *repo.Memory) error {
	rows, err := s.conn.Query(`SELECT pred, succ FROM markers`)
	if err != nil {
		return fmt.Errorf("querying markers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var pred, succ int64
		if err := rows.Scan(&pred, &succ); err != nil {
			return fmt.Errorf("scanning row: %w", err)
		}
		m.SetSuccessor(pred, succ)
	}
	return rows.Err()
}

// Branches returns the branch names present in the store, without loading
// revision metadata.
func (s *Store) Branches() ([]string, error) {
	rows, err := s.conn.Query(`SELECT DISTINCT branch FROM revisions ORDER BY branch`)
	if err != nil {
		return nil, fmt.Errorf("querying branches: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func formatRevs(revs []int64) string {
	parts := make([]string, len(revs))
	for i, rev := range revs {
		parts[i] = strconv.FormatInt(rev, 10)
	}
	return strings.Join(parts, ",")
}

func parseRevs(s string) ([]int64, error) {
	var revs []int64
	for _, part := range strings.Split(s, ",") {
		rev, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, err
		}
		revs = append(revs, rev)
	}
	return revs, nil
}
