// Package index maintains the searchable file index backed by SQLite.
//
// The index is a convenience layer over scan results: it records every
// enumerated candidate so name searches do not require re-walking the
// tree. It is rebuilt wholesale from a scan; the engine itself never
// depends on it.
package index

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mtakagi/vdup/internal/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS files (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	path TEXT UNIQUE NOT NULL,
	name TEXT NOT NULL,
	directory TEXT NOT NULL,
	size INTEGER NOT NULL,
	modified_time INTEGER NOT NULL,
	extension TEXT NOT NULL,
	content_hash TEXT,
	indexed_time INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_files_name ON files(name);
CREATE INDEX IF NOT EXISTS idx_files_extension ON files(extension);
CREATE INDEX IF NOT EXISTS idx_files_modified ON files(modified_time);
`

// Entry is one indexed file.
type Entry struct {
	Path        string
	Name        string
	Directory   string
	Size        int64
	ModTime     time.Time
	Extension   string
	ContentHash string // hex full hash when known, empty otherwise
}

// Store manages index persistence backed by SQLite.
type Store struct {
	db *sql.DB
}

// Open creates or opens the index database and ensures the schema.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("index path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create index dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply index schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// Replace rebuilds the index from a fresh candidate list inside one
// transaction. hashes maps path to hex full-content hash and may be
// nil; hashes for paths not in candidates are ignored.
func (s *Store) Replace(ctx context.Context, candidates []types.Candidate, hashes map[string]string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin index rebuild: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM files`); err != nil {
		return fmt.Errorf("clear index: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO files (path, name, directory, size, modified_time, extension, content_hash, indexed_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare index insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	now := time.Now().Unix()
	for _, c := range candidates {
		var hash any
		if h, ok := hashes[c.Path]; ok && h != "" {
			hash = h
		}
		if _, err := stmt.ExecContext(ctx,
			c.Path, filepath.Base(c.Path), filepath.Dir(c.Path),
			c.Size, c.ModTime.Unix(), c.Extension, hash, now,
		); err != nil {
			return fmt.Errorf("index %s: %w", c.Path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit index rebuild: %w", err)
	}
	return nil
}

// SearchName returns entries whose file name contains the pattern,
// case-insensitively, ordered by path. limit <= 0 means no limit.
func (s *Store) SearchName(ctx context.Context, pattern string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT path, name, directory, size, modified_time, extension, COALESCE(content_hash, '')
		FROM files
		WHERE name LIKE '%' || ? || '%' COLLATE NOCASE
		ORDER BY path
		LIMIT ?`, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var mtime int64
		if err := rows.Scan(&e.Path, &e.Name, &e.Directory, &e.Size, &mtime, &e.Extension, &e.ContentHash); err != nil {
			return nil, fmt.Errorf("scan index row: %w", err)
		}
		e.ModTime = time.Unix(mtime, 0)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Count returns the number of indexed files.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM files`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count index: %w", err)
	}
	return n, nil
}
