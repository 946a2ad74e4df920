// Package stamps persists last-known modification times per (file, target).
// The store is the durable half of incremental building: it survives process
// restarts so the next build can tell changed files from untouched ones
// without recompiling everything.
package stamps

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ritzau/build-state/pkg/fsstate"
)

const schema = `
CREATE TABLE IF NOT EXISTS stamps (
	file   TEXT    NOT NULL,
	target TEXT    NOT NULL,
	stamp  INTEGER NOT NULL,
	PRIMARY KEY (file, target)
);
`

// SQLiteStore keeps stamps in a SQLite database inside the build cache
// directory. Every call is a single autocommitted statement, so each save or
// remove is durable on its own.
type SQLiteStore struct {
	db *sql.DB
}

var _ fsstate.Stamps = (*SQLiteStore)(nil)

// OpenSQLite opens (creating if needed) the stamp database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening stamp database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing stamp schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// GetStamp returns the recorded stamp for file under target.
func (s *SQLiteStore) GetStamp(file string, target fsstate.Target) (int64, bool, error) {
	var stamp int64
	err := s.db.QueryRow(
		`SELECT stamp FROM stamps WHERE file = ? AND target = ?`,
		file, target.Key(),
	).Scan(&stamp)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("reading stamp: %w", err)
	}
	return stamp, true, nil
}

// SaveStamp records stamp for file under target, replacing any previous
// value.
func (s *SQLiteStore) SaveStamp(file string, target fsstate.Target, stamp int64) error {
	_, err := s.db.Exec(
		`INSERT INTO stamps (file, target, stamp) VALUES (?, ?, ?)
		 ON CONFLICT (file, target) DO UPDATE SET stamp = excluded.stamp`,
		file, target.Key(), stamp,
	)
	if err != nil {
		return fmt.Errorf("saving stamp: %w", err)
	}
	return nil
}

// RemoveStamp forgets the stamp for file under target. Removing an absent
// stamp is not an error.
func (s *SQLiteStore) RemoveStamp(file string, target fsstate.Target) error {
	_, err := s.db.Exec(
		`DELETE FROM stamps WHERE file = ? AND target = ?`,
		file, target.Key(),
	)
	if err != nil {
		return fmt.Errorf("removing stamp: %w", err)
	}
	return nil
}

// TargetFiles lists every file a stamp is recorded for under target. The
// initial scan uses it to prune stamps of files deleted between builds.
func (s *SQLiteStore) TargetFiles(target fsstate.Target) ([]string, error) {
	rows, err := s.db.Query(`SELECT file FROM stamps WHERE target = ?`, target.Key())
	if err != nil {
		return nil, fmt.Errorf("listing stamps: %w", err)
	}
	defer rows.Close()

	var files []string
	for rows.Next() {
		var file string
		if err := rows.Scan(&file); err != nil {
			return nil, fmt.Errorf("scanning stamp row: %w", err)
		}
		files = append(files, file)
	}
	return files, rows.Err()
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
