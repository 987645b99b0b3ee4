// Package store implements the Persistence Store: a SQLite database for
// job/article/file/history/schedule state, migrated with
// golang-migrate, plus a content-addressed blob directory holding the
// original NZB bytes for each job.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

type Store struct {
	db      *sql.DB
	blobDir string
}

// Open creates the database and blob directories if needed, opens the
// SQLite database with WAL journaling and a busy timeout so concurrent
// readers never hit SQLITE_BUSY under normal load, and runs migrations.
func Open(dbPath, blobDir string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	if err := os.MkdirAll(blobDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create blob directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to sqlite: %w", err)
	}

	s := &Store{db: db, blobDir: blobDir}
	if err := s.runMigrations(); err != nil {
		return nil, fmt.Errorf("could not migrate database: %w", err)
	}

	return s, nil
}

func (s *Store) NZBPath(jobID int64) string {
	return filepath.Join(s.blobDir, fmt.Sprintf("%d.nzb", jobID))
}

func (s *Store) SaveNZB(jobID int64, content []byte) error {
	return os.WriteFile(s.NZBPath(jobID), content, 0644)
}

func (s *Store) Close() error {
	return s.db.Close()
}
