package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

//Store ETag and last-seen id bookmarks keyed by request name
type Store struct {
	db *sql.DB
}

//schema steps, the position in the list is the user_version it brings the file to
var schema = []string{
	`CREATE TABLE IF NOT EXISTS github_etags (
		request_name TEXT PRIMARY KEY,
		etag TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS github_ids (
		request_name TEXT PRIMARY KEY,
		id INTEGER NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS cursors (
		name TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);`,
}

//Open the database at path, creating the parent directory and schema
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func migrate(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	for v := version; v < len(schema); v++ {
		tx, err := db.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(schema[v]); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to apply schema version %d: %w", v+1, err)
		}
		// PRAGMA takes no placeholders
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", v+1)); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record schema version %d: %w", v+1, err)
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}

//ETag last ETag stored for the request, empty when unknown
func (s *Store) ETag(ctx context.Context, request string) (string, error) {
	var etag string
	err := s.db.QueryRowContext(ctx, "SELECT etag FROM github_etags WHERE request_name = ?", request).Scan(&etag)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load etag for %s: %w", request, err)
	}
	return etag, nil
}

func (s *Store) SaveETag(ctx context.Context, request, etag string) error {
	if _, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO github_etags (request_name, etag) VALUES (?, ?)", request, etag); err != nil {
		return fmt.Errorf("failed to save etag for %s: %w", request, err)
	}
	return nil
}

//LastID highest id seen for the request, zero when unknown
func (s *Store) LastID(ctx context.Context, request string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, "SELECT id FROM github_ids WHERE request_name = ?", request).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to load id for %s: %w", request, err)
	}
	return id, nil
}

func (s *Store) SaveLastID(ctx context.Context, request string, id int64) error {
	if _, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO github_ids (request_name, id) VALUES (?, ?)", request, id); err != nil {
		return fmt.Errorf("failed to save id for %s: %w", request, err)
	}
	return nil
}

//Cursor value of the periodic cursor persisted across restarts
func (s *Store) Cursor(ctx context.Context, name string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM cursors WHERE name = ?", name).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to load cursor %s: %w", name, err)
	}
	return value, true, nil
}

func (s *Store) SaveCursor(ctx context.Context, name, value string) error {
	if _, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO cursors (name, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)", name, value); err != nil {
		return fmt.Errorf("failed to save cursor %s: %w", name, err)
	}
	return nil
}
