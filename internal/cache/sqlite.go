package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/glebarez/sqlite"
)

const schema = `CREATE TABLE IF NOT EXISTS pages (
	key          TEXT PRIMARY KEY,
	status       INTEGER NOT NULL,
	content_type TEXT NOT NULL,
	body         BLOB NOT NULL,
	expires_at   INTEGER NOT NULL DEFAULT 0
)`

// SQLite is a Store persisted in a SQLite database, so rendered pages
// survive restarts.
type SQLite struct {
	db *sql.DB
}

var _ Store = (*SQLite)(nil)

// OpenSQLite opens or creates the database at path. ":memory:" gives a
// private in-memory database.
func OpenSQLite(path string) (*SQLite, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening cache database %q: %w", path, err)
	}
	// One connection keeps an in-memory database shared and serializes
	// writers.
	db.SetMaxOpenConns(1)
	if path != ":memory:" {
		_, _ = db.Exec("PRAGMA journal_mode=WAL")
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating cache schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Get returns the entry stored under key, or nil when it is absent or
// expired.
func (s *SQLite) Get(ctx context.Context, key string) (*Entry, error) {
	var (
		e       Entry
		expires int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT status, content_type, body, expires_at FROM pages WHERE key = ?`, key,
	).Scan(&e.Status, &e.ContentType, &e.Body, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading cached page %q: %w", key, err)
	}
	if expires > 0 {
		e.ExpiresAt = time.UnixMilli(expires)
	}
	if e.Expired(time.Now()) {
		return nil, nil
	}
	return &e, nil
}

// Put stores e under key for ttl. A non-positive ttl keeps it forever.
func (s *SQLite) Put(ctx context.Context, key string, e Entry, ttl time.Duration) error {
	var expires int64
	if at := expiry(ttl); !at.IsZero() {
		expires = at.UnixMilli()
	}
	body := e.Body
	if body == nil {
		body = []byte{}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pages (key, status, content_type, body, expires_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET status = excluded.status, content_type = excluded.content_type,
		 body = excluded.body, expires_at = excluded.expires_at`,
		key, e.Status, e.ContentType, body, expires)
	if err != nil {
		return fmt.Errorf("storing cached page %q: %w", key, err)
	}
	return nil
}

// Delete removes key.
func (s *SQLite) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM pages WHERE key = ?`, key); err != nil {
		return fmt.Errorf("deleting cached page %q: %w", key, err)
	}
	return nil
}

// Purge deletes expired entries and returns how many were removed.
func (s *SQLite) Purge(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM pages WHERE expires_at > 0 AND expires_at <= ?`, time.Now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("purging cache: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}
