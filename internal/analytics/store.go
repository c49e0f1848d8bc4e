// Package analytics records privacy-conscious visitor metrics: page views with
// salted, truncated IP hashes and which sections visitors navigate to.
package analytics

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Zachkp/skycode/internal/page"
)

const (
	recentVisitorsLimit = 50
	hashedIPLength      = 16
)

type Store struct {
	db   *sql.DB
	salt string
	now  func() time.Time
}

type Option func(*Store)

// WithSalt fixes the IP hashing salt. By default a random salt is generated,
// so hashes are only comparable within one process lifetime.
func WithSalt(salt string) Option {
	return func(s *Store) { s.salt = salt }
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open creates or opens the sqlite database at path.
func Open(path string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return newStore(db, opts)
}

// OpenMemory creates an in-memory database, used by tests.
func OpenMemory(opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("opening in-memory database: %w", err)
	}
	// every pooled connection would get its own empty in-memory database
	db.SetMaxOpenConns(1)
	return newStore(db, opts)
}

func newStore(db *sql.DB, opts []Option) (*Store, error) {
	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if s.salt == "" {
		salt, err := randomHex(32)
		if err != nil {
			db.Close()
			return nil, err
		}
		s.salt = salt
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS visitors (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	hashed_ip TEXT NOT NULL,
	user_agent TEXT,
	path TEXT,
	visited_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_visitors_visited_at ON visitors(visited_at);

CREATE TABLE IF NOT EXISTS navigations (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	page_id TEXT NOT NULL,
	section TEXT NOT NULL,
	navigated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_navigations_navigated_at ON navigations(navigated_at);
`

func (s *Store) migrate() error {
	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

// HashIP hashes ip with the store salt. The result is stable per IP for the
// lifetime of the salt and truncated for storage.
func (s *Store) HashIP(ip string) string {
	sum := sha256.Sum256([]byte(ip + s.salt))
	return hex.EncodeToString(sum[:])[:hashedIPLength]
}

func (s *Store) RecordVisit(ctx context.Context, ip, userAgent, path string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO visitors (hashed_ip, user_agent, path, visited_at)
		VALUES (?, ?, ?, ?)
	`, s.HashIP(ip), userAgent, path, s.now().Unix())
	if err != nil {
		return fmt.Errorf("recording visit: %w", err)
	}
	return nil
}

func (s *Store) RecordNavigation(ctx context.Context, pageID string, section page.Section) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO navigations (page_id, section, navigated_at)
		VALUES (?, ?, ?)
	`, pageID, string(section), s.now().Unix())
	if err != nil {
		return fmt.Errorf("recording navigation: %w", err)
	}
	return nil
}

// Cleanup deletes visits and navigations older than retention and returns
// the number of rows removed. A zero retention keeps everything.
func (s *Store) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, nil
	}
	cutoff := s.now().Add(-retention).Unix()

	var total int64
	for _, q := range []string{
		`DELETE FROM visitors WHERE visited_at < ?`,
		`DELETE FROM navigations WHERE navigated_at < ?`,
	} {
		res, err := s.db.ExecContext(ctx, q, cutoff)
		if err != nil {
			return total, fmt.Errorf("cleaning up old analytics: %w", err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}
