package cache

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS results (
    namespace  TEXT NOT NULL,
    key        TEXT NOT NULL,
    value      BLOB NOT NULL,
    last_used  INTEGER NOT NULL,
    created_at TEXT NOT NULL DEFAULT (datetime('now')),
    PRIMARY KEY (namespace, key)
);

CREATE INDEX IF NOT EXISTS idx_results_lru ON results(namespace, last_used);
`

// SQLite is a persistent Cache backend sharing one database file across
// stage-scoped namespaces. It keeps the same capacity-driven LRU contract as
// the in-memory cache using a last_used column.
type SQLite struct {
	db        *sql.DB
	namespace string
	capacity  int

	mu    sync.Mutex
	stats Stats
}

// OpenSQLite opens (or creates) the cache database file.
func OpenSQLite(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("cache: ensure dir: %w", err)
	}
	db, err := sql.Open("sqlite3", "file:"+path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)")
	if err != nil {
		return nil, fmt.Errorf("cache: open db: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("cache: migrate db: %w", err)
	}
	return db, nil
}

// NewSQLite builds a namespaced cache over an opened database. Capacity
// values <= 0 fall back to DefaultCapacity.
func NewSQLite(db *sql.DB, namespace string, capacity int) (*SQLite, error) {
	if db == nil {
		return nil, fmt.Errorf("cache: db is required")
	}
	if namespace == "" {
		return nil, fmt.Errorf("cache: namespace is required")
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &SQLite{db: db, namespace: namespace, capacity: capacity}, nil
}

// Get returns the stored bytes and bumps the entry's recency.
func (s *SQLite) Get(key string) ([]byte, bool) {
	var value []byte
	err := s.db.QueryRow(
		`SELECT value FROM results WHERE namespace = ? AND key = ?`,
		s.namespace, key,
	).Scan(&value)
	if err != nil {
		s.count(func(st *Stats) { st.Misses++ })
		return nil, false
	}
	s.db.Exec(
		`UPDATE results SET last_used = ? WHERE namespace = ? AND key = ?`,
		time.Now().UnixNano(), s.namespace, key,
	)
	s.count(func(st *Stats) { st.Hits++ })
	return value, true
}

// Put upserts the value and trims the namespace down to capacity, deleting
// the least recently used rows first.
func (s *SQLite) Put(key string, value []byte) error {
	if key == "" {
		return fmt.Errorf("cache: key is required")
	}
	_, err := s.db.Exec(
		`INSERT INTO results (namespace, key, value, last_used) VALUES (?, ?, ?, ?)
		 ON CONFLICT(namespace, key) DO UPDATE SET value = excluded.value, last_used = excluded.last_used`,
		s.namespace, key, value, time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("cache: put %s: %w", key, err)
	}
	res, err := s.db.Exec(
		`DELETE FROM results WHERE namespace = ? AND key IN (
		    SELECT key FROM results WHERE namespace = ?
		    ORDER BY last_used DESC LIMIT -1 OFFSET ?)`,
		s.namespace, s.namespace, s.capacity,
	)
	if err != nil {
		return fmt.Errorf("cache: evict: %w", err)
	}
	if evicted, err := res.RowsAffected(); err == nil && evicted > 0 {
		s.count(func(st *Stats) { st.Evictions += evicted })
	}
	return nil
}

// Stats returns a snapshot of the counters plus the current row count.
func (s *SQLite) Stats() Stats {
	s.mu.Lock()
	stats := s.stats
	s.mu.Unlock()
	var size int
	if err := s.db.QueryRow(
		`SELECT COUNT(*) FROM results WHERE namespace = ?`, s.namespace,
	).Scan(&size); err == nil {
		stats.Size = size
	}
	return stats
}

func (s *SQLite) count(update func(*Stats)) {
	s.mu.Lock()
	update(&s.stats)
	s.mu.Unlock()
}
