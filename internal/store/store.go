// Package store is the persistence layer: a single SQLite file holding the
// relational memory table, an FTS5 lexical index and a vec0 ANN index, all
// kept in sync by triggers and by this package's write path. It also hosts
// the predicate builder and the write serialiser that every mutation goes
// through.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tincomking/tinmem/internal/logging"

	_ "github.com/mattn/go-sqlite3"
)

var log = logging.GetLogger("store")

// Store is a SQLite-backed Memory store. All exported operations are safe
// for concurrent use: reads take the RLock, writes go through the mutex
// directly or, for the mutating operations re-exported as methods on
// WriteQueue, through the single-goroutine queue.
type Store struct {
	db        *sql.DB
	path      string
	mu        sync.RWMutex
	vecReady  bool
	vecDim    int
	queue     *WriteQueue
}

// Open opens (creating if necessary) the SQLite file at path and ensures
// the relational and FTS5 schema exist. The vec0 ANN index is created
// lazily by EnsureVectorIndex once the embedding dimension is known.
func Open(path string) (*Store, error) {
	log.Info("opening store", "path", path)

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("%w: create store directory: %v", ErrStoreFailure, err)
		}
	}

	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open sqlite: %v", ErrStoreFailure, err)
	}

	db.SetMaxOpenConns(1) // SQLite only supports one writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: ping sqlite: %v", ErrStoreFailure, err)
	}

	s := &Store{db: db, path: path}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	s.queue = newWriteQueue(s)

	log.Info("store ready", "path", path)
	return s, nil
}

func (s *Store) initSchema() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var name string
	err := s.db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name='memories' LIMIT 1`).Scan(&name)
	if err == nil && name != "" {
		log.Debug("schema already present")
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("%w: begin schema tx: %v", ErrStoreFailure, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(CoreSchema); err != nil {
		return fmt.Errorf("%w: create core schema: %v", ErrStoreFailure, err)
	}
	if _, err := tx.Exec(FTS5Schema); err != nil {
		log.Warn("fts5 schema failed, continuing without lexical index", "error", err)
	}
	if _, err := tx.Exec(`INSERT OR REPLACE INTO schema_version (version, applied_at) VALUES (?, CURRENT_TIMESTAMP)`, SchemaVersion); err != nil {
		return fmt.Errorf("%w: record schema version: %v", ErrStoreFailure, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit schema: %v", ErrStoreFailure, err)
	}

	log.Info("schema initialized", "version", SchemaVersion)
	return nil
}

// EnsureVectorIndex creates the vec0 virtual table for the given embedding
// dimension if it does not already exist. It is idempotent and safe to
// call on every startup once the embedding capability reports its
// dimension. Calling it twice with two different dimensions is a
// programmer error and returns ErrInvalidArgument.
func (s *Store) EnsureVectorIndex(dim int) error {
	if dim <= 0 {
		return fmt.Errorf("%w: embedding dimension must be positive, got %d", ErrInvalidArgument, dim)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.vecReady {
		if s.vecDim != dim {
			return fmt.Errorf("%w: vector index already initialized at dimension %d, got %d", ErrInvalidArgument, s.vecDim, dim)
		}
		return nil
	}

	stmt := fmt.Sprintf(vecIndexSchemaFmt, dim)
	if _, err := s.db.Exec(stmt); err != nil {
		return fmt.Errorf("%w: create vector index: %v", ErrStoreFailure, err)
	}
	s.vecReady = true
	s.vecDim = dim
	log.Info("vector index ready", "dimensions", dim)
	return nil
}

// Close stops the write queue and closes the underlying database.
func (s *Store) Close() error {
	if s.queue != nil {
		s.queue.stop()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Queue returns the write serialiser every mutation goes through.
func (s *Store) Queue() *WriteQueue { return s.queue }

func (s *Store) exec(query string, args ...interface{}) (sql.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Exec(query, args...)
}

func (s *Store) query(query string, args ...interface{}) (*sql.Rows, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db.Query(query, args...)
}

func (s *Store) queryRow(query string, args ...interface{}) *sql.Row {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db.QueryRow(query, args...)
}

func (s *Store) beginTx() (*sql.Tx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Begin()
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

// clampImportance enforces the [0,1] range invariant on ingest, per §3's
// "importance: real in [0, 1]. Clamped on ingest" rule, so an out-of-range
// caller value never reaches the column's CHECK constraint.
func clampImportance(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
