package jit

import (
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/chazu/bfjit/pkg/bytecode"
)

// ErrNotCached indicates the requested chunk has no cache entry
var ErrNotCached = errors.New("chunk not cached")

// Cache stores compiled chunks in SQLite, keyed by content hash. Chunk
// rows survive across processes, so a program compiled once is reused by
// every later run with the same source and options.
type Cache struct {
	db     *sql.DB
	dbPath string
	mu     sync.Mutex
}

// NewCache opens (or creates) a chunk cache at the given path
func NewCache(dbPath string) (*Cache, error) {
	c := &Cache{dbPath: dbPath}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening cache database: %w", err)
	}
	c.db = db

	// Set busy timeout for concurrent access
	_, err = db.Exec("PRAGMA busy_timeout = 5000")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Create table if needed
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS chunks (
		hash TEXT PRIMARY KEY,
		flags INTEGER NOT NULL,
		data BLOB NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating chunks table: %w", err)
	}

	return c, nil
}

// NewCacheDefault opens the cache at its default location: $BFJIT_CACHE_DB
// if set, otherwise ~/.bfjit/cache.db.
func NewCacheDefault() (*Cache, error) {
	dbPath := os.Getenv("BFJIT_CACHE_DB")
	if dbPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home dir: %w", err)
		}
		dbPath = filepath.Join(home, ".bfjit", "cache.db")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	return NewCache(dbPath)
}

// Path returns the cache database path
func (c *Cache) Path() string {
	return c.dbPath
}

// Close closes the database connection
func (c *Cache) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Put stores a chunk under the given content hash, replacing any
// previous entry.
func (c *Cache) Put(hash [32]byte, chunk *bytecode.Chunk) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := bytecode.MarshalChunk(chunk)
	if err != nil {
		return fmt.Errorf("encoding chunk: %w", err)
	}

	_, err = c.db.Exec(
		"INSERT OR REPLACE INTO chunks (hash, flags, data) VALUES (?, ?, ?)",
		hex.EncodeToString(hash[:]), int64(chunk.Flags), data,
	)
	if err != nil {
		return fmt.Errorf("storing chunk: %w", err)
	}

	return nil
}

// Get retrieves the chunk stored under the given content hash. Returns
// ErrNotCached when there is no entry.
func (c *Cache) Get(hash [32]byte) (*bytecode.Chunk, error) {
	var data []byte
	err := c.db.QueryRow(
		"SELECT data FROM chunks WHERE hash = ?",
		hex.EncodeToString(hash[:]),
	).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotCached
		}
		return nil, fmt.Errorf("querying chunk: %w", err)
	}

	chunk, err := bytecode.UnmarshalChunk(data)
	if err != nil {
		return nil, fmt.Errorf("decoding cached chunk: %w", err)
	}
	return chunk, nil
}

// Delete removes the entry for the given content hash
func (c *Cache) Delete(hash [32]byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.db.Exec("DELETE FROM chunks WHERE hash = ?", hex.EncodeToString(hash[:]))
	if err != nil {
		return fmt.Errorf("deleting chunk: %w", err)
	}
	return nil
}

// Count returns the number of cached chunks
func (c *Cache) Count() (int, error) {
	var n int
	if err := c.db.QueryRow("SELECT COUNT(*) FROM chunks").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting chunks: %w", err)
	}
	return n, nil
}
