// Package memory implements the append-only precedent store backing
// every deliberation role. Each role group writes to its own logical
// collection inside one SQLite database; retrieval blends semantic
// similarity with keyword relevance under a configurable alpha.
package memory

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"tradenerd/internal/embedding"
	"tradenerd/internal/logging"
	"tradenerd/internal/types"
)

// Record is one stored precedent: a market situation paired with the
// lesson drawn from how the deliberation on it turned out.
type Record struct {
	ID         int64
	Collection string
	Situation  string
	Lesson     string
	Embedding  []float32
	CreatedAt  time.Time
}

// Store persists precedents across sessions. Writes are append-only;
// records are never mutated or deleted by the engine.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
	engine embedding.Engine // nil means keyword-only operation
}

// NewStore initializes the SQLite database at the given path. A nil
// engine is allowed; the store then runs keyword-only from the start.
func NewStore(path string, engine embedding.Engine) (*Store, error) {
	timer := logging.StartTimer(logging.CategoryMemory, "NewStore")
	defer timer.Stop()

	logging.Memory("Initializing precedent store at path: %s", path)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.MemoryDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.MemoryDebug("Failed to set sqlite journal_mode=WAL: %v", err)
	}

	s := &Store{db: db, dbPath: path, engine: engine}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	if engine != nil {
		logging.Memory("Precedent store ready with embedding engine %s", engine.Name())
	} else {
		logging.Get(logging.CategoryMemory).Warn("Precedent store running without embedding engine; keyword-only retrieval")
	}
	return s, nil
}

// initialize creates the required tables.
func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS precedents (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		collection TEXT NOT NULL,
		situation TEXT NOT NULL,
		lesson TEXT NOT NULL,
		embedding BLOB,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_precedents_collection ON precedents(collection);
	CREATE INDEX IF NOT EXISTS idx_precedents_created ON precedents(collection, created_at);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// Write appends one precedent to a collection. Embedding failure does
// not fail the write: the record is stored without a vector and will
// participate in keyword scoring only.
func (s *Store) Write(ctx context.Context, collection, situation, lesson string) (int64, error) {
	if !validCollection(collection) {
		return 0, fmt.Errorf("unknown collection %q", collection)
	}
	if situation == "" || lesson == "" {
		return 0, fmt.Errorf("situation and lesson must be non-empty")
	}

	var blob []byte
	if s.engine != nil {
		vec, err := s.engine.Embed(ctx, situation)
		if err != nil {
			logging.Get(logging.CategoryMemory).Warn("Embedding failed on write, storing without vector: %v", err)
		} else {
			blob = encodeVector(vec)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO precedents (collection, situation, lesson, embedding) VALUES (?, ?, ?, ?)`,
		collection, situation, lesson, blob)
	if err != nil {
		return 0, fmt.Errorf("failed to write precedent: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read insert id: %w", err)
	}

	logging.MemoryDebug("Wrote precedent id=%d collection=%s embedded=%v", id, collection, blob != nil)
	return id, nil
}

// Count returns the number of precedents in a collection.
func (s *Store) Count(ctx context.Context, collection string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM precedents WHERE collection = ?`, collection).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count precedents: %w", err)
	}
	return n, nil
}

// loadCollection reads all records of one collection, newest first.
func (s *Store) loadCollection(ctx context.Context, collection string) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, collection, situation, lesson, embedding, created_at
		 FROM precedents WHERE collection = ?
		 ORDER BY created_at DESC, id DESC`, collection)
	if err != nil {
		return nil, fmt.Errorf("failed to load collection %s: %w", collection, err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		var blob []byte
		if err := rows.Scan(&r.ID, &r.Collection, &r.Situation, &r.Lesson, &blob, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan precedent: %w", err)
		}
		if len(blob) > 0 {
			r.Embedding = decodeVector(blob)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Close closes the underlying database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func validCollection(name string) bool {
	for _, c := range types.Collections() {
		if c == name {
			return true
		}
	}
	return false
}

// encodeVector serializes a float32 vector as a little-endian blob.
func encodeVector(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	out := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(f))
	}
	return out
}

// decodeVector deserializes a little-endian blob into a float32 vector.
func decodeVector(b []byte) []float32 {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil
	}
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}
