package store

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"

	_ "github.com/asg017/sqlite-vec-go-bindings/ncruces"
	_ "github.com/ncruces/go-sqlite3/driver"
)

// schemaVersion is the store layout this build understands. Open refuses
// stores that declare anything else.
const schemaVersion = "2"

// Store is the SQLite-backed persistence layer. All writes go through a
// single connection; the sqlite-vec extension provides the vector index
// and FTS5 provides full-text search, both colocated in the same file.
type Store struct {
	db     *sql.DB
	dim    int
	logger *slog.Logger
}

// Open opens or creates the store at path with embedding dimension dim.
// The dimension is recorded in the meta table on first open; a later open
// with a different dimension fails with ErrConflict.
func Open(path string, dim int, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dim <= 0 {
		return nil, fmt.Errorf("%w: embedding dimension must be positive, got %d", ErrConflict, dim)
	}

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}

	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(wal)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite supports one writer at a time; funnel everything through a
	// single connection so writes serialize in-process instead of
	// surfacing SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, dim: dim, logger: logger}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Dimension returns the embedding dimension this store was opened with.
func (s *Store) Dimension() int {
	return s.dim
}

// migrate verifies meta compatibility and applies the schema.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`); err != nil {
		return fmt.Errorf("%w: create meta table: %v", ErrStoreUnavailable, err)
	}

	if v, ok, err := s.metaGet("schema_version"); err != nil {
		return err
	} else if ok && v != schemaVersion {
		return fmt.Errorf("%w: store declares schema_version %s, this build understands %s", ErrConflict, v, schemaVersion)
	}

	if v, ok, err := s.metaGet("embedding_dimension"); err != nil {
		return err
	} else if ok {
		declared, convErr := strconv.Atoi(v)
		if convErr != nil || declared != s.dim {
			return fmt.Errorf("%w: store embedding dimension is %s, configured dimension is %d", ErrConflict, v, s.dim)
		}
	}

	schema := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS sessions (
		session_id INTEGER PRIMARY KEY AUTOINCREMENT,
		start_ts INTEGER NOT NULL,
		end_ts INTEGER,
		status TEXT NOT NULL CHECK(status IN ('active', 'archived')) DEFAULT 'active'
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);

	CREATE TABLE IF NOT EXISTS turns (
		turn_id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id INTEGER NOT NULL REFERENCES sessions(session_id),
		ts INTEGER NOT NULL,
		role TEXT NOT NULL CHECK(role IN ('user', 'assistant')),
		text TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_turns_session ON turns(session_id);
	CREATE INDEX IF NOT EXISTS idx_turns_ts ON turns(ts DESC);

	CREATE TABLE IF NOT EXISTS summaries (
		summary_id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id INTEGER NOT NULL REFERENCES sessions(session_id),
		summary TEXT NOT NULL,
		first_ts INTEGER NOT NULL,
		last_ts INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_summaries_session ON summaries(session_id);
	CREATE INDEX IF NOT EXISTS idx_summaries_last_ts ON summaries(last_ts DESC);

	CREATE VIRTUAL TABLE IF NOT EXISTS vec_turns USING vec0(
		turn_id INTEGER PRIMARY KEY,
		embedding float[%d]
	);

	CREATE VIRTUAL TABLE IF NOT EXISTS vec_summaries USING vec0(
		summary_id INTEGER PRIMARY KEY,
		embedding float[%d]
	);

	CREATE VIRTUAL TABLE IF NOT EXISTS fts_turns USING fts5(
		turn_id UNINDEXED,
		text,
		content=turns,
		content_rowid=turn_id
	);

	CREATE VIRTUAL TABLE IF NOT EXISTS fts_summaries USING fts5(
		summary_id UNINDEXED,
		summary,
		content=summaries,
		content_rowid=summary_id
	);

	CREATE TRIGGER IF NOT EXISTS turns_ai AFTER INSERT ON turns BEGIN
		INSERT INTO fts_turns(rowid, turn_id, text)
		VALUES (new.turn_id, new.turn_id, new.text);
	END;

	CREATE TRIGGER IF NOT EXISTS turns_ad AFTER DELETE ON turns BEGIN
		INSERT INTO fts_turns(fts_turns, rowid, turn_id, text)
		VALUES ('delete', old.turn_id, old.turn_id, old.text);
	END;

	CREATE TRIGGER IF NOT EXISTS turns_au AFTER UPDATE ON turns BEGIN
		INSERT INTO fts_turns(fts_turns, rowid, turn_id, text)
		VALUES ('delete', old.turn_id, old.turn_id, old.text);
		INSERT INTO fts_turns(rowid, turn_id, text)
		VALUES (new.turn_id, new.turn_id, new.text);
	END;

	CREATE TRIGGER IF NOT EXISTS summaries_ai AFTER INSERT ON summaries BEGIN
		INSERT INTO fts_summaries(rowid, summary_id, summary)
		VALUES (new.summary_id, new.summary_id, new.summary);
	END;

	CREATE TRIGGER IF NOT EXISTS summaries_ad AFTER DELETE ON summaries BEGIN
		INSERT INTO fts_summaries(fts_summaries, rowid, summary_id, summary)
		VALUES ('delete', old.summary_id, old.summary_id, old.summary);
	END;

	CREATE TRIGGER IF NOT EXISTS summaries_au AFTER UPDATE ON summaries BEGIN
		INSERT INTO fts_summaries(fts_summaries, rowid, summary_id, summary)
		VALUES ('delete', old.summary_id, old.summary_id, old.summary);
		INSERT INTO fts_summaries(rowid, summary_id, summary)
		VALUES (new.summary_id, new.summary_id, new.summary);
	END;

	CREATE TABLE IF NOT EXISTS scheduled_tasks (
		task_id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		trigger_type TEXT NOT NULL CHECK(trigger_type IN ('once', 'interval')),
		trigger_config TEXT NOT NULL,
		message TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		next_run_at INTEGER NOT NULL,
		last_run_at INTEGER,
		status TEXT NOT NULL CHECK(status IN ('active', 'paused', 'completed')) DEFAULT 'active'
	);
	CREATE INDEX IF NOT EXISTS idx_scheduled_tasks_next_run ON scheduled_tasks(next_run_at, status);
	`, s.dim, s.dim)

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("%w: apply schema: %v", ErrStoreUnavailable, err)
	}

	if err := s.metaSet("schema_version", schemaVersion); err != nil {
		return err
	}
	if err := s.metaSet("embedding_dimension", strconv.Itoa(s.dim)); err != nil {
		return err
	}

	return nil
}

func (s *Store) metaGet(key string) (string, bool, error) {
	var v string
	err := s.db.QueryRow(`SELECT value FROM meta WHERE key = ?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%w: read meta %s: %v", ErrStoreUnavailable, key, err)
	}
	return v, true, nil
}

func (s *Store) metaSet(key, value string) error {
	_, err := s.db.Exec(`INSERT OR IGNORE INTO meta (key, value) VALUES (?, ?)`, key, value)
	if err != nil {
		return fmt.Errorf("%w: write meta %s: %v", ErrStoreUnavailable, key, err)
	}
	return nil
}

// serializeEmbedding packs a vector as little-endian float32 bytes, the
// blob format vec0 expects.
func serializeEmbedding(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, f := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// checkDimension validates a vector against the store's dimension (I4).
func (s *Store) checkDimension(vec []float32) error {
	if len(vec) != s.dim {
		return fmt.Errorf("%w: embedding dimension %d does not match store dimension %d", ErrConflict, len(vec), s.dim)
	}
	return nil
}
