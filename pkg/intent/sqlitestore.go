package intent

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps the slot as one row of a key/value table. Several processes
// may open the same database; WAL mode and a busy timeout keep the producer's
// write and the consumer's poll from failing on lock contention.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// DefaultSQLitePath is where OpenSQLiteStore keeps the database when no path
// is given.
func DefaultSQLitePath() (string, error) {
	return defaultPath("intent.db")
}

// OpenSQLiteStore opens (creating if needed) the slot database at path. If path
// is empty, defaults to ~/.issuebridge/intent.db
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		var err error
		if path, err = DefaultSQLitePath(); err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("intent: init directory: %w", err)
	}

	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("intent: open database: %w", err)
	}

	const schema = `
	CREATE TABLE IF NOT EXISTS slots (
	  key        TEXT PRIMARY KEY,
	  record     TEXT NOT NULL,
	  updated_at INTEGER NOT NULL
	);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("intent: create schema: %w", err)
	}

	_ = os.Chmod(path, 0o600)
	return &SQLiteStore{db: db, path: path}, nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Put upserts the slot row.
func (s *SQLiteStore) Put(ctx context.Context, rec *Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("intent: encode record: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO slots (key, record, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET record = excluded.record, updated_at = excluded.updated_at`,
		SlotKey, string(b), rec.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("intent: upsert slot: %w", err)
	}
	return nil
}

// Get returns the slot row's record or nil.
func (s *SQLiteStore) Get(ctx context.Context) (*Record, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT record FROM slots WHERE key = ?`, SlotKey).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("intent: query slot: %w", err)
	}
	var rec Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("intent: decode slot: %w", err)
	}
	return &rec, nil
}

// Clear deletes the slot row.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM slots WHERE key = ?`, SlotKey); err != nil {
		return fmt.Errorf("intent: delete slot: %w", err)
	}
	return nil
}

// ClearIf deletes the slot row only while its record has id.
func (s *SQLiteStore) ClearIf(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM slots WHERE key = ? AND json_extract(record, '$.id') = ?`, SlotKey, id)
	if err != nil {
		return false, fmt.Errorf("intent: delete slot: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("intent: delete slot: %w", err)
	}
	return n > 0, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
