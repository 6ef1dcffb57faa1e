package intent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileStore keeps the slot as a single JSON document on disk. Writes go through
// a temp file and rename so a concurrent reader never sees a partial record.
type FileStore struct {
	path string
	mu   sync.Mutex
}

type fileSlot struct {
	Key    string  `json:"key"`
	Record *Record `json:"record"`
}

// DefaultFileStorePath is where NewFileStore keeps the slot when no path is given.
func DefaultFileStorePath() (string, error) {
	return defaultPath("pending-intent.json")
}

func defaultPath(name string) (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("intent: failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".issuebridge", name), nil
}

// NewFileStore creates a file-backed slot. If path is empty, defaults to
// ~/.issuebridge/pending-intent.json
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		var err error
		if path, err = DefaultFileStorePath(); err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("intent: init directory: %w", err)
	}
	return &FileStore{path: path}, nil
}

// Path returns the file path of the slot.
func (s *FileStore) Path() string {
	return s.path
}

// Put writes rec atomically, replacing any previous record.
func (s *FileStore) Put(_ context.Context, rec *Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	b, err := json.MarshalIndent(fileSlot{Key: SlotKey, Record: rec}, "", "  ")
	if err != nil {
		return fmt.Errorf("intent: encode record: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return fmt.Errorf("intent: write temp file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp) // best-effort cleanup
		return fmt.Errorf("intent: atomic rename %s: %w", s.path, err)
	}
	return nil
}

// Get reads the current record. A missing or empty file means an empty slot.
func (s *FileStore) Get(_ context.Context) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

func (s *FileStore) read() (*Record, error) {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("intent: read %s: %w", s.path, err)
	}
	if len(b) == 0 {
		return nil, nil
	}

	var slot fileSlot
	if err := json.Unmarshal(b, &slot); err != nil {
		return nil, fmt.Errorf("intent: decode %s: %w", s.path, err)
	}
	if slot.Key != "" && slot.Key != SlotKey {
		return nil, fmt.Errorf("intent: unexpected slot key %q in %s", slot.Key, s.path)
	}
	return slot.Record, nil
}

// Clear removes the slot file.
func (s *FileStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("intent: remove %s: %w", s.path, err)
	}
	return nil
}

// ClearIf removes the slot file if it holds the record with id. A writer in
// another process that renames a new file in between the read and the remove
// is not detected.
func (s *FileStore) ClearIf(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.read()
	if err != nil {
		return false, err
	}
	if rec == nil || rec.ID != id {
		return false, nil
	}
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("intent: remove %s: %w", s.path, err)
	}
	return true, nil
}
