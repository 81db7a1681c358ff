// Package memory implements the layered memory subsystem: a short-term
// session buffer, long-term preference and pattern storage, and a TTL
// cache, all persisted as JSON files under the memory directory. Memory is
// best-effort by contract: every I/O failure is logged and surfaced as an
// empty context, never as a turn-aborting error.
package memory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// File names under the memory directory.
const (
	shortTermFile    = "short_term.json"
	longTermFile     = "long_term.json"
	preferencesFile  = "user_preferences.json"
	historyFile      = "conversation_history.json"
	errorLearnFile   = "error_learning.json"
	historyCap       = 50
	errorLearningCap = 50
)

// Store reads and writes the JSON memory files. Writes are atomic
// (write-temp-then-rename); the process is the single writer.
type Store struct {
	dir string
}

// NewStore creates the memory directory if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating memory dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the memory directory path.
func (s *Store) Dir() string { return s.dir }

// load unmarshals one file into out. A missing file leaves out untouched
// and returns no error; memory starts empty.
func (s *Store) load(name string, out any) error {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading %s: %w", name, err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parsing %s: %w", name, err)
	}
	return nil
}

// save marshals v and atomically replaces the file.
func (s *Store) save(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", name, err)
	}
	path := filepath.Join(s.dir, name)
	tmp, err := os.CreateTemp(s.dir, name+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp for %s: %w", name, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("writing %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("closing %s: %w", name, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replacing %s: %w", name, err)
	}
	return nil
}

// PruneOldFiles removes memory files whose modification time is older
// than maxAge. Returns the number of files removed.
func (s *Store) PruneOldFiles(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("reading memory dir: %w", err)
	}
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err == nil {
			removed++
		}
	}
	return removed, nil
}
