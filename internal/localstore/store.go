package localstore

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"storefront-cart/internal/domain"
)

// Store is a namespaced key/value store persisted as a single JSON file.
// It is the durable client-local storage the guest cart and session state
// live in: first-ever reads find nothing, and a corrupt file is treated as
// empty rather than surfaced to the caller.
type Store struct {
	path   string
	logger *zap.SugaredLogger

	mu      sync.RWMutex
	entries map[string]json.RawMessage
}

func New(path string, logger *zap.SugaredLogger) *Store {
	s := &Store{
		path:   path,
		logger: logger,
	}
	s.entries = s.load()
	return s
}

// Path returns the backing file location.
func (s *Store) Path() string {
	return s.path
}

// Get unmarshals the entry under key into out. A missing key returns
// domain.ErrNotFound; a malformed entry is treated as missing.
func (s *Store) Get(key string, out interface{}) error {
	s.mu.RLock()
	raw, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return domain.ErrNotFound
	}
	if err := json.Unmarshal(raw, out); err != nil {
		s.logger.Warnw("discarding malformed storage entry", "key", key, "error", err)
		return domain.ErrNotFound
	}
	return nil
}

// Set marshals value and persists it under key.
func (s *Store) Set(key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = raw
	return s.flush()
}

// Delete removes the entry under key. Deleting an absent key is a no-op.
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[key]; !ok {
		return nil
	}
	delete(s.entries, key)
	return s.flush()
}

// Reload re-reads the backing file, picking up writes made by another
// process sharing the same storage.
func (s *Store) Reload() {
	entries := s.load()
	s.mu.Lock()
	s.entries = entries
	s.mu.Unlock()
}

func (s *Store) load() map[string]json.RawMessage {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warnw("read local storage failed, starting empty", "path", s.path, "error", err)
		}
		return map[string]json.RawMessage{}
	}
	var entries map[string]json.RawMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		s.logger.Warnw("local storage corrupt, starting empty", "path", s.path, "error", err)
		return map[string]json.RawMessage{}
	}
	if entries == nil {
		entries = map[string]json.RawMessage{}
	}
	return entries
}

// flush writes the whole entry map atomically: temp file in the same
// directory, then rename, so a crash never leaves a half-written file.
// Callers hold s.mu.
func (s *Store) flush() error {
	data, err := json.Marshal(s.entries)
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".storefront-cart-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, s.path)
}
