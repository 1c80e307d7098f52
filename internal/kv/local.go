package kv

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LocalStore implements Store on the local filesystem, one file per key.
// This is the development default; writes go through a temp file and rename
// so a crash mid-write never leaves a torn value behind.
type LocalStore struct {
	basePath string
}

// NewLocalStore creates a local filesystem store rooted at basePath
// (created if it doesn't exist).
func NewLocalStore(basePath string) (*LocalStore, error) {
	if basePath == "" {
		basePath = "./data"
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, ErrUnavailable(err, "failed to create kv directory")
	}

	return &LocalStore{basePath: basePath}, nil
}

// Get reads the value for key from disk.
func (s *LocalStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrKeyNotFound(key)
		}
		return nil, ErrUnavailable(err, fmt.Sprintf("failed to read key %s", key))
	}
	return data, nil
}

// Put writes the value for key atomically via temp file + rename.
func (s *LocalStore) Put(ctx context.Context, key string, value []byte) error {
	target := s.path(key)

	tmp, err := os.CreateTemp(s.basePath, ".kv-*")
	if err != nil {
		return ErrUnavailable(err, "failed to create temp file")
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return ErrUnavailable(err, fmt.Sprintf("failed to write key %s", key))
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return ErrUnavailable(err, fmt.Sprintf("failed to write key %s", key))
	}

	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return ErrUnavailable(err, fmt.Sprintf("failed to persist key %s", key))
	}
	return nil
}

// Delete removes the file for key. Absent keys are a no-op.
func (s *LocalStore) Delete(ctx context.Context, key string) error {
	err := os.Remove(s.path(key))
	if err != nil && !os.IsNotExist(err) {
		return ErrUnavailable(err, fmt.Sprintf("failed to delete key %s", key))
	}
	return nil
}

// Close is a no-op for the filesystem medium.
func (s *LocalStore) Close() error {
	return nil
}

// path maps a key to a file path. Namespace separators become directory-safe
// characters so keys like "claimspay:payments" stay one flat file.
func (s *LocalStore) path(key string) string {
	safe := strings.NewReplacer(":", "_", "/", "_", string(os.PathSeparator), "_").Replace(key)
	return filepath.Join(s.basePath, safe+".json")
}
