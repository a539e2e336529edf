// Package filestore keeps each config document in a JSON file under a directory.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/MarcoPoloResearchLab/banners/backend/internal/store"
)

const fileMode = 0o644

// Store implements store.DocumentStore on the local filesystem.
// Writes go through a temporary file and rename so readers never see a partial document.
type Store struct {
	mu  sync.Mutex
	dir string
}

// New prepares dir and returns a store rooted there.
func New(dir string) (*Store, error) {
	trimmed := strings.TrimSpace(dir)
	if trimmed == "" {
		return nil, errors.New("filestore: directory is required")
	}
	if err := os.MkdirAll(trimmed, 0o755); err != nil {
		return nil, fmt.Errorf("filestore: create %s: %w", trimmed, err)
	}
	return &Store{dir: trimmed}, nil
}

func (s *Store) Load(ctx context.Context, key string) (store.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return store.Snapshot{}, fmt.Errorf("context error: %w", err)
	}
	path, err := s.path(key)
	if err != nil {
		return store.Snapshot{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return readSnapshot(path)
}

func (s *Store) Save(ctx context.Context, key string, data []byte, expectedVersion string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("context error: %w", err)
	}
	path, err := s.path(key)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := readSnapshot(path)
	if err != nil {
		return "", err
	}
	if current.Version != expectedVersion {
		return "", store.ErrVersionConflict
	}

	temp, err := os.CreateTemp(s.dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return "", fmt.Errorf("filestore: create temp: %w", err)
	}
	tempName := temp.Name()
	if _, err := temp.Write(data); err != nil {
		_ = temp.Close()
		_ = os.Remove(tempName)
		return "", fmt.Errorf("filestore: write %s: %w", tempName, err)
	}
	if err := temp.Sync(); err != nil {
		_ = temp.Close()
		_ = os.Remove(tempName)
		return "", fmt.Errorf("filestore: sync %s: %w", tempName, err)
	}
	if err := temp.Close(); err != nil {
		_ = os.Remove(tempName)
		return "", fmt.Errorf("filestore: close %s: %w", tempName, err)
	}
	if err := os.Chmod(tempName, fileMode); err != nil {
		_ = os.Remove(tempName)
		return "", fmt.Errorf("filestore: chmod %s: %w", tempName, err)
	}
	if err := os.Rename(tempName, path); err != nil {
		_ = os.Remove(tempName)
		return "", fmt.Errorf("filestore: rename %s: %w", path, err)
	}
	return store.Digest(data), nil
}

func (s *Store) path(key string) (string, error) {
	if key == "" {
		return "", store.ErrMissingKey
	}
	if strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return "", fmt.Errorf("filestore: invalid key %q", key)
	}
	return filepath.Join(s.dir, key+".json"), nil
}

func readSnapshot(path string) (store.Snapshot, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return store.Snapshot{}, nil
	}
	if err != nil {
		return store.Snapshot{}, fmt.Errorf("filestore: read %s: %w", path, err)
	}
	return store.Snapshot{Data: data, Version: store.Digest(data), Exists: true}, nil
}
