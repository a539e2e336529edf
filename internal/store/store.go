// Package store defines the config document persistence contract shared by every backend.
package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

var (
	// ErrVersionConflict indicates the stored document changed since it was loaded.
	ErrVersionConflict = errors.New("store: document version conflict")
	// ErrMissingKey indicates an empty document key.
	ErrMissingKey = errors.New("store: document key required")
)

// Snapshot is a document read together with the version token required for a conditional write.
type Snapshot struct {
	Data    []byte
	Version string
	Exists  bool
}

// DocumentStore persists whole documents under a fixed key.
// Save succeeds only when the stored version still equals expectedVersion;
// an empty expectedVersion means the key must not exist yet.
type DocumentStore interface {
	Load(ctx context.Context, key string) (Snapshot, error)
	Save(ctx context.Context, key string, data []byte, expectedVersion string) (string, error)
}

// Digest returns the version token for a stored payload.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
