package store

import (
	"context"
	"fmt"
	"sync"
)

// Memory keeps documents in process memory. It backs tests and the "memory" backend.
type Memory struct {
	mu   sync.Mutex
	docs map[string][]byte
}

// NewMemory constructs an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{docs: make(map[string][]byte)}
}

func (m *Memory) Load(ctx context.Context, key string) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, fmt.Errorf("context error: %w", err)
	}
	if key == "" {
		return Snapshot{}, ErrMissingKey
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.docs[key]
	if !ok {
		return Snapshot{}, nil
	}
	return Snapshot{
		Data:    append([]byte(nil), data...),
		Version: Digest(data),
		Exists:  true,
	}, nil
}

func (m *Memory) Save(ctx context.Context, key string, data []byte, expectedVersion string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("context error: %w", err)
	}
	if key == "" {
		return "", ErrMissingKey
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.docs[key]
	currentVersion := ""
	if ok {
		currentVersion = Digest(current)
	}
	if currentVersion != expectedVersion {
		return "", ErrVersionConflict
	}
	m.docs[key] = append([]byte(nil), data...)
	return Digest(data), nil
}
