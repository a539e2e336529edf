package store

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryLoadMissingKey(t *testing.T) {
	memory := NewMemory()
	snapshot, err := memory.Load(context.Background(), "banner-config")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snapshot.Exists || snapshot.Version != "" || snapshot.Data != nil {
		t.Fatalf("expected empty snapshot, got %#v", snapshot)
	}
}

func TestMemorySaveRequiresMatchingVersion(t *testing.T) {
	ctx := context.Background()
	memory := NewMemory()

	version, err := memory.Save(ctx, "banner-config", []byte(`{}`), "")
	if err != nil {
		t.Fatalf("initial save failed: %v", err)
	}
	if version != Digest([]byte(`{}`)) {
		t.Fatalf("unexpected version %q", version)
	}

	if _, err := memory.Save(ctx, "banner-config", []byte(`{"a":true}`), ""); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected version conflict for create-only save, got %v", err)
	}
	if _, err := memory.Save(ctx, "banner-config", []byte(`{"a":true}`), "stale"); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected version conflict for stale version, got %v", err)
	}

	next, err := memory.Save(ctx, "banner-config", []byte(`{"a":true}`), version)
	if err != nil {
		t.Fatalf("conditional save failed: %v", err)
	}

	snapshot, err := memory.Load(ctx, "banner-config")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if !snapshot.Exists || snapshot.Version != next || string(snapshot.Data) != `{"a":true}` {
		t.Fatalf("unexpected snapshot %#v", snapshot)
	}
}

func TestMemoryRejectsEmptyKey(t *testing.T) {
	memory := NewMemory()
	if _, err := memory.Load(context.Background(), ""); !errors.Is(err, ErrMissingKey) {
		t.Fatalf("expected missing key error, got %v", err)
	}
	if _, err := memory.Save(context.Background(), "", nil, ""); !errors.Is(err, ErrMissingKey) {
		t.Fatalf("expected missing key error, got %v", err)
	}
}
