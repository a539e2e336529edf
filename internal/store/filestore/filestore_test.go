package filestore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/MarcoPoloResearchLab/banners/backend/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	documentStore, err := New(dir)
	require.NoError(t, err)
	ctx := context.Background()

	snapshot, err := documentStore.Load(ctx, "banner-config")
	require.NoError(t, err)
	assert.False(t, snapshot.Exists)

	version, err := documentStore.Save(ctx, "banner-config", []byte(`{"a":true}`), "")
	require.NoError(t, err)

	onDisk, err := os.ReadFile(filepath.Join(dir, "banner-config.json"))
	require.NoError(t, err)
	assert.Equal(t, `{"a":true}`, string(onDisk))

	snapshot, err = documentStore.Load(ctx, "banner-config")
	require.NoError(t, err)
	assert.True(t, snapshot.Exists)
	assert.Equal(t, version, snapshot.Version)

	_, err = documentStore.Save(ctx, "banner-config", []byte(`{}`), "")
	assert.ErrorIs(t, err, store.ErrVersionConflict)

	_, err = documentStore.Save(ctx, "banner-config", []byte(`{}`), version)
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not be left behind")
}

func TestRejectsInvalidKeys(t *testing.T) {
	documentStore, err := New(t.TempDir())
	require.NoError(t, err)

	_, err = documentStore.Load(context.Background(), "")
	assert.ErrorIs(t, err, store.ErrMissingKey)
	_, err = documentStore.Save(context.Background(), "../escape", []byte("{}"), "")
	assert.Error(t, err)
}

func TestNewRequiresDirectory(t *testing.T) {
	_, err := New("  ")
	assert.Error(t, err)
}

func TestCanceledContext(t *testing.T) {
	documentStore, err := New(t.TempDir())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = documentStore.Load(ctx, "banner-config")
	assert.ErrorIs(t, err, context.Canceled)
}
