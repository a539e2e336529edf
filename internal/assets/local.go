package assets

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/MarcoPoloResearchLab/banners/backend/internal/banners"
)

// LocalOptions configures the filesystem host.
type LocalOptions struct {
	Dir string
	// URLPrefix is the route the API serves Dir under, e.g. "/uploads".
	URLPrefix string
	// PublicBaseURL is prepended to URLPrefix when set, e.g. "https://banners.example.com".
	PublicBaseURL string
}

// Local stores assets in a directory served by the API itself.
type Local struct {
	dir     string
	baseURL string
}

// NewLocal prepares the directory and returns the host.
func NewLocal(options LocalOptions) (*Local, error) {
	dir := strings.TrimSpace(options.Dir)
	if dir == "" {
		return nil, errors.New("assets: local directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("assets: create %s: %w", dir, err)
	}
	prefix := "/" + strings.Trim(options.URLPrefix, "/")
	base := strings.TrimRight(strings.TrimSpace(options.PublicBaseURL), "/") + prefix
	return &Local{dir: dir, baseURL: base}, nil
}

// Dir returns the directory holding the assets.
func (l *Local) Dir() string {
	return l.dir
}

func (l *Local) Upload(ctx context.Context, upload banners.Upload) (banners.Asset, error) {
	if err := ctx.Err(); err != nil {
		return banners.Asset{}, fmt.Errorf("context error: %w", err)
	}
	key, err := newObjectKey("", upload.FileName, upload.ContentType, upload.Data)
	if err != nil {
		return banners.Asset{}, err
	}
	target := filepath.Join(l.dir, filepath.FromSlash(key))
	if err := os.WriteFile(target, upload.Data, 0o644); err != nil {
		return banners.Asset{}, fmt.Errorf("assets: write %s: %w", key, err)
	}
	return banners.Asset{URL: joinURL(l.baseURL, key), ID: key}, nil
}

func (l *Local) Delete(ctx context.Context, assetID string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}
	if !validKey(assetID) {
		return fmt.Errorf("assets: invalid asset id %q", assetID)
	}
	err := os.Remove(filepath.Join(l.dir, filepath.FromSlash(assetID)))
	if errors.Is(err, fs.ErrNotExist) {
		return banners.ErrAssetNotFound
	}
	if err != nil {
		return fmt.Errorf("assets: remove %s: %w", assetID, err)
	}
	return nil
}
