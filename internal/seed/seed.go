// Package seed reads and writes banner rule files used to bootstrap or export the registry.
//
// TOML files list banners as an array of tables:
//
//	[[banner]]
//	id = "https://cdn.example.com/banners/summer.png"
//	asset_ref = "banners/summer"
//	day = "friday"
//	priority = 1
//
// JSON files use the stored config document format.
package seed

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/MarcoPoloResearchLab/banners/backend/internal/banners"
)

// ErrUnsupportedFormat indicates a seed file extension other than .toml or .json.
var ErrUnsupportedFormat = errors.New("seed: unsupported file format")

// File is the TOML layout.
type File struct {
	Banners []Banner `toml:"banner"`
}

// Banner is one TOML rule. Omitted fields take the registry defaults.
type Banner struct {
	ID       string `toml:"id"`
	AssetRef string `toml:"asset_ref,omitempty"`
	Day      string `toml:"day,omitempty"`
	Priority *int   `toml:"priority,omitempty"`
	Active   *bool  `toml:"active,omitempty"`
}

// LoadFile reads entries from path, picking the decoder by extension.
func LoadFile(path string) ([]banners.Entry, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		var file File
		if _, err := toml.DecodeFile(path, &file); err != nil {
			return nil, fmt.Errorf("seed: decode %s: %w", path, err)
		}
		return file.Entries(), nil
	case ".json":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("seed: read %s: %w", path, err)
		}
		return DecodeDocument(data)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

// DecodeTOML reads entries from TOML text.
func DecodeTOML(r io.Reader) ([]banners.Entry, error) {
	var file File
	if _, err := toml.NewDecoder(r).Decode(&file); err != nil {
		return nil, fmt.Errorf("seed: decode toml: %w", err)
	}
	return file.Entries(), nil
}

// DecodeDocument reads entries from a stored config document.
func DecodeDocument(data []byte) ([]banners.Entry, error) {
	document, err := banners.ParseDocument(data)
	if err != nil {
		return nil, err
	}
	entries, err := document.Entries()
	if err != nil {
		return nil, fmt.Errorf("seed: %w", err)
	}
	return entries, nil
}

// Entries converts the file into registry entries.
func (f File) Entries() []banners.Entry {
	entries := make([]banners.Entry, 0, len(f.Banners))
	for _, banner := range f.Banners {
		entry := banners.NewEntry(banner.ID, banner.AssetRef)
		if banner.Day != "" {
			entry.Day = banners.Day(banner.Day)
		}
		if banner.Priority != nil {
			entry.Priority = *banner.Priority
		}
		if banner.Active != nil {
			entry.Active = *banner.Active
		}
		entries = append(entries, entry)
	}
	return entries
}

// WriteTOML encodes entries in the TOML layout.
func WriteTOML(w io.Writer, entries []banners.Entry) error {
	file := File{Banners: make([]Banner, 0, len(entries))}
	for _, entry := range entries {
		priority := entry.Priority
		active := entry.Active
		file.Banners = append(file.Banners, Banner{
			ID:       entry.ID,
			AssetRef: entry.AssetRef,
			Day:      entry.Day.String(),
			Priority: &priority,
			Active:   &active,
		})
	}
	return toml.NewEncoder(w).Encode(file)
}
