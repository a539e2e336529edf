// Package assets provides the banner image hosts: a local directory served by the API and an S3 bucket.
package assets

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	nanoid "github.com/matoous/go-nanoid/v2"
)

const (
	keyAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	keyLength   = 16
)

// newObjectKey returns prefix/<random><ext>. The extension comes from the file name,
// then the content type, then the sniffed bytes.
func newObjectKey(prefix, fileName, contentType string, data []byte) (string, error) {
	random, err := nanoid.Generate(keyAlphabet, keyLength)
	if err != nil {
		return "", fmt.Errorf("assets: generate key: %w", err)
	}
	name := random + extensionFor(fileName, contentType, data)
	trimmedPrefix := strings.Trim(prefix, "/")
	if trimmedPrefix == "" {
		return name, nil
	}
	return path.Join(trimmedPrefix, name), nil
}

func extensionFor(fileName, contentType string, data []byte) string {
	if ext := strings.ToLower(filepath.Ext(fileName)); isSafeExtension(ext) {
		return ext
	}
	if contentType != "" {
		if known := mimetype.Lookup(contentType); known != nil && known.Extension() != "" {
			return known.Extension()
		}
	}
	if len(data) > 0 {
		return mimetype.Detect(data).Extension()
	}
	return ""
}

func isSafeExtension(ext string) bool {
	if len(ext) < 2 || len(ext) > 8 {
		return false
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

// validKey rejects keys that could escape the asset root.
func validKey(key string) bool {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, `\`) {
		return false
	}
	for _, segment := range strings.Split(key, "/") {
		if segment == "" || segment == "." || segment == ".." {
			return false
		}
	}
	return true
}

func joinURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + key
}
