package assets

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/MarcoPoloResearchLab/banners/backend/internal/banners"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBucket is a path-style S3 endpoint that keeps objects in memory.
type fakeBucket struct {
	mu      sync.Mutex
	objects map[string][]byte
	fail    bool
}

func (b *fakeBucket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail {
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>AccessDenied</Code><Message>denied</Message></Error>`)
		return
	}
	switch r.Method {
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		b.objects[r.URL.Path] = body
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	case http.MethodHead:
		if _, ok := b.objects[r.URL.Path]; !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	case http.MethodDelete:
		delete(b.objects, r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestS3(t *testing.T) (*S3, *fakeBucket, string) {
	t.Helper()
	bucket := &fakeBucket{objects: make(map[string][]byte)}
	server := httptest.NewServer(bucket)
	t.Cleanup(server.Close)

	host, err := NewS3(context.Background(), S3Options{
		Bucket:    "banners-bucket",
		Region:    "us-east-1",
		Endpoint:  server.URL,
		AccessKey: "test-access",
		SecretKey: "test-secret",
		Prefix:    "banners/",
	})
	require.NoError(t, err)
	return host, bucket, server.URL
}

func TestS3UploadAndDelete(t *testing.T) {
	host, bucket, endpoint := newTestS3(t)
	ctx := context.Background()

	asset, err := host.Upload(ctx, banners.Upload{Data: []byte("png-bytes"), FileName: "a.png", ContentType: "image/png"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(asset.ID, "banners/"), asset.ID)
	assert.Equal(t, endpoint+"/banners-bucket/"+asset.ID, asset.URL)

	bucket.mu.Lock()
	body, ok := bucket.objects["/banners-bucket/"+asset.ID]
	bucket.mu.Unlock()
	require.True(t, ok, "object not stored")
	assert.Contains(t, string(body), "png-bytes")

	require.NoError(t, host.Delete(ctx, asset.ID))
	err = host.Delete(ctx, asset.ID)
	assert.True(t, errors.Is(err, banners.ErrAssetNotFound), "got %v", err)
}

func TestS3UploadFailure(t *testing.T) {
	host, bucket, _ := newTestS3(t)
	bucket.fail = true

	_, err := host.Upload(context.Background(), banners.Upload{Data: []byte("png"), FileName: "a.png"})
	assert.Error(t, err)
	assert.False(t, errors.Is(err, banners.ErrAssetNotFound))
}

func TestNewS3RequiresBucket(t *testing.T) {
	_, err := NewS3(context.Background(), S3Options{})
	assert.Error(t, err)
}

func TestPublicBaseURL(t *testing.T) {
	assert.Equal(t, "https://cdn.example.com", publicBaseURL(S3Options{PublicBaseURL: "https://cdn.example.com/"}, "eu-west-1"))
	assert.Equal(t, "http://minio:9000/b", publicBaseURL(S3Options{Bucket: "b", Endpoint: "http://minio:9000/"}, "eu-west-1"))
	assert.Equal(t, "https://b.s3.eu-west-1.amazonaws.com", publicBaseURL(S3Options{Bucket: "b"}, "eu-west-1"))
}
