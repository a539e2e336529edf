package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryCountsRequests(t *testing.T) {
	registry := New()
	registry.ObserveRequest(http.MethodGet, "/api/banners", http.StatusOK, 10*time.Millisecond)
	registry.ObserveRequest(http.MethodGet, "/api/banners", http.StatusOK, 20*time.Millisecond)
	registry.ObserveRequest(http.MethodGet, "", http.StatusNotFound, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(registry.httpRequests.WithLabelValues("GET", "/api/banners", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(registry.httpRequests.WithLabelValues("GET", "unmatched", "404")))
}

func TestRegistryCountsSelectionFallbacks(t *testing.T) {
	registry := New()
	registry.ObserveSelection(3, false)
	registry.ObserveSelection(0, true)

	assert.Equal(t, 1.0, testutil.ToFloat64(registry.selectionFallbacks))
}

func TestHandlerExposesCollectors(t *testing.T) {
	registry := New()
	registry.ObserveOperation("update", "ok")

	recorder := httptest.NewRecorder()
	registry.Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, recorder.Code)
	body := recorder.Body.String()
	assert.True(t, strings.Contains(body, `banners_admin_operations_total{operation="update",outcome="ok"} 1`), body)
	assert.True(t, strings.Contains(body, "go_goroutines"), "expected runtime collectors")
}

func TestNilRegistryIsSafe(t *testing.T) {
	var registry *Registry
	registry.ObserveRequest(http.MethodGet, "/", http.StatusOK, time.Millisecond)
	registry.ObserveSelection(1, true)
	registry.ObserveOperation("delete", "ok")
}
