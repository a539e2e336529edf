package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/banners/backend/internal/assets"
	"github.com/MarcoPoloResearchLab/banners/backend/internal/banners"
	"github.com/MarcoPoloResearchLab/banners/backend/internal/metrics"
	"github.com/MarcoPoloResearchLab/banners/backend/internal/server"
	"github.com/MarcoPoloResearchLab/banners/backend/internal/store"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	jsonContentType = "application/json"
	uploadsPrefix   = "/uploads"
)

var bannerImage = []byte("GIF89a\x01\x00\x01\x00\x80\x00\x00\xff\xff\xff\x00\x00\x00!\xf9\x04\x01\x00\x00\x00\x00,\x00\x00\x00\x00\x01\x00\x01\x00\x00\x02\x02D\x01\x00;")

type listingResponse struct {
	Config  map[string]json.RawMessage `json:"config"`
	Banners []struct {
		FileName string `json:"fileName"`
		IsActive bool   `json:"isActive"`
		Day      string `json:"day"`
		Priority int    `json:"priority"`
		AssetRef string `json:"assetRef"`
	} `json:"banners"`
}

type selectionResponse struct {
	Banners []string `json:"banners"`
	Debug   struct {
		Today        string `json:"today"`
		TotalEntries int    `json:"total_entries"`
	} `json:"debug"`
}

func TestBannerLifecycleFlow(testContext *testing.T) {
	gin.SetMode(gin.TestMode)

	uploadsDir := testContext.TempDir()
	assetHost, err := assets.NewLocal(assets.LocalOptions{Dir: uploadsDir, URLPrefix: uploadsPrefix})
	if err != nil {
		testContext.Fatalf("failed to build asset host: %v", err)
	}
	// 2024-01-03 is a Wednesday.
	clock := func() time.Time { return time.Date(2024, time.January, 3, 9, 0, 0, 0, time.UTC) }
	bannersService, err := banners.NewService(banners.ServiceConfig{
		Store:  store.NewMemory(),
		Assets: assetHost,
		Clock:  clock,
		Logger: zap.NewNop(),
	})
	if err != nil {
		testContext.Fatalf("failed to build banners service: %v", err)
	}

	registry := metrics.New()
	handler, err := server.NewHTTPHandler(server.Dependencies{
		BannersService: bannersService,
		Metrics:        registry,
		Logger:         zap.NewNop(),
		UploadsDir:     uploadsDir,
		UploadsPrefix:  uploadsPrefix,
	})
	if err != nil {
		testContext.Fatalf("failed to build handler: %v", err)
	}

	testServer := httptest.NewServer(handler)
	defer testServer.Close()

	healthResp := mustDo(testContext, http.MethodGet, testServer.URL+"/healthz", "", nil)
	_ = healthResp.Body.Close()
	if healthResp.StatusCode != http.StatusOK {
		testContext.Fatalf("unexpected health status: %d", healthResp.StatusCode)
	}

	var initial listingResponse
	decodeResponse(testContext, mustDo(testContext, http.MethodGet, testServer.URL+"/api/config/banners/list", "", nil), &initial)
	if len(initial.Config) != 0 || len(initial.Banners) != 0 {
		testContext.Fatalf("expected empty configuration, got %#v", initial)
	}

	uploadedURL, publicID := uploadBanner(testContext, testServer.URL, "spring.gif")
	secondURL, _ := uploadBanner(testContext, testServer.URL, "summer.gif")
	if !strings.HasPrefix(uploadedURL, uploadsPrefix+"/") {
		testContext.Fatalf("expected local upload url, got %q", uploadedURL)
	}

	assetResp := mustDo(testContext, http.MethodGet, testServer.URL+uploadedURL, "", nil)
	servedBytes, _ := io.ReadAll(assetResp.Body)
	_ = assetResp.Body.Close()
	if assetResp.StatusCode != http.StatusOK || !bytes.Equal(servedBytes, bannerImage) {
		testContext.Fatalf("expected uploaded asset to be served, got %d", assetResp.StatusCode)
	}

	var selection selectionResponse
	decodeResponse(testContext, mustDo(testContext, http.MethodGet, testServer.URL+"/api/banners", "", nil), &selection)
	if len(selection.Banners) != 2 || selection.Debug.Today != "wednesday" {
		testContext.Fatalf("expected both fresh uploads to display, got %#v", selection)
	}

	updateBody := `{"file":"` + secondURL + `","active":true,"day":"wednesday","priority":1}`
	updateResp := mustDo(testContext, http.MethodPut, testServer.URL+"/api/config/banners", updateBody, map[string]string{"Content-Type": jsonContentType})
	if updateResp.StatusCode != http.StatusOK {
		testContext.Fatalf("unexpected update status: %d", updateResp.StatusCode)
	}
	_ = updateResp.Body.Close()

	decodeResponse(testContext, mustDo(testContext, http.MethodGet, testServer.URL+"/api/banners", "", nil), &selection)
	if strings.Join(selection.Banners, ",") != secondURL+","+uploadedURL {
		testContext.Fatalf("expected priority order, got %v", selection.Banners)
	}

	hideBody := `{"file":"` + uploadedURL + `","active":false}`
	hideResp := mustDo(testContext, http.MethodPut, testServer.URL+"/api/config/banners", hideBody, map[string]string{"Content-Type": jsonContentType})
	_ = hideResp.Body.Close()

	var listing listingResponse
	decodeResponse(testContext, mustDo(testContext, http.MethodGet, testServer.URL+"/api/config/banners/list", "", nil), &listing)
	if len(listing.Banners) != 2 || listing.Banners[0].FileName != secondURL || listing.Banners[1].IsActive {
		testContext.Fatalf("unexpected listing: %#v", listing.Banners)
	}
	if listing.Banners[1].AssetRef != publicID {
		testContext.Fatalf("expected asset ref %q, got %q", publicID, listing.Banners[1].AssetRef)
	}

	deleteResp := mustDo(testContext, http.MethodDelete, testServer.URL+"/api/banners?url="+uploadedURL, "", nil)
	var deleted struct {
		Removed       bool `json:"removed"`
		AssetReleased bool `json:"asset_released"`
	}
	decodeResponse(testContext, deleteResp, &deleted)
	if !deleted.Removed || !deleted.AssetReleased {
		testContext.Fatalf("expected banner and asset removal, got %#v", deleted)
	}

	goneResp := mustDo(testContext, http.MethodGet, testServer.URL+uploadedURL, "", nil)
	_ = goneResp.Body.Close()
	if goneResp.StatusCode != http.StatusNotFound {
		testContext.Fatalf("expected released asset to be gone, got %d", goneResp.StatusCode)
	}

	repeatResp := mustDo(testContext, http.MethodDelete, testServer.URL+"/api/banners", `{"url":"`+uploadedURL+`"}`, map[string]string{"Content-Type": jsonContentType})
	decodeResponse(testContext, repeatResp, &deleted)
	if deleted.Removed {
		testContext.Fatalf("expected repeated delete to report nothing removed")
	}

	metricsResp := mustDo(testContext, http.MethodGet, testServer.URL+"/metrics", "", nil)
	metricsBody, _ := io.ReadAll(metricsResp.Body)
	_ = metricsResp.Body.Close()
	if !strings.Contains(string(metricsBody), "banners_admin_operations_total") {
		testContext.Fatalf("expected admin operation metrics to be exported")
	}
}

func TestHealthReportsUnavailableStore(testContext *testing.T) {
	gin.SetMode(gin.TestMode)

	handler, err := server.NewHTTPHandler(server.Dependencies{BannersService: &banners.Service{}})
	if err != nil {
		testContext.Fatalf("failed to build handler: %v", err)
	}

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody))

	if recorder.Code != http.StatusServiceUnavailable {
		testContext.Fatalf("expected service unavailable, got %d", recorder.Code)
	}
}

func uploadBanner(testContext *testing.T, baseURL, fileName string) (string, string) {
	testContext.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("bannerFile", fileName)
	if err != nil {
		testContext.Fatalf("failed to create form file: %v", err)
	}
	if _, err := part.Write(bannerImage); err != nil {
		testContext.Fatalf("failed to write form file: %v", err)
	}
	if err := writer.Close(); err != nil {
		testContext.Fatalf("failed to close multipart writer: %v", err)
	}

	response := mustDo(testContext, http.MethodPost, baseURL+"/api/banners/upload", body.String(), map[string]string{"Content-Type": writer.FormDataContentType()})
	if response.StatusCode != http.StatusCreated {
		testContext.Fatalf("unexpected upload status: %d", response.StatusCode)
	}
	var payload struct {
		Success  bool   `json:"success"`
		URL      string `json:"url"`
		PublicID string `json:"publicId"`
	}
	decodeResponse(testContext, response, &payload)
	if !payload.Success || payload.URL == "" || payload.PublicID == "" {
		testContext.Fatalf("unexpected upload payload: %#v", payload)
	}
	return payload.URL, payload.PublicID
}

func mustDo(testContext *testing.T, method, target, body string, headers map[string]string) *http.Response {
	testContext.Helper()
	request, err := http.NewRequestWithContext(context.Background(), method, target, strings.NewReader(body))
	if err != nil {
		testContext.Fatalf("failed to build request: %v", err)
	}
	for name, value := range headers {
		request.Header.Set(name, value)
	}
	response, err := http.DefaultClient.Do(request)
	if err != nil {
		testContext.Fatalf("%s %s failed: %v", method, target, err)
	}
	return response
}

func decodeResponse(testContext *testing.T, response *http.Response, target any) {
	testContext.Helper()
	defer response.Body.Close()
	if err := json.NewDecoder(response.Body).Decode(target); err != nil {
		testContext.Fatalf("failed to decode response: %v", err)
	}
}
