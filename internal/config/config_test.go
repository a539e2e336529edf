package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(testContext *testing.T) {
	cfg, err := Load(NewViper())
	if err != nil {
		testContext.Fatalf("unexpected error: %v", err)
	}
	if cfg.Store.Backend != StoreBackendSQLite || cfg.Store.Key != "banner-config" {
		testContext.Fatalf("unexpected store defaults: %#v", cfg.Store)
	}
	if cfg.Store.Timeout != 5*time.Second || cfg.Assets.Timeout != 30*time.Second {
		testContext.Fatalf("unexpected timeouts: store=%s assets=%s", cfg.Store.Timeout, cfg.Assets.Timeout)
	}
	if cfg.Assets.MaxUploadBytes != 10<<20 {
		testContext.Fatalf("unexpected upload limit: %d", cfg.Assets.MaxUploadBytes)
	}
	if cfg.Location != time.UTC {
		testContext.Fatalf("expected UTC location, got %v", cfg.Location)
	}
	if len(cfg.CORSAllowedOrigins) != 1 || cfg.CORSAllowedOrigins[0] != "*" {
		testContext.Fatalf("unexpected cors origins: %v", cfg.CORSAllowedOrigins)
	}
}

func TestLoadReadsEnvironment(testContext *testing.T) {
	testContext.Setenv("BANNERS_STORE_BACKEND", "redis")
	testContext.Setenv("BANNERS_STORE_REDIS_ADDRESS", "redis:6380")
	testContext.Setenv("BANNERS_DISPLAY_TIMEZONE", "Europe/Berlin")
	testContext.Setenv("BANNERS_CORS_ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")

	cfg, err := Load(NewViper())
	if err != nil {
		testContext.Fatalf("unexpected error: %v", err)
	}
	if cfg.Store.Backend != StoreBackendRedis || cfg.Store.RedisAddress != "redis:6380" {
		testContext.Fatalf("unexpected store config: %#v", cfg.Store)
	}
	if cfg.Location.String() != "Europe/Berlin" {
		testContext.Fatalf("unexpected location: %v", cfg.Location)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://b.example.com" {
		testContext.Fatalf("unexpected cors origins: %v", cfg.CORSAllowedOrigins)
	}
}

func TestLoadValidation(testContext *testing.T) {
	testCases := []struct {
		key      string
		value    any
		contains string
	}{
		{key: "store.backend", value: "etcd", contains: "unknown store.backend"},
		{key: "assets.backend", value: "ftp", contains: "unknown assets.backend"},
		{key: "display.timezone", value: "Mars/Olympus", contains: "display.timezone"},
		{key: "log.format", value: "xml", contains: "log.format"},
		{key: "assets.max_upload_bytes", value: 0, contains: "assets.max_upload_bytes"},
	}
	for _, testCase := range testCases {
		configViper := NewViper()
		configViper.Set(testCase.key, testCase.value)
		_, err := Load(configViper)
		if err == nil || !strings.Contains(err.Error(), testCase.contains) {
			testContext.Fatalf("%s=%v: expected error containing %q, got %v", testCase.key, testCase.value, testCase.contains, err)
		}
	}

	configViper := NewViper()
	configViper.Set("store.backend", StoreBackendPostgres)
	if _, err := Load(configViper); err == nil || !strings.Contains(err.Error(), "store.database.dsn") {
		testContext.Fatalf("expected missing dsn error, got %v", err)
	}

	configViper = NewViper()
	configViper.Set("assets.backend", AssetsBackendS3)
	if _, err := Load(configViper); err == nil || !strings.Contains(err.Error(), "assets.s3.bucket") {
		testContext.Fatalf("expected missing bucket error, got %v", err)
	}
}
