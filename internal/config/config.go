package config

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/spf13/viper"
)

const (
	envPrefix             = "BANNERS"
	defaultHTTPAddress    = "0.0.0.0:8080"
	defaultLogLevel       = "info"
	defaultLogFormat      = "json"
	defaultTimezone       = "UTC"
	defaultStoreBackend   = StoreBackendSQLite
	defaultStoreKey       = "banner-config"
	defaultStoreTimeout   = 5 * time.Second
	defaultFileDir        = "data"
	defaultRedisAddress   = "localhost:6379"
	defaultDatabasePath   = "banners.db"
	defaultAssetsBackend  = AssetsBackendLocal
	defaultAssetsTimeout  = 30 * time.Second
	defaultMaxUploadBytes = 10 << 20
	defaultLocalDir       = "data/uploads"
	defaultLocalURLPrefix = "/uploads"
	defaultS3Region       = "us-east-1"
	defaultS3Prefix       = "banners"
)

// Store backends.
const (
	StoreBackendMemory   = "memory"
	StoreBackendFile     = "file"
	StoreBackendRedis    = "redis"
	StoreBackendSQLite   = "sqlite"
	StoreBackendPostgres = "postgres"
)

// Asset backends.
const (
	AssetsBackendLocal = "local"
	AssetsBackendS3    = "s3"
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress        string
	LogLevel           string
	LogFormat          string
	Timezone           string
	Location           *time.Location
	CORSAllowedOrigins []string
	Store              StoreConfig
	Assets             AssetsConfig
	NATSURL            string
}

// StoreConfig selects and configures the config document backend.
type StoreConfig struct {
	Backend       string
	Key           string
	Timeout       time.Duration
	FileDir       string
	RedisAddress  string
	RedisUsername string
	RedisPassword string
	RedisDB       int
	DatabasePath  string
	DatabaseDSN   string
}

// AssetsConfig selects and configures the image host.
type AssetsConfig struct {
	Backend            string
	Timeout            time.Duration
	MaxUploadBytes     int64
	CompensateOrphans  bool
	LocalDir           string
	LocalURLPrefix     string
	LocalPublicBaseURL string
	S3Bucket           string
	S3Region           string
	S3Endpoint         string
	S3AccessKey        string
	S3SecretKey        string
	S3Prefix           string
	S3PublicBaseURL    string
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("log.format", defaultLogFormat)
	configViper.SetDefault("display.timezone", defaultTimezone)
	configViper.SetDefault("cors.allowed_origins", []string{"*"})

	configViper.SetDefault("store.backend", defaultStoreBackend)
	configViper.SetDefault("store.key", defaultStoreKey)
	configViper.SetDefault("store.timeout", defaultStoreTimeout)
	configViper.SetDefault("store.file.dir", defaultFileDir)
	configViper.SetDefault("store.redis.address", defaultRedisAddress)
	configViper.SetDefault("store.redis.username", "")
	configViper.SetDefault("store.redis.password", "")
	configViper.SetDefault("store.redis.db", 0)
	configViper.SetDefault("store.database.path", defaultDatabasePath)
	configViper.SetDefault("store.database.dsn", "")

	configViper.SetDefault("assets.backend", defaultAssetsBackend)
	configViper.SetDefault("assets.timeout", defaultAssetsTimeout)
	configViper.SetDefault("assets.max_upload_bytes", defaultMaxUploadBytes)
	configViper.SetDefault("assets.compensate_orphans", false)
	configViper.SetDefault("assets.local.dir", defaultLocalDir)
	configViper.SetDefault("assets.local.url_prefix", defaultLocalURLPrefix)
	configViper.SetDefault("assets.local.public_base_url", "")
	configViper.SetDefault("assets.s3.bucket", "")
	configViper.SetDefault("assets.s3.region", defaultS3Region)
	configViper.SetDefault("assets.s3.endpoint", "")
	configViper.SetDefault("assets.s3.access_key", "")
	configViper.SetDefault("assets.s3.secret_key", "")
	configViper.SetDefault("assets.s3.prefix", defaultS3Prefix)
	configViper.SetDefault("assets.s3.public_base_url", "")

	configViper.SetDefault("events.nats_url", "")
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:        configViper.GetString("http.address"),
		LogLevel:           configViper.GetString("log.level"),
		LogFormat:          strings.ToLower(strings.TrimSpace(configViper.GetString("log.format"))),
		Timezone:           strings.TrimSpace(configViper.GetString("display.timezone")),
		CORSAllowedOrigins: splitList(configViper.GetStringSlice("cors.allowed_origins")),
		Store: StoreConfig{
			Backend:       strings.ToLower(strings.TrimSpace(configViper.GetString("store.backend"))),
			Key:           strings.TrimSpace(configViper.GetString("store.key")),
			Timeout:       configViper.GetDuration("store.timeout"),
			FileDir:       configViper.GetString("store.file.dir"),
			RedisAddress:  configViper.GetString("store.redis.address"),
			RedisUsername: configViper.GetString("store.redis.username"),
			RedisPassword: configViper.GetString("store.redis.password"),
			RedisDB:       configViper.GetInt("store.redis.db"),
			DatabasePath:  configViper.GetString("store.database.path"),
			DatabaseDSN:   configViper.GetString("store.database.dsn"),
		},
		Assets: AssetsConfig{
			Backend:            strings.ToLower(strings.TrimSpace(configViper.GetString("assets.backend"))),
			Timeout:            configViper.GetDuration("assets.timeout"),
			MaxUploadBytes:     configViper.GetInt64("assets.max_upload_bytes"),
			CompensateOrphans:  configViper.GetBool("assets.compensate_orphans"),
			LocalDir:           configViper.GetString("assets.local.dir"),
			LocalURLPrefix:     configViper.GetString("assets.local.url_prefix"),
			LocalPublicBaseURL: configViper.GetString("assets.local.public_base_url"),
			S3Bucket:           configViper.GetString("assets.s3.bucket"),
			S3Region:           configViper.GetString("assets.s3.region"),
			S3Endpoint:         configViper.GetString("assets.s3.endpoint"),
			S3AccessKey:        configViper.GetString("assets.s3.access_key"),
			S3SecretKey:        configViper.GetString("assets.s3.secret_key"),
			S3Prefix:           configViper.GetString("assets.s3.prefix"),
			S3PublicBaseURL:    configViper.GetString("assets.s3.public_base_url"),
		},
		NATSURL: strings.TrimSpace(configViper.GetString("events.nats_url")),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	location, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return AppConfig{}, fmt.Errorf("display.timezone %q: %w", cfg.Timezone, err)
	}
	cfg.Location = location

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.HTTPAddress) == "" {
		return fmt.Errorf("http.address is required")
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("log.format must be json or console, got %q", c.LogFormat)
	}
	if c.Timezone == "" {
		return fmt.Errorf("display.timezone is required")
	}
	if c.Store.Key == "" {
		return fmt.Errorf("store.key is required")
	}
	if c.Store.Timeout <= 0 {
		return fmt.Errorf("store.timeout must be positive")
	}
	switch c.Store.Backend {
	case StoreBackendMemory:
	case StoreBackendFile:
		if strings.TrimSpace(c.Store.FileDir) == "" {
			return fmt.Errorf("store.file.dir is required for the file backend")
		}
	case StoreBackendRedis:
		if strings.TrimSpace(c.Store.RedisAddress) == "" {
			return fmt.Errorf("store.redis.address is required for the redis backend")
		}
	case StoreBackendSQLite:
		if strings.TrimSpace(c.Store.DatabasePath) == "" {
			return fmt.Errorf("store.database.path is required for the sqlite backend")
		}
	case StoreBackendPostgres:
		if strings.TrimSpace(c.Store.DatabaseDSN) == "" {
			return fmt.Errorf("store.database.dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown store.backend %q", c.Store.Backend)
	}

	if c.Assets.Timeout <= 0 {
		return fmt.Errorf("assets.timeout must be positive")
	}
	if c.Assets.MaxUploadBytes <= 0 {
		return fmt.Errorf("assets.max_upload_bytes must be positive")
	}
	switch c.Assets.Backend {
	case AssetsBackendLocal:
		if strings.TrimSpace(c.Assets.LocalDir) == "" {
			return fmt.Errorf("assets.local.dir is required for the local backend")
		}
	case AssetsBackendS3:
		if strings.TrimSpace(c.Assets.S3Bucket) == "" {
			return fmt.Errorf("assets.s3.bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("unknown assets.backend %q", c.Assets.Backend)
	}
	return nil
}

// splitList accepts both list values and comma separated env strings.
func splitList(values []string) []string {
	var out []string
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				out = append(out, trimmed)
			}
		}
	}
	return out
}
