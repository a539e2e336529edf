package main

import (
	"context"
	"fmt"

	"github.com/MarcoPoloResearchLab/banners/backend/internal/assets"
	"github.com/MarcoPoloResearchLab/banners/backend/internal/banners"
	"github.com/MarcoPoloResearchLab/banners/backend/internal/config"
	"github.com/MarcoPoloResearchLab/banners/backend/internal/database"
	"github.com/MarcoPoloResearchLab/banners/backend/internal/store"
	"github.com/MarcoPoloResearchLab/banners/backend/internal/store/filestore"
	"github.com/MarcoPoloResearchLab/banners/backend/internal/store/redisstore"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// openStore builds the configured document store and a function releasing its connections.
func openStore(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (store.DocumentStore, func(), error) {
	noop := func() {}
	switch cfg.Backend {
	case config.StoreBackendMemory:
		logger.Warn("using in-memory config store; changes are lost on restart")
		return store.NewMemory(), noop, nil
	case config.StoreBackendFile:
		fileStore, err := filestore.New(cfg.FileDir)
		if err != nil {
			return nil, noop, err
		}
		return fileStore, noop, nil
	case config.StoreBackendRedis:
		client, err := redisstore.NewClient(ctx, redisstore.Options{
			Address:  cfg.RedisAddress,
			Username: cfg.RedisUsername,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Timeout:  cfg.Timeout,
		})
		if err != nil {
			return nil, noop, err
		}
		return redisstore.New(client), func() { _ = client.Close() }, nil
	case config.StoreBackendSQLite:
		db, err := database.OpenSQLite(cfg.DatabasePath, logger)
		if err != nil {
			return nil, noop, err
		}
		return database.NewDocumentStore(db), closeDatabase(db), nil
	case config.StoreBackendPostgres:
		db, err := database.OpenPostgres(cfg.DatabaseDSN, logger)
		if err != nil {
			return nil, noop, err
		}
		return database.NewDocumentStore(db), closeDatabase(db), nil
	default:
		return nil, noop, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

func closeDatabase(db *gorm.DB) func() {
	return func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}

// openAssets builds the configured asset host. uploadsDir is non-empty only for the local host.
func openAssets(ctx context.Context, cfg config.AssetsConfig) (banners.AssetHost, string, error) {
	switch cfg.Backend {
	case config.AssetsBackendLocal:
		local, err := assets.NewLocal(assets.LocalOptions{
			Dir:           cfg.LocalDir,
			URLPrefix:     cfg.LocalURLPrefix,
			PublicBaseURL: cfg.LocalPublicBaseURL,
		})
		if err != nil {
			return nil, "", err
		}
		return local, local.Dir(), nil
	case config.AssetsBackendS3:
		host, err := assets.NewS3(ctx, assets.S3Options{
			Bucket:        cfg.S3Bucket,
			Region:        cfg.S3Region,
			Endpoint:      cfg.S3Endpoint,
			AccessKey:     cfg.S3AccessKey,
			SecretKey:     cfg.S3SecretKey,
			Prefix:        cfg.S3Prefix,
			PublicBaseURL: cfg.S3PublicBaseURL,
		})
		if err != nil {
			return nil, "", err
		}
		return host, "", nil
	default:
		return nil, "", fmt.Errorf("unknown assets backend %q", cfg.Backend)
	}
}
