package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MarcoPoloResearchLab/banners/backend/internal/store"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type configDocument struct {
	Key              string `gorm:"column:document_key;primaryKey;size:190;not null"`
	Payload          string `gorm:"column:payload;type:text;not null"`
	Version          string `gorm:"column:version;size:64;not null;default:''"`
	UpdatedAtSeconds int64  `gorm:"column:updated_at_s;not null"`
}

func (configDocument) TableName() string {
	return "config_documents"
}

// DocumentStore implements store.DocumentStore on a SQL table; writes are conditional updates on the version column.
type DocumentStore struct {
	db    *gorm.DB
	clock func() time.Time
}

// NewDocumentStore wraps an opened database.
func NewDocumentStore(db *gorm.DB) *DocumentStore {
	return &DocumentStore{db: db, clock: time.Now}
}

func (s *DocumentStore) Load(ctx context.Context, key string) (store.Snapshot, error) {
	if key == "" {
		return store.Snapshot{}, store.ErrMissingKey
	}
	var row configDocument
	err := s.db.WithContext(ctx).Where("document_key = ?", key).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return store.Snapshot{}, nil
	}
	if err != nil {
		return store.Snapshot{}, fmt.Errorf("load document %s: %w", key, err)
	}
	version := row.Version
	if version == "" {
		version = store.Digest([]byte(row.Payload))
	}
	return store.Snapshot{Data: []byte(row.Payload), Version: version, Exists: true}, nil
}

func (s *DocumentStore) Save(ctx context.Context, key string, data []byte, expectedVersion string) (string, error) {
	if key == "" {
		return "", store.ErrMissingKey
	}
	version := store.Digest(data)
	now := s.clock().UTC().Unix()

	if expectedVersion == "" {
		row := configDocument{Key: key, Payload: string(data), Version: version, UpdatedAtSeconds: now}
		result := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
		if result.Error != nil {
			return "", fmt.Errorf("create document %s: %w", key, result.Error)
		}
		if result.RowsAffected == 0 {
			return "", store.ErrVersionConflict
		}
		return version, nil
	}

	result := s.db.WithContext(ctx).
		Model(&configDocument{}).
		Where("document_key = ? AND version = ?", key, expectedVersion).
		Updates(map[string]any{
			"payload":      string(data),
			"version":      version,
			"updated_at_s": now,
		})
	if result.Error != nil {
		return "", fmt.Errorf("update document %s: %w", key, result.Error)
	}
	if result.RowsAffected == 0 {
		return "", store.ErrVersionConflict
	}
	return version, nil
}
