package database

import (
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/banners/backend/internal/store"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationBackfillDocumentVersions = "2026-10-01_backfill_document_versions"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationBackfillDocumentVersions, apply: backfillDocumentVersions},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// backfillDocumentVersions stamps rows imported without a version so conditional writes can match them.
func backfillDocumentVersions(db *gorm.DB) error {
	var rows []configDocument
	if err := db.Where("version = ?", "").Find(&rows).Error; err != nil {
		return err
	}
	for _, row := range rows {
		err := db.Model(&configDocument{}).
			Where("document_key = ?", row.Key).
			Update("version", store.Digest([]byte(row.Payload))).Error
		if err != nil {
			return err
		}
	}
	return nil
}
