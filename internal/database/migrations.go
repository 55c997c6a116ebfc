package database

import (
	"errors"
	"time"

	"github.com/fabworks/fabops/backend/internal/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationBackfillQuoteReferences = "2026-05-18_backfill_quote_references"

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
		{name: migrationBackfillQuoteReferences, apply: backfillQuoteReferences},
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

// backfillQuoteReferences repairs rows imported before quote references
// became mandatory: each gets a reference derived from its id.
func backfillQuoteReferences(db *gorm.DB) error {
	return db.Model(&domain.Quote{}).
		Where("quote_reference = ''").
		Update("quote_reference", gorm.Expr("'QR-' || upper(substr(replace(id, '-', ''), 1, 8))")).Error
}
