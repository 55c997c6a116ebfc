package database

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/fabworks/fabops/backend/internal/domain"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func TestApplyMigrationsBackfillsQuoteReferences(testContext *testing.T) {
	tempDir := testContext.TempDir()
	databasePath := filepath.Join(tempDir, "migration.db")

	database, err := gorm.Open(sqlite.Open(databasePath), &gorm.Config{})
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}

	if err := database.AutoMigrate(&domain.Customer{}, &domain.Quote{}, &migrationRecord{}); err != nil {
		testContext.Fatalf("failed to migrate schema: %v", err)
	}

	quote := domain.Quote{
		ID:              "0196f6f2-aaaa-7bbb-8ccc-1234567890ab",
		QuoteReference:  "",
		VersionNumber:   1,
		IsLatestVersion: true,
		Status:          domain.QuoteStatusDraft,
		CustomerID:      "cust-1",
		CreatedAt:       time.Now().UTC(),
		UpdatedAt:       time.Now().UTC(),
	}
	if err := database.Create(&quote).Error; err != nil {
		testContext.Fatalf("failed to insert quote: %v", err)
	}

	if err := applyMigrations(database, zap.NewNop()); err != nil {
		testContext.Fatalf("failed to apply migrations: %v", err)
	}

	var stored domain.Quote
	if err := database.Where("id = ?", quote.ID).Take(&stored).Error; err != nil {
		testContext.Fatalf("failed to reload quote: %v", err)
	}
	if stored.QuoteReference != "QR-0196F6F2" {
		testContext.Fatalf("unexpected backfilled reference %q", stored.QuoteReference)
	}

	var record migrationRecord
	if err := database.Where("name = ?", migrationBackfillQuoteReferences).Take(&record).Error; err != nil {
		testContext.Fatalf("expected migration record to be created: %v", err)
	}
	if record.AppliedAtSeconds == 0 {
		testContext.Fatalf("expected migration timestamp to be set")
	}
}

func TestApplyMigrationsIsIdempotent(testContext *testing.T) {
	tempDir := testContext.TempDir()
	databasePath := filepath.Join(tempDir, "migration.db")

	database, err := gorm.Open(sqlite.Open(databasePath), &gorm.Config{})
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}
	if err := database.AutoMigrate(&domain.Customer{}, &domain.Quote{}, &migrationRecord{}); err != nil {
		testContext.Fatalf("failed to migrate schema: %v", err)
	}

	if err := applyMigrations(database, zap.NewNop()); err != nil {
		testContext.Fatalf("first application failed: %v", err)
	}
	if err := applyMigrations(database, zap.NewNop()); err != nil {
		testContext.Fatalf("second application failed: %v", err)
	}

	var count int64
	if err := database.Model(&migrationRecord{}).Count(&count).Error; err != nil {
		testContext.Fatalf("failed to count migration records: %v", err)
	}
	if count != 1 {
		testContext.Fatalf("expected a single migration record, got %d", count)
	}
}
