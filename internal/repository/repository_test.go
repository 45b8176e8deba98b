package repository

import (
	"testing"
	"time"

	"github.com/kursadbilgin/quote-engine/internal/domain"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("gorm.Open() error = %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB() error = %v", err)
	}
	// a single connection keeps every query on the same in-memory database
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(&ProviderConfigModel{}, &QuoteRequestModel{}); err != nil {
		t.Fatalf("AutoMigrate() error = %v", err)
	}

	return db
}

func testProvider(id string, priority int) domain.ProviderConfig {
	return domain.ProviderConfig{
		ID:                     id,
		DisplayName:            "Provider " + id,
		Rating:                 "A",
		BaseURL:                "https://" + id + ".example",
		Adapter:                domain.AdapterStandard,
		QuotePath:              domain.DefaultQuotePath,
		IsActive:               true,
		SupportedCoverageTypes: []domain.CoverageType{domain.CoverageTermLife, domain.CoverageWholeLife},
		Priority:               priority,
		RateLimit:              domain.RateLimit{RequestsPerSecond: 5, BurstLimit: 10},
		Timeout:                3 * time.Second,
		RetryConfig: domain.RetryConfig{
			MaxRetries:        2,
			BackoffMultiplier: 2,
			InitialDelay:      250 * time.Millisecond,
		},
	}
}
