package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/quote-engine/internal/repository"
	"gorm.io/gorm"
)

func createExternalQuoteRequestsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000002_create_external_quote_requests",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.QuoteRequestModel{}); err != nil {
				return err
			}
			return execAll(tx, []string{
				`CREATE INDEX IF NOT EXISTS idx_quote_requests_status_created ON external_quote_requests (status, created_at)`,
				`CREATE INDEX IF NOT EXISTS idx_quote_requests_user_created ON external_quote_requests (user_id, created_at) WHERE user_id IS NOT NULL`,
			})
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.QuoteRequestModel{})
		},
	}
}
