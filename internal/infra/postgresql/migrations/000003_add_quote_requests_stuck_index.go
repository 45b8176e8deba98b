package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

func addQuoteRequestsStuckIndex() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000003_add_quote_requests_stuck_index",
		Migrate: func(tx *gorm.DB) error {
			return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_quote_requests_pending_updated ON external_quote_requests (updated_at) WHERE status = 'pending'`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Exec(`DROP INDEX IF EXISTS idx_quote_requests_pending_updated`).Error
		},
	}
}
