package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/quote-engine/internal/repository"
	"gorm.io/gorm"
)

func createProviderConfigsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_provider_configs",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.ProviderConfigModel{}); err != nil {
				return err
			}
			return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_provider_configs_active_priority ON provider_configs (priority, id) WHERE is_active = true`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.ProviderConfigModel{})
		},
	}
}
