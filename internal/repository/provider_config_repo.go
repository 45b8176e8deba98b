package repository

import (
	"context"
	"errors"
	"time"

	"github.com/kursadbilgin/quote-engine/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ProviderConfigRepository interface {
	Create(ctx context.Context, p *domain.ProviderConfig) error
	Update(ctx context.Context, p *domain.ProviderConfig) error
	Upsert(ctx context.Context, p *domain.ProviderConfig) error
	GetByID(ctx context.Context, id string) (*domain.ProviderConfig, error)
	List(ctx context.Context) ([]domain.ProviderConfig, error)
	ListActive(ctx context.Context) ([]domain.ProviderConfig, error)
}

type GormProviderConfigRepo struct {
	db *gorm.DB
}

func NewGormProviderConfigRepo(db *gorm.DB) *GormProviderConfigRepo {
	return &GormProviderConfigRepo{db: db}
}

func (r *GormProviderConfigRepo) Create(ctx context.Context, p *domain.ProviderConfig) error {
	model := providerConfigModelFromDomain(p)
	if model == nil {
		return domain.ErrValidation
	}

	err := r.db.WithContext(ctx).Create(model).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return domain.ErrConflict
	}
	if err != nil {
		return err
	}

	*p = *providerConfigModelToDomain(model)
	return nil
}

// Update replaces every mutable column, zero values included.
func (r *GormProviderConfigRepo) Update(ctx context.Context, p *domain.ProviderConfig) error {
	model := providerConfigModelFromDomain(p)
	if model == nil {
		return domain.ErrValidation
	}
	model.UpdatedAt = time.Now().UTC()

	result := r.db.WithContext(ctx).
		Model(&ProviderConfigModel{}).
		Where("id = ?", model.ID).
		Select("*").
		Omit("id", "created_at").
		Updates(model)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}

	updated, err := r.GetByID(ctx, model.ID)
	if err != nil {
		return err
	}
	*p = *updated
	return nil
}

// Upsert inserts or fully overwrites a provider row, used when seeding.
func (r *GormProviderConfigRepo) Upsert(ctx context.Context, p *domain.ProviderConfig) error {
	model := providerConfigModelFromDomain(p)
	if model == nil {
		return domain.ErrValidation
	}

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns(providerConfigMutableColumns),
		}).
		Create(model).Error
	if err != nil {
		return err
	}

	stored, err := r.GetByID(ctx, model.ID)
	if err != nil {
		return err
	}
	*p = *stored
	return nil
}

func (r *GormProviderConfigRepo) GetByID(ctx context.Context, id string) (*domain.ProviderConfig, error) {
	var model ProviderConfigModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return providerConfigModelToDomain(&model), nil
}

func (r *GormProviderConfigRepo) List(ctx context.Context) ([]domain.ProviderConfig, error) {
	return r.find(r.db.WithContext(ctx))
}

// ListActive returns active providers ordered by priority, then id.
func (r *GormProviderConfigRepo) ListActive(ctx context.Context) ([]domain.ProviderConfig, error) {
	return r.find(r.db.WithContext(ctx).Where("is_active = ?", true))
}

func (r *GormProviderConfigRepo) find(query *gorm.DB) ([]domain.ProviderConfig, error) {
	var models []ProviderConfigModel
	if err := query.Order("priority ASC").Order("id ASC").Find(&models).Error; err != nil {
		return nil, err
	}

	configs := make([]domain.ProviderConfig, 0, len(models))
	for i := range models {
		configs = append(configs, *providerConfigModelToDomain(&models[i]))
	}
	return configs, nil
}

var providerConfigMutableColumns = []string{
	"display_name",
	"rating",
	"base_url",
	"api_key",
	"auth_header",
	"adapter",
	"quote_path",
	"is_active",
	"mock_mode",
	"supported_coverage_types",
	"priority",
	"rate_limit_rps",
	"rate_limit_burst",
	"timeout_ms",
	"max_retries",
	"backoff_multiplier",
	"initial_delay_ms",
	"updated_at",
}
