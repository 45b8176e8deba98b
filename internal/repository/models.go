package repository

import (
	"time"

	"github.com/kursadbilgin/quote-engine/internal/domain"
)

// ProviderConfigModel is the persistence model for the provider_configs table.
type ProviderConfigModel struct {
	ID                     string                `gorm:"type:varchar(64);primaryKey"`
	DisplayName            string                `gorm:"type:varchar(255);not null"`
	Rating                 string                `gorm:"type:varchar(16);not null;default:''"`
	BaseURL                string                `gorm:"column:base_url;type:varchar(512);not null;default:''"`
	APIKey                 string                `gorm:"column:api_key;type:varchar(512);not null;default:''"`
	AuthHeader             string                `gorm:"type:varchar(512);not null;default:''"`
	Adapter                domain.Adapter        `gorm:"type:varchar(32);not null"`
	QuotePath              string                `gorm:"type:varchar(255);not null"`
	IsActive               bool                  `gorm:"not null"`
	MockMode               bool                  `gorm:"not null"`
	SupportedCoverageTypes []domain.CoverageType `gorm:"type:jsonb;serializer:json;not null"`
	Priority               int                   `gorm:"not null"`
	RateLimitRPS           float64               `gorm:"column:rate_limit_rps;not null"`
	RateLimitBurst         int                   `gorm:"not null"`
	TimeoutMS              int64                 `gorm:"column:timeout_ms;not null"`
	MaxRetries             int                   `gorm:"not null"`
	BackoffMultiplier      float64               `gorm:"not null"`
	InitialDelayMS         int64                 `gorm:"column:initial_delay_ms;not null"`
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

func (ProviderConfigModel) TableName() string {
	return "provider_configs"
}

// QuoteRequestModel is the persistence model for external_quote_requests.
type QuoteRequestModel struct {
	ID                 string               `gorm:"type:uuid;primaryKey"`
	RequestID          string               `gorm:"type:uuid;not null;uniqueIndex:idx_quote_requests_request_id"`
	UserID             *string              `gorm:"type:varchar(255)"`
	RequestData        domain.QuoteCriteria `gorm:"type:jsonb;serializer:json;not null"`
	ResponseData       []domain.Quote       `gorm:"type:jsonb;serializer:json"`
	Status             domain.RequestStatus `gorm:"type:varchar(20);not null"`
	ProvidersRequested []string             `gorm:"type:jsonb;serializer:json;not null"`
	ProvidersResponded []string             `gorm:"type:jsonb;serializer:json"`
	ErrorMessage       *string              `gorm:"type:text"`
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (QuoteRequestModel) TableName() string {
	return "external_quote_requests"
}

func providerConfigModelFromDomain(p *domain.ProviderConfig) *ProviderConfigModel {
	if p == nil {
		return nil
	}

	return &ProviderConfigModel{
		ID:                     p.ID,
		DisplayName:            p.DisplayName,
		Rating:                 p.Rating,
		BaseURL:                p.BaseURL,
		APIKey:                 p.APIKey,
		AuthHeader:             p.AuthHeader,
		Adapter:                p.Adapter,
		QuotePath:              p.QuotePath,
		IsActive:               p.IsActive,
		MockMode:               p.MockMode,
		SupportedCoverageTypes: p.SupportedCoverageTypes,
		Priority:               p.Priority,
		RateLimitRPS:           p.RateLimit.RequestsPerSecond,
		RateLimitBurst:         p.RateLimit.BurstLimit,
		TimeoutMS:              p.Timeout.Milliseconds(),
		MaxRetries:             p.RetryConfig.MaxRetries,
		BackoffMultiplier:      p.RetryConfig.BackoffMultiplier,
		InitialDelayMS:         p.RetryConfig.InitialDelay.Milliseconds(),
		CreatedAt:              p.CreatedAt,
		UpdatedAt:              p.UpdatedAt,
	}
}

func providerConfigModelToDomain(m *ProviderConfigModel) *domain.ProviderConfig {
	if m == nil {
		return nil
	}

	return &domain.ProviderConfig{
		ID:                     m.ID,
		DisplayName:            m.DisplayName,
		Rating:                 m.Rating,
		BaseURL:                m.BaseURL,
		APIKey:                 m.APIKey,
		AuthHeader:             m.AuthHeader,
		Adapter:                m.Adapter,
		QuotePath:              m.QuotePath,
		IsActive:               m.IsActive,
		MockMode:               m.MockMode,
		SupportedCoverageTypes: m.SupportedCoverageTypes,
		Priority:               m.Priority,
		RateLimit: domain.RateLimit{
			RequestsPerSecond: m.RateLimitRPS,
			BurstLimit:        m.RateLimitBurst,
		},
		Timeout: time.Duration(m.TimeoutMS) * time.Millisecond,
		RetryConfig: domain.RetryConfig{
			MaxRetries:        m.MaxRetries,
			BackoffMultiplier: m.BackoffMultiplier,
			InitialDelay:      time.Duration(m.InitialDelayMS) * time.Millisecond,
		},
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func quoteRequestModelFromDomain(r *domain.ExternalQuoteRequest) *QuoteRequestModel {
	if r == nil {
		return nil
	}

	return &QuoteRequestModel{
		ID:                 r.ID,
		RequestID:          r.RequestID,
		UserID:             r.UserID,
		RequestData:        r.RequestData,
		ResponseData:       r.ResponseData,
		Status:             r.Status,
		ProvidersRequested: r.ProvidersRequested,
		ProvidersResponded: r.ProvidersResponded,
		ErrorMessage:       r.ErrorMessage,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
	}
}

func quoteRequestModelToDomain(m *QuoteRequestModel) *domain.ExternalQuoteRequest {
	if m == nil {
		return nil
	}

	return &domain.ExternalQuoteRequest{
		ID:                 m.ID,
		RequestID:          m.RequestID,
		UserID:             m.UserID,
		RequestData:        m.RequestData,
		ResponseData:       m.ResponseData,
		Status:             m.Status,
		ProvidersRequested: m.ProvidersRequested,
		ProvidersResponded: m.ProvidersResponded,
		ErrorMessage:       m.ErrorMessage,
		CreatedAt:          m.CreatedAt,
		UpdatedAt:          m.UpdatedAt,
	}
}
