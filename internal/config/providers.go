package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kursadbilgin/quote-engine/internal/domain"
	"gopkg.in/yaml.v3"
)

// ProvidersFile is the seed file layout:
//
//	providers:
//	  - id: acme
//	    displayName: Acme Life
//	    baseUrl: https://quotes.acme.example
//	    apiKey: ${ACME_API_KEY}
//	    coverageTypes: [term_life, whole_life]
//	    priority: 10
//	    rateLimit: {requestsPerSecond: 5, burstLimit: 10}
//	    timeout: 3s
//	    retry: {maxRetries: 2, backoffMultiplier: 2, initialDelay: 200ms}
type ProvidersFile struct {
	Providers []ProviderEntry `yaml:"providers"`
}

type ProviderEntry struct {
	ID            string         `yaml:"id"`
	DisplayName   string         `yaml:"displayName"`
	Rating        string         `yaml:"rating"`
	BaseURL       string         `yaml:"baseUrl"`
	APIKey        string         `yaml:"apiKey"`
	AuthHeader    string         `yaml:"authHeader"`
	Adapter       string         `yaml:"adapter"`
	QuotePath     string         `yaml:"quotePath"`
	Active        *bool          `yaml:"active"`
	MockMode      bool           `yaml:"mockMode"`
	CoverageTypes []string       `yaml:"coverageTypes"`
	Priority      int            `yaml:"priority"`
	RateLimit     RateLimitEntry `yaml:"rateLimit"`
	Timeout       time.Duration  `yaml:"timeout"`
	Retry         RetryEntry     `yaml:"retry"`
}

type RateLimitEntry struct {
	RequestsPerSecond float64 `yaml:"requestsPerSecond"`
	BurstLimit        int     `yaml:"burstLimit"`
}

type RetryEntry struct {
	MaxRetries        int           `yaml:"maxRetries"`
	BackoffMultiplier float64       `yaml:"backoffMultiplier"`
	InitialDelay      time.Duration `yaml:"initialDelay"`
}

// LoadProviders reads and validates a provider seed file. ${VAR} references in
// baseUrl, apiKey and authHeader are expanded from the environment.
func LoadProviders(path string) ([]domain.ProviderConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read providers file: %w", err)
	}
	return ParseProviders(data)
}

func ParseProviders(data []byte) ([]domain.ProviderConfig, error) {
	var file ProvidersFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse providers file: %w", err)
	}

	configs := make([]domain.ProviderConfig, 0, len(file.Providers))
	seen := make(map[string]struct{}, len(file.Providers))
	for i, entry := range file.Providers {
		cfg, err := entry.toDomain()
		if err != nil {
			return nil, fmt.Errorf("providers[%d]: %w", i, err)
		}
		cfg.Normalize()
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("providers[%d]: %w", i, err)
		}
		if _, dup := seen[cfg.ID]; dup {
			return nil, fmt.Errorf("providers[%d]: %w: duplicate provider id %q", i, domain.ErrValidation, cfg.ID)
		}
		seen[cfg.ID] = struct{}{}
		configs = append(configs, cfg)
	}

	return configs, nil
}

func (e ProviderEntry) toDomain() (domain.ProviderConfig, error) {
	active := true
	if e.Active != nil {
		active = *e.Active
	}

	multiplier := e.Retry.BackoffMultiplier
	if multiplier == 0 {
		multiplier = 1
	}

	types := make([]domain.CoverageType, 0, len(e.CoverageTypes))
	for _, raw := range e.CoverageTypes {
		ct, err := domain.ParseCoverageType(raw)
		if err != nil {
			return domain.ProviderConfig{}, err
		}
		types = append(types, ct)
	}

	return domain.ProviderConfig{
		ID:                     e.ID,
		DisplayName:            e.DisplayName,
		Rating:                 e.Rating,
		BaseURL:                os.ExpandEnv(e.BaseURL),
		APIKey:                 os.ExpandEnv(e.APIKey),
		AuthHeader:             os.ExpandEnv(e.AuthHeader),
		Adapter:                domain.Adapter(e.Adapter),
		QuotePath:              e.QuotePath,
		IsActive:               active,
		MockMode:               e.MockMode,
		SupportedCoverageTypes: types,
		Priority:               e.Priority,
		RateLimit: domain.RateLimit{
			RequestsPerSecond: e.RateLimit.RequestsPerSecond,
			BurstLimit:        e.RateLimit.BurstLimit,
		},
		Timeout: e.Timeout,
		RetryConfig: domain.RetryConfig{
			MaxRetries:        e.Retry.MaxRetries,
			BackoffMultiplier: multiplier,
			InitialDelay:      e.Retry.InitialDelay,
		},
	}, nil
}
