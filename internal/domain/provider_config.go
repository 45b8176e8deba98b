package domain

import (
	"fmt"
	"net/url"
	"regexp"
	"slices"
	"strings"
	"time"
)

// Adapter names the response-shape family a provider speaks.
type Adapter string

const (
	AdapterStandard Adapter = "standard"
	AdapterEnvelope Adapter = "envelope"
)

func (a Adapter) String() string { return string(a) }

func (a Adapter) IsValid() bool {
	switch a {
	case AdapterStandard, AdapterEnvelope:
		return true
	}
	return false
}

const (
	MinPriority      = 1
	MaxPriority      = 100
	DefaultQuotePath = "/quotes"
)

var providerIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{1,63}$`)

// RateLimit configures the per-provider token bucket.
type RateLimit struct {
	RequestsPerSecond float64
	BurstLimit        int
}

// RetryConfig configures exponential backoff between provider attempts.
type RetryConfig struct {
	MaxRetries        int
	BackoffMultiplier float64
	InitialDelay      time.Duration
}

// Delay returns the wait before retry number attempt (0-based).
func (r RetryConfig) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	multiplier := r.BackoffMultiplier
	if multiplier < 1 {
		multiplier = 1
	}

	delay := float64(r.InitialDelay)
	for i := 0; i < attempt; i++ {
		delay *= multiplier
	}
	return time.Duration(delay)
}

// ProviderConfig holds connectivity, capability and policy for one carrier.
type ProviderConfig struct {
	ID                     string
	DisplayName            string
	Rating                 string
	BaseURL                string
	APIKey                 string
	AuthHeader             string
	Adapter                Adapter
	QuotePath              string
	IsActive               bool
	MockMode               bool
	SupportedCoverageTypes []CoverageType
	Priority               int
	RateLimit              RateLimit
	Timeout                time.Duration
	RetryConfig            RetryConfig
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// Normalize trims identifiers and applies defaults before validation.
func (p *ProviderConfig) Normalize() {
	p.ID = strings.ToLower(strings.TrimSpace(p.ID))
	p.DisplayName = strings.TrimSpace(p.DisplayName)
	p.Rating = strings.TrimSpace(p.Rating)
	p.BaseURL = strings.TrimRight(strings.TrimSpace(p.BaseURL), "/")
	p.APIKey = strings.TrimSpace(p.APIKey)
	p.AuthHeader = strings.TrimSpace(p.AuthHeader)

	p.Adapter = Adapter(strings.ToLower(strings.TrimSpace(p.Adapter.String())))
	if p.Adapter == "" {
		p.Adapter = AdapterStandard
	}

	p.QuotePath = strings.TrimSpace(p.QuotePath)
	if p.QuotePath == "" {
		p.QuotePath = DefaultQuotePath
	}
	if !strings.HasPrefix(p.QuotePath, "/") {
		p.QuotePath = "/" + p.QuotePath
	}

	types := make([]CoverageType, 0, len(p.SupportedCoverageTypes))
	for _, ct := range p.SupportedCoverageTypes {
		normalized := CoverageType(strings.ToLower(strings.TrimSpace(ct.String())))
		if !slices.Contains(types, normalized) {
			types = append(types, normalized)
		}
	}
	p.SupportedCoverageTypes = types
}

func (p *ProviderConfig) Validate() error {
	if !providerIDPattern.MatchString(p.ID) {
		return fmt.Errorf("%w: invalid provider id %q", ErrValidation, p.ID)
	}
	if p.DisplayName == "" {
		return fmt.Errorf("%w: displayName is required", ErrValidation)
	}
	if !p.MockMode || p.BaseURL != "" {
		if err := validateBaseURL(p.BaseURL); err != nil {
			return err
		}
	}
	if !p.Adapter.IsValid() {
		return fmt.Errorf("%w: invalid adapter %q", ErrValidation, p.Adapter)
	}
	if len(p.SupportedCoverageTypes) == 0 {
		return fmt.Errorf("%w: at least one supported coverage type is required", ErrValidation)
	}
	for _, ct := range p.SupportedCoverageTypes {
		if !ct.IsValid() {
			return fmt.Errorf("%w: invalid coverage type %q", ErrValidation, ct)
		}
	}
	if p.Priority < MinPriority || p.Priority > MaxPriority {
		return fmt.Errorf("%w: priority must be between %d and %d (got %d)", ErrValidation, MinPriority, MaxPriority, p.Priority)
	}
	if p.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("%w: rateLimit.requestsPerSecond must be > 0", ErrValidation)
	}
	if p.RateLimit.BurstLimit <= 0 {
		return fmt.Errorf("%w: rateLimit.burstLimit must be > 0", ErrValidation)
	}
	if p.Timeout <= 0 {
		return fmt.Errorf("%w: timeout must be > 0", ErrValidation)
	}
	if p.RetryConfig.MaxRetries < 0 {
		return fmt.Errorf("%w: retryConfig.maxRetries must be >= 0", ErrValidation)
	}
	if p.RetryConfig.BackoffMultiplier < 1 {
		return fmt.Errorf("%w: retryConfig.backoffMultiplier must be >= 1", ErrValidation)
	}
	if p.RetryConfig.InitialDelay < 0 {
		return fmt.Errorf("%w: retryConfig.initialDelay must be >= 0", ErrValidation)
	}

	return nil
}

// Supports reports whether the provider quotes the given coverage type.
func (p ProviderConfig) Supports(coverageType CoverageType) bool {
	return slices.Contains(p.SupportedCoverageTypes, coverageType)
}

// Clone returns a deep copy safe to hand to a request snapshot.
func (p ProviderConfig) Clone() ProviderConfig {
	p.SupportedCoverageTypes = slices.Clone(p.SupportedCoverageTypes)
	return p
}

// Ref is the provider reference embedded in quotes.
func (p ProviderConfig) Ref() ProviderRef {
	return ProviderRef{
		ID:          p.ID,
		DisplayName: p.DisplayName,
		Rating:      p.Rating,
	}
}

func validateBaseURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("%w: baseUrl is required", ErrValidation)
	}
	parsed, err := url.ParseRequestURI(raw)
	if err != nil {
		return fmt.Errorf("%w: invalid baseUrl: %v", ErrValidation, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%w: baseUrl scheme must be http or https", ErrValidation)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%w: baseUrl host is required", ErrValidation)
	}
	return nil
}
