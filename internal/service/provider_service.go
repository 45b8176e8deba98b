package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/quote-engine/internal/config"
	"github.com/kursadbilgin/quote-engine/internal/domain"
	"github.com/kursadbilgin/quote-engine/internal/provider"
	"github.com/kursadbilgin/quote-engine/internal/repository"
	"go.uber.org/zap"
)

// StatsStore reads and resets provider invocation counters.
type StatsStore interface {
	Get(ctx context.Context, providerID string) (domain.ProviderStats, error)
	List(ctx context.Context, providerIDs []string) ([]domain.ProviderStats, error)
	Reset(ctx context.Context, providerID string) error
}

// LimiterTuner receives admin rate-limit changes for the shared buckets.
type LimiterTuner interface {
	Retune(cfg domain.ProviderConfig) error
	Remove(id string)
}

// ProviderUpdateOptions controls how an update treats stored credentials.
// Empty APIKey and AuthHeader keep the stored values unless ClearCredentials is set.
type ProviderUpdateOptions struct {
	ClearCredentials bool
}

// ProviderTestResult is the outcome of a single diagnostic provider call.
type ProviderTestResult struct {
	OK        bool
	LatencyMS int64
	ErrorKind provider.ErrorKind
	Error     string
	Quote     *domain.Quote
	Attempts  int
	Mocked    bool
}

type ProviderService struct {
	repo     repository.ProviderConfigRepository
	stats    StatsStore
	invoker  provider.Invoker
	limiters LimiterTuner
	logger   *zap.Logger
	now      func() time.Time
}

func NewProviderService(
	repo repository.ProviderConfigRepository,
	stats StatsStore,
	invoker provider.Invoker,
	logger *zap.Logger,
) (*ProviderService, error) {
	if repo == nil {
		return nil, fmt.Errorf("provider config repository is required")
	}
	if stats == nil {
		return nil, fmt.Errorf("stats reader is required")
	}
	if invoker == nil {
		return nil, fmt.Errorf("provider invoker is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ProviderService{
		repo:    repo,
		stats:   stats,
		invoker: invoker,
		logger:  logger,
		now:     time.Now,
	}, nil
}

// SetLimiters makes every successful write retune, or drop, the provider's
// shared rate limiter.
func (s *ProviderService) SetLimiters(limiters LimiterTuner) {
	if s == nil {
		return
	}
	s.limiters = limiters
}

func (s *ProviderService) List(ctx context.Context) ([]domain.ProviderConfig, error) {
	return s.repo.List(ctx)
}

func (s *ProviderService) Get(ctx context.Context, id string) (*domain.ProviderConfig, error) {
	id = strings.ToLower(strings.TrimSpace(id))
	if id == "" {
		return nil, fmt.Errorf("%w: provider id is required", domain.ErrValidation)
	}
	return s.repo.GetByID(ctx, id)
}

func (s *ProviderService) Create(ctx context.Context, cfg *domain.ProviderConfig) error {
	if cfg == nil {
		return fmt.Errorf("%w: provider config is required", domain.ErrValidation)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := s.repo.Create(ctx, cfg); err != nil {
		return err
	}
	s.applyLimits(*cfg)

	s.logger.Info("provider created",
		zap.String("provider", cfg.ID),
		zap.Bool("active", cfg.IsActive),
		zap.Bool("mockMode", cfg.MockMode),
	)
	return nil
}

// Update replaces the stored config of provider id. In-flight requests keep
// the snapshot they started with; the change applies from the next request.
func (s *ProviderService) Update(ctx context.Context, id string, cfg *domain.ProviderConfig, opts ProviderUpdateOptions) error {
	if cfg == nil {
		return fmt.Errorf("%w: provider config is required", domain.ErrValidation)
	}

	id = strings.ToLower(strings.TrimSpace(id))
	cfg.Normalize()
	if cfg.ID == "" {
		cfg.ID = id
	}
	if cfg.ID != id {
		return fmt.Errorf("%w: provider id %q does not match path id %q", domain.ErrValidation, cfg.ID, id)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !opts.ClearCredentials {
		if cfg.APIKey == "" {
			cfg.APIKey = current.APIKey
		}
		if cfg.AuthHeader == "" {
			cfg.AuthHeader = current.AuthHeader
		}
	}

	if err := s.repo.Update(ctx, cfg); err != nil {
		return err
	}
	s.applyLimits(*cfg)

	s.logger.Info("provider updated",
		zap.String("provider", cfg.ID),
		zap.Bool("active", cfg.IsActive),
		zap.Bool("mockMode", cfg.MockMode),
	)
	return nil
}

func (s *ProviderService) Stats(ctx context.Context, id string) (domain.ProviderStats, error) {
	cfg, err := s.Get(ctx, id)
	if err != nil {
		return domain.ProviderStats{}, err
	}
	return s.stats.Get(ctx, cfg.ID)
}

// ResetStats zeroes the counters of a known provider.
func (s *ProviderService) ResetStats(ctx context.Context, id string) error {
	cfg, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.stats.Reset(ctx, cfg.ID); err != nil {
		return err
	}

	s.logger.Info("provider stats reset", zap.String("provider", cfg.ID))
	return nil
}

// AllStats returns counters for every configured provider, in list order.
func (s *ProviderService) AllStats(ctx context.Context) ([]domain.ProviderStats, error) {
	configs, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	return s.stats.List(ctx, providerIDs(configs))
}

// Test performs one adapter call against provider id with a sample applicant.
// It never writes an audit row nor touches provider stats. An inactive provider
// is called as if active so operators can verify it before enabling.
func (s *ProviderService) Test(ctx context.Context, id string) (*ProviderTestResult, error) {
	cfg, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	target := cfg.Clone()
	target.IsActive = true

	criteria := sampleCriteria(target, s.now())
	started := s.now()
	resp, err := s.invoker.Invoke(ctx, target, criteria)
	result := &ProviderTestResult{LatencyMS: s.now().Sub(started).Milliseconds()}

	if err != nil {
		result.ErrorKind = provider.KindOf(err)
		result.Error = err.Error()
		var providerErr *provider.ProviderError
		if errors.As(err, &providerErr) {
			result.Attempts = providerErr.Attempts
		}
		s.logger.Info("provider test failed",
			zap.String("provider", target.ID),
			zap.String("kind", string(result.ErrorKind)),
			zap.Error(err),
		)
		return result, nil
	}

	quote := resp.Quote
	result.OK = true
	result.Quote = &quote
	result.Attempts = resp.Attempts
	result.Mocked = resp.Mocked
	return result, nil
}

// Seed upserts every config, keyed by id.
func (s *ProviderService) Seed(ctx context.Context, configs []domain.ProviderConfig) (int, error) {
	seeded := 0
	for i := range configs {
		cfg := configs[i].Clone()
		cfg.Normalize()
		if err := cfg.Validate(); err != nil {
			return seeded, fmt.Errorf("provider %q: %w", cfg.ID, err)
		}
		if err := s.repo.Upsert(ctx, &cfg); err != nil {
			return seeded, fmt.Errorf("failed to seed provider %q: %w", cfg.ID, err)
		}
		s.applyLimits(cfg)
		seeded++
	}
	return seeded, nil
}

// SeedFromFile loads provider configs from a YAML file and upserts them.
func (s *ProviderService) SeedFromFile(ctx context.Context, path string) (int, error) {
	configs, err := config.LoadProviders(path)
	if err != nil {
		return 0, err
	}

	seeded, err := s.Seed(ctx, configs)
	if err != nil {
		return seeded, err
	}

	s.logger.Info("providers seeded", zap.String("file", path), zap.Int("count", seeded))
	return seeded, nil
}

// applyLimits pushes a stored config to the shared limiters. Inactive and mock
// providers make no live calls, so their bucket is dropped.
func (s *ProviderService) applyLimits(cfg domain.ProviderConfig) {
	if s.limiters == nil {
		return
	}
	if !cfg.IsActive || cfg.MockMode {
		s.limiters.Remove(cfg.ID)
		return
	}
	if err := s.limiters.Retune(cfg); err != nil {
		s.logger.Warn("provider rate limiter retune failed", zap.String("provider", cfg.ID), zap.Error(err))
	}
}

// sampleCriteria is a 40 year old non-smoker effective tomorrow, quoting the
// provider's first supported coverage type.
func sampleCriteria(cfg domain.ProviderConfig, now time.Time) domain.QuoteCriteria {
	coverageType := domain.CoverageTermLife
	if len(cfg.SupportedCoverageTypes) > 0 {
		coverageType = cfg.SupportedCoverageTypes[0]
	}

	now = now.UTC()
	criteria := domain.QuoteCriteria{
		Applicant: domain.Applicant{
			FirstName:   "Sample",
			LastName:    "Applicant",
			DateOfBirth: now.AddDate(-40, 0, 0).Format(domain.DateLayout),
			Gender:      domain.GenderFemale,
		},
		CoverageType:   coverageType,
		CoverageAmount: 250000,
		PaymentMode:    domain.PaymentMonthly,
		EffectiveDate:  now.AddDate(0, 0, 1).Format(domain.DateLayout),
		Location: domain.Location{
			State:   "TX",
			ZipCode: "73301",
		},
	}
	if coverageType == domain.CoverageTermLife {
		criteria.TermLength = 20
	}
	return criteria
}
