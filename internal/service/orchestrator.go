package service

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/quote-engine/internal/domain"
	"github.com/kursadbilgin/quote-engine/internal/observability"
	"github.com/kursadbilgin/quote-engine/internal/provider"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultRequestDeadline = 10 * time.Second
	DefaultMaxFanout       = 16

	finalizeTimeout = 5 * time.Second
)

// ProviderConfigSource yields the active provider configs for one request.
type ProviderConfigSource interface {
	ListActive(ctx context.Context) ([]domain.ProviderConfig, error)
}

type OrchestratorOptions struct {
	RequestDeadline time.Duration
	MaxFanout       int
}

// QuoteResult is what the caller receives for one quote search.
type QuoteResult struct {
	RequestID          string
	Status             domain.RequestStatus
	Quotes             []domain.Quote
	ProvidersRequested []string
	ProvidersResponded []string
	ErrorMessage       *string
}

// QuoteOrchestrator runs one quote search: it snapshots eligible providers,
// fans out under a single request deadline, aggregates and records the result.
type QuoteOrchestrator struct {
	providers       ProviderConfigSource
	invoker         provider.Invoker
	audit           *AuditRecorder
	logger          *zap.Logger
	metrics         *observability.Metrics
	requestDeadline time.Duration
	maxFanout       int
	now             func() time.Time
	newID           func() string
}

func NewQuoteOrchestrator(
	providers ProviderConfigSource,
	invoker provider.Invoker,
	audit *AuditRecorder,
	opts OrchestratorOptions,
	logger *zap.Logger,
) (*QuoteOrchestrator, error) {
	if providers == nil {
		return nil, fmt.Errorf("provider config source is required")
	}
	if invoker == nil {
		return nil, fmt.Errorf("provider invoker is required")
	}
	if audit == nil {
		return nil, fmt.Errorf("audit recorder is required")
	}
	if opts.RequestDeadline <= 0 {
		opts.RequestDeadline = DefaultRequestDeadline
	}
	if opts.MaxFanout <= 0 {
		opts.MaxFanout = DefaultMaxFanout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &QuoteOrchestrator{
		providers:       providers,
		invoker:         invoker,
		audit:           audit,
		logger:          logger,
		requestDeadline: opts.RequestDeadline,
		maxFanout:       opts.MaxFanout,
		now:             time.Now,
		newID:           uuid.NewString,
	}, nil
}

func (o *QuoteOrchestrator) SetMetrics(metrics *observability.Metrics) {
	if o == nil {
		return
	}
	o.metrics = metrics
}

// RequestDeadline is the upper bound on a single quote search.
func (o *QuoteOrchestrator) RequestDeadline() time.Duration {
	return o.requestDeadline
}

// Execute runs a quote search. Validation and eligibility failures return
// before any audit row exists. Once the pending row is written the request
// always reaches a terminal state; a search without quotes returns the result
// together with an error wrapping domain.ErrNoQuotesAvailable.
func (o *QuoteOrchestrator) Execute(ctx context.Context, userID *string, criteria domain.QuoteCriteria) (*QuoteResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	now := o.now()
	criteria.Normalize(now)
	if err := criteria.Validate(now); err != nil {
		return nil, err
	}

	configs, err := o.providers.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load provider configs: %w", err)
	}
	eligible := selectEligible(configs, criteria.CoverageType)
	if len(eligible) == 0 {
		return nil, fmt.Errorf("%w: no active provider supports %s", domain.ErrNoEligibleProviders, criteria.CoverageType)
	}

	requestID := o.newID()
	logger := observability.WithContextLogger(o.logger, ctx).With(zap.String("requestId", requestID))
	logPhase(logger, domain.PhaseCreated, zap.Int("providers", len(eligible)))

	pending := &domain.ExternalQuoteRequest{
		RequestID:          requestID,
		UserID:             normalizeUserID(userID),
		RequestData:        criteria,
		ProvidersRequested: providerIDs(eligible),
	}
	if err := o.audit.Begin(ctx, pending); err != nil {
		return nil, fmt.Errorf("failed to record pending quote request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, o.requestDeadline)
	defer cancel()

	logPhase(logger, domain.PhaseDispatching)
	outcomes := o.fanOut(reqCtx, logger, eligible, criteria)

	logPhase(logger, domain.PhaseFinalizing)
	agg := aggregate(eligible, outcomes)

	outcome := domain.QuoteRequestOutcome{
		Status:             domain.RequestStatusSuccess,
		ResponseData:       agg.Quotes,
		ProvidersResponded: agg.ProvidersResponded,
	}
	if len(agg.Quotes) == 0 {
		summary := agg.errorSummary(len(eligible))
		outcome.Status = domain.RequestStatusError
		outcome.ResponseData = nil
		outcome.ErrorMessage = &summary
	}

	// The terminal write must land even when the caller has gone away.
	finalizeCtx, cancelFinalize := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancelFinalize()

	completed, err := o.audit.Complete(finalizeCtx, *pending, outcome)
	if err != nil {
		logger.Error("failed to record quote request outcome", zap.Error(err))
		return nil, fmt.Errorf("failed to record quote request outcome: %w", err)
	}

	o.metrics.IncQuoteRequest(completed.Status.String())

	result := &QuoteResult{
		RequestID:          completed.RequestID,
		Status:             completed.Status,
		Quotes:             agg.Quotes,
		ProvidersRequested: pending.ProvidersRequested,
		ProvidersResponded: agg.ProvidersResponded,
		ErrorMessage:       outcome.ErrorMessage,
	}

	if outcome.Status == domain.RequestStatusError {
		logPhase(logger, domain.PhaseFailed, zap.String("summary", *outcome.ErrorMessage))
		return result, fmt.Errorf("%w: %s", domain.ErrNoQuotesAvailable, *outcome.ErrorMessage)
	}

	logPhase(logger, domain.PhaseSucceeded,
		zap.Int("quotes", len(agg.Quotes)),
		zap.Int("failed", agg.FailedCount),
	)
	return result, nil
}

// fanOut invokes every provider concurrently, at most maxFanout at a time, and
// returns one outcome per provider in input order. It never waits past reqCtx.
func (o *QuoteOrchestrator) fanOut(
	reqCtx context.Context,
	logger *zap.Logger,
	providers []domain.ProviderConfig,
	criteria domain.QuoteCriteria,
) []providerOutcome {
	collector := newOutcomeCollector(len(providers))
	statsCtx := context.WithoutCancel(reqCtx)

	done := make(chan struct{})
	go func() {
		defer close(done)

		var g errgroup.Group
		g.SetLimit(o.maxFanout)
		for i, cfg := range providers {
			if reqCtx.Err() != nil {
				break
			}

			g.Go(func() error {
				o.metrics.IncFanoutInFlight()
				defer o.metrics.DecFanoutInFlight()

				started := o.now()
				outcome := o.invoke(reqCtx, cfg, criteria)
				if collector.settle(i, outcome) {
					o.recordOutcome(statsCtx, logger, cfg, outcome, o.now().Sub(started))
				}
				return nil
			})
		}
		_ = g.Wait()
	}()

	logPhase(logger, domain.PhaseAwaiting)
	select {
	case <-done:
	case <-reqCtx.Done():
	}

	outcomes := collector.close()
	for i := range outcomes {
		if outcomes[i].settled {
			continue
		}
		outcomes[i] = providerOutcome{err: cutoffError(reqCtx, providers[i].ID), settled: true}
		o.recordOutcome(statsCtx, logger, providers[i], outcomes[i], 0)
	}

	return outcomes
}

func (o *QuoteOrchestrator) invoke(ctx context.Context, cfg domain.ProviderConfig, criteria domain.QuoteCriteria) (outcome providerOutcome) {
	defer func() {
		if r := recover(); r != nil {
			outcome = providerOutcome{err: fmt.Errorf("provider %s invocation panicked: %v", cfg.ID, r)}
		}
	}()

	resp, err := o.invoker.Invoke(ctx, cfg, criteria)
	if err != nil {
		// Failures caused by the shared request deadline are reported as such,
		// not as the provider's own timeout.
		if ctx.Err() != nil {
			err = cutoffError(ctx, cfg.ID)
		}
		var providerErr *provider.ProviderError
		attempts := 0
		if errors.As(err, &providerErr) {
			attempts = providerErr.Attempts
		}
		return providerOutcome{err: err, attempts: attempts}
	}
	if resp == nil {
		return providerOutcome{err: &provider.ProviderError{
			Kind:       provider.KindMappingError,
			ProviderID: cfg.ID,
			Message:    "provider returned no response",
		}}
	}

	quote := resp.Quote
	return providerOutcome{quote: &quote, attempts: resp.Attempts, mocked: resp.Mocked}
}

func (o *QuoteOrchestrator) recordOutcome(
	ctx context.Context,
	logger *zap.Logger,
	cfg domain.ProviderConfig,
	outcome providerOutcome,
	elapsed time.Duration,
) {
	success := outcome.err == nil && outcome.quote != nil
	o.audit.RecordProviderOutcome(ctx, cfg.ID, success)

	label := "success"
	if !success {
		label = string(provider.KindOf(outcome.err))
		if label == "" {
			label = "unknown"
		}
	}
	o.metrics.ObserveProviderInvocation(cfg.ID, label, outcome.attempts, elapsed)

	if success {
		logger.Debug("provider responded",
			zap.String("provider", cfg.ID),
			zap.Int("attempts", outcome.attempts),
			zap.Bool("mocked", outcome.mocked),
			zap.Duration("elapsed", elapsed),
		)
		return
	}
	logger.Info("provider failed",
		zap.String("provider", cfg.ID),
		zap.String("kind", label),
		zap.Int("attempts", outcome.attempts),
		zap.Error(outcome.err),
	)
}

// outcomeCollector holds one slot per provider. Once closed, late settles are
// rejected so a result that arrives after the deadline never changes the outcome.
type outcomeCollector struct {
	mu       sync.Mutex
	outcomes []providerOutcome
	closed   bool
}

func newOutcomeCollector(size int) *outcomeCollector {
	return &outcomeCollector{outcomes: make([]providerOutcome, size)}
}

func (c *outcomeCollector) settle(i int, outcome providerOutcome) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || i < 0 || i >= len(c.outcomes) || c.outcomes[i].settled {
		return false
	}
	outcome.settled = true
	c.outcomes[i] = outcome
	return true
}

func (c *outcomeCollector) close() []providerOutcome {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	return slices.Clone(c.outcomes)
}

func cutoffError(ctx context.Context, providerID string) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return &provider.ProviderError{
			Kind:       provider.KindCanceled,
			ProviderID: providerID,
			Message:    "quote request canceled",
			Cause:      ctx.Err(),
		}
	}
	return &provider.ProviderError{
		Kind:       provider.KindDeadlineExceeded,
		ProviderID: providerID,
		Message:    "no response before request deadline",
		Cause:      domain.ErrRequestDeadlineExceeded,
	}
}

// selectEligible returns value copies of the providers that may serve the
// coverage type, ordered by priority then id.
func selectEligible(configs []domain.ProviderConfig, coverageType domain.CoverageType) []domain.ProviderConfig {
	eligible := make([]domain.ProviderConfig, 0, len(configs))
	for _, cfg := range configs {
		if !cfg.IsActive || !cfg.Supports(coverageType) {
			continue
		}
		eligible = append(eligible, cfg.Clone())
	}

	slices.SortFunc(eligible, func(a, b domain.ProviderConfig) int {
		if c := cmp.Compare(a.Priority, b.Priority); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return eligible
}

func providerIDs(configs []domain.ProviderConfig) []string {
	ids := make([]string, 0, len(configs))
	for _, cfg := range configs {
		ids = append(ids, cfg.ID)
	}
	return ids
}

func normalizeUserID(userID *string) *string {
	if userID == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*userID)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func logPhase(logger *zap.Logger, phase domain.RequestPhase, fields ...zap.Field) {
	logger.Debug("quote request phase", append([]zap.Field{zap.String("phase", phase.String())}, fields...)...)
}
