package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/quote-engine/internal/domain"
	"github.com/kursadbilgin/quote-engine/internal/events"
	"github.com/kursadbilgin/quote-engine/internal/repository"
	"go.uber.org/zap"
)

const defaultPublishTimeout = 2 * time.Second

// StatsRecorder counts finished provider invocations.
type StatsRecorder interface {
	Record(ctx context.Context, providerID string, success bool) error
}

// AuditRecorder owns every write to the quote request audit trail.
type AuditRecorder struct {
	requests       repository.QuoteRequestRepository
	stats          StatsRecorder
	publisher      events.Publisher
	logger         *zap.Logger
	now            func() time.Time
	newID          func() string
	publishTimeout time.Duration
}

func NewAuditRecorder(
	requests repository.QuoteRequestRepository,
	stats StatsRecorder,
	publisher events.Publisher,
	logger *zap.Logger,
) (*AuditRecorder, error) {
	if requests == nil {
		return nil, fmt.Errorf("quote request repository is required")
	}
	if stats == nil {
		return nil, fmt.Errorf("stats recorder is required")
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &AuditRecorder{
		requests:       requests,
		stats:          stats,
		publisher:      publisher,
		logger:         logger,
		now:            time.Now,
		newID:          uuid.NewString,
		publishTimeout: defaultPublishTimeout,
	}, nil
}

// Begin inserts the pending row for a request about to be dispatched.
func (a *AuditRecorder) Begin(ctx context.Context, req *domain.ExternalQuoteRequest) error {
	if req == nil || req.RequestID == "" {
		return fmt.Errorf("%w: request id is required", domain.ErrValidation)
	}
	if len(req.ProvidersRequested) == 0 {
		return fmt.Errorf("%w: providersRequested must not be empty", domain.ErrValidation)
	}

	now := a.now().UTC()
	if req.ID == "" {
		req.ID = a.newID()
	}
	req.Status = domain.RequestStatusPending
	req.ResponseData = nil
	req.ProvidersResponded = nil
	req.ErrorMessage = nil
	req.CreatedAt = now
	req.UpdatedAt = now

	return a.requests.Create(ctx, req)
}

// Complete applies the single terminal write and publishes the completion event.
// A row that is no longer pending yields domain.ErrConflict.
func (a *AuditRecorder) Complete(
	ctx context.Context,
	pending domain.ExternalQuoteRequest,
	outcome domain.QuoteRequestOutcome,
) (*domain.ExternalQuoteRequest, error) {
	if err := outcome.Validate(pending.ProvidersRequested); err != nil {
		return nil, err
	}

	completed, err := a.requests.Complete(ctx, pending.RequestID, outcome)
	if err != nil {
		return nil, err
	}

	a.publish(ctx, *completed)
	return completed, nil
}

// RecordProviderOutcome increments the provider counters. Failures are logged,
// never surfaced to the caller of the quote request.
func (a *AuditRecorder) RecordProviderOutcome(ctx context.Context, providerID string, success bool) {
	if err := a.stats.Record(ctx, providerID, success); err != nil {
		a.logger.Warn("failed to record provider stats",
			zap.String("provider", providerID),
			zap.Bool("success", success),
			zap.Error(err),
		)
	}
}

func (a *AuditRecorder) publish(ctx context.Context, completed domain.ExternalQuoteRequest) {
	publishCtx, cancel := context.WithTimeout(ctx, a.publishTimeout)
	defer cancel()

	if err := a.publisher.Publish(publishCtx, events.NewQuoteRequestEvent(completed)); err != nil {
		a.logger.Warn("failed to publish quote request event",
			zap.String("requestId", completed.RequestID),
			zap.String("status", completed.Status.String()),
			zap.Error(err),
		)
	}
}
