package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/quote-engine/internal/domain"
	"github.com/kursadbilgin/quote-engine/internal/repository"
)

const DefaultStuckGrace = 30 * time.Second

// QuoteRequestListParams filters the audit trail listing. Stuck narrows the
// result to pending rows older than the stuck threshold.
type QuoteRequestListParams struct {
	repository.ListParams
	Stuck bool
}

// QuoteRequestService is the read side of the audit trail.
type QuoteRequestService struct {
	repo           repository.QuoteRequestRepository
	stuckThreshold time.Duration
	now            func() time.Time
}

// NewQuoteRequestService treats a pending row as stuck once it is older than
// requestDeadline plus grace.
func NewQuoteRequestService(repo repository.QuoteRequestRepository, requestDeadline, grace time.Duration) (*QuoteRequestService, error) {
	if repo == nil {
		return nil, fmt.Errorf("quote request repository is required")
	}
	if requestDeadline <= 0 {
		requestDeadline = DefaultRequestDeadline
	}
	if grace < 0 {
		grace = DefaultStuckGrace
	}

	return &QuoteRequestService{
		repo:           repo,
		stuckThreshold: requestDeadline + grace,
		now:            time.Now,
	}, nil
}

func (s *QuoteRequestService) StuckThreshold() time.Duration {
	return s.stuckThreshold
}

func (s *QuoteRequestService) List(ctx context.Context, params QuoteRequestListParams) ([]domain.ExternalQuoteRequest, int64, error) {
	if params.From != nil && params.To != nil && params.From.After(*params.To) {
		return nil, 0, fmt.Errorf("%w: from must be before to", domain.ErrValidation)
	}

	if !params.Stuck {
		return s.repo.List(ctx, params.ListParams)
	}

	if params.Status != nil && *params.Status != domain.RequestStatusPending {
		return []domain.ExternalQuoteRequest{}, 0, nil
	}
	return s.repo.ListStuck(ctx, s.cutoff(), params.ListParams)
}

func (s *QuoteRequestService) Get(ctx context.Context, requestID string) (*domain.ExternalQuoteRequest, error) {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return nil, fmt.Errorf("%w: request id is required", domain.ErrValidation)
	}
	return s.repo.GetByRequestID(ctx, requestID)
}

// ListStuck returns up to limit stuck rows, oldest first, with the total count.
func (s *QuoteRequestService) ListStuck(ctx context.Context, limit int) ([]domain.ExternalQuoteRequest, int64, error) {
	return s.repo.ListStuck(ctx, s.cutoff(), repository.ListParams{Page: 1, PageSize: limit})
}

func (s *QuoteRequestService) cutoff() time.Time {
	return s.now().UTC().Add(-s.stuckThreshold)
}
