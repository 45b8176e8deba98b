package service

import (
	"context"
	"fmt"
	"time"

	"github.com/kursadbilgin/quote-engine/internal/observability"
	"go.uber.org/zap"
)

const (
	defaultStuckScanInterval = time.Minute
	defaultStuckScanLimit    = 20
)

// StuckRequestScanner periodically reports pending quote requests that
// outlived the request deadline, usually because the process that owned them
// died before the terminal write. It only observes and never modifies rows.
type StuckRequestScanner struct {
	requests *QuoteRequestService
	metrics  *observability.Metrics
	logger   *zap.Logger
	interval time.Duration
	limit    int
}

func NewStuckRequestScanner(
	requests *QuoteRequestService,
	interval time.Duration,
	limit int,
	logger *zap.Logger,
) (*StuckRequestScanner, error) {
	if requests == nil {
		return nil, fmt.Errorf("quote request service is required")
	}
	if interval <= 0 {
		interval = defaultStuckScanInterval
	}
	if limit <= 0 {
		limit = defaultStuckScanLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &StuckRequestScanner{
		requests: requests,
		logger:   logger,
		interval: interval,
		limit:    limit,
	}, nil
}

func (s *StuckRequestScanner) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

func (s *StuckRequestScanner) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := s.scan(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("stuck request scanner initial scan failed", zap.Error(err))
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.scan(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.logger.Error("stuck request scanner scan failed", zap.Error(err))
			}
		}
	}
}

func (s *StuckRequestScanner) scan(ctx context.Context) error {
	rows, total, err := s.requests.ListStuck(ctx, s.limit)
	if err != nil {
		return fmt.Errorf("failed to list stuck quote requests: %w", err)
	}

	s.metrics.SetStuckRequests(total)
	if total == 0 {
		return nil
	}

	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.RequestID)
	}
	s.logger.Warn("pending quote requests past deadline",
		zap.Int64("count", total),
		zap.Duration("threshold", s.requests.StuckThreshold()),
		zap.Strings("requestIds", ids),
	)
	return nil
}
