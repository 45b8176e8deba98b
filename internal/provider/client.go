package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/kursadbilgin/quote-engine/internal/domain"
	"github.com/kursadbilgin/quote-engine/internal/observability"
	"github.com/kursadbilgin/quote-engine/internal/ratelimit"
	"go.uber.org/zap"
)

const (
	apiKeyHeader         = "X-API-Key"
	maxLoggedBodyLength  = 512
	defaultClientTimeout = 30 * time.Second
)

// LimiterSource resolves the shared limiter for a provider.
type LimiterSource interface {
	For(cfg domain.ProviderConfig) (ratelimit.Limiter, error)
}

var _ Invoker = (*Client)(nil)

// Client calls provider quote endpoints under each provider's own policy.
type Client struct {
	http     *resty.Client
	limiters LimiterSource
	mappers  map[domain.Adapter]Mapper
	logger   *zap.Logger
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
}

func NewClient(limiters LimiterSource, logger *zap.Logger) (*Client, error) {
	client := resty.New()
	client.SetTimeout(defaultClientTimeout)

	return NewClientWithResty(client, limiters, DefaultMappers(), logger)
}

func NewClientWithResty(
	client *resty.Client,
	limiters LimiterSource,
	mappers map[domain.Adapter]Mapper,
	logger *zap.Logger,
) (*Client, error) {
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}
	if limiters == nil {
		return nil, fmt.Errorf("limiter source is required")
	}
	if len(mappers) == 0 {
		mappers = DefaultMappers()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	// Retries are driven by each provider's RetryConfig, never by resty.
	client.SetRetryCount(0)

	return &Client{
		http:     client,
		limiters: limiters,
		mappers:  mappers,
		logger:   logger,
		now:      time.Now,
		sleep:    sleepWithContext,
	}, nil
}

// Invoke returns one normalized quote from cfg, or a *ProviderError. The whole
// invocation, including limiter waits and backoff, is bounded by cfg.Timeout
// and by ctx.
func (c *Client) Invoke(ctx context.Context, cfg domain.ProviderConfig, criteria domain.QuoteCriteria) (*Response, error) {
	if c == nil || c.http == nil {
		return nil, fmt.Errorf("provider client is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if !cfg.IsActive {
		return nil, &ProviderError{
			Kind:       KindProviderInactive,
			ProviderID: cfg.ID,
			Message:    "provider is inactive",
		}
	}

	if cfg.MockMode {
		return &Response{
			Quote:  MockQuote(cfg, criteria),
			Mocked: true,
		}, nil
	}

	mapper, ok := c.mappers[cfg.Adapter]
	if !ok {
		return nil, &ProviderError{
			Kind:       KindMappingError,
			ProviderID: cfg.ID,
			Message:    fmt.Sprintf("no mapper for adapter %q", cfg.Adapter),
		}
	}

	limiter, err := c.limiters.For(cfg)
	if err != nil {
		return nil, &ProviderError{
			Kind:       KindRateLimited,
			ProviderID: cfg.ID,
			Message:    "rate limiter unavailable",
			Cause:      err,
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	logger := observability.WithContextLogger(c.logger, ctx).With(zap.String("provider", cfg.ID))
	body := mapper.BuildRequest(criteria)

	var lastErr *ProviderError
	attempts := 0
	for attempt := 0; attempt <= cfg.RetryConfig.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := cfg.RetryConfig.Delay(attempt - 1)
			if deadline, ok := callCtx.Deadline(); ok && c.now().Add(delay).After(deadline) {
				logger.Debug("skipping retry that would exceed deadline",
					zap.Int("attempt", attempt+1),
					zap.Duration("delay", delay),
				)
				break
			}
			if err := c.sleep(callCtx, delay); err != nil {
				lastErr = classifyTransportError(cfg.ID, err)
				break
			}
		}

		if _, err := limiter.Acquire(callCtx); err != nil {
			// an expired call context is the provider timeout, not a full bucket
			if callCtx.Err() != nil && errors.Is(err, callCtx.Err()) {
				lastErr = classifyTransportError(cfg.ID, err)
				break
			}
			lastErr = &ProviderError{
				Kind:       KindRateLimited,
				ProviderID: cfg.ID,
				Message:    "no rate limit token before deadline",
				Cause:      err,
			}
			if errors.Is(ctx.Err(), context.Canceled) {
				lastErr.Kind = KindCanceled
			}
			break
		}

		attempts++
		raw, statusCode, callErr := c.post(callCtx, cfg, body)
		if callErr == nil {
			quote, mapErr := mapper.MapResponse(cfg, criteria, raw)
			if mapErr != nil {
				logger.Warn("provider response mapping failed",
					zap.Int("status", statusCode),
					zap.String("body", truncate(raw)),
					zap.Error(mapErr),
				)
				return nil, &ProviderError{
					Kind:       KindMappingError,
					ProviderID: cfg.ID,
					StatusCode: statusCode,
					Attempts:   attempts,
					Message:    "unexpected provider payload",
					Cause:      mapErr,
				}
			}

			return &Response{
				Quote:      quote,
				StatusCode: statusCode,
				Attempts:   attempts,
			}, nil
		}

		lastErr = callErr
		logger.Debug("provider attempt failed",
			zap.Int("attempt", attempts),
			zap.String("kind", callErr.Kind.String()),
			zap.Bool("transient", callErr.Transient),
			zap.Error(callErr),
		)
		if !IsTransient(callErr) {
			break
		}
	}

	if lastErr == nil {
		lastErr = &ProviderError{Kind: KindTimeout, ProviderID: cfg.ID, Message: "provider request timed out", Transient: true}
	}
	lastErr.Attempts = attempts
	return nil, lastErr
}

func (c *Client) post(ctx context.Context, cfg domain.ProviderConfig, body any) ([]byte, int, *ProviderError) {
	req := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetBody(body)

	switch {
	case cfg.AuthHeader != "":
		req.SetHeader("Authorization", cfg.AuthHeader)
	case cfg.APIKey != "":
		req.SetHeader(apiKeyHeader, cfg.APIKey)
	}
	if correlationID, ok := observability.CorrelationIDFromContext(ctx); ok {
		req.SetHeader("X-Request-ID", correlationID)
	}

	response, err := req.Post(cfg.BaseURL + cfg.QuotePath)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, 0, classifyTransportError(cfg.ID, ctxErr)
		}
		return nil, 0, classifyTransportError(cfg.ID, err)
	}
	if response == nil {
		return nil, 0, &ProviderError{
			Kind:       KindNetworkError,
			ProviderID: cfg.ID,
			Message:    "provider returned empty response",
			Transient:  true,
		}
	}

	statusCode := response.StatusCode()
	if statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices {
		return response.Body(), statusCode, nil
	}

	c.logger.Debug("provider returned non-success status",
		zap.String("provider", cfg.ID),
		zap.Int("status", statusCode),
		zap.String("body", truncate(response.Body())),
	)
	return nil, statusCode, classifyStatus(cfg.ID, statusCode)
}

func truncate(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxLoggedBodyLength {
		return s[:maxLoggedBodyLength] + "..."
	}
	return s
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
