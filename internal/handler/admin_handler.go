package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/quote-engine/internal/domain"
	"github.com/kursadbilgin/quote-engine/internal/repository"
	"github.com/kursadbilgin/quote-engine/internal/service"
)

type ProviderAdminService interface {
	List(ctx context.Context) ([]domain.ProviderConfig, error)
	Get(ctx context.Context, id string) (*domain.ProviderConfig, error)
	Create(ctx context.Context, cfg *domain.ProviderConfig) error
	Update(ctx context.Context, id string, cfg *domain.ProviderConfig, opts service.ProviderUpdateOptions) error
	Test(ctx context.Context, id string) (*service.ProviderTestResult, error)
	Stats(ctx context.Context, id string) (domain.ProviderStats, error)
	ResetStats(ctx context.Context, id string) error
	AllStats(ctx context.Context) ([]domain.ProviderStats, error)
}

type QuoteRequestQueryService interface {
	List(ctx context.Context, params service.QuoteRequestListParams) ([]domain.ExternalQuoteRequest, int64, error)
	Get(ctx context.Context, requestID string) (*domain.ExternalQuoteRequest, error)
	StuckThreshold() time.Duration
}

type AdminHandler struct {
	providers ProviderAdminService
	requests  QuoteRequestQueryService
	now       func() time.Time
}

func NewAdminHandler(providers ProviderAdminService, requests QuoteRequestQueryService) (*AdminHandler, error) {
	if providers == nil {
		return nil, fmt.Errorf("provider admin service is required")
	}
	if requests == nil {
		return nil, fmt.Errorf("quote request query service is required")
	}
	return &AdminHandler{providers: providers, requests: requests, now: time.Now}, nil
}

func RegisterAdminRoutes(router fiber.Router, providers ProviderAdminService, requests QuoteRequestQueryService) error {
	h, err := NewAdminHandler(providers, requests)
	if err != nil {
		return err
	}

	admin := router.Group("/v1/admin")
	admin.Get("/quote-requests", h.ListQuoteRequests)
	admin.Get("/quote-requests/:requestId", h.GetQuoteRequest)
	admin.Get("/providers", h.ListProviders)
	admin.Post("/providers", h.CreateProvider)
	admin.Get("/providers/:id", h.GetProvider)
	admin.Put("/providers/:id", h.UpdateProvider)
	admin.Post("/providers/:id/test", h.TestProvider)
	admin.Get("/providers/:id/stats", h.GetProviderStats)
	admin.Delete("/providers/:id/stats", h.ResetProviderStats)
	admin.Get("/stats", h.ListProviderStats)

	return nil
}

type rateLimitBody struct {
	RequestsPerSecond float64 `json:"requestsPerSecond"`
	BurstLimit        int     `json:"burstLimit"`
}

type retryConfigBody struct {
	MaxRetries        int     `json:"maxRetries"`
	BackoffMultiplier float64 `json:"backoffMultiplier"`
	InitialDelayMS    int64   `json:"initialDelayMs"`
}

type providerRequest struct {
	ID                     string          `json:"id"`
	DisplayName            string          `json:"displayName"`
	Rating                 string          `json:"rating"`
	BaseURL                string          `json:"baseUrl"`
	APIKey                 string          `json:"apiKey"`
	AuthHeader             string          `json:"authHeader"`
	Adapter                string          `json:"adapter"`
	QuotePath              string          `json:"quotePath"`
	IsActive               *bool           `json:"isActive"`
	MockMode               bool            `json:"mockMode"`
	SupportedCoverageTypes []string        `json:"supportedCoverageTypes"`
	Priority               int             `json:"priority"`
	RateLimit              rateLimitBody   `json:"rateLimit"`
	TimeoutMS              int64           `json:"timeoutMs"`
	RetryConfig            retryConfigBody `json:"retryConfig"`

	// ClearCredentials drops the stored apiKey and authHeader on update when
	// the request leaves them empty. Without it they are kept.
	ClearCredentials bool `json:"clearCredentials"`
}

// providerResponse never echoes credentials.
type providerResponse struct {
	ID                     string          `json:"id"`
	DisplayName            string          `json:"displayName"`
	Rating                 string          `json:"rating,omitempty"`
	BaseURL                string          `json:"baseUrl,omitempty"`
	HasCredentials         bool            `json:"hasCredentials"`
	Adapter                string          `json:"adapter"`
	QuotePath              string          `json:"quotePath"`
	IsActive               bool            `json:"isActive"`
	MockMode               bool            `json:"mockMode"`
	SupportedCoverageTypes []string        `json:"supportedCoverageTypes"`
	Priority               int             `json:"priority"`
	RateLimit              rateLimitBody   `json:"rateLimit"`
	TimeoutMS              int64           `json:"timeoutMs"`
	RetryConfig            retryConfigBody `json:"retryConfig"`
	CreatedAt              time.Time       `json:"createdAt,omitempty"`
	UpdatedAt              time.Time       `json:"updatedAt,omitempty"`
}

type listProvidersResponse struct {
	Data []providerResponse `json:"data"`
}

type providerStatsResponse struct {
	ProviderID         string  `json:"providerId"`
	SuccessfulRequests int64   `json:"successfulRequests"`
	FailedRequests     int64   `json:"failedRequests"`
	TotalRequests      int64   `json:"totalRequests"`
	SuccessRate        float64 `json:"successRate"`
}

type listProviderStatsResponse struct {
	Data []providerStatsResponse `json:"data"`
}

type providerTestResponse struct {
	ProviderID string        `json:"providerId"`
	OK         bool          `json:"ok"`
	LatencyMS  int64         `json:"latencyMs"`
	ErrorKind  string        `json:"errorKind,omitempty"`
	Error      string        `json:"error,omitempty"`
	Attempts   int           `json:"attempts"`
	Mocked     bool          `json:"mocked"`
	Quote      *domain.Quote `json:"quote,omitempty"`
}

type quoteRequestResponse struct {
	ID                 string               `json:"id"`
	RequestID          string               `json:"requestId"`
	UserID             *string              `json:"userId,omitempty"`
	RequestData        domain.QuoteCriteria `json:"requestData"`
	ResponseData       []domain.Quote       `json:"responseData"`
	Status             string               `json:"status"`
	ProvidersRequested []string             `json:"providersRequested"`
	ProvidersResponded []string             `json:"providersResponded"`
	ErrorMessage       *string              `json:"errorMessage,omitempty"`
	Stuck              bool                 `json:"stuck"`
	CreatedAt          time.Time            `json:"createdAt"`
	UpdatedAt          time.Time            `json:"updatedAt"`
}

type listQuoteRequestsResponse struct {
	Data []quoteRequestResponse `json:"data"`
	Meta listMeta               `json:"meta"`
}

func (h *AdminHandler) ListQuoteRequests(c *fiber.Ctx) error {
	params, err := parseQuoteRequestListParams(c)
	if err != nil {
		return toHTTPError(err)
	}

	rows, total, err := h.requests.List(c.UserContext(), params)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(listQuoteRequestsResponse{
		Data: h.toQuoteRequestResponses(rows),
		Meta: listMeta{
			Page:     params.Page,
			PageSize: params.PageSize,
			Total:    total,
		},
	})
}

func (h *AdminHandler) GetQuoteRequest(c *fiber.Ctx) error {
	row, err := h.requests.Get(c.UserContext(), c.Params("requestId"))
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(h.toQuoteRequestResponse(row))
}

func (h *AdminHandler) ListProviders(c *fiber.Ctx) error {
	configs, err := h.providers.List(c.UserContext())
	if err != nil {
		return toHTTPError(err)
	}

	data := make([]providerResponse, 0, len(configs))
	for i := range configs {
		data = append(data, toProviderResponse(&configs[i]))
	}
	return c.Status(fiber.StatusOK).JSON(listProvidersResponse{Data: data})
}

func (h *AdminHandler) GetProvider(c *fiber.Ctx) error {
	cfg, err := h.providers.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(toProviderResponse(cfg))
}

func (h *AdminHandler) CreateProvider(c *fiber.Ctx) error {
	var req providerRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	cfg, err := req.toDomain()
	if err != nil {
		return toHTTPError(err)
	}
	if err := h.providers.Create(c.UserContext(), &cfg); err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusCreated).JSON(toProviderResponse(&cfg))
}

func (h *AdminHandler) UpdateProvider(c *fiber.Ctx) error {
	var req providerRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	cfg, err := req.toDomain()
	if err != nil {
		return toHTTPError(err)
	}
	opts := service.ProviderUpdateOptions{ClearCredentials: req.ClearCredentials}
	if err := h.providers.Update(c.UserContext(), c.Params("id"), &cfg, opts); err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(toProviderResponse(&cfg))
}

func (h *AdminHandler) TestProvider(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	result, err := h.providers.Test(c.UserContext(), id)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(providerTestResponse{
		ProviderID: strings.ToLower(id),
		OK:         result.OK,
		LatencyMS:  result.LatencyMS,
		ErrorKind:  string(result.ErrorKind),
		Error:      result.Error,
		Attempts:   result.Attempts,
		Mocked:     result.Mocked,
		Quote:      result.Quote,
	})
}

func (h *AdminHandler) GetProviderStats(c *fiber.Ctx) error {
	stats, err := h.providers.Stats(c.UserContext(), c.Params("id"))
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(toProviderStatsResponse(stats))
}

func (h *AdminHandler) ResetProviderStats(c *fiber.Ctx) error {
	if err := h.providers.ResetStats(c.UserContext(), c.Params("id")); err != nil {
		return toHTTPError(err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *AdminHandler) ListProviderStats(c *fiber.Ctx) error {
	all, err := h.providers.AllStats(c.UserContext())
	if err != nil {
		return toHTTPError(err)
	}

	data := make([]providerStatsResponse, 0, len(all))
	for _, stats := range all {
		data = append(data, toProviderStatsResponse(stats))
	}
	return c.Status(fiber.StatusOK).JSON(listProviderStatsResponse{Data: data})
}

func parseQuoteRequestListParams(c *fiber.Ctx) (service.QuoteRequestListParams, error) {
	params := repository.ListParams{
		Page:     c.QueryInt("page", defaultPage),
		PageSize: c.QueryInt("pageSize", defaultPageSize),
	}

	if params.Page < 1 || params.Page > repository.MaxPage {
		return service.QuoteRequestListParams{}, fmt.Errorf("%w: page must be between 1 and %d", domain.ErrValidation, repository.MaxPage)
	}
	if params.PageSize < 1 || params.PageSize > maxPageSize {
		return service.QuoteRequestListParams{}, fmt.Errorf("%w: pageSize must be between 1 and %d", domain.ErrValidation, maxPageSize)
	}

	if rawStatus := strings.TrimSpace(c.Query("status")); rawStatus != "" {
		status, err := domain.ParseRequestStatusFromString(rawStatus)
		if err != nil {
			return service.QuoteRequestListParams{}, err
		}
		params.Status = &status
	}

	if userID := strings.TrimSpace(c.Query("userId")); userID != "" {
		params.UserID = &userID
	}

	from, err := parseRFC3339Query(c.Query("from"), "from")
	if err != nil {
		return service.QuoteRequestListParams{}, err
	}
	to, err := parseRFC3339Query(c.Query("to"), "to")
	if err != nil {
		return service.QuoteRequestListParams{}, err
	}
	params.From = from
	params.To = to

	return service.QuoteRequestListParams{
		ListParams: params,
		Stuck:      c.QueryBool("stuck", false),
	}, nil
}

func (r providerRequest) toDomain() (domain.ProviderConfig, error) {
	active := true
	if r.IsActive != nil {
		active = *r.IsActive
	}

	types := make([]domain.CoverageType, 0, len(r.SupportedCoverageTypes))
	for _, raw := range r.SupportedCoverageTypes {
		ct, err := domain.ParseCoverageType(raw)
		if err != nil {
			return domain.ProviderConfig{}, err
		}
		types = append(types, ct)
	}

	return domain.ProviderConfig{
		ID:                     r.ID,
		DisplayName:            r.DisplayName,
		Rating:                 r.Rating,
		BaseURL:                r.BaseURL,
		APIKey:                 r.APIKey,
		AuthHeader:             r.AuthHeader,
		Adapter:                domain.Adapter(r.Adapter),
		QuotePath:              r.QuotePath,
		IsActive:               active,
		MockMode:               r.MockMode,
		SupportedCoverageTypes: types,
		Priority:               r.Priority,
		RateLimit: domain.RateLimit{
			RequestsPerSecond: r.RateLimit.RequestsPerSecond,
			BurstLimit:        r.RateLimit.BurstLimit,
		},
		Timeout: time.Duration(r.TimeoutMS) * time.Millisecond,
		RetryConfig: domain.RetryConfig{
			MaxRetries:        r.RetryConfig.MaxRetries,
			BackoffMultiplier: r.RetryConfig.BackoffMultiplier,
			InitialDelay:      time.Duration(r.RetryConfig.InitialDelayMS) * time.Millisecond,
		},
	}, nil
}

func toProviderResponse(cfg *domain.ProviderConfig) providerResponse {
	if cfg == nil {
		return providerResponse{}
	}

	types := make([]string, 0, len(cfg.SupportedCoverageTypes))
	for _, ct := range cfg.SupportedCoverageTypes {
		types = append(types, ct.String())
	}

	return providerResponse{
		ID:                     cfg.ID,
		DisplayName:            cfg.DisplayName,
		Rating:                 cfg.Rating,
		BaseURL:                cfg.BaseURL,
		HasCredentials:         cfg.APIKey != "" || cfg.AuthHeader != "",
		Adapter:                cfg.Adapter.String(),
		QuotePath:              cfg.QuotePath,
		IsActive:               cfg.IsActive,
		MockMode:               cfg.MockMode,
		SupportedCoverageTypes: types,
		Priority:               cfg.Priority,
		RateLimit: rateLimitBody{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			BurstLimit:        cfg.RateLimit.BurstLimit,
		},
		TimeoutMS: cfg.Timeout.Milliseconds(),
		RetryConfig: retryConfigBody{
			MaxRetries:        cfg.RetryConfig.MaxRetries,
			BackoffMultiplier: cfg.RetryConfig.BackoffMultiplier,
			InitialDelayMS:    cfg.RetryConfig.InitialDelay.Milliseconds(),
		},
		CreatedAt: cfg.CreatedAt,
		UpdatedAt: cfg.UpdatedAt,
	}
}

func toProviderStatsResponse(stats domain.ProviderStats) providerStatsResponse {
	return providerStatsResponse{
		ProviderID:         stats.ProviderID,
		SuccessfulRequests: stats.SuccessfulRequests,
		FailedRequests:     stats.FailedRequests,
		TotalRequests:      stats.TotalRequests,
		SuccessRate:        stats.SuccessRate(),
	}
}

func (h *AdminHandler) toQuoteRequestResponses(rows []domain.ExternalQuoteRequest) []quoteRequestResponse {
	responses := make([]quoteRequestResponse, 0, len(rows))
	for i := range rows {
		responses = append(responses, h.toQuoteRequestResponse(&rows[i]))
	}
	return responses
}

func (h *AdminHandler) toQuoteRequestResponse(r *domain.ExternalQuoteRequest) quoteRequestResponse {
	if r == nil {
		return quoteRequestResponse{}
	}

	responseData := r.ResponseData
	if responseData == nil {
		responseData = []domain.Quote{}
	}

	return quoteRequestResponse{
		ID:                 r.ID,
		RequestID:          r.RequestID,
		UserID:             r.UserID,
		RequestData:        r.RequestData,
		ResponseData:       responseData,
		Status:             r.Status.String(),
		ProvidersRequested: nonNil(r.ProvidersRequested),
		ProvidersResponded: nonNil(r.ProvidersResponded),
		ErrorMessage:       r.ErrorMessage,
		Stuck:              r.IsStuck(h.now(), h.requests.StuckThreshold()),
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
	}
}
