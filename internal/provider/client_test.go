package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/kursadbilgin/quote-engine/internal/domain"
	"github.com/kursadbilgin/quote-engine/internal/observability"
	"github.com/kursadbilgin/quote-engine/internal/ratelimit"
)

type countingLimiter struct {
	calls atomic.Int32
	err   error
}

func (l *countingLimiter) Acquire(context.Context) (time.Time, error) {
	l.calls.Add(1)
	if l.err != nil {
		return time.Time{}, l.err
	}
	return time.Now(), nil
}

// blockingLimiter never grants a token and reports the context error.
type blockingLimiter struct{}

func (blockingLimiter) Acquire(ctx context.Context) (time.Time, error) {
	<-ctx.Done()
	return time.Time{}, fmt.Errorf("%w: %w", ratelimit.ErrAcquireCanceled, ctx.Err())
}

type fakeLimiterSource struct {
	limiter ratelimit.Limiter
	err     error
	calls   atomic.Int32
}

func (s *fakeLimiterSource) For(domain.ProviderConfig) (ratelimit.Limiter, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return s.limiter, nil
}

func testCriteria() domain.QuoteCriteria {
	return domain.QuoteCriteria{
		Applicant: domain.Applicant{
			FirstName:   "Dana",
			LastName:    "Reyes",
			DateOfBirth: "1985-06-15",
			Gender:      domain.GenderFemale,
			TobaccoUse:  false,
			HealthClass: "preferred",
		},
		CoverageType:   domain.CoverageTermLife,
		CoverageAmount: 500000,
		TermLength:     20,
		PaymentMode:    domain.PaymentMonthly,
		EffectiveDate:  "2026-04-01",
		Location: domain.Location{
			State:   "TX",
			ZipCode: "73301",
		},
	}
}

func testProviderConfig(baseURL string) domain.ProviderConfig {
	return domain.ProviderConfig{
		ID:                     "acme",
		DisplayName:            "Acme Life",
		Rating:                 "A+",
		BaseURL:                baseURL,
		Adapter:                domain.AdapterStandard,
		QuotePath:              domain.DefaultQuotePath,
		IsActive:               true,
		SupportedCoverageTypes: []domain.CoverageType{domain.CoverageTermLife},
		Priority:               10,
		RateLimit:              domain.RateLimit{RequestsPerSecond: 100, BurstLimit: 10},
		Timeout:                2 * time.Second,
		RetryConfig: domain.RetryConfig{
			MaxRetries:        2,
			BackoffMultiplier: 2,
			InitialDelay:      10 * time.Millisecond,
		},
	}
}

func newTestClient(t *testing.T, limiter ratelimit.Limiter) (*Client, *[]time.Duration) {
	t.Helper()

	if limiter == nil {
		limiter = &countingLimiter{}
	}

	client, err := NewClientWithResty(resty.New(), &fakeLimiterSource{limiter: limiter}, nil, nil)
	if err != nil {
		t.Fatalf("NewClientWithResty() error = %v", err)
	}

	var mu sync.Mutex
	delays := make([]time.Duration, 0)
	client.sleep = func(ctx context.Context, d time.Duration) error {
		mu.Lock()
		delays = append(delays, d)
		mu.Unlock()
		return ctx.Err()
	}

	return client, &delays
}

func TestClientInvokeSuccess(t *testing.T) {
	t.Parallel()

	var (
		gotBody    standardRequest
		gotPath    string
		gotAPIKey  string
		gotAuth    string
		gotRequest string
	)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		gotPath = r.URL.Path
		gotAPIKey = r.Header.Get("X-API-Key")
		gotAuth = r.Header.Get("Authorization")
		gotRequest = r.Header.Get("X-Request-ID")

		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("failed to decode request body: %v", err)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"premium":{"monthly":42.1234},"coverageAmount":500000,"termYears":20,"medicalExam":true,"convertible":true}`))
	}))
	defer server.Close()

	client, _ := newTestClient(t, nil)
	cfg := testProviderConfig(server.URL)
	cfg.APIKey = "secret-key"

	ctx := observability.WithCorrelationID(context.Background(), "cid-1")
	resp, err := client.Invoke(ctx, cfg, testCriteria())
	if err != nil {
		t.Fatalf("Invoke() unexpected error: %v", err)
	}

	if resp.Attempts != 1 {
		t.Fatalf("Attempts = %d, want 1", resp.Attempts)
	}
	if resp.Mocked {
		t.Fatal("Mocked = true, want false")
	}
	if resp.Quote.MonthlyPremium != 42.12 {
		t.Fatalf("MonthlyPremium = %v, want 42.12", resp.Quote.MonthlyPremium)
	}
	if resp.Quote.Provider.ID != "acme" || resp.Quote.Provider.DisplayName != "Acme Life" {
		t.Fatalf("Provider = %+v, want acme ref", resp.Quote.Provider)
	}
	if resp.Quote.TermLength == nil || *resp.Quote.TermLength != 20 {
		t.Fatalf("TermLength = %v, want 20", resp.Quote.TermLength)
	}
	if !resp.Quote.MedicalExamRequired || !resp.Quote.ConversionOption {
		t.Fatalf("quote flags = %+v, want exam and conversion", resp.Quote)
	}

	if gotPath != "/quotes" {
		t.Fatalf("path = %q, want /quotes", gotPath)
	}
	if gotAPIKey != "secret-key" {
		t.Fatalf("X-API-Key = %q, want secret-key", gotAPIKey)
	}
	if gotAuth != "" {
		t.Fatalf("Authorization = %q, want empty", gotAuth)
	}
	if gotRequest != "cid-1" {
		t.Fatalf("X-Request-ID = %q, want cid-1", gotRequest)
	}
	if gotBody.Product.FaceAmount != 500000 || gotBody.Product.Type != "term_life" {
		t.Fatalf("request product = %+v", gotBody.Product)
	}
	if gotBody.Location.State != "TX" {
		t.Fatalf("request state = %q, want TX", gotBody.Location.State)
	}
}

func TestClientInvokeAuthHeaderTakesPrecedence(t *testing.T) {
	t.Parallel()

	var gotAuth, gotAPIKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotAPIKey = r.Header.Get("X-API-Key")
		_, _ = w.Write([]byte(`{"premium":{"monthly":10},"coverageAmount":500000}`))
	}))
	defer server.Close()

	client, _ := newTestClient(t, nil)
	cfg := testProviderConfig(server.URL)
	cfg.APIKey = "ignored"
	cfg.AuthHeader = "Bearer token-1"

	if _, err := client.Invoke(context.Background(), cfg, testCriteria()); err != nil {
		t.Fatalf("Invoke() unexpected error: %v", err)
	}
	if gotAuth != "Bearer token-1" {
		t.Fatalf("Authorization = %q, want Bearer token-1", gotAuth)
	}
	if gotAPIKey != "" {
		t.Fatalf("X-API-Key = %q, want empty", gotAPIKey)
	}
}

func TestClientInvokeStatusClassification(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name          string
		statusCode    int
		wantKind      ErrorKind
		wantTransient bool
		wantAttempts  int
	}{
		{name: "too many requests is retried as rate limited", statusCode: http.StatusTooManyRequests, wantKind: KindRateLimited, wantTransient: true, wantAttempts: 3},
		{name: "bad request is not retried", statusCode: http.StatusBadRequest, wantKind: KindHTTPError, wantTransient: false, wantAttempts: 1},
		{name: "internal server error is retried", statusCode: http.StatusInternalServerError, wantKind: KindHTTPError, wantTransient: true, wantAttempts: 3},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var hits atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				hits.Add(1)
				w.WriteHeader(tc.statusCode)
				_, _ = w.Write([]byte("provider failed"))
			}))
			defer server.Close()

			client, _ := newTestClient(t, nil)
			_, err := client.Invoke(context.Background(), testProviderConfig(server.URL), testCriteria())
			if err == nil {
				t.Fatal("expected error")
			}

			var providerErr *ProviderError
			if !errors.As(err, &providerErr) {
				t.Fatalf("expected ProviderError, got %T", err)
			}
			if providerErr.Kind != tc.wantKind {
				t.Fatalf("Kind = %q, want %q", providerErr.Kind, tc.wantKind)
			}
			if got := IsTransient(err); got != tc.wantTransient {
				t.Fatalf("IsTransient() = %v, want %v", got, tc.wantTransient)
			}
			if providerErr.StatusCode != tc.statusCode {
				t.Fatalf("StatusCode = %d, want %d", providerErr.StatusCode, tc.statusCode)
			}
			if providerErr.Attempts != tc.wantAttempts {
				t.Fatalf("Attempts = %d, want %d", providerErr.Attempts, tc.wantAttempts)
			}
			if got := int(hits.Load()); got != tc.wantAttempts {
				t.Fatalf("server hits = %d, want %d", got, tc.wantAttempts)
			}
		})
	}
}

func TestClientInvokeRetriesWithBackoffThenSucceeds(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"premium":{"monthly":30},"coverageAmount":500000}`))
	}))
	defer server.Close()

	limiter := &countingLimiter{}
	client, delays := newTestClient(t, limiter)

	cfg := testProviderConfig(server.URL)
	cfg.RetryConfig = domain.RetryConfig{MaxRetries: 3, BackoffMultiplier: 3, InitialDelay: 20 * time.Millisecond}

	resp, err := client.Invoke(context.Background(), cfg, testCriteria())
	if err != nil {
		t.Fatalf("Invoke() unexpected error: %v", err)
	}
	if resp.Attempts != 3 {
		t.Fatalf("Attempts = %d, want 3", resp.Attempts)
	}

	want := []time.Duration{20 * time.Millisecond, 60 * time.Millisecond}
	if len(*delays) != len(want) {
		t.Fatalf("delays = %v, want %v", *delays, want)
	}
	for i := range want {
		if (*delays)[i] != want[i] {
			t.Fatalf("delays[%d] = %v, want %v", i, (*delays)[i], want[i])
		}
	}

	// one token per network attempt
	if got := limiter.calls.Load(); got != 3 {
		t.Fatalf("limiter acquisitions = %d, want 3", got)
	}
}

func TestClientInvokeStopsWhenBackoffWouldExceedTimeout(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client, delays := newTestClient(t, nil)
	cfg := testProviderConfig(server.URL)
	cfg.Timeout = 200 * time.Millisecond
	cfg.RetryConfig = domain.RetryConfig{MaxRetries: 5, BackoffMultiplier: 2, InitialDelay: time.Second}

	_, err := client.Invoke(context.Background(), cfg, testCriteria())
	if err == nil {
		t.Fatal("expected error")
	}
	if got := hits.Load(); got != 1 {
		t.Fatalf("server hits = %d, want 1", got)
	}
	if len(*delays) != 0 {
		t.Fatalf("delays = %v, want none", *delays)
	}

	var providerErr *ProviderError
	if !errors.As(err, &providerErr) {
		t.Fatalf("expected ProviderError, got %T", err)
	}
	if providerErr.Attempts != 1 {
		t.Fatalf("Attempts = %d, want 1", providerErr.Attempts)
	}
}

func TestClientInvokeMappingErrorIsNotRetried(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`{"coverageAmount":500000}`))
	}))
	defer server.Close()

	client, _ := newTestClient(t, nil)
	_, err := client.Invoke(context.Background(), testProviderConfig(server.URL), testCriteria())
	if err == nil {
		t.Fatal("expected mapping error")
	}
	if got := KindOf(err); got != KindMappingError {
		t.Fatalf("KindOf() = %q, want %q", got, KindMappingError)
	}
	if IsTransient(err) {
		t.Fatal("mapping error should not be transient")
	}
	if got := hits.Load(); got != 1 {
		t.Fatalf("server hits = %d, want 1", got)
	}
}

func TestClientInvokeTimeout(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(500 * time.Millisecond):
		}
		_, _ = w.Write([]byte(`{"premium":{"monthly":30},"coverageAmount":500000}`))
	}))
	defer server.Close()

	client, _ := newTestClient(t, nil)
	cfg := testProviderConfig(server.URL)
	cfg.Timeout = 50 * time.Millisecond
	cfg.RetryConfig.MaxRetries = 0

	started := time.Now()
	_, err := client.Invoke(context.Background(), cfg, testCriteria())
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if elapsed := time.Since(started); elapsed > 400*time.Millisecond {
		t.Fatalf("Invoke() took %v, want it bounded by provider timeout", elapsed)
	}
	if got := KindOf(err); got != KindTimeout {
		t.Fatalf("KindOf() = %q, want %q", got, KindTimeout)
	}
	if !IsTransient(err) {
		t.Fatal("timeout should be transient")
	}
}

func TestClientInvokeRateLimiterExhausted(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer server.Close()

	limiter := &countingLimiter{err: ratelimit.ErrAcquireCanceled}
	client, _ := newTestClient(t, limiter)

	_, err := client.Invoke(context.Background(), testProviderConfig(server.URL), testCriteria())
	if got := KindOf(err); got != KindRateLimited {
		t.Fatalf("KindOf() = %q, want %q", got, KindRateLimited)
	}
	if got := hits.Load(); got != 0 {
		t.Fatalf("server hits = %d, want 0", got)
	}
}

func TestClientInvokeTimeoutWhileWaitingForToken(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer server.Close()

	client, _ := newTestClient(t, blockingLimiter{})
	cfg := testProviderConfig(server.URL)
	cfg.Timeout = 5 * time.Millisecond

	_, err := client.Invoke(context.Background(), cfg, testCriteria())
	if got := KindOf(err); got != KindTimeout {
		t.Fatalf("KindOf() = %q, want %q", got, KindTimeout)
	}
	if got := hits.Load(); got != 0 {
		t.Fatalf("server hits = %d, want 0", got)
	}
}

func TestClientInvokeMockModeSkipsNetworkAndLimiter(t *testing.T) {
	t.Parallel()

	limiter := &countingLimiter{}
	source := &fakeLimiterSource{limiter: limiter}
	client, err := NewClientWithResty(resty.New(), source, nil, nil)
	if err != nil {
		t.Fatalf("NewClientWithResty() error = %v", err)
	}

	cfg := testProviderConfig("")
	cfg.MockMode = true

	first, err := client.Invoke(context.Background(), cfg, testCriteria())
	if err != nil {
		t.Fatalf("Invoke() unexpected error: %v", err)
	}
	second, err := client.Invoke(context.Background(), cfg, testCriteria())
	if err != nil {
		t.Fatalf("Invoke() unexpected error: %v", err)
	}

	if !first.Mocked {
		t.Fatal("Mocked = false, want true")
	}
	if first.Quote.MonthlyPremium != second.Quote.MonthlyPremium {
		t.Fatalf("mock premium not deterministic: %v != %v", first.Quote.MonthlyPremium, second.Quote.MonthlyPremium)
	}
	if source.calls.Load() != 0 || limiter.calls.Load() != 0 {
		t.Fatalf("limiter touched in mock mode: source=%d acquire=%d", source.calls.Load(), limiter.calls.Load())
	}
}

func TestClientInvokeInactiveProvider(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, nil)
	cfg := testProviderConfig("http://127.0.0.1:1")
	cfg.IsActive = false

	_, err := client.Invoke(context.Background(), cfg, testCriteria())
	if got := KindOf(err); got != KindProviderInactive {
		t.Fatalf("KindOf() = %q, want %q", got, KindProviderInactive)
	}
}

func TestClientInvokeCanceledContext(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer server.Close()
	defer close(release)

	client, _ := newTestClient(t, nil)
	cfg := testProviderConfig(server.URL)
	cfg.RetryConfig.MaxRetries = 0

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	_, err := client.Invoke(ctx, cfg, testCriteria())
	if got := KindOf(err); got != KindCanceled {
		t.Fatalf("KindOf() = %q, want %q", got, KindCanceled)
	}
	if IsTransient(err) {
		t.Fatal("canceled invocation should not be transient")
	}
}

func TestNewClientWithRestyRequiresDependencies(t *testing.T) {
	t.Parallel()

	if _, err := NewClientWithResty(nil, &fakeLimiterSource{}, nil, nil); err == nil {
		t.Fatal("expected error for nil resty client")
	}
	if _, err := NewClientWithResty(resty.New(), nil, nil, nil); err == nil {
		t.Fatal("expected error for nil limiter source")
	}
}
