package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kursadbilgin/quote-engine/internal/domain"
)

const sampleProviders = `
providers:
  - id: Acme
    displayName: Acme Life
    rating: A+
    baseUrl: https://quotes.acme.example/
    apiKey: ${ACME_TEST_KEY}
    coverageTypes: [term_life, Whole_Life]
    priority: 10
    rateLimit: {requestsPerSecond: 5, burstLimit: 10}
    timeout: 3s
    retry: {maxRetries: 2, backoffMultiplier: 2, initialDelay: 200ms}
  - id: sandbox
    displayName: Sandbox Mutual
    adapter: envelope
    active: false
    mockMode: true
    coverageTypes: [final_expense]
    priority: 50
    rateLimit: {requestsPerSecond: 1, burstLimit: 1}
    timeout: 1s
`

func TestParseProviders(t *testing.T) {
	t.Setenv("ACME_TEST_KEY", "secret-key")

	configs, err := ParseProviders([]byte(sampleProviders))
	if err != nil {
		t.Fatalf("ParseProviders() error = %v", err)
	}
	if len(configs) != 2 {
		t.Fatalf("providers = %d, want 2", len(configs))
	}

	acme := configs[0]
	if acme.ID != "acme" {
		t.Errorf("ID = %q, want normalized acme", acme.ID)
	}
	if acme.BaseURL != "https://quotes.acme.example" {
		t.Errorf("BaseURL = %q, want trailing slash trimmed", acme.BaseURL)
	}
	if acme.APIKey != "secret-key" {
		t.Errorf("APIKey = %q, want expanded env value", acme.APIKey)
	}
	if !acme.IsActive {
		t.Error("IsActive = false, want default true")
	}
	if acme.Adapter != domain.AdapterStandard || acme.QuotePath != domain.DefaultQuotePath {
		t.Errorf("Adapter/QuotePath = %s/%s, want defaults", acme.Adapter, acme.QuotePath)
	}
	if acme.Timeout != 3*time.Second {
		t.Errorf("Timeout = %s, want 3s", acme.Timeout)
	}
	if acme.RetryConfig.InitialDelay != 200*time.Millisecond || acme.RetryConfig.MaxRetries != 2 {
		t.Errorf("RetryConfig = %+v", acme.RetryConfig)
	}
	if !acme.Supports(domain.CoverageWholeLife) {
		t.Error("acme should support whole_life regardless of case")
	}

	sandbox := configs[1]
	if sandbox.IsActive {
		t.Error("sandbox IsActive = true, want false")
	}
	if !sandbox.MockMode || sandbox.BaseURL != "" {
		t.Errorf("sandbox MockMode/BaseURL = %v/%q", sandbox.MockMode, sandbox.BaseURL)
	}
	if sandbox.RetryConfig.BackoffMultiplier != 1 {
		t.Errorf("BackoffMultiplier = %v, want default 1", sandbox.RetryConfig.BackoffMultiplier)
	}
}

func TestParseProvidersRejectsInvalidEntries(t *testing.T) {
	testCases := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "missing coverage types",
			yaml:    "providers:\n  - {id: acme, displayName: Acme, baseUrl: https://a.example, priority: 1, rateLimit: {requestsPerSecond: 1, burstLimit: 1}, timeout: 1s}\n",
			wantErr: "coverage type",
		},
		{
			name:    "unknown coverage type",
			yaml:    "providers:\n  - {id: acme, displayName: Acme, mockMode: true, coverageTypes: [term_life, pet_life], priority: 1, rateLimit: {requestsPerSecond: 1, burstLimit: 1}, timeout: 1s}\n",
			wantErr: "invalid coverage type \"pet_life\"",
		},
		{
			name: "duplicate id",
			yaml: "providers:\n" +
				"  - {id: acme, displayName: Acme, mockMode: true, coverageTypes: [term_life], priority: 1, rateLimit: {requestsPerSecond: 1, burstLimit: 1}, timeout: 1s}\n" +
				"  - {id: ACME, displayName: Acme 2, mockMode: true, coverageTypes: [term_life], priority: 1, rateLimit: {requestsPerSecond: 1, burstLimit: 1}, timeout: 1s}\n",
			wantErr: "duplicate",
		},
		{
			name:    "bad timeout",
			yaml:    "providers:\n  - {id: acme, timeout: soon}\n",
			wantErr: "parse",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseProviders([]byte(tc.yaml))
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("ParseProviders() error = %v, want containing %q", err, tc.wantErr)
			}
		})
	}
}

func TestParseProvidersValidationIsWrapped(t *testing.T) {
	_, err := ParseProviders([]byte("providers:\n  - {id: x}\n"))
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("ParseProviders() error = %v, want ErrValidation", err)
	}
}

func TestLoadProvidersFromFile(t *testing.T) {
	t.Setenv("ACME_TEST_KEY", "k")

	path := filepath.Join(t.TempDir(), "providers.yaml")
	if err := os.WriteFile(path, []byte(sampleProviders), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	configs, err := LoadProviders(path)
	if err != nil {
		t.Fatalf("LoadProviders() error = %v", err)
	}
	if len(configs) != 2 {
		t.Fatalf("providers = %d, want 2", len(configs))
	}

	if _, err := LoadProviders(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
