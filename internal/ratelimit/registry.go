package ratelimit

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/kursadbilgin/quote-engine/internal/domain"
)

// Registry holds one long-lived token bucket per provider id, shared across
// every in-flight request.
type Registry struct {
	mu       sync.RWMutex
	limiters map[string]*registryEntry
}

// registryEntry remembers which config version the bucket was last tuned to.
type registryEntry struct {
	bucket  *TokenBucket
	version time.Time
}

func NewRegistry() *Registry {
	return &Registry{limiters: make(map[string]*registryEntry)}
}

// For returns the bucket for cfg.ID, creating it on first use. An existing
// bucket is retuned only when cfg is newer than the version it was tuned to,
// so a request holding an older snapshot can never raise the ceiling back.
func (r *Registry) For(cfg domain.ProviderConfig) (Limiter, error) {
	id := strings.TrimSpace(cfg.ID)
	if id == "" {
		return nil, fmt.Errorf("provider id is required")
	}

	r.mu.RLock()
	entry, ok := r.limiters[id]
	stale := ok && cfg.UpdatedAt.After(entry.version)
	r.mu.RUnlock()
	if ok && !stale {
		return entry.bucket, nil
	}

	return r.apply(id, cfg, false)
}

// Retune applies an admin write. Unlike For it also accepts a config with the
// same version as the current one.
func (r *Registry) Retune(cfg domain.ProviderConfig) error {
	id := strings.TrimSpace(cfg.ID)
	if id == "" {
		return fmt.Errorf("provider id is required")
	}
	_, err := r.apply(id, cfg, true)
	return err
}

func (r *Registry) apply(id string, cfg domain.ProviderConfig, allowSameVersion bool) (*TokenBucket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, ok := r.limiters[id]; ok {
		newer := cfg.UpdatedAt.After(entry.version)
		if newer || (allowSameVersion && cfg.UpdatedAt.Equal(entry.version)) {
			entry.bucket.Retune(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.BurstLimit)
			entry.version = cfg.UpdatedAt
		}
		return entry.bucket, nil
	}

	bucket, err := NewTokenBucket(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.BurstLimit)
	if err != nil {
		return nil, fmt.Errorf("provider %q: %w", id, err)
	}
	r.limiters[id] = &registryEntry{bucket: bucket, version: cfg.UpdatedAt}
	return bucket, nil
}

// Warm creates buckets for every config up front, typically at process start.
func (r *Registry) Warm(configs []domain.ProviderConfig) error {
	for _, cfg := range configs {
		if cfg.MockMode {
			continue
		}
		if _, err := r.For(cfg); err != nil {
			return err
		}
	}
	return nil
}

// Remove drops the bucket of a deactivated provider. In-flight calls keep the
// bucket they already hold.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.limiters, strings.TrimSpace(id))
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.limiters)
}
