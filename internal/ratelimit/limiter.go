package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// ErrAcquireCanceled is returned when the caller's context ends before a token is granted.
var ErrAcquireCanceled = errors.New("rate limiter acquire canceled")

// Limiter admits or delays calls to a single provider.
type Limiter interface {
	Acquire(ctx context.Context) (time.Time, error)
}

var _ Limiter = (*TokenBucket)(nil)

// TokenBucket holds burst tokens and refills at requestsPerSecond.
type TokenBucket struct {
	limiter *rate.Limiter
	now     func() time.Time
}

func NewTokenBucket(requestsPerSecond float64, burst int) (*TokenBucket, error) {
	if requestsPerSecond <= 0 {
		return nil, fmt.Errorf("requests per second must be > 0")
	}
	if burst <= 0 {
		return nil, fmt.Errorf("burst must be > 0")
	}

	return &TokenBucket{
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
		now:     time.Now,
	}, nil
}

// Acquire blocks until a token is available. It fails fast when the token
// cannot be granted before the context deadline.
func (b *TokenBucket) Acquire(ctx context.Context) (time.Time, error) {
	if b == nil || b.limiter == nil {
		return time.Time{}, fmt.Errorf("rate limiter is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if err := b.limiter.Wait(ctx); err != nil {
		return time.Time{}, fmt.Errorf("%w: %w", ErrAcquireCanceled, err)
	}
	return b.now(), nil
}

// Retune changes rate and burst in place, keeping the current token balance.
func (b *TokenBucket) Retune(requestsPerSecond float64, burst int) {
	if b == nil || b.limiter == nil {
		return
	}
	if requestsPerSecond > 0 && rate.Limit(requestsPerSecond) != b.limiter.Limit() {
		b.limiter.SetLimit(rate.Limit(requestsPerSecond))
	}
	if burst > 0 && burst != b.limiter.Burst() {
		b.limiter.SetBurst(burst)
	}
}

func (b *TokenBucket) Limit() float64 {
	return float64(b.limiter.Limit())
}

func (b *TokenBucket) Burst() int {
	return b.limiter.Burst()
}
