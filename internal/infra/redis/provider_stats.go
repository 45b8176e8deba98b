package redis

import (
	"context"
	"fmt"
	"strconv"

	"github.com/kursadbilgin/quote-engine/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

const (
	statsKeyPrefix = "quote-engine:provider-stats:"

	fieldSuccessful = "successful"
	fieldFailed     = "failed"
	fieldTotal      = "total"
)

// ProviderStatsStore keeps running invocation counters, one hash per provider.
type ProviderStatsStore struct {
	client goredis.UniversalClient
}

func NewProviderStatsStore(client goredis.UniversalClient) (*ProviderStatsStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}

	return &ProviderStatsStore{client: client}, nil
}

// Record counts one finished invocation. The outcome counter and the total
// are incremented in a single MULTI/EXEC so readers never see them diverge.
func (s *ProviderStatsStore) Record(ctx context.Context, providerID string, success bool) error {
	if providerID == "" {
		return fmt.Errorf("%w: provider id is required", domain.ErrValidation)
	}

	field := fieldFailed
	if success {
		field = fieldSuccessful
	}

	key := statsKey(providerID)
	_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.HIncrBy(ctx, key, field, 1)
		pipe.HIncrBy(ctx, key, fieldTotal, 1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to record provider stats: %w", err)
	}

	return nil
}

// Get returns zeroed stats for providers that were never invoked.
func (s *ProviderStatsStore) Get(ctx context.Context, providerID string) (domain.ProviderStats, error) {
	values, err := s.client.HGetAll(ctx, statsKey(providerID)).Result()
	if err != nil {
		return domain.ProviderStats{}, fmt.Errorf("failed to read provider stats: %w", err)
	}

	return statsFromHash(providerID, values)
}

func (s *ProviderStatsStore) List(ctx context.Context, providerIDs []string) ([]domain.ProviderStats, error) {
	if len(providerIDs) == 0 {
		return []domain.ProviderStats{}, nil
	}

	cmds := make([]*goredis.MapStringStringCmd, len(providerIDs))
	_, err := s.client.Pipelined(ctx, func(pipe goredis.Pipeliner) error {
		for i, id := range providerIDs {
			cmds[i] = pipe.HGetAll(ctx, statsKey(id))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read provider stats: %w", err)
	}

	stats := make([]domain.ProviderStats, 0, len(providerIDs))
	for i, id := range providerIDs {
		st, err := statsFromHash(id, cmds[i].Val())
		if err != nil {
			return nil, err
		}
		stats = append(stats, st)
	}

	return stats, nil
}

// Reset drops the counters of one provider.
func (s *ProviderStatsStore) Reset(ctx context.Context, providerID string) error {
	if err := s.client.Del(ctx, statsKey(providerID)).Err(); err != nil {
		return fmt.Errorf("failed to reset provider stats: %w", err)
	}
	return nil
}

func statsKey(providerID string) string {
	return statsKeyPrefix + providerID
}

func statsFromHash(providerID string, values map[string]string) (domain.ProviderStats, error) {
	stats := domain.ProviderStats{ProviderID: providerID}

	for field, target := range map[string]*int64{
		fieldSuccessful: &stats.SuccessfulRequests,
		fieldFailed:     &stats.FailedRequests,
		fieldTotal:      &stats.TotalRequests,
	} {
		raw, ok := values[field]
		if !ok {
			continue
		}
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return domain.ProviderStats{}, fmt.Errorf("invalid %s counter for provider %s: %w", field, providerID, err)
		}
		*target = v
	}

	return stats, nil
}
