package redis

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/kursadbilgin/quote-engine/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

func TestProviderStatsStoreRecordAndGet(t *testing.T) {
	t.Parallel()

	store := newTestStatsStore(t)
	ctx := context.Background()

	for _, success := range []bool{true, true, false} {
		if err := store.Record(ctx, "acme", success); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	stats, err := store.Get(ctx, "acme")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	want := domain.ProviderStats{ProviderID: "acme", SuccessfulRequests: 2, FailedRequests: 1, TotalRequests: 3}
	if stats != want {
		t.Fatalf("Get() = %+v, want %+v", stats, want)
	}
}

func TestProviderStatsStoreGetUnknownProviderIsZero(t *testing.T) {
	t.Parallel()

	store := newTestStatsStore(t)

	stats, err := store.Get(context.Background(), "never-called")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if stats.TotalRequests != 0 || stats.ProviderID != "never-called" {
		t.Fatalf("Get() = %+v, want zeroed stats", stats)
	}
}

func TestProviderStatsStoreConcurrentRecordKeepsTotalsConsistent(t *testing.T) {
	t.Parallel()

	store := newTestStatsStore(t)
	ctx := context.Background()

	const workers = 20
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := store.Record(ctx, "acme", i%2 == 0); err != nil {
				t.Errorf("Record() error = %v", err)
			}
		}(i)
	}
	wg.Wait()

	stats, err := store.Get(ctx, "acme")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if stats.TotalRequests != workers {
		t.Fatalf("TotalRequests = %d, want %d", stats.TotalRequests, workers)
	}
	if stats.SuccessfulRequests+stats.FailedRequests != stats.TotalRequests {
		t.Fatalf("successful+failed = %d, want %d", stats.SuccessfulRequests+stats.FailedRequests, stats.TotalRequests)
	}
}

func TestProviderStatsStoreList(t *testing.T) {
	t.Parallel()

	store := newTestStatsStore(t)
	ctx := context.Background()

	if err := store.Record(ctx, "acme", true); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if err := store.Record(ctx, "globex", false); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	stats, err := store.List(ctx, []string{"acme", "globex", "initech"})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(stats) != 3 {
		t.Fatalf("len(List()) = %d, want 3", len(stats))
	}
	if stats[0].SuccessfulRequests != 1 || stats[1].FailedRequests != 1 || stats[2].TotalRequests != 0 {
		t.Fatalf("List() = %+v", stats)
	}
}

func TestProviderStatsStoreResetAndValidation(t *testing.T) {
	t.Parallel()

	store := newTestStatsStore(t)
	ctx := context.Background()

	if err := store.Record(ctx, "", true); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("Record(empty) error = %v, want %v", err, domain.ErrValidation)
	}

	if err := store.Record(ctx, "acme", true); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if err := store.Reset(ctx, "acme"); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}

	stats, err := store.Get(ctx, "acme")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if stats.TotalRequests != 0 {
		t.Fatalf("TotalRequests = %d, want 0 after reset", stats.TotalRequests)
	}
}

func TestProviderStatsStoreRejectsCorruptCounter(t *testing.T) {
	t.Parallel()

	rdb, mr := newTestRedisClient(t)
	store, err := NewProviderStatsStore(rdb)
	if err != nil {
		t.Fatalf("NewProviderStatsStore() error = %v", err)
	}

	mr.HSet(statsKey("acme"), fieldTotal, "not-a-number")

	if _, err := store.Get(context.Background(), "acme"); err == nil {
		t.Fatal("Get() expected error for corrupt counter")
	}
}

func newTestStatsStore(t *testing.T) *ProviderStatsStore {
	t.Helper()

	rdb, _ := newTestRedisClient(t)
	store, err := NewProviderStatsStore(rdb)
	if err != nil {
		t.Fatalf("NewProviderStatsStore() error = %v", err)
	}
	return store
}

func newTestRedisClient(t *testing.T) (*goredis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run() error = %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := goredis.NewClient(&goredis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() {
		_ = rdb.Close()
	})

	return rdb, mr
}
