package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kursadbilgin/quote-engine/internal/domain"
)

func TestGormProviderConfigRepoCreateAndGet(t *testing.T) {
	t.Parallel()

	repo := NewGormProviderConfigRepo(newTestDB(t))
	ctx := context.Background()

	p := testProvider("acme", 10)
	if err := repo.Create(ctx, &p); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := repo.GetByID(ctx, "acme")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Timeout != 3*time.Second {
		t.Fatalf("Timeout = %v, want 3s", got.Timeout)
	}
	if got.RetryConfig.InitialDelay != 250*time.Millisecond {
		t.Fatalf("InitialDelay = %v, want 250ms", got.RetryConfig.InitialDelay)
	}
	if len(got.SupportedCoverageTypes) != 2 || got.SupportedCoverageTypes[1] != domain.CoverageWholeLife {
		t.Fatalf("SupportedCoverageTypes = %v", got.SupportedCoverageTypes)
	}
	if got.RateLimit.BurstLimit != 10 || got.RateLimit.RequestsPerSecond != 5 {
		t.Fatalf("RateLimit = %+v", got.RateLimit)
	}

	dup := testProvider("acme", 20)
	if err := repo.Create(ctx, &dup); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("Create(duplicate) error = %v, want %v", err, domain.ErrConflict)
	}

	if _, err := repo.GetByID(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("GetByID(missing) error = %v, want %v", err, domain.ErrNotFound)
	}
}

func TestGormProviderConfigRepoUpdatePersistsZeroValues(t *testing.T) {
	t.Parallel()

	repo := NewGormProviderConfigRepo(newTestDB(t))
	ctx := context.Background()

	p := testProvider("acme", 10)
	if err := repo.Create(ctx, &p); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	p.IsActive = false
	p.RetryConfig.MaxRetries = 0
	p.Rating = ""
	if err := repo.Update(ctx, &p); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	got, err := repo.GetByID(ctx, "acme")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.IsActive || got.RetryConfig.MaxRetries != 0 || got.Rating != "" {
		t.Fatalf("zero values not persisted: %+v", got)
	}

	missing := testProvider("ghost", 10)
	if err := repo.Update(ctx, &missing); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Update(missing) error = %v, want %v", err, domain.ErrNotFound)
	}
}

func TestGormProviderConfigRepoListActiveOrdering(t *testing.T) {
	t.Parallel()

	repo := NewGormProviderConfigRepo(newTestDB(t))
	ctx := context.Background()

	inactive := testProvider("zeta", 1)
	inactive.IsActive = false

	for _, p := range []domain.ProviderConfig{
		testProvider("globex", 20),
		testProvider("beta", 10),
		testProvider("alpha", 10),
		inactive,
	} {
		p := p
		if err := repo.Create(ctx, &p); err != nil {
			t.Fatalf("Create(%s) error = %v", p.ID, err)
		}
	}

	active, err := repo.ListActive(ctx)
	if err != nil {
		t.Fatalf("ListActive() error = %v", err)
	}

	want := []string{"alpha", "beta", "globex"}
	if len(active) != len(want) {
		t.Fatalf("len(ListActive()) = %d, want %d", len(active), len(want))
	}
	for i, id := range want {
		if active[i].ID != id {
			t.Fatalf("ListActive()[%d] = %q, want %q", i, active[i].ID, id)
		}
	}

	all, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 4 || all[0].ID != "zeta" {
		t.Fatalf("List() = %d rows, first %q; want 4 rows starting with zeta", len(all), all[0].ID)
	}
}

func TestGormProviderConfigRepoUpsert(t *testing.T) {
	t.Parallel()

	repo := NewGormProviderConfigRepo(newTestDB(t))
	ctx := context.Background()

	p := testProvider("acme", 10)
	if err := repo.Upsert(ctx, &p); err != nil {
		t.Fatalf("Upsert(insert) error = %v", err)
	}

	p.DisplayName = "Acme Mutual"
	p.Priority = 5
	if err := repo.Upsert(ctx, &p); err != nil {
		t.Fatalf("Upsert(update) error = %v", err)
	}

	got, err := repo.GetByID(ctx, "acme")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.DisplayName != "Acme Mutual" || got.Priority != 5 {
		t.Fatalf("Upsert did not overwrite: %+v", got)
	}

	all, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("len(List()) = %d, want 1", len(all))
	}
}
