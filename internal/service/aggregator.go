package service

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/kursadbilgin/quote-engine/internal/domain"
	"github.com/kursadbilgin/quote-engine/internal/provider"
)

// providerOutcome is the settled result of one provider invocation: exactly one
// of quote or err is set once settled.
type providerOutcome struct {
	quote    *domain.Quote
	err      error
	attempts int
	mocked   bool
	settled  bool
}

type aggregation struct {
	Quotes             []domain.Quote
	ProvidersResponded []string
	Failures           map[provider.ErrorKind]int
	FailedCount        int
}

// aggregate merges outcomes (indexed like providers) into the ranked quote list.
// Quotes are ordered by monthly premium, then provider priority, then provider id.
func aggregate(providers []domain.ProviderConfig, outcomes []providerOutcome) aggregation {
	result := aggregation{
		Quotes:             make([]domain.Quote, 0, len(providers)),
		ProvidersResponded: make([]string, 0, len(providers)),
		Failures:           make(map[provider.ErrorKind]int),
	}

	priority := make(map[string]int, len(providers))
	for i, cfg := range providers {
		priority[cfg.ID] = cfg.Priority
		if i >= len(outcomes) {
			result.FailedCount++
			result.Failures[provider.KindDeadlineExceeded]++
			continue
		}

		outcome := outcomes[i]
		if outcome.quote != nil && outcome.err == nil {
			quote := *outcome.quote
			quote.Provider.ID = cfg.ID
			result.Quotes = append(result.Quotes, quote)
			result.ProvidersResponded = append(result.ProvidersResponded, cfg.ID)
			continue
		}

		result.FailedCount++
		result.Failures[provider.KindOf(outcome.err)]++
	}

	slices.SortStableFunc(result.Quotes, func(a, b domain.Quote) int {
		if c := cmp.Compare(a.MonthlyPremium, b.MonthlyPremium); c != 0 {
			return c
		}
		if c := cmp.Compare(priority[a.Provider.ID], priority[b.Provider.ID]); c != 0 {
			return c
		}
		return strings.Compare(a.Provider.ID, b.Provider.ID)
	})

	return result
}

// errorSummary renders e.g. "3/3 providers failed: 2 timeouts, 1 rate-limited".
func (a aggregation) errorSummary(requested int) string {
	if a.FailedCount == 0 {
		return ""
	}

	type bucket struct {
		kind  provider.ErrorKind
		count int
	}
	buckets := make([]bucket, 0, len(a.Failures))
	for kind, count := range a.Failures {
		buckets = append(buckets, bucket{kind: kind, count: count})
	}
	slices.SortFunc(buckets, func(x, y bucket) int {
		if c := cmp.Compare(y.count, x.count); c != 0 {
			return c
		}
		return strings.Compare(string(x.kind), string(y.kind))
	})

	parts := make([]string, 0, len(buckets))
	for _, b := range buckets {
		parts = append(parts, fmt.Sprintf("%d %s", b.count, failureLabel(b.kind, b.count)))
	}

	return fmt.Sprintf("%d/%d providers failed: %s", a.FailedCount, requested, strings.Join(parts, ", "))
}

func failureLabel(kind provider.ErrorKind, count int) string {
	plural := count != 1
	switch kind {
	case provider.KindTimeout:
		return pluralize("timeout", plural)
	case provider.KindRateLimited:
		return "rate-limited"
	case provider.KindHTTPError:
		return pluralize("HTTP error", plural)
	case provider.KindNetworkError:
		return pluralize("network error", plural)
	case provider.KindMappingError:
		return pluralize("invalid response", plural)
	case provider.KindProviderInactive:
		return "inactive"
	case provider.KindCanceled:
		return "canceled"
	case provider.KindDeadlineExceeded:
		return "past request deadline"
	default:
		return pluralize("other error", plural)
	}
}

func pluralize(word string, plural bool) string {
	if plural {
		return word + "s"
	}
	return word
}
