package provider

import (
	"context"

	"github.com/kursadbilgin/quote-engine/internal/domain"
)

// Invoker is the outbound quote port for one provider call, retries included.
type Invoker interface {
	Invoke(ctx context.Context, cfg domain.ProviderConfig, criteria domain.QuoteCriteria) (*Response, error)
}

// Response stores provider call metadata alongside the normalized quote.
type Response struct {
	Quote      domain.Quote
	StatusCode int
	Attempts   int
	Mocked     bool
}

// Mapper translates between normalized criteria and one provider payload family.
type Mapper interface {
	BuildRequest(criteria domain.QuoteCriteria) any
	MapResponse(cfg domain.ProviderConfig, criteria domain.QuoteCriteria, body []byte) (domain.Quote, error)
}

// DefaultMappers returns the built-in mapper per adapter family.
func DefaultMappers() map[domain.Adapter]Mapper {
	return map[domain.Adapter]Mapper{
		domain.AdapterStandard: standardMapper{},
		domain.AdapterEnvelope: envelopeMapper{},
	}
}
