package events

import (
	"context"
	"fmt"

	"github.com/kursadbilgin/quote-engine/internal/domain"
)

const (
	// ExchangeName is the durable topic exchange completion events go to.
	ExchangeName = "quote.events"

	routingKeyPrefix = "quote_request"
)

// Publisher announces terminal quote requests.
type Publisher interface {
	Publish(ctx context.Context, event QuoteRequestEvent) error
	Close() error
}

// RoutingKey returns the topic routing key for a status, e.g. quote_request.success.
func RoutingKey(status domain.RequestStatus) string {
	return fmt.Sprintf("%s.%s", routingKeyPrefix, status)
}

// NopPublisher drops every event. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, QuoteRequestEvent) error { return nil }

func (NopPublisher) Close() error { return nil }
