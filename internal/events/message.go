package events

import (
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/quote-engine/internal/domain"
)

// QuoteRequestEvent is the broker payload emitted once a request row turns terminal.
type QuoteRequestEvent struct {
	RequestID          string               `json:"requestId"`
	UserID             *string              `json:"userId,omitempty"`
	Status             domain.RequestStatus `json:"status"`
	CoverageType       domain.CoverageType  `json:"coverageType"`
	ProvidersRequested []string             `json:"providersRequested"`
	ProvidersResponded []string             `json:"providersResponded"`
	QuoteCount         int                  `json:"quoteCount"`
	BestMonthlyPremium *float64             `json:"bestMonthlyPremium,omitempty"`
	ErrorMessage       *string              `json:"errorMessage,omitempty"`
	CompletedAt        time.Time            `json:"completedAt"`
}

// NewQuoteRequestEvent builds the event for a completed audit row. Quotes are
// expected in aggregated order, cheapest first.
func NewQuoteRequestEvent(r domain.ExternalQuoteRequest) QuoteRequestEvent {
	event := QuoteRequestEvent{
		RequestID:          r.RequestID,
		UserID:             r.UserID,
		Status:             r.Status,
		CoverageType:       r.RequestData.CoverageType,
		ProvidersRequested: r.ProvidersRequested,
		ProvidersResponded: r.ProvidersResponded,
		QuoteCount:         len(r.ResponseData),
		ErrorMessage:       r.ErrorMessage,
		CompletedAt:        r.UpdatedAt.UTC(),
	}
	if len(r.ResponseData) > 0 {
		best := r.ResponseData[0].MonthlyPremium
		event.BestMonthlyPremium = &best
	}
	if event.ProvidersResponded == nil {
		event.ProvidersResponded = []string{}
	}
	return event
}

func (e QuoteRequestEvent) Validate() error {
	if strings.TrimSpace(e.RequestID) == "" {
		return fmt.Errorf("requestId is required")
	}
	if !e.Status.IsTerminal() {
		return fmt.Errorf("status must be terminal (got %q)", e.Status)
	}
	return nil
}
