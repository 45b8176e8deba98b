package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/kursadbilgin/quote-engine/internal/domain"
	amqp "github.com/rabbitmq/amqp091-go"
)

func TestRoutingKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status domain.RequestStatus
		want   string
	}{
		{status: domain.RequestStatusSuccess, want: "quote_request.success"},
		{status: domain.RequestStatusError, want: "quote_request.error"},
	}

	for _, tt := range tests {
		if got := RoutingKey(tt.status); got != tt.want {
			t.Fatalf("RoutingKey(%q) = %q, want %q", tt.status, got, tt.want)
		}
	}
}

func TestNewQuoteRequestEvent(t *testing.T) {
	t.Parallel()

	completedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	row := domain.ExternalQuoteRequest{
		RequestID:          "req-1",
		RequestData:        domain.QuoteCriteria{CoverageType: domain.CoverageTermLife},
		Status:             domain.RequestStatusSuccess,
		ProvidersRequested: []string{"acme", "globex"},
		ProvidersResponded: []string{"acme"},
		ResponseData: []domain.Quote{
			{MonthlyPremium: 21.4},
			{MonthlyPremium: 30},
		},
		UpdatedAt: completedAt,
	}

	event := NewQuoteRequestEvent(row)
	if event.QuoteCount != 2 {
		t.Fatalf("QuoteCount = %d, want 2", event.QuoteCount)
	}
	if event.BestMonthlyPremium == nil || *event.BestMonthlyPremium != 21.4 {
		t.Fatalf("BestMonthlyPremium = %v, want 21.4", event.BestMonthlyPremium)
	}
	if event.CoverageType != domain.CoverageTermLife {
		t.Fatalf("CoverageType = %q", event.CoverageType)
	}
	if !event.CompletedAt.Equal(completedAt) {
		t.Fatalf("CompletedAt = %v, want %v", event.CompletedAt, completedAt)
	}
	if err := event.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}

func TestNewQuoteRequestEventFailedRequest(t *testing.T) {
	t.Parallel()

	msg := "2/2 providers failed: 2 timeouts"
	event := NewQuoteRequestEvent(domain.ExternalQuoteRequest{
		RequestID:          "req-2",
		Status:             domain.RequestStatusError,
		ProvidersRequested: []string{"acme", "globex"},
		ErrorMessage:       &msg,
	})

	if event.BestMonthlyPremium != nil {
		t.Fatalf("BestMonthlyPremium = %v, want nil", *event.BestMonthlyPremium)
	}
	if event.ProvidersResponded == nil {
		t.Fatal("ProvidersResponded should encode as an empty list")
	}

	raw, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	if decoded["errorMessage"] != msg {
		t.Fatalf("errorMessage = %v, want %q", decoded["errorMessage"], msg)
	}
	if _, ok := decoded["bestMonthlyPremium"]; ok {
		t.Fatal("bestMonthlyPremium should be omitted")
	}
}

func TestQuoteRequestEventValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		event   QuoteRequestEvent
		wantErr bool
	}{
		{name: "valid", event: QuoteRequestEvent{RequestID: "req-1", Status: domain.RequestStatusError}},
		{name: "missing request id", event: QuoteRequestEvent{Status: domain.RequestStatusSuccess}, wantErr: true},
		{name: "pending status", event: QuoteRequestEvent{RequestID: "req-1", Status: domain.RequestStatusPending}, wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.event.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewPublishing(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("x", 3600))
	event := QuoteRequestEvent{RequestID: "req-1", Status: domain.RequestStatusSuccess}

	publishing := newPublishing(event, []byte(`{}`), now)
	if publishing.DeliveryMode != amqp.Persistent {
		t.Fatalf("DeliveryMode = %d, want persistent", publishing.DeliveryMode)
	}
	if publishing.MessageId != "req-1" {
		t.Fatalf("MessageId = %q, want req-1", publishing.MessageId)
	}
	if publishing.Type != "quote_request.success" {
		t.Fatalf("Type = %q, want quote_request.success", publishing.Type)
	}
	if publishing.Timestamp.Location() != time.UTC {
		t.Fatal("Timestamp should be UTC")
	}
}

func TestPublisherGuards(t *testing.T) {
	t.Parallel()

	var nilPublisher *RabbitMQPublisher
	if err := nilPublisher.Publish(context.Background(), QuoteRequestEvent{}); err == nil {
		t.Fatal("expected error for nil publisher")
	}
	if err := nilPublisher.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if err := (NopPublisher{}).Publish(context.Background(), QuoteRequestEvent{}); err != nil {
		t.Fatalf("NopPublisher.Publish() error = %v", err)
	}

	if _, err := NewRabbitMQ(context.Background(), "  "); err == nil {
		t.Fatal("expected error for empty rabbitmq url")
	}
}
