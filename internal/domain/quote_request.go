package domain

import (
	"fmt"
	"strings"
	"time"
)

// RequestStatus is the lifecycle state of an ExternalQuoteRequest audit row.
type RequestStatus string

const (
	RequestStatusPending RequestStatus = "pending"
	RequestStatusSuccess RequestStatus = "success"
	RequestStatusError   RequestStatus = "error"
)

func (s RequestStatus) String() string { return string(s) }

func (s RequestStatus) IsValid() bool {
	switch s {
	case RequestStatusPending, RequestStatusSuccess, RequestStatusError:
		return true
	}
	return false
}

// IsTerminal reports whether the status can never change again.
func (s RequestStatus) IsTerminal() bool {
	return s == RequestStatusSuccess || s == RequestStatusError
}

func ParseRequestStatusFromString(s string) (RequestStatus, error) {
	st := RequestStatus(strings.ToLower(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid status %q", ErrValidation, s)
	}
	return st, nil
}

// RequestPhase is the orchestrator state of one in-flight quote search.
type RequestPhase string

const (
	PhaseCreated     RequestPhase = "created"
	PhaseDispatching RequestPhase = "dispatching"
	PhaseAwaiting    RequestPhase = "awaiting"
	PhaseFinalizing  RequestPhase = "finalizing"
	PhaseSucceeded   RequestPhase = "succeeded"
	PhaseFailed      RequestPhase = "failed"
)

func (p RequestPhase) String() string { return string(p) }

// ExternalQuoteRequest is the append-only audit record of one quote search.
type ExternalQuoteRequest struct {
	ID                 string
	RequestID          string
	UserID             *string
	RequestData        QuoteCriteria
	ResponseData       []Quote
	Status             RequestStatus
	ProvidersRequested []string
	ProvidersResponded []string
	ErrorMessage       *string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// QuoteRequestOutcome is the terminal write applied to a pending row.
type QuoteRequestOutcome struct {
	Status             RequestStatus
	ResponseData       []Quote
	ProvidersResponded []string
	ErrorMessage       *string
}

func (o QuoteRequestOutcome) Validate(providersRequested []string) error {
	if !o.Status.IsTerminal() {
		return fmt.Errorf("%w: outcome status must be terminal (got %q)", ErrValidation, o.Status)
	}

	requested := make(map[string]struct{}, len(providersRequested))
	for _, id := range providersRequested {
		requested[id] = struct{}{}
	}
	for _, id := range o.ProvidersResponded {
		if _, ok := requested[id]; !ok {
			return fmt.Errorf("%w: provider %q responded but was not requested", ErrValidation, id)
		}
	}
	return nil
}

// IsStuck reports whether a pending row has outlived any possible request deadline.
func (r ExternalQuoteRequest) IsStuck(now time.Time, threshold time.Duration) bool {
	if r.Status != RequestStatusPending {
		return false
	}
	return now.Sub(r.UpdatedAt) > threshold
}
