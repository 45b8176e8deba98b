package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// ErrorKind is the normalized failure reason of one provider invocation.
type ErrorKind string

const (
	KindTimeout          ErrorKind = "timeout"
	KindRateLimited      ErrorKind = "rate_limited"
	KindHTTPError        ErrorKind = "http_error"
	KindNetworkError     ErrorKind = "network_error"
	KindMappingError     ErrorKind = "mapping_error"
	KindProviderInactive ErrorKind = "provider_inactive"
	KindCanceled         ErrorKind = "canceled"
	KindDeadlineExceeded ErrorKind = "request_deadline_exceeded"
)

func (k ErrorKind) String() string { return string(k) }

// ProviderError classifies provider call failures as transient/permanent.
type ProviderError struct {
	Kind       ErrorKind
	ProviderID string
	StatusCode int
	Attempts   int
	Message    string
	Transient  bool
	Cause      error
}

func (e *ProviderError) Error() string {
	if e == nil {
		return "<nil>"
	}

	parts := make([]string, 0, 5)
	parts = append(parts, "provider error")

	if e.ProviderID != "" {
		parts = append(parts, fmt.Sprintf("provider=%s", e.ProviderID))
	}
	if e.Kind != "" {
		parts = append(parts, fmt.Sprintf("kind=%s", e.Kind))
	}
	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.StatusCode))
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		parts = append(parts, msg)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}

	return strings.Join(parts, ": ")
}

func (e *ProviderError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// IsTransient reports whether an error should be retried.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return providerErr.Transient
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	return false
}

// KindOf returns the error kind, or an empty kind for non-provider errors.
func KindOf(err error) ErrorKind {
	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return providerErr.Kind
	}
	return ""
}

func isTransientHTTPStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || (statusCode >= http.StatusInternalServerError && statusCode <= 599)
}

func classifyStatus(providerID string, statusCode int) *ProviderError {
	kind := KindHTTPError
	if statusCode == http.StatusTooManyRequests {
		kind = KindRateLimited
	}

	return &ProviderError{
		Kind:       kind,
		ProviderID: providerID,
		StatusCode: statusCode,
		Message:    fmt.Sprintf("provider returned status %d", statusCode),
		Transient:  isTransientHTTPStatus(statusCode),
	}
}

func classifyTransportError(providerID string, err error) *ProviderError {
	switch {
	case errors.Is(err, context.Canceled):
		return &ProviderError{Kind: KindCanceled, ProviderID: providerID, Message: "provider request canceled", Cause: err}
	case errors.Is(err, context.DeadlineExceeded):
		return &ProviderError{Kind: KindTimeout, ProviderID: providerID, Message: "provider request timed out", Transient: true, Cause: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &ProviderError{Kind: KindTimeout, ProviderID: providerID, Message: "provider request timed out", Transient: true, Cause: err}
	}

	return &ProviderError{Kind: KindNetworkError, ProviderID: providerID, Message: "provider request failed", Transient: true, Cause: err}
}
