package domain

import "errors"

var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")

	// ErrNoEligibleProviders is returned before any pending row is written.
	ErrNoEligibleProviders = errors.New("no eligible providers")
	// ErrNoQuotesAvailable is returned when every requested provider failed.
	ErrNoQuotesAvailable = errors.New("no quotes available")
	// ErrRequestDeadlineExceeded marks invocations cut off by the request deadline.
	ErrRequestDeadlineExceeded = errors.New("request deadline exceeded")
)
