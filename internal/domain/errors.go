package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for common error conditions.
var (
	// ErrInvalidInput indicates a configuration or entity selection
	// error, rejected before any network activity.
	ErrInvalidInput = errors.New("invalid input")

	// ErrRetriesExhausted indicates the HTTP client gave up after its
	// retry bound on 429 or transient transport errors.
	ErrRetriesExhausted = errors.New("retries exhausted")

	// ErrRateLimited indicates a 429 response from the API.
	ErrRateLimited = errors.New("rate limited")

	// ErrNotFound indicates a requested record does not exist.
	ErrNotFound = errors.New("not found")
)

// ValidationError reports a single invalid configuration field.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// ExternalAPIError reports a failed request to the OpenAlex API.
type ExternalAPIError struct {
	Endpoint   string
	StatusCode int
	Message    string
	Cause      error
}

// Error implements the error interface.
func (e *ExternalAPIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("OpenAlex %s error (status %d): %s", e.Endpoint, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("OpenAlex %s error: %s", e.Endpoint, e.Message)
}

// Unwrap returns the underlying cause error.
func (e *ExternalAPIError) Unwrap() error {
	return e.Cause
}

// EntityError ties a failure to the entity whose fetch produced it.
// The aggregator collects these instead of aborting the run.
type EntityError struct {
	Entity EntityReference
	Cause  error
}

// Error implements the error interface.
func (e *EntityError) Error() string {
	return fmt.Sprintf("entity %s (%s): %v", e.Entity.Label, e.Entity.ID, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *EntityError) Unwrap() error {
	return e.Cause
}
