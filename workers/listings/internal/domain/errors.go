package domain

import (
	"errors"
	"fmt"
)

// Error codes surfaced by the listing engine.
const (
	CodeStoreUnavailable     = "STORE_UNAVAILABLE"
	CodeEnrichmentPartial    = "ENRICHMENT_PARTIAL_FAILURE"
	CodeConfigurationMissing = "CONFIGURATION_MISSING"
	CodeInvalidFilter        = "INVALID_FILTER"
)

// DomainError represents a domain-specific error
type DomainError struct {
	Code      string
	Message   string
	Err       error
	Retryable bool
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s - %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause.
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches any DomainError carrying the same code, so
// errors.Is(err, ErrStoreUnavailable) works on wrapped instances.
func (e *DomainError) Is(target error) bool {
	var t *DomainError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string, err error, retryable bool) *DomainError {
	return &DomainError{
		Code:      code,
		Message:   message,
		Err:       err,
		Retryable: retryable,
	}
}

// Common domain errors
var (
	ErrStoreUnavailable = &DomainError{
		Code:      CodeStoreUnavailable,
		Message:   "Listing store is unavailable",
		Retryable: true,
	}

	ErrConfigurationMissing = &DomainError{
		Code:      CodeConfigurationMissing,
		Message:   "Required dependency is not configured",
		Retryable: false,
	}

	ErrInvalidFilter = &DomainError{
		Code:      CodeInvalidFilter,
		Message:   "Filter set is invalid",
		Retryable: false,
	}
)

// StoreUnavailable wraps a failed base query.
func StoreUnavailable(err error) *DomainError {
	return NewDomainError(CodeStoreUnavailable, "Failed to query listing store", err, true)
}

// ConfigurationMissing reports a nil dependency by name.
func ConfigurationMissing(what string) *DomainError {
	return NewDomainError(CodeConfigurationMissing, what+" is not configured", nil, false)
}

// InvalidFilter reports a filter set that cannot be executed.
func InvalidFilter(message string, err error) *DomainError {
	return NewDomainError(CodeInvalidFilter, message, err, false)
}
