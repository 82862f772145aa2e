package entry

import (
	"errors"
	"fmt"
)

var (
	// ErrProductRequired is returned when adding without a resolved product.
	ErrProductRequired = errors.New("product is required")
	// ErrPriceRequired is returned when a document requires a positive unit price.
	ErrPriceRequired = errors.New("unit price is required")
	// ErrNoPending is returned when confirming or declining without a pending addition.
	ErrNoPending = errors.New("no pending addition")
	// ErrEmptyDocument is returned when building a payload for an empty cart.
	ErrEmptyDocument = errors.New("document has no items")
	// ErrSessionNotFound indicates the session id is unknown or expired.
	ErrSessionNotFound = errors.New("entry session not found")
	// ErrPriceUnavailable wraps failures of the price-by-list endpoint.
	ErrPriceUnavailable = errors.New("price lookup failed")
)

// ValidationError ties an input problem to the form field that caused it.
type ValidationError struct {
	Field string
	Err   error
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Err.Error())
}

// Unwrap exposes the wrapped error.
func (e *ValidationError) Unwrap() error { return e.Err }

func invalid(field string, err error) *ValidationError {
	return &ValidationError{Field: field, Err: err}
}
