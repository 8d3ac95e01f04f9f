package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a transaction id is unknown to the store
	ErrNotFound = errors.New("transaction not found")

	// ErrStatusConflict is returned by a conditional write when the persisted
	// status no longer matches the expected prior status
	ErrStatusConflict = errors.New("transaction status changed concurrently")

	// ErrUpstreamAuth marks an authentication failure against the payment provider.
	// The cached token is dropped; the next call re-authenticates.
	ErrUpstreamAuth = errors.New("upstream authentication failed")

	// ErrUpstreamTransient marks a provider failure that a later pass may not hit
	// (network error, non-2xx, malformed payload, missing field)
	ErrUpstreamTransient = errors.New("upstream request failed")

	// ErrInvalidTransition is returned when a write would move a status backwards
	// or sideways
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrLeaseHeld is returned when another caller holds the per-transaction lease
	ErrLeaseHeld = errors.New("transaction lease held by another caller")
)

// ValidationError reports bad or missing caller input. Nothing is mutated.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// NewValidationError builds a ValidationError for field
func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// IsValidation reports whether err carries a ValidationError
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// PersistenceError wraps a store failure. The in-memory decision that led to
// the write is lost and a later reconciliation pass recomputes it.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// IsPersistence reports whether err carries a PersistenceError
func IsPersistence(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}
