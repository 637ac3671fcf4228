/*
errors.go - Centralized error taxonomy for the ledger

PURPOSE:
  All error kinds in one place. The taxonomy is closed: every failure an
  operation can report is one of exactly four kinds, matched with errors.Is.

ERROR KINDS:
  1. ErrNotFound       - Referenced user, service, or transaction is absent
  2. ErrConflict       - Entity already exists / singleton re-initialization
  3. ErrUnauthorized   - Caller is not the registered service or a controller
  4. ErrInvalidPayload - Bad amount, insufficient balance, illegal transition

USAGE:
  Structured errors wrap the sentinels, so both forms work:

    if errors.Is(err, ledger.ErrInvalidPayload) { ... }

    var insErr *ledger.InsufficientPointsError
    if errors.As(err, &insErr) { ... insErr.Available ... }

SEE ALSO:
  - engine.go: Produces these errors
  - api/handlers.go: Maps them to HTTP status codes
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is returned when a referenced user, service, or
	// transaction does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when creating an entity that already exists,
	// or re-initializing the service singleton.
	ErrConflict = errors.New("conflict")

	// ErrUnauthorized is returned when the caller is not the registered
	// service (or, for bootstrap, not a controller).
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidPayload is returned for semantically invalid input:
	// non-positive amounts, insufficient balance, illegal status values,
	// and illegal state transitions.
	ErrInvalidPayload = errors.New("invalid payload")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientPointsError reports a redemption request exceeding the
// user's available balance.
type InsufficientPointsError struct {
	UserID    Principal
	Available Points
	Requested Points
}

func (e *InsufficientPointsError) Error() string {
	return fmt.Sprintf("insufficient points for redeeming: available %s, requested %s",
		e.Available, e.Requested)
}

func (e *InsufficientPointsError) Unwrap() error { return ErrInvalidPayload }

// TransitionError reports an attempt to resolve a transaction that is not
// a pending redemption, or to move it to a status outside the state machine.
type TransitionError struct {
	TransactionID string
	Type          TransactionType
	From          TransactionStatus
	To            TransactionStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("illegal transition for %s transaction %s: %s -> %s",
		e.Type, e.TransactionID, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidPayload }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound reports whether the error indicates a missing entity.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsConflict reports whether the error indicates a duplicate entity.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }

// IsUnauthorized reports whether the error indicates a rejected caller.
func IsUnauthorized(err error) bool { return errors.Is(err, ErrUnauthorized) }

// IsClientError reports whether the error is attributable to the caller
// rather than the system.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidPayload) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrUnauthorized)
}

// Normalize maps any error outside the taxonomy to ErrInvalidPayload with a
// generic message. Errors already matching a recognized kind pass through.
func Normalize(err error) error {
	if err == nil {
		return nil
	}
	if IsClientError(err) {
		return err
	}
	return fmt.Errorf("%w: an unexpected error occurred", ErrInvalidPayload)
}
