/*
errors.go - Centralized error types for the ledger engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers inspect outcomes with errors.Is / errors.As; the HTTP layer
  maps categories to status codes.

ERROR CATEGORIES:
  1. Validation errors - malformed input, rejected before any write
  2. Not-found errors  - referenced record absent at transaction time
  3. Conflict errors   - concurrent modification detected at commit

NOT ERRORS:
  - Insufficient stock: allocation proceeds and reports a shortfall;
    policy belongs to the caller (oversell is permitted)
  - Recurring-posting duplicates: a skip, counted and returned

USAGE:
  if errors.Is(err, ledger.ErrConflict) {
      // re-read, re-decide, re-submit
  }

SEE ALSO:
  - store.go: Apply returns these on precondition failure
  - fifo.go: shortfall reporting (deliberately not an error)
*/
package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrProductNotFound is returned when a referenced product does not
	// exist at transaction time. Aborts the whole write set.
	ErrProductNotFound = errors.New("product not found")

	// ErrOrderNotFound is returned when a payment, refund, or write-off
	// references an order that no longer exists at commit time.
	ErrOrderNotFound = errors.New("order not found")

	// ErrConflict is returned when optimistic locking detects that a
	// record changed between read and commit. The caller may retry the
	// whole operation from scratch; the core never merges.
	ErrConflict = errors.New("concurrent modification detected")

	// ErrDuplicateIdempotencyKey is returned when a write set stages an
	// expense whose idempotency key already exists. Expected behavior
	// for retried system-generated postings.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// ErrValidation is the root of all input-validation failures.
	ErrValidation = errors.New("validation failed")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError reports malformed input. Always raised before any
// transaction starts; never partially applied.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// ConflictError identifies which record lost the optimistic-locking
// race so callers can log or surface it.
type ConflictError struct {
	Entity          string // "product" or "order"
	ID              string
	ExpectedVersion int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("concurrent modification of %s %s (expected version %d)",
		e.Entity, e.ID, e.ExpectedVersion)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// NotFoundError wraps the sentinel with the missing record's identity.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	if e.Entity == "order" {
		return ErrOrderNotFound
	}
	return ErrProductNotFound
}

// ShortfallWarning describes an allocation that could not be fully
// covered by available stock. It is carried on results, not returned
// as an error: the observed system permits oversell and leaves the
// unallocated quantity's cost at zero.
type ShortfallWarning struct {
	ProductID ProductID
	Requested int64
	Allocated int64
	Shortfall int64
	CostBasis decimal.Decimal // cost of the allocated portion only
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrDuplicateIdempotencyKey)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrProductNotFound) ||
		errors.Is(err, ErrOrderNotFound)
}
