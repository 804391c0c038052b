/*
store.go - Persistence interface for the ledger

PURPOSE:
  Defines the interface between the domain logic and the database.
  Reads are plain queries; the ONLY write operation is Apply, which
  commits a staged WriteSet atomically.

ATOMICITY CONTRACT:
  Apply is all-or-nothing. A failed version check, a missing order
  referenced by an OrderUpdate, or a duplicate expense idempotency key
  aborts the whole set with no partial effect.

CONFLICT DETECTION:
  First committer wins. Staged product/order updates carry the version
  the caller read; Apply compares against the stored version inside
  the same transaction and returns ErrConflict on mismatch. The caller
  retries the whole read-decide-write cycle.

APPEND-ONLY TABLES:
  OrderItems, movements, payments, refunds, and write-offs are only
  ever inserted. No Update or Delete exists for them, by interface.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: production SQLite
  - ledger/store/memory.go: in-memory for tests, with failure injection

SEE ALSO:
  - writeset.go: the staged write value
  - errors.go: Apply's failure taxonomy
*/
package ledger

import (
	"context"
	"time"
)

// =============================================================================
// STORE - reads plus one atomic write entry point
// =============================================================================

// Store is the persistence boundary for all ledger state.
type Store interface {
	// Apply commits a write set atomically: every staged insert and
	// update succeeds, or none are applied. Version mismatches return
	// ErrConflict; duplicate expense idempotency keys return
	// ErrDuplicateIdempotencyKey; updates of absent rows return the
	// matching not-found error.
	Apply(ctx context.Context, ws WriteSet) error

	// GetProduct returns a product with its current batch list and
	// version. Returns ErrProductNotFound if absent.
	GetProduct(ctx context.Context, id ProductID) (Product, error)

	// ListProducts returns all products ordered by name.
	ListProducts(ctx context.Context) ([]Product, error)

	// GetOrder returns an order by id. Returns ErrOrderNotFound if absent.
	GetOrder(ctx context.Context, id OrderID) (Order, error)

	// OrdersInRange returns orders with OrderDate in [from, to], both
	// ends inclusive.
	OrdersInRange(ctx context.Context, from, to time.Time) ([]Order, error)

	// ListOrders returns every order. Used by the receivable and
	// lay-away reports, which are not date-bounded.
	ListOrders(ctx context.Context) ([]Order, error)

	// ItemsForOrder returns an order's items.
	ItemsForOrder(ctx context.Context, id OrderID) ([]OrderItem, error)

	// ItemsForOrders returns the items of many orders in one read.
	ItemsForOrders(ctx context.Context, ids []OrderID) ([]OrderItem, error)

	// MovementsForProduct returns a product's audit trail,
	// chronologically.
	MovementsForProduct(ctx context.Context, id ProductID) ([]InventoryMovement, error)

	// ExpensesInRange returns expenses dated in [from, to] inclusive.
	ExpensesInRange(ctx context.Context, from, to time.Time) ([]Expense, error)

	// ExpenseKeyExists reports whether a system-generated expense with
	// the given idempotency key has been committed.
	ExpenseKeyExists(ctx context.Context, key string) (bool, error)

	// PaymentsForOrder returns an order's payments, chronologically.
	PaymentsForOrder(ctx context.Context, id OrderID) ([]Payment, error)

	// PaymentsInRange returns payments dated in [from, to] inclusive.
	PaymentsInRange(ctx context.Context, from, to time.Time) ([]Payment, error)

	// RefundsInRange returns refunds dated in [from, to] inclusive.
	RefundsInRange(ctx context.Context, from, to time.Time) ([]Refund, error)

	// WriteOffsInRange returns bad-debt write-offs dated in [from, to]
	// inclusive.
	WriteOffsInRange(ctx context.Context, from, to time.Time) ([]BadDebtWriteOff, error)

	// ListRecurringExpenses returns all recurring posting templates.
	ListRecurringExpenses(ctx context.Context) ([]RecurringExpense, error)
}
