/*
writeset.go - Staged multi-record atomic writes

PURPOSE:
  A WriteSet is the single unit of mutation in this system. Callers
  read state, decide, stage every resulting row change into one
  WriteSet value, and submit it to Store.Apply. Either every staged
  write commits or none do.

WHY A VALUE, NOT INCREMENTAL WRITES:
  - Atomicity is explicit and testable independent of the store's
    transaction API: a settlement's full effect is inspectable as data
    before anything touches persistence
  - A failed precondition (missing product, stale version, duplicate
    idempotency key) aborts with zero partial effect
  - Stores only need one write entry point

CONFLICT DETECTION:
  Product and order updates carry the version the caller read. Apply
  fails with ErrConflict if the stored version differs at commit time
  (first committer wins). Everything else staged here is append-only
  and conflict-free.

SEE ALSO:
  - store.go: Apply contract
  - settle/settlement.go: builds these
*/
package ledger

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// STAGED UPDATES - carry the version the caller read
// =============================================================================

// ProductUpdate stages a full replacement of a product's mutable state
// (quantity on hand plus batch list). ExpectedVersion is the version
// the caller read inside the same operation.
type ProductUpdate struct {
	Product         Product
	ExpectedVersion int64
}

// OrderUpdate stages the balance fields recomputed by a payment
// posting. BalanceDue and Status always travel together.
type OrderUpdate struct {
	OrderID         OrderID
	AmountPaid      decimal.Decimal
	BalanceDue      decimal.Decimal
	Status          OrderStatus
	ExpectedVersion int64
}

// =============================================================================
// WRITE SET
// =============================================================================

// WriteSet is a staged, atomic batch of record changes.
// The zero value is an empty, valid write set.
type WriteSet struct {
	ProductInserts []Product
	ProductUpdates []ProductUpdate

	Orders       []Order
	OrderItems   []OrderItem
	OrderUpdates []OrderUpdate

	Movements []InventoryMovement
	Expenses  []Expense
	Payments  []Payment
	Refunds   []Refund
	WriteOffs []BadDebtWriteOff

	RecurringExpenses []RecurringExpense
}

// Empty reports whether the write set stages nothing.
func (ws WriteSet) Empty() bool {
	return len(ws.ProductInserts) == 0 && len(ws.ProductUpdates) == 0 &&
		len(ws.Orders) == 0 && len(ws.OrderItems) == 0 && len(ws.OrderUpdates) == 0 &&
		len(ws.Movements) == 0 && len(ws.Expenses) == 0 && len(ws.Payments) == 0 &&
		len(ws.Refunds) == 0 && len(ws.WriteOffs) == 0 && len(ws.RecurringExpenses) == 0
}

// =============================================================================
// ID GENERATION
// =============================================================================

var idCounter atomic.Int64

// NewID returns a process-unique id with a readable prefix, e.g.
// "order-1724800000000000000-42". Monotonic within a process even
// when many ids are minted in the same nanosecond.
func NewID(prefix string) string {
	return fmt.Sprintf("%s-%d-%d", prefix, time.Now().UnixNano(), idCounter.Add(1))
}
