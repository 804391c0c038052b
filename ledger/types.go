/*
Package ledger provides the core inventory and settlement domain model.

PURPOSE:
  This package contains the entities and algorithms shared by the
  settlement coordinator, the reporting engine, and the stores:
  products with cost-ordered stock batches, orders with running
  balances, and the append-only records (movements, expenses,
  payments) that every mutation leaves behind.

KEY CONCEPTS IN THIS FILE (types.go):
  - Product/StockBatch: purchased stock tracked in FIFO lots
  - Order/OrderItem: a sale with immutable per-line cost at sale time
  - InventoryMovement: append-only audit row, one per stock event
  - Expense/Payment: cash-side records feeding the reports

DESIGN PRINCIPLES:
  1. Precision: money is decimal.Decimal; rounding happens only at the
     presentation boundary, never before arithmetic
  2. Immutability: OrderItems, movements, payments are written once
  3. Lockstep: quantityOnHand and the batch list are always mutated
     together, inside the same write set
  4. Type Safety: strong ID types prevent mixing product/order ids

SEE ALSO:
  - fifo.go: batch consumption and cost basis
  - writeset.go: staged atomic multi-record writes
  - store.go: persistence interfaces
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type (
	ProductID  string
	BatchID    string
	OrderID    string
	ItemID     string
	MovementID string
	ExpenseID  string
	PaymentID  string
	RecordID   string // refunds and write-offs
)

// =============================================================================
// PRODUCT & STOCK BATCHES
// =============================================================================

// Product is a sellable item with its unconsumed purchase lots.
//
// QuantityOnHand and Batches are maintained in lockstep by every
// mutator: the quantity is never recomputed from the batch list at
// read time, and the two may legitimately diverge when oversell drives
// QuantityOnHand negative (the batch list bottoms out empty).
type Product struct {
	ID             ProductID
	Name           string
	SKU            string
	SellingPrice   decimal.Decimal
	QuantityOnHand int64
	Batches        []StockBatch

	// Version supports optimistic concurrency. Incremented by the
	// store on every committed update; a staged update carrying a
	// stale version fails the whole write set.
	Version int64

	CreatedAt time.Time
}

// StockBatch is one purchase event's worth of stock. Owned by exactly
// one product. RemainingQty only ever decreases; a batch is pruned
// from the product once it reaches zero.
type StockBatch struct {
	ID           BatchID
	PurchaseDate time.Time
	OriginalQty  int64
	RemainingQty int64
	UnitCost     decimal.Decimal
	SupplierName string
}

// =============================================================================
// ORDERS
// =============================================================================

type PaymentType string

const (
	PaymentFull        PaymentType = "full_payment"
	PaymentLayAway     PaymentType = "lay_away"
	PaymentInstallment PaymentType = "installment"
)

type OrderStatus string

const (
	StatusPendingPayment OrderStatus = "pending_payment"
	StatusProcessing     OrderStatus = "processing"
	StatusShipped        OrderStatus = "shipped"
	StatusCompleted      OrderStatus = "completed"
	StatusCancelled      OrderStatus = "cancelled"
	StatusReturned       OrderStatus = "returned"
)

// Order is a recorded sale. BalanceDue and Status are recomputed
// together, atomically, whenever AmountPaid changes. Status promotes
// to Completed exactly when the balance reaches zero and is never
// auto-demoted afterwards.
type Order struct {
	ID                OrderID
	CustomerID        string
	OrderDate         time.Time
	Subtotal          decimal.Decimal
	TotalDiscount     decimal.Decimal
	TotalAmount       decimal.Decimal // Subtotal - TotalDiscount
	AmountPaid        decimal.Decimal
	BalanceDue        decimal.Decimal // TotalAmount - AmountPaid
	PaymentType       PaymentType
	InstallmentMonths int // set iff PaymentType == PaymentInstallment
	Status            OrderStatus
	SalesPersonID     string

	Version int64

	CreatedAt time.Time
}

// OrderItem is one line of an order. Written once, atomically with
// its order, and never re-priced or re-costed afterwards.
type OrderItem struct {
	ID                 ItemID
	OrderID            OrderID
	ProductID          ProductID
	Quantity           int64
	CostPriceAtSale    decimal.Decimal // weighted-average FIFO cost per unit
	SellingPriceAtSale decimal.Decimal
	Discount           decimal.Decimal
}

// LineTotal is the line's contribution to the order subtotal.
func (it OrderItem) LineTotal() decimal.Decimal {
	return it.SellingPriceAtSale.Mul(decimal.NewFromInt(it.Quantity))
}

// =============================================================================
// INVENTORY MOVEMENTS - Append-only audit log
// =============================================================================

type MovementType string

const (
	MovementRestock      MovementType = "RESTOCK"
	MovementSale         MovementType = "SALE"
	MovementInitialStock MovementType = "INITIAL_STOCK"
	MovementAdjustUp     MovementType = "ADJUSTMENT_UP"
	MovementAdjustDown   MovementType = "ADJUSTMENT_DOWN"
)

// InventoryMovement records one stock-affecting event. Always written
// in the same write set as the event that caused it. Never mutated.
type InventoryMovement struct {
	ID             MovementID
	ProductID      ProductID
	QuantityChange int64 // positive = stock added, negative = removed
	Type           MovementType
	Timestamp      time.Time
	Reason         string
}

// =============================================================================
// EXPENSES
// =============================================================================

// CategoryCOGS marks system-generated cost-of-goods-sold expenses so
// the P&L can exclude them from operating expenses.
const CategoryCOGS = "Cost of Goods Sold"

// Expense is a cash outflow. System-generated rows (COGS on restock,
// recurring postings) carry an IdempotencyKey; the store rejects a
// write set staging a key that already exists.
type Expense struct {
	ID             ExpenseID
	Date           time.Time
	Amount         decimal.Decimal
	Category       string
	Description    string
	IdempotencyKey string // empty for ad hoc entries
}

// RecurringExpense is a monthly posting template. It never itself
// represents money moved; the poster materializes one Expense per
// calendar month from it.
type RecurringExpense struct {
	ID         string
	Name       string
	Amount     decimal.Decimal
	Category   string
	DayOfMonth int // 1-31, clamped to the posting month's last day
}

// =============================================================================
// PAYMENTS, REFUNDS, WRITE-OFFS - Append-only cash records
// =============================================================================

// Payment is money received against an order.
type Payment struct {
	ID       PaymentID
	OrderID  OrderID
	Date     time.Time
	Amount   decimal.Decimal
	Method   string
	ProofRef string
}

// Refund is money returned to a customer. Cash out and an other-loss.
type Refund struct {
	ID      RecordID
	OrderID OrderID
	Date    time.Time
	Amount  decimal.Decimal
	Reason  string
}

// BadDebtWriteOff records an uncollectible balance. An other-loss
// with no cash movement.
type BadDebtWriteOff struct {
	ID      RecordID
	OrderID OrderID
	Date    time.Time
	Amount  decimal.Decimal
	Reason  string
}
