/*
catalog.go - Product creation, manual adjustments, ad hoc expenses

Smaller write paths that share the same one-Apply discipline as the
settlements: a product's initial stock lands with INITIAL_STOCK
movements, a manual count correction lands with an ADJUSTMENT_UP or
ADJUSTMENT_DOWN movement, always in the same write set as the
quantity change itself.
*/
package settle

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/retail-ledger/ledger"
)

// =============================================================================
// PRODUCT CREATION
// =============================================================================

// InitialStock seeds a new product with opening inventory.
type InitialStock struct {
	Quantity     int64
	UnitCost     decimal.Decimal
	SupplierName string
}

type CreateProductRequest struct {
	Name         string
	SKU          string
	SellingPrice decimal.Decimal
	InitialStock []InitialStock
}

// CreateProduct writes a product and, when opening stock is supplied,
// its initial batches plus one INITIAL_STOCK movement per batch,
// atomically.
func (c *Coordinator) CreateProduct(ctx context.Context, req CreateProductRequest) (ledger.ProductID, error) {
	if req.Name == "" {
		return "", &ledger.ValidationError{Field: "name", Message: "required"}
	}
	if req.SKU == "" {
		return "", &ledger.ValidationError{Field: "sku", Message: "required"}
	}
	if req.SellingPrice.IsNegative() {
		return "", &ledger.ValidationError{Field: "selling_price", Message: "must not be negative"}
	}

	now := c.now()
	product := ledger.Product{
		ID:           ledger.ProductID(ledger.NewID("prod")),
		Name:         req.Name,
		SKU:          req.SKU,
		SellingPrice: req.SellingPrice,
		CreatedAt:    now,
	}

	var ws ledger.WriteSet
	for _, stock := range req.InitialStock {
		if stock.Quantity <= 0 {
			return "", &ledger.ValidationError{Field: "initial_stock.quantity", Message: "must be positive"}
		}
		if stock.UnitCost.IsNegative() {
			return "", &ledger.ValidationError{Field: "initial_stock.unit_cost", Message: "must not be negative"}
		}
		product.Batches = append(product.Batches, ledger.StockBatch{
			ID:           ledger.BatchID(ledger.NewID("batch")),
			PurchaseDate: now,
			OriginalQty:  stock.Quantity,
			RemainingQty: stock.Quantity,
			UnitCost:     stock.UnitCost,
			SupplierName: stock.SupplierName,
		})
		product.QuantityOnHand += stock.Quantity
		ws.Movements = append(ws.Movements, ledger.InventoryMovement{
			ID:             ledger.MovementID(ledger.NewID("mov")),
			ProductID:      product.ID,
			QuantityChange: stock.Quantity,
			Type:           ledger.MovementInitialStock,
			Timestamp:      now,
			Reason:         "opening stock",
		})
	}
	ws.ProductInserts = append(ws.ProductInserts, product)

	if err := c.store.Apply(ctx, ws); err != nil {
		return "", err
	}
	return product.ID, nil
}

// =============================================================================
// MANUAL STOCK ADJUSTMENT
// =============================================================================

// AdjustStock corrects a product's count by delta (positive or
// negative). An upward adjustment lands as a zero-cost batch so later
// FIFO consumption still has a lot to draw from; a downward one
// consumes batches oldest-first like a sale. The movement row commits
// with the quantity change.
func (c *Coordinator) AdjustStock(ctx context.Context, productID ledger.ProductID, delta int64, reason string) error {
	if delta == 0 {
		return &ledger.ValidationError{Field: "delta", Message: "must not be zero"}
	}

	product, err := c.store.GetProduct(ctx, productID)
	if err != nil {
		return err
	}

	now := c.now()
	movementType := ledger.MovementAdjustUp
	if delta > 0 {
		product.Batches = append(product.Batches, ledger.StockBatch{
			ID:           ledger.BatchID(ledger.NewID("batch")),
			PurchaseDate: now,
			OriginalQty:  delta,
			RemainingQty: delta,
			UnitCost:     decimal.Zero,
			SupplierName: "adjustment",
		})
	} else {
		movementType = ledger.MovementAdjustDown
		alloc := ledger.Allocate(product.Batches, -delta)
		product.Batches = alloc.Remaining
	}
	product.QuantityOnHand += delta

	ws := ledger.WriteSet{
		ProductUpdates: []ledger.ProductUpdate{{Product: product, ExpectedVersion: product.Version}},
		Movements: []ledger.InventoryMovement{{
			ID:             ledger.MovementID(ledger.NewID("mov")),
			ProductID:      productID,
			QuantityChange: delta,
			Type:           movementType,
			Timestamp:      now,
			Reason:         reason,
		}},
	}
	return c.store.Apply(ctx, ws)
}

// =============================================================================
// AD HOC EXPENSES & RECURRING DEFINITIONS
// =============================================================================

// RecordExpense writes a user-entered expense. No idempotency key:
// two identical manual entries are two expenses.
func (c *Coordinator) RecordExpense(ctx context.Context, date time.Time, amount decimal.Decimal, category, description string) (ledger.ExpenseID, error) {
	if !amount.GreaterThan(decimal.Zero) {
		return "", &ledger.ValidationError{Field: "amount", Message: "must be positive"}
	}
	if category == "" {
		return "", &ledger.ValidationError{Field: "category", Message: "required"}
	}

	expense := ledger.Expense{
		ID:          ledger.ExpenseID(ledger.NewID("exp")),
		Date:        date,
		Amount:      amount,
		Category:    category,
		Description: description,
	}
	if err := c.store.Apply(ctx, ledger.WriteSet{Expenses: []ledger.Expense{expense}}); err != nil {
		return "", err
	}
	return expense.ID, nil
}

// CreateRecurringExpense registers a monthly posting template.
func (c *Coordinator) CreateRecurringExpense(ctx context.Context, name string, amount decimal.Decimal, category string, dayOfMonth int) (string, error) {
	if name == "" {
		return "", &ledger.ValidationError{Field: "name", Message: "required"}
	}
	if !amount.GreaterThan(decimal.Zero) {
		return "", &ledger.ValidationError{Field: "amount", Message: "must be positive"}
	}
	if dayOfMonth < 1 || dayOfMonth > 31 {
		return "", &ledger.ValidationError{Field: "day_of_month", Message: "must be between 1 and 31"}
	}

	def := ledger.RecurringExpense{
		ID:         ledger.NewID("recurring"),
		Name:       name,
		Amount:     amount,
		Category:   category,
		DayOfMonth: dayOfMonth,
	}
	if err := c.store.Apply(ctx, ledger.WriteSet{RecurringExpenses: []ledger.RecurringExpense{def}}); err != nil {
		return "", err
	}
	return def.ID, nil
}
