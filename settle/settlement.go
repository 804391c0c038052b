/*
Package settle implements the atomic write paths of the ledger:
order settlement, restocks, payment posting, stock adjustments, and
the recurring expense poster.

PURPOSE:
  Every mutation in the system is a read-decide-write cycle that ends
  in exactly one Store.Apply call. This package owns those cycles.
  A settlement that decremented stock but failed to record its order
  is an unacceptable state; the single-Apply discipline makes that
  impossible by construction.

CONCURRENCY:
  Reads carry record versions; Apply fails with ErrConflict when a
  concurrent commit got there first. The coordinator never retries on
  its own - callers re-run the whole operation.

KEY FILES:
  settlement.go - SettleOrder / SettleRestock
  payment.go    - PostPayment, refunds, write-offs
  recurring.go  - idempotent monthly expense posting
  catalog.go    - product creation, manual adjustments, ad hoc expenses

SEE ALSO:
  - ledger/fifo.go: cost basis for order lines
  - ledger/writeset.go: the staged write unit
*/
package settle

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/retail-ledger/ledger"
)

// Coordinator builds and commits write sets against a Store.
type Coordinator struct {
	store ledger.Store
	now   func() time.Time
}

func New(store ledger.Store) *Coordinator {
	return &Coordinator{store: store, now: time.Now}
}

// =============================================================================
// SETTLE ORDER
// =============================================================================

// OrderLine is one requested sale line. A zero SellingPrice means
// "use the product's current price".
type OrderLine struct {
	ProductID    ledger.ProductID
	Quantity     int64
	SellingPrice decimal.Decimal
	Discount     decimal.Decimal
}

type SettleOrderRequest struct {
	CustomerID        string
	OrderDate         time.Time
	Lines             []OrderLine
	PaymentType       ledger.PaymentType
	InstallmentMonths int
	AmountPaid        decimal.Decimal
	SalesPersonID     string
}

type SettleOrderResult struct {
	OrderID     ledger.OrderID
	TotalAmount decimal.Decimal
	BalanceDue  decimal.Decimal
	Status      ledger.OrderStatus

	// Shortfalls lists lines the stock on hand could not fully cover.
	// Oversell is permitted; these are warnings, not failures.
	Shortfalls []ledger.ShortfallWarning
}

// SettleOrder records a sale: consumes stock FIFO per line, writes the
// order, its items, and one SALE movement per line, all atomically.
// Product existence is validated inside the read-decide-write cycle;
// a product missing at read time or modified before commit aborts the
// whole settlement with no partial effect.
func (c *Coordinator) SettleOrder(ctx context.Context, req SettleOrderRequest) (SettleOrderResult, error) {
	if err := validateOrderRequest(req); err != nil {
		return SettleOrderResult{}, err
	}

	orderID := ledger.OrderID(ledger.NewID("order"))
	now := c.now()

	var ws ledger.WriteSet
	var result SettleOrderResult
	subtotal := decimal.Zero
	totalDiscount := decimal.Zero

	// A product may appear on several lines; later lines must see the
	// batch state staged by earlier ones.
	staged := make(map[ledger.ProductID]*ledger.ProductUpdate)

	for _, line := range req.Lines {
		pu, ok := staged[line.ProductID]
		if !ok {
			product, err := c.store.GetProduct(ctx, line.ProductID)
			if err != nil {
				return SettleOrderResult{}, err
			}
			pu = &ledger.ProductUpdate{Product: product, ExpectedVersion: product.Version}
			staged[line.ProductID] = pu
		}

		alloc := ledger.Allocate(pu.Product.Batches, line.Quantity)
		pu.Product.Batches = alloc.Remaining
		pu.Product.QuantityOnHand -= line.Quantity

		if alloc.Shortfall > 0 {
			result.Shortfalls = append(result.Shortfalls, ledger.ShortfallWarning{
				ProductID: line.ProductID,
				Requested: line.Quantity,
				Allocated: alloc.Allocated(),
				Shortfall: alloc.Shortfall,
				CostBasis: alloc.TotalCost,
			})
		}

		sellingPrice := line.SellingPrice
		if sellingPrice.IsZero() {
			sellingPrice = pu.Product.SellingPrice
		}

		item := ledger.OrderItem{
			ID:                 ledger.ItemID(ledger.NewID("item")),
			OrderID:            orderID,
			ProductID:          line.ProductID,
			Quantity:           line.Quantity,
			CostPriceAtSale:    alloc.UnitCost(line.Quantity),
			SellingPriceAtSale: sellingPrice,
			Discount:           line.Discount,
		}
		if line.Discount.GreaterThan(item.LineTotal()) {
			return SettleOrderResult{}, &ledger.ValidationError{
				Field:   "discount",
				Message: fmt.Sprintf("discount exceeds line subtotal for product %s", line.ProductID),
			}
		}
		ws.OrderItems = append(ws.OrderItems, item)

		ws.Movements = append(ws.Movements, ledger.InventoryMovement{
			ID:             ledger.MovementID(ledger.NewID("mov")),
			ProductID:      line.ProductID,
			QuantityChange: -line.Quantity,
			Type:           ledger.MovementSale,
			Timestamp:      now,
			Reason:         fmt.Sprintf("sale for order %s", orderID),
		})

		subtotal = subtotal.Add(item.LineTotal())
		totalDiscount = totalDiscount.Add(line.Discount)
	}

	for _, pu := range staged {
		ws.ProductUpdates = append(ws.ProductUpdates, *pu)
	}

	totalAmount := subtotal.Sub(totalDiscount)
	balanceDue := totalAmount.Sub(req.AmountPaid)
	status := ledger.StatusPendingPayment
	if balanceDue.LessThanOrEqual(decimal.Zero) {
		status = ledger.StatusCompleted
	}

	// Money handed over at the counter is cash moved; it lands as a
	// payment row so the cash-flow report sees it.
	if req.AmountPaid.GreaterThan(decimal.Zero) {
		ws.Payments = append(ws.Payments, ledger.Payment{
			ID:      ledger.PaymentID(ledger.NewID("pay")),
			OrderID: orderID,
			Date:    req.OrderDate,
			Amount:  req.AmountPaid,
		})
	}

	ws.Orders = append(ws.Orders, ledger.Order{
		ID:                orderID,
		CustomerID:        req.CustomerID,
		OrderDate:         req.OrderDate,
		Subtotal:          subtotal,
		TotalDiscount:     totalDiscount,
		TotalAmount:       totalAmount,
		AmountPaid:        req.AmountPaid,
		BalanceDue:        balanceDue,
		PaymentType:       req.PaymentType,
		InstallmentMonths: req.InstallmentMonths,
		Status:            status,
		SalesPersonID:     req.SalesPersonID,
		CreatedAt:         now,
	})

	if err := c.store.Apply(ctx, ws); err != nil {
		return SettleOrderResult{}, err
	}

	result.OrderID = orderID
	result.TotalAmount = totalAmount
	result.BalanceDue = balanceDue
	result.Status = status
	return result, nil
}

func validateOrderRequest(req SettleOrderRequest) error {
	if len(req.Lines) == 0 {
		return &ledger.ValidationError{Field: "lines", Message: "order needs at least one line"}
	}
	for _, line := range req.Lines {
		if line.Quantity <= 0 {
			return &ledger.ValidationError{Field: "quantity", Message: "must be positive"}
		}
		if line.Discount.IsNegative() {
			return &ledger.ValidationError{Field: "discount", Message: "must not be negative"}
		}
		if line.SellingPrice.IsNegative() {
			return &ledger.ValidationError{Field: "selling_price", Message: "must not be negative"}
		}
	}
	if req.AmountPaid.IsNegative() {
		return &ledger.ValidationError{Field: "amount_paid", Message: "must not be negative"}
	}
	switch req.PaymentType {
	case ledger.PaymentFull, ledger.PaymentLayAway:
		if req.InstallmentMonths != 0 {
			return &ledger.ValidationError{Field: "installment_months", Message: "only valid for installment orders"}
		}
	case ledger.PaymentInstallment:
		if req.InstallmentMonths <= 0 {
			return &ledger.ValidationError{Field: "installment_months", Message: "required for installment orders"}
		}
	default:
		return &ledger.ValidationError{Field: "payment_type", Message: "unknown payment type"}
	}
	return nil
}

// =============================================================================
// SETTLE RESTOCK
// =============================================================================

// RestockLine is one received shipment line.
type RestockLine struct {
	ProductID ledger.ProductID
	Quantity  int64
	UnitCost  decimal.Decimal
}

type SettleRestockRequest struct {
	SupplierName string
	PurchaseDate time.Time
	Lines        []RestockLine
}

type SettleRestockResult struct {
	RestockID string
	BatchRefs []ledger.BatchID
	ExpenseID ledger.ExpenseID // empty when shipment cost is zero
}

// SettleRestock records a shipment: one new batch per line, quantity
// on hand incremented, one RESTOCK movement per line, and - only when
// the shipment cost more than zero - one aggregate cost-of-goods-sold
// expense for the whole shipment. All atomic.
func (c *Coordinator) SettleRestock(ctx context.Context, req SettleRestockRequest) (SettleRestockResult, error) {
	if len(req.Lines) == 0 {
		return SettleRestockResult{}, &ledger.ValidationError{Field: "lines", Message: "restock needs at least one line"}
	}
	for _, line := range req.Lines {
		if line.Quantity <= 0 {
			return SettleRestockResult{}, &ledger.ValidationError{Field: "quantity", Message: "must be positive"}
		}
		if line.UnitCost.IsNegative() {
			return SettleRestockResult{}, &ledger.ValidationError{Field: "unit_cost", Message: "must not be negative"}
		}
	}

	restockID := ledger.NewID("restock")
	now := c.now()

	var ws ledger.WriteSet
	result := SettleRestockResult{RestockID: restockID}
	totalCost := decimal.Zero

	staged := make(map[ledger.ProductID]*ledger.ProductUpdate)

	for _, line := range req.Lines {
		pu, ok := staged[line.ProductID]
		if !ok {
			product, err := c.store.GetProduct(ctx, line.ProductID)
			if err != nil {
				return SettleRestockResult{}, err
			}
			pu = &ledger.ProductUpdate{Product: product, ExpectedVersion: product.Version}
			staged[line.ProductID] = pu
		}

		batch := ledger.StockBatch{
			ID:           ledger.BatchID(ledger.NewID("batch")),
			PurchaseDate: req.PurchaseDate,
			OriginalQty:  line.Quantity,
			RemainingQty: line.Quantity,
			UnitCost:     line.UnitCost,
			SupplierName: req.SupplierName,
		}
		pu.Product.Batches = append(pu.Product.Batches, batch)
		pu.Product.QuantityOnHand += line.Quantity
		result.BatchRefs = append(result.BatchRefs, batch.ID)

		ws.Movements = append(ws.Movements, ledger.InventoryMovement{
			ID:             ledger.MovementID(ledger.NewID("mov")),
			ProductID:      line.ProductID,
			QuantityChange: line.Quantity,
			Type:           ledger.MovementRestock,
			Timestamp:      now,
			Reason:         fmt.Sprintf("restock %s from %s", restockID, req.SupplierName),
		})

		totalCost = totalCost.Add(line.UnitCost.Mul(decimal.NewFromInt(line.Quantity)))
	}

	for _, pu := range staged {
		ws.ProductUpdates = append(ws.ProductUpdates, *pu)
	}

	if totalCost.GreaterThan(decimal.Zero) {
		expense := ledger.Expense{
			ID:             ledger.ExpenseID(ledger.NewID("exp")),
			Date:           req.PurchaseDate,
			Amount:         totalCost,
			Category:       ledger.CategoryCOGS,
			Description:    fmt.Sprintf("Stock purchase from %s", req.SupplierName),
			IdempotencyKey: "restock:" + restockID,
		}
		ws.Expenses = append(ws.Expenses, expense)
		result.ExpenseID = expense.ID
	}

	if err := c.store.Apply(ctx, ws); err != nil {
		return SettleRestockResult{}, err
	}
	return result, nil
}
