/*
payment.go - Balance tracking for orders

PURPOSE:
  Posting a payment is an atomic read-modify-write: the new Payment
  row and the recomputed AmountPaid/BalanceDue/Status always commit
  together. Refunds and bad-debt write-offs are append-only records
  read by the reporting engine.

STATUS RULE:
  Status promotes to Completed exactly when the balance reaches zero
  or below. It never regresses from Completed, and no other status
  transition is automatic.
*/
package settle

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/warp/retail-ledger/ledger"
)

// PostPayment records money received against an order and recomputes
// its balance in the same write set. Fails atomically if the order no
// longer exists, or with ErrConflict if it changed since the read.
func (c *Coordinator) PostPayment(ctx context.Context, orderID ledger.OrderID, amount decimal.Decimal, method, proofRef string) (ledger.PaymentID, error) {
	if !amount.GreaterThan(decimal.Zero) {
		return "", &ledger.ValidationError{Field: "amount", Message: "payment must be positive"}
	}

	order, err := c.store.GetOrder(ctx, orderID)
	if err != nil {
		return "", err
	}

	newPaid := order.AmountPaid.Add(amount)
	newBalance := order.TotalAmount.Sub(newPaid)
	newStatus := order.Status
	if newBalance.LessThanOrEqual(decimal.Zero) {
		newStatus = ledger.StatusCompleted
	}

	payment := ledger.Payment{
		ID:       ledger.PaymentID(ledger.NewID("pay")),
		OrderID:  orderID,
		Date:     c.now(),
		Amount:   amount,
		Method:   method,
		ProofRef: proofRef,
	}

	ws := ledger.WriteSet{
		Payments: []ledger.Payment{payment},
		OrderUpdates: []ledger.OrderUpdate{{
			OrderID:         orderID,
			AmountPaid:      newPaid,
			BalanceDue:      newBalance,
			Status:          newStatus,
			ExpectedVersion: order.Version,
		}},
	}

	if err := c.store.Apply(ctx, ws); err != nil {
		return "", err
	}
	return payment.ID, nil
}

// SetOrderStatus applies an operator-driven status change (shipping,
// cancellation, return). Only the Completed promotion is automatic;
// everything else goes through here. Balance fields are untouched.
func (c *Coordinator) SetOrderStatus(ctx context.Context, orderID ledger.OrderID, status ledger.OrderStatus) error {
	switch status {
	case ledger.StatusPendingPayment, ledger.StatusProcessing, ledger.StatusShipped,
		ledger.StatusCompleted, ledger.StatusCancelled, ledger.StatusReturned:
	default:
		return &ledger.ValidationError{Field: "status", Message: "unknown order status"}
	}

	order, err := c.store.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}

	return c.store.Apply(ctx, ledger.WriteSet{
		OrderUpdates: []ledger.OrderUpdate{{
			OrderID:         orderID,
			AmountPaid:      order.AmountPaid,
			BalanceDue:      order.BalanceDue,
			Status:          status,
			ExpectedVersion: order.Version,
		}},
	})
}

// PostRefund records money returned to a customer. The refund feeds
// cash-flow (cash out) and P&L (other losses); it does not touch the
// order's balance fields.
func (c *Coordinator) PostRefund(ctx context.Context, orderID ledger.OrderID, amount decimal.Decimal, reason string) (ledger.RecordID, error) {
	if !amount.GreaterThan(decimal.Zero) {
		return "", &ledger.ValidationError{Field: "amount", Message: "refund must be positive"}
	}
	if _, err := c.store.GetOrder(ctx, orderID); err != nil {
		return "", err
	}

	refund := ledger.Refund{
		ID:      ledger.RecordID(ledger.NewID("refund")),
		OrderID: orderID,
		Date:    c.now(),
		Amount:  amount,
		Reason:  reason,
	}
	if err := c.store.Apply(ctx, ledger.WriteSet{Refunds: []ledger.Refund{refund}}); err != nil {
		return "", err
	}
	return refund.ID, nil
}

// PostWriteOff records an uncollectible balance as a bad-debt loss.
// No cash moves; only the P&L sees it.
func (c *Coordinator) PostWriteOff(ctx context.Context, orderID ledger.OrderID, amount decimal.Decimal, reason string) (ledger.RecordID, error) {
	if !amount.GreaterThan(decimal.Zero) {
		return "", &ledger.ValidationError{Field: "amount", Message: "write-off must be positive"}
	}
	if _, err := c.store.GetOrder(ctx, orderID); err != nil {
		return "", err
	}

	wo := ledger.BadDebtWriteOff{
		ID:      ledger.RecordID(ledger.NewID("writeoff")),
		OrderID: orderID,
		Date:    c.now(),
		Amount:  amount,
		Reason:  reason,
	}
	if err := c.store.Apply(ctx, ledger.WriteSet{WriteOffs: []ledger.BadDebtWriteOff{wo}}); err != nil {
		return "", err
	}
	return wo.ID, nil
}
