package settle_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/retail-ledger/ledger"
	"github.com/warp/retail-ledger/settle"
)

// layAwayOrder settles an order worth 1000 with nothing paid yet.
func layAwayOrder(t *testing.T, c *settle.Coordinator) ledger.OrderID {
	t.Helper()
	ctx := context.Background()

	productID := createProduct(t, c, "sofa", "1000")
	restock(t, c, productID, date(2025, time.March, 1), 5, "400")

	result, err := c.SettleOrder(ctx, settle.SettleOrderRequest{
		CustomerID:  "cust-1",
		OrderDate:   date(2025, time.March, 5),
		PaymentType: ledger.PaymentLayAway,
		Lines:       []settle.OrderLine{{ProductID: productID, Quantity: 1}},
	})
	require.NoError(t, err)
	require.Equal(t, ledger.StatusPendingPayment, result.Status)
	return result.OrderID
}

// =============================================================================
// PAYMENT POSTING
// =============================================================================

func TestPostPayment_BalanceConvergesToCompleted(t *testing.T) {
	// GIVEN: a 1000.00 lay-away order
	// WHEN: paying 400, 400, then 200
	// THEN: balances run 600 -> 200 -> 0 and status flips to Completed
	//       exactly on the final payment

	c, mem := newTestCoordinator()
	ctx := context.Background()
	orderID := layAwayOrder(t, c)

	steps := []struct {
		pay        string
		balance    string
		wantStatus ledger.OrderStatus
	}{
		{pay: "400", balance: "600", wantStatus: ledger.StatusPendingPayment},
		{pay: "400", balance: "200", wantStatus: ledger.StatusPendingPayment},
		{pay: "200", balance: "0", wantStatus: ledger.StatusCompleted},
	}

	for _, step := range steps {
		_, err := c.PostPayment(ctx, orderID, dec(step.pay), "cash", "")
		require.NoError(t, err)

		order, err := mem.GetOrder(ctx, orderID)
		require.NoError(t, err)
		assert.True(t, dec(step.balance).Equal(order.BalanceDue), "balance = %s", order.BalanceDue)
		assert.Equal(t, step.wantStatus, order.Status)
	}

	payments, err := mem.PaymentsForOrder(ctx, orderID)
	require.NoError(t, err)
	assert.Len(t, payments, 3)
}

func TestPostPayment_Overpay_Completes(t *testing.T) {
	c, mem := newTestCoordinator()
	ctx := context.Background()
	orderID := layAwayOrder(t, c)

	_, err := c.PostPayment(ctx, orderID, dec("1200"), "card", "ref-1")
	require.NoError(t, err)

	order, err := mem.GetOrder(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusCompleted, order.Status)
	assert.True(t, dec("-200").Equal(order.BalanceDue))
}

func TestPostPayment_StatusNeverRegresses(t *testing.T) {
	// A payment against an already-Completed order keeps it Completed.
	c, mem := newTestCoordinator()
	ctx := context.Background()
	orderID := layAwayOrder(t, c)

	_, err := c.PostPayment(ctx, orderID, dec("1000"), "cash", "")
	require.NoError(t, err)
	_, err = c.PostPayment(ctx, orderID, dec("50"), "cash", "")
	require.NoError(t, err)

	order, err := mem.GetOrder(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusCompleted, order.Status)
}

func TestPostPayment_NonPositiveAmount_Rejected(t *testing.T) {
	c, _ := newTestCoordinator()
	ctx := context.Background()
	orderID := layAwayOrder(t, c)

	for _, amount := range []string{"0", "-5"} {
		_, err := c.PostPayment(ctx, orderID, dec(amount), "cash", "")
		require.Error(t, err, "amount %s", amount)
		assert.True(t, ledger.IsClientError(err))
	}
}

func TestPostPayment_UnknownOrder_NotFound(t *testing.T) {
	c, _ := newTestCoordinator()

	_, err := c.PostPayment(context.Background(), "order-missing", dec("10"), "cash", "")
	require.Error(t, err)
	assert.True(t, ledger.IsNotFound(err))
	assert.ErrorIs(t, err, ledger.ErrOrderNotFound)
}

// =============================================================================
// MANUAL STATUS CHANGES
// =============================================================================

func TestSetOrderStatus_ManualTransitions(t *testing.T) {
	c, mem := newTestCoordinator()
	ctx := context.Background()
	orderID := layAwayOrder(t, c)

	require.NoError(t, c.SetOrderStatus(ctx, orderID, ledger.StatusCancelled))

	order, err := mem.GetOrder(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusCancelled, order.Status)
	assert.True(t, dec("1000").Equal(order.BalanceDue), "status change leaves balance fields alone")
}

func TestSetOrderStatus_UnknownStatus_Rejected(t *testing.T) {
	c, _ := newTestCoordinator()
	orderID := layAwayOrder(t, c)

	err := c.SetOrderStatus(context.Background(), orderID, "misplaced")
	require.Error(t, err)
	assert.True(t, ledger.IsClientError(err))
}

// =============================================================================
// REFUNDS & WRITE-OFFS
// =============================================================================

func TestPostRefund_AppendOnly_OrderBalanceUntouched(t *testing.T) {
	c, mem := newTestCoordinator()
	ctx := context.Background()
	orderID := layAwayOrder(t, c)

	_, err := c.PostPayment(ctx, orderID, dec("300"), "cash", "")
	require.NoError(t, err)

	_, err = c.PostRefund(ctx, orderID, dec("100"), "damaged on delivery")
	require.NoError(t, err)

	order, err := mem.GetOrder(ctx, orderID)
	require.NoError(t, err)
	assert.True(t, dec("700").Equal(order.BalanceDue), "refund does not recompute the balance")

	refunds, err := mem.RefundsInRange(ctx, date(2025, time.January, 1), date(2025, time.December, 31))
	require.NoError(t, err)
	require.Len(t, refunds, 1)
	assert.True(t, dec("100").Equal(refunds[0].Amount))
	assert.Equal(t, orderID, refunds[0].OrderID)
}

func TestPostWriteOff_RecordedAgainstOrder(t *testing.T) {
	c, mem := newTestCoordinator()
	ctx := context.Background()
	orderID := layAwayOrder(t, c)

	_, err := c.PostWriteOff(ctx, orderID, dec("250"), "customer unreachable")
	require.NoError(t, err)

	writeOffs, err := mem.WriteOffsInRange(ctx, date(2025, time.January, 1), date(2025, time.December, 31))
	require.NoError(t, err)
	require.Len(t, writeOffs, 1)
	assert.True(t, dec("250").Equal(writeOffs[0].Amount))
}

func TestPostRefundAndWriteOff_RequireExistingOrder(t *testing.T) {
	c, _ := newTestCoordinator()
	ctx := context.Background()

	_, err := c.PostRefund(ctx, "order-missing", dec("10"), "")
	assert.True(t, ledger.IsNotFound(err))

	_, err = c.PostWriteOff(ctx, "order-missing", dec("10"), "")
	assert.True(t, ledger.IsNotFound(err))
}
