package reports_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/retail-ledger/ledger"
	"github.com/warp/retail-ledger/ledger/store"
	"github.com/warp/retail-ledger/reports"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func order(id string, status ledger.OrderStatus, subtotal, discount, paid string) ledger.Order {
	sub, disc := dec(subtotal), dec(discount)
	total := sub.Sub(disc)
	return ledger.Order{
		ID:            ledger.OrderID(id),
		CustomerID:    "cust-" + id,
		OrderDate:     date(2025, time.March, 10),
		Subtotal:      sub,
		TotalDiscount: disc,
		TotalAmount:   total,
		AmountPaid:    dec(paid),
		BalanceDue:    total.Sub(dec(paid)),
		PaymentType:   ledger.PaymentFull,
		Status:        status,
	}
}

func item(orderID string, qty int64, costEach string) ledger.OrderItem {
	return ledger.OrderItem{
		ID:              ledger.ItemID("item-" + orderID),
		OrderID:         ledger.OrderID(orderID),
		Quantity:        qty,
		CostPriceAtSale: dec(costEach),
	}
}

// =============================================================================
// PROFIT & LOSS
// =============================================================================

func TestPnL_WorkedExample(t *testing.T) {
	// GIVEN: valid orders totaling subtotal 1000 / discount 100, one
	//        cancelled order worth 50, items costing 600, Rent 200,
	//        refunds 20
	// THEN:  netSales 900, COGS 600, grossProfit 300, opex 200,
	//        otherLosses 70, netProfit 10

	snap := reports.Snapshot{
		Orders: []ledger.Order{
			order("o1", ledger.StatusCompleted, "600", "60", "540"),
			order("o2", ledger.StatusPendingPayment, "400", "40", "100"),
			order("o3", ledger.StatusCancelled, "50", "0", "0"),
		},
		Items: []ledger.OrderItem{
			item("o1", 4, "90"),  // 360
			item("o2", 2, "120"), // 240
			item("o3", 1, "30"),  // cancelled, excluded from COGS
		},
		Expenses: []ledger.Expense{{
			ID: "e1", Date: date(2025, time.March, 1), Amount: dec("200"), Category: "Rent",
		}},
		Refunds: []ledger.Refund{{
			ID: "r1", OrderID: "o1", Date: date(2025, time.March, 12), Amount: dec("20"),
		}},
	}

	r := reports.PnL(snap)

	assert.True(t, dec("1000").Equal(r.GrossSales), "gross sales = %s", r.GrossSales)
	assert.True(t, dec("100").Equal(r.SalesDiscounts))
	assert.True(t, dec("900").Equal(r.NetSales))
	assert.True(t, dec("600").Equal(r.COGS), "cogs = %s", r.COGS)
	assert.True(t, dec("300").Equal(r.GrossProfit))
	assert.True(t, dec("200").Equal(r.OperatingExpenses))
	assert.True(t, dec("70").Equal(r.OtherLosses), "other losses = %s", r.OtherLosses)
	assert.True(t, dec("10").Equal(r.NetProfit), "net profit = %s", r.NetProfit)
}

func TestPnL_COGSCategoryExcludedFromOperatingExpenses(t *testing.T) {
	// Restock-generated COGS expense rows are the cash-side mirror of
	// inventory purchases; counting them again would double-book.

	snap := reports.Snapshot{
		Expenses: []ledger.Expense{
			{ID: "e1", Amount: dec("500"), Category: ledger.CategoryCOGS},
			{ID: "e2", Amount: dec("200"), Category: "Rent"},
			{ID: "e3", Amount: dec("50"), Category: "Utilities"},
		},
	}

	r := reports.PnL(snap)

	assert.True(t, dec("250").Equal(r.OperatingExpenses))
	assert.Len(t, r.ExpensesByCategory, 2)
	assert.True(t, dec("200").Equal(r.ExpensesByCategory["Rent"]))
	assert.True(t, dec("50").Equal(r.ExpensesByCategory["Utilities"]))
}

func TestPnL_ReturnedOrder_TreatedAsLoss(t *testing.T) {
	snap := reports.Snapshot{
		Orders: []ledger.Order{
			order("o1", ledger.StatusReturned, "120", "0", "120"),
		},
		Items: []ledger.OrderItem{item("o1", 1, "80")},
	}

	r := reports.PnL(snap)

	assert.True(t, r.GrossSales.IsZero())
	assert.True(t, r.COGS.IsZero(), "returned order items never reach COGS")
	assert.True(t, dec("120").Equal(r.OtherLosses))
	assert.True(t, dec("-120").Equal(r.NetProfit))
}

func TestPnL_WriteOffsAreOtherLosses(t *testing.T) {
	snap := reports.Snapshot{
		WriteOffs: []ledger.BadDebtWriteOff{{ID: "w1", Amount: dec("75")}},
	}

	r := reports.PnL(snap)
	assert.True(t, dec("75").Equal(r.OtherLosses))
	assert.True(t, dec("-75").Equal(r.NetProfit))
}

func TestPnL_OrderInsensitive(t *testing.T) {
	// Report totals are pure sums; shuffling input order changes nothing.
	orders := []ledger.Order{
		order("o1", ledger.StatusCompleted, "600", "60", "540"),
		order("o2", ledger.StatusPendingPayment, "400", "40", "100"),
		order("o3", ledger.StatusCancelled, "50", "0", "0"),
	}
	items := []ledger.OrderItem{item("o1", 4, "90"), item("o2", 2, "120")}

	forward := reports.PnL(reports.Snapshot{Orders: orders, Items: items})
	backward := reports.PnL(reports.Snapshot{
		Orders: []ledger.Order{orders[2], orders[0], orders[1]},
		Items:  []ledger.OrderItem{items[1], items[0]},
	})

	assert.True(t, forward.NetProfit.Equal(backward.NetProfit))
	assert.True(t, forward.COGS.Equal(backward.COGS))
	assert.True(t, forward.OtherLosses.Equal(backward.OtherLosses))
}

// =============================================================================
// CASH FLOW
// =============================================================================

func TestCashFlow_CashBasis(t *testing.T) {
	// Cash flow sees money that moved: all payments in, all expenses
	// (COGS category included) and refunds out.

	snap := reports.Snapshot{
		Payments: []ledger.Payment{
			{ID: "p1", Amount: dec("400")},
			{ID: "p2", Amount: dec("250")},
		},
		Expenses: []ledger.Expense{
			{ID: "e1", Amount: dec("500"), Category: ledger.CategoryCOGS},
			{ID: "e2", Amount: dec("200"), Category: "Rent"},
		},
		Refunds: []ledger.Refund{{ID: "r1", Amount: dec("50")}},
	}

	r := reports.CashFlow(snap)

	assert.True(t, dec("650").Equal(r.CashIn))
	assert.True(t, dec("750").Equal(r.CashOut))
	assert.True(t, dec("-100").Equal(r.NetCash))
}

// =============================================================================
// ACCOUNTS RECEIVABLE
// =============================================================================

func TestAccountsReceivable_OnlyLiveOrdersOwingMoney(t *testing.T) {
	orders := []ledger.Order{
		order("o1", ledger.StatusPendingPayment, "500", "0", "200"), // owes 300
		order("o2", ledger.StatusCompleted, "400", "0", "400"),      // settled
		order("o3", ledger.StatusCancelled, "100", "0", "0"),        // cancelled, excluded
		order("o4", ledger.StatusProcessing, "250", "50", "0"),      // owes 200
	}

	r := reports.AccountsReceivable(orders)

	require.Len(t, r.Entries, 2)
	assert.True(t, dec("500").Equal(r.TotalOutstanding))
	for _, e := range r.Entries {
		assert.True(t, e.BalanceDue.GreaterThan(decimal.Zero))
	}
}

// =============================================================================
// LAY-AWAY
// =============================================================================

func TestLayAway_ReservedOrdersOnly(t *testing.T) {
	layAway := order("o1", ledger.StatusPendingPayment, "1000", "0", "300")
	layAway.PaymentType = ledger.PaymentLayAway

	completedLayAway := order("o2", ledger.StatusCompleted, "500", "0", "500")
	completedLayAway.PaymentType = ledger.PaymentLayAway

	fullPayment := order("o3", ledger.StatusPendingPayment, "200", "0", "0")

	r := reports.LayAway([]ledger.Order{layAway, completedLayAway, fullPayment})

	require.Len(t, r.Orders, 1)
	assert.Equal(t, ledger.OrderID("o1"), r.Orders[0].ID)
	assert.True(t, dec("300").Equal(r.TotalPaid))
	assert.True(t, dec("700").Equal(r.TotalPending))
}

// =============================================================================
// ENGINE - range loading and dispatch
// =============================================================================

func TestEngine_RunReport_RangeFiltersExpenses(t *testing.T) {
	// GIVEN: expenses in March and April
	// WHEN: running a March P&L
	// THEN: only March rows are counted, boundary days included

	mem := store.NewMemory()
	ctx := context.Background()

	require.NoError(t, mem.Apply(ctx, ledger.WriteSet{Expenses: []ledger.Expense{
		{ID: "e1", Date: date(2025, time.March, 1), Amount: dec("100"), Category: "Rent"},
		{ID: "e2", Date: date(2025, time.March, 31), Amount: dec("40"), Category: "Rent"},
		{ID: "e3", Date: date(2025, time.April, 1), Amount: dec("999"), Category: "Rent"},
	}}))

	engine := reports.NewEngine(mem)
	result, err := engine.RunReport(ctx, reports.KindPnL, ledger.DateRange{
		From: date(2025, time.March, 1),
		To:   date(2025, time.March, 31),
	})
	require.NoError(t, err)
	require.NotNil(t, result.PnL)
	assert.True(t, dec("140").Equal(result.PnL.OperatingExpenses))
}

func TestEngine_RunReport_UnknownKind(t *testing.T) {
	engine := reports.NewEngine(store.NewMemory())

	_, err := engine.RunReport(context.Background(), "balance-sheet", ledger.DateRange{
		From: date(2025, time.March, 1),
		To:   date(2025, time.March, 31),
	})
	require.Error(t, err)
	assert.True(t, ledger.IsClientError(err))
}

func TestEngine_RunReport_InvalidRange(t *testing.T) {
	engine := reports.NewEngine(store.NewMemory())

	_, err := engine.RunReport(context.Background(), reports.KindPnL, ledger.DateRange{
		From: date(2025, time.March, 31),
		To:   date(2025, time.March, 1),
	})
	require.Error(t, err)
	assert.True(t, ledger.IsClientError(err))
}
