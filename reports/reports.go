/*
Package reports derives financial summaries from persisted ledger
state. No writes happen here.

PURPOSE:
  Pure reductions over an explicit snapshot of orders, items,
  expenses, payments, refunds, and write-offs:
  - P&L: accrual basis, recognized at order/expense date
  - Cash flow: cash basis, recognized at payment/expense date
  - Accounts receivable: outstanding balances right now
  - Lay-away: reserved goods against partial payments

DATE RANGES:
  Caller-supplied, inclusive both ends. Sums and group-bys are
  commutative, so results are stable under any reordering of input
  records.

TWO BASES, ON PURPOSE:
  P&L and cash flow answer different questions and are intentionally
  independent: a lay-away order sold in March and paid off in May is
  March revenue but May cash.

SEE ALSO:
  - ledger/store.go: where snapshots are read from
*/
package reports

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/retail-ledger/ledger"
)

// =============================================================================
// SNAPSHOT - explicit input to the pure report functions
// =============================================================================

// Snapshot is the ledger state a report is computed over. Tests build
// these directly; production loads them through Engine.
type Snapshot struct {
	Orders    []ledger.Order
	Items     []ledger.OrderItem
	Expenses  []ledger.Expense
	Payments  []ledger.Payment
	Refunds   []ledger.Refund
	WriteOffs []ledger.BadDebtWriteOff
}

func orderCountsAsSale(o ledger.Order) bool {
	return o.Status != ledger.StatusCancelled && o.Status != ledger.StatusReturned
}

// =============================================================================
// PROFIT & LOSS (accrual basis)
// =============================================================================

type PnLReport struct {
	GrossSales         decimal.Decimal
	SalesDiscounts     decimal.Decimal
	NetSales           decimal.Decimal
	COGS               decimal.Decimal
	GrossProfit        decimal.Decimal
	OperatingExpenses  decimal.Decimal
	ExpensesByCategory map[string]decimal.Decimal
	OtherLosses        decimal.Decimal
	NetProfit          decimal.Decimal
}

// PnL partitions the snapshot's orders into valid sales and
// cancelled/returned ones, then:
//
//	netSales    = gross sales - discounts          (valid orders)
//	grossProfit = netSales - COGS                  (items of valid orders)
//	otherLosses = write-offs + refunds + cancelled/returned order totals
//	netProfit   = grossProfit - operating expenses - otherLosses
//
// Operating expenses exclude the Cost of Goods Sold category: those
// rows are the cash-side mirror of inventory purchases, and COGS is
// already recognized from the items' cost at sale.
func PnL(snap Snapshot) PnLReport {
	r := PnLReport{
		GrossSales:         decimal.Zero,
		SalesDiscounts:     decimal.Zero,
		COGS:               decimal.Zero,
		OperatingExpenses:  decimal.Zero,
		OtherLosses:        decimal.Zero,
		ExpensesByCategory: make(map[string]decimal.Decimal),
	}

	valid := make(map[ledger.OrderID]bool)
	for _, o := range snap.Orders {
		if orderCountsAsSale(o) {
			valid[o.ID] = true
			r.GrossSales = r.GrossSales.Add(o.Subtotal)
			r.SalesDiscounts = r.SalesDiscounts.Add(o.TotalDiscount)
		} else {
			r.OtherLosses = r.OtherLosses.Add(o.TotalAmount)
		}
	}
	r.NetSales = r.GrossSales.Sub(r.SalesDiscounts)

	for _, it := range snap.Items {
		if valid[it.OrderID] {
			r.COGS = r.COGS.Add(it.CostPriceAtSale.Mul(decimal.NewFromInt(it.Quantity)))
		}
	}
	r.GrossProfit = r.NetSales.Sub(r.COGS)

	for _, e := range snap.Expenses {
		if e.Category == ledger.CategoryCOGS {
			continue
		}
		r.OperatingExpenses = r.OperatingExpenses.Add(e.Amount)
		existing, ok := r.ExpensesByCategory[e.Category]
		if !ok {
			existing = decimal.Zero
		}
		r.ExpensesByCategory[e.Category] = existing.Add(e.Amount)
	}

	for _, rf := range snap.Refunds {
		r.OtherLosses = r.OtherLosses.Add(rf.Amount)
	}
	for _, wo := range snap.WriteOffs {
		r.OtherLosses = r.OtherLosses.Add(wo.Amount)
	}

	r.NetProfit = r.GrossProfit.Sub(r.OperatingExpenses).Sub(r.OtherLosses)
	return r
}

// =============================================================================
// CASH FLOW (cash basis)
// =============================================================================

type CashFlowReport struct {
	CashIn  decimal.Decimal
	CashOut decimal.Decimal
	NetCash decimal.Decimal
}

// CashFlow counts money that actually moved: payments in, expenses
// and refunds out. Deliberately independent of the accrual P&L.
func CashFlow(snap Snapshot) CashFlowReport {
	r := CashFlowReport{CashIn: decimal.Zero, CashOut: decimal.Zero}
	for _, p := range snap.Payments {
		r.CashIn = r.CashIn.Add(p.Amount)
	}
	for _, e := range snap.Expenses {
		r.CashOut = r.CashOut.Add(e.Amount)
	}
	for _, rf := range snap.Refunds {
		r.CashOut = r.CashOut.Add(rf.Amount)
	}
	r.NetCash = r.CashIn.Sub(r.CashOut)
	return r
}

// =============================================================================
// ACCOUNTS RECEIVABLE
// =============================================================================

type ReceivableEntry struct {
	OrderID    ledger.OrderID
	CustomerID string
	OrderDate  time.Time
	BalanceDue decimal.Decimal
}

type ARReport struct {
	Entries          []ReceivableEntry
	TotalOutstanding decimal.Decimal
}

// AccountsReceivable lists every live order still owing money.
func AccountsReceivable(orders []ledger.Order) ARReport {
	r := ARReport{TotalOutstanding: decimal.Zero}
	for _, o := range orders {
		if !orderCountsAsSale(o) || !o.BalanceDue.GreaterThan(decimal.Zero) {
			continue
		}
		r.Entries = append(r.Entries, ReceivableEntry{
			OrderID:    o.ID,
			CustomerID: o.CustomerID,
			OrderDate:  o.OrderDate,
			BalanceDue: o.BalanceDue,
		})
		r.TotalOutstanding = r.TotalOutstanding.Add(o.BalanceDue)
	}
	return r
}

// =============================================================================
// LAY-AWAY
// =============================================================================

type LayAwayReport struct {
	Orders       []ledger.Order
	TotalPaid    decimal.Decimal
	TotalPending decimal.Decimal
}

// LayAway summarizes lay-away orders whose goods are still reserved
// (pending payment or processing).
func LayAway(orders []ledger.Order) LayAwayReport {
	r := LayAwayReport{TotalPaid: decimal.Zero, TotalPending: decimal.Zero}
	for _, o := range orders {
		if o.PaymentType != ledger.PaymentLayAway {
			continue
		}
		if o.Status != ledger.StatusPendingPayment && o.Status != ledger.StatusProcessing {
			continue
		}
		r.Orders = append(r.Orders, o)
		r.TotalPaid = r.TotalPaid.Add(o.AmountPaid)
		r.TotalPending = r.TotalPending.Add(o.BalanceDue)
	}
	return r
}

// =============================================================================
// ENGINE - loads snapshots and dispatches report kinds
// =============================================================================

type Kind string

const (
	KindPnL      Kind = "pnl"
	KindCashFlow Kind = "cashflow"
	KindAR       Kind = "ar"
	KindLayAway  Kind = "layaway"
)

// Result carries exactly one populated report, matching Kind.
type Result struct {
	Kind     Kind
	PnL      *PnLReport
	CashFlow *CashFlowReport
	AR       *ARReport
	LayAway  *LayAwayReport
}

type Engine struct {
	store ledger.Store
}

func NewEngine(store ledger.Store) *Engine {
	return &Engine{store: store}
}

// RunReport loads the state the requested report needs and computes
// it. AR and lay-away are point-in-time views and ignore the range.
func (e *Engine) RunReport(ctx context.Context, kind Kind, rng ledger.DateRange) (Result, error) {
	switch kind {
	case KindPnL:
		snap, err := e.loadRange(ctx, rng)
		if err != nil {
			return Result{}, err
		}
		report := PnL(snap)
		return Result{Kind: kind, PnL: &report}, nil

	case KindCashFlow:
		snap, err := e.loadRange(ctx, rng)
		if err != nil {
			return Result{}, err
		}
		report := CashFlow(snap)
		return Result{Kind: kind, CashFlow: &report}, nil

	case KindAR:
		orders, err := e.store.ListOrders(ctx)
		if err != nil {
			return Result{}, err
		}
		report := AccountsReceivable(orders)
		return Result{Kind: kind, AR: &report}, nil

	case KindLayAway:
		orders, err := e.store.ListOrders(ctx)
		if err != nil {
			return Result{}, err
		}
		report := LayAway(orders)
		return Result{Kind: kind, LayAway: &report}, nil

	default:
		return Result{}, &ledger.ValidationError{Field: "kind", Message: fmt.Sprintf("unknown report kind %q", kind)}
	}
}

func (e *Engine) loadRange(ctx context.Context, rng ledger.DateRange) (Snapshot, error) {
	if !rng.Valid() {
		return Snapshot{}, &ledger.ValidationError{Field: "range", Message: "end before start"}
	}

	var snap Snapshot
	var err error

	if snap.Orders, err = e.store.OrdersInRange(ctx, rng.From, rng.To); err != nil {
		return Snapshot{}, err
	}
	ids := make([]ledger.OrderID, 0, len(snap.Orders))
	for _, o := range snap.Orders {
		ids = append(ids, o.ID)
	}
	if snap.Items, err = e.store.ItemsForOrders(ctx, ids); err != nil {
		return Snapshot{}, err
	}
	if snap.Expenses, err = e.store.ExpensesInRange(ctx, rng.From, rng.To); err != nil {
		return Snapshot{}, err
	}
	if snap.Payments, err = e.store.PaymentsInRange(ctx, rng.From, rng.To); err != nil {
		return Snapshot{}, err
	}
	if snap.Refunds, err = e.store.RefundsInRange(ctx, rng.From, rng.To); err != nil {
		return Snapshot{}, err
	}
	if snap.WriteOffs, err = e.store.WriteOffsInRange(ctx, rng.From, rng.To); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}
