// Package store provides an in-memory ledger.Store for tests and dev.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/retail-ledger/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements ledger.Store with process-local state.
//
// Apply validates every precondition before touching state, so a
// rejected write set leaves the store byte-for-byte unchanged. The
// FailBeforeCommit hook lets atomicity tests inject a failure after
// validation but before any mutation, simulating a crash mid-commit.
type Memory struct {
	mu sync.RWMutex

	products  map[ledger.ProductID]ledger.Product
	orders    map[ledger.OrderID]ledger.Order
	items     map[ledger.OrderID][]ledger.OrderItem
	movements []ledger.InventoryMovement
	expenses  []ledger.Expense
	payments  []ledger.Payment
	refunds   []ledger.Refund
	writeOffs []ledger.BadDebtWriteOff
	recurring []ledger.RecurringExpense

	expenseKeys map[string]bool

	// FailBeforeCommit, when set, is called by Apply after all
	// preconditions pass and before any state changes. Returning an
	// error aborts the write set. Test hook only.
	FailBeforeCommit func(ws ledger.WriteSet) error
}

func NewMemory() *Memory {
	return &Memory{
		products:    make(map[ledger.ProductID]ledger.Product),
		orders:      make(map[ledger.OrderID]ledger.Order),
		items:       make(map[ledger.OrderID][]ledger.OrderItem),
		expenseKeys: make(map[string]bool),
	}
}

// =============================================================================
// APPLY - the only write operation
// =============================================================================

func (m *Memory) Apply(_ context.Context, ws ledger.WriteSet) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Validate every precondition first. Nothing below this block may
	// fail, so a rejected set has zero partial effect.
	for _, pu := range ws.ProductUpdates {
		current, ok := m.products[pu.Product.ID]
		if !ok {
			return &ledger.NotFoundError{Entity: "product", ID: string(pu.Product.ID)}
		}
		if current.Version != pu.ExpectedVersion {
			return &ledger.ConflictError{Entity: "product", ID: string(pu.Product.ID), ExpectedVersion: pu.ExpectedVersion}
		}
	}
	for _, ou := range ws.OrderUpdates {
		current, ok := m.orders[ou.OrderID]
		if !ok {
			return &ledger.NotFoundError{Entity: "order", ID: string(ou.OrderID)}
		}
		if current.Version != ou.ExpectedVersion {
			return &ledger.ConflictError{Entity: "order", ID: string(ou.OrderID), ExpectedVersion: ou.ExpectedVersion}
		}
	}
	seenKeys := make(map[string]bool)
	for _, e := range ws.Expenses {
		if e.IdempotencyKey == "" {
			continue
		}
		if m.expenseKeys[e.IdempotencyKey] || seenKeys[e.IdempotencyKey] {
			return ledger.ErrDuplicateIdempotencyKey
		}
		seenKeys[e.IdempotencyKey] = true
	}

	if m.FailBeforeCommit != nil {
		if err := m.FailBeforeCommit(ws); err != nil {
			return err
		}
	}

	// Commit.
	for _, p := range ws.ProductInserts {
		p.Version = 1
		m.products[p.ID] = cloneProduct(p)
	}
	for _, pu := range ws.ProductUpdates {
		p := pu.Product
		p.Version = pu.ExpectedVersion + 1
		m.products[p.ID] = cloneProduct(p)
	}
	for _, o := range ws.Orders {
		o.Version = 1
		m.orders[o.ID] = o
	}
	for _, it := range ws.OrderItems {
		m.items[it.OrderID] = append(m.items[it.OrderID], it)
	}
	for _, ou := range ws.OrderUpdates {
		o := m.orders[ou.OrderID]
		o.AmountPaid = ou.AmountPaid
		o.BalanceDue = ou.BalanceDue
		o.Status = ou.Status
		o.Version = ou.ExpectedVersion + 1
		m.orders[ou.OrderID] = o
	}
	m.movements = append(m.movements, ws.Movements...)
	for _, e := range ws.Expenses {
		m.expenses = append(m.expenses, e)
		if e.IdempotencyKey != "" {
			m.expenseKeys[e.IdempotencyKey] = true
		}
	}
	m.payments = append(m.payments, ws.Payments...)
	m.refunds = append(m.refunds, ws.Refunds...)
	m.writeOffs = append(m.writeOffs, ws.WriteOffs...)
	m.recurring = append(m.recurring, ws.RecurringExpenses...)

	return nil
}

// =============================================================================
// READS
// =============================================================================

func (m *Memory) GetProduct(_ context.Context, id ledger.ProductID) (ledger.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.products[id]
	if !ok {
		return ledger.Product{}, &ledger.NotFoundError{Entity: "product", ID: string(id)}
	}
	return cloneProduct(p), nil
}

func (m *Memory) ListProducts(_ context.Context) ([]ledger.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]ledger.Product, 0, len(m.products))
	for _, p := range m.products {
		result = append(result, cloneProduct(p))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (m *Memory) GetOrder(_ context.Context, id ledger.OrderID) (ledger.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	o, ok := m.orders[id]
	if !ok {
		return ledger.Order{}, &ledger.NotFoundError{Entity: "order", ID: string(id)}
	}
	return o, nil
}

func (m *Memory) OrdersInRange(_ context.Context, from, to time.Time) ([]ledger.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r := ledger.DateRange{From: from, To: to}
	var result []ledger.Order
	for _, o := range m.orders {
		if r.Contains(o.OrderDate) {
			result = append(result, o)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].OrderDate.Before(result[j].OrderDate) })
	return result, nil
}

func (m *Memory) ListOrders(_ context.Context) ([]ledger.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]ledger.Order, 0, len(m.orders))
	for _, o := range m.orders {
		result = append(result, o)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].OrderDate.Before(result[j].OrderDate) })
	return result, nil
}

func (m *Memory) ItemsForOrder(_ context.Context, id ledger.OrderID) ([]ledger.OrderItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return append([]ledger.OrderItem(nil), m.items[id]...), nil
}

func (m *Memory) ItemsForOrders(_ context.Context, ids []ledger.OrderID) ([]ledger.OrderItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []ledger.OrderItem
	for _, id := range ids {
		result = append(result, m.items[id]...)
	}
	return result, nil
}

func (m *Memory) MovementsForProduct(_ context.Context, id ledger.ProductID) ([]ledger.InventoryMovement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []ledger.InventoryMovement
	for _, mv := range m.movements {
		if mv.ProductID == id {
			result = append(result, mv)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Timestamp.Before(result[j].Timestamp) })
	return result, nil
}

func (m *Memory) ExpensesInRange(_ context.Context, from, to time.Time) ([]ledger.Expense, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r := ledger.DateRange{From: from, To: to}
	var result []ledger.Expense
	for _, e := range m.expenses {
		if r.Contains(e.Date) {
			result = append(result, e)
		}
	}
	return result, nil
}

func (m *Memory) ExpenseKeyExists(_ context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.expenseKeys[key], nil
}

func (m *Memory) PaymentsForOrder(_ context.Context, id ledger.OrderID) ([]ledger.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []ledger.Payment
	for _, p := range m.payments {
		if p.OrderID == id {
			result = append(result, p)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Date.Before(result[j].Date) })
	return result, nil
}

func (m *Memory) PaymentsInRange(_ context.Context, from, to time.Time) ([]ledger.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r := ledger.DateRange{From: from, To: to}
	var result []ledger.Payment
	for _, p := range m.payments {
		if r.Contains(p.Date) {
			result = append(result, p)
		}
	}
	return result, nil
}

func (m *Memory) RefundsInRange(_ context.Context, from, to time.Time) ([]ledger.Refund, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r := ledger.DateRange{From: from, To: to}
	var result []ledger.Refund
	for _, rf := range m.refunds {
		if r.Contains(rf.Date) {
			result = append(result, rf)
		}
	}
	return result, nil
}

func (m *Memory) WriteOffsInRange(_ context.Context, from, to time.Time) ([]ledger.BadDebtWriteOff, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r := ledger.DateRange{From: from, To: to}
	var result []ledger.BadDebtWriteOff
	for _, w := range m.writeOffs {
		if r.Contains(w.Date) {
			result = append(result, w)
		}
	}
	return result, nil
}

func (m *Memory) ListRecurringExpenses(_ context.Context) ([]ledger.RecurringExpense, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return append([]ledger.RecurringExpense(nil), m.recurring...), nil
}

// cloneProduct deep-copies the batch slice so callers can stage edits
// without aliasing store state.
func cloneProduct(p ledger.Product) ledger.Product {
	p.Batches = append([]ledger.StockBatch(nil), p.Batches...)
	return p
}
