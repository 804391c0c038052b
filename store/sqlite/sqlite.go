/*
Package sqlite provides the SQLite-backed implementation of ledger.Store.

PURPOSE:
  Production persistence for the inventory ledger. The same patterns
  apply to PostgreSQL - only minor SQL dialect differences.

KEY TABLES:
  products / stock_batches:  current stock state, FIFO lots
  orders / order_items:      sales with immutable per-line cost
  inventory_movements:       append-only audit trail
  expenses:                  cash out, unique idempotency keys
  payments/refunds/write_offs: append-only cash records
  recurring_expenses:        monthly posting templates

OPTIMISTIC LOCKING:
  products and orders carry a version column. Staged updates execute
  as UPDATE ... WHERE id = ? AND version = ?; zero rows affected means
  a concurrent commit won and the whole write set rolls back with
  ErrConflict. This is what prevents two concurrent settlements from
  both consuming the same batches (lost-update prevention).

APPEND-ONLY ENFORCEMENT:
  No UPDATE or DELETE statement exists for order_items, movements,
  expenses, payments, refunds, or write_offs.

WAL MODE:
  SQLite is opened with WAL for better concurrency: readers don't
  block, single writer at a time, better crash recovery.

USAGE:
  st, err := sqlite.New("./data/ledger.db")
  if err != nil { log.Fatal(err) }
  defer st.Close()

SEE ALSO:
  - ledger/store.go: interface definition and Apply contract
  - ledger/store/memory.go: in-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/retail-ledger/ledger"
)

// Store implements ledger.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a SQLite store at the given path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS products (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		sku TEXT NOT NULL UNIQUE,
		selling_price TEXT NOT NULL,
		quantity_on_hand INTEGER NOT NULL DEFAULT 0,
		version INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS stock_batches (
		id TEXT PRIMARY KEY,
		product_id TEXT NOT NULL REFERENCES products(id),
		purchase_date TEXT NOT NULL,
		original_qty INTEGER NOT NULL,
		remaining_qty INTEGER NOT NULL,
		unit_cost TEXT NOT NULL,
		supplier_name TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_batches_product
		ON stock_batches(product_id, purchase_date);

	CREATE TABLE IF NOT EXISTS orders (
		id TEXT PRIMARY KEY,
		customer_id TEXT NOT NULL,
		order_date TEXT NOT NULL,
		subtotal TEXT NOT NULL,
		total_discount TEXT NOT NULL,
		total_amount TEXT NOT NULL,
		amount_paid TEXT NOT NULL,
		balance_due TEXT NOT NULL,
		payment_type TEXT NOT NULL,
		installment_months INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		sales_person_id TEXT,
		version INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_orders_date ON orders(order_date);
	CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status);

	-- Append-only: no UPDATE/DELETE statements exist for the tables below.
	CREATE TABLE IF NOT EXISTS order_items (
		id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL REFERENCES orders(id),
		product_id TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		cost_price_at_sale TEXT NOT NULL,
		selling_price_at_sale TEXT NOT NULL,
		discount TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_items_order ON order_items(order_id);

	CREATE TABLE IF NOT EXISTS inventory_movements (
		id TEXT PRIMARY KEY,
		product_id TEXT NOT NULL,
		quantity_change INTEGER NOT NULL,
		movement_type TEXT NOT NULL,
		timestamp TEXT NOT NULL,
		reason TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_movements_product
		ON inventory_movements(product_id, timestamp);

	CREATE TABLE IF NOT EXISTS expenses (
		id TEXT PRIMARY KEY,
		expense_date TEXT NOT NULL,
		amount TEXT NOT NULL,
		category TEXT NOT NULL,
		description TEXT,
		idempotency_key TEXT UNIQUE
	);
	CREATE INDEX IF NOT EXISTS idx_expenses_date ON expenses(expense_date);

	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL REFERENCES orders(id),
		payment_date TEXT NOT NULL,
		amount TEXT NOT NULL,
		method TEXT,
		proof_ref TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_payments_order ON payments(order_id);
	CREATE INDEX IF NOT EXISTS idx_payments_date ON payments(payment_date);

	CREATE TABLE IF NOT EXISTS refunds (
		id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL REFERENCES orders(id),
		refund_date TEXT NOT NULL,
		amount TEXT NOT NULL,
		reason TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_refunds_date ON refunds(refund_date);

	CREATE TABLE IF NOT EXISTS write_offs (
		id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL REFERENCES orders(id),
		writeoff_date TEXT NOT NULL,
		amount TEXT NOT NULL,
		reason TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_write_offs_date ON write_offs(writeoff_date);

	CREATE TABLE IF NOT EXISTS recurring_expenses (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		amount TEXT NOT NULL,
		category TEXT NOT NULL,
		day_of_month INTEGER NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// APPLY - the only write operation
// =============================================================================

// Apply commits a write set in one database transaction. Version
// mismatches on products/orders roll everything back with
// ErrConflict; duplicate expense idempotency keys roll back with
// ErrDuplicateIdempotencyKey.
func (s *Store) Apply(ctx context.Context, ws ledger.WriteSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, p := range ws.ProductInserts {
		if err := insertProduct(ctx, tx, p); err != nil {
			return err
		}
	}
	for _, pu := range ws.ProductUpdates {
		if err := updateProduct(ctx, tx, pu); err != nil {
			return err
		}
	}
	for _, o := range ws.Orders {
		if err := insertOrder(ctx, tx, o); err != nil {
			return err
		}
	}
	for _, it := range ws.OrderItems {
		if err := insertOrderItem(ctx, tx, it); err != nil {
			return err
		}
	}
	for _, ou := range ws.OrderUpdates {
		if err := updateOrder(ctx, tx, ou); err != nil {
			return err
		}
	}
	for _, mv := range ws.Movements {
		if err := insertMovement(ctx, tx, mv); err != nil {
			return err
		}
	}
	for _, e := range ws.Expenses {
		if err := insertExpense(ctx, tx, e); err != nil {
			return err
		}
	}
	for _, p := range ws.Payments {
		if err := insertPayment(ctx, tx, p); err != nil {
			return err
		}
	}
	for _, r := range ws.Refunds {
		if err := insertRefund(ctx, tx, r); err != nil {
			return err
		}
	}
	for _, w := range ws.WriteOffs {
		if err := insertWriteOff(ctx, tx, w); err != nil {
			return err
		}
	}
	for _, def := range ws.RecurringExpenses {
		if err := insertRecurring(ctx, tx, def); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func insertProduct(ctx context.Context, tx *sql.Tx, p ledger.Product) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO products (id, name, sku, selling_price, quantity_on_hand, version, created_at)
		VALUES (?, ?, ?, ?, ?, 1, ?)`,
		p.ID, p.Name, p.SKU, p.SellingPrice.String(), p.QuantityOnHand,
		p.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert product: %w", err)
	}
	return replaceBatches(ctx, tx, p.ID, p.Batches)
}

func updateProduct(ctx context.Context, tx *sql.Tx, pu ledger.ProductUpdate) error {
	p := pu.Product
	res, err := tx.ExecContext(ctx, `
		UPDATE products
		SET name = ?, sku = ?, selling_price = ?, quantity_on_hand = ?, version = version + 1
		WHERE id = ? AND version = ?`,
		p.Name, p.SKU, p.SellingPrice.String(), p.QuantityOnHand,
		p.ID, pu.ExpectedVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to update product: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		var exists int
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM products WHERE id = ?", p.ID).Scan(&exists); err != nil {
			return err
		}
		if exists == 0 {
			return &ledger.NotFoundError{Entity: "product", ID: string(p.ID)}
		}
		return &ledger.ConflictError{Entity: "product", ID: string(p.ID), ExpectedVersion: pu.ExpectedVersion}
	}
	return replaceBatches(ctx, tx, p.ID, p.Batches)
}

// replaceBatches rewrites a product's batch list to the staged state.
// The batch list is owned, contiguous product state; rewriting it
// whole keeps pruning and partial consumption one code path.
func replaceBatches(ctx context.Context, tx *sql.Tx, productID ledger.ProductID, batches []ledger.StockBatch) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM stock_batches WHERE product_id = ?", productID); err != nil {
		return fmt.Errorf("failed to clear batches: %w", err)
	}
	for _, b := range batches {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO stock_batches (id, product_id, purchase_date, original_qty, remaining_qty, unit_cost, supplier_name)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			b.ID, productID, b.PurchaseDate.UTC().Format(time.RFC3339),
			b.OriginalQty, b.RemainingQty, b.UnitCost.String(), b.SupplierName,
		)
		if err != nil {
			return fmt.Errorf("failed to insert batch: %w", err)
		}
	}
	return nil
}

func insertOrder(ctx context.Context, tx *sql.Tx, o ledger.Order) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO orders (id, customer_id, order_date, subtotal, total_discount, total_amount,
		                    amount_paid, balance_due, payment_type, installment_months, status,
		                    sales_person_id, version, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?)`,
		o.ID, o.CustomerID, o.OrderDate.UTC().Format(time.RFC3339),
		o.Subtotal.String(), o.TotalDiscount.String(), o.TotalAmount.String(),
		o.AmountPaid.String(), o.BalanceDue.String(),
		o.PaymentType, o.InstallmentMonths, o.Status, o.SalesPersonID,
		o.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}
	return nil
}

func updateOrder(ctx context.Context, tx *sql.Tx, ou ledger.OrderUpdate) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET amount_paid = ?, balance_due = ?, status = ?, version = version + 1
		WHERE id = ? AND version = ?`,
		ou.AmountPaid.String(), ou.BalanceDue.String(), ou.Status,
		ou.OrderID, ou.ExpectedVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to update order: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		var exists int
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM orders WHERE id = ?", ou.OrderID).Scan(&exists); err != nil {
			return err
		}
		if exists == 0 {
			return &ledger.NotFoundError{Entity: "order", ID: string(ou.OrderID)}
		}
		return &ledger.ConflictError{Entity: "order", ID: string(ou.OrderID), ExpectedVersion: ou.ExpectedVersion}
	}
	return nil
}

func insertOrderItem(ctx context.Context, tx *sql.Tx, it ledger.OrderItem) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO order_items (id, order_id, product_id, quantity, cost_price_at_sale, selling_price_at_sale, discount)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		it.ID, it.OrderID, it.ProductID, it.Quantity,
		it.CostPriceAtSale.String(), it.SellingPriceAtSale.String(), it.Discount.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert order item: %w", err)
	}
	return nil
}

func insertMovement(ctx context.Context, tx *sql.Tx, mv ledger.InventoryMovement) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO inventory_movements (id, product_id, quantity_change, movement_type, timestamp, reason)
		VALUES (?, ?, ?, ?, ?, ?)`,
		mv.ID, mv.ProductID, mv.QuantityChange, mv.Type,
		mv.Timestamp.UTC().Format(time.RFC3339), mv.Reason,
	)
	if err != nil {
		return fmt.Errorf("failed to insert movement: %w", err)
	}
	return nil
}

func insertExpense(ctx context.Context, tx *sql.Tx, e ledger.Expense) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO expenses (id, expense_date, amount, category, description, idempotency_key)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.Date.UTC().Format(time.RFC3339), e.Amount.String(),
		e.Category, e.Description, nullString(e.IdempotencyKey),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ledger.ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("failed to insert expense: %w", err)
	}
	return nil
}

func insertPayment(ctx context.Context, tx *sql.Tx, p ledger.Payment) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO payments (id, order_id, payment_date, amount, method, proof_ref)
		VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.OrderID, p.Date.UTC().Format(time.RFC3339), p.Amount.String(), p.Method, p.ProofRef,
	)
	if err != nil {
		return fmt.Errorf("failed to insert payment: %w", err)
	}
	return nil
}

func insertRefund(ctx context.Context, tx *sql.Tx, r ledger.Refund) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO refunds (id, order_id, refund_date, amount, reason)
		VALUES (?, ?, ?, ?, ?)`,
		r.ID, r.OrderID, r.Date.UTC().Format(time.RFC3339), r.Amount.String(), r.Reason,
	)
	if err != nil {
		return fmt.Errorf("failed to insert refund: %w", err)
	}
	return nil
}

func insertWriteOff(ctx context.Context, tx *sql.Tx, w ledger.BadDebtWriteOff) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO write_offs (id, order_id, writeoff_date, amount, reason)
		VALUES (?, ?, ?, ?, ?)`,
		w.ID, w.OrderID, w.Date.UTC().Format(time.RFC3339), w.Amount.String(), w.Reason,
	)
	if err != nil {
		return fmt.Errorf("failed to insert write-off: %w", err)
	}
	return nil
}

func insertRecurring(ctx context.Context, tx *sql.Tx, def ledger.RecurringExpense) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO recurring_expenses (id, name, amount, category, day_of_month)
		VALUES (?, ?, ?, ?, ?)`,
		def.ID, def.Name, def.Amount.String(), def.Category, def.DayOfMonth,
	)
	if err != nil {
		return fmt.Errorf("failed to insert recurring expense: %w", err)
	}
	return nil
}

// =============================================================================
// PRODUCT READS
// =============================================================================

func (s *Store) GetProduct(ctx context.Context, id ledger.ProductID) (ledger.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		p            ledger.Product
		sellingPrice string
		createdAt    string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, sku, selling_price, quantity_on_hand, version, created_at
		FROM products WHERE id = ?`, id,
	).Scan(&p.ID, &p.Name, &p.SKU, &sellingPrice, &p.QuantityOnHand, &p.Version, &createdAt)
	if err == sql.ErrNoRows {
		return ledger.Product{}, &ledger.NotFoundError{Entity: "product", ID: string(id)}
	}
	if err != nil {
		return ledger.Product{}, fmt.Errorf("failed to query product: %w", err)
	}
	p.SellingPrice = parseDecimal(sellingPrice)
	p.CreatedAt = parseTime(createdAt)

	p.Batches, err = s.loadBatches(ctx, id)
	if err != nil {
		return ledger.Product{}, err
	}
	return p, nil
}

func (s *Store) loadBatches(ctx context.Context, id ledger.ProductID) ([]ledger.StockBatch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, purchase_date, original_qty, remaining_qty, unit_cost, supplier_name
		FROM stock_batches WHERE product_id = ?
		ORDER BY purchase_date ASC, id ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query batches: %w", err)
	}
	defer rows.Close()

	var batches []ledger.StockBatch
	for rows.Next() {
		var b ledger.StockBatch
		var purchaseDate, unitCost string
		var supplier sql.NullString
		if err := rows.Scan(&b.ID, &purchaseDate, &b.OriginalQty, &b.RemainingQty, &unitCost, &supplier); err != nil {
			return nil, fmt.Errorf("failed to scan batch: %w", err)
		}
		b.PurchaseDate = parseTime(purchaseDate)
		b.UnitCost = parseDecimal(unitCost)
		b.SupplierName = supplier.String
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

func (s *Store) ListProducts(ctx context.Context) ([]ledger.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, sku, selling_price, quantity_on_hand, version, created_at
		FROM products ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var products []ledger.Product
	for rows.Next() {
		var p ledger.Product
		var sellingPrice, createdAt string
		if err := rows.Scan(&p.ID, &p.Name, &p.SKU, &sellingPrice, &p.QuantityOnHand, &p.Version, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		p.SellingPrice = parseDecimal(sellingPrice)
		p.CreatedAt = parseTime(createdAt)
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range products {
		if products[i].Batches, err = s.loadBatches(ctx, products[i].ID); err != nil {
			return nil, err
		}
	}
	return products, nil
}

// =============================================================================
// ORDER READS
// =============================================================================

const orderColumns = `id, customer_id, order_date, subtotal, total_discount, total_amount,
	amount_paid, balance_due, payment_type, installment_months, status, sales_person_id, version, created_at`

func (s *Store) GetOrder(ctx context.Context, id ledger.OrderID) (ledger.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, "SELECT "+orderColumns+" FROM orders WHERE id = ?", id)
	o, err := scanOrder(row)
	if err == sql.ErrNoRows {
		return ledger.Order{}, &ledger.NotFoundError{Entity: "order", ID: string(id)}
	}
	if err != nil {
		return ledger.Order{}, fmt.Errorf("failed to query order: %w", err)
	}
	return o, nil
}

func (s *Store) OrdersInRange(ctx context.Context, from, to time.Time) ([]ledger.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lo, hi := rangeBounds(from, to)
	return s.queryOrders(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE order_date >= ? AND order_date < ? ORDER BY order_date ASC",
		lo, hi)
}

func (s *Store) ListOrders(ctx context.Context) ([]ledger.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryOrders(ctx, "SELECT "+orderColumns+" FROM orders ORDER BY order_date ASC")
}

func (s *Store) queryOrders(ctx context.Context, query string, args ...any) ([]ledger.Order, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var orders []ledger.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (ledger.Order, error) {
	var (
		o                                                          ledger.Order
		orderDate, subtotal, discount, total, paid, due, createdAt string
		salesPerson                                                sql.NullString
	)
	err := row.Scan(&o.ID, &o.CustomerID, &orderDate, &subtotal, &discount, &total,
		&paid, &due, &o.PaymentType, &o.InstallmentMonths, &o.Status, &salesPerson,
		&o.Version, &createdAt)
	if err != nil {
		return o, err
	}
	o.OrderDate = parseTime(orderDate)
	o.Subtotal = parseDecimal(subtotal)
	o.TotalDiscount = parseDecimal(discount)
	o.TotalAmount = parseDecimal(total)
	o.AmountPaid = parseDecimal(paid)
	o.BalanceDue = parseDecimal(due)
	o.SalesPersonID = salesPerson.String
	o.CreatedAt = parseTime(createdAt)
	return o, nil
}

func (s *Store) ItemsForOrder(ctx context.Context, id ledger.OrderID) ([]ledger.OrderItem, error) {
	return s.ItemsForOrders(ctx, []ledger.OrderID{id})
}

func (s *Store) ItemsForOrders(ctx context.Context, ids []ledger.OrderID) ([]ledger.OrderItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, order_id, product_id, quantity, cost_price_at_sale, selling_price_at_sale, discount
		FROM order_items WHERE order_id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query order items: %w", err)
	}
	defer rows.Close()

	var items []ledger.OrderItem
	for rows.Next() {
		var it ledger.OrderItem
		var cost, price, discount string
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Quantity, &cost, &price, &discount); err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		it.CostPriceAtSale = parseDecimal(cost)
		it.SellingPriceAtSale = parseDecimal(price)
		it.Discount = parseDecimal(discount)
		items = append(items, it)
	}
	return items, rows.Err()
}

// =============================================================================
// MOVEMENT, EXPENSE, CASH-RECORD READS
// =============================================================================

func (s *Store) MovementsForProduct(ctx context.Context, id ledger.ProductID) ([]ledger.InventoryMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, quantity_change, movement_type, timestamp, reason
		FROM inventory_movements WHERE product_id = ?
		ORDER BY timestamp ASC, id ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query movements: %w", err)
	}
	defer rows.Close()

	var movements []ledger.InventoryMovement
	for rows.Next() {
		var mv ledger.InventoryMovement
		var ts string
		var reason sql.NullString
		if err := rows.Scan(&mv.ID, &mv.ProductID, &mv.QuantityChange, &mv.Type, &ts, &reason); err != nil {
			return nil, fmt.Errorf("failed to scan movement: %w", err)
		}
		mv.Timestamp = parseTime(ts)
		mv.Reason = reason.String
		movements = append(movements, mv)
	}
	return movements, rows.Err()
}

func (s *Store) ExpensesInRange(ctx context.Context, from, to time.Time) ([]ledger.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lo, hi := rangeBounds(from, to)
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, expense_date, amount, category, description, idempotency_key
		FROM expenses WHERE expense_date >= ? AND expense_date < ?
		ORDER BY expense_date ASC`, lo, hi)
	if err != nil {
		return nil, fmt.Errorf("failed to query expenses: %w", err)
	}
	defer rows.Close()

	var expenses []ledger.Expense
	for rows.Next() {
		var e ledger.Expense
		var date, amount string
		var description, key sql.NullString
		if err := rows.Scan(&e.ID, &date, &amount, &e.Category, &description, &key); err != nil {
			return nil, fmt.Errorf("failed to scan expense: %w", err)
		}
		e.Date = parseTime(date)
		e.Amount = parseDecimal(amount)
		e.Description = description.String
		e.IdempotencyKey = key.String
		expenses = append(expenses, e)
	}
	return expenses, rows.Err()
}

func (s *Store) ExpenseKeyExists(ctx context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM expenses WHERE idempotency_key = ?", key).Scan(&count)
	return count > 0, err
}

func (s *Store) PaymentsForOrder(ctx context.Context, id ledger.OrderID) ([]ledger.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryPayments(ctx,
		`SELECT id, order_id, payment_date, amount, method, proof_ref
		 FROM payments WHERE order_id = ? ORDER BY payment_date ASC, id ASC`, id)
}

func (s *Store) PaymentsInRange(ctx context.Context, from, to time.Time) ([]ledger.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lo, hi := rangeBounds(from, to)
	return s.queryPayments(ctx,
		`SELECT id, order_id, payment_date, amount, method, proof_ref
		 FROM payments WHERE payment_date >= ? AND payment_date < ?
		 ORDER BY payment_date ASC`, lo, hi)
}

func (s *Store) queryPayments(ctx context.Context, query string, args ...any) ([]ledger.Payment, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query payments: %w", err)
	}
	defer rows.Close()

	var payments []ledger.Payment
	for rows.Next() {
		var p ledger.Payment
		var date, amount string
		var method, proof sql.NullString
		if err := rows.Scan(&p.ID, &p.OrderID, &date, &amount, &method, &proof); err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		p.Date = parseTime(date)
		p.Amount = parseDecimal(amount)
		p.Method = method.String
		p.ProofRef = proof.String
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

func (s *Store) RefundsInRange(ctx context.Context, from, to time.Time) ([]ledger.Refund, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lo, hi := rangeBounds(from, to)
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, order_id, refund_date, amount, reason
		FROM refunds WHERE refund_date >= ? AND refund_date < ?
		ORDER BY refund_date ASC`, lo, hi)
	if err != nil {
		return nil, fmt.Errorf("failed to query refunds: %w", err)
	}
	defer rows.Close()

	var refunds []ledger.Refund
	for rows.Next() {
		var r ledger.Refund
		var date, amount string
		var reason sql.NullString
		if err := rows.Scan(&r.ID, &r.OrderID, &date, &amount, &reason); err != nil {
			return nil, fmt.Errorf("failed to scan refund: %w", err)
		}
		r.Date = parseTime(date)
		r.Amount = parseDecimal(amount)
		r.Reason = reason.String
		refunds = append(refunds, r)
	}
	return refunds, rows.Err()
}

func (s *Store) WriteOffsInRange(ctx context.Context, from, to time.Time) ([]ledger.BadDebtWriteOff, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lo, hi := rangeBounds(from, to)
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, order_id, writeoff_date, amount, reason
		FROM write_offs WHERE writeoff_date >= ? AND writeoff_date < ?
		ORDER BY writeoff_date ASC`, lo, hi)
	if err != nil {
		return nil, fmt.Errorf("failed to query write-offs: %w", err)
	}
	defer rows.Close()

	var writeOffs []ledger.BadDebtWriteOff
	for rows.Next() {
		var w ledger.BadDebtWriteOff
		var date, amount string
		var reason sql.NullString
		if err := rows.Scan(&w.ID, &w.OrderID, &date, &amount, &reason); err != nil {
			return nil, fmt.Errorf("failed to scan write-off: %w", err)
		}
		w.Date = parseTime(date)
		w.Amount = parseDecimal(amount)
		w.Reason = reason.String
		writeOffs = append(writeOffs, w)
	}
	return writeOffs, rows.Err()
}

func (s *Store) ListRecurringExpenses(ctx context.Context) ([]ledger.RecurringExpense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, amount, category, day_of_month FROM recurring_expenses ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to query recurring expenses: %w", err)
	}
	defer rows.Close()

	var defs []ledger.RecurringExpense
	for rows.Next() {
		var def ledger.RecurringExpense
		var amount string
		if err := rows.Scan(&def.ID, &def.Name, &amount, &def.Category, &def.DayOfMonth); err != nil {
			return nil, fmt.Errorf("failed to scan recurring expense: %w", err)
		}
		def.Amount = parseDecimal(amount)
		defs = append(defs, def)
	}
	return defs, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

// rangeBounds converts an inclusive [from, to] day range into the
// half-open RFC3339 interval the queries use.
func rangeBounds(from, to time.Time) (string, string) {
	lo := ledger.DayOf(from)
	hi := ledger.DayOf(to).AddDate(0, 0, 1)
	return lo.Format(time.RFC3339), hi.Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
