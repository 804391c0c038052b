/*
handlers.go - HTTP API handlers for the inventory ledger

PURPOSE:
  Exposes the settlement engine and reporting engine via REST.
  Handles HTTP request/response and JSON serialization; all business
  rules live in the settle and reports packages.

ENDPOINTS:
  Settlement:
    POST /api/orders                    Settle an order (atomic sale)
    POST /api/restocks                  Settle a restock shipment
    POST /api/orders/{id}/payments      Post a payment
    POST /api/orders/{id}/refunds       Post a refund
    POST /api/orders/{id}/writeoffs     Post a bad-debt write-off

  Catalog & stock:
    POST /api/products                  Create product (+opening stock)
    GET  /api/products                  List products
    GET  /api/products/{id}             Product with batch detail
    GET  /api/products/{id}/movements   Audit trail
    POST /api/products/{id}/adjustments Manual stock adjustment

  Expenses:
    POST /api/expenses                  Ad hoc expense
    POST /api/recurring                 Create recurring definition
    GET  /api/recurring                 List definitions
    POST /api/recurring/run             Post due recurring expenses

  Reports:
    GET  /api/reports/{kind}?from=&to=  kind in pnl|cashflow|ar|layaway

ERROR HANDLING:
  Domain errors map to status codes via their category:
  - 400: validation errors, malformed bodies and dates
  - 404: product/order not found
  - 409: optimistic-lock conflict, duplicate idempotency key
  - 500: everything else
  Insufficient stock is NOT an error: the settle response carries
  per-line shortfalls and the caller decides policy.

SEE ALSO:
  - dto.go: request/response shapes and money rounding
  - server.go: router wiring
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/warp/retail-ledger/ledger"
	"github.com/warp/retail-ledger/reports"
	"github.com/warp/retail-ledger/settle"
)

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store       ledger.Store
	Coordinator *settle.Coordinator
	Reports     *reports.Engine
}

// NewHandler creates a handler backed by the given store.
func NewHandler(store ledger.Store) *Handler {
	return &Handler{
		Store:       store,
		Coordinator: settle.New(store),
		Reports:     reports.NewEngine(store),
	}
}

// =============================================================================
// SETTLEMENT ENDPOINTS
// =============================================================================

// SettleOrder records a sale.
// POST /api/orders
func (h *Handler) SettleOrder(w http.ResponseWriter, r *http.Request) {
	var req SettleOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	orderDate, err := parseDay(req.OrderDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid order_date format (use YYYY-MM-DD)", err)
		return
	}
	amountPaid, err := parseMoney(req.AmountPaid, decimal.Zero)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount_paid", err)
		return
	}

	domainReq := settle.SettleOrderRequest{
		CustomerID:        req.CustomerID,
		OrderDate:         orderDate,
		PaymentType:       ledger.PaymentType(req.PaymentType),
		InstallmentMonths: req.InstallmentMonths,
		AmountPaid:        amountPaid,
		SalesPersonID:     req.SalesPersonID,
	}
	for _, line := range req.Lines {
		price, err := parseMoney(line.SellingPrice, decimal.Zero)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid selling_price", err)
			return
		}
		discount, err := parseMoney(line.Discount, decimal.Zero)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid discount", err)
			return
		}
		domainReq.Lines = append(domainReq.Lines, settle.OrderLine{
			ProductID:    ledger.ProductID(line.ProductID),
			Quantity:     line.Quantity,
			SellingPrice: price,
			Discount:     discount,
		})
	}

	result, err := h.Coordinator.SettleOrder(r.Context(), domainReq)
	if err != nil {
		writeDomainError(w, "Failed to settle order", err)
		return
	}
	writeJSON(w, http.StatusCreated, toSettleOrderResponse(result))
}

// SettleRestock records a received shipment.
// POST /api/restocks
func (h *Handler) SettleRestock(w http.ResponseWriter, r *http.Request) {
	var req SettleRestockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	purchaseDate, err := parseDay(req.PurchaseDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid purchase_date format (use YYYY-MM-DD)", err)
		return
	}

	domainReq := settle.SettleRestockRequest{
		SupplierName: req.SupplierName,
		PurchaseDate: purchaseDate,
	}
	for _, line := range req.Lines {
		cost, err := parseMoney(line.UnitCost, decimal.Zero)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid unit_cost", err)
			return
		}
		domainReq.Lines = append(domainReq.Lines, settle.RestockLine{
			ProductID: ledger.ProductID(line.ProductID),
			Quantity:  line.Quantity,
			UnitCost:  cost,
		})
	}

	result, err := h.Coordinator.SettleRestock(r.Context(), domainReq)
	if err != nil {
		writeDomainError(w, "Failed to settle restock", err)
		return
	}

	resp := SettleRestockResponse{RestockID: result.RestockID, ExpenseID: string(result.ExpenseID)}
	for _, ref := range result.BatchRefs {
		resp.BatchRefs = append(resp.BatchRefs, string(ref))
	}
	writeJSON(w, http.StatusCreated, resp)
}

// PostPayment posts money received against an order.
// POST /api/orders/{id}/payments
func (h *Handler) PostPayment(w http.ResponseWriter, r *http.Request) {
	orderID := ledger.OrderID(chi.URLParam(r, "id"))

	var req PostPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	amount, err := parseMoney(req.Amount, decimal.Zero)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}

	paymentID, err := h.Coordinator.PostPayment(r.Context(), orderID, amount, req.Method, req.ProofRef)
	if err != nil {
		writeDomainError(w, "Failed to post payment", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"payment_id": string(paymentID)})
}

// SetOrderStatus applies an operator-driven status change.
// POST /api/orders/{id}/status
func (h *Handler) SetOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req SetOrderStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	err := h.Coordinator.SetOrderStatus(r.Context(), ledger.OrderID(chi.URLParam(r, "id")), ledger.OrderStatus(req.Status))
	if err != nil {
		writeDomainError(w, "Failed to update order status", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PostRefund posts money returned to a customer.
// POST /api/orders/{id}/refunds
func (h *Handler) PostRefund(w http.ResponseWriter, r *http.Request) {
	h.postCashRecord(w, r, h.Coordinator.PostRefund, "refund_id")
}

// PostWriteOff records an uncollectible balance.
// POST /api/orders/{id}/writeoffs
func (h *Handler) PostWriteOff(w http.ResponseWriter, r *http.Request) {
	h.postCashRecord(w, r, h.Coordinator.PostWriteOff, "writeoff_id")
}

func (h *Handler) postCashRecord(
	w http.ResponseWriter, r *http.Request,
	post func(ctx context.Context, orderID ledger.OrderID, amount decimal.Decimal, reason string) (ledger.RecordID, error),
	idField string,
) {
	orderID := ledger.OrderID(chi.URLParam(r, "id"))

	var req PostRecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	amount, err := parseMoney(req.Amount, decimal.Zero)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}

	id, err := post(r.Context(), orderID, amount, req.Reason)
	if err != nil {
		writeDomainError(w, "Failed to post record", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{idField: string(id)})
}

// =============================================================================
// CATALOG & STOCK ENDPOINTS
// =============================================================================

// CreateProduct creates a product, optionally with opening stock.
// POST /api/products
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req CreateProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	price, err := parseMoney(req.SellingPrice, decimal.Zero)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid selling_price", err)
		return
	}

	domainReq := settle.CreateProductRequest{
		Name:         req.Name,
		SKU:          req.SKU,
		SellingPrice: price,
	}
	for _, stock := range req.InitialStock {
		cost, err := parseMoney(stock.UnitCost, decimal.Zero)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid initial_stock unit_cost", err)
			return
		}
		domainReq.InitialStock = append(domainReq.InitialStock, settle.InitialStock{
			Quantity:     stock.Quantity,
			UnitCost:     cost,
			SupplierName: stock.SupplierName,
		})
	}

	productID, err := h.Coordinator.CreateProduct(r.Context(), domainReq)
	if err != nil {
		writeDomainError(w, "Failed to create product", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"product_id": string(productID)})
}

// ListProducts returns all products without batch detail.
// GET /api/products
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.Store.ListProducts(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list products", err)
		return
	}
	dtos := make([]ProductDTO, 0, len(products))
	for _, p := range products {
		dtos = append(dtos, toProductDTO(p, false))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetProduct returns one product with its batch list.
// GET /api/products/{id}
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := h.Store.GetProduct(r.Context(), ledger.ProductID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, "Failed to get product", err)
		return
	}
	writeJSON(w, http.StatusOK, toProductDTO(product, true))
}

// GetMovements returns a product's audit trail.
// GET /api/products/{id}/movements
func (h *Handler) GetMovements(w http.ResponseWriter, r *http.Request) {
	id := ledger.ProductID(chi.URLParam(r, "id"))
	if _, err := h.Store.GetProduct(r.Context(), id); err != nil {
		writeDomainError(w, "Failed to get product", err)
		return
	}

	movements, err := h.Store.MovementsForProduct(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get movements", err)
		return
	}
	dtos := make([]MovementDTO, 0, len(movements))
	for _, mv := range movements {
		dtos = append(dtos, MovementDTO{
			ID:             string(mv.ID),
			ProductID:      string(mv.ProductID),
			QuantityChange: mv.QuantityChange,
			Type:           string(mv.Type),
			Timestamp:      mv.Timestamp.UTC().Format(time.RFC3339),
			Reason:         mv.Reason,
		})
	}
	writeJSON(w, http.StatusOK, dtos)
}

// AdjustStock applies a manual count correction.
// POST /api/products/{id}/adjustments
func (h *Handler) AdjustStock(w http.ResponseWriter, r *http.Request) {
	var req AdjustmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	err := h.Coordinator.AdjustStock(r.Context(), ledger.ProductID(chi.URLParam(r, "id")), req.Delta, req.Reason)
	if err != nil {
		writeDomainError(w, "Failed to adjust stock", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetOrder returns an order with items and payments.
// GET /api/orders/{id}
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id := ledger.OrderID(chi.URLParam(r, "id"))

	order, err := h.Store.GetOrder(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get order", err)
		return
	}
	items, err := h.Store.ItemsForOrder(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get order items", err)
		return
	}
	payments, err := h.Store.PaymentsForOrder(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get payments", err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderDTO(order, items, payments))
}

// =============================================================================
// EXPENSE ENDPOINTS
// =============================================================================

// RecordExpense writes an ad hoc expense.
// POST /api/expenses
func (h *Handler) RecordExpense(w http.ResponseWriter, r *http.Request) {
	var req ExpenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	date, err := parseDay(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}
	amount, err := parseMoney(req.Amount, decimal.Zero)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}

	expenseID, err := h.Coordinator.RecordExpense(r.Context(), date, amount, req.Category, req.Description)
	if err != nil {
		writeDomainError(w, "Failed to record expense", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"expense_id": string(expenseID)})
}

// CreateRecurring registers a monthly posting template.
// POST /api/recurring
func (h *Handler) CreateRecurring(w http.ResponseWriter, r *http.Request) {
	var req RecurringExpenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	amount, err := parseMoney(req.Amount, decimal.Zero)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}

	id, err := h.Coordinator.CreateRecurringExpense(r.Context(), req.Name, amount, req.Category, req.DayOfMonth)
	if err != nil {
		writeDomainError(w, "Failed to create recurring expense", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"recurring_id": id})
}

// ListRecurring returns all posting templates.
// GET /api/recurring
func (h *Handler) ListRecurring(w http.ResponseWriter, r *http.Request) {
	defs, err := h.Store.ListRecurringExpenses(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list recurring expenses", err)
		return
	}
	dtos := make([]RecurringExpenseDTO, 0, len(defs))
	for _, def := range defs {
		dtos = append(dtos, RecurringExpenseDTO{
			ID:         def.ID,
			Name:       def.Name,
			Amount:     money(def.Amount),
			Category:   def.Category,
			DayOfMonth: def.DayOfMonth,
		})
	}
	writeJSON(w, http.StatusOK, dtos)
}

// RunRecurring posts all definitions due in the given month.
// POST /api/recurring/run
func (h *Handler) RunRecurring(w http.ResponseWriter, r *http.Request) {
	var req RunRecurringRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}

	asOf := time.Now().UTC()
	if req.AsOf != "" {
		var err error
		if asOf, err = parseDay(req.AsOf); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid as_of format (use YYYY-MM-DD)", err)
			return
		}
	}

	summary, err := h.Coordinator.PostDueRecurringExpenses(r.Context(), asOf)
	if err != nil {
		writeDomainError(w, "Failed to post recurring expenses", err)
		return
	}
	writeJSON(w, http.StatusOK, RunRecurringResponse{Posted: summary.Posted, Skipped: summary.Skipped})
}

// =============================================================================
// REPORT ENDPOINTS
// =============================================================================

// RunReport computes a report over an inclusive date range.
// GET /api/reports/{kind}?from=YYYY-MM-DD&to=YYYY-MM-DD
func (h *Handler) RunReport(w http.ResponseWriter, r *http.Request) {
	kind := reports.Kind(chi.URLParam(r, "kind"))

	rng := ledger.DateRange{From: time.Time{}, To: time.Now().UTC()}
	if from := r.URL.Query().Get("from"); from != "" {
		var err error
		if rng.From, err = parseDay(from); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid from date (use YYYY-MM-DD)", err)
			return
		}
	}
	if to := r.URL.Query().Get("to"); to != "" {
		var err error
		if rng.To, err = parseDay(to); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid to date (use YYYY-MM-DD)", err)
			return
		}
	}

	result, err := h.Reports.RunReport(r.Context(), kind, rng)
	if err != nil {
		writeDomainError(w, "Failed to run report", err)
		return
	}
	writeJSON(w, http.StatusOK, toReportDTO(result))
}

// =============================================================================
// HELPERS
// =============================================================================

func parseDay(s string) (time.Time, error) {
	return time.Parse("2006-01-02", s)
}

// parseMoney parses a decimal string, returning def for empty input.
func parseMoney(s string, def decimal.Decimal) (decimal.Decimal, error) {
	if s == "" {
		return def, nil
	}
	return decimal.NewFromString(s)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps the ledger error taxonomy to HTTP status codes.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case errors.Is(err, ledger.ErrValidation):
		writeError(w, http.StatusBadRequest, message, err)
	case ledger.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case ledger.IsRetryable(err), errors.Is(err, ledger.ErrDuplicateIdempotencyKey):
		writeError(w, http.StatusConflict, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}
