/*
handlers_test.go - End-to-end tests through the HTTP surface

Exercises the full stack (router -> handlers -> coordinator -> SQLite)
for the main flows: product creation with opening stock, order
settlement, payment convergence, recurring posting, and reports.
*/
package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/retail-ledger/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	srv := httptest.NewServer(NewRouter(NewHandler(store)))
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url string, body any, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

// createLampWithStock posts a product with 5 units at 10.00 and 5 at
// 20.00, restocked in FIFO-relevant order, and returns its id.
func createLampWithStock(t *testing.T, baseURL string) string {
	t.Helper()

	var created map[string]string
	status := doJSON(t, http.MethodPost, baseURL+"/api/products", CreateProductRequest{
		Name:         "lamp",
		SKU:          "sku-lamp",
		SellingPrice: "100",
	}, &created)
	require.Equal(t, http.StatusCreated, status)
	productID := created["product_id"]
	require.NotEmpty(t, productID)

	status = doJSON(t, http.MethodPost, baseURL+"/api/restocks", SettleRestockRequest{
		SupplierName: "acme",
		PurchaseDate: "2025-03-01",
		Lines:        []RestockLineRequest{{ProductID: productID, Quantity: 5, UnitCost: "10"}},
	}, nil)
	require.Equal(t, http.StatusCreated, status)

	status = doJSON(t, http.MethodPost, baseURL+"/api/restocks", SettleRestockRequest{
		SupplierName: "acme",
		PurchaseDate: "2025-03-15",
		Lines:        []RestockLineRequest{{ProductID: productID, Quantity: 5, UnitCost: "20"}},
	}, nil)
	require.Equal(t, http.StatusCreated, status)

	return productID
}

// =============================================================================
// SETTLEMENT FLOW
// =============================================================================

func TestAPI_SettleOrder_EndToEnd(t *testing.T) {
	// GIVEN: a product with two purchase lots
	// WHEN: settling an 8-unit lay-away sale over HTTP
	// THEN: totals, status, and the FIFO cost basis come back rounded
	//       for display

	srv := newTestServer(t)
	productID := createLampWithStock(t, srv.URL)

	var settled SettleOrderResponse
	status := doJSON(t, http.MethodPost, srv.URL+"/api/orders", SettleOrderRequest{
		CustomerID:  "cust-1",
		OrderDate:   "2025-03-20",
		PaymentType: "lay_away",
		AmountPaid:  "300",
		Lines:       []OrderLineRequest{{ProductID: productID, Quantity: 8}},
	}, &settled)
	require.Equal(t, http.StatusCreated, status)

	assert.Equal(t, "800.00", settled.TotalAmount)
	assert.Equal(t, "500.00", settled.BalanceDue)
	assert.Equal(t, "pending_payment", settled.Status)
	assert.Empty(t, settled.Shortfalls)

	var order OrderDTO
	status = doJSON(t, http.MethodGet, srv.URL+"/api/orders/"+settled.OrderID, nil, &order)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, order.Items, 1)
	assert.Equal(t, "13.75", order.Items[0].CostPriceAtSale)

	var product ProductDTO
	status = doJSON(t, http.MethodGet, srv.URL+"/api/products/"+productID, nil, &product)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, int64(2), product.QuantityOnHand)
	require.Len(t, product.Batches, 1)
	assert.Equal(t, int64(2), product.Batches[0].RemainingQty)
}

func TestAPI_PaymentsConvergeOrder(t *testing.T) {
	srv := newTestServer(t)
	productID := createLampWithStock(t, srv.URL)

	var settled SettleOrderResponse
	doJSON(t, http.MethodPost, srv.URL+"/api/orders", SettleOrderRequest{
		CustomerID:  "cust-1",
		OrderDate:   "2025-03-20",
		PaymentType: "lay_away",
		Lines:       []OrderLineRequest{{ProductID: productID, Quantity: 8}},
	}, &settled)
	require.Equal(t, "800.00", settled.BalanceDue)

	payURL := srv.URL + "/api/orders/" + settled.OrderID + "/payments"
	require.Equal(t, http.StatusCreated, doJSON(t, http.MethodPost, payURL, PostPaymentRequest{Amount: "500"}, nil))
	require.Equal(t, http.StatusCreated, doJSON(t, http.MethodPost, payURL, PostPaymentRequest{Amount: "300"}, nil))

	var order OrderDTO
	doJSON(t, http.MethodGet, srv.URL+"/api/orders/"+settled.OrderID, nil, &order)
	assert.Equal(t, "0.00", order.BalanceDue)
	assert.Equal(t, "completed", order.Status)
	assert.Len(t, order.Payments, 2)
}

// =============================================================================
// ERROR MAPPING
// =============================================================================

func TestAPI_ErrorStatusCodes(t *testing.T) {
	srv := newTestServer(t)

	// 404: unknown order
	status := doJSON(t, http.MethodGet, srv.URL+"/api/orders/order-missing", nil, nil)
	assert.Equal(t, http.StatusNotFound, status)

	// 400: validation failure from the domain
	status = doJSON(t, http.MethodPost, srv.URL+"/api/orders", SettleOrderRequest{
		CustomerID:  "cust-1",
		OrderDate:   "2025-03-20",
		PaymentType: "full_payment",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	// 400: malformed date
	status = doJSON(t, http.MethodPost, srv.URL+"/api/expenses", ExpenseRequest{
		Date: "20-03-2025", Amount: "10", Category: "Misc",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	// 400: unknown report kind
	status = doJSON(t, http.MethodGet, srv.URL+"/api/reports/balance-sheet?from=2025-03-01&to=2025-03-31", nil, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

// =============================================================================
// RECURRING & REPORTS
// =============================================================================

func TestAPI_RecurringRun_Idempotent(t *testing.T) {
	srv := newTestServer(t)

	status := doJSON(t, http.MethodPost, srv.URL+"/api/recurring", RecurringExpenseRequest{
		Name: "Rent", Amount: "200", Category: "Rent", DayOfMonth: 1,
	}, nil)
	require.Equal(t, http.StatusCreated, status)

	var run RunRecurringResponse
	status = doJSON(t, http.MethodPost, srv.URL+"/api/recurring/run", RunRecurringRequest{AsOf: "2025-03-20"}, &run)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 1, run.Posted)

	status = doJSON(t, http.MethodPost, srv.URL+"/api/recurring/run", RunRecurringRequest{AsOf: "2025-03-25"}, &run)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 0, run.Posted)
	assert.Equal(t, 1, run.Skipped)
}

func TestAPI_PnLReport(t *testing.T) {
	// A sale of 8 units (cost 110, price 800) and Rent 200 in March.
	// The restock COGS expense stays out of operating expenses.

	srv := newTestServer(t)
	productID := createLampWithStock(t, srv.URL)

	doJSON(t, http.MethodPost, srv.URL+"/api/orders", SettleOrderRequest{
		CustomerID:  "cust-1",
		OrderDate:   "2025-03-20",
		PaymentType: "full_payment",
		AmountPaid:  "800",
		Lines:       []OrderLineRequest{{ProductID: productID, Quantity: 8}},
	}, nil)

	status := doJSON(t, http.MethodPost, srv.URL+"/api/expenses", ExpenseRequest{
		Date: "2025-03-05", Amount: "200", Category: "Rent",
	}, nil)
	require.Equal(t, http.StatusCreated, status)

	var pnl PnLDTO
	status = doJSON(t, http.MethodGet, srv.URL+"/api/reports/pnl?from=2025-03-01&to=2025-03-31", nil, &pnl)
	require.Equal(t, http.StatusOK, status)

	assert.Equal(t, "800.00", pnl.GrossSales)
	assert.Equal(t, "110.00", pnl.COGS)
	assert.Equal(t, "690.00", pnl.GrossProfit)
	assert.Equal(t, "200.00", pnl.OperatingExpenses)
	assert.Equal(t, "490.00", pnl.NetProfit)

	var cash CashFlowDTO
	status = doJSON(t, http.MethodGet, srv.URL+"/api/reports/cashflow?from=2025-03-01&to=2025-03-31", nil, &cash)
	require.Equal(t, http.StatusOK, status)
	// Cash out counts the two restock COGS expenses (150) plus Rent;
	// cash in is the settlement-time payment.
	assert.Equal(t, "800.00", cash.CashIn)
	assert.Equal(t, "350.00", cash.CashOut)
}
