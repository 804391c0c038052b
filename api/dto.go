/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types
  decouple the internal domain model from the external API contract.

MONEY:
  Internal computation uses full decimal precision; every money field
  here is a string rendered with two-digit rounding. This is the ONE
  place rounding happens.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Structural validation (parse errors, missing fields) happens in
  handlers; business validation lives in the settle package.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/retail-ledger/ledger"
	"github.com/warp/retail-ledger/reports"
	"github.com/warp/retail-ledger/settle"
)

// money renders a decimal with two-digit display rounding.
func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func day(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// PRODUCTS
// =============================================================================

type InitialStockRequest struct {
	Quantity     int64  `json:"quantity"`
	UnitCost     string `json:"unit_cost"`
	SupplierName string `json:"supplier_name,omitempty"`
}

type CreateProductRequest struct {
	Name         string                `json:"name"`
	SKU          string                `json:"sku"`
	SellingPrice string                `json:"selling_price"`
	InitialStock []InitialStockRequest `json:"initial_stock,omitempty"`
}

type BatchDTO struct {
	ID           string `json:"id"`
	PurchaseDate string `json:"purchase_date"`
	OriginalQty  int64  `json:"original_qty"`
	RemainingQty int64  `json:"remaining_qty"`
	UnitCost     string `json:"unit_cost"`
	SupplierName string `json:"supplier_name,omitempty"`
}

type ProductDTO struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	SKU            string     `json:"sku"`
	SellingPrice   string     `json:"selling_price"`
	QuantityOnHand int64      `json:"quantity_on_hand"`
	Batches        []BatchDTO `json:"batches,omitempty"`
}

func toProductDTO(p ledger.Product, withBatches bool) ProductDTO {
	dto := ProductDTO{
		ID:             string(p.ID),
		Name:           p.Name,
		SKU:            p.SKU,
		SellingPrice:   money(p.SellingPrice),
		QuantityOnHand: p.QuantityOnHand,
	}
	if withBatches {
		dto.Batches = make([]BatchDTO, 0, len(p.Batches))
		for _, b := range p.Batches {
			dto.Batches = append(dto.Batches, BatchDTO{
				ID:           string(b.ID),
				PurchaseDate: day(b.PurchaseDate),
				OriginalQty:  b.OriginalQty,
				RemainingQty: b.RemainingQty,
				UnitCost:     money(b.UnitCost),
				SupplierName: b.SupplierName,
			})
		}
	}
	return dto
}

type AdjustmentRequest struct {
	Delta  int64  `json:"delta"`
	Reason string `json:"reason"`
}

type MovementDTO struct {
	ID             string `json:"id"`
	ProductID      string `json:"product_id"`
	QuantityChange int64  `json:"quantity_change"`
	Type           string `json:"type"`
	Timestamp      string `json:"timestamp"`
	Reason         string `json:"reason,omitempty"`
}

// =============================================================================
// ORDERS & SETTLEMENT
// =============================================================================

type OrderLineRequest struct {
	ProductID    string `json:"product_id"`
	Quantity     int64  `json:"quantity"`
	SellingPrice string `json:"selling_price,omitempty"` // defaults to the product's price
	Discount     string `json:"discount,omitempty"`
}

type SettleOrderRequest struct {
	CustomerID        string             `json:"customer_id"`
	OrderDate         string             `json:"order_date"`
	Lines             []OrderLineRequest `json:"lines"`
	PaymentType       string             `json:"payment_type"`
	InstallmentMonths int                `json:"installment_months,omitempty"`
	AmountPaid        string             `json:"amount_paid,omitempty"`
	SalesPersonID     string             `json:"sales_person_id,omitempty"`
}

type ShortfallDTO struct {
	ProductID string `json:"product_id"`
	Requested int64  `json:"requested"`
	Allocated int64  `json:"allocated"`
	Shortfall int64  `json:"shortfall"`
}

type SettleOrderResponse struct {
	OrderID     string         `json:"order_id"`
	TotalAmount string         `json:"total_amount"`
	BalanceDue  string         `json:"balance_due"`
	Status      string         `json:"status"`
	Shortfalls  []ShortfallDTO `json:"shortfalls,omitempty"`
}

func toSettleOrderResponse(res settle.SettleOrderResult) SettleOrderResponse {
	resp := SettleOrderResponse{
		OrderID:     string(res.OrderID),
		TotalAmount: money(res.TotalAmount),
		BalanceDue:  money(res.BalanceDue),
		Status:      string(res.Status),
	}
	for _, s := range res.Shortfalls {
		resp.Shortfalls = append(resp.Shortfalls, ShortfallDTO{
			ProductID: string(s.ProductID),
			Requested: s.Requested,
			Allocated: s.Allocated,
			Shortfall: s.Shortfall,
		})
	}
	return resp
}

type OrderItemDTO struct {
	ID                 string `json:"id"`
	ProductID          string `json:"product_id"`
	Quantity           int64  `json:"quantity"`
	CostPriceAtSale    string `json:"cost_price_at_sale"`
	SellingPriceAtSale string `json:"selling_price_at_sale"`
	Discount           string `json:"discount"`
}

type PaymentDTO struct {
	ID       string `json:"id"`
	Date     string `json:"date"`
	Amount   string `json:"amount"`
	Method   string `json:"method,omitempty"`
	ProofRef string `json:"proof_ref,omitempty"`
}

type OrderDTO struct {
	ID                string         `json:"id"`
	CustomerID        string         `json:"customer_id"`
	OrderDate         string         `json:"order_date"`
	Subtotal          string         `json:"subtotal"`
	TotalDiscount     string         `json:"total_discount"`
	TotalAmount       string         `json:"total_amount"`
	AmountPaid        string         `json:"amount_paid"`
	BalanceDue        string         `json:"balance_due"`
	PaymentType       string         `json:"payment_type"`
	InstallmentMonths int            `json:"installment_months,omitempty"`
	Status            string         `json:"status"`
	SalesPersonID     string         `json:"sales_person_id,omitempty"`
	Items             []OrderItemDTO `json:"items,omitempty"`
	Payments          []PaymentDTO   `json:"payments,omitempty"`
}

func toOrderDTO(o ledger.Order, items []ledger.OrderItem, payments []ledger.Payment) OrderDTO {
	dto := OrderDTO{
		ID:                string(o.ID),
		CustomerID:        o.CustomerID,
		OrderDate:         day(o.OrderDate),
		Subtotal:          money(o.Subtotal),
		TotalDiscount:     money(o.TotalDiscount),
		TotalAmount:       money(o.TotalAmount),
		AmountPaid:        money(o.AmountPaid),
		BalanceDue:        money(o.BalanceDue),
		PaymentType:       string(o.PaymentType),
		InstallmentMonths: o.InstallmentMonths,
		Status:            string(o.Status),
		SalesPersonID:     o.SalesPersonID,
	}
	for _, it := range items {
		dto.Items = append(dto.Items, OrderItemDTO{
			ID:                 string(it.ID),
			ProductID:          string(it.ProductID),
			Quantity:           it.Quantity,
			CostPriceAtSale:    money(it.CostPriceAtSale),
			SellingPriceAtSale: money(it.SellingPriceAtSale),
			Discount:           money(it.Discount),
		})
	}
	for _, p := range payments {
		dto.Payments = append(dto.Payments, PaymentDTO{
			ID:       string(p.ID),
			Date:     day(p.Date),
			Amount:   money(p.Amount),
			Method:   p.Method,
			ProofRef: p.ProofRef,
		})
	}
	return dto
}

// =============================================================================
// RESTOCKS
// =============================================================================

type RestockLineRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int64  `json:"quantity"`
	UnitCost  string `json:"unit_cost"`
}

type SettleRestockRequest struct {
	SupplierName string               `json:"supplier_name"`
	PurchaseDate string               `json:"purchase_date"`
	Lines        []RestockLineRequest `json:"lines"`
}

type SettleRestockResponse struct {
	RestockID string   `json:"restock_id"`
	BatchRefs []string `json:"batch_refs"`
	ExpenseID string   `json:"expense_id,omitempty"`
}

// =============================================================================
// PAYMENTS, REFUNDS, WRITE-OFFS, EXPENSES
// =============================================================================

type PostPaymentRequest struct {
	Amount   string `json:"amount"`
	Method   string `json:"method,omitempty"`
	ProofRef string `json:"proof_ref,omitempty"`
}

type SetOrderStatusRequest struct {
	Status string `json:"status"`
}

type PostRecordRequest struct {
	Amount string `json:"amount"`
	Reason string `json:"reason,omitempty"`
}

type ExpenseRequest struct {
	Date        string `json:"date"`
	Amount      string `json:"amount"`
	Category    string `json:"category"`
	Description string `json:"description,omitempty"`
}

type RecurringExpenseRequest struct {
	Name       string `json:"name"`
	Amount     string `json:"amount"`
	Category   string `json:"category"`
	DayOfMonth int    `json:"day_of_month"`
}

type RecurringExpenseDTO struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Amount     string `json:"amount"`
	Category   string `json:"category"`
	DayOfMonth int    `json:"day_of_month"`
}

type RunRecurringRequest struct {
	AsOf string `json:"as_of,omitempty"` // YYYY-MM-DD, defaults to today
}

type RunRecurringResponse struct {
	Posted  int `json:"posted"`
	Skipped int `json:"skipped"`
}

// =============================================================================
// REPORTS
// =============================================================================

type PnLDTO struct {
	GrossSales         string            `json:"gross_sales"`
	SalesDiscounts     string            `json:"sales_discounts"`
	NetSales           string            `json:"net_sales"`
	COGS               string            `json:"cogs"`
	GrossProfit        string            `json:"gross_profit"`
	OperatingExpenses  string            `json:"operating_expenses"`
	ExpensesByCategory map[string]string `json:"expenses_by_category"`
	OtherLosses        string            `json:"other_losses"`
	NetProfit          string            `json:"net_profit"`
}

type CashFlowDTO struct {
	CashIn  string `json:"cash_in"`
	CashOut string `json:"cash_out"`
	NetCash string `json:"net_cash"`
}

type ReceivableEntryDTO struct {
	OrderID    string `json:"order_id"`
	CustomerID string `json:"customer_id"`
	OrderDate  string `json:"order_date"`
	BalanceDue string `json:"balance_due"`
}

type ARDTO struct {
	Entries          []ReceivableEntryDTO `json:"entries"`
	TotalOutstanding string               `json:"total_outstanding"`
}

type LayAwayDTO struct {
	Orders       []OrderDTO `json:"orders"`
	TotalPaid    string     `json:"total_paid"`
	TotalPending string     `json:"total_pending"`
}

func toReportDTO(res reports.Result) any {
	switch res.Kind {
	case reports.KindPnL:
		r := res.PnL
		byCategory := make(map[string]string, len(r.ExpensesByCategory))
		for cat, amount := range r.ExpensesByCategory {
			byCategory[cat] = money(amount)
		}
		return PnLDTO{
			GrossSales:         money(r.GrossSales),
			SalesDiscounts:     money(r.SalesDiscounts),
			NetSales:           money(r.NetSales),
			COGS:               money(r.COGS),
			GrossProfit:        money(r.GrossProfit),
			OperatingExpenses:  money(r.OperatingExpenses),
			ExpensesByCategory: byCategory,
			OtherLosses:        money(r.OtherLosses),
			NetProfit:          money(r.NetProfit),
		}
	case reports.KindCashFlow:
		r := res.CashFlow
		return CashFlowDTO{
			CashIn:  money(r.CashIn),
			CashOut: money(r.CashOut),
			NetCash: money(r.NetCash),
		}
	case reports.KindAR:
		r := res.AR
		dto := ARDTO{Entries: []ReceivableEntryDTO{}, TotalOutstanding: money(r.TotalOutstanding)}
		for _, e := range r.Entries {
			dto.Entries = append(dto.Entries, ReceivableEntryDTO{
				OrderID:    string(e.OrderID),
				CustomerID: e.CustomerID,
				OrderDate:  day(e.OrderDate),
				BalanceDue: money(e.BalanceDue),
			})
		}
		return dto
	case reports.KindLayAway:
		r := res.LayAway
		dto := LayAwayDTO{
			Orders:       []OrderDTO{},
			TotalPaid:    money(r.TotalPaid),
			TotalPending: money(r.TotalPending),
		}
		for _, o := range r.Orders {
			dto.Orders = append(dto.Orders, toOrderDTO(o, nil, nil))
		}
		return dto
	default:
		return nil
	}
}
