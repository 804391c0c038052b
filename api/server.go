/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/products/*    Catalog, stock detail, adjustments, movements
  /api/orders/*      Settlement, payments, refunds, write-offs
  /api/restocks      Shipment settlement
  /api/expenses      Ad hoc expenses
  /api/recurring/*   Recurring definitions and the poster
  /api/reports/*     P&L, cash flow, receivables, lay-away

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		// Catalog routes
		r.Route("/products", func(r chi.Router) {
			r.Get("/", h.ListProducts)
			r.Post("/", h.CreateProduct)
			r.Get("/{id}", h.GetProduct)
			r.Get("/{id}/movements", h.GetMovements)
			r.Post("/{id}/adjustments", h.AdjustStock)
		})

		// Order routes
		r.Route("/orders", func(r chi.Router) {
			r.Post("/", h.SettleOrder)
			r.Get("/{id}", h.GetOrder)
			r.Post("/{id}/status", h.SetOrderStatus)
			r.Post("/{id}/payments", h.PostPayment)
			r.Post("/{id}/refunds", h.PostRefund)
			r.Post("/{id}/writeoffs", h.PostWriteOff)
		})

		// Restock routes
		r.Post("/restocks", h.SettleRestock)

		// Expense routes
		r.Post("/expenses", h.RecordExpense)
		r.Route("/recurring", func(r chi.Router) {
			r.Get("/", h.ListRecurring)
			r.Post("/", h.CreateRecurring)
			r.Post("/run", h.RunRecurring)
		})

		// Report routes
		r.Get("/reports/{kind}", h.RunReport)
	})

	return r
}
