// Package handler exposes the caja and inventory operations over HTTP.
//
// Every operation runs as a command, so it is traced, logged and counted
// the same way regardless of the route that triggered it.
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/caja/internal/command"
	"github.com/xenking/caja/internal/domain/auth"
	"github.com/xenking/caja/internal/domain/cash"
	"github.com/xenking/caja/internal/domain/catalog"
	"github.com/xenking/caja/internal/domain/order"
	"github.com/xenking/caja/internal/domain/stock"
)

// Catalog is the catalog storage used by the handler.
type Catalog interface {
	catalog.Repository
	catalog.Writer
}

// StoreInvalidator drops cached stores after they change.
type StoreInvalidator interface {
	Invalidate(ctx context.Context, id string)
}

// Deps holds the dependencies of the Handler.
type Deps struct {
	Sessions *cash.Manager
	Orders   *order.Processor
	Ledger   *stock.Ledger
	Catalog  Catalog
	// Stores is optional.
	Stores StoreInvalidator
	Keys   auth.Repository
	Pepper []byte
	Runner *command.Runner
}

// Handler serves the /api routes.
type Handler struct {
	sessions *cash.Manager
	orders   *order.Processor
	ledger   *stock.Ledger
	catalog  Catalog
	stores   StoreInvalidator
	runner   *command.Runner
	keys     *SecurityHandler
}

// New creates a Handler.
func New(d Deps) *Handler {
	runner := d.Runner
	if runner == nil {
		runner = command.NewRunner(command.LogSink{}, nil)
	}
	return &Handler{
		sessions: d.Sessions,
		orders:   d.Orders,
		ledger:   d.Ledger,
		catalog:  d.Catalog,
		stores:   d.Stores,
		runner:   runner,
		keys:     NewSecurityHandler(d.Keys, d.Pepper),
	}
}

// Routes returns the API router, to be mounted at /api.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(h.keys.Authenticate)
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	readers := RequireScope(auth.ScopeRead, auth.ScopeCaja, auth.ScopeInventory)

	r.Route("/caja", func(r chi.Router) {
		r.Use(RequireScope(auth.ScopeCaja))

		r.Post("/sesiones", h.openSession)
		r.Get("/sesiones", h.listSessions)
		r.Get("/sesiones/{id}", h.getSession)
		r.Post("/sesiones/{id}/cerrar", h.closeSession)
		r.Post("/sesiones/{id}/movimientos-efectivo", h.registerCashMovement)
		r.Get("/sesiones/{id}/movimientos-efectivo", h.listCashMovements)
		r.Get("/tiendas/{storeID}/sesion-activa", h.activeSession)

		r.Post("/ordenes", h.createOrder)
		r.Get("/ordenes", h.listOrders)
		r.Get("/ordenes/{id}", h.getOrder)
		r.Put("/ordenes/{id}", h.updateOrder)
		r.Delete("/ordenes/{id}", h.cancelOrder)
		r.Post("/ordenes/{id}/pagar", h.payOrder)
	})

	r.Route("/inventario", func(r chi.Router) {
		r.With(readers).Get("/stock", h.listStock)
		r.With(readers).Get("/movimientos", h.listMovements)
		r.With(RequireScope(auth.ScopeInventory)).Post("/movimientos", h.createMovement)
		r.With(RequireScope(auth.ScopeInventory)).Post("/ventas", h.recordSale)
	})

	r.With(readers).Get("/almacenes", h.listWarehouses)
	r.With(RequireScope(auth.ScopeInventory)).Post("/almacenes", h.saveWarehouse)
	r.With(readers).Get("/tiendas", h.listStores)
	r.With(RequireScope(auth.ScopeInventory)).Post("/tiendas", h.saveStore)
	r.With(readers).Get("/materiales", h.listMaterials)

	return r
}
