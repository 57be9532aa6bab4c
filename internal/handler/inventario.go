package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/caja/internal/command"
	"github.com/xenking/caja/internal/domain/auth"
	"github.com/xenking/caja/internal/domain/stock"
)

// maxMovements caps a movement listing.
const maxMovements = 500

type movementRequest struct {
	Kind         string           `json:"tipo" validate:"required,oneof=entrada salida transferencia ajuste venta"`
	MaterialCode string           `json:"material_codigo" validate:"required"`
	Quantity     *decimal.Decimal `json:"cantidad" validate:"required"`
	Origin       string           `json:"almacen_origen_id"`
	Destination  string           `json:"almacen_destino_id"`
	StoreID      string           `json:"tienda_id"`
	Reason       string           `json:"motivo" validate:"max=500"`
	Reference    string           `json:"referencia" validate:"max=200"`
}

type saleItemRequest struct {
	MaterialCode string           `json:"material_codigo" validate:"required"`
	Quantity     *decimal.Decimal `json:"cantidad" validate:"required"`
}

type saleRequest struct {
	StoreID     string            `json:"tienda_id" validate:"required"`
	WarehouseID string            `json:"almacen_id"`
	Reference   string            `json:"referencia" validate:"max=200"`
	Items       []saleItemRequest `json:"items" validate:"required,min=1,dive"`
}

func (h *Handler) listStock(w http.ResponseWriter, r *http.Request) {
	f := stock.LevelFilter{
		WarehouseID:  query(r, "almacen_id"),
		StoreID:      query(r, "tienda_id"),
		MaterialCode: query(r, "material_codigo"),
	}
	levels, err := command.Run(r.Context(), h.runner, "list_stock", func(ctx context.Context) ([]stock.Level, error) {
		return h.ledger.Levels(ctx, f)
	})
	if err != nil {
		fail(w, err)
		return
	}
	writeData(w, http.StatusOK, func(e *jx.Encoder) { list(e, levels, encodeLevel) })
}

func (h *Handler) listMovements(w http.ResponseWriter, r *http.Request) {
	limit := maxMovements
	if v := query(r, "limite"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limite: must be a positive integer")
			return
		}
		limit = min(n, maxMovements)
	}
	f := stock.MovementFilter{
		Kind:         stock.Kind(query(r, "tipo")),
		WarehouseID:  query(r, "almacen_id"),
		StoreID:      query(r, "tienda_id"),
		MaterialCode: query(r, "material_codigo"),
		Reference:    query(r, "referencia"),
		Limit:        limit,
	}
	entries, err := command.Run(r.Context(), h.runner, "list_movements", func(ctx context.Context) ([]stock.Entry, error) {
		return h.ledger.Movements(ctx, f)
	})
	if err != nil {
		fail(w, err)
		return
	}
	writeData(w, http.StatusOK, func(e *jx.Encoder) { list(e, entries, encodeEntry) })
}

func (h *Handler) createMovement(w http.ResponseWriter, r *http.Request) {
	var req movementRequest
	if !decode(w, r, &req) {
		return
	}
	entry, err := command.Run(r.Context(), h.runner, "create_movement", func(ctx context.Context) (*stock.Entry, error) {
		return h.ledger.Create(ctx, stock.Draft{
			Kind:         stock.Kind(req.Kind),
			MaterialCode: req.MaterialCode,
			Quantity:     *req.Quantity,
			Origin:       req.Origin,
			Destination:  req.Destination,
			StoreID:      req.StoreID,
			Reason:       req.Reason,
			Reference:    req.Reference,
			User:         auth.User(ctx),
		})
	})
	if err != nil {
		fail(w, err)
		return
	}
	writeData(w, http.StatusCreated, func(e *jx.Encoder) { encodeEntry(e, entry) })
}

func (h *Handler) recordSale(w http.ResponseWriter, r *http.Request) {
	var req saleRequest
	if !decode(w, r, &req) {
		return
	}
	sale := stock.Sale{
		StoreID:   req.StoreID,
		Warehouse: req.WarehouseID,
		Reference: req.Reference,
		Items:     make([]stock.SaleItem, len(req.Items)),
	}
	for i, it := range req.Items {
		sale.Items[i] = stock.SaleItem{MaterialCode: it.MaterialCode, Quantity: *it.Quantity}
	}
	entries, err := command.Run(r.Context(), h.runner, "record_sale", func(ctx context.Context) ([]stock.Entry, error) {
		sale.User = auth.User(ctx)
		return h.ledger.RecordSale(ctx, sale)
	})
	if err != nil {
		fail(w, err)
		return
	}
	writeData(w, http.StatusCreated, func(e *jx.Encoder) { list(e, entries, encodeEntry) })
}

func encodeLevel(e *jx.Encoder, l *stock.Level) {
	e.Obj(func(e *jx.Encoder) {
		strField(e, "almacen_id", l.WarehouseID)
		strField(e, "material_codigo", l.MaterialCode)
		quantityField(e, "cantidad", l.Quantity)
		timeField(e, "actualizado_en", l.UpdatedAt)
	})
}

func encodeEntry(e *jx.Encoder, m *stock.Entry) {
	e.Obj(func(e *jx.Encoder) {
		strField(e, "id", m.ID)
		strField(e, "tipo", string(m.Kind))
		strField(e, "material_codigo", m.MaterialCode)
		quantityField(e, "cantidad", m.Quantity)
		optStrField(e, "almacen_origen_id", m.Origin)
		optStrField(e, "almacen_destino_id", m.Destination)
		optStrField(e, "tienda_id", m.StoreID)
		optStrField(e, "motivo", m.Reason)
		optStrField(e, "referencia", m.Reference)
		optStrField(e, "usuario", m.User)
		if m.Origin != "" {
			quantityField(e, "cantidad_anterior_origen", m.OriginBefore)
			quantityField(e, "cantidad_nueva_origen", m.OriginAfter)
		}
		if m.Destination != "" {
			quantityField(e, "cantidad_anterior_destino", m.DestinationBefore)
			quantityField(e, "cantidad_nueva_destino", m.DestinationAfter)
		}
		timeField(e, "fecha", m.CreatedAt)
	})
}
