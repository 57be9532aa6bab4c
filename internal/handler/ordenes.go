package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/caja/internal/command"
	"github.com/xenking/caja/internal/domain/auth"
	"github.com/xenking/caja/internal/domain/order"
)

type itemRequest struct {
	MaterialCode string           `json:"material_codigo" validate:"required"`
	Description  string           `json:"descripcion"`
	Category     string           `json:"categoria"`
	Quantity     *decimal.Decimal `json:"cantidad" validate:"required"`
	UnitPrice    *decimal.Decimal `json:"precio_unitario" validate:"required"`
	WarehouseID  string           `json:"almacen_id"`
}

type customerRequest struct {
	ID    string `json:"cliente_id"`
	Name  string `json:"cliente_nombre"`
	Phone string `json:"cliente_telefono"`
	TaxID string `json:"cliente_ci"`
}

func (c customerRequest) customer() *order.Customer {
	if c == (customerRequest{}) {
		return nil
	}
	return &order.Customer{ID: c.ID, Name: c.Name, Phone: c.Phone, TaxID: c.TaxID}
}

type createOrderRequest struct {
	customerRequest
	SessionID   string           `json:"sesion_caja_id" validate:"required"`
	StoreID     string           `json:"tienda_id"`
	Items       []itemRequest    `json:"items" validate:"required,min=1,dive"`
	DiscountPct *decimal.Decimal `json:"descuento_porcentaje"`
	TaxPct      *decimal.Decimal `json:"impuesto_porcentaje"`
	Notes       string           `json:"notas" validate:"max=1000"`
}

type updateOrderRequest struct {
	customerRequest
	Items       []itemRequest    `json:"items" validate:"omitempty,min=1,dive"`
	DiscountPct *decimal.Decimal `json:"descuento_porcentaje"`
	TaxPct      *decimal.Decimal `json:"impuesto_porcentaje"`
	Notes       *string          `json:"notas" validate:"omitempty,max=1000"`
}

type paymentDetailRequest struct {
	Method    string           `json:"metodo" validate:"required,oneof=efectivo tarjeta transferencia"`
	Amount    *decimal.Decimal `json:"monto" validate:"required"`
	Received  *decimal.Decimal `json:"monto_recibido"`
	Reference string           `json:"referencia" validate:"max=200"`
}

type payOrderRequest struct {
	Method      string                 `json:"metodo_pago" validate:"omitempty,oneof=efectivo tarjeta transferencia mixto"`
	WarehouseID string                 `json:"almacen_id"`
	Payments    []paymentDetailRequest `json:"pagos" validate:"required,min=1,dive"`
}

func items(reqs []itemRequest) []order.Item {
	if reqs == nil {
		return nil
	}
	out := make([]order.Item, len(reqs))
	for i, r := range reqs {
		out[i] = order.Item{
			MaterialCode: r.MaterialCode,
			Description:  r.Description,
			Category:     r.Category,
			Quantity:     *r.Quantity,
			UnitPrice:    *r.UnitPrice,
			WarehouseID:  r.WarehouseID,
		}
	}
	return out
}

func orZero(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	return *d
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if !decode(w, r, &req) {
		return
	}
	o, err := command.Run(r.Context(), h.runner, "create_order", func(ctx context.Context) (*order.Order, error) {
		return h.orders.Create(ctx, order.CreateRequest{
			SessionID:   req.SessionID,
			StoreID:     req.StoreID,
			Items:       items(req.Items),
			DiscountPct: orZero(req.DiscountPct),
			TaxPct:      orZero(req.TaxPct),
			Customer:    req.customer(),
			Notes:       req.Notes,
			User:        auth.User(ctx),
		})
	})
	if err != nil {
		fail(w, err)
		return
	}
	writeData(w, http.StatusCreated, func(e *jx.Encoder) { encodeOrder(e, o) })
}

func (h *Handler) updateOrder(w http.ResponseWriter, r *http.Request) {
	var req updateOrderRequest
	if !decode(w, r, &req) {
		return
	}
	o, err := command.Run(r.Context(), h.runner, "update_order", func(ctx context.Context) (*order.Order, error) {
		return h.orders.Update(ctx, chi.URLParam(r, "id"), order.UpdateRequest{
			Items:       items(req.Items),
			DiscountPct: req.DiscountPct,
			TaxPct:      req.TaxPct,
			Customer:    req.customer(),
			Notes:       req.Notes,
		})
	})
	if err != nil {
		fail(w, err)
		return
	}
	writeData(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	o, err := command.Run(r.Context(), h.runner, "cancel_order", func(ctx context.Context) (*order.Order, error) {
		return h.orders.Cancel(ctx, chi.URLParam(r, "id"))
	})
	if err != nil {
		fail(w, err)
		return
	}
	writeData(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := command.Run(r.Context(), h.runner, "get_order", func(ctx context.Context) (*order.Order, error) {
		return h.orders.Get(ctx, chi.URLParam(r, "id"))
	})
	if err != nil {
		fail(w, err)
		return
	}
	writeData(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	from, err := queryTime(r, "fecha_desde", false)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	to, err := queryTime(r, "fecha_hasta", true)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	f := order.Filter{
		SessionID: query(r, "sesion_caja_id"),
		StoreID:   query(r, "tienda_id"),
		Status:    order.Status(query(r, "estado")),
		From:      from,
		To:        to,
	}
	orders, err := command.Run(r.Context(), h.runner, "list_orders", func(ctx context.Context) ([]order.Order, error) {
		return h.orders.List(ctx, f)
	})
	if err != nil {
		fail(w, err)
		return
	}
	writeData(w, http.StatusOK, func(e *jx.Encoder) { list(e, orders, encodeOrder) })
}

func (h *Handler) payOrder(w http.ResponseWriter, r *http.Request) {
	var req payOrderRequest
	if !decode(w, r, &req) {
		return
	}
	details := make([]order.PaymentDetail, len(req.Payments))
	for i, p := range req.Payments {
		details[i] = order.PaymentDetail{
			Method:    order.Method(p.Method),
			Amount:    *p.Amount,
			Received:  orZero(p.Received),
			Reference: p.Reference,
		}
	}
	res, err := command.Run(r.Context(), h.runner, "pay_order", func(ctx context.Context) (*order.PayResult, error) {
		return h.orders.Pay(ctx, order.PayRequest{
			OrderID:     chi.URLParam(r, "id"),
			Method:      order.Method(req.Method),
			Details:     details,
			WarehouseID: req.WarehouseID,
			User:        auth.User(ctx),
		})
	})
	if err != nil {
		fail(w, err)
		return
	}
	writeData(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("success", func(e *jx.Encoder) { e.Bool(true) })
			e.Field("orden", func(e *jx.Encoder) { encodeOrder(e, res.Order) })
			e.Field("pago", func(e *jx.Encoder) { encodePayment(e, res.Payment) })
			moneyField(e, "cambio", res.Change)
			e.Field("movimientos_inventario", func(e *jx.Encoder) {
				e.Arr(func(e *jx.Encoder) {
					for _, id := range res.Movements {
						e.Str(id)
					}
				})
			})
		})
	})
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.Obj(func(e *jx.Encoder) {
		strField(e, "id", o.ID)
		strField(e, "numero_orden", o.Number)
		strField(e, "tienda_id", o.StoreID)
		strField(e, "sesion_caja_id", o.SessionID)
		strField(e, "estado", string(o.Status))

		var c order.Customer
		if o.Customer != nil {
			c = *o.Customer
		}
		optStrField(e, "cliente_id", c.ID)
		optStrField(e, "cliente_nombre", c.Name)
		optStrField(e, "cliente_telefono", c.Phone)
		optStrField(e, "cliente_ci", c.TaxID)

		e.Field("items", func(e *jx.Encoder) { list(e, o.Items, encodeItem) })
		moneyField(e, "subtotal", o.Subtotal)
		quantityField(e, "descuento_porcentaje", o.DiscountPct)
		moneyField(e, "descuento_monto", o.DiscountAmount)
		moneyField(e, "base_imponible", o.TaxableBase)
		quantityField(e, "impuesto_porcentaje", o.TaxPct)
		moneyField(e, "impuesto_monto", o.TaxAmount)
		moneyField(e, "total", o.Total)

		optStrField(e, "metodo_pago", string(o.Method))
		e.Field("pagos", func(e *jx.Encoder) { list(e, o.Payments, encodePayment) })
		optStrField(e, "almacen_id", o.WarehouseID)
		optStrField(e, "notas", o.Notes)
		optStrField(e, "usuario", o.CreatedBy)
		timeField(e, "fecha_creacion", o.CreatedAt)
		timeField(e, "fecha_actualizacion", o.UpdatedAt)
		e.Field("fecha_pago", func(e *jx.Encoder) { optTime(e, o.PaidAt) })
	})
}

func encodeItem(e *jx.Encoder, it *order.Item) {
	e.Obj(func(e *jx.Encoder) {
		strField(e, "material_codigo", it.MaterialCode)
		strField(e, "descripcion", it.Description)
		optStrField(e, "categoria", it.Category)
		quantityField(e, "cantidad", it.Quantity)
		moneyField(e, "precio_unitario", it.UnitPrice)
		moneyField(e, "subtotal", it.Subtotal())
		optStrField(e, "almacen_id", it.WarehouseID)
	})
}

func encodePayment(e *jx.Encoder, p *order.Payment) {
	e.Obj(func(e *jx.Encoder) {
		strField(e, "id", p.ID)
		strField(e, "orden_id", p.OrderID)
		strField(e, "metodo_pago", string(p.Method))
		optStrField(e, "almacen_id", p.WarehouseID)
		moneyField(e, "cambio", p.Change)
		timeField(e, "fecha", p.CreatedAt)
		e.Field("detalles", func(e *jx.Encoder) {
			list(e, p.Details, func(e *jx.Encoder, d *order.PaymentDetail) {
				e.Obj(func(e *jx.Encoder) {
					strField(e, "metodo", string(d.Method))
					moneyField(e, "monto", d.Amount)
					if d.Method == order.MethodCash {
						moneyField(e, "monto_recibido", d.Received)
						moneyField(e, "cambio", d.Change())
					}
					optStrField(e, "referencia", d.Reference)
				})
			})
		})
	})
}
