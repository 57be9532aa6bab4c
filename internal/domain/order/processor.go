package order

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/caja/internal/domain/cash"
	"github.com/xenking/caja/internal/domain/pricing"
	"github.com/xenking/caja/internal/domain/stock"
)

// CreateRequest holds the input for creating an order.
type CreateRequest struct {
	SessionID   string
	StoreID     string
	Items       []Item
	DiscountPct decimal.Decimal
	TaxPct      decimal.Decimal
	Customer    *Customer
	Notes       string
	User        string
}

// UpdateRequest changes a pending order. Nil fields are left unchanged.
type UpdateRequest struct {
	Items       []Item
	DiscountPct *decimal.Decimal
	TaxPct      *decimal.Decimal
	Customer    *Customer
	Notes       *string
}

// PayRequest holds the input for paying an order.
type PayRequest struct {
	OrderID     string
	Method      Method
	Details     []PaymentDetail
	WarehouseID string
	User        string
}

// PayResult holds the output of a successful payment.
type PayResult struct {
	Order     *Order
	Payment   *Payment
	Session   *cash.Session
	Change    decimal.Decimal
	Movements []string
}

// PaymentObserver is notified of every committed payment.
type PaymentObserver interface {
	Paid(ctx context.Context, o *Order, p *Payment)
}

// Processor encapsulates order and payment business logic.
type Processor struct {
	store    Store
	sessions *cash.Manager
	ledger   *stock.Ledger
	observer PaymentObserver
	now      func() time.Time
}

// NewProcessor creates a Processor.
func NewProcessor(store Store, sessions *cash.Manager, ledger *stock.Ledger) *Processor {
	return &Processor{
		store:    store,
		sessions: sessions,
		ledger:   ledger,
		now:      time.Now,
	}
}

// SetObserver sets the observer notified after each successful Pay.
func (p *Processor) SetObserver(obs PaymentObserver) {
	p.observer = obs
}

// SetClock overrides the time source.
func (p *Processor) SetClock(now func() time.Time) {
	p.now = now
}

// price checks items against the catalog and computes the order totals.
func (p *Processor) price(items []Item, discountPct, taxPct decimal.Decimal) (pricing.Totals, error) {
	if len(items) == 0 {
		return pricing.Totals{}, ErrEmptyItems
	}
	lines := make([]pricing.Line, len(items))
	for i, it := range items {
		if strings.TrimSpace(it.MaterialCode) == "" {
			return pricing.Totals{}, &ValidationError{Field: fmt.Sprintf("items[%d].material_codigo", i), Reason: "required"}
		}
		if !it.Quantity.IsPositive() {
			return pricing.Totals{}, &ValidationError{Field: fmt.Sprintf("items[%d].cantidad", i), Reason: "must be greater than 0"}
		}
		if !it.Quantity.Equal(it.Quantity.Round(stock.QuantityPlaces)) {
			return pricing.Totals{}, &ValidationError{Field: fmt.Sprintf("items[%d].cantidad", i), Reason: "at most 3 decimal places"}
		}
		if !p.ledger.Validator().Known(it.MaterialCode) {
			return pricing.Totals{}, &ValidationError{Field: fmt.Sprintf("items[%d].material_codigo", i), Reason: "unknown material"}
		}
		lines[i] = pricing.Line{Quantity: it.Quantity, UnitPrice: it.UnitPrice}
	}
	return pricing.Calculate(lines, discountPct, taxPct)
}

// Create prices and stores a pending order in an open session. It has no
// stock or cash effect.
func (p *Processor) Create(ctx context.Context, req CreateRequest) (*Order, error) {
	totals, err := p.price(req.Items, req.DiscountPct, req.TaxPct)
	if err != nil {
		return nil, err
	}

	now := p.now()
	o := &Order{
		ID:          uuid.NewString(),
		SessionID:   req.SessionID,
		StoreID:     req.StoreID,
		Items:       req.Items,
		DiscountPct: req.DiscountPct,
		TaxPct:      req.TaxPct,
		Status:      StatusDraft,
		Customer:    req.Customer,
		Notes:       strings.TrimSpace(req.Notes),
		CreatedBy:   req.User,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	o.setTotals(totals)

	if err := p.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		s, err := p.sessions.RequireOpen(ctx, tx.Cash(), req.SessionID)
		if err != nil {
			return err
		}
		switch {
		case o.StoreID == "":
			o.StoreID = s.StoreID
		case o.StoreID != s.StoreID:
			return &ValidationError{Field: "tienda_id", Reason: "does not match the session store"}
		}
		n, err := tx.Orders().NextNumber(ctx, o.StoreID)
		if err != nil {
			return errors.Wrap(err, "next order number")
		}
		o.Number = fmt.Sprintf("ORD-%06d", n)
		return tx.Orders().Create(ctx, o)
	}); err != nil {
		return nil, err
	}

	zctx.From(ctx).Info("Order created",
		zap.String("order_id", o.ID),
		zap.String("number", o.Number),
		zap.String("session_id", o.SessionID),
		zap.String("total", o.Total.StringFixed(2)),
	)
	return o, nil
}

// Get returns an order with its payments.
func (p *Processor) Get(ctx context.Context, id string) (*Order, error) {
	return p.store.Get(ctx, id)
}

// List lists orders, newest first.
func (p *Processor) List(ctx context.Context, f Filter) ([]Order, error) {
	return p.store.List(ctx, f)
}

func lockDraft(ctx context.Context, repo Repository, id string) (*Order, error) {
	o, err := repo.Lock(ctx, id)
	if err != nil {
		return nil, err
	}
	if !o.Draft() {
		return nil, errors.Wrapf(ErrNotDraft, "order %s is %s", o.Number, o.Status)
	}
	return o, nil
}

// Update changes a pending order and recomputes its totals.
func (p *Processor) Update(ctx context.Context, id string, req UpdateRequest) (*Order, error) {
	var o *Order
	if err := p.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		if o, err = lockDraft(ctx, tx.Orders(), id); err != nil {
			return err
		}
		if req.Items != nil {
			o.Items = req.Items
		}
		if req.DiscountPct != nil {
			o.DiscountPct = *req.DiscountPct
		}
		if req.TaxPct != nil {
			o.TaxPct = *req.TaxPct
		}
		if req.Customer != nil {
			o.Customer = req.Customer
		}
		if req.Notes != nil {
			o.Notes = strings.TrimSpace(*req.Notes)
		}
		totals, err := p.price(o.Items, o.DiscountPct, o.TaxPct)
		if err != nil {
			return err
		}
		o.setTotals(totals)
		o.UpdatedAt = p.now()
		return tx.Orders().Update(ctx, o)
	}); err != nil {
		return nil, err
	}
	return o, nil
}

// Cancel cancels a pending order.
func (p *Processor) Cancel(ctx context.Context, id string) (*Order, error) {
	var o *Order
	if err := p.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		if o, err = lockDraft(ctx, tx.Orders(), id); err != nil {
			return err
		}
		o.Status = StatusCancelled
		o.UpdatedAt = p.now()
		return tx.Orders().Update(ctx, o)
	}); err != nil {
		return nil, err
	}
	return o, nil
}

// Pay settles a pending order. In one unit of work it reconciles the payment
// against the order total, deducts every item from stock with a venta
// movement, records the payment in the open session and marks the order
// paid. On any failure the order stays pending and nothing else changes.
func (p *Processor) Pay(ctx context.Context, req PayRequest) (*PayResult, error) {
	if req.Method != "" && !req.Method.Valid() {
		return nil, &ValidationError{Field: "metodo_pago", Reason: "unknown payment method"}
	}
	if len(req.Details) == 0 {
		return nil, &ValidationError{Field: "pagos", Reason: "required"}
	}

	var res *PayResult
	if err := p.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		o, err := lockDraft(ctx, tx.Orders(), req.OrderID)
		if err != nil {
			return err
		}
		b, err := Reconcile(o.Total, req.Method, req.Details)
		if err != nil {
			return err
		}
		if _, err := p.sessions.RequireOpen(ctx, tx.Cash(), o.SessionID); err != nil {
			return err
		}

		moves := make([]stock.Movement, len(o.Items))
		for i, it := range o.Items {
			wh := it.WarehouseID
			if wh == "" {
				wh = req.WarehouseID
			}
			m, err := p.ledger.Validator().ValidateWith(ctx, tx.Stores(), stock.Draft{
				Kind:         stock.KindVenta,
				MaterialCode: it.MaterialCode,
				Quantity:     it.Quantity,
				Origin:       wh,
				StoreID:      o.StoreID,
				Reason:       "venta",
				Reference:    o.Number,
				User:         req.User,
			})
			if err != nil {
				return errors.Wrapf(err, "items[%d]", i)
			}
			moves[i] = m
		}
		entries, err := p.ledger.ApplyTx(ctx, tx.Stock(), moves)
		if err != nil {
			return err
		}

		s, err := p.sessions.RecordPayment(ctx, tx.Cash(), o.SessionID, b.Receipt)
		if err != nil {
			return err
		}

		now := p.now()
		pay := &Payment{
			ID:          uuid.NewString(),
			OrderID:     o.ID,
			Method:      b.Method,
			Details:     req.Details,
			WarehouseID: req.WarehouseID,
			Change:      b.Change,
			CreatedAt:   now,
		}
		if err := tx.Orders().AddPayment(ctx, pay); err != nil {
			return errors.Wrap(err, "add payment")
		}

		o.Status = StatusPaid
		o.Method = b.Method
		o.WarehouseID = req.WarehouseID
		if o.WarehouseID == "" && len(entries) > 0 {
			o.WarehouseID = entries[0].Origin
		}
		o.PaidAt = &now
		o.UpdatedAt = now
		o.Payments = append(o.Payments, *pay)
		if err := tx.Orders().Update(ctx, o); err != nil {
			return errors.Wrap(err, "update order")
		}

		ids := make([]string, len(entries))
		for i, e := range entries {
			ids[i] = e.ID
		}
		res = &PayResult{
			Order:     o,
			Payment:   pay,
			Session:   s,
			Change:    b.Change,
			Movements: ids,
		}
		return nil
	}); err != nil {
		return nil, err
	}
	if p.observer != nil {
		p.observer.Paid(ctx, res.Order, res.Payment)
	}

	zctx.From(ctx).Info("Order paid",
		zap.String("order_id", res.Order.ID),
		zap.String("number", res.Order.Number),
		zap.String("method", string(res.Payment.Method)),
		zap.String("total", res.Order.Total.StringFixed(2)),
		zap.String("change", res.Change.StringFixed(2)),
		zap.Int("movements", len(res.Movements)),
	)
	return res, nil
}
