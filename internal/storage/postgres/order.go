package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/xenking/caja/internal/domain/cash"
	"github.com/xenking/caja/internal/domain/catalog"
	"github.com/xenking/caja/internal/domain/order"
	"github.com/xenking/caja/internal/domain/stock"
)

const orderColumns = `id, number, store_id, session_id, items, discount_pct, tax_pct,
	subtotal, discount_amount, taxable_base, tax_amount, total, status, customer, notes,
	method, warehouse_id, created_by, created_at, updated_at, paid_at`

const (
	getOrderSQL  = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	lockOrderSQL = getOrderSQL + ` FOR UPDATE`

	listOrdersSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE ($1::text = '' OR session_id = $1)
		  AND ($2::text = '' OR store_id = $2)
		  AND ($3::text = '' OR status = $3)
		  AND ($4::timestamptz IS NULL OR created_at >= $4)
		  AND ($5::timestamptz IS NULL OR created_at <= $5)
		ORDER BY created_at DESC, number DESC`

	createOrderSQL = `INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`

	updateOrderSQL = `UPDATE orders SET
			items = $2, discount_pct = $3, tax_pct = $4, subtotal = $5, discount_amount = $6,
			taxable_base = $7, tax_amount = $8, total = $9, status = $10, customer = $11, notes = $12,
			method = $13, warehouse_id = $14, updated_at = $15, paid_at = $16
		WHERE id = $1`

	addPaymentSQL = `INSERT INTO payments (id, order_id, method, details, warehouse_id, change_amount, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	listPaymentsSQL = `SELECT id, order_id, method, details, warehouse_id, change_amount, created_at
		FROM payments WHERE order_id = ANY($1) ORDER BY created_at, id`
)

// itemRow is the JSON shape of an order line in orders.items.
type itemRow struct {
	MaterialCode string          `json:"material_codigo"`
	Description  string          `json:"descripcion,omitempty"`
	Category     string          `json:"categoria,omitempty"`
	Quantity     decimal.Decimal `json:"cantidad"`
	UnitPrice    decimal.Decimal `json:"precio_unitario"`
	WarehouseID  string          `json:"almacen_id,omitempty"`
}

type customerRow struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"nombre,omitempty"`
	Phone string `json:"telefono,omitempty"`
	TaxID string `json:"ci,omitempty"`
}

type detailRow struct {
	Method    string          `json:"metodo"`
	Amount    decimal.Decimal `json:"monto"`
	Received  decimal.Decimal `json:"monto_recibido"`
	Reference string          `json:"referencia,omitempty"`
}

type orderStore struct{ s *Store }

type orderTx struct{ tx pgx.Tx }

var (
	_ order.Store      = orderStore{}
	_ order.Tx         = orderTx{}
	_ order.Repository = orderRepo{}
)

func (s orderStore) InTx(ctx context.Context, fn func(ctx context.Context, tx order.Tx) error) error {
	return s.s.inTx(ctx, func(tx pgx.Tx) error { return fn(ctx, orderTx{tx}) })
}

func (t orderTx) Orders() order.Repository      { return orderRepo(t) }
func (t orderTx) Stock() stock.Repository       { return stockTx(t) }
func (t orderTx) Cash() cash.Repository         { return cashTx(t) }
func (t orderTx) Stores() catalog.StoreResolver { return storesTx(t) }

func (s orderStore) Get(ctx context.Context, id string) (*order.Order, error) {
	o, err := selectOrder(ctx, s.s.pool, getOrderSQL, id)
	if err != nil {
		return nil, err
	}
	orders := []order.Order{*o}
	if err := attachPayments(ctx, s.s.pool, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

func (s orderStore) List(ctx context.Context, f order.Filter) ([]order.Order, error) {
	rows, err := s.s.pool.Query(ctx, listOrdersSQL,
		f.SessionID, f.StoreID, string(f.Status), nullTime(f.From), nullTime(f.To))
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	if err := attachPayments(ctx, s.s.pool, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

type orderRepo struct{ tx pgx.Tx }

func (r orderRepo) Lock(ctx context.Context, id string) (*order.Order, error) {
	o, err := selectOrder(ctx, r.tx, lockOrderSQL, id)
	if err != nil {
		return nil, err
	}
	orders := []order.Order{*o}
	if err := attachPayments(ctx, r.tx, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

func (r orderRepo) NextNumber(ctx context.Context, storeID string) (int, error) {
	return nextSequence(ctx, r.tx, "order", storeID)
}

func (r orderRepo) Create(ctx context.Context, o *order.Order) error {
	items, customer, err := encodeOrder(o)
	if err != nil {
		return err
	}
	_, err = r.tx.Exec(ctx, createOrderSQL,
		o.ID, o.Number, o.StoreID, o.SessionID, items, o.DiscountPct, o.TaxPct,
		o.Subtotal, o.DiscountAmount, o.TaxableBase, o.TaxAmount, o.Total, string(o.Status), customer, o.Notes,
		string(o.Method), o.WarehouseID, o.CreatedBy, o.CreatedAt, o.UpdatedAt, o.PaidAt,
	)
	if err != nil {
		return fmt.Errorf("creating order: %w", err)
	}
	return nil
}

func (r orderRepo) Update(ctx context.Context, o *order.Order) error {
	items, customer, err := encodeOrder(o)
	if err != nil {
		return err
	}
	tag, err := r.tx.Exec(ctx, updateOrderSQL,
		o.ID, items, o.DiscountPct, o.TaxPct, o.Subtotal, o.DiscountAmount,
		o.TaxableBase, o.TaxAmount, o.Total, string(o.Status), customer, o.Notes,
		string(o.Method), o.WarehouseID, o.UpdatedAt, o.PaidAt,
	)
	if err != nil {
		return fmt.Errorf("updating order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrOrderNotFound
	}
	return nil
}

func (r orderRepo) AddPayment(ctx context.Context, p *order.Payment) error {
	details := make([]detailRow, len(p.Details))
	for i, d := range p.Details {
		details[i] = detailRow{Method: string(d.Method), Amount: d.Amount, Received: d.Received, Reference: d.Reference}
	}
	raw, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("encoding payment details: %w", err)
	}
	_, err = r.tx.Exec(ctx, addPaymentSQL,
		p.ID, p.OrderID, string(p.Method), raw, p.WarehouseID, p.Change, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("adding payment: %w", err)
	}
	return nil
}

func encodeOrder(o *order.Order) (items, customer []byte, err error) {
	rows := make([]itemRow, len(o.Items))
	for i, it := range o.Items {
		rows[i] = itemRow{
			MaterialCode: it.MaterialCode,
			Description:  it.Description,
			Category:     it.Category,
			Quantity:     it.Quantity,
			UnitPrice:    it.UnitPrice,
			WarehouseID:  it.WarehouseID,
		}
	}
	if items, err = json.Marshal(rows); err != nil {
		return nil, nil, fmt.Errorf("encoding order items: %w", err)
	}
	if c := o.Customer; c != nil {
		if customer, err = json.Marshal(customerRow{ID: c.ID, Name: c.Name, Phone: c.Phone, TaxID: c.TaxID}); err != nil {
			return nil, nil, fmt.Errorf("encoding customer: %w", err)
		}
	}
	return items, customer, nil
}

func selectOrder(ctx context.Context, q querier, sql, id string) (*order.Order, error) {
	rows, err := q.Query(ctx, sql, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrOrderNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	return &o, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o        order.Order
		items    []byte
		customer []byte
		status   string
		method   string
	)
	if err := row.Scan(
		&o.ID, &o.Number, &o.StoreID, &o.SessionID, &items, &o.DiscountPct, &o.TaxPct,
		&o.Subtotal, &o.DiscountAmount, &o.TaxableBase, &o.TaxAmount, &o.Total, &status, &customer, &o.Notes,
		&method, &o.WarehouseID, &o.CreatedBy, &o.CreatedAt, &o.UpdatedAt, &o.PaidAt,
	); err != nil {
		return o, err
	}
	o.Status = order.Status(status)
	o.Method = order.Method(method)

	var rows []itemRow
	if err := json.Unmarshal(items, &rows); err != nil {
		return o, fmt.Errorf("decoding order items: %w", err)
	}
	o.Items = make([]order.Item, len(rows))
	for i, r := range rows {
		o.Items[i] = order.Item{
			MaterialCode: r.MaterialCode,
			Description:  r.Description,
			Category:     r.Category,
			Quantity:     r.Quantity,
			UnitPrice:    r.UnitPrice,
			WarehouseID:  r.WarehouseID,
		}
	}
	if len(customer) > 0 {
		var c *customerRow
		if err := json.Unmarshal(customer, &c); err != nil {
			return o, fmt.Errorf("decoding customer: %w", err)
		}
		if c != nil {
			o.Customer = &order.Customer{ID: c.ID, Name: c.Name, Phone: c.Phone, TaxID: c.TaxID}
		}
	}
	return o, nil
}

func attachPayments(ctx context.Context, q querier, orders []order.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]string, len(orders))
	byID := make(map[string]int, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		byID[o.ID] = i
	}

	rows, err := q.Query(ctx, listPaymentsSQL, ids)
	if err != nil {
		return fmt.Errorf("listing payments: %w", err)
	}
	payments, err := pgx.CollectRows(rows, scanPayment)
	if err != nil {
		return fmt.Errorf("listing payments: %w", err)
	}
	for _, p := range payments {
		i := byID[p.OrderID]
		orders[i].Payments = append(orders[i].Payments, p)
	}
	return nil
}

func scanPayment(row pgx.CollectableRow) (order.Payment, error) {
	var (
		p       order.Payment
		method  string
		details []byte
	)
	if err := row.Scan(&p.ID, &p.OrderID, &method, &details, &p.WarehouseID, &p.Change, &p.CreatedAt); err != nil {
		return p, err
	}
	p.Method = order.Method(method)

	var rows []detailRow
	if err := json.Unmarshal(details, &rows); err != nil {
		return p, fmt.Errorf("decoding payment details: %w", err)
	}
	p.Details = make([]order.PaymentDetail, len(rows))
	for i, r := range rows {
		p.Details[i] = order.PaymentDetail{
			Method:    order.Method(r.Method),
			Amount:    r.Amount,
			Received:  r.Received,
			Reference: r.Reference,
		}
	}
	return p, nil
}
