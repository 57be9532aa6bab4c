// Package order builds priced orders and settles them: a paid order deducts
// its items from stock and is recorded in its cash session in one unit of
// work.
package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/caja/internal/domain/cash"
	"github.com/xenking/caja/internal/domain/catalog"
	"github.com/xenking/caja/internal/domain/pricing"
	"github.com/xenking/caja/internal/domain/stock"
)

// Status is the lifecycle state of an order.
type Status string

// Order states.
const (
	StatusDraft     Status = "pendiente"
	StatusPaid      Status = "pagada"
	StatusCancelled Status = "cancelada"
)

// Method is a payment method.
type Method string

// Payment methods. MethodMixed is only valid for a whole payment, never for a
// single detail.
const (
	MethodCash     Method = "efectivo"
	MethodCard     Method = "tarjeta"
	MethodTransfer Method = "transferencia"
	MethodMixed    Method = "mixto"
)

// Concrete reports whether m can be used for a payment detail.
func (m Method) Concrete() bool {
	return m == MethodCash || m == MethodCard || m == MethodTransfer
}

// Valid reports whether m is a known method.
func (m Method) Valid() bool {
	return m.Concrete() || m == MethodMixed
}

var (
	// ErrOrderNotFound is returned when an order does not exist.
	ErrOrderNotFound = errors.New("order not found")
	// ErrEmptyItems is returned for an order without items.
	ErrEmptyItems = errors.New("items required")
	// ErrNotDraft is returned when changing an order that is paid or cancelled.
	ErrNotDraft = errors.New("order is not pending")
	// ErrPaymentMismatch is wrapped by *PaymentMismatchError.
	ErrPaymentMismatch = errors.New("payment does not match order total")
	// ErrInvalid is wrapped by every *ValidationError.
	ErrInvalid = errors.New("invalid order request")
)

// ValidationError describes a malformed request.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrInvalid }

// InvalidField returns the offending field.
func (e *ValidationError) InvalidField() string { return e.Field }

// PaymentMismatchError is returned when the payment breakdown does not sum to
// the order total.
type PaymentMismatchError struct {
	Total decimal.Decimal
	Paid  decimal.Decimal
}

func (e *PaymentMismatchError) Error() string {
	return fmt.Sprintf("payment of %s does not match order total %s",
		e.Paid.StringFixed(2), e.Total.StringFixed(2))
}

func (e *PaymentMismatchError) Unwrap() error { return ErrPaymentMismatch }

// Item is an order line.
type Item struct {
	MaterialCode string
	Description  string
	Category     string
	Quantity     decimal.Decimal
	UnitPrice    decimal.Decimal
	// WarehouseID overrides the warehouse the line is sold from.
	WarehouseID string
}

// Subtotal returns quantity times unit price.
func (i Item) Subtotal() decimal.Decimal {
	return i.Quantity.Mul(i.UnitPrice)
}

// Customer identifies the buyer of an order.
type Customer struct {
	ID    string
	Name  string
	Phone string
	TaxID string
}

// Order is a priced sale. It is immutable once paid or cancelled.
type Order struct {
	ID        string
	Number    string
	StoreID   string
	SessionID string
	Items     []Item

	DiscountPct    decimal.Decimal
	TaxPct         decimal.Decimal
	Subtotal       decimal.Decimal
	DiscountAmount decimal.Decimal
	TaxableBase    decimal.Decimal
	TaxAmount      decimal.Decimal
	Total          decimal.Decimal

	Status      Status
	Customer    *Customer
	Notes       string
	Method      Method
	WarehouseID string
	Payments    []Payment
	CreatedBy   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	PaidAt      *time.Time
}

// Draft reports whether the order can still change.
func (o *Order) Draft() bool {
	return o.Status == StatusDraft
}

func (o *Order) setTotals(t pricing.Totals) {
	t = t.Persisted()
	o.Subtotal = t.Subtotal
	o.DiscountAmount = t.DiscountAmount
	o.TaxableBase = t.TaxableBase
	o.TaxAmount = t.TaxAmount
	o.Total = t.Total
}

// PaymentDetail is one method and amount of a payment breakdown.
type PaymentDetail struct {
	Method    Method
	Amount    decimal.Decimal
	Received  decimal.Decimal
	Reference string
}

// Change returns the cash handed back for this detail.
func (d PaymentDetail) Change() decimal.Decimal {
	if d.Method != MethodCash || !d.Received.GreaterThan(d.Amount) {
		return decimal.Zero
	}
	return d.Received.Sub(d.Amount)
}

// Payment settles an order.
type Payment struct {
	ID          string
	OrderID     string
	Method      Method
	Details     []PaymentDetail
	WarehouseID string
	Change      decimal.Decimal
	CreatedAt   time.Time
}

// Filter narrows an order listing. Zero fields match everything.
type Filter struct {
	SessionID string
	StoreID   string
	Status    Status
	From      time.Time
	To        time.Time
}

// Repository is order storage as seen from inside a unit of work.
type Repository interface {
	// Lock returns the order locked for the rest of the unit of work.
	Lock(ctx context.Context, id string) (*Order, error)
	NextNumber(ctx context.Context, storeID string) (int, error)
	Create(ctx context.Context, o *Order) error
	Update(ctx context.Context, o *Order) error
	AddPayment(ctx context.Context, p *Payment) error
}

// Reader reads orders outside of a unit of work.
type Reader interface {
	Get(ctx context.Context, id string) (*Order, error)
	List(ctx context.Context, f Filter) ([]Order, error)
}

// Tx is a unit of work spanning orders, stock and cash sessions.
type Tx interface {
	Orders() Repository
	Stock() stock.Repository
	Cash() cash.Repository
	Stores() catalog.StoreResolver
}

// Store gives the processor transactional access to its storage.
type Store interface {
	Reader
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
