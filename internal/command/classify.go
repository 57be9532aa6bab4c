package command

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/xenking/caja/internal/domain/auth"
	"github.com/xenking/caja/internal/domain/cash"
	"github.com/xenking/caja/internal/domain/catalog"
	"github.com/xenking/caja/internal/domain/order"
	"github.com/xenking/caja/internal/domain/stock"
)

// Class groups command outcomes by how an operator should react.
type Class string

// Outcome classes.
const (
	ClassOK          Class = "ok"
	ClassValidation  Class = "validation"
	ClassConflict    Class = "conflict"
	ClassNotFound    Class = "not_found"
	ClassUnavailable Class = "unavailable"
)

// Message returns the generic operator message of the class.
func (c Class) Message() string {
	switch c {
	case ClassOK:
		return "ok"
	case ClassValidation:
		return "invalid request"
	case ClassConflict:
		return "the operation conflicts with the current state"
	case ClassNotFound:
		return "not found"
	default:
		return "service unavailable, try again"
	}
}

type fieldError interface {
	error
	InvalidField() string
}

var (
	validation = []error{
		order.ErrEmptyItems,
		order.ErrInvalid,
		cash.ErrInvalid,
		stock.ErrInvalidMovement,
		stock.ErrUnknownMaterial,
		stock.ErrUnknownWarehouse,
		catalog.ErrStoreNotMapped,
	}
	conflict = []error{
		cash.ErrSessionAlreadyOpen,
		cash.ErrSessionClosed,
		cash.ErrInsufficientCash,
		cash.ErrPendingOrders,
		order.ErrNotDraft,
		order.ErrPaymentMismatch,
	}
	notFound = []error{
		catalog.ErrMaterialNotFound,
		catalog.ErrWarehouseNotFound,
		catalog.ErrStoreNotFound,
		cash.ErrSessionNotFound,
		cash.ErrNoOpenSession,
		order.ErrOrderNotFound,
		auth.ErrKeyNotFound,
	}
)

func isAny(err error, targets []error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}

// Classify returns the class of err.
func Classify(err error) Class {
	if err == nil {
		return ClassOK
	}
	var (
		fErr  fieldError
		isErr *stock.InsufficientStockError
	)
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ClassUnavailable
	case errors.As(err, &isErr):
		return ClassConflict
	case isAny(err, conflict):
		return ClassConflict
	case errors.As(err, &fErr), isAny(err, validation):
		return ClassValidation
	case isAny(err, notFound):
		return ClassNotFound
	default:
		return ClassUnavailable
	}
}

// Message returns the operator message for err: the domain detail when err
// is a domain error, the generic class message otherwise.
func Message(err error) string {
	class := Classify(err)
	if class == ClassUnavailable || class == ClassOK {
		return class.Message()
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return class.Message()
}
