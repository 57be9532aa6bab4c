// Package stock implements the inventory ledger: typed stock movements, their
// validation, and their transactional application to stock levels.
package stock

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Kind is the type of a stock movement.
type Kind string

// Movement kinds.
const (
	KindEntrada       Kind = "entrada"
	KindSalida        Kind = "salida"
	KindTransferencia Kind = "transferencia"
	KindAjuste        Kind = "ajuste"
	KindVenta         Kind = "venta"
)

// Valid reports whether k is a known movement kind.
func (k Kind) Valid() bool {
	switch k {
	case KindEntrada, KindSalida, KindTransferencia, KindAjuste, KindVenta:
		return true
	default:
		return false
	}
}

var (
	// ErrInvalidMovement is wrapped by every *ValidationError.
	ErrInvalidMovement = errors.New("invalid stock movement")
	// ErrUnknownMaterial is returned when a movement references a material
	// that is not in the catalog.
	ErrUnknownMaterial = errors.New("unknown material")
	// ErrUnknownWarehouse is returned when a movement references a warehouse
	// that does not exist.
	ErrUnknownWarehouse = errors.New("unknown warehouse")
)

// ValidationError describes a malformed movement request.
type ValidationError struct {
	Field  string
	Reason string
	// Err is an optional cause, such as catalog.ErrStoreNotMapped.
	Err error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// InvalidField returns the offending field.
func (e *ValidationError) InvalidField() string { return e.Field }

func (e *ValidationError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrInvalidMovement}
	}
	return []error{ErrInvalidMovement, e.Err}
}

// InsufficientStockError is returned when applying a movement would leave a
// level below zero.
type InsufficientStockError struct {
	MaterialCode string
	WarehouseID  string
	Available    decimal.Decimal
	Requested    decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock of %s in warehouse %s: available %s, requested %s",
		e.MaterialCode, e.WarehouseID, e.Available, e.Requested)
}

// LevelKey identifies a stock level.
type LevelKey struct {
	WarehouseID  string
	MaterialCode string
}

func (k LevelKey) less(o LevelKey) bool {
	if k.WarehouseID != o.WarehouseID {
		return k.WarehouseID < o.WarehouseID
	}
	return k.MaterialCode < o.MaterialCode
}

// Level is the quantity on hand of a material at a warehouse.
type Level struct {
	WarehouseID  string
	MaterialCode string
	Quantity     decimal.Decimal
	UpdatedAt    time.Time
}

// Key returns the level key.
func (l Level) Key() LevelKey {
	return LevelKey{WarehouseID: l.WarehouseID, MaterialCode: l.MaterialCode}
}

// Entry is an applied movement as stored in the ledger history. Entries are
// never changed after they are appended.
type Entry struct {
	ID           string
	Kind         Kind
	MaterialCode string
	Quantity     decimal.Decimal
	Origin       string
	Destination  string
	StoreID      string
	Reason       string
	Reference    string
	User         string

	OriginBefore      decimal.Decimal
	OriginAfter       decimal.Decimal
	DestinationBefore decimal.Decimal
	DestinationAfter  decimal.Decimal

	CreatedAt time.Time
}

// LevelFilter narrows a level listing. Empty fields match everything.
type LevelFilter struct {
	WarehouseID  string
	StoreID      string
	MaterialCode string
}

// MovementFilter narrows a movement listing. Empty fields match everything.
type MovementFilter struct {
	Kind         Kind
	WarehouseID  string
	StoreID      string
	MaterialCode string
	Reference    string
	Limit        int
}

// Repository is the ledger storage as seen from inside a unit of work.
type Repository interface {
	// LockLevels locks the given levels for the rest of the unit of work and
	// returns their quantities. Missing levels are reported as zero.
	LockLevels(ctx context.Context, keys []LevelKey) (map[LevelKey]decimal.Decimal, error)
	SaveLevel(ctx context.Context, l Level) error
	AppendMovement(ctx context.Context, e *Entry) error
	// UnknownWarehouses returns the ids that do not exist.
	UnknownWarehouses(ctx context.Context, ids []string) ([]string, error)
	// UnknownMaterials returns the codes that are not in the catalog.
	UnknownMaterials(ctx context.Context, codes []string) ([]string, error)
}

// Reader lists ledger state outside of a unit of work.
type Reader interface {
	ListLevels(ctx context.Context, f LevelFilter) ([]Level, error)
	ListMovements(ctx context.Context, f MovementFilter) ([]Entry, error)
}

// Store gives the ledger transactional access to its storage.
type Store interface {
	Reader
	// InTx runs fn in a single unit of work. If fn returns an error nothing
	// it did is kept.
	InTx(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error
}
