package stock

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/caja/internal/domain/catalog"
)

// Draft is a movement request as received from a client. Which fields are
// required depends on Kind.
type Draft struct {
	Kind         Kind
	MaterialCode string
	Quantity     decimal.Decimal
	Origin       string
	Destination  string
	StoreID      string
	Reason       string
	Reference    string
	User         string
}

// QuantityPlaces is the number of decimal places a stock quantity may carry.
const QuantityPlaces = 3

// MaterialIndex reports whether a material code exists in the catalog.
type MaterialIndex interface {
	Known(code string) bool
}

// Validator turns drafts into typed movements.
type Validator struct {
	materials MaterialIndex
	stores    catalog.StoreResolver
}

// NewValidator creates a Validator.
func NewValidator(materials MaterialIndex, stores catalog.StoreResolver) *Validator {
	return &Validator{materials: materials, stores: stores}
}

// Known reports whether code is a catalog material.
func (v *Validator) Known(code string) bool {
	return v.materials.Known(strings.TrimSpace(code))
}

// Validate checks d. See the package function Validate.
func (v *Validator) Validate(ctx context.Context, d Draft) (Movement, error) {
	return Validate(ctx, d, v.materials, v.stores)
}

// ValidateWith checks d resolving stores through stores instead of the
// validator's own resolver, e.g. inside a unit of work.
func (v *Validator) ValidateWith(ctx context.Context, stores catalog.StoreResolver, d Draft) (Movement, error) {
	return Validate(ctx, d, v.materials, stores)
}

func invalid(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// Validate checks the fields d needs for its kind and returns the typed
// movement. It never touches the ledger. The only lookup is the store of a
// venta, which resolves to the warehouse the store sells from unless an
// origin is given explicitly.
func Validate(ctx context.Context, d Draft, materials MaterialIndex, stores catalog.StoreResolver) (Movement, error) {
	if !d.Kind.Valid() {
		return nil, invalid("tipo", "unknown movement kind")
	}
	code := strings.TrimSpace(d.MaterialCode)
	if code == "" {
		return nil, invalid("material_codigo", "required")
	}
	if !d.Quantity.IsPositive() {
		return nil, invalid("cantidad", "must be greater than 0")
	}
	if !d.Quantity.Equal(d.Quantity.Round(QuantityPlaces)) {
		return nil, invalid("cantidad", "at most 3 decimal places")
	}
	if !materials.Known(code) {
		return nil, &ValidationError{Field: "material_codigo", Reason: "unknown material", Err: ErrUnknownMaterial}
	}

	info := Info{
		MaterialCode: code,
		Quantity:     d.Quantity,
		Reason:       strings.TrimSpace(d.Reason),
		Reference:    strings.TrimSpace(d.Reference),
		User:         d.User,
	}
	origin := strings.TrimSpace(d.Origin)

	switch d.Kind {
	case KindEntrada, KindSalida, KindAjuste:
		if origin == "" {
			return nil, invalid("almacen_origen_id", "required")
		}
		switch d.Kind {
		case KindEntrada:
			return Entrada{Info: info, Warehouse: origin}, nil
		case KindSalida:
			return Salida{Info: info, Warehouse: origin}, nil
		default:
			return Ajuste{Info: info, Warehouse: origin}, nil
		}
	case KindTransferencia:
		dest := strings.TrimSpace(d.Destination)
		if origin == "" {
			return nil, invalid("almacen_origen_id", "required")
		}
		if dest == "" {
			return nil, invalid("almacen_destino_id", "required")
		}
		if origin == dest {
			return nil, invalid("almacen_destino_id", "must differ from origin")
		}
		return Transferencia{Info: info, Origin: origin, Destination: dest}, nil
	default:
		storeID := strings.TrimSpace(d.StoreID)
		if storeID == "" {
			return nil, invalid("tienda_id", "required")
		}
		wh, err := catalog.SaleWarehouse(ctx, stores, storeID)
		switch {
		case errors.Is(err, catalog.ErrStoreNotMapped):
			return nil, &ValidationError{Field: "tienda_id", Reason: "store has no mapped warehouse", Err: err}
		case err != nil:
			return nil, errors.Wrapf(err, "resolve store %s", storeID)
		}
		if origin == "" {
			origin = wh
		}
		return Venta{Info: info, StoreID: storeID, Warehouse: origin}, nil
	}
}
