// Package pricing computes order totals from line items, a discount
// percentage and a tax percentage.
package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// PercentPlaces is the number of decimal places a percentage may carry.
const PercentPlaces = 2

// Line is a single priced line of an order.
type Line struct {
	Quantity  decimal.Decimal
	UnitPrice decimal.Decimal
}

// Subtotal returns quantity * unit price.
func (l Line) Subtotal() decimal.Decimal {
	return l.Quantity.Mul(l.UnitPrice)
}

// Totals holds every figure derived from an order's lines.
type Totals struct {
	Subtotal       decimal.Decimal
	DiscountAmount decimal.Decimal
	TaxableBase    decimal.Decimal
	TaxAmount      decimal.Decimal
	Total          decimal.Decimal
}

// Persisted returns the totals rounded to cents, the precision orders are
// stored and paid at.
func (t Totals) Persisted() Totals {
	return Totals{
		Subtotal:       t.Subtotal.Round(2),
		DiscountAmount: t.DiscountAmount.Round(2),
		TaxableBase:    t.TaxableBase.Round(2),
		TaxAmount:      t.TaxAmount.Round(2),
		Total:          t.Total.Round(2),
	}
}

// InvalidInputError reports a negative quantity or price, or a percentage
// outside [0, 100] or with more than PercentPlaces decimals.
type InvalidInputError struct {
	Field string
	Value decimal.Decimal
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Value.String())
}

// InvalidField returns the offending field.
func (e *InvalidInputError) InvalidField() string { return e.Field }

// Calculate computes the totals of lines with the given discount and tax
// percentages. No rounding is applied.
func Calculate(lines []Line, discountPct, taxPct decimal.Decimal) (Totals, error) {
	if err := checkPercent("descuento_porcentaje", discountPct); err != nil {
		return Totals{}, err
	}
	if err := checkPercent("impuesto_porcentaje", taxPct); err != nil {
		return Totals{}, err
	}

	subtotal := decimal.Zero
	for i, l := range lines {
		if l.Quantity.IsNegative() {
			return Totals{}, &InvalidInputError{Field: fmt.Sprintf("items[%d].cantidad", i), Value: l.Quantity}
		}
		if l.UnitPrice.IsNegative() {
			return Totals{}, &InvalidInputError{Field: fmt.Sprintf("items[%d].precio_unitario", i), Value: l.UnitPrice}
		}
		subtotal = subtotal.Add(l.Subtotal())
	}

	discount := subtotal.Mul(discountPct.Div(hundred))
	base := subtotal.Sub(discount)
	tax := base.Mul(taxPct.Div(hundred))

	return Totals{
		Subtotal:       subtotal,
		DiscountAmount: discount,
		TaxableBase:    base,
		TaxAmount:      tax,
		Total:          base.Add(tax),
	}, nil
}

func checkPercent(field string, v decimal.Decimal) error {
	if v.IsNegative() || v.GreaterThan(hundred) || !v.Equal(v.Round(PercentPlaces)) {
		return &InvalidInputError{Field: field, Value: v}
	}
	return nil
}
