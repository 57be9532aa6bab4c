package order

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/xenking/caja/internal/domain/cash"
)

// Breakdown is a reconciled payment.
type Breakdown struct {
	Method  Method
	Receipt cash.Receipt
	Change  decimal.Decimal
}

// Reconcile checks a payment breakdown against an order total. The amounts
// must sum to total exactly; there is no partial payment and no overpayment.
// Change is only given for cash, from the received amount of a cash detail.
//
// An empty method is inferred from the details.
func Reconcile(total decimal.Decimal, method Method, details []PaymentDetail) (Breakdown, error) {
	if len(details) == 0 {
		return Breakdown{}, &ValidationError{Field: "pagos", Reason: "required"}
	}
	if method != "" && !method.Valid() {
		return Breakdown{}, &ValidationError{Field: "metodo_pago", Reason: "unknown payment method"}
	}

	var (
		b    = Breakdown{Receipt: cash.Receipt{Total: total}}
		paid decimal.Decimal
		seen = map[Method]bool{}
	)
	for i, d := range details {
		field := fmt.Sprintf("pagos[%d]", i)
		if !d.Method.Concrete() {
			return Breakdown{}, &ValidationError{Field: field + ".metodo", Reason: "must be efectivo, tarjeta or transferencia"}
		}
		if !d.Amount.IsPositive() {
			return Breakdown{}, &ValidationError{Field: field + ".monto", Reason: "must be greater than 0"}
		}
		if method.Concrete() && d.Method != method {
			return Breakdown{}, &ValidationError{Field: field + ".metodo", Reason: fmt.Sprintf("must be %s", method)}
		}
		if d.Method == MethodCash && !d.Received.IsZero() && d.Received.LessThan(d.Amount) {
			return Breakdown{}, &ValidationError{Field: field + ".monto_recibido", Reason: "must cover the amount"}
		}

		seen[d.Method] = true
		paid = paid.Add(d.Amount)
		b.Change = b.Change.Add(d.Change())
		switch d.Method {
		case MethodCash:
			b.Receipt.Cash = b.Receipt.Cash.Add(d.Amount)
		case MethodCard:
			b.Receipt.Card = b.Receipt.Card.Add(d.Amount)
		case MethodTransfer:
			b.Receipt.Transfer = b.Receipt.Transfer.Add(d.Amount)
		}
	}

	switch {
	case method == MethodMixed && len(details) < 2:
		return Breakdown{}, &ValidationError{Field: "pagos", Reason: "mixto needs at least two payments"}
	case method != "":
		b.Method = method
	case len(seen) == 1:
		b.Method = details[0].Method
	default:
		b.Method = MethodMixed
	}

	if !paid.Equal(total) {
		return Breakdown{}, &PaymentMismatchError{Total: total, Paid: paid}
	}
	return b, nil
}
