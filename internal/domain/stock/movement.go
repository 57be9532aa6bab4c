package stock

import "github.com/shopspring/decimal"

// Movement is a validated stock movement. The concrete type is one of
// Entrada, Salida, Ajuste, Transferencia or Venta; it is obtained from
// Validate and carries only the fields its kind needs.
type Movement interface {
	Kind() Kind
	Details() Info
	effects() []effect
}

// Info holds the fields common to every movement kind.
type Info struct {
	MaterialCode string
	Quantity     decimal.Decimal
	Reason       string
	Reference    string
	User         string
}

type effect struct {
	key   LevelKey
	delta decimal.Decimal
}

// Entrada adds stock to a warehouse.
type Entrada struct {
	Info
	Warehouse string
}

// Salida takes stock out of a warehouse.
type Salida struct {
	Info
	Warehouse string
}

// Ajuste corrects a warehouse level downwards.
type Ajuste struct {
	Info
	Warehouse string
}

// Transferencia moves stock between two distinct warehouses.
type Transferencia struct {
	Info
	Origin      string
	Destination string
}

// Venta takes sold stock out of the warehouse serving a store.
type Venta struct {
	Info
	StoreID   string
	Warehouse string
}

var (
	_ Movement = Entrada{}
	_ Movement = Salida{}
	_ Movement = Ajuste{}
	_ Movement = Transferencia{}
	_ Movement = Venta{}
)

func (m Entrada) Kind() Kind { return KindEntrada }
func (m Salida) Kind() Kind { return KindSalida }
func (m Ajuste) Kind() Kind { return KindAjuste }
func (m Transferencia) Kind() Kind { return KindTransferencia }
func (m Venta) Kind() Kind { return KindVenta }

func (m Entrada) Details() Info { return m.Info }
func (m Salida) Details() Info { return m.Info }
func (m Ajuste) Details() Info { return m.Info }
func (m Transferencia) Details() Info { return m.Info }
func (m Venta) Details() Info { return m.Info }

func (m Entrada) effects() []effect {
	return []effect{{key: LevelKey{m.Warehouse, m.MaterialCode}, delta: m.Quantity}}
}

func (m Salida) effects() []effect {
	return []effect{{key: LevelKey{m.Warehouse, m.MaterialCode}, delta: m.Quantity.Neg()}}
}

func (m Ajuste) effects() []effect {
	return []effect{{key: LevelKey{m.Warehouse, m.MaterialCode}, delta: m.Quantity.Neg()}}
}

func (m Transferencia) effects() []effect {
	return []effect{
		{key: LevelKey{m.Origin, m.MaterialCode}, delta: m.Quantity.Neg()},
		{key: LevelKey{m.Destination, m.MaterialCode}, delta: m.Quantity},
	}
}

func (m Venta) effects() []effect {
	return []effect{{key: LevelKey{m.Warehouse, m.MaterialCode}, delta: m.Quantity.Neg()}}
}

// entry builds the ledger record for m. Quantities before and after are
// filled in by the ledger.
func entry(m Movement) Entry {
	info := m.Details()
	e := Entry{
		Kind:         m.Kind(),
		MaterialCode: info.MaterialCode,
		Quantity:     info.Quantity,
		Reason:       info.Reason,
		Reference:    info.Reference,
		User:         info.User,
	}
	switch m := m.(type) {
	case Entrada:
		e.Origin = m.Warehouse
	case Salida:
		e.Origin = m.Warehouse
	case Ajuste:
		e.Origin = m.Warehouse
	case Transferencia:
		e.Origin = m.Origin
		e.Destination = m.Destination
	case Venta:
		e.Origin = m.Warehouse
		e.StoreID = m.StoreID
	}
	return e
}
