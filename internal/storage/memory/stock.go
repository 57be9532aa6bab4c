package memory

import (
	"context"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/xenking/caja/internal/domain/stock"
)

type stockStore struct{ st *Store }

// stockTx is used with the store lock held.
type stockTx struct{ st *Store }

var (
	_ stock.Store      = stockStore{}
	_ stock.Repository = stockTx{}
)

func (s stockStore) InTx(ctx context.Context, fn func(ctx context.Context, repo stock.Repository) error) error {
	return s.st.inTx(func() error { return fn(ctx, stockTx(s)) })
}

func (s stockStore) ListLevels(_ context.Context, f stock.LevelFilter) (out []stock.Level, _ error) {
	s.st.locked(func() {
		wh := f.WarehouseID
		if f.StoreID != "" {
			store, ok := s.st.s.stores[f.StoreID]
			if !ok || !store.Mapped() || (wh != "" && wh != store.WarehouseID) {
				return
			}
			wh = store.WarehouseID
		}
		for _, l := range sortedValues(s.st.s.levels, func(a, b stock.Level) bool {
			if a.WarehouseID != b.WarehouseID {
				return a.WarehouseID < b.WarehouseID
			}
			return a.MaterialCode < b.MaterialCode
		}) {
			if wh != "" && l.WarehouseID != wh {
				continue
			}
			if f.MaterialCode != "" && l.MaterialCode != f.MaterialCode {
				continue
			}
			out = append(out, l)
		}
	})
	return out, nil
}

func matchMovement(e stock.Entry, f stock.MovementFilter) bool {
	switch {
	case f.Kind != "" && e.Kind != f.Kind:
		return false
	case f.WarehouseID != "" && e.Origin != f.WarehouseID && e.Destination != f.WarehouseID:
		return false
	case f.StoreID != "" && e.StoreID != f.StoreID:
		return false
	case f.MaterialCode != "" && e.MaterialCode != f.MaterialCode:
		return false
	case f.Reference != "" && e.Reference != f.Reference:
		return false
	default:
		return true
	}
}

func (s stockStore) ListMovements(_ context.Context, f stock.MovementFilter) (out []stock.Entry, _ error) {
	s.st.locked(func() {
		for _, e := range slices.Backward(s.st.s.movements) {
			if !matchMovement(e, f) {
				continue
			}
			out = append(out, e)
			if f.Limit > 0 && len(out) == f.Limit {
				return
			}
		}
	})
	return out, nil
}

func (t stockTx) LockLevels(_ context.Context, keys []stock.LevelKey) (map[stock.LevelKey]decimal.Decimal, error) {
	out := make(map[stock.LevelKey]decimal.Decimal, len(keys))
	for _, k := range keys {
		out[k] = t.st.s.levels[k].Quantity
	}
	return out, nil
}

func (t stockTx) SaveLevel(_ context.Context, l stock.Level) error {
	t.st.s.levels[l.Key()] = l
	return nil
}

func (t stockTx) AppendMovement(_ context.Context, e *stock.Entry) error {
	t.st.s.movements = append(t.st.s.movements, *e)
	return nil
}

func (t stockTx) UnknownWarehouses(_ context.Context, ids []string) (out []string, _ error) {
	for _, id := range ids {
		if _, ok := t.st.s.warehouses[id]; !ok {
			out = append(out, id)
		}
	}
	return out, nil
}

func (t stockTx) UnknownMaterials(_ context.Context, codes []string) (out []string, _ error) {
	for _, c := range codes {
		if _, ok := t.st.s.materials[c]; !ok {
			out = append(out, c)
		}
	}
	return out, nil
}
