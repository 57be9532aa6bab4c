package memory

import (
	"context"
	"slices"

	"github.com/xenking/caja/internal/domain/cash"
	"github.com/xenking/caja/internal/domain/catalog"
	"github.com/xenking/caja/internal/domain/order"
	"github.com/xenking/caja/internal/domain/stock"
)

type orderStore struct{ st *Store }

// orderTx is used with the store lock held.
type orderTx struct{ st *Store }

var (
	_ order.Store      = orderStore{}
	_ order.Tx         = orderTx{}
	_ order.Repository = orderTx{}
)

func (s orderStore) InTx(ctx context.Context, fn func(ctx context.Context, tx order.Tx) error) error {
	return s.st.inTx(func() error { return fn(ctx, orderTx(s)) })
}

func (t orderTx) Orders() order.Repository { return t }
func (t orderTx) Stock() stock.Repository  { return stockTx(t) }
func (t orderTx) Cash() cash.Repository    { return cashTx(t) }
func (t orderTx) Stores() catalog.StoreResolver {
	return storesTx(t)
}

// storesTx is used with the store lock held.
type storesTx struct{ st *Store }

func (t storesTx) GetStore(_ context.Context, id string) (*catalog.Store, error) {
	s, ok := t.st.s.stores[id]
	if !ok {
		return nil, catalog.ErrStoreNotFound
	}
	return &s, nil
}

func (st *Store) loadOrder(id string) (*order.Order, bool) {
	o, ok := st.s.orders[id]
	if !ok {
		return nil, false
	}
	o.Items = slices.Clone(o.Items)
	o.Payments = slices.Clone(st.s.payments[id])
	return &o, true
}

func (s orderStore) Get(_ context.Context, id string) (o *order.Order, _ error) {
	var ok bool
	s.st.locked(func() { o, ok = s.st.loadOrder(id) })
	if !ok {
		return nil, order.ErrOrderNotFound
	}
	return o, nil
}

func (s orderStore) List(_ context.Context, f order.Filter) (out []order.Order, _ error) {
	s.st.locked(func() {
		for _, o := range sortedValues(s.st.s.orders, func(a, b order.Order) bool {
			if a.CreatedAt.Equal(b.CreatedAt) {
				return a.Number > b.Number
			}
			return a.CreatedAt.After(b.CreatedAt)
		}) {
			switch {
			case f.SessionID != "" && o.SessionID != f.SessionID:
			case f.StoreID != "" && o.StoreID != f.StoreID:
			case f.Status != "" && o.Status != f.Status:
			case !f.From.IsZero() && o.CreatedAt.Before(f.From):
			case !f.To.IsZero() && o.CreatedAt.After(f.To):
			default:
				full, _ := s.st.loadOrder(o.ID)
				out = append(out, *full)
			}
		}
	})
	return out, nil
}

func (t orderTx) Lock(_ context.Context, id string) (*order.Order, error) {
	o, ok := t.st.loadOrder(id)
	if !ok {
		return nil, order.ErrOrderNotFound
	}
	return o, nil
}

func (t orderTx) NextNumber(_ context.Context, storeID string) (int, error) {
	t.st.s.orderSeq[storeID]++
	return t.st.s.orderSeq[storeID], nil
}

func (t orderTx) Create(_ context.Context, o *order.Order) error {
	t.save(o)
	return nil
}

func (t orderTx) Update(_ context.Context, o *order.Order) error {
	if _, ok := t.st.s.orders[o.ID]; !ok {
		return order.ErrOrderNotFound
	}
	t.save(o)
	return nil
}

func (t orderTx) save(o *order.Order) {
	v := *o
	v.Items = slices.Clone(o.Items)
	v.Payments = nil
	t.st.s.orders[o.ID] = v
}

func (t orderTx) AddPayment(_ context.Context, p *order.Payment) error {
	t.st.s.payments[p.OrderID] = append(slices.Clone(t.st.s.payments[p.OrderID]), *p)
	return nil
}
