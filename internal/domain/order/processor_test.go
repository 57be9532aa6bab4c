package order_test

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/caja/internal/domain/cash"
	"github.com/xenking/caja/internal/domain/catalog"
	"github.com/xenking/caja/internal/domain/order"
	"github.com/xenking/caja/internal/domain/pricing"
	"github.com/xenking/caja/internal/domain/stock"
	"github.com/xenking/caja/internal/storage/memory"
)

// --- Helpers ---

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fixture struct {
	store     *memory.Store
	sessions  *cash.Manager
	ledger    *stock.Ledger
	processor *order.Processor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	st := memory.New()

	require.NoError(t, st.SaveWarehouse(ctx, catalog.Warehouse{ID: "W", Code: "ALM-1", Active: true}))
	require.NoError(t, st.SaveWarehouse(ctx, catalog.Warehouse{ID: "W2", Code: "ALM-2", Active: true}))
	require.NoError(t, st.SaveStore(ctx, catalog.Store{ID: "S", Code: "T01", WarehouseID: "W", Active: true}))
	require.NoError(t, st.SaveStore(ctx, catalog.Store{ID: "U", Code: "T02", Active: true}))
	_, err := st.UpsertMaterials(ctx, []catalog.Material{
		{Code: "M", Description: "Panel", Price: d("10"), Active: true},
		{Code: "N", Description: "Cable", Price: d("2.5"), Active: true},
	})
	require.NoError(t, err)

	idx := catalog.NewIndex([]string{"M", "N"})
	sessions := cash.NewManager(st.Cash(), st)
	ledger := stock.NewLedger(st.Stock(), stock.NewValidator(idx, st))
	return &fixture{
		store:     st,
		sessions:  sessions,
		ledger:    ledger,
		processor: order.NewProcessor(st.Orders(), sessions, ledger),
	}
}

func (f *fixture) stockIn(t *testing.T, wh, code, q string) {
	t.Helper()
	_, err := f.ledger.Create(context.Background(), stock.Draft{
		Kind: stock.KindEntrada, MaterialCode: code, Quantity: d(q), Origin: wh,
	})
	require.NoError(t, err)
}

func (f *fixture) level(t *testing.T, wh, code string) string {
	t.Helper()
	levels, err := f.ledger.Levels(context.Background(), stock.LevelFilter{WarehouseID: wh, MaterialCode: code})
	require.NoError(t, err)
	if len(levels) == 0 {
		return "0"
	}
	return levels[0].Quantity.String()
}

func (f *fixture) open(t *testing.T, store, opening string) *cash.Session {
	t.Helper()
	s, err := f.sessions.Open(context.Background(), cash.OpenRequest{StoreID: store, OpeningCash: d(opening)})
	require.NoError(t, err)
	return s
}

func (f *fixture) create(t *testing.T, s *cash.Session, tax string, items ...order.Item) *order.Order {
	t.Helper()
	o, err := f.processor.Create(context.Background(), order.CreateRequest{
		SessionID:   s.ID,
		StoreID:     s.StoreID,
		Items:       items,
		DiscountPct: decimal.Zero,
		TaxPct:      d(tax),
	})
	require.NoError(t, err)
	return o
}

func cashPayment(amount string) []order.PaymentDetail {
	return []order.PaymentDetail{{Method: order.MethodCash, Amount: d(amount)}}
}

// --- Tests ---

func TestProcessor_EndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.stockIn(t, "W", "M", "10")

	s := f.open(t, "S", "100")
	o := f.create(t, s, "16", order.Item{MaterialCode: "M", Quantity: d("2"), UnitPrice: d("10")})
	assert.Equal(t, "23.20", o.Total.StringFixed(2))
	assert.Equal(t, order.StatusDraft, o.Status)
	assert.Equal(t, "ORD-000001", o.Number)
	assert.Equal(t, "10", f.level(t, "W", "M"), "create has no stock effect")

	res, err := f.processor.Pay(ctx, order.PayRequest{
		OrderID:     o.ID,
		Method:      order.MethodCash,
		Details:     cashPayment("23.20"),
		WarehouseID: "W",
	})
	require.NoError(t, err)
	assert.Equal(t, order.StatusPaid, res.Order.Status)
	assert.Equal(t, order.MethodCash, res.Payment.Method)
	require.Len(t, res.Movements, 1)
	assert.Equal(t, "8", f.level(t, "W", "M"))
	assert.Equal(t, "23.20", res.Session.TotalCash.StringFixed(2))
	assert.Equal(t, "123.20", res.Session.ExpectedCash().StringFixed(2))

	moves, err := f.ledger.Movements(ctx, stock.MovementFilter{Reference: o.Number})
	require.NoError(t, err)
	require.Len(t, moves, 1)
	assert.Equal(t, stock.KindVenta, moves[0].Kind)
	assert.Equal(t, "S", moves[0].StoreID)

	closed, err := f.sessions.Close(ctx, cash.CloseRequest{SessionID: s.ID, ClosingCash: d("123.20")})
	require.NoError(t, err)
	assert.True(t, closed.Difference.Decimal.IsZero())

	got, err := f.processor.Get(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, got.Payments, 1)
	require.NotNil(t, got.PaidAt)
}

func TestProcessor_PayExactMatch(t *testing.T) {
	tests := []struct {
		name   string
		amount string
	}{
		{"Under", "23.19"},
		{"Over", "23.21"},
		{"Half", "11.60"},
		{"Double", "46.40"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			f.stockIn(t, "W", "M", "10")
			s := f.open(t, "S", "100")
			o := f.create(t, s, "16", order.Item{MaterialCode: "M", Quantity: d("2"), UnitPrice: d("10")})

			_, err := f.processor.Pay(ctx, order.PayRequest{OrderID: o.ID, Details: cashPayment(tt.amount), WarehouseID: "W"})
			var mErr *order.PaymentMismatchError
			require.ErrorAs(t, err, &mErr)
			require.ErrorIs(t, err, order.ErrPaymentMismatch)
			assert.Equal(t, "23.20", mErr.Total.StringFixed(2))

			got, err := f.processor.Get(ctx, o.ID)
			require.NoError(t, err)
			assert.Equal(t, order.StatusDraft, got.Status)
			assert.Empty(t, got.Payments)
			assert.Equal(t, "10", f.level(t, "W", "M"))

			sess, err := f.sessions.Get(ctx, s.ID)
			require.NoError(t, err)
			assert.True(t, sess.TotalSales.IsZero())
		})
	}
}

func TestProcessor_PayRollsBackOnStockFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.stockIn(t, "W", "M", "5")
	f.stockIn(t, "W", "N", "1")
	s := f.open(t, "S", "100")
	o := f.create(t, s, "0",
		order.Item{MaterialCode: "M", Quantity: d("2"), UnitPrice: d("10")},
		order.Item{MaterialCode: "N", Quantity: d("4"), UnitPrice: d("2.5")},
	)
	require.Equal(t, "30.00", o.Total.StringFixed(2))

	_, err := f.processor.Pay(ctx, order.PayRequest{OrderID: o.ID, Details: cashPayment("30"), WarehouseID: "W"})
	var isErr *stock.InsufficientStockError
	require.ErrorAs(t, err, &isErr)
	assert.Equal(t, "N", isErr.MaterialCode)

	assert.Equal(t, "5", f.level(t, "W", "M"), "first item deduction must be rolled back")
	assert.Equal(t, "1", f.level(t, "W", "N"))

	got, err := f.processor.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusDraft, got.Status)

	sess, err := f.sessions.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, "100.00", sess.ExpectedCash().StringFixed(2))

	moves, err := f.ledger.Movements(ctx, stock.MovementFilter{Kind: stock.KindVenta})
	require.NoError(t, err)
	assert.Empty(t, moves)
}

func TestProcessor_PayMixed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.stockIn(t, "W", "M", "3")
	s := f.open(t, "S", "50")
	o := f.create(t, s, "16", order.Item{MaterialCode: "M", Quantity: d("2"), UnitPrice: d("10")})

	res, err := f.processor.Pay(ctx, order.PayRequest{
		OrderID: o.ID,
		Details: []order.PaymentDetail{
			{Method: order.MethodCash, Amount: d("10"), Received: d("20")},
			{Method: order.MethodCard, Amount: d("13.20"), Reference: "VISA-1234"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, order.MethodMixed, res.Payment.Method)
	assert.Equal(t, "10.00", res.Change.StringFixed(2))
	assert.Equal(t, "W", res.Order.WarehouseID, "warehouse resolved from the store")
	assert.Equal(t, "23.20", res.Session.TotalSales.StringFixed(2))
	assert.Equal(t, "13.20", res.Session.TotalCard.StringFixed(2))
	assert.Equal(t, "60.00", res.Session.ExpectedCash().StringFixed(2))
}

func TestProcessor_PayUnmappedStore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.stockIn(t, "W", "M", "3")
	s := f.open(t, "U", "0")
	o := f.create(t, s, "0", order.Item{MaterialCode: "M", Quantity: d("1"), UnitPrice: d("10")})

	_, err := f.processor.Pay(ctx, order.PayRequest{OrderID: o.ID, Details: cashPayment("10"), WarehouseID: "W"})
	require.ErrorIs(t, err, catalog.ErrStoreNotMapped)
	require.ErrorIs(t, err, stock.ErrInvalidMovement)
	assert.Equal(t, "3", f.level(t, "W", "M"))
}

func TestProcessor_PayTwice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.stockIn(t, "W", "M", "3")
	s := f.open(t, "S", "0")
	o := f.create(t, s, "0", order.Item{MaterialCode: "M", Quantity: d("1"), UnitPrice: d("10")})

	_, err := f.processor.Pay(ctx, order.PayRequest{OrderID: o.ID, Details: cashPayment("10")})
	require.NoError(t, err)
	_, err = f.processor.Pay(ctx, order.PayRequest{OrderID: o.ID, Details: cashPayment("10")})
	require.ErrorIs(t, err, order.ErrNotDraft)
	assert.Equal(t, "2", f.level(t, "W", "M"))

	_, err = f.processor.Update(ctx, o.ID, order.UpdateRequest{Items: []order.Item{{MaterialCode: "M", Quantity: d("5"), UnitPrice: d("1")}}})
	require.ErrorIs(t, err, order.ErrNotDraft)
	_, err = f.processor.Cancel(ctx, o.ID)
	require.ErrorIs(t, err, order.ErrNotDraft)
}

func TestProcessor_CreateRequiresOpenSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.open(t, "S", "0")
	_, err := f.sessions.Close(ctx, cash.CloseRequest{SessionID: s.ID, ClosingCash: decimal.Zero})
	require.NoError(t, err)

	_, err = f.processor.Create(ctx, order.CreateRequest{
		SessionID: s.ID,
		Items:     []order.Item{{MaterialCode: "M", Quantity: d("1"), UnitPrice: d("10")}},
	})
	require.ErrorIs(t, err, cash.ErrSessionClosed)

	_, err = f.processor.Create(ctx, order.CreateRequest{
		SessionID: "missing",
		Items:     []order.Item{{MaterialCode: "M", Quantity: d("1"), UnitPrice: d("10")}},
	})
	require.ErrorIs(t, err, cash.ErrSessionNotFound)
}

func TestProcessor_CreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.open(t, "S", "0")

	_, err := f.processor.Create(ctx, order.CreateRequest{SessionID: s.ID})
	require.ErrorIs(t, err, order.ErrEmptyItems)

	_, err = f.processor.Create(ctx, order.CreateRequest{
		SessionID: s.ID,
		Items:     []order.Item{{MaterialCode: "M", Quantity: decimal.Zero, UnitPrice: d("10")}},
	})
	var vErr *order.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "items[0].cantidad", vErr.Field)

	_, err = f.processor.Create(ctx, order.CreateRequest{
		SessionID: s.ID,
		Items:     []order.Item{{MaterialCode: "M", Quantity: d("0.0004"), UnitPrice: d("10")}},
	})
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "items[0].cantidad", vErr.Field)

	_, err = f.processor.Create(ctx, order.CreateRequest{
		SessionID: s.ID,
		Items: []order.Item{
			{MaterialCode: "M", Quantity: d("1"), UnitPrice: d("10")},
			{MaterialCode: "ZZ", Quantity: d("1"), UnitPrice: d("10")},
		},
	})
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "items[1].material_codigo", vErr.Field)
	require.ErrorIs(t, err, order.ErrInvalid)

	_, err = f.processor.Create(ctx, order.CreateRequest{
		SessionID:   s.ID,
		Items:       []order.Item{{MaterialCode: "M", Quantity: d("1"), UnitPrice: d("10")}},
		DiscountPct: d("120"),
	})
	require.Error(t, err)

	_, err = f.processor.Create(ctx, order.CreateRequest{
		SessionID: s.ID,
		Items:     []order.Item{{MaterialCode: "M", Quantity: d("1"), UnitPrice: d("10")}},
		TaxPct:    d("16.125"),
	})
	var pErr *pricing.InvalidInputError
	require.ErrorAs(t, err, &pErr)
	assert.Equal(t, "impuesto_porcentaje", pErr.Field)

	orders, err := f.processor.List(ctx, order.Filter{SessionID: s.ID})
	require.NoError(t, err)
	assert.Empty(t, orders, "rejected orders are not stored")

	_, err = f.processor.Create(ctx, order.CreateRequest{
		SessionID: s.ID,
		StoreID:   "U",
		Items:     []order.Item{{MaterialCode: "M", Quantity: d("1"), UnitPrice: d("10")}},
	})
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "tienda_id", vErr.Field)
}

func TestProcessor_UpdateCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.open(t, "S", "0")
	o := f.create(t, s, "16", order.Item{MaterialCode: "M", Quantity: d("2"), UnitPrice: d("10")})

	discount := d("10")
	notes := " mesa 4 "
	updated, err := f.processor.Update(ctx, o.ID, order.UpdateRequest{DiscountPct: &discount, Notes: &notes})
	require.NoError(t, err)
	assert.Equal(t, "20.88", updated.Total.StringFixed(2))
	assert.Equal(t, "mesa 4", updated.Notes)

	_, err = f.sessions.Close(ctx, cash.CloseRequest{SessionID: s.ID, ClosingCash: decimal.Zero})
	require.ErrorIs(t, err, cash.ErrPendingOrders)

	cancelled, err := f.processor.Cancel(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, cancelled.Status)

	_, err = f.sessions.Close(ctx, cash.CloseRequest{SessionID: s.ID, ClosingCash: decimal.Zero})
	require.NoError(t, err)

	list, err := f.processor.List(ctx, order.Filter{SessionID: s.ID, Status: order.StatusCancelled})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, o.ID, list[0].ID)

	_, err = f.processor.Get(ctx, "missing")
	require.ErrorIs(t, err, order.ErrOrderNotFound)
}

func TestProcessor_ConcurrentPayDoesNotOversell(t *testing.T) {
	const attempts = 8
	f := newFixture(t)
	ctx := context.Background()
	f.stockIn(t, "W", "M", "2")
	s := f.open(t, "S", "0")

	orders := make([]*order.Order, attempts)
	for i := range orders {
		orders[i] = f.create(t, s, "0", order.Item{MaterialCode: "M", Quantity: d("2"), UnitPrice: d("10")})
	}

	errs := make([]error, attempts)
	var wg sync.WaitGroup
	for i, o := range orders {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.processor.Pay(ctx, order.PayRequest{OrderID: o.ID, Details: cashPayment("20"), WarehouseID: "W"})
		}()
	}
	wg.Wait()

	paid := 0
	for _, err := range errs {
		if err == nil {
			paid++
			continue
		}
		var isErr *stock.InsufficientStockError
		require.ErrorAs(t, err, &isErr)
	}
	assert.Equal(t, 1, paid)
	assert.Equal(t, "0", f.level(t, "W", "M"))

	sess, err := f.sessions.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, "20.00", sess.TotalCash.StringFixed(2))

	pending, err := f.processor.List(ctx, order.Filter{SessionID: s.ID, Status: order.StatusDraft})
	require.NoError(t, err)
	assert.Len(t, pending, attempts-1)
}

type paidRecorder struct {
	mu     sync.Mutex
	orders []string
}

func (r *paidRecorder) Paid(_ context.Context, o *order.Order, p *order.Payment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders = append(r.orders, o.Number+" "+string(p.Method)+" "+o.Total.StringFixed(2))
}

func TestProcessor_PayNotifiesObserver(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec := &paidRecorder{}
	f.processor.SetObserver(rec)
	f.stockIn(t, "W", "M", "1")
	s := f.open(t, "S", "0")
	ok := f.create(t, s, "0", order.Item{MaterialCode: "M", Quantity: d("1"), UnitPrice: d("10")})
	short := f.create(t, s, "0", order.Item{MaterialCode: "M", Quantity: d("1"), UnitPrice: d("10")})

	_, err := f.processor.Pay(ctx, order.PayRequest{OrderID: ok.ID, Method: order.MethodCash, Details: cashPayment("10")})
	require.NoError(t, err)
	_, err = f.processor.Pay(ctx, order.PayRequest{OrderID: short.ID, Method: order.MethodCash, Details: cashPayment("10")})
	require.Error(t, err)

	assert.Equal(t, []string{"ORD-000001 efectivo 10.00"}, rec.orders)
}
