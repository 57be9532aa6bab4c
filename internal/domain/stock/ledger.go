package stock

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// NegativePolicy decides what happens when a movement would leave a level
// below zero.
type NegativePolicy int

const (
	// NegativeReject fails the movement with *InsufficientStockError.
	NegativeReject NegativePolicy = iota
	// NegativeAllow records the negative level as a backorder.
	NegativeAllow
)

// Option configures a Ledger.
type Option func(*Ledger)

// WithNegativePolicy sets the negative stock policy. The default is
// NegativeReject.
func WithNegativePolicy(p NegativePolicy) Option {
	return func(l *Ledger) { l.policy = p }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// Ledger applies validated movements to stock levels.
type Ledger struct {
	store     Store
	validator *Validator
	policy    NegativePolicy
	now       func() time.Time
}

// NewLedger creates a Ledger.
func NewLedger(store Store, validator *Validator, opts ...Option) *Ledger {
	l := &Ledger{
		store:     store,
		validator: validator,
		policy:    NegativeReject,
		now:       time.Now,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Validator returns the validator used for drafts.
func (l *Ledger) Validator() *Validator {
	return l.validator
}

// Create validates d and applies it.
func (l *Ledger) Create(ctx context.Context, d Draft) (*Entry, error) {
	m, err := l.validator.Validate(ctx, d)
	if err != nil {
		return nil, err
	}
	return l.Apply(ctx, m)
}

// Apply applies a single movement in its own unit of work.
func (l *Ledger) Apply(ctx context.Context, m Movement) (*Entry, error) {
	entries, err := l.ApplyBatch(ctx, []Movement{m})
	if err != nil {
		return nil, err
	}
	return &entries[0], nil
}

// ApplyBatch applies all movements in one unit of work. Either every
// movement is recorded or none is.
func (l *Ledger) ApplyBatch(ctx context.Context, ms []Movement) ([]Entry, error) {
	var out []Entry
	if err := l.store.InTx(ctx, func(ctx context.Context, repo Repository) error {
		entries, err := l.ApplyTx(ctx, repo, ms)
		if err != nil {
			return err
		}
		out = entries
		return nil
	}); err != nil {
		return nil, err
	}
	return out, nil
}

// ApplyTx applies movements inside a unit of work owned by the caller.
func (l *Ledger) ApplyTx(ctx context.Context, repo Repository, ms []Movement) ([]Entry, error) {
	if len(ms) == 0 {
		return nil, nil
	}

	var (
		keys       []LevelKey
		warehouses []string
		materials  []string
	)
	for _, m := range ms {
		for _, e := range m.effects() {
			keys = appendUnique(keys, e.key)
			warehouses = appendUnique(warehouses, e.key.WarehouseID)
			materials = appendUnique(materials, e.key.MaterialCode)
		}
	}

	unknown, err := repo.UnknownWarehouses(ctx, warehouses)
	if err != nil {
		return nil, errors.Wrap(err, "check warehouses")
	}
	if len(unknown) > 0 {
		return nil, errors.Wrapf(ErrUnknownWarehouse, "%s", strings.Join(unknown, ", "))
	}
	unknown, err = repo.UnknownMaterials(ctx, materials)
	if err != nil {
		return nil, errors.Wrap(err, "check materials")
	}
	if len(unknown) > 0 {
		return nil, errors.Wrapf(ErrUnknownMaterial, "%s", strings.Join(unknown, ", "))
	}

	// Lock in a fixed order so concurrent batches cannot deadlock.
	slices.SortFunc(keys, func(a, b LevelKey) int {
		switch {
		case a.less(b):
			return -1
		case b.less(a):
			return 1
		default:
			return 0
		}
	})
	levels, err := repo.LockLevels(ctx, keys)
	if err != nil {
		return nil, errors.Wrap(err, "lock levels")
	}

	now := l.now()
	entries := make([]Entry, 0, len(ms))
	for _, m := range ms {
		e := entry(m)
		e.ID = uuid.NewString()
		e.CreatedAt = now

		for i, eff := range m.effects() {
			before := levels[eff.key]
			after := before.Add(eff.delta)
			if after.IsNegative() && eff.delta.IsNegative() && l.policy == NegativeReject {
				return nil, &InsufficientStockError{
					MaterialCode: eff.key.MaterialCode,
					WarehouseID:  eff.key.WarehouseID,
					Available:    before,
					Requested:    eff.delta.Neg(),
				}
			}
			levels[eff.key] = after
			if i == 0 {
				e.OriginBefore, e.OriginAfter = before, after
			} else {
				e.DestinationBefore, e.DestinationAfter = before, after
			}
		}
		entries = append(entries, e)
	}

	for _, k := range keys {
		if err := repo.SaveLevel(ctx, Level{
			WarehouseID:  k.WarehouseID,
			MaterialCode: k.MaterialCode,
			Quantity:     levels[k],
			UpdatedAt:    now,
		}); err != nil {
			return nil, errors.Wrap(err, "save level")
		}
	}
	for i := range entries {
		if err := repo.AppendMovement(ctx, &entries[i]); err != nil {
			return nil, errors.Wrap(err, "append movement")
		}
	}

	lg := zctx.From(ctx)
	for _, e := range entries {
		lg.Debug("Stock movement applied",
			zap.String("id", e.ID),
			zap.String("kind", string(e.Kind)),
			zap.String("material", e.MaterialCode),
			zap.String("quantity", e.Quantity.String()),
			zap.String("origin", e.Origin),
			zap.String("destination", e.Destination),
		)
	}
	return entries, nil
}

// SaleItem is one line of a sale.
type SaleItem struct {
	MaterialCode string
	Quantity     decimal.Decimal
}

// Sale deducts sold items from the warehouse serving a store.
type Sale struct {
	StoreID   string
	Warehouse string
	Reference string
	User      string
	Items     []SaleItem
}

// SaleDrafts returns one venta draft per item.
func (s Sale) SaleDrafts() []Draft {
	drafts := make([]Draft, len(s.Items))
	for i, it := range s.Items {
		drafts[i] = Draft{
			Kind:         KindVenta,
			MaterialCode: it.MaterialCode,
			Quantity:     it.Quantity,
			Origin:       s.Warehouse,
			StoreID:      s.StoreID,
			Reason:       "venta",
			Reference:    s.Reference,
			User:         s.User,
		}
	}
	return drafts
}

// ValidateSale validates every line of s.
func (l *Ledger) ValidateSale(ctx context.Context, s Sale) ([]Movement, error) {
	if len(s.Items) == 0 {
		return nil, invalid("items", "required")
	}
	drafts := s.SaleDrafts()
	ms := make([]Movement, len(drafts))
	for i, d := range drafts {
		m, err := l.validator.Validate(ctx, d)
		if err != nil {
			return nil, errors.Wrapf(err, "items[%d]", i)
		}
		ms[i] = m
	}
	return ms, nil
}

// RecordSale validates and applies every line of s in one unit of work.
func (l *Ledger) RecordSale(ctx context.Context, s Sale) ([]Entry, error) {
	ms, err := l.ValidateSale(ctx, s)
	if err != nil {
		return nil, err
	}
	return l.ApplyBatch(ctx, ms)
}

// Levels lists stock levels.
func (l *Ledger) Levels(ctx context.Context, f LevelFilter) ([]Level, error) {
	return l.store.ListLevels(ctx, f)
}

// Movements lists ledger history, newest first.
func (l *Ledger) Movements(ctx context.Context, f MovementFilter) ([]Entry, error) {
	return l.store.ListMovements(ctx, f)
}

func appendUnique[T comparable](s []T, v T) []T {
	if slices.Contains(s, v) {
		return s
	}
	return append(s, v)
}
