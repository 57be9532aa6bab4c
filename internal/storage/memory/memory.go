// Package memory is an in-process implementation of every storage interface
// of the service. A unit of work holds the store lock and restores a snapshot
// of the state when it fails.
package memory

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"

	"github.com/xenking/caja/internal/domain/auth"
	"github.com/xenking/caja/internal/domain/cash"
	"github.com/xenking/caja/internal/domain/catalog"
	"github.com/xenking/caja/internal/domain/order"
	"github.com/xenking/caja/internal/domain/stock"
)

type state struct {
	materials  map[string]catalog.Material
	warehouses map[string]catalog.Warehouse
	stores     map[string]catalog.Store
	apiKeys    map[string]auth.APIKeyInfo

	levels    map[stock.LevelKey]stock.Level
	movements []stock.Entry

	sessions   map[string]cash.Session
	sessionSeq map[string]int
	cashMoves  []cash.Movement

	orders   map[string]order.Order
	orderSeq map[string]int
	payments map[string][]order.Payment
}

func newState() state {
	return state{
		materials:  map[string]catalog.Material{},
		warehouses: map[string]catalog.Warehouse{},
		stores:     map[string]catalog.Store{},
		apiKeys:    map[string]auth.APIKeyInfo{},
		levels:     map[stock.LevelKey]stock.Level{},
		sessions:   map[string]cash.Session{},
		sessionSeq: map[string]int{},
		orders:     map[string]order.Order{},
		orderSeq:   map[string]int{},
		payments:   map[string][]order.Payment{},
	}
}

func (s state) clone() state {
	return state{
		materials:  maps.Clone(s.materials),
		warehouses: maps.Clone(s.warehouses),
		stores:     maps.Clone(s.stores),
		apiKeys:    maps.Clone(s.apiKeys),
		levels:     maps.Clone(s.levels),
		movements:  slices.Clone(s.movements),
		sessions:   maps.Clone(s.sessions),
		sessionSeq: maps.Clone(s.sessionSeq),
		cashMoves:  slices.Clone(s.cashMoves),
		orders:     maps.Clone(s.orders),
		orderSeq:   maps.Clone(s.orderSeq),
		payments:   maps.Clone(s.payments),
	}
}

// Store keeps all state in memory.
type Store struct {
	mu sync.Mutex
	s  state
}

var (
	_ catalog.Repository    = (*Store)(nil)
	_ catalog.Writer        = (*Store)(nil)
	_ catalog.StoreResolver = (*Store)(nil)
	_ auth.Repository       = (*Store)(nil)
	_ auth.Writer           = (*Store)(nil)
)

// New creates an empty Store.
func New() *Store {
	return &Store{s: newState()}
}

// inTx runs fn with the store locked. State changed by a failing fn is
// discarded.
func (st *Store) inTx(fn func() error) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	snapshot := st.s.clone()
	if err := fn(); err != nil {
		st.s = snapshot
		return err
	}
	return nil
}

func (st *Store) locked(fn func()) {
	st.mu.Lock()
	defer st.mu.Unlock()
	fn()
}

// Stock returns the ledger storage.
func (st *Store) Stock() stock.Store { return stockStore{st} }

// Cash returns the session storage.
func (st *Store) Cash() cash.Store { return cashStore{st} }

// Orders returns the order storage.
func (st *Store) Orders() order.Store { return orderStore{st} }

// Ping always succeeds.
func (st *Store) Ping(context.Context) error { return nil }

func sortedValues[K comparable, V any](m map[K]V, less func(a, b V) bool) []V {
	out := make([]V, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}
