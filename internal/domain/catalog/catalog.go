// Package catalog describes the materials, warehouses and stores that the
// cash register and the stock ledger refer to.
package catalog

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrMaterialNotFound is returned when a material code is not in the catalog.
	ErrMaterialNotFound = errors.New("material not found")
	// ErrWarehouseNotFound is returned when a warehouse does not exist.
	ErrWarehouseNotFound = errors.New("warehouse not found")
	// ErrStoreNotFound is returned when a store does not exist.
	ErrStoreNotFound = errors.New("store not found")
	// ErrStoreNotMapped is returned when a store has no warehouse to sell from.
	ErrStoreNotMapped = errors.New("store has no mapped warehouse")
)

// Material is a catalog entry that can be stocked and sold.
type Material struct {
	Code        string
	Description string
	Category    string
	Unit        string
	Price       decimal.Decimal
	Active      bool
}

// Warehouse is a physical or logical stock-holding location.
type Warehouse struct {
	ID     string
	Code   string
	Name   string
	Active bool
}

// Store is a point of sale. WarehouseID is empty when the store does not
// sell from stock.
type Store struct {
	ID          string
	Code        string
	Name        string
	WarehouseID string
	Active      bool
}

// Mapped reports whether the store sells from a warehouse.
func (s Store) Mapped() bool {
	return s.WarehouseID != ""
}

// Repository provides catalog lookups.
type Repository interface {
	ListMaterials(ctx context.Context) ([]Material, error)
	GetMaterials(ctx context.Context, codes []string) ([]Material, error)
	ListWarehouses(ctx context.Context) ([]Warehouse, error)
	GetWarehouse(ctx context.Context, id string) (*Warehouse, error)
	ListStores(ctx context.Context) ([]Store, error)
	GetStore(ctx context.Context, id string) (*Store, error)
}

// Writer stores catalog entries.
type Writer interface {
	// UpsertMaterials inserts or replaces materials by code and returns the
	// number written.
	UpsertMaterials(ctx context.Context, materials []Material) (int, error)
	SaveWarehouse(ctx context.Context, w Warehouse) error
	SaveStore(ctx context.Context, s Store) error
}

// StoreResolver resolves a store by id.
type StoreResolver interface {
	GetStore(ctx context.Context, id string) (*Store, error)
}

// SaleWarehouse returns the warehouse a store sells from.
func SaleWarehouse(ctx context.Context, stores StoreResolver, storeID string) (string, error) {
	s, err := stores.GetStore(ctx, storeID)
	if err != nil {
		return "", err
	}
	if !s.Mapped() {
		return "", ErrStoreNotMapped
	}
	return s.WarehouseID, nil
}
