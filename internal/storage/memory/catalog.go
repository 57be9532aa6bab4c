package memory

import (
	"context"

	"github.com/xenking/caja/internal/domain/auth"
	"github.com/xenking/caja/internal/domain/catalog"
)

// ListMaterials implements catalog.Repository.
func (st *Store) ListMaterials(_ context.Context) (out []catalog.Material, _ error) {
	st.locked(func() {
		out = sortedValues(st.s.materials, func(a, b catalog.Material) bool { return a.Code < b.Code })
	})
	return out, nil
}

// GetMaterials implements catalog.Repository. Unknown codes are skipped.
func (st *Store) GetMaterials(_ context.Context, codes []string) (out []catalog.Material, _ error) {
	st.locked(func() {
		for _, c := range codes {
			if m, ok := st.s.materials[c]; ok {
				out = append(out, m)
			}
		}
	})
	return out, nil
}

// ListWarehouses implements catalog.Repository.
func (st *Store) ListWarehouses(_ context.Context) (out []catalog.Warehouse, _ error) {
	st.locked(func() {
		out = sortedValues(st.s.warehouses, func(a, b catalog.Warehouse) bool { return a.Code < b.Code })
	})
	return out, nil
}

// GetWarehouse implements catalog.Repository.
func (st *Store) GetWarehouse(_ context.Context, id string) (*catalog.Warehouse, error) {
	var (
		w  catalog.Warehouse
		ok bool
	)
	st.locked(func() { w, ok = st.s.warehouses[id] })
	if !ok {
		return nil, catalog.ErrWarehouseNotFound
	}
	return &w, nil
}

// ListStores implements catalog.Repository.
func (st *Store) ListStores(_ context.Context) (out []catalog.Store, _ error) {
	st.locked(func() {
		out = sortedValues(st.s.stores, func(a, b catalog.Store) bool { return a.Code < b.Code })
	})
	return out, nil
}

// GetStore implements catalog.Repository.
func (st *Store) GetStore(_ context.Context, id string) (*catalog.Store, error) {
	var (
		s  catalog.Store
		ok bool
	)
	st.locked(func() { s, ok = st.s.stores[id] })
	if !ok {
		return nil, catalog.ErrStoreNotFound
	}
	return &s, nil
}

// UpsertMaterials implements catalog.Writer.
func (st *Store) UpsertMaterials(_ context.Context, materials []catalog.Material) (int, error) {
	st.locked(func() {
		for _, m := range materials {
			st.s.materials[m.Code] = m
		}
	})
	return len(materials), nil
}

// SaveWarehouse implements catalog.Writer.
func (st *Store) SaveWarehouse(_ context.Context, w catalog.Warehouse) error {
	st.locked(func() { st.s.warehouses[w.ID] = w })
	return nil
}

// SaveStore implements catalog.Writer.
func (st *Store) SaveStore(_ context.Context, s catalog.Store) error {
	st.locked(func() { st.s.stores[s.ID] = s })
	return nil
}

// FindByHash implements auth.Repository.
func (st *Store) FindByHash(_ context.Context, hash string) (*auth.APIKeyInfo, error) {
	var (
		k  auth.APIKeyInfo
		ok bool
	)
	st.locked(func() { k, ok = st.s.apiKeys[hash] })
	if !ok || !k.Active {
		return nil, auth.ErrKeyNotFound
	}
	return &k, nil
}

// SaveAPIKey implements auth.Writer.
func (st *Store) SaveAPIKey(_ context.Context, k auth.APIKeyInfo) error {
	st.locked(func() { st.s.apiKeys[k.KeyHash] = k })
	return nil
}
