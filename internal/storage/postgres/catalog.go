package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/caja/internal/domain/catalog"
)

const (
	listMaterialsSQL = `SELECT code, description, category, unit, price, active
		FROM materials ORDER BY code`

	getMaterialsSQL = `SELECT code, description, category, unit, price, active
		FROM materials WHERE code = ANY($1) ORDER BY code`

	upsertMaterialSQL = `INSERT INTO materials (code, description, category, unit, price, active, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (code) DO UPDATE SET
			description = EXCLUDED.description,
			category = EXCLUDED.category,
			unit = EXCLUDED.unit,
			price = EXCLUDED.price,
			active = EXCLUDED.active,
			updated_at = now()`

	listWarehousesSQL = `SELECT id, code, name, active FROM warehouses ORDER BY code`

	getWarehouseSQL = `SELECT id, code, name, active FROM warehouses WHERE id = $1`

	upsertWarehouseSQL = `INSERT INTO warehouses (id, code, name, active) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET code = EXCLUDED.code, name = EXCLUDED.name, active = EXCLUDED.active`

	listStoresSQL = `SELECT id, code, name, COALESCE(warehouse_id, ''), active FROM stores ORDER BY code`

	getStoreSQL = `SELECT id, code, name, COALESCE(warehouse_id, ''), active FROM stores WHERE id = $1`

	upsertStoreSQL = `INSERT INTO stores (id, code, name, warehouse_id, active) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			code = EXCLUDED.code,
			name = EXCLUDED.name,
			warehouse_id = EXCLUDED.warehouse_id,
			active = EXCLUDED.active`
)

var (
	_ catalog.Repository    = (*Store)(nil)
	_ catalog.Writer        = (*Store)(nil)
	_ catalog.StoreResolver = storesTx{}
)

// ListMaterials returns every material ordered by code.
func (s *Store) ListMaterials(ctx context.Context) ([]catalog.Material, error) {
	rows, err := s.pool.Query(ctx, listMaterialsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing materials: %w", err)
	}
	return pgx.CollectRows(rows, scanMaterial)
}

// GetMaterials returns the materials with the given codes. Unknown codes are
// skipped.
func (s *Store) GetMaterials(ctx context.Context, codes []string) ([]catalog.Material, error) {
	rows, err := s.pool.Query(ctx, getMaterialsSQL, codes)
	if err != nil {
		return nil, fmt.Errorf("getting materials: %w", err)
	}
	return pgx.CollectRows(rows, scanMaterial)
}

// UpsertMaterials inserts or replaces materials in one batch.
func (s *Store) UpsertMaterials(ctx context.Context, materials []catalog.Material) (int, error) {
	batch := &pgx.Batch{}
	for _, m := range materials {
		batch.Queue(upsertMaterialSQL, m.Code, m.Description, m.Category, m.Unit, m.Price, m.Active)
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return 0, fmt.Errorf("upserting materials: %w", err)
	}
	return len(materials), nil
}

// ListWarehouses returns every warehouse ordered by code.
func (s *Store) ListWarehouses(ctx context.Context) ([]catalog.Warehouse, error) {
	rows, err := s.pool.Query(ctx, listWarehousesSQL)
	if err != nil {
		return nil, fmt.Errorf("listing warehouses: %w", err)
	}
	return pgx.CollectRows(rows, scanWarehouse)
}

// GetWarehouse returns a warehouse or catalog.ErrWarehouseNotFound.
func (s *Store) GetWarehouse(ctx context.Context, id string) (*catalog.Warehouse, error) {
	rows, err := s.pool.Query(ctx, getWarehouseSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting warehouse %q: %w", id, err)
	}
	w, err := pgx.CollectExactlyOneRow(rows, scanWarehouse)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrWarehouseNotFound
		}
		return nil, fmt.Errorf("getting warehouse %q: %w", id, err)
	}
	return &w, nil
}

// SaveWarehouse inserts or replaces a warehouse.
func (s *Store) SaveWarehouse(ctx context.Context, w catalog.Warehouse) error {
	if _, err := s.pool.Exec(ctx, upsertWarehouseSQL, w.ID, w.Code, w.Name, w.Active); err != nil {
		return fmt.Errorf("saving warehouse %q: %w", w.ID, err)
	}
	return nil
}

// ListStores returns every store ordered by code.
func (s *Store) ListStores(ctx context.Context) ([]catalog.Store, error) {
	rows, err := s.pool.Query(ctx, listStoresSQL)
	if err != nil {
		return nil, fmt.Errorf("listing stores: %w", err)
	}
	return pgx.CollectRows(rows, scanStore)
}

// GetStore returns a store or catalog.ErrStoreNotFound.
func (s *Store) GetStore(ctx context.Context, id string) (*catalog.Store, error) {
	return getStore(ctx, s.pool, id)
}

// SaveStore inserts or replaces a store.
func (s *Store) SaveStore(ctx context.Context, st catalog.Store) error {
	if _, err := s.pool.Exec(ctx, upsertStoreSQL, st.ID, st.Code, st.Name, nullString(st.WarehouseID), st.Active); err != nil {
		return fmt.Errorf("saving store %q: %w", st.ID, err)
	}
	return nil
}

func getStore(ctx context.Context, q querier, id string) (*catalog.Store, error) {
	rows, err := q.Query(ctx, getStoreSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting store %q: %w", id, err)
	}
	st, err := pgx.CollectExactlyOneRow(rows, scanStore)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrStoreNotFound
		}
		return nil, fmt.Errorf("getting store %q: %w", id, err)
	}
	return &st, nil
}

// storesTx resolves stores inside a transaction.
type storesTx struct{ tx pgx.Tx }

func (t storesTx) GetStore(ctx context.Context, id string) (*catalog.Store, error) {
	return getStore(ctx, t.tx, id)
}

func scanMaterial(row pgx.CollectableRow) (catalog.Material, error) {
	var m catalog.Material
	err := row.Scan(&m.Code, &m.Description, &m.Category, &m.Unit, &m.Price, &m.Active)
	return m, err
}

func scanWarehouse(row pgx.CollectableRow) (catalog.Warehouse, error) {
	var w catalog.Warehouse
	err := row.Scan(&w.ID, &w.Code, &w.Name, &w.Active)
	return w, err
}

func scanStore(row pgx.CollectableRow) (catalog.Store, error) {
	var s catalog.Store
	err := row.Scan(&s.ID, &s.Code, &s.Name, &s.WarehouseID, &s.Active)
	return s, err
}
