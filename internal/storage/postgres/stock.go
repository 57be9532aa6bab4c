package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/xenking/caja/internal/domain/stock"
)

const (
	ensureLevelsSQL = `INSERT INTO stock_levels (warehouse_id, material_code, quantity)
		SELECT k.w, k.m, 0 FROM unnest($1::text[], $2::text[]) AS k(w, m)
		ORDER BY k.w, k.m
		ON CONFLICT (warehouse_id, material_code) DO NOTHING`

	lockLevelsSQL = `SELECT warehouse_id, material_code, quantity FROM stock_levels
		WHERE (warehouse_id, material_code) IN (SELECT * FROM unnest($1::text[], $2::text[]))
		ORDER BY warehouse_id, material_code
		FOR UPDATE`

	saveLevelSQL = `UPDATE stock_levels SET quantity = $3, updated_at = $4
		WHERE warehouse_id = $1 AND material_code = $2`

	appendMovementSQL = `INSERT INTO stock_movements (
			id, kind, material_code, quantity, origin, destination, store_id, reason, reference, user_name,
			origin_before, origin_after, destination_before, destination_after, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	unknownWarehousesSQL = `SELECT u.id FROM unnest($1::text[]) AS u(id)
		WHERE NOT EXISTS (SELECT 1 FROM warehouses w WHERE w.id = u.id)`

	unknownMaterialsSQL = `SELECT u.code FROM unnest($1::text[]) AS u(code)
		WHERE NOT EXISTS (SELECT 1 FROM materials m WHERE m.code = u.code)`

	listLevelsSQL = `SELECT l.warehouse_id, l.material_code, l.quantity, l.updated_at FROM stock_levels l
		WHERE ($1::text = '' OR l.warehouse_id = $1)
		  AND ($2::text = '' OR l.warehouse_id = (SELECT s.warehouse_id FROM stores s WHERE s.id = $2))
		  AND ($3::text = '' OR l.material_code = $3)
		ORDER BY l.warehouse_id, l.material_code`

	listMovementsSQL = `SELECT id, kind, material_code, quantity, origin, COALESCE(destination, ''), COALESCE(store_id, ''),
			reason, reference, user_name, origin_before, origin_after, destination_before, destination_after, created_at
		FROM stock_movements
		WHERE ($1::text = '' OR kind = $1)
		  AND ($2::text = '' OR origin = $2 OR destination = $2)
		  AND ($3::text = '' OR store_id = $3)
		  AND ($4::text = '' OR material_code = $4)
		  AND ($5::text = '' OR reference = $5)
		ORDER BY created_at DESC, id
		LIMIT NULLIF($6::int, 0)`
)

type stockStore struct{ s *Store }

type stockTx struct{ tx pgx.Tx }

var (
	_ stock.Store      = stockStore{}
	_ stock.Repository = stockTx{}
)

func (s stockStore) InTx(ctx context.Context, fn func(ctx context.Context, repo stock.Repository) error) error {
	return s.s.inTx(ctx, func(tx pgx.Tx) error { return fn(ctx, stockTx{tx}) })
}

func (s stockStore) ListLevels(ctx context.Context, f stock.LevelFilter) ([]stock.Level, error) {
	rows, err := s.s.pool.Query(ctx, listLevelsSQL, f.WarehouseID, f.StoreID, f.MaterialCode)
	if err != nil {
		return nil, fmt.Errorf("listing stock levels: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (stock.Level, error) {
		var l stock.Level
		err := row.Scan(&l.WarehouseID, &l.MaterialCode, &l.Quantity, &l.UpdatedAt)
		return l, err
	})
}

func (s stockStore) ListMovements(ctx context.Context, f stock.MovementFilter) ([]stock.Entry, error) {
	rows, err := s.s.pool.Query(ctx, listMovementsSQL,
		string(f.Kind), f.WarehouseID, f.StoreID, f.MaterialCode, f.Reference, f.Limit)
	if err != nil {
		return nil, fmt.Errorf("listing stock movements: %w", err)
	}
	return pgx.CollectRows(rows, scanEntry)
}

func scanEntry(row pgx.CollectableRow) (stock.Entry, error) {
	var (
		e    stock.Entry
		kind string
	)
	err := row.Scan(
		&e.ID, &kind, &e.MaterialCode, &e.Quantity, &e.Origin, &e.Destination, &e.StoreID,
		&e.Reason, &e.Reference, &e.User,
		&e.OriginBefore, &e.OriginAfter, &e.DestinationBefore, &e.DestinationAfter, &e.CreatedAt,
	)
	e.Kind = stock.Kind(kind)
	return e, err
}

func splitKeys(keys []stock.LevelKey) (warehouses, materials []string) {
	warehouses = make([]string, len(keys))
	materials = make([]string, len(keys))
	for i, k := range keys {
		warehouses[i] = k.WarehouseID
		materials[i] = k.MaterialCode
	}
	return warehouses, materials
}

func (t stockTx) LockLevels(ctx context.Context, keys []stock.LevelKey) (map[stock.LevelKey]decimal.Decimal, error) {
	warehouses, materials := splitKeys(keys)
	if _, err := t.tx.Exec(ctx, ensureLevelsSQL, warehouses, materials); err != nil {
		return nil, fmt.Errorf("ensuring stock levels: %w", err)
	}
	rows, err := t.tx.Query(ctx, lockLevelsSQL, warehouses, materials)
	if err != nil {
		return nil, fmt.Errorf("locking stock levels: %w", err)
	}
	defer rows.Close()

	out := make(map[stock.LevelKey]decimal.Decimal, len(keys))
	for rows.Next() {
		var (
			k stock.LevelKey
			q decimal.Decimal
		)
		if err := rows.Scan(&k.WarehouseID, &k.MaterialCode, &q); err != nil {
			return nil, fmt.Errorf("scanning stock level: %w", err)
		}
		out[k] = q
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("locking stock levels: %w", err)
	}
	return out, nil
}

func (t stockTx) SaveLevel(ctx context.Context, l stock.Level) error {
	if _, err := t.tx.Exec(ctx, saveLevelSQL, l.WarehouseID, l.MaterialCode, l.Quantity, l.UpdatedAt); err != nil {
		return fmt.Errorf("saving stock level: %w", err)
	}
	return nil
}

func (t stockTx) AppendMovement(ctx context.Context, e *stock.Entry) error {
	_, err := t.tx.Exec(ctx, appendMovementSQL,
		e.ID, string(e.Kind), e.MaterialCode, e.Quantity, e.Origin, nullString(e.Destination), nullString(e.StoreID),
		e.Reason, e.Reference, e.User,
		e.OriginBefore, e.OriginAfter, e.DestinationBefore, e.DestinationAfter, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("appending stock movement: %w", err)
	}
	return nil
}

func (t stockTx) UnknownWarehouses(ctx context.Context, ids []string) ([]string, error) {
	rows, err := t.tx.Query(ctx, unknownWarehousesSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("checking warehouses: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (t stockTx) UnknownMaterials(ctx context.Context, codes []string) ([]string, error) {
	rows, err := t.tx.Query(ctx, unknownMaterialsSQL, codes)
	if err != nil {
		return nil, fmt.Errorf("checking materials: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}
