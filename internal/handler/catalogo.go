package handler

import (
	"context"
	"net/http"

	"github.com/go-faster/jx"
	"github.com/google/uuid"

	"github.com/xenking/caja/internal/command"
	"github.com/xenking/caja/internal/domain/catalog"
)

type warehouseRequest struct {
	ID     string `json:"id"`
	Code   string `json:"codigo" validate:"required,max=50"`
	Name   string `json:"nombre" validate:"required,max=200"`
	Active *bool  `json:"activo"`
}

type storeRequest struct {
	ID          string `json:"id"`
	Code        string `json:"codigo" validate:"required,max=50"`
	Name        string `json:"nombre" validate:"required,max=200"`
	WarehouseID string `json:"almacen_id"`
	Active      *bool  `json:"activo"`
}

func active(b *bool) bool {
	return b == nil || *b
}

func (h *Handler) listWarehouses(w http.ResponseWriter, r *http.Request) {
	whs, err := command.Run(r.Context(), h.runner, "list_warehouses", h.catalog.ListWarehouses)
	if err != nil {
		fail(w, err)
		return
	}
	writeData(w, http.StatusOK, func(e *jx.Encoder) { list(e, whs, encodeWarehouse) })
}

func (h *Handler) saveWarehouse(w http.ResponseWriter, r *http.Request) {
	var req warehouseRequest
	if !decode(w, r, &req) {
		return
	}
	wh := catalog.Warehouse{ID: req.ID, Code: req.Code, Name: req.Name, Active: active(req.Active)}
	if wh.ID == "" {
		wh.ID = uuid.NewString()
	}
	_, err := command.Run(r.Context(), h.runner, "save_warehouse", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, h.catalog.SaveWarehouse(ctx, wh)
	})
	if err != nil {
		fail(w, err)
		return
	}
	writeData(w, http.StatusOK, func(e *jx.Encoder) { encodeWarehouse(e, &wh) })
}

func (h *Handler) listStores(w http.ResponseWriter, r *http.Request) {
	stores, err := command.Run(r.Context(), h.runner, "list_stores", h.catalog.ListStores)
	if err != nil {
		fail(w, err)
		return
	}
	writeData(w, http.StatusOK, func(e *jx.Encoder) { list(e, stores, encodeStore) })
}

func (h *Handler) saveStore(w http.ResponseWriter, r *http.Request) {
	var req storeRequest
	if !decode(w, r, &req) {
		return
	}
	s := catalog.Store{
		ID:          req.ID,
		Code:        req.Code,
		Name:        req.Name,
		WarehouseID: req.WarehouseID,
		Active:      active(req.Active),
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	_, err := command.Run(r.Context(), h.runner, "save_store", func(ctx context.Context) (struct{}, error) {
		if s.WarehouseID != "" {
			if _, err := h.catalog.GetWarehouse(ctx, s.WarehouseID); err != nil {
				return struct{}{}, err
			}
		}
		if err := h.catalog.SaveStore(ctx, s); err != nil {
			return struct{}{}, err
		}
		if h.stores != nil {
			h.stores.Invalidate(ctx, s.ID)
		}
		return struct{}{}, nil
	})
	if err != nil {
		fail(w, err)
		return
	}
	writeData(w, http.StatusOK, func(e *jx.Encoder) { encodeStore(e, &s) })
}

func (h *Handler) listMaterials(w http.ResponseWriter, r *http.Request) {
	materials, err := command.Run(r.Context(), h.runner, "list_materials", h.catalog.ListMaterials)
	if err != nil {
		fail(w, err)
		return
	}
	writeData(w, http.StatusOK, func(e *jx.Encoder) { list(e, materials, encodeMaterial) })
}

func encodeWarehouse(e *jx.Encoder, w *catalog.Warehouse) {
	e.Obj(func(e *jx.Encoder) {
		strField(e, "id", w.ID)
		strField(e, "codigo", w.Code)
		strField(e, "nombre", w.Name)
		e.Field("activo", func(e *jx.Encoder) { e.Bool(w.Active) })
	})
}

func encodeStore(e *jx.Encoder, s *catalog.Store) {
	e.Obj(func(e *jx.Encoder) {
		strField(e, "id", s.ID)
		strField(e, "codigo", s.Code)
		strField(e, "nombre", s.Name)
		optStrField(e, "almacen_id", s.WarehouseID)
		e.Field("activo", func(e *jx.Encoder) { e.Bool(s.Active) })
	})
}

func encodeMaterial(e *jx.Encoder, m *catalog.Material) {
	e.Obj(func(e *jx.Encoder) {
		strField(e, "codigo", m.Code)
		strField(e, "descripcion", m.Description)
		optStrField(e, "categoria", m.Category)
		optStrField(e, "unidad", m.Unit)
		moneyField(e, "precio", m.Price)
		e.Field("activo", func(e *jx.Encoder) { e.Bool(m.Active) })
	})
}
