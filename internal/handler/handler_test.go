package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/caja/internal/domain/auth"
	"github.com/xenking/caja/internal/domain/cash"
	"github.com/xenking/caja/internal/domain/catalog"
	"github.com/xenking/caja/internal/domain/order"
	"github.com/xenking/caja/internal/domain/stock"
	"github.com/xenking/caja/internal/handler"
	"github.com/xenking/caja/internal/storage/memory"
)

var pepper = []byte("test-pepper")

const (
	adminKey  = "admin-key"
	readerKey = "reader-key"
)

type invalidations []string

func (i *invalidations) Invalidate(_ context.Context, id string) { *i = append(*i, id) }

type env struct {
	h       http.Handler
	store   *memory.Store
	invalid *invalidations
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()
	st := memory.New()

	require.NoError(t, st.SaveWarehouse(ctx, catalog.Warehouse{ID: "W", Code: "ALM-1", Name: "Central", Active: true}))
	require.NoError(t, st.SaveStore(ctx, catalog.Store{ID: "S", Code: "T01", Name: "Centro", WarehouseID: "W", Active: true}))
	_, err := st.UpsertMaterials(ctx, []catalog.Material{
		{Code: "M", Description: "Panel", Price: decimal.RequireFromString("10"), Active: true},
	})
	require.NoError(t, err)
	require.NoError(t, st.SaveAPIKey(ctx, auth.APIKeyInfo{
		ID: "k1", KeyHash: auth.Hash(pepper, adminKey), Name: "ana",
		Scopes: []string{auth.ScopeCaja, auth.ScopeInventory}, Active: true,
	}))
	require.NoError(t, st.SaveAPIKey(ctx, auth.APIKeyInfo{
		ID: "k2", KeyHash: auth.Hash(pepper, readerKey), Name: "auditor",
		Scopes: []string{auth.ScopeRead}, Active: true,
	}))

	idx := catalog.NewIndex([]string{"M"})
	sessions := cash.NewManager(st.Cash(), st)
	ledger := stock.NewLedger(st.Stock(), stock.NewValidator(idx, st))
	inv := &invalidations{}
	h := handler.New(handler.Deps{
		Sessions: sessions,
		Orders:   order.NewProcessor(st.Orders(), sessions, ledger),
		Ledger:   ledger,
		Catalog:  st,
		Stores:   inv,
		Keys:     st,
		Pepper:   pepper,
	})
	return &env{h: h.Routes(), store: st, invalid: inv}
}

type response struct {
	Status  int             `json:"-"`
	Data    json.RawMessage `json:"data"`
	Code    int             `json:"code"`
	Message string          `json:"message"`
}

func (e *env) do(t *testing.T, key, method, path string, body any) response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if key != "" {
		req.Header.Set(handler.APIKeyHeader, key)
	}
	rec := httptest.NewRecorder()
	e.h.ServeHTTP(rec, req)

	var res response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res), rec.Body.String())
	res.Status = rec.Code
	return res
}

func (r response) decode(t *testing.T, dst any) {
	t.Helper()
	dec := json.NewDecoder(bytes.NewReader(r.Data))
	dec.UseNumber()
	require.NoError(t, dec.Decode(dst))
}

type object = map[string]any

func TestAuthentication(t *testing.T) {
	e := newEnv(t)

	for _, tt := range []struct {
		name   string
		key    string
		path   string
		status int
	}{
		{"Missing", "", "/caja/sesiones", http.StatusUnauthorized},
		{"Unknown", "nope", "/caja/sesiones", http.StatusUnauthorized},
		{"WrongScope", readerKey, "/caja/sesiones", http.StatusForbidden},
		{"ReaderStock", readerKey, "/inventario/stock", http.StatusOK},
		{"AdminSessions", adminKey, "/caja/sesiones", http.StatusOK},
	} {
		t.Run(tt.name, func(t *testing.T) {
			res := e.do(t, tt.key, http.MethodGet, tt.path, nil)
			assert.Equal(t, tt.status, res.Status, res.Message)
		})
	}
}

func TestNotFoundRoute(t *testing.T) {
	e := newEnv(t)
	res := e.do(t, adminKey, http.MethodGet, "/nothing", nil)
	assert.Equal(t, http.StatusNotFound, res.Status)
	assert.Equal(t, "route not found", res.Message)
}

func TestCheckout(t *testing.T) {
	e := newEnv(t)

	res := e.do(t, adminKey, http.MethodPost, "/inventario/movimientos", object{
		"tipo": "entrada", "material_codigo": "M", "cantidad": "5", "almacen_origen_id": "W",
	})
	require.Equal(t, http.StatusCreated, res.Status, res.Message)

	res = e.do(t, adminKey, http.MethodPost, "/caja/sesiones", object{
		"tienda_id": "S", "efectivo_apertura": "100",
	})
	require.Equal(t, http.StatusCreated, res.Status, res.Message)
	var session struct {
		ID     string      `json:"id"`
		Number string      `json:"numero_sesion"`
		User   string      `json:"usuario_apertura"`
		Open   json.Number `json:"efectivo_apertura"`
	}
	res.decode(t, &session)
	assert.Equal(t, "CAJA-T01-000001", session.Number)
	assert.Equal(t, "ana", session.User)
	assert.Equal(t, json.Number("100.00"), session.Open)

	res = e.do(t, adminKey, http.MethodPost, "/caja/ordenes", object{
		"sesion_caja_id": session.ID,
		"cliente_nombre": "Luis",
		"items": []object{
			{"material_codigo": "M", "descripcion": "Panel", "cantidad": "2", "precio_unitario": "10"},
		},
	})
	require.Equal(t, http.StatusCreated, res.Status, res.Message)
	var created struct {
		ID       string      `json:"id"`
		Number   string      `json:"numero_orden"`
		Status   string      `json:"estado"`
		Customer string      `json:"cliente_nombre"`
		Total    json.Number `json:"total"`
		StoreID  string      `json:"tienda_id"`
	}
	res.decode(t, &created)
	assert.Equal(t, "ORD-000001", created.Number)
	assert.Equal(t, "pendiente", created.Status)
	assert.Equal(t, "Luis", created.Customer)
	assert.Equal(t, "S", created.StoreID)
	assert.Equal(t, json.Number("20.00"), created.Total)

	// Closing with a pending order is a conflict.
	res = e.do(t, adminKey, http.MethodPost, "/caja/sesiones/"+session.ID+"/cerrar", object{"efectivo_cierre": "100"})
	assert.Equal(t, http.StatusConflict, res.Status)

	// Underpayment leaves the order pending.
	res = e.do(t, adminKey, http.MethodPost, "/caja/ordenes/"+created.ID+"/pagar", object{
		"pagos": []object{{"metodo": "efectivo", "monto": "15"}},
	})
	assert.Equal(t, http.StatusConflict, res.Status)

	res = e.do(t, adminKey, http.MethodPost, "/caja/ordenes/"+created.ID+"/pagar", object{
		"metodo_pago": "efectivo",
		"pagos":       []object{{"metodo": "efectivo", "monto": "20", "monto_recibido": "50"}},
	})
	require.Equal(t, http.StatusOK, res.Status, res.Message)
	var paid struct {
		Success bool        `json:"success"`
		Change  json.Number `json:"cambio"`
		Order   struct {
			Status string `json:"estado"`
			Method string `json:"metodo_pago"`
		} `json:"orden"`
		Movements []string `json:"movimientos_inventario"`
	}
	res.decode(t, &paid)
	assert.True(t, paid.Success)
	assert.Equal(t, json.Number("30.00"), paid.Change)
	assert.Equal(t, "pagada", paid.Order.Status)
	assert.Equal(t, "efectivo", paid.Order.Method)
	assert.Len(t, paid.Movements, 1)

	res = e.do(t, adminKey, http.MethodGet, "/inventario/stock?almacen_id=W&material_codigo=M", nil)
	require.Equal(t, http.StatusOK, res.Status)
	var levels []struct {
		Quantity json.Number `json:"cantidad"`
	}
	res.decode(t, &levels)
	require.Len(t, levels, 1)
	assert.Equal(t, json.Number("3"), levels[0].Quantity)

	res = e.do(t, adminKey, http.MethodPost, "/caja/sesiones/"+session.ID+"/movimientos-efectivo", object{
		"tipo": "salida", "monto": "10", "motivo": "cambio",
	})
	require.Equal(t, http.StatusCreated, res.Status, res.Message)

	res = e.do(t, adminKey, http.MethodPost, "/caja/sesiones/"+session.ID+"/cerrar", object{"efectivo_cierre": "105"})
	require.Equal(t, http.StatusOK, res.Status, res.Message)
	var closed struct {
		Status     string      `json:"estado"`
		Expected   json.Number `json:"efectivo_esperado"`
		Difference json.Number `json:"diferencia"`
		Sales      json.Number `json:"total_ventas"`
	}
	res.decode(t, &closed)
	assert.Equal(t, "cerrada", closed.Status)
	assert.Equal(t, json.Number("110.00"), closed.Expected)
	assert.Equal(t, json.Number("-5.00"), closed.Difference)
	assert.Equal(t, json.Number("20.00"), closed.Sales)

	res = e.do(t, adminKey, http.MethodGet, "/caja/sesiones/"+session.ID, nil)
	require.Equal(t, http.StatusOK, res.Status)
	var detail struct {
		Movements []object `json:"movimientos_efectivo"`
	}
	res.decode(t, &detail)
	assert.Len(t, detail.Movements, 1)
}

func TestErrors(t *testing.T) {
	e := newEnv(t)

	res := e.do(t, adminKey, http.MethodPost, "/caja/sesiones", object{"tienda_id": "S", "efectivo_apertura": "50"})
	require.Equal(t, http.StatusCreated, res.Status)

	for _, tt := range []struct {
		name    string
		method  string
		path    string
		body    any
		status  int
		message string
	}{
		{
			name: "AlreadyOpen", method: http.MethodPost, path: "/caja/sesiones",
			body:   object{"tienda_id": "S", "efectivo_apertura": "0"},
			status: http.StatusConflict,
		},
		{
			name: "MissingAmount", method: http.MethodPost, path: "/caja/sesiones",
			body:    object{"tienda_id": "S"},
			status:  http.StatusUnprocessableEntity,
			message: "efectivo_apertura: required",
		},
		{
			name: "BadKind", method: http.MethodPost, path: "/inventario/movimientos",
			body:   object{"tipo": "robo", "material_codigo": "M", "cantidad": "1"},
			status: http.StatusUnprocessableEntity,
		},
		{
			name: "UnknownSession", method: http.MethodGet, path: "/caja/sesiones/missing",
			status: http.StatusNotFound,
		},
		{
			name: "UnknownOrder", method: http.MethodDelete, path: "/caja/ordenes/missing",
			status: http.StatusNotFound,
		},
		{
			name: "InsufficientStock", method: http.MethodPost, path: "/inventario/ventas",
			body:   object{"tienda_id": "S", "items": []object{{"material_codigo": "M", "cantidad": "1"}}},
			status: http.StatusConflict,
		},
		{
			name: "BadDate", method: http.MethodGet, path: "/caja/sesiones?fecha_desde=ayer",
			status: http.StatusBadRequest,
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			res := e.do(t, adminKey, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, res.Status, res.Message)
			assert.Equal(t, tt.status, res.Code)
			if tt.message != "" {
				assert.Equal(t, tt.message, res.Message)
			}
		})
	}
}

func TestInvalidBody(t *testing.T) {
	e := newEnv(t)
	req := httptest.NewRequest(http.MethodPost, "/caja/sesiones", bytes.NewBufferString("{"))
	req.Header.Set(handler.APIKeyHeader, adminKey)
	rec := httptest.NewRecorder()
	e.h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCatalog(t *testing.T) {
	e := newEnv(t)

	res := e.do(t, adminKey, http.MethodPost, "/tiendas", object{
		"id": "S", "codigo": "T01", "nombre": "Centro nuevo", "almacen_id": "W",
	})
	require.Equal(t, http.StatusOK, res.Status, res.Message)
	assert.Equal(t, []string{"S"}, []string(*e.invalid))

	res = e.do(t, adminKey, http.MethodPost, "/tiendas", object{
		"codigo": "T09", "nombre": "Sin almacen", "almacen_id": "missing",
	})
	assert.Equal(t, http.StatusNotFound, res.Status)

	res = e.do(t, readerKey, http.MethodPost, "/almacenes", object{"codigo": "ALM-2", "nombre": "Norte"})
	assert.Equal(t, http.StatusForbidden, res.Status)

	res = e.do(t, readerKey, http.MethodGet, "/tiendas", nil)
	require.Equal(t, http.StatusOK, res.Status)
	var stores []struct {
		Name   string `json:"nombre"`
		Active bool   `json:"activo"`
	}
	res.decode(t, &stores)
	require.Len(t, stores, 1)
	assert.Equal(t, "Centro nuevo", stores[0].Name)
	assert.True(t, stores[0].Active)

	res = e.do(t, readerKey, http.MethodGet, "/materiales", nil)
	require.Equal(t, http.StatusOK, res.Status)
	var materials []struct {
		Code  string      `json:"codigo"`
		Price json.Number `json:"precio"`
	}
	res.decode(t, &materials)
	require.Len(t, materials, 1)
	assert.Equal(t, json.Number("10.00"), materials[0].Price)
}
