//go:build integration

package router_test

// End-to-end tests over the full HTTP stack with real Postgres + Redis via
// testcontainers. Run with: go test -tags integration ./internal/router/... -v

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"pipos/internal/config"
	"pipos/internal/infra"
	"pipos/internal/model"
	"pipos/internal/repository"
	"pipos/internal/router"
	"pipos/internal/service"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcPostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcRedis "github.com/testcontainers/testcontainers-go/modules/redis"
	"gorm.io/gorm"
)

// ── Helpers ──────────────────────────────────────────────────────────────────

type testEnv struct {
	server *httptest.Server
	db     *gorm.DB
	admin  string
	cajero string
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	pgC, err := tcPostgres.Run(ctx, "postgres:15-alpine",
		tcPostgres.WithDatabase("pipos_test"),
		tcPostgres.WithUsername("pipos"),
		tcPostgres.WithPassword("pipos"),
		tcPostgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgC.Terminate(ctx) })
	pgURL, err := pgC.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	rdC, err := tcRedis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdC.Terminate(ctx) })
	rdURL, err := rdC.ConnectionString(ctx)
	require.NoError(t, err)

	cfg := &config.Config{
		Env:                  "test",
		RateLimit:            10000,
		DatabaseURL:          pgURL,
		DBLockTimeout:        5 * time.Second,
		RedisURL:             rdURL,
		JWTSecret:            "test-secret-key",
		JWTExpirationHours:   8,
		TaxRate:              "0",
		PaymentMethods:       []string{"efectivo", "tarjeta"},
		CashPaymentMethods:   []string{"efectivo"},
		RestockOnVoid:        true,
		SaleNumberPrefix:     "E2E",
		SaleNumberMaxRetries: 5,
		BusinessName:         "Pipos E2E",
		TicketStoragePath:    t.TempDir(),
	}
	require.NoError(t, cfg.Validate())

	db, err := infra.NewDatabase(cfg.DatabaseURL)
	require.NoError(t, err)
	require.NoError(t, infra.RunMigrations(db))
	rdb, err := infra.NewRedis(ctx, cfg.RedisURL)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })

	auth := service.NewAuthService(repository.NewUsuarioRepository(db), cfg)
	_, err = auth.GuardarUsuario(ctx, "admin", "Admin E2E", "pipos2024", model.RolAdministrador)
	require.NoError(t, err)
	_, err = auth.GuardarUsuario(ctx, "caja1", "Caja 1", "caja1234", model.RolCajero)
	require.NoError(t, err)

	srv := httptest.NewServer(router.New(cfg, db, rdb))
	t.Cleanup(srv.Close)

	env := &testEnv{server: srv, db: db}
	env.admin = env.login(t, "admin", "pipos2024")
	env.cajero = env.login(t, "caja1", "caja1234")
	return env
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := e.server.Client().Do(req)
	require.NoError(t, err)
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, dest any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(dest))
}

func (e *testEnv) login(t *testing.T, username, password string) string {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{"username": username, "password": password})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		AccessToken string `json:"access_token"`
	}
	decodeJSON(t, resp, &body)
	require.NotEmpty(t, body.AccessToken)
	return body.AccessToken
}

func (e *testEnv) seedProducto(t *testing.T, descripcion string, precio string, stock int) uuid.UUID {
	t.Helper()
	p := &model.Producto{
		ID:          uuid.New(),
		Descripcion: descripcion,
		PrecioCosto: decimal.RequireFromString(precio).Div(decimal.NewFromInt(2)),
		PrecioVenta: decimal.RequireFromString(precio),
		StockActual: stock,
		StockMinimo: 1,
	}
	require.NoError(t, e.db.Create(p).Error)
	return p.ID
}

func (e *testEnv) stock(t *testing.T, id uuid.UUID) int {
	t.Helper()
	var p model.Producto
	require.NoError(t, e.db.Unscoped().First(&p, "id = ?", id).Error)
	return p.StockActual
}

func venta(productoID uuid.UUID, cantidad int, metodo, pagado string) map[string]any {
	return map[string]any{
		"items":        []map[string]any{{"producto_id": productoID.String(), "cantidad": cantidad}},
		"metodo_pago":  metodo,
		"monto_pagado": pagado,
	}
}

type ventaBody struct {
	ID          string          `json:"id"`
	NumeroVenta string          `json:"numero_venta"`
	Total       decimal.Decimal `json:"total"`
	Cambio      decimal.Decimal `json:"cambio"`
	Anulada     bool            `json:"anulada"`
}

// ── Tests ────────────────────────────────────────────────────────────────────

func TestE2E_CicloDeCaja(t *testing.T) {
	env := setupTestEnv(t)
	cafe := env.seedProducto(t, "Café 250g", "5.00", 10)

	// 1. Sale of 3 units paid with 20.
	resp := env.do(t, http.MethodPost, "/v1/ventas", env.cajero, venta(cafe, 3, "efectivo", "20"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var v1 ventaBody
	decodeJSON(t, resp, &v1)
	assert.Regexp(t, `^E2E-\d{8}-00001$`, v1.NumeroVenta)
	assert.True(t, v1.Total.Equal(decimal.RequireFromString("15")))
	assert.True(t, v1.Cambio.Equal(decimal.RequireFromString("5")))
	assert.Equal(t, 7, env.stock(t, cafe))

	// 2. Ticket JSON and PDF.
	resp = env.do(t, http.MethodGet, "/v1/ventas/"+v1.ID+"/ticket", env.cajero, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var ticket struct {
		Negocio string `json:"negocio"`
		Lineas  []struct {
			Descripcion string `json:"descripcion"`
		} `json:"lineas"`
	}
	decodeJSON(t, resp, &ticket)
	assert.Equal(t, "Pipos E2E", ticket.Negocio)
	require.Len(t, ticket.Lineas, 1)
	assert.Equal(t, "Café 250g", ticket.Lineas[0].Descripcion)

	resp = env.do(t, http.MethodGet, "/v1/ventas/"+v1.ID+"/ticket/pdf", env.cajero, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	pdf, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(pdf[:4]))

	// 3. A cashier cannot void; an administrator can, twice without effect.
	resp = env.do(t, http.MethodDelete, "/v1/ventas/"+v1.ID, env.cajero, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()
	for i := 0; i < 2; i++ {
		resp = env.do(t, http.MethodDelete, "/v1/ventas/"+v1.ID, env.admin, map[string]string{"motivo": "error de carga"})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var anulada ventaBody
		decodeJSON(t, resp, &anulada)
		assert.True(t, anulada.Anulada)
	}
	assert.Equal(t, 10, env.stock(t, cafe))

	// 4. Second sale, card sale and a manual deposit.
	resp = env.do(t, http.MethodPost, "/v1/ventas", env.cajero, venta(cafe, 2, "efectivo", "10"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()
	resp = env.do(t, http.MethodPost, "/v1/ventas", env.cajero, venta(cafe, 1, "tarjeta", "0"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()
	resp = env.do(t, http.MethodPost, "/v1/caja/movimientos", env.cajero,
		map[string]string{"tipo": "ingreso", "monto": "50", "descripcion": "Fondo de caja"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = env.do(t, http.MethodGet, "/v1/caja/esperado", env.admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var esperado struct {
		VentasEfectivo   decimal.Decimal `json:"ventas_efectivo"`
		VentasDigitales  decimal.Decimal `json:"ventas_digitales"`
		EfectivoEsperado decimal.Decimal `json:"efectivo_esperado"`
	}
	decodeJSON(t, resp, &esperado)
	assert.True(t, esperado.VentasEfectivo.Equal(decimal.RequireFromString("10")), esperado.VentasEfectivo.String())
	assert.True(t, esperado.VentasDigitales.Equal(decimal.RequireFromString("5")))
	assert.True(t, esperado.EfectivoEsperado.Equal(decimal.RequireFromString("60")))

	// 5. Close with the exact amount.
	resp = env.do(t, http.MethodPost, "/v1/caja/cierre", env.cajero, map[string]string{"efectivo_contado": "60"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var corte struct {
		ID            string          `json:"id"`
		Diferencia    decimal.Decimal `json:"diferencia"`
		Clasificacion string          `json:"clasificacion"`
	}
	decodeJSON(t, resp, &corte)
	assert.True(t, corte.Diferencia.IsZero())
	assert.Equal(t, "normal", corte.Clasificacion)

	// 6. The new period starts empty.
	resp = env.do(t, http.MethodGet, "/v1/caja/esperado", env.admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeJSON(t, resp, &esperado)
	assert.True(t, esperado.EfectivoEsperado.IsZero())

	resp = env.do(t, http.MethodGet, "/v1/caja/cortes/"+corte.ID, env.admin, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestE2E_UltimaUnidadConcurrente(t *testing.T) {
	env := setupTestEnv(t)
	ultimo := env.seedProducto(t, "Pan dulce", "3.00", 1)

	var wg sync.WaitGroup
	codes := make([]int, 2)
	for i := range codes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp := env.do(t, http.MethodPost, "/v1/ventas", env.cajero, venta(ultimo, 1, "efectivo", "3"))
			codes[i] = resp.StatusCode
			resp.Body.Close()
		}(i)
	}
	wg.Wait()

	assert.ElementsMatch(t, []int{http.StatusCreated, http.StatusConflict}, codes)
	assert.Equal(t, 0, env.stock(t, ultimo))
}

func TestE2E_IdempotenciaOffline(t *testing.T) {
	env := setupTestEnv(t)
	p := env.seedProducto(t, "Leche", "1.20", 5)

	body := venta(p, 1, "efectivo", "2")
	body["offline_id"] = "caja1-000042"

	var ids []string
	for i := 0; i < 2; i++ {
		resp := env.do(t, http.MethodPost, "/v1/ventas", env.cajero, body)
		require.Contains(t, []int{http.StatusOK, http.StatusCreated}, resp.StatusCode)
		var v ventaBody
		decodeJSON(t, resp, &v)
		ids = append(ids, v.ID)
	}
	assert.Equal(t, ids[0], ids[1])
	assert.Equal(t, 4, env.stock(t, p))
}
