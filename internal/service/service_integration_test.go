//go:build integration

package service_test

// Service behaviour that only a real Postgres / Redis can show: lock
// serialisation between concurrent closures and the Redis folio counter.
// Run with: go test -tags integration ./internal/service/... -v

import (
	"context"
	"sync"
	"testing"
	"time"

	"pipos/internal/config"
	"pipos/internal/dto"
	"pipos/internal/infra"
	"pipos/internal/model"
	"pipos/internal/repository"
	"pipos/internal/service"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcPostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcRedis "github.com/testcontainers/testcontainers-go/modules/redis"
	"gorm.io/gorm"
)

func setupPostgres(t *testing.T) *gorm.DB {
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
	dsn, err := pgC.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := infra.NewDatabase(dsn)
	require.NoError(t, err)
	require.NoError(t, infra.RunMigrations(db))
	return db
}

func reglasIntegracion() service.Reglas {
	return service.Reglas{
		TasaImpuesto:         decimal.Zero,
		MetodosPago:          []string{"efectivo", "tarjeta"},
		MetodosEfectivo:      []string{"efectivo"},
		RestaurarStockAnular: true,
		MaxReintentosFolio:   5,
		NombreNegocio:        "Pipos Test",
	}
}

func TestCerrarCaja_CierresConcurrentesNoDuplican(t *testing.T) {
	db := setupPostgres(t)
	ctx := context.Background()
	reglas := reglasIntegracion()

	tx := repository.NewTransactor(db, 10*time.Second)
	ventaRepo := repository.NewVentaRepository(db)
	cajaRepo := repository.NewCajaRepository(db)
	usuarioRepo := repository.NewUsuarioRepository(db)
	inventario := service.NewInventarioService(tx, repository.NewProductoRepository(db), repository.NewMovimientoStockRepository(db), reglas)
	ventas := service.NewVentaService(
		tx, ventaRepo, cajaRepo, usuarioRepo, repository.NewClienteRepository(db),
		inventario, service.NewGeneradorFolio(nil, ventaRepo, "CC", reglas), nil, reglas,
	)
	caja := service.NewCajaService(tx, cajaRepo, ventaRepo, reglas)

	auth := service.NewAuthService(usuarioRepo, &config.Config{JWTSecret: "test-secret", JWTExpirationHours: 8})
	u, err := auth.GuardarUsuario(ctx, "caja1", "Caja 1", "caja1234", model.RolCajero)
	require.NoError(t, err)
	cajero := uuid.MustParse(u.ID)

	p := &model.Producto{
		ID:          uuid.New(),
		Descripcion: "Combo",
		PrecioCosto: decimal.RequireFromString("5.00"),
		PrecioVenta: decimal.RequireFromString("10.00"),
		StockActual: 10,
	}
	require.NoError(t, db.Create(p).Error)
	for i := 0; i < 3; i++ {
		_, err := ventas.RegistrarVenta(ctx, cajero, dto.RegistrarVentaRequest{
			Items:       []dto.ItemVentaRequest{{ProductoID: p.ID.String(), Cantidad: 1}},
			MetodoPago:  "efectivo",
			MontoPagado: decimal.RequireFromString("10"),
		})
		require.NoError(t, err)
	}

	notas := "conteo simultaneo"
	req := dto.CerrarCajaRequest{EfectivoContado: decimal.RequireFromString("30"), Notas: &notas}
	largada := make(chan struct{})
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-largada
			_, errs[i] = caja.CerrarCaja(ctx, cajero, req)
		}(i)
	}
	close(largada)
	wg.Wait()
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	var cortes []model.CorteCaja
	require.NoError(t, db.Order("created_at ASC").Find(&cortes).Error)
	require.Len(t, cortes, 2)
	primero, segundo := cortes[0], cortes[1]

	assert.Nil(t, primero.PeriodoDesde)
	assert.Equal(t, "30.00", primero.VentasEfectivo.StringFixed(2))
	assert.Equal(t, "30.00", primero.EfectivoEsperado.StringFixed(2))
	assert.Equal(t, service.ClasificacionNormal, primero.Clasificacion)

	require.NotNil(t, segundo.PeriodoDesde)
	assert.True(t, segundo.PeriodoDesde.Equal(primero.CreatedAt), "%s != %s", segundo.PeriodoDesde, primero.CreatedAt)
	assert.True(t, segundo.CreatedAt.After(primero.CreatedAt))
	assert.True(t, segundo.VentasEfectivo.IsZero())
	assert.True(t, segundo.IngresosManuales.IsZero())
	assert.True(t, segundo.EgresosManuales.IsZero())
	assert.True(t, segundo.EfectivoEsperado.IsZero())
	assert.Equal(t, service.ClasificacionCritico, segundo.Clasificacion)
}

// numerosFijos stands in for the sales table.
type numerosFijos struct{ ultimo string }

func (n numerosFijos) UltimoNumero(context.Context, string) (string, error) { return n.ultimo, nil }

func TestGeneradorFolio_ResincronizaTrasReinicio(t *testing.T) {
	ctx := context.Background()
	rdC, err := tcRedis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdC.Terminate(ctx) })
	url, err := rdC.ConnectionString(ctx)
	require.NoError(t, err)
	rdb, err := infra.NewRedis(ctx, url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })

	dia := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	reglas := service.Reglas{Reloj: func() time.Time { return dia }}
	g := service.NewGeneradorFolio(rdb, numerosFijos{ultimo: "V-20261015-00300"}, "V", reglas)

	// Counter lost: it starts again at 1.
	n, err := g.Siguiente(ctx)
	require.NoError(t, err)
	assert.Equal(t, "V-20261015-00001", n)
	ttl, err := rdb.TTL(ctx, "folio:20261015").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	require.NoError(t, g.Resincronizar(ctx))
	n, err = g.Siguiente(ctx)
	require.NoError(t, err)
	assert.Equal(t, "V-20261015-00301", n)

	// A stale resync never moves the counter back.
	atrasado := service.NewGeneradorFolio(rdb, numerosFijos{ultimo: "V-20261015-00010"}, "V", reglas)
	require.NoError(t, atrasado.Resincronizar(ctx))
	n, err = g.Siguiente(ctx)
	require.NoError(t, err)
	assert.Equal(t, "V-20261015-00302", n)
}
