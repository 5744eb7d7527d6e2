package router

import (
	"time"

	"pipos/internal/config"
	"pipos/internal/handler"
	"pipos/internal/metrics"
	"pipos/internal/middleware"
	"pipos/internal/model"
	"pipos/internal/repository"
	"pipos/internal/service"
	"pipos/internal/worker"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Services are the use cases the HTTP layer exposes.
type Services struct {
	Auth       service.AuthService
	Ventas     service.VentaService
	Caja       service.CajaService
	Inventario service.InventarioService
}

// NewServices wires repositories and services.
// Dependency graph: Handler ← Service ← Repository ← DB/Redis
func NewServices(cfg *config.Config, db *gorm.DB, rdb *redis.Client) Services {
	reglas := service.ReglasDesdeConfig(cfg)
	tx := repository.NewTransactor(db, cfg.DBLockTimeout)

	// ── Repositories ─────────────────────────────────────────────────────────
	usuarioRepo := repository.NewUsuarioRepository(db)
	clienteRepo := repository.NewClienteRepository(db)
	productoRepo := repository.NewProductoRepository(db)
	ventaRepo := repository.NewVentaRepository(db)
	cajaRepo := repository.NewCajaRepository(db)
	movimientoStockRepo := repository.NewMovimientoStockRepository(db)

	// ── Services ─────────────────────────────────────────────────────────────
	inventarioSvc := service.NewInventarioService(tx, productoRepo, movimientoStockRepo, reglas)
	folios := service.NewGeneradorFolio(rdb, ventaRepo, cfg.SaleNumberPrefix, reglas)

	// Worker dispatcher: injected into services that enqueue async jobs
	dispatcher := worker.NewDispatcher(rdb)

	return Services{
		Auth: service.NewAuthService(usuarioRepo, cfg),
		Ventas: service.NewVentaService(
			tx, ventaRepo, cajaRepo, usuarioRepo, clienteRepo,
			inventarioSvc, folios, dispatcher, reglas,
		),
		Caja:       service.NewCajaService(tx, cajaRepo, ventaRepo, reglas),
		Inventario: inventarioSvc,
	}
}

// New wires all dependencies and returns a configured Gin engine.
func New(cfg *config.Config, db *gorm.DB, rdb *redis.Client) *gin.Engine {
	return Engine(cfg, NewServices(cfg, db, rdb), rdb, handler.Health(db, rdb))
}

// Engine mounts the routes over already-built services. rdb may be nil.
func Engine(cfg *config.Config, svcs Services, rdb *redis.Client, health gin.HandlerFunc) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Global middleware chain (order matters)
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Recovery())
	r.Use(metrics.Middleware())
	r.Use(middleware.CORS(cfg.CORSOrigin))
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.RateLimiter(rdb, cfg.RateLimit, time.Minute))

	// ── Handlers ─────────────────────────────────────────────────────────────
	authH := handler.NewAuthHandler(svcs.Auth)
	ventasH := handler.NewVentasHandler(svcs.Ventas)
	cajaH := handler.NewCajaHandler(svcs.Caja)
	inventarioH := handler.NewInventarioHandler(svcs.Inventario)

	// ── Routes ───────────────────────────────────────────────────────────────

	// Public
	r.GET("/health", health)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	auth := r.Group("/v1/auth")
	{
		auth.POST("/login", middleware.LoginRateLimiter(rdb), authH.Login)
	}

	// Protected routes: capabilities declared per endpoint
	can := middleware.RequireCapacidad
	v1 := r.Group("/v1", middleware.JWTAuth(cfg.JWTSecret))
	{
		ventas := v1.Group("/ventas")
		{
			ventas.POST("", can(model.CapRegistrarVenta), ventasH.RegistrarVenta)
			ventas.GET("", can(model.CapVerReportes), ventasH.ListarVentas)
			ventas.GET("/:id", can(model.CapRegistrarVenta), ventasH.ObtenerVenta)
			ventas.DELETE("/:id", can(model.CapAnularVenta), ventasH.AnularVenta)
			ventas.GET("/:id/ticket", can(model.CapRegistrarVenta), ventasH.ObtenerTicket)
			ventas.GET("/:id/ticket/pdf", can(model.CapRegistrarVenta), ventasH.TicketPDF)
		}

		v1.PATCH("/productos/:id/stock", can(model.CapAjustarStock), inventarioH.AjustarStock)

		inv := v1.Group("/inventario")
		{
			inv.GET("/movimientos", can(model.CapAjustarStock), inventarioH.ListarMovimientos)
			inv.GET("/alertas", can(model.CapVerReportes), inventarioH.ObtenerAlertas)
		}

		caja := v1.Group("/caja")
		{
			movs := caja.Group("/movimientos", can(model.CapMovimientosCaja))
			{
				movs.POST("", cajaH.RegistrarMovimiento)
				movs.GET("", cajaH.ListarMovimientos)
				movs.PUT("/:id", cajaH.ActualizarMovimiento)
				movs.DELETE("/:id", cajaH.EliminarMovimiento)
			}
			caja.GET("/esperado", can(model.CapConsultarCaja), cajaH.Esperado)
			caja.POST("/cierre", can(model.CapCerrarCaja), cajaH.Cerrar)
			caja.GET("/cortes", can(model.CapConsultarCaja), cajaH.ListarCortes)
			caja.GET("/cortes/:id", can(model.CapConsultarCaja), cajaH.ObtenerCorte)
		}
	}

	// Swagger UI: only enabled outside production
	if cfg.Env != "production" {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	return r
}
