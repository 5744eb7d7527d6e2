// Package metrics exposes Prometheus collectors for HTTP traffic and for the
// sales core. Collectors register on the default registry at init time.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RequestCounter counts all HTTP requests with labels
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// RequestDurationHistogram records request duration in seconds
	RequestDurationHistogram = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	VentasRegistradas = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipos_ventas_registradas_total",
			Help: "Sales committed, by payment method",
		},
		[]string{"metodo_pago"},
	)

	VentasImporte = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipos_ventas_importe_total",
			Help: "Sum of committed sale totals, by payment method",
		},
		[]string{"metodo_pago"},
	)

	VentasAnuladas = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pipos_ventas_anuladas_total",
		Help: "Sales voided",
	})

	StockInsuficiente = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pipos_stock_insuficiente_total",
		Help: "Stock decrements rejected for insufficient stock",
	})

	FolioColisiones = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pipos_folio_colisiones_total",
		Help: "Sale-number collisions that forced a transaction retry",
	})

	CortesCaja = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipos_cortes_caja_total",
			Help: "Cash closures, by deviation classification",
		},
		[]string{"clasificacion"},
	)

	DiferenciaCorte = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "pipos_corte_diferencia_abs",
		Help:    "Absolute counted-minus-expected cash difference per closure",
		Buckets: []float64{0, 1, 5, 10, 50, 100, 500, 1000},
	})

	JobsProcesados = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipos_jobs_procesados_total",
			Help: "Background jobs processed, by type and result",
		},
		[]string{"tipo", "resultado"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestCounter,
		RequestDurationHistogram,
		VentasRegistradas,
		VentasImporte,
		VentasAnuladas,
		StockInsuficiente,
		FolioColisiones,
		CortesCaja,
		DiferenciaCorte,
		JobsProcesados,
	)
}

// Middleware records request count and latency per route template.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		RequestCounter.WithLabelValues(c.Request.Method, path, status).Inc()
		RequestDurationHistogram.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// Handler returns the HTTP handler exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
