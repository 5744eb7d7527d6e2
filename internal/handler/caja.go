package handler

import (
	"net/http"
	"time"

	"pipos/internal/apierror"
	"pipos/internal/dto"
	"pipos/internal/service"

	"github.com/gin-gonic/gin"
)

type CajaHandler struct{ svc service.CajaService }

func NewCajaHandler(svc service.CajaService) *CajaHandler { return &CajaHandler{svc: svc} }

// RegistrarMovimiento godoc
// @Summary Registra un ingreso o egreso manual de efectivo
// @Tags caja
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body dto.MovimientoCajaRequest true "Movimiento"
// @Success 201 {object} dto.MovimientoCajaResponse
// @Failure 422 {object} apierror.ValidationError
// @Router /v1/caja/movimientos [post]
func (h *CajaHandler) RegistrarMovimiento(c *gin.Context) {
	var req dto.MovimientoCajaRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.RegistrarMovimiento(c.Request.Context(), usuarioActual(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// ActualizarMovimiento godoc
// @Summary Corrige monto o descripcion de un movimiento del periodo abierto
// @Tags caja
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "UUID del movimiento"
// @Param body body dto.ActualizarMovimientoRequest true "Cambios"
// @Success 200 {object} dto.MovimientoCajaResponse
// @Failure 404 {object} apierror.APIError
// @Failure 409 {object} apierror.APIError "movimiento_bloqueado"
// @Router /v1/caja/movimientos/{id} [put]
func (h *CajaHandler) ActualizarMovimiento(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req dto.ActualizarMovimientoRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.ActualizarMovimiento(c.Request.Context(), id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// EliminarMovimiento godoc
// @Summary Elimina un movimiento del periodo abierto
// @Tags caja
// @Security BearerAuth
// @Param id path string true "UUID del movimiento"
// @Success 204
// @Failure 404 {object} apierror.APIError
// @Failure 409 {object} apierror.APIError "movimiento_bloqueado"
// @Router /v1/caja/movimientos/{id} [delete]
func (h *CajaHandler) EliminarMovimiento(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := h.svc.EliminarMovimiento(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListarMovimientos godoc
// @Summary Movimientos del periodo abierto
// @Tags caja
// @Produce json
// @Security BearerAuth
// @Success 200 {array} dto.MovimientoCajaResponse
// @Router /v1/caja/movimientos [get]
func (h *CajaHandler) ListarMovimientos(c *gin.Context) {
	resp, err := h.svc.ListarMovimientos(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Esperado godoc
// @Summary Efectivo esperado
// @Description Sin parametros calcula el periodo abierto. Con desde (RFC3339) suma todo lo creado despues de ese instante.
// @Tags caja
// @Produce json
// @Security BearerAuth
// @Param desde query string false "Inicio exclusivo, RFC3339"
// @Success 200 {object} dto.EsperadoResponse
// @Failure 400 {object} apierror.APIError
// @Router /v1/caja/esperado [get]
func (h *CajaHandler) Esperado(c *gin.Context) {
	raw := c.Query("desde")
	if raw == "" {
		resp, err := h.svc.PeriodoActual(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, resp)
		return
	}

	desde, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("desde debe ser RFC3339"))
		return
	}
	e, err := h.svc.CalcularEsperado(c.Request.Context(), desde)
	if err != nil {
		respondError(c, err)
		return
	}
	d := desde.UTC().Format(time.RFC3339Nano)
	c.JSON(http.StatusOK, dto.EsperadoResponse{
		PeriodoDesde:     &d,
		VentasEfectivo:   e.VentasEfectivo,
		VentasDigitales:  e.VentasDigitales,
		IngresosManuales: e.IngresosManuales,
		EgresosManuales:  e.EgresosManuales,
		EfectivoEsperado: e.EfectivoEsperado,
	})
}

// Cerrar godoc
// @Summary Cierra el periodo de caja con el efectivo contado
// @Description Notas son obligatorias cuando la diferencia es critica (mas de 5%).
// @Tags caja
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body dto.CerrarCajaRequest true "Conteo"
// @Success 201 {object} dto.CorteCajaResponse
// @Failure 409 {object} apierror.APIError "conflicto_concurrencia"
// @Failure 422 {object} apierror.ValidationError
// @Router /v1/caja/cierre [post]
func (h *CajaHandler) Cerrar(c *gin.Context) {
	var req dto.CerrarCajaRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.CerrarCaja(c.Request.Context(), usuarioActual(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// ListarCortes godoc
// @Summary Historial de cierres
// @Tags caja
// @Produce json
// @Security BearerAuth
// @Param page  query int false "Pagina (default 1)"
// @Param limit query int false "Registros por pagina (default 30)"
// @Success 200 {object} dto.CorteListResponse
// @Router /v1/caja/cortes [get]
func (h *CajaHandler) ListarCortes(c *gin.Context) {
	var filter dto.CorteFilter
	if !bindQuery(c, &filter) {
		return
	}
	resp, err := h.svc.ListarCortes(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ObtenerCorte godoc
// @Summary Detalle de un cierre
// @Tags caja
// @Produce json
// @Security BearerAuth
// @Param id path string true "UUID del corte"
// @Success 200 {object} dto.CorteCajaResponse
// @Failure 404 {object} apierror.APIError
// @Router /v1/caja/cortes/{id} [get]
func (h *CajaHandler) ObtenerCorte(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	resp, err := h.svc.ObtenerCorte(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
