package handler

import (
	"net/http"

	"pipos/internal/dto"
	"pipos/internal/service"

	"github.com/gin-gonic/gin"
)

type InventarioHandler struct{ svc service.InventarioService }

func NewInventarioHandler(svc service.InventarioService) *InventarioHandler {
	return &InventarioHandler{svc: svc}
}

// AjustarStock godoc
// @Summary Ajuste manual de stock
// @Description Suma o resta unidades (cantidad con signo). Queda registrado en la auditoria de stock.
// @Tags inventario
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id   path string                  true "UUID del producto"
// @Param body body dto.AjustarStockRequest true "Ajuste"
// @Success 200 {object} dto.AjusteStockResponse
// @Failure 404 {object} apierror.APIError
// @Failure 409 {object} apierror.APIError "stock_insuficiente"
// @Failure 422 {object} apierror.ValidationError
// @Router /v1/productos/{id}/stock [patch]
func (h *InventarioHandler) AjustarStock(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req dto.AjustarStockRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.AjustarStock(c.Request.Context(), usuarioActual(c), id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ListarMovimientos godoc
// @Summary Auditoria de movimientos de stock
// @Tags inventario
// @Produce json
// @Security BearerAuth
// @Param producto_id query string false "UUID del producto"
// @Param tipo        query string false "venta | anulacion_venta | ajuste_manual"
// @Param page        query int    false "Pagina (default 1)"
// @Param limit       query int    false "Registros por pagina (default 100)"
// @Success 200 {object} dto.MovimientoStockListResponse
// @Router /v1/inventario/movimientos [get]
func (h *InventarioHandler) ListarMovimientos(c *gin.Context) {
	var filter dto.MovimientoStockFilter
	if !bindQuery(c, &filter) {
		return
	}
	resp, err := h.svc.ListarMovimientos(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ObtenerAlertas godoc
// @Summary Productos bajo stock minimo
// @Tags inventario
// @Produce json
// @Security BearerAuth
// @Success 200 {array} dto.AlertaStockResponse
// @Router /v1/inventario/alertas [get]
func (h *InventarioHandler) ObtenerAlertas(c *gin.Context) {
	resp, err := h.svc.ObtenerAlertas(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
