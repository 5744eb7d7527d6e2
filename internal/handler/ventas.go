package handler

import (
	"net/http"
	"path/filepath"

	"pipos/internal/dto"
	"pipos/internal/service"

	"github.com/gin-gonic/gin"
)

type VentasHandler struct{ svc service.VentaService }

func NewVentasHandler(svc service.VentaService) *VentasHandler { return &VentasHandler{svc: svc} }

// RegistrarVenta godoc
// @Summary      Registrar una nueva venta
// @Description  Crea la venta en una sola transaccion: descuenta stock, congela precio y costo de cada linea y calcula totales. Idempotente por offline_id.
// @Tags         ventas
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body body dto.RegistrarVentaRequest true "Detalle de la venta"
// @Success      201  {object} dto.VentaResponse
// @Failure      404  {object} apierror.APIError
// @Failure      409  {object} apierror.APIError "stock_insuficiente | conflicto_concurrencia"
// @Failure      422  {object} apierror.ValidationError
// @Failure      503  {object} apierror.APIError "numero_venta_duplicado"
// @Router       /v1/ventas [post]
func (h *VentasHandler) RegistrarVenta(c *gin.Context) {
	var req dto.RegistrarVentaRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.RegistrarVenta(c.Request.Context(), usuarioActual(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// ObtenerVenta godoc
// @Summary      Obtener venta
// @Description  Retorna la venta con sus lineas, incluso si fue anulada.
// @Tags         ventas
// @Produce      json
// @Security     BearerAuth
// @Param        id   path     string true "UUID de la venta"
// @Success      200  {object} dto.VentaResponse
// @Failure      404  {object} apierror.APIError
// @Router       /v1/ventas/{id} [get]
func (h *VentasHandler) ObtenerVenta(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	resp, err := h.svc.ObtenerVenta(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// AnularVenta godoc
// @Summary      Anular venta
// @Description  Marca la venta como anulada y restaura el stock vendido. Repetir la anulacion no tiene efecto.
// @Tags         ventas
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id   path     string                 true  "UUID de la venta"
// @Param        body body     dto.AnularVentaRequest false "Motivo de anulacion"
// @Success      200  {object} dto.VentaResponse
// @Failure      404  {object} apierror.APIError
// @Failure      409  {object} apierror.APIError
// @Router       /v1/ventas/{id} [delete]
func (h *VentasHandler) AnularVenta(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req dto.AnularVentaRequest
	if c.Request.ContentLength > 0 && !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.AnularVenta(c.Request.Context(), usuarioActual(c), id, req.Motivo)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ObtenerTicket godoc
// @Summary      Ticket de la venta
// @Description  Ticket para el cliente armado solo con los datos congelados de la venta.
// @Tags         ventas
// @Produce      json
// @Security     BearerAuth
// @Param        id   path     string true "UUID de la venta"
// @Success      200  {object} dto.TicketResponse
// @Failure      404  {object} apierror.APIError
// @Router       /v1/ventas/{id}/ticket [get]
func (h *VentasHandler) ObtenerTicket(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	resp, err := h.svc.ObtenerTicket(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// TicketPDF godoc
// @Summary      Ticket PDF
// @Tags         ventas
// @Produce      application/pdf
// @Security     BearerAuth
// @Param        id   path     string true "UUID de la venta"
// @Success      200  {file}   binary
// @Failure      404  {object} apierror.APIError
// @Router       /v1/ventas/{id}/ticket/pdf [get]
func (h *VentasHandler) TicketPDF(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	path, err := h.svc.TicketPDF(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.FileAttachment(path, filepath.Base(path))
}

// ListarVentas godoc
// @Summary      Listar ventas
// @Description  Retorna lista paginada de ventas filtrada por fecha y metodo de pago.
// @Tags         ventas
// @Produce      json
// @Security     BearerAuth
// @Param        desde            query string false "Fecha YYYY-MM-DD (default: hoy)"
// @Param        hasta            query string false "Fecha YYYY-MM-DD (default: desde)"
// @Param        metodo_pago      query string false "Metodo de pago"
// @Param        incluir_anuladas query bool   false "Incluir ventas anuladas"
// @Param        page             query int    false "Pagina (default 1)"
// @Param        limit            query int    false "Registros por pagina (default 50)"
// @Success      200    {object} dto.VentaListResponse
// @Failure      400    {object} apierror.APIError
// @Router       /v1/ventas [get]
func (h *VentasHandler) ListarVentas(c *gin.Context) {
	var filter dto.VentaFilter
	if !bindQuery(c, &filter) {
		return
	}
	resp, err := h.svc.ListVentas(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
