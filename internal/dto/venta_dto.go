package dto

import "github.com/shopspring/decimal"

// ─── Filter / List ──────────────────────────────────────────────────────────

// VentaFilter is bound from query string of GET /v1/ventas.
type VentaFilter struct {
	Desde           string `form:"desde"`  // YYYY-MM-DD inclusive; empty = today
	Hasta           string `form:"hasta"`  // YYYY-MM-DD inclusive; empty = Desde
	MetodoPago      string `form:"metodo_pago"`
	IncluirAnuladas bool   `form:"incluir_anuladas"`
	Page            int    `form:"page,default=1"   validate:"min=1"`
	Limit           int    `form:"limit,default=50" validate:"min=1,max=200"`
}

// VentaListItem is returned inside VentaListResponse for GET /v1/ventas.
type VentaListItem struct {
	ID          string          `json:"id"`
	NumeroVenta string          `json:"numero_venta"`
	UsuarioID   string          `json:"usuario_id"`
	ClienteID   *string         `json:"cliente_id"`
	Total       decimal.Decimal `json:"total"`
	MetodoPago  string          `json:"metodo_pago"`
	Anulada     bool            `json:"anulada"`
	CreatedAt   string          `json:"created_at"`
}

type VentaListResponse struct {
	Data  []VentaListItem `json:"data"`
	Total int64           `json:"total"`
	Page  int             `json:"page"`
	Limit int             `json:"limit"`
}

// ─── Request DTOs ────────────────────────────────────────────────────────────

// ItemVentaRequest is one line of a sale. PrecioUnitario overrides the catalog
// price when present; Descuento is an absolute amount off the line.
type ItemVentaRequest struct {
	ProductoID     string           `json:"producto_id"     validate:"required,uuid"`
	Cantidad       int              `json:"cantidad"        validate:"required,min=1"`
	PrecioUnitario *decimal.Decimal `json:"precio_unitario"`
	Descuento      *decimal.Decimal `json:"descuento"`
}

type RegistrarVentaRequest struct {
	Items       []ItemVentaRequest `json:"items"        validate:"required,min=1,dive"`
	ClienteID   *string            `json:"cliente_id"   validate:"omitempty,uuid"`
	MetodoPago  string             `json:"metodo_pago"  validate:"required"`
	MontoPagado decimal.Decimal    `json:"monto_pagado" validate:"min=0"`
	// Descuento applies to the whole sale, after line discounts.
	Descuento *decimal.Decimal `json:"descuento"`
	// Impuesto overrides the configured tax rate when present.
	Impuesto *decimal.Decimal `json:"impuesto"`
	// PermitirStockNegativo is honored only when the server allows negative stock.
	PermitirStockNegativo bool `json:"permitir_stock_negativo"`
	// OfflineID is set by clients that may resubmit the same sale.
	OfflineID *string `json:"offline_id" validate:"omitempty,max=64"`
}

// ─── Response DTOs ───────────────────────────────────────────────────────────

type DetalleVentaResponse struct {
	ID             string          `json:"id"`
	ProductoID     *string         `json:"producto_id"`
	CodigoBarras   *string         `json:"codigo_barras"`
	NombreProducto string          `json:"nombre_producto"`
	PrecioUnitario decimal.Decimal `json:"precio_unitario"`
	Costo          decimal.Decimal `json:"costo"`
	Cantidad       int             `json:"cantidad"`
	Descuento      decimal.Decimal `json:"descuento"`
	TotalLinea     decimal.Decimal `json:"total_linea"`
}

type VentaResponse struct {
	ID          string                 `json:"id"`
	NumeroVenta string                 `json:"numero_venta"`
	ClienteID   *string                `json:"cliente_id"`
	UsuarioID   string                 `json:"usuario_id"`
	Detalles    []DetalleVentaResponse `json:"detalles"`
	Subtotal    decimal.Decimal        `json:"subtotal"`
	Descuento   decimal.Decimal        `json:"descuento"`
	Impuesto    decimal.Decimal        `json:"impuesto"`
	Total       decimal.Decimal        `json:"total"`
	MetodoPago  string                 `json:"metodo_pago"`
	MontoPagado decimal.Decimal        `json:"monto_pagado"`
	Cambio      decimal.Decimal        `json:"cambio"`
	Anulada     bool                   `json:"anulada"`
	AnuladaAt   *string                `json:"anulada_at"`
	CreatedAt   string                 `json:"created_at"`
}

// LineaTicket is a customer-facing line; cost never leaves the back office.
type LineaTicket struct {
	Descripcion    string          `json:"descripcion"`
	CodigoBarras   *string         `json:"codigo_barras"`
	Cantidad       int             `json:"cantidad"`
	PrecioUnitario decimal.Decimal `json:"precio_unitario"`
	Descuento      decimal.Decimal `json:"descuento"`
	TotalLinea     decimal.Decimal `json:"total_linea"`
}

// TicketResponse is rendered only from snapshot fields, so it reprints the
// same even after catalog edits or product deletion.
type TicketResponse struct {
	Negocio     string          `json:"negocio"`
	NumeroVenta string          `json:"numero_venta"`
	Fecha       string          `json:"fecha"`
	Lineas      []LineaTicket   `json:"lineas"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	Descuento   decimal.Decimal `json:"descuento"`
	Impuesto    decimal.Decimal `json:"impuesto"`
	Total       decimal.Decimal `json:"total"`
	MetodoPago  string          `json:"metodo_pago"`
	MontoPagado decimal.Decimal `json:"monto_pagado"`
	Cambio      decimal.Decimal `json:"cambio"`
	Anulada     bool            `json:"anulada"`
}

// AnularVentaRequest is the optional body of DELETE /v1/ventas/:id.
type AnularVentaRequest struct {
	Motivo string `json:"motivo" validate:"max=255"`
}
