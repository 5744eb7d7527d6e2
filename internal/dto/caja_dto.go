package dto

import "github.com/shopspring/decimal"

// ─── Request DTOs ────────────────────────────────────────────────────────────

type MovimientoCajaRequest struct {
	Tipo        string          `json:"tipo"        validate:"required,oneof=ingreso egreso"`
	Monto       decimal.Decimal `json:"monto"       validate:"required,gt=0"`
	Descripcion string          `json:"descripcion" validate:"required,min=3,max=255"`
}

// ActualizarMovimientoRequest edits a movement of the open period. Tipo is
// immutable: a wrong direction is fixed by deleting and recording again.
type ActualizarMovimientoRequest struct {
	Monto       *decimal.Decimal `json:"monto"`
	Descripcion *string          `json:"descripcion" validate:"omitempty,min=3,max=255"`
}

type CerrarCajaRequest struct {
	EfectivoContado decimal.Decimal `json:"efectivo_contado" validate:"min=0"`
	Notas           *string         `json:"notas"            validate:"omitempty,max=1000"`
}

// CorteFilter is bound from the query string of GET /v1/caja/cortes.
type CorteFilter struct {
	Page  int `form:"page,default=1"   validate:"min=1"`
	Limit int `form:"limit,default=30" validate:"min=1,max=200"`
}

// ─── Response DTOs ───────────────────────────────────────────────────────────

type MovimientoCajaResponse struct {
	ID          string          `json:"id"`
	Tipo        string          `json:"tipo"`
	Monto       decimal.Decimal `json:"monto"`
	Descripcion string          `json:"descripcion"`
	UsuarioID   string          `json:"usuario_id"`
	VentaID     *string         `json:"venta_id"`
	CreatedAt   string          `json:"created_at"`
}

// EsperadoResponse is the expected-cash computation for a period.
type EsperadoResponse struct {
	PeriodoDesde     *string         `json:"periodo_desde"`
	VentasEfectivo   decimal.Decimal `json:"ventas_efectivo"`
	VentasDigitales  decimal.Decimal `json:"ventas_digitales"`
	IngresosManuales decimal.Decimal `json:"ingresos_manuales"`
	EgresosManuales  decimal.Decimal `json:"egresos_manuales"`
	EfectivoEsperado decimal.Decimal `json:"efectivo_esperado"`
}

type CorteCajaResponse struct {
	ID               string          `json:"id"`
	UsuarioID        string          `json:"usuario_id"`
	PeriodoDesde     *string         `json:"periodo_desde"`
	PeriodoHasta     string          `json:"periodo_hasta"`
	VentasEfectivo   decimal.Decimal `json:"ventas_efectivo"`
	VentasDigitales  decimal.Decimal `json:"ventas_digitales"`
	IngresosManuales decimal.Decimal `json:"ingresos_manuales"`
	EgresosManuales  decimal.Decimal `json:"egresos_manuales"`
	EfectivoEsperado decimal.Decimal `json:"efectivo_esperado"`
	EfectivoContado  decimal.Decimal `json:"efectivo_contado"`
	Diferencia       decimal.Decimal `json:"diferencia"`
	Clasificacion    string          `json:"clasificacion"` // normal | advertencia | critico
	Notas            *string         `json:"notas"`
}

type CorteListResponse struct {
	Data  []CorteCajaResponse `json:"data"`
	Total int64               `json:"total"`
	Page  int                 `json:"page"`
	Limit int                 `json:"limit"`
}
