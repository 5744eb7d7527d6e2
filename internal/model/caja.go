package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	MovimientoIngreso = "ingreso"
	MovimientoEgreso  = "egreso"
)

// MovimientoCaja is a manual cash-drawer adjustment (float top-up, petty
// expense, refund). Monto is always positive; Tipo gives the direction.
// It can be edited or deleted only while its CreatedAt is after the last
// CorteCaja.
type MovimientoCaja struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Tipo        string          `gorm:"type:varchar(10);not null"`
	Monto       decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Descripcion string          `gorm:"not null"`
	UsuarioID   uuid.UUID       `gorm:"type:uuid;not null"`
	// VentaID is set on the refund recorded when a sale from a closed period is voided.
	VentaID   *uuid.UUID `gorm:"type:uuid;index"`
	CreatedAt time.Time  `gorm:"not null;index"`
	UpdatedAt time.Time
}

func (MovimientoCaja) TableName() string { return "movimientos_caja" }

// CorteCaja is the write-once end-of-period reconciliation. Its CreatedAt is
// the boundary of the period it closes: the next period holds everything
// created strictly after it.
type CorteCaja struct {
	ID               uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	UsuarioID        uuid.UUID       `gorm:"type:uuid;not null"`
	PeriodoDesde     *time.Time      // nil for the first closure ever
	VentasEfectivo   decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	VentasDigitales  decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	IngresosManuales decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	EgresosManuales  decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	EfectivoEsperado decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	EfectivoContado  decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Diferencia       decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	// Clasificacion: "normal" | "advertencia" | "critico"
	Clasificacion string `gorm:"type:varchar(20);not null"`
	Notas         *string
	CreatedAt     time.Time `gorm:"not null;index"`
}

func (CorteCaja) TableName() string { return "cortes_caja" }
