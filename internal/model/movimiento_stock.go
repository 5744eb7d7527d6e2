package model

import (
	"time"

	"github.com/google/uuid"
)

const (
	StockVenta        = "venta"
	StockAnulacion    = "anulacion_venta"
	StockAjusteManual = "ajuste_manual"
)

// MovimientoStock registra cada cambio de stock en un producto.
// Se escribe en la misma transacción que modifica stock_actual.
type MovimientoStock struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ProductoID    uuid.UUID `gorm:"type:uuid;not null;index"`
	Tipo          string    `gorm:"type:varchar(20);not null"`
	Cantidad      int       `gorm:"not null"` // positive = entrada, negative = salida
	StockAnterior int       `gorm:"not null"`
	StockNuevo    int       `gorm:"not null"`
	Motivo        string
	ReferenciaID  *uuid.UUID `gorm:"type:uuid;index"` // venta_id when the change comes from a sale
	UsuarioID     *uuid.UUID `gorm:"type:uuid"`
	CreatedAt     time.Time  `gorm:"index"`
}

// TableName overrides GORM's default pluralization (movimiento_stocks → movimientos_stock).
func (MovimientoStock) TableName() string { return "movimientos_stock" }
