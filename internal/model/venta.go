package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Venta is the sale header. Once written only DeletedAt may change: a non-null
// DeletedAt marks the sale as voided (anulada).
type Venta struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	NumeroVenta string          `gorm:"type:varchar(40);not null;uniqueIndex:uni_ventas_numero_venta"`
	ClienteID   *uuid.UUID      `gorm:"type:uuid;index"`
	UsuarioID   uuid.UUID       `gorm:"type:uuid;not null;index"`
	Subtotal    decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Descuento   decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	Impuesto    decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	Total       decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	MetodoPago  string          `gorm:"type:varchar(30);not null"`
	MontoPagado decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Cambio      decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	// OfflineID lets a client resubmit the same sale without duplicating it.
	OfflineID *string        `gorm:"type:varchar(64);uniqueIndex:uni_ventas_offline_id"`
	CreatedAt time.Time      `gorm:"not null;index"`
	DeletedAt gorm.DeletedAt `gorm:"index"`

	// Detalles is loaded explicitly by the repository, never by GORM.
	Detalles []DetalleVenta `gorm:"-"`
}

func (Venta) TableName() string { return "ventas" }

// Anulada reports whether the sale has been voided.
func (v *Venta) Anulada() bool { return v.DeletedAt.Valid }

// DetalleVenta is one sale line. Every field except ProductoID is a snapshot
// taken at sale time and is never rewritten; ProductoID becomes NULL if the
// catalog row is ever hard-deleted.
type DetalleVenta struct {
	ID             uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	VentaID        uuid.UUID       `gorm:"type:uuid;not null;index"`
	Linea          int             `gorm:"not null"`
	ProductoID     *uuid.UUID      `gorm:"type:uuid;index"`
	CodigoBarras   *string         `gorm:"type:varchar(64)"`
	NombreProducto string          `gorm:"not null"`
	PrecioUnitario decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Costo          decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	Cantidad       int             `gorm:"not null"`
	Descuento      decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	TotalLinea     decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	CreatedAt      time.Time
}

func (DetalleVenta) TableName() string { return "detalles_venta" }
