package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Producto is a catalog row. The catalog is maintained outside this service;
// the sales core only reads it and mutates StockActual under a row lock.
// DeletedAt is the soft-delete tombstone: default queries skip tombstoned rows.
type Producto struct {
	ID           uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	CodigoBarras *string         `gorm:"type:varchar(64);uniqueIndex:uni_productos_codigo_barras"`
	Descripcion  string          `gorm:"not null;index"`
	PrecioCosto  decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	PrecioVenta  decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	StockActual  int             `gorm:"not null;default:0"`
	StockMinimo  int             `gorm:"not null;default:0"`
	CategoriaID  *uuid.UUID      `gorm:"type:uuid;index"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DeletedAt    gorm.DeletedAt `gorm:"index"`
}

func (Producto) TableName() string { return "productos" }

// Deficit is how many units are missing to reach StockMinimo (0 when stocked).
func (p Producto) Deficit() int {
	if p.StockActual >= p.StockMinimo {
		return 0
	}
	return p.StockMinimo - p.StockActual
}
