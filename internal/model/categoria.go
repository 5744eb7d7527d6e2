package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Categoria groups products. Only referenced by Producto.CategoriaID; the
// catalog service owns its lifecycle.
type Categoria struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Nombre    string    `gorm:"uniqueIndex:uni_categorias_nombre;not null"`
	CreatedAt time.Time
	DeletedAt gorm.DeletedAt `gorm:"index"`
}

// TableName overrides GORM's default singular → plural logic for Spanish names.
func (Categoria) TableName() string { return "categorias" }
