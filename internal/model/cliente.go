package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Cliente is an optional buyer attached to a sale.
type Cliente struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Nombre    string    `gorm:"not null"`
	Documento *string   `gorm:"type:varchar(32);index"`
	Email     *string
	CreatedAt time.Time
	DeletedAt gorm.DeletedAt `gorm:"index"`
}

func (Cliente) TableName() string { return "clientes" }
