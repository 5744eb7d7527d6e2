package model

import (
	"time"

	"github.com/google/uuid"
)

// Usuario stores system users. Rol: "cajero" | "supervisor" | "administrador".
// What a role may do is resolved by CapacidadesDeRol, never stored per user.
type Usuario struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Username     string    `gorm:"uniqueIndex:uni_usuarios_username;not null"`
	Nombre       string    `gorm:"not null"`
	PasswordHash string    `gorm:"not null"`
	Rol          string    `gorm:"type:varchar(20);not null"`
	Activo       bool      `gorm:"not null;default:true"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (Usuario) TableName() string { return "usuarios" }
