package middleware

import (
	"net/http"
	"strings"

	"pipos/internal/apierror"
	"pipos/internal/model"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	ClaimsKey = "claims"
)

// JWTClaims are the custom claims embedded in every access token.
type JWTClaims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Rol      string `json:"rol"`
	jwt.RegisteredClaims
}

// Capacidades resolves the permission set of the token's role.
func (c *JWTClaims) Capacidades() model.Capacidades {
	return model.CapacidadesDeRol(c.Rol)
}

// UsuarioID parses the user id claim. JWTAuth rejects tokens where it fails.
func (c *JWTClaims) UsuarioID() uuid.UUID {
	id, _ := uuid.Parse(c.UserID)
	return id
}

// JWTAuth validates the Bearer token on every protected route.
func JWTAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, apierror.New("Autenticacion requerida"))
			return
		}

		tokenStr := strings.TrimPrefix(header, "Bearer ")
		claims := &JWTClaims{}
		token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(secret), nil
		})

		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, apierror.New("Token invalido o expirado"))
			return
		}
		if _, err := uuid.Parse(claims.UserID); err != nil || !model.RolValido(claims.Rol) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, apierror.New("Token mal formado"))
			return
		}

		c.Set(ClaimsKey, claims)
		c.Next()
	}
}

// RequireCapacidad rejects requests whose role lacks any of caps. It must run
// after JWTAuth.
func RequireCapacidad(caps ...model.Capacidad) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil || !claims.Capacidades().Tiene(caps...) {
			c.AbortWithStatusJSON(http.StatusForbidden, apierror.New("Permisos insuficientes"))
			return
		}
		c.Next()
	}
}

// GetClaims is a helper to retrieve typed claims from the Gin context. Nil on
// public routes.
func GetClaims(c *gin.Context) *JWTClaims {
	v, ok := c.Get(ClaimsKey)
	if !ok {
		return nil
	}
	claims, _ := v.(*JWTClaims)
	return claims
}
