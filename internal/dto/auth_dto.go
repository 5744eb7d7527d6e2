package dto

// ─── Request DTOs ────────────────────────────────────────────────────────────

type LoginRequest struct {
	Username string `json:"username" validate:"required,min=1"`
	Password string `json:"password" validate:"required,min=4"`
}

// ─── Response DTOs ───────────────────────────────────────────────────────────

type UsuarioResponse struct {
	ID          string   `json:"id"`
	Username    string   `json:"username"`
	Nombre      string   `json:"nombre"`
	Rol         string   `json:"rol"`
	Capacidades []string `json:"capacidades"`
}

type LoginResponse struct {
	AccessToken string          `json:"access_token"`
	TokenType   string          `json:"token_type"`
	ExpiresIn   int             `json:"expires_in"` // seconds
	User        UsuarioResponse `json:"user"`
}
