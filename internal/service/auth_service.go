package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"pipos/internal/config"
	"pipos/internal/dto"
	"pipos/internal/model"
	"pipos/internal/repository"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// ErrCredencialesInvalidas hides whether the username or the password failed.
var ErrCredencialesInvalidas = errors.New("credenciales invalidas")

const bcryptCost = 12

type AuthService interface {
	Login(ctx context.Context, req dto.LoginRequest) (*dto.LoginResponse, error)
	// GuardarUsuario creates or resets a user by username. Used by posadmin.
	GuardarUsuario(ctx context.Context, username, nombre, password, rol string) (*dto.UsuarioResponse, error)
}

type authService struct {
	repo repository.UsuarioRepository
	cfg  *config.Config
}

func NewAuthService(repo repository.UsuarioRepository, cfg *config.Config) AuthService {
	return &authService{repo: repo, cfg: cfg}
}

func (s *authService) Login(ctx context.Context, req dto.LoginRequest) (*dto.LoginResponse, error) {
	user, err := s.repo.FindByUsername(ctx, req.Username)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCredencialesInvalidas
		}
		return nil, traducirError(err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrCredencialesInvalidas
	}

	ttl := time.Duration(s.cfg.JWTExpirationHours) * time.Hour
	accessToken, err := GenerarToken(s.cfg.JWTSecret, user, ttl)
	if err != nil {
		return nil, err
	}

	return &dto.LoginResponse{
		AccessToken: accessToken,
		TokenType:   "bearer",
		ExpiresIn:   s.cfg.JWTExpirationHours * 3600,
		User:        usuarioToResponse(user),
	}, nil
}

func (s *authService) GuardarUsuario(ctx context.Context, username, nombre, password, rol string) (*dto.UsuarioResponse, error) {
	verr := nuevaValidacion()
	username = strings.TrimSpace(username)
	if username == "" {
		verr.add("username", "requerido")
	}
	if len(password) < 4 {
		verr.add("password", "minimo 4 caracteres")
	}
	if !model.RolValido(rol) {
		verr.add("rol", "debe ser cajero, supervisor o administrador")
	}
	if !verr.vacia() {
		return nil, verr
	}
	if nombre == "" {
		nombre = username
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	user := &model.Usuario{
		ID:           uuid.New(),
		Username:     username,
		Nombre:       nombre,
		PasswordHash: hash,
		Rol:          rol,
		Activo:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Upsert(ctx, user); err != nil {
		return nil, traducirError(err)
	}
	// On conflict the row keeps its original id.
	saved, err := s.repo.FindByUsername(ctx, username)
	if err != nil {
		return nil, traducirError(err)
	}
	resp := usuarioToResponse(saved)
	return &resp, nil
}

// HashPassword returns the bcrypt hash stored in usuarios.password_hash.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// GenerarToken signs an HS256 access token carrying the user id, username
// and role. Capabilities are derived from the role on every request.
func GenerarToken(secret string, user *model.Usuario, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"user_id":  user.ID.String(),
		"username": user.Username,
		"rol":      user.Rol,
		"exp":      now.Add(ttl).Unix(),
		"iat":      now.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func usuarioToResponse(u *model.Usuario) dto.UsuarioResponse {
	return dto.UsuarioResponse{
		ID:          u.ID.String(),
		Username:    u.Username,
		Nombre:      u.Nombre,
		Rol:         u.Rol,
		Capacidades: model.CapacidadesDeRol(u.Rol).Nombres(),
	}
}
