package handler

import (
	"errors"
	"net/http"
	"reflect"
	"strings"

	"pipos/internal/apierror"
	"pipos/internal/middleware"
	"pipos/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

var validate = validator.New()

func init() {
	// Register decimal.Decimal as a numeric type so that validator tags like
	// min=0, gt=0, required work without panicking ("Bad field type decimal.Decimal").
	validate.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if v, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := v.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	// Report fields by their JSON name.
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// bindAndValidate binds JSON body and runs go-playground/validator tags.
// Returns false and writes the error response if validation fails;
// the caller should return immediately without writing another response.
func bindAndValidate(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("JSON invalido: "+err.Error()))
		return false
	}
	return validar(c, req)
}

func bindQuery(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindQuery(req); err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("Parametros invalidos: "+err.Error()))
		return false
	}
	return validar(c, req)
}

func validar(c *gin.Context, req interface{}) bool {
	if err := validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			c.JSON(http.StatusBadRequest, apierror.New("Solicitud invalida"))
			return false
		}
		fields := make(map[string]string)
		for _, fe := range verrs {
			fields[strings.TrimPrefix(fe.Namespace(), rootNamespace(fe))] = fe.Tag()
		}
		c.JSON(http.StatusUnprocessableEntity, apierror.NewValidation(fields))
		return false
	}
	return true
}

// rootNamespace is the struct-name prefix validator puts on every namespace.
func rootNamespace(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[:i+1]
	}
	return ""
}

// parseID reads the :id path parameter, writing a 400 when it is not a UUID.
func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("ID invalido"))
		return uuid.Nil, false
	}
	return id, true
}

func usuarioActual(c *gin.Context) uuid.UUID {
	return middleware.GetClaims(c).UsuarioID()
}

// respondError maps service error kinds to HTTP statuses. Persistence
// errors are logged with the request id and answered with a generic message.
func respondError(c *gin.Context, err error) {
	var (
		verr  *service.ValidacionError
		stock *service.StockInsuficienteError
	)
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusUnprocessableEntity, apierror.NewValidation(verr.Campos))
	case errors.As(err, &stock):
		c.JSON(http.StatusConflict, apierror.WithCode("stock_insuficiente", stock.Error(), gin.H{
			"producto_id": stock.ProductoID.String(),
			"descripcion": stock.Descripcion,
			"disponible":  stock.Disponible,
			"solicitado":  stock.Solicitado,
		}))
	case errors.Is(err, service.ErrNoEncontrado):
		c.JSON(http.StatusNotFound, apierror.New(err.Error()))
	case errors.Is(err, service.ErrMovimientoBloqueado):
		c.JSON(http.StatusConflict, apierror.WithCode("movimiento_bloqueado", err.Error(), nil))
	case errors.Is(err, service.ErrConflictoConcurrencia):
		c.JSON(http.StatusConflict, apierror.WithCode("conflicto_concurrencia", service.ErrConflictoConcurrencia.Error(), nil))
	case errors.Is(err, service.ErrNumeroVentaDuplicado):
		c.Header("Retry-After", "1")
		c.JSON(http.StatusServiceUnavailable, apierror.WithCode("numero_venta_duplicado", service.ErrNumeroVentaDuplicado.Error(), nil))
	case errors.Is(err, service.ErrCredencialesInvalidas):
		c.JSON(http.StatusUnauthorized, apierror.New("Credenciales invalidas"))
	default:
		log.Error().
			Err(err).
			Str("request_id", c.GetString(middleware.RequestIDKey)).
			Str("path", c.FullPath()).
			Msg("request failed")
		c.JSON(http.StatusInternalServerError, apierror.New("Error interno del servidor"))
	}
}
