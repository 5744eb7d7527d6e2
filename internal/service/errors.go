package service

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"pipos/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Error kinds returned by every service. Handlers map them to HTTP statuses
// with errors.Is; callers never need to inspect storage errors.
var (
	ErrValidacion            = errors.New("datos invalidos")
	ErrStockInsuficiente     = errors.New("stock insuficiente")
	ErrNumeroVentaDuplicado  = errors.New("no se pudo asignar un numero de venta unico")
	ErrNoEncontrado          = errors.New("registro no encontrado")
	ErrMovimientoBloqueado   = errors.New("el movimiento pertenece a un periodo de caja cerrado")
	ErrConflictoConcurrencia = errors.New("conflicto de concurrencia, reintente la operacion")
	ErrPersistencia          = errors.New("error de persistencia")
)

// ValidacionError carries per-field messages. It matches ErrValidacion.
type ValidacionError struct {
	Campos map[string]string
}

func nuevaValidacion() *ValidacionError {
	return &ValidacionError{Campos: make(map[string]string)}
}

func (e *ValidacionError) add(campo, msg string) { e.Campos[campo] = msg }

func (e *ValidacionError) vacia() bool { return len(e.Campos) == 0 }

func (e *ValidacionError) Error() string {
	keys := make([]string, 0, len(e.Campos))
	for k := range e.Campos {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Campos[k])
	}
	return ErrValidacion.Error() + ": " + strings.Join(parts, "; ")
}

func (e *ValidacionError) Is(target error) bool { return target == ErrValidacion }

func errCampo(campo, msg string) error {
	v := nuevaValidacion()
	v.add(campo, msg)
	return v
}

// StockInsuficienteError names the product that blocked the operation so the
// caller can offer an explicit override. It matches ErrStockInsuficiente.
type StockInsuficienteError struct {
	ProductoID  uuid.UUID
	Descripcion string
	Disponible  int
	Solicitado  int
}

func (e *StockInsuficienteError) Error() string {
	return fmt.Sprintf("%s: %s (disponible %d, solicitado %d)",
		ErrStockInsuficiente, e.Descripcion, e.Disponible, e.Solicitado)
}

func (e *StockInsuficienteError) Is(target error) bool { return target == ErrStockInsuficiente }

var errKinds = []error{
	ErrValidacion,
	ErrStockInsuficiente,
	ErrNumeroVentaDuplicado,
	ErrNoEncontrado,
	ErrMovimientoBloqueado,
	ErrConflictoConcurrencia,
	ErrPersistencia,
}

// traducirError maps storage errors onto the service error kinds. Errors that
// already carry a kind pass through untouched.
func traducirError(err error) error {
	if err == nil {
		return nil
	}
	for _, k := range errKinds {
		if errors.Is(err, k) {
			return err
		}
	}
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%w: %w", ErrNoEncontrado, err)
	case repository.IsConflictoConcurrencia(err):
		return fmt.Errorf("%w: %w", ErrConflictoConcurrencia, err)
	}
	return fmt.Errorf("%w: %w", ErrPersistencia, err)
}

// noEncontrado builds a NotFound naming what was missing.
func noEncontrado(que string, id uuid.UUID) error {
	return fmt.Errorf("%w: %s %s", ErrNoEncontrado, que, id)
}
