package repository

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNumeroVentaDuplicado is returned by VentaRepository.Create when the
	// sale number is already taken.
	ErrNumeroVentaDuplicado = errors.New("numero de venta duplicado")
	// ErrOfflineIDDuplicado is returned when the same offline sale is inserted twice.
	ErrOfflineIDDuplicado = errors.New("offline_id duplicado")
)

const (
	constraintNumeroVenta = "uni_ventas_numero_venta"
	constraintOfflineID   = "uni_ventas_offline_id"
)

// PostgreSQL SQLSTATE codes the service layer cares about.
const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
)

func pgCode(err error) (string, string) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code, pgErr.ConstraintName
	}
	return "", ""
}

// IsUniqueViolation reports a 23505 on the named constraint ("" matches any).
func IsUniqueViolation(err error, constraint string) bool {
	code, name := pgCode(err)
	return code == codeUniqueViolation && (constraint == "" || name == constraint)
}

// IsConflictoConcurrencia reports errors caused by a concurrent writer: a
// serialization failure, a deadlock, or a lock wait that hit lock_timeout.
// The whole operation can be retried safely.
func IsConflictoConcurrencia(err error) bool {
	switch code, _ := pgCode(err); code {
	case codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable:
		return true
	}
	return false
}
