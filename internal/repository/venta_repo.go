package repository

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"pipos/internal/dto"
	"pipos/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type VentaRepository interface {
	// Create inserts the header and its Detalles. A taken NumeroVenta yields
	// ErrNumeroVentaDuplicado, a taken OfflineID ErrOfflineIDDuplicado.
	Create(ctx context.Context, tx *gorm.DB, v *model.Venta) error
	// FindByID loads the sale with its lines. Voided sales are returned only
	// when incluirAnuladas is set.
	FindByID(ctx context.Context, id uuid.UUID, incluirAnuladas bool) (*model.Venta, error)
	FindByOfflineID(ctx context.Context, offlineID string) (*model.Venta, error)
	// FindForUpdate locks the sale row, voided or not, and loads its lines.
	FindForUpdate(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*model.Venta, error)
	MarcarAnulada(ctx context.Context, tx *gorm.DB, id uuid.UUID, at time.Time) error
	// SumarTotalesPorMetodo sums Total of non-voided sales with
	// desde < created_at <= hasta (no upper bound when hasta is nil).
	SumarTotalesPorMetodo(ctx context.Context, tx *gorm.DB, desde time.Time, hasta *time.Time) (map[string]decimal.Decimal, error)
	List(ctx context.Context, filter dto.VentaFilter) ([]model.Venta, int64, error)
	// UltimoNumero returns the highest "<prefijo><digits>" sale number, voided
	// sales included, or "" when there is none.
	UltimoNumero(ctx context.Context, prefijo string) (string, error)
}

type ventaRepo struct{ db *gorm.DB }

func NewVentaRepository(db *gorm.DB) VentaRepository { return &ventaRepo{db: db} }

func (r *ventaRepo) Create(ctx context.Context, tx *gorm.DB, v *model.Venta) error {
	db := conn(ctx, r.db, tx)
	if err := db.Create(v).Error; err != nil {
		switch {
		case IsUniqueViolation(err, constraintNumeroVenta):
			return fmt.Errorf("%w: %s", ErrNumeroVentaDuplicado, v.NumeroVenta)
		case IsUniqueViolation(err, constraintOfflineID):
			return ErrOfflineIDDuplicado
		}
		return err
	}
	if len(v.Detalles) == 0 {
		return nil
	}
	for i := range v.Detalles {
		v.Detalles[i].VentaID = v.ID
	}
	return db.Create(&v.Detalles).Error
}

func (r *ventaRepo) FindByID(ctx context.Context, id uuid.UUID, incluirAnuladas bool) (*model.Venta, error) {
	q := r.db.WithContext(ctx)
	if incluirAnuladas {
		q = q.Unscoped()
	}
	var v model.Venta
	if err := q.First(&v, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &v, r.cargarDetalles(ctx, nil, &v)
}

func (r *ventaRepo) FindByOfflineID(ctx context.Context, offlineID string) (*model.Venta, error) {
	var v model.Venta
	if err := r.db.WithContext(ctx).Unscoped().Where("offline_id = ?", offlineID).First(&v).Error; err != nil {
		return nil, err
	}
	return &v, r.cargarDetalles(ctx, nil, &v)
}

func (r *ventaRepo) FindForUpdate(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*model.Venta, error) {
	var v model.Venta
	err := conn(ctx, r.db, tx).Unscoped().
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&v, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &v, r.cargarDetalles(ctx, tx, &v)
}

func (r *ventaRepo) cargarDetalles(ctx context.Context, tx *gorm.DB, v *model.Venta) error {
	return conn(ctx, r.db, tx).
		Where("venta_id = ?", v.ID).
		Order("linea ASC").
		Find(&v.Detalles).Error
}

func (r *ventaRepo) MarcarAnulada(ctx context.Context, tx *gorm.DB, id uuid.UUID, at time.Time) error {
	return conn(ctx, r.db, tx).Unscoped().Model(&model.Venta{}).
		Where("id = ? AND deleted_at IS NULL", id).
		Update("deleted_at", at).Error
}

func (r *ventaRepo) SumarTotalesPorMetodo(ctx context.Context, tx *gorm.DB, desde time.Time, hasta *time.Time) (map[string]decimal.Decimal, error) {
	var filas []struct {
		MetodoPago string
		Total      decimal.Decimal
	}
	q := conn(ctx, r.db, tx).Model(&model.Venta{}).
		Select("metodo_pago, COALESCE(SUM(total), 0) AS total").
		Where("created_at > ?", desde)
	if hasta != nil {
		q = q.Where("created_at <= ?", *hasta)
	}
	if err := q.Group("metodo_pago").Scan(&filas).Error; err != nil {
		return nil, err
	}
	out := make(map[string]decimal.Decimal, len(filas))
	for _, f := range filas {
		out[f.MetodoPago] = f.Total
	}
	return out, nil
}

func (r *ventaRepo) List(ctx context.Context, filter dto.VentaFilter) ([]model.Venta, int64, error) {
	var ventas []model.Venta
	var total int64
	offset := (filter.Page - 1) * filter.Limit

	q := r.db.WithContext(ctx).Model(&model.Venta{})
	if filter.IncluirAnuladas {
		q = q.Unscoped()
	}
	if filter.MetodoPago != "" {
		q = q.Where("metodo_pago = ?", filter.MetodoPago)
	}
	if filter.Desde != "" {
		hasta := filter.Hasta
		if hasta == "" {
			hasta = filter.Desde
		}
		q = q.Where("DATE(created_at) BETWEEN ? AND ?", filter.Desde, hasta)
	} else {
		// Default: today
		q = q.Where("DATE(created_at) = CURRENT_DATE")
	}

	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := q.Order("created_at DESC").
		Offset(offset).Limit(filter.Limit).
		Find(&ventas).Error

	return ventas, total, err
}

func (r *ventaRepo) UltimoNumero(ctx context.Context, prefijo string) (string, error) {
	var numeros []string
	err := r.db.WithContext(ctx).Unscoped().Model(&model.Venta{}).
		Where("numero_venta ~ ?", "^"+regexp.QuoteMeta(prefijo)+"[0-9]+$").
		Order("length(numero_venta) DESC, numero_venta DESC").
		Limit(1).
		Pluck("numero_venta", &numeros).Error
	if err != nil || len(numeros) == 0 {
		return "", err
	}
	return numeros[0], nil
}
