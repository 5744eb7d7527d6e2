package repository

import (
	"context"
	"time"

	"pipos/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// periodoCajaLockKey identifies the advisory lock that orders closures against
// every write that lands in a cash period.
const periodoCajaLockKey int64 = 0x7069706f73

type CajaRepository interface {
	// BloquearPeriodo takes the cash-period advisory lock for the rest of tx.
	// Writers take it shared; a closure takes it exclusive.
	BloquearPeriodo(ctx context.Context, tx *gorm.DB, exclusivo bool) error

	CreateMovimiento(ctx context.Context, tx *gorm.DB, m *model.MovimientoCaja) error
	FindMovimientoByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*model.MovimientoCaja, error)
	UpdateMovimiento(ctx context.Context, tx *gorm.DB, m *model.MovimientoCaja) error
	DeleteMovimiento(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
	ListMovimientos(ctx context.Context, desde time.Time) ([]model.MovimientoCaja, error)
	// SumarMovimientos totals ingresos and egresos with desde < created_at <= hasta.
	SumarMovimientos(ctx context.Context, tx *gorm.DB, desde time.Time, hasta *time.Time) (ingresos, egresos decimal.Decimal, err error)

	// UltimoCorte returns the most recent closure, or nil when none exists.
	UltimoCorte(ctx context.Context, tx *gorm.DB) (*model.CorteCaja, error)
	CreateCorte(ctx context.Context, tx *gorm.DB, c *model.CorteCaja) error
	FindCorteByID(ctx context.Context, id uuid.UUID) (*model.CorteCaja, error)
	ListCortes(ctx context.Context, page, limit int) ([]model.CorteCaja, int64, error)
}

type cajaRepo struct{ db *gorm.DB }

func NewCajaRepository(db *gorm.DB) CajaRepository { return &cajaRepo{db: db} }

func (r *cajaRepo) BloquearPeriodo(ctx context.Context, tx *gorm.DB, exclusivo bool) error {
	stmt := "SELECT pg_advisory_xact_lock_shared(?)"
	if exclusivo {
		stmt = "SELECT pg_advisory_xact_lock(?)"
	}
	return conn(ctx, r.db, tx).Exec(stmt, periodoCajaLockKey).Error
}

func (r *cajaRepo) CreateMovimiento(ctx context.Context, tx *gorm.DB, m *model.MovimientoCaja) error {
	return conn(ctx, r.db, tx).Create(m).Error
}

func (r *cajaRepo) FindMovimientoByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*model.MovimientoCaja, error) {
	var m model.MovimientoCaja
	if err := conn(ctx, r.db, tx).First(&m, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *cajaRepo) UpdateMovimiento(ctx context.Context, tx *gorm.DB, m *model.MovimientoCaja) error {
	return conn(ctx, r.db, tx).Model(m).
		Select("monto", "descripcion", "updated_at").
		Updates(m).Error
}

func (r *cajaRepo) DeleteMovimiento(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	return conn(ctx, r.db, tx).Delete(&model.MovimientoCaja{}, "id = ?", id).Error
}

func (r *cajaRepo) ListMovimientos(ctx context.Context, desde time.Time) ([]model.MovimientoCaja, error) {
	var movs []model.MovimientoCaja
	err := r.db.WithContext(ctx).
		Where("created_at > ?", desde).
		Order("created_at ASC").
		Find(&movs).Error
	return movs, err
}

func (r *cajaRepo) SumarMovimientos(ctx context.Context, tx *gorm.DB, desde time.Time, hasta *time.Time) (decimal.Decimal, decimal.Decimal, error) {
	var filas []struct {
		Tipo  string
		Total decimal.Decimal
	}
	q := conn(ctx, r.db, tx).Model(&model.MovimientoCaja{}).
		Select("tipo, COALESCE(SUM(monto), 0) AS total").
		Where("created_at > ?", desde)
	if hasta != nil {
		q = q.Where("created_at <= ?", *hasta)
	}
	if err := q.Group("tipo").Scan(&filas).Error; err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	ingresos, egresos := decimal.Zero, decimal.Zero
	for _, f := range filas {
		switch f.Tipo {
		case model.MovimientoIngreso:
			ingresos = f.Total
		case model.MovimientoEgreso:
			egresos = f.Total
		}
	}
	return ingresos, egresos, nil
}

func (r *cajaRepo) UltimoCorte(ctx context.Context, tx *gorm.DB) (*model.CorteCaja, error) {
	var cortes []model.CorteCaja
	err := conn(ctx, r.db, tx).Order("created_at DESC").Limit(1).Find(&cortes).Error
	if err != nil || len(cortes) == 0 {
		return nil, err
	}
	return &cortes[0], nil
}

func (r *cajaRepo) CreateCorte(ctx context.Context, tx *gorm.DB, c *model.CorteCaja) error {
	return conn(ctx, r.db, tx).Create(c).Error
}

func (r *cajaRepo) FindCorteByID(ctx context.Context, id uuid.UUID) (*model.CorteCaja, error) {
	var c model.CorteCaja
	if err := r.db.WithContext(ctx).First(&c, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *cajaRepo) ListCortes(ctx context.Context, page, limit int) ([]model.CorteCaja, int64, error) {
	var total int64
	q := r.db.WithContext(ctx).Model(&model.CorteCaja{})
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var cortes []model.CorteCaja
	err := q.Order("created_at DESC").Offset((page - 1) * limit).Limit(limit).Find(&cortes).Error
	return cortes, total, err
}
