package repository

import (
	"context"

	"pipos/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProductoRepository is the slice of the catalog the sales core needs: reads,
// plus stock writes on a row locked by FindForUpdate.
type ProductoRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*model.Producto, error)
	// FindForUpdate locks the row (SELECT ... FOR UPDATE) until tx ends.
	// Tombstoned products are returned only when incluirEliminados is set.
	FindForUpdate(ctx context.Context, tx *gorm.DB, id uuid.UUID, incluirEliminados bool) (*model.Producto, error)
	UpdateStock(ctx context.Context, tx *gorm.DB, id uuid.UUID, stock int) error
	ListBajoMinimo(ctx context.Context, limit int) ([]model.Producto, error)
}

type productoRepo struct{ db *gorm.DB }

func NewProductoRepository(db *gorm.DB) ProductoRepository { return &productoRepo{db: db} }

func (r *productoRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Producto, error) {
	var p model.Producto
	err := r.db.WithContext(ctx).First(&p, "id = ?", id).Error
	return &p, err
}

func (r *productoRepo) FindForUpdate(ctx context.Context, tx *gorm.DB, id uuid.UUID, incluirEliminados bool) (*model.Producto, error) {
	q := conn(ctx, r.db, tx).Clauses(clause.Locking{Strength: "UPDATE"})
	if incluirEliminados {
		q = q.Unscoped()
	}
	var p model.Producto
	err := q.First(&p, "id = ?", id).Error
	return &p, err
}

// UpdateStock writes the absolute value computed under the row lock. Unscoped
// so that restoring stock on a tombstoned product still lands.
func (r *productoRepo) UpdateStock(ctx context.Context, tx *gorm.DB, id uuid.UUID, stock int) error {
	return conn(ctx, r.db, tx).Unscoped().Model(&model.Producto{}).
		Where("id = ?", id).
		Update("stock_actual", stock).Error
}

func (r *productoRepo) ListBajoMinimo(ctx context.Context, limit int) ([]model.Producto, error) {
	var productos []model.Producto
	err := r.db.WithContext(ctx).
		Where("stock_actual < stock_minimo").
		Order("stock_minimo - stock_actual DESC").
		Limit(limit).
		Find(&productos).Error
	return productos, err
}
