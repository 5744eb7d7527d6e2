package infra

import (
	"fmt"

	"pipos/internal/model"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDatabase establishes a GORM connection backed by pgx. It does not touch
// the schema; call RunMigrations for that.
func NewDatabase(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)

	return db, nil
}

// RunMigrations creates / updates every table with AutoMigrate and then applies
// the idempotent SQL patches GORM cannot express (CHECK constraints, FK actions,
// immutability triggers). Safe to run on every start.
func RunMigrations(db *gorm.DB) error {
	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS pgcrypto`).Error; err != nil {
		return fmt.Errorf("pgcrypto: %w", err)
	}
	if err := db.AutoMigrate(
		&model.Categoria{},
		&model.Cliente{},
		&model.Usuario{},
		&model.Producto{},
		&model.Venta{},
		&model.DetalleVenta{},
		&model.MovimientoCaja{},
		&model.CorteCaja{},
		&model.MovimientoStock{},
	); err != nil {
		return fmt.Errorf("AutoMigrate: %w", err)
	}
	if err := applySchemaPatches(db); err != nil {
		return fmt.Errorf("schema patches: %w", err)
	}
	return nil
}

// applySchemaPatches runs DDL that AutoMigrate cannot handle. Every statement
// is guarded (IF NOT EXISTS / CREATE OR REPLACE) so re-running is a no-op.
func applySchemaPatches(db *gorm.DB) error {
	patches := []struct {
		descr string
		sql   string
	}{
		{"detalles_venta checks", `
DO $$ BEGIN
  IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'chk_detalles_venta_cantidad') THEN
    ALTER TABLE detalles_venta ADD CONSTRAINT chk_detalles_venta_cantidad CHECK (cantidad > 0);
  END IF;
  IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'chk_detalles_venta_importes') THEN
    ALTER TABLE detalles_venta ADD CONSTRAINT chk_detalles_venta_importes
      CHECK (precio_unitario >= 0 AND descuento >= 0 AND total_linea >= 0);
  END IF;
END $$`},
		{"ventas checks", `
DO $$ BEGIN
  IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'chk_ventas_importes') THEN
    ALTER TABLE ventas ADD CONSTRAINT chk_ventas_importes
      CHECK (total >= 0 AND descuento >= 0 AND impuesto >= 0 AND monto_pagado >= total AND cambio >= 0);
  END IF;
END $$`},
		{"movimientos_caja checks", `
DO $$ BEGIN
  IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'chk_movimientos_caja_monto') THEN
    ALTER TABLE movimientos_caja ADD CONSTRAINT chk_movimientos_caja_monto CHECK (monto > 0);
  END IF;
  IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'chk_movimientos_caja_tipo') THEN
    ALTER TABLE movimientos_caja ADD CONSTRAINT chk_movimientos_caja_tipo
      CHECK (tipo IN ('ingreso', 'egreso'));
  END IF;
END $$`},
		{"cortes_caja clasificacion check", `
DO $$ BEGIN
  IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'chk_cortes_caja_clasificacion') THEN
    ALTER TABLE cortes_caja ADD CONSTRAINT chk_cortes_caja_clasificacion
      CHECK (clasificacion IN ('normal', 'advertencia', 'critico'));
  END IF;
END $$`},
		// Lines must outlive a hard-deleted product: the FK nulls producto_id and
		// the snapshot columns keep the history readable.
		{"detalles_venta foreign keys", `
DO $$ BEGIN
  IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'fk_detalles_venta_venta') THEN
    ALTER TABLE detalles_venta ADD CONSTRAINT fk_detalles_venta_venta
      FOREIGN KEY (venta_id) REFERENCES ventas(id) ON DELETE RESTRICT;
  END IF;
  IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'fk_detalles_venta_producto') THEN
    ALTER TABLE detalles_venta ADD CONSTRAINT fk_detalles_venta_producto
      FOREIGN KEY (producto_id) REFERENCES productos(id) ON DELETE SET NULL;
  END IF;
END $$`},
		{"detalles_venta snapshot trigger function", `
CREATE OR REPLACE FUNCTION pipos_detalle_inmutable() RETURNS trigger AS $$
BEGIN
  IF NEW.venta_id        IS DISTINCT FROM OLD.venta_id
  OR NEW.linea           IS DISTINCT FROM OLD.linea
  OR NEW.codigo_barras   IS DISTINCT FROM OLD.codigo_barras
  OR NEW.nombre_producto IS DISTINCT FROM OLD.nombre_producto
  OR NEW.precio_unitario IS DISTINCT FROM OLD.precio_unitario
  OR NEW.costo           IS DISTINCT FROM OLD.costo
  OR NEW.cantidad        IS DISTINCT FROM OLD.cantidad
  OR NEW.descuento       IS DISTINCT FROM OLD.descuento
  OR NEW.total_linea     IS DISTINCT FROM OLD.total_linea THEN
    RAISE EXCEPTION 'detalles_venta snapshot is immutable';
  END IF;
  RETURN NEW;
END $$ LANGUAGE plpgsql`},
		{"drop detalles_venta snapshot trigger", `
DROP TRIGGER IF EXISTS trg_detalles_venta_inmutable ON detalles_venta`},
		{"detalles_venta snapshot trigger", `
CREATE TRIGGER trg_detalles_venta_inmutable
  BEFORE UPDATE ON detalles_venta
  FOR EACH ROW EXECUTE FUNCTION pipos_detalle_inmutable()`},
		{"cortes_caja write-once trigger function", `
CREATE OR REPLACE FUNCTION pipos_corte_inmutable() RETURNS trigger AS $$
BEGIN
  RAISE EXCEPTION 'cortes_caja rows are write-once';
END $$ LANGUAGE plpgsql`},
		{"drop cortes_caja write-once trigger", `
DROP TRIGGER IF EXISTS trg_cortes_caja_inmutable ON cortes_caja`},
		{"cortes_caja write-once trigger", `
CREATE TRIGGER trg_cortes_caja_inmutable
  BEFORE UPDATE OR DELETE ON cortes_caja
  FOR EACH ROW EXECUTE FUNCTION pipos_corte_inmutable()`},
		// Serves the period sums: cash sales after a boundary, active only.
		{"ventas period index", `
CREATE INDEX IF NOT EXISTS idx_ventas_periodo_activas
  ON ventas (created_at, metodo_pago) WHERE deleted_at IS NULL`},
	}

	for _, p := range patches {
		if err := db.Exec(p.sql).Error; err != nil {
			return fmt.Errorf("patch %q: %w", p.descr, err)
		}
	}
	return nil
}
