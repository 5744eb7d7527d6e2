package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"pipos/internal/dto"
	"pipos/internal/metrics"
	"pipos/internal/model"
	"pipos/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	ClasificacionNormal      = "normal"
	ClasificacionAdvertencia = "advertencia"
	ClasificacionCritico     = "critico"
)

// Esperado is the expected-cash computation of one period.
type Esperado struct {
	VentasEfectivo   decimal.Decimal
	VentasDigitales  decimal.Decimal
	IngresosManuales decimal.Decimal
	EgresosManuales  decimal.Decimal
	EfectivoEsperado decimal.Decimal
}

// CajaService owns the manual cash movements and the period closures. The
// open period is everything created after the last CorteCaja.
type CajaService interface {
	RegistrarMovimiento(ctx context.Context, usuarioID uuid.UUID, req dto.MovimientoCajaRequest) (*dto.MovimientoCajaResponse, error)
	ActualizarMovimiento(ctx context.Context, id uuid.UUID, req dto.ActualizarMovimientoRequest) (*dto.MovimientoCajaResponse, error)
	EliminarMovimiento(ctx context.Context, id uuid.UUID) error
	ListarMovimientos(ctx context.Context) ([]dto.MovimientoCajaResponse, error)
	// CalcularEsperado sums everything created after desde. It never writes.
	CalcularEsperado(ctx context.Context, desde time.Time) (*Esperado, error)
	PeriodoActual(ctx context.Context) (*dto.EsperadoResponse, error)
	CerrarCaja(ctx context.Context, usuarioID uuid.UUID, req dto.CerrarCajaRequest) (*dto.CorteCajaResponse, error)
	ObtenerCorte(ctx context.Context, id uuid.UUID) (*dto.CorteCajaResponse, error)
	ListarCortes(ctx context.Context, filter dto.CorteFilter) (*dto.CorteListResponse, error)
}

type cajaService struct {
	tx        repository.Transactor
	repo      repository.CajaRepository
	ventaRepo repository.VentaRepository
	reglas    Reglas
}

func NewCajaService(tx repository.Transactor, repo repository.CajaRepository, ventaRepo repository.VentaRepository, reglas Reglas) CajaService {
	return &cajaService{tx: tx, repo: repo, ventaRepo: ventaRepo, reglas: reglas}
}

// ── Movimientos ───────────────────────────────────────────────────────────────

func (s *cajaService) RegistrarMovimiento(ctx context.Context, usuarioID uuid.UUID, req dto.MovimientoCajaRequest) (*dto.MovimientoCajaResponse, error) {
	verr := nuevaValidacion()
	if req.Tipo != model.MovimientoIngreso && req.Tipo != model.MovimientoEgreso {
		verr.add("tipo", "debe ser ingreso o egreso")
	}
	if !req.Monto.Round(2).IsPositive() {
		verr.add("monto", "debe ser mayor a cero")
	}
	descripcion := strings.TrimSpace(req.Descripcion)
	if len(descripcion) < 3 {
		verr.add("descripcion", "requerida")
	}
	if !verr.vacia() {
		return nil, verr
	}

	var mov *model.MovimientoCaja
	err := s.tx.Transaction(ctx, func(tx *gorm.DB) error {
		if err := s.repo.BloquearPeriodo(ctx, tx, false); err != nil {
			return err
		}
		ahora, _, err := ahoraEnPeriodoAbierto(ctx, tx, s.repo, s.reglas)
		if err != nil {
			return err
		}
		mov = &model.MovimientoCaja{
			ID:          uuid.New(),
			Tipo:        req.Tipo,
			Monto:       req.Monto.Round(2),
			Descripcion: descripcion,
			UsuarioID:   usuarioID,
			CreatedAt:   ahora,
			UpdatedAt:   ahora,
		}
		return s.repo.CreateMovimiento(ctx, tx, mov)
	})
	if err != nil {
		return nil, traducirError(err)
	}
	log.Info().Str("movimiento_id", mov.ID.String()).Str("tipo", mov.Tipo).Str("monto", mov.Monto.StringFixed(2)).Msg("movimiento de caja registrado")
	return movimientoToResponse(mov), nil
}

func (s *cajaService) ActualizarMovimiento(ctx context.Context, id uuid.UUID, req dto.ActualizarMovimientoRequest) (*dto.MovimientoCajaResponse, error) {
	verr := nuevaValidacion()
	if req.Monto == nil && req.Descripcion == nil {
		verr.add("monto", "indique monto o descripcion")
	}
	if req.Monto != nil && !req.Monto.Round(2).IsPositive() {
		verr.add("monto", "debe ser mayor a cero")
	}
	if req.Descripcion != nil && len(strings.TrimSpace(*req.Descripcion)) < 3 {
		verr.add("descripcion", "requerida")
	}
	if !verr.vacia() {
		return nil, verr
	}

	var mov *model.MovimientoCaja
	err := s.tx.Transaction(ctx, func(tx *gorm.DB) error {
		m, err := s.movimientoEditable(ctx, tx, id)
		if err != nil {
			return err
		}
		if req.Monto != nil {
			m.Monto = req.Monto.Round(2)
		}
		if req.Descripcion != nil {
			m.Descripcion = strings.TrimSpace(*req.Descripcion)
		}
		m.UpdatedAt = s.reglas.ahora()
		mov = m
		return s.repo.UpdateMovimiento(ctx, tx, m)
	})
	if err != nil {
		return nil, traducirError(err)
	}
	return movimientoToResponse(mov), nil
}

func (s *cajaService) EliminarMovimiento(ctx context.Context, id uuid.UUID) error {
	err := s.tx.Transaction(ctx, func(tx *gorm.DB) error {
		if _, err := s.movimientoEditable(ctx, tx, id); err != nil {
			return err
		}
		return s.repo.DeleteMovimiento(ctx, tx, id)
	})
	if err != nil {
		return traducirError(err)
	}
	log.Info().Str("movimiento_id", id.String()).Msg("movimiento de caja eliminado")
	return nil
}

// movimientoEditable takes the shared period lock and loads the movement,
// rejecting it when a closure already counted it or when it is the automatic
// refund of a void.
func (s *cajaService) movimientoEditable(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*model.MovimientoCaja, error) {
	if err := s.repo.BloquearPeriodo(ctx, tx, false); err != nil {
		return nil, err
	}
	m, err := s.repo.FindMovimientoByID(ctx, tx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, noEncontrado("movimiento", id)
		}
		return nil, err
	}
	ultimo, err := s.repo.UltimoCorte(ctx, tx)
	if err != nil {
		return nil, err
	}
	if ultimo != nil && !m.CreatedAt.After(ultimo.CreatedAt) {
		return nil, fmt.Errorf("%w: cerrado el %s", ErrMovimientoBloqueado, ultimo.CreatedAt.Format(formatoFecha))
	}
	if m.VentaID != nil {
		return nil, fmt.Errorf("%w: reembolso automatico de la venta %s", ErrMovimientoBloqueado, m.VentaID)
	}
	return m, nil
}

func (s *cajaService) ListarMovimientos(ctx context.Context) ([]dto.MovimientoCajaResponse, error) {
	desde, _, err := s.inicioPeriodo(ctx, nil)
	if err != nil {
		return nil, traducirError(err)
	}
	movs, err := s.repo.ListMovimientos(ctx, desde)
	if err != nil {
		return nil, traducirError(err)
	}
	out := make([]dto.MovimientoCajaResponse, 0, len(movs))
	for i := range movs {
		out = append(out, *movimientoToResponse(&movs[i]))
	}
	return out, nil
}

// ── Esperado ──────────────────────────────────────────────────────────────────

func (s *cajaService) CalcularEsperado(ctx context.Context, desde time.Time) (*Esperado, error) {
	e, err := s.calcular(ctx, nil, desde, nil)
	if err != nil {
		return nil, traducirError(err)
	}
	return e, nil
}

func (s *cajaService) PeriodoActual(ctx context.Context) (*dto.EsperadoResponse, error) {
	desde, periodoDesde, err := s.inicioPeriodo(ctx, nil)
	if err != nil {
		return nil, traducirError(err)
	}
	e, err := s.CalcularEsperado(ctx, desde)
	if err != nil {
		return nil, err
	}
	return &dto.EsperadoResponse{
		PeriodoDesde:     timePtrString(periodoDesde),
		VentasEfectivo:   e.VentasEfectivo,
		VentasDigitales:  e.VentasDigitales,
		IngresosManuales: e.IngresosManuales,
		EgresosManuales:  e.EgresosManuales,
		EfectivoEsperado: e.EfectivoEsperado,
	}, nil
}

// calcular sums sales and movements with desde < created_at <= hasta.
func (s *cajaService) calcular(ctx context.Context, tx *gorm.DB, desde time.Time, hasta *time.Time) (*Esperado, error) {
	porMetodo, err := s.ventaRepo.SumarTotalesPorMetodo(ctx, tx, desde, hasta)
	if err != nil {
		return nil, err
	}
	ingresos, egresos, err := s.repo.SumarMovimientos(ctx, tx, desde, hasta)
	if err != nil {
		return nil, err
	}

	e := &Esperado{
		VentasEfectivo:   decimal.Zero,
		VentasDigitales:  decimal.Zero,
		IngresosManuales: ingresos,
		EgresosManuales:  egresos,
	}
	for metodo, total := range porMetodo {
		if s.reglas.esEfectivo(metodo) {
			e.VentasEfectivo = e.VentasEfectivo.Add(total)
		} else {
			e.VentasDigitales = e.VentasDigitales.Add(total)
		}
	}
	e.EfectivoEsperado = e.VentasEfectivo.Add(ingresos).Sub(egresos)
	return e, nil
}

// inicioPeriodo returns the lower bound of the open period: the last closure
// time, or the zero time before the first closure (periodoDesde nil).
func (s *cajaService) inicioPeriodo(ctx context.Context, tx *gorm.DB) (time.Time, *time.Time, error) {
	ultimo, err := s.repo.UltimoCorte(ctx, tx)
	if err != nil {
		return time.Time{}, nil, err
	}
	if ultimo == nil {
		return time.Time{}, nil, nil
	}
	desde := ultimo.CreatedAt
	return desde, &desde, nil
}

// ahoraEnPeriodoAbierto is the created_at for a row written under the shared
// period lock. It always lands after the last closure, even when the clock
// stepped back, so no row falls outside every period.
func ahoraEnPeriodoAbierto(ctx context.Context, tx *gorm.DB, repo repository.CajaRepository, reglas Reglas) (time.Time, *model.CorteCaja, error) {
	ultimo, err := repo.UltimoCorte(ctx, tx)
	if err != nil {
		return time.Time{}, nil, err
	}
	ahora := reglas.ahora()
	if ultimo != nil && !ahora.After(ultimo.CreatedAt) {
		log.Warn().Time("ahora", ahora).Time("ultimo_corte", ultimo.CreatedAt).Msg("reloj detras del ultimo corte")
		ahora = ultimo.CreatedAt.Add(time.Microsecond)
	}
	return ahora, ultimo, nil
}

// ── CerrarCaja ────────────────────────────────────────────────────────────────
// Holds the exclusive period lock: in-flight sales, voids and movements
// commit first, new ones wait until the closure commits and then land in the
// next period. A second closure waits and sees the new boundary.

func (s *cajaService) CerrarCaja(ctx context.Context, usuarioID uuid.UUID, req dto.CerrarCajaRequest) (*dto.CorteCajaResponse, error) {
	if req.EfectivoContado.IsNegative() {
		return nil, errCampo("efectivo_contado", "no puede ser negativo")
	}
	var notas *string
	if req.Notas != nil && strings.TrimSpace(*req.Notas) != "" {
		n := strings.TrimSpace(*req.Notas)
		notas = &n
	}

	var corte *model.CorteCaja
	err := s.tx.Transaction(ctx, func(tx *gorm.DB) error {
		if err := s.repo.BloquearPeriodo(ctx, tx, true); err != nil {
			return err
		}
		desde, periodoDesde, err := s.inicioPeriodo(ctx, tx)
		if err != nil {
			return err
		}
		hasta := s.reglas.ahora()
		if !hasta.After(desde) {
			hasta = desde.Add(time.Microsecond)
		}

		e, err := s.calcular(ctx, tx, desde, &hasta)
		if err != nil {
			return err
		}
		contado := req.EfectivoContado.Round(2)
		diferencia := contado.Sub(e.EfectivoEsperado)
		clasificacion := ClasificarDiferencia(diferencia, e.EfectivoEsperado)
		if clasificacion == ClasificacionCritico && notas == nil {
			return errCampo("notas", "requeridas cuando la diferencia es critica")
		}

		corte = &model.CorteCaja{
			ID:               uuid.New(),
			UsuarioID:        usuarioID,
			PeriodoDesde:     periodoDesde,
			VentasEfectivo:   e.VentasEfectivo,
			VentasDigitales:  e.VentasDigitales,
			IngresosManuales: e.IngresosManuales,
			EgresosManuales:  e.EgresosManuales,
			EfectivoEsperado: e.EfectivoEsperado,
			EfectivoContado:  contado,
			Diferencia:       diferencia,
			Clasificacion:    clasificacion,
			Notas:            notas,
			CreatedAt:        hasta,
		}
		return s.repo.CreateCorte(ctx, tx, corte)
	})
	if err != nil {
		return nil, traducirError(err)
	}

	metrics.CortesCaja.WithLabelValues(corte.Clasificacion).Inc()
	metrics.DiferenciaCorte.Observe(corte.Diferencia.Abs().InexactFloat64())
	log.Info().
		Str("corte_id", corte.ID.String()).
		Str("esperado", corte.EfectivoEsperado.StringFixed(2)).
		Str("contado", corte.EfectivoContado.StringFixed(2)).
		Str("clasificacion", corte.Clasificacion).
		Msg("caja cerrada")
	return corteToResponse(corte), nil
}

// ClasificarDiferencia grades a closure by |diferencia| relative to the
// expected cash: normal <= 1%, advertencia <= 5%, critico > 5%. Any
// difference against an expected amount of zero is critico.
func ClasificarDiferencia(diferencia, esperado decimal.Decimal) string {
	if diferencia.IsZero() {
		return ClasificacionNormal
	}
	if esperado.IsZero() {
		return ClasificacionCritico
	}
	pct := diferencia.Div(esperado).Mul(decimal.NewFromInt(100)).Abs()
	switch {
	case pct.LessThanOrEqual(decimal.NewFromInt(1)):
		return ClasificacionNormal
	case pct.LessThanOrEqual(decimal.NewFromInt(5)):
		return ClasificacionAdvertencia
	default:
		return ClasificacionCritico
	}
}

// ── Cortes ────────────────────────────────────────────────────────────────────

func (s *cajaService) ObtenerCorte(ctx context.Context, id uuid.UUID) (*dto.CorteCajaResponse, error) {
	c, err := s.repo.FindCorteByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, noEncontrado("corte", id)
		}
		return nil, traducirError(err)
	}
	return corteToResponse(c), nil
}

func (s *cajaService) ListarCortes(ctx context.Context, filter dto.CorteFilter) (*dto.CorteListResponse, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 {
		filter.Limit = 30
	}
	cortes, total, err := s.repo.ListCortes(ctx, filter.Page, filter.Limit)
	if err != nil {
		return nil, traducirError(err)
	}
	data := make([]dto.CorteCajaResponse, 0, len(cortes))
	for i := range cortes {
		data = append(data, *corteToResponse(&cortes[i]))
	}
	return &dto.CorteListResponse{Data: data, Total: total, Page: filter.Page, Limit: filter.Limit}, nil
}

func movimientoToResponse(m *model.MovimientoCaja) *dto.MovimientoCajaResponse {
	return &dto.MovimientoCajaResponse{
		ID:          m.ID.String(),
		Tipo:        m.Tipo,
		Monto:       m.Monto,
		Descripcion: m.Descripcion,
		UsuarioID:   m.UsuarioID.String(),
		VentaID:     uuidPtrString(m.VentaID),
		CreatedAt:   m.CreatedAt.Format(formatoFecha),
	}
}

func corteToResponse(c *model.CorteCaja) *dto.CorteCajaResponse {
	return &dto.CorteCajaResponse{
		ID:               c.ID.String(),
		UsuarioID:        c.UsuarioID.String(),
		PeriodoDesde:     timePtrString(c.PeriodoDesde),
		PeriodoHasta:     c.CreatedAt.Format(formatoFecha),
		VentasEfectivo:   c.VentasEfectivo,
		VentasDigitales:  c.VentasDigitales,
		IngresosManuales: c.IngresosManuales,
		EgresosManuales:  c.EgresosManuales,
		EfectivoEsperado: c.EfectivoEsperado,
		EfectivoContado:  c.EfectivoContado,
		Diferencia:       c.Diferencia,
		Clasificacion:    c.Clasificacion,
		Notas:            c.Notas,
	}
}
