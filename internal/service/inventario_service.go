package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"pipos/internal/dto"
	"pipos/internal/metrics"
	"pipos/internal/model"
	"pipos/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// OperacionStock describes why stock moves. It ends up in the audit row.
type OperacionStock struct {
	Tipo         string
	Motivo       string
	ReferenciaID *uuid.UUID
	UsuarioID    *uuid.UUID
	// PermitirNegativo lets a decrement go below zero. Callers set it only
	// after checking Reglas.PermitirStockNegativo.
	PermitirNegativo bool
}

// MaxAjusteStock bounds a single manual adjustment in either direction.
const MaxAjusteStock = 1_000_000

// InventarioService is the stock ledger: every stock change goes through it,
// under a row lock, with an audit row written in the same transaction.
type InventarioService interface {
	// DecrementarTx removes cantidad units inside tx. Tombstoned products are
	// NotFound. Returns the product with its new stock.
	DecrementarTx(ctx context.Context, tx *gorm.DB, productoID uuid.UUID, cantidad int, op OperacionStock) (*model.Producto, error)
	// IncrementarTx adds cantidad units inside tx, tombstoned products included.
	IncrementarTx(ctx context.Context, tx *gorm.DB, productoID uuid.UUID, cantidad int, op OperacionStock) (*model.Producto, error)
	AjustarStock(ctx context.Context, usuarioID, productoID uuid.UUID, req dto.AjustarStockRequest) (*dto.AjusteStockResponse, error)
	ListarMovimientos(ctx context.Context, filter dto.MovimientoStockFilter) (*dto.MovimientoStockListResponse, error)
	ObtenerAlertas(ctx context.Context) ([]dto.AlertaStockResponse, error)
}

type inventarioService struct {
	tx     repository.Transactor
	repo   repository.ProductoRepository
	movs   repository.MovimientoStockRepository
	reglas Reglas
}

func NewInventarioService(
	tx repository.Transactor,
	repo repository.ProductoRepository,
	movs repository.MovimientoStockRepository,
	reglas Reglas,
) InventarioService {
	return &inventarioService{tx: tx, repo: repo, movs: movs, reglas: reglas}
}

func (s *inventarioService) DecrementarTx(ctx context.Context, tx *gorm.DB, productoID uuid.UUID, cantidad int, op OperacionStock) (*model.Producto, error) {
	if cantidad <= 0 {
		return nil, errCampo("cantidad", "debe ser mayor a cero")
	}
	return s.moverTx(ctx, tx, productoID, -cantidad, false, op)
}

func (s *inventarioService) IncrementarTx(ctx context.Context, tx *gorm.DB, productoID uuid.UUID, cantidad int, op OperacionStock) (*model.Producto, error) {
	if cantidad <= 0 {
		return nil, errCampo("cantidad", "debe ser mayor a cero")
	}
	return s.moverTx(ctx, tx, productoID, cantidad, true, op)
}

func (s *inventarioService) moverTx(ctx context.Context, tx *gorm.DB, productoID uuid.UUID, delta int, incluirEliminados bool, op OperacionStock) (*model.Producto, error) {
	p, err := s.repo.FindForUpdate(ctx, tx, productoID, incluirEliminados)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, noEncontrado("producto", productoID)
		}
		return nil, traducirError(err)
	}

	anterior := p.StockActual
	nuevo := anterior + delta
	if (delta > 0 && nuevo < anterior) || (delta < 0 && nuevo > anterior) {
		return nil, errCampo("cantidad", "el stock resultante excede el rango permitido")
	}
	if delta < 0 && nuevo < 0 && !op.PermitirNegativo {
		metrics.StockInsuficiente.Inc()
		return nil, &StockInsuficienteError{
			ProductoID:  p.ID,
			Descripcion: p.Descripcion,
			Disponible:  anterior,
			Solicitado:  -delta,
		}
	}

	if err := s.repo.UpdateStock(ctx, tx, p.ID, nuevo); err != nil {
		return nil, traducirError(err)
	}
	mov := &model.MovimientoStock{
		ID:            uuid.New(),
		ProductoID:    p.ID,
		Tipo:          op.Tipo,
		Cantidad:      delta,
		StockAnterior: anterior,
		StockNuevo:    nuevo,
		Motivo:        op.Motivo,
		ReferenciaID:  op.ReferenciaID,
		UsuarioID:     op.UsuarioID,
		CreatedAt:     s.reglas.ahora(),
	}
	if err := s.movs.Create(ctx, tx, mov); err != nil {
		return nil, traducirError(err)
	}

	p.StockActual = nuevo
	return p, nil
}

// ── AjustarStock ──────────────────────────────────────────────────────────────

func (s *inventarioService) AjustarStock(ctx context.Context, usuarioID, productoID uuid.UUID, req dto.AjustarStockRequest) (*dto.AjusteStockResponse, error) {
	verr := nuevaValidacion()
	switch {
	case req.Cantidad == 0:
		verr.add("cantidad", "no puede ser cero")
	case req.Cantidad > MaxAjusteStock || req.Cantidad < -MaxAjusteStock:
		verr.add("cantidad", fmt.Sprintf("debe estar entre -%d y %d", MaxAjusteStock, MaxAjusteStock))
	}
	if len(strings.TrimSpace(req.Motivo)) < 3 {
		verr.add("motivo", "requerido")
	}
	if req.Forzar && !s.reglas.PermitirStockNegativo {
		verr.add("forzar", "el stock negativo esta deshabilitado")
	}
	if !verr.vacia() {
		return nil, verr
	}

	op := OperacionStock{
		Tipo:             model.StockAjusteManual,
		Motivo:           strings.TrimSpace(req.Motivo),
		UsuarioID:        &usuarioID,
		PermitirNegativo: req.Forzar,
	}

	var anterior, nuevo int
	err := s.tx.Transaction(ctx, func(tx *gorm.DB) error {
		p, err := s.moverTx(ctx, tx, productoID, req.Cantidad, false, op)
		if err != nil {
			return err
		}
		nuevo = p.StockActual
		anterior = nuevo - req.Cantidad
		return nil
	})
	if err != nil {
		return nil, traducirError(err)
	}
	return &dto.AjusteStockResponse{
		ProductoID:    productoID.String(),
		StockAnterior: anterior,
		StockNuevo:    nuevo,
	}, nil
}

// ── Consultas ─────────────────────────────────────────────────────────────────

func (s *inventarioService) ListarMovimientos(ctx context.Context, filter dto.MovimientoStockFilter) (*dto.MovimientoStockListResponse, error) {
	f := repository.MovimientoStockFilter{Tipo: filter.Tipo, Page: filter.Page, Limit: filter.Limit}
	if filter.ProductoID != "" {
		id, err := uuid.Parse(filter.ProductoID)
		if err != nil {
			return nil, errCampo("producto_id", "uuid invalido")
		}
		f.ProductoID = &id
	}
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = 100
	}

	movs, total, err := s.movs.List(ctx, f)
	if err != nil {
		return nil, traducirError(err)
	}
	data := make([]dto.MovimientoStockResponse, 0, len(movs))
	for _, m := range movs {
		data = append(data, movimientoStockToResponse(&m))
	}
	return &dto.MovimientoStockListResponse{Data: data, Total: total, Page: f.Page, Limit: f.Limit}, nil
}

const maxAlertas = 200

func (s *inventarioService) ObtenerAlertas(ctx context.Context) ([]dto.AlertaStockResponse, error) {
	productos, err := s.repo.ListBajoMinimo(ctx, maxAlertas)
	if err != nil {
		return nil, traducirError(err)
	}
	out := make([]dto.AlertaStockResponse, 0, len(productos))
	for _, p := range productos {
		out = append(out, dto.AlertaStockResponse{
			ProductoID:  p.ID.String(),
			Descripcion: p.Descripcion,
			StockActual: p.StockActual,
			StockMinimo: p.StockMinimo,
			Deficit:     p.Deficit(),
		})
	}
	return out, nil
}

func movimientoStockToResponse(m *model.MovimientoStock) dto.MovimientoStockResponse {
	return dto.MovimientoStockResponse{
		ID:            m.ID.String(),
		ProductoID:    m.ProductoID.String(),
		Tipo:          m.Tipo,
		Cantidad:      m.Cantidad,
		StockAnterior: m.StockAnterior,
		StockNuevo:    m.StockNuevo,
		Motivo:        m.Motivo,
		ReferenciaID:  uuidPtrString(m.ReferenciaID),
		UsuarioID:     uuidPtrString(m.UsuarioID),
		CreatedAt:     m.CreatedAt.Format(formatoFecha),
	}
}
