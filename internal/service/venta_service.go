package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"pipos/internal/dto"
	"pipos/internal/infra"
	"pipos/internal/metrics"
	"pipos/internal/model"
	"pipos/internal/repository"
	"pipos/internal/worker"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type VentaService interface {
	RegistrarVenta(ctx context.Context, usuarioID uuid.UUID, req dto.RegistrarVentaRequest) (*dto.VentaResponse, error)
	// AnularVenta is idempotent: voiding a voided sale returns it unchanged.
	AnularVenta(ctx context.Context, usuarioID, ventaID uuid.UUID, motivo string) (*dto.VentaResponse, error)
	ObtenerVenta(ctx context.Context, id uuid.UUID) (*dto.VentaResponse, error)
	ObtenerTicket(ctx context.Context, id uuid.UUID) (*dto.TicketResponse, error)
	// TicketPDF returns the path of the rendered ticket, rendering it when the
	// background job has not run yet.
	TicketPDF(ctx context.Context, id uuid.UUID) (string, error)
	ListVentas(ctx context.Context, filter dto.VentaFilter) (*dto.VentaListResponse, error)
}

type ventaService struct {
	tx          repository.Transactor
	repo        repository.VentaRepository
	cajaRepo    repository.CajaRepository
	usuarioRepo repository.UsuarioRepository
	clienteRepo repository.ClienteRepository
	inventario  InventarioService
	folios      GeneradorFolio
	dispatcher  *worker.Dispatcher
	reglas      Reglas
}

func NewVentaService(
	tx repository.Transactor,
	repo repository.VentaRepository,
	cajaRepo repository.CajaRepository,
	usuarioRepo repository.UsuarioRepository,
	clienteRepo repository.ClienteRepository,
	inventario InventarioService,
	folios GeneradorFolio,
	dispatcher *worker.Dispatcher,
	reglas Reglas,
) VentaService {
	return &ventaService{
		tx:          tx,
		repo:        repo,
		cajaRepo:    cajaRepo,
		usuarioRepo: usuarioRepo,
		clienteRepo: clienteRepo,
		inventario:  inventario,
		folios:      folios,
		dispatcher:  dispatcher,
		reglas:      reglas,
	}
}

// lineaSolicitada is a validated request line.
type lineaSolicitada struct {
	productoID uuid.UUID
	cantidad   int
	precio     *decimal.Decimal
	descuento  decimal.Decimal
}

// ── RegistrarVenta ────────────────────────────────────────────────────────────
// One transaction per attempt:
//   1. shared period lock, so a closure cannot cut through the sale
//   2. stock decrements in product-id order (row locks, audit rows)
//   3. lines priced from the locked product snapshot, totals, payment check
//   4. header + lines insert; a taken sale number retries with a new one
// Ticket and low-stock jobs are dispatched after commit.

func (s *ventaService) RegistrarVenta(ctx context.Context, usuarioID uuid.UUID, req dto.RegistrarVentaRequest) (*dto.VentaResponse, error) {
	lineas, clienteID, err := s.validarVenta(req)
	if err != nil {
		return nil, err
	}

	if _, err := s.usuarioRepo.FindByID(ctx, usuarioID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, noEncontrado("usuario", usuarioID)
		}
		return nil, traducirError(err)
	}
	if clienteID != nil {
		if _, err := s.clienteRepo.FindByID(ctx, *clienteID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, noEncontrado("cliente", *clienteID)
			}
			return nil, traducirError(err)
		}
	}

	if req.OfflineID != nil {
		existente, err := s.repo.FindByOfflineID(ctx, *req.OfflineID)
		if err == nil {
			return ventaToResponse(existente), nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, traducirError(err)
		}
	}

	var (
		venta     *model.Venta
		productos map[uuid.UUID]*model.Producto
	)
	for intento := 1; ; intento++ {
		numero, err := s.folios.Siguiente(ctx)
		if err != nil {
			return nil, traducirError(err)
		}
		venta, productos, err = s.registrarTx(ctx, usuarioID, clienteID, numero, lineas, req)
		if err == nil {
			break
		}
		switch {
		case errors.Is(err, repository.ErrNumeroVentaDuplicado):
			metrics.FolioColisiones.Inc()
			log.Warn().Str("numero_venta", numero).Int("intento", intento).Msg("numero de venta duplicado, reintentando")
			if intento >= s.reglas.maxReintentos() {
				return nil, fmt.Errorf("%w: %d intentos", ErrNumeroVentaDuplicado, intento)
			}
			if rerr := s.folios.Resincronizar(ctx); rerr != nil {
				log.Warn().Err(rerr).Msg("no se pudo resincronizar el contador de folios")
			}
		case errors.Is(err, repository.ErrOfflineIDDuplicado):
			// A concurrent submission of the same offline sale won the race.
			existente, ferr := s.repo.FindByOfflineID(ctx, *req.OfflineID)
			if ferr != nil {
				return nil, traducirError(ferr)
			}
			return ventaToResponse(existente), nil
		default:
			return nil, traducirError(err)
		}
	}

	metrics.VentasRegistradas.WithLabelValues(venta.MetodoPago).Inc()
	metrics.VentasImporte.WithLabelValues(venta.MetodoPago).Add(venta.Total.InexactFloat64())
	log.Info().
		Str("venta_id", venta.ID.String()).
		Str("numero_venta", venta.NumeroVenta).
		Str("total", venta.Total.StringFixed(2)).
		Str("metodo_pago", venta.MetodoPago).
		Msg("venta registrada")

	s.despacharPostVenta(ctx, venta, productos)
	return ventaToResponse(venta), nil
}

func (s *ventaService) validarVenta(req dto.RegistrarVentaRequest) ([]lineaSolicitada, *uuid.UUID, error) {
	verr := nuevaValidacion()
	if len(req.Items) == 0 {
		verr.add("items", "la venta debe tener al menos un item")
	}

	lineas := make([]lineaSolicitada, 0, len(req.Items))
	for i, item := range req.Items {
		campo := fmt.Sprintf("items[%d]", i)
		pid, err := uuid.Parse(item.ProductoID)
		if err != nil {
			verr.add(campo+".producto_id", "uuid invalido")
		}
		if item.Cantidad <= 0 {
			verr.add(campo+".cantidad", "debe ser mayor a cero")
		}
		if item.PrecioUnitario != nil && item.PrecioUnitario.IsNegative() {
			verr.add(campo+".precio_unitario", "no puede ser negativo")
		}
		descuento := decimal.Zero
		if item.Descuento != nil {
			if item.Descuento.IsNegative() {
				verr.add(campo+".descuento", "no puede ser negativo")
			}
			descuento = item.Descuento.Round(2)
		}
		lineas = append(lineas, lineaSolicitada{
			productoID: pid,
			cantidad:   item.Cantidad,
			precio:     item.PrecioUnitario,
			descuento:  descuento,
		})
	}

	if !s.reglas.metodoValido(req.MetodoPago) {
		verr.add("metodo_pago", "debe ser uno de: "+strings.Join(s.reglas.MetodosPago, ", "))
	}
	if req.MontoPagado.IsNegative() {
		verr.add("monto_pagado", "no puede ser negativo")
	}
	if req.Descuento != nil && req.Descuento.IsNegative() {
		verr.add("descuento", "no puede ser negativo")
	}
	if req.Impuesto != nil && req.Impuesto.IsNegative() {
		verr.add("impuesto", "no puede ser negativo")
	}
	if req.PermitirStockNegativo && !s.reglas.PermitirStockNegativo {
		verr.add("permitir_stock_negativo", "el stock negativo esta deshabilitado")
	}
	if req.OfflineID != nil && strings.TrimSpace(*req.OfflineID) == "" {
		verr.add("offline_id", "no puede estar vacio")
	}

	var clienteID *uuid.UUID
	if req.ClienteID != nil {
		id, err := uuid.Parse(*req.ClienteID)
		if err != nil {
			verr.add("cliente_id", "uuid invalido")
		} else {
			clienteID = &id
		}
	}

	if !verr.vacia() {
		return nil, nil, verr
	}
	return lineas, clienteID, nil
}

func (s *ventaService) registrarTx(
	ctx context.Context,
	usuarioID uuid.UUID,
	clienteID *uuid.UUID,
	numero string,
	lineas []lineaSolicitada,
	req dto.RegistrarVentaRequest,
) (*model.Venta, map[uuid.UUID]*model.Producto, error) {
	ventaID := uuid.New()
	var (
		venta     *model.Venta
		productos map[uuid.UUID]*model.Producto
	)
	err := s.tx.Transaction(ctx, func(tx *gorm.DB) error {
		if err := s.cajaRepo.BloquearPeriodo(ctx, tx, false); err != nil {
			return err
		}
		// Taken under the period lock so the row cannot land behind a closure boundary.
		ahora, _, err := ahoraEnPeriodoAbierto(ctx, tx, s.cajaRepo, s.reglas)
		if err != nil {
			return err
		}

		op := OperacionStock{
			Tipo:             model.StockVenta,
			Motivo:           "Venta " + numero,
			ReferenciaID:     &ventaID,
			UsuarioID:        &usuarioID,
			PermitirNegativo: req.PermitirStockNegativo,
		}
		productos, err = s.decrementarEnOrden(ctx, tx, lineas, op)
		if err != nil {
			return err
		}

		venta, err = armarVenta(lineas, productos, req, s.reglas)
		if err != nil {
			return err
		}
		venta.ID = ventaID
		venta.NumeroVenta = numero
		venta.UsuarioID = usuarioID
		venta.ClienteID = clienteID
		venta.OfflineID = req.OfflineID
		venta.CreatedAt = ahora
		for i := range venta.Detalles {
			venta.Detalles[i].CreatedAt = ahora
		}
		return s.repo.Create(ctx, tx, venta)
	})
	if err != nil {
		return nil, nil, err
	}
	return venta, productos, nil
}

// decrementarEnOrden takes one row lock per distinct product, in ascending id
// order, so two sales sharing products always lock them in the same order.
func (s *ventaService) decrementarEnOrden(ctx context.Context, tx *gorm.DB, lineas []lineaSolicitada, op OperacionStock) (map[uuid.UUID]*model.Producto, error) {
	cantidades := make(map[uuid.UUID]int, len(lineas))
	for _, l := range lineas {
		cantidades[l.productoID] += l.cantidad
	}
	ids := idsOrdenados(cantidades)

	productos := make(map[uuid.UUID]*model.Producto, len(ids))
	for _, id := range ids {
		p, err := s.inventario.DecrementarTx(ctx, tx, id, cantidades[id], op)
		if err != nil {
			return nil, err
		}
		productos[id] = p
	}
	return productos, nil
}

// idsOrdenados is the lock order shared by every path that touches stock of
// several products in one transaction.
func idsOrdenados(cantidades map[uuid.UUID]int) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(cantidades))
	for id := range cantidades {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return bytes.Compare(ids[i][:], ids[j][:]) < 0 })
	return ids
}

// armarVenta prices the lines from the locked products and computes the
// totals. Money is rounded to cents before it is multiplied, so the stored
// line and header amounts add up exactly.
func armarVenta(lineas []lineaSolicitada, productos map[uuid.UUID]*model.Producto, req dto.RegistrarVentaRequest, reglas Reglas) (*model.Venta, error) {
	verr := nuevaValidacion()
	detalles := make([]model.DetalleVenta, 0, len(lineas))
	subtotal := decimal.Zero

	for i, l := range lineas {
		p := productos[l.productoID]
		precio := p.PrecioVenta
		if l.precio != nil {
			precio = *l.precio
		}
		precio = precio.Round(2)
		bruto := precio.Mul(decimal.NewFromInt(int64(l.cantidad)))
		if l.descuento.GreaterThan(bruto) {
			verr.add(fmt.Sprintf("items[%d].descuento", i), "supera el importe de la linea")
			continue
		}
		totalLinea := bruto.Sub(l.descuento)
		productoID := p.ID
		detalles = append(detalles, model.DetalleVenta{
			ID:             uuid.New(),
			Linea:          i + 1,
			ProductoID:     &productoID,
			CodigoBarras:   p.CodigoBarras,
			NombreProducto: p.Descripcion,
			PrecioUnitario: precio,
			Costo:          p.PrecioCosto,
			Cantidad:       l.cantidad,
			Descuento:      l.descuento,
			TotalLinea:     totalLinea,
		})
		subtotal = subtotal.Add(totalLinea)
	}
	if !verr.vacia() {
		return nil, verr
	}

	descuento := decimal.Zero
	if req.Descuento != nil {
		descuento = req.Descuento.Round(2)
	}
	if descuento.GreaterThan(subtotal) {
		return nil, errCampo("descuento", "supera el subtotal de la venta")
	}
	base := subtotal.Sub(descuento)

	impuesto := base.Mul(reglas.TasaImpuesto).Round(2)
	if req.Impuesto != nil {
		impuesto = req.Impuesto.Round(2)
	}
	total := base.Add(impuesto)

	pagado := req.MontoPagado.Round(2)
	if pagado.IsZero() && !reglas.esEfectivo(req.MetodoPago) {
		pagado = total
	}
	if pagado.LessThan(total) {
		return nil, errCampo("monto_pagado", "insuficiente, total "+total.StringFixed(2))
	}

	return &model.Venta{
		Subtotal:    subtotal,
		Descuento:   descuento,
		Impuesto:    impuesto,
		Total:       total,
		MetodoPago:  req.MetodoPago,
		MontoPagado: pagado,
		Cambio:      pagado.Sub(total),
		Detalles:    detalles,
	}, nil
}

func (s *ventaService) despacharPostVenta(ctx context.Context, v *model.Venta, productos map[uuid.UUID]*model.Producto) {
	if s.dispatcher == nil {
		return
	}
	if err := s.dispatcher.EnqueueTicket(ctx, v.ID); err != nil {
		log.Warn().Err(err).Str("venta_id", v.ID.String()).Msg("no se pudo encolar el ticket")
	}
	var bajos []uuid.UUID
	for id, p := range productos {
		if p.Deficit() > 0 {
			bajos = append(bajos, id)
		}
	}
	if len(bajos) == 0 {
		return
	}
	if err := s.dispatcher.EnqueueAlertaStock(ctx, bajos); err != nil {
		log.Warn().Err(err).Str("venta_id", v.ID.String()).Msg("no se pudo encolar la alerta de stock")
	}
}

// ── AnularVenta ───────────────────────────────────────────────────────────────
// The sale row is locked before the voided check, so two concurrent voids
// restore stock once. A cash sale already counted by a closed period stays in
// that closure; its refund is recorded as an egreso of the open period.

func (s *ventaService) AnularVenta(ctx context.Context, usuarioID, ventaID uuid.UUID, motivo string) (*dto.VentaResponse, error) {
	motivo = strings.TrimSpace(motivo)
	var (
		venta     *model.Venta
		yaAnulada bool
		reembolso bool
	)
	err := s.tx.Transaction(ctx, func(tx *gorm.DB) error {
		if err := s.cajaRepo.BloquearPeriodo(ctx, tx, false); err != nil {
			return err
		}
		v, err := s.repo.FindForUpdate(ctx, tx, ventaID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return noEncontrado("venta", ventaID)
			}
			return err
		}
		venta = v
		if v.Anulada() {
			yaAnulada = true
			return nil
		}
		ahora, ultimo, err := ahoraEnPeriodoAbierto(ctx, tx, s.cajaRepo, s.reglas)
		if err != nil {
			return err
		}

		descripcion := "Anulacion venta " + v.NumeroVenta
		if motivo != "" {
			descripcion += ": " + motivo
		}

		if s.reglas.RestaurarStockAnular {
			op := OperacionStock{
				Tipo:         model.StockAnulacion,
				Motivo:       descripcion,
				ReferenciaID: &v.ID,
				UsuarioID:    &usuarioID,
			}
			cantidades := make(map[uuid.UUID]int, len(v.Detalles))
			for _, d := range v.Detalles {
				if d.ProductoID != nil {
					cantidades[*d.ProductoID] += d.Cantidad
				}
			}
			for _, id := range idsOrdenados(cantidades) {
				if _, err := s.inventario.IncrementarTx(ctx, tx, id, cantidades[id], op); err != nil {
					return err
				}
			}
		}

		if err := s.repo.MarcarAnulada(ctx, tx, v.ID, ahora); err != nil {
			return err
		}
		v.DeletedAt = gorm.DeletedAt{Time: ahora, Valid: true}

		if !s.reglas.esEfectivo(v.MetodoPago) || !v.Total.IsPositive() {
			return nil
		}
		if ultimo == nil || v.CreatedAt.After(ultimo.CreatedAt) {
			return nil
		}
		reembolso = true
		return s.cajaRepo.CreateMovimiento(ctx, tx, &model.MovimientoCaja{
			ID:          uuid.New(),
			Tipo:        model.MovimientoEgreso,
			Monto:       v.Total,
			Descripcion: "Reembolso venta anulada " + v.NumeroVenta,
			UsuarioID:   usuarioID,
			VentaID:     &v.ID,
			CreatedAt:   ahora,
			UpdatedAt:   ahora,
		})
	})
	if err != nil {
		return nil, traducirError(err)
	}

	if !yaAnulada {
		metrics.VentasAnuladas.Inc()
		log.Info().
			Str("venta_id", venta.ID.String()).
			Str("numero_venta", venta.NumeroVenta).
			Bool("reembolso_caja", reembolso).
			Msg("venta anulada")
	}
	return ventaToResponse(venta), nil
}

// ── Consultas ─────────────────────────────────────────────────────────────────

func (s *ventaService) ObtenerVenta(ctx context.Context, id uuid.UUID) (*dto.VentaResponse, error) {
	v, err := s.buscar(ctx, id)
	if err != nil {
		return nil, err
	}
	return ventaToResponse(v), nil
}

func (s *ventaService) ObtenerTicket(ctx context.Context, id uuid.UUID) (*dto.TicketResponse, error) {
	v, err := s.buscar(ctx, id)
	if err != nil {
		return nil, err
	}
	return ventaToTicket(v, s.reglas.NombreNegocio), nil
}

func (s *ventaService) TicketPDF(ctx context.Context, id uuid.UUID) (string, error) {
	v, err := s.buscar(ctx, id)
	if err != nil {
		return "", err
	}
	path := filepath.Join(s.reglas.DirTickets, infra.TicketFileName(v))
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}
	path, err = infra.GenerateTicketPDF(v, s.reglas.NombreNegocio, s.reglas.DirTickets)
	if err != nil {
		return "", traducirError(err)
	}
	return path, nil
}

// buscar loads a sale, voided included, mapping a miss to NotFound.
func (s *ventaService) buscar(ctx context.Context, id uuid.UUID) (*model.Venta, error) {
	v, err := s.repo.FindByID(ctx, id, true)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, noEncontrado("venta", id)
		}
		return nil, traducirError(err)
	}
	return v, nil
}

// ListVentas returns a paginated list of sales. Default filter: today's
// non-voided sales.
func (s *ventaService) ListVentas(ctx context.Context, filter dto.VentaFilter) (*dto.VentaListResponse, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 {
		filter.Limit = 50
	}
	ventas, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, traducirError(err)
	}
	items := make([]dto.VentaListItem, 0, len(ventas))
	for _, v := range ventas {
		items = append(items, dto.VentaListItem{
			ID:          v.ID.String(),
			NumeroVenta: v.NumeroVenta,
			UsuarioID:   v.UsuarioID.String(),
			ClienteID:   uuidPtrString(v.ClienteID),
			Total:       v.Total,
			MetodoPago:  v.MetodoPago,
			Anulada:     v.Anulada(),
			CreatedAt:   v.CreatedAt.Format(formatoFecha),
		})
	}
	return &dto.VentaListResponse{
		Data:  items,
		Total: total,
		Page:  filter.Page,
		Limit: filter.Limit,
	}, nil
}

func ventaToResponse(v *model.Venta) *dto.VentaResponse {
	detalles := make([]dto.DetalleVentaResponse, 0, len(v.Detalles))
	for _, d := range v.Detalles {
		detalles = append(detalles, dto.DetalleVentaResponse{
			ID:             d.ID.String(),
			ProductoID:     uuidPtrString(d.ProductoID),
			CodigoBarras:   d.CodigoBarras,
			NombreProducto: d.NombreProducto,
			PrecioUnitario: d.PrecioUnitario,
			Costo:          d.Costo,
			Cantidad:       d.Cantidad,
			Descuento:      d.Descuento,
			TotalLinea:     d.TotalLinea,
		})
	}
	resp := &dto.VentaResponse{
		ID:          v.ID.String(),
		NumeroVenta: v.NumeroVenta,
		ClienteID:   uuidPtrString(v.ClienteID),
		UsuarioID:   v.UsuarioID.String(),
		Detalles:    detalles,
		Subtotal:    v.Subtotal,
		Descuento:   v.Descuento,
		Impuesto:    v.Impuesto,
		Total:       v.Total,
		MetodoPago:  v.MetodoPago,
		MontoPagado: v.MontoPagado,
		Cambio:      v.Cambio,
		Anulada:     v.Anulada(),
		CreatedAt:   v.CreatedAt.Format(formatoFecha),
	}
	if v.Anulada() {
		resp.AnuladaAt = timePtrString(&v.DeletedAt.Time)
	}
	return resp
}

func ventaToTicket(v *model.Venta, negocio string) *dto.TicketResponse {
	lineas := make([]dto.LineaTicket, 0, len(v.Detalles))
	for _, d := range v.Detalles {
		lineas = append(lineas, dto.LineaTicket{
			Descripcion:    d.NombreProducto,
			CodigoBarras:   d.CodigoBarras,
			Cantidad:       d.Cantidad,
			PrecioUnitario: d.PrecioUnitario,
			Descuento:      d.Descuento,
			TotalLinea:     d.TotalLinea,
		})
	}
	return &dto.TicketResponse{
		Negocio:     negocio,
		NumeroVenta: v.NumeroVenta,
		Fecha:       v.CreatedAt.Format(formatoFecha),
		Lineas:      lineas,
		Subtotal:    v.Subtotal,
		Descuento:   v.Descuento,
		Impuesto:    v.Impuesto,
		Total:       v.Total,
		MetodoPago:  v.MetodoPago,
		MontoPagado: v.MontoPagado,
		Cambio:      v.Cambio,
		Anulada:     v.Anulada(),
	}
}
