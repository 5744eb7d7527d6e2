package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"pipos/internal/dto"
	"pipos/internal/model"
	"pipos/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ── In-memory store ───────────────────────────────────────────────────────────
// memStore backs every repository stub. Transactions are serialized and roll
// back by restoring a snapshot, which is enough to observe the service-level
// atomicity the real database provides.

type memStore struct {
	txMu sync.Mutex // one transaction at a time
	mu   sync.Mutex // guards the maps

	productos map[uuid.UUID]model.Producto
	ventas    map[uuid.UUID]model.Venta
	movsCaja  map[uuid.UUID]model.MovimientoCaja
	cortes    []model.CorteCaja
	movsStock []model.MovimientoStock
	usuarios  map[uuid.UUID]model.Usuario
	clientes  map[uuid.UUID]model.Cliente

	// colisionesFolio makes the next N VentaRepository.Create calls fail with
	// ErrNumeroVentaDuplicado.
	colisionesFolio int
	locks           []bool // BloquearPeriodo calls, true = exclusive
}

func newMemStore() *memStore {
	return &memStore{
		productos: make(map[uuid.UUID]model.Producto),
		ventas:    make(map[uuid.UUID]model.Venta),
		movsCaja:  make(map[uuid.UUID]model.MovimientoCaja),
		usuarios:  make(map[uuid.UUID]model.Usuario),
		clientes:  make(map[uuid.UUID]model.Cliente),
	}
}

type memSnapshot struct {
	productos map[uuid.UUID]model.Producto
	ventas    map[uuid.UUID]model.Venta
	movsCaja  map[uuid.UUID]model.MovimientoCaja
	cortes    []model.CorteCaja
	movsStock []model.MovimientoStock
}

func (s *memStore) snapshot() memSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := memSnapshot{
		productos: make(map[uuid.UUID]model.Producto, len(s.productos)),
		ventas:    make(map[uuid.UUID]model.Venta, len(s.ventas)),
		movsCaja:  make(map[uuid.UUID]model.MovimientoCaja, len(s.movsCaja)),
		cortes:    append([]model.CorteCaja(nil), s.cortes...),
		movsStock: append([]model.MovimientoStock(nil), s.movsStock...),
	}
	for k, v := range s.productos {
		snap.productos[k] = v
	}
	for k, v := range s.ventas {
		snap.ventas[k] = copiarVenta(v)
	}
	for k, v := range s.movsCaja {
		snap.movsCaja[k] = v
	}
	return snap
}

func (s *memStore) restore(snap memSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.productos = snap.productos
	s.ventas = snap.ventas
	s.movsCaja = snap.movsCaja
	s.cortes = snap.cortes
	s.movsStock = snap.movsStock
}

func copiarVenta(v model.Venta) model.Venta {
	v.Detalles = append([]model.DetalleVenta(nil), v.Detalles...)
	return v
}

// Transaction implements repository.Transactor.
func (s *memStore) Transaction(_ context.Context, fn func(tx *gorm.DB) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	snap := s.snapshot()
	if err := fn(nil); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

// ── Seed helpers ──────────────────────────────────────────────────────────────

func (s *memStore) addProducto(descripcion string, precio string, stock, minimo int) model.Producto {
	p := model.Producto{
		ID:          uuid.New(),
		Descripcion: descripcion,
		PrecioCosto: decimal.RequireFromString(precio).Div(decimal.NewFromInt(2)).Round(2),
		PrecioVenta: decimal.RequireFromString(precio),
		StockActual: stock,
		StockMinimo: minimo,
	}
	s.mu.Lock()
	s.productos[p.ID] = p
	s.mu.Unlock()
	return p
}

func (s *memStore) addUsuario(rol string) model.Usuario {
	u := model.Usuario{ID: uuid.New(), Username: rol + "-" + uuid.NewString()[:6], Nombre: rol, Rol: rol, Activo: true}
	s.mu.Lock()
	s.usuarios[u.ID] = u
	s.mu.Unlock()
	return u
}

func (s *memStore) producto(id uuid.UUID) model.Producto {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.productos[id]
}

func (s *memStore) eliminarProducto(id uuid.UUID, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.productos[id]
	p.DeletedAt = gorm.DeletedAt{Time: at, Valid: true}
	s.productos[id] = p
}

func (s *memStore) stockDe(id uuid.UUID) []model.MovimientoStock {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.MovimientoStock
	for _, m := range s.movsStock {
		if m.ProductoID == id {
			out = append(out, m)
		}
	}
	return out
}

func (s *memStore) cantidadVentas() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ventas)
}

func (s *memStore) movimientosCaja() []model.MovimientoCaja {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.MovimientoCaja, 0, len(s.movsCaja))
	for _, m := range s.movsCaja {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func enRango(t, desde time.Time, hasta *time.Time) bool {
	return t.After(desde) && (hasta == nil || !t.After(*hasta))
}

// ── ProductoRepository ────────────────────────────────────────────────────────

type memProductos struct{ s *memStore }

func (r memProductos) FindByID(_ context.Context, id uuid.UUID) (*model.Producto, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.productos[id]
	if !ok || p.DeletedAt.Valid {
		return nil, gorm.ErrRecordNotFound
	}
	return &p, nil
}

func (r memProductos) FindForUpdate(_ context.Context, _ *gorm.DB, id uuid.UUID, incluirEliminados bool) (*model.Producto, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.productos[id]
	if !ok || (p.DeletedAt.Valid && !incluirEliminados) {
		return nil, gorm.ErrRecordNotFound
	}
	return &p, nil
}

func (r memProductos) UpdateStock(_ context.Context, _ *gorm.DB, id uuid.UUID, stock int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.productos[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	p.StockActual = stock
	r.s.productos[id] = p
	return nil
}

func (r memProductos) ListBajoMinimo(_ context.Context, limit int) ([]model.Producto, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.Producto
	for _, p := range r.s.productos {
		if !p.DeletedAt.Valid && p.StockActual < p.StockMinimo {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Deficit() > out[j].Deficit() })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

var _ repository.ProductoRepository = memProductos{}

// ── VentaRepository ───────────────────────────────────────────────────────────

type memVentas struct{ s *memStore }

func (r memVentas) Create(_ context.Context, _ *gorm.DB, v *model.Venta) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.colisionesFolio > 0 {
		r.s.colisionesFolio--
		return repository.ErrNumeroVentaDuplicado
	}
	for _, existente := range r.s.ventas {
		if existente.NumeroVenta == v.NumeroVenta {
			return repository.ErrNumeroVentaDuplicado
		}
		if v.OfflineID != nil && existente.OfflineID != nil && *existente.OfflineID == *v.OfflineID {
			return repository.ErrOfflineIDDuplicado
		}
	}
	for i := range v.Detalles {
		v.Detalles[i].VentaID = v.ID
	}
	r.s.ventas[v.ID] = copiarVenta(*v)
	return nil
}

func (r memVentas) FindByID(_ context.Context, id uuid.UUID, incluirAnuladas bool) (*model.Venta, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	v, ok := r.s.ventas[id]
	if !ok || (v.Anulada() && !incluirAnuladas) {
		return nil, gorm.ErrRecordNotFound
	}
	v = copiarVenta(v)
	return &v, nil
}

func (r memVentas) FindByOfflineID(_ context.Context, offlineID string) (*model.Venta, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, v := range r.s.ventas {
		if v.OfflineID != nil && *v.OfflineID == offlineID {
			v = copiarVenta(v)
			return &v, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r memVentas) FindForUpdate(ctx context.Context, _ *gorm.DB, id uuid.UUID) (*model.Venta, error) {
	return r.FindByID(ctx, id, true)
}

func (r memVentas) MarcarAnulada(_ context.Context, _ *gorm.DB, id uuid.UUID, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	v, ok := r.s.ventas[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	v.DeletedAt = gorm.DeletedAt{Time: at, Valid: true}
	r.s.ventas[id] = v
	return nil
}

func (r memVentas) SumarTotalesPorMetodo(_ context.Context, _ *gorm.DB, desde time.Time, hasta *time.Time) (map[string]decimal.Decimal, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make(map[string]decimal.Decimal)
	for _, v := range r.s.ventas {
		if v.Anulada() || !enRango(v.CreatedAt, desde, hasta) {
			continue
		}
		out[v.MetodoPago] = out[v.MetodoPago].Add(v.Total)
	}
	return out, nil
}

func (r memVentas) List(_ context.Context, filter dto.VentaFilter) ([]model.Venta, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.Venta
	for _, v := range r.s.ventas {
		if v.Anulada() && !filter.IncluirAnuladas {
			continue
		}
		if filter.MetodoPago != "" && v.MetodoPago != filter.MetodoPago {
			continue
		}
		out = append(out, copiarVenta(v))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, int64(len(out)), nil
}

func (r memVentas) UltimoNumero(_ context.Context, prefijo string) (string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var ultimo string
	for _, v := range r.s.ventas {
		if _, ok := secuenciaFolio(v.NumeroVenta, prefijo); !ok {
			continue
		}
		if len(v.NumeroVenta) > len(ultimo) || (len(v.NumeroVenta) == len(ultimo) && v.NumeroVenta > ultimo) {
			ultimo = v.NumeroVenta
		}
	}
	return ultimo, nil
}

var _ repository.VentaRepository = memVentas{}

// ── CajaRepository ────────────────────────────────────────────────────────────

type memCaja struct{ s *memStore }

func (r memCaja) BloquearPeriodo(_ context.Context, _ *gorm.DB, exclusivo bool) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.locks = append(r.s.locks, exclusivo)
	return nil
}

func (r memCaja) CreateMovimiento(_ context.Context, _ *gorm.DB, m *model.MovimientoCaja) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.movsCaja[m.ID] = *m
	return nil
}

func (r memCaja) FindMovimientoByID(_ context.Context, _ *gorm.DB, id uuid.UUID) (*model.MovimientoCaja, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.movsCaja[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &m, nil
}

func (r memCaja) UpdateMovimiento(_ context.Context, _ *gorm.DB, m *model.MovimientoCaja) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.movsCaja[m.ID] = *m
	return nil
}

func (r memCaja) DeleteMovimiento(_ context.Context, _ *gorm.DB, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.movsCaja, id)
	return nil
}

func (r memCaja) ListMovimientos(_ context.Context, desde time.Time) ([]model.MovimientoCaja, error) {
	var out []model.MovimientoCaja
	for _, m := range r.s.movimientosCaja() {
		if m.CreatedAt.After(desde) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r memCaja) SumarMovimientos(_ context.Context, _ *gorm.DB, desde time.Time, hasta *time.Time) (decimal.Decimal, decimal.Decimal, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ingresos, egresos := decimal.Zero, decimal.Zero
	for _, m := range r.s.movsCaja {
		if !enRango(m.CreatedAt, desde, hasta) {
			continue
		}
		if m.Tipo == model.MovimientoIngreso {
			ingresos = ingresos.Add(m.Monto)
		} else {
			egresos = egresos.Add(m.Monto)
		}
	}
	return ingresos, egresos, nil
}

func (r memCaja) UltimoCorte(_ context.Context, _ *gorm.DB) (*model.CorteCaja, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if len(r.s.cortes) == 0 {
		return nil, nil
	}
	c := r.s.cortes[len(r.s.cortes)-1]
	return &c, nil
}

func (r memCaja) CreateCorte(_ context.Context, _ *gorm.DB, c *model.CorteCaja) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.cortes = append(r.s.cortes, *c)
	return nil
}

func (r memCaja) FindCorteByID(_ context.Context, id uuid.UUID) (*model.CorteCaja, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, c := range r.s.cortes {
		if c.ID == id {
			return &c, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r memCaja) ListCortes(_ context.Context, page, limit int) ([]model.CorteCaja, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]model.CorteCaja, 0, len(r.s.cortes))
	for i := len(r.s.cortes) - 1; i >= 0; i-- {
		out = append(out, r.s.cortes[i])
	}
	total := int64(len(out))
	start := (page - 1) * limit
	if start > len(out) {
		start = len(out)
	}
	end := start + limit
	if end > len(out) {
		end = len(out)
	}
	return out[start:end], total, nil
}

var _ repository.CajaRepository = memCaja{}

// ── MovimientoStockRepository ─────────────────────────────────────────────────

type memStock struct{ s *memStore }

func (r memStock) Create(_ context.Context, _ *gorm.DB, m *model.MovimientoStock) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.movsStock = append(r.s.movsStock, *m)
	return nil
}

func (r memStock) List(_ context.Context, f repository.MovimientoStockFilter) ([]model.MovimientoStock, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.MovimientoStock
	for _, m := range r.s.movsStock {
		if f.ProductoID != nil && m.ProductoID != *f.ProductoID {
			continue
		}
		if f.Tipo != "" && m.Tipo != f.Tipo {
			continue
		}
		out = append(out, m)
	}
	return out, int64(len(out)), nil
}

var _ repository.MovimientoStockRepository = memStock{}

// ── UsuarioRepository / ClienteRepository ─────────────────────────────────────

type memUsuarios struct{ s *memStore }

func (r memUsuarios) FindByUsername(_ context.Context, username string) (*model.Usuario, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.usuarios {
		if u.Username == username && u.Activo {
			return &u, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r memUsuarios) FindByID(_ context.Context, id uuid.UUID) (*model.Usuario, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.usuarios[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &u, nil
}

func (r memUsuarios) Upsert(_ context.Context, u *model.Usuario) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, existente := range r.s.usuarios {
		if existente.Username == u.Username {
			existente.Nombre = u.Nombre
			existente.PasswordHash = u.PasswordHash
			existente.Rol = u.Rol
			existente.Activo = true
			r.s.usuarios[id] = existente
			return nil
		}
	}
	r.s.usuarios[u.ID] = *u
	return nil
}

var _ repository.UsuarioRepository = memUsuarios{}

type memClientes struct{ s *memStore }

func (r memClientes) FindByID(_ context.Context, id uuid.UUID) (*model.Cliente, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.clientes[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &c, nil
}

var _ repository.ClienteRepository = memClientes{}

// ── Clock and folios ──────────────────────────────────────────────────────────

// relojFalso advances one second per reading, so call order is time order.
type relojFalso struct {
	mu sync.Mutex
	t  time.Time
}

func newReloj() *relojFalso {
	return &relojFalso{t: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (r *relojFalso) Now() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.t = r.t.Add(time.Second)
	return r.t
}

func (r *relojFalso) retroceder(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.t = r.t.Add(-d)
}

const prefijoFolioPrueba = "T-20240301-"

// foliosSecuenciales behaves like a counter that lost its state: it starts at
// 1 regardless of what is stored, until Resincronizar reads the store.
type foliosSecuenciales struct {
	mu      sync.Mutex
	n       int64
	numeros NumerosVenta
	resyncs int
}

func (f *foliosSecuenciales) Siguiente(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.n++
	return fmt.Sprintf("%s%05d", prefijoFolioPrueba, f.n), nil
}

func (f *foliosSecuenciales) Resincronizar(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resyncs++
	if f.numeros == nil {
		return nil
	}
	ultimo, err := f.numeros.UltimoNumero(ctx, prefijoFolioPrueba)
	if err != nil {
		return err
	}
	if n, ok := secuenciaFolio(ultimo, prefijoFolioPrueba); ok && n > f.n {
		f.n = n
	}
	return nil
}

// ── Fixture ───────────────────────────────────────────────────────────────────

type fixture struct {
	store      *memStore
	reloj      *relojFalso
	reglas     Reglas
	folios     *foliosSecuenciales
	inventario InventarioService
	ventas     VentaService
	caja       CajaService
	cajero     model.Usuario
}

func reglasDePrueba(reloj *relojFalso) Reglas {
	return Reglas{
		TasaImpuesto:         decimal.Zero,
		MetodosPago:          []string{"efectivo", "tarjeta", "transferencia"},
		MetodosEfectivo:      []string{"efectivo"},
		RestaurarStockAnular: true,
		MaxReintentosFolio:   3,
		NombreNegocio:        "Pipos Test",
		Reloj:                reloj.Now,
	}
}

func newFixture(mods ...func(*Reglas)) *fixture {
	store := newMemStore()
	reloj := newReloj()
	reglas := reglasDePrueba(reloj)
	for _, m := range mods {
		m(&reglas)
	}
	inventario := NewInventarioService(store, memProductos{store}, memStock{store}, reglas)
	folios := &foliosSecuenciales{numeros: memVentas{store}}
	ventas := NewVentaService(
		store, memVentas{store}, memCaja{store}, memUsuarios{store}, memClientes{store},
		inventario, folios, nil, reglas,
	)
	caja := NewCajaService(store, memCaja{store}, memVentas{store}, reglas)
	return &fixture{
		store:      store,
		reloj:      reloj,
		reglas:     reglas,
		folios:     folios,
		inventario: inventario,
		ventas:     ventas,
		caja:       caja,
		cajero:     store.addUsuario(model.RolCajero),
	}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

// venta builds a one-line request.
func venta(productoID uuid.UUID, cantidad int, metodo string, pagado string) dto.RegistrarVentaRequest {
	return dto.RegistrarVentaRequest{
		Items:       []dto.ItemVentaRequest{{ProductoID: productoID.String(), Cantidad: cantidad}},
		MetodoPago:  metodo,
		MontoPagado: dec(pagado),
	}
}
