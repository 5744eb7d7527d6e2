package model

import "sort"

// Capacidad names one permission checked at the HTTP edge.
type Capacidad string

const (
	CapRegistrarVenta  Capacidad = "ventas:registrar"
	CapAnularVenta     Capacidad = "ventas:anular"
	CapAjustarStock    Capacidad = "stock:ajustar"
	CapMovimientosCaja Capacidad = "caja:movimientos"
	CapConsultarCaja   Capacidad = "caja:consultar"
	CapCerrarCaja      Capacidad = "caja:cerrar"
	CapVerReportes     Capacidad = "reportes:ver"
)

const (
	RolCajero        = "cajero"
	RolSupervisor    = "supervisor"
	RolAdministrador = "administrador"
)

// Capacidades is an immutable permission set.
type Capacidades map[Capacidad]struct{}

func nuevasCapacidades(caps ...Capacidad) Capacidades {
	c := make(Capacidades, len(caps))
	for _, cap := range caps {
		c[cap] = struct{}{}
	}
	return c
}

var capacidadesPorRol = map[string]Capacidades{
	RolCajero: nuevasCapacidades(
		CapRegistrarVenta,
		CapMovimientosCaja,
		CapCerrarCaja,
	),
	RolSupervisor: nuevasCapacidades(
		CapRegistrarVenta,
		CapAnularVenta,
		CapAjustarStock,
		CapMovimientosCaja,
		CapConsultarCaja,
		CapCerrarCaja,
		CapVerReportes,
	),
	RolAdministrador: nuevasCapacidades(
		CapRegistrarVenta,
		CapAnularVenta,
		CapAjustarStock,
		CapMovimientosCaja,
		CapConsultarCaja,
		CapCerrarCaja,
		CapVerReportes,
	),
}

// CapacidadesDeRol returns the permission set granted to rol. Unknown roles get
// an empty set.
func CapacidadesDeRol(rol string) Capacidades {
	if c, ok := capacidadesPorRol[rol]; ok {
		return c
	}
	return Capacidades{}
}

// RolValido reports whether rol is one of the known roles.
func RolValido(rol string) bool {
	_, ok := capacidadesPorRol[rol]
	return ok
}

// Tiene reports whether every requested capability is present.
func (c Capacidades) Tiene(req ...Capacidad) bool {
	for _, r := range req {
		if _, ok := c[r]; !ok {
			return false
		}
	}
	return true
}

// Nombres lists the capabilities in sorted order.
func (c Capacidades) Nombres() []string {
	out := make([]string, 0, len(c))
	for cap := range c {
		out = append(out, string(cap))
	}
	sort.Strings(out)
	return out
}
