package service

import (
	"slices"
	"time"

	"pipos/internal/config"

	"github.com/shopspring/decimal"
)

// Reglas are the business settings the services read. They are fixed at
// startup and passed explicitly; nothing reads configuration at call time.
type Reglas struct {
	TasaImpuesto          decimal.Decimal
	MetodosPago           []string
	MetodosEfectivo       []string
	PermitirStockNegativo bool
	RestaurarStockAnular  bool
	MaxReintentosFolio    int
	NombreNegocio         string
	DirTickets            string
	// Reloj is the single time source for created_at values and period
	// boundaries. Defaults to time.Now in UTC.
	Reloj func() time.Time
}

// ReglasDesdeConfig derives the business settings from a validated Config.
func ReglasDesdeConfig(cfg *config.Config) Reglas {
	tasa, _ := cfg.TasaImpuesto()
	return Reglas{
		TasaImpuesto:          tasa,
		MetodosPago:           cfg.PaymentMethods,
		MetodosEfectivo:       cfg.CashPaymentMethods,
		PermitirStockNegativo: cfg.AllowNegativeStock,
		RestaurarStockAnular:  cfg.RestockOnVoid,
		MaxReintentosFolio:    cfg.SaleNumberMaxRetries,
		NombreNegocio:         cfg.BusinessName,
		DirTickets:            cfg.TicketStoragePath,
	}
}

func (r Reglas) ahora() time.Time {
	if r.Reloj != nil {
		return r.Reloj().UTC()
	}
	return time.Now().UTC().Truncate(time.Microsecond)
}

func (r Reglas) metodoValido(m string) bool { return slices.Contains(r.MetodosPago, m) }

func (r Reglas) esEfectivo(m string) bool { return slices.Contains(r.MetodosEfectivo, m) }

func (r Reglas) maxReintentos() int {
	if r.MaxReintentosFolio < 1 {
		return 1
	}
	return r.MaxReintentosFolio
}
