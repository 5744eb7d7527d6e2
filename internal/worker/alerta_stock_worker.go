package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"pipos/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// AlertaStockWorker re-reads the products a sale left low and logs the ones
// still below their minimum. Re-reading drops alerts already fixed by a
// restock between the sale and the job.
type AlertaStockWorker struct {
	productoRepo repository.ProductoRepository
}

func NewAlertaStockWorker(productoRepo repository.ProductoRepository) *AlertaStockWorker {
	return &AlertaStockWorker{productoRepo: productoRepo}
}

func (w *AlertaStockWorker) Process(ctx context.Context, raw json.RawMessage) error {
	var payload AlertaStockPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("%w: invalid payload: %v", ErrPermanente, err)
	}

	for _, s := range payload.ProductoIDs {
		id, err := uuid.Parse(s)
		if err != nil {
			log.Warn().Str("producto_id", s).Msg("alerta_stock_worker: invalid producto_id")
			continue
		}
		p, err := w.productoRepo.FindByID(ctx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				continue
			}
			return err
		}
		if p.Deficit() <= 0 {
			continue
		}
		log.Warn().
			Str("producto_id", s).
			Str("descripcion", p.Descripcion).
			Int("stock_actual", p.StockActual).
			Int("stock_minimo", p.StockMinimo).
			Msg("stock bajo minimo")
	}
	return nil
}
