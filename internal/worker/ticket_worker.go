package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"pipos/internal/infra"
	"pipos/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// TicketWorker renders the PDF ticket of a committed sale so the reprint
// endpoint finds it already on disk.
type TicketWorker struct {
	ventaRepo   repository.VentaRepository
	negocio     string
	storagePath string
}

func NewTicketWorker(ventaRepo repository.VentaRepository, negocio, storagePath string) *TicketWorker {
	return &TicketWorker{ventaRepo: ventaRepo, negocio: negocio, storagePath: storagePath}
}

func (w *TicketWorker) Process(ctx context.Context, raw json.RawMessage) error {
	var payload TicketPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("%w: invalid payload: %v", ErrPermanente, err)
	}
	ventaID, err := uuid.Parse(payload.VentaID)
	if err != nil {
		return fmt.Errorf("%w: invalid venta_id %q", ErrPermanente, payload.VentaID)
	}

	venta, err := w.ventaRepo.FindByID(ctx, ventaID, true)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: venta %s not found", ErrPermanente, ventaID)
		}
		return err
	}

	path, err := infra.GenerateTicketPDF(venta, w.negocio, w.storagePath)
	if err != nil {
		return err
	}
	log.Info().Str("pdf", path).Str("venta_id", payload.VentaID).Msg("ticket_worker: PDF generated")
	return nil
}
