package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"pipos/internal/metrics"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	QueueTickets      = "jobs:tickets"
	QueueAlertasStock = "jobs:alertas_stock"
)

const (
	JobTicket      = "ticket"
	JobAlertaStock = "alerta_stock"
)

// maxAttempts bounds the in-process retries before a job goes to the DLQ.
const maxAttempts = 3

// Job is the generic envelope for all async tasks.
type Job struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Handler processes one job payload. A returned error triggers a retry;
// ErrPermanente skips the retries and goes straight to the DLQ.
type Handler interface {
	Process(ctx context.Context, payload json.RawMessage) error
}

// ErrPermanente marks a failure that retrying cannot fix (bad payload,
// missing row).
var ErrPermanente = errors.New("permanent job failure")

// Dispatcher enqueues async jobs into Redis lists. The worker pool dequeues
// them via BRPOP. A nil Dispatcher, or one without Redis, drops jobs: they are
// side effects of a committed sale and never block it.
type Dispatcher struct {
	rdb *redis.Client
}

func NewDispatcher(rdb *redis.Client) *Dispatcher {
	return &Dispatcher{rdb: rdb}
}

// TicketPayload asks for the PDF ticket of a committed sale.
type TicketPayload struct {
	VentaID string `json:"venta_id"`
}

// AlertaStockPayload lists products left below their minimum stock.
type AlertaStockPayload struct {
	ProductoIDs []string `json:"producto_ids"`
}

// EnqueueTicket pushes a ticket rendering job.
func (d *Dispatcher) EnqueueTicket(ctx context.Context, ventaID uuid.UUID) error {
	return d.enqueue(ctx, QueueTickets, JobTicket, TicketPayload{VentaID: ventaID.String()})
}

// EnqueueAlertaStock pushes a low-stock alert job.
func (d *Dispatcher) EnqueueAlertaStock(ctx context.Context, productoIDs []uuid.UUID) error {
	ids := make([]string, 0, len(productoIDs))
	for _, id := range productoIDs {
		ids = append(ids, id.String())
	}
	return d.enqueue(ctx, QueueAlertasStock, JobAlertaStock, AlertaStockPayload{ProductoIDs: ids})
}

func (d *Dispatcher) enqueue(ctx context.Context, queue, jobType string, payload interface{}) error {
	if d == nil || d.rdb == nil {
		return nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(Job{Type: jobType, Payload: data})
	if err != nil {
		return err
	}
	return d.rdb.LPush(ctx, queue, encoded).Err()
}

// Pool consumes the job queues with a fixed number of goroutines.
type Pool struct {
	rdb      *redis.Client
	handlers map[string]Handler // by queue
}

func NewPool(rdb *redis.Client, handlers map[string]Handler) *Pool {
	return &Pool{rdb: rdb, handlers: handlers}
}

// Start launches numWorkers goroutines consuming every registered queue.
// Each goroutine blocks on BRPOP, so idle workers cost nothing.
func (p *Pool) Start(ctx context.Context, numWorkers int) {
	queues := make([]string, 0, len(p.handlers))
	for q := range p.handlers {
		queues = append(queues, q)
	}
	for i := 0; i < numWorkers; i++ {
		go p.run(ctx, i, queues)
	}
	log.Info().Msgf("worker pool started with %d workers", numWorkers)
}

func (p *Pool) run(ctx context.Context, id int, queues []string) {
	for {
		select {
		case <-ctx.Done():
			log.Info().Msgf("worker %d shutting down", id)
			return
		default:
			// Blocking pop: waits up to 5s then loops to check ctx
			result, err := p.rdb.BRPop(ctx, 5*time.Second, queues...).Result()
			if err != nil {
				if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
					log.Warn().Err(err).Int("worker", id).Msg("BRPOP failed")
					time.Sleep(time.Second)
				}
				continue
			}
			if len(result) < 2 {
				continue
			}
			p.processJob(ctx, result[0], result[1])
		}
	}
}

func (p *Pool) processJob(ctx context.Context, queue, raw string) {
	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		log.Error().Str("queue", queue).Err(err).Msg("failed to unmarshal job")
		SendToDLQ(ctx, p.rdb, queue, "desconocido", json.RawMessage(raw), err.Error(), 0)
		return
	}
	h, ok := p.handlers[queue]
	if !ok {
		log.Error().Str("queue", queue).Msg("no handler for queue")
		return
	}

	attempts, err := withRetry(ctx, maxAttempts, func(attempt int) error {
		err := h.Process(ctx, job.Payload)
		if err != nil && !errors.Is(err, ErrPermanente) {
			log.Warn().Err(err).Str("type", job.Type).Int("attempt", attempt+1).Msg("job attempt failed")
		}
		return err
	})
	if err != nil {
		metrics.JobsProcesados.WithLabelValues(job.Type, "dlq").Inc()
		SendToDLQ(ctx, p.rdb, queue, job.Type, job.Payload, err.Error(), attempts)
		return
	}
	metrics.JobsProcesados.WithLabelValues(job.Type, "ok").Inc()
}

// withRetry calls fn up to maxAttempts times with exponential backoff
// (immediate, 1s, 2s ...). It stops early on ErrPermanente. Returns the number
// of attempts made and the last error.
func withRetry(ctx context.Context, maxAttempts int, fn func(attempt int) error) (int, error) {
	var lastErr error
	for i := 0; i < maxAttempts; i++ {
		if i > 0 {
			wait := time.Duration(1<<uint(i-1)) * time.Second
			select {
			case <-ctx.Done():
				return i, ctx.Err()
			case <-time.After(wait):
			}
		}
		lastErr = fn(i)
		if lastErr == nil {
			return i + 1, nil
		}
		if errors.Is(lastErr, ErrPermanente) {
			return i + 1, lastErr
		}
	}
	return maxAttempts, lastErr
}
