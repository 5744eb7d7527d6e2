package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// GeneradorFolio produces candidate sale numbers. Uniqueness is enforced by
// the database; a collision makes the caller ask for another candidate.
type GeneradorFolio interface {
	Siguiente(ctx context.Context) (string, error)
	// Resincronizar is called after a collision so the next candidate starts
	// past the highest number already stored for the day.
	Resincronizar(ctx context.Context) error
}

// NumerosVenta is the read the generator needs to recover its counter.
type NumerosVenta interface {
	UltimoNumero(ctx context.Context, prefijo string) (string, error)
}

const folioTTL = 48 * time.Hour

// subirFolio raises the counter to ARGV[1] and never lowers it, so concurrent
// resyncs and INCRs cannot hand out a number twice.
var subirFolio = redis.NewScript(`
local actual = tonumber(redis.call('GET', KEYS[1]) or '0')
local minimo = tonumber(ARGV[1])
if actual < minimo then
	redis.call('SET', KEYS[1], minimo, 'EX', ARGV[2])
	return minimo
end
return actual
`)

// folioRedis hands out "<prefijo>-YYYYMMDD-NNNNN" from a per-day Redis
// counter. When Redis is unavailable it falls back to a random suffix, which
// is still safe because the unique index rejects collisions.
type folioRedis struct {
	rdb     *redis.Client
	numeros NumerosVenta
	prefijo string
	ahora   func() time.Time
}

func NewGeneradorFolio(rdb *redis.Client, numeros NumerosVenta, prefijo string, reglas Reglas) GeneradorFolio {
	if prefijo == "" {
		prefijo = "V"
	}
	return &folioRedis{rdb: rdb, numeros: numeros, prefijo: prefijo, ahora: reglas.ahora}
}

func (g *folioRedis) prefijoDia(dia string) string {
	return g.prefijo + "-" + dia + "-"
}

func (g *folioRedis) Siguiente(ctx context.Context) (string, error) {
	dia := g.ahora().Format("20060102")
	if g.rdb != nil {
		key := "folio:" + dia
		n, err := g.rdb.Incr(ctx, key).Result()
		if err == nil {
			if n == 1 {
				if err := g.rdb.Expire(ctx, key, folioTTL).Err(); err != nil {
					log.Warn().Err(err).Str("key", key).Msg("folio: expire failed")
				}
			}
			return fmt.Sprintf("%s%05d", g.prefijoDia(dia), n), nil
		}
		log.Warn().Err(err).Msg("folio: redis unavailable, using random suffix")
	}
	sufijo := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:10])
	return fmt.Sprintf("%sR%s", g.prefijoDia(dia), sufijo), nil
}

// Resincronizar recovers from a counter that restarted below the stored
// numbers, e.g. after a Redis restart without persistence or an eviction.
func (g *folioRedis) Resincronizar(ctx context.Context) error {
	if g.rdb == nil || g.numeros == nil {
		return nil
	}
	dia := g.ahora().Format("20060102")
	prefijo := g.prefijoDia(dia)
	ultimo, err := g.numeros.UltimoNumero(ctx, prefijo)
	if err != nil {
		return err
	}
	n, ok := secuenciaFolio(ultimo, prefijo)
	if !ok {
		return nil
	}
	actual, err := subirFolio.Run(ctx, g.rdb, []string{"folio:" + dia}, n, int(folioTTL.Seconds())).Int64()
	if err != nil {
		return err
	}
	if actual == n {
		log.Info().Str("dia", dia).Int64("secuencia", n).Msg("folio: contador resincronizado")
	}
	return nil
}

// secuenciaFolio extracts the counter part of a "<prefijo>NNNNN" number.
func secuenciaFolio(numero, prefijo string) (int64, bool) {
	resto, ok := strings.CutPrefix(numero, prefijo)
	if !ok || resto == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(resto, 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
