package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"pipos/internal/apierror"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Fixed-window rate limiting shared by every API instance through Redis:
// one counter per (scope, client IP, window) that expires with the window.
// Without Redis, or when it errors, requests pass (fail open).

// LoginRateLimiter limits login attempts to 20 per minute per IP.
func LoginRateLimiter(rdb *redis.Client) gin.HandlerFunc {
	return rateLimit(rdb, "login", 20, time.Minute, "Demasiados intentos de login. Intente en 1 minuto.")
}

// RateLimiter returns the general-purpose limiter: limit requests per window
// per IP.
func RateLimiter(rdb *redis.Client, limit int, window time.Duration) gin.HandlerFunc {
	return rateLimit(rdb, "api", limit, window, "Demasiadas solicitudes. Intente nuevamente en un momento.")
}

func rateLimit(rdb *redis.Client, scope string, limit int, window time.Duration, msg string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if rdb == nil || limit <= 0 {
			c.Next()
			return
		}

		now := time.Now()
		bucket := now.UnixNano() / int64(window)
		key := fmt.Sprintf("ratelimit:%s:%s:%d", scope, c.ClientIP(), bucket)

		pipe := rdb.TxPipeline()
		incr := pipe.Incr(c.Request.Context(), key)
		pipe.Expire(c.Request.Context(), key, window)
		if _, err := pipe.Exec(c.Request.Context()); err != nil {
			log.Warn().Err(err).Str("scope", scope).Msg("rate limiter: redis unavailable, allowing request")
			c.Next()
			return
		}

		if incr.Val() > int64(limit) {
			windowEnd := time.Unix(0, (bucket+1)*int64(window))
			retry := int(windowEnd.Sub(now).Seconds()) + 1
			c.Header("Retry-After", strconv.Itoa(retry))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, apierror.New(msg))
			return
		}
		c.Next()
	}
}
