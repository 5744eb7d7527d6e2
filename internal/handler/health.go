package handler

import (
	"context"
	"net/http"
	"time"

	"pipos/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Health returns a JSON health check response.
// Checks DB and Redis connectivity; never exposes credentials or internals.
// Redis is optional: without it the service runs with degraded folios, no
// background jobs and no rate limiting, and reports "disabled".
func Health(db *gorm.DB, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		dbStatus := "connected"
		sqlDB, err := db.DB()
		if err != nil || sqlDB.PingContext(ctx) != nil {
			dbStatus = "error"
		}

		body := gin.H{"db": dbStatus}
		redisStatus := "disabled"
		if rdb != nil {
			redisStatus = "connected"
			if rdb.Ping(ctx).Err() != nil {
				redisStatus = "error"
			} else {
				dlq := gin.H{}
				for _, q := range []string{worker.QueueTickets, worker.QueueAlertasStock} {
					if n, err := worker.DLQLength(ctx, rdb, q); err == nil {
						dlq[q] = n
					}
				}
				body["dlq"] = dlq
			}
		}
		body["redis"] = redisStatus

		status := http.StatusOK
		if dbStatus != "connected" || redisStatus == "error" {
			status = http.StatusServiceUnavailable
		}
		body["ok"] = status == http.StatusOK
		c.JSON(status, body)
	}
}
