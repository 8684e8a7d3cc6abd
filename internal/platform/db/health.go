package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// PoolStats represents database connection pool statistics.
type PoolStats struct {
	TotalConns      int32  `json:"total_conns"`
	IdleConns       int32  `json:"idle_conns"`
	AcquiredConns   int32  `json:"acquired_conns"`
	MaxConns        int32  `json:"max_conns"`
	AcquireDuration string `json:"acquire_duration"`
}

func GetPoolStats(pool *pgxpool.Pool) *PoolStats {
	stat := pool.Stat()
	return &PoolStats{
		TotalConns:      stat.TotalConns(),
		IdleConns:       stat.IdleConns(),
		AcquiredConns:   stat.AcquiredConns(),
		MaxConns:        stat.MaxConns(),
		AcquireDuration: stat.AcquireDuration().String(),
	}
}

// Pinger is a dependency the health endpoint probes, such as the cache.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// HealthHandler pings the database and every extra dependency. Any failure
// turns the response into a 503 naming the failing component.
func HealthHandler(pool *pgxpool.Pool, deps map[string]Pinger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		checks := checkAll(ctx, pool, deps)
		body := map[string]interface{}{"status": "healthy", "checks": checks}
		if pool != nil {
			body["pool"] = GetPoolStats(pool)
		}

		for _, v := range checks {
			if v != "ok" {
				body["status"] = "unhealthy"
				return c.JSON(http.StatusServiceUnavailable, body)
			}
		}
		return c.JSON(http.StatusOK, body)
	}
}

func checkAll(ctx context.Context, pool *pgxpool.Pool, deps map[string]Pinger) map[string]string {
	checks := make(map[string]string, len(deps)+1)
	if pool != nil {
		checks["database"] = status(pool.Ping(ctx))
	}
	for name, p := range deps {
		checks[name] = status(p.Ping(ctx))
	}
	return checks
}

func status(err error) string {
	if err != nil {
		return err.Error()
	}
	return "ok"
}
