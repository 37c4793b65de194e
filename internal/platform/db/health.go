package db

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

const healthPingTimeout = 5 * time.Second

// HealthReport is the payload of the database health endpoint. Saturation
// shows how much of the pool is in use; a pool pinned at its ceiling means
// tenant requests are queueing for connections.
type HealthReport struct {
	Status        string `json:"status"`
	PingLatency   string `json:"ping_latency,omitempty"`
	Error         string `json:"error,omitempty"`
	TotalConns    int32  `json:"total_conns"`
	IdleConns     int32  `json:"idle_conns"`
	AcquiredConns int32  `json:"acquired_conns"`
	MaxConns      int32  `json:"max_conns"`
	Saturation    string `json:"saturation"`
}

func buildHealthReport(pool *pgxpool.Pool) HealthReport {
	stat := pool.Stat()
	saturation := float64(0)
	if stat.MaxConns() > 0 {
		saturation = float64(stat.AcquiredConns()) / float64(stat.MaxConns())
	}
	return HealthReport{
		TotalConns:    stat.TotalConns(),
		IdleConns:     stat.IdleConns(),
		AcquiredConns: stat.AcquiredConns(),
		MaxConns:      stat.MaxConns(),
		Saturation:    fmt.Sprintf("%.0f%%", saturation*100),
	}
}

// HealthHandler reports database reachability and pool pressure. It pings
// through the shared pool with a bounded timeout so a stalled database
// turns into a 503 instead of a hanging health check.
func HealthHandler(pool *pgxpool.Pool) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), healthPingTimeout)
		defer cancel()

		start := time.Now()
		err := pool.Ping(ctx)
		latency := time.Since(start)

		report := buildHealthReport(pool)
		report.PingLatency = latency.String()

		if err != nil {
			report.Status = "unhealthy"
			report.Error = err.Error()
			return c.JSON(http.StatusServiceUnavailable, report)
		}

		report.Status = "healthy"
		return c.JSON(http.StatusOK, report)
	}
}
