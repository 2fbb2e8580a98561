package db

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

const healthTimeout = 5 * time.Second

// Check is a named dependency probe: the database, Redis or the Kafka
// brokers. Details, when set, adds extra fields to a healthy result.
type Check struct {
	Name    string
	Ping    func(ctx context.Context) error
	Details func() any
}

type poolStats struct {
	Total    int32  `json:"total_conns"`
	Idle     int32  `json:"idle_conns"`
	Acquired int32  `json:"acquired_conns"`
	Max      int32  `json:"max_conns"`
	Waited   int64  `json:"empty_acquire_count"`
	Acquire  string `json:"acquire_duration"`
}

// PoolCheck probes the database pool and reports its connection counters.
func PoolCheck(pool *pgxpool.Pool) Check {
	return Check{
		Name: "database",
		Ping: pool.Ping,
		Details: func() any {
			s := pool.Stat()
			return poolStats{
				Total:    s.TotalConns(),
				Idle:     s.IdleConns(),
				Acquired: s.AcquiredConns(),
				Max:      s.MaxConns(),
				Waited:   s.EmptyAcquireCount(),
				Acquire:  s.AcquireDuration().String(),
			}
		},
	}
}

type checkResult struct {
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
	Latency string `json:"latency"`
	Details any    `json:"details,omitempty"`
}

// HealthHandler runs every check concurrently under one deadline and answers
// 503 when any of them fails.
func HealthHandler(checks ...Check) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), healthTimeout)
		defer cancel()

		results := make([]checkResult, len(checks))
		var wg sync.WaitGroup
		for i, chk := range checks {
			wg.Add(1)
			go func(i int, chk Check) {
				defer wg.Done()
				start := time.Now()
				err := chk.Ping(ctx)
				r := checkResult{Status: "ok", Latency: time.Since(start).String()}
				if err != nil {
					r.Status = "down"
					r.Error = err.Error()
				} else if chk.Details != nil {
					r.Details = chk.Details()
				}
				results[i] = r
			}(i, chk)
		}
		wg.Wait()

		status, overall := http.StatusOK, "healthy"
		byName := make(map[string]checkResult, len(checks))
		for i, chk := range checks {
			byName[chk.Name] = results[i]
			if results[i].Status != "ok" {
				status, overall = http.StatusServiceUnavailable, "unhealthy"
			}
		}
		return c.JSON(status, map[string]any{"status": overall, "checks": byName})
	}
}
